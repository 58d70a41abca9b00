package grid

import (
	"fmt"
	"strconv"
	"strings"
)

// Order identifies a single perturbative order by the powers of the two
// couplings and of the three scale logarithms multiplying its coefficients.
type Order struct {
	// AlphaS is the exponent of the strong coupling.
	AlphaS uint8
	// Alpha is the exponent of the electroweak coupling.
	Alpha uint8
	// LogXiR is the exponent of log(xiR^2), the renormalization scale log.
	LogXiR uint8
	// LogXiF is the exponent of log(xiF^2), the factorization scale log.
	LogXiF uint8
	// LogXiA is the exponent of log(xiA^2), the fragmentation scale log.
	LogXiA uint8
}

// NewOrder constructs an Order from the five exponents.
func NewOrder(alphas, alpha, logxir, logxif, logxia uint8) Order {
	return Order{AlphaS: alphas, Alpha: alpha, LogXiR: logxir, LogXiF: logxif, LogXiA: logxia}
}

// Less sorts leading orders before next-to-leading orders, then by the
// power of alpha, then lexicographically by the log exponents.
func (o Order) Less(other Order) bool {
	lhs := int(o.AlphaS) + int(o.Alpha)
	rhs := int(other.AlphaS) + int(other.Alpha)
	if lhs != rhs {
		return lhs < rhs
	}
	la := [4]uint8{o.Alpha, o.LogXiR, o.LogXiF, o.LogXiA}
	ra := [4]uint8{other.Alpha, other.LogXiR, other.LogXiF, other.LogXiA}
	for i := range la {
		if la[i] != ra[i] {
			return la[i] < ra[i]
		}
	}
	return false
}

// String renders the order in the compact "as1a2lr1lf1la1" syntax, omitting
// zero exponents. The all-zero order renders as the empty string.
func (o Order) String() string {
	var b strings.Builder
	if o.AlphaS > 0 {
		fmt.Fprintf(&b, "as%d", o.AlphaS)
	}
	if o.Alpha > 0 {
		fmt.Fprintf(&b, "a%d", o.Alpha)
	}
	if o.LogXiR > 0 {
		fmt.Fprintf(&b, "lr%d", o.LogXiR)
	}
	if o.LogXiF > 0 {
		fmt.Fprintf(&b, "lf%d", o.LogXiF)
	}
	if o.LogXiA > 0 {
		fmt.Fprintf(&b, "la%d", o.LogXiA)
	}
	return b.String()
}

// ParseOrder parses the compact string syntax produced by String. Unknown
// labels and malformed exponents are reported as errors.
func ParseOrder(s string) (Order, error) {
	var o Order
	seen := make(map[*uint8]bool, 5)
	rest := s
	for rest != "" {
		var target *uint8
		switch {
		case strings.HasPrefix(rest, "as"):
			target, rest = &o.AlphaS, rest[2:]
		case strings.HasPrefix(rest, "lr"):
			target, rest = &o.LogXiR, rest[2:]
		case strings.HasPrefix(rest, "lf"):
			target, rest = &o.LogXiF, rest[2:]
		case strings.HasPrefix(rest, "la"):
			target, rest = &o.LogXiA, rest[2:]
		case strings.HasPrefix(rest, "a"):
			target, rest = &o.Alpha, rest[1:]
		default:
			return Order{}, fmt.Errorf("parse order %q: unknown label at %q", s, rest)
		}
		if seen[target] {
			return Order{}, fmt.Errorf("parse order %q: repeated label at %q", s, rest)
		}
		seen[target] = true
		end := 0
		for end < len(rest) && rest[end] >= '0' && rest[end] <= '9' {
			end++
		}
		if end == 0 {
			return Order{}, fmt.Errorf("parse order %q: missing exponent at %q", s, rest)
		}
		n, err := strconv.ParseUint(rest[:end], 10, 8)
		if err != nil {
			return Order{}, fmt.Errorf("parse order %q: %w", s, err)
		}
		*target = uint8(n)
		rest = rest[end:]
	}
	return o, nil
}

// CreateMask returns a per-order boolean mask selecting the perturbative
// orders up to maxAS powers of the strong coupling and maxAL powers of the
// electroweak coupling beyond the leading order. Setting maxAS=1, maxAL=0
// selects the LO QCD only; maxAS=2, maxAL=0 the NLO QCD. Orders carrying
// scale logarithms are excluded unless logs is true.
//
// When both maxAS and maxAL are non-zero and equal, only orders strictly
// below the smaller tower bound are selected; the towers are otherwise
// walked from the leading order with the largest power of the respective
// coupling.
func CreateMask(orders []Order, maxAS, maxAL uint8, logs bool) []bool {
	lo := uint8(0)
	if len(orders) > 0 {
		lo = orders[0].AlphaS + orders[0].Alpha
		for _, o := range orders[1:] {
			if sum := o.AlphaS + o.Alpha; sum < lo {
				lo = sum
			}
		}
	}

	// largest coupling powers among the leading orders
	var loAS, loAL uint8
	for _, o := range orders {
		if o.AlphaS+o.Alpha != lo {
			continue
		}
		if o.AlphaS > loAS {
			loAS = o.AlphaS
		}
		if o.Alpha > loAL {
			loAL = o.Alpha
		}
	}

	maxSel := maxAS
	minSel := maxAL
	if maxAL > maxAS {
		maxSel, minSel = maxAL, maxAS
	}

	mask := make([]bool, len(orders))
	for i, o := range orders {
		if !logs && (o.LogXiR > 0 || o.LogXiF > 0 || o.LogXiA > 0) {
			continue
		}
		sum := o.AlphaS + o.Alpha
		pto := sum - lo
		switch {
		case sum < minSel+lo:
			mask[i] = true
		case sum < maxSel+lo && maxAS > maxAL:
			mask[i] = loAS+pto == o.AlphaS
		case sum < maxSel+lo && maxAS < maxAL:
			mask[i] = loAL+pto == o.Alpha
		}
	}
	return mask
}
