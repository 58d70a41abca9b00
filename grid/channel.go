package grid

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/floats/scalar"
)

// channelZeroEps is the absolute threshold below which a term's numerical
// factor counts as zero and the term is dropped at construction.
const channelZeroEps = 1e-14

// ChannelTerm is one term of a channel: a tuple of parton ids, one per
// convolution, and the numerical factor multiplying that combination.
type ChannelTerm struct {
	PIDs   []int32
	Factor float64
}

// Channel is a linear combination of parton-id tuples. Terms are kept
// sorted by pid tuple and coalesced, so two channels built from the same
// terms in any order compare equal.
type Channel struct {
	terms []ChannelTerm
}

// NewChannel constructs a Channel from terms. Terms are sorted, repeated
// pid tuples are summed and terms with a vanishing factor are dropped.
// NewChannel panics when terms is empty or the tuples disagree in length.
func NewChannel(terms []ChannelTerm) Channel {
	if len(terms) == 0 {
		panic("can not create empty channel")
	}
	width := len(terms[0].PIDs)
	for _, t := range terms[1:] {
		if len(t.PIDs) != width {
			panic("can not create channel with a different number of PIDs")
		}
	}

	sorted := make([]ChannelTerm, len(terms))
	for i, t := range terms {
		sorted[i] = ChannelTerm{PIDs: append([]int32(nil), t.PIDs...), Factor: t.Factor}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return pidsLess(sorted[i].PIDs, sorted[j].PIDs)
	})

	var coalesced []ChannelTerm
	for _, t := range sorted {
		if n := len(coalesced); n > 0 && pidsEqual(coalesced[n-1].PIDs, t.PIDs) {
			coalesced[n-1].Factor += t.Factor
			continue
		}
		coalesced = append(coalesced, t)
	}

	kept := coalesced[:0]
	for _, t := range coalesced {
		if math.Abs(t.Factor) > channelZeroEps {
			kept = append(kept, t)
		}
	}
	return Channel{terms: append([]ChannelTerm(nil), kept...)}
}

// Terms returns the sorted, coalesced terms of the channel.
func (c Channel) Terms() []ChannelTerm { return c.terms }

// Equal reports whether the two channels have identical terms.
func (c Channel) Equal(other Channel) bool {
	if len(c.terms) != len(other.terms) {
		return false
	}
	for i, t := range c.terms {
		if t.Factor != other.terms[i].Factor || !pidsEqual(t.PIDs, other.terms[i].PIDs) {
			return false
		}
	}
	return true
}

// Translate maps every pid through translator, which expands a pid into a
// linear combination in another basis, and returns the channel rewritten in
// that basis. The cartesian product of the per-pid expansions is taken and
// the factors multiplied through.
func (c Channel) Translate(translator func(pid int32) []BasisTerm) Channel {
	var result []ChannelTerm
	for _, term := range c.terms {
		expansions := make([][]BasisTerm, len(term.PIDs))
		for i, pid := range term.PIDs {
			expansions[i] = translator(pid)
		}
		combo := make([]int, len(expansions))
		for {
			pids := make([]int32, len(expansions))
			factor := term.Factor
			for i, k := range combo {
				pids[i] = expansions[i][k].PID
				factor *= expansions[i][k].Factor
			}
			result = append(result, ChannelTerm{PIDs: pids, Factor: factor})

			i := len(combo) - 1
			for ; i >= 0; i-- {
				combo[i]++
				if combo[i] < len(expansions[i]) {
					break
				}
				combo[i] = 0
			}
			if i < 0 {
				break
			}
		}
	}
	return NewChannel(result)
}

// BasisTerm is a single-pid term used by Translate's basis expansions.
type BasisTerm struct {
	PID    int32
	Factor float64
}

// Transpose returns the channel with the pids at indices i and j swapped in
// every term.
func (c Channel) Transpose(i, j int) Channel {
	terms := make([]ChannelTerm, len(c.terms))
	for k, t := range c.terms {
		pids := append([]int32(nil), t.PIDs...)
		pids[i], pids[j] = pids[j], pids[i]
		terms[k] = ChannelTerm{PIDs: pids, Factor: t.Factor}
	}
	return NewChannel(terms)
}

// CommonFactor returns f and true when other has the same pid tuples as c
// term by term and all the factor ratios agree within a few ULPs, where f
// is the common ratio of c's factors over other's.
func (c Channel) CommonFactor(other Channel) (float64, bool) {
	if len(c.terms) != len(other.terms) {
		return 0, false
	}
	ratios := make([]float64, len(c.terms))
	for i, t := range c.terms {
		if !pidsEqual(t.PIDs, other.terms[i].PIDs) {
			return 0, false
		}
		ratios[i] = t.Factor / other.terms[i].Factor
	}
	for i := 1; i < len(ratios); i++ {
		if !scalar.EqualWithinULP(ratios[i-1], ratios[i], 4) {
			return 0, false
		}
	}
	return ratios[0], true
}

// String renders the channel in the "1 * (2, -2) + 1 * (4, -4)" syntax.
func (c Channel) String() string {
	parts := make([]string, len(c.terms))
	for i, t := range c.terms {
		pids := make([]string, len(t.PIDs))
		for j, pid := range t.PIDs {
			pids[j] = strconv.FormatInt(int64(pid), 10)
		}
		parts[i] = fmt.Sprintf("%s * (%s)", strconv.FormatFloat(t.Factor, 'g', -1, 64), strings.Join(pids, ", "))
	}
	return strings.Join(parts, " + ")
}

// splitChannelTerms splits on the '+' separators between terms. A '+'
// inside a factor (a signed exponent like 1e+07) comes before the term's
// pid list closes and is left alone.
func splitChannelTerms(s string) []string {
	var parts []string
	start := 0
	inParens := false
	termClosed := false
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(':
			inParens = true
		case ')':
			inParens = false
			termClosed = true
		case '+':
			if !inParens && termClosed {
				parts = append(parts, s[start:i])
				start = i + 1
				termClosed = false
			}
		}
	}
	return append(parts, s[start:])
}

// ParseChannel parses the string syntax produced by String. Each term is
// "factor * (pid, pid, ...)"; terms are joined with '+'.
func ParseChannel(s string) (Channel, error) {
	var terms []ChannelTerm
	for _, sub := range splitChannelTerms(s) {
		factorStr, pidsStr, ok := strings.Cut(sub, "*")
		if !ok {
			return Channel{}, fmt.Errorf("parse channel: missing '*' in %q", sub)
		}
		factor, err := strconv.ParseFloat(strings.TrimSpace(factorStr), 64)
		if err != nil {
			return Channel{}, fmt.Errorf("parse channel %q: %w", sub, err)
		}
		pidsStr = strings.TrimSpace(pidsStr)
		if !strings.HasPrefix(pidsStr, "(") || !strings.HasSuffix(pidsStr, ")") {
			return Channel{}, fmt.Errorf("parse channel: missing parentheses in %q", sub)
		}
		var pids []int32
		for _, p := range strings.Split(pidsStr[1:len(pidsStr)-1], ",") {
			pid, err := strconv.ParseInt(strings.TrimSpace(p), 10, 32)
			if err != nil {
				return Channel{}, fmt.Errorf("parse channel %q: %w", sub, err)
			}
			pids = append(pids, int32(pid))
		}
		terms = append(terms, ChannelTerm{PIDs: pids, Factor: factor})
	}
	if len(terms) == 0 {
		return Channel{}, fmt.Errorf("parse channel: no terms in %q", s)
	}
	return NewChannel(terms), nil
}

func pidsLess(a, b []int32) bool {
	for i := range a {
		if i >= len(b) {
			return false
		}
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return len(a) < len(b)
}

func pidsEqual(a, b []int32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
