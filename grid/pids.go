package grid

import (
	"fmt"
	"sort"
	"strings"
)

// PidBasis names the flavor basis the channel definitions of a grid are
// written in.
type PidBasis int

const (
	// PidBasisPdg uses PDG Monte Carlo particle ids.
	PidBasisPdg PidBasis = iota
	// PidBasisEvol uses the evolution basis (singlet, valence, T3, ...).
	PidBasisEvol
)

// evolBasisIDs are the non-trivial ids of the evolution basis. All other
// ids translate to themselves.
var evolBasisIDs = [12]int32{100, 103, 108, 115, 124, 135, 200, 203, 208, 215, 224, 235}

// String implements fmt.Stringer, matching the names used on disk.
func (b PidBasis) String() string {
	switch b {
	case PidBasisPdg:
		return "pdg_mc_ids"
	case PidBasisEvol:
		return "evol"
	}
	return fmt.Sprintf("PidBasis(%d)", int(b))
}

// ParsePidBasis parses the names produced by String, accepting the short
// aliases "pdg" and "evol" as well.
func ParsePidBasis(s string) (PidBasis, error) {
	switch strings.ToLower(s) {
	case "pdg", "pdg_mc_ids":
		return PidBasisPdg, nil
	case "evol":
		return PidBasisEvol, nil
	}
	return 0, fmt.Errorf("unknown pid basis %q", s)
}

// Translate expands pid into the linear combination over target-basis ids
// when converting from basis b. Ids without a non-trivial translation map
// to themselves with factor one.
func (b PidBasis) Translate(target PidBasis, pid int32) []BasisTerm {
	if b == target {
		return []BasisTerm{{PID: pid, Factor: 1}}
	}
	if b == PidBasisEvol && target == PidBasisPdg {
		return evolToPdgMcIDs(pid)
	}
	if term, ok := pdgMcIDsToEvol([]BasisTerm{{PID: pid, Factor: 1}}); ok {
		return []BasisTerm{{PID: term, Factor: 1}}
	}
	return []BasisTerm{{PID: pid, Factor: 1}}
}

// ChargeConjugate returns the conjugate id of pid in basis b together with
// the sign picked up under conjugation. Evolution-basis ids keep their id,
// the valence-like 2xx ids flip sign.
func (b PidBasis) ChargeConjugate(pid int32) (int32, float64) {
	if b == PidBasisEvol {
		switch pid {
		case 100, 103, 108, 115, 124, 135:
			return pid, 1
		case 200, 203, 208, 215, 224, 235:
			return pid, -1
		}
	}
	return chargeConjugatePdgPid(pid), 1
}

// chargeConjugatePdgPid returns the PDG id of the antiparticle, keeping the
// self-conjugate gluon and photon fixed.
func chargeConjugatePdgPid(pid int32) int32 {
	if pid == 21 || pid == 22 {
		return pid
	}
	return -pid
}

// DetermineBasis guesses the basis of the given pids. Finding more than
// three ids recognized as evolution-basis ids declares the evolution basis,
// otherwise PDG ids are assumed.
func DetermineBasis(pids []int32) PidBasis {
	count := 0
	for _, pid := range pids {
		for _, evol := range evolBasisIDs {
			if pid == evol {
				count++
				break
			}
		}
	}
	if count > 3 {
		return PidBasisEvol
	}
	return PidBasisPdg
}

// evolToPdgMcIDs expands an evolution-basis id into its PDG linear
// combination. The 1xx ids are C-even, the 2xx ids C-odd.
func evolToPdgMcIDs(id int32) []BasisTerm {
	switch id {
	case 100:
		return flavorCombination(6, nil)
	case 103:
		return []BasisTerm{{2, 1}, {-2, 1}, {1, -1}, {-1, -1}}
	case 108:
		return flavorCombination(2, &BasisTerm{3, -2})
	case 115:
		return flavorCombination(3, &BasisTerm{4, -3})
	case 124:
		return flavorCombination(4, &BasisTerm{5, -4})
	case 135:
		return flavorCombination(5, &BasisTerm{6, -5})
	case 200:
		return valenceCombination(6, nil)
	case 203:
		return []BasisTerm{{2, 1}, {-2, -1}, {1, -1}, {-1, 1}}
	case 208:
		return valenceCombination(2, &BasisTerm{3, -2})
	case 215:
		return valenceCombination(3, &BasisTerm{4, -3})
	case 224:
		return valenceCombination(4, &BasisTerm{5, -4})
	case 235:
		return valenceCombination(5, &BasisTerm{6, -5})
	}
	return []BasisTerm{{PID: id, Factor: 1}}
}

// flavorCombination builds sum_{q<=nf} (q + qbar), in the 2,1,3,4,5,6
// flavor order of the evolution-basis tables, with an optional trailing
// pair carrying its own weight.
func flavorCombination(nf int32, tail *BasisTerm) []BasisTerm {
	var terms []BasisTerm
	for _, q := range flavorOrder(nf) {
		terms = append(terms, BasisTerm{q, 1}, BasisTerm{-q, 1})
	}
	if tail != nil {
		terms = append(terms, BasisTerm{tail.PID, tail.Factor}, BasisTerm{-tail.PID, tail.Factor})
	}
	return terms
}

// valenceCombination builds sum_{q<=nf} (q - qbar) with an optional
// weighted trailing pair.
func valenceCombination(nf int32, tail *BasisTerm) []BasisTerm {
	var terms []BasisTerm
	for _, q := range flavorOrder(nf) {
		terms = append(terms, BasisTerm{q, 1}, BasisTerm{-q, -1})
	}
	if tail != nil {
		terms = append(terms, BasisTerm{tail.PID, tail.Factor}, BasisTerm{-tail.PID, -tail.Factor})
	}
	return terms
}

// flavorOrder lists the first nf quark flavors in the 2,1,3,4,5,6 order the
// evolution-basis tables are written in.
func flavorOrder(nf int32) []int32 {
	order := []int32{2, 1, 3, 4, 5, 6}
	return order[:nf]
}

// pdgMcIDsToEvol inverts evolToPdgMcIDs: given a linear combination of PDG
// ids it returns the evolution-basis id producing it, when one exists. Term
// order is irrelevant; zero factors are ignored.
func pdgMcIDsToEvol(terms []BasisTerm) (int32, bool) {
	var kept []BasisTerm
	for _, t := range terms {
		if t.Factor != 0 {
			kept = append(kept, t)
		}
	}
	sort.Slice(kept, func(i, j int) bool { return kept[i].PID < kept[j].PID })

	for _, evolPid := range evolBasisIDs {
		expansion := evolToPdgMcIDs(evolPid)
		sort.Slice(expansion, func(i, j int) bool { return expansion[i].PID < expansion[j].PID })
		if basisTermsEqual(kept, expansion) {
			return evolPid, true
		}
	}
	if len(kept) == 1 && kept[0].Factor == 1 {
		return kept[0].PID, true
	}
	return 0, false
}

func basisTermsEqual(a, b []BasisTerm) bool {
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
