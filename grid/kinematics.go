package grid

import (
	"fmt"
	"math"
)

// KinematicsKind distinguishes scale axes from momentum-fraction axes.
type KinematicsKind int

const (
	// KinScale marks a squared-scale axis.
	KinScale KinematicsKind = iota
	// KinX marks a momentum-fraction axis.
	KinX
)

// Kinematics labels one interpolation axis of a grid: either the Index-th
// scale axis or the Index-th momentum-fraction axis.
type Kinematics struct {
	Kind  KinematicsKind
	Index int
}

// ScaleAxis returns the label of the index-th scale axis.
func ScaleAxis(index int) Kinematics { return Kinematics{Kind: KinScale, Index: index} }

// XAxis returns the label of the index-th momentum-fraction axis.
func XAxis(index int) Kinematics { return Kinematics{Kind: KinX, Index: index} }

func (k Kinematics) String() string {
	switch k.Kind {
	case KinScale:
		return fmt.Sprintf("scale%d", k.Index)
	case KinX:
		return fmt.Sprintf("x%d", k.Index)
	}
	return fmt.Sprintf("kin(%d,%d)", int(k.Kind), k.Index)
}

// ScaleFuncKind enumerates the functional forms a renormalization,
// factorization or fragmentation scale can take in terms of the grid's
// scale axes. All forms act on squared scales.
type ScaleFuncKind int

const (
	// SfNoScale means the scale plays no role (no fragmentation scale,
	// for instance) and contributes no axis.
	SfNoScale ScaleFuncKind = iota
	// SfScale takes a single scale axis unchanged.
	SfScale
	// SfQuadraticSum is s1 + s2.
	SfQuadraticSum
	// SfQuadraticMean is (s1 + s2) / 2.
	SfQuadraticMean
	// SfQuadraticSumOver4 is (s1 + s2) / 4.
	SfQuadraticSumOver4
	// SfLinearMean is ((sqrt(s1) + sqrt(s2)) / 2)^2.
	SfLinearMean
	// SfLinearSum is (sqrt(s1) + sqrt(s2))^2.
	SfLinearSum
	// SfScaleMax is max(s1, s2).
	SfScaleMax
	// SfScaleMin is min(s1, s2).
	SfScaleMin
	// SfProd is s1 * s2.
	SfProd
	// SfS2plusS1half is (s1 + 2 s2) / 2.
	SfS2plusS1half
	// SfPow4Sum is sqrt(s1^2 + s2^2).
	SfPow4Sum
	// SfWgtAvg is (s1^2 + s2^2) / (s1 + s2).
	SfWgtAvg
	// SfS2plusS1fourth is s1/4 + s2.
	SfS2plusS1fourth
	// SfExpProd2 is (sqrt(s1) * exp(0.3 sqrt(s2)))^2.
	SfExpProd2
)

// ScaleFuncForm couples a functional form with the scale-axis indices it
// acts on. Idx2 is ignored for the single-axis forms.
type ScaleFuncForm struct {
	Kind ScaleFuncKind
	Idx1 int
	Idx2 int
}

// NoScale returns the form of an absent scale.
func NoScale() ScaleFuncForm { return ScaleFuncForm{Kind: SfNoScale} }

// SingleScale returns the identity form over the index-th scale axis.
func SingleScale(index int) ScaleFuncForm { return ScaleFuncForm{Kind: SfScale, Idx1: index} }

// twoScale evaluates the two-axis functional forms.
func (s ScaleFuncForm) twoScale(s1, s2 float64) float64 {
	switch s.Kind {
	case SfQuadraticSum:
		return s1 + s2
	case SfQuadraticMean:
		return 0.5 * (s1 + s2)
	case SfQuadraticSumOver4:
		return 0.25 * (s1 + s2)
	case SfLinearMean:
		r := math.Sqrt(s1) + math.Sqrt(s2)
		return 0.25 * r * r
	case SfLinearSum:
		r := math.Sqrt(s1) + math.Sqrt(s2)
		return r * r
	case SfScaleMax:
		return math.Max(s1, s2)
	case SfScaleMin:
		return math.Min(s1, s2)
	case SfProd:
		return s1 * s2
	case SfS2plusS1half:
		return 0.5 * (s1 + 2*s2)
	case SfPow4Sum:
		return math.Hypot(s1, s2)
	case SfWgtAvg:
		return (s1*s1 + s2*s2) / (s1 + s2)
	case SfS2plusS1fourth:
		return 0.25*s1 + s2
	case SfExpProd2:
		r := math.Sqrt(s1) * math.Exp(0.3*math.Sqrt(s2))
		return r * r
	}
	panic(fmt.Sprintf("scale func %d is not a two-axis form", int(s.Kind)))
}

// Calc evaluates the form over the node values of a subgrid's axes, given
// the kinematics layout that labels them. For two-axis forms the cartesian
// product of the two node lists is returned, first axis outermost. NoScale
// and empty node lists yield nil.
func (s ScaleFuncForm) Calc(nodeValues [][]float64, kinematics []Kinematics) []float64 {
	if s.Kind == SfNoScale || len(nodeValues) == 0 {
		return nil
	}
	if s.Kind == SfScale {
		return nodeValues[kinematicsPosition(kinematics, ScaleAxis(s.Idx1))]
	}
	scales1 := nodeValues[kinematicsPosition(kinematics, ScaleAxis(s.Idx1))]
	scales2 := nodeValues[kinematicsPosition(kinematics, ScaleAxis(s.Idx2))]
	out := make([]float64, 0, len(scales1)*len(scales2))
	for _, s1 := range scales1 {
		for _, s2 := range scales2 {
			out = append(out, s.twoScale(s1, s2))
		}
	}
	return out
}

// Idx maps a tuple of per-scale-axis node indices to the index into the
// slice Calc returns. scaleDims holds the node counts of the scale axes.
func (s ScaleFuncForm) Idx(indices []int, scaleDims []int) int {
	switch s.Kind {
	case SfNoScale:
		panic("no scale index for NoScale")
	case SfScale:
		return indices[s.Idx1]
	}
	return indices[s.Idx1]*scaleDims[1] + indices[s.Idx2]
}

func kinematicsPosition(kinematics []Kinematics, want Kinematics) int {
	for i, kin := range kinematics {
		if kin == want {
			return i
		}
	}
	panic(fmt.Sprintf("kinematics %v missing axis %v", kinematics, want))
}

// Scales bundles the functional forms of the renormalization,
// factorization and fragmentation scales.
type Scales struct {
	Ren ScaleFuncForm
	Fac ScaleFuncForm
	Frg ScaleFuncForm
}

// CompatibleWith reports whether every scale axis the three forms refer to
// exists in the kinematics layout.
func (s Scales) CompatibleWith(kinematics []Kinematics) bool {
	for _, form := range []ScaleFuncForm{s.Ren, s.Fac, s.Frg} {
		switch form.Kind {
		case SfNoScale:
		case SfScale:
			if !hasKinematics(kinematics, ScaleAxis(form.Idx1)) {
				return false
			}
		default:
			if !hasKinematics(kinematics, ScaleAxis(form.Idx1)) ||
				!hasKinematics(kinematics, ScaleAxis(form.Idx2)) {
				return false
			}
		}
	}
	return true
}

func hasKinematics(kinematics []Kinematics, want Kinematics) bool {
	for _, kin := range kinematics {
		if kin == want {
			return true
		}
	}
	return false
}
