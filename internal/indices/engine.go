// Package indices computes vegetation, water and burn indices from a sampled
// band vector.
//
// Every index is a ratio of two linear band combinations, optionally followed
// by a final scalar step. The formulas are declared once in Formulas and
// evaluated by a single function, so the zero-denominator rule (result is NaN,
// never an error) applies identically to all of them.
package indices

import (
	"math"

	"farmsat/internal/types"
)

// BandExpr is a linear combination of band values.
type BandExpr func(b types.BandVector) float64

// Formula describes one index as Finish(Numerator / Denominator).
type Formula struct {
	Name        string
	Numerator   BandExpr
	Denominator BandExpr

	// Finish is applied to the quotient. Nil means identity.
	Finish func(q float64) float64
}

const (
	// saviL is the SAVI soil brightness correction factor.
	saviL = 0.725

	// arviGamma weights the blue-red difference in ARVI.
	arviGamma = 0.069
)

// Formulas lists the indices in output column order.
var Formulas = []Formula{
	{
		Name:        "NDVI",
		Numerator:   func(b types.BandVector) float64 { return b.Get(types.B08) - b.Get(types.B04) },
		Denominator: func(b types.BandVector) float64 { return b.Get(types.B08) + b.Get(types.B04) },
	},
	{
		Name:        "NDWI",
		Numerator:   func(b types.BandVector) float64 { return b.Get(types.B08) - b.Get(types.B11) },
		Denominator: func(b types.BandVector) float64 { return b.Get(types.B08) + b.Get(types.B11) },
	},
	{
		Name:        "SAVI",
		Numerator:   func(b types.BandVector) float64 { return b.Get(types.B08) - b.Get(types.B04) },
		Denominator: func(b types.BandVector) float64 { return b.Get(types.B08) + b.Get(types.B04) + saviL },
		Finish:      func(q float64) float64 { return q * (1 + saviL) },
	},
	{
		Name:        "SIPI",
		Numerator:   func(b types.BandVector) float64 { return b.Get(types.B08) - b.Get(types.B02) },
		Denominator: func(b types.BandVector) float64 { return b.Get(types.B08) - b.Get(types.B04) },
	},
	{
		Name: "ARVI",
		Numerator: func(b types.BandVector) float64 {
			return b.Get(types.B8A) - b.Get(types.B04) - arviGamma*(b.Get(types.B04)-b.Get(types.B02))
		},
		Denominator: func(b types.BandVector) float64 {
			return b.Get(types.B8A) + b.Get(types.B04) - arviGamma*(b.Get(types.B04)-b.Get(types.B02))
		},
	},
	{
		Name:        "NBR",
		Numerator:   func(b types.BandVector) float64 { return b.Get(types.B08) - b.Get(types.B12) },
		Denominator: func(b types.BandVector) float64 { return b.Get(types.B08) + b.Get(types.B12) },
	},
	{
		Name:      "EVI",
		Numerator: func(b types.BandVector) float64 { return 2.5 * (b.Get(types.B08) - b.Get(types.B04)) },
		Denominator: func(b types.BandVector) float64 {
			return (b.Get(types.B08) + 6*b.Get(types.B04) - 7.5*b.Get(types.B02)) + 1
		},
	},
	{
		Name: "GLI",
		Numerator: func(b types.BandVector) float64 {
			return 2*b.Get(types.B03) - b.Get(types.B04) - b.Get(types.B02)
		},
		Denominator: func(b types.BandVector) float64 {
			return 2*b.Get(types.B03) + b.Get(types.B04) + b.Get(types.B02)
		},
	},
	{
		Name:        "GCI",
		Numerator:   func(b types.BandVector) float64 { return b.Get(types.B08) },
		Denominator: func(b types.BandVector) float64 { return b.Get(types.B03) },
		Finish:      func(q float64) float64 { return q - 1 },
	},
	{
		Name:        "RGR",
		Numerator:   func(b types.BandVector) float64 { return b.Get(types.B04) },
		Denominator: func(b types.BandVector) float64 { return b.Get(types.B03) },
	},
}

// Names returns the index names in output order.
func Names() []string {
	names := make([]string, len(Formulas))
	for i, f := range Formulas {
		names[i] = f.Name
	}
	return names
}

// Lookup returns the formula with the given name.
func Lookup(name string) (Formula, bool) {
	for _, f := range Formulas {
		if f.Name == name {
			return f, true
		}
	}
	return Formula{}, false
}

// Evaluate computes one formula. A denominator of exactly zero yields NaN.
func Evaluate(f Formula, b types.BandVector) float64 {
	den := f.Denominator(b)
	if den == 0 {
		return math.NaN()
	}
	q := f.Numerator(b) / den
	if f.Finish != nil {
		q = f.Finish(q)
	}
	return q
}

// Compute evaluates every formula for one band vector.
func Compute(b types.BandVector) types.IndexVector {
	out := make(types.IndexVector, len(Formulas))
	for i, f := range Formulas {
		out[i] = types.IndexValue{Name: f.Name, Value: Evaluate(f, b)}
	}
	return out
}
