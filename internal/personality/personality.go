// Package personality implements the personality-shaping step of Bundle Gen
// (§4.6): pure functions that turn an expert's analytical focus and trait
// values into a parameterised prior and a set of bounded value adjustments.
// internal/bundle applies ShapeConfidence and ShapeCategoryValue to each
// drafted assertion after the generator has responded, before validation;
// the drafting pipeline does not call Prior.
package personality

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ashita-ai/council/internal/model"
)

// multiplierLo and multiplierHi bound every individual trait adjustment
// before composition, per §4.6: "Each adjustment is a multiplicative factor
// in [0.5, 1.5]."
const (
	multiplierLo = 0.5
	multiplierHi = 1.5
)

func clipMultiplier(v float64) float64 {
	if v < multiplierLo {
		return multiplierLo
	}
	if v > multiplierHi {
		return multiplierHi
	}
	return v
}

func clip01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Polarity returns the directional sign applied to one analytical-focus
// factor's signal: contrarian experts flip the sign on "public_*" signals
// (public betting percentages, public money, etc.), interpolated by the
// expert's contrarian trait in [0,1] — 0 keeps the signal's natural
// direction, 1 fully inverts it; every other factor keeps polarity 1.
func Polarity(traits model.PersonalityTraits, factorName string) float64 {
	if !strings.HasPrefix(factorName, "public_") {
		return 1.0
	}
	c := clip01(traits.Contrarian)
	return 1 - 2*c
}

// Prior computes a personality-parameterised base probability or value for
// a category, in the form `0.50 + Σ focus[factor]·signal[factor]·polarity`
// (§4.6). focus maps factor name to the expert's analytical-focus weight;
// signal maps the same factor names to the game's current directional
// signal for that factor (positive favors the category's first/home
// outcome). The result is clipped to [0,1] since it only ever seeds a
// probability-shaped prior.
func Prior(traits model.PersonalityTraits, focus, signal map[string]float64) float64 {
	p := 0.5
	for _, factor := range sortedKeys(focus) {
		p += focus[factor] * signal[factor] * Polarity(traits, factor)
	}
	return clip01(p)
}

// ShapeConfidence applies the risk-tolerance trait to a base confidence
// value: risk tolerance scales how far confidence may stray from the
// neutral 0.5 midpoint (§4.6 "risk tolerance scales confidence spread").
func ShapeConfidence(traits model.PersonalityTraits, base float64) float64 {
	mult := clipMultiplier(traits.RiskTolerance)
	return clip01(0.5 + (base-0.5)*mult)
}

// ShapeCategoryValue applies the optimism and analytics-trust traits to a
// base category value and clips the composed result to the category's legal
// range (§4.6 "composition is by multiplication followed by clipping to the
// category's legal range"). The category's family, looked up in registry,
// decides whether optimism applies (it only biases the scoring families);
// evidenceDriven marks whether the value was
// derived from an evidence-driven factor (weighted up by analytics trust) or
// an intuition-driven one (weighted down).
func ShapeCategoryValue(registry *model.CategoryRegistry, categoryID string, base float64, traits model.PersonalityTraits, evidenceDriven bool) (float64, error) {
	cat, ok := registry.Get(categoryID)
	if !ok {
		return 0, fmt.Errorf("personality: unknown category %q", categoryID)
	}

	v := base
	v *= optimismMultiplier(traits, cat.Family)
	v *= analyticsTrustMultiplier(traits, evidenceDriven)

	return clipToRange(v, cat), nil
}

func optimismMultiplier(traits model.PersonalityTraits, family model.CategoryFamily) float64 {
	if family != model.FamilyScores {
		return 1.0
	}
	return clipMultiplier(traits.Optimism)
}

func analyticsTrustMultiplier(traits model.PersonalityTraits, evidenceDriven bool) float64 {
	if evidenceDriven {
		return clipMultiplier(traits.AnalyticsTrust)
	}
	// An intuition-driven factor is weighted the inverse of how much the
	// expert trusts analytics: a high-analytics-trust expert discounts it.
	return clipMultiplier(2.0 - traits.AnalyticsTrust)
}

func clipToRange(v float64, cat model.Category) float64 {
	switch cat.PredType {
	case model.PredPercentage:
		return clip01(v)
	case model.PredNumeric:
		if cat.Range == nil {
			return v
		}
		if v < cat.Range.Min {
			return cat.Range.Min
		}
		if v > cat.Range.Max {
			return cat.Range.Max
		}
		return v
	default:
		// Binary/enum values are not shaped numerically; returned unchanged.
		return v
	}
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
