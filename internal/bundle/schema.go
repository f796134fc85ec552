package bundle

import (
	"fmt"
	"math"

	"github.com/ashita-ai/council/internal/model"
)

// ValidationError describes one assertion that failed schema or consistency
// checking. The critic step feeds these back to the generator verbatim so
// the repair prompt names the exact category and problem.
type ValidationError struct {
	CategoryID string
	Reason     string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.CategoryID, e.Reason)
}

// ValidateSchema checks every assertion in a draft against the category
// registry: the category must exist, the value must match the category's
// PredType (binary pair, declared enum, or numeric/percentage range), and
// confidence/stake must fall in [0,1]. It does not check cross-category
// consistency — see ValidateConsistency for that.
func ValidateSchema(registry *model.CategoryRegistry, assertions map[string]model.Assertion) []ValidationError {
	var errs []ValidationError

	for id, a := range assertions {
		cat, ok := registry.Get(id)
		if !ok {
			errs = append(errs, ValidationError{id, "unknown category_id"})
			continue
		}
		if a.Confidence < 0 || a.Confidence > 1 {
			errs = append(errs, ValidationError{id, "confidence out of [0,1]"})
		}
		if a.Stake < 0 || a.Stake > 1 {
			errs = append(errs, ValidationError{id, "stake out of [0,1]"})
		}
		if err := validateValue(cat, a.Value); err != "" {
			errs = append(errs, ValidationError{id, err})
		}
	}

	for _, cat := range registry.All() {
		if _, ok := assertions[cat.ID]; !ok {
			errs = append(errs, ValidationError{cat.ID, "missing assertion for required category"})
		}
	}

	return errs
}

func validateValue(cat model.Category, value any) string {
	switch cat.PredType {
	case model.PredBinary:
		s, ok := value.(string)
		if !ok {
			return "binary value must be a string"
		}
		if s != cat.Binary[0] && s != cat.Binary[1] {
			return fmt.Sprintf("binary value %q not in {%s,%s}", s, cat.Binary[0], cat.Binary[1])
		}
	case model.PredEnum:
		s, ok := value.(string)
		if !ok {
			return "enum value must be a string"
		}
		for _, e := range cat.Enum {
			if e == s {
				return ""
			}
		}
		return fmt.Sprintf("enum value %q not in declared set", s)
	case model.PredNumeric, model.PredPercentage:
		f, ok := asFloat(value)
		if !ok {
			return "numeric value must be a number"
		}
		if cat.Range != nil && (f < cat.Range.Min || f > cat.Range.Max) {
			return fmt.Sprintf("numeric value %g out of range [%g,%g]", f, cat.Range.Min, cat.Range.Max)
		}
		if cat.PredType == model.PredPercentage && (f < 0 || f > 1) {
			return fmt.Sprintf("percentage value %g out of [0,1]", f)
		}
	}
	return ""
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	}
	return 0, false
}

// ValidateConsistency runs the cross-category consistency checks named in
// §4.6: winner/spread direction must agree, winner/moneyline direction must
// agree, the total points category must be within tolerance of the sum of
// home+away score categories, and quarter margins (when all four are
// asserted) must sum to the final_margin category. Categories absent
// from the draft are skipped rather than flagged — schema validation
// already reports missing categories.
func ValidateConsistency(assertions map[string]model.Assertion) []ValidationError {
	var errs []ValidationError

	winner, hasWinner := stringValue(assertions, "winner")
	winnerHomeAway, winnerDirectional := enumHomeAway(winner)

	if hasWinner && winnerDirectional {
		if spreadCover, ok := stringValue(assertions, "spread_cover"); ok {
			if spreadHomeAway, ok := enumHomeAway(spreadCover); ok && winnerHomeAway != spreadHomeAway {
				errs = append(errs, ValidationError{"spread_cover", "disagrees with winner on home/away direction"})
			}
		}
		if moneyline, ok := stringValue(assertions, "moneyline_value"); ok {
			// PUSH asserts no side, so it never contradicts a winner pick.
			if moneylineHomeAway, ok := enumHomeAway(moneyline); ok && winnerHomeAway != moneylineHomeAway {
				errs = append(errs, ValidationError{"moneyline_value", "disagrees with winner on home/away direction"})
			}
		}
	}

	homeScore, hasHome := numericValue(assertions, "home_score")
	awayScore, hasAway := numericValue(assertions, "away_score")
	if total, hasTotal := numericValue(assertions, "total_points"); hasTotal && hasHome && hasAway {
		if math.Abs(total-(homeScore+awayScore)) > 0.5 {
			errs = append(errs, ValidationError{"total_points", "does not equal home_score + away_score"})
		}
	}

	quarterIDs := []string{"q1_margin", "q2_margin", "q3_margin", "q4_margin"}
	var quarterSum float64
	allPresent := true
	for _, id := range quarterIDs {
		v, ok := numericValue(assertions, id)
		if !ok {
			allPresent = false
			break
		}
		quarterSum += v
	}
	if allPresent {
		if margin, ok := numericValue(assertions, "final_margin"); ok && math.Abs(margin-quarterSum) > 0.5 {
			errs = append(errs, ValidationError{"final_margin", "does not equal the sum of quarter margins"})
		}
	}

	return errs
}

func stringValue(assertions map[string]model.Assertion, id string) (string, bool) {
	a, ok := assertions[id]
	if !ok {
		return "", false
	}
	s, ok := a.Value.(string)
	return s, ok
}

func numericValue(assertions map[string]model.Assertion, id string) (float64, bool) {
	a, ok := assertions[id]
	if !ok {
		return 0, false
	}
	return asFloat(a.Value)
}

// enumHomeAway normalizes a winner/cover string to "HOME" or "AWAY" when it
// recognizably says one of those; used only to compare directional agreement
// between categories, not to validate the category's own declared pair.
func enumHomeAway(s string) (string, bool) {
	switch s {
	case "HOME", "home":
		return "HOME", true
	case "AWAY", "away":
		return "AWAY", true
	default:
		return "", false
	}
}
