package guard

import (
	"regexp"
	"strings"

	"github.com/ledgerline-labs/ledgerline-go/internal/domain"
	"github.com/ledgerline-labs/ledgerline-go/internal/workflow/entity"
)

// MatchConditions reports whether an entity satisfies every condition on a
// pipeline. An empty condition list matches everything; a malformed or
// unknown condition matches nothing.
func MatchConditions(conditions []domain.Condition, e entity.Entity) bool {
	for _, cond := range conditions {
		if !conditionMatches(cond, e) {
			return false
		}
	}
	return true
}

func conditionMatches(cond domain.Condition, e entity.Entity) bool {
	value, ok := resolveMapPath(e.Attributes, cond.Field)
	op := strings.ToLower(strings.TrimSpace(cond.Op))
	if op == "exists" {
		return ok
	}
	if !ok {
		// neq and not_in hold vacuously for absent fields.
		return op == "neq" || op == "not_in" || op == "not_contains"
	}
	switch op {
	case "eq":
		return compareEqual(value, cond.Value)
	case "neq":
		return !compareEqual(value, cond.Value)
	case "in":
		return compareIn(value, cond.Values)
	case "not_in":
		return !compareIn(value, cond.Values)
	case "contains":
		return compareContains(value, cond.Value)
	case "not_contains":
		return !compareContains(value, cond.Value)
	case "matches":
		re, err := regexp.Compile(strings.TrimSpace(cond.Value))
		if err != nil {
			return false
		}
		return compareRegex(value, re)
	case "gt", "gte", "lt", "lte":
		target, ok := parseFloat(cond.Value)
		if !ok {
			return false
		}
		return compareNumber(value, target, op)
	default:
		return false
	}
}
