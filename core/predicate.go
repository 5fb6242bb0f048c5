package core

import "strings"

// FilterOperator identifies one of the supported comparison operators.
type FilterOperator string

const (
	OpEquals      FilterOperator = "equals"
	OpContains    FilterOperator = "contains"
	OpStartsWith  FilterOperator = "starts_with"
	OpEndsWith    FilterOperator = "ends_with"
	OpGreaterThan FilterOperator = "greater_than"
	OpLessThan    FilterOperator = "less_than"
	OpExists      FilterOperator = "exists"
	OpNotExists   FilterOperator = "not_exists"
)

// NumericPolicy controls how the numeric operators treat values that do not
// parse as numbers.
type NumericPolicy int

const (
	// NumericLenient coerces non-numeric values to 0, matching the
	// historical dashboard behavior. "rule.level greater_than abc" then
	// matches every record with a positive level.
	NumericLenient NumericPolicy = iota
	// NumericStrict fails closed: a predicate whose value or field does
	// not parse never matches.
	NumericStrict
)

// FilterPredicate is a single filter condition: a dot-separated field path,
// an operator, and a comparison value. Multiple predicates on an engine
// combine with logical AND.
type FilterPredicate struct {
	ID       string         `json:"id"`
	Field    string         `json:"field"`
	Operator FilterOperator `json:"operator"`
	Value    string         `json:"value"`
}

// Matches evaluates the predicate against a record. Malformed input never
// raises: an unrecognized operator simply never matches, keeping the caller
// resilient to partially entered filter rows.
func (p FilterPredicate) Matches(r Record, policy NumericPolicy) bool {
	field := r.FieldPath(p.Field)

	switch p.Operator {
	case OpEquals:
		return strings.EqualFold(CoerceString(field), p.Value)
	case OpContains:
		return strings.Contains(strings.ToLower(CoerceString(field)), strings.ToLower(p.Value))
	case OpStartsWith:
		return strings.HasPrefix(strings.ToLower(CoerceString(field)), strings.ToLower(p.Value))
	case OpEndsWith:
		return strings.HasSuffix(strings.ToLower(CoerceString(field)), strings.ToLower(p.Value))
	case OpGreaterThan, OpLessThan:
		fieldNum, fieldOK := CoerceFloat(field)
		valueNum, valueOK := CoerceFloat(p.Value)
		if policy == NumericStrict && (!fieldOK || !valueOK) {
			return false
		}
		if p.Operator == OpGreaterThan {
			return fieldNum > valueNum
		}
		return fieldNum < valueNum
	case OpExists:
		return FieldExists(field)
	case OpNotExists:
		return !FieldExists(field)
	default:
		// Unknown operator: never matches rather than erroring out.
		return false
	}
}
