// Package condition evaluates branching predicates over lead field
// snapshots. The operator set is closed; configs are validated against it
// at workflow activation so the step executor never parses ad hoc input.
package condition

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/Ktej255/leadflow/pkg/models"
	"github.com/xeipuuv/gojsonschema"
)

const (
	OperatorEquals    = "equals"
	OperatorNotEquals = "not_equals"
	OperatorIn        = "in"
	OperatorGt        = "gt"
	OperatorLt        = "lt"
	OperatorContains  = "contains"
)

const configSchema = `{
	"type": "object",
	"required": ["field", "operator"],
	"properties": {
		"field": {"type": "string", "minLength": 1},
		"operator": {
			"type": "string",
			"enum": ["equals", "not_equals", "in", "gt", "lt", "contains"]
		},
		"value": {}
	},
	"additionalProperties": false
}`

// Validate checks a condition config against the closed operator set. It is
// called at workflow activation time, not per tick.
func Validate(cond models.Condition) error {
	document, err := json.Marshal(cond)
	if err != nil {
		return fmt.Errorf("failed to marshal condition config: %w", err)
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(configSchema),
		gojsonschema.NewBytesLoader(document),
	)
	if err != nil {
		return fmt.Errorf("failed to validate condition config: %w", err)
	}

	if !result.Valid() {
		details := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			details = append(details, desc.String())
		}

		return fmt.Errorf("invalid condition config: %s", strings.Join(details, "; "))
	}

	return nil
}

// Evaluate applies the predicate to a lead field snapshot. A missing field
// evaluates like a nil value; it is not an error.
func Evaluate(cond models.Condition, fields map[string]any) (bool, error) {
	actual := fields[cond.Field]

	switch cond.Operator {
	case OperatorEquals:
		return looseEquals(actual, cond.Value), nil
	case OperatorNotEquals:
		return !looseEquals(actual, cond.Value), nil
	case OperatorIn:
		values, ok := cond.Value.([]any)
		if !ok {
			return false, fmt.Errorf("operator %q requires a list value, got %T", cond.Operator, cond.Value)
		}

		for _, candidate := range values {
			if looseEquals(actual, candidate) {
				return true, nil
			}
		}

		return false, nil
	case OperatorGt, OperatorLt:
		left, err := toNumber(actual)
		if err != nil {
			return false, fmt.Errorf("field %q: %w", cond.Field, err)
		}

		right, err := toNumber(cond.Value)
		if err != nil {
			return false, fmt.Errorf("operator %q value: %w", cond.Operator, err)
		}

		if cond.Operator == OperatorGt {
			return left > right, nil
		}

		return left < right, nil
	case OperatorContains:
		haystack, ok := actual.(string)
		if !ok {
			return false, nil
		}

		needle, ok := cond.Value.(string)
		if !ok {
			return false, fmt.Errorf("operator %q requires a string value, got %T", cond.Operator, cond.Value)
		}

		return strings.Contains(haystack, needle), nil
	default:
		return false, fmt.Errorf("unsupported condition operator: %q", cond.Operator)
	}
}

// MatchFilters tests a workflow's audience filter map against a lead field
// snapshot. Scalar values mean equality, lists mean membership.
func MatchFilters(filters map[string]any, fields map[string]any) (bool, error) {
	for field, predicate := range filters {
		if values, ok := predicate.([]any); ok {
			matched := false

			for _, candidate := range values {
				if looseEquals(fields[field], candidate) {
					matched = true

					break
				}
			}

			if !matched {
				return false, nil
			}

			continue
		}

		switch predicate.(type) {
		case map[string]any:
			return false, fmt.Errorf("audience filter %q: unsupported predicate type %T", field, predicate)
		}

		if !looseEquals(fields[field], predicate) {
			return false, nil
		}
	}

	return true, nil
}

// looseEquals compares snapshot values that may arrive as different scalar
// types after a JSON round trip.
func looseEquals(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}

	left, errA := toNumber(a)
	right, errB := toNumber(b)

	if errA == nil && errB == nil {
		return left == right
	}

	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

func toNumber(value any) (float64, error) {
	switch v := value.(type) {
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case float64:
		return v, nil
	case json.Number:
		return v.Float64()
	case string:
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, fmt.Errorf("cannot convert %q to number", v)
		}

		return parsed, nil
	default:
		return 0, fmt.Errorf("cannot convert %T to number", value)
	}
}
