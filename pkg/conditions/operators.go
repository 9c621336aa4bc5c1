package conditions

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/courierhq/courier/pkg/models"
)

// compare applies a condition operator to the resolved actual value and the
// expected value. Unknown operators return a RuleEvaluationError.
func compare(operator models.ConditionOperator, actual, expected any) (bool, error) {
	switch operator {
	case models.OperatorIsDefined:
		return actual != nil && actual != "", nil
	case models.OperatorEqual:
		return looseEqual(actual, expected), nil
	case models.OperatorNotEqual:
		return !looseEqual(actual, expected), nil
	case models.OperatorLarger, models.OperatorSmaller, models.OperatorLargerEqual, models.OperatorSmallerEqual:
		return compareNumeric(operator, actual, expected)
	case models.OperatorIn:
		return contains(actual, expected), nil
	case models.OperatorNotIn:
		return !contains(actual, expected), nil
	default:
		return false, &RuleEvaluationError{Reason: fmt.Sprintf("unknown operator %q", operator)}
	}
}

// looseEqual compares across the numeric/string boundary, since payload
// values arrive as JSON and expected values are authored as strings.
func looseEqual(actual, expected any) bool {
	if actual == nil || expected == nil {
		return actual == expected
	}

	actualNum, actualOK := toFloat(actual)
	expectedNum, expectedOK := toFloat(expected)

	if actualOK && expectedOK {
		return actualNum == expectedNum
	}

	return stringify(actual) == stringify(expected)
}

func compareNumeric(operator models.ConditionOperator, actual, expected any) (bool, error) {
	actualNum, actualOK := toFloat(actual)
	expectedNum, expectedOK := toFloat(expected)

	if !actualOK || !expectedOK {
		return false, nil
	}

	switch operator {
	case models.OperatorLarger:
		return actualNum > expectedNum, nil
	case models.OperatorSmaller:
		return actualNum < expectedNum, nil
	case models.OperatorLargerEqual:
		return actualNum >= expectedNum, nil
	case models.OperatorSmallerEqual:
		return actualNum <= expectedNum, nil
	default:
		return false, &RuleEvaluationError{Reason: fmt.Sprintf("unknown numeric operator %q", operator)}
	}
}

// contains handles both list membership (actual is a JSON array) and
// substring matching for plain strings.
func contains(actual, expected any) bool {
	if list, ok := actual.([]any); ok {
		for _, item := range list {
			if looseEqual(item, expected) {
				return true
			}
		}

		return false
	}

	return strings.Contains(stringify(actual), stringify(expected))
}

func toFloat(v any) (float64, bool) {
	switch value := v.(type) {
	case float64:
		return value, true
	case float32:
		return float64(value), true
	case int:
		return float64(value), true
	case int64:
		return float64(value), true
	case string:
		num, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return 0, false
		}

		return num, true
	default:
		return 0, false
	}
}

func stringify(v any) string {
	if v == nil {
		return ""
	}

	if s, ok := v.(string); ok {
		return s
	}

	return fmt.Sprintf("%v", v)
}
