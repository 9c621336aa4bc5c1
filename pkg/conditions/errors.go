package conditions

import "fmt"

// RuleEvaluationError marks a malformed filter or skip expression. It is
// fatal for the job and must never be retried: the expression will not
// become well-formed on redelivery.
type RuleEvaluationError struct {
	Reason string
	Err    error
}

func (e *RuleEvaluationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("rule evaluation failed: %s: %v", e.Reason, e.Err)
	}

	return fmt.Sprintf("rule evaluation failed: %s", e.Reason)
}

func (e *RuleEvaluationError) Unwrap() error {
	return e.Err
}
