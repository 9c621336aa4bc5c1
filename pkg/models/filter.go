package models

// LogicalOperator combines the children of a filter group.
type LogicalOperator string

const (
	LogicalAnd LogicalOperator = "AND"
	LogicalOr  LogicalOperator = "OR"
)

// FilterSource names the part of the variable context a condition reads.
type FilterSource string

const (
	SourcePayload      FilterSource = "payload"
	SourceSubscriber   FilterSource = "subscriber"
	SourceTenant       FilterSource = "tenant"
	SourceWebhook      FilterSource = "webhook"
	SourcePreviousStep FilterSource = "previous_step"
)

// ConditionOperator compares a resolved field against the expected value.
type ConditionOperator string

const (
	OperatorEqual        ConditionOperator = "EQUAL"
	OperatorNotEqual     ConditionOperator = "NOT_EQUAL"
	OperatorLarger       ConditionOperator = "LARGER"
	OperatorSmaller      ConditionOperator = "SMALLER"
	OperatorLargerEqual  ConditionOperator = "LARGER_EQUAL"
	OperatorSmallerEqual ConditionOperator = "SMALLER_EQUAL"
	OperatorIn           ConditionOperator = "IN"
	OperatorNotIn        ConditionOperator = "NOT_IN"
	OperatorIsDefined    ConditionOperator = "IS_DEFINED"
)

// FilterGroup is one node of a condition tree. Children are evaluated with
// the group operator; IsNegated inverts the group result afterwards.
type FilterGroup struct {
	IsNegated bool            `json:"is_negated,omitempty"`
	Operator  LogicalOperator `json:"operator"             validate:"required,oneof=AND OR"`
	Children  []FilterNode    `json:"children"`
}

// FilterNode holds exactly one of a nested group or a leaf condition.
type FilterNode struct {
	Group     *FilterGroup     `json:"group,omitempty"`
	Condition *FilterCondition `json:"condition,omitempty"`
}

// FilterCondition is a leaf predicate of a filter tree. Value may contain
// {{ }} placeholders resolved against the variable context before comparison.
type FilterCondition struct {
	Source     FilterSource      `json:"source"                validate:"required"`
	Field      string            `json:"field,omitempty"`
	Operator   ConditionOperator `json:"operator"              validate:"required"`
	Value      string            `json:"value,omitempty"`
	WebhookURL string            `json:"webhook_url,omitempty"`
	StepID     string            `json:"step_id,omitempty"`
}
