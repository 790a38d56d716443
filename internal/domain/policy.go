package domain

import "time"

// ConditionField is the closed set of fields a policy condition may
// inspect.
type ConditionField string

const (
	FieldSource    ConditionField = "source"
	FieldTarget    ConditionField = "target"
	FieldEventType ConditionField = "eventType"
	FieldBoundary  ConditionField = "boundary"
	FieldRunID     ConditionField = "runId"
)

// ConditionOperator is the closed set of comparison operators.
type ConditionOperator string

const (
	OpEq         ConditionOperator = "eq"
	OpNeq        ConditionOperator = "neq"
	OpContains   ConditionOperator = "contains"
	OpStartsWith ConditionOperator = "startsWith"
	OpRegex      ConditionOperator = "regex"
)

// Condition is a single AND-ed predicate evaluated against an event.
type Condition struct {
	Field    ConditionField
	Operator ConditionOperator
	Value    string
}

// ActionKind is the closed set of policy action variants.
type ActionKind string

const (
	ActionAllow     ActionKind = "allow"
	ActionDeny      ActionKind = "deny"
	ActionRoute     ActionKind = "route"
	ActionTransform ActionKind = "transform"
	ActionLog       ActionKind = "log"
)

// Action is a tagged union over the policy action variants. Only the
// field(s) relevant to Kind are meaningful.
type Action struct {
	Kind     ActionKind
	Reason   string            // deny
	RouteTo  string            // route
	Mapping  map[string]string // transform
	LogLevel string            // log
}

// Policy is a prioritized rule inspecting events and selecting an
// action.
type Policy struct {
	ID         string
	Name       string
	Priority   int
	Conditions []Condition
	Action     Action
	Enabled    bool
	CreatedAt  time.Time
}

// Clone returns a value-independent copy of the policy.
func (p *Policy) Clone() *Policy {
	if p == nil {
		return nil
	}
	c := *p
	c.Conditions = append([]Condition(nil), p.Conditions...)
	if p.Action.Mapping != nil {
		c.Action.Mapping = make(map[string]string, len(p.Action.Mapping))
		for k, v := range p.Action.Mapping {
			c.Action.Mapping[k] = v
		}
	}
	return &c
}
