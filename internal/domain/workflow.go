package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TriggerType identifies the mutation kind a workflow listens for.
type TriggerType string

const (
	TriggerOnCreate       TriggerType = "on_create"
	TriggerOnUpdate       TriggerType = "on_update"
	TriggerOnDelete       TriggerType = "on_delete"
	TriggerOnStatusChange TriggerType = "on_status_change"
	TriggerOnFieldChange  TriggerType = "on_field_change"
	TriggerScheduled      TriggerType = "scheduled"
)

// Trigger binds a workflow to a mutation kind. Field is required for
// on_field_change; Schedule is interpreted by an external timer collaborator.
type Trigger struct {
	Type     TriggerType `json:"type"`
	Field    string      `json:"field,omitempty"`
	Schedule string      `json:"schedule,omitempty"`
}

// Matches reports whether the trigger applies to the given mutation.
func (t Trigger) Matches(m RecordMutation) bool {
	switch t.Type {
	case TriggerOnCreate:
		return m.Kind == MutationCreated
	case TriggerOnUpdate:
		return m.Kind == MutationUpdated
	case TriggerOnDelete:
		return m.Kind == MutationDeleted
	case TriggerOnStatusChange:
		return m.Kind == MutationUpdated && m.Changed("status")
	case TriggerOnFieldChange:
		return m.Kind == MutationUpdated && t.Field != "" && m.Changed(t.Field)
	case TriggerScheduled:
		return m.Kind == MutationScheduled
	default:
		return false
	}
}

// Operator is the comparison vocabulary shared by workflow conditions and
// module-level validation rules.
type Operator string

const (
	OperatorEquals      Operator = "equals"
	OperatorNotEquals   Operator = "not_equals"
	OperatorContains    Operator = "contains"
	OperatorGreaterThan Operator = "greater_than"
	OperatorLessThan    Operator = "less_than"
	OperatorIn          Operator = "in"
	OperatorNotIn       Operator = "not_in"
)

// KnownOperator reports whether op is part of the operator vocabulary.
func KnownOperator(op Operator) bool {
	switch op {
	case OperatorEquals, OperatorNotEquals, OperatorContains,
		OperatorGreaterThan, OperatorLessThan, OperatorIn, OperatorNotIn:
		return true
	default:
		return false
	}
}

// Compare applies op to an actual value with type-aware semantics: numeric
// comparison for greater/less than, substring match for contains, and set
// membership for in/not_in. Values that cannot be coerced compare false.
func Compare(op Operator, actual any, expected any) bool {
	switch op {
	case OperatorEquals:
		return formatValue(actual) == formatValue(expected)
	case OperatorNotEquals:
		return formatValue(actual) != formatValue(expected)
	case OperatorContains:
		return strings.Contains(formatValue(actual), formatValue(expected))
	case OperatorGreaterThan:
		left, leftOK := toFloat(actual)
		right, rightOK := toFloat(expected)
		return leftOK && rightOK && left > right
	case OperatorLessThan:
		left, leftOK := toFloat(actual)
		right, rightOK := toFloat(expected)
		return leftOK && rightOK && left < right
	case OperatorIn:
		return memberOf(actual, expected)
	case OperatorNotIn:
		return !memberOf(actual, expected)
	default:
		return false
	}
}

func formatValue(value any) string {
	if value == nil {
		return ""
	}
	return fmt.Sprintf("%v", value)
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return parsed, err == nil
	default:
		return 0, false
	}
}

func memberOf(actual any, expected any) bool {
	needle := formatValue(actual)
	switch set := expected.(type) {
	case []string:
		for _, item := range set {
			if item == needle {
				return true
			}
		}
	case []any:
		for _, item := range set {
			if formatValue(item) == needle {
				return true
			}
		}
	case string:
		for _, item := range strings.Split(set, ",") {
			if strings.TrimSpace(item) == needle {
				return true
			}
		}
	}
	return false
}

// ConditionLogic combines child results of a condition group.
type ConditionLogic string

const (
	LogicAnd ConditionLogic = "and"
	LogicOr  ConditionLogic = "or"
)

// WorkflowRule is one condition leaf comparing a record field to a literal.
type WorkflowRule struct {
	Field    string   `json:"field"`
	Operator Operator `json:"operator"`
	Value    any      `json:"value"`
}

// Evaluate resolves the rule's field from the record and applies the operator.
func (r WorkflowRule) Evaluate(record Record) bool {
	return Compare(r.Operator, record.ValueForField(r.Field), r.Value)
}

// ConditionGroup is an AND/OR node over rules and nested groups. A nil or
// empty group always evaluates true (always-fire workflows).
type ConditionGroup struct {
	Logic  ConditionLogic   `json:"logic"`
	Rules  []WorkflowRule   `json:"rules,omitempty"`
	Groups []ConditionGroup `json:"groups,omitempty"`
}

// Evaluate walks the condition tree against the record's current data.
func (g *ConditionGroup) Evaluate(record Record) bool {
	if g == nil {
		return true
	}
	total := len(g.Rules) + len(g.Groups)
	if total == 0 {
		return true
	}

	matched := 0
	for _, rule := range g.Rules {
		if rule.Evaluate(record) {
			matched++
		}
	}
	for i := range g.Groups {
		if g.Groups[i].Evaluate(record) {
			matched++
		}
	}

	if g.Logic == LogicOr {
		return matched > 0
	}
	return matched == total
}

// ActionType identifies a workflow action variant.
type ActionType string

const (
	ActionSendEmail    ActionType = "send_email"
	ActionUpdateRecord ActionType = "update_record"
	ActionCreateRecord ActionType = "create_record"
	ActionWebhook      ActionType = "webhook"
	ActionNotification ActionType = "notification"
)

// WorkflowAction is a tagged action config; only the keys relevant to its
// type are read by the dispatcher.
type WorkflowAction struct {
	Type   ActionType     `json:"type"`
	Config map[string]any `json:"config,omitempty"`
}

// Workflow is a tenant-defined trigger/condition/action automation rule
// bound to one module. Deactivation is a flag flip, not deletion.
type Workflow struct {
	ID         uuid.UUID        `json:"id"`
	TenantID   uuid.UUID        `json:"tenant_id"`
	ModuleName string           `json:"module_name"`
	Name       string           `json:"name"`
	Trigger    Trigger          `json:"trigger"`
	Conditions *ConditionGroup  `json:"conditions,omitempty"`
	Actions    []WorkflowAction `json:"actions"`
	IsActive   bool             `json:"is_active"`
	Priority   int              `json:"priority"`
	CreatedAt  time.Time        `json:"created_at"`
	UpdatedAt  time.Time        `json:"updated_at"`
}

// NewWorkflow creates an active workflow with immutable pattern
func NewWorkflow(tenantID uuid.UUID, moduleName, name string, trigger Trigger, actions []WorkflowAction) Workflow {
	now := time.Now()
	return Workflow{
		ID:         uuid.New(),
		TenantID:   tenantID,
		ModuleName: moduleName,
		Name:       name,
		Trigger:    trigger,
		Actions:    append([]WorkflowAction(nil), actions...),
		IsActive:   true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// WithConditions returns a new workflow with the given condition tree.
func (w Workflow) WithConditions(conditions *ConditionGroup) Workflow {
	clone := w
	clone.Conditions = conditions
	clone.UpdatedAt = time.Now()
	return clone
}

// WithPriority returns a new workflow with updated priority (lower first).
func (w Workflow) WithPriority(priority int) Workflow {
	clone := w
	clone.Priority = priority
	clone.UpdatedAt = time.Now()
	return clone
}

// WithActive returns a new workflow with the active flag set.
func (w Workflow) WithActive(active bool) Workflow {
	clone := w
	clone.IsActive = active
	clone.UpdatedAt = time.Now()
	return clone
}
