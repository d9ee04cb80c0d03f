package domain

import (
	"testing"

	"github.com/google/uuid"
)

func TestCompareOperators(t *testing.T) {
	cases := []struct {
		name     string
		op       Operator
		actual   any
		expected any
		want     bool
	}{
		{"equals string", OperatorEquals, "Qualified", "Qualified", true},
		{"equals numeric forms", OperatorEquals, 10, "10", true},
		{"not equals", OperatorNotEquals, "New", "Lost", true},
		{"contains", OperatorContains, "Acme Industries", "Acme", true},
		{"contains miss", OperatorContains, "Acme", "Globex", false},
		{"greater than", OperatorGreaterThan, 10.5, 10, true},
		{"greater than string number", OperatorGreaterThan, "11", 10, true},
		{"less than", OperatorLessThan, 5, 10, true},
		{"less than non numeric", OperatorLessThan, "abc", 10, false},
		{"in slice", OperatorIn, "GBP", []string{"GBP", "EUR"}, true},
		{"in any slice", OperatorIn, 2, []any{1, 2, 3}, true},
		{"in comma string", OperatorIn, "EUR", "GBP, EUR, USD", true},
		{"not in", OperatorNotIn, "JPY", []string{"GBP", "EUR"}, true},
		{"unknown operator", Operator("like"), "a", "a", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Compare(tc.op, tc.actual, tc.expected); got != tc.want {
				t.Errorf("Compare(%s, %v, %v) = %v, want %v", tc.op, tc.actual, tc.expected, got, tc.want)
			}
		})
	}
}

func TestTriggerMatches(t *testing.T) {
	record := Record{Status: "Approved", Data: map[string]any{"total": 100}}

	statusChange := RecordMutation{
		Kind:    MutationUpdated,
		Record:  record,
		Changes: []FieldChange{{Field: "status", Old: "Pending", New: "Approved"}},
	}
	fieldChange := RecordMutation{
		Kind:    MutationUpdated,
		Record:  record,
		Changes: []FieldChange{{Field: "total", Old: 90, New: 100}},
	}
	created := RecordMutation{Kind: MutationCreated, Record: record}

	cases := []struct {
		name     string
		trigger  Trigger
		mutation RecordMutation
		want     bool
	}{
		{"on_create matches created", Trigger{Type: TriggerOnCreate}, created, true},
		{"on_create ignores update", Trigger{Type: TriggerOnCreate}, statusChange, false},
		{"on_update matches any update", Trigger{Type: TriggerOnUpdate}, fieldChange, true},
		{"on_status_change needs status diff", Trigger{Type: TriggerOnStatusChange}, statusChange, true},
		{"on_status_change ignores data diff", Trigger{Type: TriggerOnStatusChange}, fieldChange, false},
		{"on_field_change matches named field", Trigger{Type: TriggerOnFieldChange, Field: "total"}, fieldChange, true},
		{"on_field_change ignores other fields", Trigger{Type: TriggerOnFieldChange, Field: "name"}, fieldChange, false},
		{"on_field_change without field never fires", Trigger{Type: TriggerOnFieldChange}, fieldChange, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.trigger.Matches(tc.mutation); got != tc.want {
				t.Errorf("Matches = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestConditionGroupEvaluate(t *testing.T) {
	record := Record{
		Status: "Qualified",
		Data:   map[string]any{"total": 5000.0, "region": "EMEA"},
	}

	if !(*ConditionGroup)(nil).Evaluate(record) {
		t.Error("nil condition group should evaluate true")
	}
	if !(&ConditionGroup{}).Evaluate(record) {
		t.Error("empty condition group should evaluate true")
	}

	and := &ConditionGroup{
		Logic: LogicAnd,
		Rules: []WorkflowRule{
			{Field: "status", Operator: OperatorEquals, Value: "Qualified"},
			{Field: "total", Operator: OperatorGreaterThan, Value: 1000},
		},
	}
	if !and.Evaluate(record) {
		t.Error("AND group with all rules matching should evaluate true")
	}

	and.Rules[1].Value = 10000
	if and.Evaluate(record) {
		t.Error("AND group with a failing rule should evaluate false")
	}

	or := &ConditionGroup{
		Logic: LogicOr,
		Rules: []WorkflowRule{
			{Field: "region", Operator: OperatorEquals, Value: "APAC"},
		},
		Groups: []ConditionGroup{
			{Logic: LogicAnd, Rules: []WorkflowRule{
				{Field: "status", Operator: OperatorEquals, Value: "Qualified"},
			}},
		},
	}
	if !or.Evaluate(record) {
		t.Error("OR group with one matching nested group should evaluate true")
	}
}

func TestNewWorkflowDefaults(t *testing.T) {
	wf := NewWorkflow(uuid.New(), "lead", "follow up", Trigger{Type: TriggerOnCreate},
		[]WorkflowAction{{Type: ActionSendEmail}})

	if !wf.IsActive {
		t.Error("new workflows should start active")
	}
	if wf.Priority != 0 {
		t.Errorf("expected default priority 0, got %d", wf.Priority)
	}

	inactive := wf.WithActive(false)
	if inactive.IsActive || !wf.IsActive {
		t.Error("WithActive must not mutate the receiver")
	}
}
