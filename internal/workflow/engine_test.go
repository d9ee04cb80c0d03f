package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/modulith/modulith/internal/auth"
	"github.com/modulith/modulith/internal/domain"
	"github.com/modulith/modulith/internal/records"
)

type mockWorkflowRepo struct {
	workflows []domain.Workflow
}

func (m *mockWorkflowRepo) Create(_ context.Context, workflow domain.Workflow) (domain.Workflow, error) {
	m.workflows = append(m.workflows, workflow)
	return workflow, nil
}

func (m *mockWorkflowRepo) GetByID(_ context.Context, tenantID, id uuid.UUID) (domain.Workflow, error) {
	for _, wf := range m.workflows {
		if wf.TenantID == tenantID && wf.ID == id {
			return wf, nil
		}
	}
	return domain.Workflow{}, domain.ErrNotFound
}

func (m *mockWorkflowRepo) List(_ context.Context, tenantID uuid.UUID, moduleName string) ([]domain.Workflow, error) {
	var result []domain.Workflow
	for _, wf := range m.workflows {
		if wf.TenantID == tenantID && (moduleName == "" || wf.ModuleName == moduleName) {
			result = append(result, wf)
		}
	}
	return result, nil
}

func (m *mockWorkflowRepo) ListActive(_ context.Context, tenantID uuid.UUID, moduleName string) ([]domain.Workflow, error) {
	var result []domain.Workflow
	for _, wf := range m.workflows {
		if wf.TenantID == tenantID && wf.ModuleName == moduleName && wf.IsActive {
			result = append(result, wf)
		}
	}
	return result, nil
}

func (m *mockWorkflowRepo) Update(_ context.Context, workflow domain.Workflow) (domain.Workflow, error) {
	for i, wf := range m.workflows {
		if wf.TenantID == workflow.TenantID && wf.ID == workflow.ID {
			m.workflows[i] = workflow
			return workflow, nil
		}
	}
	return domain.Workflow{}, domain.ErrNotFound
}

type mockExecutionRepo struct {
	executions map[uuid.UUID]domain.WorkflowExecution
	order      []uuid.UUID
}

func newMockExecutionRepo() *mockExecutionRepo {
	return &mockExecutionRepo{executions: make(map[uuid.UUID]domain.WorkflowExecution)}
}

func (m *mockExecutionRepo) Create(_ context.Context, execution domain.WorkflowExecution) (domain.WorkflowExecution, error) {
	m.executions[execution.ID] = execution
	m.order = append(m.order, execution.ID)
	return execution, nil
}

func (m *mockExecutionRepo) Finish(_ context.Context, execution domain.WorkflowExecution) (domain.WorkflowExecution, error) {
	m.executions[execution.ID] = execution
	return execution, nil
}

func (m *mockExecutionRepo) ListByRecord(_ context.Context, tenantID, recordID uuid.UUID) ([]domain.WorkflowExecution, error) {
	var result []domain.WorkflowExecution
	for _, id := range m.order {
		execution := m.executions[id]
		if execution.TenantID == tenantID && execution.RecordID == recordID {
			result = append(result, execution)
		}
	}
	return result, nil
}

func (m *mockExecutionRepo) ListByWorkflow(_ context.Context, tenantID, workflowID uuid.UUID) ([]domain.WorkflowExecution, error) {
	var result []domain.WorkflowExecution
	for _, id := range m.order {
		execution := m.executions[id]
		if execution.TenantID == tenantID && execution.WorkflowID == workflowID {
			result = append(result, execution)
		}
	}
	return result, nil
}

func (m *mockExecutionRepo) all() []domain.WorkflowExecution {
	result := make([]domain.WorkflowExecution, 0, len(m.order))
	for _, id := range m.order {
		result = append(result, m.executions[id])
	}
	return result
}

// writerCall captures one loop-back write issued by an action.
type writerCall struct {
	module string
	depth  int
	values map[string]any
}

type mockWriter struct {
	creates []writerCall
	updates []writerCall
}

func (m *mockWriter) CreateWithOptions(_ context.Context, _ auth.Actor, moduleName string, payload map[string]any, opts records.CreateOptions) (domain.Record, error) {
	m.creates = append(m.creates, writerCall{module: moduleName, depth: opts.Depth, values: payload})
	return domain.Record{}, nil
}

func (m *mockWriter) UpdateWithOptions(_ context.Context, _ auth.Actor, moduleName string, _ uuid.UUID, patch map[string]any, opts records.UpdateOptions) (domain.Record, error) {
	m.updates = append(m.updates, writerCall{module: moduleName, depth: opts.Depth, values: patch})
	return domain.Record{}, nil
}

type recordingNotifier struct {
	messages []string
	err      error
}

func (n *recordingNotifier) Notify(_ context.Context, _, message string) error {
	n.messages = append(n.messages, message)
	return n.err
}

type failingEmail struct{}

func (failingEmail) Send(context.Context, string, string, string) error {
	return fmt.Errorf("smtp unreachable")
}

type blockingNotifier struct{}

func (blockingNotifier) Notify(ctx context.Context, _, _ string) error {
	<-ctx.Done()
	return ctx.Err()
}

func notifyAction(message string) domain.WorkflowAction {
	return domain.WorkflowAction{
		Type:   domain.ActionNotification,
		Config: map[string]any{"target": "sales", "message": message},
	}
}

func statusWorkflow(tenantID uuid.UUID, name, status string, actions ...domain.WorkflowAction) domain.Workflow {
	wf := domain.NewWorkflow(tenantID, "lead", name, domain.Trigger{Type: domain.TriggerOnStatusChange}, actions)
	return wf.WithConditions(&domain.ConditionGroup{
		Logic: domain.LogicAnd,
		Rules: []domain.WorkflowRule{{Field: "status", Operator: domain.OperatorEquals, Value: status}},
	})
}

func statusMutation(tenantID uuid.UUID, status string, depth int) domain.RecordMutation {
	record := domain.NewRecord(tenantID, "lead", map[string]any{"name": "Acme"}, status, uuid.New())
	return domain.RecordMutation{
		TenantID:   tenantID,
		ModuleName: "lead",
		Kind:       domain.MutationUpdated,
		Record:     record,
		Changes:    []domain.FieldChange{{Field: "status", Old: "New", New: status}},
		Actor:      uuid.New(),
		Depth:      depth,
	}
}

func TestHandleMutationFiresMatchingWorkflow(t *testing.T) {
	tenantID := uuid.New()
	repo := &mockWorkflowRepo{}
	executions := newMockExecutionRepo()
	notifier := &recordingNotifier{}

	wf := statusWorkflow(tenantID, "Notify on qualified", "Qualified", notifyAction("lead qualified"))
	repo.workflows = append(repo.workflows, wf)

	engine := NewEngine(repo, executions, &mockWriter{}, Collaborators{Notify: notifier}, nil, Options{})

	if err := engine.HandleMutation(context.Background(), statusMutation(tenantID, "Qualified", 0)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(notifier.messages) != 1 || notifier.messages[0] != "lead qualified" {
		t.Errorf("expected one notification, got %v", notifier.messages)
	}

	all := executions.all()
	if len(all) != 1 {
		t.Fatalf("expected one execution, got %d", len(all))
	}
	execution := all[0]
	if execution.Status != domain.ExecutionSuccess {
		t.Errorf("expected success execution, got %s", execution.Status)
	}
	if execution.Output["actionsExecuted"] != 1 {
		t.Errorf("expected actionsExecuted 1, got %v", execution.Output)
	}
	if execution.CompletedAt == nil {
		t.Error("expected terminal execution to carry a completion time")
	}
}

func TestHandleMutationSkipsNonMatching(t *testing.T) {
	tenantID := uuid.New()
	repo := &mockWorkflowRepo{}
	executions := newMockExecutionRepo()
	notifier := &recordingNotifier{}

	repo.workflows = append(repo.workflows,
		statusWorkflow(tenantID, "Qualified only", "Qualified", notifyAction("x")))

	engine := NewEngine(repo, executions, &mockWriter{}, Collaborators{Notify: notifier}, nil, Options{})

	// Status changed, but to a value the conditions reject.
	if err := engine.HandleMutation(context.Background(), statusMutation(tenantID, "Lost", 0)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Plain field update without a status change misses the trigger entirely.
	m := statusMutation(tenantID, "Qualified", 0)
	m.Changes = []domain.FieldChange{{Field: "name", Old: "Acme", New: "Acme Ltd"}}
	if err := engine.HandleMutation(context.Background(), m); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(notifier.messages) != 0 {
		t.Errorf("expected no notifications, got %v", notifier.messages)
	}
	if len(executions.all()) != 0 {
		t.Error("non-firing workflows must not record executions")
	}
}

func TestHandleMutationEnforcesDepthLimit(t *testing.T) {
	tenantID := uuid.New()
	repo := &mockWorkflowRepo{}
	repo.workflows = append(repo.workflows,
		statusWorkflow(tenantID, "Qualified", "Qualified", notifyAction("x")))
	notifier := &recordingNotifier{}

	engine := NewEngine(repo, newMockExecutionRepo(), &mockWriter{}, Collaborators{Notify: notifier}, nil, Options{MaxDepth: 3})

	err := engine.HandleMutation(context.Background(), statusMutation(tenantID, "Qualified", 3))
	if !errors.Is(err, domain.ErrRecursionLimit) {
		t.Fatalf("expected ErrRecursionLimit, got %v", err)
	}
	if len(notifier.messages) != 0 {
		t.Error("workflows must not fire past the depth limit")
	}
}

func TestHandleMutationRunsInPriorityOrder(t *testing.T) {
	tenantID := uuid.New()
	repo := &mockWorkflowRepo{}
	notifier := &recordingNotifier{}

	second := statusWorkflow(tenantID, "second", "Qualified", notifyAction("second")).WithPriority(20)
	first := statusWorkflow(tenantID, "first", "Qualified", notifyAction("first")).WithPriority(10)
	repo.workflows = append(repo.workflows, second, first)

	engine := NewEngine(repo, newMockExecutionRepo(), &mockWriter{}, Collaborators{Notify: notifier}, nil, Options{})

	if err := engine.HandleMutation(context.Background(), statusMutation(tenantID, "Qualified", 0)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(notifier.messages) != 2 || notifier.messages[0] != "first" || notifier.messages[1] != "second" {
		t.Errorf("expected priority order [first second], got %v", notifier.messages)
	}
}

func TestHandleMutationIsolatesFailures(t *testing.T) {
	tenantID := uuid.New()
	repo := &mockWorkflowRepo{}
	executions := newMockExecutionRepo()
	notifier := &recordingNotifier{}

	broken := statusWorkflow(tenantID, "broken", "Qualified",
		domain.WorkflowAction{Type: domain.ActionSendEmail, Config: map[string]any{"to": "a@b.test"}},
		notifyAction("never reached"),
	).WithPriority(1)
	healthy := statusWorkflow(tenantID, "healthy", "Qualified", notifyAction("still fires")).WithPriority(2)
	repo.workflows = append(repo.workflows, broken, healthy)

	engine := NewEngine(repo, executions, &mockWriter{},
		Collaborators{Email: failingEmail{}, Notify: notifier}, nil, Options{})

	if err := engine.HandleMutation(context.Background(), statusMutation(tenantID, "Qualified", 0)); err != nil {
		t.Fatalf("one workflow's failure must not surface, got %v", err)
	}

	if len(notifier.messages) != 1 || notifier.messages[0] != "still fires" {
		t.Errorf("expected the healthy workflow to fire and the broken one to abort, got %v", notifier.messages)
	}

	all := executions.all()
	if len(all) != 2 {
		t.Fatalf("expected both firings recorded, got %d", len(all))
	}
	failed, succeeded := all[0], all[1]
	if failed.Status != domain.ExecutionFailed {
		t.Errorf("expected first execution failed, got %s", failed.Status)
	}
	if !strings.Contains(failed.Error, "smtp unreachable") {
		t.Errorf("expected action error captured, got %q", failed.Error)
	}
	if failed.Output["actionsExecuted"] != 0 {
		t.Errorf("expected abort before any action completed, got %v", failed.Output)
	}
	if succeeded.Status != domain.ExecutionSuccess {
		t.Errorf("expected second execution success, got %s", succeeded.Status)
	}
}

func TestRecordActionsIncrementDepth(t *testing.T) {
	tenantID := uuid.New()
	repo := &mockWorkflowRepo{}
	writer := &mockWriter{}

	wf := statusWorkflow(tenantID, "cascade", "Qualified",
		domain.WorkflowAction{
			Type:   domain.ActionUpdateRecord,
			Config: map[string]any{"values": map[string]any{"score": 100}},
		},
		domain.WorkflowAction{
			Type:   domain.ActionCreateRecord,
			Config: map[string]any{"module": "task", "values": map[string]any{"title": "follow up"}},
		},
	)
	repo.workflows = append(repo.workflows, wf)

	engine := NewEngine(repo, newMockExecutionRepo(), writer, Collaborators{}, nil, Options{})

	if err := engine.HandleMutation(context.Background(), statusMutation(tenantID, "Qualified", 2)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(writer.updates) != 1 || writer.updates[0].depth != 3 {
		t.Errorf("expected update at depth 3, got %+v", writer.updates)
	}
	if len(writer.creates) != 1 || writer.creates[0].depth != 3 || writer.creates[0].module != "task" {
		t.Errorf("expected create in task at depth 3, got %+v", writer.creates)
	}
}

func TestCollaboratorTimeout(t *testing.T) {
	tenantID := uuid.New()
	repo := &mockWorkflowRepo{}
	executions := newMockExecutionRepo()

	repo.workflows = append(repo.workflows,
		statusWorkflow(tenantID, "slow", "Qualified", notifyAction("x")))

	engine := NewEngine(repo, executions, &mockWriter{},
		Collaborators{Notify: blockingNotifier{}}, nil,
		Options{ActionTimeout: 10 * time.Millisecond})

	if err := engine.HandleMutation(context.Background(), statusMutation(tenantID, "Qualified", 0)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	all := executions.all()
	if len(all) != 1 || all[0].Status != domain.ExecutionFailed {
		t.Fatalf("expected one failed execution, got %v", all)
	}
	if !strings.Contains(all[0].Error, domain.ErrCollaboratorTimeout.Error()) {
		t.Errorf("expected timeout classification, got %q", all[0].Error)
	}
}

func TestInactiveWorkflowsNeverFire(t *testing.T) {
	tenantID := uuid.New()
	repo := &mockWorkflowRepo{}
	notifier := &recordingNotifier{}

	wf := statusWorkflow(tenantID, "paused", "Qualified", notifyAction("x")).WithActive(false)
	repo.workflows = append(repo.workflows, wf)

	engine := NewEngine(repo, newMockExecutionRepo(), &mockWriter{}, Collaborators{Notify: notifier}, nil, Options{})

	if err := engine.HandleMutation(context.Background(), statusMutation(tenantID, "Qualified", 0)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(notifier.messages) != 0 {
		t.Errorf("inactive workflow fired: %v", notifier.messages)
	}
}
