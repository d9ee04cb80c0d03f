package workflow

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/modulith/modulith/internal/audit"
	"github.com/modulith/modulith/internal/auth"
	"github.com/modulith/modulith/internal/domain"
	"github.com/modulith/modulith/internal/records"
	"github.com/modulith/modulith/internal/repository"

	"github.com/google/uuid"
)

const (
	// DefaultMaxDepth bounds action-triggered re-entry so a workflow that
	// mutates its own trigger field terminates instead of looping.
	DefaultMaxDepth = 5
	// DefaultActionTimeout bounds every collaborator call.
	DefaultActionTimeout = 10 * time.Second
)

// RecordWriter is the loop-back surface for update_record/create_record
// actions. The record facade implements it.
type RecordWriter interface {
	CreateWithOptions(ctx context.Context, actor auth.Actor, moduleName string, payload map[string]any, opts records.CreateOptions) (domain.Record, error)
	UpdateWithOptions(ctx context.Context, actor auth.Actor, moduleName string, recordID uuid.UUID, patch map[string]any, opts records.UpdateOptions) (domain.Record, error)
}

// Options tunes engine limits; zero values pick the defaults.
type Options struct {
	MaxDepth      int
	ActionTimeout time.Duration
}

// Engine evaluates a tenant's active workflows against record mutation
// events and executes matching actions. Workflow failures are reported
// through WorkflowExecution rows, never back to the user-facing operation.
type Engine struct {
	workflows     repository.WorkflowRepository
	executions    repository.WorkflowExecutionRepository
	writer        RecordWriter
	collaborators Collaborators
	audit         audit.Emitter
	maxDepth      int
	actionTimeout time.Duration
}

// NewEngine creates a workflow engine.
func NewEngine(
	workflows repository.WorkflowRepository,
	executions repository.WorkflowExecutionRepository,
	writer RecordWriter,
	collaborators Collaborators,
	auditor audit.Emitter,
	opts Options,
) *Engine {
	if auditor == nil {
		auditor = audit.NopEmitter{}
	}
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = DefaultMaxDepth
	}
	if opts.ActionTimeout <= 0 {
		opts.ActionTimeout = DefaultActionTimeout
	}
	return &Engine{
		workflows:     workflows,
		executions:    executions,
		writer:        writer,
		collaborators: collaborators.withDefaults(),
		audit:         auditor,
		maxDepth:      opts.MaxDepth,
		actionTimeout: opts.ActionTimeout,
	}
}

// HandleMutation evaluates every matching active workflow for the mutation,
// in priority order. One workflow's failure never blocks the next; only the
// recursion guard stops evaluation outright.
func (e *Engine) HandleMutation(ctx context.Context, m domain.RecordMutation) error {
	if m.Depth >= e.maxDepth {
		e.audit.Record(ctx, audit.Event{
			TenantID:   m.TenantID,
			ActorID:    m.Actor,
			Action:     "workflow.recursion_limited",
			EntityType: m.ModuleName,
			EntityID:   m.Record.ID,
			Metadata:   map[string]any{"depth": m.Depth},
		})
		return fmt.Errorf("depth %d: %w", m.Depth, domain.ErrRecursionLimit)
	}

	workflows, err := e.workflows.ListActive(ctx, m.TenantID, m.ModuleName)
	if err != nil {
		return fmt.Errorf("list workflows for %s: %w", m.ModuleName, err)
	}
	sort.SliceStable(workflows, func(i, j int) bool {
		return workflows[i].Priority < workflows[j].Priority
	})

	for _, wf := range workflows {
		if !wf.Trigger.Matches(m) {
			continue
		}
		if !wf.Conditions.Evaluate(m.Record) {
			continue
		}
		e.fire(ctx, wf, m)
	}
	return nil
}

// fire runs one matched workflow's actions in order and records the
// execution. An action failure aborts this workflow's remaining actions
// (later steps assume earlier side effects) but is isolated from siblings.
func (e *Engine) fire(ctx context.Context, wf domain.Workflow, m domain.RecordMutation) {
	input := map[string]any{"status": m.Record.Status}
	for k, v := range m.Record.Data {
		input[k] = v
	}

	execution := domain.NewWorkflowExecution(m.TenantID, wf.ID, m.Record.ID, input)
	execution, err := e.executions.Create(ctx, execution)
	if err != nil {
		log.Printf("[WORKFLOW] record execution for %s failed: %v", wf.Name, err)
		return
	}

	output, actionErr := e.runActions(ctx, wf, m)
	if actionErr != nil {
		execution = execution.MarkFailed(output, actionErr)
	} else {
		execution = execution.MarkSucceeded(output)
	}
	if _, err := e.executions.Finish(ctx, execution); err != nil {
		log.Printf("[WORKFLOW] finish execution for %s failed: %v", wf.Name, err)
	}
}

func (e *Engine) runActions(ctx context.Context, wf domain.Workflow, m domain.RecordMutation) (map[string]any, error) {
	executed := 0
	for i, action := range wf.Actions {
		if err := e.runAction(ctx, action, m); err != nil {
			return map[string]any{"actionsExecuted": executed},
				fmt.Errorf("action %d (%s): %w", i, action.Type, err)
		}
		executed++
	}
	return map[string]any{"actionsExecuted": executed}, nil
}

func (e *Engine) runAction(ctx context.Context, action domain.WorkflowAction, m domain.RecordMutation) error {
	actor := auth.Actor{TenantID: m.TenantID, ID: m.Actor, Role: auth.RoleMember}

	switch action.Type {
	case domain.ActionSendEmail:
		return e.bounded(ctx, func(ctx context.Context) error {
			return e.collaborators.Email.Send(ctx,
				configString(action.Config, "to"),
				configString(action.Config, "subject"),
				configString(action.Config, "body"))
		})

	case domain.ActionNotification:
		return e.bounded(ctx, func(ctx context.Context) error {
			return e.collaborators.Notify.Notify(ctx,
				configString(action.Config, "target"),
				configString(action.Config, "message"))
		})

	case domain.ActionWebhook:
		url := configString(action.Config, "url")
		if url == "" {
			return fmt.Errorf("webhook action requires a url")
		}
		payload := map[string]any{
			"recordId": m.Record.ID.String(),
			"module":   m.ModuleName,
			"kind":     string(m.Kind),
			"status":   m.Record.Status,
			"data":     m.Record.Data,
		}
		return e.bounded(ctx, func(ctx context.Context) error {
			return e.collaborators.Webhooks.Call(ctx, url, payload)
		})

	case domain.ActionUpdateRecord:
		values := configMap(action.Config, "values")
		if len(values) == 0 {
			return fmt.Errorf("update_record action requires values")
		}
		_, err := e.writer.UpdateWithOptions(ctx, actor, m.ModuleName, m.Record.ID, values,
			records.UpdateOptions{Depth: m.Depth + 1})
		return err

	case domain.ActionCreateRecord:
		module := configString(action.Config, "module")
		if module == "" {
			return fmt.Errorf("create_record action requires a module")
		}
		values := configMap(action.Config, "values")
		_, err := e.writer.CreateWithOptions(ctx, actor, module, values,
			records.CreateOptions{Depth: m.Depth + 1})
		return err

	default:
		return fmt.Errorf("unknown action type %s", action.Type)
	}
}

// bounded runs a collaborator call under the engine's action timeout and
// normalizes deadline errors to domain.ErrCollaboratorTimeout.
func (e *Engine) bounded(ctx context.Context, fn func(context.Context) error) error {
	boundedCtx, cancel := context.WithTimeout(ctx, e.actionTimeout)
	defer cancel()

	err := fn(boundedCtx)
	if err != nil && (errors.Is(err, context.DeadlineExceeded) || boundedCtx.Err() == context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", domain.ErrCollaboratorTimeout, err)
	}
	return err
}

func configString(config map[string]any, key string) string {
	if config == nil {
		return ""
	}
	if value, ok := config[key].(string); ok {
		return value
	}
	return ""
}

func configMap(config map[string]any, key string) map[string]any {
	if config == nil {
		return nil
	}
	if value, ok := config[key].(map[string]any); ok {
		return value
	}
	return nil
}
