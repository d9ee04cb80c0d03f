package conversion

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/modulith/modulith/internal/audit"
	"github.com/modulith/modulith/internal/auth"
	"github.com/modulith/modulith/internal/domain"
	"github.com/modulith/modulith/internal/records"
	"github.com/modulith/modulith/internal/repository"

	"github.com/google/uuid"
)

// Result carries both halves of a completed conversion.
type Result struct {
	Source domain.Record `json:"source"`
	Target domain.Record `json:"target"`
}

// Engine executes declarative conversion flows. Every flow (Lead to Client,
// Quotation to Order, Order to Invoice, or tenant-registered ones) runs the
// same algorithm: guard on the source's terminal status, map fields into a
// target payload, create the target, stamp the source terminal with a link to
// the target. Target create plus source update behave atomically: a failed
// source update rolls the target back with a compensating delete so no
// partially-converted pair is ever observable.
type Engine struct {
	records *records.Service
	store   repository.RecordRepository
	audit   audit.Emitter
	flows   map[string]domain.ConversionFlow
}

// NewEngine creates a conversion engine with the given flows registered.
func NewEngine(recordSvc *records.Service, store repository.RecordRepository, auditor audit.Emitter, flows ...domain.ConversionFlow) *Engine {
	if auditor == nil {
		auditor = audit.NopEmitter{}
	}
	engine := &Engine{
		records: recordSvc,
		store:   store,
		audit:   auditor,
		flows:   make(map[string]domain.ConversionFlow, len(flows)),
	}
	for _, flow := range flows {
		engine.flows[flow.Name] = flow
	}
	return engine
}

// Flow returns a registered flow by name.
func (e *Engine) Flow(name string) (domain.ConversionFlow, bool) {
	flow, ok := e.flows[name]
	return flow, ok
}

// Convert transforms one record of the flow's source module into a new record
// of its target module. Calling it again for the same source returns
// domain.ErrAlreadyConverted and leaves exactly one target record behind.
func (e *Engine) Convert(ctx context.Context, actor auth.Actor, flowName string, sourceID uuid.UUID) (Result, error) {
	flow, ok := e.flows[flowName]
	if !ok {
		return Result{}, fmt.Errorf("conversion flow %s: %w", flowName, domain.ErrNotFound)
	}

	source, err := e.records.Get(ctx, actor, flow.SourceModule, sourceID)
	if err != nil {
		return Result{}, err
	}
	if source.Status == flow.SourceTerminalStatus {
		return Result{}, fmt.Errorf("record %s: %w", sourceID, domain.ErrAlreadyConverted)
	}

	payload, err := flow.Apply(source.Data)
	if err != nil {
		return Result{}, fmt.Errorf("apply mapping %s: %w", flowName, err)
	}

	target, err := e.records.CreateWithOptions(ctx, actor, flow.TargetModule, payload, records.CreateOptions{
		Status:        flow.TargetInitialStatus,
		ConvertedFrom: &sourceID,
	})
	if err != nil {
		return Result{}, err
	}

	// Pin the source update to the version observed above. A concurrent
	// conversion that commits first bumps the version and this update
	// conflicts instead of silently double-converting.
	expected := source.Version
	updatedSource, err := e.records.UpdateWithOptions(ctx, actor, flow.SourceModule, sourceID,
		map[string]any{"status": flow.SourceTerminalStatus},
		records.UpdateOptions{ConvertedTo: &target.ID, ExpectedVersion: &expected},
	)
	if err != nil {
		e.rollbackTarget(ctx, actor, target.ID)
		if errors.Is(err, domain.ErrConflict) {
			fresh, loadErr := e.records.Get(ctx, actor, flow.SourceModule, sourceID)
			if loadErr == nil && fresh.Status == flow.SourceTerminalStatus {
				return Result{}, fmt.Errorf("record %s: %w", sourceID, domain.ErrAlreadyConverted)
			}
		}
		return Result{}, fmt.Errorf("finalize conversion %s: %w", flowName, err)
	}

	e.audit.Record(ctx, audit.Event{
		TenantID:   actor.TenantID,
		ActorID:    actor.ID,
		Action:     "record.converted",
		EntityType: flow.SourceModule,
		EntityID:   sourceID,
		Metadata: map[string]any{
			"flow":         flow.Name,
			"targetModule": flow.TargetModule,
			"targetId":     target.ID.String(),
		},
	})

	return Result{Source: updatedSource, Target: target}, nil
}

// rollbackTarget deletes the freshly created target after a failed source
// update. The delete goes straight to the repository so no mutation events
// fire for a record that was never observable as converted.
func (e *Engine) rollbackTarget(ctx context.Context, actor auth.Actor, targetID uuid.UUID) {
	if err := e.store.Delete(ctx, actor.TenantID, targetID); err != nil {
		log.Printf("[CONVERSION] compensating delete of %s failed: %v", targetID, err)
	}
}
