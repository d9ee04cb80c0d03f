package records

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/modulith/modulith/internal/audit"
	"github.com/modulith/modulith/internal/auth"
	"github.com/modulith/modulith/internal/domain"
	"github.com/modulith/modulith/internal/repository"
	"github.com/modulith/modulith/pkg/validator"

	"github.com/google/uuid"
)

// defaultStatus is used when a module config declares no initial status.
const defaultStatus = "New"

// statusKey is the reserved payload key routing writes to the record status
// instead of schema-validated data.
const statusKey = "status"

// SchemaResolver exposes the schema lookup used by the facade.
type SchemaResolver interface {
	Resolve(ctx context.Context, tenantID uuid.UUID, moduleName string) (domain.ModuleConfig, error)
}

// MutationSink receives record mutation events after a write commits.
// Delivery is best-effort; sink failures never fail the write.
type MutationSink interface {
	HandleMutation(ctx context.Context, mutation domain.RecordMutation) error
}

// Service is the generic record store facade. It is the single choke point
// for tenant isolation: every operation scopes by the actor's tenant and
// fails closed on mismatch.
type Service struct {
	schemas    SchemaResolver
	records    repository.RecordRepository
	activities repository.ActivityRepository
	sink       MutationSink
	audit      audit.Emitter
	validator  *validator.PayloadValidator
}

// NewService creates a record facade. The mutation sink is attached later via
// SetMutationSink because the workflow engine writes back through the facade.
func NewService(
	schemas SchemaResolver,
	records repository.RecordRepository,
	activities repository.ActivityRepository,
	auditor audit.Emitter,
) *Service {
	if auditor == nil {
		auditor = audit.NopEmitter{}
	}
	return &Service{
		schemas:    schemas,
		records:    records,
		activities: activities,
		audit:      auditor,
		validator:  validator.NewPayloadValidator(),
	}
}

// SetMutationSink attaches the workflow engine (or any listener) for
// post-commit mutation events.
func (s *Service) SetMutationSink(sink MutationSink) {
	s.sink = sink
}

// CreateOptions tunes record creation for conversion and automation callers.
type CreateOptions struct {
	Status        string
	ConvertedFrom *uuid.UUID
	Depth         int
}

// UpdateOptions tunes record updates for conversion and automation callers.
// ExpectedVersion pins the optimistic check to a version the caller already
// observed; a mismatch surfaces domain.ErrConflict without the transparent
// retry.
type UpdateOptions struct {
	ConvertedTo     *uuid.UUID
	Depth           int
	ExpectedVersion *int64
}

// Create validates payload against the module's schema, checks unique fields,
// persists the record with the module's initial status, and emits mutation
// and audit events.
func (s *Service) Create(ctx context.Context, actor auth.Actor, moduleName string, payload map[string]any) (domain.Record, error) {
	return s.CreateWithOptions(ctx, actor, moduleName, payload, CreateOptions{})
}

// CreateWithOptions is Create with conversion/automation knobs.
func (s *Service) CreateWithOptions(ctx context.Context, actor auth.Actor, moduleName string, payload map[string]any, opts CreateOptions) (domain.Record, error) {
	config, err := s.schemas.Resolve(ctx, actor.TenantID, moduleName)
	if err != nil {
		return domain.Record{}, err
	}

	data, requestedStatus := splitStatus(payload)
	normalized, fieldErrs := s.validator.Validate(config, data)

	uniqueErrs, err := s.checkUniqueFields(ctx, actor.TenantID, config, normalized, nil)
	if err != nil {
		return domain.Record{}, err
	}
	fieldErrs = append(fieldErrs, uniqueErrs...)
	if len(fieldErrs) > 0 {
		return domain.Record{}, &domain.ValidationError{Errors: fieldErrs}
	}

	status := opts.Status
	if status == "" {
		status = requestedStatus
	}
	if status == "" {
		status = config.InitialStatus
	}
	if status == "" {
		status = defaultStatus
	}

	record := domain.NewRecord(actor.TenantID, moduleName, normalized, status, actor.ID)
	if opts.ConvertedFrom != nil {
		record = record.WithConvertedFrom(*opts.ConvertedFrom)
	}

	persisted, err := s.records.Create(ctx, record)
	if err != nil {
		return domain.Record{}, fmt.Errorf("create record: %w", err)
	}

	s.audit.Record(ctx, audit.Event{
		TenantID:   actor.TenantID,
		ActorID:    actor.ID,
		Action:     "record.created",
		EntityType: moduleName,
		EntityID:   persisted.ID,
	})
	s.emit(ctx, domain.RecordMutation{
		TenantID:   actor.TenantID,
		ModuleName: moduleName,
		Kind:       domain.MutationCreated,
		Record:     persisted,
		Actor:      actor.ID,
		Depth:      opts.Depth,
	})

	return persisted, nil
}

// Update merges patch into the record's data, re-validates the merged result
// so cross-field constraints stay consistent, and persists with an optimistic
// version check. A transient conflict is retried once transparently.
func (s *Service) Update(ctx context.Context, actor auth.Actor, moduleName string, recordID uuid.UUID, patch map[string]any) (domain.Record, error) {
	return s.UpdateWithOptions(ctx, actor, moduleName, recordID, patch, UpdateOptions{})
}

// UpdateWithOptions is Update with conversion/automation knobs.
func (s *Service) UpdateWithOptions(ctx context.Context, actor auth.Actor, moduleName string, recordID uuid.UUID, patch map[string]any, opts UpdateOptions) (domain.Record, error) {
	config, err := s.schemas.Resolve(ctx, actor.TenantID, moduleName)
	if err != nil {
		return domain.Record{}, err
	}

	updated, changes, err := s.applyUpdate(ctx, actor, config, moduleName, recordID, patch, opts)
	if errors.Is(err, domain.ErrConflict) && opts.ExpectedVersion == nil {
		// One transparent retry against the fresh version; a second
		// conflict surfaces to the caller.
		updated, changes, err = s.applyUpdate(ctx, actor, config, moduleName, recordID, patch, opts)
	}
	if err != nil {
		return domain.Record{}, err
	}

	s.audit.Record(ctx, audit.Event{
		TenantID:   actor.TenantID,
		ActorID:    actor.ID,
		Action:     "record.updated",
		EntityType: moduleName,
		EntityID:   updated.ID,
		Metadata:   map[string]any{"changes": len(changes)},
	})
	s.emit(ctx, domain.RecordMutation{
		TenantID:   actor.TenantID,
		ModuleName: moduleName,
		Kind:       domain.MutationUpdated,
		Record:     updated,
		Changes:    changes,
		Actor:      actor.ID,
		Depth:      opts.Depth,
	})

	return updated, nil
}

func (s *Service) applyUpdate(
	ctx context.Context,
	actor auth.Actor,
	config domain.ModuleConfig,
	moduleName string,
	recordID uuid.UUID,
	patch map[string]any,
	opts UpdateOptions,
) (domain.Record, []domain.FieldChange, error) {
	existing, err := s.load(ctx, actor, moduleName, recordID)
	if err != nil {
		return domain.Record{}, nil, err
	}

	dataPatch, statusPatch := splitStatus(patch)
	merged := make(map[string]any, len(existing.Data)+len(dataPatch))
	for k, v := range existing.Data {
		merged[k] = v
	}
	for k, v := range dataPatch {
		if v == nil {
			delete(merged, k)
			continue
		}
		merged[k] = v
	}

	normalized, fieldErrs := s.validator.Validate(config, merged)
	uniqueErrs, err := s.checkUniqueFields(ctx, actor.TenantID, config, normalized, &existing.ID)
	if err != nil {
		return domain.Record{}, nil, err
	}
	fieldErrs = append(fieldErrs, uniqueErrs...)
	if len(fieldErrs) > 0 {
		return domain.Record{}, nil, &domain.ValidationError{Errors: fieldErrs}
	}

	changes := domain.DiffData(existing.Data, normalized)
	next := existing.WithData(normalized)
	if statusPatch != "" && statusPatch != existing.Status {
		changes = append(changes, domain.FieldChange{Field: statusKey, Old: existing.Status, New: statusPatch})
		next = next.WithStatus(statusPatch)
	}
	if opts.ConvertedTo != nil {
		next = next.WithConvertedTo(*opts.ConvertedTo)
	}
	if opts.ExpectedVersion != nil {
		next.Version = *opts.ExpectedVersion
	}

	updated, err := s.records.Update(ctx, next)
	if err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return domain.Record{}, nil, domain.ErrConflict
		}
		return domain.Record{}, nil, fmt.Errorf("update record: %w", err)
	}
	return updated, changes, nil
}

// ResolveModule returns the schema the facade would validate against for the
// actor's tenant.
func (s *Service) ResolveModule(ctx context.Context, actor auth.Actor, moduleName string) (domain.ModuleConfig, error) {
	return s.schemas.Resolve(ctx, actor.TenantID, moduleName)
}

// Get returns a record scoped to the actor's tenant.
func (s *Service) Get(ctx context.Context, actor auth.Actor, moduleName string, recordID uuid.UUID) (domain.Record, error) {
	return s.load(ctx, actor, moduleName, recordID)
}

// List returns records of a module scoped to the actor's tenant.
func (s *Service) List(ctx context.Context, actor auth.Actor, moduleName string, filter *domain.RecordFilter, limit, offset int) ([]domain.Record, int, error) {
	return s.records.List(ctx, actor.TenantID, moduleName, filter, limit, offset)
}

// Delete removes a record and emits a deleted mutation event.
func (s *Service) Delete(ctx context.Context, actor auth.Actor, moduleName string, recordID uuid.UUID) error {
	existing, err := s.load(ctx, actor, moduleName, recordID)
	if err != nil {
		return err
	}
	if err := s.records.Delete(ctx, actor.TenantID, recordID); err != nil {
		return fmt.Errorf("delete record: %w", err)
	}

	s.audit.Record(ctx, audit.Event{
		TenantID:   actor.TenantID,
		ActorID:    actor.ID,
		Action:     "record.deleted",
		EntityType: moduleName,
		EntityID:   recordID,
	})
	s.emit(ctx, domain.RecordMutation{
		TenantID:   actor.TenantID,
		ModuleName: moduleName,
		Kind:       domain.MutationDeleted,
		Record:     existing,
		Actor:      actor.ID,
	})
	return nil
}

// AddActivity appends a timeline activity to a record. Timeline entries are
// metadata about the record and bypass schema validation.
func (s *Service) AddActivity(ctx context.Context, actor auth.Actor, moduleName string, recordID uuid.UUID, title, body string) (domain.RecordActivity, error) {
	return s.appendTimeline(ctx, actor, moduleName, recordID, domain.ActivityKindActivity, title, body)
}

// AddNote appends a timeline note to a record.
func (s *Service) AddNote(ctx context.Context, actor auth.Actor, moduleName string, recordID uuid.UUID, title, body string) (domain.RecordActivity, error) {
	return s.appendTimeline(ctx, actor, moduleName, recordID, domain.ActivityKindNote, title, body)
}

// ListTimeline returns a record's activities and notes.
func (s *Service) ListTimeline(ctx context.Context, actor auth.Actor, moduleName string, recordID uuid.UUID) ([]domain.RecordActivity, error) {
	if _, err := s.load(ctx, actor, moduleName, recordID); err != nil {
		return nil, err
	}
	return s.activities.ListByRecord(ctx, actor.TenantID, recordID)
}

func (s *Service) appendTimeline(ctx context.Context, actor auth.Actor, moduleName string, recordID uuid.UUID, kind domain.ActivityKind, title, body string) (domain.RecordActivity, error) {
	if _, err := s.load(ctx, actor, moduleName, recordID); err != nil {
		return domain.RecordActivity{}, err
	}
	activity := domain.NewRecordActivity(actor.TenantID, recordID, kind, title, body, actor.ID)
	stored, err := s.activities.Append(ctx, activity)
	if err != nil {
		return domain.RecordActivity{}, fmt.Errorf("append %s: %w", kind, err)
	}
	return stored, nil
}

// load fetches a record scoped by the actor's tenant. The repository query
// already filters by tenant, so a cross-tenant id resolves to ErrNotFound and
// nothing about the foreign record leaks, not even through error shape.
func (s *Service) load(ctx context.Context, actor auth.Actor, moduleName string, recordID uuid.UUID) (domain.Record, error) {
	record, err := s.records.GetByID(ctx, actor.TenantID, recordID)
	if err != nil {
		return domain.Record{}, err
	}
	if moduleName != "" && record.ModuleName != moduleName {
		return domain.Record{}, domain.ErrNotFound
	}
	return record, nil
}

func (s *Service) checkUniqueFields(
	ctx context.Context,
	tenantID uuid.UUID,
	config domain.ModuleConfig,
	data map[string]any,
	excludeID *uuid.UUID,
) ([]domain.FieldError, error) {
	var errs []domain.FieldError
	for _, field := range config.UniqueFields() {
		value, ok := data[field.Name]
		if !ok || value == nil {
			continue
		}
		count, err := s.records.CountByFieldValue(ctx, tenantID, config.Name, field.Name, value, excludeID)
		if err != nil {
			return nil, fmt.Errorf("unique check for %s: %w", field.Name, err)
		}
		if count > 0 {
			errs = append(errs, domain.FieldError{
				Field:   field.Name,
				Kind:    domain.FieldErrorDuplicateValue,
				Message: fmt.Sprintf("field '%s' must be unique within module %s", field.Name, config.Name),
				Value:   value,
			})
		}
	}
	return errs, nil
}

func (s *Service) emit(ctx context.Context, mutation domain.RecordMutation) {
	if s.sink == nil {
		return
	}
	if err := s.sink.HandleMutation(ctx, mutation); err != nil {
		// Automation is best-effort; the record write already committed.
		log.Printf("[RECORDS] workflow handling failed for %s/%s: %v", mutation.ModuleName, mutation.Record.ID, err)
	}
}

func splitStatus(payload map[string]any) (map[string]any, string) {
	status := ""
	data := make(map[string]any, len(payload))
	for k, v := range payload {
		if k == statusKey {
			if str, ok := v.(string); ok {
				status = str
			}
			continue
		}
		data[k] = v
	}
	return data, status
}
