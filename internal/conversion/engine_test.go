package conversion

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"

	"github.com/modulith/modulith/internal/auth"
	"github.com/modulith/modulith/internal/domain"
	"github.com/modulith/modulith/internal/records"
)

type stubResolver struct {
	configs map[string]domain.ModuleConfig
}

func (s *stubResolver) Resolve(_ context.Context, tenantID uuid.UUID, moduleName string) (domain.ModuleConfig, error) {
	config, ok := s.configs[moduleName]
	if !ok || config.TenantID != tenantID {
		return domain.ModuleConfig{}, domain.ErrNotFound
	}
	return config, nil
}

// memoryRecordRepo mimics the SQL repository's optimistic versioning so the
// conversion engine is exercised against the real facade semantics.
type memoryRecordRepo struct {
	records     map[uuid.UUID]domain.Record
	failUpdates int
}

func newMemoryRecordRepo() *memoryRecordRepo {
	return &memoryRecordRepo{records: make(map[uuid.UUID]domain.Record)}
}

func (m *memoryRecordRepo) Create(_ context.Context, record domain.Record) (domain.Record, error) {
	m.records[record.ID] = record
	return record, nil
}

func (m *memoryRecordRepo) GetByID(_ context.Context, tenantID, id uuid.UUID) (domain.Record, error) {
	record, ok := m.records[id]
	if !ok || record.TenantID != tenantID {
		return domain.Record{}, domain.ErrNotFound
	}
	return record, nil
}

func (m *memoryRecordRepo) List(_ context.Context, tenantID uuid.UUID, moduleName string, filter *domain.RecordFilter, limit, offset int) ([]domain.Record, int, error) {
	var result []domain.Record
	for _, record := range m.records {
		if record.TenantID == tenantID && record.ModuleName == moduleName && record.MatchesFilter(filter) {
			result = append(result, record)
		}
	}
	return result, len(result), nil
}

func (m *memoryRecordRepo) Update(_ context.Context, record domain.Record) (domain.Record, error) {
	stored, ok := m.records[record.ID]
	if !ok || stored.TenantID != record.TenantID {
		return domain.Record{}, domain.ErrNotFound
	}
	if m.failUpdates > 0 {
		m.failUpdates--
		return domain.Record{}, domain.ErrConflict
	}
	if stored.Version != record.Version {
		return domain.Record{}, domain.ErrConflict
	}
	record.Version = stored.Version + 1
	m.records[record.ID] = record
	return record, nil
}

func (m *memoryRecordRepo) Delete(_ context.Context, tenantID, id uuid.UUID) error {
	record, ok := m.records[id]
	if !ok || record.TenantID != tenantID {
		return domain.ErrNotFound
	}
	delete(m.records, id)
	return nil
}

func (m *memoryRecordRepo) CountByFieldValue(_ context.Context, tenantID uuid.UUID, moduleName, field string, value any, excludeID *uuid.UUID) (int64, error) {
	var count int64
	for _, record := range m.records {
		if record.TenantID != tenantID || record.ModuleName != moduleName {
			continue
		}
		if excludeID != nil && record.ID == *excludeID {
			continue
		}
		if fmt.Sprintf("%v", record.Data[field]) == fmt.Sprintf("%v", value) {
			count++
		}
	}
	return count, nil
}

func (m *memoryRecordRepo) byModule(moduleName string) []domain.Record {
	var result []domain.Record
	for _, record := range m.records {
		if record.ModuleName == moduleName {
			result = append(result, record)
		}
	}
	return result
}

type noteRepo struct{}

func (noteRepo) Append(_ context.Context, activity domain.RecordActivity) (domain.RecordActivity, error) {
	return activity, nil
}

func (noteRepo) ListByRecord(_ context.Context, _, _ uuid.UUID) ([]domain.RecordActivity, error) {
	return nil, nil
}

func conversionFixture(t *testing.T) (*Engine, *memoryRecordRepo, *records.Service, auth.Actor) {
	t.Helper()
	tenantID := uuid.New()
	actor := auth.Actor{TenantID: tenantID, ID: uuid.New(), Role: auth.RoleMember}

	lead := domain.NewModuleConfig(tenantID, "lead", "Leads", []domain.FieldDefinition{
		{Name: "name", Label: "Name", DataType: domain.FieldTypeText, Required: true},
		{Name: "email", Label: "Email", DataType: domain.FieldTypeText},
		{Name: "phone", Label: "Phone", DataType: domain.FieldTypeText},
		{Name: "source", Label: "Source", DataType: domain.FieldTypeText},
	})
	lead.Statuses = []string{"New", "Qualified", "Converted"}
	lead.InitialStatus = "New"

	client := domain.NewModuleConfig(tenantID, "client", "Clients", []domain.FieldDefinition{
		{Name: "companyName", Label: "Company Name", DataType: domain.FieldTypeText},
		{Name: "email", Label: "Email", DataType: domain.FieldTypeText},
		{Name: "phone", Label: "Phone", DataType: domain.FieldTypeText},
		{Name: "leadSource", Label: "Lead Source", DataType: domain.FieldTypeText},
	})
	client.Statuses = []string{"Active", "Dormant"}
	client.InitialStatus = "Active"

	resolver := &stubResolver{configs: map[string]domain.ModuleConfig{"lead": lead, "client": client}}
	repo := newMemoryRecordRepo()
	recordSvc := records.NewService(resolver, repo, noteRepo{}, nil)
	engine := NewEngine(recordSvc, repo, nil, domain.BuiltinFlows()...)
	return engine, repo, recordSvc, actor
}

func TestConvertLeadToClient(t *testing.T) {
	engine, _, recordSvc, actor := conversionFixture(t)

	lead, err := recordSvc.Create(context.Background(), actor, "lead", map[string]any{
		"name":   "Acme Ltd",
		"email":  "hello@acme.test",
		"source": "referral",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	result, err := engine.Convert(context.Background(), actor, "lead_to_client", lead.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Target.ModuleName != "client" {
		t.Errorf("expected client target, got %s", result.Target.ModuleName)
	}
	if result.Target.Data["companyName"] != "Acme Ltd" {
		t.Errorf("expected name mapped to companyName, got %v", result.Target.Data["companyName"])
	}
	if result.Target.Data["leadSource"] != "referral" {
		t.Errorf("expected source mapped to leadSource, got %v", result.Target.Data["leadSource"])
	}
	if result.Target.Status != "Active" {
		t.Errorf("expected target status Active, got %s", result.Target.Status)
	}
	if result.Target.ConvertedFromID == nil || *result.Target.ConvertedFromID != lead.ID {
		t.Error("expected target linked back to the source lead")
	}

	if result.Source.Status != "Converted" {
		t.Errorf("expected source stamped Converted, got %s", result.Source.Status)
	}
	if result.Source.ConvertedToID == nil || *result.Source.ConvertedToID != result.Target.ID {
		t.Error("expected source linked forward to the target client")
	}
}

func TestConvertTwiceIsIdempotent(t *testing.T) {
	engine, repo, recordSvc, actor := conversionFixture(t)

	lead, err := recordSvc.Create(context.Background(), actor, "lead", map[string]any{"name": "Acme"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := engine.Convert(context.Background(), actor, "lead_to_client", lead.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = engine.Convert(context.Background(), actor, "lead_to_client", lead.ID)
	if !errors.Is(err, domain.ErrAlreadyConverted) {
		t.Fatalf("expected ErrAlreadyConverted, got %v", err)
	}

	if clients := repo.byModule("client"); len(clients) != 1 {
		t.Errorf("expected exactly one client after repeat conversion, got %d", len(clients))
	}
}

func TestConvertRollsBackTargetOnSourceFailure(t *testing.T) {
	engine, repo, recordSvc, actor := conversionFixture(t)

	lead, err := recordSvc.Create(context.Background(), actor, "lead", map[string]any{"name": "Acme"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// The source stamp conflicts; the engine must delete the fresh target
	// instead of leaving a converted client behind an unconverted lead.
	repo.failUpdates = 1
	if _, err := engine.Convert(context.Background(), actor, "lead_to_client", lead.ID); err == nil {
		t.Fatal("expected conversion failure")
	}

	if clients := repo.byModule("client"); len(clients) != 0 {
		t.Errorf("expected compensating delete to remove the target, got %d clients", len(clients))
	}

	source, err := recordSvc.Get(context.Background(), actor, "lead", lead.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if source.Status != "New" {
		t.Errorf("expected source untouched after rollback, got %s", source.Status)
	}
}

func TestConvertUnknownFlow(t *testing.T) {
	engine, _, _, actor := conversionFixture(t)

	_, err := engine.Convert(context.Background(), actor, "lead_to_invoice", uuid.New())
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown flow, got %v", err)
	}
}
