package validator

import (
	"testing"

	"github.com/google/uuid"

	"github.com/modulith/modulith/internal/domain"
)

func testModuleConfig() domain.ModuleConfig {
	minLen := 2
	maxDiscount := 40.0
	return domain.NewModuleConfig(uuid.New(), "quotation", "Quotations", []domain.FieldDefinition{
		{Name: "clientName", Label: "Client", DataType: domain.FieldTypeText, Required: true,
			Config: &domain.FieldConfig{MinLength: &minLen}},
		{Name: "total", Label: "Total", DataType: domain.FieldTypeCurrency, Required: true},
		{Name: "discountPercent", Label: "Discount", DataType: domain.FieldTypeNumber,
			Config: &domain.FieldConfig{MaxValue: &maxDiscount}},
		{Name: "currency", Label: "Currency", DataType: domain.FieldTypePicklist,
			Default: "GBP",
			Config:  &domain.FieldConfig{Options: []string{"GBP", "EUR", "USD"}}},
		{Name: "validUntil", Label: "Valid Until", DataType: domain.FieldTypeDate},
		{Name: "approved", Label: "Approved", DataType: domain.FieldTypeBoolean},
	})
}

func errorForField(errs []domain.FieldError, field string) (domain.FieldError, bool) {
	for _, fe := range errs {
		if fe.Field == field {
			return fe, true
		}
	}
	return domain.FieldError{}, false
}

func TestValidateCollectsAllErrors(t *testing.T) {
	pv := NewPayloadValidator()
	config := testModuleConfig()

	_, errs := pv.Validate(config, map[string]any{
		"total":    "not-a-number",
		"currency": "JPY",
		"bogus":    1,
	})

	if len(errs) != 4 {
		t.Fatalf("expected 4 field errors, got %d: %v", len(errs), errs)
	}

	required, ok := errorForField(errs, "clientName")
	if !ok || required.Kind != domain.FieldErrorRequired {
		t.Errorf("expected required error for clientName, got %v", required)
	}
	mismatch, ok := errorForField(errs, "total")
	if !ok || mismatch.Kind != domain.FieldErrorTypeMismatch {
		t.Errorf("expected type mismatch for total, got %v", mismatch)
	}
	constraint, ok := errorForField(errs, "currency")
	if !ok || constraint.Kind != domain.FieldErrorConstraint {
		t.Errorf("expected constraint error for currency, got %v", constraint)
	}
	unknown, ok := errorForField(errs, "bogus")
	if !ok || unknown.Kind != domain.FieldErrorUnknownField {
		t.Errorf("expected unknown field error for bogus, got %v", unknown)
	}
}

func TestValidateNormalizesValues(t *testing.T) {
	pv := NewPayloadValidator()
	config := testModuleConfig()

	normalized, errs := pv.Validate(config, map[string]any{
		"clientName": "Acme",
		"total":      "1234.567",
		"validUntil": "2026-09-30",
		"approved":   "true",
	})
	if len(errs) != 0 {
		t.Fatalf("expected no errors, got %v", errs)
	}

	if got := normalized["total"]; got != 1234.57 {
		t.Errorf("expected currency rounded to 1234.57, got %v", got)
	}
	if got := normalized["validUntil"]; got != "2026-09-30T00:00:00Z" {
		t.Errorf("expected RFC3339 date, got %v", got)
	}
	if got := normalized["approved"]; got != true {
		t.Errorf("expected boolean true, got %v", got)
	}
	// Absent optional field with a default is filled in.
	if got := normalized["currency"]; got != "GBP" {
		t.Errorf("expected default currency GBP, got %v", got)
	}
}

func TestValidateModuleRules(t *testing.T) {
	pv := NewPayloadValidator()
	config := testModuleConfig()
	config.Rules = []domain.ValidationRule{
		{Field: "discountPercent", Operator: domain.OperatorLessThan, Value: 30, Message: "discount too high"},
	}

	_, errs := pv.Validate(config, map[string]any{
		"clientName":      "Acme",
		"total":           100,
		"discountPercent": 35,
	})
	rule, ok := errorForField(errs, "discountPercent")
	if !ok || rule.Kind != domain.FieldErrorRule {
		t.Fatalf("expected rule error for discountPercent, got %v", errs)
	}
	if rule.Message != "discount too high" {
		t.Errorf("expected custom rule message, got %q", rule.Message)
	}
}

func TestValidateLookupRequiresUUID(t *testing.T) {
	pv := NewPayloadValidator()
	config := domain.NewModuleConfig(uuid.New(), "order", "Orders", []domain.FieldDefinition{
		{Name: "clientId", Label: "Client", DataType: domain.FieldTypeLookup,
			Config: &domain.FieldConfig{LookupModule: "client"}},
	})

	if _, errs := pv.Validate(config, map[string]any{"clientId": "not-a-uuid"}); len(errs) != 1 {
		t.Fatalf("expected one error for malformed lookup id, got %v", errs)
	}

	id := uuid.New().String()
	normalized, errs := pv.Validate(config, map[string]any{"clientId": id})
	if len(errs) != 0 {
		t.Fatalf("expected no errors, got %v", errs)
	}
	if normalized["clientId"] != id {
		t.Errorf("expected normalized lookup id %s, got %v", id, normalized["clientId"])
	}
}

func TestValidateFileConstraints(t *testing.T) {
	pv := NewPayloadValidator()
	maxSize := int64(1024)
	config := domain.NewModuleConfig(uuid.New(), "client", "Clients", []domain.FieldDefinition{
		{Name: "contract", Label: "Contract", DataType: domain.FieldTypeFile,
			Config: &domain.FieldConfig{Accept: []string{".pdf"}, MaxSizeBytes: &maxSize}},
	})

	_, errs := pv.Validate(config, map[string]any{
		"contract": map[string]any{"name": "contract.docx", "size": 2048},
	})
	if len(errs) != 2 {
		t.Fatalf("expected size and type errors, got %v", errs)
	}

	_, errs = pv.Validate(config, map[string]any{
		"contract": map[string]any{"name": "contract.pdf", "size": 512},
	})
	if len(errs) != 0 {
		t.Fatalf("expected accepted file, got %v", errs)
	}
}
