package validator

import (
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/modulith/modulith/internal/domain"
)

func validConfig() domain.ModuleConfig {
	config := domain.NewModuleConfig(uuid.New(), "lead", "Leads", []domain.FieldDefinition{
		{Name: "name", Label: "Company Name", DataType: domain.FieldTypeText, Required: true},
		{Name: "source", Label: "Source", DataType: domain.FieldTypePicklist, UIType: "select",
			Config: &domain.FieldConfig{Options: []string{"web", "referral"}}},
	})
	config.Statuses = []string{"New", "Qualified"}
	config.InitialStatus = "New"
	return config
}

func expectSchemaError(t *testing.T, err error) *domain.SchemaError {
	t.Helper()
	if err == nil {
		t.Fatal("expected a schema error, got nil")
	}
	var schemaErr *domain.SchemaError
	if !errors.As(err, &schemaErr) {
		t.Fatalf("expected *domain.SchemaError, got %T: %v", err, err)
	}
	return schemaErr
}

func TestValidateModuleConfigAccepts(t *testing.T) {
	if err := ValidateModuleConfig(validConfig()); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
}

func TestValidateModuleConfigRejectsEmpty(t *testing.T) {
	config := validConfig()
	config.Name = "  "
	expectSchemaError(t, ValidateModuleConfig(config))

	config = validConfig()
	config.Fields = nil
	expectSchemaError(t, ValidateModuleConfig(config))
}

func TestValidateModuleConfigRejectsDuplicateFieldNames(t *testing.T) {
	config := validConfig()
	config = config.WithField(domain.FieldDefinition{Name: "email", DataType: domain.FieldTypeText})
	config.Fields = append(config.Fields, domain.FieldDefinition{Name: "Email", DataType: domain.FieldTypeText})

	err := expectSchemaError(t, ValidateModuleConfig(config))
	if err.Message == "" {
		t.Error("schema error should carry a message")
	}
}

func TestValidateModuleConfigRejectsBadTypePairings(t *testing.T) {
	config := validConfig()
	config.Fields[0].DataType = domain.FieldType("geo")
	expectSchemaError(t, ValidateModuleConfig(config))

	config = validConfig()
	config.Fields[0].UIType = "datepicker" // text field
	expectSchemaError(t, ValidateModuleConfig(config))
}

func TestValidateModuleConfigRequiresTypeSpecificConfig(t *testing.T) {
	config := validConfig()
	config.Fields[1].Config = nil // picklist without options
	expectSchemaError(t, ValidateModuleConfig(config))

	config = validConfig()
	config.Fields = append(config.Fields, domain.FieldDefinition{
		Name: "clientId", DataType: domain.FieldTypeLookup,
	})
	expectSchemaError(t, ValidateModuleConfig(config))
}

func TestValidateModuleConfigRejectsBadRules(t *testing.T) {
	config := validConfig()
	config.Rules = []domain.ValidationRule{
		{Field: "name", Operator: domain.Operator("matches"), Value: "x"},
	}
	expectSchemaError(t, ValidateModuleConfig(config))

	config = validConfig()
	config.Rules = []domain.ValidationRule{
		{Field: "missing", Operator: domain.OperatorEquals, Value: "x"},
	}
	expectSchemaError(t, ValidateModuleConfig(config))

	// The reserved status field is a legal rule target.
	config = validConfig()
	config.Rules = []domain.ValidationRule{
		{Field: "status", Operator: domain.OperatorNotEquals, Value: "Lost"},
	}
	if err := ValidateModuleConfig(config); err != nil {
		t.Errorf("status rules should be allowed, got %v", err)
	}
}

func TestValidateModuleConfigChecksInitialStatus(t *testing.T) {
	config := validConfig()
	config.InitialStatus = "Archived"
	expectSchemaError(t, ValidateModuleConfig(config))
}
