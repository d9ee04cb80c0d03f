package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// FieldType represents the data type of a field in a module config
type FieldType string

const (
	FieldTypeText     FieldType = "text"
	FieldTypeNumber   FieldType = "number"
	FieldTypeCurrency FieldType = "currency"
	FieldTypeDate     FieldType = "date"
	FieldTypeBoolean  FieldType = "boolean"
	FieldTypePicklist FieldType = "picklist"
	FieldTypeLookup   FieldType = "lookup"
	FieldTypeFile     FieldType = "file"
)

// uiTypesByDataType is the fixed catalog of data type / ui type pairings.
// Schema saves are rejected when a field declares a pairing outside of it.
var uiTypesByDataType = map[FieldType][]string{
	FieldTypeText:     {"input", "textarea", "email", "phone", "url"},
	FieldTypeNumber:   {"input", "slider"},
	FieldTypeCurrency: {"input"},
	FieldTypeDate:     {"datepicker", "datetimepicker"},
	FieldTypeBoolean:  {"checkbox", "toggle"},
	FieldTypePicklist: {"select", "radio", "multiselect"},
	FieldTypeLookup:   {"lookup"},
	FieldTypeFile:     {"upload"},
}

// KnownFieldType reports whether ft is part of the type catalog.
func KnownFieldType(ft FieldType) bool {
	_, ok := uiTypesByDataType[ft]
	return ok
}

// AllowsUIType reports whether the catalog pairs uiType with ft. An empty
// uiType falls back to the type's first catalog entry and is always allowed.
func AllowsUIType(ft FieldType, uiType string) bool {
	allowed, ok := uiTypesByDataType[ft]
	if !ok {
		return false
	}
	if uiType == "" {
		return true
	}
	for _, candidate := range allowed {
		if strings.EqualFold(candidate, uiType) {
			return true
		}
	}
	return false
}

// FieldConfig carries type-specific constraints for a field definition.
type FieldConfig struct {
	MinValue     *float64 `json:"minValue,omitempty"`
	MaxValue     *float64 `json:"maxValue,omitempty"`
	MinLength    *int     `json:"minLength,omitempty"`
	MaxLength    *int     `json:"maxLength,omitempty"`
	Decimals     *int     `json:"decimals,omitempty"`
	Pattern      string   `json:"pattern,omitempty"`
	Options      []string `json:"options,omitempty"`
	Accept       []string `json:"accept,omitempty"`
	MaxSizeBytes *int64   `json:"maxSizeBytes,omitempty"`
	LookupModule string   `json:"lookupModule,omitempty"`
}

// ValidationRule is a declarative rule evaluated after the built-in checks.
// It compares one field against a literal using the shared operator set.
type ValidationRule struct {
	Field    string   `json:"field"`
	Operator Operator `json:"operator"`
	Value    any      `json:"value"`
	Message  string   `json:"message,omitempty"`
}

// FieldDefinition represents a field definition in a module config. Name is
// the stable machine key, Label is display text; the two must stay distinct.
type FieldDefinition struct {
	Name     string           `json:"name"`
	Label    string           `json:"label"`
	DataType FieldType        `json:"dataType"`
	UIType   string           `json:"uiType,omitempty"`
	Required bool             `json:"required"`
	Unique   bool             `json:"unique"`
	Default  any              `json:"default,omitempty"`
	Config   *FieldConfig     `json:"config,omitempty"`
	Rules    []ValidationRule `json:"rules,omitempty"`
}

// LayoutSection groups fields for rendering.
type LayoutSection struct {
	Title   string   `json:"title"`
	Columns int      `json:"columns"`
	Fields  []string `json:"fields"`
}

// LayoutConfig describes how a module's fields are laid out.
type LayoutConfig struct {
	Sections []LayoutSection `json:"sections"`
}

// ModuleStatus represents lifecycle status of a module config version.
type ModuleStatus string

const (
	ModuleStatusDraft    ModuleStatus = "DRAFT"
	ModuleStatusReview   ModuleStatus = "REVIEW"
	ModuleStatusActive   ModuleStatus = "ACTIVE"
	ModuleStatusArchived ModuleStatus = "ARCHIVED"
)

// CanTransition reports whether the lifecycle allows moving from s to next.
// Archival is terminal.
func (s ModuleStatus) CanTransition(next ModuleStatus) bool {
	switch s {
	case ModuleStatusDraft:
		return next == ModuleStatusReview
	case ModuleStatusReview:
		return next == ModuleStatusActive || next == ModuleStatusDraft
	case ModuleStatusActive:
		return next == ModuleStatusArchived
	default:
		return false
	}
}

// CompatibilityLevel represents semantic version compatibility.
type CompatibilityLevel string

const (
	CompatibilityPatch CompatibilityLevel = "patch"
	CompatibilityMinor CompatibilityLevel = "minor"
	CompatibilityMajor CompatibilityLevel = "major"
)

// ModuleConfig is the versioned schema definition for one tenant module.
// At most one ACTIVE version exists per (tenant, module name); records are
// validated against the schema at write time only, never retroactively.
type ModuleConfig struct {
	ID                uuid.UUID         `json:"id"`
	TenantID          uuid.UUID         `json:"tenant_id"`
	Name              string            `json:"name"`
	DisplayName       string            `json:"display_name"`
	Fields            []FieldDefinition `json:"fields"`
	Layout            *LayoutConfig     `json:"layout,omitempty"`
	Rules             []ValidationRule  `json:"rules,omitempty"`
	Statuses          []string          `json:"statuses,omitempty"`
	InitialStatus     string            `json:"initial_status,omitempty"`
	Version           string            `json:"version"`
	PreviousVersionID *uuid.UUID        `json:"previous_version_id,omitempty"`
	Status            ModuleStatus      `json:"status"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

// NewModuleConfig creates a new draft module config with immutable pattern
func NewModuleConfig(tenantID uuid.UUID, name, displayName string, fields []FieldDefinition) ModuleConfig {
	now := time.Now()
	return ModuleConfig{
		ID:          uuid.New(),
		TenantID:    tenantID,
		Name:        name,
		DisplayName: displayName,
		Fields:      copyFields(fields),
		Version:     "1.0.0",
		Status:      ModuleStatusDraft,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// FieldByName returns the field definition for name, if present.
func (mc ModuleConfig) FieldByName(name string) (FieldDefinition, bool) {
	for _, field := range mc.Fields {
		if field.Name == name {
			return field, true
		}
	}
	return FieldDefinition{}, false
}

// UniqueFields returns the fields declared unique, in declaration order.
func (mc ModuleConfig) UniqueFields() []FieldDefinition {
	var unique []FieldDefinition
	for _, field := range mc.Fields {
		if field.Unique {
			unique = append(unique, field)
		}
	}
	return unique
}

// WithField returns a new config with an added/updated field
func (mc ModuleConfig) WithField(field FieldDefinition) ModuleConfig {
	newFields := copyFields(mc.Fields)

	found := false
	for i, existing := range newFields {
		if existing.Name == field.Name {
			newFields[i] = field
			found = true
			break
		}
	}
	if !found {
		newFields = append(newFields, field)
	}

	clone := mc
	clone.Fields = newFields
	clone.UpdatedAt = time.Now()
	return clone
}

// WithoutField returns a new config without the specified field
func (mc ModuleConfig) WithoutField(name string) ModuleConfig {
	newFields := make([]FieldDefinition, 0, len(mc.Fields))
	for _, field := range mc.Fields {
		if field.Name != name {
			newFields = append(newFields, field)
		}
	}

	clone := mc
	clone.Fields = newFields
	clone.UpdatedAt = time.Now()
	return clone
}

// WithStatus returns a new config with updated lifecycle status.
func (mc ModuleConfig) WithStatus(status ModuleStatus) ModuleConfig {
	clone := mc
	clone.Fields = copyFields(mc.Fields)
	clone.Status = status
	clone.UpdatedAt = time.Now()
	return clone
}

// WithLayout returns a new config with updated layout.
func (mc ModuleConfig) WithLayout(layout *LayoutConfig) ModuleConfig {
	clone := mc
	clone.Fields = copyFields(mc.Fields)
	clone.Layout = layout
	clone.UpdatedAt = time.Now()
	return clone
}

// GetFieldsAsJSONB returns the fields as JSONB for database storage
func (mc ModuleConfig) GetFieldsAsJSONB() (json.RawMessage, error) {
	return json.Marshal(mc.Fields)
}

// FromJSONBFields decodes field definitions from JSONB data
func FromJSONBFields(fieldsJSON json.RawMessage) ([]FieldDefinition, error) {
	var fields []FieldDefinition
	err := json.Unmarshal(fieldsJSON, &fields)
	return fields, err
}

// copyFields creates a deep copy of the fields slice to ensure immutability
func copyFields(fields []FieldDefinition) []FieldDefinition {
	if fields == nil {
		return nil
	}
	newFields := make([]FieldDefinition, len(fields))
	copy(newFields, fields)
	return newFields
}

// ComputeNextVersion calculates the next semantic version number based on compatibility.
func ComputeNextVersion(current string, level CompatibilityLevel) (string, error) {
	if current == "" {
		current = "1.0.0"
	}

	parts := strings.Split(current, ".")
	if len(parts) != 3 {
		return "", fmt.Errorf("invalid version format: %s", current)
	}

	major, err := strconv.Atoi(parts[0])
	if err != nil {
		return "", fmt.Errorf("invalid major version: %w", err)
	}
	minor, err := strconv.Atoi(parts[1])
	if err != nil {
		return "", fmt.Errorf("invalid minor version: %w", err)
	}
	patch, err := strconv.Atoi(parts[2])
	if err != nil {
		return "", fmt.Errorf("invalid patch version: %w", err)
	}

	switch level {
	case CompatibilityMajor:
		major++
		minor = 0
		patch = 0
	case CompatibilityMinor:
		minor++
		patch = 0
	default:
		patch++
	}

	return fmt.Sprintf("%d.%d.%d", major, minor, patch), nil
}

// DetermineCompatibility compares field definitions to assess change impact.
func DetermineCompatibility(oldFields, newFields []FieldDefinition) CompatibilityLevel {
	oldMap := make(map[string]FieldDefinition, len(oldFields))
	for _, f := range oldFields {
		oldMap[strings.ToLower(f.Name)] = f
	}

	newMap := make(map[string]FieldDefinition, len(newFields))
	for _, f := range newFields {
		newMap[strings.ToLower(f.Name)] = f
	}

	majorChange := false
	minorChange := false

	for key, oldField := range oldMap {
		newField, ok := newMap[key]
		if !ok {
			majorChange = true
			continue
		}

		if oldField.DataType != newField.DataType {
			majorChange = true
			continue
		}
		if oldField.Required && !newField.Required {
			minorChange = true
		}
		if !oldField.Required && newField.Required {
			majorChange = true
		}
	}

	for key, newField := range newMap {
		if _, ok := oldMap[key]; ok {
			continue
		}
		if newField.Required {
			majorChange = true
		} else {
			minorChange = true
		}
	}

	if majorChange {
		return CompatibilityMajor
	}
	if minorChange {
		return CompatibilityMinor
	}
	return CompatibilityPatch
}

// NewVersionFromExisting clones the config as a new draft version entry.
func NewVersionFromExisting(previous ModuleConfig, updated ModuleConfig, compatibility CompatibilityLevel) (ModuleConfig, error) {
	nextVersion, err := ComputeNextVersion(previous.Version, compatibility)
	if err != nil {
		return ModuleConfig{}, err
	}

	now := time.Now()
	prevID := previous.ID

	return ModuleConfig{
		ID:                uuid.New(),
		TenantID:          previous.TenantID,
		Name:              previous.Name,
		DisplayName:       updated.DisplayName,
		Fields:            copyFields(updated.Fields),
		Layout:            updated.Layout,
		Rules:             updated.Rules,
		Statuses:          updated.Statuses,
		InitialStatus:     updated.InitialStatus,
		Version:           nextVersion,
		PreviousVersionID: &prevID,
		Status:            ModuleStatusDraft,
		CreatedAt:         now,
		UpdatedAt:         now,
	}, nil
}
