package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Record is one schemaless data instance of a module. Data keys are a subset
// of the module's field names at validation time; values conform to each
// field's data type. Version backs the optimistic concurrency check.
type Record struct {
	ID              uuid.UUID      `json:"id"`
	TenantID        uuid.UUID      `json:"tenant_id"`
	ModuleName      string         `json:"module_name"`
	Data            map[string]any `json:"data"`
	Status          string         `json:"status"`
	CreatedBy       uuid.UUID      `json:"created_by"`
	ConvertedFromID *uuid.UUID     `json:"converted_from_id,omitempty"`
	ConvertedToID   *uuid.UUID     `json:"converted_to_id,omitempty"`
	Version         int64          `json:"version"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// NewRecord creates a new record with immutable pattern
func NewRecord(tenantID uuid.UUID, moduleName string, data map[string]any, status string, createdBy uuid.UUID) Record {
	now := time.Now()
	return Record{
		ID:         uuid.New(),
		TenantID:   tenantID,
		ModuleName: moduleName,
		Data:       copyData(data),
		Status:     status,
		CreatedBy:  createdBy,
		Version:    1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// WithData returns a new record with replaced data
func (r Record) WithData(data map[string]any) Record {
	clone := r
	clone.Data = copyData(data)
	clone.UpdatedAt = time.Now()
	return clone
}

// WithValue returns a new record with an added/updated data value
func (r Record) WithValue(key string, value any) Record {
	newData := copyData(r.Data)
	newData[key] = value

	clone := r
	clone.Data = newData
	clone.UpdatedAt = time.Now()
	return clone
}

// WithStatus returns a new record with updated status
func (r Record) WithStatus(status string) Record {
	clone := r
	clone.Data = copyData(r.Data)
	clone.Status = status
	clone.UpdatedAt = time.Now()
	return clone
}

// WithConvertedTo returns a new record linked to its conversion target
func (r Record) WithConvertedTo(targetID uuid.UUID) Record {
	clone := r
	clone.Data = copyData(r.Data)
	clone.ConvertedToID = &targetID
	clone.UpdatedAt = time.Now()
	return clone
}

// WithConvertedFrom returns a new record linked to its conversion source
func (r Record) WithConvertedFrom(sourceID uuid.UUID) Record {
	clone := r
	clone.Data = copyData(r.Data)
	clone.ConvertedFromID = &sourceID
	clone.UpdatedAt = time.Now()
	return clone
}

// ValueForField resolves a field reference against the record. The reserved
// key "status" reads the record status; everything else reads Data.
func (r Record) ValueForField(name string) any {
	if name == "status" {
		return r.Status
	}
	if r.Data == nil {
		return nil
	}
	return r.Data[name]
}

// GetDataAsJSONB returns the data as JSONB for database storage
func (r *Record) GetDataAsJSONB() (json.RawMessage, error) {
	if r.Data == nil {
		r.Data = make(map[string]any)
	}
	return json.Marshal(r.Data)
}

// FromJSONBData creates a data map from JSONB data
func FromJSONBData(dataJSON json.RawMessage) (map[string]any, error) {
	var data map[string]any
	err := json.Unmarshal(dataJSON, &data)
	return data, err
}

// copyData creates a shallow copy of the data map to ensure immutability of
// the map itself; nested values are shared.
func copyData(data map[string]any) map[string]any {
	newData := make(map[string]any, len(data))
	for k, v := range data {
		newData[k] = v
	}
	return newData
}

// ActivityKind distinguishes timeline entry types on a record.
type ActivityKind string

const (
	ActivityKindActivity ActivityKind = "activity"
	ActivityKindNote     ActivityKind = "note"
)

// RecordActivity is a timeline entry appended to a record. It is metadata
// about the record, not part of its schema-validated data.
type RecordActivity struct {
	ID        uuid.UUID    `json:"id"`
	TenantID  uuid.UUID    `json:"tenant_id"`
	RecordID  uuid.UUID    `json:"record_id"`
	Kind      ActivityKind `json:"kind"`
	Title     string       `json:"title"`
	Body      string       `json:"body,omitempty"`
	CreatedBy uuid.UUID    `json:"created_by"`
	CreatedAt time.Time    `json:"created_at"`
}

// NewRecordActivity creates a timeline entry for a record.
func NewRecordActivity(tenantID, recordID uuid.UUID, kind ActivityKind, title, body string, createdBy uuid.UUID) RecordActivity {
	return RecordActivity{
		ID:        uuid.New(),
		TenantID:  tenantID,
		RecordID:  recordID,
		Kind:      kind,
		Title:     title,
		Body:      body,
		CreatedBy: createdBy,
		CreatedAt: time.Now(),
	}
}
