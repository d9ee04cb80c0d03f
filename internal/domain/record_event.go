package domain

import (
	"fmt"

	"github.com/google/uuid"
)

// MutationKind identifies the kind of record mutation an event describes.
type MutationKind string

const (
	MutationCreated   MutationKind = "created"
	MutationUpdated   MutationKind = "updated"
	MutationDeleted   MutationKind = "deleted"
	MutationScheduled MutationKind = "scheduled"
)

// FieldChange captures one field-level difference produced by an update.
// The reserved field name "status" carries record status transitions.
type FieldChange struct {
	Field string `json:"field"`
	Old   any    `json:"old,omitempty"`
	New   any    `json:"new,omitempty"`
}

// RecordMutation is handed to the workflow engine after a record write
// commits. Depth counts action-triggered re-entries so automation loops can
// be cut off at a fixed bound.
type RecordMutation struct {
	TenantID   uuid.UUID
	ModuleName string
	Kind       MutationKind
	Record     Record
	Changes    []FieldChange
	Actor      uuid.UUID
	Depth      int
}

// Changed reports whether the mutation includes a change for field.
func (m RecordMutation) Changed(field string) bool {
	for _, change := range m.Changes {
		if change.Field == field {
			return true
		}
	}
	return false
}

// DiffData computes field-level changes between two data maps. Keys present
// in either map are compared by their formatted value.
func DiffData(oldData, newData map[string]any) []FieldChange {
	var changes []FieldChange

	seen := make(map[string]struct{}, len(oldData)+len(newData))
	appendChange := func(key string) {
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		oldValue, oldOK := oldData[key]
		newValue, newOK := newData[key]
		if oldOK && newOK && fmt.Sprintf("%v", oldValue) == fmt.Sprintf("%v", newValue) {
			return
		}
		if !oldOK && !newOK {
			return
		}
		changes = append(changes, FieldChange{Field: key, Old: oldValue, New: newValue})
	}

	for key := range oldData {
		appendChange(key)
	}
	for key := range newData {
		appendChange(key)
	}

	return changes
}
