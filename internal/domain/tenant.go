package domain

import (
	"time"

	"github.com/google/uuid"
)

// Tenant is the isolation boundary. Every module config, record, and workflow
// carries a tenant id, and no read or write may cross it.
type Tenant struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Plan      string    `json:"plan"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewTenant creates a new tenant with immutable pattern
func NewTenant(name, plan string) Tenant {
	now := time.Now()
	return Tenant{
		ID:        uuid.New(),
		Name:      name,
		Plan:      plan,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// WithName returns a new tenant with updated name
func (t Tenant) WithName(name string) Tenant {
	return Tenant{
		ID:        t.ID,
		Name:      name,
		Plan:      t.Plan,
		CreatedAt: t.CreatedAt,
		UpdatedAt: time.Now(),
	}
}

// WithPlan returns a new tenant with updated plan
func (t Tenant) WithPlan(plan string) Tenant {
	return Tenant{
		ID:        t.ID,
		Name:      t.Name,
		Plan:      plan,
		CreatedAt: t.CreatedAt,
		UpdatedAt: time.Now(),
	}
}
