package auth

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Role names accepted from the external session layer.
const (
	RoleAdmin  = "admin"
	RoleMember = "member"
)

// Actor is the pre-validated caller identity handed to every core entry
// point. The core trusts this triple and performs no authentication itself.
type Actor struct {
	TenantID uuid.UUID
	ID       uuid.UUID
	Role     string
}

// IsAdmin reports whether the actor holds the admin role.
func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

type contextKey string

const actorKey contextKey = "actor"

// ContextWithActor returns a new context carrying the authenticated actor.
func ContextWithActor(ctx context.Context, actor Actor) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, actorKey, actor)
}

// ActorFromContext retrieves the authenticated actor from the context, if any.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	if ctx == nil {
		return Actor{}, false
	}
	value := ctx.Value(actorKey)
	if value == nil {
		return Actor{}, false
	}
	actor, ok := value.(Actor)
	if !ok || actor.TenantID == uuid.Nil {
		return Actor{}, false
	}
	return actor, true
}

// EnforceTenantScope ensures the provided tenant matches the actor's scope.
func EnforceTenantScope(actor Actor, tenantID uuid.UUID) error {
	if tenantID == uuid.Nil {
		return fmt.Errorf("tenantId is required")
	}
	if actor.TenantID != tenantID {
		return fmt.Errorf("tenantId %s does not match authenticated scope", tenantID)
	}
	return nil
}
