package schema

import (
	"context"
	"errors"
	"fmt"

	"github.com/modulith/modulith/internal/auth"
	"github.com/modulith/modulith/internal/domain"
	"github.com/modulith/modulith/internal/repository"
	"github.com/modulith/modulith/internal/schema/validator"

	"github.com/google/uuid"
)

// Registry stores and resolves module configs per (tenant, module name).
type Registry struct {
	repo repository.ModuleConfigRepository
}

// NewRegistry creates a new schema registry.
func NewRegistry(repo repository.ModuleConfigRepository) *Registry {
	return &Registry{repo: repo}
}

// Resolve returns the single active config for (tenant, module), falling back
// to the newest draft/review version when no active version exists so newly
// built modules stay inspectable before activation.
func (r *Registry) Resolve(ctx context.Context, tenantID uuid.UUID, moduleName string) (domain.ModuleConfig, error) {
	config, err := r.repo.GetActive(ctx, tenantID, moduleName)
	if err == nil {
		return config, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return domain.ModuleConfig{}, fmt.Errorf("resolve module %s: %w", moduleName, err)
	}

	config, err = r.repo.GetLatest(ctx, tenantID, moduleName)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ModuleConfig{}, fmt.Errorf("module %s: %w", moduleName, domain.ErrNotFound)
		}
		return domain.ModuleConfig{}, fmt.Errorf("resolve module %s: %w", moduleName, err)
	}
	if config.Status == domain.ModuleStatusArchived {
		return domain.ModuleConfig{}, fmt.Errorf("module %s: %w", moduleName, domain.ErrNotFound)
	}
	return config, nil
}

// Save validates structural integrity and persists the config. When a prior
// version of the module exists, the save lands as a new draft version with a
// semver bump derived from field compatibility.
func (r *Registry) Save(ctx context.Context, actor auth.Actor, config domain.ModuleConfig) (domain.ModuleConfig, error) {
	if err := auth.EnforceTenantScope(actor, config.TenantID); err != nil {
		return domain.ModuleConfig{}, fmt.Errorf("%w: %v", domain.ErrForbidden, err)
	}
	if err := validator.ValidateModuleConfig(config); err != nil {
		return domain.ModuleConfig{}, err
	}

	previous, err := r.repo.GetLatest(ctx, config.TenantID, config.Name)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			return domain.ModuleConfig{}, fmt.Errorf("save module %s: %w", config.Name, err)
		}
		created, err := r.repo.Create(ctx, config)
		if err != nil {
			return domain.ModuleConfig{}, fmt.Errorf("save module %s: %w", config.Name, err)
		}
		return created, nil
	}

	compatibility := domain.DetermineCompatibility(previous.Fields, config.Fields)
	version, err := domain.NewVersionFromExisting(previous, config, compatibility)
	if err != nil {
		return domain.ModuleConfig{}, fmt.Errorf("save module %s: %w", config.Name, err)
	}
	created, err := r.repo.Create(ctx, version)
	if err != nil {
		return domain.ModuleConfig{}, fmt.Errorf("save module %s: %w", config.Name, err)
	}
	return created, nil
}

// Transition moves a config version through its lifecycle. Promoting to
// active requires the admin role and atomically archives any prior active
// version of the same module.
func (r *Registry) Transition(ctx context.Context, actor auth.Actor, tenantID, configID uuid.UUID, target domain.ModuleStatus) (domain.ModuleConfig, error) {
	if err := auth.EnforceTenantScope(actor, tenantID); err != nil {
		return domain.ModuleConfig{}, fmt.Errorf("%w: %v", domain.ErrForbidden, err)
	}

	config, err := r.repo.GetByID(ctx, tenantID, configID)
	if err != nil {
		return domain.ModuleConfig{}, fmt.Errorf("transition module config: %w", err)
	}
	if !config.Status.CanTransition(target) {
		return domain.ModuleConfig{}, domain.NewSchemaError("cannot transition module %s from %s to %s", config.Name, config.Status, target)
	}

	if target == domain.ModuleStatusActive {
		if !actor.IsAdmin() {
			return domain.ModuleConfig{}, fmt.Errorf("promoting to active requires the admin role: %w", domain.ErrForbidden)
		}
		promoted, err := r.repo.Promote(ctx, tenantID, configID)
		if err != nil {
			return domain.ModuleConfig{}, fmt.Errorf("promote module %s: %w", config.Name, err)
		}
		return promoted, nil
	}

	updated, err := r.repo.UpdateStatus(ctx, tenantID, configID, target)
	if err != nil {
		return domain.ModuleConfig{}, fmt.Errorf("transition module %s: %w", config.Name, err)
	}
	return updated, nil
}

// ListVersions returns every stored version of a module, newest first.
func (r *Registry) ListVersions(ctx context.Context, actor auth.Actor, tenantID uuid.UUID, moduleName string) ([]domain.ModuleConfig, error) {
	if err := auth.EnforceTenantScope(actor, tenantID); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrForbidden, err)
	}
	return r.repo.ListVersions(ctx, tenantID, moduleName)
}
