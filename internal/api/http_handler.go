package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/modulith/modulith/internal/auth"
	"github.com/modulith/modulith/internal/conversion"
	"github.com/modulith/modulith/internal/domain"
	"github.com/modulith/modulith/internal/export"
	"github.com/modulith/modulith/internal/records"
	"github.com/modulith/modulith/internal/repository"
	"github.com/modulith/modulith/internal/schema"
)

// Handler is the HTTP surface over the engines. Authentication happens in a
// fronting session layer; the handler only reads the pre-validated actor
// headers and builds the auth.Actor handed to every core entry point.
type Handler struct {
	registry    *schema.Registry
	records     *records.Service
	conversions *conversion.Engine
	exports     *export.Service
	workflows   repository.WorkflowRepository
	executions  repository.WorkflowExecutionRepository
}

// NewHandler builds the API handler and its route table.
func NewHandler(
	registry *schema.Registry,
	recordService *records.Service,
	conversions *conversion.Engine,
	exports *export.Service,
	workflows repository.WorkflowRepository,
	executions repository.WorkflowExecutionRepository,
) http.Handler {
	h := &Handler{
		registry:    registry,
		records:     recordService,
		conversions: conversions,
		exports:     exports,
		workflows:   workflows,
		executions:  executions,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/modules", h.withActor(h.saveModule))
	mux.HandleFunc("GET /api/modules/{name}", h.withActor(h.getModule))
	mux.HandleFunc("GET /api/modules/{name}/versions", h.withActor(h.listModuleVersions))
	mux.HandleFunc("POST /api/modules/versions/{id}/transition", h.withActor(h.transitionModule))

	mux.HandleFunc("POST /api/modules/{name}/records", h.withActor(h.createRecord))
	mux.HandleFunc("GET /api/modules/{name}/records", h.withActor(h.listRecords))
	mux.HandleFunc("GET /api/modules/{name}/records/{id}", h.withActor(h.getRecord))
	mux.HandleFunc("PATCH /api/modules/{name}/records/{id}", h.withActor(h.updateRecord))
	mux.HandleFunc("DELETE /api/modules/{name}/records/{id}", h.withActor(h.deleteRecord))
	mux.HandleFunc("GET /api/modules/{name}/export", h.withActor(h.exportRecords))

	mux.HandleFunc("POST /api/modules/{name}/records/{id}/activities", h.withActor(h.addActivity))
	mux.HandleFunc("POST /api/modules/{name}/records/{id}/notes", h.withActor(h.addNote))
	mux.HandleFunc("GET /api/modules/{name}/records/{id}/timeline", h.withActor(h.listTimeline))
	mux.HandleFunc("GET /api/modules/{name}/records/{id}/executions", h.withActor(h.listRecordExecutions))

	mux.HandleFunc("POST /api/conversions/{flow}/records/{id}", h.withActor(h.convertRecord))

	mux.HandleFunc("POST /api/workflows", h.withActor(h.createWorkflow))
	mux.HandleFunc("GET /api/workflows", h.withActor(h.listWorkflows))
	mux.HandleFunc("PUT /api/workflows/{id}", h.withActor(h.updateWorkflow))
	mux.HandleFunc("GET /api/workflows/{id}/executions", h.withActor(h.listWorkflowExecutions))

	return mux
}

type actorHandler func(w http.ResponseWriter, r *http.Request, actor auth.Actor)

// withActor reads the session-provided identity headers. Requests without a
// tenant scope never reach the engines.
func (h *Handler) withActor(next actorHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, err := uuid.Parse(strings.TrimSpace(r.Header.Get("X-Tenant-ID")))
		if err != nil {
			http.Error(w, "missing or invalid X-Tenant-ID header", http.StatusUnauthorized)
			return
		}
		actorID, err := uuid.Parse(strings.TrimSpace(r.Header.Get("X-Actor-ID")))
		if err != nil {
			http.Error(w, "missing or invalid X-Actor-ID header", http.StatusUnauthorized)
			return
		}
		role := strings.TrimSpace(r.Header.Get("X-Role"))
		if role == "" {
			role = auth.RoleMember
		}

		actor := auth.Actor{TenantID: tenantID, ID: actorID, Role: role}
		next(w, r.WithContext(auth.ContextWithActor(r.Context(), actor)), actor)
	}
}

type moduleConfigPayload struct {
	Name          string                   `json:"name"`
	DisplayName   string                   `json:"displayName"`
	Fields        []domain.FieldDefinition `json:"fields"`
	Layout        *domain.LayoutConfig     `json:"layout,omitempty"`
	Rules         []domain.ValidationRule  `json:"rules,omitempty"`
	Statuses      []string                 `json:"statuses,omitempty"`
	InitialStatus string                   `json:"initialStatus,omitempty"`
}

func (h *Handler) saveModule(w http.ResponseWriter, r *http.Request, actor auth.Actor) {
	defer r.Body.Close()
	var payload moduleConfigPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, fmt.Sprintf("invalid payload: %v", err), http.StatusBadRequest)
		return
	}

	config := domain.NewModuleConfig(actor.TenantID, payload.Name, payload.DisplayName, payload.Fields)
	config.Layout = payload.Layout
	config.Rules = payload.Rules
	config.Statuses = payload.Statuses
	config.InitialStatus = payload.InitialStatus

	saved, err := h.registry.Save(r.Context(), actor, config)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, saved)
}

func (h *Handler) getModule(w http.ResponseWriter, r *http.Request, actor auth.Actor) {
	config, err := h.records.ResolveModule(r.Context(), actor, r.PathValue("name"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, config)
}

func (h *Handler) listModuleVersions(w http.ResponseWriter, r *http.Request, actor auth.Actor) {
	versions, err := h.registry.ListVersions(r.Context(), actor, actor.TenantID, r.PathValue("name"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, versions)
}

func (h *Handler) transitionModule(w http.ResponseWriter, r *http.Request, actor auth.Actor) {
	configID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid config id: %v", err), http.StatusBadRequest)
		return
	}
	defer r.Body.Close()
	var payload struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, fmt.Sprintf("invalid payload: %v", err), http.StatusBadRequest)
		return
	}

	updated, err := h.registry.Transition(r.Context(), actor, actor.TenantID, configID,
		domain.ModuleStatus(strings.ToUpper(strings.TrimSpace(payload.Status))))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *Handler) createRecord(w http.ResponseWriter, r *http.Request, actor auth.Actor) {
	defer r.Body.Close()
	var payload map[string]any
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, fmt.Sprintf("invalid payload: %v", err), http.StatusBadRequest)
		return
	}
	record, err := h.records.Create(r.Context(), actor, r.PathValue("name"), payload)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, record)
}

func (h *Handler) listRecords(w http.ResponseWriter, r *http.Request, actor auth.Actor) {
	filter, err := parseRecordFilter(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	limit, offset, err := parsePagination(r, 50)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	result, total, err := h.records.List(r.Context(), actor, r.PathValue("name"), filter, limit, offset)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"records": result,
		"total":   total,
	})
}

func (h *Handler) getRecord(w http.ResponseWriter, r *http.Request, actor auth.Actor) {
	recordID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid record id: %v", err), http.StatusBadRequest)
		return
	}
	record, err := h.records.Get(r.Context(), actor, r.PathValue("name"), recordID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (h *Handler) updateRecord(w http.ResponseWriter, r *http.Request, actor auth.Actor) {
	recordID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid record id: %v", err), http.StatusBadRequest)
		return
	}
	defer r.Body.Close()
	var patch map[string]any
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		http.Error(w, fmt.Sprintf("invalid payload: %v", err), http.StatusBadRequest)
		return
	}
	record, err := h.records.Update(r.Context(), actor, r.PathValue("name"), recordID, patch)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (h *Handler) deleteRecord(w http.ResponseWriter, r *http.Request, actor auth.Actor) {
	recordID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid record id: %v", err), http.StatusBadRequest)
		return
	}
	if err := h.records.Delete(r.Context(), actor, r.PathValue("name"), recordID); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) exportRecords(w http.ResponseWriter, r *http.Request, actor auth.Actor) {
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	filter, err := parseRecordFilter(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	moduleName := r.PathValue("name")
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", format.FileName(moduleName)))

	if err := h.exports.Export(r.Context(), actor, moduleName, filter, format, w); err != nil {
		// Headers may already be out; log-only would hide the failure, so
		// surface it when nothing was written yet.
		h.writeError(w, err)
	}
}

type timelinePayload struct {
	Title string `json:"title"`
	Body  string `json:"body,omitempty"`
}

type timelineAppender func(ctx context.Context, actor auth.Actor, moduleName string, recordID uuid.UUID, title, body string) (domain.RecordActivity, error)

func (h *Handler) addActivity(w http.ResponseWriter, r *http.Request, actor auth.Actor) {
	h.appendTimeline(w, r, actor, h.records.AddActivity)
}

func (h *Handler) addNote(w http.ResponseWriter, r *http.Request, actor auth.Actor) {
	h.appendTimeline(w, r, actor, h.records.AddNote)
}

func (h *Handler) appendTimeline(w http.ResponseWriter, r *http.Request, actor auth.Actor, appendEntry timelineAppender) {
	recordID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid record id: %v", err), http.StatusBadRequest)
		return
	}
	defer r.Body.Close()
	var payload timelinePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, fmt.Sprintf("invalid payload: %v", err), http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(payload.Title) == "" {
		http.Error(w, "title is required", http.StatusBadRequest)
		return
	}

	entry, err := appendEntry(r.Context(), actor, r.PathValue("name"), recordID, payload.Title, payload.Body)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

func (h *Handler) listTimeline(w http.ResponseWriter, r *http.Request, actor auth.Actor) {
	recordID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid record id: %v", err), http.StatusBadRequest)
		return
	}
	timeline, err := h.records.ListTimeline(r.Context(), actor, r.PathValue("name"), recordID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, timeline)
}

func (h *Handler) listRecordExecutions(w http.ResponseWriter, r *http.Request, actor auth.Actor) {
	recordID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid record id: %v", err), http.StatusBadRequest)
		return
	}
	executions, err := h.executions.ListByRecord(r.Context(), actor.TenantID, recordID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, executions)
}

func (h *Handler) convertRecord(w http.ResponseWriter, r *http.Request, actor auth.Actor) {
	recordID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid record id: %v", err), http.StatusBadRequest)
		return
	}
	result, err := h.conversions.Convert(r.Context(), actor, r.PathValue("flow"), recordID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type workflowPayload struct {
	ModuleName string                  `json:"moduleName"`
	Name       string                  `json:"name"`
	Trigger    domain.Trigger          `json:"trigger"`
	Conditions *domain.ConditionGroup  `json:"conditions,omitempty"`
	Actions    []domain.WorkflowAction `json:"actions"`
	IsActive   *bool                   `json:"isActive,omitempty"`
	Priority   int                     `json:"priority"`
}

func (h *Handler) createWorkflow(w http.ResponseWriter, r *http.Request, actor auth.Actor) {
	defer r.Body.Close()
	var payload workflowPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, fmt.Sprintf("invalid payload: %v", err), http.StatusBadRequest)
		return
	}
	if payload.ModuleName == "" || payload.Name == "" || len(payload.Actions) == 0 {
		http.Error(w, "moduleName, name and actions are required", http.StatusBadRequest)
		return
	}

	workflow := domain.NewWorkflow(actor.TenantID, payload.ModuleName, payload.Name, payload.Trigger, payload.Actions).
		WithConditions(payload.Conditions).
		WithPriority(payload.Priority)
	if payload.IsActive != nil {
		workflow = workflow.WithActive(*payload.IsActive)
	}

	created, err := h.workflows.Create(r.Context(), workflow)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) listWorkflows(w http.ResponseWriter, r *http.Request, actor auth.Actor) {
	moduleName := strings.TrimSpace(r.URL.Query().Get("module"))
	if moduleName == "" {
		http.Error(w, "module query parameter is required", http.StatusBadRequest)
		return
	}
	workflows, err := h.workflows.List(r.Context(), actor.TenantID, moduleName)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, workflows)
}

func (h *Handler) updateWorkflow(w http.ResponseWriter, r *http.Request, actor auth.Actor) {
	workflowID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid workflow id: %v", err), http.StatusBadRequest)
		return
	}
	existing, err := h.workflows.GetByID(r.Context(), actor.TenantID, workflowID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	defer r.Body.Close()
	var payload workflowPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, fmt.Sprintf("invalid payload: %v", err), http.StatusBadRequest)
		return
	}

	if payload.Name != "" {
		existing.Name = payload.Name
	}
	if payload.Trigger.Type != "" {
		existing.Trigger = payload.Trigger
	}
	if len(payload.Actions) > 0 {
		existing.Actions = payload.Actions
	}
	existing = existing.WithConditions(payload.Conditions).WithPriority(payload.Priority)
	if payload.IsActive != nil {
		existing = existing.WithActive(*payload.IsActive)
	}

	updated, err := h.workflows.Update(r.Context(), existing)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *Handler) listWorkflowExecutions(w http.ResponseWriter, r *http.Request, actor auth.Actor) {
	workflowID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid workflow id: %v", err), http.StatusBadRequest)
		return
	}
	executions, err := h.executions.ListByWorkflow(r.Context(), actor.TenantID, workflowID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, executions)
}

// writeError maps engine errors to HTTP statuses. Validation errors carry the
// full field error list so clients can render every failure at once.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	if validationErr, ok := domain.AsValidationError(err); ok {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":  "validation failed",
			"fields": validationErr.Errors,
		})
		return
	}

	var schemaErr *domain.SchemaError
	if errors.As(err, &schemaErr) {
		http.Error(w, schemaErr.Error(), http.StatusBadRequest)
		return
	}

	switch {
	case errors.Is(err, domain.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, domain.ErrForbidden):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, domain.ErrConflict), errors.Is(err, domain.ErrAlreadyConverted):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, domain.ErrRecursionLimit):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func parseRecordFilter(r *http.Request) (*domain.RecordFilter, error) {
	query := r.URL.Query()
	filter := &domain.RecordFilter{Status: strings.TrimSpace(query.Get("status"))}

	for _, raw := range query["where"] {
		key, value, found := strings.Cut(raw, ":")
		if !found || strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("where parameter must be key:value, got %q", raw)
		}
		filter.PropertyFilters = append(filter.PropertyFilters, domain.PropertyFilter{
			Key:   strings.TrimSpace(key),
			Value: value,
		})
	}

	if filter.Status == "" && len(filter.PropertyFilters) == 0 {
		return nil, nil
	}
	return filter, nil
}

func parsePagination(r *http.Request, defaultLimit int) (limit, offset int, err error) {
	limit = defaultLimit
	query := r.URL.Query()
	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		parsed, parseErr := strconv.Atoi(raw)
		if parseErr != nil || parsed <= 0 {
			return 0, 0, fmt.Errorf("limit must be a positive integer")
		}
		limit = parsed
	}
	if raw := strings.TrimSpace(query.Get("offset")); raw != "" {
		parsed, parseErr := strconv.Atoi(raw)
		if parseErr != nil || parsed < 0 {
			return 0, 0, fmt.Errorf("offset must be zero or positive")
		}
		offset = parsed
	}
	return limit, offset, nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}
