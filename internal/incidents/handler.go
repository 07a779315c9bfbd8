package incidents

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/nimbusops/statuspage/internal/bus"
	"github.com/nimbusops/statuspage/internal/domain"
	"github.com/nimbusops/statuspage/internal/pkg/ctxlog"
	"github.com/nimbusops/statuspage/internal/pkg/httputil"
)

// Pagination limits.
const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// Handler handles HTTP requests for the incidents module.
type Handler struct {
	service   *Service
	publisher bus.Publisher
	validator *validator.Validate
}

// NewHandler creates a new incidents handler.
func NewHandler(service *Service, publisher bus.Publisher) *Handler {
	return &Handler{
		service:   service,
		publisher: publisher,
		validator: validator.New(),
	}
}

// RegisterRoutes registers all HTTP routes for the incidents module.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/incidents", func(r chi.Router) {
		r.Get("/", h.ListIncidents)
		r.Post("/", h.CreateIncident)
		r.Get("/{id}", h.GetIncident)
		r.Patch("/{id}", h.UpdateIncident)
		r.Delete("/{id}", h.DeleteIncident)
		r.Patch("/{id}/updates/{updateID}", h.ChangeUpdateEntry)
	})
}

// CreateIncidentRequest represents the request body for creating an incident.
type CreateIncidentRequest struct {
	Name                         string     `json:"name" validate:"required,min=1,max=255"`
	Type                         string     `json:"type" validate:"required,oneof=realtime scheduled backfilled"`
	Components                   []string   `json:"components"`
	ComponentsImpactStatus       string     `json:"components_impact_status" validate:"omitempty,oneof=operational maintenance degraded_performance partial_outage major_outage"`
	Message                      string     `json:"message"`
	Status                       string     `json:"status" validate:"omitempty,oneof=investigating identified monitoring resolved scheduled in_progress verifying cancelled update"`
	DisplayedAt                  *time.Time `json:"displayed_at"`
	DoNotifySubscribers          bool       `json:"do_notify_subscribers"`
	ScheduledStartTime           *time.Time `json:"scheduled_start_time"`
	ScheduledEndTime             *time.Time `json:"scheduled_end_time"`
	AutoStatusUpdates            bool       `json:"scheduled_auto_status_updates"`
	AutoUpdatesSendNotifications bool       `json:"scheduled_auto_updates_send_notifications"`
}

// ToInput converts the request to a service input.
func (r *CreateIncidentRequest) ToInput() CreateInput {
	return CreateInput{
		Type:                         domain.IncidentType(r.Type),
		Name:                         r.Name,
		Components:                   r.Components,
		ComponentsImpactStatus:       domain.ComponentStatus(r.ComponentsImpactStatus),
		Message:                      r.Message,
		Status:                       domain.UpdateStatus(r.Status),
		DisplayedAt:                  r.DisplayedAt,
		DoNotifySubscribers:          r.DoNotifySubscribers,
		ScheduledStartTime:           r.ScheduledStartTime,
		ScheduledEndTime:             r.ScheduledEndTime,
		AutoStatusUpdates:            r.AutoStatusUpdates,
		AutoUpdatesSendNotifications: r.AutoUpdatesSendNotifications,
	}
}

// UpdateIncidentRequest represents the request body for updating an
// incident. Name is accepted for every variant but only scheduled
// incidents apply it; the others ignore it silently.
type UpdateIncidentRequest struct {
	Name                         *string    `json:"name" validate:"omitempty,min=1,max=255"`
	Components                   *[]string  `json:"components"`
	ComponentsImpactStatus       *string    `json:"components_impact_status" validate:"omitempty,oneof=operational maintenance degraded_performance partial_outage major_outage"`
	Status                       string     `json:"status" validate:"omitempty,oneof=investigating identified monitoring resolved scheduled in_progress verifying cancelled update"`
	Message                      string     `json:"message"`
	DisplayedAt                  *time.Time `json:"displayed_at"`
	DoNotifySubscribers          bool       `json:"do_notify_subscribers"`
	ScheduledStartTime           *time.Time `json:"scheduled_start_time"`
	ScheduledEndTime             *time.Time `json:"scheduled_end_time"`
	AutoStatusUpdates            *bool      `json:"scheduled_auto_status_updates"`
	AutoUpdatesSendNotifications *bool      `json:"scheduled_auto_updates_send_notifications"`
}

// ToInput converts the request to a service input.
func (r *UpdateIncidentRequest) ToInput() UpdateInput {
	in := UpdateInput{
		Name:                         r.Name,
		Components:                   r.Components,
		Status:                       domain.UpdateStatus(r.Status),
		Message:                      r.Message,
		DisplayedAt:                  r.DisplayedAt,
		DoNotifySubscribers:          r.DoNotifySubscribers,
		ScheduledStartTime:           r.ScheduledStartTime,
		ScheduledEndTime:             r.ScheduledEndTime,
		AutoStatusUpdates:            r.AutoStatusUpdates,
		AutoUpdatesSendNotifications: r.AutoUpdatesSendNotifications,
	}
	if r.ComponentsImpactStatus != nil {
		impact := domain.ComponentStatus(*r.ComponentsImpactStatus)
		in.ComponentsImpactStatus = &impact
	}
	return in
}

// ChangeUpdateEntryRequest represents the request body for editing a
// historical update entry.
type ChangeUpdateEntryRequest struct {
	Message     *string    `json:"message" validate:"omitempty,min=1"`
	DisplayedAt *time.Time `json:"displayed_at"`
}

// CreateIncident handles POST /incidents.
func (h *Handler) CreateIncident(w http.ResponseWriter, r *http.Request) {
	var req CreateIncidentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	incident, err := h.service.Create(r.Context(), req.ToInput())
	if err != nil {
		h.handleServiceError(r.Context(), w, err)
		return
	}

	h.publishUpsert(r.Context(), incident)
	httputil.Success(w, http.StatusCreated, incident)
}

// GetIncident handles GET /incidents/{id}.
func (h *Handler) GetIncident(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	incident, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.handleServiceError(r.Context(), w, err)
		return
	}

	httputil.Success(w, http.StatusOK, incident)
}

// ListIncidents handles GET /incidents.
func (h *Handler) ListIncidents(w http.ResponseWriter, r *http.Request) {
	filter := Filter{Limit: DefaultListLimit}

	if v := r.URL.Query().Get("type"); v != "" {
		incidentType := domain.IncidentType(v)
		if !incidentType.IsValid() {
			httputil.Error(w, http.StatusBadRequest, "invalid incident type")
			return
		}
		filter.Type = &incidentType
	}
	if v := r.URL.Query().Get("is_resolved"); v != "" {
		resolved := v == "true"
		filter.IsResolved = &resolved
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 1 || limit > MaxListLimit {
			httputil.Error(w, http.StatusBadRequest, "invalid limit")
			return
		}
		filter.Limit = limit
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		offset, err := strconv.Atoi(v)
		if err != nil || offset < 0 {
			httputil.Error(w, http.StatusBadRequest, "invalid offset")
			return
		}
		filter.Offset = offset
	}

	incidents, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.handleServiceError(r.Context(), w, err)
		return
	}

	httputil.Success(w, http.StatusOK, incidents)
}

// UpdateIncident handles PATCH /incidents/{id}.
func (h *Handler) UpdateIncident(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req UpdateIncidentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	incident, err := h.service.Update(r.Context(), id, req.ToInput())
	if err != nil {
		h.handleServiceError(r.Context(), w, err)
		return
	}

	h.publishUpsert(r.Context(), incident)
	httputil.Success(w, http.StatusOK, incident)
}

// DeleteIncident handles DELETE /incidents/{id}.
func (h *Handler) DeleteIncident(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.service.Delete(r.Context(), id); err != nil {
		h.handleServiceError(r.Context(), w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ChangeUpdateEntry handles PATCH /incidents/{id}/updates/{updateID}.
func (h *Handler) ChangeUpdateEntry(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	updateID := chi.URLParam(r, "updateID")

	var req ChangeUpdateEntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	incident, err := h.service.ChangeUpdateEntry(r.Context(), id, updateID, ChangeEntryInput{
		Message:     req.Message,
		DisplayedAt: req.DisplayedAt,
	})
	if err != nil {
		h.handleServiceError(r.Context(), w, err)
		return
	}

	h.publishUpsert(r.Context(), incident)
	httputil.Success(w, http.StatusOK, incident)
}

// publishUpsert fires the route-layer upsert event after a successful
// mutation. Best effort: the mutation already committed.
func (h *Handler) publishUpsert(ctx context.Context, incident *domain.Incident) {
	if err := h.publisher.Publish(ctx, incident, bus.TopicIncidents, bus.RoutingKeyUpsert); err != nil {
		ctxlog.FromContext(ctx).Error("failed to publish incident upsert",
			"incident_id", incident.ID,
			"error", err,
		)
		recordBusPublish(bus.RoutingKeyUpsert, "failed")
		return
	}
	recordBusPublish(bus.RoutingKeyUpsert, "success")
}

// handleServiceError maps service errors to HTTP responses.
func (h *Handler) handleServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	httputil.HandleError(ctx, w, err, []httputil.ErrorMapping{
		{Error: ErrValidation, Status: http.StatusBadRequest},
		{Error: ErrInvalidDate, Status: http.StatusBadRequest},
		{Error: ErrIncidentNotFound, Status: http.StatusNotFound},
		{Error: ErrIncidentUpdateNotFound, Status: http.StatusNotFound},
		{Error: ErrUpdateNotAllowed, Status: http.StatusConflict},
		{Error: ErrInvalidIncidentStatus, Status: http.StatusConflict},
	})
}
