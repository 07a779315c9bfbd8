// Package incidents implements the incident lifecycle engine: entity
// validation, the persistence path shared by all variants, the per-variant
// transition rules and the auto-update passes for scheduled maintenance.
package incidents

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nimbusops/statuspage/internal/bus"
	"github.com/nimbusops/statuspage/internal/domain"
	"github.com/nimbusops/statuspage/internal/pkg/ctxlog"
)

// ID prefixes are part of the wire contract.
const (
	incidentIDPrefix = "IC"
	updateIDPrefix   = "IU"
)

// NewIncidentID generates an opaque incident id.
func NewIncidentID() string {
	return incidentIDPrefix + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// NewUpdateID generates an opaque incident-update id.
func NewUpdateID() string {
	return updateIDPrefix + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Common holds the persistence and validation primitives shared by the
// three variant repositories.
//
// Every mutation is read-modify-write with no concurrency token: a human
// edit racing the auto-update scheduler can silently lose one side's
// change. Known limitation carried over deliberately.
type Common struct {
	store     Store
	validator *Validator
	publisher bus.Publisher
	now       func() time.Time
}

// NewCommon creates the shared repository core.
func NewCommon(store Store, publisher bus.Publisher) *Common {
	return &Common{
		store:     store,
		validator: NewValidator(),
		publisher: publisher,
		now:       time.Now,
	}
}

// Validate delegates to the entity validator.
func (c *Common) Validate(incident *domain.Incident) error {
	return c.validator.Validate(incident)
}

// Save validates and persists the incident. An incident without an id is
// treated as new: it gets an id and created_at. updated_at is refreshed on
// every save. The store's return value is ignored; callers receive the
// exact validated document that was written.
func (c *Common) Save(ctx context.Context, incident *domain.Incident) (*domain.Incident, error) {
	now := c.now().UTC()
	isNew := incident.ID == ""
	if isNew {
		incident.ID = NewIncidentID()
		incident.CreatedAt = now
	}
	incident.UpdatedAt = now

	if err := c.validator.Validate(incident); err != nil {
		return nil, err
	}

	if isNew {
		if err := c.store.Insert(ctx, incident); err != nil {
			return nil, fmt.Errorf("insert incident: %w", err)
		}
		return incident, nil
	}

	if _, err := c.store.Update(ctx, incident); err != nil {
		return nil, fmt.Errorf("update incident: %w", err)
	}
	return incident, nil
}

// Remove deletes the incident by id. A delete that matches zero documents
// means the caller held a stale or wrong id, not a storage fault.
func (c *Common) Remove(ctx context.Context, incident *domain.Incident) error {
	deleted, err := c.store.Remove(ctx, incident.ID)
	if err != nil {
		return fmt.Errorf("remove incident: %w", err)
	}
	if deleted == 0 {
		return fmt.Errorf("%w: %s", ErrIncidentNotFound, incident.ID)
	}
	return nil
}

// UpdateEntryInput carries the caller-settable fields of a new update
// entry. Ids and timestamps are never trusted from callers.
type UpdateEntryInput struct {
	Message             string
	Status              domain.UpdateStatus
	DisplayedAt         *time.Time
	DoNotifySubscribers bool
}

// BuildUpdateEntry projects the allowed fields into a fresh update entry
// with defaults filled (displayed_at = now, do_notify_subscribers = false).
func (c *Common) BuildUpdateEntry(in UpdateEntryInput) domain.IncidentUpdate {
	now := c.now().UTC()
	displayedAt := now
	if in.DisplayedAt != nil {
		displayedAt = in.DisplayedAt.UTC()
	}
	return domain.IncidentUpdate{
		ID:                  NewUpdateID(),
		Message:             in.Message,
		Status:              in.Status,
		DisplayedAt:         displayedAt,
		DoNotifySubscribers: in.DoNotifySubscribers,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
}

// ChangeEntryInput carries the mutable fields of a historical update entry.
type ChangeEntryInput struct {
	Message     *string
	DisplayedAt *time.Time
}

// ChangeUpdateEntry edits message/displayed_at of one existing update entry
// and re-saves the whole incident. This is the only path that mutates a
// historical entry in place; every other mutation appends.
func (c *Common) ChangeUpdateEntry(ctx context.Context, incident *domain.Incident, updateID string, in ChangeEntryInput) (*domain.Incident, error) {
	entry := incident.FindUpdate(updateID)
	if entry == nil {
		return nil, fmt.Errorf("%w: %s", ErrIncidentUpdateNotFound, updateID)
	}

	if in.Message != nil {
		entry.Message = *in.Message
	}
	if in.DisplayedAt != nil {
		entry.DisplayedAt = in.DisplayedAt.UTC()
	}
	entry.UpdatedAt = c.now().UTC()

	return c.Save(ctx, incident)
}

// SetResolvedStatus recomputes is_resolved and resolved_at from the updates
// slice. Idempotent: an already-set resolved_at is kept so repeated calls
// do not shift the recorded resolution time.
func (c *Common) SetResolvedStatus(incident *domain.Incident) *domain.Incident {
	resolved := incident.ResolvedUpdate()
	if resolved == nil {
		incident.IsResolved = false
		incident.ResolvedAt = nil
		return incident
	}

	incident.IsResolved = true
	if incident.ResolvedAt == nil {
		resolvedAt := resolved.UpdatedAt
		incident.ResolvedAt = &resolvedAt
	}
	return incident
}

// PublishNewUpdate re-validates the incident and publishes it on the
// incidents topic with the new-update routing key. The persistence write
// has already committed when this runs, so failures are logged and
// swallowed: they must never fail the enclosing mutation.
func (c *Common) PublishNewUpdate(ctx context.Context, incident *domain.Incident) {
	logger := ctxlog.FromContext(ctx)

	if err := c.validator.Validate(incident); err != nil {
		logger.Error("refusing to publish invalid incident", "incident_id", incident.ID, "error", err)
		recordBusPublish(bus.RoutingKeyNewUpdate, "invalid")
		return
	}

	if err := c.publisher.Publish(ctx, incident, bus.TopicIncidents, bus.RoutingKeyNewUpdate); err != nil {
		logger.Error("failed to publish incident update", "incident_id", incident.ID, "error", err)
		recordBusPublish(bus.RoutingKeyNewUpdate, "failed")
		return
	}

	recordBusPublish(bus.RoutingKeyNewUpdate, "success")
}
