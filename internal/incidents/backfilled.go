package incidents

import (
	"context"
	"time"

	"github.com/nimbusops/statuspage/internal/domain"
)

// BackfilledRepository implements the backfilled variant: an incident
// logged after the fact, already closed at creation time.
type BackfilledRepository struct {
	common *Common
}

// NewBackfilledRepository creates the backfilled variant repository.
func NewBackfilledRepository(common *Common) *BackfilledRepository {
	return &BackfilledRepository{common: common}
}

// CreateBackfilledInput holds data for creating a backfilled incident.
// No status field: the single update entry is always resolved.
type CreateBackfilledInput struct {
	Name                   string
	Components             []string
	ComponentsImpactStatus domain.ComponentStatus
	Message                string
	DisplayedAt            *time.Time
	DoNotifySubscribers    bool
}

// Create builds the incident with exactly one update entry whose status is
// forced to resolved, regardless of input.
func (r *BackfilledRepository) Create(ctx context.Context, in CreateBackfilledInput) (*domain.Incident, error) {
	entry := r.common.BuildUpdateEntry(UpdateEntryInput{
		Message:             in.Message,
		Status:              domain.UpdateStatusResolved,
		DisplayedAt:         in.DisplayedAt,
		DoNotifySubscribers: in.DoNotifySubscribers,
	})

	incident := &domain.Incident{
		Name:                   in.Name,
		Type:                   domain.IncidentTypeBackfilled,
		Components:             in.Components,
		ComponentsImpactStatus: in.ComponentsImpactStatus,
		Updates:                []domain.IncidentUpdate{entry},
	}
	r.common.SetResolvedStatus(incident)

	return r.common.Save(ctx, incident)
}

// Update always fails: backfilled incidents are immutable once created.
// A deliberate dead end, not an omission.
func (r *BackfilledRepository) Update(_ context.Context, _ *domain.Incident, _ UpdateEntryInput) (*domain.Incident, error) {
	return nil, ErrUpdateNotAllowed
}
