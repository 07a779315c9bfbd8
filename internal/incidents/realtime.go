package incidents

import (
	"context"
	"time"

	"github.com/nimbusops/statuspage/internal/domain"
)

// RealtimeRepository implements create/update for realtime incidents.
//
// Update-entry statuses walk investigating → identified → monitoring →
// resolved; once resolved, further posts are appended as status "update"
// and the incident cannot re-enter an investigative state.
type RealtimeRepository struct {
	common *Common
}

// NewRealtimeRepository creates the realtime variant repository.
func NewRealtimeRepository(common *Common) *RealtimeRepository {
	return &RealtimeRepository{common: common}
}

// CreateRealtimeInput holds data for creating a realtime incident.
type CreateRealtimeInput struct {
	Name                   string
	Components             []string
	ComponentsImpactStatus domain.ComponentStatus
	Message                string
	Status                 domain.UpdateStatus
	DisplayedAt            *time.Time
	DoNotifySubscribers    bool
}

// Create builds the incident with its first update entry, using the status
// as given, and resolves it immediately when that status is resolved.
func (r *RealtimeRepository) Create(ctx context.Context, in CreateRealtimeInput) (*domain.Incident, error) {
	entry := r.common.BuildUpdateEntry(UpdateEntryInput{
		Message:             in.Message,
		Status:              in.Status,
		DisplayedAt:         in.DisplayedAt,
		DoNotifySubscribers: in.DoNotifySubscribers,
	})

	incident := &domain.Incident{
		Name:                   in.Name,
		Type:                   domain.IncidentTypeRealtime,
		Components:             in.Components,
		ComponentsImpactStatus: in.ComponentsImpactStatus,
		Updates:                []domain.IncidentUpdate{entry},
	}
	if entry.Status != domain.UpdateStatusUpdate {
		incident.LatestStatus = entry.Status
	}

	r.common.SetResolvedStatus(incident)

	saved, err := r.common.Save(ctx, incident)
	if err != nil {
		return nil, err
	}

	r.common.PublishNewUpdate(ctx, saved)
	return saved, nil
}

// UpdateRealtimeInput holds data for updating a realtime incident.
// Name and type are immutable and intentionally absent: attempts to set
// them are dropped by projection, not rejected.
type UpdateRealtimeInput struct {
	Components             *[]string
	ComponentsImpactStatus *domain.ComponentStatus
	Status                 domain.UpdateStatus
	Message                string
	DisplayedAt            *time.Time
	DoNotifySubscribers    bool
}

// Update patches components/impact while the incident is unresolved and
// appends an update entry when a status or message was supplied. On an
// already-resolved incident the appended entry is forced to status
// "update" regardless of what was requested.
func (r *RealtimeRepository) Update(ctx context.Context, incident *domain.Incident, in UpdateRealtimeInput) (*domain.Incident, error) {
	if !incident.IsResolved {
		previousComponents := incident.Components
		if in.Components != nil {
			incident.Components = *in.Components
		}
		if in.ComponentsImpactStatus != nil {
			next := *in.ComponentsImpactStatus
			// Impact only ratchets upward, unless the component set was
			// replaced by one sharing nothing with the previous set.
			replaced := in.Components != nil && disjoint(*in.Components, previousComponents)
			if replaced || next.Severity() >= incident.ComponentsImpactStatus.Severity() {
				incident.ComponentsImpactStatus = next
			}
		}
	}

	appended := false
	if in.Status != "" || in.Message != "" {
		status := in.Status
		if incident.IsResolved || status == "" {
			status = domain.UpdateStatusUpdate
		}

		entry := r.common.BuildUpdateEntry(UpdateEntryInput{
			Message:             in.Message,
			Status:              status,
			DisplayedAt:         in.DisplayedAt,
			DoNotifySubscribers: in.DoNotifySubscribers,
		})
		incident.Updates = append(incident.Updates, entry)
		if entry.Status != domain.UpdateStatusUpdate {
			incident.LatestStatus = entry.Status
		}
		appended = true
	}

	r.common.SetResolvedStatus(incident)

	saved, err := r.common.Save(ctx, incident)
	if err != nil {
		return nil, err
	}

	if appended {
		r.common.PublishNewUpdate(ctx, saved)
	}
	return saved, nil
}

// disjoint reports whether the two component sets share no id.
func disjoint(a, b []string) bool {
	set := make(map[string]bool, len(b))
	for _, id := range b {
		set[id] = true
	}
	for _, id := range a {
		if set[id] {
			return false
		}
	}
	return true
}
