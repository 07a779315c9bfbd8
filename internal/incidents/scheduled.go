package incidents

import (
	"context"
	"fmt"
	"time"

	"github.com/nimbusops/statuspage/internal/domain"
)

// ScheduledRepository implements the scheduled-maintenance variant.
//
// Phase machine over scheduled_status:
//
//	scheduled → in_progress → completed
//	scheduled → cancelled
//
// Once completed or cancelled, further posts are demoted to append-only
// commentary with update-entry status "update".
type ScheduledRepository struct {
	common *Common
}

// NewScheduledRepository creates the scheduled variant repository.
func NewScheduledRepository(common *Common) *ScheduledRepository {
	return &ScheduledRepository{common: common}
}

// CreateScheduledInput holds data for creating a scheduled incident.
type CreateScheduledInput struct {
	Name                         string
	Components                   []string
	Message                      string
	ScheduledStartTime           time.Time
	ScheduledEndTime             time.Time
	AutoStatusUpdates            bool
	AutoUpdatesSendNotifications bool
	DisplayedAt                  *time.Time
	DoNotifySubscribers          bool
}

// Create validates the maintenance window against the creation time, forces
// the first update entry to status scheduled and publishes unconditionally:
// scheduled creation is always notification-capable.
func (r *ScheduledRepository) Create(ctx context.Context, in CreateScheduledInput) (*domain.Incident, error) {
	now := r.common.now().UTC()
	start := in.ScheduledStartTime.UTC()
	end := in.ScheduledEndTime.UTC()

	if start.Before(now) {
		return nil, fmt.Errorf("%w: scheduled_start_time must not be in the past", ErrInvalidDate)
	}
	if end.Before(start) {
		return nil, fmt.Errorf("%w: scheduled_end_time must not precede scheduled_start_time", ErrInvalidDate)
	}

	entry := r.common.BuildUpdateEntry(UpdateEntryInput{
		Message:             in.Message,
		Status:              domain.UpdateStatusScheduled,
		DisplayedAt:         in.DisplayedAt,
		DoNotifySubscribers: in.DoNotifySubscribers,
	})

	incident := &domain.Incident{
		Name:                                  in.Name,
		Type:                                  domain.IncidentTypeScheduled,
		Components:                            in.Components,
		Updates:                               []domain.IncidentUpdate{entry},
		ScheduledStatus:                       domain.ScheduledStatusScheduled,
		ScheduledStartTime:                    &start,
		ScheduledEndTime:                      &end,
		ScheduledAutoStatusUpdates:            in.AutoStatusUpdates,
		ScheduledAutoUpdatesSendNotifications: in.AutoUpdatesSendNotifications,
	}

	saved, err := r.common.Save(ctx, incident)
	if err != nil {
		return nil, err
	}

	r.common.PublishNewUpdate(ctx, saved)
	return saved, nil
}

// UpdateScheduledInput holds data for updating a scheduled incident.
type UpdateScheduledInput struct {
	Name                         *string
	Components                   *[]string
	ScheduledStartTime           *time.Time
	ScheduledEndTime             *time.Time
	AutoStatusUpdates            *bool
	AutoUpdatesSendNotifications *bool
	Status                       domain.UpdateStatus
	Message                      string
	DisplayedAt                  *time.Time
	DoNotifySubscribers          bool
}

// Update patches the phase-dependent field set, enforces transition
// legality for a posted status and publishes only when a new update entry
// was actually appended. Field-only patches do not notify.
func (r *ScheduledRepository) Update(ctx context.Context, incident *domain.Incident, in UpdateScheduledInput) (*domain.Incident, error) {
	if !incident.IsResolved {
		if in.Name != nil {
			incident.Name = *in.Name
		}
		if in.Components != nil {
			incident.Components = *in.Components
		}
		if in.ScheduledEndTime != nil {
			end := in.ScheduledEndTime.UTC()
			incident.ScheduledEndTime = &end
		}
		if in.AutoStatusUpdates != nil {
			incident.ScheduledAutoStatusUpdates = *in.AutoStatusUpdates
		}
		if in.AutoUpdatesSendNotifications != nil {
			incident.ScheduledAutoUpdatesSendNotifications = *in.AutoUpdatesSendNotifications
		}
		// The start time locks once work has started.
		if in.ScheduledStartTime != nil && incident.ScheduledStatus == domain.ScheduledStatusScheduled {
			start := in.ScheduledStartTime.UTC()
			incident.ScheduledStartTime = &start
		}
	}

	// The window is revalidated against the possibly-updated start on every
	// update.
	if incident.ScheduledStartTime != nil && incident.ScheduledEndTime != nil &&
		incident.ScheduledEndTime.Before(*incident.ScheduledStartTime) {
		return nil, fmt.Errorf("%w: scheduled_end_time must not precede scheduled_start_time", ErrInvalidDate)
	}

	appended := false
	if in.Status != "" || in.Message != "" {
		status, err := r.resolveEntryStatus(incident, in.Status)
		if err != nil {
			return nil, err
		}

		entry := r.common.BuildUpdateEntry(UpdateEntryInput{
			Message:             in.Message,
			Status:              status,
			DisplayedAt:         in.DisplayedAt,
			DoNotifySubscribers: in.DoNotifySubscribers,
		})
		incident.Updates = append(incident.Updates, entry)
		appended = true

		switch entry.Status {
		case domain.UpdateStatusInProgress:
			incident.ScheduledStatus = domain.ScheduledStatusInProgress
		case domain.UpdateStatusCancelled:
			incident.ScheduledStatus = domain.ScheduledStatusCancelled
		case domain.UpdateStatusResolved:
			incident.ScheduledStatus = domain.ScheduledStatusCompleted
		}
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

// resolveEntryStatus applies the transition legality table keyed by the
// current phase. A message without a status re-posts the current phase; a
// post against a completed or cancelled incident is demoted to "update".
func (r *ScheduledRepository) resolveEntryStatus(incident *domain.Incident, requested domain.UpdateStatus) (domain.UpdateStatus, error) {
	switch incident.ScheduledStatus {
	case domain.ScheduledStatusScheduled:
		if requested == "" {
			return domain.UpdateStatusScheduled, nil
		}
		switch requested {
		case domain.UpdateStatusScheduled, domain.UpdateStatusInProgress, domain.UpdateStatusCancelled:
			return requested, nil
		}
		return "", fmt.Errorf("%w: %q while scheduled", ErrInvalidIncidentStatus, requested)

	case domain.ScheduledStatusInProgress:
		if requested == "" {
			return domain.UpdateStatusInProgress, nil
		}
		switch requested {
		case domain.UpdateStatusInProgress, domain.UpdateStatusVerifying, domain.UpdateStatusResolved:
			return requested, nil
		}
		return "", fmt.Errorf("%w: %q while in progress", ErrInvalidIncidentStatus, requested)

	default:
		// Completed or cancelled: append-only commentary, never a real
		// transition.
		return domain.UpdateStatusUpdate, nil
	}
}
