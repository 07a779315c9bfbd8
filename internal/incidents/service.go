package incidents

import (
	"context"
	"fmt"
	"time"

	"github.com/nimbusops/statuspage/internal/bus"
	"github.com/nimbusops/statuspage/internal/domain"
)

// Service is the handler-facing facade over the three variant
// repositories. Each operation dispatches on the incident type with a
// single exhaustive switch.
type Service struct {
	store      Store
	common     *Common
	realtime   *RealtimeRepository
	backfilled *BackfilledRepository
	scheduled  *ScheduledRepository
}

// NewService wires the common core and the variant repositories.
func NewService(store Store, publisher bus.Publisher) *Service {
	common := NewCommon(store, publisher)
	return &Service{
		store:      store,
		common:     common,
		realtime:   NewRealtimeRepository(common),
		backfilled: NewBackfilledRepository(common),
		scheduled:  NewScheduledRepository(common),
	}
}

// AutoUpdater builds the auto-update runner bound to this service's store
// and scheduled repository.
func (s *Service) AutoUpdater(syncer ComponentSyncer) *AutoUpdater {
	return NewAutoUpdater(s.store, s.scheduled, syncer)
}

// CreateInput is the union of per-variant creation fields; the variant
// repositories project the fields they accept.
type CreateInput struct {
	Type                         domain.IncidentType
	Name                         string
	Components                   []string
	ComponentsImpactStatus       domain.ComponentStatus
	Message                      string
	Status                       domain.UpdateStatus
	DisplayedAt                  *time.Time
	DoNotifySubscribers          bool
	ScheduledStartTime           *time.Time
	ScheduledEndTime             *time.Time
	AutoStatusUpdates            bool
	AutoUpdatesSendNotifications bool
}

// Create dispatches creation to the variant repository for the input type.
func (s *Service) Create(ctx context.Context, in CreateInput) (*domain.Incident, error) {
	switch in.Type {
	case domain.IncidentTypeRealtime:
		return s.realtime.Create(ctx, CreateRealtimeInput{
			Name:                   in.Name,
			Components:             in.Components,
			ComponentsImpactStatus: in.ComponentsImpactStatus,
			Message:                in.Message,
			Status:                 in.Status,
			DisplayedAt:            in.DisplayedAt,
			DoNotifySubscribers:    in.DoNotifySubscribers,
		})
	case domain.IncidentTypeBackfilled:
		return s.backfilled.Create(ctx, CreateBackfilledInput{
			Name:                   in.Name,
			Components:             in.Components,
			ComponentsImpactStatus: in.ComponentsImpactStatus,
			Message:                in.Message,
			DisplayedAt:            in.DisplayedAt,
			DoNotifySubscribers:    in.DoNotifySubscribers,
		})
	case domain.IncidentTypeScheduled:
		if in.ScheduledStartTime == nil || in.ScheduledEndTime == nil {
			return nil, fmt.Errorf("%w: scheduled incidents require a start and end time", ErrInvalidDate)
		}
		return s.scheduled.Create(ctx, CreateScheduledInput{
			Name:                         in.Name,
			Components:                   in.Components,
			Message:                      in.Message,
			ScheduledStartTime:           *in.ScheduledStartTime,
			ScheduledEndTime:             *in.ScheduledEndTime,
			AutoStatusUpdates:            in.AutoStatusUpdates,
			AutoUpdatesSendNotifications: in.AutoUpdatesSendNotifications,
			DisplayedAt:                  in.DisplayedAt,
			DoNotifySubscribers:          in.DoNotifySubscribers,
		})
	default:
		return nil, fmt.Errorf("unknown incident type: %q", in.Type)
	}
}

// UpdateInput is the union of per-variant update fields. Fields a variant
// does not accept are dropped by projection, never rejected.
type UpdateInput struct {
	Name                         *string
	Components                   *[]string
	ComponentsImpactStatus       *domain.ComponentStatus
	Status                       domain.UpdateStatus
	Message                      string
	DisplayedAt                  *time.Time
	DoNotifySubscribers          bool
	ScheduledStartTime           *time.Time
	ScheduledEndTime             *time.Time
	AutoStatusUpdates            *bool
	AutoUpdatesSendNotifications *bool
}

// Update loads the incident and dispatches to its variant repository.
func (s *Service) Update(ctx context.Context, id string, in UpdateInput) (*domain.Incident, error) {
	incident, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	switch incident.Type {
	case domain.IncidentTypeRealtime:
		return s.realtime.Update(ctx, incident, UpdateRealtimeInput{
			Components:             in.Components,
			ComponentsImpactStatus: in.ComponentsImpactStatus,
			Status:                 in.Status,
			Message:                in.Message,
			DisplayedAt:            in.DisplayedAt,
			DoNotifySubscribers:    in.DoNotifySubscribers,
		})
	case domain.IncidentTypeBackfilled:
		return s.backfilled.Update(ctx, incident, UpdateEntryInput{})
	case domain.IncidentTypeScheduled:
		return s.scheduled.Update(ctx, incident, UpdateScheduledInput{
			Name:                         in.Name,
			Components:                   in.Components,
			ScheduledStartTime:           in.ScheduledStartTime,
			ScheduledEndTime:             in.ScheduledEndTime,
			AutoStatusUpdates:            in.AutoStatusUpdates,
			AutoUpdatesSendNotifications: in.AutoUpdatesSendNotifications,
			Status:                       in.Status,
			Message:                      in.Message,
			DisplayedAt:                  in.DisplayedAt,
			DoNotifySubscribers:          in.DoNotifySubscribers,
		})
	default:
		return nil, fmt.Errorf("unknown incident type: %q", incident.Type)
	}
}

// Get retrieves an incident by id.
func (s *Service) Get(ctx context.Context, id string) (*domain.Incident, error) {
	return s.store.Get(ctx, id)
}

// List retrieves incidents matching the filter.
func (s *Service) List(ctx context.Context, filter Filter) ([]*domain.Incident, error) {
	return s.store.Find(ctx, filter)
}

// Count returns the number of incidents matching the filter.
func (s *Service) Count(ctx context.Context, filter Filter) (int, error) {
	return s.store.Count(ctx, filter)
}

// Delete removes an incident unconditionally. There is no soft delete.
func (s *Service) Delete(ctx context.Context, id string) error {
	incident, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	return s.common.Remove(ctx, incident)
}

// ChangeUpdateEntry edits message/displayed_at of one historical update
// entry and re-saves the incident.
func (s *Service) ChangeUpdateEntry(ctx context.Context, id, updateID string, in ChangeEntryInput) (*domain.Incident, error) {
	incident, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.common.ChangeUpdateEntry(ctx, incident, updateID, in)
}
