package incidents

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nimbusops/statuspage/internal/domain"
	"github.com/nimbusops/statuspage/internal/pkg/ctxlog"
)

// Canned messages posted by the auto-update passes.
const (
	autoStartMessage    = "The scheduled maintenance has started."
	autoCompleteMessage = "The scheduled maintenance has been completed."
)

// ComponentSyncer pushes a status to the external component service.
// Failures for one component must not block the others.
type ComponentSyncer interface {
	SetStatus(ctx context.Context, componentID string, status domain.ComponentStatus) error
}

// AutoUpdater promotes scheduled incidents through their lifecycle driven
// only by wall-clock time. One tick runs the start and completion passes;
// the two touch disjoint incident sets by phase and run concurrently.
type AutoUpdater struct {
	store     Store
	scheduled *ScheduledRepository
	syncer    ComponentSyncer
	now       func() time.Time
}

// NewAutoUpdater creates the auto-update runner.
func NewAutoUpdater(store Store, scheduled *ScheduledRepository, syncer ComponentSyncer) *AutoUpdater {
	return &AutoUpdater{
		store:     store,
		scheduled: scheduled,
		syncer:    syncer,
		now:       time.Now,
	}
}

// Run executes one tick and returns the ids transitioned by each pass.
// Errors never escape: a failed pass logs and reports an empty result so
// the next tick always runs.
func (a *AutoUpdater) Run(ctx context.Context) (started, completed []string) {
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		started = a.startPass(ctx)
	}()
	go func() {
		defer wg.Done()
		completed = a.completionPass(ctx)
	}()

	wg.Wait()

	if len(started) > 0 || len(completed) > 0 {
		ctxlog.FromContext(ctx).Info("auto-update tick transitioned incidents",
			"started", len(started),
			"completed", len(completed),
		)
	}
	return started, completed
}

// startPass moves due incidents from scheduled to in_progress and marks
// their components as under maintenance.
func (a *AutoUpdater) startPass(ctx context.Context) []string {
	now := a.now().UTC()
	scheduledStatus := domain.ScheduledStatusScheduled
	ids, err := a.pass(ctx, passSpec{
		name:            "start",
		filter:          a.autoFilter(scheduledStatus, &now, nil),
		componentStatus: domain.ComponentStatusMaintenance,
		entryStatus:     domain.UpdateStatusInProgress,
		message:         autoStartMessage,
	})
	if err != nil {
		ctxlog.FromContext(ctx).Error("auto-update start pass failed", "error", err)
		recordAutoUpdateRun("start", "error")
		return nil
	}
	recordAutoUpdateRun("start", "ok")
	recordAutoUpdateAffected("start", len(ids))
	return ids
}

// completionPass moves overdue incidents from in_progress to completed and
// returns their components to operational.
func (a *AutoUpdater) completionPass(ctx context.Context) []string {
	now := a.now().UTC()
	scheduledStatus := domain.ScheduledStatusInProgress
	ids, err := a.pass(ctx, passSpec{
		name:            "completion",
		filter:          a.autoFilter(scheduledStatus, nil, &now),
		componentStatus: domain.ComponentStatusOperational,
		entryStatus:     domain.UpdateStatusResolved,
		message:         autoCompleteMessage,
	})
	if err != nil {
		ctxlog.FromContext(ctx).Error("auto-update completion pass failed", "error", err)
		recordAutoUpdateRun("completion", "error")
		return nil
	}
	recordAutoUpdateRun("completion", "ok")
	recordAutoUpdateAffected("completion", len(ids))
	return ids
}

// autoFilter builds the store predicate for one pass.
func (a *AutoUpdater) autoFilter(phase domain.ScheduledStatus, startBefore, endBefore *time.Time) Filter {
	incidentType := domain.IncidentTypeScheduled
	auto := true
	return Filter{
		Type:                 &incidentType,
		ScheduledStatus:      &phase,
		AutoStatusUpdates:    &auto,
		ScheduledStartBefore: startBefore,
		ScheduledEndBefore:   endBefore,
	}
}

type passSpec struct {
	name            string
	filter          Filter
	componentStatus domain.ComponentStatus
	entryStatus     domain.UpdateStatus
	message         string
}

// pass syncs the union of affected components, then fans out one update
// per incident. A failing incident is logged and skipped; the rest of the
// batch proceeds.
func (a *AutoUpdater) pass(ctx context.Context, spec passSpec) ([]string, error) {
	logger := ctxlog.FromContext(ctx)

	due, err := a.store.Find(ctx, spec.filter)
	if err != nil {
		return nil, fmt.Errorf("find due incidents: %w", err)
	}
	if len(due) == 0 {
		return nil, nil
	}

	a.syncComponents(ctx, due, spec.componentStatus)

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		ids []string
	)
	for _, incident := range due {
		wg.Add(1)
		go func(incident *domain.Incident) {
			defer wg.Done()
			_, err := a.scheduled.Update(ctx, incident, UpdateScheduledInput{
				Status:              spec.entryStatus,
				Message:             spec.message,
				DoNotifySubscribers: incident.ScheduledAutoUpdatesSendNotifications,
			})
			if err != nil {
				logger.Error("auto-update failed for incident",
					"pass", spec.name,
					"incident_id", incident.ID,
					"error", err,
				)
				return
			}
			mu.Lock()
			ids = append(ids, incident.ID)
			mu.Unlock()
		}(incident)
	}
	wg.Wait()

	return ids, nil
}

// syncComponents pushes the status to every distinct component across the
// batch, concurrently and best effort.
func (a *AutoUpdater) syncComponents(ctx context.Context, batch []*domain.Incident, status domain.ComponentStatus) {
	logger := ctxlog.FromContext(ctx)

	union := make(map[string]bool)
	for _, incident := range batch {
		for _, componentID := range incident.Components {
			union[componentID] = true
		}
	}

	var wg sync.WaitGroup
	for componentID := range union {
		wg.Add(1)
		go func(componentID string) {
			defer wg.Done()
			if err := a.syncer.SetStatus(ctx, componentID, status); err != nil {
				logger.Error("component status sync failed",
					"component_id", componentID,
					"status", status,
					"error", err,
				)
			}
		}(componentID)
	}
	wg.Wait()
}
