package incidents

import (
	"context"
	"testing"
	"time"

	"github.com/nimbusops/statuspage/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// createAutoScheduled creates a scheduled incident with auto updates on,
// starting one hour after the pinned clock.
func createAutoScheduled(t *testing.T, service *Service, now time.Time, notify bool) *domain.Incident {
	t.Helper()
	start := now.Add(time.Hour)
	end := now.Add(2 * time.Hour)
	created, err := service.Create(context.Background(), CreateInput{
		Type:                         domain.IncidentTypeScheduled,
		Name:                         "DB maintenance",
		Components:                   []string{"db", "api"},
		Message:                      "planned failover",
		ScheduledStartTime:           &start,
		ScheduledEndTime:             &end,
		AutoStatusUpdates:            true,
		AutoUpdatesSendNotifications: notify,
	})
	require.NoError(t, err)
	return created
}

func TestAutoUpdater_StartPass(t *testing.T) {
	service, store, _, now := newTestService(t)
	created := createAutoScheduled(t, service, now, true)

	syncer := newFakeSyncer()
	updater := service.AutoUpdater(syncer)

	// Before the window opens nothing is due.
	updater.now = func() time.Time { return now.Add(30 * time.Minute) }
	started, completed := updater.Run(context.Background())
	assert.Empty(t, started)
	assert.Empty(t, completed)

	// Past the start the incident is promoted and components go under
	// maintenance.
	updater.now = func() time.Time { return now.Add(90 * time.Minute) }
	started, completed = updater.Run(context.Background())
	assert.Equal(t, []string{created.ID}, started)
	assert.Empty(t, completed)

	stored := mustGet(t, store, created.ID)
	assert.Equal(t, domain.ScheduledStatusInProgress, stored.ScheduledStatus)
	last := stored.Updates[len(stored.Updates)-1]
	assert.Equal(t, domain.UpdateStatusInProgress, last.Status)
	assert.Equal(t, autoStartMessage, last.Message)
	assert.True(t, last.DoNotifySubscribers)

	assert.Equal(t, domain.ComponentStatusMaintenance, syncer.statuses["db"])
	assert.Equal(t, domain.ComponentStatusMaintenance, syncer.statuses["api"])
}

func TestAutoUpdater_CompletionPass(t *testing.T) {
	service, store, _, now := newTestService(t)
	created := createAutoScheduled(t, service, now, false)

	syncer := newFakeSyncer()
	updater := service.AutoUpdater(syncer)

	updater.now = func() time.Time { return now.Add(90 * time.Minute) }
	started, _ := updater.Run(context.Background())
	require.Equal(t, []string{created.ID}, started)

	// Past the end the incident is completed and components recover.
	updater.now = func() time.Time { return now.Add(3 * time.Hour) }
	started, completed := updater.Run(context.Background())
	assert.Empty(t, started)
	assert.Equal(t, []string{created.ID}, completed)

	stored := mustGet(t, store, created.ID)
	assert.Equal(t, domain.ScheduledStatusCompleted, stored.ScheduledStatus)
	assert.True(t, stored.IsResolved)
	last := stored.Updates[len(stored.Updates)-1]
	assert.Equal(t, domain.UpdateStatusResolved, last.Status)
	assert.Equal(t, autoCompleteMessage, last.Message)
	assert.False(t, last.DoNotifySubscribers)

	assert.Equal(t, domain.ComponentStatusOperational, syncer.statuses["db"])
}

func TestAutoUpdater_SkipsManualIncidents(t *testing.T) {
	service, store, _, now := newTestService(t)

	start := now.Add(time.Hour)
	end := now.Add(2 * time.Hour)
	manual, err := service.Create(context.Background(), CreateInput{
		Type:               domain.IncidentTypeScheduled,
		Name:               "hands-on maintenance",
		Message:            "planned",
		ScheduledStartTime: &start,
		ScheduledEndTime:   &end,
	})
	require.NoError(t, err)

	updater := service.AutoUpdater(newFakeSyncer())
	updater.now = func() time.Time { return now.Add(90 * time.Minute) }

	started, _ := updater.Run(context.Background())
	assert.Empty(t, started)
	assert.Equal(t, domain.ScheduledStatusScheduled, mustGet(t, store, manual.ID).ScheduledStatus)
}

func TestAutoUpdater_SyncerFailureDoesNotBlockTransitions(t *testing.T) {
	service, store, _, now := newTestService(t)
	created := createAutoScheduled(t, service, now, false)

	syncer := newFakeSyncer()
	syncer.err = assert.AnError
	updater := service.AutoUpdater(syncer)
	updater.now = func() time.Time { return now.Add(90 * time.Minute) }

	started, _ := updater.Run(context.Background())
	assert.Equal(t, []string{created.ID}, started)
	assert.Equal(t, domain.ScheduledStatusInProgress, mustGet(t, store, created.ID).ScheduledStatus)
}

func TestAutoUpdater_FindErrorYieldsEmptyResult(t *testing.T) {
	service, store, _, now := newTestService(t)
	createAutoScheduled(t, service, now, false)

	store.findErr = assert.AnError
	updater := service.AutoUpdater(newFakeSyncer())
	updater.now = func() time.Time { return now.Add(90 * time.Minute) }

	started, completed := updater.Run(context.Background())
	assert.Empty(t, started)
	assert.Empty(t, completed)
}
