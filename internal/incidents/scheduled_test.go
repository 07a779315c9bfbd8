package incidents

import (
	"context"
	"testing"
	"time"

	"github.com/nimbusops/statuspage/internal/bus"
	"github.com/nimbusops/statuspage/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createScheduled(t *testing.T, service *Service, now time.Time) *domain.Incident {
	t.Helper()
	start := now.Add(time.Hour)
	end := now.Add(3 * time.Hour)
	created, err := service.Create(context.Background(), CreateInput{
		Type:               domain.IncidentTypeScheduled,
		Name:               "DB maintenance",
		Components:         []string{"db"},
		Message:            "planned failover",
		ScheduledStartTime: &start,
		ScheduledEndTime:   &end,
	})
	require.NoError(t, err)
	return created
}

func TestScheduledCreate(t *testing.T) {
	service, _, publisher, now := newTestService(t)

	created := createScheduled(t, service, now)

	assert.Equal(t, domain.ScheduledStatusScheduled, created.ScheduledStatus)
	require.Len(t, created.Updates, 1)
	assert.Equal(t, domain.UpdateStatusScheduled, created.Updates[0].Status)
	assert.False(t, created.IsResolved)
	assert.Equal(t, []string{bus.RoutingKeyNewUpdate}, publisher.routingKeys())
}

func TestScheduledCreate_WindowValidation(t *testing.T) {
	service, _, _, now := newTestService(t)

	past := now.Add(-time.Hour)
	end := now.Add(time.Hour)
	_, err := service.Create(context.Background(), CreateInput{
		Type:               domain.IncidentTypeScheduled,
		Name:               "DB maintenance",
		Message:            "planned",
		ScheduledStartTime: &past,
		ScheduledEndTime:   &end,
	})
	assert.ErrorIs(t, err, ErrInvalidDate)

	start := now.Add(2 * time.Hour)
	before := now.Add(time.Hour)
	_, err = service.Create(context.Background(), CreateInput{
		Type:               domain.IncidentTypeScheduled,
		Name:               "DB maintenance",
		Message:            "planned",
		ScheduledStartTime: &start,
		ScheduledEndTime:   &before,
	})
	assert.ErrorIs(t, err, ErrInvalidDate)

	_, err = service.Create(context.Background(), CreateInput{
		Type:    domain.IncidentTypeScheduled,
		Name:    "DB maintenance",
		Message: "planned",
	})
	assert.ErrorIs(t, err, ErrInvalidDate)
}

func TestScheduledUpdate_PhaseProgression(t *testing.T) {
	service, _, _, now := newTestService(t)
	created := createScheduled(t, service, now)

	started, err := service.Update(context.Background(), created.ID, UpdateInput{
		Status:  domain.UpdateStatusInProgress,
		Message: "starting now",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.ScheduledStatusInProgress, started.ScheduledStatus)

	verifying, err := service.Update(context.Background(), created.ID, UpdateInput{
		Status:  domain.UpdateStatusVerifying,
		Message: "checking replicas",
	})
	require.NoError(t, err)
	// Verifying is an in-progress sub-state, not a phase of its own.
	assert.Equal(t, domain.ScheduledStatusInProgress, verifying.ScheduledStatus)

	done, err := service.Update(context.Background(), created.ID, UpdateInput{
		Status:  domain.UpdateStatusResolved,
		Message: "all good",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.ScheduledStatusCompleted, done.ScheduledStatus)
	assert.True(t, done.IsResolved)
	assert.NotNil(t, done.ResolvedAt)
}

func TestScheduledUpdate_IllegalTransitions(t *testing.T) {
	service, _, _, now := newTestService(t)
	created := createScheduled(t, service, now)

	// Cannot resolve maintenance that never started.
	_, err := service.Update(context.Background(), created.ID, UpdateInput{
		Status: domain.UpdateStatusResolved,
	})
	assert.ErrorIs(t, err, ErrInvalidIncidentStatus)

	_, err = service.Update(context.Background(), created.ID, UpdateInput{
		Status: domain.UpdateStatusVerifying,
	})
	assert.ErrorIs(t, err, ErrInvalidIncidentStatus)

	_, err = service.Update(context.Background(), created.ID, UpdateInput{
		Status: domain.UpdateStatusInProgress,
	})
	require.NoError(t, err)

	// Cannot go back to scheduled once started.
	_, err = service.Update(context.Background(), created.ID, UpdateInput{
		Status: domain.UpdateStatusScheduled,
	})
	assert.ErrorIs(t, err, ErrInvalidIncidentStatus)
}

func TestScheduledUpdate_Cancellation(t *testing.T) {
	service, _, _, now := newTestService(t)
	created := createScheduled(t, service, now)

	cancelled, err := service.Update(context.Background(), created.ID, UpdateInput{
		Status:  domain.UpdateStatusCancelled,
		Message: "maintenance no longer needed",
	})
	require.NoError(t, err)

	assert.Equal(t, domain.ScheduledStatusCancelled, cancelled.ScheduledStatus)
	assert.False(t, cancelled.IsResolved)

	// Posts after cancellation are commentary only.
	after, err := service.Update(context.Background(), created.ID, UpdateInput{
		Status:  domain.UpdateStatusInProgress,
		Message: "never mind",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.ScheduledStatusCancelled, after.ScheduledStatus)
	assert.Equal(t, domain.UpdateStatusUpdate, after.Updates[len(after.Updates)-1].Status)
}

func TestScheduledUpdate_EmptyStatusRepostsPhase(t *testing.T) {
	service, _, _, now := newTestService(t)
	created := createScheduled(t, service, now)

	updated, err := service.Update(context.Background(), created.ID, UpdateInput{
		Message: "reminder: starts in an hour",
	})
	require.NoError(t, err)

	require.Len(t, updated.Updates, 2)
	assert.Equal(t, domain.UpdateStatusScheduled, updated.Updates[1].Status)
	assert.Equal(t, domain.ScheduledStatusScheduled, updated.ScheduledStatus)
}

func TestScheduledUpdate_StartTimeLocksOnceStarted(t *testing.T) {
	service, _, _, now := newTestService(t)
	created := createScheduled(t, service, now)
	originalStart := *created.ScheduledStartTime

	_, err := service.Update(context.Background(), created.ID, UpdateInput{
		Status: domain.UpdateStatusInProgress,
	})
	require.NoError(t, err)

	newStart := now.Add(24 * time.Hour)
	newEnd := now.Add(26 * time.Hour)
	updated, err := service.Update(context.Background(), created.ID, UpdateInput{
		ScheduledStartTime: &newStart,
		ScheduledEndTime:   &newEnd,
	})
	require.NoError(t, err)

	assert.Equal(t, originalStart, *updated.ScheduledStartTime)
	assert.Equal(t, newEnd, *updated.ScheduledEndTime)
}

func TestScheduledUpdate_WindowRevalidated(t *testing.T) {
	service, _, _, now := newTestService(t)
	created := createScheduled(t, service, now)

	badEnd := created.ScheduledStartTime.Add(-time.Minute)
	_, err := service.Update(context.Background(), created.ID, UpdateInput{
		ScheduledEndTime: &badEnd,
	})
	assert.ErrorIs(t, err, ErrInvalidDate)
}

func TestScheduledUpdate_FieldOnlyPatchDoesNotPublish(t *testing.T) {
	service, _, publisher, now := newTestService(t)
	created := createScheduled(t, service, now)
	publisher.calls = nil

	name := "DB maintenance (rescheduled)"
	auto := true
	updated, err := service.Update(context.Background(), created.ID, UpdateInput{
		Name:              &name,
		AutoStatusUpdates: &auto,
	})
	require.NoError(t, err)

	assert.Equal(t, name, updated.Name)
	assert.True(t, updated.ScheduledAutoStatusUpdates)
	assert.Empty(t, publisher.routingKeys())
}
