package incidents

import (
	"context"
	"testing"
	"time"

	"github.com/nimbusops/statuspage/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIncidentID_Prefix(t *testing.T) {
	id := NewIncidentID()
	assert.Regexp(t, `^IC[0-9a-f]{32}$`, id)
	assert.NotEqual(t, id, NewIncidentID())
}

func TestNewUpdateID_Prefix(t *testing.T) {
	assert.Regexp(t, `^IU[0-9a-f]{32}$`, NewUpdateID())
}

func TestSave_NewIncidentGetsIDAndTimestamps(t *testing.T) {
	service, store, _, now := newTestService(t)

	incident := validRealtimeIncident()
	incident.ID = ""
	incident.CreatedAt = time.Time{}
	incident.UpdatedAt = time.Time{}

	saved, err := service.common.Save(context.Background(), incident)
	require.NoError(t, err)

	assert.Regexp(t, `^IC`, saved.ID)
	assert.Equal(t, now, saved.CreatedAt)
	assert.Equal(t, now, saved.UpdatedAt)
	assert.NotNil(t, mustGet(t, store, saved.ID))
}

func TestSave_ExistingIncidentKeepsCreatedAt(t *testing.T) {
	service, _, _, now := newTestService(t)

	incident := validRealtimeIncident()
	incident.ID = ""
	saved, err := service.common.Save(context.Background(), incident)
	require.NoError(t, err)

	later := now.Add(time.Hour)
	service.common.now = func() time.Time { return later }

	saved, err = service.common.Save(context.Background(), saved)
	require.NoError(t, err)

	assert.Equal(t, now, saved.CreatedAt)
	assert.Equal(t, later, saved.UpdatedAt)
}

func TestSave_InvalidIncidentRejected(t *testing.T) {
	service, store, _, _ := newTestService(t)

	incident := validRealtimeIncident()
	incident.ID = ""
	incident.Name = ""

	_, err := service.common.Save(context.Background(), incident)
	assert.ErrorIs(t, err, ErrValidation)
	assert.Empty(t, store.docs)
}

func TestRemove_MissingIncident(t *testing.T) {
	service, _, _, _ := newTestService(t)

	incident := validRealtimeIncident()
	incident.ID = "ICmissing"

	err := service.common.Remove(context.Background(), incident)
	assert.ErrorIs(t, err, ErrIncidentNotFound)
}

func TestBuildUpdateEntry_Defaults(t *testing.T) {
	service, _, _, now := newTestService(t)

	entry := service.common.BuildUpdateEntry(UpdateEntryInput{
		Message: "on it",
		Status:  domain.UpdateStatusInvestigating,
	})

	assert.Regexp(t, `^IU`, entry.ID)
	assert.Equal(t, now, entry.DisplayedAt)
	assert.Equal(t, now, entry.CreatedAt)
	assert.Equal(t, now, entry.UpdatedAt)
	assert.False(t, entry.DoNotifySubscribers)
}

func TestBuildUpdateEntry_ExplicitDisplayedAt(t *testing.T) {
	service, _, _, _ := newTestService(t)

	displayedAt := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	entry := service.common.BuildUpdateEntry(UpdateEntryInput{
		Message:     "backdated",
		Status:      domain.UpdateStatusInvestigating,
		DisplayedAt: &displayedAt,
	})

	assert.Equal(t, displayedAt, entry.DisplayedAt)
}

func TestChangeUpdateEntry_EditsMessageAndDisplayedAt(t *testing.T) {
	service, store, _, _ := newTestService(t)

	created, err := service.Create(context.Background(), CreateInput{
		Type:    domain.IncidentTypeRealtime,
		Name:    "API degradation",
		Message: "typo mesage",
		Status:  domain.UpdateStatusInvestigating,
	})
	require.NoError(t, err)

	newMessage := "fixed message"
	displayedAt := time.Date(2026, 3, 15, 11, 0, 0, 0, time.UTC)
	updated, err := service.ChangeUpdateEntry(context.Background(), created.ID, created.Updates[0].ID, ChangeEntryInput{
		Message:     &newMessage,
		DisplayedAt: &displayedAt,
	})
	require.NoError(t, err)

	assert.Equal(t, newMessage, updated.Updates[0].Message)
	assert.Equal(t, displayedAt, updated.Updates[0].DisplayedAt)

	stored := mustGet(t, store, created.ID)
	assert.Equal(t, newMessage, stored.Updates[0].Message)
}

func TestChangeUpdateEntry_UnknownEntry(t *testing.T) {
	service, _, _, _ := newTestService(t)

	created, err := service.Create(context.Background(), CreateInput{
		Type:    domain.IncidentTypeRealtime,
		Name:    "API degradation",
		Message: "looking",
		Status:  domain.UpdateStatusInvestigating,
	})
	require.NoError(t, err)

	_, err = service.ChangeUpdateEntry(context.Background(), created.ID, "IUnope", ChangeEntryInput{})
	assert.ErrorIs(t, err, ErrIncidentUpdateNotFound)
}

func TestSetResolvedStatus_Idempotent(t *testing.T) {
	service, _, _, now := newTestService(t)

	incident := validRealtimeIncident()
	incident.Updates[0].Status = domain.UpdateStatusResolved
	incident.Updates[0].UpdatedAt = now
	incident.LatestStatus = domain.UpdateStatusResolved

	service.common.SetResolvedStatus(incident)
	require.True(t, incident.IsResolved)
	require.NotNil(t, incident.ResolvedAt)
	first := *incident.ResolvedAt

	// Touching the resolved entry later must not move resolved_at.
	incident.Updates[0].UpdatedAt = now.Add(time.Hour)
	service.common.SetResolvedStatus(incident)
	assert.Equal(t, first, *incident.ResolvedAt)
}

func TestSetResolvedStatus_ClearsWhenNoResolvedEntry(t *testing.T) {
	service, _, _, now := newTestService(t)

	incident := validRealtimeIncident()
	incident.IsResolved = true
	resolvedAt := now
	incident.ResolvedAt = &resolvedAt

	service.common.SetResolvedStatus(incident)
	assert.False(t, incident.IsResolved)
	assert.Nil(t, incident.ResolvedAt)
}

func TestPublishNewUpdate_FailureDoesNotPropagate(t *testing.T) {
	service, _, publisher, _ := newTestService(t)
	publisher.publishErr = assert.AnError

	created, err := service.Create(context.Background(), CreateInput{
		Type:    domain.IncidentTypeRealtime,
		Name:    "API degradation",
		Message: "looking",
		Status:  domain.UpdateStatusInvestigating,
	})
	require.NoError(t, err)
	assert.NotNil(t, created)
}
