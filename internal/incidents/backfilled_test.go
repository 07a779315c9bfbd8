package incidents

import (
	"context"
	"testing"
	"time"

	"github.com/nimbusops/statuspage/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackfilledCreate(t *testing.T) {
	service, store, publisher, _ := newTestService(t)

	displayedAt := time.Date(2026, 2, 1, 3, 0, 0, 0, time.UTC)
	created, err := service.Create(context.Background(), CreateInput{
		Type:                   domain.IncidentTypeBackfilled,
		Name:                   "historical outage",
		Components:             []string{"api"},
		ComponentsImpactStatus: domain.ComponentStatusPartialOut,
		Message:                "database failover took 20 minutes",
		DisplayedAt:            &displayedAt,
	})
	require.NoError(t, err)

	assert.True(t, created.IsResolved)
	assert.NotNil(t, created.ResolvedAt)
	require.Len(t, created.Updates, 1)
	assert.Equal(t, domain.UpdateStatusResolved, created.Updates[0].Status)
	assert.Equal(t, displayedAt, created.Updates[0].DisplayedAt)
	assert.Empty(t, created.LatestStatus)

	assert.NotNil(t, mustGet(t, store, created.ID))

	// Backfilled incidents describe the past; nothing to announce.
	assert.Empty(t, publisher.routingKeys())
}

func TestBackfilledUpdate_NotAllowed(t *testing.T) {
	service, _, _, _ := newTestService(t)

	created, err := service.Create(context.Background(), CreateInput{
		Type:    domain.IncidentTypeBackfilled,
		Name:    "historical outage",
		Message: "it happened",
	})
	require.NoError(t, err)

	_, err = service.Update(context.Background(), created.ID, UpdateInput{
		Message: "amended",
	})
	assert.ErrorIs(t, err, ErrUpdateNotAllowed)
}

func TestBackfilledChangeUpdateEntry_StillAllowed(t *testing.T) {
	service, _, _, _ := newTestService(t)

	created, err := service.Create(context.Background(), CreateInput{
		Type:    domain.IncidentTypeBackfilled,
		Name:    "historical outage",
		Message: "it hapened",
	})
	require.NoError(t, err)

	// The entry edit path is variant-agnostic: fixing a typo in the
	// historical record does not count as an update.
	fixed := "it happened"
	updated, err := service.ChangeUpdateEntry(context.Background(), created.ID, created.Updates[0].ID, ChangeEntryInput{
		Message: &fixed,
	})
	require.NoError(t, err)
	assert.Equal(t, fixed, updated.Updates[0].Message)
}
