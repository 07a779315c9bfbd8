package incidents

import (
	"context"
	"time"

	"github.com/nimbusops/statuspage/internal/domain"
)

// Filter holds predicate options for querying incidents.
type Filter struct {
	Type                 *domain.IncidentType
	IsResolved           *bool
	ScheduledStatus      *domain.ScheduledStatus
	AutoStatusUpdates    *bool
	ScheduledStartBefore *time.Time
	ScheduledEndBefore   *time.Time
	Limit                int
	Offset               int
}

// Store is the document store the engine persists incidents through.
//
// Update replaces the stored document by id with no concurrency token:
// concurrent writers to the same incident follow read-modify-write and the
// last write wins. This is a documented limitation, not a guarantee.
type Store interface {
	Get(ctx context.Context, id string) (*domain.Incident, error)
	Find(ctx context.Context, filter Filter) ([]*domain.Incident, error)
	Count(ctx context.Context, filter Filter) (int, error)
	Insert(ctx context.Context, incident *domain.Incident) error
	Update(ctx context.Context, incident *domain.Incident) (int64, error)
	Remove(ctx context.Context, id string) (int64, error)
}
