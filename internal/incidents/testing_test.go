package incidents

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/nimbusops/statuspage/internal/domain"
	"github.com/stretchr/testify/require"
)

// memStore implements Store in memory for testing. Documents are cloned on
// the way in and out so tests observe the same isolation a real document
// store provides.
type memStore struct {
	mu        sync.Mutex
	docs      map[string]*domain.Incident
	insertErr error
	updateErr error
	findErr   error
}

func newMemStore() *memStore {
	return &memStore{docs: make(map[string]*domain.Incident)}
}

func clone(incident *domain.Incident) *domain.Incident {
	raw, err := json.Marshal(incident)
	if err != nil {
		panic(err)
	}
	var out domain.Incident
	if err := json.Unmarshal(raw, &out); err != nil {
		panic(err)
	}
	return &out
}

func (m *memStore) Get(_ context.Context, id string) (*domain.Incident, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if doc, ok := m.docs[id]; ok {
		return clone(doc), nil
	}
	return nil, ErrIncidentNotFound
}

func (m *memStore) Find(_ context.Context, filter Filter) ([]*domain.Incident, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return nil, m.findErr
	}
	var out []*domain.Incident
	for _, doc := range m.docs {
		if matches(doc, filter) {
			out = append(out, clone(doc))
		}
	}
	return out, nil
}

func (m *memStore) Count(_ context.Context, filter Filter) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, doc := range m.docs {
		if matches(doc, filter) {
			count++
		}
	}
	return count, nil
}

func matches(doc *domain.Incident, filter Filter) bool {
	if filter.Type != nil && doc.Type != *filter.Type {
		return false
	}
	if filter.IsResolved != nil && doc.IsResolved != *filter.IsResolved {
		return false
	}
	if filter.ScheduledStatus != nil && doc.ScheduledStatus != *filter.ScheduledStatus {
		return false
	}
	if filter.AutoStatusUpdates != nil && doc.ScheduledAutoStatusUpdates != *filter.AutoStatusUpdates {
		return false
	}
	if filter.ScheduledStartBefore != nil {
		if doc.ScheduledStartTime == nil || doc.ScheduledStartTime.After(*filter.ScheduledStartBefore) {
			return false
		}
	}
	if filter.ScheduledEndBefore != nil {
		if doc.ScheduledEndTime == nil || doc.ScheduledEndTime.After(*filter.ScheduledEndBefore) {
			return false
		}
	}
	return true
}

func (m *memStore) Insert(_ context.Context, incident *domain.Incident) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		return m.insertErr
	}
	m.docs[incident.ID] = clone(incident)
	return nil
}

func (m *memStore) Update(_ context.Context, incident *domain.Incident) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return 0, m.updateErr
	}
	if _, ok := m.docs[incident.ID]; !ok {
		return 0, nil
	}
	m.docs[incident.ID] = clone(incident)
	return 1, nil
}

func (m *memStore) Remove(_ context.Context, id string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[id]; !ok {
		return 0, nil
	}
	delete(m.docs, id)
	return 1, nil
}

// published is one recorded publisher call.
type published struct {
	Topic      string
	RoutingKey string
	Payload    any
}

// fakePublisher implements bus.Publisher recording every call.
type fakePublisher struct {
	mu         sync.Mutex
	calls      []published
	publishErr error
}

func (p *fakePublisher) Publish(_ context.Context, payload any, topic, routingKey string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.publishErr != nil {
		return p.publishErr
	}
	p.calls = append(p.calls, published{Topic: topic, RoutingKey: routingKey, Payload: payload})
	return nil
}

func (p *fakePublisher) routingKeys() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	keys := make([]string, 0, len(p.calls))
	for _, c := range p.calls {
		keys = append(keys, c.RoutingKey)
	}
	return keys
}

// fakeSyncer implements ComponentSyncer recording the last status pushed
// per component.
type fakeSyncer struct {
	mu       sync.Mutex
	statuses map[string]domain.ComponentStatus
	err      error
}

func newFakeSyncer() *fakeSyncer {
	return &fakeSyncer{statuses: make(map[string]domain.ComponentStatus)}
}

func (s *fakeSyncer) SetStatus(_ context.Context, componentID string, status domain.ComponentStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.statuses[componentID] = status
	return nil
}

// newTestService builds a service over the in-memory store with the clock
// pinned to a fixed instant.
func newTestService(t *testing.T) (*Service, *memStore, *fakePublisher, time.Time) {
	t.Helper()
	store := newMemStore()
	publisher := &fakePublisher{}
	service := NewService(store, publisher)

	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	service.common.now = func() time.Time { return now }
	return service, store, publisher, now
}

func mustGet(t *testing.T, store *memStore, id string) *domain.Incident {
	t.Helper()
	incident, err := store.Get(context.Background(), id)
	require.NoError(t, err)
	return incident
}
