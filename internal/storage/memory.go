package storage

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps everything in process memory. It backs dry runs and
// simulations, and serialises all writes behind one mutex.
type MemoryStore struct {
	mu           sync.Mutex
	items        []Item
	observations map[string][]PriceObservation
	alerts       []AlertRecord
	nextID       int64
	now          func() time.Time
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		observations: make(map[string][]PriceObservation),
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// LatestObservation returns the last observation appended for itemID.
func (m *MemoryStore) LatestObservation(_ context.Context, itemID string) (PriceObservation, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	series := m.observations[itemID]
	if len(series) == 0 {
		return PriceObservation{}, false, nil
	}
	return series[len(series)-1], true, nil
}

// AppendObservation assigns the next id and stores obs, stamping it with the
// current time when ObservedAt is zero.
func (m *MemoryStore) AppendObservation(_ context.Context, obs PriceObservation) (PriceObservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	obs.ID = m.nextID
	if obs.ObservedAt.IsZero() {
		obs.ObservedAt = m.now()
	}
	m.observations[obs.ItemID] = append(m.observations[obs.ItemID], obs)
	return obs, nil
}

// ListObservationsBetween lists an item's observations in [from, to) in append order.
func (m *MemoryStore) ListObservationsBetween(_ context.Context, itemID string, from, to time.Time) ([]PriceObservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]PriceObservation, 0)
	for _, obs := range m.observations[itemID] {
		if obs.ObservedAt.Before(from) || !obs.ObservedAt.Before(to) {
			continue
		}
		out = append(out, obs)
	}
	return out, nil
}

// ListRecentObservations lists at most limit observations, newest first.
func (m *MemoryStore) ListRecentObservations(_ context.Context, itemID string, limit int) ([]PriceObservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	series := m.observations[itemID]
	out := make([]PriceObservation, 0, limit)
	for i := len(series) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, series[i])
	}
	return out, nil
}

// ListItems returns a copy of the watch-list in insertion order.
func (m *MemoryStore) ListItems(_ context.Context) ([]Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Item, len(m.items))
	copy(out, m.items)
	return out, nil
}

// GetItem looks up a single watch-list item.
func (m *MemoryStore) GetItem(_ context.Context, itemID string) (Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, item := range m.items {
		if item.ID == itemID {
			return item, nil
		}
	}
	return Item{}, ErrItemNotFound
}

// AddItem puts an item on the watch-list.
func (m *MemoryStore) AddItem(_ context.Context, item Item) (Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.items {
		if existing.ID == item.ID {
			return Item{}, ErrItemExists
		}
	}
	item.AddedAt = m.now()
	m.items = append(m.items, item)
	return item, nil
}

// RemoveItem drops an item from the watch-list. Its history is kept.
func (m *MemoryStore) RemoveItem(_ context.Context, itemID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, item := range m.items {
		if item.ID == itemID {
			m.items = append(m.items[:i], m.items[i+1:]...)
			return nil
		}
	}
	return ErrItemNotFound
}

// InsertAlert records an alert dispatch attempt.
func (m *MemoryStore) InsertAlert(_ context.Context, alert AlertRecord) (AlertRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	alert.ID = m.nextID
	alert.CreatedAt = m.now()
	m.alerts = append(m.alerts, alert)
	return alert, nil
}

// ListRecentAlerts lists at most limit alerts, newest first.
func (m *MemoryStore) ListRecentAlerts(_ context.Context, limit int) ([]AlertRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]AlertRecord, 0, limit)
	for i := len(m.alerts) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.alerts[i])
	}
	return out, nil
}

var (
	_ HistoryStore   = (*MemoryStore)(nil)
	_ WatchlistStore = (*MemoryStore)(nil)
	_ AlertStore     = (*MemoryStore)(nil)
)
