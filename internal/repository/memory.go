package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"cropguide/backend/pkg/models"
)

// MemoryStore is an in-memory Repository used when no database is
// configured and in tests. Stored records are copied on the way in and out.
type MemoryStore struct {
	mu      sync.RWMutex
	farmers map[string]models.Farmer
	emails  map[string]string
	history []models.HistoryEntry
	now     func() time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		farmers: make(map[string]models.Farmer),
		emails:  make(map[string]string),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) GetFarmer(_ context.Context, id string) (*models.Farmer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	farmer, ok := s.farmers[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &farmer, nil
}

func (s *MemoryStore) GetFarmerByEmail(ctx context.Context, email string) (*models.Farmer, error) {
	s.mu.RLock()
	id, ok := s.emails[email]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return s.GetFarmer(ctx, id)
}

func (s *MemoryStore) CreateFarmer(_ context.Context, farmer *models.Farmer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.emails[farmer.Email]; ok {
		*farmer = s.farmers[id]
		return nil
	}
	now := s.now()
	farmer.ID = uuid.New().String()
	farmer.CreatedAt = now
	farmer.UpdatedAt = now
	s.farmers[farmer.ID] = *farmer
	s.emails[farmer.Email] = farmer.ID
	return nil
}

func (s *MemoryStore) UpdateFarmerName(_ context.Context, id, name string) (*models.Farmer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	farmer, ok := s.farmers[id]
	if !ok {
		return nil, ErrNotFound
	}
	farmer.Name = name
	farmer.UpdatedAt = s.now()
	s.farmers[id] = farmer
	return &farmer, nil
}

func (s *MemoryStore) SaveHistory(_ context.Context, entry *models.HistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now()
	}
	s.history = append(s.history, *entry)
	return nil
}

func (s *MemoryStore) ListHistory(_ context.Context, farmerID string, filter HistoryFilter) ([]*models.HistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := []*models.HistoryEntry{}
	for i := len(s.history) - 1; i >= 0; i-- {
		entry := s.history[i]
		if entry.FarmerID != farmerID || (filter.Flow != "" && entry.Flow != filter.Flow) {
			continue
		}
		entries = append(entries, &entry)
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].CreatedAt.After(entries[j].CreatedAt)
	})
	if len(entries) > filter.limit() {
		entries = entries[:filter.limit()]
	}
	return entries, nil
}

func (s *MemoryStore) DeleteHistory(_ context.Context, farmerID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.history[:0]
	var removed int64
	for _, entry := range s.history {
		if entry.FarmerID == farmerID {
			removed++
			continue
		}
		kept = append(kept, entry)
	}
	s.history = kept
	return removed, nil
}
