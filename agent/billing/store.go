package billing

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// RecordStore is the persistent record store. No multi-record transaction is
// assumed; UpdateRecord applies to exactly one period.
type RecordStore interface {
	GetRecords(ctx context.Context, userID string) ([]Record, error)
	GetRecord(ctx context.Context, userID, periodKey string) (*Record, error)
	UpdateRecord(ctx context.Context, userID, periodKey string, patch RecordPatch) error
}

// MemoryStore keeps records in process. It backs local runs and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]map[string]Record // user -> period -> record
}

func NewMemoryStore(seed ...Record) *MemoryStore {
	s := &MemoryStore{records: make(map[string]map[string]Record)}
	for _, r := range seed {
		s.Put(r)
	}
	return s
}

// Put inserts or replaces a record. Record creation belongs to the external
// billing process; Put exists for seeding.
func (s *MemoryStore) Put(r Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byPeriod, ok := s.records[r.UserID]
	if !ok {
		byPeriod = make(map[string]Record)
		s.records[r.UserID] = byPeriod
	}
	byPeriod[r.PeriodKey] = r.Clone()
}

func (s *MemoryStore) GetRecords(ctx context.Context, userID string) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	byPeriod := s.records[userID]
	out := make([]Record, 0, len(byPeriod))
	for _, r := range byPeriod {
		out = append(out, r.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PeriodKey < out[j].PeriodKey })
	return out, nil
}

func (s *MemoryStore) GetRecord(ctx context.Context, userID, periodKey string) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.records[userID][periodKey]
	if !ok {
		return nil, fmt.Errorf("%w: user=%s period=%s", ErrRecordNotFound, userID, periodKey)
	}
	out := r.Clone()
	return &out, nil
}

func (s *MemoryStore) UpdateRecord(ctx context.Context, userID, periodKey string, patch RecordPatch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[userID][periodKey]
	if !ok {
		return fmt.Errorf("%w: user=%s period=%s", ErrRecordNotFound, userID, periodKey)
	}
	r.Subscription = patch.Subscription
	r.Subscription.ChangeHistory = append([]ChangeRecord(nil), patch.Subscription.ChangeHistory...)
	if patch.Charges != nil {
		r.Charges = *patch.Charges
	}
	s.records[userID][periodKey] = r
	return nil
}
