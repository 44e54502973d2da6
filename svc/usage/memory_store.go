package usage

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/dmitrymomot/entitle/svc/plan"
)

// MemoryStore keeps records in process memory. Intended for tests and single-node development.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]map[time.Time]*Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]map[time.Time]*Record)}
}

func (s *MemoryStore) Append(_ context.Context, userID string, day time.Time, metric plan.Metric, e Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	days, ok := s.records[userID]
	if !ok {
		days = make(map[time.Time]*Record)
		s.records[userID] = days
	}
	rec, ok := days[day]
	if !ok {
		rec = &Record{UserID: userID, Date: day}
		days[day] = rec
	}
	e.Attributes = maps.Clone(e.Attributes)
	rec.append(metric, e)
	return nil
}

func (s *MemoryStore) Sum(_ context.Context, userID string, metric plan.Metric, from, to time.Time) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var total int64
	for day, rec := range s.records[userID] {
		if inRange(day, from, to) {
			total += rec.Count(metric)
		}
	}
	return total, nil
}

func (s *MemoryStore) Records(_ context.Context, userID string, from, to time.Time) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Record
	for day, rec := range s.records[userID] {
		if !inRange(day, from, to) {
			continue
		}
		cp := *rec
		cp.ContentGenerations = slices.Clone(rec.ContentGenerations)
		cp.AudioTranscriptions = slices.Clone(rec.AudioTranscriptions)
		cp.ImageGenerations = slices.Clone(rec.ImageGenerations)
		cp.APICalls = slices.Clone(rec.APICalls)
		out = append(out, cp)
	}
	slices.SortFunc(out, func(a, b Record) int { return a.Date.Compare(b.Date) })
	return out, nil
}

func inRange(day, from, to time.Time) bool {
	return !day.Before(from) && day.Before(to)
}
