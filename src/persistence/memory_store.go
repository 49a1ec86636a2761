package persistence

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jiaming2012/tick-analytics/src/models"
)

// MemoryStore is used when no database is configured.
type MemoryStore struct {
	mu        sync.RWMutex
	windows   map[string][]models.Window
	snapshots map[string][]*models.MetricsSnapshot
	triggers  []models.AlertTrigger
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		windows:   make(map[string][]models.Window),
		snapshots: make(map[string][]*models.MetricsSnapshot),
	}
}

func (s *MemoryStore) AppendWindows(ctx context.Context, windows []models.Window) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, w := range windows {
		series := s.windows[w.Symbol]
		if n := len(series); n > 0 && !w.WindowEnd.After(series[n-1].WindowEnd) {
			continue
		}
		s.windows[w.Symbol] = append(series, w)
	}

	return nil
}

func (s *MemoryStore) AppendSnapshots(ctx context.Context, snapshots []*models.MetricsSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, snap := range snapshots {
		s.snapshots[snap.Symbol] = append(s.snapshots[snap.Symbol], snap)
	}

	return nil
}

func (s *MemoryStore) AppendTriggers(ctx context.Context, triggers []models.AlertTrigger) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range triggers {
		duplicate := false
		for _, existing := range s.triggers {
			if existing.Key() == t.Key() {
				duplicate = true
				break
			}
		}

		if !duplicate {
			s.triggers = append(s.triggers, t)
		}
	}

	return nil
}

func (s *MemoryStore) QueryWindows(ctx context.Context, symbol string, from, to time.Time) ([]models.Window, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Window
	for _, w := range s.windows[symbol] {
		if inRange(w.WindowEnd, from, to) {
			out = append(out, w)
		}
	}

	return out, nil
}

func (s *MemoryStore) QuerySnapshots(ctx context.Context, symbol string, from, to time.Time) ([]*models.MetricsSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.MetricsSnapshot
	for _, snap := range s.snapshots[symbol] {
		if inRange(snap.Timestamp, from, to) {
			out = append(out, snap)
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (s *MemoryStore) QueryTriggers(ctx context.Context, from, to time.Time) ([]models.AlertTrigger, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.AlertTrigger
	for _, t := range s.triggers {
		if inRange(t.WindowTimestamp, from, to) {
			out = append(out, t)
		}
	}

	return out, nil
}

func (s *MemoryStore) Prune(ctx context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed int64
	for sym, series := range s.windows {
		kept := series[:0]
		for _, w := range series {
			if w.WindowEnd.Before(before) {
				removed++
				continue
			}
			kept = append(kept, w)
		}
		s.windows[sym] = kept
	}

	for sym, series := range s.snapshots {
		kept := series[:0]
		for _, snap := range series {
			if snap.Timestamp.Before(before) {
				removed++
				continue
			}
			kept = append(kept, snap)
		}
		s.snapshots[sym] = kept
	}

	kept := s.triggers[:0]
	for _, t := range s.triggers {
		if t.WindowTimestamp.Before(before) {
			removed++
			continue
		}
		kept = append(kept, t)
	}
	s.triggers = kept

	return removed, nil
}

func (s *MemoryStore) Close() error {
	return nil
}

func inRange(ts, from, to time.Time) bool {
	if !from.IsZero() && ts.Before(from) {
		return false
	}

	if !to.IsZero() && ts.After(to) {
		return false
	}

	return true
}
