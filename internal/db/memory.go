package db

import (
	"sort"
	"sync"
	"time"

	"github.com/podwatch/podwatch/internal/types"
)

// MemoryStore is an in-memory Store used by tests and by components
// that need a history store without a database at hand.
type MemoryStore struct {
	mu sync.RWMutex

	current   map[types.SnapshotKey]types.ResourceSnapshot
	ports     map[types.SnapshotKey][]types.PortInfo
	nodeStats map[string]types.NodeStats

	changes    []types.ChangeEvent
	metrics    []types.MetricSample
	alerts     []types.AlertRecord
	deliveries []types.DeliveryOutcome

	configBlob []byte
	hasConfig  bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		current:   make(map[types.SnapshotKey]types.ResourceSnapshot),
		ports:     make(map[types.SnapshotKey][]types.PortInfo),
		nodeStats: make(map[string]types.NodeStats),
	}
}

func (s *MemoryStore) UpsertCurrent(snap types.ResourceSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current[snap.Key()] = snap
	return nil
}

func (s *MemoryStore) ReplacePorts(key types.SnapshotKey, ports []types.PortInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ports[key] = append([]types.PortInfo(nil), ports...)
	return nil
}

func (s *MemoryStore) UpsertNodeStats(stats types.NodeStats) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodeStats[stats.Name] = stats
	return nil
}

func (s *MemoryStore) RecordChange(event types.ChangeEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.changes = append(s.changes, event)
	return nil
}

func (s *MemoryStore) RecordMetrics(sample types.MetricSample) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics = append(s.metrics, sample)
	return nil
}

func (s *MemoryStore) RecordAlert(alert types.AlertRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = append(s.alerts, alert)
	return nil
}

func (s *MemoryStore) RecordDelivery(outcome types.DeliveryOutcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deliveries = append(s.deliveries, outcome)
	return nil
}

func (s *MemoryStore) QueryChanges(q ChangeQuery) ([]types.ChangeEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []types.ChangeEvent
	for _, e := range s.changes {
		if !q.Since.IsZero() && e.OccurredAt.Before(q.Since) {
			continue
		}
		if !q.Until.IsZero() && e.OccurredAt.After(q.Until) {
			continue
		}
		if q.Namespace != "" && e.Namespace != q.Namespace {
			continue
		}
		if q.Name != "" && e.Name != q.Name {
			continue
		}
		if q.Type != "" && e.Type != q.Type {
			continue
		}
		results = append(results, e)
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].OccurredAt.After(results[j].OccurredAt)
	})
	if q.Limit > 0 && len(results) > q.Limit {
		results = results[:q.Limit]
	}
	return results, nil
}

func (s *MemoryStore) QueryMetrics(key types.SnapshotKey, window time.Duration) ([]types.MetricSample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cutoff := time.Now().Add(-window)
	var results []types.MetricSample
	for _, m := range s.metrics {
		if m.Namespace == key.Namespace && m.Name == key.Name && m.CapturedAt.After(cutoff) {
			results = append(results, m)
		}
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].CapturedAt.Before(results[j].CapturedAt)
	})
	return results, nil
}

func (s *MemoryStore) QueryNodeStats() ([]types.NodeStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]types.NodeStats, 0, len(s.nodeStats))
	for _, n := range s.nodeStats {
		results = append(results, n)
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Name < results[j].Name })
	return results, nil
}

func (s *MemoryStore) Prune(cutoff time.Time) (map[string]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := make(map[string]int64)

	kept := s.changes[:0]
	for _, e := range s.changes {
		if e.OccurredAt.Before(cutoff) {
			if e.Type == types.ChangeImage {
				deleted["image_history"]++
			} else {
				deleted["status_history"]++
			}
			continue
		}
		kept = append(kept, e)
	}
	s.changes = kept

	keptMetrics := s.metrics[:0]
	for _, m := range s.metrics {
		if m.CapturedAt.Before(cutoff) {
			deleted["pod_metrics"]++
			continue
		}
		keptMetrics = append(keptMetrics, m)
	}
	s.metrics = keptMetrics

	keptAlerts := s.alerts[:0]
	for _, a := range s.alerts {
		if a.CreatedAt.Before(cutoff) {
			deleted["alerts"]++
			continue
		}
		keptAlerts = append(keptAlerts, a)
	}
	s.alerts = keptAlerts

	keptDeliveries := s.deliveries[:0]
	for _, d := range s.deliveries {
		if d.AttemptedAt.Before(cutoff) {
			deleted["delivery_outcomes"]++
			continue
		}
		keptDeliveries = append(keptDeliveries, d)
	}
	s.deliveries = keptDeliveries

	for key, snap := range s.current {
		if snap.ObservedAt.Before(cutoff) {
			delete(s.current, key)
			delete(s.ports, key)
			deleted["pod_status"]++
		}
	}

	return deleted, nil
}

func (s *MemoryStore) LoadConfig() ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.configBlob, s.hasConfig, nil
}

func (s *MemoryStore) SaveConfig(raw []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.configBlob = append([]byte(nil), raw...)
	s.hasConfig = true
	return nil
}

// Alerts returns recorded alerts, newest first. Test/inspection helper.
func (s *MemoryStore) Alerts() []types.AlertRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := append([]types.AlertRecord(nil), s.alerts...)
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// Deliveries returns recorded delivery outcomes. Test/inspection helper.
func (s *MemoryStore) Deliveries() []types.DeliveryOutcome {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]types.DeliveryOutcome(nil), s.deliveries...)
}

// Current returns the current snapshot row for a key, if present.
func (s *MemoryStore) Current(key types.SnapshotKey) (types.ResourceSnapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.current[key]
	return snap, ok
}

func (s *MemoryStore) Ping() error { return nil }

func (s *MemoryStore) Close() error { return nil }
