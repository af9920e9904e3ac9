package db

import (
	"time"

	"github.com/podwatch/podwatch/internal/types"
)

// ChangeQuery selects change events. Zero fields match everything.
type ChangeQuery struct {
	Since     time.Time
	Until     time.Time
	Namespace string
	Name      string
	Type      types.ChangeType
	Limit     int
}

// Store is the durable history boundary: current state per key,
// append-only change/metric/alert/delivery history, and the config
// blob. Write failures are reported to the caller, never swallowed.
type Store interface {
	UpsertCurrent(snap types.ResourceSnapshot) error
	ReplacePorts(key types.SnapshotKey, ports []types.PortInfo) error
	UpsertNodeStats(stats types.NodeStats) error

	RecordChange(event types.ChangeEvent) error
	RecordMetrics(sample types.MetricSample) error
	RecordAlert(alert types.AlertRecord) error
	RecordDelivery(outcome types.DeliveryOutcome) error

	QueryChanges(q ChangeQuery) ([]types.ChangeEvent, error)
	QueryMetrics(key types.SnapshotKey, window time.Duration) ([]types.MetricSample, error)
	QueryNodeStats() ([]types.NodeStats, error)

	// Prune removes rows older than the cutoff from every
	// history-bearing table and returns per-table deleted counts.
	Prune(cutoff time.Time) (map[string]int64, error)

	LoadConfig() ([]byte, bool, error)
	SaveConfig(raw []byte) error

	Ping() error
	Close() error
}
