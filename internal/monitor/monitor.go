package monitor

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"k8s.io/klog/v2"

	"github.com/podwatch/podwatch/internal/config"
	"github.com/podwatch/podwatch/internal/db"
	"github.com/podwatch/podwatch/internal/diff"
	"github.com/podwatch/podwatch/internal/dispatch"
	"github.com/podwatch/podwatch/internal/inventory"
	"github.com/podwatch/podwatch/internal/policy"
	"github.com/podwatch/podwatch/internal/state"
	"github.com/podwatch/podwatch/internal/types"
)

const (
	retryInitialInterval = 15 * time.Second
	retryMaxInterval     = 10 * time.Minute

	cleanupSchedule = "0 0 * * *"
)

// Source supplies one full cluster observation per poll.
type Source interface {
	ListResources(ctx context.Context, namespaces []string, includeNodes bool) (*inventory.Result, error)
}

// Sender fans one fired alert out to its destinations.
type Sender interface {
	Dispatch(ctx context.Context, alert types.AlertRecord, destinations []types.AlertDestination) []types.DeliveryOutcome
}

// Monitor drives the poll loop: fetch, diff, persist, evaluate,
// dispatch. A fetch failure aborts the cycle before the baseline is
// touched, so the next successful poll still sees every change.
type Monitor struct {
	source    Source
	store     db.Store
	state     *state.SnapshotStore
	config    *config.Manager
	gate      *policy.Gate
	newSender func(config.Config) Sender
}

func New(source Source, store db.Store, cfg *config.Manager) *Monitor {
	return &Monitor{
		source: source,
		store:  store,
		state:  state.NewSnapshotStore(),
		config: cfg,
		gate:   policy.NewGate(),
		newSender: func(c config.Config) Sender {
			return dispatch.NewDispatcher(dispatch.BuildChannels(c))
		},
	}
}

// State exposes the in-memory baseline for read endpoints.
func (m *Monitor) State() *state.SnapshotStore {
	return m.state
}

// Run polls until the context is cancelled. Consecutive failures back
// off exponentially up to a ceiling; the first success resets the
// delay to the configured refresh interval.
func (m *Monitor) Run(ctx context.Context) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = retryInitialInterval
	bo.MaxInterval = retryMaxInterval
	bo.MaxElapsedTime = 0

	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cleanupSchedule, func() {
		if _, err := m.RunCleanup(0); err != nil {
			klog.Errorf("Scheduled cleanup failed: %v", err)
		}
	}); err != nil {
		return fmt.Errorf("failed to schedule cleanup: %w", err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	klog.Info("Monitor loop started")
	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			klog.Info("Monitor loop stopped")
			return ctx.Err()
		case <-timer.C:
		}

		var wait time.Duration
		if err := m.RunCycle(ctx); err != nil {
			wait = bo.NextBackOff()
			klog.Errorf("Poll cycle failed: %v (next attempt in %s)", err, wait.Round(time.Second))
		} else {
			bo.Reset()
			wait = time.Duration(m.config.Get().Monitoring.RefreshInterval) * time.Second
		}
		timer.Reset(wait)
	}
}

// RunCycle executes one poll. Persistence happens before alert
// evaluation and before the baseline swap, so history never misses an
// event that alerting saw.
func (m *Monitor) RunCycle(ctx context.Context) error {
	cfg := m.config.Get()

	result, err := m.source.ListResources(ctx, cfg.Monitoring.Namespaces, cfg.Monitoring.MonitorNodes)
	if err != nil {
		return fmt.Errorf("inventory fetch failed: %w", err)
	}

	now := time.Now()
	events := diff.Compute(m.state.Baseline(), result.Snapshots, now.UTC())
	if len(events) > 0 {
		klog.Infof("Poll cycle detected %d change(s) across %d resource(s)", len(events), len(result.Snapshots))
	}

	// Swapping the baseline past an unrecorded event would lose the
	// transition for good, so a failed history write aborts the cycle
	// and the next successful poll re-detects it. A duplicate event is
	// the accepted cost.
	if err := m.persist(result, events); err != nil {
		return fmt.Errorf("failed to persist change history: %w", err)
	}
	m.state.Replace(result.Snapshots)
	m.evaluate(ctx, events, cfg, now)
	return nil
}

// persist writes the observation and its events. Snapshot, port, and
// metric write failures are logged and skipped; a change-event write
// failure is returned because those rows are the audit trail.
func (m *Monitor) persist(result *inventory.Result, events []types.ChangeEvent) error {
	for _, snap := range result.Snapshots {
		if err := m.store.UpsertCurrent(snap); err != nil {
			klog.Errorf("Failed to persist snapshot %s: %v", snap.Key(), err)
			continue
		}
		if snap.Kind == types.KindPod {
			if err := m.store.ReplacePorts(snap.Key(), snap.Ports); err != nil {
				klog.Errorf("Failed to persist ports for %s: %v", snap.Key(), err)
			}
			sample := types.MetricSample{
				Namespace:  snap.Namespace,
				Name:       snap.Name,
				CPU:        snap.Resources.CPU,
				Memory:     snap.Resources.Memory,
				Disk:       snap.Resources.Disk,
				CapturedAt: snap.ObservedAt,
			}
			if err := m.store.RecordMetrics(sample); err != nil {
				klog.Errorf("Failed to record metrics for %s: %v", snap.Key(), err)
			}
		}
	}

	for _, stats := range result.NodeStats {
		if err := m.store.UpsertNodeStats(stats); err != nil {
			klog.Errorf("Failed to persist node stats for %s: %v", stats.Name, err)
		}
	}

	var firstErr error
	for _, event := range events {
		if err := m.store.RecordChange(event); err != nil {
			klog.Errorf("Failed to record change %s for %s: %v", event.Type, event.Key(), err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (m *Monitor) evaluate(ctx context.Context, events []types.ChangeEvent, cfg config.Config, now time.Time) {
	sender := m.newSender(cfg)
	for _, event := range events {
		alert, fire := m.gate.Evaluate(event, cfg, now)
		if alert == nil {
			continue
		}
		if err := m.store.RecordAlert(*alert); err != nil {
			klog.Errorf("Failed to record alert %s: %v", alert.ID, err)
		}
		if !fire {
			continue
		}
		for _, outcome := range sender.Dispatch(ctx, *alert, cfg.Destinations) {
			if err := m.store.RecordDelivery(outcome); err != nil {
				klog.Errorf("Failed to record delivery outcome for alert %s: %v", outcome.AlertID, err)
			}
		}
	}
}

// RunCleanup prunes history older than the retention horizon and
// records a maintenance alert summarizing what was removed. A positive
// days argument overrides the configured retention. Safe to call
// repeatedly; a second run over the same horizon deletes nothing.
func (m *Monitor) RunCleanup(days int) (map[string]int64, error) {
	if days <= 0 {
		days = m.config.Get().Monitoring.RetentionDays
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -days)

	klog.Infof("Running cleanup of data older than %s", cutoff.Format(time.RFC3339))
	counts, err := m.store.Prune(cutoff)
	if err != nil {
		return counts, fmt.Errorf("cleanup failed: %w", err)
	}

	alert := types.AlertRecord{
		ID:        uuid.NewString(),
		Subject:   "Scheduled cleanup completed",
		Message:   cleanupSummary(days, counts),
		Level:     types.SeverityInfo,
		CreatedAt: time.Now().UTC(),
	}
	if err := m.store.RecordAlert(alert); err != nil {
		klog.Errorf("Failed to record cleanup alert: %v", err)
	}
	return counts, nil
}

func cleanupSummary(retentionDays int, counts map[string]int64) string {
	tables := make([]string, 0, len(counts))
	for table := range counts {
		tables = append(tables, table)
	}
	sort.Strings(tables)

	var total int64
	parts := make([]string, 0, len(tables))
	for _, table := range tables {
		if counts[table] == 0 {
			continue
		}
		total += counts[table]
		parts = append(parts, fmt.Sprintf("%s: %d", table, counts[table]))
	}
	if total == 0 {
		return fmt.Sprintf("Removed no rows older than %d days", retentionDays)
	}
	return fmt.Sprintf("Removed %d rows older than %d days (%s)", total, retentionDays, strings.Join(parts, ", "))
}
