package db

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"k8s.io/klog/v2"

	"github.com/podwatch/podwatch/internal/types"
)

// PostgresStore is the durable Store implementation.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(connStr string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	store := &PostgresStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *PostgresStore) initSchema() error {
	schema := `
	-- Config: key-value blob storage
	CREATE TABLE IF NOT EXISTS config (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at TIMESTAMP NOT NULL DEFAULT NOW()
	);

	-- Current state: at most one row per (kind, namespace, name)
	CREATE TABLE IF NOT EXISTS pod_status (
		kind TEXT NOT NULL,
		namespace TEXT NOT NULL,
		name TEXT NOT NULL,
		status TEXT NOT NULL,
		node TEXT,
		image TEXT,
		internal_ip TEXT,
		external_ip TEXT,
		created_at TIMESTAMP NOT NULL DEFAULT NOW(),
		PRIMARY KEY (kind, namespace, name)
	);

	-- Status history: append-only, also carries new/removed transitions
	CREATE TABLE IF NOT EXISTS status_history (
		id SERIAL PRIMARY KEY,
		kind TEXT NOT NULL,
		namespace TEXT NOT NULL,
		name TEXT NOT NULL,
		event_type TEXT NOT NULL,
		old_status TEXT,
		new_status TEXT,
		created_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_status_history_created ON status_history(created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_status_history_key ON status_history(namespace, name);

	-- Image history: append-only
	CREATE TABLE IF NOT EXISTS image_history (
		id SERIAL PRIMARY KEY,
		kind TEXT NOT NULL,
		namespace TEXT NOT NULL,
		name TEXT NOT NULL,
		old_image TEXT,
		new_image TEXT,
		created_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_image_history_created ON image_history(created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_image_history_key ON image_history(namespace, name);

	-- Metric samples: append-only, queried by key and trailing window
	CREATE TABLE IF NOT EXISTS pod_metrics (
		id SERIAL PRIMARY KEY,
		namespace TEXT NOT NULL,
		name TEXT NOT NULL,
		cpu_usage TEXT,
		memory_usage TEXT,
		disk_usage TEXT,
		created_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_pod_metrics_lookup ON pod_metrics(namespace, name, created_at);

	-- Exposed ports: replaced wholesale per key each poll
	CREATE TABLE IF NOT EXISTS pod_ports (
		id SERIAL PRIMARY KEY,
		namespace TEXT NOT NULL,
		name TEXT NOT NULL,
		port_number INTEGER NOT NULL,
		protocol TEXT,
		is_exposed BOOLEAN,
		service_name TEXT,
		external_ip TEXT,
		created_at TIMESTAMP NOT NULL DEFAULT NOW(),
		UNIQUE (namespace, name, port_number)
	);

	-- Node stats: one current row per node
	CREATE TABLE IF NOT EXISTS node_stats (
		node_name TEXT PRIMARY KEY,
		status TEXT,
		cpu TEXT,
		memory TEXT,
		pods INTEGER,
		capacity_cpu TEXT,
		capacity_memory TEXT,
		created_at TIMESTAMP NOT NULL DEFAULT NOW()
	);

	-- Alerts: one row per fired alert decision
	CREATE TABLE IF NOT EXISTS alerts (
		id TEXT PRIMARY KEY,
		subject TEXT NOT NULL,
		message TEXT,
		level TEXT NOT NULL,
		namespace TEXT,
		name TEXT,
		created_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_alerts_lookup ON alerts(namespace, name, level);
	CREATE INDEX IF NOT EXISTS idx_alerts_created ON alerts(created_at DESC);

	-- Delivery outcomes: append-only audit of dispatch attempts
	CREATE TABLE IF NOT EXISTS delivery_outcomes (
		id SERIAL PRIMARY KEY,
		alert_id TEXT NOT NULL,
		destination_id TEXT NOT NULL,
		status TEXT NOT NULL,
		error TEXT,
		attempted_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_delivery_alert ON delivery_outcomes(alert_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

const configKey = "system_config"

func (s *PostgresStore) LoadConfig() ([]byte, bool, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM config WHERE key = $1`, configKey).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to load config: %w", err)
	}
	return []byte(value), true, nil
}

func (s *PostgresStore) SaveConfig(raw []byte) error {
	_, err := s.db.Exec(`
		INSERT INTO config (key, value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET
			value = EXCLUDED.value,
			updated_at = NOW()
	`, configKey, string(raw))
	if err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpsertCurrent(snap types.ResourceSnapshot) error {
	_, err := s.db.Exec(`
		INSERT INTO pod_status (kind, namespace, name, status, node, image, internal_ip, external_ip, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (kind, namespace, name) DO UPDATE SET
			status = EXCLUDED.status,
			node = EXCLUDED.node,
			image = EXCLUDED.image,
			internal_ip = EXCLUDED.internal_ip,
			external_ip = EXCLUDED.external_ip,
			created_at = EXCLUDED.created_at
	`, snap.Kind, snap.Namespace, snap.Name, snap.Status, snap.Node, snap.Image,
		snap.InternalIP, snap.ExternalIP, snap.ObservedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert current state for %s: %w", snap.Key(), err)
	}
	return nil
}

func (s *PostgresStore) ReplacePorts(key types.SnapshotKey, ports []types.PortInfo) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
		DELETE FROM pod_ports WHERE namespace = $1 AND name = $2
	`, key.Namespace, key.Name); err != nil {
		return fmt.Errorf("failed to clear ports for %s: %w", key, err)
	}

	for _, p := range ports {
		if _, err := tx.Exec(`
			INSERT INTO pod_ports (namespace, name, port_number, protocol, is_exposed, service_name, external_ip)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (namespace, name, port_number) DO NOTHING
		`, key.Namespace, key.Name, p.Port, p.Protocol, p.Exposed, p.ServiceName, p.ExternalIP); err != nil {
			return fmt.Errorf("failed to insert port %d for %s: %w", p.Port, key, err)
		}
	}

	return tx.Commit()
}

func (s *PostgresStore) UpsertNodeStats(stats types.NodeStats) error {
	_, err := s.db.Exec(`
		INSERT INTO node_stats (node_name, status, cpu, memory, pods, capacity_cpu, capacity_memory, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		ON CONFLICT (node_name) DO UPDATE SET
			status = EXCLUDED.status,
			cpu = EXCLUDED.cpu,
			memory = EXCLUDED.memory,
			pods = EXCLUDED.pods,
			capacity_cpu = EXCLUDED.capacity_cpu,
			capacity_memory = EXCLUDED.capacity_memory,
			created_at = NOW()
	`, stats.Name, stats.Status, stats.CPU, stats.Memory, stats.Pods,
		stats.CapacityCPU, stats.CapacityMemory)
	if err != nil {
		return fmt.Errorf("failed to upsert node stats for %s: %w", stats.Name, err)
	}
	return nil
}

// RecordChange appends one change event to the appropriate history
// table. Image changes go to image_history; everything else, including
// new/removed transitions, lands in status_history.
func (s *PostgresStore) RecordChange(event types.ChangeEvent) error {
	var err error
	if event.Type == types.ChangeImage {
		_, err = s.db.Exec(`
			INSERT INTO image_history (kind, namespace, name, old_image, new_image, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, event.Kind, event.Namespace, event.Name, event.OldValue, event.NewValue, event.OccurredAt)
	} else {
		_, err = s.db.Exec(`
			INSERT INTO status_history (kind, namespace, name, event_type, old_status, new_status, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, event.Kind, event.Namespace, event.Name, event.Type, event.OldValue, event.NewValue, event.OccurredAt)
	}
	if err != nil {
		return fmt.Errorf("failed to record %s for %s: %w", event.Type, event.Key(), err)
	}
	return nil
}

func (s *PostgresStore) RecordMetrics(sample types.MetricSample) error {
	_, err := s.db.Exec(`
		INSERT INTO pod_metrics (namespace, name, cpu_usage, memory_usage, disk_usage, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, sample.Namespace, sample.Name, sample.CPU, sample.Memory, sample.Disk, sample.CapturedAt)
	if err != nil {
		return fmt.Errorf("failed to record metrics for %s/%s: %w", sample.Namespace, sample.Name, err)
	}
	return nil
}

func (s *PostgresStore) RecordAlert(alert types.AlertRecord) error {
	_, err := s.db.Exec(`
		INSERT INTO alerts (id, subject, message, level, namespace, name, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, alert.ID, alert.Subject, alert.Message, alert.Level, alert.Namespace, alert.Name, alert.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to record alert %s: %w", alert.ID, err)
	}
	return nil
}

func (s *PostgresStore) RecordDelivery(outcome types.DeliveryOutcome) error {
	_, err := s.db.Exec(`
		INSERT INTO delivery_outcomes (alert_id, destination_id, status, error, attempted_at)
		VALUES ($1, $2, $3, $4, $5)
	`, outcome.AlertID, outcome.DestinationID, outcome.Status, outcome.Error, outcome.AttemptedAt)
	if err != nil {
		return fmt.Errorf("failed to record delivery outcome for alert %s: %w", outcome.AlertID, err)
	}
	return nil
}

// QueryChanges merges status and image history ordered by occurrence
// time descending.
func (s *PostgresStore) QueryChanges(q ChangeQuery) ([]types.ChangeEvent, error) {
	query := `
		SELECT kind, namespace, name, event_type AS change_type,
		       old_status AS old_value, new_status AS new_value, created_at
		FROM status_history
		UNION ALL
		SELECT kind, namespace, name, 'image_change' AS change_type,
		       old_image AS old_value, new_image AS new_value, created_at
		FROM image_history
	`
	query = "SELECT * FROM (" + query + ") AS changes WHERE 1=1"
	args := make([]interface{}, 0)

	if !q.Since.IsZero() {
		args = append(args, q.Since)
		query += fmt.Sprintf(" AND created_at >= $%d", len(args))
	}
	if !q.Until.IsZero() {
		args = append(args, q.Until)
		query += fmt.Sprintf(" AND created_at <= $%d", len(args))
	}
	if q.Namespace != "" {
		args = append(args, q.Namespace)
		query += fmt.Sprintf(" AND namespace = $%d", len(args))
	}
	if q.Name != "" {
		args = append(args, q.Name)
		query += fmt.Sprintf(" AND name = $%d", len(args))
	}
	if q.Type != "" {
		args = append(args, q.Type)
		query += fmt.Sprintf(" AND change_type = $%d", len(args))
	}

	query += " ORDER BY created_at DESC"
	if q.Limit > 0 {
		args = append(args, q.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query changes: %w", err)
	}
	defer rows.Close()

	var events []types.ChangeEvent
	for rows.Next() {
		var e types.ChangeEvent
		var oldValue, newValue sql.NullString
		if err := rows.Scan(&e.Kind, &e.Namespace, &e.Name, &e.Type, &oldValue, &newValue, &e.OccurredAt); err != nil {
			return nil, fmt.Errorf("failed to scan change row: %w", err)
		}
		e.OldValue = oldValue.String
		e.NewValue = newValue.String
		events = append(events, e)
	}
	return events, rows.Err()
}

func (s *PostgresStore) QueryMetrics(key types.SnapshotKey, window time.Duration) ([]types.MetricSample, error) {
	cutoff := time.Now().Add(-window)
	rows, err := s.db.Query(`
		SELECT namespace, name, cpu_usage, memory_usage, disk_usage, created_at
		FROM pod_metrics
		WHERE namespace = $1 AND name = $2 AND created_at > $3
		ORDER BY created_at ASC
	`, key.Namespace, key.Name, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to query metrics: %w", err)
	}
	defer rows.Close()

	var samples []types.MetricSample
	for rows.Next() {
		var m types.MetricSample
		var cpu, mem, disk sql.NullString
		if err := rows.Scan(&m.Namespace, &m.Name, &cpu, &mem, &disk, &m.CapturedAt); err != nil {
			return nil, fmt.Errorf("failed to scan metric row: %w", err)
		}
		m.CPU, m.Memory, m.Disk = cpu.String, mem.String, disk.String
		samples = append(samples, m)
	}
	return samples, rows.Err()
}

func (s *PostgresStore) QueryNodeStats() ([]types.NodeStats, error) {
	rows, err := s.db.Query(`
		SELECT node_name, status, cpu, memory, pods, capacity_cpu, capacity_memory
		FROM node_stats
		ORDER BY node_name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query node stats: %w", err)
	}
	defer rows.Close()

	var stats []types.NodeStats
	for rows.Next() {
		var n types.NodeStats
		var status, cpu, mem, capCPU, capMem sql.NullString
		if err := rows.Scan(&n.Name, &status, &cpu, &mem, &n.Pods, &capCPU, &capMem); err != nil {
			return nil, fmt.Errorf("failed to scan node stats row: %w", err)
		}
		n.Status, n.CPU, n.Memory = status.String, cpu.String, mem.String
		n.CapacityCPU, n.CapacityMemory = capCPU.String, capMem.String
		stats = append(stats, n)
	}
	return stats, rows.Err()
}

// Prune deletes rows older than the cutoff from every history-bearing
// table, one table per statement so one failure does not abort the
// rest, then reclaims storage. Running it twice with the same cutoff
// deletes nothing the second time.
func (s *PostgresStore) Prune(cutoff time.Time) (map[string]int64, error) {
	tables := []string{
		"pod_status", "status_history", "image_history",
		"pod_metrics", "pod_ports", "node_stats",
		"alerts", "delivery_outcomes",
	}
	timeColumns := map[string]string{
		"delivery_outcomes": "attempted_at",
	}

	deleted := make(map[string]int64, len(tables))
	var firstErr error

	for _, table := range tables {
		column := timeColumns[table]
		if column == "" {
			column = "created_at"
		}
		result, err := s.db.Exec(
			fmt.Sprintf("DELETE FROM %s WHERE %s < $1", table, column), cutoff)
		if err != nil {
			klog.Errorf("Failed to prune %s: %v", table, err)
			if firstErr == nil {
				firstErr = fmt.Errorf("failed to prune %s: %w", table, err)
			}
			continue
		}
		count, _ := result.RowsAffected()
		deleted[table] = count
	}

	if _, err := s.db.Exec("VACUUM"); err != nil {
		klog.Errorf("Storage reclaim after prune failed: %v", err)
	}

	return deleted, firstErr
}

func (s *PostgresStore) Ping() error {
	return s.db.Ping()
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}
