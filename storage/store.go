package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/audilinea/extractor/config"
	"github.com/audilinea/extractor/model"

	_ "github.com/lib/pq"
)

// Store owns the two local tables: raw traffic metrics and per-cycle
// application summaries. A single connection handle is shared by the one
// sequential control flow; the engine's autocommit semantics are enough.
type Store struct {
	db  *sql.DB
	log *zap.Logger

	// clock assigns observation timestamps at persistence time.
	clock func() time.Time
}

// Open connects to PostgreSQL and verifies the connection. An unreachable
// store at startup is the one fatal path in this system, so errors here
// propagate to the caller.
func Open(cfg config.DBConfig, log *zap.Logger) (*Store, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("storage: open: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: ping %s:%d/%s: %w", cfg.Host, cfg.Port, cfg.Name, err)
	}
	return New(db, log), nil
}

// New wraps an already-open handle. Tests use this with an in-memory engine.
func New(db *sql.DB, log *zap.Logger) *Store {
	return &Store{db: db, log: log, clock: time.Now}
}

func (s *Store) Close() error {
	return s.db.Close()
}

const schema = `
CREATE TABLE IF NOT EXISTS traffic_metrics (
    id SERIAL PRIMARY KEY,
    timestamp TIMESTAMPTZ NOT NULL,
    host_ip VARCHAR(45),
    application VARCHAR(100),
    category VARCHAR(100),
    bytes_sent BIGINT,
    bytes_received BIGINT,
    packets_sent BIGINT,
    packets_received BIGINT,
    duration INTEGER,
    flow_info JSONB,
    sent_to_remote BOOLEAN NOT NULL DEFAULT FALSE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_traffic_timestamp ON traffic_metrics(timestamp);
CREATE INDEX IF NOT EXISTS idx_traffic_application ON traffic_metrics(application);
CREATE INDEX IF NOT EXISTS idx_traffic_sent_to_remote ON traffic_metrics(sent_to_remote);

CREATE TABLE IF NOT EXISTS application_summary (
    id SERIAL PRIMARY KEY,
    timestamp TIMESTAMPTZ NOT NULL,
    application VARCHAR(100),
    category VARCHAR(100),
    total_bytes BIGINT,
    total_flows INTEGER,
    unique_hosts INTEGER,
    avg_duration DOUBLE PRECISION,
    summary_period VARCHAR(20),
    sent_to_remote BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE INDEX IF NOT EXISTS idx_summary_timestamp ON application_summary(timestamp);
CREATE INDEX IF NOT EXISTS idx_summary_application ON application_summary(application);
`

// EnsureSchema creates both tables and their indexes when absent. Safe to
// call on every process start.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("storage: ensure schema: %w", err)
	}
	return nil
}

// InsertBatch persists every record of one cycle in a single transaction.
// Timestamps are assigned here, delivery flags start false. Records are
// always new rows; there is no natural key across polls.
func (s *Store) InsertBatch(ctx context.Context, records []model.TrafficRecord) error {
	if len(records) == 0 {
		return nil
	}
	now := s.clock().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage: begin tx: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
        INSERT INTO traffic_metrics (
            timestamp, host_ip, application, category,
            bytes_sent, bytes_received, packets_sent, packets_received,
            duration, flow_info, sent_to_remote
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, FALSE)
    `)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("storage: prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		_, err := stmt.ExecContext(ctx,
			now, r.HostIP, r.Application, r.Category,
			r.BytesSent, r.BytesReceived, r.PacketsSent, r.PacketsReceived,
			r.Duration, flowInfoArg(r.FlowInfo),
		)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("storage: insert record for %s/%s: %w", r.HostIP, r.Application, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage: commit batch: %w", err)
	}
	s.log.Info("stored traffic records", zap.Int("records", len(records)))
	return nil
}

// InsertSummaries persists one row per application summary.
func (s *Store) InsertSummaries(ctx context.Context, summaries []model.ApplicationSummary) error {
	if len(summaries) == 0 {
		return nil
	}
	now := s.clock().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage: begin tx: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
        INSERT INTO application_summary (
            timestamp, application, category,
            total_bytes, total_flows, unique_hosts, avg_duration, summary_period
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
    `)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("storage: prepare summary insert: %w", err)
	}
	defer stmt.Close()

	for _, a := range summaries {
		_, err := stmt.ExecContext(ctx,
			now, a.Application, a.Category,
			a.TotalBytes, a.TotalFlows, a.UniqueHosts, a.AvgDuration, a.Period,
		)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("storage: insert summary for %s: %w", a.Application, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage: commit summaries: %w", err)
	}
	s.log.Info("stored application summaries", zap.Int("summaries", len(summaries)))
	return nil
}

// MarkDelivered flips the delivery flag for every record at or after the
// given watermark that has not been delivered yet. It is the sole mutation
// path for the flag and is idempotent for a fixed watermark.
func (s *Store) MarkDelivered(ctx context.Context, since time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
        UPDATE traffic_metrics
        SET sent_to_remote = TRUE
        WHERE timestamp >= $1 AND sent_to_remote = FALSE
    `, since.UTC())
	if err != nil {
		return 0, fmt.Errorf("storage: mark delivered: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("storage: mark delivered rows: %w", err)
	}
	s.log.Info("marked records delivered", zap.Int64("records", n))
	return n, nil
}

// SelectUndelivered returns up to limit of the oldest records whose delivery
// flag is still false. Used by the optional reconciliation pass.
func (s *Store) SelectUndelivered(ctx context.Context, limit int) ([]model.TrafficRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT id, timestamp, host_ip, application, category,
               bytes_sent, bytes_received, packets_sent, packets_received,
               duration, flow_info
        FROM traffic_metrics
        WHERE sent_to_remote = FALSE
        ORDER BY timestamp
        LIMIT $1
    `, limit)
	if err != nil {
		return nil, fmt.Errorf("storage: select undelivered: %w", err)
	}
	defer rows.Close()

	var out []model.TrafficRecord
	for rows.Next() {
		var r model.TrafficRecord
		var flowInfo sql.NullString
		err := rows.Scan(
			&r.ID, &r.Timestamp, &r.HostIP, &r.Application, &r.Category,
			&r.BytesSent, &r.BytesReceived, &r.PacketsSent, &r.PacketsReceived,
			&r.Duration, &flowInfo,
		)
		if err != nil {
			return nil, fmt.Errorf("storage: scan undelivered: %w", err)
		}
		if flowInfo.Valid {
			r.FlowInfo = json.RawMessage(flowInfo.String)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// MarkDeliveredByID flips the delivery flag for the given row ids.
func (s *Store) MarkDeliveredByID(ctx context.Context, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	placeholders := make([]string, len(ids))
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}
	query := fmt.Sprintf(`
        UPDATE traffic_metrics
        SET sent_to_remote = TRUE
        WHERE sent_to_remote = FALSE AND id IN (%s)
    `, strings.Join(placeholders, ", "))

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("storage: mark delivered by id: %w", err)
	}
	return res.RowsAffected()
}

// CountUndelivered reports the undelivered backlog, exposed as a gauge so an
// operator can see delivery gaps accumulate.
func (s *Store) CountUndelivered(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `
        SELECT COUNT(*) FROM traffic_metrics WHERE sent_to_remote = FALSE
    `).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("storage: count undelivered: %w", err)
	}
	return n, nil
}

// flowInfoArg passes the raw blob as text so the engine coerces it to the
// column type, or NULL when the blob is empty.
func flowInfoArg(blob json.RawMessage) interface{} {
	if len(blob) == 0 {
		return nil
	}
	return string(blob)
}
