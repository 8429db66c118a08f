// Package journal records routing decisions in SQLite so operators can
// inspect routing behaviour across process restarts.
package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	"conductor/internal/domain"
	"conductor/internal/infra/logger"
)

// Outcome values stored per entry.
const (
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
)

// Entry is one journaled request.
type Entry struct {
	ID           string                 `json:"id"`
	RequestID    string                 `json:"request_id"`
	Outcome      string                 `json:"outcome"`
	Decision     domain.RoutingDecision `json:"decision"`
	Applied      []string               `json:"applied_constraints"`
	Modified     bool                   `json:"modified"`
	DurationMS   int64                  `json:"duration_ms"`
	Error        string                 `json:"error,omitempty"`
	MessageChars int                    `json:"message_chars"`
	CreatedAt    time.Time              `json:"created_at"`
}

// SQLiteJournal stores routing decisions in a SQLite database.
type SQLiteJournal struct {
	db     *sql.DB
	logger *slog.Logger

	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

// Open opens (or creates) the journal at dbPath and runs the schema migration.
func Open(dbPath string, log *slog.Logger) (*SQLiteJournal, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create journal dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open journal db: %w", err)
	}
	// WAL lets the CLI read stats while a server writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate journal db: %w", err)
	}
	now := time.Now()
	return &SQLiteJournal{
		db:      db,
		logger:  logger.OrDiscard(log),
		entropy: ulid.Monotonic(rand.New(rand.NewSource(now.UnixNano())), 0),
	}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS decisions (
			id               TEXT PRIMARY KEY,
			request_id       TEXT NOT NULL,
			outcome          TEXT NOT NULL,
			primary_agent    TEXT NOT NULL,
			secondary_agents TEXT NOT NULL DEFAULT '[]',
			message_type     TEXT NOT NULL,
			confidence       REAL NOT NULL,
			constraints      TEXT NOT NULL DEFAULT '[]',
			applied          TEXT NOT NULL DEFAULT '[]',
			modified         INTEGER NOT NULL DEFAULT 0,
			duration_ms      INTEGER NOT NULL DEFAULT 0,
			error            TEXT NOT NULL DEFAULT '',
			message_chars    INTEGER NOT NULL DEFAULT 0,
			created_at       TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_decisions_agent ON decisions(primary_agent);
	`)
	return err
}

// Close closes the underlying database connection.
func (j *SQLiteJournal) Close() error {
	return j.db.Close()
}

func (j *SQLiteJournal) newID(t time.Time) string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), j.entropy).String()
}

// Attach subscribes the journal to request completion events on bus.
// The returned function detaches it.
func (j *SQLiteJournal) Attach(bus domain.EventBus) func() {
	handler := func(ctx context.Context, ev domain.Event) {
		if err := j.Record(ctx, ev); err != nil {
			j.logger.Warn("routing journal write failed", "request_id", ev.RequestID, "error", err)
		}
	}
	unsubs := []func(){
		bus.Subscribe(domain.EventRequestCompleted, handler),
		bus.Subscribe(domain.EventRequestFailed, handler),
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

// Record stores a request.completed or request.failed event.
func (j *SQLiteJournal) Record(ctx context.Context, ev domain.Event) error {
	outcome := OutcomeCompleted
	switch ev.Type {
	case domain.EventRequestCompleted:
	case domain.EventRequestFailed:
		outcome = OutcomeFailed
	default:
		return domain.NewSubSystemError("journal", "Journal.Record", domain.ErrInvalidInput, string(ev.Type))
	}

	var p domain.RequestCompletedPayload
	if err := json.Unmarshal(ev.Payload, &p); err != nil {
		return fmt.Errorf("%w: decode payload: %v", domain.ErrJournalWrite, err)
	}

	secondaries, _ := json.Marshal(nonNil(p.Decision.SecondaryAgents))
	constraints, _ := json.Marshal(nonNil(p.Decision.Constraints))
	applied, _ := json.Marshal(nonNil(p.Applied))

	created := ev.Timestamp.UTC()
	if ev.Timestamp.IsZero() {
		created = time.Now().UTC()
	}

	_, err := j.db.ExecContext(ctx, `
		INSERT INTO decisions (id, request_id, outcome, primary_agent, secondary_agents, message_type,
			confidence, constraints, applied, modified, duration_ms, error, message_chars, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		j.newID(created), ev.RequestID, outcome, p.Decision.PrimaryAgent, string(secondaries),
		string(p.Decision.MessageType), p.Decision.Confidence, string(constraints), string(applied),
		boolInt(p.Modified), p.DurationMS, p.Error, p.MessageChars, created.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrJournalWrite, err)
	}
	return nil
}

// Stats aggregates every journaled request into the coordinator's stats shape.
// A violation is a request whose response was replaced by a guardian override.
func (j *SQLiteJournal) Stats(ctx context.Context) (domain.RoutingStats, error) {
	stats := domain.RoutingStats{RoutingDecisions: map[string]int{}}

	rows, err := j.db.QueryContext(ctx, "SELECT primary_agent, COUNT(*) FROM decisions GROUP BY primary_agent")
	if err != nil {
		return stats, err
	}
	defer rows.Close()
	for rows.Next() {
		var agent string
		var n int
		if err := rows.Scan(&agent, &n); err != nil {
			return stats, err
		}
		stats.RoutingDecisions[agent] = n
		stats.TotalRequests += n
	}
	if err := rows.Err(); err != nil {
		return stats, err
	}

	err = j.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM decisions WHERE applied LIKE ?`,
		`%"`+domain.ConstraintSecurityOverride+`"%`,
	).Scan(&stats.ConstraintViolations)
	return stats, err
}

// Recent returns up to limit entries, newest first.
func (j *SQLiteJournal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, request_id, outcome, primary_agent, secondary_agents, message_type, confidence,
			constraints, applied, modified, duration_ms, error, message_chars, created_at
		FROM decisions ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func scanEntry(rows *sql.Rows) (Entry, error) {
	var e Entry
	var msgType, secondaries, constraints, applied, created string
	var modified int
	if err := rows.Scan(&e.ID, &e.RequestID, &e.Outcome, &e.Decision.PrimaryAgent, &secondaries, &msgType,
		&e.Decision.Confidence, &constraints, &applied, &modified, &e.DurationMS, &e.Error,
		&e.MessageChars, &created); err != nil {
		return e, err
	}
	e.Decision.MessageType = domain.MessageType(msgType)
	e.Modified = modified != 0
	if err := json.Unmarshal([]byte(secondaries), &e.Decision.SecondaryAgents); err != nil {
		return e, fmt.Errorf("unmarshal secondary agents: %w", err)
	}
	if err := json.Unmarshal([]byte(constraints), &e.Decision.Constraints); err != nil {
		return e, fmt.Errorf("unmarshal constraints: %w", err)
	}
	if err := json.Unmarshal([]byte(applied), &e.Applied); err != nil {
		return e, fmt.Errorf("unmarshal applied constraints: %w", err)
	}
	e.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	return e, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
