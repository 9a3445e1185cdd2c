// Package journal persists synchronizer events to SQLite so a session can be
// audited after the fact.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite" // register pure-Go SQLite driver

	"mrisync/pkg/synchronizer"
)

const schema = `CREATE TABLE IF NOT EXISTS sync_events (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id  TEXT    NOT NULL,
	type        TEXT    NOT NULL,
	timestamp   INTEGER NOT NULL,
	slot_kind   TEXT    NOT NULL,
	slot_index  INTEGER NOT NULL,
	recorded_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS sync_events_session ON sync_events(session_id, id);`

// Entry is one journaled event
type Entry struct {
	ID         int64
	SessionID  string
	Event      synchronizer.Event
	RecordedAt time.Time
}

// Journal is a SQLite backed event log
type Journal struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

// Open opens a journal using the modernc.org/sqlite driver.
//
// For file-based databases, pass a path like "./journal.db". For in-memory
// databases, pass ":memory:".
func Open(dsn string, logger *slog.Logger) (*Journal, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	// Every connection to ":memory:" is a distinct database
	db.SetMaxOpenConns(1)

	if logger == nil {
		logger = slog.Default()
	}
	return &Journal{
		db:     db,
		logger: logger.With("component", "journal"),
		now:    time.Now,
	}, nil
}

// Init creates the journal schema
func (j *Journal) Init(ctx context.Context) error {
	if _, err := j.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("init journal schema: %w", err)
	}
	return nil
}

// Close closes the database
func (j *Journal) Close() error {
	return j.db.Close()
}

// Record appends an event for a session
func (j *Journal) Record(ctx context.Context, sessionID string, ev synchronizer.Event) error {
	if sessionID == "" {
		return errors.New("journal: empty session id")
	}
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO sync_events(session_id, type, timestamp, slot_kind, slot_index, recorded_at) VALUES(?, ?, ?, ?, ?, ?)`,
		sessionID, string(ev.Type), ev.Timestamp, ev.Slot.Kind.String(), ev.Slot.Index, j.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("record event: %w", err)
	}
	return nil
}

// Events returns the events of a session in recording order
func (j *Journal) Events(ctx context.Context, sessionID string) ([]Entry, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT id, session_id, type, timestamp, slot_kind, slot_index, recorded_at FROM sync_events WHERE session_id = ? ORDER BY id`,
		sessionID)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e          Entry
			typ, kind  string
			recordedAt int64
		)
		if err := rows.Scan(&e.ID, &e.SessionID, &typ, &e.Event.Timestamp, &kind, &e.Event.Slot.Index, &recordedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Event.Type = synchronizer.EventType(typ)
		if kind == synchronizer.KindMatrix.String() {
			e.Event.Slot.Kind = synchronizer.KindMatrix
		}
		e.RecordedAt = time.UnixMilli(recordedAt)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Counts returns the number of events per type for a session
func (j *Journal) Counts(ctx context.Context, sessionID string) (map[synchronizer.EventType]int, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT type, COUNT(*) FROM sync_events WHERE session_id = ? GROUP BY type`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("count events: %w", err)
	}
	defer rows.Close()

	out := make(map[synchronizer.EventType]int)
	for rows.Next() {
		var (
			typ string
			n   int
		)
		if err := rows.Scan(&typ, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		out[synchronizer.EventType(typ)] = n
	}
	return out, rows.Err()
}

// Listener returns a synchronizer listener journaling every event of a
// session. Write failures are logged and do not interrupt synchronization.
func (j *Journal) Listener(sessionID string) synchronizer.Listener {
	return synchronizer.ListenerFunc(func(ev synchronizer.Event) {
		if err := j.Record(context.Background(), sessionID, ev); err != nil {
			j.logger.Error("failed to journal event", "session", sessionID, "event", ev.String(), "error", err)
		}
	})
}
