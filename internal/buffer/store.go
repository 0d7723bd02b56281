package buffer

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/oakmoor/sparkedge/internal/infrastructure/database"
)

// Logger defines the logging interface used by the Store.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Record is one buffered message awaiting redelivery.
type Record struct {
	ID        int64
	Topic     string
	Payload   []byte
	QoS       byte
	Retain    bool
	Timestamp time.Time
}

// Sink receives records during a drain, oldest first.
type Sink func(rec Record) error

// Metrics describes current buffer occupancy.
type Metrics struct {
	Count           int64
	Bytes           int64
	OldestTimestamp time.Time // zero when the buffer is empty
	CeilingBytes    int64
}

// Store is the SQLite-backed store-and-forward buffer.
//
// Occupancy is counted in payload bytes. Row ordering is by stored timestamp
// with the autoincrement id breaking ties, so insertion order is preserved
// for records written within the same millisecond.
type Store struct {
	db     *database.DB
	logger Logger

	mu      sync.Mutex // guards ceiling
	ceiling int64
}

// NewStore creates a buffer over an opened, migrated database.
func NewStore(db *database.DB, ceilingBytes int64) (*Store, error) {
	if ceilingBytes <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidCeiling, ceilingBytes)
	}
	return &Store{
		db:      db,
		logger:  noopLogger{},
		ceiling: ceilingBytes,
	}, nil
}

// SetLogger sets the logger for the store.
func (s *Store) SetLogger(logger Logger) {
	s.logger = logger
}

// Ceiling returns the current occupancy ceiling in bytes.
func (s *Store) Ceiling() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ceiling
}

// SetCeiling updates the occupancy ceiling. Existing records above the new
// ceiling are not evicted until the next Enqueue.
func (s *Store) SetCeiling(bytes int64) error {
	if bytes <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidCeiling, bytes)
	}
	s.mu.Lock()
	s.ceiling = bytes
	s.mu.Unlock()
	s.logger.Info("buffer ceiling updated", "ceiling_bytes", bytes)
	return nil
}

// Enqueue appends a message, evicting the oldest records first if total
// occupancy would exceed the ceiling. A single record larger than the
// ceiling still gets inserted; eviction may empty the buffer to make room.
//
// Eviction and insert run in one transaction so a crash cannot leave the
// buffer evicted but without the new record.
func (s *Store) Enqueue(ctx context.Context, topic string, payload []byte, qos byte, retain bool) error {
	ceiling := s.Ceiling()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning enqueue transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	var occupancy int64
	row := tx.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(LENGTH(payload)), 0) FROM buffered_messages`)
	if err := row.Scan(&occupancy); err != nil {
		return fmt.Errorf("reading buffer occupancy: %w", err)
	}

	newSize := int64(len(payload))
	for occupancy+newSize > ceiling {
		var (
			oldestID   int64
			oldestSize int64
			oldestTS   string
		)
		row := tx.QueryRowContext(ctx,
			`SELECT id, LENGTH(payload), timestamp FROM buffered_messages
			 ORDER BY timestamp ASC, id ASC LIMIT 1`)
		if err := row.Scan(&oldestID, &oldestSize, &oldestTS); err != nil {
			if err == sql.ErrNoRows {
				// Buffer empty; the record alone exceeds the ceiling.
				break
			}
			return fmt.Errorf("selecting eviction candidate: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM buffered_messages WHERE id = ?`, oldestID); err != nil {
			return fmt.Errorf("evicting record %d: %w", oldestID, err)
		}
		occupancy -= oldestSize
		s.logger.Warn("evicted oldest buffered message",
			"id", oldestID, "bytes", oldestSize, "timestamp", oldestTS,
			"occupancy_bytes", occupancy, "ceiling_bytes", ceiling)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO buffered_messages (topic, payload, qos, retain) VALUES (?, ?, ?, ?)`,
		topic, payload, qos, boolToInt(retain)); err != nil {
		return fmt.Errorf("inserting buffered message: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing enqueue: %w", err)
	}

	s.logger.Debug("message buffered", "topic", topic, "bytes", newSize)
	return nil
}

// DrainAll redelivers every buffered record oldest-first through the sink,
// then removes the drained records in a single delete. Returns the number of
// records redelivered.
//
// If the sink fails partway, nothing is deleted: records already handed to
// the sink remain and may be redelivered on the next drain. Redelivery is
// at-least-once, not exactly-once. Records enqueued while the drain is in
// flight land after the snapshot and survive the delete.
func (s *Store) DrainAll(ctx context.Context, sink Sink) (int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, topic, payload, qos, retain, timestamp FROM buffered_messages
		 ORDER BY timestamp ASC, id ASC`)
	if err != nil {
		return 0, fmt.Errorf("reading buffered messages: %w", err)
	}

	var records []Record
	for rows.Next() {
		var (
			rec    Record
			qos    int64
			retain int64
			ts     string
		)
		if err := rows.Scan(&rec.ID, &rec.Topic, &rec.Payload, &qos, &retain, &ts); err != nil {
			rows.Close() //nolint:errcheck // error path
			return 0, fmt.Errorf("scanning buffered message: %w", err)
		}
		rec.QoS = byte(qos) //nolint:gosec // qos is 0..2
		rec.Retain = retain != 0
		rec.Timestamp = parseTimestamp(ts)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		rows.Close() //nolint:errcheck // error path
		return 0, fmt.Errorf("iterating buffered messages: %w", err)
	}
	if err := rows.Close(); err != nil {
		return 0, fmt.Errorf("closing buffered message rows: %w", err)
	}

	if len(records) == 0 {
		return 0, nil
	}

	for i, rec := range records {
		if err := sink(rec); err != nil {
			s.logger.Warn("drain aborted, remaining records kept",
				"delivered", i, "remaining", len(records)-i, "error", err)
			return i, fmt.Errorf("%w: record %d: %v", ErrDrainAborted, rec.ID, err)
		}
	}

	lastID := records[len(records)-1].ID
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM buffered_messages WHERE id <= ?`, lastID); err != nil {
		return len(records), fmt.Errorf("deleting drained messages: %w", err)
	}

	s.logger.Info("buffer drained", "count", len(records))
	return len(records), nil
}

// Metrics returns current record count, occupancy, and the oldest record's
// timestamp. The timestamp is zero when the buffer is empty.
func (s *Store) Metrics(ctx context.Context) (Metrics, error) {
	m := Metrics{CeilingBytes: s.Ceiling()}

	row := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(LENGTH(payload)), 0) FROM buffered_messages`)
	if err := row.Scan(&m.Count, &m.Bytes); err != nil {
		return Metrics{}, fmt.Errorf("reading buffer metrics: %w", err)
	}

	if m.Count > 0 {
		var ts string
		row := s.db.QueryRowContext(ctx,
			`SELECT timestamp FROM buffered_messages ORDER BY timestamp ASC, id ASC LIMIT 1`)
		if err := row.Scan(&ts); err != nil {
			return Metrics{}, fmt.Errorf("reading oldest timestamp: %w", err)
		}
		m.OldestTimestamp = parseTimestamp(ts)
	}

	return m, nil
}

// parseTimestamp reads the strftime('%Y-%m-%dT%H:%M:%fZ') format the schema
// default produces. Unparseable values return the zero time rather than
// failing a drain.
func parseTimestamp(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
