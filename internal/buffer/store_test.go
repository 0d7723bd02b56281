package buffer

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/oakmoor/sparkedge/internal/infrastructure/database"
	_ "github.com/oakmoor/sparkedge/migrations" // registers embedded schema
)

// openTestStore opens a migrated database in a temp dir and wraps it in a
// Store with the given ceiling.
func openTestStore(t *testing.T, ceiling int64) *Store {
	t.Helper()

	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "buffer.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // test cleanup

	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	s, err := NewStore(db, ceiling)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	return s
}

func mustEnqueue(t *testing.T, s *Store, topic string, size int) {
	t.Helper()
	if err := s.Enqueue(context.Background(), topic, make([]byte, size), 0, false); err != nil {
		t.Fatalf("Enqueue(%s) error = %v", topic, err)
	}
}

func drainTopics(t *testing.T, s *Store) []string {
	t.Helper()
	var topics []string
	if _, err := s.DrainAll(context.Background(), func(rec Record) error {
		topics = append(topics, rec.Topic)
		return nil
	}); err != nil {
		t.Fatalf("DrainAll() error = %v", err)
	}
	return topics
}

func TestNewStore_RejectsInvalidCeiling(t *testing.T) {
	if _, err := NewStore(nil, 0); !errors.Is(err, ErrInvalidCeiling) {
		t.Errorf("err = %v, want ErrInvalidCeiling", err)
	}
}

func TestStore_EnqueueAndMetrics(t *testing.T) {
	s := openTestStore(t, 1024)
	ctx := context.Background()

	mustEnqueue(t, s, "t/1", 10)
	mustEnqueue(t, s, "t/2", 20)

	m, err := s.Metrics(ctx)
	if err != nil {
		t.Fatalf("Metrics() error = %v", err)
	}
	if m.Count != 2 {
		t.Errorf("Count = %d, want 2", m.Count)
	}
	if m.Bytes != 30 {
		t.Errorf("Bytes = %d, want 30", m.Bytes)
	}
	if m.OldestTimestamp.IsZero() {
		t.Error("OldestTimestamp should be set for non-empty buffer")
	}
	if m.CeilingBytes != 1024 {
		t.Errorf("CeilingBytes = %d, want 1024", m.CeilingBytes)
	}
}

func TestStore_Metrics_Empty(t *testing.T) {
	s := openTestStore(t, 1024)

	m, err := s.Metrics(context.Background())
	if err != nil {
		t.Fatalf("Metrics() error = %v", err)
	}
	if m.Count != 0 || m.Bytes != 0 {
		t.Errorf("empty buffer reported count=%d bytes=%d", m.Count, m.Bytes)
	}
	if !m.OldestTimestamp.IsZero() {
		t.Error("OldestTimestamp should be zero for empty buffer")
	}
}

func TestStore_EvictionOldestFirst(t *testing.T) {
	// Ceiling 100: three 40-byte records would total 120, so the oldest is
	// evicted; a following 90-byte record forces out both survivors.
	s := openTestStore(t, 100)
	ctx := context.Background()

	mustEnqueue(t, s, "t/1", 40)
	mustEnqueue(t, s, "t/2", 40)
	mustEnqueue(t, s, "t/3", 40)

	m, err := s.Metrics(ctx)
	if err != nil {
		t.Fatalf("Metrics() error = %v", err)
	}
	if m.Count != 2 || m.Bytes != 80 {
		t.Fatalf("after third enqueue: count=%d bytes=%d, want 2/80", m.Count, m.Bytes)
	}

	mustEnqueue(t, s, "t/4", 90)

	m, err = s.Metrics(ctx)
	if err != nil {
		t.Fatalf("Metrics() error = %v", err)
	}
	if m.Count != 1 || m.Bytes != 90 {
		t.Fatalf("after fourth enqueue: count=%d bytes=%d, want 1/90", m.Count, m.Bytes)
	}

	if got := drainTopics(t, s); len(got) != 1 || got[0] != "t/4" {
		t.Errorf("surviving records = %v, want [t/4]", got)
	}
}

func TestStore_OversizeRecordStillInserted(t *testing.T) {
	s := openTestStore(t, 100)
	ctx := context.Background()

	mustEnqueue(t, s, "t/small", 40)
	mustEnqueue(t, s, "t/huge", 150)

	m, err := s.Metrics(ctx)
	if err != nil {
		t.Fatalf("Metrics() error = %v", err)
	}
	if m.Count != 1 || m.Bytes != 150 {
		t.Errorf("count=%d bytes=%d, want the oversize record alone", m.Count, m.Bytes)
	}
	if got := drainTopics(t, s); len(got) != 1 || got[0] != "t/huge" {
		t.Errorf("surviving records = %v, want [t/huge]", got)
	}
}

func TestStore_DrainAll_Ordering(t *testing.T) {
	s := openTestStore(t, 1024)

	mustEnqueue(t, s, "t/1", 10)
	mustEnqueue(t, s, "t/2", 10)
	mustEnqueue(t, s, "t/3", 10)

	got := drainTopics(t, s)
	want := []string{"t/1", "t/2", "t/3"}
	if len(got) != len(want) {
		t.Fatalf("drained %d records, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("position %d = %q, want %q", i, got[i], want[i])
		}
	}

	m, err := s.Metrics(context.Background())
	if err != nil {
		t.Fatalf("Metrics() error = %v", err)
	}
	if m.Count != 0 {
		t.Errorf("buffer should be empty after successful drain, count=%d", m.Count)
	}
}

func TestStore_DrainAll_SinkFailureKeepsRecords(t *testing.T) {
	s := openTestStore(t, 1024)
	ctx := context.Background()

	mustEnqueue(t, s, "t/1", 10)
	mustEnqueue(t, s, "t/2", 10)
	mustEnqueue(t, s, "t/3", 10)

	calls := 0
	delivered, err := s.DrainAll(ctx, func(Record) error {
		calls++
		if calls == 2 {
			return errors.New("transport dropped")
		}
		return nil
	})
	if !errors.Is(err, ErrDrainAborted) {
		t.Fatalf("err = %v, want ErrDrainAborted", err)
	}
	if delivered != 1 {
		t.Errorf("delivered = %d, want 1", delivered)
	}

	// Nothing deleted: at-least-once, the whole set is retried next drain.
	m, err := s.Metrics(ctx)
	if err != nil {
		t.Fatalf("Metrics() error = %v", err)
	}
	if m.Count != 3 {
		t.Errorf("count after aborted drain = %d, want 3", m.Count)
	}

	if got := drainTopics(t, s); len(got) != 3 {
		t.Errorf("retry drained %d records, want 3", len(got))
	}
}

func TestStore_DrainAll_PreservesRecordFields(t *testing.T) {
	s := openTestStore(t, 1024)
	ctx := context.Background()

	payload := []byte{0x08, 0x01, 0x10, 0x2a}
	if err := s.Enqueue(ctx, "spBv1.0/g/NDATA/n", payload, 1, true); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	var rec Record
	if _, err := s.DrainAll(ctx, func(r Record) error {
		rec = r
		return nil
	}); err != nil {
		t.Fatalf("DrainAll() error = %v", err)
	}

	if rec.Topic != "spBv1.0/g/NDATA/n" {
		t.Errorf("topic = %q", rec.Topic)
	}
	if string(rec.Payload) != string(payload) {
		t.Errorf("payload = %v, want %v", rec.Payload, payload)
	}
	if rec.QoS != 1 || !rec.Retain {
		t.Errorf("qos=%d retain=%v, want 1/true", rec.QoS, rec.Retain)
	}
	if rec.Timestamp.IsZero() {
		t.Error("timestamp should be parseable")
	}
}

func TestStore_SetCeiling(t *testing.T) {
	s := openTestStore(t, 1024)
	ctx := context.Background()

	mustEnqueue(t, s, "t/1", 100)
	mustEnqueue(t, s, "t/2", 100)

	if err := s.SetCeiling(50); err != nil {
		t.Fatalf("SetCeiling() error = %v", err)
	}

	// No retroactive eviction.
	m, err := s.Metrics(ctx)
	if err != nil {
		t.Fatalf("Metrics() error = %v", err)
	}
	if m.Count != 2 {
		t.Errorf("count after SetCeiling = %d, want 2 (no retroactive evict)", m.Count)
	}

	// Next enqueue applies the new ceiling.
	mustEnqueue(t, s, "t/3", 30)
	m, err = s.Metrics(ctx)
	if err != nil {
		t.Fatalf("Metrics() error = %v", err)
	}
	if m.Count != 1 || m.Bytes != 30 {
		t.Errorf("count=%d bytes=%d after enqueue under new ceiling, want 1/30", m.Count, m.Bytes)
	}

	if err := s.SetCeiling(-1); !errors.Is(err, ErrInvalidCeiling) {
		t.Errorf("SetCeiling(-1) err = %v, want ErrInvalidCeiling", err)
	}
}
