package publisher

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/oakmoor/sparkedge/internal/buffer"
	"github.com/oakmoor/sparkedge/internal/infrastructure/config"
	"github.com/oakmoor/sparkedge/internal/infrastructure/database"
	"github.com/oakmoor/sparkedge/internal/sparkplug"
	"github.com/oakmoor/sparkedge/internal/tag"
	_ "github.com/oakmoor/sparkedge/migrations" // registers embedded schema
)

// fakeConnection records data publishes and can be told to fail.
type fakeConnection struct {
	mu          sync.Mutex
	failPublish bool
	published   []sparkplug.Metric
	locations   int
}

func (f *fakeConnection) PublishData(metrics []sparkplug.Metric, _ bool) (string, []byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	p := sparkplug.NewPayload()
	for _, m := range metrics {
		p.AddMetric(m)
	}
	payload, err := p.Encode()
	if err != nil {
		return "", nil, err
	}

	if f.failPublish {
		return "spBv1.0/g/NDATA/n", payload, errors.New("not connected")
	}
	f.published = append(f.published, metrics...)
	return "spBv1.0/g/NDATA/n", payload, nil
}

func (f *fakeConnection) PublishLocation() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.locations++
	return nil
}

func (f *fakeConnection) publishedNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, 0, len(f.published))
	for _, m := range f.published {
		names = append(names, m.Name)
	}
	return names
}

// historyRecord captures one mirrored sample.
type historyRecord struct {
	name  string
	value any
}

type fakeHistory struct {
	mu      sync.Mutex
	records []historyRecord
}

func (f *fakeHistory) WriteTagValue(name string, value any, _ string, _ time.Time) {
	f.mu.Lock()
	f.records = append(f.records, historyRecord{name: name, value: value})
	f.mu.Unlock()
}

func openTestBuffer(t *testing.T) *buffer.Store {
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

	store, err := buffer.NewStore(db, 1024*1024)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	return store
}

// newTestScheduler wires a scheduler over fakes and per-test samplers.
func newTestScheduler(t *testing.T, cfgs []config.TagConfig, samplers map[string]tag.Sampler) (*Scheduler, *fakeConnection, *buffer.Store) {
	t.Helper()

	registry, err := tag.NewRegistry(cfgs, samplers, nil)
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}

	conn := &fakeConnection{}
	store := openTestBuffer(t)
	s := NewScheduler(Options{
		Connection: conn,
		Registry:   registry,
		Filter:     tag.NewFilter(),
		Buffer:     store,
		Interval:   time.Hour, // ticks driven manually via publishAll
	})
	return s, conn, store
}

func TestScheduler_PublishesApprovedSamples(t *testing.T) {
	s, conn, _ := newTestScheduler(t,
		[]config.TagConfig{{Name: "Temp", Type: "double", Unit: "degC", Deadband: 2.0}},
		map[string]tag.Sampler{"Temp": func() (any, error) { return 20.0, nil }},
	)

	s.publishAll(context.Background())

	names := conn.publishedNames()
	if len(names) != 1 || names[0] != "Temp" {
		t.Fatalf("published = %v, want [Temp]", names)
	}

	m := conn.published[0]
	if m.Alias == 0 {
		t.Error("data metric should carry the tag alias")
	}
	if len(m.Properties) == 0 || m.Properties[0].Value != "degC" {
		t.Errorf("data metric properties = %v, want engUnit degC", m.Properties)
	}
}

func TestScheduler_DeadbandSuppression(t *testing.T) {
	value := 20.0
	s, conn, _ := newTestScheduler(t,
		[]config.TagConfig{{Name: "Temp", Type: "double", Deadband: 2.0}},
		map[string]tag.Sampler{"Temp": func() (any, error) { return value, nil }},
	)
	ctx := context.Background()

	s.publishAll(ctx) // first sample publishes
	value = 21.0
	s.publishAll(ctx) // within deadband, suppressed
	value = 22.5
	s.publishAll(ctx) // crosses deadband against 20.0 baseline

	if got := len(conn.publishedNames()); got != 2 {
		t.Errorf("published %d samples, want 2 (20.0 and 22.5)", got)
	}
}

func TestScheduler_FailedPublishIsBuffered(t *testing.T) {
	s, conn, store := newTestScheduler(t,
		[]config.TagConfig{{Name: "Temp", Type: "double"}},
		map[string]tag.Sampler{"Temp": func() (any, error) { return 20.0, nil }},
	)
	conn.failPublish = true
	ctx := context.Background()

	s.publishAll(ctx)

	m, err := store.Metrics(ctx)
	if err != nil {
		t.Fatalf("Metrics() error = %v", err)
	}
	if m.Count != 1 {
		t.Fatalf("buffered count = %d, want 1", m.Count)
	}

	// The buffered record is the encoded payload that failed to publish.
	var rec buffer.Record
	if _, err := store.DrainAll(ctx, func(r buffer.Record) error {
		rec = r
		return nil
	}); err != nil {
		t.Fatalf("DrainAll() error = %v", err)
	}
	decoded, err := sparkplug.Decode(rec.Payload)
	if err != nil {
		t.Fatalf("decoding buffered payload: %v", err)
	}
	if len(decoded.Metrics) != 1 || decoded.Metrics[0].Name != "Temp" {
		t.Errorf("buffered payload metrics = %+v", decoded.Metrics)
	}
}

func TestScheduler_OneTagFailureDoesNotBlockOthers(t *testing.T) {
	s, conn, _ := newTestScheduler(t,
		[]config.TagConfig{
			{Name: "Broken", Type: "double"},
			{Name: "Working", Type: "double"},
		},
		map[string]tag.Sampler{
			"Broken":  func() (any, error) { return nil, errors.New("sensor offline") },
			"Working": func() (any, error) { return 42.0, nil },
		},
	)

	s.publishAll(context.Background())

	names := conn.publishedNames()
	if len(names) != 1 || names[0] != "Working" {
		t.Errorf("published = %v, want [Working]", names)
	}
}

func TestScheduler_LocationAtMinuteZero(t *testing.T) {
	s, conn, _ := newTestScheduler(t, nil, nil)

	base := time.Date(2026, 8, 28, 14, 0, 3, 0, time.UTC)
	s.now = func() time.Time { return base }

	ctx := context.Background()
	s.publishAll(ctx)
	s.publishAll(ctx) // same minute-zero window, must not repeat

	if conn.locations != 1 {
		t.Fatalf("locations = %d, want 1 per window", conn.locations)
	}

	// Outside the window: no publish.
	s.now = func() time.Time { return base.Add(5 * time.Minute) }
	s.publishAll(ctx)
	if conn.locations != 1 {
		t.Errorf("locations = %d, want still 1", conn.locations)
	}

	// Next window fires again.
	s.now = func() time.Time { return base.Add(time.Hour) }
	s.publishAll(ctx)
	if conn.locations != 2 {
		t.Errorf("locations = %d, want 2", conn.locations)
	}
}

func TestScheduler_MirrorsToHistory(t *testing.T) {
	s, _, _ := newTestScheduler(t,
		[]config.TagConfig{{Name: "Temp", Type: "double"}},
		map[string]tag.Sampler{"Temp": func() (any, error) { return 20.0, nil }},
	)
	history := &fakeHistory{}
	s.history = history

	s.publishAll(context.Background())

	if len(history.records) != 1 || history.records[0].name != "Temp" {
		t.Fatalf("history records = %+v, want one Temp sample", history.records)
	}
}

func TestScheduler_NoHistoryOnFailedPublish(t *testing.T) {
	s, conn, _ := newTestScheduler(t,
		[]config.TagConfig{{Name: "Temp", Type: "double"}},
		map[string]tag.Sampler{"Temp": func() (any, error) { return 20.0, nil }},
	)
	history := &fakeHistory{}
	s.history = history
	conn.failPublish = true

	s.publishAll(context.Background())

	if len(history.records) != 0 {
		t.Errorf("history should not record failed publishes, got %+v", history.records)
	}
}
