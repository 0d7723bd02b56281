package publisher

import (
	"context"
	"time"

	"github.com/oakmoor/sparkedge/internal/buffer"
	"github.com/oakmoor/sparkedge/internal/sparkplug"
	"github.com/oakmoor/sparkedge/internal/tag"
)

// Logger defines the logging interface used by the Scheduler.
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

// Connection is the slice of the connection manager the scheduler uses.
type Connection interface {
	// PublishData publishes metrics as a data message, returning the topic
	// and encoded payload so they can be buffered on failure.
	PublishData(metrics []sparkplug.Metric, device bool) (topic string, payload []byte, err error)

	// PublishLocation emits the minute-boundary location message.
	PublishLocation() error
}

// HistoryWriter mirrors published samples to local history storage.
type HistoryWriter interface {
	WriteTagValue(name string, value any, unit string, ts time.Time)
}

// Options configures a Scheduler.
type Options struct {
	Connection Connection
	Registry   *tag.Registry
	Filter     *tag.Filter
	Buffer     *buffer.Store

	// History is optional; nil disables mirroring.
	History HistoryWriter

	// Interval between sampling passes.
	Interval time.Duration

	Logger Logger
}

// Scheduler is the periodic publish loop.
type Scheduler struct {
	conn     Connection
	registry *tag.Registry
	filter   *tag.Filter
	store    *buffer.Store
	history  HistoryWriter
	interval time.Duration
	logger   Logger

	// now is swapped out by tests to control the minute-boundary check.
	now func() time.Time

	// lastLocationStamp is the hour of the last location publish, so the
	// minute-zero window fires once per hour rather than on every tick
	// inside it.
	lastLocationStamp time.Time
}

// NewScheduler creates a scheduler. Call Run to start the loop.
func NewScheduler(opts Options) *Scheduler {
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	interval := opts.Interval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Scheduler{
		conn:     opts.Connection,
		registry: opts.Registry,
		filter:   opts.Filter,
		store:    opts.Buffer,
		history:  opts.History,
		interval: interval,
		logger:   logger,
		now:      time.Now,
	}
}

// Run executes sampling passes at the configured interval until the context
// is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info("publish scheduler started", "interval", s.interval)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("publish scheduler stopped")
			return
		case <-ticker.C:
			s.publishAll(ctx)
		}
	}
}

// publishAll performs one sampling pass over the registry.
func (s *Scheduler) publishAll(ctx context.Context) {
	s.maybePublishLocation()

	for _, def := range s.registry.All() {
		s.publishTag(ctx, def)
	}
}

// maybePublishLocation emits the location message when the wall clock enters
// the :00 minute, once per occurrence, independent of deadband filtering.
func (s *Scheduler) maybePublishLocation() {
	now := s.now()
	if now.Minute() != 0 {
		return
	}
	window := now.Truncate(time.Hour)
	if s.lastLocationStamp.Equal(window) {
		return
	}

	if err := s.conn.PublishLocation(); err != nil {
		s.logger.Warn("location publish failed", "error", err)
		return
	}
	s.lastLocationStamp = window
	s.logger.Debug("location published")
}

// publishTag samples one tag, runs it through the deadband filter, and
// publishes or buffers the result. Failures are logged and contained.
func (s *Scheduler) publishTag(ctx context.Context, def *tag.Definition) {
	value, err := s.registry.Sample(def.Name)
	if err != nil {
		s.logger.Warn("tag sample failed", "tag", def.Name, "error", err)
		return
	}

	if !s.filter.ShouldPublish(def, value) {
		s.logger.Debug("sample suppressed by deadband", "tag", def.Name, "value", value)
		return
	}

	metric := sparkplug.Metric{
		Name:     def.Name,
		Alias:    def.Alias,
		DataType: def.DataType,
		Value:    value,
		Properties: []sparkplug.Property{
			{Key: sparkplug.PropertyEngUnit, Value: def.Unit},
			{Key: sparkplug.PropertyDesc, Value: def.Desc},
		},
	}

	sampledAt := s.now()
	topic, payload, err := s.conn.PublishData([]sparkplug.Metric{metric}, false)
	if err != nil {
		if len(payload) == 0 {
			s.logger.Error("tag publish failed without payload", "tag", def.Name, "error", err)
			return
		}
		s.logger.Warn("tag publish failed, buffering", "tag", def.Name, "error", err)
		if err := s.store.Enqueue(ctx, topic, payload, 0, false); err != nil {
			s.logger.Error("buffering failed, sample lost", "tag", def.Name, "error", err)
		}
		return
	}

	if s.history != nil {
		s.history.WriteTagValue(def.Name, value, def.Unit, sampledAt)
	}
}
