package connection

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/oakmoor/sparkedge/internal/buffer"
	"github.com/oakmoor/sparkedge/internal/infrastructure/config"
	"github.com/oakmoor/sparkedge/internal/sparkplug"
	"github.com/oakmoor/sparkedge/internal/tag"
)

// Connection constants.
const (
	// connectTimeout is the maximum time to wait for a connection attempt.
	connectTimeout = 10 * time.Second

	// publishTimeout is the maximum time to wait for publish acknowledgment.
	publishTimeout = 5 * time.Second

	// disconnectQuiesce is the time to wait for pending operations on disconnect.
	disconnectQuiesce = 1000 // milliseconds

	// birthSettleDelay separates node birth from device birth so hosts
	// process them in order.
	birthSettleDelay = 2 * time.Second

	// maxQoS is the maximum QoS level supported.
	maxQoS = 2
)

// State describes the connection lifecycle.
type State int32

// Connection states.
const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

// String returns the state name for logging and the admin API.
func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Logger defines the logging interface used by the Manager.
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

// Rebooter restarts the host in response to a reboot command.
// The process does not return from a successful reboot.
type Rebooter interface {
	Reboot() error
}

// transport is the subset of the paho client the manager uses.
// Narrowed to an interface so the state machine is testable without a broker.
type transport interface {
	Connect() pahomqtt.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload any) pahomqtt.Token
	Subscribe(topic string, qos byte, callback pahomqtt.MessageHandler) pahomqtt.Token
	IsConnectionOpen() bool
}

// transportFactory builds a transport from paho client options.
type transportFactory func(opts *pahomqtt.ClientOptions) transport

// pahoFactory is the production transport factory.
func pahoFactory(opts *pahomqtt.ClientOptions) transport {
	return pahomqtt.NewClient(opts)
}

// Options configures a Manager.
type Options struct {
	// ConfigPath is re-read on every connect and reload, so configuration
	// edits take effect without a restart.
	ConfigPath string

	Registry *tag.Registry
	Filter   *tag.Filter
	Buffer   *buffer.Store
	Rebooter Rebooter

	// Watchdog timing, fixed at startup.
	Watchdog config.WatchdogConfig

	// Version is the firmware version reported in birth messages.
	Version string

	Logger Logger
}

// Metrics is a snapshot of connection counters for the admin API.
type Metrics struct {
	State        string    `json:"state"`
	MessagesSent int64     `json:"messages_sent"`
	Reconnects   int64     `json:"reconnects"`
	LastConnect  time.Time `json:"last_connect"`
	LatencyMS    int64     `json:"latency_ms"`
	BdSeq        uint64    `json:"bd_seq"`
}

// Manager owns the MQTT session and the Sparkplug lifecycle around it.
type Manager struct {
	configPath string
	registry   *tag.Registry
	filter     *tag.Filter
	store      *buffer.Store
	rebooter   Rebooter
	watchdog   config.WatchdogConfig
	version    string
	logger     Logger

	newTransport transportFactory
	settleDelay  time.Duration

	// mu serialises connect/disconnect/reload sequences and guards the
	// client, cfg and topics fields. Exactly one such sequence runs at a
	// time; Connect while Connecting or Connected is a logged no-op.
	mu     sync.Mutex
	client transport
	cfg    *config.Config
	topics sparkplug.Topics

	// state is read lock-free on the publish hot path.
	state atomic.Int32

	// pubMu serialises transport publishes so sequence numbers leave the
	// socket in the order they were assigned.
	pubMu sync.Mutex

	seq   sparkplug.SeqTracker
	bdSeq sparkplug.BdSeqTracker

	sent          atomic.Int64
	reconnects    atomic.Int64
	lastConnectMS atomic.Int64
	latencyMS     atomic.Int64

	probeInFlight atomic.Bool
	probeFailures atomic.Int32
}

// NewManager creates a connection manager. It does not connect; call
// Connect once the rest of the pipeline is wired.
func NewManager(opts Options) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	return &Manager{
		configPath:   opts.ConfigPath,
		registry:     opts.Registry,
		filter:       opts.Filter,
		store:        opts.Buffer,
		rebooter:     opts.Rebooter,
		watchdog:     opts.Watchdog,
		version:      opts.Version,
		logger:       logger,
		newTransport: pahoFactory,
		settleDelay:  birthSettleDelay,
	}
}

// State returns the current connection state.
func (m *Manager) State() State {
	return State(m.state.Load())
}

// Connect loads the current configuration, applies the security mode, opens
// the transport, and on success runs the birth sequence, drains the buffer
// and subscribes to command topics.
//
// Idempotent from Disconnected; a call while Connecting or Connected is a
// no-op that logs a warning.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s := m.State(); s != StateDisconnected {
		m.logger.Warn("connect requested while not disconnected", "state", s.String())
		return nil
	}
	m.state.Store(int32(StateConnecting))

	if err := m.connectLocked(ctx); err != nil {
		m.state.Store(int32(StateDisconnected))
		return err
	}
	return nil
}

// connectLocked performs one connection attempt. Caller holds m.mu and has
// set state to Connecting.
func (m *Manager) connectLocked(ctx context.Context) error {
	// Configuration is never cached across reconnects.
	cfg, err := config.Load(m.configPath)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConnectFailed, err)
	}

	opts, err := m.buildClientOptions(cfg)
	if err != nil {
		return err
	}

	client := m.newTransport(opts)
	token := client.Connect()
	if !waitToken(ctx, token, connectTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrConnectFailed, connectTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrConnectFailed, err)
	}

	m.client = client
	m.cfg = cfg
	m.topics = sparkplug.Topics{
		GroupID:  cfg.Node.GroupID,
		NodeID:   cfg.Node.NodeID,
		DeviceID: cfg.Node.DeviceID,
	}
	m.state.Store(int32(StateConnected))
	m.lastConnectMS.Store(time.Now().UnixMilli())

	m.logger.Info("connected to broker",
		"broker", fmt.Sprintf("%s:%d", cfg.Broker.Host, cfg.Broker.Port),
		"security", string(cfg.Security.Mode),
		"bd_seq", m.bdSeq.Current())

	m.onConnectSuccess(ctx, client, cfg, m.topics)
	return nil
}

// onConnectSuccess emits births, drains the buffer and subscribes to
// commands. Lifecycle ordering: node birth, settle, device birth, buffered
// redelivery, then live publishing may begin.
//
// Runs with m.mu held, so it works on the snapshot it is handed rather than
// going back through the locking accessors.
func (m *Manager) onConnectSuccess(ctx context.Context, client transport, cfg *config.Config, topics sparkplug.Topics) {
	if err := m.publishBirthSequence(client, cfg, topics); err != nil {
		m.logger.Error("birth sequence failed", "error", err)
	}

	if m.store != nil {
		drained, err := m.store.DrainAll(ctx, func(rec buffer.Record) error {
			m.pubMu.Lock()
			defer m.pubMu.Unlock()
			return m.publishSerialized(client, rec.Topic, rec.Payload, rec.QoS, rec.Retain)
		})
		if err != nil {
			m.logger.Warn("buffer drain incomplete", "delivered", drained, "error", err)
		} else if drained > 0 {
			m.logger.Info("buffered messages redelivered", "count", drained)
		}
	}

	if err := m.subscribeCommands(client, topics); err != nil {
		m.logger.Error("command subscription failed", "error", err)
	}
}

// buildClientOptions creates paho options from configuration: broker URL,
// authentication, session policy, and the NDEATH last will.
func (m *Manager) buildClientOptions(cfg *config.Config) (*pahomqtt.ClientOptions, error) {
	opts := pahomqtt.NewClientOptions()

	tlsConfig, err := buildTLSConfig(cfg.Security)
	if err != nil {
		return nil, err
	}

	scheme := "tcp"
	if tlsConfig != nil {
		scheme = "ssl"
		opts.SetTLSConfig(tlsConfig)
	}
	if cfg.Security.Mode == config.SecurityTLSInsecure {
		m.logger.Warn("TLS certificate validation disabled (tls-insecure mode)")
	}

	opts.AddBroker(fmt.Sprintf("%s://%s:%d", scheme, cfg.Broker.Host, cfg.Broker.Port))
	opts.SetClientID(cfg.Node.ClientID)

	if cfg.Security.Username != "" {
		opts.SetUsername(cfg.Security.Username)
		opts.SetPassword(cfg.Security.Password)
	}

	// Sparkplug sessions are stateless on the broker side; births carry the
	// full state on every connect.
	opts.SetCleanSession(true)
	opts.SetKeepAlive(cfg.KeepAlive())
	opts.SetConnectTimeout(connectTimeout)

	// The watchdog owns reconnection; paho-level auto-reconnect would race
	// it and repeat births outside the manager's control.
	opts.SetAutoReconnect(false)

	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		m.handleTransportLoss(err)
	})

	// Last will: NDEATH with the bdSeq of the session being opened, so the
	// broker announces this session's death if the client vanishes.
	willPayload, err := m.buildDeathPayload(m.bdSeq.NextSession())
	if err != nil {
		return nil, fmt.Errorf("building last will: %w", err)
	}
	opts.SetBinaryWill(m.willTopic(cfg), willPayload, 1, false)

	return opts, nil
}

// willTopic returns the NDEATH topic for the configuration being connected.
func (m *Manager) willTopic(cfg *config.Config) string {
	t := sparkplug.Topics{GroupID: cfg.Node.GroupID, NodeID: cfg.Node.NodeID}
	return t.NodeDeath()
}

// handleTransportLoss marks the session down. Recovery is the watchdog's job.
func (m *Manager) handleTransportLoss(err error) {
	m.state.Store(int32(StateDisconnected))
	m.reconnects.Add(1)
	m.logger.Warn("transport connection lost", "error", err)
}

// Disconnect emits an explicit node death and closes the transport.
// Always safe to call regardless of state.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disconnectLocked()
}

func (m *Manager) disconnectLocked() {
	if m.client == nil {
		m.state.Store(int32(StateDisconnected))
		return
	}

	if m.State() == StateConnected {
		if err := m.publishDeath(); err != nil {
			m.logger.Warn("explicit death publish failed", "error", err)
		}
	}

	m.client.Disconnect(disconnectQuiesce)
	m.client = nil
	m.state.Store(int32(StateDisconnected))
	m.logger.Info("disconnected from broker")
}

// Reload tears down the session and reconnects with freshly loaded
// configuration. Buffer contents are untouched.
func (m *Manager) Reload(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.logger.Info("reloading connection")
	m.disconnectLocked()

	m.state.Store(int32(StateConnecting))
	if err := m.connectLocked(ctx); err != nil {
		m.state.Store(int32(StateDisconnected))
		return err
	}
	return nil
}

// ReloadCertificates re-establishes the session so replaced certificate
// files on disk take effect. TLS material is only read at connect time.
func (m *Manager) ReloadCertificates(ctx context.Context) error {
	m.logger.Info("reloading certificates")
	return m.Reload(ctx)
}

// Publish transmits a message if the session is up. Returns ErrNotConnected
// otherwise; the caller decides whether to buffer.
//
// Lock ordering is always mu before pubMu: the client snapshot is taken
// first, then the serialised publish section is entered.
func (m *Manager) Publish(topic string, payload []byte, qos byte, retain bool) error {
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if m.State() != StateConnected {
		return ErrNotConnected
	}

	m.mu.Lock()
	client := m.client
	m.mu.Unlock()
	if client == nil {
		return ErrNotConnected
	}

	m.pubMu.Lock()
	defer m.pubMu.Unlock()
	return m.publishSerialized(client, topic, payload, qos, retain)
}

// publishSerialized performs the transport publish. Caller holds pubMu.
func (m *Manager) publishSerialized(client transport, topic string, payload []byte, qos byte, retain bool) error {
	token := client.Publish(topic, qos, retain, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrPublishFailed, publishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}

	m.sent.Add(1)
	return nil
}

// sessionTopics returns the transport and topic identity. Before the first
// successful connect the identity is read from configuration, so samples
// buffered during a broker outage at boot carry the real node topics and
// redeliver correctly once the watchdog brings the session up.
func (m *Manager) sessionTopics() (transport, sparkplug.Topics) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.topics == (sparkplug.Topics{}) {
		cfg, err := config.Load(m.configPath)
		if err != nil {
			m.logger.Error("loading node identity", "error", err)
		} else {
			m.topics = sparkplug.Topics{
				GroupID:  cfg.Node.GroupID,
				NodeID:   cfg.Node.NodeID,
				DeviceID: cfg.Node.DeviceID,
			}
		}
	}
	return m.client, m.topics
}

// PublishData assembles a data payload from metrics, assigns the next
// sequence number, and publishes it. The topic and encoded payload are
// returned even on failure so the caller can enqueue them for redelivery.
func (m *Manager) PublishData(metrics []sparkplug.Metric, device bool) (string, []byte, error) {
	client, topics := m.sessionTopics()

	topic := topics.NodeData()
	if device {
		topic = topics.DeviceData()
	}

	m.pubMu.Lock()
	defer m.pubMu.Unlock()

	p := sparkplug.NewPayload().WithSeq(m.seq.Next())
	for _, metric := range metrics {
		p.AddMetric(metric)
	}
	payload, err := p.Encode()
	if err != nil {
		return topic, nil, fmt.Errorf("encoding data payload: %w", err)
	}

	if m.State() != StateConnected || client == nil {
		return topic, payload, ErrNotConnected
	}
	if err := m.publishSerialized(client, topic, payload, 0, false); err != nil {
		return topic, payload, err
	}
	return topic, payload, nil
}

// Topics returns the node identity used for topic building. Zero value
// before the first connect unless PublishData has already loaded it from
// configuration.
func (m *Manager) Topics() sparkplug.Topics {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.topics
}

// Metrics returns a snapshot of connection counters.
func (m *Manager) Metrics() Metrics {
	var last time.Time
	if ms := m.lastConnectMS.Load(); ms > 0 {
		last = time.UnixMilli(ms)
	}
	return Metrics{
		State:        m.State().String(),
		MessagesSent: m.sent.Load(),
		Reconnects:   m.reconnects.Load(),
		LastConnect:  last,
		LatencyMS:    m.latencyMS.Load(),
		BdSeq:        m.bdSeq.Current(),
	}
}

// waitToken waits for a paho token honouring the context and a timeout.
// Returns false if the context or timeout expired before completion.
func waitToken(ctx context.Context, token pahomqtt.Token, timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return false
	case <-token.Done():
		return true
	}
}
