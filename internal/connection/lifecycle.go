package connection

import (
	"fmt"
	"time"

	"github.com/oakmoor/sparkedge/internal/infrastructure/config"
	"github.com/oakmoor/sparkedge/internal/sparkplug"
	"github.com/oakmoor/sparkedge/internal/sysinfo"
)

// Node control and identity metric names. Control metrics use the reserved
// alias range below the tag registry's first assignable alias.
const (
	metricNextServer = "Node Control/Next Server"
	metricRebirth    = "Node Control/Rebirth"
	metricReboot     = "Node Control/Reboot"
	metricBdSeq      = "bdSeq"
	metricOnline     = "Device Online"

	aliasNextServer = 0
	aliasRebirth    = 1
	aliasReboot     = 2
)

// Identity metric names reported in the node birth certificate.
const (
	metricHostname    = "Properties/Hostname"
	metricOS          = "Properties/OS"
	metricOSVersion   = "Properties/OS Version"
	metricBootTime    = "Device/Boot Time"
	metricFirmware    = "Device/Firmware/Version"
	metricMACAddress  = "Device/Network/Mac Address"
	metricIPAddress   = "Device/Network/IP Address"
	metricLocationLat = "Device/Location/Lat"
	metricLocationLon = "Device/Location/Long"
	metricLocationSrc = "Device/Location/Source"
)

// publishBirthSequence emits the node birth, waits for the broker to settle,
// then emits the device birth. Sequence numbers restart at zero, so the node
// birth always carries seq 0.
//
// Holds pubMu for the whole sequence: nothing else may interleave between
// the two births.
func (m *Manager) publishBirthSequence(client transport, cfg *config.Config, topics sparkplug.Topics) error {
	m.pubMu.Lock()
	defer m.pubMu.Unlock()

	m.seq.Reset()

	nbirth, err := m.buildNodeBirth(cfg)
	if err != nil {
		return fmt.Errorf("building node birth: %w", err)
	}
	if err := m.publishSerialized(client, topics.NodeBirth(), nbirth, 0, false); err != nil {
		return fmt.Errorf("publishing node birth: %w", err)
	}
	m.logger.Info("node birth published", "bd_seq", m.bdSeq.Current())

	time.Sleep(m.settleDelay)

	dbirth, err := m.buildDeviceBirth()
	if err != nil {
		return fmt.Errorf("building device birth: %w", err)
	}
	if err := m.publishSerialized(client, topics.DeviceBirth(), dbirth, 0, false); err != nil {
		return fmt.Errorf("publishing device birth: %w", err)
	}
	m.logger.Info("device birth published", "device", topics.DeviceID)

	return nil
}

// buildNodeBirth assembles the NBIRTH payload: session bdSeq, node control
// metrics, host identity, location, and the current value of every
// registered tag with its alias and engUnit/desc properties.
func (m *Manager) buildNodeBirth(cfg *config.Config) ([]byte, error) {
	p := sparkplug.NewPayload().WithSeq(m.seq.Next())

	p.AddMetric(sparkplug.Metric{
		Name: metricBdSeq, DataType: sparkplug.DataTypeInt64, Value: int64(m.bdSeq.Current()), //nolint:gosec // bdSeq is 0..255
	})
	p.AddMetric(sparkplug.Metric{
		Name: metricNextServer, Alias: aliasNextServer, DataType: sparkplug.DataTypeBoolean, Value: false,
	})
	p.AddMetric(sparkplug.Metric{
		Name: metricRebirth, Alias: aliasRebirth, DataType: sparkplug.DataTypeBoolean, Value: false,
	})
	p.AddMetric(sparkplug.Metric{
		Name: metricReboot, Alias: aliasReboot, DataType: sparkplug.DataTypeBoolean, Value: false,
	})

	m.addIdentityMetrics(p, cfg)
	m.addTagMetrics(p)

	return p.Encode()
}

// addIdentityMetrics appends static host facts to a birth payload.
// Readings that fail are logged and skipped, never fatal.
func (m *Manager) addIdentityMetrics(p *sparkplug.Payload, cfg *config.Config) {
	id, err := sysinfo.CollectIdentity()
	if err != nil {
		m.logger.Warn("partial host identity in birth", "error", err)
	}

	addString := func(name, value string) {
		if value == "" {
			return
		}
		p.AddMetric(sparkplug.Metric{Name: name, DataType: sparkplug.DataTypeString, Value: value})
	}

	addString(metricHostname, id.Hostname)
	addString(metricOS, id.OS)
	addString(metricOSVersion, id.Platform)
	addString(metricFirmware, m.version)
	addString(metricMACAddress, id.MACAddress)
	addString(metricIPAddress, id.IPAddress)

	if !id.BootTime.IsZero() {
		p.AddMetric(sparkplug.Metric{Name: metricBootTime, DataType: sparkplug.DataTypeDateTime, Value: id.BootTime})
	}

	p.AddMetric(sparkplug.Metric{Name: metricLocationLat, DataType: sparkplug.DataTypeDouble, Value: cfg.Location.Latitude})
	p.AddMetric(sparkplug.Metric{Name: metricLocationLon, DataType: sparkplug.DataTypeDouble, Value: cfg.Location.Longitude})
	addString(metricLocationSrc, cfg.Location.Source)
}

// addTagMetrics appends the current value of every registered tag. A tag
// whose sampler fails is reported as null rather than omitted, so the host
// still learns its alias and metadata.
func (m *Manager) addTagMetrics(p *sparkplug.Payload) {
	if m.registry == nil {
		return
	}
	for _, def := range m.registry.All() {
		metric := sparkplug.Metric{
			Name:       def.Name,
			Alias:      def.Alias,
			DataType:   def.DataType,
			Properties: tagProperties(def.Unit, def.Desc),
		}

		value, err := m.registry.Sample(def.Name)
		if err != nil {
			m.logger.Warn("tag sample failed during birth", "tag", def.Name, "error", err)
			metric.IsNull = true
		} else {
			metric.Value = value
			if m.filter != nil {
				m.filter.UpdateLastValue(def, value)
			}
		}
		p.AddMetric(metric)
	}
}

// tagProperties builds the engUnit/desc property set for a tag metric.
func tagProperties(unit, desc string) []sparkplug.Property {
	return []sparkplug.Property{
		{Key: sparkplug.PropertyEngUnit, Value: unit},
		{Key: sparkplug.PropertyDesc, Value: desc},
	}
}

// buildDeviceBirth assembles the DBIRTH payload announcing the attached
// device as online.
func (m *Manager) buildDeviceBirth() ([]byte, error) {
	p := sparkplug.NewPayload().WithSeq(m.seq.Next())
	p.AddMetric(sparkplug.Metric{Name: metricOnline, DataType: sparkplug.DataTypeBoolean, Value: true})
	return p.Encode()
}

// buildDeathPayload assembles an NDEATH: the pairing bdSeq and the online
// flag lowered. Used both as the registered last will and for the explicit
// death on graceful shutdown.
func (m *Manager) buildDeathPayload(bdSeq uint64) ([]byte, error) {
	p := sparkplug.NewPayload()
	p.AddMetric(sparkplug.Metric{
		Name: metricBdSeq, DataType: sparkplug.DataTypeInt64, Value: int64(bdSeq), //nolint:gosec // bdSeq is 0..255
	})
	p.AddMetric(sparkplug.Metric{Name: metricOnline, DataType: sparkplug.DataTypeBoolean, Value: false})
	return p.Encode()
}

// publishDeath emits the explicit NDEATH for the active session.
// Caller holds m.mu.
func (m *Manager) publishDeath() error {
	client := m.client
	if client == nil {
		return ErrNotConnected
	}

	payload, err := m.buildDeathPayload(m.bdSeq.Current())
	if err != nil {
		return fmt.Errorf("building death payload: %w", err)
	}

	m.pubMu.Lock()
	defer m.pubMu.Unlock()
	if err := m.publishSerialized(client, m.topics.NodeDeath(), payload, 1, false); err != nil {
		return err
	}
	m.logger.Info("node death published", "bd_seq", m.bdSeq.Current())
	return nil
}

// PublishLocation emits the location NDATA message. Called by the scheduler
// at minute boundaries independent of deadband filtering.
func (m *Manager) PublishLocation() error {
	m.mu.Lock()
	cfg := m.cfg
	m.mu.Unlock()
	if cfg == nil {
		return ErrNotConnected
	}

	metrics := []sparkplug.Metric{
		{Name: metricLocationLat, DataType: sparkplug.DataTypeDouble, Value: cfg.Location.Latitude},
		{Name: metricLocationLon, DataType: sparkplug.DataTypeDouble, Value: cfg.Location.Longitude},
		{Name: metricLocationSrc, DataType: sparkplug.DataTypeString, Value: cfg.Location.Source},
	}
	_, _, err := m.PublishData(metrics, false)
	return err
}

// Rebirth re-runs the full birth sequence on the live session, typically in
// response to a Node Control/Rebirth command from the host.
func (m *Manager) Rebirth() error {
	m.mu.Lock()
	client := m.client
	cfg := m.cfg
	topics := m.topics
	m.mu.Unlock()

	if client == nil || cfg == nil || m.State() != StateConnected {
		return ErrNotConnected
	}
	return m.publishBirthSequence(client, cfg, topics)
}
