package connection

import (
	"fmt"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/oakmoor/sparkedge/internal/sparkplug"
)

// commandQoS is the QoS used for NCMD/DCMD subscriptions.
const commandQoS = 1

// subscribeCommands subscribes to the node and device command wildcards.
func (m *Manager) subscribeCommands(client transport, topics sparkplug.Topics) error {
	for _, topic := range []string{topics.NodeCommandWildcard(), topics.DeviceCommandWildcard()} {
		token := client.Subscribe(topic, commandQoS, m.handleInbound)
		if !token.WaitTimeout(publishTimeout) {
			return fmt.Errorf("%w: timeout subscribing %s", ErrSubscribeFailed, topic)
		}
		if err := token.Error(); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrSubscribeFailed, topic, err)
		}
		m.logger.Debug("subscribed to command topic", "topic", topic)
	}
	return nil
}

// handleInbound dispatches received command messages. Malformed traffic is
// logged and dropped; nothing on this path may take down the receive loop.
func (m *Manager) handleInbound(_ pahomqtt.Client, msg pahomqtt.Message) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("inbound handler panic recovered", "topic", msg.Topic(), "panic", r)
		}
	}()

	info, err := sparkplug.ParseTopic(msg.Topic())
	if err != nil {
		m.logger.Debug("ignoring message with unparseable topic", "topic", msg.Topic(), "error", err)
		return
	}
	if !info.Type.IsCommand() {
		return
	}
	if !info.Addresses(m.Topics()) {
		m.logger.Debug("ignoring command for other node",
			"group", info.GroupID, "node", info.NodeID)
		return
	}

	payload, err := sparkplug.Decode(msg.Payload())
	if err != nil {
		m.logger.Warn("discarding undecodable command payload",
			"topic", msg.Topic(), "error", err)
		return
	}

	for i := range payload.Metrics {
		m.dispatchCommand(&payload.Metrics[i])
	}
}

// dispatchCommand acts on a single command metric. Unrecognised commands
// are ignored, not errors.
func (m *Manager) dispatchCommand(metric *sparkplug.Metric) {
	switch {
	case metric.Name == metricRebirth || metric.Alias == aliasRebirth:
		m.logger.Info("rebirth command received")
		go func() {
			if err := m.Rebirth(); err != nil {
				m.logger.Error("rebirth failed", "error", err)
			}
		}()

	case metric.Name == metricReboot || metric.Alias == aliasReboot:
		m.logger.Warn("reboot command received")
		if m.rebooter == nil {
			m.logger.Error("reboot command ignored, no rebooter configured")
			return
		}
		go func() {
			if err := m.rebooter.Reboot(); err != nil {
				m.logger.Error("reboot failed", "error", err)
			}
		}()

	default:
		m.logger.Debug("ignoring unrecognised command", "metric", metric.Name, "alias", metric.Alias)
	}
}
