package sparkplug

import (
	"fmt"
	"strings"
)

// Namespace is the Sparkplug B topic namespace prefix.
const Namespace = "spBv1.0"

// MessageType identifies the lifecycle or data role of a Sparkplug message.
type MessageType string

// Sparkplug B message types.
const (
	TypeNodeBirth     MessageType = "NBIRTH"
	TypeNodeDeath     MessageType = "NDEATH"
	TypeDeviceBirth   MessageType = "DBIRTH"
	TypeDeviceDeath   MessageType = "DDEATH"
	TypeNodeData      MessageType = "NDATA"
	TypeDeviceData    MessageType = "DDATA"
	TypeNodeCommand   MessageType = "NCMD"
	TypeDeviceCommand MessageType = "DCMD"
)

// IsCommand reports whether the message type is an inbound command.
func (t MessageType) IsCommand() bool {
	return t == TypeNodeCommand || t == TypeDeviceCommand
}

// Topics builds Sparkplug topics for a single edge node identity.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := sparkplug.Topics{GroupID: "plant-a", NodeID: "edge-07", DeviceID: "dev1"}
//	topics.NodeData() // "spBv1.0/plant-a/NDATA/edge-07"
type Topics struct {
	GroupID  string
	NodeID   string
	DeviceID string
}

// NodeBirth returns the NBIRTH topic for this node.
//
// Example: spBv1.0/plant-a/NBIRTH/edge-07
func (t Topics) NodeBirth() string {
	return fmt.Sprintf("%s/%s/NBIRTH/%s", Namespace, t.GroupID, t.NodeID)
}

// NodeDeath returns the NDEATH topic for this node.
func (t Topics) NodeDeath() string {
	return fmt.Sprintf("%s/%s/NDEATH/%s", Namespace, t.GroupID, t.NodeID)
}

// NodeData returns the NDATA topic for this node.
func (t Topics) NodeData() string {
	return fmt.Sprintf("%s/%s/NDATA/%s", Namespace, t.GroupID, t.NodeID)
}

// DeviceBirth returns the DBIRTH topic for the attached device.
//
// Example: spBv1.0/plant-a/DBIRTH/edge-07/dev1
func (t Topics) DeviceBirth() string {
	return fmt.Sprintf("%s/%s/DBIRTH/%s/%s", Namespace, t.GroupID, t.NodeID, t.DeviceID)
}

// DeviceDeath returns the DDEATH topic for the attached device.
func (t Topics) DeviceDeath() string {
	return fmt.Sprintf("%s/%s/DDEATH/%s/%s", Namespace, t.GroupID, t.NodeID, t.DeviceID)
}

// DeviceData returns the DDATA topic for the attached device.
func (t Topics) DeviceData() string {
	return fmt.Sprintf("%s/%s/DDATA/%s/%s", Namespace, t.GroupID, t.NodeID, t.DeviceID)
}

// NodeCommandWildcard returns the subscription pattern for inbound NCMD messages.
//
// Pattern: spBv1.0/plant-a/NCMD/edge-07/#
func (t Topics) NodeCommandWildcard() string {
	return fmt.Sprintf("%s/%s/NCMD/%s/#", Namespace, t.GroupID, t.NodeID)
}

// DeviceCommandWildcard returns the subscription pattern for inbound DCMD messages.
func (t Topics) DeviceCommandWildcard() string {
	return fmt.Sprintf("%s/%s/DCMD/%s/#", Namespace, t.GroupID, t.NodeID)
}

// TopicInfo contains the components parsed from a Sparkplug topic.
type TopicInfo struct {
	GroupID  string
	Type     MessageType
	NodeID   string
	DeviceID string // empty for node-level messages
}

// minTopicTokens is the token count of a node-level Sparkplug topic.
const minTopicTokens = 4

// ParseTopic splits a Sparkplug topic into its components.
//
// Returns an error for topics outside the spBv1.0 namespace or with too
// few path segments; callers use this to reject traffic that is not
// addressed to this node before decoding the payload.
func ParseTopic(topic string) (TopicInfo, error) {
	tokens := strings.Split(topic, "/")
	if len(tokens) < minTopicTokens {
		return TopicInfo{}, fmt.Errorf("topic %q: expected at least %d segments", topic, minTopicTokens)
	}
	if tokens[0] != Namespace {
		return TopicInfo{}, fmt.Errorf("topic %q: not in namespace %s", topic, Namespace)
	}

	info := TopicInfo{
		GroupID: tokens[1],
		Type:    MessageType(tokens[2]),
		NodeID:  tokens[3],
	}
	if len(tokens) > minTopicTokens {
		info.DeviceID = tokens[4]
	}
	return info, nil
}

// Addresses reports whether the parsed topic addresses the given identity.
func (i TopicInfo) Addresses(t Topics) bool {
	return i.GroupID == t.GroupID && i.NodeID == t.NodeID
}
