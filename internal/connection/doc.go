// Package connection owns the MQTT session: the Disconnected/Connecting/
// Connected state machine, transport security, Sparkplug birth and death
// lifecycle messages, inbound command dispatch, and the connection watchdog.
//
// The manager is the only component that touches the paho client. Everything
// that wants to send traffic goes through Publish, which reports failure to
// the caller instead of buffering itself; the publish scheduler owns the
// store-and-forward decision.
//
// Thread safety: all exported methods are safe for concurrent use. One
// connect/reload sequence runs at a time; publishes are serialised so
// Sparkplug sequence numbers leave in the order they were assigned.
package connection
