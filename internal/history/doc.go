// Package history mirrors published tag samples into InfluxDB so recent
// telemetry can be inspected locally even when the SCADA host is the system
// of record.
//
// Writes are batched and non-blocking; a slow or absent history server can
// never hold up the publish loop. The mirror is optional and disabled
// cleanly when not configured.
package history
