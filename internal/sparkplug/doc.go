// Package sparkplug implements the Sparkplug B topic namespace and the
// subset of the payload encoding this client uses.
//
// This package manages:
//   - Topic builders and parsing for spBv1.0/{group}/{type}/{node}[/{device}]
//   - Payload encoding/decoding on the protobuf wire format
//   - Metric data types and value mapping
//   - Per-session sequence numbers and birth/death (bdSeq) correlation
//
// # Payload encoding
//
// Payloads are encoded directly with google.golang.org/protobuf/encoding/protowire
// against the field numbers of the Eclipse Tahu sparkplug_b.proto schema.
// Only the fields this client produces or consumes are implemented: payload
// timestamp/seq, and metric name/alias/timestamp/datatype/historical/null
// flags, engUnit and desc properties, and scalar values. Unknown fields in
// inbound payloads are skipped, not rejected.
//
// # Sequence numbers
//
// Sparkplug tracks two counters per edge node: seq (0-255, reset to 0 by
// NBIRTH, incremented by every subsequent message) and bdSeq (incremented
// once per MQTT session, carried by both NBIRTH and the NDEATH last-will so
// consumers can pair a death with the session it ends).
package sparkplug
