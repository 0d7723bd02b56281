package history

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// tagMeasurement is the measurement name for mirrored tag samples.
const tagMeasurement = "tag_history"

// WriteTagValue mirrors one published tag sample.
//
// The write is non-blocking; points are batched and flushed in the
// background. Samples written while disconnected are silently dropped,
// since the SCADA host remains the system of record.
func (c *Client) WriteTagValue(name string, value any, unit string, ts time.Time) {
	if !c.IsConnected() {
		return
	}

	tags := map[string]string{
		"tag": name,
	}
	if unit != "" {
		tags["unit"] = unit
	}

	point := write.NewPoint(
		tagMeasurement,
		tags,
		map[string]interface{}{
			"value": value,
		},
		ts,
	)

	c.writeAPI.WritePoint(point)
}

// WriteNodeEvent records a connection lifecycle event (birth, death,
// reconnect) for later inspection alongside the tag series.
func (c *Client) WriteNodeEvent(event string, detail string) {
	if !c.IsConnected() {
		return
	}

	fields := map[string]interface{}{
		"event": event,
	}
	if detail != "" {
		fields["detail"] = detail
	}

	point := write.NewPoint("node_events", nil, fields, time.Now())
	c.writeAPI.WritePoint(point)
}
