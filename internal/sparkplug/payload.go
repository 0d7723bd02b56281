package sparkplug

import (
	"fmt"
	"math"
	"time"

	"google.golang.org/protobuf/encoding/protowire"
)

// Field numbers from the Eclipse Tahu sparkplug_b.proto schema.
// Only the subset this client produces or consumes is listed.
const (
	payloadFieldTimestamp = 1
	payloadFieldMetrics   = 2
	payloadFieldSeq       = 3

	metricFieldName         = 1
	metricFieldAlias        = 2
	metricFieldTimestamp    = 3
	metricFieldDataType     = 4
	metricFieldIsHistorical = 5
	metricFieldIsNull       = 7
	metricFieldProperties   = 9
	metricFieldIntValue     = 10
	metricFieldLongValue    = 11
	metricFieldFloatValue   = 12
	metricFieldDoubleValue  = 13
	metricFieldBooleanValue = 14
	metricFieldStringValue  = 15

	propertySetFieldKeys   = 1
	propertySetFieldValues = 2

	propertyValueFieldType   = 1
	propertyValueFieldString = 8
)

// Standard metric property keys.
const (
	PropertyEngUnit = "engUnit"
	PropertyDesc    = "desc"
)

// Property is a string-typed metric property such as engUnit or desc.
type Property struct {
	Key   string
	Value string
}

// Metric is a single named value within a payload.
type Metric struct {
	Name         string
	Alias        uint64
	Timestamp    time.Time
	DataType     DataType
	IsHistorical bool
	IsNull       bool
	Properties   []Property
	Value        any
}

// Payload is a Sparkplug B message body: a timestamp, an optional sequence
// number, and a list of metrics.
type Payload struct {
	Timestamp time.Time
	Seq       uint64
	HasSeq    bool
	Metrics   []Metric
}

// NewPayload returns a payload stamped with the current time.
func NewPayload() *Payload {
	return &Payload{Timestamp: time.Now()}
}

// WithSeq sets the payload sequence number and returns the payload.
func (p *Payload) WithSeq(seq uint64) *Payload {
	p.Seq = seq
	p.HasSeq = true
	return p
}

// AddMetric appends a metric and returns a pointer to the stored copy so
// callers can attach properties.
func (p *Payload) AddMetric(m Metric) *Metric {
	if m.Timestamp.IsZero() {
		m.Timestamp = p.Timestamp
	}
	p.Metrics = append(p.Metrics, m)
	return &p.Metrics[len(p.Metrics)-1]
}

// Encode serialises the payload to the Sparkplug B wire format.
func (p *Payload) Encode() ([]byte, error) {
	var b []byte
	if !p.Timestamp.IsZero() {
		b = protowire.AppendTag(b, payloadFieldTimestamp, protowire.VarintType)
		b = protowire.AppendVarint(b, millis(p.Timestamp))
	}
	for i := range p.Metrics {
		mb, err := encodeMetric(&p.Metrics[i])
		if err != nil {
			return nil, fmt.Errorf("metric %q: %w", p.Metrics[i].Name, err)
		}
		b = protowire.AppendTag(b, payloadFieldMetrics, protowire.BytesType)
		b = protowire.AppendBytes(b, mb)
	}
	if p.HasSeq {
		b = protowire.AppendTag(b, payloadFieldSeq, protowire.VarintType)
		b = protowire.AppendVarint(b, p.Seq)
	}
	return b, nil
}

// encodeMetric serialises a single metric.
func encodeMetric(m *Metric) ([]byte, error) {
	var b []byte
	if m.Name != "" {
		b = protowire.AppendTag(b, metricFieldName, protowire.BytesType)
		b = protowire.AppendString(b, m.Name)
	}
	if m.Alias != 0 {
		b = protowire.AppendTag(b, metricFieldAlias, protowire.VarintType)
		b = protowire.AppendVarint(b, m.Alias)
	}
	if !m.Timestamp.IsZero() {
		b = protowire.AppendTag(b, metricFieldTimestamp, protowire.VarintType)
		b = protowire.AppendVarint(b, millis(m.Timestamp))
	}
	if m.DataType != DataTypeUnknown {
		b = protowire.AppendTag(b, metricFieldDataType, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(m.DataType))
	}
	if m.IsHistorical {
		b = protowire.AppendTag(b, metricFieldIsHistorical, protowire.VarintType)
		b = protowire.AppendVarint(b, 1)
	}
	if m.IsNull {
		b = protowire.AppendTag(b, metricFieldIsNull, protowire.VarintType)
		b = protowire.AppendVarint(b, 1)
		return b, nil
	}
	if len(m.Properties) > 0 {
		b = protowire.AppendTag(b, metricFieldProperties, protowire.BytesType)
		b = protowire.AppendBytes(b, encodeProperties(m.Properties))
	}
	return appendMetricValue(b, m)
}

// encodeProperties serialises a string-typed PropertySet.
func encodeProperties(props []Property) []byte {
	var b []byte
	for _, p := range props {
		b = protowire.AppendTag(b, propertySetFieldKeys, protowire.BytesType)
		b = protowire.AppendString(b, p.Key)
	}
	for _, p := range props {
		var v []byte
		v = protowire.AppendTag(v, propertyValueFieldType, protowire.VarintType)
		v = protowire.AppendVarint(v, uint64(DataTypeString))
		v = protowire.AppendTag(v, propertyValueFieldString, protowire.BytesType)
		v = protowire.AppendString(v, p.Value)

		b = protowire.AppendTag(b, propertySetFieldValues, protowire.BytesType)
		b = protowire.AppendBytes(b, v)
	}
	return b
}

// appendMetricValue writes the value oneof field selected by the data type.
func appendMetricValue(b []byte, m *Metric) ([]byte, error) {
	switch m.DataType {
	case DataTypeInt8, DataTypeInt16, DataTypeInt32, DataTypeUInt8, DataTypeUInt16, DataTypeUInt32:
		n, err := toInt64(m.Value)
		if err != nil {
			return nil, err
		}
		b = protowire.AppendTag(b, metricFieldIntValue, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(uint32(n))) //nolint:gosec // two's complement wrap is the wire convention
	case DataTypeInt64, DataTypeUInt64:
		n, err := toInt64(m.Value)
		if err != nil {
			return nil, err
		}
		b = protowire.AppendTag(b, metricFieldLongValue, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(n)) //nolint:gosec // two's complement wrap is the wire convention
	case DataTypeFloat:
		f, err := toFloat64(m.Value)
		if err != nil {
			return nil, err
		}
		b = protowire.AppendTag(b, metricFieldFloatValue, protowire.Fixed32Type)
		b = protowire.AppendFixed32(b, math.Float32bits(float32(f)))
	case DataTypeDouble:
		f, err := toFloat64(m.Value)
		if err != nil {
			return nil, err
		}
		b = protowire.AppendTag(b, metricFieldDoubleValue, protowire.Fixed64Type)
		b = protowire.AppendFixed64(b, math.Float64bits(f))
	case DataTypeBoolean:
		v, ok := m.Value.(bool)
		if !ok {
			return nil, fmt.Errorf("boolean metric value is %T", m.Value)
		}
		var n uint64
		if v {
			n = 1
		}
		b = protowire.AppendTag(b, metricFieldBooleanValue, protowire.VarintType)
		b = protowire.AppendVarint(b, n)
	case DataTypeString, DataTypeText:
		s, ok := m.Value.(string)
		if !ok {
			return nil, fmt.Errorf("string metric value is %T", m.Value)
		}
		b = protowire.AppendTag(b, metricFieldStringValue, protowire.BytesType)
		b = protowire.AppendString(b, s)
	case DataTypeDateTime:
		t, ok := m.Value.(time.Time)
		if !ok {
			return nil, fmt.Errorf("datetime metric value is %T", m.Value)
		}
		b = protowire.AppendTag(b, metricFieldLongValue, protowire.VarintType)
		b = protowire.AppendVarint(b, millis(t))
	default:
		return nil, fmt.Errorf("cannot encode data type %s", m.DataType)
	}
	return b, nil
}

// Decode parses a Sparkplug B wire payload.
//
// Unknown fields are skipped so payloads from richer producers still parse.
func Decode(data []byte) (*Payload, error) {
	p := &Payload{}
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, fmt.Errorf("payload tag: %w", protowire.ParseError(n))
		}
		data = data[n:]

		switch {
		case num == payloadFieldTimestamp && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			p.Timestamp = fromMillis(v)
			data = data[n:]
		case num == payloadFieldSeq && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			p.Seq = v
			p.HasSeq = true
			data = data[n:]
		case num == payloadFieldMetrics && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			m, err := decodeMetric(v)
			if err != nil {
				return nil, err
			}
			p.Metrics = append(p.Metrics, m)
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return nil, fmt.Errorf("payload field %d: %w", num, protowire.ParseError(n))
			}
			data = data[n:]
		}
	}
	return p, nil
}

// decodeMetric parses a single metric message.
func decodeMetric(data []byte) (Metric, error) { //nolint:gocognit // flat field switch
	var m Metric
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return m, fmt.Errorf("metric tag: %w", protowire.ParseError(n))
		}
		data = data[n:]

		switch {
		case num == metricFieldName && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(data)
			if n < 0 {
				return m, protowire.ParseError(n)
			}
			m.Name = v
			data = data[n:]
		case num == metricFieldAlias && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return m, protowire.ParseError(n)
			}
			m.Alias = v
			data = data[n:]
		case num == metricFieldTimestamp && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return m, protowire.ParseError(n)
			}
			m.Timestamp = fromMillis(v)
			data = data[n:]
		case num == metricFieldDataType && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return m, protowire.ParseError(n)
			}
			m.DataType = DataType(v) //nolint:gosec // enum range
			data = data[n:]
		case num == metricFieldIsHistorical && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return m, protowire.ParseError(n)
			}
			m.IsHistorical = v != 0
			data = data[n:]
		case num == metricFieldIsNull && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return m, protowire.ParseError(n)
			}
			m.IsNull = v != 0
			data = data[n:]
		case num == metricFieldProperties && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return m, protowire.ParseError(n)
			}
			props, err := decodeProperties(v)
			if err != nil {
				return m, err
			}
			m.Properties = props
			data = data[n:]
		case num == metricFieldIntValue && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return m, protowire.ParseError(n)
			}
			m.Value = int64(int32(uint32(v))) //nolint:gosec // two's complement wrap is the wire convention
			data = data[n:]
		case num == metricFieldLongValue && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return m, protowire.ParseError(n)
			}
			m.Value = int64(v) //nolint:gosec // two's complement wrap is the wire convention
			data = data[n:]
		case num == metricFieldFloatValue && typ == protowire.Fixed32Type:
			v, n := protowire.ConsumeFixed32(data)
			if n < 0 {
				return m, protowire.ParseError(n)
			}
			m.Value = float64(math.Float32frombits(v))
			data = data[n:]
		case num == metricFieldDoubleValue && typ == protowire.Fixed64Type:
			v, n := protowire.ConsumeFixed64(data)
			if n < 0 {
				return m, protowire.ParseError(n)
			}
			m.Value = math.Float64frombits(v)
			data = data[n:]
		case num == metricFieldBooleanValue && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return m, protowire.ParseError(n)
			}
			m.Value = v != 0
			data = data[n:]
		case num == metricFieldStringValue && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(data)
			if n < 0 {
				return m, protowire.ParseError(n)
			}
			m.Value = v
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return m, fmt.Errorf("metric field %d: %w", num, protowire.ParseError(n))
			}
			data = data[n:]
		}
	}
	return m, nil
}

// decodeProperties parses a PropertySet, keeping only string-typed values.
func decodeProperties(data []byte) ([]Property, error) {
	var keys []string
	var values []string
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		data = data[n:]

		switch {
		case num == propertySetFieldKeys && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(data)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			keys = append(keys, v)
			data = data[n:]
		case num == propertySetFieldValues && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			values = append(values, decodePropertyString(v))
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			data = data[n:]
		}
	}

	props := make([]Property, 0, len(keys))
	for i, k := range keys {
		p := Property{Key: k}
		if i < len(values) {
			p.Value = values[i]
		}
		props = append(props, p)
	}
	return props, nil
}

// decodePropertyString extracts the string value from a PropertyValue,
// returning "" for non-string property types.
func decodePropertyString(data []byte) string {
	var s string
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return s
		}
		data = data[n:]

		if num == propertyValueFieldString && typ == protowire.BytesType {
			v, n := protowire.ConsumeString(data)
			if n < 0 {
				return s
			}
			s = v
			data = data[n:]
			continue
		}

		n = protowire.ConsumeFieldValue(num, typ, data)
		if n < 0 {
			return s
		}
		data = data[n:]
	}
	return s
}

// millis converts a time to Sparkplug's millisecond epoch representation.
func millis(t time.Time) uint64 {
	return uint64(t.UnixMilli()) //nolint:gosec // dates before 1970 not meaningful here
}

// fromMillis converts a millisecond epoch value back to a time.
func fromMillis(ms uint64) time.Time {
	return time.UnixMilli(int64(ms)) //nolint:gosec // millisecond epoch fits int64
}

// toFloat64 coerces a sampled value to float64 for numeric metrics.
func toFloat64(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("numeric metric value is %T", v)
	}
}

// toInt64 coerces a sampled value to int64 for integer metrics.
func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case uint64:
		return int64(n), nil //nolint:gosec // wraparound acceptable for wire encoding
	case float64:
		return int64(n), nil
	default:
		return 0, fmt.Errorf("integer metric value is %T", v)
	}
}
