package sparkplug

import (
	"testing"
	"time"
)

func TestPayload_EncodeDecodeRoundTrip(t *testing.T) {
	ts := time.UnixMilli(1772000000000)

	p := &Payload{Timestamp: ts}
	p.WithSeq(42)
	p.AddMetric(Metric{
		Name:     "Boiler/Temperature",
		Alias:    4,
		DataType: DataTypeDouble,
		Value:    21.5,
		Properties: []Property{
			{Key: PropertyEngUnit, Value: "degC"},
			{Key: PropertyDesc, Value: "flow temperature"},
		},
	})
	p.AddMetric(Metric{
		Name:     "Boiler/Flame",
		Alias:    5,
		DataType: DataTypeBoolean,
		Value:    true,
	})
	p.AddMetric(Metric{
		Name:     "Node Control/Rebirth",
		DataType: DataTypeBoolean,
		Value:    false,
	})

	raw, err := p.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	got, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	if !got.Timestamp.Equal(ts) {
		t.Errorf("timestamp = %v, want %v", got.Timestamp, ts)
	}
	if !got.HasSeq || got.Seq != 42 {
		t.Errorf("seq = %d (has=%v), want 42", got.Seq, got.HasSeq)
	}
	if len(got.Metrics) != 3 {
		t.Fatalf("got %d metrics, want 3", len(got.Metrics))
	}

	temp := got.Metrics[0]
	if temp.Name != "Boiler/Temperature" || temp.Alias != 4 {
		t.Errorf("unexpected identity: %+v", temp)
	}
	if v, ok := temp.Value.(float64); !ok || v != 21.5 {
		t.Errorf("temperature value = %v, want 21.5", temp.Value)
	}
	if len(temp.Properties) != 2 || temp.Properties[0].Value != "degC" {
		t.Errorf("unexpected properties: %+v", temp.Properties)
	}

	if v, ok := got.Metrics[1].Value.(bool); !ok || !v {
		t.Errorf("flame value = %v, want true", got.Metrics[1].Value)
	}
	if v, ok := got.Metrics[2].Value.(bool); !ok || v {
		t.Errorf("rebirth value = %v, want false", got.Metrics[2].Value)
	}
}

func TestPayload_ValueTypes(t *testing.T) {
	tests := []struct {
		name     string
		dataType DataType
		in       any
		want     any
	}{
		{"int32", DataTypeInt32, int64(-7), int64(-7)},
		{"int64", DataTypeInt64, int64(1 << 40), int64(1 << 40)},
		{"float", DataTypeFloat, 2.5, 2.5},
		{"double", DataTypeDouble, 3.14159, 3.14159},
		{"string", DataTypeString, "on", "on"},
		{"datetime", DataTypeDateTime, time.UnixMilli(1772000000000), time.UnixMilli(1772000000000).UnixMilli()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPayload()
			p.AddMetric(Metric{Name: "m", DataType: tt.dataType, Value: tt.in})

			raw, err := p.Encode()
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			got, err := Decode(raw)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if len(got.Metrics) != 1 {
				t.Fatalf("got %d metrics, want 1", len(got.Metrics))
			}

			v := got.Metrics[0].Value
			if tt.dataType == DataTypeDateTime {
				if n, ok := v.(int64); !ok || n != tt.want.(int64) {
					t.Errorf("value = %v, want %v", v, tt.want)
				}
				return
			}
			if v != tt.want {
				t.Errorf("value = %v (%T), want %v (%T)", v, v, tt.want, tt.want)
			}
		})
	}
}

func TestPayload_NullMetric(t *testing.T) {
	p := NewPayload()
	p.AddMetric(Metric{Name: "Boiler/Temperature", DataType: DataTypeDouble, IsNull: true})

	raw, err := p.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !got.Metrics[0].IsNull {
		t.Error("IsNull not preserved")
	}
	if got.Metrics[0].Value != nil {
		t.Errorf("null metric carried value %v", got.Metrics[0].Value)
	}
}

func TestPayload_EncodeRejectsWrongValueType(t *testing.T) {
	p := NewPayload()
	p.AddMetric(Metric{Name: "m", DataType: DataTypeBoolean, Value: "yes"})
	if _, err := p.Encode(); err == nil {
		t.Error("expected error for string value on boolean metric")
	}
}

func TestDecode_RebirthCommand(t *testing.T) {
	// Encode a command the way a SCADA host would, then decode it the way
	// the inbound handler does.
	cmd := NewPayload()
	cmd.AddMetric(Metric{Name: "Node Control/Rebirth", DataType: DataTypeBoolean, Value: true})

	raw, err := cmd.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	if got.Metrics[0].Name != "Node Control/Rebirth" {
		t.Errorf("metric name = %q", got.Metrics[0].Name)
	}
	if v, ok := got.Metrics[0].Value.(bool); !ok || !v {
		t.Errorf("rebirth flag = %v, want true", got.Metrics[0].Value)
	}
}

func TestDecode_InvalidData(t *testing.T) {
	if _, err := Decode([]byte{0xff, 0xff, 0xff}); err == nil {
		t.Error("expected error for truncated varint")
	}
}
