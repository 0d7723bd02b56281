package tag

import (
	"testing"

	"github.com/oakmoor/sparkedge/internal/sparkplug"
)

func numericDef(deadband float64) *Definition {
	return &Definition{Name: "Temp", DataType: sparkplug.DataTypeDouble, Deadband: deadband}
}

func boolDef() *Definition {
	return &Definition{Name: "Flame", DataType: sparkplug.DataTypeBoolean, Deadband: 1}
}

func TestFilter_NumericDeadband(t *testing.T) {
	f := NewFilter()
	def := numericDef(2.0)

	// First-ever sample always publishes and sets the baseline.
	if !f.ShouldPublish(def, 20.0) {
		t.Fatal("first sample should publish")
	}
	// Small move: suppressed, baseline stays at 20.0.
	if f.ShouldPublish(def, 21.0) {
		t.Fatal("|21.0-20.0| < 2.0 should suppress")
	}
	// Accumulated move measured against the original baseline, not 21.0.
	if !f.ShouldPublish(def, 22.5) {
		t.Fatal("|22.5-20.0| >= 2.0 should publish")
	}
	// Baseline moved to 22.5 on publish.
	if f.ShouldPublish(def, 23.0) {
		t.Fatal("|23.0-22.5| < 2.0 should suppress")
	}
}

func TestFilter_NoDeadbandAlwaysPublishes(t *testing.T) {
	f := NewFilter()
	def := numericDef(0)

	for _, v := range []float64{20.0, 20.0, 20.0001} {
		if !f.ShouldPublish(def, v) {
			t.Errorf("tag without deadband should always publish, suppressed %v", v)
		}
	}
	if f.TrackedTags() != 0 {
		t.Error("unfiltered tags should not be tracked")
	}
}

func TestFilter_Boolean(t *testing.T) {
	f := NewFilter()
	def := boolDef()

	if !f.ShouldPublish(def, true) {
		t.Fatal("first sample should publish")
	}
	if f.ShouldPublish(def, true) {
		t.Fatal("unchanged boolean should suppress")
	}
	if !f.ShouldPublish(def, false) {
		t.Fatal("any boolean change should publish, deadband value ignored")
	}
}

func TestFilter_StringBypassesFilter(t *testing.T) {
	f := NewFilter()
	def := &Definition{Name: "Status", DataType: sparkplug.DataTypeString, Deadband: 5}

	if !f.ShouldPublish(def, "ok") || !f.ShouldPublish(def, "ok") {
		t.Error("string tags bypass deadband filtering")
	}
}

func TestFilter_Reset(t *testing.T) {
	f := NewFilter()
	def := numericDef(2.0)

	f.ShouldPublish(def, 20.0)
	if f.ShouldPublish(def, 20.5) {
		t.Fatal("should suppress before reset")
	}

	f.Reset()

	if !f.ShouldPublish(def, 20.5) {
		t.Error("first sample after reset should publish")
	}
}

func TestFilter_UpdateLastValue(t *testing.T) {
	f := NewFilter()
	def := numericDef(2.0)

	// Birth path records the transmitted value without a comparison.
	f.UpdateLastValue(def, 20.0)

	if f.ShouldPublish(def, 21.0) {
		t.Error("baseline from UpdateLastValue should suppress small move")
	}
	if !f.ShouldPublish(def, 25.0) {
		t.Error("large move from forced baseline should publish")
	}
}

func TestFilter_IndependentTags(t *testing.T) {
	f := NewFilter()
	a := numericDef(2.0)
	b := &Definition{Name: "Pressure", DataType: sparkplug.DataTypeDouble, Deadband: 2.0}

	f.ShouldPublish(a, 20.0)
	if !f.ShouldPublish(b, 20.5) {
		t.Error("tags keep independent baselines")
	}
}
