package tag

import (
	"math"
	"sync"
)

// tagState is the last-published-value record for one tag.
// Created lazily on first sample; never deleted, only cleared by Reset.
type tagState struct {
	lastNumeric float64
	lastBool    bool
}

// Filter decides whether a freshly sampled value has changed enough from the
// last published value to warrant transmission.
//
// Suppressed numeric samples do not move the baseline: small increments
// accumulate against the original published value until they cross the
// deadband together.
type Filter struct {
	mu    sync.Mutex
	state map[string]*tagState
}

// NewFilter returns an empty deadband filter.
func NewFilter() *Filter {
	return &Filter{state: make(map[string]*tagState)}
}

// ShouldPublish reports whether value should be transmitted for the given
// definition, updating the last-published cache when it should.
//
// Decision order:
//  1. No deadband configured: always publish, no state kept.
//  2. First-ever sample: publish and record.
//  3. Boolean: publish on any change.
//  4. Numeric: publish iff |value - last| >= deadband.
//
// Non-numeric, non-boolean types (strings, timestamps) bypass deadband
// filtering entirely.
func (f *Filter) ShouldPublish(def *Definition, value any) bool {
	if def.Deadband <= 0 {
		return true
	}

	switch {
	case def.DataType.IsBoolean():
		v, ok := value.(bool)
		if !ok {
			return true
		}
		return f.checkBool(def.Name, v)
	case def.DataType.IsNumeric():
		v, ok := asFloat(value)
		if !ok {
			return true
		}
		return f.checkNumeric(def.Name, v, def.Deadband)
	default:
		return true
	}
}

func (f *Filter) checkBool(name string, v bool) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	s, ok := f.state[name]
	if !ok {
		f.state[name] = &tagState{lastBool: v}
		return true
	}
	if v == s.lastBool {
		return false
	}
	s.lastBool = v
	return true
}

func (f *Filter) checkNumeric(name string, v, deadband float64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	s, ok := f.state[name]
	if !ok {
		f.state[name] = &tagState{lastNumeric: v}
		return true
	}
	if math.Abs(v-s.lastNumeric) < deadband {
		return false
	}
	s.lastNumeric = v
	return true
}

// UpdateLastValue forces the cached baseline for a tag, bypassing the
// deadband comparison. Used when a value is transmitted outside the normal
// filter path, such as in a birth message.
func (f *Filter) UpdateLastValue(def *Definition, value any) {
	f.mu.Lock()
	defer f.mu.Unlock()

	s, ok := f.state[def.Name]
	if !ok {
		s = &tagState{}
		f.state[def.Name] = s
	}
	switch {
	case def.DataType.IsBoolean():
		if v, ok := value.(bool); ok {
			s.lastBool = v
		}
	case def.DataType.IsNumeric():
		if v, ok := asFloat(value); ok {
			s.lastNumeric = v
		}
	}
}

// Reset clears all cached last-published values. The next sample of every
// tag publishes unconditionally.
func (f *Filter) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = make(map[string]*tagState)
}

// TrackedTags returns how many tags currently hold a cached baseline.
func (f *Filter) TrackedTags() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.state)
}

// asFloat widens the numeric types samplers produce to float64.
func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}
