package tag

import (
	"fmt"

	"github.com/oakmoor/sparkedge/internal/infrastructure/config"
	"github.com/oakmoor/sparkedge/internal/sparkplug"
)

// Logger defines the logging interface used by the Registry.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Sampler reads the current value of a tag.
type Sampler func() (any, error)

// firstAssignableAlias is the lowest alias handed out automatically.
// Aliases below it are reserved for node control and identity metrics.
const firstAssignableAlias = 10

// Definition is one registered metric: its wire identity, metadata, and the
// sampler that reads its current value.
type Definition struct {
	Name     string
	Alias    uint64
	DataType sparkplug.DataType
	Unit     string
	Desc     string
	Deadband float64
	Sampler  Sampler
}

// Registry maps tag names to their definitions. Built once at load time and
// read-only afterwards, so lookups need no locking.
type Registry struct {
	tags   map[string]*Definition
	order  []string
	logger Logger
}

// NewRegistry builds a registry from the configured tag table.
//
// Explicit aliases from configuration are honoured; tags without one are
// assigned the next free alias above the reserved control range, in
// configuration order, so assignment is deterministic across restarts.
// A duplicate alias is logged and the later definition dropped.
func NewRegistry(cfgs []config.TagConfig, samplers map[string]Sampler, logger Logger) (*Registry, error) {
	if logger == nil {
		logger = noopLogger{}
	}
	r := &Registry{
		tags:   make(map[string]*Definition, len(cfgs)),
		logger: logger,
	}

	used := make(map[uint64]string, len(cfgs))
	next := uint64(firstAssignableAlias)

	for _, tc := range cfgs {
		dt, err := sparkplug.ParseDataType(tc.Type)
		if err != nil {
			return nil, fmt.Errorf("tag %q: %w: %q", tc.Name, ErrUnknownType, tc.Type)
		}
		if _, exists := r.tags[tc.Name]; exists {
			return nil, fmt.Errorf("tag %q: duplicate name", tc.Name)
		}

		alias := tc.Alias
		if alias == 0 {
			for used[next] != "" {
				next++
			}
			alias = next
			next++
		}
		if holder := used[alias]; holder != "" {
			// Later definition loses; the first holder keeps the alias.
			r.logger.Warn("duplicate tag alias, dropping definition",
				"tag", tc.Name, "alias", alias, "held_by", holder)
			continue
		}
		used[alias] = tc.Name

		r.tags[tc.Name] = &Definition{
			Name:     tc.Name,
			Alias:    alias,
			DataType: dt,
			Unit:     tc.Unit,
			Desc:     tc.Desc,
			Deadband: tc.Deadband,
			Sampler:  samplers[tc.Name],
		}
		r.order = append(r.order, tc.Name)
	}

	return r, nil
}

// Get returns the definition for a tag name.
func (r *Registry) Get(name string) (*Definition, error) {
	d, ok := r.tags[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrTagNotFound, name)
	}
	return d, nil
}

// All returns every definition in configuration order.
func (r *Registry) All() []*Definition {
	defs := make([]*Definition, 0, len(r.order))
	for _, name := range r.order {
		defs = append(defs, r.tags[name])
	}
	return defs
}

// Count returns the number of registered tags.
func (r *Registry) Count() int {
	return len(r.tags)
}

// Sample reads the current value of a tag through its bound sampler.
func (r *Registry) Sample(name string) (any, error) {
	d, err := r.Get(name)
	if err != nil {
		return nil, err
	}
	if d.Sampler == nil {
		return nil, fmt.Errorf("%w: %q", ErrNoSampler, name)
	}
	return d.Sampler()
}
