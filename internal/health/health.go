// Package health implements the component health checkers §4.J's
// get_system_health and check_component_health tools read from: each
// component in the pipeline already exposes a Ping(ctx) capability, so
// this package is a thin registry over those checks rather than a new
// probing mechanism.
package health

import (
	"context"
	"time"
)

// Status is one component's health at the moment it was checked.
type Status struct {
	Component string
	Healthy   bool
	Message   string
	LatencyMs int64
}

// Checker is a named health probe. Components that already expose
// Ping(ctx) error satisfy this by a one-line wrapper.
type Checker struct {
	Name  string
	Check func(ctx context.Context) error
}

// Registry runs a fixed set of component checks on demand. It holds no
// state of its own beyond the checker list, matching §9's guidance that
// tools depend only on read-only views, never on mutable orchestrator
// state.
type Registry struct {
	checkers []Checker
}

// NewRegistry builds a health registry over the given checkers.
func NewRegistry(checkers ...Checker) *Registry {
	return &Registry{checkers: checkers}
}

// CheckAll runs every registered checker and returns one Status per
// component, in registration order.
func (r *Registry) CheckAll(ctx context.Context) []Status {
	out := make([]Status, len(r.checkers))
	for i, c := range r.checkers {
		out[i] = r.run(ctx, c)
	}
	return out
}

// CheckComponent runs a single named checker. The second return value is
// false if no checker with that name is registered.
func (r *Registry) CheckComponent(ctx context.Context, name string) (Status, bool) {
	for _, c := range r.checkers {
		if c.Name == name {
			return r.run(ctx, c), true
		}
	}
	return Status{}, false
}

func (r *Registry) run(ctx context.Context, c Checker) Status {
	start := time.Now()
	err := c.Check(ctx)
	latency := time.Since(start).Milliseconds()
	if err != nil {
		return Status{Component: c.Name, Healthy: false, Message: err.Error(), LatencyMs: latency}
	}
	return Status{Component: c.Name, Healthy: true, Message: "ok", LatencyMs: latency}
}

// Overall reports true only if every component in statuses is healthy.
func Overall(statuses []Status) bool {
	for _, s := range statuses {
		if !s.Healthy {
			return false
		}
	}
	return true
}
