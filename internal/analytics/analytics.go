// Package analytics implements the §4.L usage read path: aggregating
// UsageMetric rows by {Provider, Model, Day}, cached with a short TTL so
// repeated reads (dashboard polling, agent tool calls) do not re-scan the
// metrics table on every call.
package analytics

import (
	"context"
	"sync"
	"time"

	"ragcore/internal/metadatastore"
)

// ChangeNotifier is called whenever a fresh aggregate has been computed, so
// the realtime hub (§4.M) can fan out a change event. Nil is a valid,
// no-op notifier.
type ChangeNotifier func()

// Reader serves cached usage aggregates over a metadatastore.Store.
type Reader struct {
	store *metadatastore.Store
	ttl   time.Duration
	since time.Duration
	notify ChangeNotifier

	mu        sync.Mutex
	cached    []metadatastore.Aggregate
	cachedAt  time.Time
}

// NewReader builds a Reader caching aggregates for ttl (defaulting to 30s)
// over usage recorded within the trailing since window (defaulting to 30
// days).
func NewReader(store *metadatastore.Store, ttl, since time.Duration, notify ChangeNotifier) *Reader {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if since <= 0 {
		since = 30 * 24 * time.Hour
	}
	return &Reader{store: store, ttl: ttl, since: since, notify: notify}
}

// Aggregates returns the cached {Provider, Model, Day} buckets, recomputing
// them if the cache has expired.
func (r *Reader) Aggregates(ctx context.Context) ([]metadatastore.Aggregate, error) {
	r.mu.Lock()
	if r.cached != nil && time.Since(r.cachedAt) < r.ttl {
		out := r.cached
		r.mu.Unlock()
		return out, nil
	}
	r.mu.Unlock()

	fresh, err := r.store.AggregateUsage(ctx, time.Now().Add(-r.since))
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.cached = fresh
	r.cachedAt = time.Now()
	r.mu.Unlock()

	if r.notify != nil {
		r.notify()
	}
	return fresh, nil
}

// Invalidate drops the cached aggregates so the next read recomputes them.
// RecordUsage callers invoke this after writing a metric so a dashboard
// poll shortly after a turn sees fresh numbers without waiting out the TTL.
func (r *Reader) Invalidate() {
	r.mu.Lock()
	r.cached = nil
	r.mu.Unlock()
}

// ModelStats summarizes one model's usage across every day in the cached
// window, the shape §4.J's get_popular_models/compare_models/
// get_model_performance tools read from.
type ModelStats struct {
	Provider              string
	Model                 string
	TotalRequests         int
	TotalPromptTokens     int
	TotalCompletionTokens int
	AvgResponseTimeMs     float64
	SuccessRate           float64
}

// ModelSummaries collapses the day-bucketed aggregates into one row per
// {Provider, Model}, ordered by descending TotalRequests (most popular
// first).
func (r *Reader) ModelSummaries(ctx context.Context) ([]ModelStats, error) {
	aggregates, err := r.Aggregates(ctx)
	if err != nil {
		return nil, err
	}

	byKey := map[string]*ModelStats{}
	order := []string{}
	for _, a := range aggregates {
		key := a.Provider + "/" + a.Model
		s, ok := byKey[key]
		if !ok {
			s = &ModelStats{Provider: a.Provider, Model: a.Model}
			byKey[key] = s
			order = append(order, key)
		}
		weightedTime := s.AvgResponseTimeMs*float64(s.TotalRequests) + a.AvgResponseTimeMs*float64(a.TotalRequests)
		weightedSuccess := s.SuccessRate*float64(s.TotalRequests) + a.SuccessRate*float64(a.TotalRequests)
		s.TotalRequests += a.TotalRequests
		s.TotalPromptTokens += a.TotalPromptTokens
		s.TotalCompletionTokens += a.TotalCompletionTokens
		if s.TotalRequests > 0 {
			s.AvgResponseTimeMs = weightedTime / float64(s.TotalRequests)
			s.SuccessRate = weightedSuccess / float64(s.TotalRequests)
		}
	}

	out := make([]ModelStats, 0, len(order))
	for _, key := range order {
		out = append(out, *byKey[key])
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].TotalRequests > out[j-1].TotalRequests; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out, nil
}
