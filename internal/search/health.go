package search

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"moviepicker/internal/domain"
	"moviepicker/internal/metrics"
)

const (
	providerFailureThreshold = 3
	providerBlockBase        = 2 * time.Minute
	providerBlockMax         = 15 * time.Minute
)

type providerHealth struct {
	consecutiveFailures int
	blockedUntil        time.Time
	sessionDisabled     bool
	lastError           string
	lastSuccessAt       time.Time
	lastFailureAt       time.Time
	lastLatency         time.Duration
	totalRequests       int64
	totalFailures       int64
}

// ProviderDiagnostics is the per-provider state exposed on the
// diagnostics endpoint.
type ProviderDiagnostics struct {
	Name                string     `json:"name"`
	Kind                string     `json:"kind"`
	SessionDisabled     bool       `json:"sessionDisabled"`
	ConsecutiveFailures int        `json:"consecutiveFailures"`
	BlockedUntil        *time.Time `json:"blockedUntil,omitempty"`
	LastError           string     `json:"lastError,omitempty"`
	LastSuccessAt       *time.Time `json:"lastSuccessAt,omitempty"`
	LastFailureAt       *time.Time `json:"lastFailureAt,omitempty"`
	LastLatencyMS       int64      `json:"lastLatencyMs"`
	TotalRequests       int64      `json:"totalRequests"`
	TotalFailures       int64      `json:"totalFailures"`
}

// skipProvider reports whether a provider should be left out of a
// fan-out: disabled for the session after an auth/quota failure, or
// temporarily blocked after repeated transient failures.
func (s *Service) skipProvider(providerName string, now time.Time) (bool, string) {
	name := strings.ToLower(strings.TrimSpace(providerName))
	if name == "" {
		return false, ""
	}

	s.healthMu.Lock()
	defer s.healthMu.Unlock()

	state := s.health[name]
	if state == nil {
		return false, ""
	}
	if state.sessionDisabled {
		return true, "disabled for session: " + state.lastError
	}
	if !state.blockedUntil.IsZero() && now.Before(state.blockedUntil) {
		return true, "temporarily unhealthy until " + state.blockedUntil.UTC().Format(time.RFC3339)
	}
	return false, ""
}

func (s *Service) recordProviderResult(providerName string, err error, latency time.Duration, now time.Time) {
	name := strings.ToLower(strings.TrimSpace(providerName))
	if name == "" {
		return
	}

	s.healthMu.Lock()
	defer s.healthMu.Unlock()

	state := s.health[name]
	if state == nil {
		state = &providerHealth{}
		s.health[name] = state
	}
	state.totalRequests++
	if latency > 0 {
		state.lastLatency = latency
		metrics.ProviderRequestDuration.WithLabelValues(name).Observe(latency.Seconds())
	}

	if err == nil {
		state.consecutiveFailures = 0
		state.blockedUntil = time.Time{}
		state.lastError = ""
		state.lastSuccessAt = now
		metrics.ProviderRequestsTotal.WithLabelValues(name, "ok").Inc()
		metrics.ProviderEnabled.WithLabelValues(name).Set(1)
		return
	}

	state.totalFailures++
	state.lastFailureAt = now
	state.lastError = err.Error()

	// Auth and quota failures will not heal within the process
	// lifetime; stop calling the provider entirely.
	if errors.Is(err, domain.ErrProviderDisabled) {
		state.sessionDisabled = true
		metrics.ProviderRequestsTotal.WithLabelValues(name, "disabled").Inc()
		metrics.ProviderEnabled.WithLabelValues(name).Set(0)
		return
	}

	state.consecutiveFailures++
	status := "error"
	if isTimeoutLikeError(err) {
		status = "timeout"
	}
	metrics.ProviderRequestsTotal.WithLabelValues(name, status).Inc()

	if state.consecutiveFailures >= providerFailureThreshold {
		state.blockedUntil = now.Add(blockDuration(state.consecutiveFailures))
		metrics.ProviderEnabled.WithLabelValues(name).Set(0)
	}
}

// blockDuration doubles per failure past the threshold, capped.
func blockDuration(consecutiveFailures int) time.Duration {
	exponent := consecutiveFailures - providerFailureThreshold
	if exponent < 0 {
		exponent = 0
	}
	d := providerBlockBase
	for i := 0; i < exponent; i++ {
		d *= 2
		if d > providerBlockMax {
			return providerBlockMax
		}
	}
	return d
}

func isTimeoutLikeError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	value := strings.ToLower(err.Error())
	return strings.Contains(value, "timeout") || strings.Contains(value, "deadline exceeded")
}

// ProviderDiagnostics reports health state for metadata and rating
// providers, sorted by name.
func (s *Service) ProviderDiagnostics() []ProviderDiagnostics {
	type named struct {
		name string
		kind string
	}
	all := make([]named, 0, len(s.providers)+len(s.ratings))
	for _, p := range s.providers {
		all = append(all, named{strings.ToLower(strings.TrimSpace(p.Name())), "metadata"})
	}
	for _, p := range s.ratings {
		all = append(all, named{strings.ToLower(strings.TrimSpace(p.Name())), "rating"})
	}

	s.healthMu.Lock()
	defer s.healthMu.Unlock()

	items := make([]ProviderDiagnostics, 0, len(all))
	for _, p := range all {
		item := ProviderDiagnostics{Name: p.name, Kind: p.kind}
		if state := s.health[p.name]; state != nil {
			item.SessionDisabled = state.sessionDisabled
			item.ConsecutiveFailures = state.consecutiveFailures
			if !state.blockedUntil.IsZero() {
				blockedUntil := state.blockedUntil
				item.BlockedUntil = &blockedUntil
			}
			item.LastError = state.lastError
			if !state.lastSuccessAt.IsZero() {
				lastSuccessAt := state.lastSuccessAt
				item.LastSuccessAt = &lastSuccessAt
			}
			if !state.lastFailureAt.IsZero() {
				lastFailureAt := state.lastFailureAt
				item.LastFailureAt = &lastFailureAt
			}
			item.LastLatencyMS = state.lastLatency.Milliseconds()
			item.TotalRequests = state.totalRequests
			item.TotalFailures = state.totalFailures
		}
		items = append(items, item)
	}

	sort.Slice(items, func(i, j int) bool {
		if items[i].Name != items[j].Name {
			return items[i].Name < items[j].Name
		}
		return items[i].Kind < items[j].Kind
	})
	return items
}
