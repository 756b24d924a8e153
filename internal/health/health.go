// Package health provides a registry of named subsystem health checkers.
package health

import (
	"context"
	"database/sql"
	"net/http"
	"sync"
)

// Status represents the health of a single subsystem.
type Status struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
	Detail  string `json:"detail,omitempty"`
}

// Checker is a function that checks the health of a subsystem.
type Checker func(ctx context.Context) Status

// Registry holds named health checkers and runs them on demand.
type Registry struct {
	mu       sync.RWMutex
	checkers []namedChecker
}

type namedChecker struct {
	name  string
	check Checker
}

// NewRegistry creates a new health check registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a named health checker.
func (r *Registry) Register(name string, check Checker) {
	r.mu.Lock()
	r.checkers = append(r.checkers, namedChecker{name: name, check: check})
	r.mu.Unlock()
}

// CheckAll runs all registered checkers and returns the aggregate health
// status plus individual subsystem results.
func (r *Registry) CheckAll(ctx context.Context) (healthy bool, statuses []Status) {
	r.mu.RLock()
	checkers := make([]namedChecker, len(r.checkers))
	copy(checkers, r.checkers)
	r.mu.RUnlock()

	healthy = true
	statuses = make([]Status, len(checkers))

	for i, nc := range checkers {
		statuses[i] = nc.check(ctx)
		if !statuses[i].Healthy {
			healthy = false
		}
	}

	return healthy, statuses
}

// Database returns a checker that pings the given database handle.
func Database(db *sql.DB) Checker {
	return func(ctx context.Context) Status {
		s := Status{Name: "database", Healthy: true}
		if err := db.PingContext(ctx); err != nil {
			s.Healthy = false
			s.Detail = err.Error()
		}
		return s
	}
}

// Scorer returns a checker that probes a remote scoring service with a HEAD
// request. Any HTTP response counts as reachable; what matters is that the
// service answers at all.
func Scorer(url string, client *http.Client) Checker {
	return func(ctx context.Context) Status {
		s := Status{Name: "scorer", Healthy: true}
		req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
		if err != nil {
			s.Healthy = false
			s.Detail = err.Error()
			return s
		}
		resp, err := client.Do(req)
		if err != nil {
			s.Healthy = false
			s.Detail = err.Error()
			return s
		}
		resp.Body.Close()
		return s
	}
}
