// Package health tracks the liveness of the engine's long-running
// collaborators (store search path, feed cache, discovery peer listener) so
// a wrapping daemon can decide whether to keep serving. It carries no HTTP
// surface of its own: the engine's command-line daemon (cmd/0install-engine)
// is the only thing that dereferences CheckStatus, and it does so to decide
// process exit status, not to answer a web request.
package health

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// DefaultRegistry is the registry used when callers register checks without
// constructing their own.
var DefaultRegistry *Registry

func init() {
	DefaultRegistry = NewRegistry()
}

// A Registry is a collection of checks. Most applications will use the
// global registry defined in DefaultRegistry. Tests may create separate
// registries to isolate themselves from other tests.
type Registry struct {
	mu               sync.RWMutex
	registeredChecks map[string]Checker
}

// NewRegistry creates a new registry.
func NewRegistry() *Registry {
	return &Registry{registeredChecks: make(map[string]Checker)}
}

// Checker is the interface for a health checker.
type Checker interface {
	// Check returns nil if the collaborator is okay.
	Check(context.Context) error
}

// CheckFunc is a convenience type to create functions that implement the
// Checker interface.
type CheckFunc func(context.Context) error

// Check implements the Checker interface to allow for any func() error
// method to be passed as a Checker.
func (cf CheckFunc) Check(ctx context.Context) error {
	return cf(ctx)
}

// Updater implements a health check that is explicitly set.
type Updater interface {
	Checker

	// Update updates the current status of the health check.
	Update(status error)
}

// updater implements Checker and Updater, providing an asynchronous Update
// method. This allows a Checker to return immediately without blocking on a
// potentially expensive check.
type updater struct {
	mu     sync.Mutex
	status error
}

func (u *updater) Check(context.Context) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.status
}

func (u *updater) Update(status error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.status = status
}

// NewStatusUpdater returns a new updater.
func NewStatusUpdater() Updater {
	return &updater{}
}

// thresholdUpdater tolerates up to threshold consecutive failures before
// reporting unhealthy; used for the discovery peer listener, which may see
// transient UDP read errors under load without the listener actually being
// dead.
type thresholdUpdater struct {
	mu        sync.Mutex
	status    error
	threshold int
	count     int
}

func (tu *thresholdUpdater) Check(context.Context) error {
	tu.mu.Lock()
	defer tu.mu.Unlock()

	if tu.count >= tu.threshold || errors.As(tu.status, new(pollingTerminatedErr)) {
		return tu.status
	}
	return nil
}

func (tu *thresholdUpdater) Update(status error) {
	tu.mu.Lock()
	defer tu.mu.Unlock()

	if status == nil {
		tu.count = 0
	} else if tu.count < tu.threshold {
		tu.count++
	}
	tu.status = status
}

// NewThresholdStatusUpdater returns a new thresholdUpdater.
func NewThresholdStatusUpdater(t int) Updater {
	if t > 0 {
		return &thresholdUpdater{threshold: t}
	}
	return NewStatusUpdater()
}

type pollingTerminatedErr struct{ Err error }

func (e pollingTerminatedErr) Error() string {
	return fmt.Sprintf("health: check is not polled: %v", e.Err)
}

func (e pollingTerminatedErr) Unwrap() error { return e.Err }

// Poll periodically polls the checker c at interval and updates the updater
// u with the result. When ctx is done, Poll updates u with ctx.Err() and
// returns.
func Poll(ctx context.Context, u Updater, c Checker, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			u.Update(pollingTerminatedErr{Err: ctx.Err()})
			return
		case <-t.C:
			u.Update(c.Check(ctx))
		}
	}
}

// CheckStatus returns a map with all the current health check errors.
func (registry *Registry) CheckStatus(ctx context.Context) map[string]string {
	registry.mu.RLock()
	defer registry.mu.RUnlock()
	statusKeys := make(map[string]string)
	for k, v := range registry.registeredChecks {
		if err := v.Check(ctx); err != nil {
			statusKeys[k] = err.Error()
		}
	}
	return statusKeys
}

// CheckStatus returns a map with all the current health check errors from
// the default registry.
func CheckStatus(ctx context.Context) map[string]string {
	return DefaultRegistry.CheckStatus(ctx)
}

// Register associates the checker with the provided name.
func (registry *Registry) Register(name string, check Checker) {
	if registry == nil {
		registry = DefaultRegistry
	}
	registry.mu.Lock()
	defer registry.mu.Unlock()
	if _, ok := registry.registeredChecks[name]; ok {
		panic("health: check already exists: " + name)
	}
	registry.registeredChecks[name] = check
}

// Register associates the checker with the provided name in the default
// registry.
func Register(name string, check Checker) {
	DefaultRegistry.Register(name, check)
}

// RegisterFunc registers a checker directly from an arbitrary
// func(context.Context) error.
func (registry *Registry) RegisterFunc(name string, check CheckFunc) {
	registry.Register(name, check)
}

// RegisterFunc registers a checker in the default registry directly from an
// arbitrary func(context.Context) error.
func RegisterFunc(name string, check CheckFunc) {
	DefaultRegistry.RegisterFunc(name, check)
}
