// Package health aggregates dependency probes behind the liveness and
// readiness endpoints.
package health

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// CheckStatus represents the result of a health check.
type CheckStatus int

const (
	StatusHealthy CheckStatus = iota
	StatusDegraded
	StatusUnhealthy
	StatusUnknown
)

func (s CheckStatus) String() string {
	switch s {
	case StatusHealthy:
		return "healthy"
	case StatusDegraded:
		return "degraded"
	case StatusUnhealthy:
		return "unhealthy"
	default:
		return "unknown"
	}
}

// CheckResult contains the result of a single dependency probe.
type CheckResult struct {
	Status    CheckStatus   `json:"status"`
	Message   string        `json:"message,omitempty"`
	Error     string        `json:"error,omitempty"`
	Duration  time.Duration `json:"duration"`
	Timestamp time.Time     `json:"timestamp"`
	Component string        `json:"component"`
	Critical  bool          `json:"critical"`
}

// Checker probes one dependency.
type Checker interface {
	Name() string
	Check(ctx context.Context) CheckResult
	// IsCritical marks checks whose failure makes the service not ready.
	IsCritical() bool
	Timeout() time.Duration
}

// OverallHealth is the rolled-up service status.
type OverallHealth struct {
	Status  CheckStatus `json:"status"`
	Message string      `json:"message,omitempty"`
	Ready   bool        `json:"ready"`
	Live    bool        `json:"live"`
}

// DetailedHealth pairs the rollup with per-component results.
type DetailedHealth struct {
	Overall    OverallHealth          `json:"overall"`
	Components map[string]CheckResult `json:"components"`
	Timestamp  time.Time              `json:"timestamp"`
}

// Manager runs registered checkers on demand.
type Manager struct {
	mu       sync.RWMutex
	checkers map[string]Checker
	logger   *zap.Logger
}

// NewManager creates a health manager.
func NewManager(logger *zap.Logger) *Manager {
	return &Manager{
		checkers: make(map[string]Checker),
		logger:   logger,
	}
}

// RegisterChecker registers a dependency probe under its name.
func (m *Manager) RegisterChecker(c Checker) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	name := c.Name()
	if name == "" {
		return fmt.Errorf("checker name cannot be empty")
	}
	if _, exists := m.checkers[name]; exists {
		return fmt.Errorf("checker %s already registered", name)
	}
	m.checkers[name] = c

	m.logger.Info("Health checker registered",
		zap.String("checker", name),
		zap.Bool("critical", c.IsCritical()))
	return nil
}

// GetDetailedHealth runs all checkers and rolls the results up.
func (m *Manager) GetDetailedHealth(ctx context.Context) DetailedHealth {
	m.mu.RLock()
	checkers := make([]Checker, 0, len(m.checkers))
	for _, c := range m.checkers {
		checkers = append(checkers, c)
	}
	m.mu.RUnlock()

	components := make(map[string]CheckResult, len(checkers))
	for _, c := range checkers {
		components[c.Name()] = m.runCheck(ctx, c)
	}

	return DetailedHealth{
		Overall:    rollup(components),
		Components: components,
		Timestamp:  time.Now().UTC(),
	}
}

// GetOverallHealth runs all checkers and returns only the rollup.
func (m *Manager) GetOverallHealth(ctx context.Context) OverallHealth {
	return m.GetDetailedHealth(ctx).Overall
}

// IsReady reports whether all critical dependencies are reachable.
func (m *Manager) IsReady(ctx context.Context) bool {
	return m.GetOverallHealth(ctx).Ready
}

// IsLive reports process liveness. The process serving the request is
// alive by definition; this exists for probe symmetry.
func (m *Manager) IsLive(ctx context.Context) bool {
	return true
}

func (m *Manager) runCheck(ctx context.Context, c Checker) CheckResult {
	checkCtx, cancel := context.WithTimeout(ctx, c.Timeout())
	defer cancel()

	start := time.Now()
	result := c.Check(checkCtx)
	result.Component = c.Name()
	result.Critical = c.IsCritical()
	result.Duration = time.Since(start)
	result.Timestamp = start
	return result
}

func rollup(components map[string]CheckResult) OverallHealth {
	if len(components) == 0 {
		return OverallHealth{
			Status:  StatusUnknown,
			Message: "No health checks registered",
			Ready:   false,
			Live:    true,
		}
	}

	criticalFailures := 0
	degraded := 0
	for _, r := range components {
		switch r.Status {
		case StatusUnhealthy:
			if r.Critical {
				criticalFailures++
			} else {
				degraded++
			}
		case StatusDegraded:
			degraded++
		}
	}

	switch {
	case criticalFailures > 0:
		return OverallHealth{
			Status:  StatusUnhealthy,
			Message: fmt.Sprintf("%d critical component(s) failing", criticalFailures),
			Ready:   false,
			Live:    true,
		}
	case degraded > 0:
		return OverallHealth{
			Status:  StatusDegraded,
			Message: fmt.Sprintf("%d component(s) degraded", degraded),
			Ready:   true,
			Live:    true,
		}
	default:
		return OverallHealth{
			Status:  StatusHealthy,
			Message: fmt.Sprintf("All %d components healthy", len(components)),
			Ready:   true,
			Live:    true,
		}
	}
}
