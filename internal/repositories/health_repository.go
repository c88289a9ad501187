package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	domain "github.com/marketcart/api/internal/domain"
)

const defaultCheckTimeout = 1500 * time.Millisecond

// DependencyCheck describes a dependency check executed during readiness checks.
type DependencyCheck struct {
	Name     string
	Timeout  time.Duration
	Critical bool
	Check    func(context.Context) error
}

// HealthOption customises the dependency health repository.
type HealthOption func(*dependencyHealthRepository)

// WithCheckTimeout overrides the timeout applied when a check omits its own.
func WithCheckTimeout(timeout time.Duration) HealthOption {
	return func(repo *dependencyHealthRepository) {
		if timeout > 0 {
			repo.timeout = timeout
		}
	}
}

// WithCheckClock injects a custom clock primarily for tests.
func WithCheckClock(clock func() time.Time) HealthOption {
	return func(repo *dependencyHealthRepository) {
		if clock != nil {
			repo.now = clock
		}
	}
}

// WithEnvironment labels reports with the deployment environment.
func WithEnvironment(env string) HealthOption {
	return func(repo *dependencyHealthRepository) {
		repo.environment = strings.TrimSpace(env)
	}
}

type dependencyHealthRepository struct {
	deps      []DependencyCheck
	timeout     time.Duration
	environment string
	now         func() time.Time
}

var _ HealthRepository = (*dependencyHealthRepository)(nil)

// NewDependencyHealthRepository constructs a HealthRepository that evaluates dependency checks concurrently.
func NewDependencyHealthRepository(deps []DependencyCheck, opts ...HealthOption) (HealthRepository, error) {
	if len(deps) == 0 {
		return nil, errors.New("health repository: at least one check is required")
	}
	for _, dep := range deps {
		if strings.TrimSpace(dep.Name) == "" {
			return nil, errors.New("health repository: check missing name")
		}
		if dep.Check == nil {
			return nil, fmt.Errorf("health repository: check %s missing function", dep.Name)
		}
	}

	repo := &dependencyHealthRepository{
		deps:  append([]DependencyCheck(nil), deps...),
		timeout: defaultCheckTimeout,
		now:     time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(repo)
		}
	}
	return repo, nil
}

func (r *dependencyHealthRepository) Collect(ctx context.Context) (domain.SystemHealthReport, error) {
	if ctx == nil {
		return domain.SystemHealthReport{}, errors.New("health repository: context is required")
	}

	var (
		mu      sync.Mutex
		results = make(map[string]domain.SystemHealthCheck, len(r.deps))
		status  = domain.HealthStatusOK
	)

	// Dependency failures are recorded, never returned, so one slow dependency does not cancel the rest.
	var g errgroup.Group
	for _, dep := range r.deps {
		g.Go(func() error {
			check := r.run(ctx, dep)
			mu.Lock()
			defer mu.Unlock()
			results[dep.Name] = check
			switch {
			case check.Status == domain.HealthStatusOK:
			case dep.Critical:
				status = domain.HealthStatusError
			case status == domain.HealthStatusOK:
				status = domain.HealthStatusDegraded
			}
			return nil
		})
	}
	_ = g.Wait()

	return domain.SystemHealthReport{
		Status:      status,
		Checks:      results,
		Environment: r.environment,
		GeneratedAt: r.now(),
	}, nil
}

func (r *dependencyHealthRepository) run(ctx context.Context, dep DependencyCheck) domain.SystemHealthCheck {
	timeout := dep.Timeout
	if timeout <= 0 {
		timeout = r.timeout
	}
	checkCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := r.now()
	err := dep.Check(checkCtx)
	end := r.now()

	check := domain.SystemHealthCheck{
		Status:    domain.HealthStatusOK,
		Detail:    "ok",
		Latency:   end.Sub(start),
		CheckedAt: end,
	}
	switch {
	case err == nil && checkCtx.Err() == nil:
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(checkCtx.Err(), context.DeadlineExceeded):
		check.Status = domain.HealthStatusError
		check.Detail = "timeout"
	case err == nil:
		check.Status = domain.HealthStatusError
		check.Detail = checkCtx.Err().Error()
	default:
		check.Status = domain.HealthStatusError
		check.Detail = err.Error()
	}
	return check
}
