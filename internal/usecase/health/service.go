package health

import (
	"context"
	"sync"
	"time"
)

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates a provider failure; search still answers without that component.
	Degraded Status = "degraded"
	// Unhealthy indicates the catalog is unreachable.
	Unhealthy Status = "error"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
)

// Check names.
const (
	CheckDatabase   = "database"
	CheckEmbedding  = "embedding"
	CheckExtraction = "extraction"
)

// DefaultCheckTimeout bounds each individual check.
const DefaultCheckTimeout = 3 * time.Second

// Report aggregates health check results.
type Report struct {
	Status Status
	Checks map[string]CheckResult
}

// Service coordinates health checks.
type Service struct {
	db         DBPinger
	embedding  Checker
	extraction Checker
	timeout    time.Duration
}

// New creates a Service. embedding and extraction can be nil.
func New(db DBPinger, embedding, extraction Checker) *Service {
	return &Service{db: db, embedding: embedding, extraction: extraction, timeout: DefaultCheckTimeout}
}

// Check runs all checks concurrently.
func (s *Service) Check(ctx context.Context) Report {
	checks := make(map[string]CheckResult)
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)

	run := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cctx, cancel := context.WithTimeout(ctx, s.timeout)
			defer cancel()

			res := CheckOK
			if err := fn(cctx); err != nil {
				res = CheckError
			}
			mu.Lock()
			checks[name] = res
			mu.Unlock()
		}()
	}

	run(CheckDatabase, s.db.Ping)
	if s.embedding != nil {
		run(CheckEmbedding, s.embedding.HealthCheck)
	}
	if s.extraction != nil {
		run(CheckExtraction, s.extraction.HealthCheck)
	}
	wg.Wait()

	status := Healthy
	for name, v := range checks {
		if v != CheckError {
			continue
		}
		if name == CheckDatabase {
			status = Unhealthy
			break
		}
		status = Degraded
	}

	return Report{Status: status, Checks: checks}
}
