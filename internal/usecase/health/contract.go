package health

import "context"

// DBPinger checks catalog store availability.
type DBPinger interface {
	Ping(ctx context.Context) error
}

// Checker checks an external provider.
type Checker interface {
	HealthCheck(ctx context.Context) error
}
