package crawler

import (
	"context"

	"github.com/sirupsen/logrus"
)

// Prober reports whether a single peer is alive
type Prober interface {
	Probe(ctx context.Context, url string) bool
}

// HealthChecker returns nil when the peer's liveness endpoint answers OK
type HealthChecker interface {
	Health(ctx context.Context, url string) error
}

// HealthProber turns a HealthChecker failure into a logged false verdict
type HealthProber struct {
	checker HealthChecker
}

// NewHealthProber creates a prober backed by checker
func NewHealthProber(checker HealthChecker) *HealthProber {
	return &HealthProber{checker: checker}
}

// Probe performs one health check. No retries; failures are logged.
func (p *HealthProber) Probe(ctx context.Context, url string) bool {
	if err := p.checker.Health(ctx, url); err != nil {
		logrus.Warnf("health: %s is unhealthy: %v", url, err)
		return false
	}
	logrus.Debugf("health: %s is OK", url)
	return true
}
