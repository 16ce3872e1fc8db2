package bootstrap

import (
	"context"
	"fmt"

	"github.com/chameleon-ai/chameleon/pkg/health"
	"github.com/chameleon-ai/chameleon/pkg/resilience"
)

// RegisterChecks adds readiness checks for the runtime's own dependencies.
func (r *Runtime) RegisterChecks(c *health.Checker) {
	c.Register("corpus", func(context.Context) health.ComponentHealth {
		if r.Store.Len() == 0 {
			return health.ComponentHealth{Status: health.StatusDown, Message: "document store is empty"}
		}
		return health.ComponentHealth{
			Status:  health.StatusUp,
			Message: fmt.Sprintf("%d documents, %d topics", r.Store.Len(), r.Registry.Len()),
		}
	})
	c.Register("embedder", func(context.Context) health.ComponentHealth {
		if r.Breaker != nil && r.Breaker.GetState() == resilience.StateOpen {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: "circuit breaker open"}
		}
		return health.ComponentHealth{Status: health.StatusUp, Message: r.Embedder.Name()}
	})
	if r.Postgres != nil {
		c.Register("postgres", health.Ping(r.Postgres.Ping, health.StatusDown))
	}
}
