package health

import (
	"context"
	"fmt"
)

// Pinger is a dependency that can be probed, such as a run store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingCheck adapts p to a CheckFunc.
func PingCheck(p Pinger) CheckFunc {
	return p.Ping
}

// ProviderCounts reports how many providers are configured and healthy.
type ProviderCounts func() (total, healthy int)

// ProvidersCheck fails when fewer than minHealthy providers are healthy.
// With no providers configured it always fails.
func ProvidersCheck(counts ProviderCounts, minHealthy int) CheckFunc {
	minHealthy = max(minHealthy, 1)
	return func(ctx context.Context) error {
		total, healthy := counts()
		if total == 0 {
			return fmt.Errorf("no providers configured")
		}
		if healthy < minHealthy {
			return fmt.Errorf("%d of %d providers healthy", healthy, total)
		}
		return nil
	}
}
