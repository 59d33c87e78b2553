package routing

import (
	"sync"
	"sync/atomic"
	"time"
)

// AtomicRoutingStats implements thread-safe routing statistics using atomic operations.
type AtomicRoutingStats struct {
	totalRuns atomic.Int64

	// attemptsPerProvider tracks attempts made on each provider
	attemptsPerProvider sync.Map // map[string]*atomic.Int64

	// errorsPerCode tracks failed attempts by error code
	errorsPerCode sync.Map // map[string]*atomic.Int64

	retries   atomic.Int64
	failovers atomic.Int64
	failures  atomic.Int64

	// lastResetTime is when statistics were last reset
	lastResetTime time.Time

	// mu protects lastResetTime
	mu sync.RWMutex
}

// NewAtomicRoutingStats creates a new atomic routing statistics tracker.
func NewAtomicRoutingStats() *AtomicRoutingStats {
	return &AtomicRoutingStats{
		lastResetTime: time.Now(),
	}
}

// IncrementRuns increments the run counter.
func (s *AtomicRoutingStats) IncrementRuns() {
	s.totalRuns.Add(1)
}

// IncrementAttempt increments the attempt counter for a provider.
func (s *AtomicRoutingStats) IncrementAttempt(providerName string) {
	increment(&s.attemptsPerProvider, providerName)
}

// IncrementError increments the counter for a failed attempt's code.
func (s *AtomicRoutingStats) IncrementError(code string) {
	increment(&s.errorsPerCode, code)
}

// IncrementRetry increments the same-provider retry counter.
func (s *AtomicRoutingStats) IncrementRetry() {
	s.retries.Add(1)
}

// IncrementFailover increments the failover counter.
func (s *AtomicRoutingStats) IncrementFailover() {
	s.failovers.Add(1)
}

// IncrementFailure increments the failed run counter.
func (s *AtomicRoutingStats) IncrementFailure() {
	s.failures.Add(1)
}

func increment(m *sync.Map, key string) {
	val, _ := m.LoadOrStore(key, &atomic.Int64{})
	val.(*atomic.Int64).Add(1)
}

func snapshot(m *sync.Map) map[string]int64 {
	out := make(map[string]int64)
	m.Range(func(key, value any) bool {
		out[key.(string)] = value.(*atomic.Int64).Load()
		return true
	})
	return out
}

// Snapshot returns a point-in-time snapshot of the statistics.
// The returned RoutingStats struct is safe to read without locks.
func (s *AtomicRoutingStats) Snapshot() *RoutingStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return &RoutingStats{
		TotalRuns:           s.totalRuns.Load(),
		AttemptsPerProvider: snapshot(&s.attemptsPerProvider),
		ErrorsPerCode:       snapshot(&s.errorsPerCode),
		Retries:             s.retries.Load(),
		Failovers:           s.failovers.Load(),
		Failures:            s.failures.Load(),
		LastResetTime:       s.lastResetTime,
	}
}

// Reset resets all statistics to zero.
func (s *AtomicRoutingStats) Reset() {
	s.totalRuns.Store(0)
	s.retries.Store(0)
	s.failovers.Store(0)
	s.failures.Store(0)
	s.attemptsPerProvider.Clear()
	s.errorsPerCode.Clear()

	s.mu.Lock()
	s.lastResetTime = time.Now()
	s.mu.Unlock()
}
