// Package memory provides in-process credit ledger and event bus
// implementations for the CLI and tests.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"mercator-hq/relay/pkg/ports"
)

// Ledger is an in-memory credit ledger. Balances may go negative; a
// tenant never seen before starts at zero.
type Ledger struct {
	mu       sync.Mutex
	balances map[string]float64
	logger   *slog.Logger
}

var _ ports.CreditLedger = (*Ledger)(nil)

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{
		balances: make(map[string]float64),
		logger:   slog.Default().With("component", "runstore.ledger"),
	}
}

// Credit adds amountUSD to a tenant's balance.
func (l *Ledger) Credit(tenantID string, amountUSD float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[tenantID] += amountUSD
}

// Decrement bills amountUSD to a tenant.
func (l *Ledger) Decrement(ctx context.Context, tenantID string, amountUSD float64) error {
	if amountUSD < 0 {
		return fmt.Errorf("cannot decrement a negative amount: %f", amountUSD)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	l.balances[tenantID] -= amountUSD
	balance := l.balances[tenantID]
	l.mu.Unlock()

	l.logger.Debug("credits decremented",
		"tenant_id", tenantID,
		"amount_usd", amountUSD,
		"balance_usd", balance,
	)
	return nil
}

// Balance returns a tenant's balance.
func (l *Ledger) Balance(tenantID string) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[tenantID]
}

// Handler receives published events.
type Handler func(ctx context.Context, event ports.RunCreatedEvent) error

// Bus is a synchronous in-memory event bus. Every published event is
// kept so it can be inspected later.
type Bus struct {
	mu       sync.RWMutex
	handlers []Handler
	events   []ports.RunCreatedEvent
}

var _ ports.EventBus = (*Bus)(nil)

// NewBus creates a bus without subscribers.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers a handler for every subsequent event.
func (b *Bus) Subscribe(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, h)
}

// Publish records the event and delivers it to every subscriber in
// registration order. The first handler error is returned after all
// handlers ran.
func (b *Bus) Publish(ctx context.Context, event ports.RunCreatedEvent) error {
	b.mu.Lock()
	b.events = append(b.events, event)
	handlers := append([]Handler(nil), b.handlers...)
	b.mu.Unlock()

	var first error
	for _, h := range handlers {
		if err := h(ctx, event); err != nil && first == nil {
			first = fmt.Errorf("event handler failed for run %s: %w", event.RunID, err)
		}
	}
	return first
}

// Events returns a copy of every published event.
func (b *Bus) Events() []ports.RunCreatedEvent {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]ports.RunCreatedEvent(nil), b.events...)
}
