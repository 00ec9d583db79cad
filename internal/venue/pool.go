package venue

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"venuemesh/internal/quote"
	"venuemesh/internal/telemetry"
)

// drainTimeout bounds how long Pool.Stop waits for an adapter to
// release its transport before abandoning it.
const drainTimeout = 5 * time.Second

// HealthEntry is the per-venue status surfaced by Pool.Health,
// grounded on the teacher's ExchangeConnections/ExchangeBalance gauge
// pair in its metrics package — re-themed here to connection health
// rather than balances, per SPEC_FULL.md's supplemented features.
type HealthEntry struct {
	Venue           quote.VenueID
	Transport       Transport
	State           quote.ConnectionState
	LastQuoteAt     time.Time
	ReconnectErrors int
}

// Pool starts, supervises, and reports health for every configured
// Adapter, and exposes the merged quote/state streams the rest of the
// pipeline consumes.
type Pool struct {
	adapters []Adapter
	logger   *zap.SugaredLogger

	quotes chan quote.Quote
	states chan quote.ConnectionEvent

	mu     sync.Mutex
	health map[quote.VenueID]*HealthEntry

	wg sync.WaitGroup
}

// NewPool builds a Pool over the given adapters. The merged channel
// capacities are generous buffers, not backpressure controls: a slow
// aggregator is expected to keep up with real-world quote volumes at
// these depths.
func NewPool(adapters []Adapter, logger *zap.SugaredLogger) *Pool {
	health := make(map[quote.VenueID]*HealthEntry, len(adapters))
	for _, a := range adapters {
		health[a.Name()] = &HealthEntry{Venue: a.Name(), Transport: a.Transport(), State: quote.StateConnecting}
	}

	return &Pool{
		adapters: adapters,
		logger:   logger,
		quotes:   make(chan quote.Quote, 4096),
		states:   make(chan quote.ConnectionEvent, 256),
		health:   health,
	}
}

// Start launches every adapter and the fan-in goroutines that merge
// their individual output channels into the pool's shared streams.
func (p *Pool) Start(ctx context.Context) error {
	for _, a := range p.adapters {
		if err := a.Start(ctx); err != nil {
			p.logger.Errorw("adapter failed to start", "venue", a.Name(), "error", err)
			continue
		}

		p.wg.Add(2)
		go p.pumpQuotes(a)
		go p.pumpStates(a)
	}
	return nil
}

func (p *Pool) pumpQuotes(a Adapter) {
	defer p.wg.Done()
	for q := range a.Quotes() {
		p.mu.Lock()
		if h, ok := p.health[a.Name()]; ok {
			h.LastQuoteAt = q.ObservedAt
		}
		p.mu.Unlock()
		telemetry.RecordQuote(string(a.Name()))

		select {
		case p.quotes <- q:
		default:
			p.logger.Warnw("dropped quote, pool output full", "venue", a.Name(), "symbol", q.Symbol)
		}
	}
}

func (p *Pool) pumpStates(a Adapter) {
	defer p.wg.Done()
	for ev := range a.States() {
		p.mu.Lock()
		if h, ok := p.health[a.Name()]; ok {
			h.State = ev.State
			if ev.Err != nil {
				h.ReconnectErrors++
			}
		}
		p.mu.Unlock()
		telemetry.SetVenueState(string(a.Name()), int(ev.State))
		if ev.Err != nil {
			telemetry.RecordReconnectError(string(a.Name()))
		}

		select {
		case p.states <- ev:
		default:
			p.logger.Warnw("dropped connection event, pool output full", "venue", a.Name())
		}
	}
}

// Quotes returns the pool's merged quote stream.
func (p *Pool) Quotes() <-chan quote.Quote { return p.quotes }

// States returns the pool's merged connection-state stream.
func (p *Pool) States() <-chan quote.ConnectionEvent { return p.states }

// Health returns a point-in-time snapshot of every adapter's status.
func (p *Pool) Health() []HealthEntry {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]HealthEntry, 0, len(p.health))
	for _, h := range p.health {
		out = append(out, *h)
	}
	return out
}

// Stop signals every adapter to release its transport and waits up to
// drainTimeout for them to do so before abandoning stragglers.
func (p *Pool) Stop() {
	for _, a := range p.adapters {
		if err := a.Stop(); err != nil {
			p.logger.Warnw("adapter stop reported error", "venue", a.Name(), "error", err)
		}
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(drainTimeout):
		p.logger.Warnw("adapter pool stop timed out, abandoning stragglers", "timeout", drainTimeout)
	}
}
