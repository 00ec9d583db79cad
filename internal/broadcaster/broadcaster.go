// Package broadcaster coalesces price updates into time-batched
// frames and forwards opportunities and venue connection-state events
// to the gateway immediately.
package broadcaster

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"venuemesh/internal/detector"
	"venuemesh/internal/quote"
	"venuemesh/internal/telemetry"
	"venuemesh/pkg/utils"
)

// PriceUpdate is the wire shape of one venue quote: the raw bid/ask
// plus a precomputed venue-local spread.
type PriceUpdate struct {
	Exchange  string  `json:"exchange"`
	Symbol    string  `json:"symbol"`
	Bid       float64 `json:"bid"`
	Ask       float64 `json:"ask"`
	Spread    float64 `json:"spread"`
	Timestamp int64   `json:"timestamp"`
	Synthetic bool    `json:"synthetic,omitempty"`
}

// toPriceUpdate converts one ingested quote into its wire shape,
// computing the venue-local spread (ask-bid)/bid*100.
func toPriceUpdate(q quote.Quote) PriceUpdate {
	spread := utils.CalculateSpread(q.Ask, q.Bid)
	return PriceUpdate{
		Exchange:  string(q.Venue),
		Symbol:    string(q.Symbol),
		Bid:       q.Bid,
		Ask:       q.Ask,
		Spread:    spread,
		Timestamp: q.ObservedAt.UnixMilli(),
		Synthetic: q.Synthetic,
	}
}

// Stats is the periodic arbitrage:stats snapshot.
type Stats struct {
	OpportunitiesDetected int64 `json:"opportunitiesDetected"`
	QuotesIngested        int64 `json:"quotesIngested"`
	ActiveVenues          int   `json:"activeVenues"`
}

// Sink receives fully-filtered, subscriber-specific frames ready for
// wire encoding. The gateway implements this once per connection.
type Sink interface {
	SendPriceUpdate(batch []PriceUpdate)
	SendOpportunity(o detector.Opportunity)
	SendConnectionEvent(e quote.ConnectionEvent)
}

// subscriberFilter answers whether a given symbol/venue passes a
// subscriber's current filter. The gateway owns subscriber state; the
// broadcaster only needs to ask.
type subscriberFilter interface {
	MatchesSymbol(symbol string) bool
	MatchesVenue(venue string) bool
	Sink() Sink
}

// Broadcaster batches incoming quotes into BROADCAST_INTERVAL frames
// and fans opportunities and connection events out immediately,
// filtering each outbound frame per subscriber.
type Broadcaster struct {
	mu          sync.Mutex
	pending     []PriceUpdate
	subscribers map[subscriberFilter]struct{}

	interval  time.Duration
	maxBatch  int
	logger    *zap.SugaredLogger

	quotesIngested        int64
	opportunitiesDetected int64
}

// New builds a Broadcaster. interval is BROADCAST_INTERVAL (default
// 100ms); maxBatch is BROADCAST_MAX_BATCH, an early-flush bound on the
// pending buffer (suggested 10000).
func New(interval time.Duration, maxBatch int, logger *zap.SugaredLogger) *Broadcaster {
	return &Broadcaster{
		subscribers: make(map[subscriberFilter]struct{}),
		interval:    interval,
		maxBatch:    maxBatch,
		logger:      logger,
	}
}

// Subscribe registers a subscriber filter for fan-out. Unsubscribe
// removes it. Both are safe to call concurrently with Run.
func (b *Broadcaster) Subscribe(s subscriberFilter) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[s] = struct{}{}
}

func (b *Broadcaster) Unsubscribe(s subscriberFilter) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subscribers, s)
}

// IngestQuote appends a quote to the pending batch, flushing early as
// soon as the buffer holds maxBatch entries.
func (b *Broadcaster) IngestQuote(q quote.Quote) {
	b.mu.Lock()
	b.pending = append(b.pending, toPriceUpdate(q))
	b.quotesIngested++
	overflow := len(b.pending) >= b.maxBatch
	b.mu.Unlock()

	if overflow {
		b.flush()
	}
}

// PublishOpportunity fans an opportunity out immediately, bypassing
// the batch buffer entirely.
func (b *Broadcaster) PublishOpportunity(o detector.Opportunity) {
	b.mu.Lock()
	b.opportunitiesDetected++
	subs := b.snapshotSubscribers()
	b.mu.Unlock()

	for _, s := range subs {
		if s.MatchesSymbol(string(o.Symbol)) {
			s.Sink().SendOpportunity(o)
		}
	}
}

// PublishConnectionEvent fans a venue connection-state transition out
// immediately to every subscriber (connection events are not
// symbol/venue filtered; every client needs exchange health).
func (b *Broadcaster) PublishConnectionEvent(e quote.ConnectionEvent) {
	b.mu.Lock()
	subs := b.snapshotSubscribers()
	b.mu.Unlock()

	for _, s := range subs {
		s.Sink().SendConnectionEvent(e)
	}
}

// Snapshot returns the current counters for an arbitrage:stats frame.
func (b *Broadcaster) Snapshot(activeVenues int) Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Stats{
		OpportunitiesDetected: b.opportunitiesDetected,
		QuotesIngested:        b.quotesIngested,
		ActiveVenues:          activeVenues,
	}
}

// snapshotSubscribers copies the subscriber set under lock so fan-out
// itself never holds the lock across a (possibly blocking) send.
func (b *Broadcaster) snapshotSubscribers() []subscriberFilter {
	subs := make([]subscriberFilter, 0, len(b.subscribers))
	for s := range b.subscribers {
		subs = append(subs, s)
	}
	return subs
}

// Run ticks every interval, flushing the pending batch if non-empty,
// until done is closed.
func (b *Broadcaster) Run(done <-chan struct{}) {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			b.flush()
		}
	}
}

// flush swaps the pending buffer for a fresh one and fans the batch
// out per-subscriber, filtering each subscriber's copy down to the
// entries that match its symbol/venue filter.
func (b *Broadcaster) flush() {
	b.mu.Lock()
	if len(b.pending) == 0 {
		b.mu.Unlock()
		return
	}
	batch := b.pending
	b.pending = nil
	subs := b.snapshotSubscribers()
	b.mu.Unlock()

	for _, s := range subs {
		filtered := make([]PriceUpdate, 0, len(batch))
		for _, u := range batch {
			if s.MatchesSymbol(u.Symbol) && s.MatchesVenue(u.Exchange) {
				filtered = append(filtered, u)
			}
		}
		if len(filtered) > 0 {
			s.Sink().SendPriceUpdate(filtered)
		}
	}

	telemetry.RecordBatch(len(batch))
	if b.logger != nil {
		b.logger.Debugw("flushed price batch", "entries", len(batch), "subscribers", len(subs))
	}
}
