// Package aggregator maintains a per-symbol, per-venue fresh view of
// quotes and derives the current best bid/ask across venues.
//
// The sharded, index-assisted PriceTracker this grew out of partitions
// by symbol across many mutexes to keep unrelated symbols from
// blocking each other. The venue list here tops out in the low tens,
// not the hundreds, so a single RWMutex over one map is sufficient and
// keeps the sweep loop simple; sharding would buy concurrency this
// table never needs.
package aggregator

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"venuemesh/internal/quote"
)

// Aggregator maintains a rolling per-symbol, per-venue view and derives
// the current cross-venue best bid and ask.
type Aggregator struct {
	mu       sync.RWMutex
	bySymbol map[quote.Symbol]map[quote.VenueID]quote.Quote

	maxAge time.Duration
	logger *zap.SugaredLogger
}

// New builds an Aggregator. maxAge is MAX_PRICE_AGE (default 2s):
// quotes older than this are excluded from Aggregate's view.
func New(maxAge time.Duration, logger *zap.SugaredLogger) *Aggregator {
	return &Aggregator{
		bySymbol: make(map[quote.Symbol]map[quote.VenueID]quote.Quote),
		maxAge:   maxAge,
		logger:   logger,
	}
}

// Ingest inserts or overwrites the (symbol, venue) slot and returns
// the freshly recomputed AggregatedView for quote.Symbol.
func (a *Aggregator) Ingest(q quote.Quote) quote.AggregatedView {
	a.mu.Lock()
	venues, ok := a.bySymbol[q.Symbol]
	if !ok {
		venues = make(map[quote.VenueID]quote.Quote)
		a.bySymbol[q.Symbol] = venues
	}
	venues[q.Venue] = q
	a.mu.Unlock()

	return a.Aggregate(q.Symbol)
}

// Aggregate filters the symbol's venue quotes to those within maxAge
// of now and computes best bid / best ask, breaking ties by earliest
// observed_at then lexicographic venue.
func (a *Aggregator) Aggregate(symbol quote.Symbol) quote.AggregatedView {
	now := time.Now()

	a.mu.RLock()
	venues := a.bySymbol[symbol]
	fresh := make([]quote.Quote, 0, len(venues))
	for _, q := range venues {
		if now.Sub(q.ObservedAt) <= a.maxAge {
			fresh = append(fresh, q)
		}
	}
	a.mu.RUnlock()

	view := quote.AggregatedView{
		Symbol:     symbol,
		Quotes:     fresh,
		ComputedAt: now,
	}

	if len(fresh) == 0 {
		return view
	}

	view.BestBid = bestBid(fresh)
	view.BestAsk = bestAsk(fresh)
	return view
}

func bestBid(quotes []quote.Quote) quote.VenuePrice {
	best := quotes[0]
	for _, q := range quotes[1:] {
		if q.Bid > best.Bid || (q.Bid == best.Bid && isBetterTie(q, best)) {
			best = q
		}
	}
	return quote.VenuePrice{Venue: best.Venue, Price: best.Bid}
}

func bestAsk(quotes []quote.Quote) quote.VenuePrice {
	best := quotes[0]
	for _, q := range quotes[1:] {
		if q.Ask < best.Ask || (q.Ask == best.Ask && isBetterTie(q, best)) {
			best = q
		}
	}
	return quote.VenuePrice{Venue: best.Venue, Price: best.Ask}
}

// isBetterTie breaks an equal-price tie by earliest observed_at, then
// lexicographic venue.
func isBetterTie(candidate, current quote.Quote) bool {
	if candidate.ObservedAt.Before(current.ObservedAt) {
		return true
	}
	if candidate.ObservedAt.After(current.ObservedAt) {
		return false
	}
	return candidate.Venue < current.Venue
}

// Snapshot aggregates every known symbol. The list is sorted by
// symbol for deterministic output, so callers need no sort of their
// own.
func (a *Aggregator) Snapshot() []quote.AggregatedView {
	a.mu.RLock()
	symbols := make([]quote.Symbol, 0, len(a.bySymbol))
	for s := range a.bySymbol {
		symbols = append(symbols, s)
	}
	a.mu.RUnlock()

	sort.Slice(symbols, func(i, j int) bool { return symbols[i] < symbols[j] })

	views := make([]quote.AggregatedView, 0, len(symbols))
	for _, s := range symbols {
		views = append(views, a.Aggregate(s))
	}
	return views
}

// Clear drops every tracked symbol and venue quote.
func (a *Aggregator) Clear() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.bySymbol = make(map[quote.Symbol]map[quote.VenueID]quote.Quote)
}

// RunSweeper removes stale quotes on a fixed cadence until done is
// closed, dropping any symbol left with no live venues so the map
// doesn't grow without bound across a long-running process.
func (a *Aggregator) RunSweeper(done <-chan struct{}, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			a.sweep()
		}
	}
}

func (a *Aggregator) sweep() {
	now := time.Now()
	removed := 0

	a.mu.Lock()
	for symbol, venues := range a.bySymbol {
		for v, q := range venues {
			if now.Sub(q.ObservedAt) > a.maxAge {
				delete(venues, v)
				removed++
			}
		}
		if len(venues) == 0 {
			delete(a.bySymbol, symbol)
		}
	}
	a.mu.Unlock()

	if removed > 0 {
		a.logger.Debugw("swept stale quotes", "removed", removed)
	}
}
