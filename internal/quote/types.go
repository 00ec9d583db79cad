// Package quote defines the shared value types that flow between the
// venue adapters, the aggregator, and everything downstream of them.
package quote

import (
	"fmt"
	"time"
)

// VenueID is a short lowercase identifier for a trading venue, e.g.
// "hyperliquid" or "paradex". The set is fixed at process start by
// configuration.
type VenueID string

// Symbol is the canonical BASE-USD form produced by Normalize.
type Symbol string

// Quote is a single top-of-book observation from one venue for one
// symbol.
//
// Invariants: Bid > 0, Ask > 0. Bid > Ask is allowed through as a
// sanity flag further downstream rather than rejected here — a single
// quote carries no information about whether it is stale or wrong,
// only the aggregator and detector have enough context to judge that.
type Quote struct {
	Venue      VenueID
	Symbol     Symbol
	Bid        float64
	Ask        float64
	ObservedAt time.Time

	// Synthetic marks a quote fabricated from a mid price rather than
	// observed directly as a bid/ask pair (see the mid-only adapter).
	Synthetic bool
}

// Valid reports whether the quote satisfies the basic sanity
// invariants that make it eligible to ever reach an aggregated view.
func (q Quote) Valid() bool {
	return q.Bid > 0 && q.Ask > 0
}

// Crossed reports whether bid exceeds ask, which on a single venue is
// a malformed book rather than an arbitrage signal.
func (q Quote) Crossed() bool {
	return q.Bid > q.Ask
}

func (q Quote) String() string {
	return fmt.Sprintf("%s/%s bid=%.8f ask=%.8f @%s", q.Venue, q.Symbol, q.Bid, q.Ask, q.ObservedAt.Format(time.RFC3339Nano))
}

// VenuePrice pairs a venue with a single price, used for the best-bid
// and best-ask sides of an AggregatedView.
type VenuePrice struct {
	Venue VenueID
	Price float64
}

// AggregatedView is the per-symbol fresh view of per-venue quotes
// computed by the Price Aggregator.
type AggregatedView struct {
	Symbol     Symbol
	Quotes     []Quote
	BestBid    VenuePrice
	BestAsk    VenuePrice
	ComputedAt time.Time
}

// ConnectionState is a venue adapter's lifecycle state.
type ConnectionState int

const (
	StateConnecting ConnectionState = iota
	StateOpen
	StateDegraded
	StateClosed
)

func (s ConnectionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateDegraded:
		return "degraded"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ConnectionEvent reports a venue adapter's transition to a new state.
type ConnectionEvent struct {
	Venue        VenueID
	State        ConnectionState
	At           time.Time
	Err          error
	BreakerOpen  bool
}
