package aggregator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"venuemesh/internal/quote"
	"venuemesh/pkg/logging"
)

func newTestAggregator(maxAge time.Duration) *Aggregator {
	return New(maxAge, logging.NewNop())
}

func TestAggregate_EmptyViewHasZeroBestSides(t *testing.T) {
	agg := newTestAggregator(2 * time.Second)
	view := agg.Aggregate("BTC-USD")
	assert.Empty(t, view.Quotes)
	assert.Equal(t, quote.VenuePrice{}, view.BestBid)
	assert.Equal(t, quote.VenuePrice{}, view.BestAsk)
}

func TestIngest_BestBidAndAskAcrossVenues(t *testing.T) {
	agg := newTestAggregator(2 * time.Second)
	now := time.Now()

	agg.Ingest(quote.Quote{Venue: "venueA", Symbol: "BTC-USD", Bid: 100, Ask: 101, ObservedAt: now})
	view := agg.Ingest(quote.Quote{Venue: "venueB", Symbol: "BTC-USD", Bid: 103, Ask: 104, ObservedAt: now})

	require.Len(t, view.Quotes, 2)
	assert.Equal(t, quote.VenueID("venueB"), view.BestBid.Venue)
	assert.Equal(t, 103.0, view.BestBid.Price)
	assert.Equal(t, quote.VenueID("venueA"), view.BestAsk.Venue)
	assert.Equal(t, 101.0, view.BestAsk.Price)
}

func TestAggregate_ExcludesStaleQuotes(t *testing.T) {
	agg := newTestAggregator(2 * time.Second)

	agg.Ingest(quote.Quote{Venue: "venueA", Symbol: "SOL-USD", Bid: 100, Ask: 101, ObservedAt: time.Now().Add(-2500 * time.Millisecond)})
	agg.Ingest(quote.Quote{Venue: "venueB", Symbol: "SOL-USD", Bid: 110, Ask: 111, ObservedAt: time.Now()})

	view := agg.Aggregate("SOL-USD")
	require.Len(t, view.Quotes, 1)
	assert.Equal(t, quote.VenueID("venueB"), view.Quotes[0].Venue)
}

func TestAggregate_TieBreaksByEarliestThenVenue(t *testing.T) {
	agg := newTestAggregator(2 * time.Second)
	earlier := time.Now().Add(-100 * time.Millisecond)
	later := time.Now()

	agg.Ingest(quote.Quote{Venue: "zzz", Symbol: "ETH-USD", Bid: 100, Ask: 101, ObservedAt: later})
	view := agg.Ingest(quote.Quote{Venue: "aaa", Symbol: "ETH-USD", Bid: 100, Ask: 101, ObservedAt: earlier})

	assert.Equal(t, quote.VenueID("aaa"), view.BestBid.Venue)
}

func TestSnapshot_SortedBySymbol(t *testing.T) {
	agg := newTestAggregator(2 * time.Second)
	now := time.Now()

	agg.Ingest(quote.Quote{Venue: "venueA", Symbol: "ETH-USD", Bid: 1, Ask: 2, ObservedAt: now})
	agg.Ingest(quote.Quote{Venue: "venueA", Symbol: "BTC-USD", Bid: 1, Ask: 2, ObservedAt: now})

	snap := agg.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, quote.Symbol("BTC-USD"), snap[0].Symbol)
	assert.Equal(t, quote.Symbol("ETH-USD"), snap[1].Symbol)
}

func TestClear_RemovesEverything(t *testing.T) {
	agg := newTestAggregator(2 * time.Second)
	agg.Ingest(quote.Quote{Venue: "venueA", Symbol: "BTC-USD", Bid: 1, Ask: 2, ObservedAt: time.Now()})
	agg.Clear()
	assert.Empty(t, agg.Snapshot())
}

func TestSweep_DropsStaleEntriesAndEmptySymbols(t *testing.T) {
	agg := newTestAggregator(50 * time.Millisecond)
	agg.Ingest(quote.Quote{Venue: "venueA", Symbol: "BTC-USD", Bid: 1, Ask: 2, ObservedAt: time.Now()})

	time.Sleep(80 * time.Millisecond)
	agg.sweep()

	agg.mu.RLock()
	_, exists := agg.bySymbol["BTC-USD"]
	agg.mu.RUnlock()
	assert.False(t, exists)
}
