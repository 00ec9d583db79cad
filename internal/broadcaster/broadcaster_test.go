package broadcaster

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"venuemesh/internal/detector"
	"venuemesh/internal/quote"
	"venuemesh/pkg/logging"
)

type fakeFilter struct {
	symbols, venues map[string]struct{}
	sink            *fakeSink
}

func newFakeFilter() *fakeFilter {
	return &fakeFilter{sink: &fakeSink{}}
}

func (f *fakeFilter) MatchesSymbol(symbol string) bool {
	if len(f.symbols) == 0 {
		return true
	}
	_, ok := f.symbols[symbol]
	return ok
}

func (f *fakeFilter) MatchesVenue(venue string) bool {
	if len(f.venues) == 0 {
		return true
	}
	_, ok := f.venues[venue]
	return ok
}

func (f *fakeFilter) Sink() Sink { return f.sink }

type fakeSink struct {
	batches       [][]PriceUpdate
	opportunities []detector.Opportunity
	events        []quote.ConnectionEvent
}

func (s *fakeSink) SendPriceUpdate(batch []PriceUpdate)     { s.batches = append(s.batches, batch) }
func (s *fakeSink) SendOpportunity(o detector.Opportunity)  { s.opportunities = append(s.opportunities, o) }
func (s *fakeSink) SendConnectionEvent(e quote.ConnectionEvent) {
	s.events = append(s.events, e)
}

func testQuote(venue, symbol string, bid, ask float64) quote.Quote {
	return quote.Quote{Venue: quote.VenueID(venue), Symbol: quote.Symbol(symbol), Bid: bid, Ask: ask, ObservedAt: time.Now()}
}

func TestIngestQuote_EarlyFlushesAtMaxBatch(t *testing.T) {
	b := New(time.Hour, 2, logging.NewNop())
	f := newFakeFilter()
	b.Subscribe(f)

	b.IngestQuote(testQuote("hyperliquid", "BTC-USD", 100, 100.1))
	require.Empty(t, f.sink.batches, "should not flush below maxBatch")

	b.IngestQuote(testQuote("hyperliquid", "ETH-USD", 50, 50.1))
	require.Len(t, f.sink.batches, 1)
	assert.Len(t, f.sink.batches[0], 2)
}

func TestFlush_FiltersPerSubscriberBySymbol(t *testing.T) {
	b := New(time.Hour, 10000, logging.NewNop())

	btcOnly := newFakeFilter()
	btcOnly.symbols = map[string]struct{}{"BTC-USD": {}}
	b.Subscribe(btcOnly)

	everything := newFakeFilter()
	b.Subscribe(everything)

	b.IngestQuote(testQuote("hyperliquid", "BTC-USD", 100, 100.1))
	b.IngestQuote(testQuote("hyperliquid", "ETH-USD", 50, 50.1))
	b.flush()

	require.Len(t, btcOnly.sink.batches, 1)
	assert.Len(t, btcOnly.sink.batches[0], 1)
	assert.Equal(t, "BTC-USD", btcOnly.sink.batches[0][0].Symbol)

	require.Len(t, everything.sink.batches, 1)
	assert.Len(t, everything.sink.batches[0], 2)
}

func TestFlush_NoPendingUpdatesSendsNothing(t *testing.T) {
	b := New(time.Hour, 10, logging.NewNop())
	f := newFakeFilter()
	b.Subscribe(f)

	b.flush()
	assert.Empty(t, f.sink.batches)
}

func TestPublishOpportunity_FiltersBySymbol(t *testing.T) {
	b := New(time.Hour, 10, logging.NewNop())

	btcOnly := newFakeFilter()
	btcOnly.symbols = map[string]struct{}{"BTC-USD": {}}
	b.Subscribe(btcOnly)

	opp := detector.Opportunity{Symbol: "ETH-USD", BuyVenue: "a", SellVenue: "b", DetectedAt: time.Now()}
	b.PublishOpportunity(opp)
	assert.Empty(t, btcOnly.sink.opportunities)

	opp.Symbol = "BTC-USD"
	b.PublishOpportunity(opp)
	require.Len(t, btcOnly.sink.opportunities, 1)
	assert.Equal(t, quote.Symbol("BTC-USD"), btcOnly.sink.opportunities[0].Symbol)
}

func TestPublishConnectionEvent_UnfilteredByVenue(t *testing.T) {
	b := New(time.Hour, 10, logging.NewNop())

	venueFiltered := newFakeFilter()
	venueFiltered.venues = map[string]struct{}{"hyperliquid": {}}
	b.Subscribe(venueFiltered)

	ev := quote.ConnectionEvent{Venue: "paradex", State: quote.StateOpen, At: time.Now()}
	b.PublishConnectionEvent(ev)

	require.Len(t, venueFiltered.sink.events, 1, "connection events are not filtered by venue")
}

func TestUnsubscribe_StopsReceivingUpdates(t *testing.T) {
	b := New(time.Hour, 10000, logging.NewNop())
	f := newFakeFilter()
	b.Subscribe(f)
	b.Unsubscribe(f)

	b.IngestQuote(testQuote("hyperliquid", "BTC-USD", 100, 100.1))
	b.flush()

	assert.Empty(t, f.sink.batches)
}

func TestSnapshot_ReportsCounters(t *testing.T) {
	b := New(time.Hour, 10000, logging.NewNop())
	b.IngestQuote(testQuote("hyperliquid", "BTC-USD", 100, 100.1))
	opp := detector.Opportunity{Symbol: "BTC-USD", DetectedAt: time.Now()}
	b.PublishOpportunity(opp)

	stats := b.Snapshot(3)
	assert.EqualValues(t, 1, stats.QuotesIngested)
	assert.EqualValues(t, 1, stats.OpportunitiesDetected)
	assert.Equal(t, 3, stats.ActiveVenues)
}
