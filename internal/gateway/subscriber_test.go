package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"venuemesh/internal/broadcaster"
	"venuemesh/internal/detector"
	"venuemesh/internal/quote"
)

type recordingSink struct {
	priceUpdates  int
	opportunities int
	events        int
}

func (r *recordingSink) SendPriceUpdate(batch []broadcaster.PriceUpdate) { r.priceUpdates++ }
func (r *recordingSink) SendOpportunity(o detector.Opportunity)          { r.opportunities++ }
func (r *recordingSink) SendConnectionEvent(e quote.ConnectionEvent)     { r.events++ }

func TestFilterState_EmptyMatchesEverything(t *testing.T) {
	f := newFilterState()
	assert.True(t, f.matchesSymbol("BTC-USD"))
	assert.True(t, f.matchesVenue("hyperliquid"))
}

func TestFilterState_SetSymbolsRestrictsMatches(t *testing.T) {
	f := newFilterState()
	f.setSymbols([]string{"BTC-USD", "ETH-USD"})

	assert.True(t, f.matchesSymbol("BTC-USD"))
	assert.False(t, f.matchesSymbol("SOL-USD"))
}

func TestFilterState_SetSymbolsEmptyResetsToMatchAll(t *testing.T) {
	f := newFilterState()
	f.setSymbols([]string{"BTC-USD"})
	f.setSymbols(nil)

	assert.True(t, f.matchesSymbol("SOL-USD"), "re-subscribing with an empty list means match-all again")
}

func TestFilterState_RemoveSymbols(t *testing.T) {
	f := newFilterState()
	f.setSymbols([]string{"BTC-USD", "ETH-USD"})
	f.removeSymbols([]string{"BTC-USD"})

	assert.False(t, f.matchesSymbol("BTC-USD"))
	assert.True(t, f.matchesSymbol("ETH-USD"))
}

func TestSubscriber_SatisfiesBroadcasterFilter(t *testing.T) {
	sink := &recordingSink{}
	sub := newSubscriber(sink)
	sub.filter.setSymbols([]string{"BTC-USD"})

	assert.True(t, sub.MatchesSymbol("BTC-USD"))
	assert.False(t, sub.MatchesSymbol("ETH-USD"))
	assert.True(t, sub.MatchesVenue("hyperliquid"), "no venue filter set, matches all")
	assert.Equal(t, broadcaster.Sink(sink), sub.Sink())
}
