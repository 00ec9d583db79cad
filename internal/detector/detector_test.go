package detector

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"venuemesh/internal/quote"
	"venuemesh/pkg/logging"
)

func defaultConfig() Config {
	return Config{
		MinSpreadPct:          0.1,
		MaxRealisticSpreadPct: 5,
		MaxPriceAgeForArb:     2 * time.Second,
		Cooldown:              1 * time.Second,
		HistoryTTL:            60 * time.Second,
		AllowSynthetic:        false,
	}
}

func view(symbol quote.Symbol, at time.Time, quotes ...quote.Quote) quote.AggregatedView {
	v := quote.AggregatedView{Symbol: symbol, Quotes: quotes, ComputedAt: at}
	if len(quotes) == 0 {
		return v
	}
	v.BestBid = bestOf(quotes, func(q quote.Quote) float64 { return q.Bid }, true)
	v.BestAsk = bestOf(quotes, func(q quote.Quote) float64 { return q.Ask }, false)
	return v
}

func bestOf(quotes []quote.Quote, field func(quote.Quote) float64, max bool) quote.VenuePrice {
	best := quotes[0]
	for _, q := range quotes[1:] {
		if max && field(q) > field(best) {
			best = q
		}
		if !max && field(q) < field(best) {
			best = q
		}
	}
	return quote.VenuePrice{Venue: best.Venue, Price: field(best)}
}

func TestDetect_SimpleCross(t *testing.T) {
	d := New(defaultConfig(), logging.NewNop())
	t0 := time.Now()

	v := view("BTC-USD", t0,
		quote.Quote{Venue: "venueA", Symbol: "BTC-USD", Bid: 100, Ask: 101, ObservedAt: t0},
		quote.Quote{Venue: "venueB", Symbol: "BTC-USD", Bid: 103, Ask: 104, ObservedAt: t0},
	)

	opp, ok := d.Detect(v)
	require.True(t, ok)
	assert.Equal(t, quote.VenueID("venueA"), opp.BuyVenue)
	assert.Equal(t, quote.VenueID("venueB"), opp.SellVenue)
	assert.Equal(t, 101.0, opp.BuyPrice)
	assert.Equal(t, 103.0, opp.SellPrice)
	assert.InDelta(t, 1.9802, opp.SpreadPct, 0.001)
}

func TestDetect_NoSelfArbSingleVenue(t *testing.T) {
	d := New(defaultConfig(), logging.NewNop())
	t0 := time.Now()

	v := view("ETH-USD", t0,
		quote.Quote{Venue: "venueA", Symbol: "ETH-USD", Bid: 2000, Ask: 1999, ObservedAt: t0},
	)

	_, ok := d.Detect(v)
	assert.False(t, ok)
}

func TestDetect_Cooldown(t *testing.T) {
	d := New(defaultConfig(), logging.NewNop())
	t0 := time.Now()

	v1 := view("BTC-USD", t0,
		quote.Quote{Venue: "venueA", Symbol: "BTC-USD", Bid: 100, Ask: 101, ObservedAt: t0},
		quote.Quote{Venue: "venueB", Symbol: "BTC-USD", Bid: 103, Ask: 104, ObservedAt: t0},
	)
	_, ok := d.Detect(v1)
	require.True(t, ok)

	t100 := t0.Add(100 * time.Millisecond)
	v2 := view("BTC-USD", t100,
		quote.Quote{Venue: "venueA", Symbol: "BTC-USD", Bid: 100, Ask: 101, ObservedAt: t100},
		quote.Quote{Venue: "venueB", Symbol: "BTC-USD", Bid: 105, Ask: 106, ObservedAt: t100},
	)
	_, ok = d.Detect(v2)
	assert.False(t, ok, "within cooldown window")

	t1010 := t0.Add(1010 * time.Millisecond)
	v3 := view("BTC-USD", t1010,
		quote.Quote{Venue: "venueA", Symbol: "BTC-USD", Bid: 100, Ask: 101, ObservedAt: t1010},
		quote.Quote{Venue: "venueB", Symbol: "BTC-USD", Bid: 105, Ask: 106, ObservedAt: t1010},
	)
	_, ok = d.Detect(v3)
	assert.True(t, ok, "cooldown elapsed")
}

func TestDetect_StalenessRejects(t *testing.T) {
	d := New(defaultConfig(), logging.NewNop())
	t0 := time.Now()
	t2500 := t0.Add(2500 * time.Millisecond)

	v := view("SOL-USD", t2500,
		quote.Quote{Venue: "venueA", Symbol: "SOL-USD", Bid: 100, Ask: 101, ObservedAt: t0},
		quote.Quote{Venue: "venueB", Symbol: "SOL-USD", Bid: 110, Ask: 111, ObservedAt: t2500},
	)

	_, ok := d.Detect(v)
	assert.False(t, ok)
}

func TestDetect_SanityBoundRejectsTooWideSpread(t *testing.T) {
	d := New(defaultConfig(), logging.NewNop())
	t0 := time.Now()

	v := view("X-USD", t0,
		quote.Quote{Venue: "venueA", Symbol: "X-USD", Bid: 100, Ask: 101, ObservedAt: t0},
		quote.Quote{Venue: "venueB", Symbol: "X-USD", Bid: 108, Ask: 109, ObservedAt: t0},
	)

	_, ok := d.Detect(v)
	assert.False(t, ok)
}

func TestDetect_SyntheticExcludedByDefault(t *testing.T) {
	d := New(defaultConfig(), logging.NewNop())
	t0 := time.Now()

	v := view("BTC-USD", t0,
		quote.Quote{Venue: "venueA", Symbol: "BTC-USD", Bid: 100, Ask: 101, ObservedAt: t0},
		quote.Quote{Venue: "venueB", Symbol: "BTC-USD", Bid: 103, Ask: 104, ObservedAt: t0, Synthetic: true},
	)

	_, ok := d.Detect(v)
	assert.False(t, ok)
}

func TestDetect_SyntheticAllowedWhenConfigured(t *testing.T) {
	cfg := defaultConfig()
	cfg.AllowSynthetic = true
	d := New(cfg, logging.NewNop())
	t0 := time.Now()

	v := view("BTC-USD", t0,
		quote.Quote{Venue: "venueA", Symbol: "BTC-USD", Bid: 100, Ask: 101, ObservedAt: t0},
		quote.Quote{Venue: "venueB", Symbol: "BTC-USD", Bid: 103, Ask: 104, ObservedAt: t0, Synthetic: true},
	)

	_, ok := d.Detect(v)
	assert.True(t, ok)
}

func TestDeriveID_Deterministic(t *testing.T) {
	at := time.Now()
	id1 := deriveID("BTC-USD", "venueA", "venueB", at)
	id2 := deriveID("BTC-USD", "venueA", "venueB", at)
	assert.Equal(t, id1, id2)

	id3 := deriveID("BTC-USD", "venueB", "venueA", at)
	assert.NotEqual(t, id1, id3)
}

func TestRecent_SortedDescendingAndLimited(t *testing.T) {
	d := New(defaultConfig(), logging.NewNop())
	t0 := time.Now()

	d.Detect(view("BTC-USD", t0,
		quote.Quote{Venue: "venueA", Symbol: "BTC-USD", Bid: 100, Ask: 101, ObservedAt: t0},
		quote.Quote{Venue: "venueB", Symbol: "BTC-USD", Bid: 103, Ask: 104, ObservedAt: t0},
	))
	t1 := t0.Add(2 * time.Second)
	d.Detect(view("ETH-USD", t1,
		quote.Quote{Venue: "venueA", Symbol: "ETH-USD", Bid: 100, Ask: 101, ObservedAt: t1},
		quote.Quote{Venue: "venueB", Symbol: "ETH-USD", Bid: 103, Ask: 104, ObservedAt: t1},
	))

	recent := d.Recent(1)
	require.Len(t, recent, 1)
	assert.Equal(t, quote.Symbol("ETH-USD"), recent[0].Symbol)
}
