package detector

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"venuemesh/internal/quote"
	"venuemesh/internal/telemetry"
)

// Config holds the detector's tunable thresholds, all replaceable at
// runtime via UpdateConfig (the gateway's config:update event).
type Config struct {
	MinSpreadPct          float64
	MaxRealisticSpreadPct float64
	MaxPriceAgeForArb     time.Duration
	Cooldown              time.Duration
	HistoryTTL            time.Duration
	AllowSynthetic        bool
}

type historyEntry struct {
	opportunity Opportunity
}

// Detector turns aggregated cross-venue views into arbitrage
// opportunities, applying freshness, sanity, and cooldown guards.
type Detector struct {
	mu      sync.Mutex
	cfg     Config
	history map[string]historyEntry // key: symbol|buyVenue|sellVenue
	logger  *zap.SugaredLogger
}

// New builds a Detector with the given starting configuration.
func New(cfg Config, logger *zap.SugaredLogger) *Detector {
	return &Detector{
		cfg:     cfg,
		history: make(map[string]historyEntry),
		logger:  logger,
	}
}

func historyKey(symbol quote.Symbol, buy, sell quote.VenueID) string {
	return string(symbol) + "|" + string(buy) + "|" + string(sell)
}

// Detect evaluates one AggregatedView against every eligibility rule
// in order and returns the emitted Opportunity, or ok=false if any rule
// rejected the candidate.
func (d *Detector) Detect(view quote.AggregatedView) (Opportunity, bool) {
	if len(view.Quotes) < 2 {
		return Opportunity{}, false
	}
	if view.BestBid.Price <= view.BestAsk.Price {
		return Opportunity{}, false
	}
	if view.BestBid.Venue == view.BestAsk.Venue {
		return Opportunity{}, false
	}

	d.mu.Lock()
	cfg := d.cfg
	d.mu.Unlock()

	bidQuote, bidOK := findQuote(view.Quotes, view.BestBid.Venue)
	askQuote, askOK := findQuote(view.Quotes, view.BestAsk.Venue)
	if !bidOK || !askOK {
		return Opportunity{}, false
	}

	if !cfg.AllowSynthetic && (bidQuote.Synthetic || askQuote.Synthetic) {
		return Opportunity{}, false
	}

	now := view.ComputedAt
	if now.Sub(bidQuote.ObservedAt) > cfg.MaxPriceAgeForArb || now.Sub(askQuote.ObservedAt) > cfg.MaxPriceAgeForArb {
		d.logger.Debugw("skipping stale side", "symbol", view.Symbol)
		return Opportunity{}, false
	}

	buyPrice := view.BestAsk.Price
	sellPrice := view.BestBid.Price
	spreadPct := (sellPrice - buyPrice) / buyPrice * 100

	if spreadPct < cfg.MinSpreadPct {
		return Opportunity{}, false
	}
	if spreadPct > cfg.MaxRealisticSpreadPct {
		d.logger.Warnw("rejecting suspected bad quote", "symbol", view.Symbol, "spread_pct", spreadPct)
		return Opportunity{}, false
	}

	key := historyKey(view.Symbol, view.BestAsk.Venue, view.BestBid.Venue)

	d.mu.Lock()
	defer d.mu.Unlock()

	if prev, ok := d.history[key]; ok {
		if now.Sub(prev.opportunity.DetectedAt) < d.cfg.Cooldown {
			return Opportunity{}, false
		}
	}

	opp := Opportunity{
		ID:              deriveID(view.Symbol, view.BestAsk.Venue, view.BestBid.Venue, now),
		Symbol:          view.Symbol,
		BuyVenue:        view.BestAsk.Venue,
		SellVenue:       view.BestBid.Venue,
		BuyPrice:        buyPrice,
		SellPrice:       sellPrice,
		SpreadPct:       spreadPct,
		PotentialProfit: sellPrice - buyPrice,
		DetectedAt:      now,
	}

	d.history[key] = historyEntry{opportunity: opp}
	telemetry.RecordOpportunity(string(opp.Symbol), opp.SpreadPct)
	return opp, true
}

func findQuote(quotes []quote.Quote, venue quote.VenueID) (quote.Quote, bool) {
	for _, q := range quotes {
		if q.Venue == venue {
			return q, true
		}
	}
	return quote.Quote{}, false
}

// UpdateConfig atomically replaces the detector's thresholds. The
// gateway validates the partial payload (0 < minSpread < maxRealistic)
// before calling this, so Detector itself trusts its input.
func (d *Detector) UpdateConfig(cfg Config) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cfg = cfg
}

// CurrentConfig returns a copy of the active thresholds, used by the
// gateway to validate a partial config:update before applying it.
func (d *Detector) CurrentConfig() Config {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cfg
}

// Recent returns up to limit opportunities, most recently detected
// first.
func (d *Detector) Recent(limit int) []Opportunity {
	d.mu.Lock()
	all := make([]Opportunity, 0, len(d.history))
	for _, e := range d.history {
		all = append(all, e.opportunity)
	}
	d.mu.Unlock()

	sort.Slice(all, func(i, j int) bool { return all[i].DetectedAt.After(all[j].DetectedAt) })

	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all
}

// RunSweeper removes history entries older than HistoryTTL on a
// fixed cadence until done is closed.
func (d *Detector) RunSweeper(done <-chan struct{}, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			d.sweep()
		}
	}
}

func (d *Detector) sweep() {
	now := time.Now()

	d.mu.Lock()
	defer d.mu.Unlock()

	for key, e := range d.history {
		if now.Sub(e.opportunity.DetectedAt) > d.cfg.HistoryTTL {
			delete(d.history, key)
		}
	}
}
