package venue

import "sync"

// topOfBookTracker maintains enough of a level-2 order book to derive
// best bid/ask for one symbol, for venues that publish incremental
// depth diffs rather than top-of-book quotes directly.
//
// Nudging the best by a fixed offset when the top level disappears is
// only an approximation; this tracks every live price level instead
// and re-derives the best by scanning on removal, which is correct
// rather than approximate. Real venue books are deep, but the best
// bid/ask only ever needs the
// live levels currently known to this adapter, which in practice stay
// in the tens per symbol.
type topOfBookTracker struct {
	mu   sync.Mutex
	bids map[string]map[float64]float64 // symbol -> price -> size
	asks map[string]map[float64]float64
}

func newTopOfBookTracker() *topOfBookTracker {
	return &topOfBookTracker{
		bids: make(map[string]map[float64]float64),
		asks: make(map[string]map[float64]float64),
	}
}

// applyLevel updates one side of one symbol's book. A size of zero
// invalidates and removes the level; a nonzero size sets or replaces it.
func (t *topOfBookTracker) applyLevel(symbol string, isBid bool, price, size float64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	side := t.asks
	if isBid {
		side = t.bids
	}

	levels, ok := side[symbol]
	if !ok {
		levels = make(map[float64]float64)
		side[symbol] = levels
	}

	if size <= 0 {
		delete(levels, price)
		return
	}
	levels[price] = size
}

// best returns (bestBid, bestAsk, ok). ok is false unless both sides
// currently have at least one live level; callers should only emit a
// quote when both sides are present.
func (t *topOfBookTracker) best(symbol string) (bid, ask float64, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	bidLevels := t.bids[symbol]
	askLevels := t.asks[symbol]
	if len(bidLevels) == 0 || len(askLevels) == 0 {
		return 0, 0, false
	}

	bestBid := 0.0
	for price := range bidLevels {
		if price > bestBid {
			bestBid = price
		}
	}

	bestAsk := 0.0
	for price := range askLevels {
		if bestAsk == 0 || price < bestAsk {
			bestAsk = price
		}
	}

	return bestBid, bestAsk, true
}
