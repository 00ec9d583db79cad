package venue

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTopOfBookTracker_BestRequiresBothSides(t *testing.T) {
	tr := newTopOfBookTracker()

	_, _, ok := tr.best("BTC-PERP")
	assert.False(t, ok, "no levels yet")

	tr.applyLevel("BTC-PERP", true, 100, 1)
	_, _, ok = tr.best("BTC-PERP")
	assert.False(t, ok, "bid only, no ask yet")

	tr.applyLevel("BTC-PERP", false, 101, 1)
	bid, ask, ok := tr.best("BTC-PERP")
	assert.True(t, ok)
	assert.Equal(t, 100.0, bid)
	assert.Equal(t, 101.0, ask)
}

func TestTopOfBookTracker_RemovalReDerivesBest(t *testing.T) {
	tr := newTopOfBookTracker()

	tr.applyLevel("ETH-PERP", true, 50, 2)
	tr.applyLevel("ETH-PERP", true, 49, 3)
	tr.applyLevel("ETH-PERP", false, 51, 2)

	bid, ask, ok := tr.best("ETH-PERP")
	assert.True(t, ok)
	assert.Equal(t, 50.0, bid)
	assert.Equal(t, 51.0, ask)

	// Removing the top bid level must fall back to the next best live
	// level, not nudge the old best by a fixed offset.
	tr.applyLevel("ETH-PERP", true, 50, 0)
	bid, ask, ok = tr.best("ETH-PERP")
	assert.True(t, ok)
	assert.Equal(t, 49.0, bid)
	assert.Equal(t, 51.0, ask)
}

func TestTopOfBookTracker_IndependentSymbols(t *testing.T) {
	tr := newTopOfBookTracker()

	tr.applyLevel("BTC-PERP", true, 100, 1)
	tr.applyLevel("BTC-PERP", false, 101, 1)
	tr.applyLevel("ETH-PERP", true, 50, 1)

	_, _, ok := tr.best("ETH-PERP")
	assert.False(t, ok, "ETH-PERP has no ask yet")

	bid, ask, ok := tr.best("BTC-PERP")
	assert.True(t, ok)
	assert.Equal(t, 100.0, bid)
	assert.Equal(t, 101.0, ask)
}
