// Package detector consumes AggregatedViews and emits Opportunities
// under freshness, sanity, and cooldown guards.
package detector

import (
	"encoding/hex"
	"fmt"
	"time"

	"golang.org/x/crypto/blake2b"

	"venuemesh/internal/quote"
)

// Opportunity is a cross-venue pricing condition: the best bid on one
// venue strictly exceeds the best ask on another by at least the
// configured minimum spread, under every sanity guard.
type Opportunity struct {
	ID              string
	Symbol          quote.Symbol
	BuyVenue        quote.VenueID
	SellVenue       quote.VenueID
	BuyPrice        float64
	SellPrice       float64
	SpreadPct       float64
	PotentialProfit float64
	DetectedAt      time.Time
}

// deriveID computes a deterministic Opportunity.ID from the fields
// that define the event, so replays and dedup tests can assert on the
// exact ID rather than treating it as opaque. The teacher module uses
// golang.org/x/crypto for bcrypt/AES work that has no equivalent in
// this domain; blake2b is the part of that same module that fits here.
func deriveID(symbol quote.Symbol, buyVenue, sellVenue quote.VenueID, detectedAt time.Time) string {
	sum := blake2b.Sum256([]byte(fmt.Sprintf("%s|%s|%s|%d", symbol, buyVenue, sellVenue, detectedAt.UnixNano())))
	return hex.EncodeToString(sum[:16])
}
