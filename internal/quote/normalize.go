package quote

import "strings"

// aliasTable maps historically inconsistent venue base tickers to the
// canonical base the rest of the system expects. Populated once and
// never mutated, so lookups need no lock.
var aliasTable = map[string]string{
	"XBT":     "BTC-USD",
	"XBTUSD":  "BTC-USD",
	"WETH":    "ETH-USD",
	"WBTC":    "BTC-USD",
	"1000BONK": "BONK-USD",
	"1000PEPE": "PEPE-USD",
	"1000SHIB": "SHIB-USD",
}

// suffixes are stripped from a raw symbol in a single pass, longest
// match first so "-USD-PERP" doesn't leave a dangling "-PERP" because
// "-USD" matched first.
var suffixes = []string{
	"-USD-PERP",
	"_USD_PERP",
	"-USDC-PERP",
	"_PERP",
	"-PERP",
	"PERP",
	"_USDC",
	"-USDC",
	"USDT",
	"USD",
	"-USD",
}

// Normalize converts a venue-specific ticker into the canonical
// BASE-USD form.
//
// Rules, applied in order: (1) alias table lookup, (2) uppercase,
// (3) strip the longest matching suffix in a single pass, (4) append
// "-USD". A symbol already in BASE-USD form is a fixed point: stripping
// "-USD" and re-appending it is a no-op.
func Normalize(raw string) Symbol {
	trimmed := strings.TrimSpace(raw)
	if target, ok := aliasTable[strings.ToUpper(trimmed)]; ok {
		return Symbol(target)
	}

	upper := strings.ToUpper(trimmed)

	base := upper
	for _, suf := range suffixes {
		if strings.HasSuffix(base, suf) {
			base = strings.TrimSuffix(base, suf)
			break
		}
	}

	base = strings.Trim(base, "-_")
	if base == "" {
		base = upper
	}

	return Symbol(base + "-USD")
}
