package utils

import "math"

// CalculateSpread returns the percentage spread between two prices:
// (priceHigh - priceLow) / priceLow * 100. Returns 0 if priceLow is 0
// rather than propagating +Inf/NaN into a detector or wire payload.
func CalculateSpread(priceHigh, priceLow float64) float64 {
	if priceLow == 0 {
		return 0
	}
	return (priceHigh - priceLow) / priceLow * 100
}

// CalculateNetSpread subtracts round-trip venue fees from a gross
// spread: spread - 2*(feeA + feeB), since crossing an arbitrage
// requires one taker fill on each side.
func CalculateNetSpread(grossSpreadPct, feeAPct, feeBPct float64) float64 {
	return grossSpreadPct - 2*(feeAPct+feeBPct)
}

// RoundToLotSize rounds a quantity down to the nearest multiple of
// lotSize, matching how a venue would reject or truncate an order
// size that isn't lot-aligned. lotSize <= 0 returns qty unchanged.
func RoundToLotSize(qty, lotSize float64) float64 {
	if lotSize <= 0 {
		return qty
	}
	return math.Floor(qty/lotSize) * lotSize
}

// CalculateWeightedAverage returns the size-weighted average of
// prices, used to estimate the fill price of an order that walks
// multiple book levels. Returns 0 for mismatched or empty slices.
func CalculateWeightedAverage(prices, sizes []float64) float64 {
	if len(prices) == 0 || len(prices) != len(sizes) {
		return 0
	}

	var weightedSum, totalSize float64
	for i, p := range prices {
		weightedSum += p * sizes[i]
		totalSize += sizes[i]
	}

	if totalSize == 0 {
		return 0
	}
	return weightedSum / totalSize
}
