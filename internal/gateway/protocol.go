package gateway

import (
	"encoding/json"

	"venuemesh/internal/broadcaster"
	"venuemesh/internal/detector"
	"venuemesh/internal/quote"
)

// frame is the envelope every wire message is encoded as: a named
// event plus its JSON payload.
type frame struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Inbound event payloads, decoded from a client frame's Data field.
type subscribeSymbolsPayload struct {
	Symbols []string `json:"symbols"`
}

type unsubscribeSymbolsPayload struct {
	Symbols []string `json:"symbols"`
}

type subscribeExchangesPayload struct {
	Exchanges []string `json:"exchanges"`
}

type configUpdatePayload struct {
	MinSpread *float64 `json:"minSpread,omitempty"`
}

// Outbound event payloads.
type priceUpdatePayload struct {
	Updates []broadcaster.PriceUpdate `json:"updates"`
}

type exchangeEventPayload struct {
	Exchange string `json:"exchange"`
}

type exchangeErrorPayload struct {
	Exchange    string `json:"exchange"`
	Error       string `json:"error"`
	BreakerOpen bool   `json:"breakerOpen"`
}

type configRejectedPayload struct {
	Reason string `json:"reason"`
}

const (
	eventPriceUpdate          = "price:update"
	eventArbitrageOpportunity = "arbitrage:opportunity"
	eventArbitrageStats       = "arbitrage:stats"
	eventExchangeConnected    = "exchange:connected"
	eventExchangeDisconnected = "exchange:disconnected"
	eventExchangeError        = "exchange:error"
	eventConfigRejected       = "config:update:rejected"

	eventSubscribeSymbols   = "subscribe:symbols"
	eventUnsubscribeSymbols = "unsubscribe:symbols"
	eventSubscribeExchanges = "subscribe:exchanges"
	eventConfigUpdate       = "config:update"
)

func encodeFrame(eventType string, data interface{}) ([]byte, error) {
	return json.Marshal(frame{Type: eventType, Data: data})
}

func connectionEventType(s quote.ConnectionState) string {
	switch s {
	case quote.StateOpen:
		return eventExchangeConnected
	case quote.StateClosed, quote.StateDegraded:
		return eventExchangeDisconnected
	default:
		return eventExchangeConnected
	}
}

func opportunityPayload(o detector.Opportunity) map[string]interface{} {
	return map[string]interface{}{
		"id":              o.ID,
		"symbol":          o.Symbol,
		"buyVenue":        o.BuyVenue,
		"sellVenue":       o.SellVenue,
		"buyPrice":        o.BuyPrice,
		"sellPrice":       o.SellPrice,
		"spreadPct":       o.SpreadPct,
		"potentialProfit": o.PotentialProfit,
		"detectedAt":      o.DetectedAt.UnixMilli(),
	}
}
