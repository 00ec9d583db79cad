package venue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"venuemesh/internal/quote"
)

// HyperliquidAdapter streams Hyperliquid's L1 best-bid-offer channel.
// Hyperliquid sends top-of-book directly, so this adapter needs no
// book-tracking state beyond the reconnect manager's watchdog.
type HyperliquidAdapter struct {
	cfg    Config
	rc     *ReconnectManager
	logger *zap.SugaredLogger

	quotes chan quote.Quote
	cancel context.CancelFunc

	symbols *symbolSet
}

// NewHyperliquidAdapter constructs the adapter for the given symbol set.
func NewHyperliquidAdapter(cfg Config, logger *zap.SugaredLogger) *HyperliquidAdapter {
	return &HyperliquidAdapter{
		cfg:     cfg,
		rc:      NewReconnectManager(cfg.Name, cfg.URL, DefaultReconnectConfig(), logger),
		logger:  logger,
		quotes:  make(chan quote.Quote, 256),
		symbols: newSymbolSet(cfg.Symbols),
	}
}

func (a *HyperliquidAdapter) Name() quote.VenueID   { return a.cfg.Name }
func (a *HyperliquidAdapter) Transport() Transport  { return TransportStreaming }
func (a *HyperliquidAdapter) Quotes() <-chan quote.Quote          { return a.quotes }
func (a *HyperliquidAdapter) States() <-chan quote.ConnectionEvent { return a.rc.States() }

type hyperliquidSubscribe struct {
	Method       string                 `json:"method"`
	Subscription map[string]interface{} `json:"subscription"`
}

type hyperliquidBBOMessage struct {
	Channel string `json:"channel"`
	Data    struct {
		Coin string     `json:"coin"`
		BBO  [2]l1Level `json:"bbo"`
	} `json:"data"`
}

// hyperliquidEnvelope is unmarshaled first to route between the BBO
// push shape and an error/ack push, which Hyperliquid reports on the
// "error" channel as a free-form string.
type hyperliquidEnvelope struct {
	Channel string          `json:"channel"`
	Data    json.RawMessage `json:"data"`
}

type l1Level struct {
	Px string `json:"px"`
	Sz string `json:"sz"`
}

func (a *HyperliquidAdapter) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	for _, coin := range a.symbols.list() {
		payload, err := json.Marshal(hyperliquidSubscribe{
			Method: "subscribe",
			Subscription: map[string]interface{}{
				"type": "bbo",
				"coin": coin,
			},
		})
		if err != nil {
			return fmt.Errorf("marshal subscription for %s: %w", coin, err)
		}
		a.rc.AddSubscription(payload)
	}

	go a.rc.RunWithReconnect(runCtx, a.handleConn)
	go a.watchdog(runCtx)
	go a.rc.Heartbeat(runCtx, heartbeatInterval, hyperliquidPingFrame)

	return nil
}

var hyperliquidPingFrame = []byte(`{"method":"ping"}`)

func (a *HyperliquidAdapter) handleConn(ctx context.Context, conn *websocket.Conn) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		_, raw, err := conn.ReadMessage()
		if err != nil {
			return newTransportError(string(a.cfg.Name), "read failed", err)
		}
		a.rc.Touch()

		var env hyperliquidEnvelope
		if err := json.Unmarshal(raw, &env); err != nil {
			a.logger.Debugw("parse error, dropping frame", "venue", a.cfg.Name, "error", err)
			continue
		}

		if env.Channel == "error" {
			a.handleSubscriptionError(env.Data)
			continue
		}

		if env.Channel != "bbo" {
			continue
		}

		var msg hyperliquidBBOMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			a.logger.Debugw("parse error, dropping frame", "venue", a.cfg.Name, "error", err)
			continue
		}
		if msg.Data.Coin == "" {
			continue
		}
		if !a.symbols.has(msg.Data.Coin) {
			continue
		}

		bid, askOK1 := parseFloat(msg.Data.BBO[0].Px)
		ask, askOK2 := parseFloat(msg.Data.BBO[1].Px)
		if !askOK1 || !askOK2 {
			continue
		}

		q := quote.Quote{
			Venue:      a.cfg.Name,
			Symbol:     quote.Normalize(msg.Data.Coin),
			Bid:        bid,
			Ask:        ask,
			ObservedAt: time.Now(),
		}
		if !q.Valid() {
			continue
		}

		select {
		case a.quotes <- q:
		case <-ctx.Done():
			return nil
		default:
			a.logger.Warnw("dropped quote, adapter output full", "venue", a.cfg.Name)
		}
	}
}

// handleSubscriptionError inspects a Hyperliquid "error" channel push
// for a mention of one of this adapter's requested coins and, if
// found, drops that coin from the working set and logs once. Unrelated
// errors are logged and otherwise ignored; the adapter keeps running.
func (a *HyperliquidAdapter) handleSubscriptionError(data json.RawMessage) {
	var msg string
	if err := json.Unmarshal(data, &msg); err != nil {
		msg = string(data)
	}

	coin, found := a.symbols.findKnown(msg)
	if !found {
		a.logger.Debugw("venue error push", "venue", a.cfg.Name, "message", msg)
		return
	}

	if a.symbols.drop(coin) {
		a.logger.Warnw("venue rejected symbol, dropping from working set",
			"venue", a.cfg.Name, "symbol", coin, "error", newSubscriptionError(string(a.cfg.Name), msg))
	}
}

func (a *HyperliquidAdapter) watchdog(ctx context.Context) {
	ticker := time.NewTicker(3 * time.Second)
	defer ticker.Stop()

	cfg := DefaultReconnectConfig()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if a.rc.IdleFor() > cfg.WatchdogIdle {
				a.logger.Warnw("watchdog idle timeout, forcing reconnect", "venue", a.cfg.Name, "idle", a.rc.IdleFor())
				a.rc.ForceReconnect()
			}
		}
	}
}

func (a *HyperliquidAdapter) Stop() error {
	if a.cancel != nil {
		a.cancel()
	}
	return a.rc.Close()
}

func parseFloat(s string) (float64, bool) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
