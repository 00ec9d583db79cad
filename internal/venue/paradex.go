package venue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"venuemesh/internal/quote"
)

// ParadexAdapter streams Paradex's JSON-RPC-style bbo channel. Paradex
// wraps every push in a generic {method, params} envelope rather than
// a flat typed message, so parsing here is a two-step unmarshal.
type ParadexAdapter struct {
	cfg    Config
	rc     *ReconnectManager
	logger *zap.SugaredLogger

	quotes  chan quote.Quote
	cancel  context.CancelFunc
	nextID  int
	symbols *symbolSet
}

func NewParadexAdapter(cfg Config, logger *zap.SugaredLogger) *ParadexAdapter {
	return &ParadexAdapter{
		cfg:     cfg,
		rc:      NewReconnectManager(cfg.Name, cfg.URL, DefaultReconnectConfig(), logger),
		logger:  logger,
		quotes:  make(chan quote.Quote, 256),
		symbols: newSymbolSet(cfg.Symbols),
	}
}

func (a *ParadexAdapter) Name() quote.VenueID            { return a.cfg.Name }
func (a *ParadexAdapter) Transport() Transport            { return TransportStreaming }
func (a *ParadexAdapter) Quotes() <-chan quote.Quote          { return a.quotes }
func (a *ParadexAdapter) States() <-chan quote.ConnectionEvent { return a.rc.States() }

type paradexRPCSubscribe struct {
	JSONRPC string                 `json:"jsonrpc"`
	ID      int                    `json:"id"`
	Method  string                 `json:"method"`
	Params  map[string]interface{} `json:"params"`
}

type paradexPush struct {
	Method string `json:"method"`
	Params struct {
		Channel string `json:"channel"`
		Data    struct {
			Market string `json:"market"`
			Bid    string `json:"bid"`
			Ask    string `json:"ask"`
		} `json:"data"`
	} `json:"params"`
}

// paradexRPCResponse is the shape of a subscription acknowledgement:
// a JSON-RPC response correlated to paradexRPCSubscribe.ID, carrying
// either a result or an error. Pushes (paradexPush) have no ID field
// and never decode into this with a non-nil Error.
type paradexRPCResponse struct {
	ID    *int `json:"id"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (a *ParadexAdapter) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	for _, market := range a.cfg.Symbols {
		a.nextID++
		payload, err := json.Marshal(paradexRPCSubscribe{
			JSONRPC: "2.0",
			ID:      a.nextID,
			Method:  "subscribe",
			Params:  map[string]interface{}{"channel": fmt.Sprintf("bbo.%s", market)},
		})
		if err != nil {
			return fmt.Errorf("marshal subscription for %s: %w", market, err)
		}
		a.rc.AddSubscription(payload)
	}

	go a.rc.RunWithReconnect(runCtx, a.handleConn)
	go a.watchdog(runCtx)
	go a.rc.Heartbeat(runCtx, heartbeatInterval, paradexPingFrame)

	return nil
}

var paradexPingFrame = []byte(`{"jsonrpc":"2.0","method":"ping"}`)

func (a *ParadexAdapter) handleConn(ctx context.Context, conn *websocket.Conn) error {
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

		var resp paradexRPCResponse
		if err := json.Unmarshal(raw, &resp); err == nil && resp.ID != nil && resp.Error != nil {
			a.handleSubscriptionError(resp.Error.Message)
			continue
		}

		var push paradexPush
		if err := json.Unmarshal(raw, &push); err != nil {
			a.logger.Debugw("parse error, dropping frame", "venue", a.cfg.Name, "error", err)
			continue
		}
		if push.Method != "subscription" || push.Params.Data.Market == "" {
			continue
		}
		if !a.symbols.has(push.Params.Data.Market) {
			continue
		}

		bid, bidOK := parseFloat(push.Params.Data.Bid)
		ask, askOK := parseFloat(push.Params.Data.Ask)
		if !bidOK || !askOK {
			continue
		}

		q := quote.Quote{
			Venue:      a.cfg.Name,
			Symbol:     quote.Normalize(push.Params.Data.Market),
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

// handleSubscriptionError inspects a JSON-RPC error message for one of
// this adapter's requested markets and, if found, drops it from the
// working set and logs once. The adapter keeps streaming any markets
// that still subscribed successfully.
func (a *ParadexAdapter) handleSubscriptionError(message string) {
	market, found := a.symbols.findKnown(message)
	if !found {
		a.logger.Debugw("venue rpc error", "venue", a.cfg.Name, "message", message)
		return
	}

	if a.symbols.drop(market) {
		a.logger.Warnw("venue rejected symbol, dropping from working set",
			"venue", a.cfg.Name, "symbol", market, "error", newSubscriptionError(string(a.cfg.Name), message))
	}
}

func (a *ParadexAdapter) watchdog(ctx context.Context) {
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

func (a *ParadexAdapter) Stop() error {
	if a.cancel != nil {
		a.cancel()
	}
	return a.rc.Close()
}
