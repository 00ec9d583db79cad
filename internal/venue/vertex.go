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

// VertexAdapter streams Vertex's incremental depth-delta channel: each
// message carries individual (price, size) level changes rather than
// a ready-made top-of-book quote, so this adapter maintains a
// topOfBookTracker per symbol and emits a Quote only once a delta
// leaves both sides populated.
type VertexAdapter struct {
	cfg    Config
	rc     *ReconnectManager
	logger *zap.SugaredLogger
	book   *topOfBookTracker

	quotes  chan quote.Quote
	cancel  context.CancelFunc
	symbols *symbolSet
}

func NewVertexAdapter(cfg Config, logger *zap.SugaredLogger) *VertexAdapter {
	return &VertexAdapter{
		cfg:     cfg,
		rc:      NewReconnectManager(cfg.Name, cfg.URL, DefaultReconnectConfig(), logger),
		logger:  logger,
		book:    newTopOfBookTracker(),
		quotes:  make(chan quote.Quote, 256),
		symbols: newSymbolSet(cfg.Symbols),
	}
}

func (a *VertexAdapter) Name() quote.VenueID            { return a.cfg.Name }
func (a *VertexAdapter) Transport() Transport            { return TransportStreaming }
func (a *VertexAdapter) Quotes() <-chan quote.Quote          { return a.quotes }
func (a *VertexAdapter) States() <-chan quote.ConnectionEvent { return a.rc.States() }

type vertexSubscribe struct {
	Type    string   `json:"type"`
	Product string   `json:"product_id"`
	Channel []string `json:"channels"`
}

type vertexDelta struct {
	Type    string `json:"type"`
	Product string `json:"product_id"`
	Levels  []struct {
		Side  string `json:"side"` // "bid" or "ask"
		Price string `json:"price"`
		Size  string `json:"size"`
	} `json:"levels"`
}

// vertexError is Vertex's shape for a rejected subscription: same
// envelope as a push, with an "error" type and a free-form message
// instead of levels.
type vertexError struct {
	Type    string `json:"type"`
	Product string `json:"product_id"`
	Message string `json:"message"`
}

func (a *VertexAdapter) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	for _, product := range a.cfg.Symbols {
		payload, err := json.Marshal(vertexSubscribe{
			Type:    "subscribe",
			Product: product,
			Channel: []string{"depth_delta"},
		})
		if err != nil {
			return fmt.Errorf("marshal subscription for %s: %w", product, err)
		}
		a.rc.AddSubscription(payload)
	}

	go a.rc.RunWithReconnect(runCtx, a.handleConn)
	go a.watchdog(runCtx)
	go a.rc.Heartbeat(runCtx, heartbeatInterval, vertexPingFrame)

	return nil
}

var vertexPingFrame = []byte(`{"type":"ping"}`)

func (a *VertexAdapter) handleConn(ctx context.Context, conn *websocket.Conn) error {
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

		var envelope struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(raw, &envelope); err != nil {
			a.logger.Debugw("parse error, dropping frame", "venue", a.cfg.Name, "error", err)
			continue
		}

		if envelope.Type == "error" {
			var errMsg vertexError
			if err := json.Unmarshal(raw, &errMsg); err == nil {
				a.handleSubscriptionError(errMsg.Product, errMsg.Message)
			}
			continue
		}

		var delta vertexDelta
		if err := json.Unmarshal(raw, &delta); err != nil {
			a.logger.Debugw("parse error, dropping frame", "venue", a.cfg.Name, "error", err)
			continue
		}
		if delta.Type != "depth_delta" || delta.Product == "" {
			continue
		}
		if !a.symbols.has(delta.Product) {
			continue
		}

		for _, lvl := range delta.Levels {
			price, priceOK := parseFloat(lvl.Price)
			size, sizeOK := parseFloat(lvl.Size)
			if !priceOK || !sizeOK {
				continue
			}
			a.book.applyLevel(delta.Product, lvl.Side == "bid", price, size)
		}

		bid, ask, ok := a.book.best(delta.Product)
		if !ok {
			continue
		}

		q := quote.Quote{
			Venue:      a.cfg.Name,
			Symbol:     quote.Normalize(delta.Product),
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

// handleSubscriptionError drops product from the working set and logs
// once, if it's still active; product is named directly by Vertex's
// error push so no substring search is needed.
func (a *VertexAdapter) handleSubscriptionError(product, message string) {
	if product == "" || !a.symbols.has(product) {
		a.logger.Debugw("venue error push", "venue", a.cfg.Name, "product", product, "message", message)
		return
	}

	if a.symbols.drop(product) {
		a.logger.Warnw("venue rejected symbol, dropping from working set",
			"venue", a.cfg.Name, "symbol", product, "error", newSubscriptionError(string(a.cfg.Name), message))
	}
}

func (a *VertexAdapter) watchdog(ctx context.Context) {
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

func (a *VertexAdapter) Stop() error {
	if a.cancel != nil {
		a.cancel()
	}
	return a.rc.Close()
}
