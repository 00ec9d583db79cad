// Package gateway accepts client WebSocket connections, tracks each
// connection's subscription filter, and bridges inbound config
// updates to the detector.
package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"venuemesh/internal/broadcaster"
	"venuemesh/internal/detector"
	"venuemesh/internal/telemetry"
)

// ConfigApplier is the subset of *detector.Detector the gateway needs
// to service a config:update frame.
type ConfigApplier interface {
	CurrentConfig() detector.Config
	UpdateConfig(detector.Config)
}

// Hub tracks every connected client and wires inbound frames to the
// detector's configuration.
type Hub struct {
	mu      sync.RWMutex
	clients map[*client]struct{}

	broadcaster *broadcaster.Broadcaster
	detector    ConfigApplier
	origin      *originChecker
	logger      *zap.SugaredLogger
}

// NewHub builds a Hub. clientCORSOrigin is a comma-separated allow
// list, or "*"/"" to allow any origin.
func NewHub(b *broadcaster.Broadcaster, d ConfigApplier, clientCORSOrigin string, logger *zap.SugaredLogger) *Hub {
	return &Hub{
		clients:     make(map[*client]struct{}),
		broadcaster: b,
		detector:    d,
		origin:      newOriginChecker(clientCORSOrigin),
		logger:      logger,
	}
}

// ServeHTTP upgrades the request to a WebSocket connection and starts
// the client's read/write pumps.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:    4096,
		WriteBufferSize:   4096,
		EnableCompression: true,
		CheckOrigin:       func(r *http.Request) bool { return h.origin.check(r.Header.Get("Origin")) },
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warnw("websocket upgrade failed", "error", err)
		return
	}

	c := newClient(h, conn)
	h.register(c)
	h.broadcaster.Subscribe(c.sub)

	go c.writePump()
	go c.readPump()
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	count := len(h.clients)
	h.mu.Unlock()
	telemetry.ConnectedClients.Set(float64(count))
	h.logger.Debugw("client connected", "total", count)
}

// unregister drops c from the hub and closes its connection, which is
// what actually unwinds readPump/writePump; the client returns to the
// pool once both pumps have observed that closure and called pumpDone.
// Safe to call twice for the same client (readPump's own exit and a
// concurrent dropSlowClient both reach here) — the second call is a
// no-op past the membership check.
func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	_, existed := h.clients[c]
	delete(h.clients, c)
	count := len(h.clients)
	h.mu.Unlock()

	if !existed {
		return
	}

	h.broadcaster.Unsubscribe(c.sub)
	if c.conn != nil {
		c.conn.Close()
	}
	telemetry.ConnectedClients.Set(float64(count))
	h.logger.Debugw("client disconnected", "total", count)
}

// dropSlowClient is called from enqueue when a client's send buffer is
// full; the client is unregistered rather than blocking the fan-out.
func (h *Hub) dropSlowClient(c *client) {
	h.logger.Warnw("dropping slow client", "reason", "send buffer full")
	h.unregister(c)
}

// ClientCount returns the number of currently connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// BroadcastStats fans a stats snapshot out to every connected client,
// bypassing per-subscriber filtering (stats are process-wide).
func (h *Hub) BroadcastStats(s broadcaster.Stats) {
	h.mu.RLock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		c.sendStats(s)
	}
}

// handleInbound decodes one client frame and applies its effect to
// the originating client's subscription filter, or forwards
// config:update to the detector.
func (h *Hub) handleInbound(c *client, raw []byte) {
	var in inboundFrame
	if err := json.Unmarshal(raw, &in); err != nil {
		h.logger.Debugw("malformed inbound frame", "error", err)
		return
	}

	switch in.Type {
	case eventSubscribeSymbols:
		var p subscribeSymbolsPayload
		if err := json.Unmarshal(in.Data, &p); err != nil {
			return
		}
		c.sub.filter.setSymbols(p.Symbols)

	case eventUnsubscribeSymbols:
		var p unsubscribeSymbolsPayload
		if err := json.Unmarshal(in.Data, &p); err != nil {
			return
		}
		c.sub.filter.removeSymbols(p.Symbols)

	case eventSubscribeExchanges:
		var p subscribeExchangesPayload
		if err := json.Unmarshal(in.Data, &p); err != nil {
			return
		}
		c.sub.filter.setVenues(p.Exchanges)

	case eventConfigUpdate:
		var p configUpdatePayload
		if err := json.Unmarshal(in.Data, &p); err != nil {
			return
		}
		h.applyConfigUpdate(c, p)

	default:
		h.logger.Debugw("unrecognized inbound event", "type", in.Type)
	}
}

// applyConfigUpdate range-checks a partial config:update before
// applying it atomically; out-of-range updates are rejected rather
// than silently ignored or clamped.
func (h *Hub) applyConfigUpdate(c *client, p configUpdatePayload) {
	if p.MinSpread == nil {
		return
	}

	cfg := h.detector.CurrentConfig()
	if *p.MinSpread <= 0 || *p.MinSpread >= cfg.MaxRealisticSpreadPct {
		c.sendConfigRejected(fmt.Sprintf("minSpread must be in (0, %v)", cfg.MaxRealisticSpreadPct))
		return
	}

	cfg.MinSpreadPct = *p.MinSpread
	h.detector.UpdateConfig(cfg)
}
