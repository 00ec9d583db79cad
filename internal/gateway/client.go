package gateway

import (
	"encoding/json"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"venuemesh/internal/broadcaster"
	"venuemesh/internal/detector"
	"venuemesh/internal/quote"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 65536
	sendBufferSize = 512
)

// originChecker restricts the WebSocket upgrade's Origin header to a
// configured allow-list, O(1) per request after construction.
type originChecker struct {
	allowed  map[string]struct{}
	allowAll bool
}

func newOriginChecker(clientCORSOrigin string) *originChecker {
	oc := &originChecker{allowed: make(map[string]struct{})}
	if clientCORSOrigin == "" || clientCORSOrigin == "*" {
		oc.allowAll = true
		return oc
	}
	for _, origin := range strings.Split(clientCORSOrigin, ",") {
		origin = strings.TrimSpace(origin)
		if origin != "" {
			oc.allowed[origin] = struct{}{}
		}
	}
	return oc
}

func (oc *originChecker) check(origin string) bool {
	if origin == "" {
		return true
	}
	if oc.allowAll {
		return true
	}
	_, ok := oc.allowed[origin]
	return ok
}

// clientPool reuses *client values across connections to avoid an
// allocation (and a fresh buffered channel) on every upgrade.
var clientPool = sync.Pool{
	New: func() interface{} {
		return &client{send: make(chan []byte, sendBufferSize)}
	},
}

// client is one connected WebSocket subscriber: the connection, its
// Subscriber filter state, and the outbound send buffer.
//
// send is never closed: readPump and writePump each hold their own
// local copy of conn and never observe send being closed out from
// under a reused client, and release only happens once pumpsRemaining
// (decremented by each pump as it exits) reaches zero, so the pooled
// struct is never handed to a new connection while either of its old
// pumps is still running.
type client struct {
	conn *websocket.Conn
	hub  *Hub
	sub  *Subscriber

	send chan []byte

	pumpsRemaining int32
}

func newClient(hub *Hub, conn *websocket.Conn) *client {
	c := clientPool.Get().(*client)
	c.conn = conn
	c.hub = hub
	for len(c.send) > 0 {
		<-c.send
	}
	c.sub = newSubscriber(c)
	c.pumpsRemaining = 2
	return c
}

func (c *client) release() {
	c.conn = nil
	c.hub = nil
	c.sub = nil
	for len(c.send) > 0 {
		<-c.send
	}
	clientPool.Put(c)
}

// pumpDone is called by readPump and writePump as each exits; the
// second call releases the client back to the pool.
func (c *client) pumpDone() {
	if atomic.AddInt32(&c.pumpsRemaining, -1) == 0 {
		c.release()
	}
}

// Sink implementation — called by the Broadcaster from its own
// goroutine, so encoding happens off the client's read/write pumps.

func (c *client) SendPriceUpdate(batch []broadcaster.PriceUpdate) {
	c.enqueue(eventPriceUpdate, priceUpdatePayload{Updates: batch})
}

func (c *client) SendOpportunity(o detector.Opportunity) {
	c.enqueue(eventArbitrageOpportunity, opportunityPayload(o))
}

func (c *client) SendConnectionEvent(e quote.ConnectionEvent) {
	if e.State == quote.StateDegraded || e.Err != nil {
		msg := ""
		if e.Err != nil {
			msg = e.Err.Error()
		}
		c.enqueue(eventExchangeError, exchangeErrorPayload{Exchange: string(e.Venue), Error: msg, BreakerOpen: e.BreakerOpen})
		return
	}
	c.enqueue(connectionEventType(e.State), exchangeEventPayload{Exchange: string(e.Venue)})
}

func (c *client) sendStats(s broadcaster.Stats) {
	c.enqueue(eventArbitrageStats, s)
}

func (c *client) sendConfigRejected(reason string) {
	c.enqueue(eventConfigRejected, configRejectedPayload{Reason: reason})
}

func (c *client) enqueue(eventType string, data interface{}) {
	encoded, err := encodeFrame(eventType, data)
	if err != nil {
		c.hub.logger.Warnw("failed to encode outbound frame", "type", eventType, "error", err)
		return
	}
	select {
	case c.send <- encoded:
	default:
		c.hub.dropSlowClient(c)
	}
}

// readPump decodes inbound frames and applies them to the client's
// subscription state or forwards config:update to the detector.
func (c *client) readPump() {
	conn := c.conn
	defer func() {
		c.hub.unregister(c)
		conn.Close()
		c.pumpDone()
	}()

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Debugw("websocket read error", "error", err)
			}
			return
		}
		c.hub.handleInbound(c, message)
	}
}

// writePump drains the send buffer to the socket and keeps the
// connection alive with periodic pings.
func (c *client) writePump() {
	conn := c.conn
	send := c.send
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
		c.pumpDone()
	}()

	for {
		select {
		case message := <-send:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

type inboundFrame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}
