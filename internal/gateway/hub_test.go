package gateway

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"venuemesh/internal/broadcaster"
	"venuemesh/internal/detector"
	"venuemesh/pkg/logging"
)

type fakeConfigApplier struct {
	cfg      detector.Config
	updated  detector.Config
	updateCt int
}

func (f *fakeConfigApplier) CurrentConfig() detector.Config { return f.cfg }
func (f *fakeConfigApplier) UpdateConfig(c detector.Config) {
	f.updated = c
	f.updateCt++
}

func newTestHubAndClient() (*Hub, *client, *fakeConfigApplier) {
	b := broadcaster.New(time.Hour, 10000, logging.NewNop())
	applier := &fakeConfigApplier{cfg: detector.Config{MinSpreadPct: 0.1, MaxRealisticSpreadPct: 5}}
	h := NewHub(b, applier, "*", logging.NewNop())

	c := &client{hub: h, send: make(chan []byte, 8)}
	c.sub = newSubscriber(c)

	return h, c, applier
}

func drainFrame(t *testing.T, c *client) []byte {
	t.Helper()
	select {
	case msg := <-c.send:
		return msg
	default:
		t.Fatal("expected a frame on the send buffer, found none")
		return nil
	}
}

func TestHandleInbound_SubscribeSymbolsSetsFilter(t *testing.T) {
	_, c, _ := newTestHubAndClient()
	h := c.hub

	h.handleInbound(c, []byte(`{"type":"subscribe:symbols","data":{"symbols":["BTC-USD"]}}`))

	assert.True(t, c.sub.MatchesSymbol("BTC-USD"))
	assert.False(t, c.sub.MatchesSymbol("ETH-USD"))
}

func TestHandleInbound_UnsubscribeSymbolsRemovesFromFilter(t *testing.T) {
	_, c, _ := newTestHubAndClient()
	h := c.hub

	h.handleInbound(c, []byte(`{"type":"subscribe:symbols","data":{"symbols":["BTC-USD","ETH-USD"]}}`))
	h.handleInbound(c, []byte(`{"type":"unsubscribe:symbols","data":{"symbols":["BTC-USD"]}}`))

	assert.False(t, c.sub.MatchesSymbol("BTC-USD"))
	assert.True(t, c.sub.MatchesSymbol("ETH-USD"))
}

func TestHandleInbound_SubscribeExchangesSetsVenueFilter(t *testing.T) {
	_, c, _ := newTestHubAndClient()
	h := c.hub

	h.handleInbound(c, []byte(`{"type":"subscribe:exchanges","data":{"exchanges":["hyperliquid"]}}`))

	assert.True(t, c.sub.MatchesVenue("hyperliquid"))
	assert.False(t, c.sub.MatchesVenue("paradex"))
}

func TestHandleInbound_MalformedFrameIsIgnored(t *testing.T) {
	_, c, _ := newTestHubAndClient()
	h := c.hub

	assert.NotPanics(t, func() {
		h.handleInbound(c, []byte(`not json`))
	})
}

func TestHandleInbound_UnrecognizedTypeIsIgnored(t *testing.T) {
	_, c, _ := newTestHubAndClient()
	h := c.hub

	assert.NotPanics(t, func() {
		h.handleInbound(c, []byte(`{"type":"something:else","data":{}}`))
	})
}

func TestApplyConfigUpdate_AppliesInRangeValue(t *testing.T) {
	h, c, applier := newTestHubAndClient()

	h.handleInbound(c, []byte(`{"type":"config:update","data":{"minSpread":0.5}}`))

	require.Equal(t, 1, applier.updateCt)
	assert.InDelta(t, 0.5, applier.updated.MinSpreadPct, 0.0001)
}

func TestApplyConfigUpdate_RejectsOutOfRangeValue(t *testing.T) {
	h, c, applier := newTestHubAndClient()

	h.handleInbound(c, []byte(`{"type":"config:update","data":{"minSpread":10}}`))

	assert.Equal(t, 0, applier.updateCt)
	frame := drainFrame(t, c)
	assert.Contains(t, string(frame), "config:update:rejected")
}

func TestApplyConfigUpdate_RejectsZeroValue(t *testing.T) {
	h, c, applier := newTestHubAndClient()

	h.handleInbound(c, []byte(`{"type":"config:update","data":{"minSpread":0}}`))

	assert.Equal(t, 0, applier.updateCt)
	drainFrame(t, c)
}

func TestApplyConfigUpdate_MissingFieldIsNoOp(t *testing.T) {
	h, c, applier := newTestHubAndClient()

	h.handleInbound(c, []byte(`{"type":"config:update","data":{}}`))

	assert.Equal(t, 0, applier.updateCt)
}

func TestClientCount(t *testing.T) {
	h, c, _ := newTestHubAndClient()
	assert.Equal(t, 0, h.ClientCount())

	h.register(c)
	assert.Equal(t, 1, h.ClientCount())

	h.unregister(c)
	assert.Equal(t, 0, h.ClientCount())
}
