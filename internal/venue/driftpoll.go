package venue

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"venuemesh/internal/quote"
	"venuemesh/pkg/ratelimit"
	"venuemesh/pkg/retry"
)

// pollInterval is how often a full cycle over the symbol list runs.
const pollInterval = 1 * time.Second

// symbolStagger is the per-request spacing within one cycle, spreading
// requests out to avoid rate limits for venues without a batch endpoint.
const symbolStagger = 50 * time.Millisecond

// DriftPollAdapter polls a per-symbol REST ticker endpoint on a fixed
// cadence. It paces individual requests with golang.org/x/time/rate
// (the stagger within one cycle) while pkg/ratelimit's token bucket
// guards the venue's overall request budget across cycles — the two
// rate limiters serve different concerns and are deliberately kept
// distinct rather than merged into one.
type DriftPollAdapter struct {
	cfg    Config
	logger *zap.SugaredLogger

	client      *http.Client
	stagger     *rate.Limiter
	venueBudget *ratelimit.RateLimiter

	quotes chan quote.Quote
	states chan quote.ConnectionEvent

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewDriftPollAdapter(cfg Config, logger *zap.SugaredLogger) *DriftPollAdapter {
	return &DriftPollAdapter{
		cfg:         cfg,
		logger:      logger,
		client:      GlobalHTTPClient(),
		stagger:     rate.NewLimiter(rate.Every(symbolStagger), 1),
		venueBudget: ratelimit.NewRateLimiter(10, 20),
		quotes:      make(chan quote.Quote, 256),
		states:      make(chan quote.ConnectionEvent, 16),
	}
}

func (a *DriftPollAdapter) Name() quote.VenueID            { return a.cfg.Name }
func (a *DriftPollAdapter) Transport() Transport            { return TransportPolling }
func (a *DriftPollAdapter) Quotes() <-chan quote.Quote          { return a.quotes }
func (a *DriftPollAdapter) States() <-chan quote.ConnectionEvent { return a.states }

type driftTickerResponse struct {
	Market string `json:"market"`
	Bid    string `json:"bestBid"`
	Ask    string `json:"bestAsk"`
}

func (a *DriftPollAdapter) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	a.emitState(quote.StateOpen, nil)

	a.wg.Add(1)
	go a.pollLoop(runCtx)

	return nil
}

func (a *DriftPollAdapter) pollLoop(ctx context.Context) {
	defer a.wg.Done()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.pollOnce(ctx)
		}
	}
}

func (a *DriftPollAdapter) pollOnce(ctx context.Context) {
	for _, symbol := range a.cfg.Symbols {
		if err := a.stagger.Wait(ctx); err != nil {
			return
		}
		if err := a.venueBudget.Wait(ctx); err != nil {
			return
		}

		q, err := a.fetchOne(ctx, symbol)
		if err != nil {
			// Logged once per symbol per cycle; one symbol's failure
			// never aborts the rest of the cycle.
			a.logger.Warnw("poll request failed", "venue", a.cfg.Name, "symbol", symbol, "error", err)
			continue
		}

		select {
		case a.quotes <- q:
		case <-ctx.Done():
			return
		default:
			a.logger.Warnw("dropped quote, adapter output full", "venue", a.cfg.Name)
		}
	}
}

func (a *DriftPollAdapter) fetchOne(ctx context.Context, symbol string) (quote.Quote, error) {
	url := fmt.Sprintf("%s/ticker?marketName=%s", a.cfg.URL, symbol)

	result, err := retry.DoWithResult(ctx, func() (quote.Quote, error) {
		reqCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
		if err != nil {
			return quote.Quote{}, retry.Permanent(err)
		}

		resp, err := a.client.Do(req)
		if err != nil {
			return quote.Quote{}, newTransportError(string(a.cfg.Name), "request failed", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return quote.Quote{}, newTransportError(string(a.cfg.Name), fmt.Sprintf("status %d", resp.StatusCode), nil)
		}

		var body driftTickerResponse
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return quote.Quote{}, retry.Permanent(newParseError(string(a.cfg.Name), "decode failed", err))
		}

		bid, bidOK := parseFloat(body.Bid)
		ask, askOK := parseFloat(body.Ask)
		if !bidOK || !askOK {
			return quote.Quote{}, retry.Permanent(newParseError(string(a.cfg.Name), "non-numeric bid/ask", nil))
		}

		return quote.Quote{
			Venue:      a.cfg.Name,
			Symbol:     quote.Normalize(symbol),
			Bid:        bid,
			Ask:        ask,
			ObservedAt: time.Now(),
		}, nil
	}, retry.NetworkConfig())

	if err != nil {
		return quote.Quote{}, err
	}
	if !result.Valid() {
		return quote.Quote{}, newParseError(string(a.cfg.Name), "invalid bid/ask", nil)
	}
	return result, nil
}

func (a *DriftPollAdapter) emitState(state quote.ConnectionState, err error) {
	select {
	case a.states <- quote.ConnectionEvent{Venue: a.cfg.Name, State: state, At: time.Now(), Err: err}:
	default:
	}
}

func (a *DriftPollAdapter) Stop() error {
	if a.cancel != nil {
		a.cancel()
	}
	a.wg.Wait()
	a.emitState(quote.StateClosed, nil)
	return nil
}
