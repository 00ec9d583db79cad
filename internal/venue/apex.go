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

// midHalfSpreadBps is the symmetric half-spread used to synthesize a
// bid/ask pair around a mid-only venue's reported price.
const midHalfSpreadBps = 0.0001

// ApexAdapter polls a venue that only reports a single mid/last price
// per symbol rather than a two-sided quote. Every Quote it emits is
// marked Synthetic so the detector can apply its exclude-by-default
// policy.
type ApexAdapter struct {
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

func NewApexAdapter(cfg Config, logger *zap.SugaredLogger) *ApexAdapter {
	return &ApexAdapter{
		cfg:         cfg,
		logger:      logger,
		client:      GlobalHTTPClient(),
		stagger:     rate.NewLimiter(rate.Every(symbolStagger), 1),
		venueBudget: ratelimit.NewRateLimiter(10, 20),
		quotes:      make(chan quote.Quote, 128),
		states:      make(chan quote.ConnectionEvent, 16),
	}
}

func (a *ApexAdapter) Name() quote.VenueID            { return a.cfg.Name }
func (a *ApexAdapter) Transport() Transport            { return TransportPolling }
func (a *ApexAdapter) Quotes() <-chan quote.Quote          { return a.quotes }
func (a *ApexAdapter) States() <-chan quote.ConnectionEvent { return a.states }

type apexTickerResponse struct {
	Symbol    string `json:"symbol"`
	LastPrice string `json:"lastPrice"`
}

func (a *ApexAdapter) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	a.emitState(quote.StateOpen, nil)

	a.wg.Add(1)
	go a.pollLoop(runCtx)

	return nil
}

func (a *ApexAdapter) pollLoop(ctx context.Context) {
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

func (a *ApexAdapter) pollOnce(ctx context.Context) {
	for _, symbol := range a.cfg.Symbols {
		if err := a.stagger.Wait(ctx); err != nil {
			return
		}
		if err := a.venueBudget.Wait(ctx); err != nil {
			return
		}

		q, err := a.fetchOne(ctx, symbol)
		if err != nil {
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

func (a *ApexAdapter) fetchOne(ctx context.Context, symbol string) (quote.Quote, error) {
	url := fmt.Sprintf("%s/api/v3/ticker?symbol=%s", a.cfg.URL, symbol)

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

		var body apexTickerResponse
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return quote.Quote{}, retry.Permanent(newParseError(string(a.cfg.Name), "decode failed", err))
		}

		mid, ok := parseFloat(body.LastPrice)
		if !ok || mid <= 0 {
			return quote.Quote{}, retry.Permanent(newParseError(string(a.cfg.Name), "non-numeric last price", nil))
		}

		half := mid * midHalfSpreadBps
		return quote.Quote{
			Venue:      a.cfg.Name,
			Symbol:     quote.Normalize(symbol),
			Bid:        mid - half,
			Ask:        mid + half,
			ObservedAt: time.Now(),
			Synthetic:  true,
		}, nil
	}, retry.NetworkConfig())

	if err != nil {
		return quote.Quote{}, err
	}
	return result, nil
}

func (a *ApexAdapter) emitState(state quote.ConnectionState, err error) {
	select {
	case a.states <- quote.ConnectionEvent{Venue: a.cfg.Name, State: state, At: time.Now(), Err: err}:
	default:
	}
}

func (a *ApexAdapter) Stop() error {
	if a.cancel != nil {
		a.cancel()
	}
	a.wg.Wait()
	a.emitState(quote.StateClosed, nil)
	return nil
}
