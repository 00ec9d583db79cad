package venue

import (
	"fmt"

	"go.uber.org/zap"
)

// Constructor builds one Adapter from its Config. Each venue
// registers the constructor for its own concrete implementation;
// New below is the only place that needs to know the full venue list.
type Constructor func(cfg Config, logger *zap.SugaredLogger) Adapter

var registry = map[string]Constructor{
	"hyperliquid": func(cfg Config, l *zap.SugaredLogger) Adapter { return NewHyperliquidAdapter(cfg, l) },
	"paradex":     func(cfg Config, l *zap.SugaredLogger) Adapter { return NewParadexAdapter(cfg, l) },
	"vertex":      func(cfg Config, l *zap.SugaredLogger) Adapter { return NewVertexAdapter(cfg, l) },
	"driftpoll":   func(cfg Config, l *zap.SugaredLogger) Adapter { return NewDriftPollAdapter(cfg, l) },
	"apex":        func(cfg Config, l *zap.SugaredLogger) Adapter { return NewApexAdapter(cfg, l) },
}

// New builds the Adapter registered for cfg.Name. An unknown venue
// name is returned as an error wrapping ErrUnknownVenue, not a panic.
func New(cfg Config, logger *zap.SugaredLogger) (Adapter, error) {
	ctor, ok := registry[string(cfg.Name)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownVenue, cfg.Name)
	}
	return ctor(cfg, logger), nil
}

// ErrUnknownVenue is returned by New for a venue name with no
// registered constructor.
var ErrUnknownVenue = fmt.Errorf("unknown venue")
