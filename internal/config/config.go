package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"venuemesh/pkg/utils"
)

// Config holds the full process configuration.
type Config struct {
	Server   ServerConfig
	Pipeline PipelineConfig
	Venues   []VenueConfig
	Logging  LoggingConfig
}

// ServerConfig controls the HTTP/WebSocket listener.
type ServerConfig struct {
	Port             int
	Host             string
	ClientCORSOrigin string
}

// PipelineConfig carries every tunable governing the ingest-to-arbitrage
// pipeline: staleness windows, cooldowns, and broadcast batching.
type PipelineConfig struct {
	MaxPriceAge            time.Duration
	ArbitrageCooldown      time.Duration
	ArbitrageMaxHistoryAge time.Duration
	CleanupIntervalPrices  time.Duration
	BroadcastInterval      time.Duration
	BroadcastMaxBatch      int
	WatchdogInterval       time.Duration
	MaxReconnectAttempts   int
	DBSnapshotMaxAge       time.Duration
	MinSpreadPct           float64
	MaxRealisticSpreadPct  float64
	AllowSyntheticInArb    bool
}

// VenueTransport is the adapter capability variant a venue uses.
type VenueTransport string

const (
	TransportStreaming VenueTransport = "streaming"
	TransportPolling   VenueTransport = "polling"
)

// VenueConfig is one entry of the enabled-venue configuration.
type VenueConfig struct {
	Name      string
	Enabled   bool
	Transport VenueTransport
	URL       string
	Symbols   []string
}

// LoggingConfig controls pkg/logging.
type LoggingConfig struct {
	Level  string
	Format string
}

// defaultVenues describes every venue adapter this repository ships.
// Per-venue env vars (VENUE_<NAME>_ENABLED / _URL / _SYMBOLS) override
// these defaults; the canonical symbol list per venue is ultimately a
// deployment decision — this table is the mechanism, not the policy.
var defaultVenues = []VenueConfig{
	{Name: "hyperliquid", Enabled: true, Transport: TransportStreaming, URL: "wss://api.hyperliquid.xyz/ws", Symbols: []string{"BTC", "ETH", "SOL"}},
	{Name: "paradex", Enabled: true, Transport: TransportStreaming, URL: "wss://ws.api.prod.paradex.trade/v1", Symbols: []string{"BTC-USD-PERP", "ETH-USD-PERP", "SOL-USD-PERP"}},
	{Name: "vertex", Enabled: true, Transport: TransportStreaming, URL: "wss://gateway.prod.vertexprotocol.com/v1/ws", Symbols: []string{"BTC-PERP", "ETH-PERP"}},
	{Name: "driftpoll", Enabled: true, Transport: TransportPolling, URL: "https://dlob.drift.trade", Symbols: []string{"BTC-PERP", "ETH-PERP", "SOL-PERP"}},
	{Name: "apex", Enabled: false, Transport: TransportPolling, URL: "https://omni.apex.exchange", Symbols: []string{"BTCUSDT", "ETHUSDT"}},
}

// Load reads configuration from the environment. It returns an error
// (never panics) when a value fails validation (port range, spread
// thresholds, venue symbols, no enabled venue) — main.go decides to
// exit non-zero on that error. A value that does not parse as a
// number, boolean or duration is not reported; the default is used
// in its place.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:             getEnvAsInt("LISTEN_PORT", 3001),
			Host:             getEnv("LISTEN_HOST", "0.0.0.0"),
			ClientCORSOrigin: getEnv("CLIENT_CORS_ORIGIN", "*"),
		},
		Pipeline: PipelineConfig{
			MaxPriceAge:            getEnvAsDuration("MAX_PRICE_AGE_MS", 2000*time.Millisecond),
			ArbitrageCooldown:      getEnvAsDuration("ARBITRAGE_COOLDOWN_MS", 1000*time.Millisecond),
			ArbitrageMaxHistoryAge: getEnvAsDuration("ARBITRAGE_MAX_HISTORY_AGE_MS", 60000*time.Millisecond),
			CleanupIntervalPrices:  getEnvAsDuration("CLEANUP_INTERVAL_PRICES_MS", 1000*time.Millisecond),
			BroadcastInterval:      getEnvAsDuration("BROADCAST_INTERVAL_MS", 100*time.Millisecond),
			BroadcastMaxBatch:      getEnvAsInt("BROADCAST_MAX_BATCH", 10000),
			WatchdogInterval:       getEnvAsDuration("WATCHDOG_INTERVAL_MS", 15000*time.Millisecond),
			MaxReconnectAttempts:   getEnvAsInt("MAX_RECONNECT_ATTEMPTS", 10),
			DBSnapshotMaxAge:       getEnvAsDuration("DB_SNAPSHOT_MAX_AGE_MS", 10000*time.Millisecond),
			MinSpreadPct:           getEnvAsFloat("MIN_SPREAD_PCT", 0.1),
			MaxRealisticSpreadPct:  getEnvAsFloat("MAX_REALISTIC_SPREAD_PCT", 5),
			AllowSyntheticInArb:    getEnvAsBool("ARBITRAGE_ALLOW_SYNTHETIC", false),
		},
		Venues: loadVenues(),
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("LISTEN_PORT out of range: %d", c.Server.Port)
	}
	if err := utils.ValidateSpread(c.Pipeline.MinSpreadPct); err != nil {
		return fmt.Errorf("MIN_SPREAD_PCT: %w", err)
	}
	if c.Pipeline.MaxRealisticSpreadPct <= c.Pipeline.MinSpreadPct {
		return fmt.Errorf("MAX_REALISTIC_SPREAD_PCT (%v) must exceed MIN_SPREAD_PCT (%v)", c.Pipeline.MaxRealisticSpreadPct, c.Pipeline.MinSpreadPct)
	}
	anyEnabled := false
	for _, v := range c.Venues {
		if !v.Enabled {
			continue
		}
		anyEnabled = true
		for _, sym := range v.Symbols {
			if err := utils.ValidateSymbol(sym); err != nil {
				return fmt.Errorf("venue %s: %w", v.Name, err)
			}
		}
	}
	if !anyEnabled {
		return fmt.Errorf("no venues enabled; set VENUE_<NAME>_ENABLED=true for at least one venue")
	}
	return nil
}

func loadVenues() []VenueConfig {
	venues := make([]VenueConfig, len(defaultVenues))
	copy(venues, defaultVenues)

	for i := range venues {
		prefix := "VENUE_" + strings.ToUpper(venues[i].Name)
		venues[i].Enabled = getEnvAsBool(prefix+"_ENABLED", venues[i].Enabled)
		venues[i].URL = getEnv(prefix+"_URL", venues[i].URL)
		if raw := os.Getenv(prefix + "_SYMBOLS"); raw != "" {
			venues[i].Symbols = splitAndTrim(raw)
		}
	}

	return venues
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Helper functions for reading environment variables.

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	// Pipeline durations are documented in milliseconds; accept a bare
	// integer as milliseconds, or a Go duration string.
	if ms, err := strconv.Atoi(valueStr); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
