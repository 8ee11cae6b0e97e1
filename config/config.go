package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

// LogConfig controls the service's structured logger.
type LogConfig struct {
	Level string `json:"level"` // debug, info, warn, error (default: info)
}

// IngestConfig points at the single upstream exchange this backbone ingests from.
type IngestConfig struct {
	SpotWSURL    string `json:"spot_ws_url"`
	FuturesWSURL string `json:"futures_ws_url"`
	RESTBaseURL  string `json:"rest_base_url"`
	// ReconnectMinSeconds/MaxSeconds are parsed but not consulted;
	// ingest.Client.Run uses a fixed 1s→60s backoff (§4.1).
	ReconnectMinSeconds int `json:"reconnect_min_seconds"`
	ReconnectMaxSeconds int `json:"reconnect_max_seconds"`
}

// Config is the service's full runtime configuration.
type Config struct {
	HTTPPort        int          `json:"http_port"`
	DBPath          string       `json:"db_path"`
	DefaultSymbols  []string     `json:"default_symbols"`
	KlineIntervals  []string     `json:"kline_intervals"` // e.g. "1m","5m","15m","1h","4h","1d"
	Ingest          IngestConfig `json:"ingest"`
	RESTRateLimitRPM int         `json:"rest_rate_limit_rpm"` // token-bucket average rate (see ratelimit.New), default 1200
	BackfillConcurrency int      `json:"backfill_concurrency"` // parallel backfill workers, default 20
	Log             *LogConfig   `json:"log"`
}

func defaultConfig() *Config {
	return &Config{
		HTTPPort: 8080,
		DBPath:   "backbone.db",
		DefaultSymbols: []string{
			"BTCUSDT", "ETHUSDT", "SOLUSDT", "BNBUSDT",
			"XRPUSDT", "DOGEUSDT", "ADAUSDT",
		},
		KlineIntervals: []string{"1m", "5m", "15m", "1h", "4h", "1d"},
		Ingest: IngestConfig{
			SpotWSURL:           "wss://stream.binance.com:9443/stream",
			FuturesWSURL:        "wss://fstream.binance.com/stream",
			RESTBaseURL:         "https://fapi.binance.com",
			ReconnectMinSeconds: 1,
			ReconnectMaxSeconds: 60,
		},
		RESTRateLimitRPM:    1200,
		BackfillConcurrency: 20,
		Log:                 &LogConfig{Level: "info"},
	}
}

// LoadConfig loads JSON config from filename, falling back to documented
// defaults when the file doesn't exist — it is not an error to run with none.
func LoadConfig(filename string) (*Config, error) {
	cfg := defaultConfig()

	if _, err := os.Stat(filename); os.IsNotExist(err) {
		log.Info().Str("file", filename).Msg("config file not found, using defaults")
		applyEnvOverrides(cfg)
		return cfg, nil
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", filename, err)
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", filename, err)
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

// applyEnvOverrides lets BACKBONE_HTTP_PORT / BACKBONE_DB_PATH take priority
// over the JSON file's values, matching the env-over-file precedence the
// teacher's entrypoint used for its own port override.
func applyEnvOverrides(cfg *Config) {
	if raw := strings.TrimSpace(os.Getenv("BACKBONE_HTTP_PORT")); raw != "" {
		if port, err := strconv.Atoi(raw); err == nil && port > 0 {
			cfg.HTTPPort = port
		} else {
			log.Warn().Str("value", raw).Msg("config: ignoring invalid BACKBONE_HTTP_PORT")
		}
	}
	if raw := strings.TrimSpace(os.Getenv("BACKBONE_DB_PATH")); raw != "" {
		cfg.DBPath = raw
	}
}
