package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

const (
	defaultCSVURL      = "https://docs.google.com/spreadsheets/d/1QNSme0MaOerRwf1zTfvgc6JqkzKIyTOpd_SReWcRl2w/export?format=csv"
	defaultWFSProxyURL = "https://iphan-proxy.loian-araujo.workers.dev/"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Spreadsheet source.
	CSVURL             string
	CSVTimeout         time.Duration
	CSVRefreshInterval time.Duration // 0 loads once
	CSVMaxBytes        int64

	// IPHAN WFS proxy.
	WFSProxyURL    string
	WFSTypeName    string
	WFSMaxFeatures int
	WFSMaxBytes    int64
	WFSTimeout     time.Duration
	WFSCacheSize   int

	// Viewport loading policy.
	ViewportMinZoom  int
	ViewportDebounce time.Duration

	// Optional change feed.
	KafkaEnabled bool
	KafkaBrokers []string
	KafkaTopic   string
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	csvTimeout, err := parsePositiveDuration("CSV_TIMEOUT", "15s")
	if err != nil {
		return nil, err
	}
	refresh, err := parseDuration("CSV_REFRESH_INTERVAL", "10m")
	if err != nil {
		return nil, err
	}
	csvMaxBytes, err := parsePositiveInt("CSV_MAX_BYTES", 10<<20)
	if err != nil {
		return nil, err
	}

	wfsTimeout, err := parsePositiveDuration("WFS_TIMEOUT", "20s")
	if err != nil {
		return nil, err
	}
	wfsMaxFeatures, err := parsePositiveInt("WFS_MAX_FEATURES", 5000)
	if err != nil {
		return nil, err
	}
	wfsMaxBytes, err := parsePositiveInt("WFS_MAX_BYTES", 32<<20)
	if err != nil {
		return nil, err
	}
	wfsCacheSize, err := parsePositiveInt("WFS_CACHE_SIZE", 256)
	if err != nil {
		return nil, err
	}

	minZoom, err := parsePositiveInt("VIEWPORT_MIN_ZOOM", 7)
	if err != nil {
		return nil, err
	}
	debounce, err := parsePositiveDuration("VIEWPORT_DEBOUNCE", "450ms")
	if err != nil {
		return nil, err
	}

	var brokers []string
	if raw := os.Getenv("KAFKA_BROKERS"); raw != "" {
		brokers = sharedcfg.ParseBrokers(raw)
	}
	kafkaEnabled := len(brokers) > 0
	if v := os.Getenv("KAFKA_ENABLED"); v != "" {
		kafkaEnabled = v == "true"
	}

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		CSVURL:             sharedcfg.EnvOrDefault("CSV_URL", defaultCSVURL),
		CSVTimeout:         csvTimeout,
		CSVRefreshInterval: refresh,
		CSVMaxBytes:        int64(csvMaxBytes),

		WFSProxyURL:    sharedcfg.EnvOrDefault("WFS_PROXY_URL", defaultWFSProxyURL),
		WFSTypeName:    sharedcfg.EnvOrDefault("WFS_TYPE_NAME", "SICG:sitios"),
		WFSMaxFeatures: wfsMaxFeatures,
		WFSMaxBytes:    int64(wfsMaxBytes),
		WFSTimeout:     wfsTimeout,
		WFSCacheSize:   wfsCacheSize,

		ViewportMinZoom:  minZoom,
		ViewportDebounce: debounce,

		KafkaEnabled: kafkaEnabled,
		KafkaBrokers: brokers,
		KafkaTopic:   sharedcfg.EnvOrDefault("KAFKA_TOPIC", "heritage-sites"),
	}

	if cfg.CSVURL == "" {
		return nil, errors.New("CSV_URL is required")
	}
	if cfg.WFSProxyURL == "" {
		return nil, errors.New("WFS_PROXY_URL is required")
	}
	if cfg.KafkaEnabled && len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_ENABLED is true but KAFKA_BROKERS is not set")
	}
	if cfg.KafkaEnabled && cfg.KafkaTopic == "" {
		return nil, errors.New("KAFKA_TOPIC is required when the change feed is enabled")
	}

	return cfg, nil
}

func parseDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d < 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parsePositiveDuration(key, def string) (time.Duration, error) {
	d, err := parseDuration(key, def)
	if err != nil || d == 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parsePositiveInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return n, nil
}
