package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all process configuration loaded from environment variables.
// A .env file in the working directory is applied first when present.
type Config struct {
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	// Infrastructure
	RedisAddr     string `envconfig:"REDIS_ADDR" default:""`
	RedisPassword string `envconfig:"REDIS_PASSWORD" default:""`
	SQLitePath    string `envconfig:"SQLITE_PATH" default:"data/trader.db"`
	AMQPURL       string `envconfig:"AMQP_URL" default:""`
	AMQPExchange  string `envconfig:"AMQP_EXCHANGE" default:"trader.events"`
	MetricsAddr   string `envconfig:"METRICS_ADDR" default:":9090"`
	AlertWebhook  string `envconfig:"ALERT_WEBHOOK_URL" default:""`

	// Tick feed
	FeedURL        string        `envconfig:"FEED_URL" default:"ws://localhost:9001/ws"`
	StaleFeedAfter time.Duration `envconfig:"STALE_FEED_AFTER" default:"30s"`

	// Strategies (comma-separated parameter files)
	StrategyFiles string `envconfig:"STRATEGY_FILES" default:"strategies/default.env"`

	// Run control
	Runtime      time.Duration `envconfig:"RUNTIME" default:"6h"`
	ShutdownPoll time.Duration `envconfig:"SHUTDOWN_POLL" default:"5s"`
	PaperSlipBps int           `envconfig:"PAPER_SLIPPAGE_BPS" default:"0"`

	// Session clock (empty close disables the session cutoff)
	SessionTZ       string `envconfig:"SESSION_TZ" default:"America/New_York"`
	SessionOpen     string `envconfig:"SESSION_OPEN" default:"09:30"`
	SessionClose    string `envconfig:"SESSION_CLOSE" default:"15:55"`
	SessionHolidays string `envconfig:"SESSION_HOLIDAYS" default:""`
}

// Load reads configuration from the environment. A missing .env file is
// not an error.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("[config] no .env file loaded: %v", err)
	}
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &cfg, nil
}

// StrategyPaths splits StrategyFiles into trimmed, non-empty paths.
func (c *Config) StrategyPaths() []string {
	parts := strings.Split(c.StrategyFiles, ",")
	paths := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		paths = append(paths, p)
	}
	return paths
}

// Holidays splits SessionHolidays into dates. Nil means the built-in
// calendar.
func (c *Config) Holidays() []string {
	if strings.TrimSpace(c.SessionHolidays) == "" {
		return nil
	}
	return strings.Split(c.SessionHolidays, ",")
}
