package infra

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds all application configuration parsed from environment variables.
type Config struct {
	// Database
	DatabaseURL string `env:"DATABASE_URL"`
	PGHost      string `env:"PGHOST" envDefault:"localhost"`
	PGPort      int    `env:"PGPORT" envDefault:"5432"`
	PGUser      string `env:"PGUSER" envDefault:"arena"`
	PGPassword  string `env:"PGPASSWORD" envDefault:"arena"`
	PGDatabase  string `env:"PGDATABASE" envDefault:"arena"`

	// JWT
	JWTSecret       string `env:"JWT_SECRET" envDefault:"change-me-in-production"`
	JWTPlayerExpiry string `env:"JWT_PLAYER_EXPIRY" envDefault:"24h"`
	JWTAdminExpiry  string `env:"JWT_ADMIN_EXPIRY" envDefault:"8h"`

	// Server
	APIPort int `env:"API_PORT" envDefault:"3200"`

	// Payment gateway (deposit confirmation signatures)
	GatewaySecret string `env:"GATEWAY_SECRET"`

	// Kafka
	KafkaBrokers string `env:"KAFKA_BROKERS" envDefault:"localhost:9092"`
	KafkaEnabled bool   `env:"KAFKA_ENABLED" envDefault:"false"`

	// CORS
	CORSAllowedOrigins string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*"`

	// Dev
	AllowInsecureDefaults bool `env:"ALLOW_INSECURE_DEFAULTS" envDefault:"false"`

	// Money limits (paise; two implied decimals)
	EntryFeeMax   int64 `env:"ENTRY_FEE_MAX" envDefault:"1000000"`
	DepositMin    int64 `env:"DEPOSIT_MIN" envDefault:"1000"`
	DepositMax    int64 `env:"DEPOSIT_MAX" envDefault:"5000000"`
	WithdrawalMin int64 `env:"WITHDRAWAL_MIN" envDefault:"10000"`

	// Matchmaking & game timers
	MatchmakerTick      time.Duration `env:"MATCHMAKER_TICK" envDefault:"5s"`
	AutoStartDelay      time.Duration `env:"AUTO_START_DELAY" envDefault:"3s"`
	RoomGracePeriod     time.Duration `env:"ROOM_GRACE_PERIOD" envDefault:"60s"`
	DisconnectGrace     time.Duration `env:"DISCONNECT_GRACE" envDefault:"15s"`
	RegistryCleanupTick time.Duration `env:"REGISTRY_CLEANUP_TICK" envDefault:"60s"`
	FastLudoTimer2P     time.Duration `env:"FAST_LUDO_TIMER_2P" envDefault:"300s"`
	FastLudoTimerMulti  time.Duration `env:"FAST_LUDO_TIMER_MULTI" envDefault:"600s"`
	MemoryTurnTimer     time.Duration `env:"MEMORY_TURN_TIMER" envDefault:"15s"`
	MemoryLifelines     int           `env:"MEMORY_LIFELINES" envDefault:"3"`
	MemoryPairs         int           `env:"MEMORY_PAIRS" envDefault:"15"`
}

// LoadConfig parses environment variables into a Config struct.
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Validate checks for insecure configuration that must not run in production.
// Set ALLOW_INSECURE_DEFAULTS=true to bypass (local dev only).
func (c *Config) Validate() error {
	if c.MemoryPairs != 11 && c.MemoryPairs != 15 {
		return fmt.Errorf("MEMORY_PAIRS must be 11 or 15, got %d", c.MemoryPairs)
	}
	if c.AllowInsecureDefaults {
		return nil
	}
	if c.JWTSecret == "change-me-in-production" {
		return fmt.Errorf("JWT_SECRET is set to the insecure default; set a strong secret or set ALLOW_INSECURE_DEFAULTS=true for local dev")
	}
	if len(c.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET is too short (%d chars); minimum 32 characters required", len(c.JWTSecret))
	}
	if c.GatewaySecret == "" {
		return fmt.Errorf("GATEWAY_SECRET is required to verify deposit confirmations")
	}
	return nil
}

// DSN returns the PostgreSQL connection string, preferring DATABASE_URL if set.
func (c *Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.PGUser, c.PGPassword, c.PGHost, c.PGPort, c.PGDatabase)
}
