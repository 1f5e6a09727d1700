package server

import (
	"flag"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/Tyrowin/roomchat/internal/chat"
	"github.com/Tyrowin/roomchat/internal/telemetry"
	"github.com/caarlos0/env/v11"
)

// Store drivers accepted by STORE_DRIVER / -store.
const (
	StoreSQLite = "sqlite"
	StoreMemory = "memory"
)

// RateLimitConfig defines the parameters for per-connection message rate limiting.
type RateLimitConfig struct {
	Burst          int           `env:"RATE_LIMIT_BURST"           envDefault:"5"`
	RefillInterval time.Duration `env:"RATE_LIMIT_REFILL_INTERVAL" envDefault:"1s"`
}

// Config holds the server configuration settings including security controls.
type Config struct {
	Port           string   `env:"SERVER_PORT"      envDefault:":8080"`
	AllowedOrigins []string `env:"ALLOWED_ORIGINS"  envDefault:"http://localhost:8080" envSeparator:","`
	MaxMessageSize int64    `env:"MAX_MESSAGE_SIZE" envDefault:"4096"`
	RateLimit      RateLimitConfig

	Room          string        `env:"CHAT_ROOM"      envDefault:"general"`
	HistoryLimit  int           `env:"HISTORY_LIMIT"  envDefault:"50"`
	TypingTimeout time.Duration `env:"TYPING_TIMEOUT" envDefault:"3s"`
	SendBuffer    int           `env:"SEND_BUFFER"    envDefault:"256"`

	StoreDriver  string `env:"STORE_DRIVER"  envDefault:"sqlite"`
	DatabasePath string `env:"DATABASE_PATH" envDefault:"data/chat.db"`

	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`

	Telemetry telemetry.Config
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() Config {
	return Config{
		Port:           ":8080",
		AllowedOrigins: []string{"http://localhost:8080"},
		MaxMessageSize: 4096,
		RateLimit: RateLimitConfig{
			Burst:          5,
			RefillInterval: time.Second,
		},
		Room:            chat.DefaultRoom,
		HistoryLimit:    50,
		TypingTimeout:   3 * time.Second,
		SendBuffer:      256,
		StoreDriver:     StoreSQLite,
		DatabasePath:    "data/chat.db",
		ShutdownTimeout: 10 * time.Second,
		Telemetry:       telemetry.Config{Enabled: true},
	}
}

// ParseConfig parses environment and flags into a Config. Flags override
// the environment; the result is sanitized.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{
		FuncMap: map[reflect.Type]env.ParserFunc{
			reflect.TypeOf(time.Duration(0)): parseDuration,
		},
	}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	origins := strings.Join(cfg.AllowedOrigins, ",")
	fs.StringVar(&cfg.Port, "port", cfg.Port, "HTTP listen address")
	fs.StringVar(&origins, "allowed-origins", origins, "comma separated WebSocket origins, * allows all")
	fs.StringVar(&cfg.Room, "room", cfg.Room, "chat room name")
	fs.StringVar(&cfg.StoreDriver, "store", cfg.StoreDriver, "message store driver (sqlite or memory)")
	fs.StringVar(&cfg.DatabasePath, "db", cfg.DatabasePath, "SQLite database path")
	if err := fs.Parse(args); err != nil {
		return Config{}, fmt.Errorf("parse flags: %w", err)
	}
	cfg.AllowedOrigins = parseOrigins(origins)

	cfg = SanitizeConfig(cfg)
	switch cfg.StoreDriver {
	case StoreSQLite, StoreMemory:
	default:
		return Config{}, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
	return cfg, nil
}

// SanitizeConfig replaces empty or non-positive settings with their
// defaults.
func SanitizeConfig(cfg Config) Config {
	def := DefaultConfig()

	if cfg.Port == "" {
		cfg.Port = def.Port
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = def.MaxMessageSize
	}
	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = def.RateLimit.Burst
	}
	if cfg.RateLimit.RefillInterval <= 0 {
		cfg.RateLimit.RefillInterval = def.RateLimit.RefillInterval
	}
	cfg.Room = strings.TrimSpace(cfg.Room)
	if cfg.Room == "" {
		cfg.Room = def.Room
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = def.HistoryLimit
	}
	if cfg.TypingTimeout <= 0 {
		cfg.TypingTimeout = def.TypingTimeout
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = def.SendBuffer
	}
	cfg.StoreDriver = strings.ToLower(strings.TrimSpace(cfg.StoreDriver))
	if cfg.StoreDriver == "" {
		cfg.StoreDriver = def.StoreDriver
	}
	if cfg.DatabasePath == "" {
		cfg.DatabasePath = def.DatabasePath
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = def.ShutdownTimeout
	}
	cfg.AllowedOrigins = append([]string(nil), cfg.AllowedOrigins...)
	return cfg
}

func parseOrigins(origins string) []string {
	if strings.TrimSpace(origins) == "" {
		return nil
	}
	parts := strings.Split(origins, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// parseDuration accepts Go durations ("1500ms") and bare integers, which are
// read as seconds.
func parseDuration(value string) (any, error) {
	value = strings.TrimSpace(value)
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return nil, fmt.Errorf("invalid duration %q: %w", value, err)
	}
	return d, nil
}
