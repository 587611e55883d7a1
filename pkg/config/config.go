package config

import (
	"log"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type (
	Config struct {
		HTTP      HTTP      `envPrefix:"HTTP_"`
		Logger    Logger    `envPrefix:"LOGGER_"`
		Telemetry Telemetry `envPrefix:"TELEMETRY_"`
		Store     Store     `envPrefix:"STORE_"`
		Redis     Redis     `envPrefix:"REDIS_"`
		Upstream  Upstream  `envPrefix:"UPSTREAM_"`
		Preload   Preload   `envPrefix:"PRELOAD_"`
	}

	HTTP struct {
		Server  Server        `envPrefix:"SERVER_"`
		Timeout time.Duration `envPrefix:"TIMEOUT" envDefault:"10s"`
	}

	Server struct {
		Port         string        `env:"PORT,required"`
		ReadTimeout  time.Duration `env:"READ_TIMEOUT" envDefault:"15s"`
		WriteTimeout time.Duration `env:"WRITE_TIMEOUT" envDefault:"15s"`
		IdleTimeout  time.Duration `env:"IDLE_TIMEOUT" envDefault:"60s"`
	}

	Logger struct {
		Level string `env:"LEVEL,required"`
	}

	Telemetry struct {
		Enabled        bool   `env:"ENABLED" envDefault:"false"`
		ServiceName    string `env:"SERVICE_NAME" envDefault:"tileproxy"`
		ServiceVersion string `env:"SERVICE_VERSION" envDefault:"1.0.0"`
		Environment    string `env:"ENVIRONMENT" envDefault:"production"`
		OTLPEndpoint   string `env:"OTLP_ENDPOINT" envDefault:"otel-collector.observability.svc.cluster.local:4317"`
	}

	// Store selects the tile store backend. The filesystem backend is the
	// authoritative layout (<root>/<z>/<x>/<y>.png); sqlite keeps the same
	// contract in a single file.
	Store struct {
		Backend    string `env:"BACKEND" envDefault:"filesystem"`
		Root       string `env:"ROOT" envDefault:"./tile_cache"`
		SQLitePath string `env:"SQLITE_PATH" envDefault:"./tile_cache.db"`
	}

	Redis struct {
		Enabled  bool          `env:"ENABLED" envDefault:"false"`
		Addr     string        `env:"ADDR" envDefault:"localhost:6379"`
		Password string        `env:"PASSWORD" envDefault:""`
		DB       int           `env:"DB" envDefault:"0"`
		TTL      time.Duration `env:"TTL" envDefault:"24h"`
	}

	Upstream struct {
		// RenderURL points at the local render server. Its absence at
		// runtime is a normal branch, not an error.
		RenderURL string `env:"RENDER_URL" envDefault:"http://localhost:8081/tile/{z}/{x}/{y}.png"`
		// Providers is an ordered list of public fallback tile URL
		// templates. Order matters: first success wins.
		Providers       []string      `env:"PROVIDERS" envDefault:"https://tile.openstreetmap.org/{z}/{x}/{y}.png,https://tile.opentopomap.org/{z}/{x}/{y}.png" envSeparator:","`
		UserAgent       string        `env:"USER_AGENT" envDefault:"TileProxy/1.0 (https://github.com/jaennil/tileproxy)"`
		MinInterval     time.Duration `env:"MIN_INTERVAL" envDefault:"200ms"`
		FetchTimeout    time.Duration `env:"FETCH_TIMEOUT" envDefault:"10s"`
		FallbackTimeout time.Duration `env:"FALLBACK_TIMEOUT" envDefault:"5s"`
	}

	Preload struct {
		TileDelay time.Duration `env:"TILE_DELAY" envDefault:"300ms"`
	}
)

func New() (*Config, error) {
	err := godotenv.Load()
	if err != nil {
		log.Printf("NOTICE: .env file not found or cannot be loaded: %v\n", err)
	}

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, err
	}

	return &cfg, nil
}
