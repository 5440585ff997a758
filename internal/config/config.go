package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Server   ServerConfig   `envPrefix:"SMEC_SERVER_"`
	API      APIConfig      `envPrefix:"SMEC_"`
	Session  SessionConfig  `envPrefix:"SMEC_SESSION_"`
	Database DatabaseConfig `envPrefix:"SMEC_DB_"`
	Kafka    KafkaConfig    `envPrefix:"SMEC_KAFKA_"`
	Pass     PassConfig     `envPrefix:"SMEC_PASS_"`
	Log      LogConfig      `envPrefix:"SMEC_LOG_"`
}

type ServerConfig struct {
	Port         string        `env:"PORT" envDefault:":8090"`
	ReadTimeout  time.Duration `env:"READ_TIMEOUT" envDefault:"15s"`
	WriteTimeout time.Duration `env:"WRITE_TIMEOUT" envDefault:"30s"`
	IdleTimeout  time.Duration `env:"IDLE_TIMEOUT" envDefault:"60s"`
	LoginRoute   string        `env:"LOGIN_ROUTE" envDefault:"/login"`
	AdminLogin   string        `env:"ADMIN_LOGIN_ROUTE" envDefault:"/admin/login"`
	HomeRoute    string        `env:"HOME_ROUTE" envDefault:"/"`
}

// APIConfig points at the remote festival API. PurchaseURL falls back to
// BaseURL when unset.
type APIConfig struct {
	BaseURL     string        `env:"API_URL" envDefault:"https://smec-backend.onrender.com"`
	PurchaseURL string        `env:"PURCHASE_URL"`
	Timeout     time.Duration `env:"API_TIMEOUT" envDefault:"10s"`
}

type SessionConfig struct {
	Backend   string        `env:"BACKEND" envDefault:"file"`
	Dir       string        `env:"DIR" envDefault:".smec"`
	RedisAddr string        `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	KeyPrefix string        `env:"KEY_PREFIX" envDefault:"smec:session"`
	LockTTL   time.Duration `env:"LOCK_TTL" envDefault:"2m"`
}

type DatabaseConfig struct {
	Path         string `env:"PATH" envDefault:"smec.db"`
	MaxOpenConns int    `env:"MAX_OPEN_CONNS" envDefault:"1"`
}

type KafkaConfig struct {
	Enabled bool     `env:"ENABLED" envDefault:"false"`
	Brokers []string `env:"BROKERS" envSeparator:"," envDefault:"localhost:9092"`
	Topic   string   `env:"TOPIC" envDefault:"smec.registration.attempted"`
}

type PassConfig struct {
	Title     string `env:"TITLE" envDefault:"SMEC '26 OFFICIAL PASS"`
	OutputDir string `env:"OUTPUT_DIR" envDefault:"."`
	QRSecret  string `env:"QR_SECRET"`
	FontPath  string `env:"FONT_PATH"`
}

type LogConfig struct {
	Dir  string `env:"DIR" envDefault:"logs"`
	Name string `env:"NAME" envDefault:"smec-portal"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if cfg.API.PurchaseURL == "" {
		cfg.API.PurchaseURL = cfg.API.BaseURL
	}
	return &cfg, nil
}
