package config

import (
	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

type Config struct {
	HttpServerPort uint16 `env:"HTTP_SERVER_PORT" envDefault:"8010" validate:"min=1000,max=65535"`

	// Blank host disables join rate limiting.
	RedisHost string `env:"REDIS_HOST" envDefault:""`
	RedisPort uint16 `env:"REDIS_PORT" envDefault:"6379" validate:"min=1000,max=65535"`

	// Blank host disables the session audit trail.
	PostgresHost     string `env:"POSTGRES_HOST"     envDefault:""`
	PostgresPort     string `env:"POSTGRES_PORT"     envDefault:"5432"`
	PostgresUser     string `env:"POSTGRES_USER"     envDefault:"chat_user"`
	PostgresPassword string `env:"POSTGRES_PASSWORD" envDefault:"chat_password"`
	PostgresDb       string `env:"POSTGRES_DB"       envDefault:"chat_db"`

	WsReadLimit int64 `env:"WS_READ_LIMIT" envDefault:"4096" validate:"min=1"`

	JoinRateLimit     int `env:"JOIN_RATE_LIMIT"      envDefault:"30" validate:"min=1"`
	JoinRateWindowSec int `env:"JOIN_RATE_WINDOW_SEC" envDefault:"60" validate:"min=1"`

	AuditFlushSec int `env:"AUDIT_FLUSH_SEC" envDefault:"10" validate:"min=1"`
}

func LoadConfig() (*Config, error) {
	// Load environment variables from .env file
	err := godotenv.Load(".env")
	if err != nil {
		zap.L().Debug(".env file not found", zap.Error(err))
	}

	cfg := &Config{}
	// Parse config from environment variables
	if err = env.Parse(cfg); err != nil {
		zap.L().Error("config_load_failed", zap.Error(err))
		return nil, err
	}

	// Validate the config
	validate := validator.New()
	err = validate.Struct(cfg)
	if err != nil {
		zap.L().Error("config_validation_failed", zap.Error(err))
		return nil, err
	}
	return cfg, nil
}
