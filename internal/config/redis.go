package config

import (
	"context"
	"fmt"

	"github.com/sethvargo/go-envconfig"
)

type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR, required"`
	Password string `env:"REDIS_PASSWORD"`
	Stream   string `env:"REDIS_VOICE_STREAM, default=voice_jobs"`
	Group    string `env:"REDIS_VOICE_GROUP, default=voice_workers"`
}

func NewRedisConfigFromEnv() (*RedisConfig, error) {
	return newRedisConfig(context.Background(), nil)
}

func newRedisConfig(ctx context.Context, lookuper envconfig.Lookuper) (*RedisConfig, error) {
	var cfg RedisConfig
	if err := process(ctx, &cfg, lookuper); err != nil {
		return nil, err
	}
	if cfg.Addr == "" {
		return nil, fmt.Errorf("REDIS_ADDR is required")
	}
	return &cfg, nil
}
