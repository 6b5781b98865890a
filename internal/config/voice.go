package config

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-envconfig"

	"github.com/glizzus/voicelink/internal/voice"
)

// VoiceConfig holds the defaults applied to every join request.
type VoiceConfig struct {
	JoinTimeout        time.Duration `env:"VOICE_JOIN_TIMEOUT, default=10s"`
	SelfMute           bool          `env:"VOICE_SELF_MUTE, default=false"`
	SelfDeaf           bool          `env:"VOICE_SELF_DEAF, default=false"`
	IPDiscoveryTimeout time.Duration `env:"VOICE_IP_DISCOVERY_TIMEOUT, default=5s"`
	IPDiscoveryRetries int           `env:"VOICE_IP_DISCOVERY_RETRIES, default=1"`
	GatewayScheme      string        `env:"VOICE_GATEWAY_SCHEME, default=wss"`
	CleanupTimeout     time.Duration `env:"VOICE_CLEANUP_TIMEOUT, default=5s"`
}

func NewVoiceConfigFromEnv() (*VoiceConfig, error) {
	return newVoiceConfig(context.Background(), nil)
}

func newVoiceConfig(ctx context.Context, lookuper envconfig.Lookuper) (*VoiceConfig, error) {
	var cfg VoiceConfig
	if err := process(ctx, &cfg, lookuper); err != nil {
		return nil, err
	}
	switch {
	case cfg.JoinTimeout <= 0:
		return nil, fmt.Errorf("VOICE_JOIN_TIMEOUT must be positive, got %s", cfg.JoinTimeout)
	case cfg.IPDiscoveryTimeout <= 0:
		return nil, fmt.Errorf("VOICE_IP_DISCOVERY_TIMEOUT must be positive, got %s", cfg.IPDiscoveryTimeout)
	case cfg.IPDiscoveryRetries < 0:
		return nil, fmt.Errorf("VOICE_IP_DISCOVERY_RETRIES must not be negative, got %d", cfg.IPDiscoveryRetries)
	case cfg.GatewayScheme != "ws" && cfg.GatewayScheme != "wss":
		return nil, fmt.Errorf("VOICE_GATEWAY_SCHEME must be ws or wss, got %q", cfg.GatewayScheme)
	}
	return &cfg, nil
}

// JoinOptions turns the configured defaults into join options. Options passed
// after these override them.
func (c *VoiceConfig) JoinOptions() []voice.JoinOption {
	return []voice.JoinOption{
		voice.WithTimeout(c.JoinTimeout),
		voice.WithSelfMute(c.SelfMute),
		voice.WithSelfDeaf(c.SelfDeaf),
		voice.WithIPDiscoveryTimeout(c.IPDiscoveryTimeout),
		voice.WithIPDiscoveryRetry(voice.RetryPolicy{MaxRetries: c.IPDiscoveryRetries}),
	}
}
