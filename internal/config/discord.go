package config

import (
	"context"
	"fmt"

	"github.com/sethvargo/go-envconfig"
)

type DiscordConfig struct {
	Token          string `env:"DISCORD_TOKEN, required"`
	GuildID        string `env:"DISCORD_GUILD_ID"`
	RunBotGlobally bool   `env:"DISCORD_RUN_BOT_GLOBALLY"`
}

func NewDiscordConfigFromEnv() (*DiscordConfig, error) {
	return newDiscordConfig(context.Background(), nil)
}

func newDiscordConfig(ctx context.Context, lookuper envconfig.Lookuper) (*DiscordConfig, error) {
	var cfg DiscordConfig
	if err := process(ctx, &cfg, lookuper); err != nil {
		return nil, err
	}
	if cfg.GuildID == "" && !cfg.RunBotGlobally {
		return nil, fmt.Errorf("refusing to run the bot without a guild ID unless DISCORD_RUN_BOT_GLOBALLY is set to true")
	}

	return &cfg, nil
}

// CommandGuildID is the guild slash commands are registered in. Empty means global.
func (c *DiscordConfig) CommandGuildID() string {
	if c.RunBotGlobally {
		return ""
	}
	return c.GuildID
}

func process(ctx context.Context, cfg any, lookuper envconfig.Lookuper) error {
	if lookuper == nil {
		return envconfig.Process(ctx, cfg)
	}
	return envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   cfg,
		Lookuper: lookuper,
	})
}
