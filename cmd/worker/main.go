package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/glizzus/voicelink/internal/config"
	"github.com/glizzus/voicelink/internal/discord"
	"github.com/glizzus/voicelink/internal/eventbus"
	"github.com/glizzus/voicelink/internal/handler"
	"github.com/glizzus/voicelink/internal/voice"
	"github.com/glizzus/voicelink/internal/voicegateway"
	"github.com/glizzus/voicelink/internal/worker"
)

var dryRun = flag.Bool("dry-run", false, "Do not use Discord, just print job info to terminal")

const shutdownTimeout = 10 * time.Second

// loggingVoice stands in for the coordinator in dry-run mode.
type loggingVoice struct{}

func (loggingVoice) Join(ctx context.Context, req voice.JoinRequest) (voice.Connection, error) {
	slog.InfoContext(ctx, "Dry run mode: would join", "guildID", req.GuildID, "channelID", req.ChannelID)
	return dryRunConnection{guildID: req.GuildID, channelID: req.ChannelID}, nil
}

func (loggingVoice) Disconnect(ctx context.Context, guildID string) {
	slog.InfoContext(ctx, "Dry run mode: would leave", "guildID", guildID)
}

type dryRunConnection struct {
	guildID, channelID string
}

func (c dryRunConnection) GuildID() string { return c.guildID }
func (c dryRunConnection) ChannelID() string { return c.channelID }
func (c dryRunConnection) Disconnect(context.Context) {}
func (c dryRunConnection) Close() error { return nil }

func runWorkerForever() error {
	flag.Parse()
	slog.SetLogLoggerLevel(slog.LevelDebug)
	if err := config.LoadEnv(); err != nil {
		if os.IsNotExist(err) {
			slog.Warn("No .env file found, continuing without it")
		} else {
			return fmt.Errorf("failed to load .env file: %w", err)
		}
	}

	redisConfig, err := config.NewRedisConfigFromEnv()
	if err != nil {
		return fmt.Errorf("failed to load redis config: %w", err)
	}

	voiceConfig, err := config.NewVoiceConfigFromEnv()
	if err != nil {
		return fmt.Errorf("failed to load voice config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	rdb := redis.NewClient(&redis.Options{
		Addr:     redisConfig.Addr,
		Password: redisConfig.Password,
	})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}

	consumer, err := os.Hostname()
	if err != nil {
		return fmt.Errorf("failed to get hostname: %w", err)
	}

	receiver, err := worker.NewRedisJobReceiver(ctx, rdb, redisConfig.Stream, redisConfig.Group, consumer)
	if err != nil {
		return fmt.Errorf("failed to create job receiver: %w", err)
	}

	var v worker.Voice = loggingVoice{}
	if !*dryRun {
		discordConfig, err := config.NewDiscordConfigFromEnv()
		if err != nil {
			return fmt.Errorf("failed to load discord config: %w", err)
		}

		session, err := handler.NewSession(discordConfig.Token, handler.Handlers{
			Ready: handler.ReadyLog,
		})
		if err != nil {
			return fmt.Errorf("failed to create discord session: %w", err)
		}

		bus := eventbus.New()
		bridge := discord.NewBridge(session, bus, slog.Default())
		defer bridge.Close()

		if err := session.Open(); err != nil {
			return fmt.Errorf("failed to open discord session: %w", err)
		}
		defer func() {
			if err := session.Close(); err != nil {
				slog.Error("failed to close discord session", "error", err)
			}
		}()

		coordinator, err := voice.NewCoordinator(voice.CoordinatorConfig{
			SelfUserID:   session.State.User.ID,
			Bus:          bus,
			Commands:     bridge,
			Capabilities: bridge,
			VoiceStates:  bridge,
			Gateway: voicegateway.NewFactory(voicegateway.Config{
				Scheme: voiceConfig.GatewayScheme,
			}),
			CleanupTimeout: voiceConfig.CleanupTimeout,
		})
		if err != nil {
			return fmt.Errorf("failed to create voice coordinator: %w", err)
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			coordinator.DisconnectAll(ctx)
		}()
		v = coordinator
	}

	runner := worker.NewRunner(worker.RunnerConfig{
		Voice:       v,
		Receiver:    receiver,
		JoinOptions: voiceConfig.JoinOptions(),
	})

	slog.Info("Worker is consuming voice jobs",
		slog.String("stream", redisConfig.Stream),
		slog.String("group", redisConfig.Group),
		slog.String("consumer", consumer),
	)
	return runner.Run(ctx)
}

func main() {
	if err := runWorkerForever(); err != nil {
		slog.Error("Worker encountered an error", slog.Any("error", err))
		os.Exit(1)
	}
}
