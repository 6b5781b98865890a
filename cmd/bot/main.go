package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/glizzus/voicelink/internal/config"
	"github.com/glizzus/voicelink/internal/discord"
	"github.com/glizzus/voicelink/internal/eventbus"
	"github.com/glizzus/voicelink/internal/handler"
	"github.com/glizzus/voicelink/internal/voice"
	"github.com/glizzus/voicelink/internal/voicegateway"
)

const shutdownTimeout = 10 * time.Second

func runBotForever() error {
	if err := config.LoadEnv(); err != nil {
		if os.IsNotExist(err) {
			slog.Warn("No .env file found, continuing without it")
		} else {
			return fmt.Errorf("failed to load .env file: %w", err)
		}
	}

	discordConfig, err := config.NewDiscordConfigFromEnv()
	if err != nil {
		return fmt.Errorf("failed to load discord config: %w", err)
	}

	voiceConfig, err := config.NewVoiceConfigFromEnv()
	if err != nil {
		return fmt.Errorf("failed to load voice config: %w", err)
	}

	session, err := handler.NewSession(discordConfig.Token, handler.Handlers{
		Ready: handler.ReadyLog,
	})
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	bus := eventbus.New()
	bridge := discord.NewBridge(session, bus, slog.Default())
	defer bridge.Close()

	if err := session.Open(); err != nil {
		return fmt.Errorf("failed to open session: %w", err)
	}
	defer func() {
		if err := session.Close(); err != nil {
			slog.Warn("failed to close session", "error", err)
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

	commands := handler.NewVoiceCommands(handler.VoiceCommandsConfig{
		Voice:       coordinator,
		VoiceStates: bridge,
		JoinOptions: voiceConfig.JoinOptions(),
	})
	session.AddHandler(handler.MakeInteractionCreateHandler(commands))

	if err := handler.EstablishCommands(session, discordConfig.CommandGuildID()); err != nil {
		return fmt.Errorf("failed to establish commands: %w", err)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)

	<-stop
	slog.Info("Shutting down")
	return nil
}

func main() {
	if err := runBotForever(); err != nil {
		log.Fatalf("failed to run bot: %v", err)
	}
}
