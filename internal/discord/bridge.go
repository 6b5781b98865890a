// Package discord adapts a discordgo session to the interfaces the voice
// coordinator consumes.
package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/glizzus/voicelink/internal/eventbus"
	"github.com/glizzus/voicelink/internal/voice"
)

// Gateway is the part of *discordgo.Session the bridge drives.
type Gateway interface {
	AddHandler(handler any) func()
	ChannelVoiceJoinManual(guildID, channelID string, mute, deaf bool) error
}

var _ Gateway = (*discordgo.Session)(nil)

// Bridge forwards voice events from discordgo into an event bus and sends
// voice state commands back over the main gateway.
type Bridge struct {
	gateway Gateway
	bus     *eventbus.Bus
	intents discordgo.Intent
	state   *discordgo.State
	logger  *slog.Logger

	mu     sync.Mutex
	remove []func()
}

var (
	_ voice.CommandChannel    = (*Bridge)(nil)
	_ voice.CapabilityChecker = (*Bridge)(nil)
	_ voice.VoiceStateReader  = (*Bridge)(nil)
)

// NewBridge attaches to s. The session's intents and state cache are read as
// they are when the bridge is created.
func NewBridge(s *discordgo.Session, bus *eventbus.Bus, logger *slog.Logger) *Bridge {
	return newBridge(s, s.Identify.Intents, s.State, bus, logger)
}

func newBridge(g Gateway, intents discordgo.Intent, state *discordgo.State, bus *eventbus.Bus, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Bridge{
		gateway: g,
		bus:     bus,
		intents: intents,
		state:   state,
		logger:  logger,
	}
	b.remove = append(b.remove,
		g.AddHandler(b.onVoiceStateUpdate),
		g.AddHandler(b.onVoiceServerUpdate),
	)
	return b
}

func (b *Bridge) onVoiceStateUpdate(_ *discordgo.Session, e *discordgo.VoiceStateUpdate) {
	if e == nil || e.VoiceState == nil {
		return
	}
	b.bus.PublishVoiceState(VoiceStateEvent(e.VoiceState))
}

func (b *Bridge) onVoiceServerUpdate(_ *discordgo.Session, e *discordgo.VoiceServerUpdate) {
	if e == nil {
		return
	}
	b.logger.Debug("voice server update", "guildID", e.GuildID, "endpoint", e.Endpoint)
	b.bus.PublishVoiceServer(voice.VoiceServerEvent{
		GuildID:  e.GuildID,
		Token:    e.Token,
		Endpoint: e.Endpoint,
	})
}

// VoiceStateEvent converts a discordgo voice state.
func VoiceStateEvent(vs *discordgo.VoiceState) voice.VoiceStateEvent {
	return voice.VoiceStateEvent{
		UserID:    vs.UserID,
		GuildID:   vs.GuildID,
		ChannelID: vs.ChannelID,
		SessionID: vs.SessionID,
		SelfMute:  vs.SelfMute,
		SelfDeaf:  vs.SelfDeaf,
	}
}

// UpdateVoiceState sends an op 4 voice state update. discordgo has no
// context-aware variant, so ctx is only checked before writing.
func (b *Bridge) UpdateVoiceState(ctx context.Context, guildID, channelID string, selfMute, selfDeaf bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := b.gateway.ChannelVoiceJoinManual(guildID, channelID, selfMute, selfDeaf); err != nil {
		return fmt.Errorf("failed to send voice state update: %w", err)
	}
	return nil
}

func (b *Bridge) HasCapability(c voice.Capability) bool {
	switch c {
	case voice.CapabilityVoiceStates:
		return b.intents&discordgo.IntentsGuildVoiceStates != 0
	default:
		return false
	}
}

func (b *Bridge) VoiceState(guildID, userID string) (voice.VoiceStateEvent, bool) {
	vs, err := b.state.VoiceState(guildID, userID)
	if err != nil {
		if !errors.Is(err, discordgo.ErrStateNotFound) && !errors.Is(err, discordgo.ErrNilState) {
			b.logger.Warn("failed to read voice state", "guildID", guildID, "userID", userID, "error", err)
		}
		return voice.VoiceStateEvent{}, false
	}
	return VoiceStateEvent(vs), true
}

// Close detaches the handlers and closes the bus, failing pending joins.
func (b *Bridge) Close() {
	b.mu.Lock()
	remove := b.remove
	b.remove = nil
	b.mu.Unlock()

	for _, fn := range remove {
		fn()
	}
	b.bus.Close()
}
