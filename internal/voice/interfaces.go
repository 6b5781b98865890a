package voice

import (
	"context"
	"time"
)

// Capability is a feature the underlying session must have enabled.
type Capability string

// CapabilityVoiceStates lets the session see voice state updates.
// Without it the handshake acknowledgment never arrives.
const CapabilityVoiceStates Capability = "voice-state-visibility"

type CapabilityChecker interface {
	HasCapability(c Capability) bool
}

// CommandChannel sends voice state updates over the control connection.
// An empty channelID asks the platform to leave voice in that guild.
// A nil error only means the command was written; the outcome arrives
// as a VoiceStateEvent.
type CommandChannel interface {
	UpdateVoiceState(ctx context.Context, guildID, channelID string, selfMute, selfDeaf bool) error
}

// EventBus delivers voice events. Handlers run on the bus's goroutine and
// must not block. Done is closed once the bus stops delivering events.
type EventBus interface {
	SubscribeVoiceState(fn func(VoiceStateEvent)) (unsubscribe func())
	SubscribeVoiceServer(fn func(VoiceServerEvent)) (unsubscribe func())
	Done() <-chan struct{}
}

// VoiceStateReader reads the cached voice state of a user.
type VoiceStateReader interface {
	VoiceState(guildID, userID string) (VoiceStateEvent, bool)
}

// Connection is a live voice session for one guild.
type Connection interface {
	GuildID() string
	// ChannelID reports the channel the platform currently has us in.
	// It is informational and never drives the connection's lifecycle.
	ChannelID() string
	// Disconnect closes the session, leaves the channel and removes the
	// connection from its registry. Failures are logged, not returned.
	Disconnect(ctx context.Context)
	// Close releases the media session only.
	Close() error
}

// GatewayOptions carries the join-time knobs a factory needs.
type GatewayOptions struct {
	ChannelID          string
	SelfMute           bool
	SelfDeaf           bool
	IPDiscoveryTimeout time.Duration
	IPDiscoveryRetry   RetryPolicy
}

// Tasks are the callbacks a factory may use during the session's lifetime.
// They keep factories independent of the bus and command channel.
type Tasks struct {
	// Disconnect sends a leave command and evicts the guild. Best effort.
	Disconnect func(ctx context.Context)
	// ServerUpdate waits for the next voice server assignment of the guild,
	// including ones without an endpoint.
	ServerUpdate func(ctx context.Context) (VoiceServerEvent, error)
	// StateUpdate waits for the next voice state of the current user in the guild.
	StateUpdate func(ctx context.Context) (VoiceStateEvent, error)
	// ChannelRetrieve reports the current channel of the user in the guild.
	ChannelRetrieve func() (channelID string, ok bool)
}

type GatewayFactory interface {
	Create(ctx context.Context, params SessionParameters, opts GatewayOptions, tasks Tasks) (Connection, error)
}
