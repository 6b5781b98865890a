package voice

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// sessionTasks backs the Tasks handed to a gateway factory for one guild.
type sessionTasks struct {
	c       *Coordinator
	logger  *slog.Logger
	guildID string

	mu   sync.Mutex
	conn Connection
}

func (c *Coordinator) newSessionTasks(logger *slog.Logger, guildID string) *sessionTasks {
	return &sessionTasks{c: c, logger: logger, guildID: guildID}
}

// bind records the connection the tasks belong to once the factory returns it.
func (t *sessionTasks) bind(conn Connection) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.conn = conn
}

func (t *sessionTasks) bundle() Tasks {
	return Tasks{
		Disconnect:      t.disconnect,
		ServerUpdate:    t.serverUpdate,
		StateUpdate:     t.stateUpdate,
		ChannelRetrieve: t.channelRetrieve,
	}
}

func (t *sessionTasks) disconnect(ctx context.Context) {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()

	// A connection that was replaced must not make the replacement leave.
	if conn != nil {
		if current, ok := t.c.registry.Get(t.guildID); ok && current != conn {
			t.logger.Debug("stale voice connection disconnected, leaving registry untouched")
			return
		}
	}

	t.c.leave(ctx, t.logger, t.guildID)
	if conn != nil {
		t.c.registry.EvictIf(t.guildID, conn)
	}
	t.logger.Info("voice connection disconnected")
}

func (t *sessionTasks) serverUpdate(ctx context.Context) (VoiceServerEvent, error) {
	p := listen(t.c.bus.SubscribeVoiceServer, t.c.bus.Done(), func(e VoiceServerEvent) bool {
		return e.GuildID == t.guildID
	})
	e, err := p.wait(ctx)
	if errors.Is(err, ErrEventStreamClosed) {
		return e, &TransportError{Op: "await voice server update", Err: err}
	}
	return e, err
}

func (t *sessionTasks) stateUpdate(ctx context.Context) (VoiceStateEvent, error) {
	p := listen(t.c.bus.SubscribeVoiceState, t.c.bus.Done(), t.c.selfStateIn(t.guildID))
	e, err := p.wait(ctx)
	if errors.Is(err, ErrEventStreamClosed) {
		return e, &TransportError{Op: "await voice state update", Err: err}
	}
	return e, err
}

func (t *sessionTasks) channelRetrieve() (string, bool) {
	if t.c.voiceStates == nil {
		return "", false
	}
	state, ok := t.c.voiceStates.VoiceState(t.guildID, t.c.selfUserID)
	if !ok || state.ChannelID == "" {
		return "", false
	}
	return state.ChannelID, true
}
