package voice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/glizzus/voicelink/internal/generator"
)

const defaultCleanupTimeout = 5 * time.Second

type CoordinatorConfig struct {
	// SelfUserID is the user the session is logged in as.
	SelfUserID   string
	Bus          EventBus
	Commands     CommandChannel
	Gateway      GatewayFactory
	Capabilities CapabilityChecker

	// Optional. A fresh Registry is created when nil.
	Registry *Registry
	// Optional. Without it the channel-retrieve task reports no channel.
	VoiceStates VoiceStateReader
	// Optional. Defaults to UUIDv4 attempt IDs.
	IDs generator.Generator[string]
	// Optional. Defaults to slog.Default().
	Logger *slog.Logger
	// CleanupTimeout bounds best-effort leave commands. Defaults to 5s.
	CleanupTimeout time.Duration
}

// Coordinator runs the voice join handshake.
// Joins for the same guild are serialized; distinct guilds proceed in parallel.
type Coordinator struct {
	selfUserID     string
	bus            EventBus
	commands       CommandChannel
	gateway        GatewayFactory
	capabilities   CapabilityChecker
	registry       *Registry
	voiceStates    VoiceStateReader
	ids            generator.Generator[string]
	logger         *slog.Logger
	cleanupTimeout time.Duration

	locksMu sync.Mutex
	locks   map[string]*guildLock
}

type guildLock struct {
	sem  chan struct{}
	refs int
}

func NewCoordinator(cfg CoordinatorConfig) (*Coordinator, error) {
	switch {
	case cfg.SelfUserID == "":
		return nil, fmt.Errorf("self user ID is required")
	case cfg.Bus == nil:
		return nil, fmt.Errorf("event bus is required")
	case cfg.Commands == nil:
		return nil, fmt.Errorf("command channel is required")
	case cfg.Gateway == nil:
		return nil, fmt.Errorf("gateway factory is required")
	case cfg.Capabilities == nil:
		return nil, fmt.Errorf("capability checker is required")
	}

	if cfg.Registry == nil {
		cfg.Registry = NewRegistry()
	}
	if cfg.IDs == nil {
		cfg.IDs = &generator.UUIDV4Generator{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.CleanupTimeout <= 0 {
		cfg.CleanupTimeout = defaultCleanupTimeout
	}

	return &Coordinator{
		selfUserID:     cfg.SelfUserID,
		bus:            cfg.Bus,
		commands:       cfg.Commands,
		gateway:        cfg.Gateway,
		capabilities:   cfg.Capabilities,
		registry:       cfg.Registry,
		voiceStates:    cfg.VoiceStates,
		ids:            cfg.IDs,
		logger:         cfg.Logger,
		cleanupTimeout: cfg.CleanupTimeout,
		locks:          make(map[string]*guildLock),
	}, nil
}

// Connection returns the registered connection for a guild.
func (c *Coordinator) Connection(guildID string) (Connection, bool) {
	return c.registry.Get(guildID)
}

// Disconnect tears down the guild's connection through its disconnect task.
func (c *Coordinator) Disconnect(ctx context.Context, guildID string) {
	unlock, err := c.lockGuild(ctx, guildID)
	if err != nil {
		c.logger.Warn("gave up waiting to disconnect", "guildID", guildID, "error", err)
		return
	}
	defer unlock()

	conn, ok := c.registry.Get(guildID)
	if !ok {
		c.logger.Debug("no voice connection to disconnect", "guildID", guildID)
		return
	}
	conn.Disconnect(ctx)
}

// DisconnectAll disconnects every registered guild, one at a time.
func (c *Coordinator) DisconnectAll(ctx context.Context) {
	for _, guildID := range c.registry.Guilds() {
		c.Disconnect(ctx, guildID)
	}
}

// Join returns a connection to req.ChannelID. An existing connection for the
// guild is reused after its voice state is updated; otherwise a new session is
// negotiated within req.Timeout.
func (c *Coordinator) Join(ctx context.Context, req JoinRequest) (Connection, error) {
	req = req.withDefaults()
	logger := c.logger.With(
		slog.String("attemptID", c.attemptID()),
		slog.String("guildID", req.GuildID),
		slog.String("channelID", req.ChannelID),
	)

	if !c.capabilities.HasCapability(CapabilityVoiceStates) {
		return nil, &CapabilityError{Capability: CapabilityVoiceStates}
	}

	timeoutErr := &TimeoutError{GuildID: req.GuildID, Timeout: req.Timeout}
	ctx, cancel := context.WithTimeoutCause(ctx, req.Timeout, timeoutErr)
	defer cancel()

	unlock, err := c.lockGuild(ctx, req.GuildID)
	if err != nil {
		if conn, ok := c.timedOutWithConnection(ctx, req.GuildID); ok {
			return conn, nil
		}
		return nil, context.Cause(ctx)
	}
	defer unlock()

	if existing, ok := c.registry.Get(req.GuildID); ok {
		return c.reuse(ctx, logger, req, existing)
	}
	return c.establish(ctx, logger, req)
}

func (c *Coordinator) reuse(ctx context.Context, logger *slog.Logger, req JoinRequest, existing Connection) (Connection, error) {
	ack := listen(c.bus.SubscribeVoiceState, c.bus.Done(), c.selfStateIn(req.GuildID))
	defer ack.cancel()

	if err := c.commands.UpdateVoiceState(ctx, req.GuildID, req.ChannelID, req.SelfMute, req.SelfDeaf); err != nil {
		return nil, &TransportError{Op: "send voice state update", Err: err}
	}

	if _, err := ack.wait(ctx); err != nil {
		switch {
		case errors.Is(err, ErrEventStreamClosed):
			return nil, &TransportError{Op: "await voice state", Err: err}
		case isTimeout(ctx):
			logger.Warn("voice state update was not acknowledged, reusing connection anyway")
		default:
			return nil, context.Cause(ctx)
		}
	}

	logger.Info("reusing voice connection", "selfMute", req.SelfMute, "selfDeaf", req.SelfDeaf)
	return existing, nil
}

func (c *Coordinator) establish(ctx context.Context, logger *slog.Logger, req JoinRequest) (Connection, error) {
	state := listen(c.bus.SubscribeVoiceState, c.bus.Done(), c.selfStateIn(req.GuildID))
	defer state.cancel()
	server := listen(c.bus.SubscribeVoiceServer, c.bus.Done(), func(e VoiceServerEvent) bool {
		return e.GuildID == req.GuildID && e.Endpoint != ""
	})
	defer server.cancel()

	if err := c.commands.UpdateVoiceState(ctx, req.GuildID, req.ChannelID, req.SelfMute, req.SelfDeaf); err != nil {
		if ctx.Err() != nil {
			return c.abandon(ctx, logger, req.GuildID, err)
		}
		return nil, &TransportError{Op: "send voice state update", Err: err}
	}

	var (
		stateEvent  VoiceStateEvent
		serverEvent VoiceServerEvent
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		stateEvent, err = state.wait(gctx)
		return err
	})
	g.Go(func() (err error) {
		serverEvent, err = server.wait(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return c.abandon(ctx, logger, req.GuildID, err)
	}

	params := NewSessionParameters(c.selfUserID, stateEvent, serverEvent)
	logger.Debug("voice session parameters resolved", "sessionID", params.SessionID, "endpoint", params.Endpoint)

	tasks := c.newSessionTasks(logger, req.GuildID)
	conn, err := c.gateway.Create(ctx, params, req.gatewayOptions(), tasks.bundle())
	if err != nil {
		return c.abandon(ctx, logger, req.GuildID, fmt.Errorf("create voice gateway: %w", err))
	}
	tasks.bind(conn)

	c.register(logger, req.GuildID, conn)
	logger.Info("voice connection established", "endpoint", params.Endpoint)
	return conn, nil
}

// abandon cleans up after a cold path that produced no connection and picks
// the error the caller sees.
func (c *Coordinator) abandon(ctx context.Context, logger *slog.Logger, guildID string, err error) (Connection, error) {
	if conn, ok := c.timedOutWithConnection(ctx, guildID); ok {
		logger.Info("voice connection appeared while timing out, using it")
		return conn, nil
	}

	c.leave(ctx, logger, guildID)

	if ctx.Err() != nil {
		return nil, context.Cause(ctx)
	}
	if errors.Is(err, ErrEventStreamClosed) {
		return nil, &TransportError{Op: "await voice events", Err: err}
	}
	return nil, err
}

func (c *Coordinator) timedOutWithConnection(ctx context.Context, guildID string) (Connection, bool) {
	if !isTimeout(ctx) {
		return nil, false
	}
	return c.registry.Get(guildID)
}

// leave asks the platform to drop our voice state. It never fails.
func (c *Coordinator) leave(ctx context.Context, logger *slog.Logger, guildID string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cleanupTimeout)
	defer cancel()

	if err := c.commands.UpdateVoiceState(ctx, guildID, "", false, false); err != nil {
		logger.Warn("failed to send voice leave command", "error", err)
		return
	}
	logger.Debug("sent voice leave command")
}

func (c *Coordinator) register(logger *slog.Logger, guildID string, conn Connection) {
	previous, replaced := c.registry.Swap(guildID, conn)
	if !replaced || previous == conn {
		return
	}

	logger.Warn("replacing an existing voice connection")
	if err := previous.Close(); err != nil {
		logger.Warn("failed to close replaced voice connection", "error", err)
	}
}

func (c *Coordinator) selfStateIn(guildID string) func(VoiceStateEvent) bool {
	return func(e VoiceStateEvent) bool {
		return e.UserID == c.selfUserID && e.GuildID == guildID
	}
}

func (c *Coordinator) attemptID() string {
	id, err := c.ids.Next()
	if err != nil {
		c.logger.Warn("failed to generate attempt ID", "error", err)
		return "unknown"
	}
	return id
}

func (c *Coordinator) lockGuild(ctx context.Context, guildID string) (unlock func(), err error) {
	c.locksMu.Lock()
	lock, ok := c.locks[guildID]
	if !ok {
		lock = &guildLock{sem: make(chan struct{}, 1)}
		c.locks[guildID] = lock
	}
	lock.refs++
	c.locksMu.Unlock()

	release := func() {
		c.locksMu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(c.locks, guildID)
		}
		c.locksMu.Unlock()
	}

	select {
	case lock.sem <- struct{}{}:
		return func() {
			<-lock.sem
			release()
		}, nil
	case <-ctx.Done():
		release()
		return nil, ctx.Err()
	}
}

func isTimeout(ctx context.Context) bool {
	var timeoutErr *TimeoutError
	return errors.As(context.Cause(ctx), &timeoutErr)
}
