package voice_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/glizzus/voicelink/internal/eventbus"
	"github.com/glizzus/voicelink/internal/generator"
	"github.com/glizzus/voicelink/internal/voice"
)

const (
	selfID   = "self"
	guildID  = "G1"
	channel  = "C1"
	session  = "s1"
	token    = "t1"
	endpoint = "voice.example:443"
)

type command struct {
	GuildID   string
	ChannelID string
	SelfMute  bool
	SelfDeaf  bool
}

// fakePlatform answers voice state commands the way the real platform does:
// by publishing the caller's new voice state and a voice server assignment.
type fakePlatform struct {
	bus *eventbus.Bus

	serverFirst bool
	noState     bool
	noServer    bool
	sendErr     error

	mu       sync.Mutex
	commands []command
}

func (p *fakePlatform) UpdateVoiceState(ctx context.Context, guildID, channelID string, selfMute, selfDeaf bool) error {
	p.mu.Lock()
	p.commands = append(p.commands, command{guildID, channelID, selfMute, selfDeaf})
	err := p.sendErr
	p.mu.Unlock()
	if err != nil {
		return err
	}
	if channelID == "" {
		return nil
	}

	go func() {
		state := voice.VoiceStateEvent{
			UserID:    selfID,
			GuildID:   guildID,
			ChannelID: channelID,
			SessionID: session,
			SelfMute:  selfMute,
			SelfDeaf:  selfDeaf,
		}
		server := voice.VoiceServerEvent{GuildID: guildID, Token: token, Endpoint: endpoint}

		// Noise that the coordinator has to filter out.
		p.bus.PublishVoiceState(voice.VoiceStateEvent{UserID: "someone-else", GuildID: guildID, SessionID: "other"})
		p.bus.PublishVoiceServer(voice.VoiceServerEvent{GuildID: guildID, Token: "migrating"})

		if p.serverFirst && !p.noServer {
			p.bus.PublishVoiceServer(server)
		}
		if !p.noState {
			p.bus.PublishVoiceState(state)
		}
		if !p.serverFirst && !p.noServer {
			p.bus.PublishVoiceServer(server)
		}
	}()
	return nil
}

func (p *fakePlatform) Commands() []command {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]command(nil), p.commands...)
}

func (p *fakePlatform) Leaves() int {
	n := 0
	for _, c := range p.Commands() {
		if c.ChannelID == "" {
			n++
		}
	}
	return n
}

type fakeConn struct {
	guildID string
	tasks   voice.Tasks
	closed  atomic.Bool
}

func (c *fakeConn) GuildID() string { return c.guildID }

func (c *fakeConn) ChannelID() string {
	if c.tasks.ChannelRetrieve == nil {
		return ""
	}
	id, _ := c.tasks.ChannelRetrieve()
	return id
}

func (c *fakeConn) Disconnect(ctx context.Context) {
	c.closed.Store(true)
	if c.tasks.Disconnect != nil {
		c.tasks.Disconnect(ctx)
	}
}

func (c *fakeConn) Close() error {
	c.closed.Store(true)
	return nil
}

var _ voice.Connection = (*fakeConn)(nil)

type fakeGateway struct {
	err   error
	block bool

	mu     sync.Mutex
	params []voice.SessionParameters
	opts   []voice.GatewayOptions
	tasks  []voice.Tasks
}

func (g *fakeGateway) Create(ctx context.Context, params voice.SessionParameters, opts voice.GatewayOptions, tasks voice.Tasks) (voice.Connection, error) {
	g.mu.Lock()
	g.params = append(g.params, params)
	g.opts = append(g.opts, opts)
	g.tasks = append(g.tasks, tasks)
	g.mu.Unlock()

	if g.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if g.err != nil {
		return nil, g.err
	}
	return &fakeConn{guildID: params.GuildID, tasks: tasks}, nil
}

func (g *fakeGateway) Params() []voice.SessionParameters {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]voice.SessionParameters(nil), g.params...)
}

func (g *fakeGateway) LastTasks() voice.Tasks {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.tasks[len(g.tasks)-1]
}

type capabilities bool

func (c capabilities) HasCapability(voice.Capability) bool { return bool(c) }

type voiceStates map[string]voice.VoiceStateEvent

func (v voiceStates) VoiceState(guildID, userID string) (voice.VoiceStateEvent, bool) {
	s, ok := v[guildID+"/"+userID]
	return s, ok
}

type harness struct {
	bus         *eventbus.Bus
	platform    *fakePlatform
	gateway     *fakeGateway
	registry    *voice.Registry
	coordinator *voice.Coordinator
}

func newHarness(t *testing.T, opts ...func(*voice.CoordinatorConfig)) *harness {
	t.Helper()

	bus := eventbus.New()
	h := &harness{
		bus:      bus,
		platform: &fakePlatform{bus: bus},
		gateway:  &fakeGateway{},
		registry: voice.NewRegistry(),
	}

	cfg := voice.CoordinatorConfig{
		SelfUserID:   selfID,
		Bus:          bus,
		Commands:     h.platform,
		Gateway:      h.gateway,
		Capabilities: capabilities(true),
		Registry:     h.registry,
		IDs:          &generator.Sequence{Prefix: "attempt"},
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	coordinator, err := voice.NewCoordinator(cfg)
	if err != nil {
		t.Fatalf("failed to create coordinator: %v", err)
	}
	h.coordinator = coordinator
	return h
}
