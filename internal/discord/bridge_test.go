package discord

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/google/go-cmp/cmp"

	"github.com/glizzus/voicelink/internal/eventbus"
	"github.com/glizzus/voicelink/internal/voice"
)

type voiceJoin struct {
	GuildID, ChannelID string
	Mute, Deaf         bool
}

type fakeGateway struct {
	mu       sync.Mutex
	handlers int
	removed  int
	joins    []voiceJoin
	err      error
}

func (g *fakeGateway) AddHandler(any) func() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.handlers++
	return func() {
		g.mu.Lock()
		defer g.mu.Unlock()
		g.removed++
	}
}

func (g *fakeGateway) ChannelVoiceJoinManual(guildID, channelID string, mute, deaf bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return g.err
	}
	g.joins = append(g.joins, voiceJoin{guildID, channelID, mute, deaf})
	return nil
}

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestBridgePublishesVoiceEvents(t *testing.T) {
	bus := eventbus.New()
	b := newBridge(&fakeGateway{}, discordgo.IntentsGuildVoiceStates, nil, bus, discard)

	var (
		states  []voice.VoiceStateEvent
		servers []voice.VoiceServerEvent
	)
	bus.SubscribeVoiceState(func(e voice.VoiceStateEvent) { states = append(states, e) })
	bus.SubscribeVoiceServer(func(e voice.VoiceServerEvent) { servers = append(servers, e) })

	b.onVoiceStateUpdate(nil, &discordgo.VoiceStateUpdate{VoiceState: &discordgo.VoiceState{
		GuildID:   "G1",
		ChannelID: "C1",
		UserID:    "self",
		SessionID: "s1",
		SelfDeaf:  true,
	}})
	b.onVoiceStateUpdate(nil, &discordgo.VoiceStateUpdate{})
	b.onVoiceServerUpdate(nil, &discordgo.VoiceServerUpdate{GuildID: "G1", Token: "t1", Endpoint: "voice.example:443"})

	wantStates := []voice.VoiceStateEvent{{UserID: "self", GuildID: "G1", ChannelID: "C1", SessionID: "s1", SelfDeaf: true}}
	if diff := cmp.Diff(wantStates, states); diff != "" {
		t.Errorf("voice states mismatch (-want +got):\n%s", diff)
	}
	wantServers := []voice.VoiceServerEvent{{GuildID: "G1", Token: "t1", Endpoint: "voice.example:443"}}
	if diff := cmp.Diff(wantServers, servers); diff != "" {
		t.Errorf("voice servers mismatch (-want +got):\n%s", diff)
	}
}

func TestBridgeUpdateVoiceState(t *testing.T) {
	gateway := &fakeGateway{}
	b := newBridge(gateway, 0, nil, eventbus.New(), discard)

	if err := b.UpdateVoiceState(t.Context(), "G1", "C1", true, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := b.UpdateVoiceState(t.Context(), "G1", "", false, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	if err := b.UpdateVoiceState(ctx, "G1", "C2", false, false); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}

	want := []voiceJoin{
		{GuildID: "G1", ChannelID: "C1", Mute: true},
		{GuildID: "G1"},
	}
	if diff := cmp.Diff(want, gateway.joins); diff != "" {
		t.Errorf("voice joins mismatch (-want +got):\n%s", diff)
	}

	gateway.err = errors.New("websocket closed")
	if err := b.UpdateVoiceState(t.Context(), "G1", "C1", false, false); !errors.Is(err, gateway.err) {
		t.Errorf("expected wrapped gateway error, got %v", err)
	}
}

func TestBridgeHasCapability(t *testing.T) {
	tc := []struct {
		name    string
		intents discordgo.Intent
		want    bool
	}{
		{name: "voice states intent", intents: discordgo.IntentsGuilds | discordgo.IntentsGuildVoiceStates, want: true},
		{name: "without voice states intent", intents: discordgo.IntentsGuilds, want: false},
	}

	for _, test := range tc {
		t.Run(test.name, func(t *testing.T) {
			b := newBridge(&fakeGateway{}, test.intents, nil, eventbus.New(), discard)
			if got := b.HasCapability(voice.CapabilityVoiceStates); got != test.want {
				t.Errorf("HasCapability() = %v, want %v", got, test.want)
			}
		})
	}
}

func TestBridgeVoiceState(t *testing.T) {
	state := discordgo.NewState()
	err := state.GuildAdd(&discordgo.Guild{
		ID: "G1",
		VoiceStates: []*discordgo.VoiceState{
			{GuildID: "G1", ChannelID: "C1", UserID: "self", SessionID: "s1"},
		},
	})
	if err != nil {
		t.Fatalf("failed to seed state: %v", err)
	}

	b := newBridge(&fakeGateway{}, 0, state, eventbus.New(), discard)

	got, ok := b.VoiceState("G1", "self")
	if !ok {
		t.Fatal("expected a voice state")
	}
	want := voice.VoiceStateEvent{UserID: "self", GuildID: "G1", ChannelID: "C1", SessionID: "s1"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("voice state mismatch (-want +got):\n%s", diff)
	}

	if _, ok := b.VoiceState("G1", "someone-else"); ok {
		t.Error("expected no voice state for an unknown user")
	}
	if _, ok := b.VoiceState("G2", "self"); ok {
		t.Error("expected no voice state for an unknown guild")
	}
}

func TestBridgeClose(t *testing.T) {
	gateway := &fakeGateway{}
	bus := eventbus.New()
	b := newBridge(gateway, 0, nil, bus, discard)

	b.Close()
	b.Close()

	if gateway.removed != gateway.handlers {
		t.Errorf("expected %d handlers removed, got %d", gateway.handlers, gateway.removed)
	}
	select {
	case <-bus.Done():
	default:
		t.Error("expected the bus to be closed")
	}
}
