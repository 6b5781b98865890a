package handler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"

	"github.com/glizzus/voicelink/internal/voice"
)

type ReadyHandler = func(*discordgo.Session, *discordgo.Ready)
type InteractionCreateHandler = func(*discordgo.Session, *discordgo.InteractionCreate)

var ReadyLog = func(s *discordgo.Session, r *discordgo.Ready) {
	username := r.User.Username
	userID := r.User.ID
	slog.Info("Bot is ready", "username", username, "userID", userID)
}

// DiscordSession is the part of *discordgo.Session interactions are answered with.
type DiscordSession interface {
	InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
	InteractionResponseEdit(interaction *discordgo.Interaction, newresp *discordgo.WebhookEdit, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

var _ DiscordSession = (*discordgo.Session)(nil)

// Joiner is the part of voice.Coordinator the commands drive.
type Joiner interface {
	Join(ctx context.Context, req voice.JoinRequest) (voice.Connection, error)
	Disconnect(ctx context.Context, guildID string)
	Connection(guildID string) (voice.Connection, bool)
}

var _ Joiner = (*voice.Coordinator)(nil)

// CommandToJoinRequest builds a join request from /voice join options. When
// no channel is given the member's current voice channel is used.
func CommandToJoinRequest(
	guildID, userID string,
	options []*discordgo.ApplicationCommandInteractionDataOption,
	states voice.VoiceStateReader,
	defaults ...voice.JoinOption,
) (voice.JoinRequest, error) {
	var (
		channelID string
		overrides []voice.JoinOption
	)

	for _, option := range options {
		switch option.Name {
		case "channel":
			if option.Type != discordgo.ApplicationCommandOptionChannel {
				return voice.JoinRequest{}, fmt.Errorf("invalid type for channel option")
			}
			channelID = option.ChannelValue(nil).ID
		case "mute":
			if option.Type != discordgo.ApplicationCommandOptionBoolean {
				return voice.JoinRequest{}, fmt.Errorf("invalid type for mute option")
			}
			overrides = append(overrides, voice.WithSelfMute(option.BoolValue()))
		case "deaf":
			if option.Type != discordgo.ApplicationCommandOptionBoolean {
				return voice.JoinRequest{}, fmt.Errorf("invalid type for deaf option")
			}
			overrides = append(overrides, voice.WithSelfDeaf(option.BoolValue()))
		}
	}

	if channelID == "" && states != nil {
		if vs, ok := states.VoiceState(guildID, userID); ok {
			channelID = vs.ChannelID
		}
	}
	if channelID == "" {
		return voice.JoinRequest{}, &UserError{Message: "Pick a channel, or join one yourself first."}
	}

	opts := append(append([]voice.JoinOption(nil), defaults...), overrides...)
	return voice.NewJoinRequest(guildID, channelID, opts...), nil
}

type VoiceCommandsConfig struct {
	Voice       Joiner
	VoiceStates voice.VoiceStateReader
	JoinOptions []voice.JoinOption
	Logger      *slog.Logger
}

// VoiceCommands answers the /voice command.
type VoiceCommands struct {
	voice       Joiner
	states      voice.VoiceStateReader
	joinOptions []voice.JoinOption
	logger      *slog.Logger
}

func NewVoiceCommands(cfg VoiceCommandsConfig) *VoiceCommands {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &VoiceCommands{
		voice:       cfg.Voice,
		states:      cfg.VoiceStates,
		joinOptions: cfg.JoinOptions,
		logger:      cfg.Logger,
	}
}

// Handle answers one interaction. Joins can outlast Discord's three second
// response window, so the reply is deferred and edited afterwards.
func (v *VoiceCommands) Handle(ctx context.Context, s DiscordSession, i *discordgo.InteractionCreate) error {
	if i.Type != discordgo.InteractionApplicationCommand {
		return nil
	}
	command := i.ApplicationCommandData()
	if command.Name != "voice" {
		return nil
	}
	if len(command.Options) == 0 {
		v.logger.Warn("No subcommand provided for voice command")
		return nil
	}

	if i.GuildID == "" || i.Member == nil || i.Member.User == nil {
		return v.respond(s, i, "Voice commands only work inside a server.")
	}

	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	})
	if err != nil {
		return fmt.Errorf("failed to defer response: %w", err)
	}

	message, err := v.run(ctx, i, command.Options[0])
	if err != nil {
		v.logger.Warn("Voice command failed",
			"guildID", i.GuildID,
			"subcommand", command.Options[0].Name,
			"error", err,
		)
		message = UserMessage(err)
	}

	if _, err := s.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{Content: &message}); err != nil {
		return fmt.Errorf("failed to edit response: %w", err)
	}
	return nil
}

func (v *VoiceCommands) run(ctx context.Context, i *discordgo.InteractionCreate, sub *discordgo.ApplicationCommandInteractionDataOption) (string, error) {
	switch sub.Name {
	case "join":
		req, err := CommandToJoinRequest(i.GuildID, i.Member.User.ID, sub.Options, v.states, v.joinOptions...)
		if err != nil {
			return "", err
		}
		if _, err := v.voice.Join(ctx, req); err != nil {
			return "", err
		}
		return fmt.Sprintf("Joined <#%s>.", req.ChannelID), nil
	case "leave":
		if _, ok := v.voice.Connection(i.GuildID); !ok {
			return "", &UserError{Message: "I am not in a voice channel here."}
		}
		v.voice.Disconnect(ctx, i.GuildID)
		return "Left the voice channel.", nil
	default:
		return "", fmt.Errorf("unknown voice subcommand %q", sub.Name)
	}
}

func (v *VoiceCommands) respond(s DiscordSession, i *discordgo.InteractionCreate, message string) error {
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: message,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to respond: %w", err)
	}
	return nil
}

func MakeInteractionCreateHandler(commands *VoiceCommands) InteractionCreateHandler {
	return func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		if err := commands.Handle(context.Background(), s, i); err != nil {
			slog.Error("Failed to handle interaction", "error", err)
		}
	}
}

type Handlers struct {
	Ready             ReadyHandler
	InteractionCreate InteractionCreateHandler
}

// Intents the bot identifies with. Voice states are required for joins.
const Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildVoiceStates

func NewSession(token string, handlers Handlers) (*discordgo.Session, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, err
	}
	s.Identify.Intents = Intents

	if handlers.Ready != nil {
		s.AddHandler(handlers.Ready)
	}
	if handlers.InteractionCreate != nil {
		s.AddHandler(handlers.InteractionCreate)
	}

	return s, nil
}
