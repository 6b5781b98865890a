package handler

import (
	"fmt"

	"github.com/bwmarrin/discordgo"
)

var voiceChannelTypes = []discordgo.ChannelType{
	discordgo.ChannelTypeGuildVoice,
	discordgo.ChannelTypeGuildStageVoice,
}

// Commands is a list of all the commands the bot can handle.
// This is used to register the commands with Discord.
var Commands = []*discordgo.ApplicationCommand{
	{
		Name:        "voice",
		Description: "Move the bot in and out of voice channels",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Name:        "join",
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Description: "Join a voice channel",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Name:         "channel",
						Type:         discordgo.ApplicationCommandOptionChannel,
						Description:  "The channel to join. Defaults to the one you are in.",
						ChannelTypes: voiceChannelTypes,
						Required:     false,
					},
					{
						Name:        "mute",
						Type:        discordgo.ApplicationCommandOptionBoolean,
						Description: "Join self-muted.",
						Required:    false,
					},
					{
						Name:        "deaf",
						Type:        discordgo.ApplicationCommandOptionBoolean,
						Description: "Join self-deafened.",
						Required:    false,
					},
				},
			},
			{
				Name:        "leave",
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Description: "Leave the voice channel in this server",
			},
		},
	},
}

func EstablishCommands(s *discordgo.Session, guildID string) error {
	_, err := s.ApplicationCommandBulkOverwrite(s.State.User.ID, guildID, Commands)
	if err != nil {
		return fmt.Errorf("failed to establish commands: %w", err)
	}
	return nil
}
