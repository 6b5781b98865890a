package voice

// VoiceStateEvent is published whenever any user's voice state changes.
// An empty ChannelID means the user is not in a voice channel.
type VoiceStateEvent struct {
	UserID    string
	GuildID   string
	ChannelID string
	SessionID string
	SelfMute  bool
	SelfDeaf  bool
}

// VoiceServerEvent is published when the platform assigns a voice server.
// Endpoint is empty while the server is being migrated.
type VoiceServerEvent struct {
	GuildID  string
	Token    string
	Endpoint string
}

// SessionParameters is everything needed to open a voice gateway session.
type SessionParameters struct {
	GuildID    string
	SelfUserID string
	SessionID  string
	Token      string
	Endpoint   string
}

func NewSessionParameters(selfUserID string, state VoiceStateEvent, server VoiceServerEvent) SessionParameters {
	return SessionParameters{
		GuildID:    server.GuildID,
		SelfUserID: selfUserID,
		SessionID:  state.SessionID,
		Token:      server.Token,
		Endpoint:   server.Endpoint,
	}
}
