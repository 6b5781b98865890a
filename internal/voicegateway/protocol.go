package voicegateway

import "encoding/json"

const gatewayVersion = "4"

const (
	opIdentify           = 0
	opSelectProtocol     = 1
	opReady              = 2
	opHeartbeat          = 3
	opSessionDescription = 4
	opSpeaking           = 5
	opHeartbeatAck       = 6
	opHello              = 8
)

// preferredModes is ordered by preference.
var preferredModes = []string{
	"aead_aes256_gcm_rtpsize",
	"aead_xchacha20_poly1305_rtpsize",
	"xsalsa20_poly1305_lite",
	"xsalsa20_poly1305",
}

type frame struct {
	Op   int             `json:"op"`
	Data json.RawMessage `json:"d,omitempty"`
}

type outgoing struct {
	Op   int `json:"op"`
	Data any `json:"d"`
}

type identifyData struct {
	ServerID  string `json:"server_id"`
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
	Token     string `json:"token"`
}

type helloData struct {
	HeartbeatInterval float64 `json:"heartbeat_interval"`
}

type readyData struct {
	SSRC  uint32   `json:"ssrc"`
	IP    string   `json:"ip"`
	Port  int      `json:"port"`
	Modes []string `json:"modes"`
}

type selectProtocolData struct {
	Protocol string             `json:"protocol"`
	Data     selectProtocolAddr `json:"data"`
}

type selectProtocolAddr struct {
	Address string `json:"address"`
	Port    uint16 `json:"port"`
	Mode    string `json:"mode"`
}

type sessionDescriptionData struct {
	Mode string `json:"mode"`
	// A JSON array of numbers, so it cannot be decoded into []byte directly.
	SecretKey []int `json:"secret_key"`
}

func (d sessionDescriptionData) key() []byte {
	key := make([]byte, len(d.SecretKey))
	for i, b := range d.SecretKey {
		key[i] = byte(b)
	}
	return key
}

type speakingData struct {
	Speaking int    `json:"speaking"`
	Delay    int    `json:"delay"`
	SSRC     uint32 `json:"ssrc"`
}

func chooseMode(offered []string) string {
	set := make(map[string]struct{}, len(offered))
	for _, m := range offered {
		set[m] = struct{}{}
	}
	for _, m := range preferredModes {
		if _, ok := set[m]; ok {
			return m
		}
	}
	if len(offered) > 0 {
		return offered[0]
	}
	return ""
}
