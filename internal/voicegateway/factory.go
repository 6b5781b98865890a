package voicegateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/glizzus/voicelink/internal/voice"
)

const defaultMigrationTimeout = 10 * time.Second

type Config struct {
	// Scheme used to dial endpoints. Defaults to "wss".
	Scheme string
	// Dialer defaults to websocket.DefaultDialer.
	Dialer *websocket.Dialer
	// MigrationTimeout bounds renegotiation after a voice server change.
	MigrationTimeout time.Duration
	Logger           *slog.Logger
}

// Factory implements voice.GatewayFactory.
type Factory struct {
	scheme           string
	dialer           *websocket.Dialer
	migrationTimeout time.Duration
	logger           *slog.Logger
}

func NewFactory(cfg Config) *Factory {
	if cfg.Scheme == "" {
		cfg.Scheme = "wss"
	}
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	if cfg.MigrationTimeout <= 0 {
		cfg.MigrationTimeout = defaultMigrationTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Factory{
		scheme:           cfg.Scheme,
		dialer:           cfg.Dialer,
		migrationTimeout: cfg.MigrationTimeout,
		logger:           cfg.Logger,
	}
}

var _ voice.GatewayFactory = (*Factory)(nil)

// Create negotiates a session. On failure every socket it opened is closed
// before the error is returned.
func (f *Factory) Create(ctx context.Context, params voice.SessionParameters, opts voice.GatewayOptions, tasks voice.Tasks) (voice.Connection, error) {
	logger := f.logger.With(slog.String("guildID", params.GuildID))

	l, err := f.negotiate(ctx, logger, params, opts)
	if err != nil {
		return nil, err
	}

	s := newSession(f, logger, params, opts, tasks, l)
	s.start()
	return s, nil
}

func (f *Factory) gatewayURL(endpoint string) string {
	// The platform sometimes appends a bogus :80 to endpoints.
	host := strings.TrimSuffix(endpoint, ":80")
	u := url.URL{
		Scheme:   f.scheme,
		Host:     host,
		Path:     "/",
		RawQuery: "v=" + gatewayVersion,
	}
	return u.String()
}

func (f *Factory) negotiate(ctx context.Context, logger *slog.Logger, params voice.SessionParameters, opts voice.GatewayOptions) (_ *link, err error) {
	ws, _, err := f.dialer.DialContext(ctx, f.gatewayURL(params.Endpoint), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial voice gateway: %w", err)
	}

	l := &link{ws: ws, done: make(chan struct{})}
	defer func() {
		if err != nil {
			l.close()
		}
	}()

	// Unblock reads when the caller gives up.
	stop := context.AfterFunc(ctx, l.close)
	defer stop()

	if err := l.write(opIdentify, identifyData{
		ServerID:  params.GuildID,
		UserID:    params.SelfUserID,
		SessionID: params.SessionID,
		Token:     params.Token,
	}); err != nil {
		return nil, fmt.Errorf("failed to identify: %w", err)
	}

	var (
		ready     *readyData
		heartbeat time.Duration
	)
	for ready == nil || heartbeat == 0 {
		msg, err := l.read()
		if err != nil {
			return nil, readErr(ctx, "waiting for ready", err)
		}
		switch msg.Op {
		case opHello:
			var hello helloData
			if err := json.Unmarshal(msg.Data, &hello); err != nil {
				return nil, fmt.Errorf("failed to decode hello: %w", err)
			}
			if hello.HeartbeatInterval <= 0 {
				return nil, fmt.Errorf("invalid heartbeat interval %v", hello.HeartbeatInterval)
			}
			heartbeat = time.Duration(hello.HeartbeatInterval * float64(time.Millisecond))
		case opReady:
			ready = &readyData{}
			if err := json.Unmarshal(msg.Data, ready); err != nil {
				return nil, fmt.Errorf("failed to decode ready: %w", err)
			}
		}
	}
	l.ssrc = ready.SSRC
	l.heartbeat = heartbeat

	var d net.Dialer
	udp, err := d.DialContext(ctx, "udp", net.JoinHostPort(ready.IP, strconv.Itoa(ready.Port)))
	if err != nil {
		return nil, fmt.Errorf("failed to dial voice udp: %w", err)
	}
	if !l.attachUDP(udp) {
		return nil, readErr(ctx, "dialing voice udp", net.ErrClosed)
	}

	address, port, err := discover(ctx, udp, ready.SSRC, opts.IPDiscoveryTimeout, opts.IPDiscoveryRetry)
	if err != nil {
		return nil, err
	}
	l.address, l.port = address, port
	logger.Debug("ip discovery complete", "address", address, "port", port)

	mode := chooseMode(ready.Modes)
	if err := l.write(opSelectProtocol, selectProtocolData{
		Protocol: "udp",
		Data:     selectProtocolAddr{Address: address, Port: port, Mode: mode},
	}); err != nil {
		return nil, fmt.Errorf("failed to select protocol: %w", err)
	}

	for {
		msg, err := l.read()
		if err != nil {
			return nil, readErr(ctx, "waiting for session description", err)
		}
		if msg.Op != opSessionDescription {
			continue
		}
		var desc sessionDescriptionData
		if err := json.Unmarshal(msg.Data, &desc); err != nil {
			return nil, fmt.Errorf("failed to decode session description: %w", err)
		}
		l.mode = desc.Mode
		l.secretKey = desc.key()

		if !stop() {
			// The context ended and the link is already being torn down.
			return nil, readErr(ctx, "waiting for session description", net.ErrClosed)
		}
		return l, nil
	}
}

func readErr(ctx context.Context, step string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%s: %w", step, ctxErr)
	}
	return fmt.Errorf("%s: %w", step, err)
}
