package voicegateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/glizzus/voicelink/internal/voice"
)

// link is one negotiated websocket + UDP pair. A session replaces its link
// when the voice server migrates.
type link struct {
	ws      *websocket.Conn
	writeMu sync.Mutex

	mu     sync.Mutex
	udp    net.Conn
	closed bool
	done   chan struct{}

	ssrc      uint32
	heartbeat time.Duration
	address   string
	port      uint16
	mode      string
	secretKey []byte
}

func (l *link) write(op int, data any) error {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	return l.ws.WriteJSON(outgoing{Op: op, Data: data})
}

// read must only be called from one goroutine at a time.
func (l *link) read() (frame, error) {
	var f frame
	err := l.ws.ReadJSON(&f)
	return f, err
}

func (l *link) attachUDP(conn net.Conn) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		_ = conn.Close()
		return false
	}
	l.udp = conn
	return true
}

func (l *link) isClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

func (l *link) close() {
	_ = l.closeErr()
}

func (l *link) closeErr() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	udp := l.udp
	close(l.done)
	l.mu.Unlock()

	_ = l.ws.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	err := l.ws.Close()
	if udp != nil {
		err = errors.Join(err, udp.Close())
	}
	return err
}

// Session is a live voice session. It implements voice.Connection.
type Session struct {
	factory *Factory
	logger  *slog.Logger
	guildID string
	opts    voice.GatewayOptions
	tasks   voice.Tasks

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.RWMutex
	params    voice.SessionParameters
	link      *link
	channelID string
	migrating bool

	closeOnce      sync.Once
	closeErr       error
	disconnectOnce sync.Once
}

var _ voice.Connection = (*Session)(nil)

func newSession(f *Factory, logger *slog.Logger, params voice.SessionParameters, opts voice.GatewayOptions, tasks voice.Tasks, l *link) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		factory: f,
		logger:  logger,
		guildID: params.GuildID,
		opts:    opts,
		tasks:   tasks,
		ctx:     ctx,
		cancel:  cancel,
		params:  params,
		link:    l,

		channelID: opts.ChannelID,
	}
}

func (s *Session) start() {
	s.run(s.link)
	if s.tasks.ServerUpdate != nil {
		go s.followServerUpdates()
	}
	if s.tasks.StateUpdate != nil {
		go s.followStateUpdates()
	}
}

func (s *Session) run(l *link) {
	go s.heartbeat(l)
	go s.readLoop(l)
}

func (s *Session) GuildID() string {
	return s.guildID
}

func (s *Session) ChannelID() string {
	if s.tasks.ChannelRetrieve != nil {
		if id, ok := s.tasks.ChannelRetrieve(); ok {
			return id
		}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.channelID
}

// SessionID is the current platform session, refreshed on voice state updates.
func (s *Session) SessionID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.params.SessionID
}

func (s *Session) Endpoint() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.params.Endpoint
}

func (s *Session) SSRC() uint32 {
	return s.current().ssrc
}

// ExternalAddress is the address and port IP discovery resolved.
func (s *Session) ExternalAddress() (string, uint16) {
	l := s.current()
	return l.address, l.port
}

func (s *Session) Mode() string {
	return s.current().mode
}

func (s *Session) SecretKey() []byte {
	return append([]byte(nil), s.current().secretKey...)
}

// UDP returns the media socket of the current link.
func (s *Session) UDP() net.Conn {
	l := s.current()
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.udp
}

func (s *Session) Speaking(speaking bool) error {
	l := s.current()
	flag := 0
	if speaking {
		flag = 1
	}
	if err := l.write(opSpeaking, speakingData{Speaking: flag, SSRC: l.ssrc}); err != nil {
		return fmt.Errorf("failed to update speaking state: %w", err)
	}
	return nil
}

// Disconnect closes the session and runs the disconnect task once.
func (s *Session) Disconnect(ctx context.Context) {
	s.disconnectOnce.Do(func() {
		if err := s.Close(); err != nil {
			s.logger.Warn("failed to close voice session", "error", err)
		}
		if s.tasks.Disconnect != nil {
			s.tasks.Disconnect(ctx)
		}
	})
}

func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		s.mu.Lock()
		l := s.link
		s.mu.Unlock()
		s.closeErr = l.closeErr()
	})
	return s.closeErr
}

func (s *Session) current() *link {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.link
}

func (s *Session) heartbeat(l *link) {
	ticker := time.NewTicker(l.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			if err := l.write(opHeartbeat, time.Now().UnixMilli()); err != nil {
				if !l.isClosed() {
					s.logger.Warn("failed to send voice heartbeat", "error", err)
				}
				return
			}
		}
	}
}

func (s *Session) readLoop(l *link) {
	for {
		msg, err := l.read()
		if err != nil {
			if l.isClosed() {
				return
			}
			s.logger.Warn("voice gateway connection lost", "error", err)
			l.close()
			if s.ownsLink(l) {
				s.Disconnect(context.WithoutCancel(s.ctx))
			}
			return
		}
		if msg.Op == opHeartbeatAck {
			continue
		}
		s.logger.Debug("ignoring voice gateway message", "op", msg.Op)
	}
}

// ownsLink reports whether l is the live link and no migration will replace it.
func (s *Session) ownsLink(l *link) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.link == l && !s.migrating
}

func (s *Session) setMigrating(migrating bool) {
	s.mu.Lock()
	s.migrating = migrating
	s.mu.Unlock()
}

func (s *Session) followServerUpdates() {
	for {
		ev, err := s.tasks.ServerUpdate(s.ctx)
		if err != nil {
			if s.ctx.Err() == nil {
				s.logger.Warn("stopped following voice server updates", "error", err)
			}
			return
		}
		if ev.Endpoint == "" {
			s.logger.Info("voice server is migrating, waiting for a new endpoint")
			continue
		}
		s.migrate(ev)
	}
}

func (s *Session) migrate(ev voice.VoiceServerEvent) {
	s.mu.RLock()
	params := s.params
	s.mu.RUnlock()
	params.Token = ev.Token
	params.Endpoint = ev.Endpoint

	s.setMigrating(true)
	defer s.setMigrating(false)

	ctx, cancel := context.WithTimeout(s.ctx, s.factory.migrationTimeout)
	defer cancel()

	l, err := s.factory.negotiate(ctx, s.logger, params, s.opts)
	if err != nil {
		s.logger.Error("failed to migrate voice session", "endpoint", ev.Endpoint, "error", err)
		if old := s.current(); old.isClosed() {
			// The old server dropped us while we were moving; nothing is left to keep.
			s.Disconnect(context.WithoutCancel(s.ctx))
		}
		return
	}

	s.mu.Lock()
	if s.ctx.Err() != nil {
		s.mu.Unlock()
		l.close()
		return
	}
	old := s.link
	s.link = l
	s.params = params
	s.mu.Unlock()

	old.close()
	s.run(l)
	s.logger.Info("voice session migrated", "endpoint", ev.Endpoint)
}

func (s *Session) followStateUpdates() {
	for {
		ev, err := s.tasks.StateUpdate(s.ctx)
		if err != nil {
			if s.ctx.Err() == nil {
				s.logger.Warn("stopped following voice state updates", "error", err)
			}
			return
		}
		if ev.ChannelID == "" {
			s.logger.Info("removed from voice channel, closing session")
			s.Disconnect(context.WithoutCancel(s.ctx))
			return
		}
		s.mu.Lock()
		s.channelID = ev.ChannelID
		if ev.SessionID != "" {
			s.params.SessionID = ev.SessionID
		}
		s.mu.Unlock()
	}
}
