package voicegateway

import (
	"encoding/binary"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

const (
	testSSRC        = 42
	externalAddress = "203.0.113.7"
	externalPort    = 50000
)

type serverOptions struct {
	// dropDiscovery ignores the first n discovery requests; -1 ignores all.
	dropDiscovery int
	readyFirst    bool
	silent        bool
	heartbeat     float64
}

// fakeVoiceServer speaks just enough of the voice gateway protocol to
// drive a Factory through a full negotiation.
type fakeVoiceServer struct {
	opts serverOptions
	http *httptest.Server
	udp  net.PacketConn

	disconnects chan struct{}

	mu          sync.Mutex
	identifies  []identifyData
	selects     []selectProtocolData
	ops         []int
	udpRequests int
}

func newFakeVoiceServer(t *testing.T, opts serverOptions) *fakeVoiceServer {
	t.Helper()

	if opts.heartbeat == 0 {
		opts.heartbeat = 20
	}

	udp, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen udp: %v", err)
	}

	s := &fakeVoiceServer{
		opts:        opts,
		udp:         udp,
		disconnects: make(chan struct{}, 16),
	}
	s.http = httptest.NewServer(http.HandlerFunc(s.handle))
	go s.serveDiscovery()

	t.Cleanup(func() {
		s.http.Close()
		_ = s.udp.Close()
	})
	return s
}

func (s *fakeVoiceServer) endpoint() string {
	return strings.TrimPrefix(s.http.URL, "http://")
}

func (s *fakeVoiceServer) serveDiscovery() {
	buf := make([]byte, 128)
	for {
		n, addr, err := s.udp.ReadFrom(buf)
		if err != nil {
			return
		}

		s.mu.Lock()
		s.udpRequests++
		drop := s.opts.dropDiscovery < 0 || s.udpRequests <= s.opts.dropDiscovery
		s.mu.Unlock()
		if drop || n < 8 {
			continue
		}

		ssrc := binary.BigEndian.Uint32(buf[4:8])
		_, _ = s.udp.WriteTo(encodeDiscoveryResponse(ssrc, externalAddress, externalPort), addr)
	}
}

var upgrader = websocket.Upgrader{}

func (s *fakeVoiceServer) handle(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer func() {
		_ = ws.Close()
		s.disconnects <- struct{}{}
	}()

	var f frame
	if err := ws.ReadJSON(&f); err != nil || f.Op != opIdentify {
		return
	}
	var id identifyData
	_ = json.Unmarshal(f.Data, &id)
	s.mu.Lock()
	s.identifies = append(s.identifies, id)
	s.mu.Unlock()

	if !s.opts.silent {
		udpPort := s.udp.LocalAddr().(*net.UDPAddr).Port
		hello := outgoing{Op: opHello, Data: helloData{HeartbeatInterval: s.opts.heartbeat}}
		ready := outgoing{Op: opReady, Data: readyData{
			SSRC:  testSSRC,
			IP:    "127.0.0.1",
			Port:  udpPort,
			Modes: []string{"xsalsa20_poly1305", "aead_aes256_gcm_rtpsize"},
		}}
		first, second := hello, ready
		if s.opts.readyFirst {
			first, second = ready, hello
		}
		if ws.WriteJSON(first) != nil || ws.WriteJSON(second) != nil {
			return
		}
	}

	for {
		if err := ws.ReadJSON(&f); err != nil {
			return
		}

		s.mu.Lock()
		s.ops = append(s.ops, f.Op)
		s.mu.Unlock()

		switch f.Op {
		case opSelectProtocol:
			var sel selectProtocolData
			_ = json.Unmarshal(f.Data, &sel)
			s.mu.Lock()
			s.selects = append(s.selects, sel)
			s.mu.Unlock()

			desc := outgoing{Op: opSessionDescription, Data: map[string]any{
				"mode":       sel.Data.Mode,
				"secret_key": []int{1, 2, 3, 4},
			}}
			if ws.WriteJSON(desc) != nil {
				return
			}
		case opHeartbeat:
			if ws.WriteJSON(outgoing{Op: opHeartbeatAck, Data: f.Data}) != nil {
				return
			}
		}
	}
}

func (s *fakeVoiceServer) sawOp(op int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.ops {
		if o == op {
			return true
		}
	}
	return false
}

func (s *fakeVoiceServer) Identifies() []identifyData {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]identifyData(nil), s.identifies...)
}

func (s *fakeVoiceServer) UDPRequests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.udpRequests
}

func (s *fakeVoiceServer) waitDisconnect(t *testing.T) {
	t.Helper()
	select {
	case <-s.disconnects:
	case <-time.After(2 * time.Second):
		t.Fatal("server never saw the websocket close")
	}
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func newTestFactory() *Factory {
	return NewFactory(Config{
		Scheme: "ws",
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}
