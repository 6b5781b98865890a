package voicegateway

import (
	"testing"
)

func TestDiscoveryPacket(t *testing.T) {
	request := encodeDiscoveryRequest(7)
	if len(request) != discoveryPacketSize {
		t.Fatalf("request is %d bytes, want %d", len(request), discoveryPacketSize)
	}

	addr, port, err := decodeDiscoveryResponse(encodeDiscoveryResponse(7, "198.51.100.4", 6000), 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if addr != "198.51.100.4" || port != 6000 {
		t.Errorf("decoded %s:%d", addr, port)
	}
}

func TestDecodeDiscoveryResponseRejects(t *testing.T) {
	tc := []struct {
		name   string
		packet []byte
	}{
		{name: "short packet", packet: make([]byte, 10)},
		{name: "request instead of response", packet: encodeDiscoveryRequest(7)},
		{name: "other ssrc", packet: encodeDiscoveryResponse(8, "198.51.100.4", 6000)},
		{name: "empty address", packet: encodeDiscoveryResponse(7, "", 6000)},
	}

	for _, test := range tc {
		t.Run(test.name, func(t *testing.T) {
			if _, _, err := decodeDiscoveryResponse(test.packet, 7); err == nil {
				t.Errorf("expected an error")
			}
		})
	}
}

func TestChooseMode(t *testing.T) {
	tc := []struct {
		offered []string
		want    string
	}{
		{offered: []string{"xsalsa20_poly1305", "aead_aes256_gcm_rtpsize"}, want: "aead_aes256_gcm_rtpsize"},
		{offered: []string{"xsalsa20_poly1305_suffix", "xsalsa20_poly1305"}, want: "xsalsa20_poly1305"},
		{offered: []string{"future_mode"}, want: "future_mode"},
		{offered: nil, want: ""},
	}
	for _, test := range tc {
		if got := chooseMode(test.offered); got != test.want {
			t.Errorf("chooseMode(%v) = %q, want %q", test.offered, got, test.want)
		}
	}
}

func TestGatewayURL(t *testing.T) {
	f := NewFactory(Config{})
	tc := map[string]string{
		"voice.example:80":  "wss://voice.example/?v=4",
		"voice.example:443": "wss://voice.example:443/?v=4",
		"voice.example":     "wss://voice.example/?v=4",
	}
	for endpoint, want := range tc {
		if got := f.gatewayURL(endpoint); got != want {
			t.Errorf("gatewayURL(%q) = %q, want %q", endpoint, got, want)
		}
	}
}
