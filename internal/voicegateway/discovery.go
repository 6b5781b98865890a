package voicegateway

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/glizzus/voicelink/internal/voice"
)

const (
	discoveryPacketSize = 74
	discoveryRequest    = 0x1
	discoveryResponse   = 0x2
	discoveryLength     = 70
)

func encodeDiscoveryRequest(ssrc uint32) []byte {
	packet := make([]byte, discoveryPacketSize)
	binary.BigEndian.PutUint16(packet[0:2], discoveryRequest)
	binary.BigEndian.PutUint16(packet[2:4], discoveryLength)
	binary.BigEndian.PutUint32(packet[4:8], ssrc)
	return packet
}

func encodeDiscoveryResponse(ssrc uint32, address string, port uint16) []byte {
	packet := make([]byte, discoveryPacketSize)
	binary.BigEndian.PutUint16(packet[0:2], discoveryResponse)
	binary.BigEndian.PutUint16(packet[2:4], discoveryLength)
	binary.BigEndian.PutUint32(packet[4:8], ssrc)
	copy(packet[8:72], address)
	binary.BigEndian.PutUint16(packet[72:74], port)
	return packet
}

func decodeDiscoveryResponse(packet []byte, ssrc uint32) (string, uint16, error) {
	if len(packet) < discoveryPacketSize {
		return "", 0, fmt.Errorf("short discovery response: %d bytes", len(packet))
	}
	if typ := binary.BigEndian.Uint16(packet[0:2]); typ != discoveryResponse {
		return "", 0, fmt.Errorf("unexpected discovery packet type %#x", typ)
	}
	if got := binary.BigEndian.Uint32(packet[4:8]); got != ssrc {
		return "", 0, fmt.Errorf("discovery response for ssrc %d, want %d", got, ssrc)
	}

	address := packet[8:72]
	if i := bytes.IndexByte(address, 0); i >= 0 {
		address = address[:i]
	}
	if len(address) == 0 {
		return "", 0, fmt.Errorf("discovery response without address")
	}
	return string(address), binary.BigEndian.Uint16(packet[72:74]), nil
}

// discover resolves our external address. Each attempt is bounded by timeout;
// failed attempts are repeated as the policy allows.
func discover(ctx context.Context, conn net.Conn, ssrc uint32, timeout time.Duration, policy voice.RetryPolicy) (string, uint16, error) {
	var (
		address  string
		port     uint16
		attempts int
	)

	retries := uint64(policy.Attempts() - 1)
	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(policy.Backoff), retries), ctx)

	err := backoff.Retry(func() error {
		attempts++
		var err error
		address, port, err = discoverOnce(ctx, conn, ssrc, timeout)
		return err
	}, b)
	if err != nil {
		return "", 0, &voice.DiscoveryError{Attempts: attempts, Err: err}
	}
	return address, port, nil
}

func discoverOnce(ctx context.Context, conn net.Conn, ssrc uint32, timeout time.Duration) (string, uint16, error) {
	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return "", 0, fmt.Errorf("failed to set discovery deadline: %w", err)
	}
	defer conn.SetDeadline(time.Time{})

	if _, err := conn.Write(encodeDiscoveryRequest(ssrc)); err != nil {
		return "", 0, fmt.Errorf("failed to send discovery request: %w", err)
	}

	buf := make([]byte, discoveryPacketSize)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			return "", 0, fmt.Errorf("failed to read discovery response: %w", err)
		}
		address, port, err := decodeDiscoveryResponse(buf[:n], ssrc)
		if err != nil {
			// Unrelated datagrams can share the socket; keep reading until the deadline.
			continue
		}
		return address, port, nil
	}
}
