package voice

import "time"

const (
	DefaultJoinTimeout        = 10 * time.Second
	DefaultIPDiscoveryTimeout = 5 * time.Second
)

// RetryPolicy bounds how often the gateway factory repeats IP discovery.
// MaxRetries counts attempts after the first one.
type RetryPolicy struct {
	MaxRetries int
	Backoff    time.Duration
}

// RetryOnce is the default IP discovery policy: one immediate retry.
func RetryOnce() RetryPolicy {
	return RetryPolicy{MaxRetries: 1}
}

// NoRetry makes a single discovery attempt.
func NoRetry() RetryPolicy {
	return RetryPolicy{}
}

// Attempts returns the total number of attempts the policy allows.
func (p RetryPolicy) Attempts() int {
	if p.MaxRetries < 0 {
		return 1
	}
	return p.MaxRetries + 1
}

// JoinRequest describes a single call to Coordinator.Join.
// Build it with NewJoinRequest so unset fields get their defaults.
type JoinRequest struct {
	GuildID   string
	ChannelID string
	SelfMute  bool
	SelfDeaf  bool

	Timeout            time.Duration
	IPDiscoveryTimeout time.Duration
	IPDiscoveryRetry   RetryPolicy
}

type JoinOption func(*JoinRequest)

func WithSelfMute(mute bool) JoinOption {
	return func(r *JoinRequest) { r.SelfMute = mute }
}

func WithSelfDeaf(deaf bool) JoinOption {
	return func(r *JoinRequest) { r.SelfDeaf = deaf }
}

// WithTimeout bounds the whole handshake. Non-positive values keep the default.
func WithTimeout(d time.Duration) JoinOption {
	return func(r *JoinRequest) {
		if d > 0 {
			r.Timeout = d
		}
	}
}

func WithIPDiscoveryTimeout(d time.Duration) JoinOption {
	return func(r *JoinRequest) {
		if d > 0 {
			r.IPDiscoveryTimeout = d
		}
	}
}

func WithIPDiscoveryRetry(p RetryPolicy) JoinOption {
	return func(r *JoinRequest) { r.IPDiscoveryRetry = p }
}

func NewJoinRequest(guildID, channelID string, opts ...JoinOption) JoinRequest {
	req := JoinRequest{
		GuildID:            guildID,
		ChannelID:          channelID,
		Timeout:            DefaultJoinTimeout,
		IPDiscoveryTimeout: DefaultIPDiscoveryTimeout,
		IPDiscoveryRetry:   RetryOnce(),
	}
	for _, opt := range opts {
		opt(&req)
	}
	return req
}

// withDefaults fills zero durations for requests built as struct literals.
func (r JoinRequest) withDefaults() JoinRequest {
	if r.Timeout <= 0 {
		r.Timeout = DefaultJoinTimeout
	}
	if r.IPDiscoveryTimeout <= 0 {
		r.IPDiscoveryTimeout = DefaultIPDiscoveryTimeout
	}
	return r
}

func (r JoinRequest) gatewayOptions() GatewayOptions {
	return GatewayOptions{
		ChannelID:          r.ChannelID,
		SelfMute:           r.SelfMute,
		SelfDeaf:           r.SelfDeaf,
		IPDiscoveryTimeout: r.IPDiscoveryTimeout,
		IPDiscoveryRetry:   r.IPDiscoveryRetry,
	}
}
