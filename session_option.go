package openpush

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// SessionOption represents a type that can be used to configure a session.
type SessionOption interface {
	config(*sessionBuilder)
}

type sessionBuilder struct {
	keepAlive  time.Duration
	retry      time.Duration
	backoffMin time.Duration
	backoffMax time.Duration
	wsDialer   *websocket.Dialer
	creds      CredentialStore
}

func newSessionBuilder() *sessionBuilder {
	return &sessionBuilder{
		keepAlive:  DefaultKeepAlive,
		retry:      DefaultEmergencyRetry,
		backoffMin: DefaultBackoffMin,
		backoffMax: DefaultBackoffMax,

		wsDialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
		},
	}
}

// WithKeepAlive sets the keep-alive cadence expected from the relay. The
// watchdog allows twice this interval before it declares the feed dead.
func WithKeepAlive(keepAlive time.Duration) SessionOption {
	return &withKeepAlive{
		keepAlive: keepAlive,
	}
}

type withKeepAlive struct {
	keepAlive time.Duration
}

func (opt withKeepAlive) config(builder *sessionBuilder) {
	builder.keepAlive = opt.keepAlive
}

// WithEmergencyRetry sets the re-alert interval applied to emergency messages
// whose sender declared none.
func WithEmergencyRetry(retry time.Duration) SessionOption {
	return &withEmergencyRetry{
		retry: retry,
	}
}

type withEmergencyRetry struct {
	retry time.Duration
}

func (opt withEmergencyRetry) config(builder *sessionBuilder) {
	builder.retry = opt.retry
}

// WithReconnectBackoff bounds the exponential backoff between reconnect
// attempts.
func WithReconnectBackoff(min, max time.Duration) SessionOption {
	return &withReconnectBackoff{
		min: min,
		max: max,
	}
}

type withReconnectBackoff struct {
	min, max time.Duration
}

func (opt withReconnectBackoff) config(builder *sessionBuilder) {
	builder.backoffMin = opt.min
	builder.backoffMax = opt.max
}

// WithFeedDialer sets the websocket dialer used to reach the feed.
func WithFeedDialer(dialer *websocket.Dialer) SessionOption {
	return &withFeedDialer{
		dialer: dialer,
	}
}

type withFeedDialer struct {
	dialer *websocket.Dialer
}

func (opt withFeedDialer) config(builder *sessionBuilder) {
	builder.wsDialer = opt.dialer
}

// WithCredentialStore lets the session clear the stored credentials when the
// relay revokes them.
func WithCredentialStore(creds CredentialStore) SessionOption {
	return &withCredentialStore{
		creds: creds,
	}
}

type withCredentialStore struct {
	creds CredentialStore
}

func (opt withCredentialStore) config(builder *sessionBuilder) {
	builder.creds = opt.creds
}
