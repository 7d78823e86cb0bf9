package openpush

import (
	"errors"
	"fmt"
	"time"
)

const (
	// DefaultKeepAlive is the keep-alive cadence expected from the relay.
	// The watchdog forces a reconnect after twice this interval passes
	// without any frame.
	DefaultKeepAlive = 30 * time.Second

	// DefaultEmergencyRetry is the re-alert interval applied to emergency
	// messages whose sender declared none.
	DefaultEmergencyRetry = time.Minute

	// DefaultEmergencyExpiry bounds the re-alert loop of emergency messages
	// that carry no expiry of their own.
	DefaultEmergencyExpiry = 3 * time.Hour

	// DefaultBackoffMin is the reconnect delay after the first failure.
	DefaultBackoffMin = time.Second

	// DefaultBackoffMax caps the reconnect delay.
	DefaultBackoffMax = 2 * time.Minute
)

var (
	// ErrAuthRejected is returned by Session.Run when the relay refuses the
	// identification frame. The credentials are bad or expired; the external
	// login flow must run before the session can be restarted.
	ErrAuthRejected = errors.New("relay rejected the device credentials")

	// ErrCredentialsRevoked is returned by Session.Run after a reload frame.
	// The stored credentials were cleared and the external login flow must
	// run again.
	ErrCredentialsRevoked = errors.New("relay revoked the device credentials")

	// ErrSessionSuperseded is returned by Session.Run after another session
	// took over the feed. The session does not reconnect on its own.
	ErrSessionSuperseded = errors.New("feed taken over by another session")
)

// State is the connection state of a feed session.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateAuthenticated
	StateSignaled
	StateIdle
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"

	case StateConnecting:
		return "connecting"

	case StateAuthenticated:
		return "authenticated"

	case StateSignaled:
		return "signaled"

	case StateIdle:
		return "idle"

	default:
		return fmt.Sprintf("unknown (%d)", int32(s))
	}
}

// EventKind classifies the events a session surfaces while running.
type EventKind int

const (
	// EventConnected fires after every successful identification.
	EventConnected EventKind = iota

	// EventDisconnected fires when the feed connection is lost. Unless the
	// cause was terminal, the session is already reconnecting.
	EventDisconnected

	// EventCredentialsRevoked fires once, right before Run returns
	// ErrCredentialsRevoked.
	EventCredentialsRevoked

	// EventSessionSuperseded fires once, right before Run returns
	// ErrSessionSuperseded.
	EventSessionSuperseded

	// EventEmergencyExpired fires when an emergency message reaches its
	// expiry without being acknowledged.
	EventEmergencyExpired
)

func (k EventKind) String() string {
	switch k {
	case EventConnected:
		return "connected"

	case EventDisconnected:
		return "disconnected"

	case EventCredentialsRevoked:
		return "credentials-revoked"

	case EventSessionSuperseded:
		return "session-superseded"

	case EventEmergencyExpired:
		return "emergency-expired"

	default:
		return fmt.Sprintf("unknown (%d)", int(k))
	}
}

// Event is a connection transition or terminal condition surfaced on the
// session's event channel.
type Event struct {
	Kind EventKind

	// Err is the failure behind a disconnect, if any.
	Err error

	// Receipt identifies the emergency message of an expiry event.
	Receipt string
}

func (e Event) String() string {
	if e.Err != nil {
		return fmt.Sprintf("%v: %v", e.Kind, e.Err)
	}

	if e.Receipt != "" {
		return fmt.Sprintf("%v: receipt %v", e.Kind, e.Receipt)
	}

	return e.Kind.String()
}

// AckState is the persisted record of one unresolved emergency message. It
// exists from the moment the message is first displayed until the receipt is
// acknowledged or expires.
type AckState struct {
	ReceiptID string `json:"receipt_id"`

	Message Message `json:"message"`

	Acknowledged bool `json:"acknowledged"`

	// NextRetryAt is when the next re-alert is due.
	NextRetryAt time.Time `json:"next_retry_at"`

	// ExpiresAt is when re-alerting stops for good.
	ExpiresAt time.Time `json:"expires_at"`
}
