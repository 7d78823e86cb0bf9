package openpush

import (
	"fmt"
	"time"
)

// Priority is the urgency class assigned to a message by its sender.
// Wire values run from -2 (lowest) to 2 (emergency).
type Priority int

const (
	PriorityLowest Priority = iota - 2
	PriorityLow
	PriorityNormal
	PriorityHigh
	PriorityEmergency
)

func (p Priority) String() string {
	switch p {
	case PriorityLowest:
		return "lowest"

	case PriorityLow:
		return "low"

	case PriorityNormal:
		return "normal"

	case PriorityHigh:
		return "high"

	case PriorityEmergency:
		return "emergency"

	default:
		return fmt.Sprintf("unknown (%d)", int(p))
	}
}

// Message is a queued push message as returned by the relay. Messages are
// immutable once fetched; acknowledgment state for emergency messages is
// tracked separately (see AckState).
type Message struct {
	// ID is the server-assigned, monotonically increasing message ID.
	ID int64 `json:"id"`

	Priority Priority `json:"priority"`

	Title string `json:"title"`

	// Body is the message text.
	Body string `json:"message"`

	// AppName is the name of the application that sent the message.
	AppName string `json:"app"`

	// Date is the unix time at which the relay accepted the message.
	Date int64 `json:"date"`

	// Expires is the unix time at which an emergency message stops being
	// re-alerted. Zero for non-emergency messages.
	Expires int64 `json:"expires,omitempty"`

	// Retry is the re-alert interval in seconds declared by the sender of an
	// emergency message. Zero means the client default applies.
	Retry int `json:"retry,omitempty"`

	// Receipt correlates an emergency message with its acknowledgment.
	// Empty for non-emergency messages.
	Receipt string `json:"receipt,omitempty"`

	// Acked is set by the relay if the message was already acknowledged
	// from another device.
	Acked Bool `json:"acked,omitempty"`

	Sound string `json:"sound,omitempty"`

	URL string `json:"url,omitempty"`

	URLTitle string `json:"url_title,omitempty"`
}

// Time returns the relay acceptance time of the message.
func (m Message) Time() time.Time {
	return time.Unix(m.Date, 0)
}

// ExpiresAt returns the emergency expiry deadline, or the zero time if the
// message does not expire.
func (m Message) ExpiresAt() time.Time {
	if m.Expires == 0 {
		return time.Time{}
	}

	return time.Unix(m.Expires, 0)
}

// RetryInterval returns the sender-declared re-alert interval, or zero if
// the sender declared none.
func (m Message) RetryInterval() time.Duration {
	return time.Duration(m.Retry) * time.Second
}

// IsEmergency reports whether the message takes part in the acknowledgment
// protocol. Emergency messages always carry a receipt ID.
func (m Message) IsEmergency() bool {
	return m.Priority >= PriorityEmergency && m.Receipt != ""
}

// DisplayTitle returns the title to show to the user, falling back to the
// sending application's name.
func (m Message) DisplayTitle() string {
	if m.Title != "" {
		return m.Title
	}

	return m.AppName
}
