package openpush

import (
	"bytes"
	"fmt"
	"strings"
)

// Frame is a single-byte control signal pushed by the relay on the feed.
type Frame byte

const (
	// FrameKeepAlive confirms feed liveness; the relay also sends it as the
	// immediate answer to a successful identification.
	FrameKeepAlive Frame = '#'

	// FrameNewMessage announces that the device's queue has new messages.
	FrameNewMessage Frame = '!'

	// FrameReload tells the client its stored credentials are no longer
	// valid and the external login flow must run again.
	FrameReload Frame = 'R'

	// FrameError reports a relay-side feed error.
	FrameError Frame = 'E'

	// FrameSuperseded tells the client another session took over the feed
	// for this device.
	FrameSuperseded Frame = 'A'
)

func (f Frame) String() string {
	switch f {
	case FrameKeepAlive:
		return "keep-alive"

	case FrameNewMessage:
		return "new-message"

	case FrameReload:
		return "reload"

	case FrameError:
		return "error"

	case FrameSuperseded:
		return "superseded"

	default:
		return fmt.Sprintf("unknown (%q)", byte(f))
	}
}

// FormatIdentification builds the frame a client writes to the feed right
// after the connection opens.
func FormatIdentification(creds Credentials) []byte {
	return []byte(fmt.Sprintf("login:%s:%s\n", creds.DeviceID, creds.Secret))
}

// ParseIdentification extracts the credential pair from an identification
// frame, reporting false if the frame is malformed.
func ParseIdentification(frame []byte) (Credentials, bool) {
	parts := strings.SplitN(string(bytes.TrimSuffix(frame, []byte("\n"))), ":", 3)

	if len(parts) != 3 || parts[0] != "login" || parts[1] == "" || parts[2] == "" {
		return Credentials{}, false
	}

	return Credentials{DeviceID: parts[1], Secret: parts[2]}, true
}
