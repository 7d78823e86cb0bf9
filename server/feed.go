package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	openpush "github.com/openpush/go-openpush-api"
)

const (
	feedLoginTimeout = 10 * time.Second
	feedWriteTimeout = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

// feedConn is one live feed connection. Frames pushed to it are written by
// its serve loop; stop is safe to call from any goroutine, any number of
// times.
type feedConn struct {
	conn *websocket.Conn

	frames chan openpush.Frame
	done   chan struct{}
	once   sync.Once
}

func newFeedConn(conn *websocket.Conn) *feedConn {
	return &feedConn{
		conn:   conn,
		frames: make(chan openpush.Frame, 8),
		done:   make(chan struct{}),
	}
}

// push queues the frame for delivery without blocking. Frames pushed to a
// stopped or saturated connection are dropped.
func (fc *feedConn) push(frame openpush.Frame) {
	select {
	case <-fc.done:

	case fc.frames <- frame:

	default:
	}
}

func (fc *feedConn) write(frame openpush.Frame) error {
	if err := fc.conn.SetWriteDeadline(time.Now().Add(feedWriteTimeout)); err != nil {
		return err
	}

	return fc.conn.WriteMessage(websocket.BinaryMessage, []byte{byte(frame)})
}

func (fc *feedConn) stop() {
	fc.once.Do(func() {
		close(fc.done)
		fc.conn.Close()
	})
}

func (s *Server) handleFeed() gin.HandlerFunc {
	return func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			return
		}

		s.serveFeed(conn)
	}
}

func (s *Server) serveFeed(conn *websocket.Conn) {
	fc := newFeedConn(conn)
	defer fc.stop()

	if err := conn.SetReadDeadline(time.Now().Add(feedLoginTimeout)); err != nil {
		return
	}

	_, data, err := conn.ReadMessage()
	if err != nil {
		return
	}

	creds, ok := openpush.ParseIdentification(data)
	if !ok {
		writeClose(conn, websocket.ClosePolicyViolation, "malformed identification")
		return
	}

	if _, err := s.b.VerifyDevice(creds.Secret, creds.DeviceID); err != nil {
		writeClose(conn, websocket.ClosePolicyViolation, "bad credentials")
		return
	}

	if s.takeSupersedeNext(creds.DeviceID) {
		_ = fc.write(openpush.FrameSuperseded)
		return
	}

	s.swapFeed(creds.DeviceID, fc)
	defer s.dropFeed(creds.DeviceID, fc)

	// The feed is write-only after identification; the reader just notices
	// the peer going away.
	if err := conn.SetReadDeadline(time.Time{}); err != nil {
		return
	}

	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				fc.stop()
				return
			}
		}
	}()

	// A valid identification is answered with an immediate keep-alive.
	if err := fc.write(openpush.FrameKeepAlive); err != nil {
		return
	}

	ticker := time.NewTicker(s.keepAliveInterval())
	defer ticker.Stop()

	for {
		select {
		case <-fc.done:
			return

		case frame := <-fc.frames:
			if err := fc.write(frame); err != nil {
				return
			}

			// Reload and supersede end the session on the server side too.
			if frame == openpush.FrameReload || frame == openpush.FrameSuperseded {
				return
			}

		case <-ticker.C:
			if err := fc.write(openpush.FrameKeepAlive); err != nil {
				return
			}
		}
	}
}

// swapFeed registers the connection as the device's live feed. An existing
// feed receives a supersede frame and is replaced.
func (s *Server) swapFeed(deviceID string, fc *feedConn) {
	s.feedsLock.Lock()
	defer s.feedsLock.Unlock()

	if old, ok := s.feeds[deviceID]; ok {
		old.push(openpush.FrameSuperseded)
	}

	s.feeds[deviceID] = fc
}

// dropFeed removes the connection if it is still the device's live feed.
func (s *Server) dropFeed(deviceID string, fc *feedConn) {
	s.feedsLock.Lock()
	defer s.feedsLock.Unlock()

	if s.feeds[deviceID] == fc {
		delete(s.feeds, deviceID)
	}
}

func (s *Server) pushFrame(frame openpush.Frame, deviceIDs ...string) {
	s.feedsLock.Lock()
	defer s.feedsLock.Unlock()

	for _, deviceID := range deviceIDs {
		if fc, ok := s.feeds[deviceID]; ok {
			fc.push(frame)
		}
	}
}

func writeClose(conn *websocket.Conn, code int, text string) {
	data := websocket.FormatCloseMessage(code, text)

	_ = conn.WriteControl(websocket.CloseMessage, data, time.Now().Add(feedWriteTimeout))
}
