package server

import (
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/gin-gonic/gin"

	openpush "github.com/openpush/go-openpush-api"
	"github.com/openpush/go-openpush-api/server/backend"
)

type Server struct {
	// r is the gin router.
	r *gin.Engine

	// s is the underlying server.
	s *httptest.Server

	// b is the server backend, which manages accounts, devices, queues and
	// receipts.
	b *backend.Backend

	// feeds are the live feed connections, one per device.
	feeds     map[string]*feedConn
	feedsLock sync.Mutex

	// supersedeNext marks devices whose next identification is answered
	// with a supersede frame instead of a keep-alive.
	supersedeNext map[string]struct{}
	supersedeLock sync.Mutex

	// keepAlive is the cadence of feed keep-alive frames.
	keepAlive     time.Duration
	keepAliveLock sync.RWMutex

	// callWatchers records callWatchers received by the server.
	callWatchers     []callWatcher
	callWatchersLock sync.RWMutex

	// minAppVersion is the minimum app version that the server will accept.
	minAppVersion *semver.Version

	// rateLimit optionally bounds the request rate on the request channel.
	rateLimit *rateLimiter

	// offline is whether to pretend the server is offline and return 5xx errors.
	offline bool
}

func New(opts ...Option) *Server {
	builder := newServerBuilder()

	for _, opt := range opts {
		opt.config(builder)
	}

	return builder.build()
}

func (s *Server) GetHostURL() string {
	return s.s.URL
}

// GetFeedURL returns the websocket endpoint serving the feed.
func (s *Server) GetFeedURL() string {
	return "ws" + strings.TrimPrefix(s.s.URL, "http") + "/push"
}

func (s *Server) AddCallWatcher(fn func(Call), paths ...string) {
	s.callWatchersLock.Lock()
	defer s.callWatchersLock.Unlock()

	s.callWatchers = append(s.callWatchers, newCallWatcher(fn, paths...))
}

func (s *Server) CreateUser(email string, password []byte) (string, error) {
	return s.b.CreateUser(email, password)
}

// SetUserTwoFA enables the user's second factor: logins must carry the code
// from now on. An empty code disables it.
func (s *Server) SetUserTwoFA(userID, code string) error {
	return s.b.SetTwoFA(userID, code)
}

// PushMessage queues the message for all of the user's devices and signals
// their live feeds. The returned message carries the assigned id and, for
// emergency priority, the receipt.
func (s *Server) PushMessage(userID string, msg openpush.Message) (openpush.Message, error) {
	pushed, err := s.b.PushMessage(userID, msg)
	if err != nil {
		return openpush.Message{}, err
	}

	deviceIDs, err := s.b.DeviceIDs(userID)
	if err != nil {
		return openpush.Message{}, err
	}

	s.pushFrame(openpush.FrameNewMessage, deviceIDs...)

	return pushed, nil
}

// RevokeUser invalidates every secret issued to the user and tells the live
// feeds of its devices to reload their credentials.
func (s *Server) RevokeUser(userID string) error {
	deviceIDs, err := s.b.RevokeUser(userID)
	if err != nil {
		return err
	}

	s.pushFrame(openpush.FrameReload, deviceIDs...)

	return nil
}

// SupersedeDevice sends the device's live feed a supersede frame, as if
// another session had taken over.
func (s *Server) SupersedeDevice(deviceID string) {
	s.pushFrame(openpush.FrameSuperseded, deviceID)
}

// SupersedeNextLogin answers the device's next feed identification with a
// supersede frame instead of a keep-alive.
func (s *Server) SupersedeNextLogin(deviceID string) {
	s.supersedeLock.Lock()
	defer s.supersedeLock.Unlock()

	s.supersedeNext[deviceID] = struct{}{}
}

// SendErrorFrame pushes an error frame to the device's live feed.
func (s *Server) SendErrorFrame(deviceID string) {
	s.pushFrame(openpush.FrameError, deviceID)
}

// ReceiptAcknowledged reports whether the emergency receipt was acknowledged.
func (s *Server) ReceiptAcknowledged(receiptID string) (bool, error) {
	return s.b.ReceiptAcknowledged(receiptID)
}

// SetKeepAliveInterval sets the cadence of feed keep-alive frames for
// connections opened from now on.
func (s *Server) SetKeepAliveInterval(keepAlive time.Duration) {
	s.keepAliveLock.Lock()
	defer s.keepAliveLock.Unlock()

	s.keepAlive = keepAlive
}

func (s *Server) SetMinAppVersion(minAppVersion *semver.Version) {
	s.minAppVersion = minAppVersion
}

func (s *Server) SetOffline(offline bool) {
	s.offline = offline
}

func (s *Server) Close() {
	s.feedsLock.Lock()

	for _, fc := range s.feeds {
		fc.stop()
	}

	s.feedsLock.Unlock()

	s.s.Close()
}

func (s *Server) keepAliveInterval() time.Duration {
	s.keepAliveLock.RLock()
	defer s.keepAliveLock.RUnlock()

	return s.keepAlive
}

func (s *Server) takeSupersedeNext(deviceID string) bool {
	s.supersedeLock.Lock()
	defer s.supersedeLock.Unlock()

	if _, ok := s.supersedeNext[deviceID]; !ok {
		return false
	}

	delete(s.supersedeNext, deviceID)

	return true
}
