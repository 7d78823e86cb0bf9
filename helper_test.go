package openpush_test

import (
	"context"
	"crypto/tls"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/maps"

	openpush "github.com/openpush/go-openpush-api"
	"github.com/openpush/go-openpush-api/server"
)

const (
	testEmail    = "user@example.com"
	testPassword = "password"
)

func newTestManager(s *server.Server) *openpush.Manager {
	return openpush.New(
		openpush.WithHostURL(s.GetHostURL()),
		openpush.WithTransport(openpush.InsecureTransport()),
	)
}

// newTestClient creates a fresh user, logs in and registers a device.
func newTestClient(ctx context.Context, t *testing.T, s *server.Server, m *openpush.Manager) (*openpush.Client, openpush.Credentials, string) {
	t.Helper()

	userID, err := s.CreateUser(testEmail, []byte(testPassword))
	require.NoError(t, err)

	c, creds, err := m.NewClientWithLogin(ctx, "test-device", openpush.LoginReq{
		Email:    testEmail,
		Password: testPassword,
	})
	require.NoError(t, err)

	return c, creds, userID
}

func insecureFeedDialer() *websocket.Dialer {
	return &websocket.Dialer{
		TLSClientConfig:  &tls.Config{InsecureSkipVerify: true},
		HandshakeTimeout: 10 * time.Second,
	}
}

func startSession(ctx context.Context, session *openpush.Session) <-chan error {
	errCh := make(chan error, 1)

	go func() { errCh <- session.Run(ctx) }()

	return errCh
}

func awaitErr(t *testing.T, errCh <-chan error) error {
	t.Helper()

	select {
	case err := <-errCh:
		return err

	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for the session to stop")
		return nil
	}
}

// awaitEvent drains events until one of the wanted kind arrives.
func awaitEvent(t *testing.T, events <-chan openpush.Event, kind openpush.EventKind) openpush.Event {
	t.Helper()

	timeout := time.After(10 * time.Second)

	for {
		select {
		case event, ok := <-events:
			require.True(t, ok, "event channel closed while waiting for %v", kind)

			if event.Kind == kind {
				return event
			}

		case <-timeout:
			t.Fatalf("timed out waiting for %v event", kind)
		}
	}
}

// memStore is an in-memory stand-in for the sqlite store.
type memStore struct {
	lock sync.Mutex

	creds  openpush.Credentials
	lastID int64
	acks   map[string]openpush.AckState
}

func newMemStore() *memStore {
	return &memStore{acks: make(map[string]openpush.AckState)}
}

func (s *memStore) Load() (openpush.Credentials, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	return s.creds, nil
}

func (s *memStore) Save(creds openpush.Credentials) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.creds = creds

	return nil
}

func (s *memStore) Clear() error {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.creds = openpush.Credentials{}

	return nil
}

func (s *memStore) LastMessageID() (int64, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	return s.lastID, nil
}

func (s *memStore) SetLastMessageID(id int64) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.lastID = id

	return nil
}

func (s *memStore) AckStates() ([]openpush.AckState, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	return maps.Values(s.acks), nil
}

func (s *memStore) PutAckState(state openpush.AckState) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.acks[state.ReceiptID] = state

	return nil
}

func (s *memStore) DeleteAckState(receiptID string) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	delete(s.acks, receiptID)

	return nil
}

func (s *memStore) ackStateCount() int {
	s.lock.Lock()
	defer s.lock.Unlock()

	return len(s.acks)
}

// memSink records displayed messages and signals each display.
type memSink struct {
	lock sync.Mutex
	msgs []openpush.Message

	ch chan openpush.Message
}

func newMemSink() *memSink {
	return &memSink{ch: make(chan openpush.Message, 64)}
}

func (s *memSink) Display(msg openpush.Message) {
	s.lock.Lock()
	s.msgs = append(s.msgs, msg)
	s.lock.Unlock()

	select {
	case s.ch <- msg:
	default:
	}
}

func (s *memSink) count() int {
	s.lock.Lock()
	defer s.lock.Unlock()

	return len(s.msgs)
}

func (s *memSink) messages() []openpush.Message {
	s.lock.Lock()
	defer s.lock.Unlock()

	out := make([]openpush.Message, len(s.msgs))
	copy(out, s.msgs)

	return out
}

func (s *memSink) await(t *testing.T, timeout time.Duration) openpush.Message {
	t.Helper()

	select {
	case msg := <-s.ch:
		return msg

	case <-time.After(timeout):
		t.Fatal("timed out waiting for a message to be displayed")
		return openpush.Message{}
	}
}
