package openpush

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Session owns one persistent feed connection to the relay and drives the
// whole delivery engine behind it: it parses control frames, triggers fetches,
// dedups against the ledger and hands messages to the sink or the emergency
// alerter. The connection is owned by the Run loop alone; fetching and
// acknowledging run on their own goroutines so frames keep flowing.
type Session struct {
	client *Client
	sink   NotificationSink
	store  StateStore

	feedURL string

	keepAlive  time.Duration
	backoffMin time.Duration
	backoffMax time.Duration
	wsDialer   *websocket.Dialer
	creds      CredentialStore

	ledger  *Ledger
	alerter *Alerter

	state   atomic.Int32
	eventCh chan Event
	fetchCh chan struct{}

	started atomic.Bool
}

// NewSession returns a session that will feed fetched messages into the given
// sink and persist its delivery state in the given store. The session does
// nothing until Run is called.
func (c *Client) NewSession(sink NotificationSink, store StateStore, opts ...SessionOption) *Session {
	builder := newSessionBuilder()

	for _, opt := range opts {
		opt.config(builder)
	}

	s := &Session{
		client: c,
		sink:   sink,
		store:  store,

		feedURL: c.m.FeedURL(),

		keepAlive:  builder.keepAlive,
		backoffMin: builder.backoffMin,
		backoffMax: builder.backoffMax,
		wsDialer:   builder.wsDialer,
		creds:      builder.creds,

		eventCh: make(chan Event, 64),
		fetchCh: make(chan struct{}, 1),
	}

	s.alerter = NewAlerter(c, sink, store, builder.retry, s.emit)

	return s
}

// Events returns the channel on which the session surfaces connection
// transitions and terminal conditions. It is closed when Run returns.
func (s *Session) Events() <-chan Event {
	return s.eventCh
}

// State returns the session's current connection state.
func (s *Session) State() State {
	return State(s.state.Load())
}

// Acknowledge confirms an emergency message upstream and stops its re-alert
// loop. On failure the local state is untouched and re-alerts continue.
func (s *Session) Acknowledge(ctx context.Context, receiptID string) error {
	return s.alerter.Acknowledge(ctx, receiptID)
}

// Run connects to the feed and drives the delivery engine until the context
// is canceled or the relay ends the session for good. Connection loss and
// relay errors reconnect with capped exponential backoff; Run only returns
// on terminal conditions (ErrAuthRejected, ErrCredentialsRevoked,
// ErrSessionSuperseded or the context's error). Run may be called once.
func (s *Session) Run(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return fmt.Errorf("session already started")
	}

	ledger, err := NewLedger(s.store)
	if err != nil {
		return err
	}

	s.ledger = ledger

	if err := s.resumeAckStates(); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)

	var wg sync.WaitGroup

	wg.Add(1)

	go func() {
		defer wg.Done()

		s.fetchLoop(runCtx)
	}()

	defer func() {
		cancel()
		wg.Wait()

		s.alerter.Stop()

		s.setState(StateDisconnected)

		close(s.eventCh)
	}()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = s.backoffMin
	bo.MaxInterval = s.backoffMax
	bo.Multiplier = 2
	bo.RandomizationFactor = 0.2
	bo.MaxElapsedTime = 0
	bo.Reset()

	for {
		s.setState(StateConnecting)

		err := s.feed(runCtx, bo)

		s.setState(StateDisconnected)

		switch {
		case runCtx.Err() != nil:
			return runCtx.Err()

		case errors.Is(err, ErrSessionSuperseded):
			logrus.Warn("Feed taken over by another session, not reconnecting")

			s.emit(Event{Kind: EventSessionSuperseded})

			return err

		case errors.Is(err, ErrCredentialsRevoked):
			logrus.Warn("Relay revoked the device credentials")

			s.clearCredentials()
			s.emit(Event{Kind: EventCredentialsRevoked})

			return err

		case errors.Is(err, ErrAuthRejected):
			s.emit(Event{Kind: EventDisconnected, Err: err})

			return err

		default:
			s.emit(Event{Kind: EventDisconnected, Err: err})

			wait := bo.NextBackOff()

			logrus.WithError(err).WithField("backoff", wait).Info("Feed connection lost, reconnecting")

			select {
			case <-runCtx.Done():
				return runCtx.Err()

			case <-time.After(wait):
			}
		}
	}
}

// feed opens one feed connection, identifies, and reads frames until the
// connection dies or the relay ends the session.
func (s *Session) feed(ctx context.Context, bo *backoff.ExponentialBackOff) error {
	conn, _, err := s.wsDialer.DialContext(ctx, s.feedURL, nil)
	if err != nil {
		return fmt.Errorf("dial feed: %w", err)
	}

	defer func() { _ = conn.Close() }()

	// Unblock pending reads when the context ends.
	done := make(chan struct{})
	defer close(done)

	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()

		case <-done:
		}
	}()

	if err := conn.SetWriteDeadline(time.Now().Add(10 * time.Second)); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}

	if err := conn.WriteMessage(websocket.TextMessage, FormatIdentification(s.client.Credentials())); err != nil {
		return fmt.Errorf("send identification: %w", err)
	}

	// The relay answers a valid identification with an immediate keep-alive
	// and closes with a policy violation otherwise.
	frame, err := s.readFrame(conn)
	if err != nil {
		if isPolicyClose(err) {
			return ErrAuthRejected
		}

		return fmt.Errorf("await identification answer: %w", err)
	}

	switch frame {
	case FrameKeepAlive:

	case FrameSuperseded:
		return ErrSessionSuperseded

	case FrameReload:
		return ErrCredentialsRevoked

	default:
		return fmt.Errorf("unexpected %v frame during identification", frame)
	}

	s.setState(StateAuthenticated)
	s.emit(Event{Kind: EventConnected})

	bo.Reset()

	// Drain whatever queued up while we were away.
	s.signalFetch()

	for {
		frame, err := s.readFrame(conn)
		if err != nil {
			return fmt.Errorf("read feed: %w", err)
		}

		switch frame {
		case FrameKeepAlive:
			// The read itself fed the watchdog.

		case FrameNewMessage:
			s.signalFetch()

		case FrameReload:
			return ErrCredentialsRevoked

		case FrameSuperseded:
			return ErrSessionSuperseded

		case FrameError:
			return fmt.Errorf("relay reported a feed error")

		default:
			logrus.WithField("frame", frame).Warn("Ignoring unknown feed frame")
		}
	}
}

// readFrame returns the next control frame. The deadline covers twice the
// keep-alive interval; a silent feed is a dead feed.
func (s *Session) readFrame(conn *websocket.Conn) (Frame, error) {
	for {
		if err := conn.SetReadDeadline(time.Now().Add(2 * s.keepAlive)); err != nil {
			return 0, err
		}

		kind, data, err := conn.ReadMessage()
		if err != nil {
			return 0, err
		}

		if kind != websocket.BinaryMessage || len(data) != 1 {
			logrus.WithField("type", kind).Debug("Ignoring non-control feed message")

			continue
		}

		return Frame(data[0]), nil
	}
}

// fetchLoop serializes fetches: one signal, one drain. Transient fetch
// failures retry with their own backoff without blocking frame dispatch.
func (s *Session) fetchLoop(ctx context.Context) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Second
	bo.MaxInterval = time.Minute
	bo.MaxElapsedTime = 0
	bo.Reset()

	for {
		select {
		case <-ctx.Done():
			return

		case <-s.fetchCh:
		}

		if err := s.fetchPending(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}

			wait := bo.NextBackOff()

			logrus.WithError(err).WithField("backoff", wait).Warn("Fetch failed, retrying")

			select {
			case <-ctx.Done():
				return

			case <-time.After(wait):
			}

			s.signalFetch()

			continue
		}

		bo.Reset()

		s.state.CompareAndSwap(int32(StateSignaled), int32(StateIdle))
	}
}

// fetchPending pulls everything queued beyond the ledger, dedups, and routes
// each message to the alerter or the sink.
func (s *Session) fetchPending(ctx context.Context) error {
	msgs, err := s.client.GetMessages(ctx, s.ledger.LastID())
	if err != nil {
		return fmt.Errorf("get messages: %w", err)
	}

	if len(msgs) == 0 {
		return nil
	}

	for _, msg := range msgs {
		if !s.ledger.Accept(msg) {
			continue
		}

		if msg.IsEmergency() {
			s.alerter.Track(msg)
		} else {
			s.sink.Display(msg)
		}
	}

	// Confirm delivery so the relay drops the batch. The ledger already
	// guards against redelivery if this fails.
	if err := s.client.MarkDelivered(ctx, msgs[len(msgs)-1].ID); err != nil {
		logrus.WithError(err).Warn("Failed to mark messages delivered")
	}

	return nil
}

func (s *Session) resumeAckStates() error {
	states, err := s.store.AckStates()
	if err != nil {
		return fmt.Errorf("load ack states: %w", err)
	}

	for _, state := range states {
		s.alerter.Resume(state)
	}

	return nil
}

// signalFetch requests a fetch, coalescing with one already pending.
func (s *Session) signalFetch() {
	s.setState(StateSignaled)

	select {
	case s.fetchCh <- struct{}{}:
	default:
	}
}

func (s *Session) clearCredentials() {
	if s.creds == nil {
		return
	}

	if err := s.creds.Clear(); err != nil {
		logrus.WithError(err).Error("Failed to clear stored credentials")
	}
}

func (s *Session) setState(state State) {
	s.state.Store(int32(state))
}

func (s *Session) emit(event Event) {
	select {
	case s.eventCh <- event:

	default:
		logrus.WithField("event", event).Warn("Event channel full, dropping event")
	}
}

func isPolicyClose(err error) bool {
	var closeErr *websocket.CloseError

	return errors.As(err, &closeErr) && closeErr.Code == websocket.ClosePolicyViolation
}
