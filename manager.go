package openpush

import (
	"context"
	"errors"
	"sync"

	"github.com/go-resty/resty/v2"
)

// Status is the observed reachability of the relay's request channel.
type Status int

const (
	StatusUp Status = iota
	StatusDown
)

func (s Status) String() string {
	switch s {
	case StatusUp:
		return "up"

	case StatusDown:
		return "down"

	default:
		return "unknown"
	}
}

// StatusObserver is called whenever the observed relay status changes.
type StatusObserver func(Status)

// Manager owns the HTTP request channel to the relay. Clients created from it
// share its transport, retry policy and middleware.
type Manager struct {
	rc *resty.Client

	feedURL string

	errHandlers map[int][]Handler
	errLock     sync.RWMutex

	status          Status
	statusObservers []StatusObserver
	statusLock      sync.Mutex
}

// New builds a Manager from the default configuration modified by the given
// options.
func New(opts ...Option) *Manager {
	builder := newManagerBuilder()

	for _, opt := range opts {
		opt.config(builder)
	}

	return builder.build()
}

// AddStatusObserver registers an observer notified when the relay becomes
// reachable or unreachable. The observer is only called on changes.
func (m *Manager) AddStatusObserver(observer StatusObserver) {
	m.statusLock.Lock()
	defer m.statusLock.Unlock()

	m.statusObservers = append(m.statusObservers, observer)
}

// AddErrorHandler registers a handler called whenever the relay answers any
// request with the given HTTP status code.
func (m *Manager) AddErrorHandler(code int, handler Handler) {
	m.errLock.Lock()
	defer m.errLock.Unlock()

	m.errHandlers[code] = append(m.errHandlers[code], handler)
}

// Close closes idle connections held by the manager's transport.
func (m *Manager) Close() {
	m.rc.GetClient().CloseIdleConnections()
}

// Ping checks whether the relay's request channel is reachable.
func (m *Manager) Ping(ctx context.Context) error {
	if _, err := m.r(ctx).Get("/1/ping.json"); err != nil {
		return err
	}

	return nil
}

// FeedURL returns the websocket feed endpoint sessions connect to.
func (m *Manager) FeedURL() string {
	return m.feedURL
}

func (m *Manager) r(ctx context.Context) *resty.Request {
	return m.rc.R().SetContext(ctx)
}

func (m *Manager) checkConnUp(_ *resty.Client, _ *resty.Response) error {
	m.setStatus(StatusUp)

	return nil
}

func (m *Manager) checkConnDown(_ *resty.Request, err error) {
	// A canceled request says nothing about the network.
	if errors.Is(err, context.Canceled) {
		return
	}

	// If a response arrived, the network is fine; the relay just refused us.
	var resErr *resty.ResponseError

	if errors.As(err, &resErr) {
		return
	}

	m.setStatus(StatusDown)
}

func (m *Manager) handleError(req *resty.Request, err error) {
	var apiErr *APIError

	if !errors.As(err, &apiErr) {
		return
	}

	m.errLock.RLock()
	defer m.errLock.RUnlock()

	for _, handler := range m.errHandlers[apiErr.Code] {
		handler()
	}
}

func (m *Manager) setStatus(status Status) {
	m.statusLock.Lock()
	defer m.statusLock.Unlock()

	if status == m.status {
		return
	}

	m.status = status

	for _, observer := range m.statusObservers {
		observer(status)
	}
}
