package openpush

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/go-resty/resty/v2"
)

// clientID is a unique identifier for a client.
var clientID uint64

// Handler is a generic function that can be registered for a certain event (e.g. deauth, API code).
type Handler func()

// Client calls the relay's request channel on behalf of one registered device.
type Client struct {
	m *Manager

	// clientID is this client's unique ID.
	clientID uint64

	secret   string
	deviceID string
	authLock sync.RWMutex

	deauthHandlers []Handler
	hookLock       sync.RWMutex

	deauthOnce sync.Once
}

func newClient(m *Manager, creds Credentials) *Client {
	return &Client{
		m:        m,
		secret:   creds.Secret,
		deviceID: creds.DeviceID,
		clientID: atomic.AddUint64(&clientID, 1),
	}
}

// AddDeauthHandler registers a handler that is called (at most once) when the
// relay rejects the client's secret.
func (c *Client) AddDeauthHandler(handler Handler) {
	c.hookLock.Lock()
	defer c.hookLock.Unlock()

	c.deauthHandlers = append(c.deauthHandlers, handler)
}

func (c *Client) AddPreRequestHook(hook resty.RequestMiddleware) {
	c.hookLock.Lock()
	defer c.hookLock.Unlock()

	c.m.rc.OnBeforeRequest(func(rc *resty.Client, r *resty.Request) error {
		if clientID, ok := ClientIDFromContext(r.Context()); !ok || clientID != c.clientID {
			return nil
		}

		return hook(rc, r)
	})
}

func (c *Client) AddPostRequestHook(hook resty.ResponseMiddleware) {
	c.hookLock.Lock()
	defer c.hookLock.Unlock()

	c.m.rc.OnAfterResponse(func(rc *resty.Client, r *resty.Response) error {
		if clientID, ok := ClientIDFromContext(r.Request.Context()); !ok || clientID != c.clientID {
			return nil
		}

		return hook(rc, r)
	})
}

// Credentials returns a copy of the credential pair the client calls with.
func (c *Client) Credentials() Credentials {
	c.authLock.RLock()
	defer c.authLock.RUnlock()

	return Credentials{
		Secret:   c.secret,
		DeviceID: c.deviceID,
	}
}

func (c *Client) Close() {
	c.authLock.Lock()
	defer c.authLock.Unlock()

	c.secret = ""
	c.deviceID = ""

	c.hookLock.Lock()
	defer c.hookLock.Unlock()

	c.deauthHandlers = nil
}

func (c *Client) do(ctx context.Context, fn func(*resty.Request) (*resty.Response, error)) error {
	if _, err := c.doRes(ctx, fn); err != nil {
		return err
	}

	return nil
}

func (c *Client) doRes(ctx context.Context, fn func(*resty.Request) (*resty.Response, error)) (*resty.Response, error) {
	c.hookLock.RLock()
	defer c.hookLock.RUnlock()

	// Perform the request.
	res, err := fn(c.newReq(ctx))

	// If we receive no response, we can't do anything.
	if res.RawResponse == nil {
		return nil, fmt.Errorf("received no response from API: %w", err)
	}

	// If we receive a 401, notify deauth handlers.
	if res.StatusCode() == http.StatusUnauthorized {
		c.deauthOnce.Do(func() {
			for _, handler := range c.deauthHandlers {
				handler()
			}
		})
	}

	return res, err
}

func (c *Client) newReq(ctx context.Context) *resty.Request {
	c.authLock.RLock()
	defer c.authLock.RUnlock()

	r := c.m.r(WithClient(ctx, c.clientID))

	if c.secret != "" {
		r.SetQueryParam("secret", c.secret)
	}

	if c.deviceID != "" {
		r.SetQueryParam("device_id", c.deviceID)
	}

	return r
}
