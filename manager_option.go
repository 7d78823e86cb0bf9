package openpush

import (
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

// Option represents a type that can be used to configure the manager.
type Option interface {
	config(*managerBuilder)
}

// WithHostURL sets the host URL of the relay's request channel.
func WithHostURL(hostURL string) Option {
	return &withHostURL{
		hostURL: hostURL,
	}
}

type withHostURL struct {
	hostURL string
}

func (opt withHostURL) config(builder *managerBuilder) {
	builder.hostURL = opt.hostURL
}

// WithFeedURL sets the websocket feed endpoint sessions connect to.
func WithFeedURL(feedURL string) Option {
	return &withFeedURL{
		feedURL: feedURL,
	}
}

type withFeedURL struct {
	feedURL string
}

func (opt withFeedURL) config(builder *managerBuilder) {
	builder.feedURL = opt.feedURL
}

// WithAppVersion sets the app version reported to the relay.
func WithAppVersion(appVersion string) Option {
	return &withAppVersion{
		appVersion: appVersion,
	}
}

type withAppVersion struct {
	appVersion string
}

func (opt withAppVersion) config(builder *managerBuilder) {
	builder.appVersion = opt.appVersion
}

// WithTransport sets the transport used for requests.
func WithTransport(transport http.RoundTripper) Option {
	return &withTransport{
		transport: transport,
	}
}

type withTransport struct {
	transport http.RoundTripper
}

func (opt withTransport) config(builder *managerBuilder) {
	builder.transport = opt.transport
}

// WithCookieJar sets the cookie jar used for requests.
func WithCookieJar(jar http.CookieJar) Option {
	return &withCookieJar{
		jar: jar,
	}
}

type withCookieJar struct {
	jar http.CookieJar
}

func (opt withCookieJar) config(builder *managerBuilder) {
	builder.cookieJar = opt.jar
}

// WithRetryCount sets the number of times a request is retried.
func WithRetryCount(retryCount int) Option {
	return &withRetryCount{
		retryCount: retryCount,
	}
}

type withRetryCount struct {
	retryCount int
}

func (opt withRetryCount) config(builder *managerBuilder) {
	builder.retryCount = opt.retryCount
}

// WithTimeout bounds every call on the request channel.
func WithTimeout(timeout time.Duration) Option {
	return &withTimeout{
		timeout: timeout,
	}
}

type withTimeout struct {
	timeout time.Duration
}

func (opt withTimeout) config(builder *managerBuilder) {
	builder.timeout = opt.timeout
}

// WithLogger sets the logger resty writes to.
func WithLogger(logger resty.Logger) Option {
	return &withLogger{
		logger: logger,
	}
}

type withLogger struct {
	logger resty.Logger
}

func (opt withLogger) config(builder *managerBuilder) {
	builder.logger = opt.logger
}

// WithDebug enables resty debug output.
func WithDebug(debug bool) Option {
	return &withDebug{
		debug: debug,
	}
}

type withDebug struct {
	debug bool
}

func (opt withDebug) config(builder *managerBuilder) {
	builder.debug = opt.debug
}
