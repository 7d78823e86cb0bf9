package server

import (
	"io"
	"net/http/httptest"
	"os"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/openpush/go-openpush-api/server/backend"
)

type serverBuilder struct {
	withTLS     bool
	logger      io.Writer
	keepAlive   time.Duration
	rateLimiter *rateLimiter
}

func newServerBuilder() *serverBuilder {
	var logger io.Writer

	if os.Getenv("GO_OPENPUSH_API_SERVER_LOGGER_ENABLED") != "" {
		logger = gin.DefaultWriter
	} else {
		logger = io.Discard
	}

	return &serverBuilder{
		withTLS:   true,
		logger:    logger,
		keepAlive: 30 * time.Second,
	}
}

func (builder *serverBuilder) build() *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		r: gin.New(),
		b: backend.New(),

		feeds:         make(map[string]*feedConn),
		supersedeNext: make(map[string]struct{}),

		keepAlive: builder.keepAlive,
		rateLimit: builder.rateLimiter,
	}

	if builder.withTLS {
		s.s = httptest.NewTLSServer(s.r)
	} else {
		s.s = httptest.NewServer(s.r)
	}

	s.r.Use(
		gin.LoggerWithConfig(gin.LoggerConfig{Output: builder.logger}),
		gin.Recovery(),
		s.logCalls(),
		s.handleOffline(),
	)

	initRouter(s)

	return s
}

// Option represents a type that can be used to configure the server.
type Option interface {
	config(*serverBuilder)
}

// WithTLS controls whether the server should serve over TLS.
func WithTLS(tls bool) Option {
	return &withTLS{
		withTLS: tls,
	}
}

type withTLS struct {
	withTLS bool
}

func (opt withTLS) config(builder *serverBuilder) {
	builder.withTLS = opt.withTLS
}

// WithLogger controls where Gin logs to.
func WithLogger(logger io.Writer) Option {
	return &withLogger{
		logger: logger,
	}
}

type withLogger struct {
	logger io.Writer
}

func (opt withLogger) config(builder *serverBuilder) {
	builder.logger = opt.logger
}

// WithKeepAlive sets the cadence of feed keep-alive frames.
func WithKeepAlive(keepAlive time.Duration) Option {
	return &withKeepAlive{
		keepAlive: keepAlive,
	}
}

type withKeepAlive struct {
	keepAlive time.Duration
}

func (opt withKeepAlive) config(builder *serverBuilder) {
	builder.keepAlive = opt.keepAlive
}

// WithRateLimit bounds the number of requests accepted per window.
func WithRateLimit(limit int, window time.Duration) Option {
	return &withRateLimit{
		limit:  limit,
		window: window,
	}
}

type withRateLimit struct {
	limit  int
	window time.Duration
}

func (opt withRateLimit) config(builder *serverBuilder) {
	builder.rateLimiter = newRateLimiter(opt.limit, opt.window)
}
