package server

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func initRouter(s *Server) {
	// The feed carries its own identification frame; everything under /1 is
	// the request channel.
	s.r.GET("/push", s.handleFeed())

	if v1 := s.r.Group("/1", s.checkRateLimit(), s.requireValidAppVersion()); v1 != nil {
		v1.GET("/ping.json", s.handleGetPing())

		// Login and device registration authenticate themselves.
		v1.POST("/users/login.json", s.handlePostLogin())
		v1.POST("/devices.json", s.handlePostRegisterDevice())

		// These routes require device credentials.
		if auth := v1.Group("", s.requireAuth()); auth != nil {
			auth.GET("/messages.json", s.handleGetMessages())
			auth.POST("/devices/:deviceID/update_highest_message.json", s.handleUpdateHighestMessage())
			auth.POST("/receipts/:receiptID/acknowledge.json", s.handleAcknowledgeReceipt())
		}
	}
}

func (s *Server) requireValidAppVersion() gin.HandlerFunc {
	return func(c *gin.Context) {
		appVersion := c.Request.Header.Get("X-App-Version")

		if appVersion == "" {
			abortWithErrors(c, http.StatusBadRequest, "missing X-App-Version header")
		} else if ok := s.validateAppVersion(appVersion); !ok {
			abortWithErrors(c, http.StatusUpgradeRequired, "this version of the app is no longer supported, please update to continue")
		}
	}
}

func (s *Server) logCalls() gin.HandlerFunc {
	return func(c *gin.Context) {
		req, err := io.ReadAll(c.Request.Body)
		if err != nil {
			panic(err)
		} else {
			c.Request.Body = io.NopCloser(bytes.NewReader(req))
		}

		res, err := newBodyWriter(c.Writer)
		if err != nil {
			panic(err)
		} else {
			c.Writer = res
		}

		c.Next()

		s.callWatchersLock.RLock()
		defer s.callWatchersLock.RUnlock()

		for _, call := range s.callWatchers {
			if call.isWatching(c.Request.URL.Path) {
				call.publish(Call{
					URL:    c.Request.URL,
					Method: c.Request.Method,
					Status: c.Writer.Status(),

					RequestHeader: c.Request.Header,
					RequestBody:   req,

					ResponseHeader: c.Writer.Header(),
					ResponseBody:   res.bytes(),
				})
			}
		}
	}
}

func (s *Server) handleOffline() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.offline {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
	}
}

func (s *Server) checkRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.rateLimit == nil {
			return
		}

		if wait := s.rateLimit.exceeded(); wait > 0 {
			c.Header("Retry-After", retryAfterSeconds(wait))
			c.AbortWithStatus(http.StatusTooManyRequests)
		}
	}
}

// requireAuth validates the secret/device pair carried in the query, the form
// body or the path, the way device-scoped calls present them.
func (s *Server) requireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		secret := credentialParam(c, "secret")

		deviceID := credentialParam(c, "device_id")
		if param := c.Param("deviceID"); param != "" {
			deviceID = param
		}

		userID, err := s.b.VerifyDevice(secret, deviceID)
		if err != nil {
			abortWithErrors(c, http.StatusUnauthorized, "invalid credentials")
			return
		}

		c.Set("UserID", userID)

		c.Set("DeviceID", deviceID)
	}
}

func (s *Server) handleGetPing() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": 1,
		})
	}
}

func (s *Server) validateAppVersion(appVersion string) bool {
	if s.minAppVersion == nil {
		return true
	}

	split := strings.Split(appVersion, "_")

	if len(split) != 2 {
		return false
	}

	version, err := semver.NewVersion(split[1])
	if err != nil {
		return false
	}

	if version.LessThan(s.minAppVersion) {
		return false
	}

	return true
}

// credentialParam reads a credential field from the query or the form body,
// wherever the client put it.
func credentialParam(c *gin.Context, name string) string {
	if v := c.Query(name); v != "" {
		return v
	}

	return c.PostForm(name)
}

func abortWithErrors(c *gin.Context, status int, errs ...string) {
	c.AbortWithStatusJSON(status, gin.H{
		"status":  0,
		"request": uuid.NewString(),
		"errors":  errs,
	})
}

type bodyWriter struct {
	gin.ResponseWriter
	buf *bytes.Buffer
}

func newBodyWriter(w gin.ResponseWriter) (*bodyWriter, error) {
	if w == nil {
		return nil, errors.New("response writer is nil")
	}

	return &bodyWriter{
		ResponseWriter: w,

		buf: &bytes.Buffer{},
	}, nil
}

func (w bodyWriter) Write(b []byte) (int, error) {
	if n, err := w.buf.Write(b); err != nil {
		return n, err
	}

	return w.ResponseWriter.Write(b)
}

func (w bodyWriter) bytes() []byte {
	return w.buf.Bytes()
}
