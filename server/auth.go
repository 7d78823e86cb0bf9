package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/openpush/go-openpush-api/server/backend"
)

func (s *Server) handlePostLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, secret, err := s.b.Login(
			c.PostForm("email"),
			[]byte(c.PostForm("password")),
			c.PostForm("twofa"),
		)
		if err != nil {
			if errors.Is(err, backend.ErrTwoFARequired) {
				abortWithErrors(c, http.StatusPreconditionFailed, "two-factor authentication required")
				return
			}

			abortWithErrors(c, http.StatusUnauthorized, "invalid email or password")
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":  1,
			"request": uuid.NewString(),
			"id":      userID,
			"secret":  secret,
		})
	}
}

func (s *Server) handlePostRegisterDevice() gin.HandlerFunc {
	return func(c *gin.Context) {
		deviceID, err := s.b.RegisterDevice(
			credentialParam(c, "secret"),
			c.PostForm("name"),
			c.PostForm("os"),
		)
		if err != nil {
			abortWithErrors(c, http.StatusUnauthorized, "invalid credentials")
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":  1,
			"request": uuid.NewString(),
			"id":      deviceID,
		})
	}
}
