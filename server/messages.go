package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func (s *Server) handleGetMessages() gin.HandlerFunc {
	return func(c *gin.Context) {
		var after int64

		if v := c.Query("after"); v != "" {
			parsed, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				abortWithErrors(c, http.StatusBadRequest, "invalid after parameter")
				return
			}

			after = parsed
		}

		messages, err := s.b.Messages(c.GetString("DeviceID"), after)
		if err != nil {
			abortWithErrors(c, http.StatusInternalServerError, err.Error())
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":   1,
			"request":  uuid.NewString(),
			"messages": messages,
		})
	}
}

func (s *Server) handleUpdateHighestMessage() gin.HandlerFunc {
	return func(c *gin.Context) {
		highest, err := strconv.ParseInt(c.PostForm("message"), 10, 64)
		if err != nil {
			abortWithErrors(c, http.StatusBadRequest, "invalid message parameter")
			return
		}

		if err := s.b.UpdateHighest(c.GetString("DeviceID"), highest); err != nil {
			abortWithErrors(c, http.StatusInternalServerError, err.Error())
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":  1,
			"request": uuid.NewString(),
		})
	}
}

func (s *Server) handleAcknowledgeReceipt() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := s.b.AcknowledgeReceipt(c.GetString("UserID"), c.Param("receiptID")); err != nil {
			abortWithErrors(c, http.StatusBadRequest, err.Error())
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":  1,
			"request": uuid.NewString(),
		})
	}
}
