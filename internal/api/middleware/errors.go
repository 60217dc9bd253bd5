package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/rl-arena/ranked-orchestrator/internal/service"
)

// ErrorBody is the payload of every failed API call.
type ErrorBody struct {
	Code      service.Code `json:"code"`
	Message   string       `json:"message"`
	Retryable bool         `json:"retryable"`
}

// AbortWithError stops the chain with the standard error envelope.
func AbortWithError(c *gin.Context, status int, code service.Code, message string) {
	c.AbortWithStatusJSON(status, gin.H{
		"error": ErrorBody{
			Code:      code,
			Message:   message,
			Retryable: code.Retryable(),
		},
	})
}
