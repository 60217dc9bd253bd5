package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rl-arena/ranked-orchestrator/internal/api/middleware"
	"github.com/rl-arena/ranked-orchestrator/internal/service"
	"github.com/rl-arena/ranked-orchestrator/pkg/logger"
)

var codeStatus = map[service.Code]int{
	service.CodeValidation:      http.StatusBadRequest,
	service.CodeUnauthorized:    http.StatusForbidden,
	service.CodeStateConflict:   http.StatusConflict,
	service.CodeNotFound:        http.StatusNotFound,
	service.CodeExternalFailure: http.StatusBadGateway,
	service.CodeRaceLost:        http.StatusConflict,
	service.CodeInternal:        http.StatusInternalServerError,
}

// respondError writes the error envelope for err. A repeated operation is
// reported as success.
func respondError(c *gin.Context, err error) {
	if errors.Is(err, service.ErrAlreadyProcessed) {
		c.JSON(http.StatusOK, gin.H{"status": "already_processed"})
		return
	}

	code := service.CodeOf(err)
	msg := err.Error()
	if code == service.CodeInternal {
		logger.Error("Request failed", "path", c.FullPath(), "error", err)
		msg = "Internal server error"
	}
	middleware.AbortWithError(c, codeStatus[code], code, msg)
}

func badRequest(c *gin.Context, err error) {
	middleware.AbortWithError(c, http.StatusBadRequest, service.CodeValidation, err.Error())
}

// bindOptionalJSON binds the body when one was sent.
func bindOptionalJSON(c *gin.Context, obj interface{}) error {
	if c.Request.ContentLength == 0 {
		return nil
	}
	return c.ShouldBindJSON(obj)
}
