package handlers

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/refgraph/refgraph-api/internal/config"
	"github.com/refgraph/refgraph-api/internal/logger"
	"github.com/refgraph/refgraph-api/internal/services"
	"github.com/refgraph/refgraph-api/internal/store"
)

// CommonServices holds common dependencies used across handlers
type CommonServices struct {
	cfg         *config.Config
	sessions    *services.SessionService
	activations *services.ActivationService
	snapshots   *services.SnapshotService
	referrals   store.ReferralStore
}

// ErrorResponse represents a standard error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// SuccessResponse represents a standard success response
type SuccessResponse struct {
	Message string `json:"message"`
}

// NewCommonServices creates a new instance of CommonServices
func NewCommonServices(cfg *config.Config, sessions *services.SessionService, activations *services.ActivationService, snapshots *services.SnapshotService, referrals store.ReferralStore) *CommonServices {
	return &CommonServices{
		cfg:         cfg,
		sessions:    sessions,
		activations: activations,
		snapshots:   snapshots,
		referrals:   referrals,
	}
}

// sendError is a helper function that combines logging and error response.
// The response body carries the human-readable message for the failure.
func sendError(c *gin.Context, statusCode int, message string, err error) {
	logger.Error(message,
		zap.Error(err),
		zap.String("path", c.Request.URL.Path),
		zap.String("method", c.Request.Method),
	)
	body := message
	if err != nil {
		body = err.Error()
	}
	c.JSON(statusCode, ErrorResponse{Error: body})
}

// sendSuccess is a helper function that sends a success response
func sendSuccess(c *gin.Context, statusCode int, data interface{}) {
	c.JSON(statusCode, data)
}

// sendSuccessMessage is a helper function that sends a success message
func sendSuccessMessage(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, SuccessResponse{Message: message})
}
