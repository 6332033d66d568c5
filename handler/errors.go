package handler

import (
	"errors"
	"net/http"

	"github.com/AnTengye/solarflow/pkg/logger"
	"github.com/AnTengye/solarflow/service"
	"github.com/gin-gonic/gin"
)

// respondError maps service errors onto HTTP responses. Failures of the
// sheet, the upload store or the vendor API are reported with retry: true;
// nothing is retried server side.
func respondError(c *gin.Context, err error) {
	ctx := c.Request.Context()

	var verr *service.ValidationError
	var berr *service.BatchError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Validation failed", "problems": verr.Problems})
	case errors.Is(err, service.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid username or password"})
	case errors.Is(err, service.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.As(err, &berr):
		logger.Warn(ctx, "batch failed", "failed", berr.Failed, "total", berr.Total)
		c.JSON(http.StatusBadGateway, gin.H{
			"error":  "Batch update failed; some records may already be updated",
			"failed": berr.Failed,
			"total":  berr.Total,
			"retry":  true,
		})
	case errors.Is(err, service.ErrUpload):
		logger.Warn(ctx, "upload failed", "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "Upload failed, record not updated: " + err.Error(), "retry": true})
	case errors.Is(err, service.ErrTransport), errors.Is(err, service.ErrMalformedPayload):
		logger.Warn(ctx, "backend unavailable", "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "retry": true})
	default:
		logger.Error(ctx, "request failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}
