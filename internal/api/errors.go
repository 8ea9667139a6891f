package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/benchforge/workbench/internal/services"
	"github.com/benchforge/workbench/internal/store"
)

// writeServiceError maps a service-layer error to an HTTP status and
// JSON body, following original_source's HTTPException status choices
// (400 for validation, 404 for not found, 409 for busy/conflict).
func writeServiceError(c *gin.Context, err error) {
	var validErr *services.ValidationError
	if errors.As(err, &validErr) {
		c.JSON(http.StatusBadRequest, gin.H{"error": validErr.Error()})
		return
	}
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "resource not found"})
		return
	}
	if errors.Is(err, services.ErrBusy) {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	if errors.Is(err, store.ErrBusy) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "db is busy, please retry"})
		return
	}

	slog.Error("unexpected service error", "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
}
