// handlers_health.go - Health check handlers
package api

import (
	"errors"
	"net/http"
	"os"

	"github.com/labstack/echo/v4"

	"github.com/lidar-tools/lidarchive/internal/datalog"
)

// HealthHandlerImpl implements the HealthHandler interface
type HealthHandlerImpl struct {
	version      string
	snapshotPath string
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(version, snapshotPath string) HealthHandler {
	return &HealthHandlerImpl{
		version:      version,
		snapshotPath: snapshotPath,
	}
}

// HandleHealth returns server health status and the state of the datalog
func (h *HealthHandlerImpl) HandleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"version": h.version,
		"datalog": snapshotState(h.snapshotPath),
	})
}

func snapshotState(path string) string {
	if path == "" {
		return datalog.LoadStateNone.String()
	}
	_, err := datalog.ReadSnapshot(path)
	switch {
	case err == nil:
		return datalog.LoadStateLoaded.String()
	case errors.Is(err, os.ErrNotExist):
		return datalog.LoadStateAbsent.String()
	default:
		return datalog.LoadStateCorrupt.String()
	}
}
