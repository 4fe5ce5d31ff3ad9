// handlers_history.go - Task history handlers
package api

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/lidar-tools/lidarchive/internal/history"
)

const (
	defaultHistoryLimit = 100
	maxHistoryLimit     = 10000
)

// HistoryHandlerImpl implements the HistoryHandler interface
type HistoryHandlerImpl struct {
	store HistoryReader
}

// NewHistoryHandler creates a new history handler. A nil store answers 503.
func NewHistoryHandler(store HistoryReader) HistoryHandler {
	return &HistoryHandlerImpl{store: store}
}

// HandleHistory returns the latest history rows, or every row of one task
// with ?task=<id>
func (h *HistoryHandlerImpl) HandleHistory(c echo.Context) error {
	if h.store == nil {
		return NewServiceUnavailableError("no history database configured")
	}

	ctx := c.Request().Context()
	if taskID := c.QueryParam("task"); taskID != "" {
		entries, err := h.store.ForTask(ctx, taskID)
		if err != nil {
			return NewInternalError("failed to query history", err)
		}
		return c.JSON(http.StatusOK, map[string]interface{}{
			"task":    taskID,
			"entries": nonNil(entries),
		})
	}

	limit := defaultHistoryLimit
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return NewValidationError("limit", err)
		}
		limit = min(n, maxHistoryLimit)
	}

	entries, err := h.store.Recent(ctx, limit)
	if err != nil {
		return NewInternalError("failed to query history", err)
	}
	total, err := h.store.Count(ctx)
	if err != nil {
		return NewInternalError("failed to count history", err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"total":   total,
		"limit":   limit,
		"entries": nonNil(entries),
	})
}

func nonNil(entries []history.Entry) []history.Entry {
	if entries == nil {
		return []history.Entry{}
	}
	return entries
}
