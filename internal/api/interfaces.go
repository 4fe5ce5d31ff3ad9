// interfaces.go - Handler interface definitions for clean separation of concerns
package api

import (
	"context"

	"github.com/labstack/echo/v4"

	"github.com/lidar-tools/lidarchive/internal/catalog"
	"github.com/lidar-tools/lidarchive/internal/history"
)

// HealthHandler handles health check operations
type HealthHandler interface {
	HandleHealth(c echo.Context) error
}

// TaskHandler serves the task ledger
type TaskHandler interface {
	HandleListTasks(c echo.Context) error
	HandleListTasksMsgpack(c echo.Context) error
	HandleGetTask(c echo.Context) error
}

// HistoryHandler serves the task history
type HistoryHandler interface {
	HandleHistory(c echo.Context) error
}

// MeasurementHandler serves the measurement sets of the scanned folder
type MeasurementHandler interface {
	HandleListMeasurements(c echo.Context) error
}

// HistoryReader is the query side of the history store.
// This allows mocking in tests
type HistoryReader interface {
	Recent(ctx context.Context, limit int) ([]history.Entry, error)
	ForTask(ctx context.Context, taskID string) ([]history.Entry, error)
	Count(ctx context.Context) (int, error)
}

// MeasurementSource computes measurement sets.
type MeasurementSource interface {
	ContinuousMeasurements(p catalog.SplitParams) []*catalog.MeasurementSet
}
