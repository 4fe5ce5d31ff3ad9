// routes.go - Route registration helpers
// This file provides a clean way to register all API routes
package api

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"

	"github.com/lidar-tools/lidarchive/internal/catalog"
	"github.com/lidar-tools/lidarchive/internal/logging"
)

// Dependencies holds all handler dependencies
type Dependencies struct {
	SnapshotPath string
	History      HistoryReader
	Measurements MeasurementSource
	SplitParams  catalog.SplitParams
	Version      string
}

// Handlers holds all handler instances
type Handlers struct {
	Health       HealthHandler
	Tasks        TaskHandler
	History      HistoryHandler
	Measurements MeasurementHandler
}

// NewHandlers creates all handler instances
func NewHandlers(deps *Dependencies) *Handlers {
	return &Handlers{
		Health:       NewHealthHandler(deps.Version, deps.SnapshotPath),
		Tasks:        NewTaskHandler(deps.SnapshotPath),
		History:      NewHistoryHandler(deps.History),
		Measurements: NewMeasurementHandler(deps.Measurements, deps.SplitParams),
	}
}

// RegisterRoutes registers all API routes with the Echo instance
func RegisterRoutes(e *echo.Echo, handlers *Handlers) {
	e.GET("/health", handlers.Health.HandleHealth)

	apiGroup := e.Group("/api")
	apiGroup.GET("/health", handlers.Health.HandleHealth)

	// Task ledger
	apiGroup.GET("/tasks", handlers.Tasks.HandleListTasks)
	apiGroup.GET("/tasks/msgpack", handlers.Tasks.HandleListTasksMsgpack)
	apiGroup.GET("/tasks/:id", handlers.Tasks.HandleGetTask)

	apiGroup.GET("/history", handlers.History.HandleHistory)
	apiGroup.GET("/measurements", handlers.Measurements.HandleListMeasurements)
}

// SetupMiddleware configures common middleware. Requests are logged
// through logger at debug level.
func SetupMiddleware(e *echo.Echo, logger logrus.FieldLogger) {
	e.HTTPErrorHandler = ErrorHandler

	log := logging.OrDiscard(logger).WithField("component", "api")
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			entry := log.WithFields(logrus.Fields{
				"method":  v.Method,
				"uri":     v.URI,
				"status":  v.Status,
				"latency": v.Latency.String(),
			})
			if v.Error != nil {
				entry.WithError(v.Error).Warn("Request failed")
				return nil
			}
			entry.Debug("Request")
			return nil
		},
	}))

	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		StackSize: 1024 * 4,
	}))
}

// NewServer creates an Echo instance with middleware and routes.
func NewServer(deps *Dependencies, logger logrus.FieldLogger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	SetupMiddleware(e, logger)
	RegisterRoutes(e, NewHandlers(deps))
	return e
}
