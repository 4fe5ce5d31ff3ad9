// handlers_measurements.go - Measurement set handlers
package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/lidar-tools/lidarchive/internal/catalog"
)

// MeasurementHandlerImpl implements the MeasurementHandler interface
type MeasurementHandlerImpl struct {
	source MeasurementSource
	params catalog.SplitParams
}

// NewMeasurementHandler creates a new measurement handler. A nil source
// answers 503.
func NewMeasurementHandler(source MeasurementSource, params catalog.SplitParams) MeasurementHandler {
	return &MeasurementHandlerImpl{source: source, params: params}
}

// MeasurementSummary describes one measurement set.
type MeasurementSummary struct {
	ID     string     `json:"id"`
	Type   string     `json:"type"`
	Start  *time.Time `json:"start,omitempty"`
	End    *time.Time `json:"end,omitempty"`
	Folder string     `json:"folder"`
	Data   int        `json:"dataFiles"`
	Dark   int        `json:"darkFiles"`

	// Channels describes the channel layout of the first data file.
	Channels []string `json:"channels,omitempty"`
}

// Summarize describes set.
func Summarize(set *catalog.MeasurementSet) MeasurementSummary {
	s := MeasurementSummary{
		ID:     set.ID(),
		Type:   set.Type().String(),
		Folder: set.Folder(),
		Data:   len(set.DataFiles()),
		Dark:   len(set.DarkFiles()),
	}
	if start, ok := set.Start(); ok {
		s.Start = &start
	}
	if end, ok := set.End(); ok {
		s.End = &end
	}
	if data := set.DataFiles(); len(data) > 0 {
		for _, ch := range data[0].Info().Channels {
			s.Channels = append(s.Channels, ch.Description())
		}
	}
	return s
}

// HandleListMeasurements returns the continuous measurements of the folder
func (h *MeasurementHandlerImpl) HandleListMeasurements(c echo.Context) error {
	if h.source == nil {
		return NewServiceUnavailableError("no measurement folder configured")
	}

	sets := h.source.ContinuousMeasurements(h.params)
	out := make([]MeasurementSummary, 0, len(sets))
	for _, set := range sets {
		out = append(out, Summarize(set))
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"count":        len(out),
		"measurements": out,
	})
}
