package processing

import (
	"context"
	"time"

	"github.com/lidar-tools/lidarchive/internal/catalog"
	"github.com/lidar-tools/lidarchive/internal/models"
)

// ConversionRequest describes one measurement set to convert.
type ConversionRequest struct {
	Set            *catalog.MeasurementSet
	SystemID       int
	OutputDir      string
	ParametersFile string
}

// ConversionResult locates the converted file.
type ConversionResult struct {
	OutputPath string `json:"output_path"`
	RemoteID   string `json:"measurement_id"`
}

// Converter writes the input file of the remote processing chain.
type Converter interface {
	Convert(ctx context.Context, req ConversionRequest) (ConversionResult, error)
}

// RemoteStatus is what the remote processing chain reports about a
// measurement.
type RemoteStatus struct {
	ID      string `json:"id"`
	Status  string `json:"status,omitempty"`
	Version string `json:"version,omitempty"`
	// ELPPCode is the exit code of the last processing stage.
	ELPPCode int `json:"elpp,omitempty"`
}

// RemoteClient talks to the remote processing chain. Get and Monitor
// return a nil status for measurements the remote does not know.
type RemoteClient interface {
	UploadMeasurement(ctx context.Context, path string, systemID int, replace bool) error
	GetMeasurement(ctx context.Context, id string) (*RemoteStatus, error)
	MonitorProcessing(ctx context.Context, id string, exitIfMissing bool) (*RemoteStatus, error)
	RerunAll(ctx context.Context, id string, monitor bool) error
}

// SystemResolver finds the remote system id of a measurement set.
type SystemResolver interface {
	SetSystemID(set *catalog.MeasurementSet) (int, error)
}

// ParameterSource picks the converter parameter file of a system.
type ParameterSource interface {
	ParameterFile(systemID int, typ models.FileType, date time.Time) (string, error)
}

// DebugStore keeps copies of processed measurements.
type DebugStore interface {
	DebugCopy(set *catalog.MeasurementSet, outputPath string) (string, error)
}
