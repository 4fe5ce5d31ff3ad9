// Package mocks provides testify mocks for the collaborators of the
// processing package. Configure expectations with .On(...).Return(...).
package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/lidar-tools/lidarchive/internal/catalog"
	"github.com/lidar-tools/lidarchive/internal/models"
	"github.com/lidar-tools/lidarchive/internal/processing"
)

// MockConverter mocks processing.Converter.
type MockConverter struct {
	mock.Mock
}

// Convert mocks the Convert method.
func (m *MockConverter) Convert(ctx context.Context, req processing.ConversionRequest) (processing.ConversionResult, error) {
	args := m.Called(ctx, req)
	res, _ := args.Get(0).(processing.ConversionResult)
	return res, args.Error(1)
}

// MockRemoteClient mocks processing.RemoteClient.
type MockRemoteClient struct {
	mock.Mock
}

// UploadMeasurement mocks the UploadMeasurement method.
func (m *MockRemoteClient) UploadMeasurement(ctx context.Context, path string, systemID int, replace bool) error {
	args := m.Called(ctx, path, systemID, replace)
	return args.Error(0)
}

// GetMeasurement mocks the GetMeasurement method. Return a nil
// *processing.RemoteStatus for a missing measurement.
func (m *MockRemoteClient) GetMeasurement(ctx context.Context, id string) (*processing.RemoteStatus, error) {
	args := m.Called(ctx, id)
	status, _ := args.Get(0).(*processing.RemoteStatus)
	return status, args.Error(1)
}

// MonitorProcessing mocks the MonitorProcessing method.
func (m *MockRemoteClient) MonitorProcessing(ctx context.Context, id string, exitIfMissing bool) (*processing.RemoteStatus, error) {
	args := m.Called(ctx, id, exitIfMissing)
	status, _ := args.Get(0).(*processing.RemoteStatus)
	return status, args.Error(1)
}

// RerunAll mocks the RerunAll method.
func (m *MockRemoteClient) RerunAll(ctx context.Context, id string, monitor bool) error {
	args := m.Called(ctx, id, monitor)
	return args.Error(0)
}

// MockSystemResolver mocks processing.SystemResolver.
type MockSystemResolver struct {
	mock.Mock
}

// SetSystemID mocks the SetSystemID method.
func (m *MockSystemResolver) SetSystemID(set *catalog.MeasurementSet) (int, error) {
	args := m.Called(set)
	return args.Int(0), args.Error(1)
}

// MockParameterSource mocks processing.ParameterSource.
type MockParameterSource struct {
	mock.Mock
}

// ParameterFile mocks the ParameterFile method.
func (m *MockParameterSource) ParameterFile(systemID int, typ models.FileType, date time.Time) (string, error) {
	args := m.Called(systemID, typ, date)
	return args.String(0), args.Error(1)
}

// MockDebugStore mocks processing.DebugStore.
type MockDebugStore struct {
	mock.Mock
}

// DebugCopy mocks the DebugCopy method.
func (m *MockDebugStore) DebugCopy(set *catalog.MeasurementSet, outputPath string) (string, error) {
	args := m.Called(set, outputPath)
	return args.String(0), args.Error(1)
}

var (
	_ processing.Converter       = (*MockConverter)(nil)
	_ processing.RemoteClient    = (*MockRemoteClient)(nil)
	_ processing.SystemResolver  = (*MockSystemResolver)(nil)
	_ processing.ParameterSource = (*MockParameterSource)(nil)
	_ processing.DebugStore      = (*MockDebugStore)(nil)
)
