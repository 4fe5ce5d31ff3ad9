package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/lidar-tools/lidarchive/internal/catalog"
	"github.com/lidar-tools/lidarchive/internal/datalog"
	"github.com/lidar-tools/lidarchive/internal/history"
	"github.com/lidar-tools/lidarchive/internal/models"
	"github.com/lidar-tools/lidarchive/internal/reader"
	"github.com/lidar-tools/lidarchive/internal/testutil"
)

var start = time.Date(2024, 3, 5, 21, 0, 0, 0, time.UTC)

func testSet(number int) *catalog.MeasurementSet {
	s := start.Add(time.Duration(number) * time.Hour)
	info := &models.FileInfo{Start: s, End: s.Add(time.Minute), Location: "Magurele", Channels: testutil.DefaultChannels(1200)}
	data := []*catalog.MeasurementFile{catalog.NewMeasurementFile("/data/a.000", info, reader.NewLicelV1Reader())}
	return catalog.NewMeasurementSet(data, nil, number)
}

// writeSnapshot saves a ledger with two tasks, the first one uploaded.
func writeSnapshot(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "lidarchive.datalog")
	d := datalog.New(datalog.Options{Path: path, Version: "test"})
	require.NoError(t, d.UpdateConfig(func(c *models.RunConfig) { c.RunID = "run-1" }, false))

	first, second := testSet(0), testSet(1)
	require.True(t, d.InitializeTask(first, false))
	require.True(t, d.InitializeTask(second, false))
	require.NoError(t, d.UpdateTask(first.ID(), datalog.FieldConverted, true, false))
	require.NoError(t, d.UpdateTask(first.ID(), datalog.FieldUploaded, true, false))
	require.NoError(t, d.Save())
	return path
}

func serve(h echo.HandlerFunc, target string, names, values []string) (*httptest.ResponseRecorder, error) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames(names...)
	c.SetParamValues(values...)
	return rec, h(c)
}

// ============ Health ============

func TestHealthHandler(t *testing.T) {
	tests := []struct {
		name  string
		path  func(t *testing.T) string
		state string
	}{
		{name: "loaded", path: writeSnapshot, state: "loaded"},
		{name: "absent", path: func(t *testing.T) string { return filepath.Join(t.TempDir(), "missing") }, state: "absent"},
		{name: "corrupt", path: func(t *testing.T) string {
			return testutil.WriteTextFile(t, t.TempDir(), "bad.datalog", "not a datalog")
		}, state: "corrupt"},
		{name: "none", path: func(t *testing.T) string { return "" }, state: "none"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthHandler("1.2.3", tt.path(t))
			rec, err := serve(h.HandleHealth, "/health", nil, nil)
			require.NoError(t, err)
			assert.Equal(t, http.StatusOK, rec.Code)

			var body map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, "1.2.3", body["version"])
			assert.Equal(t, tt.state, body["datalog"])
		})
	}
}

// ============ Tasks ============

func TestTaskHandler_List(t *testing.T) {
	h := NewTaskHandler(writeSnapshot(t))

	rec, err := serve(h.HandleListTasks, "/api/tasks", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Code)

	var list TaskList
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Tasks, 2)
	assert.Equal(t, "20240305_0000", list.Tasks[0].ID)
	assert.Equal(t, "run-1", list.Config.RunID)
	assert.Equal(t, 2, list.Summary.Total)
	assert.Equal(t, 1, list.Summary.Uploaded)
	assert.Equal(t, 1, list.Summary.NotConverted)
	require.NotNil(t, list.Header)
	assert.Equal(t, datalog.SchemaVersion, list.Header.SchemaVersion)

	t.Run("msgpack", func(t *testing.T) {
		rec, err := serve(h.HandleListTasksMsgpack, "/api/tasks/msgpack", nil, nil)
		require.NoError(t, err)
		assert.Equal(t, "application/msgpack", rec.Header().Get(echo.HeaderContentType))

		var decoded TaskList
		require.NoError(t, msgpack.Unmarshal(rec.Body.Bytes(), &decoded))
		assert.Len(t, decoded.Tasks, 2)
		assert.Equal(t, 2, decoded.Summary.Total)
	})
}

func TestTaskHandler_NoSnapshot(t *testing.T) {
	h := NewTaskHandler(filepath.Join(t.TempDir(), "missing.datalog"))

	rec, err := serve(h.HandleListTasks, "/api/tasks", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"tasks":[]`)

	t.Run("corrupt", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.datalog")
		require.NoError(t, os.WriteFile(path, []byte{0x01, 0x02}, 0644))

		_, err := serve(NewTaskHandler(path).HandleListTasks, "/api/tasks", nil, nil)
		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusInternalServerError, apiErr.Status)
	})

	t.Run("not configured", func(t *testing.T) {
		_, err := serve(NewTaskHandler("").HandleListTasks, "/api/tasks", nil, nil)
		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusServiceUnavailable, apiErr.Status)
	})
}

func TestTaskHandler_Get(t *testing.T) {
	h := NewTaskHandler(writeSnapshot(t))

	rec, err := serve(h.HandleGetTask, "/api/tasks/20240305_0001", []string{"id"}, []string{"20240305_0001"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Code)

	var task models.Task
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &task))
	assert.Equal(t, "20240305_0001", task.ID)
	assert.False(t, task.Converted)

	_, err = serve(h.HandleGetTask, "/api/tasks/nope", []string{"id"}, []string{"nope"})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
}

// ============ History ============

type fakeHistory struct {
	entries []history.Entry
	err     error
	limit   int
}

func (f *fakeHistory) Recent(_ context.Context, limit int) ([]history.Entry, error) {
	f.limit = limit
	if limit < len(f.entries) {
		return f.entries[:limit], f.err
	}
	return f.entries, f.err
}

func (f *fakeHistory) ForTask(_ context.Context, taskID string) ([]history.Entry, error) {
	var out []history.Entry
	for _, e := range f.entries {
		if e.TaskID == taskID {
			out = append(out, e)
		}
	}
	return out, f.err
}

func (f *fakeHistory) Count(context.Context) (int, error) {
	return len(f.entries), f.err
}

func TestHistoryHandler(t *testing.T) {
	store := &fakeHistory{}
	for _, id := range []string{"20240305_0000", "20240305_0001", "20240305_0000"} {
		store.entries = append(store.entries, history.Entry{
			RecordedAt: start,
			TaskRow:    models.TaskRow{TaskID: id, Result: "Uploaded"},
		})
	}
	h := NewHistoryHandler(store)

	t.Run("recent", func(t *testing.T) {
		rec, err := serve(h.HandleHistory, "/api/history?limit=2", nil, nil)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 2, store.limit)

		var body struct {
			Total   int             `json:"total"`
			Entries []history.Entry `json:"entries"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, 3, body.Total)
		assert.Len(t, body.Entries, 2)
	})

	t.Run("default limit", func(t *testing.T) {
		_, err := serve(h.HandleHistory, "/api/history", nil, nil)
		require.NoError(t, err)
		assert.Equal(t, defaultHistoryLimit, store.limit)
	})

	t.Run("per task", func(t *testing.T) {
		rec, err := serve(h.HandleHistory, "/api/history?task=20240305_0000", nil, nil)
		require.NoError(t, err)
		assert.Contains(t, rec.Body.String(), `"task":"20240305_0000"`)

		var body struct {
			Entries []history.Entry `json:"entries"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Len(t, body.Entries, 2)
	})

	t.Run("invalid limit", func(t *testing.T) {
		for _, limit := range []string{"abc", "0", "-3"} {
			_, err := serve(h.HandleHistory, "/api/history?limit="+limit, nil, nil)
			var apiErr *APIError
			require.ErrorAs(t, err, &apiErr, limit)
			assert.Equal(t, "VALIDATION_ERROR", apiErr.Code)
		}
	})

	t.Run("store error", func(t *testing.T) {
		_, err := serve(NewHistoryHandler(&fakeHistory{err: errors.New("io error")}).HandleHistory, "/api/history", nil, nil)
		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusInternalServerError, apiErr.Status)
	})

	t.Run("no store", func(t *testing.T) {
		_, err := serve(NewHistoryHandler(nil).HandleHistory, "/api/history", nil, nil)
		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusServiceUnavailable, apiErr.Status)
	})
}

// ============ Measurements ============

type fakeSource struct {
	sets   []*catalog.MeasurementSet
	params catalog.SplitParams
}

func (f *fakeSource) ContinuousMeasurements(p catalog.SplitParams) []*catalog.MeasurementSet {
	f.params = p
	return f.sets
}

func TestMeasurementHandler(t *testing.T) {
	params := catalog.SplitParams{MaxGap: 5 * time.Minute, MinLength: 30 * time.Minute, MaxLength: time.Hour}
	source := &fakeSource{sets: []*catalog.MeasurementSet{testSet(0), testSet(1)}}
	h := NewMeasurementHandler(source, params)

	rec, err := serve(h.HandleListMeasurements, "/api/measurements", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, params, source.params)

	var body struct {
		Count        int                  `json:"count"`
		Measurements []MeasurementSummary `json:"measurements"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Count)
	assert.Equal(t, "20240305_0001", body.Measurements[1].ID)
	assert.Equal(t, 1, body.Measurements[0].Data)
	assert.Equal(t, []string{
		"BT0 (532nm, analog, 7.50m, laser 1, 12 bit)",
		"BC0 (532nm, analog, 7.50m, laser 1, 12 bit)",
	}, body.Measurements[0].Channels)
	require.NotNil(t, body.Measurements[0].Start)
	assert.True(t, body.Measurements[0].Start.Equal(start))

	_, err = serve(NewMeasurementHandler(nil, params).HandleListMeasurements, "/api/measurements", nil, nil)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.Status)
}

// ============ Server ============

func TestServer_Routes(t *testing.T) {
	e := NewServer(&Dependencies{
		SnapshotPath: writeSnapshot(t),
		History:      &fakeHistory{},
		Version:      "test",
	}, nil)

	tests := []struct {
		target string
		status int
	}{
		{"/health", http.StatusOK},
		{"/api/health", http.StatusOK},
		{"/api/tasks", http.StatusOK},
		{"/api/tasks/msgpack", http.StatusOK},
		{"/api/tasks/20240305_0000", http.StatusOK},
		{"/api/tasks/20990101_0000", http.StatusNotFound},
		{"/api/history?limit=5", http.StatusOK},
		{"/api/history?limit=x", http.StatusBadRequest},
		{"/api/measurements", http.StatusServiceUnavailable},
		{"/api/unknown", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)
			assert.Equal(t, tt.status, rec.Code)
			if tt.status >= 400 {
				var apiErr APIError
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &apiErr))
				assert.NotEmpty(t, apiErr.Code)
			}
		})
	}
}
