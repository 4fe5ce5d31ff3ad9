// handlers_tasks.go - Task ledger handlers
package api

import (
	"errors"
	"net/http"
	"os"

	"github.com/labstack/echo/v4"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/lidar-tools/lidarchive/internal/datalog"
	"github.com/lidar-tools/lidarchive/internal/models"
)

// TaskHandlerImpl implements the TaskHandler interface. Every request reads
// the snapshot the running batch writes, so the server never holds a lock
// on the ledger.
type TaskHandlerImpl struct {
	snapshotPath string
}

// NewTaskHandler creates a new task handler
func NewTaskHandler(snapshotPath string) TaskHandler {
	return &TaskHandlerImpl{snapshotPath: snapshotPath}
}

// TaskList is the body of GET /api/tasks.
type TaskList struct {
	Header  *datalog.SnapshotHeader `json:"header,omitempty" msgpack:"header,omitempty"`
	Config  models.RunConfig        `json:"config" msgpack:"config"`
	Summary datalog.Summary         `json:"summary" msgpack:"summary"`
	Tasks   []models.Task           `json:"tasks" msgpack:"tasks"`
}

func (h *TaskHandlerImpl) load() (*TaskList, error) {
	if h.snapshotPath == "" {
		return nil, NewServiceUnavailableError("no datalog configured")
	}
	snap, err := datalog.ReadSnapshot(h.snapshotPath)
	if errors.Is(err, os.ErrNotExist) {
		return &TaskList{Tasks: []models.Task{}}, nil
	}
	if err != nil {
		return nil, NewInternalError("failed to read datalog", err)
	}

	tasks := snap.Tasks
	if tasks == nil {
		tasks = []models.Task{}
	}
	return &TaskList{
		Header:  &snap.Header,
		Config:  snap.Config,
		Summary: datalog.Summarize(tasks),
		Tasks:   tasks,
	}, nil
}

// HandleListTasks returns the run configuration and every task
func (h *TaskHandlerImpl) HandleListTasks(c echo.Context) error {
	list, err := h.load()
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, list)
}

// HandleListTasksMsgpack returns the same payload as HandleListTasks encoded
// with msgpack
func (h *TaskHandlerImpl) HandleListTasksMsgpack(c echo.Context) error {
	list, err := h.load()
	if err != nil {
		return err
	}
	data, err := msgpack.Marshal(list)
	if err != nil {
		return NewInternalError("failed to encode msgpack", err)
	}
	return c.Blob(http.StatusOK, "application/msgpack", data)
}

// HandleGetTask returns one task by measurement id
func (h *TaskHandlerImpl) HandleGetTask(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return NewValidationError("id", nil)
	}

	list, err := h.load()
	if err != nil {
		return err
	}
	for _, task := range list.Tasks {
		if task.ID == id {
			return c.JSON(http.StatusOK, task)
		}
	}
	return NewNotFoundError("task", id)
}
