// Package datalog keeps the resumable task ledger: one task per measurement
// set plus the run configuration, persisted as a versioned snapshot after
// every significant update.
package datalog

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lidar-tools/lidarchive/internal/catalog"
	"github.com/lidar-tools/lidarchive/internal/logging"
	"github.com/lidar-tools/lidarchive/internal/models"
	"github.com/lidar-tools/lidarchive/internal/reader"
)

var (
	ErrUnknownTask  = errors.New("unknown task")
	ErrUnknownField = errors.New("unknown task field")
	ErrNoPath       = errors.New("datalog has no snapshot path")
)

// Field names a task attribute that can be updated after initialisation.
type Field string

const (
	FieldConverted       Field = "converted"
	FieldUploaded        Field = "uploaded"
	FieldDownloaded      Field = "downloaded"
	FieldAlreadyOnRemote Field = "already_on_remote"
	FieldSystemID        Field = "system_id"
	FieldRemoteID        Field = "remote_id"
	FieldOutputPath      Field = "output_path"
	FieldRemoteVersion   Field = "remote_version"
	FieldResult          Field = "result"
	FieldProcessStart    Field = "process_start"
)

// Options configures a Datalog.
type Options struct {
	// Path of the snapshot file. Empty keeps the ledger in memory only.
	Path     string
	Registry *reader.Registry
	Logger   logrus.FieldLogger
	// Version is recorded in the snapshot header.
	Version string
	Now     func() time.Time
}

// Datalog is the task ledger.
type Datalog struct {
	mu      sync.Mutex
	path    string
	version string
	reg     *reader.Registry
	log     logrus.FieldLogger
	now     func() time.Time

	config    models.RunConfig
	tasks     map[string]*models.Task
	loadState LoadState
}

func New(opts Options) *Datalog {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	version := opts.Version
	if version == "" {
		version = "dev"
	}
	reg := opts.Registry
	if reg == nil {
		reg = reader.NewRegistry()
	}
	return &Datalog{
		path:    opts.Path,
		version: version,
		reg:     reg,
		log:     logging.OrDiscard(opts.Logger).WithField("component", "datalog"),
		now:     now,
		tasks:   make(map[string]*models.Task),
	}
}

// Path is the snapshot location.
func (d *Datalog) Path() string {
	return d.path
}

// InitializeTask registers set for processing. An existing task is left
// untouched unless forceRestart is set. The ledger is not persisted.
func (d *Datalog) InitializeTask(set *catalog.MeasurementSet, forceRestart bool) bool {
	id := set.ID()

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.tasks[id]; exists && !forceRestart {
		return false
	}

	now := d.now()
	d.tasks[id] = &models.Task{
		ID:               id,
		Measurement:      set.Record(),
		WantConvert:      true,
		WantUpload:       !d.config.ConvertOnly,
		WantDownload:     d.config.Download,
		WantDebug:        d.config.Debug,
		WaitEnabled:      d.config.Wait,
		ReprocessEnabled: d.config.Reprocess,
		ReplaceEnabled:   d.config.Replace,
		ProcessStart:     now,
		UpdatedAt:        now,
	}
	return true
}

// UpdateTask sets one field of task id. With persist the whole ledger is
// saved and a failed save is returned.
func (d *Datalog) UpdateTask(id string, field Field, value any, persist bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	task, ok := d.tasks[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTask, id)
	}
	if err := d.setField(task, field, value); err != nil {
		return err
	}
	if persist {
		return d.saveLocked()
	}
	return nil
}

// UpdateTaskByRemoteID updates the first task, in ledger order, carrying
// the remote measurement id.
func (d *Datalog) UpdateTaskByRemoteID(remoteID string, field Field, value any, persist bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, task := range d.orderedLocked() {
		if task.RemoteID != remoteID {
			continue
		}
		if err := d.setField(task, field, value); err != nil {
			return err
		}
		if persist {
			return d.saveLocked()
		}
		return nil
	}
	return fmt.Errorf("%w: remote id %s", ErrUnknownTask, remoteID)
}

func (d *Datalog) setField(task *models.Task, field Field, value any) error {
	var ok bool
	switch field {
	case FieldConverted:
		task.Converted, ok = value.(bool)
	case FieldUploaded:
		task.Uploaded, ok = value.(bool)
	case FieldDownloaded:
		task.Downloaded, ok = value.(bool)
	case FieldAlreadyOnRemote:
		task.AlreadyOnRemote, ok = value.(bool)
	case FieldSystemID:
		task.SystemID, ok = value.(int)
	case FieldRemoteID:
		task.RemoteID, ok = value.(string)
	case FieldOutputPath:
		task.OutputPath, ok = value.(string)
	case FieldRemoteVersion:
		task.RemoteVersion, ok = value.(string)
	case FieldResult:
		task.Result, ok = value.(string)
	case FieldProcessStart:
		task.ProcessStart, ok = value.(time.Time)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownField, field)
	}
	if !ok {
		return fmt.Errorf("task %s: field %s does not accept %T", task.ID, field, value)
	}
	task.UpdatedAt = d.now()
	return nil
}

// UpdateConfig applies mutate to the run configuration.
func (d *Datalog) UpdateConfig(mutate func(*models.RunConfig), persist bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	mutate(&d.config)
	if persist {
		return d.saveLocked()
	}
	return nil
}

// Config returns a copy of the run configuration.
func (d *Datalog) Config() models.RunConfig {
	d.mu.Lock()
	defer d.mu.Unlock()
	return copyConfig(d.config)
}

// AdvanceLastProcessedDate moves LastProcessedDate forward to date.
// Earlier dates are ignored.
func (d *Datalog) AdvanceLastProcessedDate(date time.Time, persist bool) error {
	return d.UpdateConfig(func(c *models.RunConfig) {
		if c.LastProcessedDate == nil || date.After(*c.LastProcessedDate) {
			t := date
			c.LastProcessedDate = &t
		}
	}, persist)
}

// Reset clears tasks and configuration and removes the snapshot.
func (d *Datalog) Reset() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.tasks = make(map[string]*models.Task)
	d.config = models.RunConfig{}
	return d.removeSnapshotLocked()
}

// ResetTasks clears the tasks and keeps the configuration.
func (d *Datalog) ResetTasks() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tasks = make(map[string]*models.Task)
}

// Task returns a copy of task id.
func (d *Datalog) Task(id string) (models.Task, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	task, ok := d.tasks[id]
	if !ok {
		return models.Task{}, false
	}
	return *task, true
}

// Tasks returns copies of every task ordered by process start, then id.
func (d *Datalog) Tasks() []models.Task {
	d.mu.Lock()
	defer d.mu.Unlock()
	return copyTasks(d.orderedLocked())
}

// Len is the number of tasks.
func (d *Datalog) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.tasks)
}

// Set restores the measurement set of task id.
func (d *Datalog) Set(id string) (*catalog.MeasurementSet, error) {
	task, ok := d.Task(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTask, id)
	}
	return catalog.RestoreMeasurementSet(task.Measurement, d.reg), nil
}

func (d *Datalog) orderedLocked() []*models.Task {
	return orderTasks(d.tasks)
}

func orderTasks(tasks map[string]*models.Task) []*models.Task {
	out := make([]*models.Task, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ProcessStart.Equal(out[j].ProcessStart) {
			return out[i].ProcessStart.Before(out[j].ProcessStart)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func copyTasks(tasks []*models.Task) []models.Task {
	out := make([]models.Task, len(tasks))
	for i, t := range tasks {
		out[i] = *t
	}
	return out
}

func copyConfig(c models.RunConfig) models.RunConfig {
	if c.LastProcessedDate != nil {
		t := *c.LastProcessedDate
		c.LastProcessedDate = &t
	}
	return c
}
