// Package processing drives measurement sets through conversion, upload and
// download, recording every step in the task ledger so an interrupted run
// can pick up where it stopped.
package processing

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lidar-tools/lidarchive/internal/catalog"
	"github.com/lidar-tools/lidarchive/internal/datalog"
	"github.com/lidar-tools/lidarchive/internal/logging"
)

// Results recorded on tasks.
const (
	ResultConverted       = "Converted to SCC NetCDF"
	ResultConversionError = "Error converting"
	ResultUploadError     = "Error uploading"
	ResultReprocessError  = "Error reprocessing"
	ResultDownloadError   = "Error downloading SCC products"
	ResultNotProcessed    = "SCC did not finish processing in due time."
	ResultNoProducts      = "No SCC products found"
	ResultUnknownProducts = "Unknown error in SCC products"
)

// elppUnknownError is the processing-chain exit code for an unclassified failure.
const elppUnknownError = 127

var ErrNoConverter = errors.New("no converter configured")

// Options configures a Processor.
type Options struct {
	Ledger     *datalog.Datalog
	Systems    SystemResolver
	Parameters ParameterSource
	Converter  Converter
	Remote     RemoteClient
	// Store receives debug copies. Nil disables them.
	Store DebugStore

	OutputDir        string
	RemoteOutputDir  string
	MaxUploadRetries int

	Logger logrus.FieldLogger
	Now    func() time.Time
}

// Processor runs the tasks of a ledger one at a time.
type Processor struct {
	ledger     *datalog.Datalog
	systems    SystemResolver
	params     ParameterSource
	converter  Converter
	remote     RemoteClient
	store      DebugStore
	outputDir  string
	remoteDir  string
	maxRetries int
	persist    bool
	log        logrus.FieldLogger
	now        func() time.Time
}

// New creates a Processor. Ledger updates are persisted when the ledger has
// a snapshot path.
func New(opts Options) *Processor {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Processor{
		ledger:     opts.Ledger,
		systems:    opts.Systems,
		params:     opts.Parameters,
		converter:  opts.Converter,
		remote:     opts.Remote,
		store:      opts.Store,
		outputDir:  opts.OutputDir,
		remoteDir:  opts.RemoteOutputDir,
		maxRetries: opts.MaxUploadRetries,
		persist:    opts.Ledger.Path() != "",
		log:        logging.OrDiscard(opts.Logger).WithField("component", "processing"),
		now:        now,
	}
}

type change struct {
	field datalog.Field
	value any
}

// record applies changes to task id, saving the ledger once after the last.
func (p *Processor) record(id string, changes ...change) error {
	for i, c := range changes {
		if err := p.ledger.UpdateTask(id, c.field, c.value, p.persist && i == len(changes)-1); err != nil {
			return err
		}
	}
	return nil
}

// Run adds a task for every set and processes the whole ledger, including
// tasks left over from an interrupted run. Only ledger write failures and
// cancellation stop it; problems with a single task are recorded on the task.
func (p *Processor) Run(ctx context.Context, sets []*catalog.MeasurementSet, forceRestart bool) error {
	for _, set := range sets {
		if !p.ledger.InitializeTask(set, forceRestart) {
			p.log.WithField("task", set.ID()).Debug("Measurement needed resuming, continuing where it stopped")
		}
	}
	if p.persist {
		if err := p.ledger.Save(); err != nil {
			return err
		}
	}

	tasks := p.ledger.Tasks()
	p.log.Infof("Starting processing %d tasks", len(tasks))

	for i, task := range tasks {
		if err := ctx.Err(); err != nil {
			return err
		}
		p.log.WithField("task", task.ID).Infof("Started task %d/%d", i+1, len(tasks))
		if err := p.ProcessTask(ctx, task.ID); err != nil {
			return err
		}
	}

	if !p.ledger.Config().Download {
		p.log.Info("Product download is not enabled. You can enable it with --download.")
		return nil
	}
	p.log.Info("Downloading SCC products")
	return p.DownloadMeasurements(ctx)
}

// ProcessTask converts, copies and uploads one task as its flags ask.
func (p *Processor) ProcessTask(ctx context.Context, id string) error {
	log := p.log.WithField("task", id)

	task, ok := p.ledger.Task(id)
	if !ok {
		return nil
	}
	set, err := p.ledger.Set(id)
	if err != nil {
		log.WithError(err).Error("Could not restore measurement")
		return nil
	}

	if task.NeedsConversion() {
		if err := p.Convert(ctx, set); err != nil {
			return err
		}
		task, _ = p.ledger.Task(id)
	}

	if task.RemoteID == "" || task.OutputPath == "" {
		log.Error("Measurement could not be converted")
		return nil
	}
	log.Infof("Converted measurement: %s", filepath.Base(task.OutputPath))

	if task.WantDebug && p.store != nil {
		if dir, err := p.store.DebugCopy(set, task.OutputPath); err != nil {
			log.WithError(err).Warn("Could not copy measurement for debugging")
		} else {
			log.WithField("dir", dir).Debug("Measurement copied for debugging")
		}
	}

	if task.NeedsUpload() {
		return p.Upload(ctx, set)
	}
	return nil
}

// Convert resolves the system id of set and converts it. A failed
// conversion is recorded on the task and is not an error.
func (p *Processor) Convert(ctx context.Context, set *catalog.MeasurementSet) error {
	id := set.ID()
	log := p.log.WithField("task", id)

	if p.converter == nil {
		return ErrNoConverter
	}

	systemID, err := p.systems.SetSystemID(set)
	if err != nil {
		log.WithError(err).Error("Couldn't determine system ID")
		return p.record(id, change{datalog.FieldResult, err.Error()})
	}
	log = log.WithField("system_id", systemID)

	if err := p.record(id,
		change{datalog.FieldSystemID, systemID},
		change{datalog.FieldProcessStart, p.now()},
	); err != nil {
		return err
	}

	req := ConversionRequest{
		Set:       set,
		SystemID:  systemID,
		OutputDir: p.outputDir,
	}
	if start, ok := set.Start(); ok && p.params != nil {
		file, err := p.params.ParameterFile(systemID, set.Type(), start)
		if err != nil {
			log.WithError(err).Warn("No parameter file for measurement")
		}
		req.ParametersFile = file
	}

	res, err := p.converter.Convert(ctx, req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		log.WithError(err).Error("Conversion failed")
		return p.record(id, change{datalog.FieldResult, ResultConversionError})
	}

	return p.record(id,
		change{datalog.FieldConverted, true},
		change{datalog.FieldRemoteID, res.RemoteID},
		change{datalog.FieldOutputPath, res.OutputPath},
		change{datalog.FieldResult, ResultConverted},
	)
}

// Upload sends a converted task to the remote. Measurements the remote
// already knows are reprocessed, kept or replaced according to the task
// flags.
func (p *Processor) Upload(ctx context.Context, set *catalog.MeasurementSet) error {
	id := set.ID()
	log := p.log.WithField("task", id)

	task, ok := p.ledger.Task(id)
	if !ok {
		return nil
	}
	switch {
	case task.RemoteID == "":
		log.Error("Could not determine remote measurement ID")
		return nil
	case task.OutputPath == "":
		log.Error("Could not read converted file")
		return nil
	case task.SystemID == 0:
		log.Error("Measurement does not belong to any known system")
		return nil
	}
	log = log.WithField("remote_id", task.RemoteID)
	start, _ := set.Start()

	existing, err := p.remote.GetMeasurement(ctx, task.RemoteID)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		log.WithError(err).Warn("Could not query remote measurement, assuming it is missing")
		existing = nil
	}
	exists := existing != nil
	if err := p.record(id, change{datalog.FieldAlreadyOnRemote, exists}); err != nil {
		return err
	}

	switch {
	case exists && task.ReprocessEnabled:
		log.Debug("Measurement already exists on the remote, triggering reprocessing")
		if err := p.remote.RerunAll(ctx, task.RemoteID, false); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			log.WithError(err).Error("Reprocessing failed")
			return p.record(id, change{datalog.FieldResult, ResultReprocessError})
		}
		return p.markUploaded(id, start)
	case exists && !task.ReplaceEnabled:
		log.Debug("Measurement already exists on the remote, skipping reprocessing")
		return p.markUploaded(id, start)
	}

	if !p.UploadMeasurement(ctx, task.OutputPath, task.SystemID, p.maxRetries, task.ReplaceEnabled) {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return p.record(id, change{datalog.FieldResult, ResultUploadError})
	}
	log.Info("Successfully uploaded")
	return p.markUploaded(id, start)
}

func (p *Processor) markUploaded(id string, start time.Time) error {
	if !start.IsZero() {
		if err := p.ledger.AdvanceLastProcessedDate(start, false); err != nil {
			return err
		}
	}
	return p.record(id, change{datalog.FieldUploaded, true})
}

// UploadMeasurement tries to upload path once plus up to maxRetries more
// times and reports whether one attempt succeeded.
func (p *Processor) UploadMeasurement(ctx context.Context, path string, systemID, maxRetries int, replace bool) bool {
	remoteID := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	log := p.log.WithField("remote_id", remoteID)

	err := p.remote.UploadMeasurement(ctx, path, systemID, replace)
	for retry := 0; err != nil && retry < maxRetries; {
		if ctx.Err() != nil {
			return false
		}
		retry++
		log.WithError(err).Warnf("Upload failed. Retrying (%d/%d)", retry, maxRetries)
		err = p.remote.UploadMeasurement(ctx, path, systemID, replace)
	}
	if err != nil {
		log.WithError(err).Error("Upload failed")
		return false
	}
	return true
}
