package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/lidar-tools/lidarchive/internal/catalog"
	"github.com/lidar-tools/lidarchive/internal/config"
	"github.com/lidar-tools/lidarchive/internal/datalog"
	"github.com/lidar-tools/lidarchive/internal/extcmd"
	"github.com/lidar-tools/lidarchive/internal/history"
	"github.com/lidar-tools/lidarchive/internal/models"
	"github.com/lidar-tools/lidarchive/internal/processing"
	"github.com/lidar-tools/lidarchive/internal/reader"
	"github.com/lidar-tools/lidarchive/internal/storage"
	"github.com/lidar-tools/lidarchive/internal/system"
)

// dateFlagLayout is the format of --startdate and --enddate.
const dateFlagLayout = "20060102150405"

type runOptions struct {
	root *rootOptions

	datalogCSV string
	startDate  string
	endDate    string

	replace     bool
	reprocess   bool
	download    bool
	wait        bool
	convertOnly bool
	continuous  bool
	resume      bool
	testFiles   bool
	debug       bool
	force       bool
}

func newRunCmd(root *rootOptions) *cobra.Command {
	opts := &runOptions{root: root}

	cmd := &cobra.Command{
		Use:   "run <folder>",
		Short: "Converts, uploads and downloads the measurements found in a folder",
		Long: `Scans folder for raw lidar files, groups them into measurements and
processes every measurement: conversion, upload to the remote processing
chain and, with --download, retrieval of the products.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd)
			defer cancel()
			return opts.run(ctx, cmd, args[0])
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.datalogCSV, "datalog", "", "CSV file receiving the processing log (default from configuration)")
	addDateFlags(f, &opts.startDate, &opts.endDate)
	f.BoolVarP(&opts.replace, "replace", "r", false, "Replace measurements that already exist on the remote")
	f.BoolVarP(&opts.reprocess, "reprocess", "p", false, "Reprocess measurements that already exist on the remote, skipping the upload")
	f.BoolVarP(&opts.download, "download", "d", false, "Download products after processing")
	f.BoolVarP(&opts.wait, "wait", "w", false, "Wait for the remote to finish processing before downloading")
	f.BoolVarP(&opts.convertOnly, "convert", "c", false, "Convert files without submitting them")
	f.BoolVar(&opts.continuous, "continuous", false, "Start after the last measurement processed by a previous run")
	f.BoolVar(&opts.resume, "resume", false, "Resume the work an interrupted run left unfinished")
	f.BoolVar(&opts.testFiles, "test-files", false, "Copy raw instrument test files to the tests folder")
	f.BoolVar(&opts.debug, "debug", false, "Copy raw files and converted files to the debug folder")
	f.BoolVar(&opts.force, "force", false, "Restart measurements already present in the datalog")

	return cmd
}

// addDateFlags registers --startdate and --enddate.
func addDateFlags(f *pflag.FlagSet, start, end *string) {
	f.StringVar(start, "startdate", "", "Ignore files starting before this time (YYYYMMDDhhmmss)")
	f.StringVar(end, "enddate", "", "Ignore files starting after this time (YYYYMMDDhhmmss)")
}

// parseDateFlag parses a YYYYMMDDhhmmss value as UTC. Empty means unset.
func parseDateFlag(name, value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse(dateFlagLayout, value)
	if err != nil {
		return nil, fmt.Errorf("invalid --%s %q, expected YYYYMMDDhhmmss", name, value)
	}
	return &t, nil
}

// continuousStart moves start forward to the last processed date.
func continuousStart(start, lastProcessed *time.Time) *time.Time {
	if lastProcessed == nil {
		return start
	}
	if start == nil || start.Before(*lastProcessed) {
		t := *lastProcessed
		return &t
	}
	return start
}

func formatDate(t *time.Time) string {
	if t == nil {
		return "N/A"
	}
	return t.Format(time.DateTime)
}

func (o *runOptions) run(ctx context.Context, cmd *cobra.Command, folder string) error {
	start, err := parseDateFlag("startdate", o.startDate)
	if err != nil {
		return err
	}
	end, err := parseDateFlag("enddate", o.endDate)
	if err != nil {
		return err
	}

	cfg, logger, err := o.root.load(cmd)
	if err != nil {
		return err
	}
	defer logger.Close()

	runID := uuid.NewString()
	log := logger.WithFields(logrus.Fields{"component": "cli", "run": runID})

	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}
	folder, err = filepath.Abs(folder)
	if err != nil {
		return fmt.Errorf("failed to resolve data folder: %w", err)
	}

	reg := reader.NewRegistry()
	ledger := datalog.New(datalog.Options{
		Path:     cfg.Datalog.SwapFile,
		Registry: reg,
		Logger:   logger,
		Version:  version,
	})
	if !ledger.Load() {
		log.Debugf("Datalog %s, starting empty", ledger.LastLoadState())
	}

	if o.continuous {
		start = continuousStart(start, ledger.Config().LastProcessedDate)
	}

	log.Infof("Run started at %s", time.Now().Format(time.DateTime))
	log.Infof("Configuration file = %s", cfg.Path())
	log.Infof("Data folder = %s", folder)
	log.Infof("Minimum start time = %s", formatDate(start))
	log.Infof("Maximum end time = %s", formatDate(end))
	log.Infof("Maximum gap between measurements (seconds) = %d", cfg.MaxGap)
	log.Info("Identifying measurements. This can take a few minutes...")

	cat := newCatalog(cfg, reg, logger)
	cat.SetFolder(folder)
	scan, err := cat.ReadFolder(ctx, start, end)
	if err != nil {
		return fmt.Errorf("failed to scan %s: %w", folder, err)
	}
	log.WithFields(logrus.Fields{
		"skipped":      scan.Skipped,
		"duplicates":   scan.Duplicates,
		"out_of_range": scan.OutOfRange,
	}).Debugf("Found %d files", scan.Files)

	sets := cat.ContinuousMeasurements(cfg.SplitParams())
	log.Infof("Identified %d different continuous measurements with a maximum acceptable gap of %ds", len(sets), cfg.MaxGap)

	store, err := storage.NewLocalStore(cfg.DebugDir, logger)
	if err != nil {
		return err
	}

	if o.testFiles {
		log.Info("Copying test files...")
		n, err := cat.CopyTestFiles(cfg.TestsDir, true, store)
		if err != nil {
			log.WithError(err).Error("Could not copy test files")
		} else {
			log.Infof("Copied %d test runs", n)
		}
	}

	if !o.resume {
		ledger.ResetTasks()
	}
	persist := ledger.Path() != ""
	if err := ledger.UpdateConfig(func(c *models.RunConfig) {
		c.RunID = runID
		c.ConfigFile = cfg.Path()
		c.Folder = folder
		c.ConvertOnly = o.convertOnly
		c.Reprocess = o.reprocess
		c.Replace = o.replace
		c.Download = o.download
		c.Wait = o.wait
		c.Debug = o.debug
		c.StartedAt = time.Now()
	}, persist); err != nil {
		return err
	}

	proc, err := newProcessor(cfg, ledger, reg, store, o.convertOnly, logger)
	if err != nil {
		return err
	}
	if o.resume {
		proc.LogInterruptedWork()
	}

	runErr := proc.Run(ctx, sets, o.force)
	if errors.Is(runErr, context.Canceled) {
		log.Warn("Processing interrupted. Use --resume to continue where it stopped.")
	} else if runErr != nil {
		log.WithError(runErr).Error("Processing stopped")
	}

	// The logs are written even for an interrupted run.
	exportCtx := context.WithoutCancel(ctx)
	csvPath := o.datalogCSV
	if csvPath == "" {
		csvPath = cfg.Datalog.CSVFile
	}
	if csvPath != "" {
		if err := ledger.WriteCSV(csvPath); err != nil {
			log.WithError(err).Error("Could not write datalog CSV")
		}
	}
	if cfg.Datalog.HistoryDB != "" {
		if err := recordHistory(exportCtx, cfg.Datalog.HistoryDB, ledger.Rows(), logger); err != nil {
			log.WithError(err).Error("Could not record task history")
		}
	}

	summary := ledger.Summary()
	log.WithFields(logrus.Fields{
		"tasks":          summary.Total,
		"not_converted":  summary.NotConverted,
		"not_uploaded":   summary.NotUploaded,
		"not_downloaded": summary.NotDownloaded,
	}).Info("Processing finished")

	if runErr != nil {
		return runErr
	}
	ledger.ResetTasks()
	if persist {
		return ledger.Save()
	}
	return nil
}

func newCatalog(cfg *config.Config, reg *reader.Registry, logger logrus.FieldLogger) *catalog.Catalog {
	return catalog.New(catalog.Options{
		Registry:               reg,
		Logger:                 logger,
		DarkIdentifiers:        cfg.DarkIdentifiers,
		MeasurementIdentifiers: cfg.MeasurementIdentifiers,
		Tests:                  cfg.Tests,
	})
}

// newProcessor wires the external programs named in cfg. Without a remote
// client only conversion is possible.
func newProcessor(cfg *config.Config, ledger *datalog.Datalog, reg *reader.Registry, store *storage.LocalStore, convertOnly bool, logger logrus.FieldLogger) (*processing.Processor, error) {
	systems, err := system.LoadIndex(cfg.SystemsFolder, reg, logger)
	if err != nil {
		return nil, err
	}

	var converter processing.Converter
	if cfg.Converter.Command != "" {
		converter = extcmd.NewConverter(cfg.Converter.Command, cfg.Converter.Args, nil, logger)
	}

	if !convertOnly && cfg.RemoteClient.Command == "" {
		return nil, errors.New("remote_client.command is not configured; use --convert to only convert")
	}
	remote := extcmd.NewRemoteClient(extcmd.RemoteOptions{
		Command:         cfg.RemoteClient.Command,
		Args:            cfg.RemoteClient.Args,
		BaseURL:         cfg.RemoteBaseURL,
		OutputDir:       cfg.RemoteOutputDir,
		User:            cfg.BasicCredentials.Username,
		Password:        cfg.BasicCredentials.Password,
		WebsiteUser:     cfg.WebsiteCredentials.Username,
		WebsitePassword: cfg.WebsiteCredentials.Password,
		Logger:          logger,
	})

	return processing.New(processing.Options{
		Ledger:           ledger,
		Systems:          systems,
		Parameters:       cfg.Parameters,
		Converter:        converter,
		Remote:           remote,
		Store:            store,
		OutputDir:        cfg.OutputDir,
		RemoteOutputDir:  cfg.RemoteOutputDir,
		MaxUploadRetries: cfg.MaxUploadRetries,
		Logger:           logger,
	}), nil
}

func recordHistory(ctx context.Context, path string, rows []models.TaskRow, logger logrus.FieldLogger) error {
	if len(rows) == 0 {
		return nil
	}
	store, err := history.Open(path, logger)
	if err != nil {
		return err
	}
	defer store.Close()
	return store.Append(ctx, rows, time.Now())
}
