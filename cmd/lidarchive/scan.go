package main

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/lidar-tools/lidarchive/internal/api"
	"github.com/lidar-tools/lidarchive/internal/catalog"
	"github.com/lidar-tools/lidarchive/internal/reader"
)

type scanOptions struct {
	root *rootOptions

	startDate string
	endDate   string
	jsonOut   bool
}

func newScanCmd(root *rootOptions) *cobra.Command {
	opts := &scanOptions{root: root}

	cmd := &cobra.Command{
		Use:   "scan <folder>",
		Short: "Lists the measurements found in a folder without processing them",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, args[0])
		},
	}

	f := cmd.Flags()
	addDateFlags(f, &opts.startDate, &opts.endDate)
	f.BoolVar(&opts.jsonOut, "json", false, "Print the measurements as JSON")

	return cmd
}

func (o *scanOptions) run(cmd *cobra.Command, folder string) error {
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
	log := logger.WithField("component", "cli")

	ctx, cancel := signalContext(cmd)
	defer cancel()

	folder, err = filepath.Abs(folder)
	if err != nil {
		return fmt.Errorf("failed to resolve data folder: %w", err)
	}

	cat := newCatalog(cfg, reader.NewRegistry(), logger)
	cat.SetFolder(folder)
	res, err := cat.ReadFolder(ctx, start, end)
	if err != nil {
		return fmt.Errorf("failed to scan %s: %w", folder, err)
	}

	params := cfg.SplitParams()
	warnShortDarkRuns(log, cat.ContinuousDarkRuns(params), cfg.MinDarkDuration())

	sets := cat.ContinuousMeasurements(params)
	summaries := make([]api.MeasurementSummary, len(sets))
	for i, set := range sets {
		summaries[i] = api.Summarize(set)
	}

	out := cmd.OutOrStdout()
	if o.jsonOut {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(summaries)
	}
	if err := printSummaries(out, summaries); err != nil {
		return err
	}
	fmt.Fprintf(out, "\n%d measurements from %d files (%d skipped, %d duplicates, %d out of range)\n",
		len(sets), res.Files, res.Skipped, res.Duplicates, res.OutOfRange)
	return nil
}

func warnShortDarkRuns(log logrus.FieldLogger, runs [][]*catalog.MeasurementFile, minDuration time.Duration) {
	for _, run := range runs {
		if len(run) == 0 {
			continue
		}
		first, last := run[0], run[len(run)-1]
		if d := last.End().Sub(first.Start()); d < minDuration {
			log.WithField("folder", first.Folder()).Warnf(
				"Dark measurement starting %s lasts %s, less than %s",
				first.Start().Format(time.DateTime), d, minDuration)
		}
	}
}

func printSummaries(w io.Writer, summaries []api.MeasurementSummary) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTYPE\tSTART\tEND\tDATA\tDARK\tFOLDER")
	for _, s := range summaries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%s\n",
			s.ID, s.Type, formatDate(s.Start), formatDate(s.End), s.Data, s.Dark, s.Folder)
	}
	return tw.Flush()
}
