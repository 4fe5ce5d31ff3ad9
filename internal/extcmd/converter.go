package extcmd

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/lidar-tools/lidarchive/internal/catalog"
	"github.com/lidar-tools/lidarchive/internal/logging"
	"github.com/lidar-tools/lidarchive/internal/processing"
)

// MaxShotDifferencePercent is the shot count difference above which the
// last data or dark file of a set is considered truncated.
const MaxShotDifferencePercent = 0.05

// Converter runs
//
//	<command> [args] convert --system-id N --output-dir D [--parameters P]
//	    --number NNNN --data f ... [--dark f ...]
//
// and reads {"output_path": ..., "measurement_id": ...} from stdout.
type Converter struct {
	command string
	args    []string
	runner  Runner
	log     logrus.FieldLogger
}

// NewConverter creates a Converter. A nil runner uses ExecRunner.
func NewConverter(command string, args []string, runner Runner, logger logrus.FieldLogger) *Converter {
	if runner == nil {
		runner = ExecRunner{}
	}
	return &Converter{
		command: command,
		args:    append([]string(nil), args...),
		runner:  runner,
		log:     logging.OrDiscard(logger).WithField("component", "converter"),
	}
}

func (c *Converter) Convert(ctx context.Context, req processing.ConversionRequest) (processing.ConversionResult, error) {
	var res processing.ConversionResult

	log := c.log.WithField("task", req.Set.ID())

	data, trimmed := catalog.TrimTruncatedTail(req.Set.DataFiles(), MaxShotDifferencePercent)
	if len(data) == 0 {
		return res, fmt.Errorf("measurement %s has no data files", req.Set.ID())
	}
	if trimmed {
		log.Warn("Last data file has a different shot count, leaving it out")
	}
	dark, trimmed := catalog.TrimTruncatedTail(req.Set.DarkFiles(), MaxShotDifferencePercent)
	if trimmed {
		log.Warn("Last dark file has a different shot count, leaving it out")
	}

	args := append(append([]string(nil), c.args...), "convert",
		"--system-id", strconv.Itoa(req.SystemID),
		"--output-dir", req.OutputDir,
		"--number", req.Set.NumberString(),
	)
	if req.ParametersFile != "" {
		args = append(args, "--parameters", req.ParametersFile)
	}
	for _, f := range data {
		args = append(args, "--data", f.Path())
	}
	for _, f := range dark {
		args = append(args, "--dark", f.Path())
	}

	cmd := Command{Name: c.command, Args: args}
	log.Debugf("Running %s", cmd)

	out, err := c.runner.Run(ctx, cmd)
	if err != nil {
		return res, fmt.Errorf("conversion failed: %w", err)
	}
	ok, err := decodeJSON(out, &res)
	if err != nil {
		return res, err
	}
	if !ok || res.OutputPath == "" || res.RemoteID == "" {
		return processing.ConversionResult{}, errors.New("converter did not report an output file")
	}
	return res, nil
}

var _ processing.Converter = (*Converter)(nil)
