// Package catalog scans raw lidar files and assembles them into
// measurement sets.
package catalog

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lidar-tools/lidarchive/internal/logging"
	"github.com/lidar-tools/lidarchive/internal/reader"
)

// Options configures a Catalog.
type Options struct {
	Registry               *reader.Registry
	Logger                 logrus.FieldLogger
	DarkIdentifiers        []string
	MeasurementIdentifiers []string
	Tests                  []LidarTest
	// Now is the clock used to hold back runs that may still grow.
	Now func() time.Time
}

// ScanResult summarises one ReadFolder call.
type ScanResult struct {
	Files      int `json:"files"`
	Skipped    int `json:"skipped"`
	Duplicates int `json:"duplicates"`
	OutOfRange int `json:"outOfRange"`
}

// Catalog holds the measurement files of one folder tree.
type Catalog struct {
	reg        *reader.Registry
	log        logrus.FieldLogger
	dark       []string
	identities []string
	tests      []LidarTest
	now        func() time.Time

	mu       sync.Mutex
	folder   string
	files    []*MeasurementFile
	computed bool
	cacheKey SplitParams
	cached   []*MeasurementSet
}

func New(opts Options) *Catalog {
	reg := opts.Registry
	if reg == nil {
		reg = reader.NewRegistry()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Catalog{
		reg:        reg,
		log:        logging.OrDiscard(opts.Logger).WithField("component", "catalog"),
		dark:       append([]string(nil), opts.DarkIdentifiers...),
		identities: append([]string(nil), opts.MeasurementIdentifiers...),
		tests:      append([]LidarTest(nil), opts.Tests...),
		now:        now,
	}
}

// SetFolder changes the scanned root. A different folder drops the files
// and the cached sets.
func (c *Catalog) SetFolder(folder string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if abs, err := filepath.Abs(folder); err == nil {
		folder = abs
	}
	if folder == c.folder && folder != "" {
		return
	}
	c.folder = folder
	c.files = nil
	c.resetCacheLocked()
}

func (c *Catalog) Folder() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.folder
}

// ResetCache forgets the memoized measurement sets.
func (c *Catalog) ResetCache() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetCacheLocked()
}

func (c *Catalog) resetCacheLocked() {
	c.computed = false
	c.cacheKey = SplitParams{}
	c.cached = nil
}

// ReadFolder walks the folder tree and keeps every recognised file whose
// start lies in [start, end]; nil bounds are open. Files sharing a name are
// kept once and the result is sorted by start time.
func (c *Catalog) ReadFolder(ctx context.Context, start, end *time.Time) (ScanResult, error) {
	c.mu.Lock()
	folder := c.folder
	c.mu.Unlock()

	var result ScanResult
	if folder == "" {
		return result, fmt.Errorf("no folder set")
	}

	var found []*MeasurementFile
	err := filepath.WalkDir(folder, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == folder {
				return err
			}
			c.log.WithError(err).WithField("path", path).Warn("Skipping unreadable path")
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() {
			return nil
		}

		mf, err := ReadMeasurementFile(path, c.reg)
		if err != nil {
			c.log.WithError(err).WithField("path", path).Debug("Skipping unrecognized file")
			result.Skipped++
			return nil
		}
		if !inRange(mf.Start(), start, end) {
			result.OutOfRange++
			return nil
		}
		found = append(found, mf)
		return nil
	})
	if err != nil {
		return result, fmt.Errorf("scanning %s: %w", folder, err)
	}

	seen := make(map[string]struct{}, len(found))
	unique := found[:0]
	for _, mf := range found {
		name := mf.Filename()
		if _, dup := seen[name]; dup {
			result.Duplicates++
			continue
		}
		seen[name] = struct{}{}
		unique = append(unique, mf)
	}
	sort.SliceStable(unique, func(i, j int) bool {
		return unique[i].Start().Before(unique[j].Start())
	})
	result.Files = len(unique)

	c.mu.Lock()
	c.files = unique
	c.resetCacheLocked()
	c.mu.Unlock()

	c.log.WithFields(logrus.Fields{
		"folder":     folder,
		"files":      result.Files,
		"skipped":    result.Skipped,
		"duplicates": result.Duplicates,
	}).Info("Scanned measurement folder")

	return result, nil
}

func inRange(t time.Time, start, end *time.Time) bool {
	if start != nil && t.Before(*start) {
		return false
	}
	if end != nil && t.After(*end) {
		return false
	}
	return true
}

// SetFiles replaces the catalog contents with files already read.
func (c *Catalog) SetFiles(files []*MeasurementFile) {
	sorted := cloneFiles(files)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Start().Before(sorted[j].Start())
	})

	c.mu.Lock()
	defer c.mu.Unlock()
	c.files = sorted
	c.resetCacheLocked()
}

// Files returns every file in start order.
func (c *Catalog) Files() []*MeasurementFile {
	c.mu.Lock()
	defer c.mu.Unlock()
	return cloneFiles(c.files)
}

// DarkFiles returns the files tagged with a dark identifier.
func (c *Catalog) DarkFiles() []*MeasurementFile {
	var out []*MeasurementFile
	for _, f := range c.Files() {
		if f.IsDark(c.dark) {
			out = append(out, f)
		}
	}
	return out
}

// DataFiles returns the non dark files taken at a measurement site.
func (c *Catalog) DataFiles() []*MeasurementFile {
	var out []*MeasurementFile
	for _, f := range c.Files() {
		if !f.IsDark(c.dark) && contains(c.identities, f.Site()) {
			out = append(out, f)
		}
	}
	return out
}

// ContinuousDarkRuns segments the dark files.
func (c *Catalog) ContinuousDarkRuns(p SplitParams) [][]*MeasurementFile {
	return SplitMeasurements(c.DarkFiles(), p, DefaultSplitOptions())
}

// ContinuousDataRuns segments the data files.
func (c *Catalog) ContinuousDataRuns(p SplitParams) [][]*MeasurementFile {
	return SplitMeasurements(c.DataFiles(), p, DefaultSplitOptions())
}

// ContinuousMeasurements returns the measurement sets for p, recomputing
// only when p differs from the last computed parameters.
func (c *Catalog) ContinuousMeasurements(p SplitParams) []*MeasurementSet {
	c.mu.Lock()
	if c.computed && c.cacheKey == p {
		sets := append([]*MeasurementSet(nil), c.cached...)
		c.mu.Unlock()
		return sets
	}
	c.mu.Unlock()

	return c.ComputeContinuousMeasurements(p)
}

// ComputeContinuousMeasurements pairs every data chunk with its closest
// dark chunk and numbers the chunks per day. Chunks ending less than
// MaxGap before now are held back because more files may still arrive.
func (c *Catalog) ComputeContinuousMeasurements(p SplitParams) []*MeasurementSet {
	darkRuns := c.ContinuousDarkRuns(p)
	dataRuns := c.ContinuousDataRuns(p)

	if dropped := len(c.DataFiles()) - countFiles(dataRuns); dropped > 0 {
		c.log.WithField("files", dropped).Info("Data files left out of every measurement set")
	}
	if dropped := len(c.DarkFiles()) - countFiles(darkRuns); dropped > 0 {
		c.log.WithField("files", dropped).Debug("Dark files left out of every dark run")
	}

	sort.SliceStable(dataRuns, func(i, j int) bool {
		return dataRuns[i][0].Start().Before(dataRuns[j][0].Start())
	})

	now := c.now()
	var sets []*MeasurementSet
	number := 0
	var lastStart time.Time

	for i, run := range dataRuns {
		dark := ClosestDarkSegment(run, darkRuns, run[0].Type())

		runStart := run[0].Start()
		if i > 0 && sameDate(runStart, lastStart) {
			number++
		} else {
			number = 0
		}
		lastStart = runStart

		if now.Sub(run[len(run)-1].End()) < p.MaxGap {
			c.log.WithField("start", runStart).Info("Holding back recent measurement")
			continue
		}

		set := NewMeasurementSet(run, dark, number)
		if len(dark) == 0 {
			c.log.WithField("measurement", set.ID()).Warn("No dark measurement found")
		}
		sets = append(sets, set)
	}

	c.mu.Lock()
	c.computed = true
	c.cacheKey = p
	c.cached = sets
	c.mu.Unlock()

	return append([]*MeasurementSet(nil), sets...)
}

// MeasurementWasSent reports whether the newest data was already handed
// over: either it still ends at lastEnd or it spans at least
// maxLength+minLength. The returned time is the newest end.
func (c *Catalog) MeasurementWasSent(lastEnd time.Time, minLength, maxLength time.Duration) (bool, time.Time) {
	files := c.Files()
	if len(files) == 0 {
		return false, lastEnd
	}

	first := -1
	for i, f := range files {
		if !f.IsDark(c.dark) {
			first = i
			break
		}
	}
	if first < 0 {
		return false, lastEnd
	}

	currentEnd := files[len(files)-1].End()
	if currentEnd.Equal(lastEnd) {
		return true, lastEnd
	}
	if currentEnd.Sub(files[first].Start()) >= maxLength+minLength {
		return true, currentEnd
	}
	return false, currentEnd
}

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func countFiles(chunks [][]*MeasurementFile) int {
	n := 0
	for _, chunk := range chunks {
		n += len(chunk)
	}
	return n
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

// Identifiers returns the dark and measurement identifiers in use.
func (c *Catalog) Identifiers() (dark, measurement []string) {
	return append([]string(nil), c.dark...), append([]string(nil), c.identities...)
}
