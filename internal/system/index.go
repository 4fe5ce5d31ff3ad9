// Package system resolves the remote system id of a measurement from a
// folder of sample files named after their ids.
package system

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/lidar-tools/lidarchive/internal/catalog"
	"github.com/lidar-tools/lidarchive/internal/logging"
	"github.com/lidar-tools/lidarchive/internal/reader"
)

var (
	ErrNoMatchingSystem = errors.New("couldn't find a matching configuration")
	ErrAmbiguousSystem  = errors.New("more than one configuration matches")
)

// System is a known instrument configuration.
type System struct {
	ID     int
	Extra  string
	Sample *catalog.MeasurementFile
}

// Name is "<id>" or "<id>.<extra>".
func (s System) Name() string {
	if s.Extra != "" {
		return fmt.Sprintf("%d.%s", s.ID, s.Extra)
	}
	return strconv.Itoa(s.ID)
}

// Equivalent reports whether mf has the sample's channel layout.
func (s System) Equivalent(mf *catalog.MeasurementFile) bool {
	return s.Sample.HasSameChannelsAs(mf)
}

// ParseSampleName splits a sample file name "<id>[.<extra>]".
func ParseSampleName(name string) (int, string, error) {
	base, extra := name, ""
	if idx := strings.LastIndexByte(name, '.'); idx >= 0 {
		base, extra = name[:idx], name[idx+1:]
	}
	id, err := strconv.Atoi(base)
	if err != nil {
		return 0, "", fmt.Errorf("sample file %q is not named after a system id", name)
	}
	return id, extra, nil
}

// Index holds the known systems.
type Index struct {
	systems []System
	log     logrus.FieldLogger
}

func NewIndex(logger logrus.FieldLogger) *Index {
	return &Index{log: logging.OrDiscard(logger).WithField("component", "system")}
}

// LoadIndex reads every sample file in folder.
func LoadIndex(folder string, reg *reader.Registry, logger logrus.FieldLogger) (*Index, error) {
	idx := NewIndex(logger)
	if err := idx.ReadFolder(folder, reg); err != nil {
		return nil, err
	}
	return idx, nil
}

// ReadFolder adds the systems described by the files directly in folder.
// Invalid sample files are logged and skipped.
func (i *Index) ReadFolder(folder string, reg *reader.Registry) error {
	entries, err := os.ReadDir(folder)
	if err != nil {
		return fmt.Errorf("reading system folder: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(folder, entry.Name())

		id, extra, err := ParseSampleName(entry.Name())
		if err != nil {
			i.log.WithField("path", path).Warn("File is not a valid sample file")
			continue
		}
		sample, err := catalog.ReadMeasurementFile(path, reg)
		if err != nil {
			i.log.WithError(err).WithField("path", path).Warn("File is not a valid sample file")
			continue
		}
		i.Add(System{ID: id, Extra: extra, Sample: sample})
	}

	names := make([]string, len(i.systems))
	for n, s := range i.systems {
		names[n] = s.Name()
	}
	i.log.Debugf("Can use system ids %s", strings.Join(names, ", "))
	return nil
}

func (i *Index) Add(s System) {
	i.systems = append(i.systems, s)
}

func (i *Index) Systems() []System {
	return append([]System(nil), i.systems...)
}

// SystemID returns the id of the only system equivalent to mf. Several
// samples of the same id count as one match.
func (i *Index) SystemID(mf *catalog.MeasurementFile) (int, error) {
	seen := make(map[int]struct{})
	var ids []int
	for _, s := range i.systems {
		if !s.Equivalent(mf) {
			continue
		}
		if _, dup := seen[s.ID]; dup {
			continue
		}
		seen[s.ID] = struct{}{}
		ids = append(ids, s.ID)
	}

	switch len(ids) {
	case 0:
		return 0, ErrNoMatchingSystem
	case 1:
		return ids[0], nil
	default:
		sort.Ints(ids)
		return 0, fmt.Errorf("%w: %v", ErrAmbiguousSystem, ids)
	}
}

// SetSystemID resolves the id of a measurement set from its first data file.
func (i *Index) SetSystemID(set *catalog.MeasurementSet) (int, error) {
	data := set.DataFiles()
	if len(data) == 0 {
		return 0, fmt.Errorf("measurement %s has no data files: %w", set.ID(), ErrNoMatchingSystem)
	}
	return i.SystemID(data[0])
}
