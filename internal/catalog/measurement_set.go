package catalog

import (
	"fmt"
	"time"

	"github.com/lidar-tools/lidarchive/internal/models"
)

// UnknownMeasurementID identifies a set without data files.
const UnknownMeasurementID = "UNKNOWN_MEASUREMENT"

// MeasurementSet is a chunk of data files, the dark files matched to it
// and its sequence number within the day.
type MeasurementSet struct {
	data   []*MeasurementFile
	dark   []*MeasurementFile
	number int
}

// NewMeasurementSet builds a set. Files sharing a start time are
// duplicates; the first one is kept.
func NewMeasurementSet(data, dark []*MeasurementFile, number int) *MeasurementSet {
	return &MeasurementSet{
		data:   uniqueByStart(data),
		dark:   uniqueByStart(dark),
		number: number,
	}
}

func uniqueByStart(files []*MeasurementFile) []*MeasurementFile {
	seen := make(map[time.Time]struct{}, len(files))
	out := make([]*MeasurementFile, 0, len(files))
	for _, f := range files {
		key := f.Start().UTC()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, f)
	}
	return out
}

func (s *MeasurementSet) DataFiles() []*MeasurementFile { return cloneFiles(s.data) }
func (s *MeasurementSet) DarkFiles() []*MeasurementFile { return cloneFiles(s.dark) }
func (s *MeasurementSet) Number() int                   { return s.number }

// NumberString is the four digit zero padded sequence number.
func (s *MeasurementSet) NumberString() string {
	return fmt.Sprintf("%04d", s.number)
}

// ID is YYYYMMDD_NNNN built from the first data file.
func (s *MeasurementSet) ID() string {
	if len(s.data) == 0 {
		return UnknownMeasurementID
	}
	return s.data[0].Start().Format("20060102") + "_" + s.NumberString()
}

// Type is the common type of all data files, or unknown when they differ.
func (s *MeasurementSet) Type() models.FileType {
	if len(s.data) == 0 {
		return models.FileTypeUnknown
	}
	t := s.data[0].Type()
	for _, f := range s.data[1:] {
		if f.Type() != t {
			return models.FileTypeUnknown
		}
	}
	return t
}

// Start returns the start of the first data file.
func (s *MeasurementSet) Start() (time.Time, bool) {
	if len(s.data) == 0 {
		return time.Time{}, false
	}
	return s.data[0].Start(), true
}

// End returns the end of the last data file.
func (s *MeasurementSet) End() (time.Time, bool) {
	if len(s.data) == 0 {
		return time.Time{}, false
	}
	return s.data[len(s.data)-1].End(), true
}

// Folder is the directory of the first data file.
func (s *MeasurementSet) Folder() string {
	if len(s.data) == 0 {
		return ""
	}
	return s.data[0].Folder()
}

// Record returns the persisted form of the set.
func (s *MeasurementSet) Record() models.MeasurementRecord {
	rec := models.MeasurementRecord{ID: s.ID(), Number: s.number}
	for _, f := range s.data {
		rec.Data = append(rec.Data, f.Record())
	}
	for _, f := range s.dark {
		rec.Dark = append(rec.Dark, f.Record())
	}
	return rec
}
