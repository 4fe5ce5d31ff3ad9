package catalog

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/lidar-tools/lidarchive/internal/models"
	"github.com/lidar-tools/lidarchive/internal/reader"
)

// MeasurementFile is one raw file recognised by a reader.
type MeasurementFile struct {
	path     string
	info     *models.FileInfo
	fileType models.FileType
	reader   reader.RawFileReader
}

// ReadMeasurementFile identifies the file at path with the registry.
func ReadMeasurementFile(path string, reg *reader.Registry) (*MeasurementFile, error) {
	rd, info, err := reg.Identify(path)
	if err != nil {
		return nil, err
	}
	return &MeasurementFile{
		path:     path,
		info:     info,
		fileType: rd.Type(),
		reader:   rd,
	}, nil
}

// NewMeasurementFile wraps metadata that was already read. rd may be nil
// for files of unknown type.
func NewMeasurementFile(path string, info *models.FileInfo, rd reader.RawFileReader) *MeasurementFile {
	if info == nil {
		info = &models.FileInfo{}
	}
	mf := &MeasurementFile{path: path, info: info, reader: rd}
	if rd != nil {
		mf.fileType = rd.Type()
	}
	return mf
}

func (m *MeasurementFile) Path() string           { return m.path }
func (m *MeasurementFile) Filename() string       { return filepath.Base(m.path) }
func (m *MeasurementFile) Info() *models.FileInfo { return m.info }
func (m *MeasurementFile) Start() time.Time       { return m.info.Start }
func (m *MeasurementFile) End() time.Time         { return m.info.End }
func (m *MeasurementFile) Site() string           { return m.info.Location }
func (m *MeasurementFile) Type() models.FileType  { return m.fileType }

// Reader is the reader that recognised the file, nil for unknown files.
func (m *MeasurementFile) Reader() reader.RawFileReader { return m.reader }

// Folder is the absolute directory holding the file.
func (m *MeasurementFile) Folder() string {
	abs, err := filepath.Abs(m.path)
	if err != nil {
		return filepath.Dir(m.path)
	}
	return filepath.Dir(abs)
}

// IsDark reports whether the file carries one of the dark identifiers.
func (m *MeasurementFile) IsDark(darkIdentifiers []string) bool {
	return m.HasIdentifierInList(darkIdentifiers)
}

// HasIdentifierInList asks the file's reader whether any tag matches.
func (m *MeasurementFile) HasIdentifierInList(identifiers []string) bool {
	if m.reader == nil {
		return false
	}
	return m.reader.HasIdentifierInList(m.info, identifiers)
}

// HasSameChannelsAs reports whether both files come from the same
// instrument configuration.
func (m *MeasurementFile) HasSameChannelsAs(other *MeasurementFile) bool {
	return models.SameChannels(m.info.Channels, other.info.Channels)
}

// ShotCountSimilarTo reports whether every channel's shot count is within
// maxRelativeDiffPercent of the matching channel in other.
func (m *MeasurementFile) ShotCountSimilarTo(other *MeasurementFile, maxRelativeDiffPercent float64) bool {
	return models.SimilarShotCount(m.info.Channels, other.info.Channels, maxRelativeDiffPercent)
}

// Record returns the persisted form of the file.
func (m *MeasurementFile) Record() models.FileRecord {
	return models.FileRecord{Path: m.path, Type: m.fileType, Info: *m.info}
}

func (m *MeasurementFile) String() string {
	return fmt.Sprintf("%s [%s - %s]", m.Filename(), m.Start().Format(time.DateTime), m.End().Format(time.DateTime))
}

func span(files []*MeasurementFile) time.Duration {
	if len(files) == 0 {
		return 0
	}
	return files[len(files)-1].End().Sub(files[0].Start())
}

func cloneFiles(files []*MeasurementFile) []*MeasurementFile {
	if len(files) == 0 {
		return nil
	}
	out := make([]*MeasurementFile, len(files))
	copy(out, files)
	return out
}

func concatFiles(a, b []*MeasurementFile) []*MeasurementFile {
	out := make([]*MeasurementFile, 0, len(a)+len(b))
	out = append(out, a...)
	return append(out, b...)
}

// TrimTruncatedTail drops the last file when its shot count differs from
// the first one by more than maxRelativeDiffPercent. Acquisition stopped
// while writing leaves such a file behind.
func TrimTruncatedTail(files []*MeasurementFile, maxRelativeDiffPercent float64) ([]*MeasurementFile, bool) {
	if len(files) < 2 {
		return cloneFiles(files), false
	}
	last := files[len(files)-1]
	if last.ShotCountSimilarTo(files[0], maxRelativeDiffPercent) {
		return cloneFiles(files), false
	}
	return cloneFiles(files[:len(files)-1]), true
}
