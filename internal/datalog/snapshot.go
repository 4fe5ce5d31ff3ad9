package datalog

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/sirupsen/logrus"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/lidar-tools/lidarchive/internal/models"
)

const (
	snapshotMagic = "LIDARCHIVE-DATALOG"
	// SchemaVersion is the snapshot layout written by this package.
	SchemaVersion = 1
)

var ErrCorruptSnapshot = errors.New("corrupt datalog snapshot")

// LoadState describes what the last Load found on disk.
type LoadState int

const (
	LoadStateNone LoadState = iota
	LoadStateAbsent
	LoadStateLoaded
	LoadStateCorrupt
)

func (s LoadState) String() string {
	switch s {
	case LoadStateAbsent:
		return "absent"
	case LoadStateLoaded:
		return "loaded"
	case LoadStateCorrupt:
		return "corrupt"
	default:
		return "none"
	}
}

// SnapshotHeader precedes the body in a snapshot file.
type SnapshotHeader struct {
	Magic         string    `msgpack:"magic" json:"magic"`
	SchemaVersion int       `msgpack:"schema_version" json:"schemaVersion"`
	WriterVersion string    `msgpack:"writer_version" json:"writerVersion"`
	Checksum      uint64    `msgpack:"checksum" json:"checksum"`
	SavedAt       time.Time `msgpack:"saved_at" json:"savedAt"`
}

type snapshotBody struct {
	Config models.RunConfig        `msgpack:"config"`
	Tasks  map[string]*models.Task `msgpack:"tasks"`
}

// Snapshot is a decoded snapshot file.
type Snapshot struct {
	Header SnapshotHeader   `json:"header"`
	Config models.RunConfig `json:"config"`
	Tasks  []models.Task    `json:"tasks"`
}

// Save writes the ledger to its snapshot path.
func (d *Datalog) Save() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.saveLocked()
}

func (d *Datalog) saveLocked() error {
	if d.path == "" {
		return ErrNoPath
	}
	data, err := encodeSnapshot(snapshotBody{Config: d.config, Tasks: d.tasks}, d.version, d.now())
	if err != nil {
		return fmt.Errorf("encode datalog: %w", err)
	}
	if err := writeFileAtomic(d.path, data, 0o644); err != nil {
		return fmt.Errorf("write datalog %s: %w", d.path, err)
	}
	return nil
}

// Load replaces the in-memory state with the snapshot on disk and reports
// whether a run configuration was recovered. A missing snapshot leaves the
// ledger empty. A corrupt one is moved aside and the ledger reset.
func (d *Datalog) Load() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.tasks = make(map[string]*models.Task)
	d.config = models.RunConfig{}

	if d.path == "" {
		d.loadState = LoadStateAbsent
		return false
	}

	data, err := os.ReadFile(d.path)
	if errors.Is(err, os.ErrNotExist) {
		d.loadState = LoadStateAbsent
		d.log.WithField("path", d.path).Debug("No datalog found, starting empty")
		return false
	}
	if err != nil {
		d.loadState = LoadStateCorrupt
		d.log.WithError(err).WithField("path", d.path).Warn("Could not read datalog, starting empty")
		return false
	}

	_, body, err := decodeSnapshot(data)
	if err != nil {
		d.loadState = LoadStateCorrupt
		aside := fmt.Sprintf("%s.corrupt-%d", d.path, d.now().Unix())
		entry := d.log.WithError(err).WithField("path", d.path)
		if mvErr := os.Rename(d.path, aside); mvErr != nil {
			entry.WithField("rename_error", mvErr).Warn("Datalog is corrupt and could not be moved aside, starting empty")
		} else {
			entry.WithField("moved_to", aside).Warn("Datalog is corrupt, starting empty")
		}
		return false
	}

	d.config = body.Config
	if body.Tasks != nil {
		d.tasks = body.Tasks
	}
	d.loadState = LoadStateLoaded
	d.log.WithFields(logrus.Fields{
		"path":  d.path,
		"tasks": len(d.tasks),
	}).Debug("Loaded datalog")
	return !d.config.IsZero()
}

// LastLoadState reports the outcome of the last Load.
func (d *Datalog) LastLoadState() LoadState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.loadState
}

func (d *Datalog) removeSnapshotLocked() error {
	if d.path == "" {
		return nil
	}
	if err := os.Remove(d.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove datalog: %w", err)
	}
	return nil
}

// ReadSnapshot decodes the snapshot at path without modifying it.
func ReadSnapshot(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	header, body, err := decodeSnapshot(data)
	if err != nil {
		return nil, err
	}
	return &Snapshot{
		Header: header,
		Config: body.Config,
		Tasks:  copyTasks(orderTasks(body.Tasks)),
	}, nil
}

func encodeSnapshot(body snapshotBody, writer string, now time.Time) ([]byte, error) {
	bodyBytes, err := msgpack.Marshal(&body)
	if err != nil {
		return nil, err
	}
	header := SnapshotHeader{
		Magic:         snapshotMagic,
		SchemaVersion: SchemaVersion,
		WriterVersion: writer,
		Checksum:      xxhash.Sum64(bodyBytes),
		SavedAt:       now,
	}

	var buf bytes.Buffer
	if err := msgpack.NewEncoder(&buf).Encode(&header); err != nil {
		return nil, err
	}
	buf.Write(bodyBytes)
	return buf.Bytes(), nil
}

func decodeSnapshot(data []byte) (SnapshotHeader, snapshotBody, error) {
	var header SnapshotHeader
	var body snapshotBody

	r := bytes.NewReader(data)
	if err := msgpack.NewDecoder(r).Decode(&header); err != nil {
		return header, body, fmt.Errorf("%w: header: %v", ErrCorruptSnapshot, err)
	}
	if header.Magic != snapshotMagic {
		return header, body, fmt.Errorf("%w: not a datalog file", ErrCorruptSnapshot)
	}
	if header.SchemaVersion < 1 || header.SchemaVersion > SchemaVersion {
		return header, body, fmt.Errorf("%w: unsupported schema version %d", ErrCorruptSnapshot, header.SchemaVersion)
	}

	rest := data[len(data)-r.Len():]
	if xxhash.Sum64(rest) != header.Checksum {
		return header, body, fmt.Errorf("%w: checksum mismatch", ErrCorruptSnapshot)
	}
	if err := msgpack.Unmarshal(rest, &body); err != nil {
		return header, body, fmt.Errorf("%w: body: %v", ErrCorruptSnapshot, err)
	}
	body.toUTC()
	return header, body, nil
}

// toUTC restores the UTC location msgpack drops from decoded times.
// Measurement ids are derived from file dates, so this must happen before
// any set is rebuilt.
func (b *snapshotBody) toUTC() {
	if b.Config.LastProcessedDate != nil {
		t := b.Config.LastProcessedDate.UTC()
		b.Config.LastProcessedDate = &t
	}
	b.Config.StartedAt = b.Config.StartedAt.UTC()

	for _, task := range b.Tasks {
		task.ProcessStart = task.ProcessStart.UTC()
		task.UpdatedAt = task.UpdatedAt.UTC()
		for _, files := range [][]models.FileRecord{task.Measurement.Data, task.Measurement.Dark} {
			for i := range files {
				files[i].Info.Start = files[i].Info.Start.UTC()
				files[i].Info.End = files[i].Info.End.UTC()
			}
		}
	}
}

// writeFileAtomic writes to a temp file in the same directory, syncs it,
// renames it over path and syncs the directory.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := io.Copy(tmp, bytes.NewReader(data)); err != nil {
		tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return err
	}
	return fsyncDir(dir)
}

func fsyncDir(dir string) error {
	f, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := f.Sync(); err != nil {
		// Some filesystems do not support syncing directories.
		if errors.Is(err, os.ErrInvalid) {
			return nil
		}
		return err
	}
	return nil
}
