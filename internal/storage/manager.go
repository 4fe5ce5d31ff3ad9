package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/lidar-tools/lidarchive/internal/catalog"
	"github.com/lidar-tools/lidarchive/internal/logging"
)

// DebugFolderLayout names debug folders after the first data file start.
const DebugFolderLayout = "2006-01-02-15-04"

// DarkSubdir holds the dark files of a debug copy.
const DarkSubdir = "D"

// Store defines the interface for local file copies.
type Store interface {
	CopyInto(dir string, paths []string) error
	DebugCopy(set *catalog.MeasurementSet, outputPath string) (string, error)
}

// LocalStore implements Store using the local filesystem.
type LocalStore struct {
	mu       sync.Mutex
	debugDir string
	log      logrus.FieldLogger
}

// NewLocalStore creates a new LocalStore. An empty debugDir disables
// debug copies.
func NewLocalStore(debugDir string, logger logrus.FieldLogger) (*LocalStore, error) {
	if debugDir != "" {
		if err := os.MkdirAll(debugDir, 0755); err != nil {
			return nil, fmt.Errorf("creating debug directory: %w", err)
		}
	}

	return &LocalStore{
		debugDir: debugDir,
		log:      logging.OrDiscard(logger).WithField("component", "storage"),
	}, nil
}

// DebugDir returns the root of the debug copies.
func (s *LocalStore) DebugDir() string {
	return s.debugDir
}

// DebugCopy copies the raw files of set and the converted output into a
// new folder under the debug directory. Dark files go to the D subfolder.
// An existing folder of the same name gets a _2, _3, ... suffix.
func (s *LocalStore) DebugCopy(set *catalog.MeasurementSet, outputPath string) (string, error) {
	if s.debugDir == "" {
		return "", errors.New("no debug directory configured")
	}
	start, ok := set.Start()
	if !ok {
		return "", fmt.Errorf("measurement %s has no data files", set.ID())
	}

	dir, err := s.createUniqueDir(filepath.Join(s.debugDir, start.Format(DebugFolderLayout)))
	if err != nil {
		return "", err
	}
	darkDir := filepath.Join(dir, DarkSubdir)
	if err := os.Mkdir(darkDir, 0755); err != nil {
		return "", fmt.Errorf("creating dark directory: %w", err)
	}

	var data, dark []string
	for _, f := range set.DataFiles() {
		data = append(data, f.Path())
	}
	for _, f := range set.DarkFiles() {
		dark = append(dark, f.Path())
	}
	if outputPath != "" {
		data = append(data, outputPath)
	}

	if err := s.copyAll(dir, data); err != nil {
		return dir, err
	}
	if err := s.copyAll(darkDir, dark); err != nil {
		return dir, err
	}

	s.log.WithFields(logrus.Fields{
		"measurement": set.ID(),
		"dir":         dir,
		"files":       len(data) + len(dark),
	}).Debug("Copied measurement for debugging")
	return dir, nil
}

// createUniqueDir creates base, or the first free base_N with N >= 2.
func (s *LocalStore) createUniqueDir(base string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := base
	for i := 2; ; i++ {
		err := os.Mkdir(dir, 0755)
		if err == nil {
			return dir, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return "", fmt.Errorf("creating directory: %w", err)
		}
		dir = fmt.Sprintf("%s_%d", base, i)
	}
}

// CopyInto copies paths into dir, creating it when needed. File modes and
// modification times are preserved.
func (s *LocalStore) CopyInto(dir string, paths []string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}
	return s.copyAll(dir, paths)
}

func (s *LocalStore) copyAll(dir string, paths []string) error {
	for _, p := range paths {
		if err := copyFile(p, filepath.Join(dir, filepath.Base(p))); err != nil {
			return err
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening file: %w", err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return fmt.Errorf("reading file info: %w", err)
	}

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return fmt.Errorf("creating file: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return fmt.Errorf("writing file: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("writing file: %w", err)
	}

	return os.Chtimes(dst, info.ModTime(), info.ModTime())
}
