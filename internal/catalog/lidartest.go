package catalog

import (
	"fmt"
	"path/filepath"
)

// TestFolderLayout names the per-test subfolder after the first file start.
const TestFolderLayout = "2006-01-02-15-04"

// LidarTest is an instrument test procedure recognised by file tags.
type LidarTest struct {
	Name        string
	Identifiers []string
}

// MeasurementValid reports whether the file belongs to the test.
func (t LidarTest) MeasurementValid(f *MeasurementFile) bool {
	return f.HasIdentifierInList(t.Identifiers)
}

// CheckTest reports whether files form a complete test. Strict tests need a
// file for every identifier; otherwise any file is enough.
func (t LidarTest) CheckTest(files []*MeasurementFile, strict bool) bool {
	if len(files) == 0 {
		return false
	}
	if !strict {
		return true
	}
	if len(files) < len(t.Identifiers) {
		return false
	}
	for _, id := range t.Identifiers {
		found := false
		for _, f := range files {
			if f.HasIdentifierInList([]string{id}) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// TestRun is one complete occurrence of a test.
type TestRun struct {
	Test  string
	Files []*MeasurementFile
}

// Folder is where the run's files go below root.
func (r TestRun) Folder(root string) string {
	return filepath.Join(root, r.Test, r.Files[0].Start().Format(TestFolderLayout))
}

// CompletedTests groups consecutive test files per test and returns the
// groups that form a complete test.
func (c *Catalog) CompletedTests(strict bool) []TestRun {
	pending := make(map[string][]*MeasurementFile, len(c.tests))
	var runs []TestRun

	flush := func(test LidarTest) {
		files := pending[test.Name]
		pending[test.Name] = nil
		if test.CheckTest(files, strict) {
			runs = append(runs, TestRun{Test: test.Name, Files: files})
		}
	}

	for _, f := range c.Files() {
		for _, test := range c.tests {
			if test.MeasurementValid(f) {
				pending[test.Name] = append(pending[test.Name], f)
				continue
			}
			flush(test)
		}
	}
	for _, test := range c.tests {
		flush(test)
	}
	return runs
}

// TestCopier copies files into a directory.
type TestCopier interface {
	CopyInto(dir string, paths []string) error
}

// CopyTestFiles copies every complete test below root and returns the
// number of runs copied.
func (c *Catalog) CopyTestFiles(root string, strict bool, copier TestCopier) (int, error) {
	runs := c.CompletedTests(strict)
	for _, run := range runs {
		paths := make([]string, len(run.Files))
		for i, f := range run.Files {
			paths[i] = f.Path()
		}
		dir := run.Folder(root)
		if err := copier.CopyInto(dir, paths); err != nil {
			return 0, fmt.Errorf("copying test %s to %s: %w", run.Test, dir, err)
		}
		c.log.WithField("test", run.Test).WithField("files", len(paths)).Info("Copied test files")
	}
	return len(runs), nil
}
