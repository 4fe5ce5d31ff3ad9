package catalog

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lidar-tools/lidarchive/internal/models"
	"github.com/lidar-tools/lidarchive/internal/testutil"
)

func newTestCatalog(now time.Time, files ...*MeasurementFile) *Catalog {
	c := New(Options{
		DarkIdentifiers:        []string{"Dark"},
		MeasurementIdentifiers: []string{"Magurele"},
		Now:                    func() time.Time { return now },
	})
	c.SetFiles(files)
	return c
}

func hourly() SplitParams {
	return SplitParams{
		MaxGap:    5 * time.Minute,
		MinLength: 10 * time.Minute,
		MaxLength: time.Hour,
		Alignment: models.AlignNone,
	}
}

// ============ ReadFolder ============

func TestCatalog_ReadFolder(t *testing.T) {
	root := t.TempDir()
	write := func(dir, name string, start time.Time) {
		testutil.WriteLicelFile(t, filepath.Join(root, dir), name, testutil.LicelFile{
			Site: "Magurele", Start: start, End: start.Add(time.Minute),
		})
	}
	write("2024/03/05", "b.000", hm(21, 10))
	write("2024/03/05", "a.000", hm(21, 0))
	write("2024/03/06", "c.000", day.AddDate(0, 0, 1))
	write("copy", "a.000", hm(21, 0))
	testutil.WriteTextFile(t, root, "README.txt", "notes\n")

	c := New(Options{})
	c.SetFolder(root)

	t.Run("whole tree", func(t *testing.T) {
		res, err := c.ReadFolder(context.Background(), nil, nil)
		require.NoError(t, err)
		assert.Equal(t, ScanResult{Files: 3, Skipped: 1, Duplicates: 1}, res)
		assert.Equal(t, []string{"a.000", "b.000", "c.000"}, names(c.Files()))
	})

	t.Run("date window is inclusive", func(t *testing.T) {
		start, end := hm(21, 10), hm(23, 59)
		res, err := c.ReadFolder(context.Background(), &start, &end)
		require.NoError(t, err)
		assert.Equal(t, 3, res.OutOfRange)
		assert.Equal(t, 0, res.Duplicates)
		assert.Equal(t, []string{"b.000"}, names(c.Files()))
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := c.ReadFolder(ctx, nil, nil)
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("missing folder", func(t *testing.T) {
		missing := New(Options{})
		missing.SetFolder(filepath.Join(root, "nope"))
		_, err := missing.ReadFolder(context.Background(), nil, nil)
		assert.Error(t, err)
	})
}

func TestCatalog_SetFolderResetsFiles(t *testing.T) {
	c := newTestCatalog(hm(23, 0), contiguous("Magurele", hm(0, 0), 3, 10*time.Minute)...)
	c.SetFolder("/data")
	assert.Empty(t, c.Files())
}

// ============ Continuous measurements ============

func TestComputeContinuousMeasurements(t *testing.T) {
	files := contiguous("Magurele", hm(1, 0), 6, 10*time.Minute)
	files = append(files, contiguous("Magurele", hm(4, 0), 6, 10*time.Minute)...)
	files = append(files, contiguous("Dark", hm(0, 50), 1, time.Minute)...)
	files = append(files, contiguous("Dark", hm(4, 30), 1, time.Minute)...)
	files = append(files, contiguous("Bucharest", hm(2, 0), 3, 10*time.Minute)...)

	c := newTestCatalog(hm(23, 0), files...)
	params := hourly()
	params.MinLength = 0

	sets := c.ComputeContinuousMeasurements(params)
	require.Len(t, sets, 2)

	assert.Equal(t, "20240305_0000", sets[0].ID())
	assert.Equal(t, "20240305_0001", sets[1].ID())
	assert.Len(t, sets[0].DataFiles(), 6)
	require.Len(t, sets[0].DarkFiles(), 1)
	assert.True(t, sets[0].DarkFiles()[0].Start().Equal(hm(0, 50)))
	require.Len(t, sets[1].DarkFiles(), 1)
	assert.True(t, sets[1].DarkFiles()[0].Start().Equal(hm(4, 30)))

	t.Run("idempotent", func(t *testing.T) {
		again := c.ComputeContinuousMeasurements(params)
		require.Len(t, again, len(sets))
		for i := range sets {
			assert.Equal(t, sets[i].ID(), again[i].ID())
			assert.Equal(t, names(sets[i].DataFiles()), names(again[i].DataFiles()))
			assert.Equal(t, names(sets[i].DarkFiles()), names(again[i].DarkFiles()))
		}
	})
}

func TestComputeContinuousMeasurements_NumberingPerDay(t *testing.T) {
	files := contiguous("Magurele", hm(1, 0), 2, 10*time.Minute)
	files = append(files, contiguous("Magurele", hm(5, 0), 2, 10*time.Minute)...)
	files = append(files, contiguous("Magurele", day.AddDate(0, 0, 1).Add(time.Hour), 2, 10*time.Minute)...)

	c := newTestCatalog(day.AddDate(0, 0, 3), files...)
	params := hourly()
	params.MinLength = 0

	sets := c.ComputeContinuousMeasurements(params)
	var ids []string
	for _, s := range sets {
		ids = append(ids, s.ID())
	}
	assert.Equal(t, []string{"20240305_0000", "20240305_0001", "20240306_0000"}, ids)
}

func TestComputeContinuousMeasurements_Recency(t *testing.T) {
	files := contiguous("Magurele", hm(1, 0), 3, 10*time.Minute)
	end := hm(1, 30)
	params := hourly()
	params.MinLength = 0

	t.Run("ending exactly max gap ago is included", func(t *testing.T) {
		c := newTestCatalog(end.Add(params.MaxGap), files...)
		assert.Len(t, c.ComputeContinuousMeasurements(params), 1)
	})

	t.Run("ending less than max gap ago is held back", func(t *testing.T) {
		c := newTestCatalog(end.Add(params.MaxGap-time.Second), files...)
		assert.Empty(t, c.ComputeContinuousMeasurements(params))
	})
}

func TestContinuousMeasurements_Memoized(t *testing.T) {
	c := newTestCatalog(hm(23, 0), contiguous("Magurele", hm(1, 0), 12, 10*time.Minute)...)
	params := hourly()

	first := c.ContinuousMeasurements(params)
	require.NotEmpty(t, first)
	second := c.ContinuousMeasurements(params)
	require.Len(t, second, len(first))
	assert.Same(t, first[0], second[0])

	params.MaxLength = 30 * time.Minute
	third := c.ContinuousMeasurements(params)
	assert.NotSame(t, first[0], third[0])
	assert.Greater(t, len(third), len(first))

	c.ResetCache()
	fourth := c.ContinuousMeasurements(params)
	assert.NotSame(t, third[0], fourth[0])
}

func TestCatalog_FileFilters(t *testing.T) {
	c := newTestCatalog(hm(23, 0),
		newTestFile("data.000", "Magurele", hm(1, 0), hm(1, 10)),
		newTestFile("dark.000", "Dark", hm(1, 10), hm(1, 11)),
		newTestFile("other.000", "Bucharest", hm(1, 20), hm(1, 30)),
	)
	assert.Equal(t, []string{"data.000"}, names(c.DataFiles()))
	assert.Equal(t, []string{"dark.000"}, names(c.DarkFiles()))
}

// ============ MeasurementWasSent ============

func TestMeasurementWasSent(t *testing.T) {
	files := []*MeasurementFile{newTestFile("dark.000", "Dark", hm(0, 50), hm(0, 51))}
	files = append(files, contiguous("Magurele", hm(1, 0), 3, 10*time.Minute)...)
	c := newTestCatalog(hm(23, 0), files...)

	sent, last := c.MeasurementWasSent(hm(1, 30), 10*time.Minute, time.Hour)
	assert.True(t, sent)
	assert.True(t, last.Equal(hm(1, 30)))

	sent, last = c.MeasurementWasSent(hm(1, 0), 10*time.Minute, time.Hour)
	assert.False(t, sent)
	assert.True(t, last.Equal(hm(1, 30)))

	sent, _ = c.MeasurementWasSent(hm(1, 0), 10*time.Minute, 20*time.Minute)
	assert.True(t, sent)

	empty := newTestCatalog(hm(23, 0))
	sent, _ = empty.MeasurementWasSent(hm(1, 0), 0, 0)
	assert.False(t, sent)
}

// ============ Tests ============

type recordingCopier struct {
	copies map[string][]string
}

func (r *recordingCopier) CopyInto(dir string, paths []string) error {
	if r.copies == nil {
		r.copies = make(map[string][]string)
	}
	r.copies[dir] = append(r.copies[dir], paths...)
	return nil
}

func TestCatalog_CopyTestFiles(t *testing.T) {
	telecover := LidarTest{Name: "telecover", Identifiers: []string{"TC_N", "TC_S"}}
	files := []*MeasurementFile{
		newTestFile("n1.000", "TC_N", hm(9, 0), hm(9, 1)),
		newTestFile("s1.000", "TC_S", hm(9, 1), hm(9, 2)),
		newTestFile("data.000", "Magurele", hm(10, 0), hm(10, 10)),
		newTestFile("n2.000", "TC_N", hm(12, 0), hm(12, 1)),
		newTestFile("n3.000", "TC_N", hm(12, 1), hm(12, 2)),
	}

	c := New(Options{Tests: []LidarTest{telecover}})
	c.SetFiles(files)

	t.Run("strict requires every identifier", func(t *testing.T) {
		runs := c.CompletedTests(true)
		require.Len(t, runs, 1)
		assert.Equal(t, []string{"n1.000", "s1.000"}, names(runs[0].Files))
	})

	t.Run("non strict accepts any file", func(t *testing.T) {
		runs := c.CompletedTests(false)
		require.Len(t, runs, 2)
		assert.Equal(t, []string{"n2.000", "n3.000"}, names(runs[1].Files))
	})

	t.Run("copies into dated folders", func(t *testing.T) {
		copier := &recordingCopier{}
		n, err := c.CopyTestFiles("/tests", true, copier)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		assert.Equal(t, []string{"/data/n1.000", "/data/s1.000"}, copier.copies[filepath.Join("/tests", "telecover", "2024-03-05-09-00")])
	})
}

func TestLidarTest_CheckTest(t *testing.T) {
	test := LidarTest{Name: "dark", Identifiers: []string{"A", "B"}}
	a := newTestFile("a.000", "A", hm(0, 0), hm(0, 1))
	a2 := newTestFile("a2.000", "A", hm(0, 1), hm(0, 2))

	assert.False(t, test.CheckTest(nil, true))
	assert.False(t, test.CheckTest(nil, false))
	assert.False(t, test.CheckTest([]*MeasurementFile{a, a2}, true))
	assert.True(t, test.CheckTest([]*MeasurementFile{a}, false))
}
