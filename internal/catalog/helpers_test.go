package catalog

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/lidar-tools/lidarchive/internal/models"
	"github.com/lidar-tools/lidarchive/internal/reader"
	"github.com/lidar-tools/lidarchive/internal/testutil"
)

var day = time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)

func hm(h, m int) time.Time {
	return day.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute)
}

func newTestFile(name, site string, start, end time.Time) *MeasurementFile {
	return newTestFileIn("/data", name, site, start, end)
}

func newTestFileIn(dir, name, site string, start, end time.Time) *MeasurementFile {
	info := &models.FileInfo{
		Start:    start,
		End:      end,
		Location: site,
		Channels: testutil.DefaultChannels(1200),
	}
	return NewMeasurementFile(filepath.Join(dir, name), info, reader.NewLicelV1Reader())
}

// contiguous returns n back to back files of length step.
func contiguous(site string, start time.Time, n int, step time.Duration) []*MeasurementFile {
	files := make([]*MeasurementFile, 0, n)
	for i := 0; i < n; i++ {
		s := start.Add(time.Duration(i) * step)
		name := fmt.Sprintf("%s_%s.000", site, s.Format("20060102150405"))
		files = append(files, newTestFile(name, site, s, s.Add(step)))
	}
	return files
}

func names(files []*MeasurementFile) []string {
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.Filename()
	}
	return out
}

func flatten(chunks [][]*MeasurementFile) []*MeasurementFile {
	var out []*MeasurementFile
	for _, c := range chunks {
		out = append(out, c...)
	}
	return out
}
