package catalog

import (
	"time"

	"github.com/lidar-tools/lidarchive/internal/models"
)

// ClosestDarkSegment returns the dark chunk nearest in time to the data
// chunk. Only chunks whose first file has the same channels as the first
// data file are eligible, and when typ is not unknown only chunks of that
// type. An overlapping chunk wins immediately; otherwise the smallest gap
// between the nearer edges wins and ties keep the earlier chunk in darks.
// It returns nil when nothing is eligible.
func ClosestDarkSegment(data []*MeasurementFile, darks [][]*MeasurementFile, typ models.FileType) []*MeasurementFile {
	if len(data) == 0 {
		return nil
	}

	dataStart := data[0].Start()
	dataEnd := data[len(data)-1].End()

	best := -1
	var bestGap time.Duration

	for i, dark := range darks {
		if len(dark) == 0 {
			continue
		}
		if typ != models.FileTypeUnknown && dark[0].Type() != typ {
			continue
		}
		if !dark[0].HasSameChannelsAs(data[0]) {
			continue
		}

		darkStart := dark[0].Start()
		darkEnd := dark[len(dark)-1].End()

		var gap time.Duration
		switch {
		case darkEnd.Before(dataStart):
			gap = dataStart.Sub(darkEnd)
		case darkStart.After(dataEnd):
			gap = darkStart.Sub(dataEnd)
		default:
			return cloneFiles(dark)
		}

		if best < 0 || gap < bestGap {
			best = i
			bestGap = gap
		}
	}

	if best < 0 {
		return nil
	}
	return cloneFiles(darks[best])
}
