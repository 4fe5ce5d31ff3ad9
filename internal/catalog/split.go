package catalog

import (
	"time"

	"github.com/lidar-tools/lidarchive/internal/models"
)

// SplitParams are the segmentation thresholds.
type SplitParams struct {
	MaxGap    time.Duration
	MinLength time.Duration
	MaxLength time.Duration
	Alignment models.AlignmentType
}

// SplitOptions select which changes between consecutive files end a run.
type SplitOptions struct {
	SameLocation bool
	SameType     bool
	SameSystem   bool
	SameFolder   bool
}

// DefaultSplitOptions enables every trigger.
func DefaultSplitOptions() SplitOptions {
	return SplitOptions{SameLocation: true, SameType: true, SameSystem: true, SameFolder: true}
}

// SplitStart is the end of the run a length split is anchored to.
type SplitStart int

const (
	SplitStartBegin SplitStart = -1
	SplitStartEnd   SplitStart = 1
)

// SplitMeasurements partitions time sorted files into continuous runs and
// cuts each run into chunks with SplitByTime.
func SplitMeasurements(files []*MeasurementFile, p SplitParams, opts SplitOptions) [][]*MeasurementFile {
	if len(files) == 0 {
		return nil
	}

	partitions := [][]*MeasurementFile{cloneFiles(files)}
	if opts.SameFolder {
		partitions = partitionByFolder(files)
	}
	if opts.SameType {
		var typed [][]*MeasurementFile
		for _, part := range partitions {
			typed = append(typed, partitionByType(part)...)
		}
		partitions = typed
	}

	var runs [][]*MeasurementFile
	for _, part := range partitions {
		runs = append(runs, splitRuns(part, p.MaxGap, opts)...)
	}

	var chunks [][]*MeasurementFile
	for _, run := range runs {
		chunks = append(chunks, SplitByTime(run, p.MinLength, p.MaxLength, p.Alignment)...)
	}
	return chunks
}

func partitionByFolder(files []*MeasurementFile) [][]*MeasurementFile {
	var order []string
	byFolder := make(map[string][]*MeasurementFile)
	for _, f := range files {
		folder := f.Folder()
		if _, ok := byFolder[folder]; !ok {
			order = append(order, folder)
		}
		byFolder[folder] = append(byFolder[folder], f)
	}

	out := make([][]*MeasurementFile, 0, len(order))
	for _, folder := range order {
		out = append(out, byFolder[folder])
	}
	return out
}

func partitionByType(files []*MeasurementFile) [][]*MeasurementFile {
	var out [][]*MeasurementFile
	for _, t := range models.FileTypes {
		var part []*MeasurementFile
		for _, f := range files {
			if f.Type() == t {
				part = append(part, f)
			}
		}
		if len(part) > 0 {
			out = append(out, part)
		}
	}
	return out
}

// splitRuns starts a new run on a gap larger than maxGap, a channel layout
// different from the run's first file or a site change.
func splitRuns(files []*MeasurementFile, maxGap time.Duration, opts SplitOptions) [][]*MeasurementFile {
	if len(files) == 0 {
		return nil
	}

	var runs [][]*MeasurementFile
	run := []*MeasurementFile{files[0]}
	first := files[0]

	for i := 1; i < len(files); i++ {
		prev, cur := files[i-1], files[i]

		gap := cur.Start().Sub(prev.End()) > maxGap
		system := opts.SameSystem && !cur.HasSameChannelsAs(first)
		location := opts.SameLocation && prev.Site() != cur.Site()

		if gap || system || location {
			runs = append(runs, run)
			run = nil
			first = cur
		}
		run = append(run, cur)
	}
	return append(runs, run)
}

// SplitByTime cuts a run into chunks that start at the alignment minute.
// Chunks between alignment points are further split by length. Data before
// the first and after the last alignment point is glued to the neighbouring
// chunk when too short, unless the alignment is strict, in which case it is
// dropped.
func SplitByTime(files []*MeasurementFile, minLength, maxLength time.Duration, alignment models.AlignmentType) [][]*MeasurementFile {
	if len(files) == 0 {
		return nil
	}
	if alignment == models.AlignNone {
		return SplitByLength(files, minLength, maxLength, SplitStartBegin, true)
	}

	marker := alignment.Minute()
	strict := alignment.Strict()

	// The latch only allows a split once the difference to the marker was
	// positive again, so one crossing yields one split point.
	lastDiff := 60
	var splitIdx []int
	for i, f := range files {
		diff := marker - f.Start().Minute()
		if diff <= 0 && lastDiff > 0 {
			lastDiff = -99
			splitIdx = append(splitIdx, i)
		} else {
			lastDiff = diff
		}
	}

	if len(splitIdx) == 0 {
		return SplitByLength(files, minLength, maxLength, SplitStartBegin, true)
	}

	var segments [][]*MeasurementFile
	for i := 0; i < len(splitIdx)-1; i++ {
		segments = append(segments, SplitByLength(files[splitIdx[i]:splitIdx[i+1]], minLength, maxLength, SplitStartBegin, true)...)
	}

	if splitIdx[0] != 0 {
		leading := cloneFiles(files[:splitIdx[0]])
		if span(leading) < minLength {
			if !strict {
				if len(segments) > 0 {
					segments[0] = concatFiles(leading, segments[0])
				} else {
					segments = SplitByLength(leading, minLength, maxLength, SplitStartBegin, true)
				}
			}
		} else {
			head := SplitByLength(leading, minLength, maxLength, SplitStartBegin, !strict)
			segments = append(head, segments...)
		}
	}

	trailing := cloneFiles(files[splitIdx[len(splitIdx)-1]:])
	if span(trailing) < minLength {
		if !strict {
			if len(segments) > 0 {
				last := len(segments) - 1
				segments[last] = concatFiles(segments[last], trailing)
			} else {
				segments = SplitByLength(trailing, minLength, maxLength, SplitStartBegin, true)
			}
		}
	} else {
		// Scanned forward so the trailing chunks keep starting at the marker.
		segments = append(segments, SplitByLength(trailing, minLength, maxLength, SplitStartBegin, !strict)...)
	}

	return segments
}

// SplitByLength cuts files into chunks no longer than maxLength. A chunk
// shorter than minLength is never emitted; with allowGlue the remaining
// files are appended to the open chunk once what is left would be too short
// on its own. SplitStartEnd anchors the chunks to the last file instead of
// the first; the result is in time order either way.
func SplitByLength(files []*MeasurementFile, minLength, maxLength time.Duration, start SplitStart, allowGlue bool) [][]*MeasurementFile {
	if len(files) == 0 {
		return nil
	}
	if start == SplitStartEnd {
		return splitByLengthFromEnd(files, minLength, maxLength, allowGlue)
	}

	n := len(files)
	lastEnd := files[n-1].End()
	segLo := 0

	var segments [][]*MeasurementFile
	for i := 1; i < n; i++ {
		segStart := files[segLo].Start()
		if allowGlue && lastEnd.Sub(files[i].Start()) < minLength && lastEnd.Sub(segStart) > minLength {
			segments = append(segments, cloneFiles(files[segLo:]))
			segLo = n
			break
		}
		if files[i].End().Sub(segStart) > maxLength {
			segments = append(segments, cloneFiles(files[segLo:i]))
			segLo = i
		}
	}

	if segLo < n && span(files[segLo:]) > minLength {
		segments = append(segments, cloneFiles(files[segLo:]))
	}
	return segments
}

func splitByLengthFromEnd(files []*MeasurementFile, minLength, maxLength time.Duration, allowGlue bool) [][]*MeasurementFile {
	firstStart := files[0].Start()
	segHi := len(files) - 1

	var reversed [][]*MeasurementFile
	for i := len(files) - 2; i >= 0; i-- {
		segEnd := files[segHi].End()
		if allowGlue && files[i].End().Sub(firstStart) < minLength && segEnd.Sub(firstStart) > minLength {
			reversed = append(reversed, cloneFiles(files[:segHi+1]))
			segHi = -1
			break
		}
		if segEnd.Sub(files[i].Start()) > maxLength {
			reversed = append(reversed, cloneFiles(files[i+1:segHi+1]))
			segHi = i
		}
	}

	if segHi >= 0 && span(files[:segHi+1]) > minLength {
		reversed = append(reversed, cloneFiles(files[:segHi+1]))
	}

	segments := make([][]*MeasurementFile, 0, len(reversed))
	for i := len(reversed) - 1; i >= 0; i-- {
		segments = append(segments, reversed[i])
	}
	return segments
}
