package catalog

import (
	"github.com/lidar-tools/lidarchive/internal/models"
	"github.com/lidar-tools/lidarchive/internal/reader"
)

// RestoreMeasurementFile rebuilds a file from its record without touching
// the disk. Records of unknown type get no reader.
func RestoreMeasurementFile(rec models.FileRecord, reg *reader.Registry) *MeasurementFile {
	info := rec.Info
	var rd reader.RawFileReader
	if reg != nil {
		rd, _ = reg.ForType(rec.Type)
	}
	mf := NewMeasurementFile(rec.Path, &info, rd)
	mf.fileType = rec.Type
	return mf
}

// RestoreMeasurementSet rebuilds a set from its record.
func RestoreMeasurementSet(rec models.MeasurementRecord, reg *reader.Registry) *MeasurementSet {
	data := make([]*MeasurementFile, 0, len(rec.Data))
	for _, fr := range rec.Data {
		data = append(data, RestoreMeasurementFile(fr, reg))
	}
	dark := make([]*MeasurementFile, 0, len(rec.Dark))
	for _, fr := range rec.Dark {
		dark = append(dark, RestoreMeasurementFile(fr, reg))
	}
	return NewMeasurementSet(data, dark, rec.Number)
}
