package models

import (
	"fmt"
	"time"
)

// FileType is the raw file format a reader recognised.
type FileType int

const (
	FileTypeUnknown FileType = 0
	FileTypeLicelV1 FileType = 1
	FileTypeLicelV2 FileType = 2
)

// FileTypes lists every file type in partition order.
var FileTypes = []FileType{FileTypeUnknown, FileTypeLicelV1, FileTypeLicelV2}

func (t FileType) String() string {
	switch t {
	case FileTypeLicelV1:
		return "licel_v1"
	case FileTypeLicelV2:
		return "licel_v2"
	default:
		return "unknown"
	}
}

// ParseFileTypeCode maps the numeric version code used in configuration files.
func ParseFileTypeCode(code int) (FileType, error) {
	switch code {
	case 0:
		return FileTypeUnknown, nil
	case 1:
		return FileTypeLicelV1, nil
	case 2:
		return FileTypeLicelV2, nil
	}
	return FileTypeUnknown, fmt.Errorf("format %d is not a valid file format type", code)
}

// FileInfo is the metadata read from a raw file header.
// Times are naive instrument-local timestamps stored as UTC.
type FileInfo struct {
	Start    time.Time         `json:"start" msgpack:"start"`
	End      time.Time         `json:"end" msgpack:"end"`
	Location string            `json:"location" msgpack:"location"`
	Channels []ChannelInfo     `json:"channels" msgpack:"channels"`
	Extra    map[string]string `json:"extra,omitempty" msgpack:"extra,omitempty"`
}

// Duration returns the acquisition length of the file.
func (fi *FileInfo) Duration() time.Duration {
	return fi.End.Sub(fi.Start)
}
