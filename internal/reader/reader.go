// Package reader turns raw lidar files into header metadata.
package reader

import (
	"errors"

	"github.com/lidar-tools/lidarchive/internal/models"
)

// ErrUnrecognized is returned when a reader cannot understand a file.
var ErrUnrecognized = errors.New("unrecognized file format")

// RawFileReader reads the metadata of one raw file format.
type RawFileReader interface {
	// Name returns the unique name of the reader.
	Name() string
	// Type returns the file type this reader produces.
	Type() models.FileType
	// ReadInfo reads the header of the file at path.
	ReadInfo(path string) (*models.FileInfo, error)
	// HasIdentifier reports whether the file is tagged with identifier.
	HasIdentifier(info *models.FileInfo, identifier string) bool
	// HasIdentifierInList reports whether the file is tagged with any of identifiers.
	HasIdentifierInList(info *models.FileInfo, identifiers []string) bool
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
