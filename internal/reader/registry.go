package reader

import (
	"errors"
	"fmt"

	"github.com/lidar-tools/lidarchive/internal/models"
)

// Registry holds the available readers in detection priority order.
type Registry struct {
	readers []RawFileReader
}

// NewRegistry returns the default registry. The three-laser reader is
// tried first because a two-laser reader never accepts its header.
func NewRegistry() *Registry {
	return &Registry{
		readers: []RawFileReader{
			NewLicelV2Reader(),
			NewLicelV1Reader(),
		},
	}
}

// NewRegistryWith builds a registry from an explicit reader list.
func NewRegistryWith(readers ...RawFileReader) *Registry {
	return &Registry{readers: append([]RawFileReader(nil), readers...)}
}

// Register adds a reader with the lowest priority.
func (r *Registry) Register(rd RawFileReader) {
	r.readers = append(r.readers, rd)
}

// Readers returns the readers in priority order.
func (r *Registry) Readers() []RawFileReader {
	return append([]RawFileReader(nil), r.readers...)
}

// Identify returns the first reader that accepts the file together with
// the header it read.
func (r *Registry) Identify(path string) (RawFileReader, *models.FileInfo, error) {
	var errs []error
	for _, rd := range r.readers {
		info, err := rd.ReadInfo(path)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", rd.Name(), err))
			continue
		}
		return rd, info, nil
	}
	return nil, nil, fmt.Errorf("no suitable reader found for file: %s: %w", path, errors.Join(errs...))
}

// ForType returns the reader producing the given file type.
func (r *Registry) ForType(t models.FileType) (RawFileReader, error) {
	for _, rd := range r.readers {
		if rd.Type() == t {
			return rd, nil
		}
	}
	return nil, fmt.Errorf("reader not found for type: %s", t)
}
