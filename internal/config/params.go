package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/lidar-tools/lidarchive/internal/models"
)

// AnySystem marks a parameter file that applies to every system.
const AnySystem = -1

var ErrNoParameterFile = errors.New("no parameter file matches")

var dateLayouts = []string{"2006-01-02", time.RFC3339, "2006-01-02 15:04:05", "20060102"}

// ParameterEntry is one converter parameter file with its validity window.
type ParameterEntry struct {
	SystemID int
	Path     string
	Type     models.FileType
	From     *time.Time
	Until    *time.Time
}

// ValidFor reports whether the entry may be used for a measurement of
// system systemID and type typ taken on date. Both window ends are
// inclusive whole days.
func (e ParameterEntry) ValidFor(systemID int, typ models.FileType, date time.Time) bool {
	if e.SystemID != AnySystem && e.SystemID != systemID {
		return false
	}
	if e.Type != models.FileTypeUnknown && e.Type != typ {
		return false
	}
	if e.From != nil && date.Before(*e.From) {
		return false
	}
	if e.Until != nil && !date.Before(e.Until.AddDate(0, 0, 1)) {
		return false
	}
	return true
}

// ExtraParameters maps systems to converter parameter files.
type ExtraParameters struct {
	entries  []ParameterEntry
	problems []error
}

type parameterItem struct {
	File    string `yaml:"file"`
	Version *int   `yaml:"version"`
	From    string `yaml:"from"`
	Until   string `yaml:"until"`
}

func (p *ExtraParameters) UnmarshalYAML(value *yaml.Node) error {
	p.entries, p.problems = nil, nil

	switch value.Kind {
	case yaml.ScalarNode:
		if value.Value != "" {
			p.entries = append(p.entries, ParameterEntry{SystemID: AnySystem, Path: value.Value})
		}
		return nil
	case yaml.MappingNode:
	default:
		return fmt.Errorf("line %d: licel_netcdf_parameters must be a path or a mapping", value.Line)
	}

	for i := 0; i+1 < len(value.Content); i += 2 {
		keyNode, valNode := value.Content[i], value.Content[i+1]
		systemID, err := strconv.Atoi(keyNode.Value)
		if err != nil {
			p.problems = append(p.problems, fmt.Errorf("line %d: invalid system id %q", keyNode.Line, keyNode.Value))
			continue
		}

		switch valNode.Kind {
		case yaml.ScalarNode:
			p.entries = append(p.entries, ParameterEntry{SystemID: systemID, Path: valNode.Value})
		case yaml.SequenceNode:
			for _, itemNode := range valNode.Content {
				entry, err := decodeParameterItem(systemID, itemNode)
				if err != nil {
					p.problems = append(p.problems, err)
					continue
				}
				p.entries = append(p.entries, entry)
			}
		default:
			p.problems = append(p.problems, fmt.Errorf("line %d: parameters for system %d must be a path or a list", valNode.Line, systemID))
		}
	}
	return nil
}

func decodeParameterItem(systemID int, node *yaml.Node) (ParameterEntry, error) {
	var item parameterItem
	if err := node.Decode(&item); err != nil {
		return ParameterEntry{}, fmt.Errorf("line %d: system %d: %w", node.Line, systemID, err)
	}
	if item.File == "" {
		return ParameterEntry{}, fmt.Errorf("line %d: system %d: parameter entry has no file", node.Line, systemID)
	}

	entry := ParameterEntry{SystemID: systemID, Path: item.File}
	if item.Version != nil {
		typ, err := models.ParseFileTypeCode(*item.Version)
		if err != nil {
			return ParameterEntry{}, fmt.Errorf("line %d: system %d: %w", node.Line, systemID, err)
		}
		entry.Type = typ
	}

	var err error
	if entry.From, err = parseDate(item.From); err != nil {
		return ParameterEntry{}, fmt.Errorf("line %d: system %d: from: %w", node.Line, systemID, err)
	}
	if entry.Until, err = parseDate(item.Until); err != nil {
		return ParameterEntry{}, fmt.Errorf("line %d: system %d: until: %w", node.Line, systemID, err)
	}
	return entry, nil
}

func parseDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
			return &day, nil
		}
	}
	return nil, fmt.Errorf("%q is not a date", s)
}

func (p *ExtraParameters) resolvePaths(base string) {
	for i := range p.entries {
		p.entries[i].Path = computePath(base, p.entries[i].Path)
	}
}

func (p *ExtraParameters) dropMissingFiles() {
	kept := p.entries[:0]
	for _, e := range p.entries {
		info, err := os.Stat(e.Path)
		if err != nil || info.IsDir() {
			p.problems = append(p.problems, fmt.Errorf("parameter file %s for system %d does not exist", e.Path, e.SystemID))
			continue
		}
		kept = append(kept, e)
	}
	p.entries = kept
}

// Entries returns the usable parameter files.
func (p ExtraParameters) Entries() []ParameterEntry {
	return append([]ParameterEntry(nil), p.entries...)
}

// Problems lists the entries that were skipped while loading.
func (p ExtraParameters) Problems() []error {
	return append([]error(nil), p.problems...)
}

// Add appends an entry.
func (p *ExtraParameters) Add(e ParameterEntry) {
	p.entries = append(p.entries, e)
}

// ParameterFile picks the parameter file for a measurement. Among valid
// entries the one with the latest start date wins; an entry for exactly
// typ is preferred over a generic one with the same start.
func (p ExtraParameters) ParameterFile(systemID int, typ models.FileType, date time.Time) (string, error) {
	var valid []ParameterEntry
	for _, e := range p.entries {
		if e.ValidFor(systemID, typ, date) {
			valid = append(valid, e)
		}
	}
	if len(valid) == 0 {
		return "", fmt.Errorf("%w system %d, type %s, date %s", ErrNoParameterFile, systemID, typ, date.Format("2006-01-02"))
	}

	sort.SliceStable(valid, func(i, j int) bool {
		fi, fj := fromOrZero(valid[i]), fromOrZero(valid[j])
		if !fi.Equal(fj) {
			return fi.After(fj)
		}
		return valid[i].Type == typ && valid[j].Type != typ
	})
	return valid[0].Path, nil
}

func fromOrZero(e ParameterEntry) time.Time {
	if e.From == nil {
		return time.Time{}
	}
	return *e.From
}
