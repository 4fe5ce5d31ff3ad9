package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/lidar-tools/lidarchive/internal/models"
)

// LicelFile describes a synthetic Licel file for tests.
type LicelFile struct {
	Site        string
	Start       time.Time
	End         time.Time
	V2          bool
	CustomField string
	Channels    []models.ChannelInfo
}

// Channel returns an active analog 532 nm channel.
func Channel(name string, shots int) models.ChannelInfo {
	return models.ChannelInfo{
		Name:       name,
		Resolution: 7.5,
		Wavelength: 532,
		LaserUsed:  1,
		ADCBits:    12,
		Analog:     true,
		Active:     true,
		Shots:      shots,
	}
}

// DefaultChannels is the channel layout used by most tests.
func DefaultChannels(shots int) []models.ChannelInfo {
	return []models.ChannelInfo{Channel("BT0", shots), Channel("BC0", shots)}
}

// Header renders the text header of the file.
func (f LicelFile) Header(name string) string {
	channels := f.Channels
	if channels == nil {
		channels = DefaultChannels(1200)
	}

	var b strings.Builder
	fmt.Fprintf(&b, " %s\r\n", name)

	location := fmt.Sprintf(" %s %s %s 0100 0015.0 0047.0 00.0 0000 000.0 000.0",
		f.Site, f.Start.Format("02/01/2006 15:04:05"), f.End.Format("02/01/2006 15:04:05"))
	if f.V2 {
		location += fmt.Sprintf(" \"%s\"", f.CustomField)
	}
	b.WriteString(location + "\r\n")

	if f.V2 {
		fmt.Fprintf(&b, " 0001200 0020 0000000 0020 %02d 0000000 0020\r\n", len(channels))
	} else {
		fmt.Fprintf(&b, " 0001200 0020 0000000 0020 %02d\r\n", len(channels))
	}

	for _, ch := range channels {
		active, photon := 0, 1
		if ch.Active {
			active = 1
		}
		if ch.Analog {
			photon = 0
		}
		fmt.Fprintf(&b, " %d %d %d 16380 1 0000 %.2f %05d.o 0 0 00 000 %d %06d 0.500 %s\r\n",
			active, photon, ch.LaserUsed, ch.Resolution, ch.Wavelength, ch.ADCBits, ch.Shots, ch.Name)
	}
	b.WriteString("\r\n")
	return b.String()
}

// WriteLicelFile writes the file into dir followed by a short binary payload.
func WriteLicelFile(t testing.TB, dir, name string, f LicelFile) string {
	t.Helper()

	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("Failed to create directory: %v", err)
	}
	path := filepath.Join(dir, name)
	content := append([]byte(f.Header(name)), 0x00, 0xff, 0x10, 0x80, 0x00, 0x00)
	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}
	return path
}

// WriteTextFile writes arbitrary content into dir.
func WriteTextFile(t testing.TB, dir, name, content string) string {
	t.Helper()

	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("Failed to create directory: %v", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}
	return path
}
