package models

import (
	"fmt"
	"math"
)

// ChannelInfo describes one acquisition channel of a raw lidar file.
type ChannelInfo struct {
	Name       string  `json:"name" msgpack:"name"`
	Resolution float64 `json:"resolution" msgpack:"resolution"` // bin width, metres
	Wavelength int     `json:"wavelength" msgpack:"wavelength"` // nm
	LaserUsed  int     `json:"laserUsed" msgpack:"laser_used"`
	ADCBits    int     `json:"adcBits" msgpack:"adc_bits"`
	Analog     bool    `json:"analog" msgpack:"analog"`
	Active     bool    `json:"active" msgpack:"active"`
	Shots      int     `json:"shots" msgpack:"shots"`
}

// Equal reports whether two channels describe the same instrument channel.
// Shot count and wavelength are not compared.
func (c ChannelInfo) Equal(other ChannelInfo) bool {
	return c.Name == other.Name &&
		c.Resolution == other.Resolution &&
		c.LaserUsed == other.LaserUsed &&
		c.ADCBits == other.ADCBits &&
		c.Analog == other.Analog &&
		c.Active == other.Active
}

// Description returns a short human readable summary of the channel.
func (c ChannelInfo) Description() string {
	mode := "photon"
	if c.Analog {
		mode = "analog"
	}
	return fmt.Sprintf("%s (%dnm, %s, %.2fm, laser %d, %d bit)", c.Name, c.Wavelength, mode, c.Resolution, c.LaserUsed, c.ADCBits)
}

// SameChannels reports whether two channel lists are a perfect multiset match
// under ChannelInfo.Equal. Order is irrelevant.
func SameChannels(a, b []ChannelInfo) bool {
	if len(a) != len(b) {
		return false
	}

	remaining := make([]ChannelInfo, len(b))
	copy(remaining, b)

	for _, ch := range a {
		found := -1
		for i, other := range remaining {
			if ch.Equal(other) {
				found = i
				break
			}
		}
		if found < 0 {
			return false
		}
		remaining = append(remaining[:found], remaining[found+1:]...)
	}

	return len(remaining) == 0
}

// SimilarShotCount reports whether every channel of a has an equal channel in
// b whose shot count differs by at most maxRelativeDiffPercent, relative to b.
// A zero shot count in b counts as an infinite difference.
func SimilarShotCount(a, b []ChannelInfo, maxRelativeDiffPercent float64) bool {
	for _, ch := range a {
		similar := false
		for _, other := range b {
			if !ch.Equal(other) {
				continue
			}
			diff := math.Inf(1)
			if other.Shots != 0 {
				diff = math.Abs(float64(ch.Shots-other.Shots)/float64(other.Shots)) * 100.0
			}
			similar = diff <= maxRelativeDiffPercent
			break
		}
		if !similar {
			return false
		}
	}
	return true
}
