package models

import "strings"

// AlignmentType controls how continuous runs are anchored to clock marks.
type AlignmentType int

const (
	AlignNone            AlignmentType = -1
	AlignSharpHour       AlignmentType = 0
	AlignSharpHourStrict AlignmentType = 1
	AlignHalfHour        AlignmentType = 2
	AlignHalfHourStrict  AlignmentType = 3
)

// ParseAlignmentCode converts the configuration code; unknown codes mean AlignNone.
func ParseAlignmentCode(code int) AlignmentType {
	switch AlignmentType(code) {
	case AlignSharpHour, AlignSharpHourStrict, AlignHalfHour, AlignHalfHourStrict:
		return AlignmentType(code)
	}
	return AlignNone
}

// ParseAlignmentName accepts names such as "sharp_hour" or "HALF_HOUR_STRICT".
func ParseAlignmentName(name string) (AlignmentType, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "none":
		return AlignNone, true
	case "sharp_hour":
		return AlignSharpHour, true
	case "sharp_hour_strict":
		return AlignSharpHourStrict, true
	case "half_hour":
		return AlignHalfHour, true
	case "half_hour_strict":
		return AlignHalfHourStrict, true
	}
	return AlignNone, false
}

// Minute is the minute of the hour chunks are aligned to.
func (a AlignmentType) Minute() int {
	if a == AlignHalfHour || a == AlignHalfHourStrict {
		return 30
	}
	return 0
}

// Strict alignments never glue leading or trailing remainders.
func (a AlignmentType) Strict() bool {
	return a == AlignSharpHourStrict || a == AlignHalfHourStrict
}

func (a AlignmentType) String() string {
	switch a {
	case AlignSharpHour:
		return "sharp_hour"
	case AlignSharpHourStrict:
		return "sharp_hour_strict"
	case AlignHalfHour:
		return "half_hour"
	case AlignHalfHourStrict:
		return "half_hour_strict"
	default:
		return "none"
	}
}
