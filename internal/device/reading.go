package device

import (
	"math"
	"strconv"
	"strings"
	"time"
)

const (
	kHzPerMHz             = 1000
	milliDegreesPerDegree = 1000

	Unavailable = "N/A"
)

// Reading is one poll of the frequency and temperature pseudo-files.
// A field whose OK flag is false is unavailable.
type Reading struct {
	Timestamp       time.Time
	CPUFrequencyMHz int
	CPUFrequencyOK  bool
	TemperatureC    float64
	TemperatureOK   bool
}

// FrequencyString renders the frequency in MHz, or N/A.
func (r Reading) FrequencyString() string {
	if !r.CPUFrequencyOK {
		return Unavailable
	}
	return strconv.Itoa(r.CPUFrequencyMHz)
}

// TemperatureString renders the temperature with one decimal, or N/A.
func (r Reading) TemperatureString() string {
	if !r.TemperatureOK {
		return Unavailable
	}
	return strconv.FormatFloat(r.TemperatureC, 'f', 1, 64)
}

// ParseFrequencyMHz converts scaling_cur_freq content (kHz) to MHz.
func ParseFrequencyMHz(raw string) (int, bool) {
	khz, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || khz < 0 {
		return 0, false
	}

	return int(khz / kHzPerMHz), true
}

// ParseTemperatureC converts thermal zone content (millidegrees) to °C.
func ParseTemperatureC(raw string) (float64, bool) {
	milli, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(milli) || math.IsInf(milli, 0) {
		return 0, false
	}

	return milli / milliDegreesPerDegree, true
}
