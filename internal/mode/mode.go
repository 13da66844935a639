package mode

import (
	"strings"

	"codeberg.org/mutker/boostctl/internal/device"
	"codeberg.org/mutker/boostctl/internal/errors"
)

// Mode is a named optimization preset.
type Mode int

const (
	BatterySaver Mode = iota
	Normal
	Pro
	Diablo
)

const (
	governorCPU = 0
	bigCluster  = 4
	coreCount   = 8

	batterySaverMaxFreq = 1200000
	normalMaxFreq       = 2200000
	proMaxFreq          = 2400000
	diabloMaxFreq       = 3000000
)

var names = map[Mode]string{
	BatterySaver: "Battery Saver",
	Normal:       "Normal",
	Pro:          "Pro",
	Diablo:       "Diablo",
}

// All returns every mode in display order.
func All() []Mode {
	return []Mode{BatterySaver, Normal, Pro, Diablo}
}

func (m Mode) String() string {
	if name, ok := names[m]; ok {
		return name
	}
	return "Unknown"
}

// Status is the upper-case label shown while the mode is active.
func (m Mode) Status() string {
	return strings.ToUpper(m.String())
}

// Parse accepts a mode name in any case, with or without separators:
// "Battery Saver", "battery-saver" and "batterysaver" are equivalent.
func Parse(name string) (Mode, error) {
	key := normalize(name)
	for _, m := range All() {
		if normalize(m.String()) == key {
			return m, nil
		}
	}

	return 0, errors.New().WithData(ErrUnknownMode, name)
}

func normalize(name string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '_':
			return -1
		}
		return r
	}, strings.ToLower(strings.TrimSpace(name)))
}

// Settings returns the ordered pseudo-file writes for m. Normal is the
// revert list.
func (m Mode) Settings() []device.Setting {
	switch m {
	case BatterySaver:
		return []device.Setting{
			device.SetGovernor(governorCPU, device.GovernorPowersave),
			device.SetMaxFreq(bigCluster, batterySaverMaxFreq),
		}
	case Pro:
		return []device.Setting{
			device.SetGovernor(governorCPU, device.GovernorPerformance),
			device.SetMaxFreq(bigCluster, proMaxFreq),
		}
	case Diablo:
		settings := []device.Setting{
			device.SetGovernor(governorCPU, device.GovernorPerformance),
			device.SetMaxFreq(bigCluster, diabloMaxFreq),
		}
		for cpu := 0; cpu < coreCount; cpu++ {
			settings = append(settings, device.SetOnline(cpu, true))
		}
		return append(settings,
			device.SetBusSplit(false),
			device.SetForceClockOn(true),
		)
	default:
		return []device.Setting{
			device.SetGovernor(governorCPU, device.GovernorOndemand),
			device.SetMaxFreq(bigCluster, normalMaxFreq),
			device.SetBusSplit(true),
			device.SetForceClockOn(false),
		}
	}
}

// Commands returns the command lines applying m, in order.
func (m Mode) Commands() []string {
	settings := m.Settings()
	commands := make([]string, len(settings))
	for i, s := range settings {
		commands[i] = s.Command()
	}

	return commands
}
