package device

import (
	"fmt"
	"strconv"
)

const (
	cpuRoot     = "/sys/devices/system/cpu"
	thermalRoot = "/sys/class/thermal"
	kgslRoot    = "/sys/class/kgsl/kgsl-3d0"

	BusSplitPath     = kgslRoot + "/bus_split"
	ForceClockOnPath = kgslRoot + "/force_clk_on"
)

// Governor is a cpufreq scaling governor name.
type Governor string

const (
	GovernorPowersave   Governor = "powersave"
	GovernorOndemand    Governor = "ondemand"
	GovernorPerformance Governor = "performance"
)

func CurFreqPath(cpu int) string {
	return fmt.Sprintf("%s/cpu%d/cpufreq/scaling_cur_freq", cpuRoot, cpu)
}

func GovernorPath(cpu int) string {
	return fmt.Sprintf("%s/cpu%d/cpufreq/scaling_governor", cpuRoot, cpu)
}

func MaxFreqPath(cpu int) string {
	return fmt.Sprintf("%s/cpu%d/cpufreq/scaling_max_freq", cpuRoot, cpu)
}

func OnlinePath(cpu int) string {
	return fmt.Sprintf("%s/cpu%d/online", cpuRoot, cpu)
}

func ThermalTempPath(zone int) string {
	return fmt.Sprintf("%s/thermal_zone%d/temp", thermalRoot, zone)
}

// ReadCommand returns the command line that prints a pseudo-file.
func ReadCommand(path string) string {
	return "cat " + path
}

// Setting is a single value written to a pseudo-file.
type Setting struct {
	Path  string
	Value string
}

// Command returns the command line that applies the setting.
func (s Setting) Command() string {
	return "echo " + s.Value + " > " + s.Path
}

func (s Setting) String() string {
	return s.Path + "=" + s.Value
}

func SetGovernor(cpu int, governor Governor) Setting {
	return Setting{Path: GovernorPath(cpu), Value: string(governor)}
}

// SetMaxFreq caps a core's frequency, in kHz.
func SetMaxFreq(cpu int, khz int) Setting {
	return Setting{Path: MaxFreqPath(cpu), Value: strconv.Itoa(khz)}
}

func SetOnline(cpu int, online bool) Setting {
	return Setting{Path: OnlinePath(cpu), Value: flag(online)}
}

func SetBusSplit(enabled bool) Setting {
	return Setting{Path: BusSplitPath, Value: flag(enabled)}
}

func SetForceClockOn(enabled bool) Setting {
	return Setting{Path: ForceClockOnPath, Value: flag(enabled)}
}

func flag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
