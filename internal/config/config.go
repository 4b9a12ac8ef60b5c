package config

import (
	"fmt"

	"codeberg.org/mutker/smfd/internal/errors"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DefaultConfigFile   = "/etc/smfd/config.yaml"
	DefaultSDRCacheFile = "/var/lib/smfd/sdr-cache.db"
	DefaultPCHTempInput = "/sys/devices/virtual/thermal/thermal_zone0/hwmon0/temp1_input"
	DefaultCoretempDir  = "/sys/devices/platform/coretemp.0/hwmon/hwmon*"
	DefaultIPMIDevice   = "/dev/ipmi0"
	DefaultSmartctl     = "smartctl"
	DefaultPIDFile      = "/run/smfd.pid"

	minTemperature     = -273
	maxTemperature     = 999
	usefulTempLow      = 25
	usefulTempHigh     = 80
	maxFanSpeed        = 100
	lowFanSpeed        = 25
	sampleInterval     = 30
	chattyLogInterval  = 600
	longestLogInterval = 30000000
	maxRecordID        = 0xfffe
)

type Config struct {
	CPUFanBase       uint8
	SysFanBase       uint8
	LogInterval      int
	CPUTempTriggers  []Trigger
	PCHTempTriggers  []Trigger
	DiskTempTriggers []Trigger
	IPMIFans         []IPMIFan
	SmartDisks       []string

	SDRCacheFile string
	PCHTempInput string
	CoretempDir  string
	IPMIDevice   string
	Smartctl     string
	PIDFile      string

	// Path is the file the configuration was read from.
	Path string
	// Warnings lists suspicious but accepted values.
	Warnings []string
}

// Flags are the command line options.
type Flags struct {
	ConfigFile  string
	Debug       bool
	Syslog      bool
	PrintConfig bool
}

// ParseFlags parses the command line. It returns pflag.ErrHelp after
// printing usage when -h is given.
func ParseFlags(args []string) (Flags, error) {
	var f Flags

	fs := pflag.NewFlagSet("smfd", pflag.ContinueOnError)
	fs.StringVarP(&f.ConfigFile, "config", "c", DefaultConfigFile, "configuration file")
	fs.BoolVarP(&f.Debug, "debug", "d", false, "enable debug logging")
	fs.BoolVarP(&f.Syslog, "syslog", "s", false, "log to syslog")
	fs.BoolVarP(&f.PrintConfig, "print-config", "p", false, "print the parsed configuration and exit (implies --debug)")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return f, err
		}
		return f, errors.New().Wrap(errors.ErrParseFlags, err)
	}
	if fs.NArg() > 0 {
		return f, errors.New().WithData(errors.ErrParseFlags, struct {
			Args []string
		}{
			Args: fs.Args(),
		})
	}

	if f.PrintConfig {
		f.Debug = true
	}

	return f, nil
}

// fileTrigger and fileConfig mirror the YAML document. Pointers tell a
// missing key from a zero value.
type fileTrigger struct {
	Name        *string `mapstructure:"name"`
	Threshold   *int    `mapstructure:"threshold"`
	Hysteresis  *int    `mapstructure:"hysteresis"`
	CPUFanSpeed *int    `mapstructure:"cpu_fan_speed"`
	SysFanSpeed *int    `mapstructure:"sys_fan_speed"`
}

type fileFan struct {
	Name     *string `mapstructure:"name"`
	RecordID *int    `mapstructure:"record_id"`
}

type fileConfig struct {
	CPUFanBase       *int          `mapstructure:"cpu_fan_base"`
	SysFanBase       *int          `mapstructure:"sys_fan_base"`
	LogInterval      *int          `mapstructure:"log_interval"`
	CPUTempTriggers  []fileTrigger `mapstructure:"cpu_temp_triggers"`
	PCHTempTriggers  []fileTrigger `mapstructure:"pch_temp_triggers"`
	DiskTempTriggers []fileTrigger `mapstructure:"disk_temp_triggers"`
	IPMIFans         []fileFan     `mapstructure:"ipmi_fans"`
	SmartDisks       []string      `mapstructure:"smart_disks"`

	SDRCacheFile string `mapstructure:"sdr_cache_file"`
	PCHTempInput string `mapstructure:"pch_temp_input"`
	CoretempDir  string `mapstructure:"coretemp_dir"`
	IPMIDevice   string `mapstructure:"ipmi_device"`
	Smartctl     string `mapstructure:"smartctl"`
	PIDFile      string `mapstructure:"pid_file"`
}

// Load reads and validates the YAML configuration file at path.
func Load(path string) (*Config, error) {
	errFactory := errors.New()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetDefault("sdr_cache_file", DefaultSDRCacheFile)
	v.SetDefault("pch_temp_input", DefaultPCHTempInput)
	v.SetDefault("coretemp_dir", DefaultCoretempDir)
	v.SetDefault("ipmi_device", DefaultIPMIDevice)
	v.SetDefault("smartctl", DefaultSmartctl)
	v.SetDefault("pid_file", DefaultPIDFile)

	if err := v.ReadInConfig(); err != nil {
		return nil, errFactory.WithData(errors.ErrReadConfig, struct {
			Path  string
			Error string
		}{
			Path:  path,
			Error: err.Error(),
		})
	}

	var raw fileConfig
	if err := v.Unmarshal(&raw, func(dc *mapstructure.DecoderConfig) {
		dc.ErrorUnused = true
		dc.WeaklyTypedInput = false
	}); err != nil {
		return nil, errFactory.WithData(errors.ErrInvalidConfig, struct {
			Path  string
			Error string
		}{
			Path:  path,
			Error: err.Error(),
		})
	}

	c := &validator{file: path}
	cfg := c.build(&raw)
	if len(c.errs) > 0 {
		return nil, errFactory.Wrap(errors.ErrInvalidConfig, c.errs)
	}
	cfg.Warnings = c.warnings

	return cfg, nil
}

type validator struct {
	file     string
	errs     ValidationErrors
	warnings []string
}

func (c *validator) fail(field string, value interface{}, reason string) {
	c.errs = append(c.errs, &fieldError{file: c.file, field: field, value: value, reason: reason})
}

func (c *validator) warn(format string, args ...interface{}) {
	c.warnings = append(c.warnings, c.file+": "+fmt.Sprintf(format, args...))
}

func (c *validator) build(raw *fileConfig) *Config {
	cfg := &Config{
		Path:         c.file,
		SDRCacheFile: raw.SDRCacheFile,
		PCHTempInput: raw.PCHTempInput,
		CoretempDir:  raw.CoretempDir,
		IPMIDevice:   raw.IPMIDevice,
		Smartctl:     raw.Smartctl,
		PIDFile:      raw.PIDFile,
	}

	cfg.CPUFanBase = c.fanSpeed("cpu_fan_base", raw.CPUFanBase, true)
	cfg.SysFanBase = c.fanSpeed("sys_fan_base", raw.SysFanBase, true)
	cfg.LogInterval = c.logInterval(raw.LogInterval)
	cfg.CPUTempTriggers = c.triggers("cpu_temp_triggers", raw.CPUTempTriggers)
	cfg.PCHTempTriggers = c.triggers("pch_temp_triggers", raw.PCHTempTriggers)
	cfg.DiskTempTriggers = c.triggers("disk_temp_triggers", raw.DiskTempTriggers)
	cfg.IPMIFans = c.fans(raw.IPMIFans)

	if len(raw.SmartDisks) == 0 {
		c.fail("smart_disks", nil, "missing or empty")
	}
	for i, disk := range raw.SmartDisks {
		if disk == "" {
			c.fail(fmt.Sprintf("smart_disks[%d]", i), nil, "empty device path")
		}
	}
	cfg.SmartDisks = raw.SmartDisks

	for _, p := range []struct{ field, value string }{
		{"sdr_cache_file", cfg.SDRCacheFile},
		{"pch_temp_input", cfg.PCHTempInput},
		{"coretemp_dir", cfg.CoretempDir},
		{"ipmi_device", cfg.IPMIDevice},
		{"smartctl", cfg.Smartctl},
		{"pid_file", cfg.PIDFile},
	} {
		if p.value == "" {
			c.fail(p.field, nil, "empty path")
		}
	}

	return cfg
}

func (c *validator) fanSpeed(field string, value *int, required bool) uint8 {
	if value == nil {
		if required {
			c.fail(field, nil, "missing")
		}
		return 0
	}
	if *value < 0 || *value > maxFanSpeed {
		c.fail(field, *value, "not a valid fan speed (0-100)")
		return 0
	}
	if *value < lowFanSpeed {
		c.warn("fan speeds below 25%% may cause problems (%s = %d%%)", field, *value)
	}

	return uint8(*value)
}

func (c *validator) temperature(field string, value *int) int {
	if value == nil {
		c.fail(field, nil, "missing")
		return 0
	}
	if *value < minTemperature || *value > maxTemperature {
		c.fail(field, *value, "not a valid temperature")
		return 0
	}
	if *value < usefulTempLow || *value > usefulTempHigh {
		c.warn("temperatures outside 25°C - 80°C are probably not useful (%s = %d)", field, *value)
	}

	return *value
}

func (c *validator) logInterval(value *int) int {
	const field = "log_interval"

	if value == nil {
		c.fail(field, nil, "missing")
		return 0
	}
	v := *value
	if v < 0 {
		c.fail(field, v, "not a valid logging interval")
		return 0
	}
	if v != 0 && v < sampleInterval {
		c.warn("%s (%d) is less than the 30 second sampling interval", field, v)
	}
	if v != 0 && v < chattyLogInterval {
		c.warn("%s (%d seconds) may generate excessive log entries", field, v)
	}
	if v > longestLogInterval {
		c.warn("set %s to 0 to disable periodic logging (%s = %d)", field, field, v)
	}

	return v
}

func (c *validator) triggers(field string, raw []fileTrigger) []Trigger {
	if len(raw) == 0 {
		c.fail(field, nil, "missing or empty")
		return nil
	}

	triggers := make([]Trigger, 0, len(raw))
	for i, rt := range raw {
		elem := fmt.Sprintf("%s[%d]", field, i)
		var t Trigger

		if rt.Name == nil || *rt.Name == "" {
			c.fail(elem+".name", nil, "missing")
		} else {
			t.Name = *rt.Name
		}

		t.Threshold = c.temperature(elem+".threshold", rt.Threshold)
		t.Hysteresis = c.temperature(elem+".hysteresis", rt.Hysteresis)

		if rt.CPUFanSpeed == nil && rt.SysFanSpeed == nil {
			c.fail(elem, nil, "no cpu_fan_speed or sys_fan_speed")
		}
		t.CPUFanSpeed = c.fanSpeed(elem+".cpu_fan_speed", rt.CPUFanSpeed, false)
		t.SysFanSpeed = c.fanSpeed(elem+".sys_fan_speed", rt.SysFanSpeed, false)

		if rt.Threshold != nil && rt.Hysteresis != nil && *rt.Hysteresis >= *rt.Threshold {
			c.fail(elem+".hysteresis", *rt.Hysteresis,
				fmt.Sprintf("must be less than threshold (%d)", *rt.Threshold))
		}

		triggers = append(triggers, t)
	}

	return triggers
}

func (c *validator) fans(raw []fileFan) []IPMIFan {
	if len(raw) == 0 {
		c.fail("ipmi_fans", nil, "missing or empty")
		return nil
	}

	fans := make([]IPMIFan, 0, len(raw))
	for i, rf := range raw {
		elem := fmt.Sprintf("ipmi_fans[%d]", i)
		var f IPMIFan

		if rf.Name == nil || *rf.Name == "" {
			c.fail(elem+".name", nil, "missing")
		} else {
			f.Name = *rf.Name
		}

		switch {
		case rf.RecordID == nil:
			c.fail(elem+".record_id", nil, "missing")
		case *rf.RecordID < 0 || *rf.RecordID > maxRecordID:
			c.fail(elem+".record_id", *rf.RecordID, "not a valid IPMI SDR ID")
		default:
			f.RecordID = uint16(*rf.RecordID)
		}

		fans = append(fans, f)
	}

	return fans
}
