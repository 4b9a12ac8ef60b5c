package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"codeberg.org/mutker/smfd/internal/config"
	"codeberg.org/mutker/smfd/internal/control"
	"codeberg.org/mutker/smfd/internal/errors"
	"codeberg.org/mutker/smfd/internal/ipmi"
	"codeberg.org/mutker/smfd/internal/logger"
	"codeberg.org/mutker/smfd/internal/pid"
	"codeberg.org/mutker/smfd/internal/sdrcache"
	"codeberg.org/mutker/smfd/internal/sensor"
	"github.com/spf13/pflag"
)

// resources are the handles opened during startup, released in reverse
// dependency order on exit.
type resources struct {
	pidFile   string
	coretemps []*sensor.HwmonInput
	pch       *sensor.HwmonInput
	disks     []*sensor.SmartDisk
	client    *ipmi.Client
	cache     *sdrcache.Cache
}

func main() {
	flags, err := config.ParseFlags(os.Args[1:])
	if errors.Is(err, pflag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "smfd: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(logger.Options{
		Debug:     flags.Debug,
		Syslog:    flags.Syslog || !logger.StderrIsTerminal(),
		IsService: logger.IsService(),
	}); err != nil {
		fmt.Fprintf(os.Stderr, "smfd: failed to initialize logging: %v\n", err)
		os.Exit(1)
	}

	res := &resources{}

	cfg, err := config.Load(flags.ConfigFile)
	if err != nil {
		fatal(err, res)
	}
	for _, w := range cfg.Warnings {
		logger.Warn().Msg(w)
	}

	dumpConfig(cfg)
	if flags.PrintConfig {
		logger.Close()
		os.Exit(0)
	}

	sigs := make(chan os.Signal, 4)
	signal.Notify(sigs, syscall.SIGUSR1, syscall.SIGUSR2, syscall.SIGTERM, syscall.SIGINT)

	if err := runDaemon(cfg, res, sigs); err != nil {
		fatal(err, res)
	}

	res.drain()
	logger.Info().Msg("Exiting")
	logger.Close()
}

func runDaemon(cfg *config.Config, res *resources, sigs <-chan os.Signal) error {
	ctx := context.Background()
	flags := &control.Flags{}

	loop, err := setup(ctx, cfg, res, flags)
	if err != nil {
		return err
	}

	return control.Supervise(ctx, loop, flags, sigs)
}

func setup(ctx context.Context, cfg *config.Config, res *resources, flags *control.Flags) (*control.Loop, error) {
	errFactory := errors.New()

	if err := pid.Write(cfg.PIDFile); err != nil {
		return nil, err
	}
	res.pidFile = cfg.PIDFile

	coretemps, err := sensor.OpenCoretemps(cfg.CoretempDir)
	if err != nil {
		return nil, errFactory.Wrap(errors.ErrInitApp, err)
	}
	res.coretemps = coretemps

	pch, err := sensor.OpenHwmonInput("PCH", cfg.PCHTempInput)
	if err != nil {
		return nil, errFactory.Wrap(errors.ErrInitApp, err)
	}
	res.pch = pch

	disks, err := sensor.OpenSmartDisks(cfg.SmartDisks, sensor.SmartOptions{Smartctl: cfg.Smartctl})
	if err != nil {
		return nil, errFactory.Wrap(errors.ErrInitApp, err)
	}
	res.disks = disks

	client, err := ipmi.Open(cfg.IPMIDevice, ipmi.DefaultTimeout)
	if err != nil {
		return nil, errFactory.Wrap(errors.ErrInitApp, err)
	}
	res.client = client

	cache, err := sdrcache.Open(cfg.SDRCacheFile, logger.Get())
	if err != nil {
		return nil, errFactory.Wrap(errors.ErrInitApp, err)
	}
	res.cache = cache

	specs := make([]ipmi.FanSpec, len(cfg.IPMIFans))
	for i, f := range cfg.IPMIFans {
		specs[i] = ipmi.FanSpec{Name: f.Name, RecordID: f.RecordID}
	}
	fans, err := client.InitFanSensors(ctx, cache, specs)
	if err != nil {
		return nil, errFactory.Wrap(errors.ErrInitApp, err)
	}

	coreSources := make([]sensor.Source, len(coretemps))
	for i, c := range coretemps {
		coreSources[i] = c
	}
	diskSources := make([]sensor.Source, len(disks))
	for i, d := range disks {
		diskSources[i] = d
	}

	loop, err := control.New(control.Options{
		Controller:  client,
		Fans:        fans,
		PCH:         pch,
		Coretemps:   coreSources,
		Disks:       diskSources,
		Categories:  control.CategoriesFromConfig(cfg),
		LogInterval: time.Duration(cfg.LogInterval) * time.Second,
		Flags:       flags,
	})
	if err != nil {
		return nil, err
	}

	if err := loop.Startup(ctx); err != nil {
		return nil, err
	}

	logger.Info().
		Int("coretemps", len(coretemps)).
		Int("disks", len(disks)).
		Int("fans", len(fans)).
		Msg("smfd started")

	return loop, nil
}

func (r *resources) drain() {
	for _, d := range r.disks {
		if err := d.Close(); err != nil {
			logger.Error().Err(err).Str("disk", d.Name()).Msg("Failed to close disk")
		}
	}
	if r.client != nil {
		if err := r.client.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close IPMI device")
		}
	}
	if r.pch != nil {
		if err := r.pch.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close PCH input")
		}
	}
	for _, c := range r.coretemps {
		if err := c.Close(); err != nil {
			logger.Error().Err(err).Str("sensor", c.Name()).Msg("Failed to close coretemp input")
		}
	}
	if r.cache != nil {
		if err := r.cache.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close SDR cache")
		}
	}
	if r.pidFile != "" {
		if err := pid.Remove(r.pidFile); err != nil {
			logger.Error().Err(err).Msg("Failed to remove PID file")
		}
	}
	*r = resources{}
}

func fatal(err error, res *resources) {
	var appErr errors.Error
	if errors.As(err, &appErr) {
		logger.ErrorWithCode(appErr).Msg("Fatal error")
	} else {
		logger.Error().Err(err).Msg("Fatal error")
	}

	res.drain()
	logger.Close()
	os.Exit(1)
}

func dumpConfig(cfg *config.Config) {
	logger.Debug().Msgf("Configuration (%s):", cfg.Path)
	logger.Debug().Msgf("  cpu_fan_base: %d", cfg.CPUFanBase)
	logger.Debug().Msgf("  sys_fan_base: %d", cfg.SysFanBase)
	logger.Debug().Msgf("  log_interval: %d", cfg.LogInterval)
	dumpTriggers("cpu_temp_triggers", cfg.CPUTempTriggers)
	dumpTriggers("pch_temp_triggers", cfg.PCHTempTriggers)
	dumpTriggers("disk_temp_triggers", cfg.DiskTempTriggers)

	logger.Debug().Msg("  ipmi_fans:")
	for i, f := range cfg.IPMIFans {
		logger.Debug().Msgf("    [%d]: %s (record 0x%04x)", i, f.Name, f.RecordID)
	}
	logger.Debug().Msg("  smart_disks:")
	for i, d := range cfg.SmartDisks {
		logger.Debug().Msgf("    [%d]: %s", i, d)
	}

	logger.Debug().Msgf("  sdr_cache_file: %s", cfg.SDRCacheFile)
	logger.Debug().Msgf("  pch_temp_input: %s", cfg.PCHTempInput)
	logger.Debug().Msgf("  coretemp_dir: %s", cfg.CoretempDir)
	logger.Debug().Msgf("  ipmi_device: %s", cfg.IPMIDevice)
	logger.Debug().Msgf("  smartctl: %s", cfg.Smartctl)
	logger.Debug().Msgf("  pid_file: %s", cfg.PIDFile)
}

func dumpTriggers(name string, triggers []config.Trigger) {
	logger.Debug().Msgf("  %s:", name)
	for i, t := range triggers {
		logger.Debug().Msgf("    [%d]: %s threshold=%d hysteresis=%d cpu_fan=%d%% sys_fan=%d%%",
			i, t.Name, t.Threshold, t.Hysteresis, t.CPUFanSpeed, t.SysFanSpeed)
	}
}
