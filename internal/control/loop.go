package control

import (
	"context"
	"time"

	"codeberg.org/mutker/smfd/internal/config"
	"codeberg.org/mutker/smfd/internal/errors"
	"codeberg.org/mutker/smfd/internal/ipmi"
	"codeberg.org/mutker/smfd/internal/logger"
	"codeberg.org/mutker/smfd/internal/sensor"
	"codeberg.org/mutker/smfd/internal/thermal"
)

const DefaultTickInterval = 30 * time.Second

// probe is a temperature source and the statistics of its readings.
type probe struct {
	source  sensor.Source
	tracker *thermal.Tracker
}

func newProbes(sources []sensor.Source) []*probe {
	probes := make([]*probe, len(sources))
	for i, s := range sources {
		probes[i] = &probe{source: s, tracker: thermal.NewTracker()}
	}

	return probes
}

func (p *probe) read(ctx context.Context) error {
	temp, err := p.source.Read(ctx)
	if err != nil {
		return errors.New().Wrap(errors.ErrReadSensors, err)
	}
	p.tracker.Update(temp)

	return nil
}

// hottest returns the probe with the highest current reading. Ties keep
// the earliest probe.
func hottest(probes []*probe) *probe {
	hot := probes[0]
	for _, p := range probes[1:] {
		if p.tracker.Current() > hot.tracker.Current() {
			hot = p
		}
	}

	return hot
}

// Categories holds the threshold lists of the three temperature classes.
type Categories struct {
	PCH  *thermal.Category
	CPU  *thermal.Category
	Disk *thermal.Category
}

// CategoriesFromConfig builds the threshold lists, all thresholds active.
func CategoriesFromConfig(cfg *config.Config) Categories {
	base := thermal.Base{CPU: cfg.CPUFanBase, Sys: cfg.SysFanBase}

	build := func(name string, triggers []config.Trigger) *thermal.Category {
		thresholds := make([]*thermal.Threshold, len(triggers))
		for i, t := range triggers {
			thresholds[i] = thermal.NewThreshold(t.Name, t.Threshold, t.Hysteresis, t.CPUFanSpeed, t.SysFanSpeed)
		}
		return thermal.NewCategory(name, base, thresholds)
	}

	return Categories{
		PCH:  build("PCH", cfg.PCHTempTriggers),
		CPU:  build("CPU", cfg.CPUTempTriggers),
		Disk: build("disk", cfg.DiskTempTriggers),
	}
}

// Options wires the loop to its hardware and policy.
type Options struct {
	Controller  ipmi.FanController
	Fans        []*ipmi.FanSensor
	PCH         sensor.Source
	Coretemps   []sensor.Source
	Disks       []sensor.Source
	Categories  Categories
	LogInterval time.Duration
	Flags       *Flags

	// TickInterval defaults to DefaultTickInterval.
	TickInterval time.Duration
	// Now defaults to time.Now.
	Now func() time.Time
}

// Loop is the control loop. It owns every sensor, tracker and zone and is
// driven from a single goroutine.
type Loop struct {
	fc         ipmi.FanController
	fans       []*ipmi.FanSensor
	pch        *probe
	coretemps  []*probe
	disks      []*probe
	categories Categories
	cpuZone    *fanZone
	sysZone    *fanZone
	flags      *Flags
	tick       time.Duration
	now        func() time.Time

	logInterval     time.Duration
	nextLog         time.Time
	collectionStart time.Time
}

func New(opts Options) (*Loop, error) {
	errFactory := errors.New()

	if opts.Controller == nil || opts.PCH == nil || len(opts.Coretemps) == 0 || len(opts.Disks) == 0 {
		return nil, errFactory.WithMessage(errors.ErrInitApp, "control loop needs a fan controller and PCH, coretemp and disk sensors")
	}
	if opts.LogInterval < 0 {
		return nil, errFactory.WithData(errors.ErrInvalidInterval, opts.LogInterval.String())
	}

	l := &Loop{
		fc:          opts.Controller,
		fans:        opts.Fans,
		pch:         &probe{source: opts.PCH, tracker: thermal.NewTracker()},
		coretemps:   newProbes(opts.Coretemps),
		disks:       newProbes(opts.Disks),
		categories:  opts.Categories,
		cpuZone:     newFanZone(ipmi.ZoneCPU, thermal.ZoneCPU),
		sysZone:     newFanZone(ipmi.ZoneSystem, thermal.ZoneSys),
		flags:       opts.Flags,
		tick:        opts.TickInterval,
		now:         opts.Now,
		logInterval: opts.LogInterval,
	}
	if l.flags == nil {
		l.flags = &Flags{}
	}
	if l.tick <= 0 {
		l.tick = DefaultTickInterval
	}
	if l.now == nil {
		l.now = time.Now
	}

	return l, nil
}

// Startup takes manual control of the fans at full speed and starts the
// status schedule.
func (l *Loop) Startup(ctx context.Context) error {
	errFactory := errors.New()

	if err := l.fc.SetFanMode(ctx, ipmi.FanModeFull); err != nil {
		return errFactory.Wrap(errors.ErrInitApp, err)
	}
	for _, z := range []*fanZone{l.cpuZone, l.sysZone} {
		if err := l.fc.SetZonePercent(ctx, z.zone, fullSpeed); err != nil {
			return errFactory.Wrap(errors.ErrInitApp, err)
		}
		z.percent = fullSpeed
	}
	logger.Info().Msg("Fans set to full speed")

	l.collectionStart = l.now()
	if l.logInterval > 0 {
		l.nextLog = l.collectionStart.Add(l.logInterval)
	}

	return nil
}

// Run ticks immediately and then once per tick interval until ctx is done.
// Cancellation is observed between ticks only; a tick in progress always
// completes.
func (l *Loop) Run(ctx context.Context) error {
	hw := context.WithoutCancel(ctx)

	ticker := time.NewTicker(l.tick)
	defer ticker.Stop()

	for {
		if err := l.Tick(hw); err != nil {
			return errors.New().Wrap(errors.ErrMainLoop, err)
		}

		select {
		case <-ctx.Done():
			logger.Info().Msg("Control loop stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Tick runs one control cycle.
func (l *Loop) Tick(ctx context.Context) error {
	if err := l.serviceFlags(ctx); err != nil {
		return err
	}

	for _, p := range l.coretemps {
		if err := p.read(ctx); err != nil {
			return err
		}
	}
	if err := l.pch.read(ctx); err != nil {
		return err
	}
	for _, p := range l.disks {
		if err := p.read(ctx); err != nil {
			return err
		}
	}

	cpu := hottest(l.coretemps)
	logger.Debug().Msgf("Highest CPU temperature is %d (%s)", cpu.tracker.Current(), cpu.source.Name())
	disk := hottest(l.disks)
	logger.Debug().Msgf("Highest disk temperature is %d (%s)", disk.tracker.Current(), disk.source.Name())

	d := thermal.Arbitrate(
		l.categories.PCH.Evaluate(l.pch.tracker.Current()),
		l.categories.CPU.Evaluate(cpu.tracker.Current()),
		l.categories.Disk.Evaluate(disk.tracker.Current()),
	)
	logger.Debug().Msgf("%s temperature ==> CPU fan @ %d%%", d.CPU.Source.Category, d.CPU.Percent)
	logger.Debug().Msgf("%s temperature ==> SYS fan @ %d%%", d.Sys.Source.Category, d.Sys.Percent)

	if err := l.cpuZone.apply(ctx, l.fc, d.CPU); err != nil {
		return err
	}
	if err := l.sysZone.apply(ctx, l.fc, d.Sys); err != nil {
		return err
	}

	if l.logInterval > 0 {
		if now := l.now(); !now.Before(l.nextLog) {
			if err := l.logStatus(ctx); err != nil {
				return err
			}
			l.nextLog = now.Add(l.logInterval)
		}
	}

	return nil
}

func (l *Loop) serviceFlags(ctx context.Context) error {
	if l.flags.debug.Swap(false) {
		debug := logger.IsDebug()
		logger.Info().Msgf("Got SIGUSR1; switching debugging from %s to %s", onOff(debug), onOff(!debug))
		logger.SetDebug(!debug)
	}

	if l.flags.dump.Swap(false) {
		logger.Info().Msg("Got SIGUSR2; logging status")
		return l.logStatus(ctx)
	}

	return nil
}

func onOff(b bool) string {
	if b {
		return "ON"
	}
	return "OFF"
}
