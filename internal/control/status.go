package control

import (
	"context"
	"time"

	"codeberg.org/mutker/smfd/internal/errors"
	"codeberg.org/mutker/smfd/internal/ipmi"
	"codeberg.org/mutker/smfd/internal/logger"
	"codeberg.org/mutker/smfd/internal/thermal"
)

// Status is a point-in-time report of the BMC and sensor statistics.
type Status struct {
	Since      time.Time
	FanMode    ipmi.FanMode
	CPUPercent uint8
	SysPercent uint8
	Fans       []FanStatus
	Sensors    []SensorStatus
}

type FanStatus struct {
	Name string
	RPM  uint
}

// SensorStatus is the summary of one sensor since the previous snapshot.
// OK is false when no samples were taken.
type SensorStatus struct {
	Name    string
	Summary thermal.Summary
	OK      bool
}

// Snapshot reads the BMC state and collects the statistics of every
// sensor, then resets them for the next period.
func (l *Loop) Snapshot(ctx context.Context) (Status, error) {
	errFactory := errors.New()

	st := Status{Since: l.collectionStart}

	var err error
	if st.FanMode, err = l.fc.GetFanMode(ctx); err != nil {
		return Status{}, errFactory.Wrap(errors.ErrStatusReport, err)
	}
	if st.CPUPercent, err = l.fc.GetZonePercent(ctx, ipmi.ZoneCPU); err != nil {
		return Status{}, errFactory.Wrap(errors.ErrStatusReport, err)
	}
	if st.SysPercent, err = l.fc.GetZonePercent(ctx, ipmi.ZoneSystem); err != nil {
		return Status{}, errFactory.Wrap(errors.ErrStatusReport, err)
	}

	st.Fans = make([]FanStatus, 0, len(l.fans))
	for _, fan := range l.fans {
		rpm, err := l.fc.ReadFanRPM(ctx, fan)
		if err != nil {
			return Status{}, errFactory.Wrap(errors.ErrStatusReport, err)
		}
		st.Fans = append(st.Fans, FanStatus{Name: fan.Name, RPM: rpm})
	}

	probes := make([]*probe, 0, 1+len(l.coretemps)+len(l.disks))
	probes = append(probes, l.pch)
	probes = append(probes, l.coretemps...)
	probes = append(probes, l.disks...)

	st.Sensors = make([]SensorStatus, 0, len(probes))
	for _, p := range probes {
		name := p.source.Name()
		if p == l.pch {
			name = "PCH"
		}
		summary, ok := p.tracker.SnapshotAndReset()
		st.Sensors = append(st.Sensors, SensorStatus{Name: name, Summary: summary, OK: ok})
	}
	l.collectionStart = l.now()

	return st, nil
}

func (l *Loop) logStatus(ctx context.Context) error {
	st, err := l.Snapshot(ctx)
	if err != nil {
		return err
	}

	logger.Info().Msgf("Data collection began at %s", st.Since.Format(time.RFC1123))
	logger.Info().Msgf("BMC fan mode: %s", st.FanMode)
	logger.Info().Msgf("CPU fan duty cycle: %d%%", st.CPUPercent)
	logger.Info().Msgf("System fan duty cycle: %d%%", st.SysPercent)

	for _, f := range st.Fans {
		logger.Info().Msgf("%s: %d RPM", f.Name, f.RPM)
	}

	for _, s := range st.Sensors {
		if !s.OK {
			logger.Info().Msgf("%s: no samples", s.Name)
			continue
		}
		logger.Info().Msgf("%s: current: %d°C, high: %d°C, low: %d°C, mean: %d°C",
			s.Name, s.Summary.Current, s.Summary.High, s.Summary.Low, s.Summary.Mean)
	}

	return nil
}
