package control

import (
	"context"

	"codeberg.org/mutker/smfd/internal/errors"
	"codeberg.org/mutker/smfd/internal/ipmi"
	"codeberg.org/mutker/smfd/internal/logger"
	"codeberg.org/mutker/smfd/internal/thermal"
)

const fullSpeed = 100

// fanZone remembers the duty cycle last commanded to one zone so that
// only changes reach the BMC.
type fanZone struct {
	zone    ipmi.Zone
	demand  thermal.Zone
	percent uint8
}

func newFanZone(zone ipmi.Zone, demand thermal.Zone) *fanZone {
	return &fanZone{zone: zone, demand: demand, percent: fullSpeed}
}

func (z *fanZone) apply(ctx context.Context, fc ipmi.FanController, d thermal.ZoneDemand) error {
	if d.Percent == z.percent {
		return nil
	}

	if name := d.ThresholdName(z.demand); name != "" {
		logger.Info().Msgf("Setting %s fan to %d%% (%s %s threshold)",
			z.zone, d.Percent, d.Source.Category, name)
	} else {
		logger.Info().Msgf("Setting %s fan to %d%%", z.zone, d.Percent)
	}

	if err := fc.SetZonePercent(ctx, z.zone, d.Percent); err != nil {
		return errors.New().Wrap(errors.ErrSetFanZone, err)
	}
	z.percent = d.Percent

	return nil
}
