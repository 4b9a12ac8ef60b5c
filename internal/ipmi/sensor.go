package ipmi

import (
	"context"
	"math"

	"codeberg.org/mutker/smfd/internal/errors"
	"codeberg.org/mutker/smfd/internal/logger"
	"codeberg.org/mutker/smfd/internal/sdrcache"
)

const (
	cmdGetSensorReading = 0x2d

	readingUnavailable = 0x20
)

// SDRStore persists the BMC's sensor data repository between runs.
type SDRStore interface {
	Stamp(ctx context.Context) (sdrcache.Stamp, bool, error)
	Lookup(ctx context.Context, id uint16) (sdrcache.Record, bool, error)
	Replace(ctx context.Context, stamp sdrcache.Stamp, records []sdrcache.Record) error
}

// FanSpec names a fan and the SDR record describing its tachometer.
type FanSpec struct {
	Name     string
	RecordID uint16
}

// FanSensor is a fan tachometer resolved against the SDR.
type FanSensor struct {
	Name     string
	RecordID uint16
	Record   SensorRecord
}

// SyncSDRCache rebuilds the cache when the repository has changed since it
// was written.
func (c *Client) SyncSDRCache(ctx context.Context, cache SDRStore) error {
	errFactory := errors.New()

	info, err := c.RepositoryInfo(ctx)
	if err != nil {
		return err
	}

	stamp, ok, err := cache.Stamp(ctx)
	if err != nil {
		return errFactory.Wrap(ErrSDRCache, err)
	}
	if ok && stamp == info.Stamp() {
		logger.Debug().
			Uint16("records", stamp.RecordCount).
			Msg("SDR cache is current")
		return nil
	}

	records, err := c.ReadRepository(ctx)
	if err != nil {
		return err
	}
	if err := cache.Replace(ctx, info.Stamp(), records); err != nil {
		return errFactory.Wrap(ErrSDRCache, err)
	}

	logger.Info().
		Int("records", len(records)).
		Uint32("last_addition", info.LastAddition).
		Uint32("last_erase", info.LastErase).
		Msg("Rebuilt SDR cache")

	return nil
}

// InitFanSensors resolves every configured fan to a full fan sensor record.
func (c *Client) InitFanSensors(ctx context.Context, cache SDRStore, fans []FanSpec) ([]*FanSensor, error) {
	errFactory := errors.New()

	if err := c.SyncSDRCache(ctx, cache); err != nil {
		return nil, err
	}

	sensors := make([]*FanSensor, 0, len(fans))
	for _, fan := range fans {
		raw, ok, err := cache.Lookup(ctx, fan.RecordID)
		if err != nil {
			return nil, errFactory.Wrap(ErrSDRCache, err)
		}
		if !ok {
			return nil, errFactory.WithData(ErrRecordNotFound, struct {
				Fan      string
				RecordID uint16
			}{
				Fan:      fan.Name,
				RecordID: fan.RecordID,
			})
		}

		rec, err := ParseFullSensorRecord(raw.Data)
		if err != nil {
			return nil, err
		}
		if rec.SensorType != SensorTypeFan {
			return nil, errFactory.WithData(ErrNotFanSensor, struct {
				Fan        string
				RecordID   uint16
				SensorType uint8
			}{
				Fan:        fan.Name,
				RecordID:   fan.RecordID,
				SensorType: rec.SensorType,
			})
		}

		logger.Debug().
			Str("fan", fan.Name).
			Uint16("record_id", fan.RecordID).
			Str("sdr_name", rec.Name).
			Uint8("sensor_number", rec.SensorNumber).
			Msg("Resolved fan sensor")

		sensors = append(sensors, &FanSensor{
			Name:     fan.Name,
			RecordID: fan.RecordID,
			Record:   rec,
		})
	}

	return sensors, nil
}

// ReadFanRPM reads and converts the current tachometer value.
func (c *Client) ReadFanRPM(ctx context.Context, sensor *FanSensor) (uint, error) {
	errFactory := errors.New()

	req := Request{
		NetFn:   NetFnSensorEvent,
		LUN:     sensor.Record.OwnerLUN,
		Command: cmdGetSensorReading,
		Data:    []byte{sensor.Record.SensorNumber},
	}
	resp, err := c.exchange(ctx, req)
	if err != nil {
		return 0, errFactory.Wrap(ErrSensorRead, err)
	}
	if err := expectMinLength(req, resp, 2); err != nil {
		return 0, errFactory.Wrap(ErrSensorRead, err)
	}

	if resp.Data[1]&readingUnavailable != 0 {
		return 0, errFactory.WithData(ErrReadingUnavailable, struct {
			Fan      string
			RecordID uint16
		}{
			Fan:      sensor.Name,
			RecordID: sensor.RecordID,
		})
	}

	rpm, err := sensor.Record.Convert(resp.Data[0])
	if err != nil {
		return 0, err
	}
	if math.IsNaN(rpm) || math.IsInf(rpm, 0) || rpm < 0 || rpm > math.MaxUint32 {
		return 0, errFactory.WithData(ErrReadingOutOfRange, struct {
			Fan   string
			Raw   uint8
			Value float64
		}{
			Fan:   sensor.Name,
			Raw:   resp.Data[0],
			Value: rpm,
		})
	}

	return uint(math.Round(rpm)), nil
}
