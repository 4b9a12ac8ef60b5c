package ipmi

import (
	"math"
	"strings"

	"codeberg.org/mutker/smfd/internal/errors"
)

const (
	RecordTypeFullSensor = 0x01
	SensorTypeFan        = 0x04

	sdrHeaderLen     = 5
	fullRecordMinLen = 48
	idStringOffset   = 48
)

// AnalogFormat is the numeric encoding of a raw sensor reading.
type AnalogFormat uint8

const (
	AnalogUnsigned AnalogFormat = iota
	AnalogOnesComplement
	AnalogTwosComplement
	AnalogNone
)

// Linearization is the function applied after the linear conversion.
type Linearization uint8

const (
	LinearizationLinear Linearization = iota
	LinearizationLn
	LinearizationLog10
	LinearizationLog2
	LinearizationE
	LinearizationExp10
	LinearizationExp2
	LinearizationInverse
	LinearizationSqr
	LinearizationCube
	LinearizationSqrt
	LinearizationCubeRoot
)

// SensorRecord holds the fields of a full sensor record needed to read
// and convert the sensor.
type SensorRecord struct {
	RecordID      uint16
	OwnerID       uint8
	OwnerLUN      uint8
	SensorNumber  uint8
	SensorType    uint8
	AnalogFormat  AnalogFormat
	Linearization Linearization
	M             int16
	B             int16
	BExp          int8
	RExp          int8
	Name          string
}

// ParseFullSensorRecord decodes a complete SDR entry, header included.
func ParseFullSensorRecord(data []byte) (SensorRecord, error) {
	errFactory := errors.New()

	if len(data) < sdrHeaderLen {
		return SensorRecord{}, errFactory.WithData(ErrInvalidRecord, struct {
			Bytes int
		}{
			Bytes: len(data),
		})
	}

	id := uint16(data[0]) | uint16(data[1])<<8
	if data[3] != RecordTypeFullSensor {
		return SensorRecord{}, errFactory.WithData(ErrNotFullSensorRecord, struct {
			RecordID   uint16
			RecordType uint8
		}{
			RecordID:   id,
			RecordType: data[3],
		})
	}
	if len(data) < fullRecordMinLen {
		return SensorRecord{}, errFactory.WithData(ErrInvalidRecord, struct {
			RecordID uint16
			Bytes    int
		}{
			RecordID: id,
			Bytes:    len(data),
		})
	}

	rec := SensorRecord{
		RecordID:      id,
		OwnerID:       data[5],
		OwnerLUN:      data[6] & 0x03,
		SensorNumber:  data[7],
		SensorType:    data[12],
		AnalogFormat:  AnalogFormat(data[20] >> 6),
		Linearization: Linearization(data[23] & 0x7f),
		M:             signExtend(uint16(data[24])|uint16(data[25]&0xc0)<<2, 10),
		B:             signExtend(uint16(data[26])|uint16(data[27]&0xc0)<<2, 10),
		RExp:          int8(signExtend(uint16(data[29]>>4), 4)),
		BExp:          int8(signExtend(uint16(data[29]&0x0f), 4)),
	}

	if len(data) > idStringOffset {
		n := int(data[47] & 0x1f)
		end := idStringOffset + n
		if end > len(data) {
			end = len(data)
		}
		rec.Name = strings.TrimRight(string(data[idStringOffset:end]), "\x00 ")
	}

	return rec, nil
}

func signExtend(v uint16, bits uint) int16 {
	shift := 16 - bits
	return int16(v<<shift) >> shift
}

// Convert turns a raw reading byte into engineering units:
// y = L((M*x + B*10^Bexp) * 10^Rexp).
func (r SensorRecord) Convert(raw byte) (float64, error) {
	errFactory := errors.New()

	var x float64
	switch r.AnalogFormat {
	case AnalogUnsigned:
		x = float64(raw)
	case AnalogOnesComplement:
		if raw&0x80 != 0 {
			x = -float64(^raw)
		} else {
			x = float64(raw)
		}
	case AnalogTwosComplement:
		x = float64(int8(raw))
	default:
		return 0, errFactory.WithData(ErrNoAnalogReading, struct {
			RecordID uint16
		}{
			RecordID: r.RecordID,
		})
	}

	y := (float64(r.M)*x + float64(r.B)*math.Pow10(int(r.BExp))) * math.Pow10(int(r.RExp))

	return r.linearize(y)
}

func (r SensorRecord) linearize(y float64) (float64, error) {
	switch r.Linearization {
	case LinearizationLinear:
		return y, nil
	case LinearizationLn:
		return math.Log(y), nil
	case LinearizationLog10:
		return math.Log10(y), nil
	case LinearizationLog2:
		return math.Log2(y), nil
	case LinearizationE:
		return math.Exp(y), nil
	case LinearizationExp10:
		return math.Pow(10, y), nil
	case LinearizationExp2:
		return math.Exp2(y), nil
	case LinearizationInverse:
		return 1 / y, nil
	case LinearizationSqr:
		return y * y, nil
	case LinearizationCube:
		return y * y * y, nil
	case LinearizationSqrt:
		return math.Sqrt(y), nil
	case LinearizationCubeRoot:
		return math.Cbrt(y), nil
	default:
		return 0, errors.New().WithData(ErrInvalidRecord, struct {
			RecordID      uint16
			Linearization uint8
		}{
			RecordID:      r.RecordID,
			Linearization: uint8(r.Linearization),
		})
	}
}
