package ipmi

import (
	"context"
	"fmt"
)

// Transport moves one request to the BMC and returns the raw response
// frame: the echoed command byte, the completion code, then any data.
type Transport interface {
	Exchange(ctx context.Context, req Request) ([]byte, error)
	Close() error
}

// FanController manages BMC fan policy and zone duty cycles
type FanController interface {
	GetFanMode(ctx context.Context) (FanMode, error)
	SetFanMode(ctx context.Context, mode FanMode) error
	GetZonePercent(ctx context.Context, zone Zone) (uint8, error)
	SetZonePercent(ctx context.Context, zone Zone, percent uint8) error
	ReadFanRPM(ctx context.Context, sensor *FanSensor) (uint, error)
}

// NetFn is an IPMI network function code (request form).
type NetFn uint8

const (
	NetFnSensorEvent   NetFn = 0x04
	NetFnStorage       NetFn = 0x0a
	NetFnOEMSupermicro NetFn = 0x30
)

// Request is a single IPMI command addressed to the BMC.
type Request struct {
	NetFn   NetFn
	LUN     uint8
	Command byte
	Data    []byte
}

// Response is a validated response frame.
type Response struct {
	Command        byte
	CompletionCode CompletionCode
	Data           []byte
}

// FanMode is the Supermicro BMC fan management policy
type FanMode uint8

const (
	FanModeStandard FanMode = 0x00
	FanModeFull     FanMode = 0x01
	FanModeOptimal  FanMode = 0x02
	FanModeHeavyIO  FanMode = 0x04
)

func (m FanMode) String() string {
	switch m {
	case FanModeStandard:
		return "Standard"
	case FanModeFull:
		return "Full Speed (manual)"
	case FanModeOptimal:
		return "Optimal"
	case FanModeHeavyIO:
		return "Heavy I/O"
	default:
		return fmt.Sprintf("UNKNOWN (0x%02x)", uint8(m))
	}
}

// Zone identifies a physical fan group
type Zone uint8

const (
	ZoneCPU    Zone = 0x00
	ZoneSystem Zone = 0x01
)

func (z Zone) String() string {
	switch z {
	case ZoneCPU:
		return "CPU"
	case ZoneSystem:
		return "system"
	default:
		return fmt.Sprintf("zone 0x%02x", uint8(z))
	}
}
