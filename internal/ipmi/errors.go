package ipmi

import (
	"fmt"

	"codeberg.org/mutker/smfd/internal/errors"
)

const (
	// Transport Errors
	ErrDeviceOpen       = errors.ErrorCode("ipmi_device_open_failed")
	ErrTransport        = errors.ErrorCode("ipmi_transport_failed")
	ErrTransportTimeout = errors.ErrorCode("ipmi_transport_timeout")
	ErrUnsupported      = errors.ErrorCode("ipmi_unsupported_platform")

	// Protocol Errors
	ErrTruncatedResponse = errors.ErrorCode("ipmi_truncated_response")
	ErrCompletionCode    = errors.ErrorCode("ipmi_command_failed")
	ErrCommandMismatch   = errors.ErrorCode("ipmi_command_mismatch")
	ErrResponseLength    = errors.ErrorCode("ipmi_unexpected_response_length")

	// Fan Control Errors
	ErrGetFanMode     = errors.ErrorCode("ipmi_get_fan_mode_failed")
	ErrSetFanMode     = errors.ErrorCode("ipmi_set_fan_mode_failed")
	ErrGetZonePercent = errors.ErrorCode("ipmi_get_zone_percent_failed")
	ErrSetZonePercent = errors.ErrorCode("ipmi_set_zone_percent_failed")

	// Sensor Data Repository Errors
	ErrSDRRead             = errors.ErrorCode("ipmi_sdr_read_failed")
	ErrSDRCache            = errors.ErrorCode("ipmi_sdr_cache_failed")
	ErrInvalidRecord       = errors.ErrorCode("ipmi_invalid_sdr_record")
	ErrRecordNotFound      = errors.ErrorCode("ipmi_sdr_record_not_found")
	ErrNotFullSensorRecord = errors.ErrorCode("ipmi_not_full_sensor_record")
	ErrNotFanSensor        = errors.ErrorCode("ipmi_not_fan_sensor")

	// Sensor Reading Errors
	ErrSensorRead         = errors.ErrorCode("ipmi_sensor_read_failed")
	ErrReadingUnavailable = errors.ErrorCode("ipmi_sensor_reading_unavailable")
	ErrReadingOutOfRange  = errors.ErrorCode("ipmi_sensor_reading_out_of_range")
	ErrNoAnalogReading    = errors.ErrorCode("ipmi_sensor_not_analog")
)

// CompletionCode is the status byte of an IPMI response
type CompletionCode uint8

const CompletionOK CompletionCode = 0x00

var completionCodes = map[CompletionCode]string{
	0x00: "command completed normally",
	0xc0: "node busy",
	0xc1: "invalid command",
	0xc2: "command invalid for given LUN",
	0xc3: "timeout while processing command",
	0xc4: "out of space",
	0xc5: "reservation canceled or invalid reservation ID",
	0xc6: "request data truncated",
	0xc7: "request data length invalid",
	0xc8: "request data field length limit exceeded",
	0xc9: "parameter out of range",
	0xca: "cannot return number of requested data bytes",
	0xcb: "requested sensor, data, or record not present",
	0xcc: "invalid data field in request",
	0xcd: "command illegal for specified sensor or record type",
	0xce: "command response could not be provided",
	0xcf: "cannot execute duplicated request",
	0xd0: "SDR repository in update mode",
	0xd1: "device in firmware update mode",
	0xd2: "BMC initialization in progress",
	0xd3: "destination unavailable",
	0xd4: "insufficient privilege level",
	0xd5: "command not supported in present state",
	0xd6: "command sub-function disabled or unavailable",
	0xff: "unspecified error",
}

func (c CompletionCode) String() string {
	if msg, ok := completionCodes[c]; ok {
		return fmt.Sprintf("0x%02x %s", uint8(c), msg)
	}

	return fmt.Sprintf("0x%02x completion code", uint8(c))
}
