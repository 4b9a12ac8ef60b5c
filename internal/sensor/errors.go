package sensor

import "codeberg.org/mutker/smfd/internal/errors"

const (
	// Input Errors
	ErrOpenInput    = errors.ErrorCode("sensor_open_input_failed")
	ErrReadInput    = errors.ErrorCode("sensor_read_input_failed")
	ErrParseReading = errors.ErrorCode("sensor_parse_reading_failed")
	ErrNoCoretemps  = errors.ErrorCode("sensor_no_coretemp_inputs")

	// Disk Errors
	ErrDiskNotFound     = errors.ErrorCode("sensor_disk_not_found")
	ErrSmartctlNotFound = errors.ErrorCode("sensor_smartctl_not_found")
	ErrSmartctl         = errors.ErrorCode("sensor_smartctl_failed")
	ErrSmartOutput      = errors.ErrorCode("sensor_smartctl_output_invalid")
	ErrNoTemperature    = errors.ErrorCode("sensor_no_disk_temperature")
)
