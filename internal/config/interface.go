package config

import (
	"fmt"
	"strings"
)

// ValidationError represents a configuration validation error
type ValidationError interface {
	error
	// Field returns the path of the invalid field, e.g. cpu_temp_triggers[1].hysteresis
	Field() string
	// Value returns the invalid value
	Value() interface{}
	// Reason returns why the value is invalid
	Reason() string
}

type fieldError struct {
	file   string
	field  string
	value  interface{}
	reason string
}

func (e *fieldError) Error() string {
	if e.value == nil {
		return fmt.Sprintf("%s: %s: %s", e.file, e.field, e.reason)
	}

	return fmt.Sprintf("%s: %s: %s (%v)", e.file, e.field, e.reason, e.value)
}

func (e *fieldError) Field() string      { return e.field }
func (e *fieldError) Value() interface{} { return e.value }
func (e *fieldError) Reason() string     { return e.reason }

// ValidationErrors collects every problem found in a configuration file.
type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	msgs := make([]string, len(v))
	for i, err := range v {
		msgs[i] = err.Error()
	}

	return strings.Join(msgs, "; ")
}

// Trigger is one temperature threshold of a category.
type Trigger struct {
	Name        string
	Threshold   int
	Hysteresis  int
	CPUFanSpeed uint8
	SysFanSpeed uint8
}

// IPMIFan names a fan tachometer by its SDR record ID.
type IPMIFan struct {
	Name     string
	RecordID uint16
}
