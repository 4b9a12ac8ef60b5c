package thermal

import (
	"codeberg.org/mutker/smfd/internal/logger"
)

// State is the latch of a single threshold.
type State uint8

const (
	Inactive State = iota
	Active
)

func (s State) String() string {
	if s == Active {
		return "active"
	}
	return "inactive"
}

// Threshold is a temperature trigger that demands minimum duty cycles for
// both fan zones while it is active.
type Threshold struct {
	Name          string
	Temperature   int
	Hysteresis    int
	CPUFanPercent uint8
	SysFanPercent uint8

	state State
}

// NewThreshold returns a threshold in the Active state. Fans start at full
// speed, so every trigger begins latched and the first evaluation releases
// the ones whose hysteresis floor is not met.
func NewThreshold(name string, temperature, hysteresis int, cpuPercent, sysPercent uint8) *Threshold {
	return &Threshold{
		Name:          name,
		Temperature:   temperature,
		Hysteresis:    hysteresis,
		CPUFanPercent: cpuPercent,
		SysFanPercent: sysPercent,
		state:         Active,
	}
}

func (t *Threshold) State() State {
	return t.state
}

func (t *Threshold) Active() bool {
	return t.state == Active
}

// step applies one reading and reports whether the threshold is a
// candidate for this evaluation pass.
func (t *Threshold) step(category string, temp int) bool {
	switch t.state {
	case Active:
		if temp >= t.Hysteresis {
			logger.Debug().Msgf("%s temperature (%d) still exceeds %s hysteresis (%d)",
				category, temp, t.Name, t.Hysteresis)
			return true
		}
		logger.Info().Msgf("%s temperature (%d) no longer exceeds %s hysteresis (%d)",
			category, temp, t.Name, t.Hysteresis)
		t.state = Inactive

		return false
	default:
		if temp >= t.Temperature {
			logger.Info().Msgf("%s temperature (%d) exceeds %s threshold (%d)",
				category, temp, t.Name, t.Temperature)
			t.state = Active

			return true
		}

		return false
	}
}

// Base holds the duty cycles used when no threshold of a category is active.
type Base struct {
	CPU uint8
	Sys uint8
}

// Result is the outcome of evaluating one category for one tick.
type Result struct {
	Category     string
	Temperature  int
	CPUPercent   uint8
	SysPercent   uint8
	CPUThreshold *Threshold
	SysThreshold *Threshold
}

// Category is an ordered threshold list for one temperature source class.
// Order matters: when several thresholds are active the last one wins.
type Category struct {
	Name       string
	Thresholds []*Threshold
	Base       Base
}

func NewCategory(name string, base Base, thresholds []*Threshold) *Category {
	return &Category{
		Name:       name,
		Thresholds: thresholds,
		Base:       base,
	}
}

// Evaluate runs every threshold's state machine once against temp and
// returns the resulting zone demands. It must be called every tick so the
// latches follow the real temperature history.
func (c *Category) Evaluate(temp int) Result {
	var selected *Threshold

	for _, t := range c.Thresholds {
		if t.step(c.Name, temp) {
			selected = t
		}
	}

	if selected == nil {
		logger.Debug().Msgf("%s temperature (%d) ==> base fan settings (CPU: %d%%, SYS: %d%%)",
			c.Name, temp, c.Base.CPU, c.Base.Sys)

		return Result{
			Category:    c.Name,
			Temperature: temp,
			CPUPercent:  c.Base.CPU,
			SysPercent:  c.Base.Sys,
		}
	}

	logger.Debug().Msgf("%s temperature (%d) ==> %s fan settings (CPU: %d%%, SYS: %d%%)",
		c.Name, temp, selected.Name, selected.CPUFanPercent, selected.SysFanPercent)

	return Result{
		Category:     c.Name,
		Temperature:  temp,
		CPUPercent:   selected.CPUFanPercent,
		SysPercent:   selected.SysFanPercent,
		CPUThreshold: selected,
		SysThreshold: selected,
	}
}
