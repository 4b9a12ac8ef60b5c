package thermal

// ZoneDemand is the governing duty cycle for one fan zone and the category
// result that produced it.
type ZoneDemand struct {
	Percent uint8
	Source  Result
}

// ThresholdName returns the name of the governing threshold, or "" when the
// zone runs at its base duty cycle.
func (d ZoneDemand) ThresholdName(zone Zone) string {
	t := d.Source.CPUThreshold
	if zone == ZoneSys {
		t = d.Source.SysThreshold
	}
	if t == nil {
		return ""
	}

	return t.Name
}

// Zone selects which half of a Result a demand refers to.
type Zone uint8

const (
	ZoneCPU Zone = iota
	ZoneSys
)

// Decision holds the arbitrated demand for both zones.
type Decision struct {
	CPU ZoneDemand
	Sys ZoneDemand
}

// Arbitrate picks, independently for each zone, the result with the
// strictly highest duty cycle. Ties go to the earliest result, so callers
// pass results in PCH, CPU, disk order.
func Arbitrate(results ...Result) Decision {
	if len(results) == 0 {
		return Decision{}
	}

	cpu, sys := results[0], results[0]
	for _, r := range results[1:] {
		if r.CPUPercent > cpu.CPUPercent {
			cpu = r
		}
		if r.SysPercent > sys.SysPercent {
			sys = r
		}
	}

	return Decision{
		CPU: ZoneDemand{Percent: cpu.CPUPercent, Source: cpu},
		Sys: ZoneDemand{Percent: sys.SysPercent, Source: sys},
	}
}
