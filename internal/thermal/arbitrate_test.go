package thermal_test

import (
	"testing"

	"codeberg.org/mutker/smfd/internal/thermal"
	"github.com/stretchr/testify/assert"
)

func TestArbitrateWorstCaseWins(t *testing.T) {
	pch := thermal.Result{Category: "PCH", CPUPercent: 10, SysPercent: 20}
	cpu := thermal.Result{Category: "CPU", CPUPercent: 50, SysPercent: 5}
	disk := thermal.Result{Category: "disk", CPUPercent: 30, SysPercent: 60}

	d := thermal.Arbitrate(pch, cpu, disk)
	assert.Equal(t, uint8(50), d.CPU.Percent)
	assert.Equal(t, "CPU", d.CPU.Source.Category)
	assert.Equal(t, uint8(60), d.Sys.Percent)
	assert.Equal(t, "disk", d.Sys.Source.Category)
}

func TestArbitrateTieKeepsFirst(t *testing.T) {
	pch := thermal.Result{Category: "PCH", CPUPercent: 40, SysPercent: 40}
	cpu := thermal.Result{Category: "CPU", CPUPercent: 40, SysPercent: 30}
	disk := thermal.Result{Category: "disk", CPUPercent: 20, SysPercent: 40}

	d := thermal.Arbitrate(pch, cpu, disk)
	assert.Equal(t, "PCH", d.CPU.Source.Category)
	assert.Equal(t, "PCH", d.Sys.Source.Category)
}

func TestArbitrateThresholdName(t *testing.T) {
	hot := thermal.NewThreshold("hot", 45, 40, 70, 0)
	cpu := thermal.Result{Category: "CPU", CPUPercent: 70, CPUThreshold: hot, SysThreshold: hot}
	disk := thermal.Result{Category: "disk", CPUPercent: 30, SysPercent: 30}

	d := thermal.Arbitrate(cpu, disk)
	assert.Equal(t, "hot", d.CPU.ThresholdName(thermal.ZoneCPU))
	assert.Equal(t, "", d.Sys.ThresholdName(thermal.ZoneSys))
	assert.Equal(t, "disk", d.Sys.Source.Category)
}

func TestArbitrateEmpty(t *testing.T) {
	assert.Equal(t, thermal.Decision{}, thermal.Arbitrate())
}
