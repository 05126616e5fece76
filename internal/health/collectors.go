// Package health exposes server self-metrics for the status endpoint.
package health

import (
	"context"
	"runtime"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/cpu"
	"github.com/shirou/gopsutil/mem"
)

// Collector produces a single named metric. A nil result means the
// metric could not be collected this round.
type Collector interface {
	Name() string
	Collect(ctx context.Context) *float64
}

// CPUCollector reports total CPU utilization in percent.
type CPUCollector struct {
	Logger zerolog.Logger
}

func (c *CPUCollector) Name() string {
	return "cpu_percent"
}

func (c *CPUCollector) Collect(ctx context.Context) *float64 {
	percentages, err := cpu.Percent(0, false)
	if err != nil {
		c.Logger.Error().Err(err).Msg("Failed to get CPU usage")
		return nil
	}
	if len(percentages) == 0 {
		c.Logger.Warn().Msg("CPU usage data is empty")
		return nil
	}
	return &percentages[0]
}

// MemoryCollector reports used system memory in percent.
type MemoryCollector struct {
	Logger zerolog.Logger
}

func (m *MemoryCollector) Name() string {
	return "memory_percent"
}

func (m *MemoryCollector) Collect(ctx context.Context) *float64 {
	vm, err := mem.VirtualMemory()
	if err != nil {
		m.Logger.Error().Err(err).Msg("Failed to get memory usage")
		return nil
	}
	return &vm.UsedPercent
}

// GoroutineCollector reports the live goroutine count.
type GoroutineCollector struct {
	Logger zerolog.Logger
}

func (g *GoroutineCollector) Name() string {
	return "goroutines"
}

func (g *GoroutineCollector) Collect(ctx context.Context) *float64 {
	count := float64(runtime.NumGoroutine())
	return &count
}
