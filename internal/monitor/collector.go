// Package monitor produces snapshots and feeds them to the alert manager.
package monitor

import (
	"context"
	"math"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/tphakala/vigil/internal/alerting"
	"github.com/tphakala/vigil/internal/errors"
)

// SourceSystem names snapshots produced by SystemCollector.
const SourceSystem = "system"

// Collector produces one snapshot per call.
type Collector interface {
	Name() string
	Collect(ctx context.Context) (alerting.Snapshot, error)
}

// SystemCollector samples host CPU, memory, disk and load with gopsutil.
// Each reading is optional; Collect fails only when every reading fails.
type SystemCollector struct {
	diskPath string
}

func NewSystemCollector(diskPath string) *SystemCollector {
	if diskPath == "" {
		diskPath = "/"
	}
	return &SystemCollector{diskPath: diskPath}
}

func (c *SystemCollector) Name() string { return SourceSystem }

// Collect returns {"system": {"cpu_percent", "memory_percent",
// "disk_percent", "load_1"}}.
func (c *SystemCollector) Collect(ctx context.Context) (alerting.Snapshot, error) {
	system := make(map[string]any, 4)
	var errs []error

	if pct, err := cpu.PercentWithContext(ctx, 0, false); err != nil {
		errs = append(errs, err)
	} else if len(pct) > 0 {
		system["cpu_percent"] = round2(pct[0])
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err != nil {
		errs = append(errs, err)
	} else {
		system["memory_percent"] = round2(vm.UsedPercent)
	}

	if usage, err := disk.UsageWithContext(ctx, c.diskPath); err != nil {
		errs = append(errs, err)
	} else {
		system["disk_percent"] = round2(usage.UsedPercent)
	}

	if avg, err := load.AvgWithContext(ctx); err != nil {
		errs = append(errs, err)
	} else {
		system["load_1"] = round2(avg.Load1)
	}

	if len(system) == 0 {
		return nil, errors.New(errors.Join(errs...)).
			Component("monitor").
			Category(errors.CategoryGeneric).
			Context("operation", "collect_system").
			Build()
	}
	return alerting.Snapshot{"system": system}, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
