package stats

import (
	"context"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
)

type HostLoad struct {
	CPUUsage    float64 `json:"cpu_usage"`
	RAMUsage    float64 `json:"ram_usage"`
	Hostname    string  `json:"hostname"`
	CollectedAt int64   `json:"collected_at"`
}

type Collector struct {
	sample time.Duration
}

func NewCollector() *Collector {
	return &Collector{sample: time.Second}
}

func (c *Collector) Collect(ctx context.Context) (*HostLoad, error) {
	load := &HostLoad{CollectedAt: time.Now().Unix()}

	cpuPercent, err := cpu.PercentWithContext(ctx, c.sample, false)
	if err != nil {
		return nil, err
	}
	if len(cpuPercent) > 0 {
		load.CPUUsage = cpuPercent[0]
	}

	if memInfo, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		load.RAMUsage = memInfo.UsedPercent
	}
	if hostInfo, err := host.InfoWithContext(ctx); err == nil {
		load.Hostname = hostInfo.Hostname
	}

	return load, nil
}

// Hostname is used as a default worker name.
func Hostname(ctx context.Context) string {
	info, err := host.InfoWithContext(ctx)
	if err != nil {
		return ""
	}
	return info.Hostname
}
