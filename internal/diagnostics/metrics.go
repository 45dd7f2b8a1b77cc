// Package diagnostics collects host metrics and runs the environment checks
// behind the doctor command. A headful browser is resource-hungry; the doctor
// flags hosts that will struggle before the first spawn fails mysteriously.
package diagnostics

import (
	"fmt"
	"runtime"
	"strings"
	"sync"

	"github.com/jaypipes/ghw"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
)

// GPUInfo identifies a graphics card (best-effort).
type GPUInfo struct {
	Name string `json:"name"`
}

// SystemMetrics holds system-wide resource usage.
type SystemMetrics struct {
	CPUModel   string  `json:"cpu_model"`
	CPUCores   int     `json:"cpu_cores"`
	CPUThreads int     `json:"cpu_threads"`
	CPUPercent float64 `json:"cpu_percent"`

	MemTotalMB float64 `json:"mem_total_mb"`
	MemUsedMB  float64 `json:"mem_used_mb"`
	MemPercent float64 `json:"mem_percent"`

	DiskTotalGB float64 `json:"disk_total_gb"`
	DiskUsedGB  float64 `json:"disk_used_gb"`
	DiskPercent float64 `json:"disk_percent"`

	LoadAvg1  float64 `json:"load_avg_1"`
	LoadAvg5  float64 `json:"load_avg_5"`
	LoadAvg15 float64 `json:"load_avg_15"`

	GPUs []GPUInfo `json:"gpus,omitempty"`
}

// Collector gathers system metrics. Hardware identity is cached after the
// first collection.
type Collector struct {
	mu sync.Mutex

	infoCollected bool
	cpuModel      string
	cpuCores      int
	cpuThreads    int
	gpuCache      []GPUInfo
}

// NewCollector creates a metrics collector.
func NewCollector() *Collector {
	return &Collector{}
}

// Collect gathers current system statistics. Individual probe failures leave
// their fields zeroed rather than failing the whole collection.
func (c *Collector) Collect() SystemMetrics {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := SystemMetrics{}
	c.collectHardwareInfo(&stats)
	c.collectMemoryInfo(&stats)
	c.collectCPUInfo(&stats)
	c.collectDiskInfo(&stats)
	c.collectLoadAvg(&stats)
	stats.GPUs = c.gpuCache
	return stats
}

func (c *Collector) collectHardwareInfo(stats *SystemMetrics) {
	if !c.infoCollected {
		c.cpuThreads = runtime.NumCPU()
		if infos, err := cpu.Info(); err == nil && len(infos) > 0 {
			c.cpuModel = infos[0].ModelName
			c.cpuCores = int(infos[0].Cores)
		}
		if c.cpuCores == 0 {
			c.cpuCores = c.cpuThreads
		}
		c.gpuCache = queryGPUs()
		c.infoCollected = true
	}
	stats.CPUModel = c.cpuModel
	stats.CPUCores = c.cpuCores
	stats.CPUThreads = c.cpuThreads
}

func (c *Collector) collectMemoryInfo(stats *SystemMetrics) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return
	}
	stats.MemTotalMB = float64(vm.Total) / 1024 / 1024
	stats.MemUsedMB = float64(vm.Used) / 1024 / 1024
	stats.MemPercent = vm.UsedPercent
}

func (c *Collector) collectCPUInfo(stats *SystemMetrics) {
	percents, err := cpu.Percent(0, false)
	if err != nil || len(percents) == 0 {
		return
	}
	stats.CPUPercent = percents[0]
}

func (c *Collector) collectDiskInfo(stats *SystemMetrics) {
	usage, err := disk.Usage("/")
	if err != nil {
		return
	}
	stats.DiskTotalGB = float64(usage.Total) / 1024 / 1024 / 1024
	stats.DiskUsedGB = float64(usage.Used) / 1024 / 1024 / 1024
	stats.DiskPercent = usage.UsedPercent
}

func (c *Collector) collectLoadAvg(stats *SystemMetrics) {
	if runtime.GOOS == "windows" {
		return
	}
	avg, err := load.Avg()
	if err != nil {
		return
	}
	stats.LoadAvg1 = avg.Load1
	stats.LoadAvg5 = avg.Load5
	stats.LoadAvg15 = avg.Load15
}

func queryGPUs() []GPUInfo {
	info, err := ghw.GPU()
	if err != nil || info == nil || len(info.GraphicsCards) == 0 {
		return nil
	}

	gpus := make([]GPUInfo, 0, len(info.GraphicsCards))
	for _, card := range info.GraphicsCards {
		name := ""
		if card.DeviceInfo != nil {
			switch {
			case card.DeviceInfo.Vendor != nil && card.DeviceInfo.Product != nil:
				name = strings.TrimSpace(card.DeviceInfo.Vendor.Name + " " + card.DeviceInfo.Product.Name)
			case card.DeviceInfo.Product != nil:
				name = strings.TrimSpace(card.DeviceInfo.Product.Name)
			case card.DeviceInfo.Vendor != nil:
				name = strings.TrimSpace(card.DeviceInfo.Vendor.Name)
			}
		}
		if name == "" {
			name = fmt.Sprintf("GPU %d", card.Index)
		}
		gpus = append(gpus, GPUInfo{Name: name})
	}
	return gpus
}
