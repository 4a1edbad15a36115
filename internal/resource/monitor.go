// Package resource implements the Resource Monitor (design §4.C):
// CPU and memory pressure sampling used by the Cooperative Scheduler to
// decide whether it is safe to heat up another task.
package resource

import (
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
)

// Pressure is a coarse memory-pressure bucket.
type Pressure int

const (
	Low Pressure = iota
	Medium
	High
)

func (p Pressure) String() string {
	switch p {
	case Low:
		return "low"
	case Medium:
		return "medium"
	case High:
		return "high"
	default:
		return "unknown"
	}
}

// snapshot is a prior (cpu_time, wall_time) pair, used to compute
// instantaneous CPU usage between samples.
type snapshot struct {
	cpuMS  float64
	wallAt time.Time
}

// Monitor samples CPU and memory pressure and is safe for concurrent
// use (§4.C "Thread-safe").
type Monitor struct {
	mu   sync.Mutex
	prev snapshot

	// highLoadMemPercent is the runtime-provided high-load threshold;
	// Medium/High pressure are 70%/90% of it.
	highLoadMemPercent float64
	logicalCPUs        int

	// cpuTimes lets tests substitute a deterministic CPU-time source.
	cpuTimes func() (float64, error)
	memUsed  func() (float64, error)
}

// New constructs a Monitor. highLoadMemPercent is the operator-provided
// ceiling against which Medium (70%) and High (90%) pressure are
// computed.
func New(highLoadMemPercent float64) *Monitor {
	cpus := runtime.NumCPU()
	if cpus < 1 {
		cpus = 1
	}

	m := &Monitor{
		highLoadMemPercent: highLoadMemPercent,
		logicalCPUs:        cpus,
	}
	m.cpuTimes = m.sampleCPUTimeMS
	m.memUsed = m.sampleMemPercent
	m.prev = snapshot{cpuMS: 0, wallAt: time.Now()}

	if total, err := m.cpuTimes(); err == nil {
		m.prev = snapshot{cpuMS: total, wallAt: time.Now()}
	}

	return m
}

func (m *Monitor) sampleCPUTimeMS() (float64, error) {
	times, err := cpu.Times(false)
	if err != nil || len(times) == 0 {
		return 0, err
	}
	t := times[0]
	busy := t.User + t.System + t.Nice + t.Iowait + t.Irq + t.Softirq + t.Steal
	return busy * 1000, nil
}

func (m *Monitor) sampleMemPercent() (float64, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return 0, err
	}
	return vm.UsedPercent, nil
}

// CPUUsagePercent computes (Δcpu_ms)/(Δwall_ms × logical_cpus) × 100 and
// atomically refreshes the prior snapshot, per §4.C.
func (m *Monitor) CPUUsagePercent() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	cur, err := m.cpuTimes()
	if err != nil {
		return 0
	}

	deltaCPU := cur - m.prev.cpuMS
	deltaWallMS := float64(now.Sub(m.prev.wallAt).Milliseconds())

	m.prev = snapshot{cpuMS: cur, wallAt: now}

	if deltaWallMS <= 0 {
		return 0
	}

	pct := (deltaCPU / (deltaWallMS * float64(m.logicalCPUs))) * 100
	if pct < 0 {
		return 0
	}
	return pct
}

// MemoryPressure classifies the current memory usage into
// Low/Medium/High using 70%/90% of the configured high-load threshold.
func (m *Monitor) MemoryPressure() Pressure {
	used, err := m.memUsed()
	if err != nil {
		return Low
	}

	switch {
	case used >= m.highLoadMemPercent*0.9:
		return High
	case used >= m.highLoadMemPercent*0.7:
		return Medium
	default:
		return Low
	}
}

// HasSufficient reports whether there is enough spare capacity to start
// another task: CPU usage below 80% and memory pressure not High (§4.C).
func (m *Monitor) HasSufficient() bool {
	return m.CPUUsagePercent() < 80 && m.MemoryPressure() != High
}
