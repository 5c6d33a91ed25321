package device

import "github.com/tutu-network/tutu/internal/domain"

// cpuAdapter reports system memory. It is always online — a machine
// without a CPU is not running this program.
type cpuAdapter struct{}

func newCPUAdapter() *cpuAdapter { return &cpuAdapter{} }

func (c *cpuAdapter) Name() string { return "cpu" }

func (c *cpuAdapter) Online() bool { return true }

func (c *cpuAdapter) Snapshot() (domain.DeviceSnapshot, error) {
	total, free, err := readSystemMemory()
	if err != nil {
		return domain.DeviceSnapshot{}, err
	}
	used := total - free
	util := 0.0
	if total > 0 {
		util = float64(used) / float64(total) * 100
	}
	var temp *float64
	if c := readCPUTempC(); c != nil {
		temp = c
	}
	return domain.DeviceSnapshot{
		Kind:         "cpu",
		TotalMB:      total,
		FreeMB:       free,
		UsedMB:       used,
		UtilPercent:  util,
		TemperatureC: temp,
	}, nil
}
