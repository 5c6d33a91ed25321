package device

import (
	"os/exec"
	"strconv"
	"strings"

	"github.com/tutu-network/tutu/internal/domain"
)

// gpuAdapter reports NVIDIA VRAM via nvidia-smi, falling back to Apple
// unified memory via sysctl on macOS. A machine with neither reports
// offline rather than erroring, so it simply drops out of launch-variant
// selection.
type gpuAdapter struct{}

func newGPUAdapter() *gpuAdapter { return &gpuAdapter{} }

func (g *gpuAdapter) Name() string { return "gpu" }

func (g *gpuAdapter) Online() bool {
	_, _, err := queryNvidiaSMI()
	if err == nil {
		return true
	}
	_, _, err = queryAppleGPU()
	return err == nil
}

func (g *gpuAdapter) Snapshot() (domain.DeviceSnapshot, error) {
	if totalMB, freeMB, err := queryNvidiaSMI(); err == nil {
		return snapshotFromMB(totalMB, freeMB), nil
	}
	if totalMB, freeMB, err := queryAppleGPU(); err == nil {
		return snapshotFromMB(totalMB, freeMB), nil
	}
	return domain.DeviceSnapshot{}, domain.NoUsableDevice("no GPU adapter available")
}

func snapshotFromMB(totalMB, freeMB int64) domain.DeviceSnapshot {
	used := totalMB - freeMB
	util := 0.0
	if totalMB > 0 {
		util = float64(used) / float64(totalMB) * 100
	}
	return domain.DeviceSnapshot{
		Kind:        "gpu",
		TotalMB:     totalMB,
		FreeMB:      freeMB,
		UsedMB:      used,
		UtilPercent: util,
	}
}

// queryNvidiaSMI shells out to nvidia-smi and parses the first GPU's
// total/free VRAM, in the same CSV-parse idiom the pack's llama.cpp
// gateway reference uses.
func queryNvidiaSMI() (totalMB, freeMB int64, err error) {
	out, err := exec.Command("nvidia-smi",
		"--query-gpu=memory.total,memory.free",
		"--format=csv,noheader,nounits").Output()
	if err != nil {
		return 0, 0, err
	}
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	if len(lines) == 0 {
		return 0, 0, domain.NoUsableDevice("nvidia-smi returned no rows")
	}
	fields := strings.Split(lines[0], ",")
	if len(fields) != 2 {
		return 0, 0, domain.NoUsableDevice("unexpected nvidia-smi output")
	}
	totalMB, _ = strconv.ParseInt(strings.TrimSpace(fields[0]), 10, 64)
	freeMB, _ = strconv.ParseInt(strings.TrimSpace(fields[1]), 10, 64)
	return totalMB, freeMB, nil
}

// queryAppleGPU uses unified memory size as a VRAM proxy on Apple Silicon,
// where the GPU shares system RAM.
func queryAppleGPU() (totalMB, freeMB int64, err error) {
	out, err := exec.Command("sysctl", "-n", "hw.memsize").Output()
	if err != nil {
		return 0, 0, err
	}
	bytes, err := strconv.ParseInt(strings.TrimSpace(string(out)), 10, 64)
	if err != nil {
		return 0, 0, err
	}
	totalMB = bytes / (1024 * 1024)
	return totalMB, totalMB, nil
}
