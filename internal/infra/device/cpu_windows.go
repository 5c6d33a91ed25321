//go:build windows

package device

import (
	"os/exec"
	"strconv"
	"strings"
)

// readSystemMemory reads total/free physical memory via WMI, matching the
// teacher's PowerShell-shellout idiom in sensors_windows.go.
func readSystemMemory() (totalMB, freeMB int64, err error) {
	out, err := exec.Command("powershell", "-NoProfile", "-Command",
		`$os = Get-CimInstance Win32_OperatingSystem; "$($os.TotalVisibleMemorySize),$($os.FreePhysicalMemory)"`).Output()
	if err != nil {
		return 0, 0, err
	}
	parts := strings.Split(strings.TrimSpace(string(out)), ",")
	if len(parts) != 2 {
		return 0, 0, err
	}
	totalKB, _ := strconv.ParseInt(parts[0], 10, 64)
	freeKB, _ := strconv.ParseInt(parts[1], 10, 64)
	return totalKB / 1024, freeKB / 1024, nil
}

// readCPUTempC reads the ACPI thermal zone via WMI, matching
// sensors_windows.go. Returns nil if unavailable.
func readCPUTempC() *float64 {
	out, err := exec.Command("powershell", "-NoProfile", "-Command",
		`Get-CimInstance MSAcpi_ThermalZoneTemperature -Namespace root/wmi -ErrorAction SilentlyContinue | Select-Object -First 1 -ExpandProperty CurrentTemperature`).Output()
	if err != nil {
		return nil
	}
	tenthsKelvin, err := strconv.ParseInt(strings.TrimSpace(string(out)), 10, 64)
	if err != nil {
		return nil
	}
	c := float64(tenthsKelvin)/10 - 273.15
	if c < -50 || c > 150 {
		return nil
	}
	return &c
}
