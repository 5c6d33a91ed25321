package process

import (
	"os/exec"
	"strconv"
	"syscall"
)

// configureProcessGroup hides the console window and creates a new process
// group, matching the teacher's engine/process_windows.go.
func configureProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		HideWindow:    true,
		CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP,
	}
}

// signalGroup asks the process group to exit via taskkill without /f,
// giving it a chance to shut down cleanly.
func signalGroup(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	exec.Command("taskkill", "/pid", strconv.Itoa(cmd.Process.Pid), "/t").Run() //nolint:errcheck
}

// killGroup forcibly kills the process tree.
func killGroup(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	exec.Command("taskkill", "/f", "/pid", strconv.Itoa(cmd.Process.Pid), "/t").Run() //nolint:errcheck
}
