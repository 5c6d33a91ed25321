//go:build !windows

package process

import (
	"os/exec"
	"syscall"
)

// configureProcessGroup puts the child in its own process group so a
// signal sent to -pid reaches every descendant it spawned, matching the
// teacher's orphan-reaping concern in engine/subprocess.go but applied at
// launch time instead of via pkill afterward.
func configureProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// signalGroup sends SIGTERM to the whole process group (soft termination).
func signalGroup(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	syscall.Kill(-cmd.Process.Pid, syscall.SIGTERM)
}

// killGroup sends SIGKILL to the whole process group (hard termination).
func killGroup(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
}
