//go:build windows

package subprocess

import (
	"os/exec"
	"time"
)

// setNewProcessGroup is a no-op on Windows: there is no SysProcAttr
// field equivalent to POSIX's Setpgid, and job-object based group
// management is out of scope for this runtime. Windows callers get
// direct-child termination only.
func setNewProcessGroup(cmd *exec.Cmd) {}

// killProcessGroup kills the direct child. Descendant processes spawned
// by cmd.exe chains are not guaranteed to be terminated on Windows
// without a job object, which this runtime does not set up.
func killProcessGroup(cmd *exec.Cmd, grace time.Duration) {
	if cmd.Process == nil {
		return
	}
	_ = cmd.Process.Kill()
}
