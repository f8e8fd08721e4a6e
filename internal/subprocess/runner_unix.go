//go:build !windows

package subprocess

import (
	"os/exec"
	"syscall"
	"time"
)

// setNewProcessGroup spawns the child as a process-group leader: its PID
// becomes its process-group ID, so a later signal to -PID reaches every
// descendant the child forks (e.g. a background `sleep` spawned by a
// shell script), not just the direct child.
func setNewProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// killProcessGroup signals the whole process group with SIGTERM, waits a
// short grace period, then sends SIGKILL. It never reads from done —
// the caller owns that channel and is solely responsible for the final
// reap (cmd.Wait), so the group is always force-killed and reaped
// exactly once even if the group exits cleanly partway through grace.
func killProcessGroup(cmd *exec.Cmd, grace time.Duration) {
	if cmd.Process == nil {
		return
	}
	pgid := cmd.Process.Pid
	_ = syscall.Kill(-pgid, syscall.SIGTERM)
	time.Sleep(grace)
	_ = syscall.Kill(-pgid, syscall.SIGKILL)
}
