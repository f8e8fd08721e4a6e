// Package subprocess executes commands on behalf of a skill with a
// sanitized environment, a timeout that terminates the whole process
// group (not just the direct child), and a defense-in-depth permission
// check that refuses to spawn anything for a SANDBOXED caller even if
// the skill was mistakenly registered.
package subprocess

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"time"

	"github.com/batalabs/nexus3d/internal/domain"
)

// Mode selects how the command string is interpreted.
type Mode int

const (
	// Argv parses the command with POSIX shell-style tokenization and
	// execs the program directly: no variable expansion, no globbing, no
	// pipes/redirection/chaining. This is the default, safe mode.
	Argv Mode = iota
	// Shell hands the command string to the system shell. Shell
	// operators work; this mode should be registered only for
	// sufficiently privileged agents.
	Shell
)

// Request describes one command execution.
type Request struct {
	Mode Mode
	// Command is tokenized with POSIX shell-style rules in Argv mode, or
	// passed to the system shell verbatim in Shell mode. Ignored if Argv
	// is set directly (e.g. by a caller that already has a literal
	// argument vector and wants to avoid re-tokenizing, such as
	// run_python building its interpreter invocation).
	Command string
	// Argv, if non-empty, is used as the literal argument vector in Argv
	// mode instead of tokenizing Command. Has no effect in Shell mode.
	Argv    []string
	Cwd     string
	Timeout time.Duration
	// PermissionLevel is the calling agent's level, checked before
	// spawning as a defense-in-depth guard independent of whatever
	// registration-time and dispatch-time checks already ran.
	PermissionLevel domain.PermissionLevel
	// SkillName is named in the refusal message so the caller can tell
	// which skill tripped the guard.
	SkillName string
}

const killGrace = time.Second

// Run executes req and returns a ToolResult. It never returns a Go
// error: every failure mode (bad command syntax, timeout, spawn
// failure, SANDBOXED refusal) is reported as a ToolResult error string,
// matching the skill invocation contract.
func Run(ctx context.Context, req Request) domain.ToolResult {
	if req.PermissionLevel == domain.Sandboxed {
		return domain.Failure(fmt.Sprintf(
			"%s is disabled in SANDBOXED mode. This is a defense-in-depth check — "+
				"the skill should not be registered for sandboxed agents.", req.SkillName))
	}

	var argv []string
	if req.Mode == Argv {
		if len(req.Argv) > 0 {
			argv = req.Argv
		} else {
			parsed, err := splitPosixShell(req.Command)
			if err != nil {
				return domain.Failure(fmt.Sprintf("invalid command syntax: %v", err))
			}
			if len(parsed) == 0 {
				return domain.Failure("empty command after parsing")
			}
			argv = parsed
		}
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var cmd *exec.Cmd
	if req.Mode == Argv {
		cmd = exec.Command(argv[0], argv[1:]...)
	} else {
		shell, shellFlag := shellProgram()
		cmd = exec.Command(shell, shellFlag, req.Command)
	}
	cmd.Dir = req.Cwd
	cmd.Env = SafeEnv(req.Cwd)
	setNewProcessGroup(cmd)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return domain.Failure(fmt.Sprintf("failed to start command: %v", err))
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return finish(stdout.String(), stderr.String(), err, false, timeout)
	case <-timer.C:
		killProcessGroup(cmd, killGrace)
		<-done // reap
		return finish(stdout.String(), stderr.String(), nil, true, timeout)
	case <-runCtx.Done():
		killProcessGroup(cmd, killGrace)
		<-done
		return domain.Failure("command cancelled")
	}
}

func finish(stdout, stderr string, waitErr error, timedOut bool, timeout time.Duration) domain.ToolResult {
	if timedOut {
		return domain.Failure(fmt.Sprintf("command timed out after %ds", int(timeout.Seconds())))
	}
	output := stdout
	if stderr != "" {
		output += "\n--- stderr ---\n" + stderr
	}
	if waitErr != nil {
		if exitErr, ok := waitErr.(*exec.ExitError); ok {
			output += fmt.Sprintf("\n(exit code: %d)", exitErr.ExitCode())
			return domain.Success(output)
		}
		return domain.Failure(fmt.Sprintf("command failed: %v", waitErr))
	}
	return domain.Success(output)
}

func shellProgram() (program, flag string) {
	if runtime.GOOS == "windows" {
		return "cmd", "/C"
	}
	return "sh", "-c"
}

// setNewProcessGroup and killProcessGroup are implemented per platform:
// POSIX spawns the child as a process-group leader (PID == PGID) so the whole
// group can be signalled at once (runner_unix.go); Windows has no
// equivalent process-group primitive and falls back to killing the
// direct child (runner_windows.go).
