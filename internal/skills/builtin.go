package skills

import (
	"context"
	"os/exec"
	"time"

	"github.com/batalabs/nexus3d/internal/domain"
	"github.com/batalabs/nexus3d/internal/subprocess"
)

const (
	defaultExecTimeout = 30 * time.Second
	maxExecTimeout     = 300 * time.Second
)

func execTimeout(args map[string]any) time.Duration {
	v, ok := args["timeout"].(float64)
	if !ok || v <= 0 {
		return defaultExecTimeout
	}
	d := time.Duration(v) * time.Second
	if d > maxExecTimeout {
		return maxExecTimeout
	}
	return d
}

func execCwd(args map[string]any, fallback string) string {
	if v, ok := args["cwd"].(string); ok && v != "" {
		return v
	}
	return fallback
}

// bashSafeSkill runs a command with POSIX shell-style tokenization and
// no shell interpretation: shell operators like |, &&, > do not work.
type bashSafeSkill struct{ services *Services }

func (s *bashSafeSkill) Name() string        { return "bash_safe" }
func (s *bashSafeSkill) Category() Category  { return Execution }
func (s *bashSafeSkill) Description() string {
	return "Execute a command safely (no shell operators like | && >)"
}
func (s *bashSafeSkill) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"command": map[string]any{"type": "string", "description": "Command to execute (shell operators like | && > do NOT work)"},
			"timeout": map[string]any{"type": "integer", "description": "Timeout in seconds (default: 30, max: 300)"},
			"cwd":     map[string]any{"type": "string", "description": "Working directory for command (default: current)"},
		},
		"required": []string{"command"},
	}
}

func (s *bashSafeSkill) Execute(ctx context.Context, args map[string]any) domain.ToolResult {
	command, _ := args["command"].(string)
	if command == "" {
		return domain.Failure("command is required")
	}
	return subprocess.Run(ctx, subprocess.Request{
		Mode:            subprocess.Argv,
		Command:         command,
		Cwd:             execCwd(args, s.services.Cwd()),
		Timeout:         execTimeout(args),
		PermissionLevel: s.services.PermissionLevel(),
		SkillName:       s.Name(),
	})
}

// BashSafeFactory registers bash_safe for any non-SANDBOXED agent.
func BashSafeFactory(services *Services) (Skill, bool) {
	return &bashSafeSkill{services: services}, true
}

// shellUnsafeSkill hands the command to the system shell: shell
// operators work, but the skill is vulnerable to injection if the
// command string is not fully trusted. The name is intentionally
// alarming.
type shellUnsafeSkill struct{ services *Services }

func (s *shellUnsafeSkill) Name() string       { return "shell_UNSAFE" }
func (s *shellUnsafeSkill) Category() Category { return Execution }
func (s *shellUnsafeSkill) Description() string {
	return "Execute shell command with full shell features (pipes, redirects) - USE WITH CAUTION"
}
func (s *shellUnsafeSkill) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"command": map[string]any{"type": "string", "description": "Shell command (supports | && > etc. but UNSAFE with untrusted input)"},
			"timeout": map[string]any{"type": "integer", "description": "Timeout in seconds (default: 30, max: 300)"},
			"cwd":     map[string]any{"type": "string", "description": "Working directory for command (default: current)"},
		},
		"required": []string{"command"},
	}
}

func (s *shellUnsafeSkill) Execute(ctx context.Context, args map[string]any) domain.ToolResult {
	command, _ := args["command"].(string)
	if command == "" {
		return domain.Failure("command is required")
	}
	return subprocess.Run(ctx, subprocess.Request{
		Mode:            subprocess.Shell,
		Command:         command,
		Cwd:             execCwd(args, s.services.Cwd()),
		Timeout:         execTimeout(args),
		PermissionLevel: s.services.PermissionLevel(),
		SkillName:       s.Name(),
	})
}

// ShellUnsafeFactory registers shell_UNSAFE for any non-SANDBOXED agent.
func ShellUnsafeFactory(services *Services) (Skill, bool) {
	return &shellUnsafeSkill{services: services}, true
}

// runPythonSkill runs a Python snippet through the interpreter on PATH,
// under the identical permission/sandboxing/env-sanitization contract
// as bash_safe. Restored from the original NEXUS3 source's run_python
// builtin skill, which the distilled spec's System Overview diagram
// names directly ("Subprocess Runner (bash/python)") but never details.
type runPythonSkill struct{ services *Services }

func (s *runPythonSkill) Name() string       { return "run_python" }
func (s *runPythonSkill) Category() Category { return Execution }
func (s *runPythonSkill) Description() string {
	return "Run a Python snippet with the interpreter on PATH, sandboxed identically to bash_safe"
}
func (s *runPythonSkill) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"code":    map[string]any{"type": "string", "description": "Python source to execute"},
			"timeout": map[string]any{"type": "integer", "description": "Timeout in seconds (default: 30, max: 300)"},
			"cwd":     map[string]any{"type": "string", "description": "Working directory (default: current)"},
		},
		"required": []string{"code"},
	}
}

func (s *runPythonSkill) Execute(ctx context.Context, args map[string]any) domain.ToolResult {
	code, _ := args["code"].(string)
	if code == "" {
		return domain.Failure("code is required")
	}
	interp := pythonInterpreter()
	if interp == "" {
		return domain.Failure("no python interpreter found on PATH")
	}
	return subprocess.Run(ctx, subprocess.Request{
		Mode:            subprocess.Argv,
		Argv:            []string{interp, "-c", code},
		Cwd:             execCwd(args, s.services.Cwd()),
		Timeout:         execTimeout(args),
		PermissionLevel: s.services.PermissionLevel(),
		SkillName:       s.Name(),
	})
}

func pythonInterpreter() string {
	for _, name := range []string{"python3", "python"} {
		if p, err := exec.LookPath(name); err == nil {
			return p
		}
	}
	return ""
}

// RunPythonFactory registers run_python for any non-SANDBOXED agent.
func RunPythonFactory(services *Services) (Skill, bool) {
	return &runPythonSkill{services: services}, true
}

// DefaultFactories is the built-in skill-factory table wired into every
// new Dispatcher, excluding skills that require optional configuration
// (e.g. GitLab) which are appended separately by the caller.
func DefaultFactories() []Factory {
	return []Factory{BashSafeFactory, ShellUnsafeFactory, RunPythonFactory}
}
