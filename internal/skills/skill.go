package skills

import (
	"context"

	"github.com/batalabs/nexus3d/internal/domain"
)

// Category classifies what kind of privileged operation a skill
// performs, driving the permission table in §4.3: filesystem writes
// outside cwd, arbitrary command execution, and network-using external
// skills are each gated differently across SANDBOXED/TRUSTED/YOLO.
type Category int

const (
	// Read covers operations with no privilege implications: reading
	// files inside cwd, in-memory computation. Always allowed.
	Read Category = iota
	// WriteOutsideCwd covers filesystem writes outside the agent's
	// working directory.
	WriteOutsideCwd
	// Execution covers arbitrary command execution (the Subprocess
	// Runner skills).
	Execution
	// Network covers network-using external skills (e.g. the GitLab
	// family).
	Network
)

// CanRegister reports whether a skill of this category may be
// registered at all for the given permission level. SANDBOXED must not
// register any execution skill; this is the registration-time half of
// the defense-in-depth check described in §9 (the Subprocess Runner
// itself re-checks at dispatch time regardless of this gate).
func (c Category) CanRegister(level domain.PermissionLevel) bool {
	if c == Execution {
		return level.AllowsExecution()
	}
	return true
}

// RequiresConfirmation reports whether invoking a skill of this
// category at the given level needs a confirmation prompt before
// running, per the §4.3 permission table. SANDBOXED never reaches this
// for a gated category: it never registers Execution skills, and
// Dispatcher.Execute refuses WriteOutsideCwd and Network skills there first.
func (c Category) RequiresConfirmation(level domain.PermissionLevel) bool {
	switch c {
	case WriteOutsideCwd, Execution:
		return level.RequiresConfirmation()
	default:
		return false
	}
}

// Skill is an addressable operation with a stable name, a declared
// JSON-shaped parameter schema, and an execute contract that returns a
// ToolResult without raising. Implementations must be cancellable:
// long-running work should check ctx and abandon at the next
// suspension point.
type Skill interface {
	Name() string
	Description() string
	Category() Category
	// Parameters returns a JSON-Schema-like descriptor of the skill's
	// arguments (kept as data, per §9, rather than a generated type).
	Parameters() map[string]any
	Execute(ctx context.Context, args map[string]any) domain.ToolResult
}

// Factory builds a Skill for one agent's Services. It returns
// (nil, false) when the current configuration lacks a capability the
// skill needs (e.g. no GitLab instance configured) — registration is
// best-effort, not an error.
type Factory func(services *Services) (Skill, bool)

// Confirmer prompts the user for a yes/no confirmation before a
// privileged operation proceeds. Supplied by the REPL/TUI collaborator;
// the dispatcher does not implement terminal I/O itself.
type Confirmer interface {
	Confirm(ctx context.Context, prompt string) (bool, error)
}

// PromptDescriber lets a skill replace the dispatcher's generic "Allow
// <name> to run?" confirmation text with one built from its own
// arguments (e.g. a file-write skill showing the diff it is about to
// apply). Optional: skills that don't implement it get the generic text.
type PromptDescriber interface {
	ConfirmPrompt(args map[string]any) string
}
