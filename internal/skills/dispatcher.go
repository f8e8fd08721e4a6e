package skills

import (
	"context"
	"fmt"

	"github.com/batalabs/nexus3d/internal/domain"
)

// Dispatcher resolves a tool-call request (name + argument object) to a
// registered skill, enforces the permission table, and returns the
// ToolResult. One Dispatcher per Agent, seeded at agent-create time from
// a skill-factory table.
type Dispatcher struct {
	services *Services
	confirm  Confirmer
	skills   map[string]Skill
}

// NewDispatcher registers every factory in factories against services,
// skipping any that decline (best-effort registration) or whose
// category is refused at this permission level (the SANDBOXED
// execution-skill gate).
func NewDispatcher(services *Services, confirm Confirmer, factories []Factory) *Dispatcher {
	d := &Dispatcher{
		services: services,
		confirm:  confirm,
		skills:   make(map[string]Skill),
	}
	level := services.PermissionLevel()
	for _, factory := range factories {
		skill, ok := factory(services)
		if !ok || skill == nil {
			continue
		}
		if !skill.Category().CanRegister(level) {
			continue
		}
		d.skills[skill.Name()] = skill
	}
	return d
}

// Names returns the registered skill names.
func (d *Dispatcher) Names() []string {
	names := make([]string, 0, len(d.skills))
	for name := range d.skills {
		names = append(names, name)
	}
	return names
}

// Lookup returns the registered skill by name, if any.
func (d *Dispatcher) Lookup(name string) (Skill, bool) {
	s, ok := d.skills[name]
	return s, ok
}

// Execute invokes the named skill with args, applying the permission
// table's confirmation gate first. It never panics and never returns a
// Go error distinguishable from a refusal: both are reported through
// ToolResult, matching the invocation contract in §4.3.
func (d *Dispatcher) Execute(ctx context.Context, name string, args map[string]any) domain.ToolResult {
	skill, ok := d.skills[name]
	if !ok {
		return domain.Failure(fmt.Sprintf("unknown tool: %s", name))
	}

	level := d.services.PermissionLevel()
	if level == domain.Sandboxed {
		switch skill.Category() {
		case Network:
			return domain.Failure(fmt.Sprintf(
				"%s is disabled in SANDBOXED mode: network-using skills are not permitted.", name))
		case WriteOutsideCwd:
			return domain.Failure(fmt.Sprintf(
				"%s is disabled in SANDBOXED mode: filesystem writes outside cwd are not permitted.", name))
		}
	}

	if skill.Category().RequiresConfirmation(level) {
		if d.confirm == nil {
			return domain.Failure(fmt.Sprintf("%s requires confirmation but no confirmation prompt is available", name))
		}
		prompt := fmt.Sprintf("Allow %s to run?", name)
		if describer, ok := skill.(PromptDescriber); ok {
			prompt = describer.ConfirmPrompt(args)
		}
		ok, err := d.confirm.Confirm(ctx, prompt)
		if err != nil {
			return domain.Failure(fmt.Sprintf("confirmation failed: %v", err))
		}
		if !ok {
			return domain.Failure(fmt.Sprintf("%s was declined by the user", name))
		}
	}

	select {
	case <-ctx.Done():
		return domain.Failure("cancelled")
	default:
	}

	return skill.Execute(ctx, args)
}
