package skills

import (
	"context"
	"strings"
	"testing"

	"github.com/batalabs/nexus3d/internal/domain"
)

type stubSkill struct {
	name     string
	category Category
	result   domain.ToolResult
	calls    int
}

func (s *stubSkill) Name() string                 { return s.name }
func (s *stubSkill) Category() Category            { return s.category }
func (s *stubSkill) Description() string          { return "stub" }
func (s *stubSkill) Parameters() map[string]any   { return nil }
func (s *stubSkill) Execute(ctx context.Context, args map[string]any) domain.ToolResult {
	s.calls++
	return s.result
}

func factoryFor(s *stubSkill) Factory {
	return func(services *Services) (Skill, bool) { return s, true }
}

type alwaysConfirm struct{ allow bool }

func (a alwaysConfirm) Confirm(ctx context.Context, prompt string) (bool, error) {
	return a.allow, nil
}

func TestSandboxedNeverRegistersExecutionSkill(t *testing.T) {
	exec := &stubSkill{name: "bash_safe", category: Execution, result: domain.Success("ran")}
	services := NewServices("/tmp", domain.Sandboxed, nil)
	d := NewDispatcher(services, nil, []Factory{factoryFor(exec)})

	if _, ok := d.Lookup("bash_safe"); ok {
		t.Error("expected execution skill not to be registered for SANDBOXED agent")
	}
	res := d.Execute(context.Background(), "bash_safe", nil)
	if res.OK() || !strings.Contains(res.Error, "unknown tool") {
		t.Errorf("expected unknown-tool error, got %+v", res)
	}
}

func TestTrustedExecutionRequiresConfirmation(t *testing.T) {
	exec := &stubSkill{name: "bash_safe", category: Execution, result: domain.Success("ran")}
	services := NewServices("/tmp", domain.Trusted, nil)

	d := NewDispatcher(services, alwaysConfirm{allow: false}, []Factory{factoryFor(exec)})
	res := d.Execute(context.Background(), "bash_safe", nil)
	if res.OK() {
		t.Fatal("expected declined confirmation to produce an error result")
	}
	if exec.calls != 0 {
		t.Error("skill must not execute when confirmation is declined")
	}

	d2 := NewDispatcher(services, alwaysConfirm{allow: true}, []Factory{factoryFor(exec)})
	res2 := d2.Execute(context.Background(), "bash_safe", nil)
	if !res2.OK() {
		t.Fatalf("expected success after confirmation, got %+v", res2)
	}
}

func TestYOLOSkipsConfirmation(t *testing.T) {
	exec := &stubSkill{name: "bash_safe", category: Execution, result: domain.Success("ran")}
	services := NewServices("/tmp", domain.YOLO, nil)
	d := NewDispatcher(services, nil, []Factory{factoryFor(exec)})

	res := d.Execute(context.Background(), "bash_safe", nil)
	if !res.OK() {
		t.Fatalf("expected success without a confirmer in YOLO mode, got %+v", res)
	}
}

func TestSandboxedRefusesNetworkSkill(t *testing.T) {
	net := &stubSkill{name: "gitlab_issue", category: Network, result: domain.Success("ok")}
	services := NewServices("/tmp", domain.Sandboxed, nil)
	d := NewDispatcher(services, nil, []Factory{factoryFor(net)})

	if _, ok := d.Lookup("gitlab_issue"); !ok {
		t.Fatal("network skills may register at SANDBOXED (registration gate only blocks Execution); dispatch should still refuse")
	}
	res := d.Execute(context.Background(), "gitlab_issue", nil)
	if res.OK() || !strings.Contains(res.Error, "SANDBOXED") {
		t.Errorf("expected SANDBOXED refusal at dispatch time, got %+v", res)
	}
}

func TestSandboxedRefusesWriteOutsideCwdSkill(t *testing.T) {
	write := &stubSkill{name: "write_file", category: WriteOutsideCwd, result: domain.Success("ok")}
	services := NewServices("/tmp", domain.Sandboxed, nil)
	d := NewDispatcher(services, nil, []Factory{factoryFor(write)})

	if _, ok := d.Lookup("write_file"); !ok {
		t.Fatal("write-outside-cwd skills may register at SANDBOXED (registration gate only blocks Execution); dispatch should still refuse")
	}
	res := d.Execute(context.Background(), "write_file", nil)
	if res.OK() || !strings.Contains(res.Error, "SANDBOXED") {
		t.Errorf("expected SANDBOXED refusal at dispatch time, got %+v", res)
	}
	if write.calls != 0 {
		t.Error("skill must not execute when SANDBOXED refuses at dispatch")
	}
}

func TestPromptDescriberOverridesGenericConfirmText(t *testing.T) {
	describing := &describingSkill{stubSkill: stubSkill{name: "write_file", category: WriteOutsideCwd, result: domain.Success("ok")}}
	services := NewServices("/tmp", domain.Trusted, nil)

	var seenPrompt string
	confirmer := promptCapturingConfirmer{capture: &seenPrompt, allow: true}
	d := NewDispatcher(services, confirmer, []Factory{func(services *Services) (Skill, bool) { return describing, true }})

	res := d.Execute(context.Background(), "write_file", map[string]any{"path": "x"})
	if !res.OK() {
		t.Fatalf("expected success, got %+v", res)
	}
	if seenPrompt != "custom prompt for x" {
		t.Errorf("expected the skill's custom prompt to reach the confirmer, got %q", seenPrompt)
	}
}

type describingSkill struct {
	stubSkill
}

func (d *describingSkill) ConfirmPrompt(args map[string]any) string {
	path, _ := args["path"].(string)
	return "custom prompt for " + path
}

type promptCapturingConfirmer struct {
	capture *string
	allow   bool
}

func (c promptCapturingConfirmer) Confirm(ctx context.Context, prompt string) (bool, error) {
	*c.capture = prompt
	return c.allow, nil
}

func TestUnregisteredSkillIsUnknownTool(t *testing.T) {
	services := NewServices("/tmp", domain.YOLO, nil)
	d := NewDispatcher(services, nil, nil)
	res := d.Execute(context.Background(), "nope", nil)
	if res.OK() || !strings.Contains(res.Error, "unknown tool") {
		t.Errorf("expected unknown tool error, got %+v", res)
	}
}

func TestFactoryDeclineIsBestEffort(t *testing.T) {
	declining := func(services *Services) (Skill, bool) { return nil, false }
	services := NewServices("/tmp", domain.YOLO, nil)
	d := NewDispatcher(services, nil, []Factory{declining})
	if len(d.Names()) != 0 {
		t.Errorf("expected no skills registered, got %v", d.Names())
	}
}
