// Package fs implements the filesystem-write skill family: privileged
// operations gated under skills.WriteOutsideCwd, each taking a checkpoint
// of the working tree before its confirmation prompt so a declined or
// regretted write can be recovered from the stash commit it left behind.
package fs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/batalabs/nexus3d/internal/checkpoint"
	"github.com/batalabs/nexus3d/internal/domain"
	"github.com/batalabs/nexus3d/internal/skills"
)

// writeFileSkill overwrites (or creates) a file with new content. Writes
// outside the agent's cwd require confirmation at TRUSTED and are refused
// outright at SANDBOXED (the skill still registers there, since
// WriteOutsideCwd is not execution-gated at registration time; the
// dispatcher refuses each invocation instead).
type writeFileSkill struct {
	services *skills.Services
}

func (s *writeFileSkill) Name() string       { return "write_file" }
func (s *writeFileSkill) Category() skills.Category { return skills.WriteOutsideCwd }
func (s *writeFileSkill) Description() string {
	return "Write (create or overwrite) a file, taking a checkpoint of the working tree first"
}

func (s *writeFileSkill) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path":    map[string]any{"type": "string", "description": "File path, relative to the agent's cwd or absolute"},
			"content": map[string]any{"type": "string", "description": "New full content of the file"},
		},
		"required": []string{"path", "content"},
	}
}

func (s *writeFileSkill) resolvePath(args map[string]any) (string, error) {
	path, _ := args["path"].(string)
	if path == "" {
		return "", fmt.Errorf("path is required")
	}
	if filepath.IsAbs(path) {
		return path, nil
	}
	return filepath.Join(s.services.Cwd(), path), nil
}

// ConfirmPrompt implements skills.PromptDescriber: it shows the user a
// diff between the file's current content and the proposed content,
// rather than the dispatcher's generic "Allow write_file to run?" text.
func (s *writeFileSkill) ConfirmPrompt(args map[string]any) string {
	path, err := s.resolvePath(args)
	if err != nil {
		return fmt.Sprintf("Allow write_file to run? (%v)", err)
	}
	newContent, _ := args["content"].(string)
	oldContent := ""
	if existing, err := os.ReadFile(path); err == nil {
		oldContent = string(existing)
	}
	return fmt.Sprintf("Write to %s?\n%s", path, unifiedDiffSummary(oldContent, newContent))
}

// unifiedDiffSummary renders a human-readable diff via go-diff, the same
// library the teacher's go.mod already carries for its TUI diff views.
// diffmatchpatch has no native unified-diff (---/+++/@@) output; its own
// patch text format is used instead, which is what a confirmation prompt
// needs: a readable summary of what would change, not a git-applyable
// patch.
func unifiedDiffSummary(oldContent, newContent string) string {
	if oldContent == newContent {
		return "(no changes)"
	}
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(oldContent, newContent, false)
	diffs = dmp.DiffCleanupSemantic(diffs)
	if oldContent == "" {
		return fmt.Sprintf("(new file, %d bytes)", len(newContent))
	}
	patches := dmp.PatchMake(oldContent, diffs)
	return dmp.PatchToText(patches)
}

// Execute takes a checkpoint of the working tree (best-effort: outside a
// git repo, or with nothing to stash, GitStashCreate returns an empty SHA
// and Execute proceeds anyway — a checkpoint is recovery insurance, not a
// precondition) and then writes the file.
func (s *writeFileSkill) Execute(ctx context.Context, args map[string]any) domain.ToolResult {
	path, err := s.resolvePath(args)
	if err != nil {
		return domain.Failure(err.Error())
	}
	content, ok := args["content"].(string)
	if !ok {
		return domain.Failure("content is required")
	}

	sha, ckErr := checkpoint.GitStashCreate()

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return domain.Failure(fmt.Sprintf("creating parent directories for %s: %v", path, err))
		}
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return domain.Failure(fmt.Sprintf("writing %s: %v", path, err))
	}

	switch {
	case ckErr != nil:
		return domain.Success(fmt.Sprintf("wrote %s (checkpoint unavailable: %v)", path, ckErr))
	case sha == "":
		return domain.Success(fmt.Sprintf("wrote %s (working tree was already clean, no checkpoint needed)", path))
	default:
		return domain.Success(fmt.Sprintf("wrote %s (checkpoint %s)", path, sha))
	}
}

// WriteFileFactory registers write_file unconditionally; SANDBOXED
// agents may register it (WriteOutsideCwd is not registration-gated,
// unlike Execution) but every invocation at SANDBOXED is refused before
// Execute ever runs — see skills.Dispatcher.Execute.
func WriteFileFactory(services *skills.Services) (skills.Skill, bool) {
	return &writeFileSkill{services: services}, true
}
