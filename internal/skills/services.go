// Package skills implements the skill dispatch and permission layer: a
// per-agent registry of named operations seeded from a factory table at
// agent-create time, gated by the agent's permission level.
package skills

import (
	"sync"

	"github.com/batalabs/nexus3d/internal/domain"
)

// GitLabConfig is the subset of GitLab configuration a skill factory
// needs to decide whether it can register at all. Defined here (rather
// than imported from the gitlab package) to avoid a dependency cycle:
// Services is constructed before any skill package, including gitlab's
// own factories, is wired in.
type GitLabConfig interface {
	// HasAnyInstance reports whether at least one GitLab instance is
	// configured, so factories needing it can decline to register
	// cleanly rather than registering a skill that would always error.
	HasAnyInstance() bool
}

// Services is the small, explicit container every skill factory
// receives instead of reaching for module-level globals. It exposes
// exactly the shared state a skill needs: the agent's working
// directory, its permission level, and any optional shared
// configuration (GitLab, etc.). Services holds permission/cwd by value;
// it never holds the Agent or Dispatcher themselves, which would create
// a reference cycle (see DESIGN.md's note on cyclic references).
type Services struct {
	mu sync.RWMutex

	cwd             string
	permissionLevel domain.PermissionLevel
	gitlab          GitLabConfig
}

// NewServices builds a services container for one agent.
func NewServices(cwd string, level domain.PermissionLevel, gitlab GitLabConfig) *Services {
	return &Services{cwd: cwd, permissionLevel: level, gitlab: gitlab}
}

// Cwd returns the agent's working directory.
func (s *Services) Cwd() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cwd
}

// PermissionLevel returns the agent's permission level.
func (s *Services) PermissionLevel() domain.PermissionLevel {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.permissionLevel
}

// GitLab returns the shared GitLab configuration, or nil if GitLab is
// not configured for this process.
func (s *Services) GitLab() GitLabConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gitlab
}
