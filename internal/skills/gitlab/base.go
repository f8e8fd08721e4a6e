package gitlab

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/batalabs/nexus3d/internal/domain"
	"github.com/batalabs/nexus3d/internal/skills"
	"github.com/batalabs/nexus3d/internal/subprocess"
)

const remoteDetectTimeout = 5 * time.Second

// Base gives every GitLab skill instance resolution (explicit name, then
// git-remote detection, then configured default), project-path resolution
// from the same git remote, and a cached Client per instance host.
type Base struct {
	services *skills.Services
	config   *Config

	mu      sync.Mutex
	clients map[string]*Client
}

// NewBase constructs the shared GitLab skill base. Returns false if no
// instance is configured at all, letting factories decline to register.
func NewBase(services *skills.Services) (*Base, bool) {
	cfg, ok := services.GitLab().(*Config)
	if !ok || !cfg.HasAnyInstance() {
		return nil, false
	}
	return &Base{services: services, config: cfg, clients: map[string]*Client{}}, true
}

// resolveInstance picks the GitLab instance to target: explicit name,
// else detected from the working directory's git remote, else the
// configured default.
func (b *Base) resolveInstance(ctx context.Context, explicit string) (Instance, error) {
	if explicit != "" {
		inst, ok := b.config.GetInstance(explicit)
		if !ok {
			return Instance{}, fmt.Errorf("GitLab instance %q not configured", explicit)
		}
		return inst, nil
	}

	if remote, err := b.remoteURL(ctx); err == nil {
		if host := extractHost(remote); host != "" {
			if inst, ok := b.config.ByHost(host); ok {
				return inst, nil
			}
		}
	}

	inst, ok := b.config.GetInstance("")
	if !ok {
		return Instance{}, fmt.Errorf("no GitLab instance configured")
	}
	return inst, nil
}

// resolveProject returns project, if given, else the project path
// detected from the working directory's git remote.
func (b *Base) resolveProject(ctx context.Context, project string) (string, error) {
	if project != "" {
		return project, nil
	}
	remote, err := b.remoteURL(ctx)
	if err != nil {
		return "", fmt.Errorf("no project specified and could not detect from git remote: %w", err)
	}
	path := extractProjectPath(remote)
	if path == "" {
		return "", fmt.Errorf("no project specified and could not parse git remote %q", remote)
	}
	return path, nil
}

// remoteURL runs `git remote get-url origin` through the sandboxed
// subprocess runner rather than a raw exec.Command, so the same
// argv-mode, env-sanitizing, timeout-enforcing path backs every process
// this runtime spawns.
func (b *Base) remoteURL(ctx context.Context) (string, error) {
	result := subprocess.Run(ctx, subprocess.Request{
		Mode:            subprocess.Argv,
		Argv:            []string{"git", "remote", "get-url", "origin"},
		Cwd:             b.services.Cwd(),
		Timeout:         remoteDetectTimeout,
		PermissionLevel: domain.YOLO,
		SkillName:       "gitlab._detect_remote",
	})
	if !result.OK() {
		return "", fmt.Errorf("%s", result.Error)
	}
	return strings.TrimSpace(result.Output), nil
}

// extractHost pulls the hostname out of either SSH (git@host:group/repo.git)
// or HTTPS (https://host/group/repo.git) remote URL forms.
func extractHost(remote string) string {
	if strings.HasPrefix(remote, "git@") {
		rest := strings.TrimPrefix(remote, "git@")
		if i := strings.Index(rest, ":"); i >= 0 {
			return rest[:i]
		}
		return rest
	}
	for _, prefix := range []string{"https://", "http://"} {
		if strings.HasPrefix(remote, prefix) {
			rest := strings.TrimPrefix(remote, prefix)
			if i := strings.Index(rest, "/"); i >= 0 {
				return rest[:i]
			}
			return rest
		}
	}
	return ""
}

// extractProjectPath pulls the "group/sub/repo" path out of either
// remote URL form, stripping a trailing ".git".
func extractProjectPath(remote string) string {
	var path string
	if strings.HasPrefix(remote, "git@") {
		rest := strings.TrimPrefix(remote, "git@")
		if i := strings.Index(rest, ":"); i >= 0 {
			path = rest[i+1:]
		}
	} else {
		for _, prefix := range []string{"https://", "http://"} {
			if strings.HasPrefix(remote, prefix) {
				rest := strings.TrimPrefix(remote, prefix)
				if i := strings.Index(rest, "/"); i >= 0 {
					path = rest[i+1:]
				}
			}
		}
	}
	path = strings.Trim(path, "/")
	path = strings.TrimSuffix(path, ".git")
	return path
}

// client returns the cached Client for instance, creating one on first
// use. Clients are keyed by host, not name, since distinct config names
// pointing at the same host should share one connection.
func (b *Base) client(instance Instance) (*Client, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if c, ok := b.clients[instance.Host]; ok {
		return c, nil
	}
	c, err := NewClient(instance)
	if err != nil {
		return nil, err
	}
	b.clients[instance.Host] = c
	return c, nil
}

// Dispatch resolves the instance named by args["instance"], obtains its
// Client, and hands both to fn — the shared entrypoint every GitLab
// skill's Execute method funnels through, translating errors uniformly
// into domain.ToolResult.
func (b *Base) Dispatch(ctx context.Context, args map[string]any, fn func(ctx context.Context, c *Client, project string) domain.ToolResult) domain.ToolResult {
	instanceName, _ := args["instance"].(string)
	instance, err := b.resolveInstance(ctx, instanceName)
	if err != nil {
		return domain.Failure(err.Error())
	}
	client, err := b.client(instance)
	if err != nil {
		return domain.Failure(err.Error())
	}

	projectArg, _ := args["project"].(string)
	project, err := b.resolveProject(ctx, projectArg)
	if err != nil {
		// Not every operation needs a project (e.g. get_current_user);
		// callers that require one check for an empty string themselves.
		project = ""
	}

	return fn(ctx, client, project)
}
