// Package gitlab implements the GitLab REST API client and skill
// family: the External HTTP Client exemplar named in the core spec.
// Grounded on nugget-thane-ai-agent's forge/github.go (typed REST
// mapping, pagination shape) and httpkit.go (shared client
// construction), batalabs-muxd's provider/errors.go and agent/retry.go
// (APIError/backoff conventions), and the NEXUS3 original's
// skill/vcs/gitlab/{client,base}.py for the exact retry constants and
// resolution order.
package gitlab

import (
	"fmt"
	"os"
)

// Instance is a configured GitLab endpoint: base URL plus a credential
// resolved either directly or from a named environment variable.
type Instance struct {
	Name    string
	Host    string // hostname only, used to match a detected git remote
	URL     string // e.g. https://gitlab.com
	Token   string // direct token, takes priority if set
	TokenEnv string // environment variable name to resolve the token from
}

// ResolveToken returns the instance's credential: the direct token if
// set, else the value of TokenEnv, else an error. This sharpens the core
// spec's "direct token → environment variable → error (401, no token
// configured)" into an exact resolution order.
func (i Instance) ResolveToken() (string, error) {
	if i.Token != "" {
		return i.Token, nil
	}
	if i.TokenEnv != "" {
		if v := os.Getenv(i.TokenEnv); v != "" {
			return v, nil
		}
	}
	return "", fmt.Errorf("no GitLab token configured for instance %q", i.Name)
}

// Config holds every configured GitLab instance plus which one is the
// default when no instance is specified and none can be detected from
// the git remote.
type Config struct {
	Instances map[string]Instance // keyed by Name
	Default   string              // key into Instances
}

// HasAnyInstance satisfies skills.GitLabConfig: it lets skill factories
// decline to register cleanly when GitLab is not configured at all,
// rather than registering a skill that would always error.
func (c *Config) HasAnyInstance() bool {
	return c != nil && len(c.Instances) > 0
}

// GetInstance resolves an instance by name, or the configured default
// if name is empty. Returns false if not found / no default configured.
func (c *Config) GetInstance(name string) (Instance, bool) {
	if c == nil {
		return Instance{}, false
	}
	if name == "" {
		name = c.Default
	}
	if name == "" {
		return Instance{}, false
	}
	inst, ok := c.Instances[name]
	return inst, ok
}

// ByHost finds a configured instance whose Host matches host exactly.
// Used to resolve the instance detected from a git remote URL.
func (c *Config) ByHost(host string) (Instance, bool) {
	if c == nil {
		return Instance{}, false
	}
	for _, inst := range c.Instances {
		if inst.Host == host {
			return inst, true
		}
	}
	return Instance{}, false
}
