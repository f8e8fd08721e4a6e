package gitlab

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/batalabs/nexus3d/internal/domain"
	"github.com/batalabs/nexus3d/internal/skills"
)

// resourceConfig describes one member of the GitLab catalogue beyond the
// two fully-built skills (issue, mr): a list/get/create/delete shape over
// a REST sub-resource. Every config trades the hand-tuned formatting of
// issueSkill/mrSkill for a uniform generic one — intentionally reduced
// depth, acceptable because these are secondary operations relative to
// the issue/merge-request workflow the core spec calls out by name.
type resourceConfig struct {
	skillName      string
	description    string
	groupScoped    bool // true: "project" argument is actually a group path (epic, iteration)
	listPath       func(scope string) string
	itemPath       func(scope, id string) string // for get/delete; empty id allowed when not needed
	idParam        string                         // arg name carrying the item id, e.g. "branch_name"
	createFields   []string                       // arg names copied verbatim into the POST body
	supportsCreate bool
	supportsDelete bool
}

var catalogue = []resourceConfig{
	{
		skillName:   "gitlab_repo",
		description: "Look up GitLab project (repository) metadata, or search projects by name.",
		listPath:    func(string) string { return "/projects" },
		itemPath:    func(scope, _ string) string { return "/projects/" + scope },
	},
	{
		skillName:      "gitlab_branch",
		description:    "List, view, create, and delete GitLab repository branches.",
		listPath:       func(scope string) string { return "/projects/" + scope + "/repository/branches" },
		itemPath:       func(scope, id string) string { return "/projects/" + scope + "/repository/branches/" + url.PathEscape(id) },
		idParam:        "branch",
		createFields:   []string{"branch", "ref"},
		supportsCreate: true,
		supportsDelete: true,
	},
	{
		skillName:      "gitlab_tag",
		description:    "List, view, create, and delete GitLab repository tags.",
		listPath:       func(scope string) string { return "/projects/" + scope + "/repository/tags" },
		itemPath:       func(scope, id string) string { return "/projects/" + scope + "/repository/tags/" + url.PathEscape(id) },
		idParam:        "tag_name",
		createFields:   []string{"tag_name", "ref", "message"},
		supportsCreate: true,
		supportsDelete: true,
	},
	{
		skillName:      "gitlab_label",
		description:    "List, view, create, and delete GitLab project labels.",
		listPath:       func(scope string) string { return "/projects/" + scope + "/labels" },
		itemPath:       func(scope, id string) string { return "/projects/" + scope + "/labels/" + url.PathEscape(id) },
		idParam:        "name",
		createFields:   []string{"name", "color", "description"},
		supportsCreate: true,
		supportsDelete: true,
	},
	{
		skillName:      "gitlab_milestone",
		description:    "List, view, create, and delete GitLab project milestones.",
		listPath:       func(scope string) string { return "/projects/" + scope + "/milestones" },
		itemPath:       func(scope, id string) string { return "/projects/" + scope + "/milestones/" + id },
		idParam:        "milestone_id",
		createFields:   []string{"title", "description", "due_date"},
		supportsCreate: true,
		supportsDelete: true,
	},
	{
		skillName:      "gitlab_epic",
		description:    "List, view, and create GitLab group epics. The project argument names the group path.",
		groupScoped:    true,
		listPath:       func(scope string) string { return "/groups/" + scope + "/epics" },
		itemPath:       func(scope, id string) string { return "/groups/" + scope + "/epics/" + id },
		idParam:        "epic_iid",
		createFields:   []string{"title", "description"},
		supportsCreate: true,
	},
	{
		skillName:   "gitlab_iteration",
		description: "List GitLab group iterations (cadences). The project argument names the group path.",
		groupScoped: true,
		listPath:    func(scope string) string { return "/groups/" + scope + "/iterations" },
	},
	{
		skillName:   "gitlab_board",
		description: "List and view GitLab project issue boards.",
		listPath:    func(scope string) string { return "/projects/" + scope + "/boards" },
		itemPath:    func(scope, id string) string { return "/projects/" + scope + "/boards/" + id },
		idParam:     "board_id",
	},
	{
		skillName:   "gitlab_time",
		description: "View time-tracking stats for a GitLab issue (project argument plus iid).",
		itemPath:    func(scope, id string) string { return "/projects/" + scope + "/issues/" + id + "/time_stats" },
		idParam:     "iid",
	},
	{
		skillName:      "gitlab_approval",
		description:    "View merge request approvals.",
		itemPath:       func(scope, id string) string { return "/projects/" + scope + "/merge_requests/" + id + "/approvals" },
		idParam:        "iid",
		createFields:   []string{},
		supportsCreate: false,
	},
	{
		skillName:      "gitlab_draft",
		description:    "List, view, create, and delete merge request draft notes.",
		listPath:       func(scope string) string { return scope },
		itemPath:       func(scope, id string) string { return scope + "/" + id },
		idParam:        "draft_note_id",
		createFields:   []string{"note"},
		supportsCreate: true,
		supportsDelete: true,
	},
	{
		skillName:      "gitlab_discussion",
		description:    "List, view, and create threaded discussions on a GitLab issue or merge request.",
		listPath:       func(scope string) string { return scope },
		itemPath:       func(scope, id string) string { return scope + "/" + id },
		idParam:        "discussion_id",
		createFields:   []string{"body"},
		supportsCreate: true,
	},
	{
		skillName:   "gitlab_pipeline",
		description: "List, view, and trigger GitLab CI pipelines.",
		listPath:    func(scope string) string { return "/projects/" + scope + "/pipelines" },
		itemPath:    func(scope, id string) string { return "/projects/" + scope + "/pipelines/" + id },
		idParam:         "pipeline_id",
		createFields:    []string{"ref"},
		supportsCreate:  true,
	},
	{
		skillName:   "gitlab_job",
		description: "List and view GitLab CI jobs within a pipeline.",
		listPath:    func(scope string) string { return "/projects/" + scope + "/jobs" },
		itemPath:    func(scope, id string) string { return "/projects/" + scope + "/jobs/" + id },
		idParam:     "job_id",
	},
	{
		skillName:   "gitlab_artifact",
		description: "List CI job artifacts and fetch an artifact archive's metadata.",
		listPath:    func(scope string) string { return "/projects/" + scope + "/jobs" },
		itemPath:    func(scope, id string) string { return "/projects/" + scope + "/jobs/" + id + "/artifacts" },
		idParam:     "job_id",
	},
	{
		skillName:      "gitlab_variable",
		description:    "List, view, create, and delete GitLab CI/CD project variables.",
		listPath:       func(scope string) string { return "/projects/" + scope + "/variables" },
		itemPath:       func(scope, id string) string { return "/projects/" + scope + "/variables/" + url.PathEscape(id) },
		idParam:        "key",
		createFields:   []string{"key", "value", "protected", "masked"},
		supportsCreate: true,
		supportsDelete: true,
	},
	{
		skillName:      "gitlab_deploy_key",
		description:    "List, view, create, and delete GitLab project deploy keys.",
		listPath:       func(scope string) string { return "/projects/" + scope + "/deploy_keys" },
		itemPath:       func(scope, id string) string { return "/projects/" + scope + "/deploy_keys/" + id },
		idParam:        "key_id",
		createFields:   []string{"title", "key", "can_push"},
		supportsCreate: true,
		supportsDelete: true,
	},
	{
		skillName:      "gitlab_deploy_token",
		description:    "List, create, and revoke GitLab project deploy tokens.",
		listPath:       func(scope string) string { return "/projects/" + scope + "/deploy_tokens" },
		itemPath:       func(scope, id string) string { return "/projects/" + scope + "/deploy_tokens/" + id },
		idParam:        "token_id",
		createFields:   []string{"name", "scopes", "expires_at"},
		supportsCreate: true,
		supportsDelete: true,
	},
	{
		skillName:      "gitlab_feature_flag",
		description:    "List, view, create, and delete GitLab project feature flags.",
		listPath:       func(scope string) string { return "/projects/" + scope + "/feature_flags" },
		itemPath:       func(scope, id string) string { return "/projects/" + scope + "/feature_flags/" + url.PathEscape(id) },
		idParam:        "name",
		createFields:   []string{"name", "version", "active"},
		supportsCreate: true,
		supportsDelete: true,
	},
}

// catalogueSkill is the generic resource skill every resourceConfig is
// rendered through.
type catalogueSkill struct {
	base *Base
	cfg  resourceConfig
}

// CatalogueFactories returns one Factory per entry in the GitLab
// resource catalogue, each registering independently.
func CatalogueFactories() []skills.Factory {
	factories := make([]skills.Factory, 0, len(catalogue))
	for _, cfg := range catalogue {
		cfg := cfg
		factories = append(factories, func(services *skills.Services) (skills.Skill, bool) {
			base, ok := NewBase(services)
			if !ok {
				return nil, false
			}
			return &catalogueSkill{base: base, cfg: cfg}, true
		})
	}
	return factories
}

func (s *catalogueSkill) Name() string        { return s.cfg.skillName }
func (s *catalogueSkill) Description() string { return s.cfg.description }
func (s *catalogueSkill) Category() skills.Category { return skills.Network }

func (s *catalogueSkill) Parameters() map[string]any {
	actions := []string{}
	if s.cfg.listPath != nil {
		actions = append(actions, "list")
	}
	if s.cfg.itemPath != nil {
		actions = append(actions, "get")
	}
	if s.cfg.supportsCreate {
		actions = append(actions, "create")
	}
	if s.cfg.supportsDelete {
		actions = append(actions, "delete")
	}

	props := map[string]any{
		"action":   map[string]any{"type": "string", "enum": actions},
		"instance": map[string]any{"type": "string"},
		"project":  map[string]any{"type": "string", "description": "Project (or group, for epics/iterations) path. Auto-detected from git remote if omitted."},
		"limit":    map[string]any{"type": "integer"},
	}
	if s.cfg.idParam != "" {
		props[s.cfg.idParam] = map[string]any{"type": "string", "description": "Identifier for get/delete"}
	}
	for _, f := range s.cfg.createFields {
		if _, exists := props[f]; !exists {
			props[f] = map[string]any{"description": "create field"}
		}
	}

	return map[string]any{
		"type":       "object",
		"properties": props,
		"required":   []string{"action"},
	}
}

func (s *catalogueSkill) Execute(ctx context.Context, args map[string]any) domain.ToolResult {
	action, _ := args["action"].(string)
	if action == "" {
		return domain.Failure("action parameter required")
	}

	return s.base.Dispatch(ctx, args, func(ctx context.Context, c *Client, project string) domain.ToolResult {
		scope := project
		if raw, _ := args["project"].(string); raw != "" {
			scope = raw
		}
		if scope == "" {
			return domain.Failure("no project specified and could not detect from git remote")
		}
		scope = encodePath(scope)

		switch action {
		case "list":
			if s.cfg.listPath == nil {
				return domain.Failure("list is not supported for " + s.cfg.skillName)
			}
			return s.list(ctx, c, scope, args)
		case "get":
			if s.cfg.itemPath == nil {
				return domain.Failure("get is not supported for " + s.cfg.skillName)
			}
			id, err := s.requireID(args)
			if err != nil {
				return domain.Failure(err.Error())
			}
			result, err := c.Get(ctx, s.cfg.itemPath(scope, id), nil)
			if err != nil {
				return domain.Failure(err.Error())
			}
			return domain.Success(formatGeneric(result))
		case "create":
			if !s.cfg.supportsCreate {
				return domain.Failure("create is not supported for " + s.cfg.skillName)
			}
			body := map[string]any{}
			for _, f := range s.cfg.createFields {
				if v, ok := args[f]; ok {
					body[f] = v
				}
			}
			path := scope
			if s.cfg.listPath != nil {
				path = s.cfg.listPath(scope)
			}
			result, err := c.Post(ctx, path, body)
			if err != nil {
				return domain.Failure(err.Error())
			}
			return domain.Success("Created.\n" + formatGeneric(result))
		case "delete":
			if !s.cfg.supportsDelete {
				return domain.Failure("delete is not supported for " + s.cfg.skillName)
			}
			id, err := s.requireID(args)
			if err != nil {
				return domain.Failure(err.Error())
			}
			_, err = c.Delete(ctx, s.cfg.itemPath(scope, id))
			if err != nil {
				return domain.Failure(err.Error())
			}
			return domain.Success("Deleted " + id)
		default:
			return domain.Failure(fmt.Sprintf("unknown action: %s", action))
		}
	})
}

func (s *catalogueSkill) requireID(args map[string]any) (string, error) {
	if s.cfg.idParam == "" {
		return "", nil
	}
	switch v := args[s.cfg.idParam].(type) {
	case string:
		if v == "" {
			return "", fmt.Errorf("%s parameter required", s.cfg.idParam)
		}
		return v, nil
	case float64:
		return fmt.Sprintf("%d", int(v)), nil
	default:
		return "", fmt.Errorf("%s parameter required", s.cfg.idParam)
	}
}

func (s *catalogueSkill) list(ctx context.Context, c *Client, scope string, args map[string]any) domain.ToolResult {
	limit := 20
	if l, ok := args["limit"].(float64); ok && l > 0 {
		limit = int(l)
	}
	var lines []string
	count := 0
	err := c.Paginate(ctx, s.cfg.listPath(scope), limit, nil, func(item any) bool {
		lines = append(lines, "  "+formatGeneric(item))
		count++
		return true
	})
	if err != nil {
		return domain.Failure(err.Error())
	}
	if count == 0 {
		return domain.Success("No results found")
	}
	return domain.Success(fmt.Sprintf("Found %d result(s):\n%s", count, strings.Join(lines, "\n")))
}

// formatGeneric renders a decoded JSON item as a single line, preferring
// whichever of the common identifying fields GitLab's resources expose.
func formatGeneric(item any) string {
	m := asMap(item)
	if m == nil {
		return fmt.Sprintf("%v", item)
	}
	var label string
	for _, key := range []string{"title", "name", "iid", "id"} {
		if v, ok := m[key]; ok {
			label = fmt.Sprintf("%v", v)
			break
		}
	}
	if state, ok := m["state"]; ok {
		return fmt.Sprintf("%s (%v)", label, state)
	}
	return label
}
