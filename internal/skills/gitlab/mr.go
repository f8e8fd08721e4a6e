package gitlab

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/batalabs/nexus3d/internal/domain"
	"github.com/batalabs/nexus3d/internal/skills"
)

// mrSkill creates, views, updates, and manages GitLab merge requests.
// Mirrors issueSkill's action-dispatch shape with the additional
// merge action and source/target branch fields a merge request needs.
type mrSkill struct {
	base *Base
}

// MergeRequestFactory registers the gitlab_mr skill whenever at least one
// GitLab instance is configured.
func MergeRequestFactory(services *skills.Services) (skills.Skill, bool) {
	base, ok := NewBase(services)
	if !ok {
		return nil, false
	}
	return &mrSkill{base: base}, true
}

func (s *mrSkill) Name() string        { return "gitlab_mr" }
func (s *mrSkill) Description() string { return "Create, view, update, and manage GitLab merge requests" }
func (s *mrSkill) Category() skills.Category { return skills.Network }

func (s *mrSkill) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"action": map[string]any{
				"type": "string",
				"enum": []string{"list", "get", "create", "update", "merge", "close", "reopen", "comment"},
			},
			"instance":       map[string]any{"type": "string"},
			"project":        map[string]any{"type": "string"},
			"iid":            map[string]any{"type": "integer"},
			"title":          map[string]any{"type": "string"},
			"description":    map[string]any{"type": "string"},
			"source_branch":  map[string]any{"type": "string"},
			"target_branch":  map[string]any{"type": "string"},
			"labels":         map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"assignees":      map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"reviewers":      map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"draft":          map[string]any{"type": "boolean"},
			"state":          map[string]any{"type": "string", "enum": []string{"opened", "closed", "merged", "all"}},
			"search":         map[string]any{"type": "string"},
			"limit":          map[string]any{"type": "integer"},
			"body":           map[string]any{"type": "string"},
		},
		"required": []string{"action"},
	}
}

func (s *mrSkill) Execute(ctx context.Context, args map[string]any) domain.ToolResult {
	action, _ := args["action"].(string)
	if action == "" {
		return domain.Failure("action parameter required")
	}

	return s.base.Dispatch(ctx, args, func(ctx context.Context, c *Client, project string) domain.ToolResult {
		if action == "list" {
			var encoded string
			if raw, _ := args["project"].(string); raw != "" {
				encoded = encodePath(raw)
			} else if project != "" {
				encoded = encodePath(project)
			}
			return s.list(ctx, c, encoded, args)
		}

		if project == "" {
			return domain.Failure("no project specified and could not detect from git remote")
		}
		encoded := encodePath(project)

		switch action {
		case "get":
			iid, err := requireIID(args)
			if err != nil {
				return domain.Failure(err.Error())
			}
			return s.get(ctx, c, encoded, iid)
		case "create":
			title, _ := args["title"].(string)
			source, _ := args["source_branch"].(string)
			if title == "" {
				return domain.Failure("title parameter required for create action")
			}
			if source == "" {
				return domain.Failure("source_branch parameter required for create action")
			}
			return s.create(ctx, c, encoded, args)
		case "update":
			iid, err := requireIID(args)
			if err != nil {
				return domain.Failure(err.Error())
			}
			return s.update(ctx, c, encoded, iid, args)
		case "merge":
			iid, err := requireIID(args)
			if err != nil {
				return domain.Failure(err.Error())
			}
			return s.merge(ctx, c, encoded, iid)
		case "close":
			iid, err := requireIID(args)
			if err != nil {
				return domain.Failure(err.Error())
			}
			return s.setState(ctx, c, encoded, iid, "close")
		case "reopen":
			iid, err := requireIID(args)
			if err != nil {
				return domain.Failure(err.Error())
			}
			return s.setState(ctx, c, encoded, iid, "reopen")
		case "comment":
			iid, err := requireIID(args)
			if err != nil {
				return domain.Failure(err.Error())
			}
			body, _ := args["body"].(string)
			if body == "" {
				return domain.Failure("body parameter required for comment action")
			}
			_, err = c.Post(ctx, fmt.Sprintf("/projects/%s/merge_requests/%d/notes", encoded, iid), map[string]any{"body": body})
			if err != nil {
				return domain.Failure(err.Error())
			}
			return domain.Success(fmt.Sprintf("Added comment to merge request #%d", iid))
		default:
			return domain.Failure(fmt.Sprintf("unknown action: %s", action))
		}
	})
}

func (s *mrSkill) list(ctx context.Context, c *Client, project string, args map[string]any) domain.ToolResult {
	params := url.Values{}
	if state, _ := args["state"].(string); state != "" {
		params.Set("state", state)
	}
	if search, _ := args["search"].(string); search != "" {
		params.Set("search", search)
	}
	if labels := stringSlice(args["labels"]); len(labels) > 0 {
		params.Set("labels", strings.Join(labels, ","))
	}

	limit := 20
	if l, ok := args["limit"].(float64); ok && l > 0 {
		limit = int(l)
	}

	endpoint := "/merge_requests"
	if project != "" {
		endpoint = fmt.Sprintf("/projects/%s/merge_requests", project)
	} else {
		params.Set("scope", "all")
	}

	var lines []string
	count := 0
	err := c.Paginate(ctx, endpoint, limit, params, func(item any) bool {
		mr := asMap(item)
		state, _ := mr["state"].(string)
		icon := "[closed]"
		switch state {
		case "opened":
			icon = "[open]"
		case "merged":
			icon = "[merged]"
		}
		lines = append(lines, fmt.Sprintf("  %s !%v: %v (%v -> %v)", icon, mr["iid"], mr["title"], mr["source_branch"], mr["target_branch"]))
		count++
		return true
	})
	if err != nil {
		return domain.Failure(err.Error())
	}
	if count == 0 {
		return domain.Success("No merge requests found")
	}
	return domain.Success(fmt.Sprintf("Found %d merge request(s):\n%s", count, strings.Join(lines, "\n")))
}

func (s *mrSkill) get(ctx context.Context, c *Client, project string, iid int) domain.ToolResult {
	result, err := c.Get(ctx, fmt.Sprintf("/projects/%s/merge_requests/%d", project, iid), nil)
	if err != nil {
		return domain.Failure(err.Error())
	}
	mr := asMap(result)
	author := asMap(mr["author"])

	var lines []string
	lines = append(lines, fmt.Sprintf("# %v", mr["title"]))
	lines = append(lines, "")
	lines = append(lines, fmt.Sprintf("IID: !%v | State: %v | Author: @%v", mr["iid"], mr["state"], author["username"]))
	lines = append(lines, fmt.Sprintf("%v -> %v", mr["source_branch"], mr["target_branch"]))
	if draft, ok := mr["draft"].(bool); ok && draft {
		lines = append(lines, "Draft: yes")
	}
	if labels := stringSlice(mr["labels"]); len(labels) > 0 {
		lines = append(lines, "Labels: "+strings.Join(labels, ", "))
	}
	lines = append(lines, "")
	desc, _ := mr["description"].(string)
	if desc == "" {
		desc = "(no description)"
	}
	lines = append(lines, desc)
	lines = append(lines, "")
	lines = append(lines, fmt.Sprintf("Web URL: %v", mr["web_url"]))
	return domain.Success(strings.Join(lines, "\n"))
}

func (s *mrSkill) create(ctx context.Context, c *Client, project string, args map[string]any) domain.ToolResult {
	data := map[string]any{
		"title":         args["title"],
		"source_branch": args["source_branch"],
	}
	if target, _ := args["target_branch"].(string); target != "" {
		data["target_branch"] = target
	}
	if desc, _ := args["description"].(string); desc != "" {
		data["description"] = desc
	}
	if labels := stringSlice(args["labels"]); len(labels) > 0 {
		data["labels"] = strings.Join(labels, ",")
	}
	if draft, ok := args["draft"].(bool); ok && draft {
		data["title"] = "Draft: " + fmt.Sprintf("%v", args["title"])
	}
	if assignees := stringSlice(args["assignees"]); len(assignees) > 0 {
		ids, err := s.resolveUserIDs(ctx, c, assignees)
		if err != nil {
			return domain.Failure(err.Error())
		}
		data["assignee_ids"] = ids
	}
	if reviewers := stringSlice(args["reviewers"]); len(reviewers) > 0 {
		ids, err := s.resolveUserIDs(ctx, c, reviewers)
		if err != nil {
			return domain.Failure(err.Error())
		}
		data["reviewer_ids"] = ids
	}

	result, err := c.Post(ctx, fmt.Sprintf("/projects/%s/merge_requests", project), data)
	if err != nil {
		return domain.Failure(err.Error())
	}
	mr := asMap(result)
	return domain.Success(fmt.Sprintf("Created merge request !%v: %v\n%v", mr["iid"], mr["title"], mr["web_url"]))
}

func (s *mrSkill) update(ctx context.Context, c *Client, project string, iid int, args map[string]any) domain.ToolResult {
	data := map[string]any{}
	if title, _ := args["title"].(string); title != "" {
		data["title"] = title
	}
	if desc, _ := args["description"].(string); desc != "" {
		data["description"] = desc
	}
	if target, _ := args["target_branch"].(string); target != "" {
		data["target_branch"] = target
	}
	if labels := stringSlice(args["labels"]); len(labels) > 0 {
		data["labels"] = strings.Join(labels, ",")
	}
	if len(data) == 0 {
		return domain.Failure("no fields to update")
	}
	result, err := c.Put(ctx, fmt.Sprintf("/projects/%s/merge_requests/%d", project, iid), data)
	if err != nil {
		return domain.Failure(err.Error())
	}
	mr := asMap(result)
	return domain.Success(fmt.Sprintf("Updated merge request !%v: %v", mr["iid"], mr["title"]))
}

func (s *mrSkill) merge(ctx context.Context, c *Client, project string, iid int) domain.ToolResult {
	result, err := c.Put(ctx, fmt.Sprintf("/projects/%s/merge_requests/%d/merge", project, iid), map[string]any{})
	if err != nil {
		return domain.Failure(err.Error())
	}
	mr := asMap(result)
	return domain.Success(fmt.Sprintf("Merged merge request !%v", mr["iid"]))
}

func (s *mrSkill) setState(ctx context.Context, c *Client, project string, iid int, event string) domain.ToolResult {
	result, err := c.Put(ctx, fmt.Sprintf("/projects/%s/merge_requests/%d", project, iid), map[string]any{"state_event": event})
	if err != nil {
		return domain.Failure(err.Error())
	}
	mr := asMap(result)
	verb := "Closed"
	if event == "reopen" {
		verb = "Reopened"
	}
	return domain.Success(fmt.Sprintf("%s merge request !%v", verb, mr["iid"]))
}

func (s *mrSkill) resolveUserIDs(ctx context.Context, c *Client, usernames []string) ([]int, error) {
	ids := make([]int, 0, len(usernames))
	for _, username := range usernames {
		username = resolveMe(ctx, c, username)
		result, err := c.Get(ctx, "/users", url.Values{"username": []string{username}})
		if err != nil {
			return nil, err
		}
		list, ok := result.([]any)
		if !ok || len(list) == 0 {
			return nil, fmt.Errorf("user %q not found", username)
		}
		user := asMap(list[0])
		idFloat, ok := user["id"].(float64)
		if !ok {
			return nil, fmt.Errorf("user %q has no id in response", username)
		}
		ids = append(ids, int(idFloat))
	}
	return ids, nil
}
