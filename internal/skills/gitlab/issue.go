package gitlab

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/batalabs/nexus3d/internal/domain"
	"github.com/batalabs/nexus3d/internal/skills"
)

// issueSkill creates, views, updates, and manages GitLab issues.
// Actions: list, get, create, update, close, reopen, comment. Project is
// auto-detected from the git remote when omitted; list additionally
// supports a cross-project query when project is left unset entirely.
type issueSkill struct {
	base *Base
}

// IssueFactory registers the gitlab_issue skill whenever at least one
// GitLab instance is configured.
func IssueFactory(services *skills.Services) (skills.Skill, bool) {
	base, ok := NewBase(services)
	if !ok {
		return nil, false
	}
	return &issueSkill{base: base}, true
}

func (s *issueSkill) Name() string { return "gitlab_issue" }

func (s *issueSkill) Description() string {
	return "Create, view, update, and manage GitLab issues. " +
		"Actions: list, get, create, update, close, reopen, comment. " +
		"List works cross-project when project is omitted. Other actions " +
		"auto-detect project from git remote if omitted."
}

func (s *issueSkill) Category() skills.Category { return skills.Network }

func (s *issueSkill) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"action": map[string]any{
				"type": "string",
				"enum": []string{"list", "get", "create", "update", "close", "reopen", "comment"},
			},
			"instance":           map[string]any{"type": "string"},
			"project":            map[string]any{"type": "string"},
			"iid":                map[string]any{"type": "integer"},
			"title":              map[string]any{"type": "string"},
			"description":        map[string]any{"type": "string"},
			"labels":             map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"assignees":          map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"assignee_username":  map[string]any{"type": "string"},
			"author_username":    map[string]any{"type": "string"},
			"state":              map[string]any{"type": "string", "enum": []string{"opened", "closed", "all"}},
			"search":             map[string]any{"type": "string"},
			"limit":              map[string]any{"type": "integer"},
			"body":               map[string]any{"type": "string"},
		},
		"required": []string{"action"},
	}
}

func (s *issueSkill) Execute(ctx context.Context, args map[string]any) domain.ToolResult {
	action, _ := args["action"].(string)
	if action == "" {
		return domain.Failure("action parameter required")
	}

	if action == "list" {
		return s.base.Dispatch(ctx, args, func(ctx context.Context, c *Client, _ string) domain.ToolResult {
			var project string
			if raw, _ := args["project"].(string); raw != "" {
				project = encodePath(raw)
			}
			return s.list(ctx, c, project, args)
		})
	}

	return s.base.Dispatch(ctx, args, func(ctx context.Context, c *Client, project string) domain.ToolResult {
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
			if title == "" {
				return domain.Failure("title parameter required for create action")
			}
			return s.create(ctx, c, encoded, args)
		case "update":
			iid, err := requireIID(args)
			if err != nil {
				return domain.Failure(err.Error())
			}
			return s.update(ctx, c, encoded, iid, args)
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
			return s.comment(ctx, c, encoded, iid, body)
		default:
			return domain.Failure(fmt.Sprintf("unknown action: %s", action))
		}
	})
}

func requireIID(args map[string]any) (int, error) {
	switch v := args["iid"].(type) {
	case float64:
		return int(v), nil
	case int:
		return v, nil
	default:
		return 0, fmt.Errorf("iid parameter required for this action")
	}
}

func stringSlice(v any) []string {
	arr, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(arr))
	for _, item := range arr {
		if str, ok := item.(string); ok {
			out = append(out, str)
		}
	}
	return out
}

func asMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

func (s *issueSkill) list(ctx context.Context, c *Client, project string, args map[string]any) domain.ToolResult {
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
	if assignee, _ := args["assignee_username"].(string); assignee != "" {
		params.Set("assignee_username", resolveMe(ctx, c, assignee))
	}
	if author, _ := args["author_username"].(string); author != "" {
		params.Set("author_username", resolveMe(ctx, c, author))
	}

	limit := 20
	if l, ok := args["limit"].(float64); ok && l > 0 {
		limit = int(l)
	}

	endpoint := "/issues"
	if project != "" {
		endpoint = fmt.Sprintf("/projects/%s/issues", project)
	} else {
		params.Set("scope", "all")
	}

	var lines []string
	count := 0
	err := c.Paginate(ctx, endpoint, limit, params, func(item any) bool {
		issue := asMap(item)
		lines = append(lines, formatIssueLine(issue, project == ""))
		count++
		return true
	})
	if err != nil {
		return domain.Failure(err.Error())
	}
	if count == 0 {
		return domain.Success("No issues found")
	}
	header := fmt.Sprintf("Found %d issue(s):", count)
	return domain.Success(strings.Join(append([]string{header}, lines...), "\n"))
}

func formatIssueLine(issue map[string]any, crossProject bool) string {
	state, _ := issue["state"].(string)
	icon := "[closed]"
	if state == "opened" {
		icon = "[open]"
	}
	title, _ := issue["title"].(string)
	labelsStr := ""
	if labels := stringSlice(issue["labels"]); len(labels) > 0 {
		labelsStr = fmt.Sprintf(" [%s]", strings.Join(labels, ", "))
	}
	ref := fmt.Sprintf("#%v", issue["iid"])
	if crossProject {
		if refs := asMap(issue["references"]); refs != nil {
			if full, ok := refs["full"].(string); ok {
				ref = full
			}
		}
	}
	return fmt.Sprintf("  %s %s: %s%s", icon, ref, title, labelsStr)
}

func (s *issueSkill) get(ctx context.Context, c *Client, project string, iid int) domain.ToolResult {
	result, err := c.Get(ctx, fmt.Sprintf("/projects/%s/issues/%d", project, iid), nil)
	if err != nil {
		return domain.Failure(err.Error())
	}
	issue := asMap(result)
	if issue == nil {
		return domain.Failure("unexpected response for issue")
	}

	author := asMap(issue["author"])
	var lines []string
	lines = append(lines, fmt.Sprintf("# %v", issue["title"]))
	lines = append(lines, "")
	lines = append(lines, fmt.Sprintf("IID: #%v | State: %v | Author: @%v",
		issue["iid"], issue["state"], author["username"]))
	lines = append(lines, fmt.Sprintf("Created: %v | Updated: %v", issue["created_at"], issue["updated_at"]))

	if labels := stringSlice(issue["labels"]); len(labels) > 0 {
		lines = append(lines, "Labels: "+strings.Join(labels, ", "))
	}
	if assigneesRaw, ok := issue["assignees"].([]any); ok && len(assigneesRaw) > 0 {
		var names []string
		for _, a := range assigneesRaw {
			if m := asMap(a); m != nil {
				names = append(names, fmt.Sprintf("@%v", m["username"]))
			}
		}
		lines = append(lines, "Assignees: "+strings.Join(names, ", "))
	}
	if milestone := asMap(issue["milestone"]); milestone != nil {
		lines = append(lines, fmt.Sprintf("Milestone: %v", milestone["title"]))
	}
	if due, ok := issue["due_date"].(string); ok && due != "" {
		lines = append(lines, "Due: "+due)
	}

	lines = append(lines, "")
	desc, _ := issue["description"].(string)
	if desc == "" {
		desc = "(no description)"
	}
	lines = append(lines, desc)
	lines = append(lines, "")
	lines = append(lines, fmt.Sprintf("Web URL: %v", issue["web_url"]))

	return domain.Success(strings.Join(lines, "\n"))
}

func (s *issueSkill) create(ctx context.Context, c *Client, project string, args map[string]any) domain.ToolResult {
	data := map[string]any{"title": args["title"]}
	if desc, _ := args["description"].(string); desc != "" {
		data["description"] = desc
	}
	if labels := stringSlice(args["labels"]); len(labels) > 0 {
		data["labels"] = strings.Join(labels, ",")
	}
	if assignees := stringSlice(args["assignees"]); len(assignees) > 0 {
		ids, err := s.resolveUserIDs(ctx, c, assignees)
		if err != nil {
			return domain.Failure(err.Error())
		}
		data["assignee_ids"] = ids
	}

	result, err := c.Post(ctx, fmt.Sprintf("/projects/%s/issues", project), data)
	if err != nil {
		return domain.Failure(err.Error())
	}
	issue := asMap(result)
	return domain.Success(fmt.Sprintf("Created issue #%v: %v\n%v", issue["iid"], issue["title"], issue["web_url"]))
}

func (s *issueSkill) update(ctx context.Context, c *Client, project string, iid int, args map[string]any) domain.ToolResult {
	data := map[string]any{}
	if title, _ := args["title"].(string); title != "" {
		data["title"] = title
	}
	if desc, _ := args["description"].(string); desc != "" {
		data["description"] = desc
	}
	if labels := stringSlice(args["labels"]); len(labels) > 0 {
		data["labels"] = strings.Join(labels, ",")
	}
	if raw, has := args["assignees"]; has {
		assignees := stringSlice(raw)
		if len(assignees) > 0 {
			ids, err := s.resolveUserIDs(ctx, c, assignees)
			if err != nil {
				return domain.Failure(err.Error())
			}
			data["assignee_ids"] = ids
		} else {
			data["assignee_ids"] = []int{}
		}
	}

	if len(data) == 0 {
		return domain.Failure("no fields to update")
	}

	result, err := c.Put(ctx, fmt.Sprintf("/projects/%s/issues/%d", project, iid), data)
	if err != nil {
		return domain.Failure(err.Error())
	}
	issue := asMap(result)
	return domain.Success(fmt.Sprintf("Updated issue #%v: %v", issue["iid"], issue["title"]))
}

func (s *issueSkill) setState(ctx context.Context, c *Client, project string, iid int, event string) domain.ToolResult {
	result, err := c.Put(ctx, fmt.Sprintf("/projects/%s/issues/%d", project, iid), map[string]any{"state_event": event})
	if err != nil {
		return domain.Failure(err.Error())
	}
	issue := asMap(result)
	verb := "Closed"
	if event == "reopen" {
		verb = "Reopened"
	}
	return domain.Success(fmt.Sprintf("%s issue #%v", verb, issue["iid"]))
}

func (s *issueSkill) comment(ctx context.Context, c *Client, project string, iid int, body string) domain.ToolResult {
	_, err := c.Post(ctx, fmt.Sprintf("/projects/%s/issues/%d/notes", project, iid), map[string]any{"body": body})
	if err != nil {
		return domain.Failure(err.Error())
	}
	return domain.Success(fmt.Sprintf("Added comment to issue #%d", iid))
}

// resolveUserIDs looks up GitLab user IDs for a list of usernames,
// expanding the "me" shorthand via the current-user endpoint.
func (s *issueSkill) resolveUserIDs(ctx context.Context, c *Client, usernames []string) ([]int, error) {
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

// resolveMe expands the literal "me" username into the authenticated
// user's actual username via /user; any lookup failure falls back to
// the literal string "me" rather than failing the whole request.
func resolveMe(ctx context.Context, c *Client, username string) string {
	if !strings.EqualFold(username, "me") {
		return username
	}
	result, err := c.Get(ctx, "/user", nil)
	if err != nil {
		return username
	}
	user := asMap(result)
	if name, ok := user["username"].(string); ok {
		return name
	}
	return username
}
