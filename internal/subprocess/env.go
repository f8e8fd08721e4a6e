package subprocess

import (
	"os"
	"runtime"
	"strings"
)

// allowedExact is the set of environment variable names propagated to a
// child process verbatim, covering the essentials, terminal, and
// temp-directory groups named by the runner's environment contract
// (locale names are matched by allowedPrefixes instead).
var allowedExact = map[string]bool{
	// essentials
	"PATH": true,
	"HOME": true,
	"USER": true,
	"SHELL": true,
	"PWD": true,
	// terminal
	"TERM":      true,
	"COLORTERM": true,
	"COLUMNS":   true,
	"LINES":     true,
	// temp dirs
	"TMPDIR": true,
	"TMP":    true,
	"TEMP":   true,
}

// allowedPrefixes covers locale variables, whose names vary (LC_ALL,
// LC_CTYPE, LC_COLLATE, ...).
var allowedPrefixes = []string{"LC_", "LANG", "TZ"}

// blockedSubstrings is checked before the allowlist: even a name that
// would otherwise match (e.g. a hypothetical "PATH_TOKEN") is refused if
// it contains any of these. No name containing these substrings may ever
// be allowlisted, regardless of what else matches.
var blockedSubstrings = []string{"TOKEN", "SECRET", "KEY", "PASSWORD"}

func isBlocked(name string) bool {
	upper := strings.ToUpper(name)
	for _, s := range blockedSubstrings {
		if strings.Contains(upper, s) {
			return true
		}
	}
	return false
}

func isAllowed(name string) bool {
	if isBlocked(name) {
		return false
	}
	if allowedExact[name] {
		return true
	}
	for _, p := range allowedPrefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}

func defaultPath() string {
	if runtime.GOOS == "windows" {
		return `C:\Windows\System32;C:\Windows`
	}
	return "/usr/local/bin:/usr/bin:/bin"
}

// SafeEnv builds the environment for a child process from an explicit
// allowlist of the parent's variables. No variable outside the allowlist
// is propagated, even if set in the parent; names containing TOKEN,
// SECRET, KEY, or PASSWORD are never allowlisted regardless of exact or
// prefix match. If cwd is non-empty, PWD in the result is overwritten
// with it. If PATH is missing or empty after filtering, a
// platform-appropriate default is substituted.
func SafeEnv(cwd string) []string {
	var out []string
	havePath := false
	for _, kv := range os.Environ() {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || !isAllowed(name) {
			continue
		}
		if name == "PATH" {
			havePath = havePath || value != ""
		}
		out = append(out, name+"="+value)
	}
	if !havePath {
		out = append(out, "PATH="+defaultPath())
	}
	if cwd != "" {
		for i, kv := range out {
			if strings.HasPrefix(kv, "PWD=") {
				out[i] = "PWD=" + cwd
				cwd = ""
				break
			}
		}
		if cwd != "" {
			out = append(out, "PWD="+cwd)
		}
	}
	return out
}
