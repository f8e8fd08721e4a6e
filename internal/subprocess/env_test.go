package subprocess

import (
	"os"
	"strings"
	"testing"
)

func TestSafeEnvExcludesSecrets(t *testing.T) {
	os.Setenv("SECRET_FOR_TEST", "leaked")
	defer os.Unsetenv("SECRET_FOR_TEST")
	os.Setenv("MY_API_TOKEN", "also-leaked")
	defer os.Unsetenv("MY_API_TOKEN")

	env := SafeEnv("")
	for _, kv := range env {
		if strings.Contains(kv, "leaked") {
			t.Errorf("SafeEnv leaked a blocked variable: %q", kv)
		}
		name, _, _ := strings.Cut(kv, "=")
		if isBlocked(name) {
			t.Errorf("SafeEnv propagated blocked name %q", name)
		}
	}
}

func TestSafeEnvKeepsAllowlisted(t *testing.T) {
	os.Setenv("HOME", "/home/tester")
	env := SafeEnv("")
	found := false
	for _, kv := range env {
		if strings.HasPrefix(kv, "HOME=") {
			found = true
		}
	}
	if !found {
		t.Error("expected HOME to be propagated")
	}
}

func TestSafeEnvDropsUnlisted(t *testing.T) {
	os.Setenv("RANDOM_APP_VAR", "whatever")
	defer os.Unsetenv("RANDOM_APP_VAR")

	env := SafeEnv("")
	for _, kv := range env {
		if strings.HasPrefix(kv, "RANDOM_APP_VAR=") {
			t.Error("expected non-allowlisted variable to be dropped")
		}
	}
}

func TestSafeEnvOverridesPWD(t *testing.T) {
	env := SafeEnv("/work/dir")
	found := false
	for _, kv := range env {
		if kv == "PWD=/work/dir" {
			found = true
		}
	}
	if !found {
		t.Error("expected PWD to be overwritten with cwd")
	}
}

func TestSafeEnvSubstitutesDefaultPath(t *testing.T) {
	path, had := os.LookupEnv("PATH")
	os.Unsetenv("PATH")
	defer func() {
		if had {
			os.Setenv("PATH", path)
		}
	}()

	env := SafeEnv("")
	found := false
	for _, kv := range env {
		if strings.HasPrefix(kv, "PATH=") && kv != "PATH=" {
			found = true
		}
	}
	if !found {
		t.Error("expected a default PATH to be substituted when missing")
	}
}

func TestIsBlockedCaseInsensitive(t *testing.T) {
	for _, name := range []string{"token", "Secret_Value", "API_KEY", "password123"} {
		if !isBlocked(name) {
			t.Errorf("expected %q to be blocked", name)
		}
	}
	for _, name := range []string{"PATH", "HOME", "LC_ALL"} {
		if isBlocked(name) {
			t.Errorf("expected %q not to be blocked", name)
		}
	}
}
