package agent

import (
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

func TestDeclaredProviderIDsMissingFile(t *testing.T) {
	testHome(t)
	c := NewWindsurf(zap.NewNop())

	if ids := c.DeclaredProviderIDs(); ids != nil {
		t.Errorf("expected nil for missing file, got %v", ids)
	}
}

func TestDeclaredProviderIDsMalformedFile(t *testing.T) {
	home := testHome(t)
	writeFile(t, filepath.Join(home, ".codeium", "windsurf", "mcp_config.json"),
		`{"mcpServers": {`)
	c := NewWindsurf(zap.NewNop())

	if ids := c.DeclaredProviderIDs(); ids != nil {
		t.Errorf("expected nil for malformed file, got %v", ids)
	}
}

func TestDeclaredProviderIDsNonObjectServers(t *testing.T) {
	home := testHome(t)
	writeFile(t, filepath.Join(home, ".codeium", "windsurf", "mcp_config.json"),
		`{"mcpServers": ["not", "a", "map"]}`)
	c := NewWindsurf(zap.NewNop())

	if ids := c.DeclaredProviderIDs(); ids != nil {
		t.Errorf("expected nil for non-object servers key, got %v", ids)
	}
}

func TestStrictAddProviderCreatesFile(t *testing.T) {
	home := testHome(t)
	c := NewWindsurf(zap.NewNop())

	err := c.AddProvider(ProviderSpec{
		ID:             "github",
		InvocationSpec: "npx -y @acme/github-server",
		Config:         map[string]string{"GITHUB_TOKEN": "tok"},
	})
	if err != nil {
		t.Fatalf("AddProvider: %v", err)
	}

	content := readFile(t, filepath.Join(home, ".codeium", "windsurf", "mcp_config.json"))
	entry := gjson.Get(content, "mcpServers.github")
	if entry.Get("command").String() != "npx" {
		t.Errorf("command = %q", entry.Get("command").String())
	}
	if entry.Get("env.GITHUB_TOKEN").String() != "tok" {
		t.Errorf("env not written: %s", content)
	}

	if got := c.DeclaredProviderIDs(); !reflect.DeepEqual(got, []string{"github"}) {
		t.Errorf("declared = %v", got)
	}
}

func TestStrictAddProviderRemote(t *testing.T) {
	home := testHome(t)
	c := NewWindsurf(zap.NewNop())

	err := c.AddProvider(ProviderSpec{
		ID:             "search",
		InvocationSpec: "https://mcp.example.com/sse",
		Config:         map[string]string{"Authorization": "Bearer x"},
	})
	if err != nil {
		t.Fatalf("AddProvider: %v", err)
	}

	content := readFile(t, filepath.Join(home, ".codeium", "windsurf", "mcp_config.json"))
	entry := gjson.Get(content, "mcpServers.search")
	if entry.Get("type").String() != "http" {
		t.Errorf("type = %q", entry.Get("type").String())
	}
	if entry.Get("url").String() != "https://mcp.example.com/sse" {
		t.Errorf("url = %q", entry.Get("url").String())
	}
	if entry.Get("headers.Authorization").String() != "Bearer x" {
		t.Errorf("headers not written: %s", content)
	}
}

func TestStrictAddPreservesOtherEntries(t *testing.T) {
	home := testHome(t)
	path := filepath.Join(home, ".codeium", "windsurf", "mcp_config.json")
	writeFile(t, path, `{"mcpServers":{"existing":{"command":"deno"}},"theme":"dark"}`)
	c := NewWindsurf(zap.NewNop())

	if err := c.AddProvider(ProviderSpec{ID: "github", InvocationSpec: "gh-mcp"}); err != nil {
		t.Fatalf("AddProvider: %v", err)
	}

	content := readFile(t, path)
	if gjson.Get(content, "mcpServers.existing.command").String() != "deno" {
		t.Errorf("existing entry lost: %s", content)
	}
	if gjson.Get(content, "theme").String() != "dark" {
		t.Errorf("unrelated key lost: %s", content)
	}
}

func TestStrictRemoveProvider(t *testing.T) {
	home := testHome(t)
	path := filepath.Join(home, ".codeium", "windsurf", "mcp_config.json")
	writeFile(t, path, `{"mcpServers":{"a":{"command":"x"},"b":{"command":"y"}}}`)
	c := NewWindsurf(zap.NewNop())

	removed, err := c.RemoveProvider("a")
	if err != nil {
		t.Fatalf("RemoveProvider: %v", err)
	}
	if !removed {
		t.Fatal("expected removal")
	}
	if got := c.DeclaredProviderIDs(); !reflect.DeepEqual(got, []string{"b"}) {
		t.Errorf("declared = %v", got)
	}

	removed, err = c.RemoveProvider("a")
	if err != nil {
		t.Fatalf("second RemoveProvider: %v", err)
	}
	if removed {
		t.Error("expected no-op removal to report false")
	}
}

func TestPresenceSetEnabled(t *testing.T) {
	home := testHome(t)
	path := filepath.Join(home, ".codeium", "windsurf", "mcp_config.json")
	writeFile(t, path, `{"mcpServers":{"a":{"command":"x"}}}`)
	c := NewWindsurf(zap.NewNop())

	// Disabling in a presence dialect removes the entry.
	found, err := c.SetEnabled("a", false)
	if err != nil {
		t.Fatalf("SetEnabled: %v", err)
	}
	if !found {
		t.Fatal("expected entry to be found")
	}
	if ids := c.DeclaredProviderIDs(); ids != nil {
		t.Errorf("declared after disable = %v", ids)
	}

	found, err = c.SetEnabled("a", true)
	if err != nil {
		t.Fatalf("SetEnabled: %v", err)
	}
	if found {
		t.Error("enabling an absent entry should report false")
	}
}

func TestJSONCAddPreservesComments(t *testing.T) {
	home := testHome(t)
	path := filepath.Join(home, ".cursor", "mcp.json")
	writeFile(t, path, `{
	// hand-tuned, do not remove
	"mcpServers": {
		"existing": {"command": "deno"},
	},
}`)
	c := NewCursor(zap.NewNop())

	if err := c.AddProvider(ProviderSpec{ID: "github", InvocationSpec: "gh-mcp"}); err != nil {
		t.Fatalf("AddProvider: %v", err)
	}

	content := readFile(t, path)
	if !strings.Contains(content, "hand-tuned, do not remove") {
		t.Errorf("comment lost:\n%s", content)
	}

	std, err := standardizeJSON(content)
	if err != nil {
		t.Fatalf("output not parseable: %v", err)
	}
	if gjson.Get(std, "mcpServers.existing.command").String() != "deno" {
		t.Errorf("existing entry lost:\n%s", content)
	}
	if gjson.Get(std, "mcpServers.github.command").String() != "gh-mcp" {
		t.Errorf("new entry missing:\n%s", content)
	}
}

func TestJSONCAddCreatesServersKey(t *testing.T) {
	home := testHome(t)
	path := filepath.Join(home, ".cursor", "mcp.json")
	writeFile(t, path, `{"otherSetting": true}`)
	c := NewCursor(zap.NewNop())

	if err := c.AddProvider(ProviderSpec{ID: "gh", InvocationSpec: "gh-mcp"}); err != nil {
		t.Fatalf("AddProvider: %v", err)
	}

	std, err := standardizeJSON(readFile(t, path))
	if err != nil {
		t.Fatalf("output not parseable: %v", err)
	}
	if !gjson.Get(std, "mcpServers.gh").Exists() {
		t.Errorf("entry missing: %s", std)
	}
	if !gjson.Get(std, "otherSetting").Bool() {
		t.Errorf("unrelated key lost: %s", std)
	}
}

func TestJSONCRemoveProvider(t *testing.T) {
	home := testHome(t)
	path := filepath.Join(home, ".cursor", "mcp.json")
	writeFile(t, path, `{
	"mcpServers": {
		"a": {"command": "x"}, // keep an eye on this one
		"b": {"command": "y"},
	},
}`)
	c := NewCursor(zap.NewNop())

	removed, err := c.RemoveProvider("a")
	if err != nil {
		t.Fatalf("RemoveProvider: %v", err)
	}
	if !removed {
		t.Fatal("expected removal")
	}
	if got := c.DeclaredProviderIDs(); !reflect.DeepEqual(got, []string{"b"}) {
		t.Errorf("declared = %v", got)
	}
}

func TestExpandPath(t *testing.T) {
	home := testHome(t)

	if got := expandPath("~/x/y"); got != filepath.Join(home, "x", "y") {
		t.Errorf("expandPath(~/x/y) = %q", got)
	}
	want := filepath.Join(home, ".config", "opencode")
	if got := expandPath("$XDG_CONFIG/opencode"); got != want {
		t.Errorf("expandPath($XDG_CONFIG/opencode) = %q, want %q", got, want)
	}

	t.Setenv("XDG_CONFIG_HOME", "")
	if got := expandPath("$XDG_CONFIG/opencode"); got != want {
		t.Errorf("unset XDG_CONFIG_HOME fallback = %q, want %q", got, want)
	}
}

func TestEscapeJSONKey(t *testing.T) {
	cases := map[string]string{
		"plain":          "plain",
		"/home/u/proj":   "/home/u/proj",
		"a.b":            `a\.b`,
		"/home/u/v1.2/p": `/home/u/v1\.2/p`,
		"glob*?":         `glob\*\?`,
	}
	for in, want := range cases {
		if got := escapeJSONKey(in); got != want {
			t.Errorf("escapeJSONKey(%q) = %q, want %q", in, got, want)
		}
	}
}
