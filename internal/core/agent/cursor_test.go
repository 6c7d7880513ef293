package agent

import (
	"path/filepath"
	"testing"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

func TestCursorDisabledFlagInverted(t *testing.T) {
	home := testHome(t)
	path := filepath.Join(home, ".cursor", "mcp.json")
	writeFile(t, path, `{"mcpServers":{"gh":{"command":"x"}}}`)
	c := NewCursor(zap.NewNop())

	found, err := c.SetEnabled("gh", false)
	if err != nil {
		t.Fatalf("SetEnabled(false): %v", err)
	}
	if !found {
		t.Fatal("expected entry to be found")
	}

	std, err := standardizeJSON(readFile(t, path))
	if err != nil {
		t.Fatalf("output not parseable: %v", err)
	}
	if !gjson.Get(std, "mcpServers.gh.disabled").Bool() {
		t.Errorf("disabled flag not set: %s", std)
	}

	found, err = c.SetEnabled("gh", true)
	if err != nil || !found {
		t.Fatalf("SetEnabled(true) = %v, %v", found, err)
	}
	std, err = standardizeJSON(readFile(t, path))
	if err != nil {
		t.Fatalf("output not parseable: %v", err)
	}
	if gjson.Get(std, "mcpServers.gh.disabled").Bool() {
		t.Errorf("disabled flag still set: %s", std)
	}

	// The entry itself survives both toggles.
	if !gjson.Get(std, "mcpServers.gh").Exists() {
		t.Errorf("entry removed by toggle: %s", std)
	}
}

func TestCursorSetEnabledMissingEntry(t *testing.T) {
	testHome(t)
	c := NewCursor(zap.NewNop())

	found, err := c.SetEnabled("nope", false)
	if err != nil {
		t.Fatalf("SetEnabled: %v", err)
	}
	if found {
		t.Error("expected false for missing entry")
	}
}
