package agent

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tailscale/hujson"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"go.uber.org/zap"
)

// BaseConnector provides the shared behavior for JSON-dialect connectors.
// Individual connectors embed this and override methods as needed.
type BaseConnector struct {
	id          string
	displayName string
	configPath  string   // config file path (with ~ or $VAR)
	detectPaths []string // files/dirs whose presence means "installed"
	serversKey  string   // top-level JSON key holding the server map

	// jsonc connectors tolerate comments and trailing commas on read and
	// preserve them on write. Strict connectors round-trip through sjson.
	jsonc bool

	// enabledKey is the per-entry boolean flag encoding enablement, e.g.
	// "disabled" (inverted) or "enabled". Empty means enablement is
	// encoded as presence: disabling removes the entry.
	enabledKey      string
	enabledInverted bool

	// descriptor renders a ProviderSpec into this dialect's JSON value.
	// nil selects the default stdio/http rendering.
	descriptor func(ProviderSpec) string

	logger *zap.Logger
}

func (b *BaseConnector) ID() string          { return b.id }
func (b *BaseConnector) DisplayName() string { return b.displayName }

func (b *BaseConnector) IsPresent() bool {
	for _, p := range b.detectPaths {
		if pathExists(expandPath(p)) {
			return true
		}
	}
	return false
}

func (b *BaseConnector) ConfigPath() string {
	return expandPath(b.configPath)
}

// DeclaredProviderIDs reads the config file and returns the keys of the
// server map. Missing file or unparseable content yields an empty set; the
// caller is never failed by a broken agent file.
func (b *BaseConnector) DeclaredProviderIDs() []string {
	content, err := readConfigFile(b.ConfigPath())
	if err != nil {
		b.logger.Warn("reading agent config",
			zap.String("agent", b.id), zap.String("path", b.ConfigPath()), zap.Error(err))
		return nil
	}
	if content == "" {
		return nil
	}

	std, err := standardizeJSON(content)
	if err != nil {
		b.logger.Warn("agent config is not valid JSON, treating as empty",
			zap.String("agent", b.id), zap.String("path", b.ConfigPath()), zap.Error(err))
		return nil
	}

	return sortedSet(objectKeys(gjson.Get(std, b.serversKey)))
}

// AddProvider writes or replaces the entry for spec.ID, leaving every other
// entry and any comments untouched.
func (b *BaseConnector) AddProvider(spec ProviderSpec) error {
	value := b.renderDescriptor(spec)
	if b.jsonc {
		return b.patchJSONC(spec.ID, value)
	}
	return b.setStrict(spec.ID, value)
}

// RemoveProvider deletes the entry for id. Returns false if it was absent.
func (b *BaseConnector) RemoveProvider(id string) (bool, error) {
	if b.jsonc {
		return b.removeJSONC(id)
	}
	return b.removeStrict(id)
}

// SetEnabled toggles the entry for id. With no explicit flag in this
// dialect, enabling is a presence check and disabling removes the entry.
func (b *BaseConnector) SetEnabled(id string, enabled bool) (bool, error) {
	if b.enabledKey == "" {
		if enabled {
			return b.hasEntry(id), nil
		}
		return b.RemoveProvider(id)
	}

	if !b.hasEntry(id) {
		return false, nil
	}

	flag := enabled
	if b.enabledInverted {
		flag = !enabled
	}
	value := "false"
	if flag {
		value = "true"
	}

	if b.jsonc {
		if err := b.patchJSONCField(id, b.enabledKey, value); err != nil {
			return false, err
		}
		return true, nil
	}

	content, err := readConfigFile(b.ConfigPath())
	if err != nil {
		return false, fmt.Errorf("reading config: %w", err)
	}
	newContent, err := sjson.SetRaw(content,
		b.serversKey+"."+escapeJSONKey(id)+"."+b.enabledKey, value)
	if err != nil {
		return false, fmt.Errorf("setting %s flag: %w", b.enabledKey, err)
	}
	if err := writeConfigFile(b.ConfigPath(), newContent); err != nil {
		return false, err
	}
	return true, nil
}

func (b *BaseConnector) hasEntry(id string) bool {
	content, err := readConfigFile(b.ConfigPath())
	if err != nil || content == "" {
		return false
	}
	std, err := standardizeJSON(content)
	if err != nil {
		return false
	}
	return gjson.Get(std, b.serversKey+"."+escapeJSONKey(id)).Exists()
}

// renderDescriptor builds the dialect JSON value for a provider entry.
func (b *BaseConnector) renderDescriptor(spec ProviderSpec) string {
	if b.descriptor != nil {
		return b.descriptor(spec)
	}
	return defaultDescriptor(spec)
}

// defaultDescriptor is the common shape shared by Claude Code, Cursor, and
// Windsurf: bare command/args/env for stdio, type+url+headers for remote.
func defaultDescriptor(spec ProviderSpec) string {
	if spec.IsRemote() {
		m := map[string]any{
			"type": "http",
			"url":  spec.InvocationSpec,
		}
		if len(spec.Config) > 0 {
			m["headers"] = spec.Config
		}
		data, _ := json.Marshal(m)
		return string(data)
	}

	m := map[string]any{
		"command": spec.Command(),
	}
	if args := spec.Args(); len(args) > 0 {
		m["args"] = args
	}
	if len(spec.Config) > 0 {
		m["env"] = spec.Config
	}
	data, _ := json.Marshal(m)
	return string(data)
}

// --- strict JSON write path (gjson/sjson) ---

func (b *BaseConnector) setStrict(id, value string) error {
	content, err := readConfigFile(b.ConfigPath())
	if err != nil {
		return fmt.Errorf("reading config: %w", err)
	}

	newContent, err := sjson.SetRaw(content, b.serversKey+"."+escapeJSONKey(id), value)
	if err != nil {
		return fmt.Errorf("writing provider entry: %w", err)
	}
	return writeConfigFile(b.ConfigPath(), newContent)
}

func (b *BaseConnector) removeStrict(id string) (bool, error) {
	content, err := readConfigFile(b.ConfigPath())
	if err != nil {
		return false, fmt.Errorf("reading config: %w", err)
	}
	if content == "" {
		return false, nil
	}

	path := b.serversKey + "." + escapeJSONKey(id)
	if !gjson.Get(content, path).Exists() {
		return false, nil
	}

	newContent, err := sjson.Delete(content, path)
	if err != nil {
		return false, fmt.Errorf("removing provider entry: %w", err)
	}
	if err := writeConfigFile(b.ConfigPath(), newContent); err != nil {
		return false, err
	}
	return true, nil
}

// --- JSONC write path (hujson AST patch, comment-preserving) ---

func (b *BaseConnector) patchJSONC(id, value string) error {
	root, err := b.parseForWrite()
	if err != nil {
		return err
	}

	entryPtr := "/" + jsonPointerEscape(b.serversKey) + "/" + jsonPointerEscape(id)
	return b.patchAndWrite(root, entryPtr, value)
}

func (b *BaseConnector) patchJSONCField(id, field, value string) error {
	root, err := b.parseForWrite()
	if err != nil {
		return err
	}

	fieldPtr := "/" + jsonPointerEscape(b.serversKey) + "/" + jsonPointerEscape(id) +
		"/" + jsonPointerEscape(field)
	op := "add"
	if root.Find(fieldPtr) != nil {
		op = "replace"
	}
	patch := fmt.Sprintf(`[{"op":%q,"path":%q,"value":%s}]`, op, fieldPtr, value)
	if err := root.Patch([]byte(patch)); err != nil {
		return fmt.Errorf("setting %s flag: %w", field, err)
	}
	return writeConfigFile(b.ConfigPath(), string(finalizeJSONC(root)))
}

func (b *BaseConnector) removeJSONC(id string) (bool, error) {
	content, err := readConfigFile(b.ConfigPath())
	if err != nil {
		return false, fmt.Errorf("reading config: %w", err)
	}
	if content == "" {
		return false, nil
	}

	root, err := hujson.Parse([]byte(content))
	if err != nil {
		return false, fmt.Errorf("parsing config: %w", err)
	}

	entryPtr := "/" + jsonPointerEscape(b.serversKey) + "/" + jsonPointerEscape(id)
	if root.Find(entryPtr) == nil {
		return false, nil
	}

	patch := fmt.Sprintf(`[{"op":"remove","path":%q}]`, entryPtr)
	if err := root.Patch([]byte(patch)); err != nil {
		return false, fmt.Errorf("removing provider entry: %w", err)
	}
	if err := writeConfigFile(b.ConfigPath(), string(finalizeJSONC(&root))); err != nil {
		return false, err
	}
	return true, nil
}

func (b *BaseConnector) parseForWrite() (*hujson.Value, error) {
	content, err := readConfigFile(b.ConfigPath())
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if content == "" {
		content = "{}"
	}
	root, err := hujson.Parse([]byte(content))
	if err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return &root, nil
}

// patchAndWrite ensures the top-level servers key exists, applies an
// add/replace patch for entryPtr, and writes the result.
func (b *BaseConnector) patchAndWrite(root *hujson.Value, entryPtr, valueJSON string) error {
	op := "add"
	if root.Find(entryPtr) != nil {
		op = "replace"
	}

	topKeyPtr := "/" + jsonPointerEscape(b.serversKey)
	if root.Find(topKeyPtr) == nil {
		topKeyPatch := fmt.Sprintf(`[{"op":"add","path":%q,"value":{}}]`, topKeyPtr)
		if err := root.Patch([]byte(topKeyPatch)); err != nil {
			return fmt.Errorf("creating config key %q: %w", b.serversKey, err)
		}
	}

	patch := fmt.Sprintf(`[{"op":%q,"path":%q,"value":%s}]`, op, entryPtr, valueJSON)
	if err := root.Patch([]byte(patch)); err != nil {
		return fmt.Errorf("writing provider entry: %w", err)
	}

	return writeConfigFile(b.ConfigPath(), string(finalizeJSONC(root)))
}

// finalizeJSONC formats the JSONC AST and produces final output bytes.
// Comments and existing structure survive; trailing commas do not.
func finalizeJSONC(root *hujson.Value) []byte {
	root.Format()
	removeTrailingCommas(root)
	return root.Pack()
}

// removeTrailingCommas walks the JSONC AST and removes trailing commas.
func removeTrailingCommas(v *hujson.Value) {
	switch vv := v.Value.(type) {
	case *hujson.Object:
		for i := range vv.Members {
			removeTrailingCommas(&vv.Members[i].Name)
			removeTrailingCommas(&vv.Members[i].Value)
		}
		if len(vv.Members) > 0 {
			vv.Members[len(vv.Members)-1].Value.AfterExtra = nil
		}
	case *hujson.Array:
		for i := range vv.Elements {
			removeTrailingCommas(&vv.Elements[i])
		}
		if len(vv.Elements) > 0 {
			vv.Elements[len(vv.Elements)-1].AfterExtra = nil
		}
	}
}

// --- shared helpers ---

// standardizeJSON converts possibly-commented JSON into strict JSON for
// gjson reads. Strict input passes through unchanged.
func standardizeJSON(content string) (string, error) {
	std, err := hujson.Standardize([]byte(content))
	if err != nil {
		return "", err
	}
	return string(std), nil
}

// objectKeys returns the member names of a gjson object result. Non-object
// results (malformed sections) yield nothing rather than an error.
func objectKeys(result gjson.Result) []string {
	if !result.IsObject() {
		return nil
	}
	var keys []string
	result.ForEach(func(key, _ gjson.Result) bool {
		keys = append(keys, key.String())
		return true
	})
	return keys
}

// expandPath expands ~ to the home directory and $VAR / $XDG_CONFIG to env
// values.
func expandPath(p string) string {
	if strings.Contains(p, "$XDG_CONFIG") {
		xdgConfig := os.Getenv("XDG_CONFIG_HOME")
		if xdgConfig == "" {
			home, _ := os.UserHomeDir()
			xdgConfig = filepath.Join(home, ".config")
		}
		p = strings.ReplaceAll(p, "$XDG_CONFIG", xdgConfig)
	}

	if strings.Contains(p, "$") {
		p = os.Expand(p, func(key string) string {
			if key == "XDG_CONFIG" {
				return ""
			}
			return os.Getenv(key)
		})
	}

	if strings.HasPrefix(p, "~/") {
		home, _ := os.UserHomeDir()
		p = filepath.Join(home, p[2:])
	} else if p == "~" {
		home, _ := os.UserHomeDir()
		p = home
	}

	return p
}

func pathExists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}

// readConfigFile reads a config file. Returns empty string if not found.
func readConfigFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	return string(data), nil
}

// writeConfigFile writes content atomically, creating parent directories.
func writeConfigFile(path string, content string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating directory %s: %w", dir, err)
	}
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, []byte(content), 0o644); err != nil {
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}

// jsonPointerEscape escapes a string for use as a JSON Pointer token (RFC 6901).
func jsonPointerEscape(s string) string {
	result := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '~':
			result = append(result, '~', '0')
		case '/':
			result = append(result, '~', '1')
		default:
			result = append(result, s[i])
		}
	}
	return string(result)
}

// escapeJSONKey escapes a key for use with gjson/sjson path syntax. Dots
// act as path separators there, so keys like filesystem paths need every
// special character escaped, not just the first.
func escapeJSONKey(key string) string {
	var out []byte
	for i := 0; i < len(key); i++ {
		switch key[i] {
		case '.', '*', '?', '#', '\\':
			out = append(out, '\\')
		}
		out = append(out, key[i])
	}
	return string(out)
}
