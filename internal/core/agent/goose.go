package agent

import (
	"fmt"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Goose implements the Connector interface for the Goose AI agent.
//
// Goose is the one YAML dialect: servers live as "extensions" in
// ~/.config/goose/config.yaml, stdio ones with cmd/args/envs and remote
// ones with a uri, all carrying an explicit "enabled" flag. Writes operate
// on the yaml.v3 node tree so unrelated keys, ordering, and comments
// survive.
type Goose struct {
	id          string
	displayName string
	configPath  string
	detectPaths []string
	logger      *zap.Logger
}

// NewGoose creates a configured Goose connector.
func NewGoose(logger *zap.Logger) *Goose {
	return &Goose{
		id:          "goose",
		displayName: "Goose",
		configPath:  "$XDG_CONFIG/goose/config.yaml",
		detectPaths: []string{"$XDG_CONFIG/goose"},
		logger:      logger,
	}
}

func (g *Goose) ID() string          { return g.id }
func (g *Goose) DisplayName() string { return g.displayName }

func (g *Goose) IsPresent() bool {
	for _, p := range g.detectPaths {
		if pathExists(expandPath(p)) {
			return true
		}
	}
	return false
}

func (g *Goose) ConfigPath() string { return expandPath(g.configPath) }

// gooseExtension is one entry in the extensions map.
type gooseExtension struct {
	Name    string            `yaml:"name"`
	Type    string            `yaml:"type"`
	Cmd     string            `yaml:"cmd,omitempty"`
	Args    []string          `yaml:"args,omitempty"`
	Envs    map[string]string `yaml:"envs,omitempty"`
	URI     string            `yaml:"uri,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
	Enabled bool              `yaml:"enabled"`
}

func (g *Goose) DeclaredProviderIDs() []string {
	content, err := readConfigFile(g.ConfigPath())
	if err != nil {
		g.logger.Warn("reading agent config",
			zap.String("agent", g.id), zap.String("path", g.ConfigPath()), zap.Error(err))
		return nil
	}
	if content == "" {
		return nil
	}

	var doc struct {
		Extensions map[string]yaml.Node `yaml:"extensions"`
	}
	if err := yaml.Unmarshal([]byte(content), &doc); err != nil {
		g.logger.Warn("agent config is not valid YAML, treating as empty",
			zap.String("agent", g.id), zap.String("path", g.ConfigPath()), zap.Error(err))
		return nil
	}

	ids := make([]string, 0, len(doc.Extensions))
	for id := range doc.Extensions {
		ids = append(ids, id)
	}
	return sortedSet(ids)
}

func (g *Goose) AddProvider(spec ProviderSpec) error {
	ext := gooseExtension{
		Name:    spec.ID,
		Enabled: true,
	}
	if spec.IsRemote() {
		ext.Type = "streamable_http"
		ext.URI = spec.InvocationSpec
		ext.Headers = spec.Config
	} else {
		ext.Type = "stdio"
		ext.Cmd = spec.Command()
		ext.Args = spec.Args()
		ext.Envs = spec.Config
	}

	var entry yaml.Node
	if err := entry.Encode(ext); err != nil {
		return fmt.Errorf("encoding extension %q: %w", spec.ID, err)
	}

	return g.mutate(func(extensions *yaml.Node) (bool, error) {
		setMapEntry(extensions, spec.ID, &entry)
		return true, nil
	})
}

func (g *Goose) RemoveProvider(id string) (bool, error) {
	removed := false
	err := g.mutate(func(extensions *yaml.Node) (bool, error) {
		removed = deleteMapEntry(extensions, id)
		return removed, nil
	})
	return removed, err
}

func (g *Goose) SetEnabled(id string, enabled bool) (bool, error) {
	found := false
	err := g.mutate(func(extensions *yaml.Node) (bool, error) {
		entry := findMapEntry(extensions, id)
		if entry == nil || entry.Kind != yaml.MappingNode {
			return false, nil
		}
		found = true

		var flag yaml.Node
		if err := flag.Encode(enabled); err != nil {
			return false, err
		}
		setMapEntry(entry, "enabled", &flag)
		return true, nil
	})
	return found, err
}

// mutate loads the config, hands the extensions mapping to fn, and writes
// the document back when fn reports a change. A missing file starts from an
// empty document.
func (g *Goose) mutate(fn func(extensions *yaml.Node) (bool, error)) error {
	path := g.ConfigPath()
	content, err := readConfigFile(path)
	if err != nil {
		return fmt.Errorf("reading config: %w", err)
	}

	var root yaml.Node
	if content != "" {
		if err := yaml.Unmarshal([]byte(content), &root); err != nil {
			return fmt.Errorf("parsing config: %w", err)
		}
	}
	doc := documentMapping(&root)

	extensions := findMapEntry(doc, "extensions")
	if extensions == nil || extensions.Kind != yaml.MappingNode {
		extensions = &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		setMapEntry(doc, "extensions", extensions)
	}

	changed, err := fn(extensions)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}

	out, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return writeConfigFile(path, string(out))
}

// documentMapping unwraps the document node, creating an empty mapping for
// new or empty files.
func documentMapping(root *yaml.Node) *yaml.Node {
	if root.Kind == yaml.DocumentNode && len(root.Content) > 0 &&
		root.Content[0].Kind == yaml.MappingNode {
		return root.Content[0]
	}
	return &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
}

// findMapEntry returns the value node for key in a mapping, or nil.
func findMapEntry(mapping *yaml.Node, key string) *yaml.Node {
	if mapping == nil || mapping.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value == key {
			return mapping.Content[i+1]
		}
	}
	return nil
}

// setMapEntry replaces the value for key, appending the pair if absent.
func setMapEntry(mapping *yaml.Node, key string, value *yaml.Node) {
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value == key {
			mapping.Content[i+1] = value
			return
		}
	}
	keyNode := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key}
	mapping.Content = append(mapping.Content, keyNode, value)
}

// deleteMapEntry removes the key/value pair for key, reporting whether it
// was present.
func deleteMapEntry(mapping *yaml.Node, key string) bool {
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value == key {
			mapping.Content = append(mapping.Content[:i], mapping.Content[i+2:]...)
			return true
		}
	}
	return false
}
