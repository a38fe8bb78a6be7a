package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/zjrosen/rankreg/internal/log"
)

// SaveSources replaces the sources section of the config file.
// Comments and formatting of other sections are preserved by editing the
// document as a yaml.Node.
func SaveSources(configPath string, sources []SourceConfig) error {
	if err := ValidateSources(sources); err != nil {
		return err
	}

	data, err := os.ReadFile(configPath) //nolint:gosec // G304: path is the user-configured config file
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("reading config: %w", err)
	}

	var doc yaml.Node
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("parsing config: %w", err)
		}
	}

	sourcesNode := &yaml.Node{}
	if err := sourcesNode.Encode(sources); err != nil {
		return fmt.Errorf("building sources node: %w", err)
	}
	if len(sources) == 0 {
		sourcesNode.Style = yaml.FlowStyle
	}

	setKey(&doc, "sources", sourcesNode)

	var buf bytes.Buffer
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)
	if err := encoder.Encode(&doc); err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	_ = encoder.Close()

	if err := writeAtomic(configPath, buf.Bytes()); err != nil {
		return err
	}
	log.Info(log.CatConfig, "saved sources", "path", configPath, "count", len(sources))
	return nil
}

// AddSource appends src to all and saves. A source with the same name is
// replaced in place.
func AddSource(configPath string, src SourceConfig, all []SourceConfig) error {
	updated := slices.Clone(all)
	if i := slices.IndexFunc(updated, func(s SourceConfig) bool { return s.Name == src.Name }); i >= 0 {
		updated[i] = src
	} else {
		updated = append(updated, src)
	}
	return SaveSources(configPath, updated)
}

// RemoveSource drops the named source from all and saves.
func RemoveSource(configPath, name string, all []SourceConfig) error {
	updated := slices.DeleteFunc(slices.Clone(all), func(s SourceConfig) bool { return s.Name == name })
	if len(updated) == len(all) {
		return fmt.Errorf("source %q not found", name)
	}
	return SaveSources(configPath, updated)
}

// setKey replaces or appends key in the document's root mapping, creating
// the document when empty.
func setKey(doc *yaml.Node, key string, value *yaml.Node) {
	if doc.Kind == 0 {
		*doc = yaml.Node{
			Kind:    yaml.DocumentNode,
			Content: []*yaml.Node{{Kind: yaml.MappingNode}},
		}
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return
	}
	for i := 0; i < len(root.Content)-1; i += 2 {
		if root.Content[i].Value == key {
			root.Content[i+1] = value
			return
		}
	}
	root.Content = append(root.Content,
		&yaml.Node{Kind: yaml.ScalarNode, Value: key},
		value,
	)
}

// writeAtomic writes to a temp file, then renames it over path.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	temp, err := os.CreateTemp(dir, ".rankreg.yaml.tmp.*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tempPath := temp.Name()

	if _, err := temp.Write(data); err != nil {
		_ = temp.Close()
		_ = os.Remove(tempPath)
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := temp.Close(); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("closing temp file: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}
