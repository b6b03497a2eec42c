package catalog

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed food_groups.yaml
var defaultManifest []byte

// Manifest is the parsed food group catalog file
type Manifest struct {
	SchemaVersion string          `yaml:"schema_version"`
	FoodGroups    []FoodGroupSpec `yaml:"food_groups"`
}

// FoodGroupSpec describes one catalog entry
type FoodGroupSpec struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Essential   bool   `yaml:"essential"`
}

// LoadManifest reads a catalog manifest from path, or the embedded default
// when path is empty.
func LoadManifest(path string) (*Manifest, error) {
	data := defaultManifest
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read catalog manifest: %w", err)
		}
	}
	return ParseManifest(data)
}

// ParseManifest decodes a manifest with strict validation.
// Unknown YAML fields are rejected and every group needs a unique name.
func ParseManifest(data []byte) (*Manifest, error) {
	var manifest Manifest
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)

	if err := decoder.Decode(&manifest); err != nil {
		return nil, fmt.Errorf("failed to parse catalog manifest: %w", err)
	}

	if manifest.SchemaVersion == "" {
		manifest.SchemaVersion = "v1"
	}

	if len(manifest.FoodGroups) == 0 {
		return nil, fmt.Errorf("catalog manifest has no food groups")
	}

	seen := make(map[string]bool, len(manifest.FoodGroups))
	for i, group := range manifest.FoodGroups {
		if group.Name == "" {
			return nil, fmt.Errorf("catalog manifest entry %d missing required field: name", i)
		}
		if seen[group.Name] {
			return nil, fmt.Errorf("catalog manifest has duplicate food group: %s", group.Name)
		}
		seen[group.Name] = true
	}

	return &manifest, nil
}
