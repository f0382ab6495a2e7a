package manifest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ParseJSON parses a manifest from JSON. Unknown fields are rejected.
func ParseJSON(data []byte) (*Manifest, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("JSON data cannot be empty")
	}

	var manifest Manifest
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&manifest); err != nil {
		return nil, fmt.Errorf("failed to parse JSON manifest: %w", err)
	}

	if err := manifest.Validate(); err != nil {
		return nil, fmt.Errorf("manifest validation failed: %w", err)
	}
	return &manifest, nil
}

// ParseYAML parses a manifest from YAML. Unknown fields are rejected.
func ParseYAML(data []byte) (*Manifest, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("YAML data cannot be empty")
	}

	var manifest Manifest
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&manifest); err != nil {
		return nil, fmt.Errorf("failed to parse YAML manifest: %w", err)
	}

	if err := manifest.Validate(); err != nil {
		return nil, fmt.Errorf("manifest validation failed: %w", err)
	}
	return &manifest, nil
}

// ParseFromFile parses a manifest file. The format follows the extension,
// falling back to content detection.
func ParseFromFile(filePath string) (*Manifest, error) {
	if filePath == "" {
		return nil, fmt.Errorf("file path cannot be empty")
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file '%s': %w", filePath, err)
	}

	lower := strings.ToLower(filePath)
	switch {
	case strings.HasSuffix(lower, ".yaml"), strings.HasSuffix(lower, ".yml"):
		return ParseYAML(data)
	case strings.HasSuffix(lower, ".json"):
		return ParseJSON(data)
	default:
		return parseAutoDetect(data)
	}
}

func parseAutoDetect(data []byte) (*Manifest, error) {
	if bytes.HasPrefix(bytes.TrimSpace(data), []byte("{")) {
		if manifest, err := ParseJSON(data); err == nil {
			return manifest, nil
		}
	}
	return ParseYAML(data)
}

// SerializeToJSON renders a manifest as indented JSON.
func SerializeToJSON(manifest *Manifest) ([]byte, error) {
	if manifest == nil {
		return nil, fmt.Errorf("manifest cannot be nil")
	}
	return json.MarshalIndent(manifest, "", "  ")
}

// SerializeToYAML renders a manifest as YAML.
func SerializeToYAML(manifest *Manifest) ([]byte, error) {
	if manifest == nil {
		return nil, fmt.Errorf("manifest cannot be nil")
	}
	return yaml.Marshal(manifest)
}
