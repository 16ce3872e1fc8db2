package corpus

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// artifact is the on-disk layout produced by the clustering pipeline.
type artifact struct {
	Documents []Document `json:"documents" yaml:"documents"`
}

// LoadFile reads a YAML (.yaml, .yml) or JSON (.json) corpus artifact.
func LoadFile(path string) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading corpus %s: %w", path, err)
	}
	docs, err := Decode(data, filepath.Ext(path))
	if err != nil {
		return nil, fmt.Errorf("corpus %s: %w", path, err)
	}
	return NewStore(docs), nil
}

// Decode parses artifact bytes. ext selects the format and includes the dot.
func Decode(data []byte, ext string) ([]Document, error) {
	var a artifact
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &a); err != nil {
			return nil, fmt.Errorf("parsing yaml: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &a); err != nil {
			return nil, fmt.Errorf("parsing json: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported corpus format %q", ext)
	}
	return a.Documents, nil
}
