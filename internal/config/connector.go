package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"granary/internal/spec"
)

const SupportedSchema = "v1"

// LoadConnectorSpec parses a connector YAML, validates schema_version, and
// returns the parsed spec with the source and store config paths made
// absolute relative to the spec file.
func LoadConnectorSpec(path string) (spec.File, string, string, error) {
	var cfg spec.File
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, "", "", err
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, "", "", err
	}
	if cfg.SchemaVersion == "" {
		cfg.SchemaVersion = SupportedSchema
	}
	if cfg.SchemaVersion != SupportedSchema {
		return cfg, "", "", fmt.Errorf("connector schema_version %q not supported (want %q)", cfg.SchemaVersion, SupportedSchema)
	}
	base := filepath.Dir(path)
	return cfg, absolve(base, cfg.Source.Config), absolve(base, cfg.Store.Config), nil
}

func absolve(base, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}
