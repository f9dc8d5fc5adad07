package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/jllopis/telos/pkg/core"
)

// LoadCharacter reads an agent persona definition from a YAML file.
func LoadCharacter(path string) (*core.Character, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read character file: %w", err)
	}

	var ch core.Character
	if err := yaml.Unmarshal(data, &ch); err != nil {
		return nil, fmt.Errorf("parse character file %s: %w", path, err)
	}
	if ch.Name == "" {
		return nil, fmt.Errorf("character file %s: name is required", path)
	}
	return &ch, nil
}
