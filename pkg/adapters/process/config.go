package process

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ProcessConfig describes how to run test files with one extension.
type ProcessConfig struct {
	Extension   string            `yaml:"extension" json:"extension"`
	Command     string            `yaml:"command" json:"command"`
	Args        []string          `yaml:"args" json:"args"`
	Environment map[string]string `yaml:"env" json:"env"`
	Description string            `yaml:"description" json:"description"`
}

// ConfigFile represents the structure of runners.yaml.
type ConfigFile struct {
	Runners []ProcessConfig `yaml:"runners" json:"runners"`
}

// LoadRunners reads a configuration file (YAML or JSON) and returns the
// runners keyed by extension. A missing file configures no runners.
func LoadRunners(path string) (map[string]ProcessConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return map[string]ProcessConfig{}, nil
		}
		return nil, fmt.Errorf("failed to read runners config: %w", err)
	}

	var cfg ConfigFile
	if strings.ToLower(filepath.Ext(path)) == ".json" {
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	} else {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	}

	runners := make(map[string]ProcessConfig)
	for _, r := range cfg.Runners {
		if r.Extension == "" || r.Command == "" {
			continue
		}
		ext := r.Extension
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		r.Extension = ext
		runners[ext] = r
	}
	return runners, nil
}
