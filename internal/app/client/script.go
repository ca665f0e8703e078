// Package client runs scripted requests against a persistor gateway.
package client

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Script is a YAML file of requests sent in order.
type Script struct {
	Target  string `yaml:"target"`
	Address string `yaml:"address"`
	TLS     struct {
		Enabled bool   `yaml:"enabled"`
		CAFile  string `yaml:"ca_file"`
	} `yaml:"tls"`
	Steps []Step `yaml:"steps"`
}

// Step is one request. Stream follows more-exist pages to the end.
// Expect, when set, is the status the final reply must carry.
type Step struct {
	Name    string         `yaml:"name"`
	Address string         `yaml:"address"`
	Stream  bool           `yaml:"stream"`
	Request map[string]any `yaml:"request"`
	Expect  string         `yaml:"expect"`
}

// LoadScript reads and checks a script file.
func LoadScript(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read script: %w", err)
	}
	return ParseScript(data)
}

func ParseScript(data []byte) (*Script, error) {
	var s Script
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse script: %w", err)
	}
	if len(s.Steps) == 0 {
		return nil, fmt.Errorf("script has no steps")
	}
	for i := range s.Steps {
		if s.Steps[i].Request == nil {
			return nil, fmt.Errorf("step %d has no request", i+1)
		}
		if s.Steps[i].Name == "" {
			s.Steps[i].Name = fmt.Sprintf("step %d", i+1)
		}
		if s.Steps[i].Address == "" {
			s.Steps[i].Address = s.Address
		}
	}
	return &s, nil
}
