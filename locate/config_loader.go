package locate

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// LoadConfig loads the configuration from a YAML file. Solver fields missing
// from the file keep their DefaultSolverConfig values.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	return ParseConfig(data)
}

// ParseConfig decodes and validates YAML config bytes.
func ParseConfig(data []byte) (*Config, error) {
	config := Config{Solver: DefaultSolverConfig()}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate checks required fields and solver parameters.
func (c *Config) Validate() error {
	if err := c.Solver.Params.Validate(); err != nil {
		return fmt.Errorf("solver: %w", err)
	}

	seen := make(map[string]bool, len(c.Cameras))
	for i, cam := range c.Cameras {
		if cam.ID == "" {
			return fmt.Errorf("camera[%d].id is required", i)
		}
		if seen[cam.ID] {
			return fmt.Errorf("camera[%d].id %q is duplicated", i, cam.ID)
		}
		seen[cam.ID] = true
	}

	if c.Window != "" {
		if _, err := time.ParseDuration(c.Window); err != nil {
			return fmt.Errorf("parsing window: %w", err)
		}
	}
	return nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(path string, config *Config) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("marshaling config YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}
