package provider

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// LoadConfigs reads provider definitions from a YAML file with a top-level
// "providers" key. Every entry is validated and names must be unique.
func LoadConfigs(path string) ([]Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "provider: read config %s", path)
	}
	return ParseConfigs(data)
}

// ParseConfigs decodes and validates a provider definition document.
func ParseConfigs(data []byte) ([]Config, error) {
	var wrapper struct {
		Providers []Config `yaml:"providers"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, eris.Wrap(err, "provider: parse config")
	}

	seen := make(map[string]bool, len(wrapper.Providers))
	for i := range wrapper.Providers {
		cfg := &wrapper.Providers[i]
		if cfg.Priority == 0 {
			cfg.Priority = 5
		}
		if err := Validate(*cfg); err != nil {
			return nil, err
		}
		if seen[cfg.Name] {
			return nil, eris.Errorf("provider: duplicate name %q", cfg.Name)
		}
		seen[cfg.Name] = true
	}
	return wrapper.Providers, nil
}
