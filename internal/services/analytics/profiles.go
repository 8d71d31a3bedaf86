package analytics

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/LeonardoBeccarini/hydro_monitor/internal/model/entities"
)

type profileFile struct {
	Profiles []entities.PlantProfile `yaml:"profiles"`
}

// LoadProfiles reads plant profiles from a YAML file; an empty path gives
// the built-in crops.
func LoadProfiles(path string) ([]entities.PlantProfile, error) {
	if path == "" {
		return entities.DefaultProfiles(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("profiles: %w", err)
	}
	return ParseProfiles(raw)
}

func ParseProfiles(raw []byte) ([]entities.PlantProfile, error) {
	var f profileFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("profiles: %w", err)
	}
	if len(f.Profiles) == 0 {
		return nil, fmt.Errorf("profiles: no profiles defined")
	}
	for _, p := range f.Profiles {
		if p.Name == "" {
			return nil, fmt.Errorf("profiles: profile without name")
		}
		for _, ch := range entities.Channels {
			r, _ := p.Optimal(ch)
			if r.Min > r.Max {
				return nil, fmt.Errorf("profiles: %s %s range %s is inverted", p.Name, ch, r)
			}
		}
	}
	return f.Profiles, nil
}
