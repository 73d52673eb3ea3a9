package source

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// configFile is the on-disk shape of a sources.yaml document.
type configFile struct {
	Sources []configEntry `yaml:"sources"`
}

// configEntry mirrors Config with the refresh interval as a duration string
// (e.g., "15m", "1h").
type configEntry struct {
	Config          `yaml:",inline"`
	RefreshInterval string `yaml:"refresh_interval,omitempty"`
}

// LoadConfigs reads and parses a sources.yaml file declaring data sources.
//
// Example document:
//
//	sources:
//	  - id: ct1
//	    name: Trial registry feed
//	    kind: api
//	    endpoint: https://api.example.com/trials
//	    data_type: clinical_trials
//	    refresh_interval: 30m
//	    schema:
//	      trial_id: {type: string, required: true}
//	      sponsor: {type: string}
//	    transformations:
//	      - {kind: rename, from: lead_sponsor, to: sponsor}
func LoadConfigs(path string) ([]Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var file configFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	configs := make([]Config, 0, len(file.Sources))
	for i, entry := range file.Sources {
		cfg := entry.Config
		if entry.RefreshInterval != "" {
			d, err := time.ParseDuration(entry.RefreshInterval)
			if err != nil {
				return nil, fmt.Errorf("source %d (%s): invalid refresh_interval: %w", i, cfg.ID, err)
			}
			cfg.RefreshInterval = d
		}
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("source %d (%s): %w", i, cfg.ID, err)
		}
		configs = append(configs, cfg)
	}
	return configs, nil
}
