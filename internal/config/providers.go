package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"guardslot/internal/availability"
	"guardslot/internal/model"
)

// ProviderConfig is one provider entry of providers.yaml.
type ProviderConfig struct {
	ID           string                   `yaml:"id"`
	APIKey       string                   `yaml:"api_key"`
	Name         string                   `yaml:"name"`
	Business     string                   `yaml:"business"`
	Avatar       string                   `yaml:"avatar,omitempty"`
	Timezone     string                   `yaml:"timezone"`
	Services     []model.Service          `yaml:"services"`
	Availability []model.AvailabilityRule `yaml:"availability"`
}

// ProvidersConfig is the root of providers.yaml.
type ProvidersConfig struct {
	Providers []ProviderConfig `yaml:"providers"`
}

// LoadProvidersConfig loads and validates providers.yaml.
func LoadProvidersConfig(path string) (*ProvidersConfig, error) {
	if path == "" {
		path = "configs/providers.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read providers config: %w", err)
	}
	data = []byte(os.ExpandEnv(string(data)))

	var cfg ProvidersConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse providers config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate providers config: %w", err)
	}
	return &cfg, nil
}

// Validate checks identity fields and runs the schedule validation pass on every provider.
func (c *ProvidersConfig) Validate() error {
	if len(c.Providers) == 0 {
		return fmt.Errorf("at least one provider must be configured")
	}

	var errs []error
	ids := make(map[string]bool)
	keys := make(map[string]bool)

	for i := range c.Providers {
		p := &c.Providers[i]
		if strings.TrimSpace(p.ID) == "" {
			errs = append(errs, fmt.Errorf("providers[%d]: id is required", i))
			continue
		}
		if ids[p.ID] {
			errs = append(errs, fmt.Errorf("provider %s: duplicate id", p.ID))
		}
		ids[p.ID] = true

		if strings.TrimSpace(p.APIKey) == "" {
			errs = append(errs, fmt.Errorf("provider %s: api_key is required", p.ID))
		} else if keys[p.APIKey] {
			errs = append(errs, fmt.Errorf("provider %s: duplicate api_key", p.ID))
		}
		keys[p.APIKey] = true

		if strings.TrimSpace(p.Name) == "" {
			errs = append(errs, fmt.Errorf("provider %s: name is required", p.ID))
		}

		prov := p.ToModel(0)
		if err := availability.ValidateProvider(&prov).Err(); err != nil {
			errs = append(errs, fmt.Errorf("provider %s: %w", p.ID, err))
		}
	}

	return errors.Join(errs...)
}

// ToModel converts the entry into the engine's provider type.
func (p ProviderConfig) ToModel(version int64) model.Provider {
	return model.Provider{
		ID:           p.ID,
		APIKey:       p.APIKey,
		Name:         p.Name,
		Business:     p.Business,
		Avatar:       p.Avatar,
		Timezone:     p.Timezone,
		Services:     append([]model.Service(nil), p.Services...),
		Availability: append([]model.AvailabilityRule(nil), p.Availability...),
		Version:      version,
	}
}
