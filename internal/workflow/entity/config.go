package entity

import (
	"database/sql"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// RegistryConfig maps entity type tags to table bindings:
//
//	entities:
//	  asset:
//	    table: assets
//	    id_column: asset_id
//	    external_id_column: serial_number
//	    columns: [status, book_value, location]
//	    updatable: [status]
type RegistryConfig struct {
	Entities map[string]SQLSourceConfig `yaml:"entities"`
}

func LoadRegistryConfig(path string) (RegistryConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return RegistryConfig{}, fmt.Errorf("read entity config: %w", err)
	}
	return ParseRegistryConfig(raw)
}

func ParseRegistryConfig(raw []byte) (RegistryConfig, error) {
	var cfg RegistryConfig
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return RegistryConfig{}, fmt.Errorf("decode entity config: %w", err)
	}
	if len(cfg.Entities) == 0 {
		return RegistryConfig{}, fmt.Errorf("entity config has no entities")
	}
	for entityType, binding := range cfg.Entities {
		if err := binding.Validate(); err != nil {
			return RegistryConfig{}, fmt.Errorf("entity %q: %w", entityType, err)
		}
	}
	return cfg, nil
}

func RegistryFromConfig(db *sql.DB, cfg RegistryConfig) (*Registry, error) {
	registry := NewRegistry()
	for entityType, binding := range cfg.Entities {
		source, err := NewSQLSource(db, binding)
		if err != nil {
			return nil, fmt.Errorf("entity %q: %w", entityType, err)
		}
		if err := registry.Register(entityType, source); err != nil {
			return nil, err
		}
	}
	return registry, nil
}
