// Package catalog implements the Config Store: a read-only, at-startup
// parse of the fleet's model catalogue (JSON or YAML), validated for
// referential integrity against the device and interface adapter
// registries. It is the fleet "phonebook" — name/alias/mode lookup only,
// no weight downloading or mutation.
package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.yaml.in/yaml/v2"

	"github.com/tutu-network/tutu/internal/domain"
)

// document is the decode target for both JSON and YAML catalogues.
type document struct {
	Models []domain.ModelDefinition `json:"models" yaml:"models"`
}

// Store holds the parsed catalogue and serves read-only lookups.
type Store struct {
	byName  map[string]*domain.ModelDefinition
	byAlias map[string]*domain.ModelDefinition
	byMode  map[domain.Mode][]*domain.ModelDefinition
	all     []*domain.ModelDefinition
}

// DeviceKnown reports whether a device name corresponds to a registered
// Device Adapter (online or not — referential integrity only cares that
// it exists).
type DeviceKnown func(name string) bool

// ModeKnown reports whether a mode has a registered Interface Adapter.
type ModeKnown func(mode domain.Mode) bool

// Load reads and validates the catalogue at path. Format is sniffed by
// extension: .json uses encoding/json, .yaml/.yml uses go.yaml.in/yaml/v2.
func Load(path string, deviceKnown DeviceKnown, modeKnown ModeKnown) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalogue %s: %w", path, err)
	}

	var doc document
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parse catalogue JSON: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parse catalogue YAML: %w", err)
		}
	default:
		return nil, fmt.Errorf("unrecognised catalogue format %q (expected .json, .yaml, or .yml)", path)
	}

	return build(doc.Models, deviceKnown, modeKnown)
}

func build(models []domain.ModelDefinition, deviceKnown DeviceKnown, modeKnown ModeKnown) (*Store, error) {
	s := &Store{
		byName:  make(map[string]*domain.ModelDefinition),
		byAlias: make(map[string]*domain.ModelDefinition),
		byMode:  make(map[domain.Mode][]*domain.ModelDefinition),
	}

	for i := range models {
		m := &models[i]

		if m.Name == "" {
			return nil, fmt.Errorf("model at index %d missing name", i)
		}
		if _, dup := s.byName[m.Name]; dup {
			return nil, fmt.Errorf("duplicate model name %q", m.Name)
		}
		if modeKnown != nil && !modeKnown(m.Mode) {
			return nil, fmt.Errorf("model %q: mode %q has no registered interface adapter", m.Name, m.Mode)
		}
		if len(m.Variants) == 0 {
			return nil, fmt.Errorf("model %q: must declare at least one launch variant", m.Name)
		}
		for _, v := range m.Variants {
			if deviceKnown != nil {
				for _, dev := range v.RequiredDevices {
					if !deviceKnown(dev) {
						return nil, fmt.Errorf("model %q variant %q: device %q is not registered", m.Name, v.Name, dev)
					}
				}
			}
			for dev := range v.MemoryMB {
				found := false
				for _, rd := range v.RequiredDevices {
					if rd == dev {
						found = true
						break
					}
				}
				if !found {
					return nil, fmt.Errorf("model %q variant %q: memory_mb names device %q not in required_devices", m.Name, v.Name, dev)
				}
			}
		}

		s.byName[m.Name] = m
		for _, alias := range m.Aliases {
			if alias == m.Name {
				continue
			}
			if existing, dup := s.byAlias[alias]; dup && existing != m {
				return nil, fmt.Errorf("alias %q bound to both %q and %q", alias, existing.Name, m.Name)
			}
			if _, dup := s.byName[alias]; dup {
				return nil, fmt.Errorf("alias %q collides with model name %q", alias, alias)
			}
			s.byAlias[alias] = m
		}
		s.byMode[m.Mode] = append(s.byMode[m.Mode], m)
		s.all = append(s.all, m)
	}

	return s, nil
}

func (s *Store) ByName(name string) (*domain.ModelDefinition, bool) {
	m, ok := s.byName[name]
	return m, ok
}

func (s *Store) ByAlias(alias string) (*domain.ModelDefinition, bool) {
	if m, ok := s.byName[alias]; ok {
		return m, ok
	}
	m, ok := s.byAlias[alias]
	return m, ok
}

func (s *Store) ByMode(mode domain.Mode) []*domain.ModelDefinition {
	return s.byMode[mode]
}

func (s *Store) All() []*domain.ModelDefinition {
	return s.all
}
