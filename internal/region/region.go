// Package region holds the fixed set of marketplace regions a snapshot pass covers.
package region

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrNoRegions is returned when a registry would be empty.
var ErrNoRegions = errors.New("at least one region must be configured")

// ErrDuplicateRegion is returned when two regions share a type label.
var ErrDuplicateRegion = errors.New("duplicate region type")

// Region identifies one marketplace geography.
type Region struct {
	Type   string `yaml:"type"`   // "eu" | "us"
	Name   string `yaml:"name"`   // "Europe"
	Host   string `yaml:"host"`   // "https://eu.api.blizzard.com"
	Locale string `yaml:"locale"` // "en_GB"
}

// Namespace returns the dynamic data namespace for this region.
func (r Region) Namespace() string {
	return "dynamic-" + r.Type
}

func (r Region) String() string {
	return r.Type
}

// Europe and US are the regions covered when no override is configured.
var (
	Europe = Region{Type: "eu", Name: "Europe", Host: "https://eu.api.blizzard.com", Locale: "en_GB"}
	US     = Region{Type: "us", Name: "US", Host: "https://us.api.blizzard.com", Locale: "en_US"}
)

// Defaults returns the built-in region order: Europe fully, then US.
func Defaults() []Region {
	return []Region{Europe, US}
}

// Registry is an ordered, validated set of regions.
type Registry struct {
	regions []Region
	byType  map[string]Region
}

// NewRegistry validates regions and keeps them in the given order.
func NewRegistry(regions []Region) (*Registry, error) {
	if len(regions) == 0 {
		return nil, ErrNoRegions
	}

	ordered := make([]Region, 0, len(regions))
	byType := make(map[string]Region, len(regions))
	for i, r := range regions {
		r.Type = strings.ToLower(strings.TrimSpace(r.Type))
		r.Host = strings.TrimRight(strings.TrimSpace(r.Host), "/")
		r.Locale = strings.TrimSpace(r.Locale)

		if r.Type == "" {
			return nil, fmt.Errorf("region %d: type is required", i)
		}
		if r.Host == "" {
			return nil, fmt.Errorf("region %q: host is required", r.Type)
		}
		if r.Locale == "" {
			return nil, fmt.Errorf("region %q: locale is required", r.Type)
		}
		if _, dup := byType[r.Type]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateRegion, r.Type)
		}
		if r.Name == "" {
			r.Name = strings.ToUpper(r.Type)
		}

		byType[r.Type] = r
		ordered = append(ordered, r)
	}

	return &Registry{regions: ordered, byType: byType}, nil
}

// All returns the regions in pass order.
func (reg *Registry) All() []Region {
	out := make([]Region, len(reg.regions))
	copy(out, reg.regions)
	return out
}

// Lookup returns the region for a type label.
func (reg *Registry) Lookup(regionType string) (Region, bool) {
	r, ok := reg.byType[strings.ToLower(regionType)]
	return r, ok
}

// fileFormat is the on-disk layout of a regions file.
type fileFormat struct {
	Regions []Region `yaml:"regions"`
}

// LoadFile reads a YAML regions file and builds a registry from it.
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read regions file: %w", err)
	}
	return Parse(data)
}

// Parse builds a registry from YAML bytes.
func Parse(data []byte) (*Registry, error) {
	var f fileFormat
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse regions file: %w", err)
	}
	return NewRegistry(f.Regions)
}
