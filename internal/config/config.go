// Package config loads the demo configuration: the places the view cycles
// through, the labelled nodes shown on the map and the map setup.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/paulmach/orb"
	"gopkg.in/yaml.v3"

	"github.com/joeblew999/plat-olmap/internal/feature"
	"github.com/joeblew999/plat-olmap/internal/olmap"
	"github.com/joeblew999/plat-olmap/internal/projection"
	"github.com/joeblew999/plat-olmap/internal/view"
)

// Place is a named geographic coordinate.
type Place struct {
	Name string  `yaml:"name,omitempty" json:"name,omitempty"`
	Lon  float64 `yaml:"lon" json:"lon"`
	Lat  float64 `yaml:"lat" json:"lat"`
}

// Point returns the place as (longitude, latitude).
func (p Place) Point() orb.Point { return orb.Point{p.Lon, p.Lat} }

// Config represents the root configuration file structure.
type Config struct {
	Projection string               `yaml:"projection,omitempty" json:"projection"`
	TileSource olmap.TileSource     `yaml:"tileSource,omitempty" json:"tileSource"`
	Center     Place                `yaml:"center" json:"center"`
	Zoom       float64              `yaml:"zoom,omitempty" json:"zoom"`
	Centers    []Place              `yaml:"centers" json:"centers"`
	Nodes      []Place              `yaml:"nodes" json:"nodes"`
	Style      feature.StyleOptions `yaml:"style,omitempty" json:"style"`
}

// Default returns the configuration of the original demo.
func Default() *Config {
	places := []Place{
		{Name: "Colombia", Lon: -74.297333, Lat: 4.570868},
		{Name: "Japan", Lon: 135.9075, Lat: 35.120833},
		{Name: "Poland", Lon: 19.1343786, Lat: 51.9189046},
		{Name: "Denmark", Lon: 9.5155848, Lat: 55.9396761},
	}
	nodes := make([]Place, len(places))
	for i, p := range places {
		nodes[i] = Place{Name: fmt.Sprintf("Node %d", i+1), Lon: p.Lon, Lat: p.Lat}
	}
	return &Config{
		Projection: projection.EPSG4326,
		TileSource: olmap.OSM(),
		Center:     Place{Lon: 0, Lat: 0},
		Zoom:       6,
		Centers:    places,
		Nodes:      nodes,
		Style:      feature.DefaultStyleOptions(),
	}
}

// Load reads and parses the YAML configuration file from the specified path.
// Fields missing from the file keep their default values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes a YAML document over the defaults and validates it.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ErrInvalidCoordinate reports a latitude outside the Web Mercator range
// or a longitude outside [-180, 180].
var ErrInvalidCoordinate = errors.New("invalid coordinate")

// Validate checks the configuration can back a view.
func (c *Config) Validate() error {
	if len(c.Centers) == 0 {
		return view.ErrNoCenters
	}
	if !projection.Valid(c.Projection) {
		return fmt.Errorf("unsupported projection %q", c.Projection)
	}
	if err := c.TileSource.Validate(); err != nil {
		return err
	}
	if c.Zoom < 0 || c.Zoom > 28 {
		return fmt.Errorf("zoom %v out of range", c.Zoom)
	}
	for _, p := range append(append([]Place{c.Center}, c.Centers...), c.Nodes...) {
		if p.Lon < -180 || p.Lon > 180 || p.Lat <= -90 || p.Lat >= 90 {
			return fmt.Errorf("%w: %s (%v, %v)", ErrInvalidCoordinate, p.Name, p.Lon, p.Lat)
		}
	}
	return nil
}

// View converts the configuration into the view controller's terms.
func (c *Config) View() view.Config {
	centers := make([]orb.Point, len(c.Centers))
	for i, p := range c.Centers {
		centers[i] = p.Point()
	}
	nodes := make([]feature.Node, len(c.Nodes))
	for i, p := range c.Nodes {
		nodes[i] = feature.Node{Name: p.Name, At: p.Point()}
	}
	return view.Config{
		Centers:    centers,
		Nodes:      nodes,
		Style:      c.Style,
		Projection: c.Projection,
		TileSource: c.TileSource,
		Center:     c.Center.Point(),
		Zoom:       c.Zoom,
	}
}

// Marshal renders the configuration as YAML.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}
