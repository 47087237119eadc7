package olmap

import (
	"fmt"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
)

// Tile source types understood by the browser map.
const (
	TileSourceOSM      = "OSM"
	TileSourceBingMaps = "BingMaps"
)

// osmURL is the standard OpenStreetMap raster tile template.
const osmURL = "https://tile.openstreetmap.org/{z}/{x}/{y}.png"

// TileSource describes the background imagery of a map.
type TileSource struct {
	Type       string `json:"type" yaml:"type" enum:"OSM,BingMaps" doc:"Tile provider"`
	Key        string `json:"key,omitempty" yaml:"key,omitempty" doc:"Bing Maps API key"`
	ImagerySet string `json:"imagerySet,omitempty" yaml:"imagerySet,omitempty" doc:"Bing Maps imagery set"`
}

// OSM returns the OpenStreetMap tile source.
func OSM() TileSource {
	return TileSource{Type: TileSourceOSM}
}

// BingMaps returns a Bing Maps tile source.
func BingMaps(key, imagerySet string) TileSource {
	return TileSource{Type: TileSourceBingMaps, Key: key, ImagerySet: imagerySet}
}

// Validate checks the source is one the browser knows how to load.
func (s TileSource) Validate() error {
	switch s.Type {
	case TileSourceOSM:
		return nil
	case TileSourceBingMaps:
		if s.Key == "" {
			return fmt.Errorf("tile source %s requires a key", s.Type)
		}
		return nil
	}
	return fmt.Errorf("unknown tile source %q", s.Type)
}

// TileURL returns the URL of the tile containing p (longitude, latitude) at
// the given zoom, or "" when the provider has no public URL template.
func (s TileSource) TileURL(p orb.Point, zoom float64) string {
	if s.Type != TileSourceOSM {
		return ""
	}
	z := zoom
	if z < 0 {
		z = 0
	}
	if z > 19 {
		z = 19
	}
	t := maptile.At(p, maptile.Zoom(uint32(z)))
	r := strings.NewReplacer(
		"{z}", fmt.Sprint(t.Z),
		"{x}", fmt.Sprint(t.X),
		"{y}", fmt.Sprint(t.Y),
	)
	return r.Replace(osmURL)
}
