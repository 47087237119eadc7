// Package projection converts between WGS84 geographic coordinates
// (EPSG:4326) and spherical Web Mercator meters (EPSG:3857).
//
// Points use orb's axis order: X is longitude, Y is latitude.
package projection

import (
	"math"

	"github.com/paulmach/orb"
)

// Extent is half the width of the Web Mercator plane in meters.
const Extent = 20037508.34

// Codes of the two supported coordinate reference systems.
const (
	EPSG4326 = "EPSG:4326"
	EPSG3857 = "EPSG:3857"
)

// ToWebMercator projects a (longitude, latitude) point in degrees to meters.
// Latitudes at or beyond the poles are not representable and yield ±Inf/NaN.
func ToWebMercator(p orb.Point) orb.Point {
	lon, lat := p[0], p[1]
	x := lon * Extent / 180
	y := math.Log(math.Tan(math.Pi/4+lat*math.Pi/180/2)) * Extent / math.Pi
	return orb.Point{x, y}
}

// ToWebMercatorLatLon is ToWebMercator with the arguments in
// (latitude, longitude) order.
func ToWebMercatorLatLon(lat, lon float64) orb.Point {
	return ToWebMercator(orb.Point{lon, lat})
}

// FromWebMercator is the inverse of ToWebMercator.
func FromWebMercator(p orb.Point) orb.Point {
	lon := p[0] * 180 / Extent
	lat := 360/math.Pi*math.Atan(math.Exp(p[1]*math.Pi/Extent)) - 90
	return orb.Point{lon, lat}
}

// Project converts p from EPSG:4326 into the target code. Unknown codes and
// EPSG:4326 itself return p unchanged.
func Project(p orb.Point, code string) orb.Point {
	if code == EPSG3857 {
		return ToWebMercator(p)
	}
	return p
}

// Valid reports whether code is one of the supported projections.
func Valid(code string) bool {
	return code == EPSG4326 || code == EPSG3857
}
