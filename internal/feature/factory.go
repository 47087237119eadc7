package feature

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// ErrLengthMismatch is returned when the parallel inputs of New differ in length.
var ErrLengthMismatch = errors.New("coordinate and name slices differ in length")

// Node is a named location in (longitude, latitude) order.
type Node struct {
	Name string    `json:"name" yaml:"name" doc:"Display name"`
	At   orb.Point `json:"at" yaml:"at" doc:"Coordinate as [longitude, latitude]"`
}

// New builds one point feature per index of the parallel slices xs, ys and
// names. Every feature gets a fresh UUID and the style bag of its name.
func New(xs, ys []float64, names []string, opts StyleOptions) ([]*geojson.Feature, error) {
	if len(xs) != len(ys) || len(xs) != len(names) {
		return nil, fmt.Errorf("%w: %d x, %d y, %d names", ErrLengthMismatch, len(xs), len(ys), len(names))
	}

	features := make([]*geojson.Feature, 0, len(xs))
	for i := range xs {
		f := geojson.NewFeature(orb.Point{xs[i], ys[i]})
		f.ID = uuid.NewString()
		f.Properties = NewStyleBag(names[i], opts).Properties()
		features = append(features, f)
	}
	return features, nil
}

// FromNodes is New over a slice of nodes. The transform, when non-nil, is
// applied to every coordinate first.
func FromNodes(nodes []Node, opts StyleOptions, transform func(orb.Point) orb.Point) []*geojson.Feature {
	xs := make([]float64, len(nodes))
	ys := make([]float64, len(nodes))
	names := make([]string, len(nodes))
	for i, n := range nodes {
		p := n.At
		if transform != nil {
			p = transform(p)
		}
		xs[i], ys[i], names[i] = p[0], p[1], n.Name
	}
	// lengths are equal by construction
	features, _ := New(xs, ys, names, opts)
	return features
}

// Collection wraps features in a GeoJSON FeatureCollection.
func Collection(features []*geojson.Feature) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	fc.Features = append(fc.Features, features...)
	return fc
}

// Label returns the text label stored in a feature's normal style, if any.
func Label(f *geojson.Feature) string {
	switch s := f.Properties[StyleKey].(type) {
	case Style:
		if s.Text != nil {
			return s.Text.Text
		}
	case map[string]any:
		if text, ok := s["text"].(map[string]any); ok {
			label, _ := text["text"].(string)
			return label
		}
	}
	return ""
}
