package olmap

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/paulmach/orb/geojson"
)

var (
	// ErrDuplicateFeature is returned when a feature id is already in the source.
	ErrDuplicateFeature = errors.New("feature already exists")
	// ErrFeatureNotFound is returned when no feature has the requested id.
	ErrFeatureNotFound = errors.New("feature not found")
)

// DefaultLayerZIndex keeps vector layers above the tile layer.
const DefaultLayerZIndex = 2

// VectorLayer renders a VectorSource on top of the tiles.
type VectorLayer struct {
	id     string
	zIndex int
	source *VectorSource
}

// NewVectorLayer creates a layer with a generated id.
func NewVectorLayer() *VectorLayer {
	return &VectorLayer{id: uuid.NewString(), zIndex: DefaultLayerZIndex}
}

// ID returns the layer id.
func (l *VectorLayer) ID() string { return l.id }

// ZIndex returns the layer's stacking order.
func (l *VectorLayer) ZIndex() int { return l.zIndex }

// SetSource binds the source rendered by this layer. Call it before the
// layer is added to a map.
func (l *VectorLayer) SetSource(s *VectorSource) {
	l.source = s
	s.mu.Lock()
	s.layerID = l.id
	s.mu.Unlock()
}

// Source returns the bound source, or nil.
func (l *VectorLayer) Source() *VectorSource { return l.source }

// VectorSource is an ordered collection of features. Once its layer is on a
// map, every mutation is mirrored to the browser.
type VectorSource struct {
	mu       sync.RWMutex
	features []*geojson.Feature
	layerID  string
	bus      *Bus
	owner    atomic.Pointer[Map]
}

// NewVectorSource creates an empty source.
func NewVectorSource() *VectorSource {
	return &VectorSource{}
}

// FeatureID returns the string form of a feature's id, or "" if unset.
func FeatureID(f *geojson.Feature) string {
	if f == nil || f.ID == nil {
		return ""
	}
	return fmt.Sprint(f.ID)
}

// AddFeature appends f. Features without an id get a UUID.
func (s *VectorSource) AddFeature(f *geojson.Feature) error {
	return s.add(f, true)
}

// AddFeatures appends all features, publishing them as a single command.
func (s *VectorSource) AddFeatures(features []*geojson.Feature) error {
	defer s.lock()()

	seen := map[string]bool{}
	for _, f := range features {
		if f.ID == nil {
			f.ID = uuid.NewString()
		}
		id := FeatureID(f)
		if seen[id] || s.indexOf(id) >= 0 {
			return fmt.Errorf("%w: %s", ErrDuplicateFeature, id)
		}
		seen[id] = true
	}
	s.features = append(s.features, features...)
	s.publish(Command{Op: OpAddFeatures, Args: FeaturesArgs{Layer: s.layerID, Features: features}})
	return nil
}

func (s *VectorSource) add(f *geojson.Feature, emit bool) error {
	defer s.lock()()

	if f.ID == nil {
		f.ID = uuid.NewString()
	}
	id := FeatureID(f)
	if s.indexOf(id) >= 0 {
		return fmt.Errorf("%w: %s", ErrDuplicateFeature, id)
	}
	s.features = append(s.features, f)
	if emit {
		s.publish(Command{Op: OpAddFeatures, Args: FeaturesArgs{Layer: s.layerID, Features: []*geojson.Feature{f}}})
	}
	return nil
}

// UpdateFeature replaces the feature with the same id.
func (s *VectorSource) UpdateFeature(f *geojson.Feature) error {
	return s.update(f, true)
}

func (s *VectorSource) update(f *geojson.Feature, emit bool) error {
	defer s.lock()()

	i := s.indexOf(FeatureID(f))
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrFeatureNotFound, FeatureID(f))
	}
	s.features[i] = f
	if emit {
		s.publish(Command{Op: OpUpdateFeature, Args: FeatureArgs{Layer: s.layerID, Feature: f}})
	}
	return nil
}

// RemoveFeature deletes the feature with the given id.
func (s *VectorSource) RemoveFeature(id string) error {
	defer s.lock()()

	i := s.indexOf(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrFeatureNotFound, id)
	}
	s.features = append(s.features[:i], s.features[i+1:]...)
	s.publish(Command{Op: OpRemoveFeature, Args: RemoveFeatureArgs{Layer: s.layerID, ID: id}})
	return nil
}

// Feature returns the feature with the given id.
func (s *VectorSource) Feature(id string) (*geojson.Feature, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i := s.indexOf(id)
	if i < 0 {
		return nil, false
	}
	return s.features[i], true
}

// Features returns the features in insertion order.
func (s *VectorSource) Features() []*geojson.Feature {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*geojson.Feature, len(s.features))
	copy(out, s.features)
	return out
}

// Len returns the number of features.
func (s *VectorSource) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.features)
}

func (s *VectorSource) indexOf(id string) int {
	for i, f := range s.features {
		if FeatureID(f) == id {
			return i
		}
	}
	return -1
}

// lock takes the write lock for a mutation. Once attached, the owning map is
// read-locked first so Map.Sync never observes a half-published change.
func (s *VectorSource) lock() func() {
	if m := s.owner.Load(); m != nil {
		m.mu.RLock()
		s.mu.Lock()
		return func() {
			s.mu.Unlock()
			m.mu.RUnlock()
		}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

// publish must be called with s.mu held.
func (s *VectorSource) publish(c Command) {
	if s.bus != nil {
		s.bus.Publish(c)
	}
}
