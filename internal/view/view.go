// Package view is the demo page controller: a button that cycles the map
// center through a fixed list of places and a map that, once loaded, gets
// the editing interactions and one labelled pin per configured node.
package view

import (
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/rs/zerolog/log"

	"github.com/joeblew999/plat-olmap/internal/feature"
	"github.com/joeblew999/plat-olmap/internal/olmap"
	"github.com/joeblew999/plat-olmap/internal/projection"
)

// Config describes what a MainView shows. Coordinates are (longitude,
// latitude) in degrees regardless of the map projection.
type Config struct {
	Centers    []orb.Point
	Nodes      []feature.Node
	Style      feature.StyleOptions
	Projection string
	TileSource olmap.TileSource
	// Initial view, in degrees.
	Center orb.Point
	Zoom   float64
}

// DefaultConfig returns the places of the original demo.
func DefaultConfig() Config {
	centers := []orb.Point{
		{-74.297333, 4.570868},   // Colombia
		{135.9075, 35.120833},    // Japan
		{19.1343786, 51.9189046}, // Poland
		{9.5155848, 55.9396761},  // Denmark
	}
	nodes := make([]feature.Node, len(centers))
	for i, c := range centers {
		nodes[i] = feature.Node{Name: fmt.Sprintf("Node %d", i+1), At: c}
	}
	return Config{
		Centers:    centers,
		Nodes:      nodes,
		Style:      feature.DefaultStyleOptions(),
		Projection: projection.EPSG4326,
		TileSource: olmap.OSM(),
		Center:     orb.Point{0, 0},
		Zoom:       6,
	}
}

// Validate checks the configuration can back a view.
func (c Config) Validate() error {
	if len(c.Centers) == 0 {
		return ErrNoCenters
	}
	if c.Projection != "" && !projection.Valid(c.Projection) {
		return fmt.Errorf("unsupported projection %q", c.Projection)
	}
	if c.TileSource.Type != "" {
		if err := c.TileSource.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// DrawingSink receives geometries the user drew or edited in the browser.
type DrawingSink interface {
	SaveDrawing(viewID, action string, f *geojson.Feature) error
}

// Drawing actions passed to a DrawingSink.
const (
	ActionDrawn    = "drawn"
	ActionModified = "modified"
)

// MainView is one page instance.
type MainView struct {
	id     string
	cfg    Config
	cursor *Cursor
	sink   DrawingSink

	attach sync.Once
	m      *olmap.Map
	layer  *olmap.VectorLayer
	source *olmap.VectorSource
	ready  atomic.Bool

	// ids of the selected features, guarded by the map's event loop
	selected []string
}

// Option customises a MainView.
type Option func(*MainView)

// WithDrawingSink forwards draw-end and modify-end events to s.
func WithDrawingSink(s DrawingSink) Option {
	return func(v *MainView) { v.sink = s }
}

// New creates an unattached view.
func New(id string, cfg Config, opts ...Option) (*MainView, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cursor, err := NewCursor(cfg.Centers)
	if err != nil {
		return nil, err
	}
	if cfg.Projection == "" {
		cfg.Projection = projection.EPSG4326
	}
	v := &MainView{id: id, cfg: cfg, cursor: cursor}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// ID returns the view id.
func (v *MainView) ID() string { return v.id }

// Map returns the view's map, or nil before Attach.
func (v *MainView) Map() *olmap.Map { return v.m }

// Source returns the vector source holding the nodes.
func (v *MainView) Source() *olmap.VectorSource { return v.source }

// Ready reports whether the load-complete handler has run.
func (v *MainView) Ready() bool { return v.ready.Load() }

// Attach builds the map and wires its listeners. Later calls do nothing.
func (v *MainView) Attach() *olmap.Map {
	v.attach.Do(func() {
		v.m = olmap.New(olmap.Options{
			ID:         v.id,
			TileSource: v.cfg.TileSource,
			Projection: v.cfg.Projection,
			View: olmap.ViewOptions{
				Center: v.project(v.cfg.Center),
				Zoom:   v.cfg.Zoom,
			},
		})

		v.layer = olmap.NewVectorLayer()
		v.source = olmap.NewVectorSource()
		v.layer.SetSource(v.source)
		v.m.GetLayers().Add(v.layer)

		v.m.AddLoadCompleteListener(v.onLoadComplete)
		v.m.AddListener(olmap.EventSelect, v.onSelect)
		if v.sink != nil {
			v.m.AddListener(olmap.EventDrawEnd, v.onDrawEnd)
			v.m.AddListener(olmap.EventModifyEnd, v.onModifyEnd)
		}
		log.Debug().Str("view", v.id).Str("projection", v.m.Projection()).Msg("View attached")
	})
	return v.m
}

func (v *MainView) onLoadComplete(e *olmap.Event) {
	e.UnregisterListener()
	if !v.ready.CompareAndSwap(false, true) {
		return
	}

	if err := v.m.AddInteraction(olmap.NewModify()); err != nil {
		log.Error().Err(err).Str("view", v.id).Msg("Failed to add modify interaction")
	}
	draw := olmap.NewDraw(olmap.GeometryPoint)
	draw.SetActive(false)
	if err := v.m.AddInteraction(draw); err != nil {
		log.Error().Err(err).Str("view", v.id).Msg("Failed to add draw interaction")
	}
	if err := v.m.AddInteraction(olmap.NewSelect()); err != nil {
		log.Error().Err(err).Str("view", v.id).Msg("Failed to add select interaction")
	}

	features := feature.FromNodes(v.cfg.Nodes, v.cfg.Style, v.project)
	for _, f := range features {
		if err := v.source.AddFeature(f); err != nil {
			log.Error().Err(err).Str("view", v.id).Msg("Failed to add node")
		}
	}

	log.Info().
		Str("view", v.id).
		Int("features", len(features)).
		Msg("Map ready")
}

// onSelect keeps the selection in step with the browser. Ids of features
// the map does not hold are ignored.
func (v *MainView) onSelect(e *olmap.Event) {
	var d olmap.SelectDetail
	if err := e.Decode(&d); err != nil {
		return
	}
	keep := v.selected[:0]
	for _, id := range v.selected {
		if !slices.Contains(d.DeselectedIDs, id) && !slices.Contains(d.SelectedIDs, id) {
			keep = append(keep, id)
		}
	}
	for _, id := range d.SelectedIDs {
		if _, ok := v.source.Feature(id); ok {
			keep = append(keep, id)
		}
	}
	v.selected = keep
	log.Debug().Str("view", v.id).Strs("selected", v.selected).Msg("Selection changed")
}

func (v *MainView) onDrawEnd(e *olmap.Event) {
	var d olmap.DrawEndDetail
	if err := e.Decode(&d); err != nil || d.Feature == nil {
		return
	}
	v.save(ActionDrawn, d.Feature)
}

func (v *MainView) onModifyEnd(e *olmap.Event) {
	var d olmap.ModifyEndDetail
	if err := e.Decode(&d); err != nil || d.Features == nil {
		return
	}
	for _, f := range d.Features.Features {
		v.save(ActionModified, f)
	}
}

func (v *MainView) save(action string, f *geojson.Feature) {
	if err := v.sink.SaveDrawing(v.id, action, f); err != nil {
		log.Warn().Err(err).Str("view", v.id).Str("action", action).Msg("Failed to store drawing")
	}
}

// Recenter moves the map to the next configured center and returns it in
// degrees along with its index in the center list. It is the handler of
// the page's "Set new center" button.
func (v *MainView) Recenter() (orb.Point, int) {
	m := v.Attach()
	var (
		p   orb.Point
		idx int
	)
	m.Do(func() {
		idx = v.cursor.Pos()
		p = v.cursor.Next()
		m.View().SetCenter(v.project(p))
	})
	return p, idx
}

// State is a read-only summary of the view.
type State struct {
	ID           string              `json:"id" doc:"View id"`
	Ready        bool                `json:"ready" doc:"Whether the map finished loading"`
	Projection   string              `json:"projection" doc:"Map projection"`
	View         olmap.ViewOptions   `json:"view" doc:"Current map view"`
	Cursor       int                 `json:"cursor" doc:"Index of the next center"`
	Centers      int                 `json:"centers" doc:"Number of candidate centers"`
	Features     int                 `json:"features" doc:"Number of features on the map"`
	Interactions []olmap.Interaction `json:"interactions" doc:"Attached interactions"`
	Selected     []string            `json:"selected" doc:"Ids of the selected features"`
	TileSource   olmap.TileSource    `json:"tileSource" doc:"Background tiles"`
	CenterTile   string              `json:"centerTile,omitempty" doc:"URL of the tile under the center"`
}

// State returns a snapshot of the view.
func (v *MainView) State() State {
	m := v.Attach()
	var (
		pos      int
		selected []string
	)
	m.Do(func() {
		pos = v.cursor.Pos()
		selected = append([]string{}, v.selected...)
	})

	opts := m.View().Options()
	center := opts.Center
	if m.Projection() == projection.EPSG3857 {
		center = projection.FromWebMercator(center)
	}
	return State{
		ID:           v.id,
		Ready:        v.Ready(),
		Projection:   m.Projection(),
		View:         opts,
		Cursor:       pos,
		Centers:      v.cursor.Len(),
		Features:     v.source.Len(),
		Interactions: m.Interactions(),
		Selected:     selected,
		TileSource:   m.TileSource(),
		CenterTile:   m.TileSource().TileURL(center, opts.Zoom),
	}
}

// Features returns the features currently on the map.
func (v *MainView) Features() []*geojson.Feature {
	v.Attach()
	return v.source.Features()
}

func (v *MainView) project(p orb.Point) orb.Point {
	return projection.Project(p, v.cfg.Projection)
}
