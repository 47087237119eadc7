// Package olmap models an OpenLayers map on the server.
//
// The Map owns the authoritative state (tile source, view, vector layers,
// interactions) and publishes every mutation as a Command on its Bus. A
// browser attached through an SSE stream replays Snapshot and then follows
// the live commands. Events raised in the browser come back through
// Dispatch and reach listeners registered with AddListener.
//
// Event dispatch is serialised per map: Dispatch and Do share one lock, so
// everything a page does on its map runs as if on a single event loop.
package olmap

import (
	"sync"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/joeblew999/plat-olmap/internal/projection"
)

// ViewOptions is the visible part of the map.
type ViewOptions struct {
	Center orb.Point `json:"center" doc:"Map center in the map projection"`
	Zoom   float64   `json:"zoom" doc:"Zoom level"`
}

// Options configures a new Map.
type Options struct {
	ID         string
	TileSource TileSource
	View       ViewOptions
	// Projection of every coordinate exchanged with the browser.
	// Defaults to EPSG:4326.
	Projection string
}

// Map is the server-side state of one browser map.
type Map struct {
	id         string
	projection string
	bus        *Bus

	loop sync.Mutex // serialises Dispatch and Do

	mu           sync.RWMutex
	tileSource   TileSource
	view         ViewOptions
	layers       []*VectorLayer
	interactions map[string]*Interaction
	order        []string
	listeners    map[EventType][]listenerEntry
	nextKey      uint64
	loaded       bool
}

// New creates a map.
func New(opts Options) *Map {
	if opts.ID == "" {
		opts.ID = uuid.NewString()
	}
	if opts.TileSource.Type == "" {
		opts.TileSource = OSM()
	}
	if !projection.Valid(opts.Projection) {
		opts.Projection = projection.EPSG4326
	}
	return &Map{
		id:           opts.ID,
		projection:   opts.Projection,
		bus:          NewBus(),
		tileSource:   opts.TileSource,
		view:         opts.View,
		interactions: make(map[string]*Interaction),
		listeners:    make(map[EventType][]listenerEntry),
	}
}

// ID returns the map id.
func (m *Map) ID() string { return m.id }

// Projection returns the EPSG code of the map's coordinates.
func (m *Map) Projection() string { return m.projection }

// Bus returns the command bus.
func (m *Map) Bus() *Bus { return m.bus }

// TileSource returns the background tile source.
func (m *Map) TileSource() TileSource {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tileSource
}

// SetTileSource replaces the background tile source.
func (m *Map) SetTileSource(s TileSource) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tileSource = s
	m.bus.Publish(Command{Op: OpTileSource, Args: s})
}

// View is a handle on the map's mutable view.
type View struct {
	m *Map
}

// View returns the map's view.
func (m *Map) View() View { return View{m: m} }

// Options returns a copy of the current view options.
func (v View) Options() ViewOptions {
	v.m.mu.RLock()
	defer v.m.mu.RUnlock()
	return v.m.view
}

// Center returns the current center.
func (v View) Center() orb.Point { return v.Options().Center }

// Zoom returns the current zoom.
func (v View) Zoom() float64 { return v.Options().Zoom }

// SetCenter moves the view.
func (v View) SetCenter(p orb.Point) {
	v.set(func(o *ViewOptions) { o.Center = p }, true)
}

// SetZoom zooms the view.
func (v View) SetZoom(z float64) {
	v.set(func(o *ViewOptions) { o.Zoom = z }, true)
}

func (v View) set(fn func(*ViewOptions), emit bool) {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	fn(&v.m.view)
	if emit {
		v.m.bus.Publish(Command{Op: OpViewOptions, Args: v.m.view})
	}
}

// Layers is a handle on the map's layer collection.
type Layers struct {
	m *Map
}

// GetLayers returns the map's layer collection.
func (m *Map) GetLayers() Layers { return Layers{m: m} }

// Add appends a vector layer. Features already in its source are sent along.
func (l Layers) Add(layer *VectorLayer) {
	m := l.m
	m.mu.Lock()
	defer m.mu.Unlock()

	m.layers = append(m.layers, layer)
	m.bus.Publish(Command{Op: OpAddLayer, Args: LayerArgs{ID: layer.id, ZIndex: layer.zIndex}})

	if s := layer.source; s != nil {
		s.mu.Lock()
		s.bus = m.bus
		s.owner.Store(m)
		if len(s.features) > 0 {
			s.publish(Command{Op: OpAddFeatures, Args: FeaturesArgs{Layer: layer.id, Features: append([]*geojson.Feature(nil), s.features...)}})
		}
		s.mu.Unlock()
	}
}

// All returns the layers in stacking order.
func (l Layers) All() []*VectorLayer {
	l.m.mu.RLock()
	defer l.m.mu.RUnlock()
	out := make([]*VectorLayer, len(l.m.layers))
	copy(out, l.m.layers)
	return out
}

// Loaded reports whether the browser has signalled load-complete.
func (m *Map) Loaded() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loaded
}

// Do runs fn on the map's event loop.
func (m *Map) Do(fn func()) {
	m.loop.Lock()
	defer m.loop.Unlock()
	fn()
}

// AddListener registers fn for events of type t.
func (m *Map) AddListener(t EventType, fn Listener) Registration {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextKey++
	m.listeners[t] = append(m.listeners[t], listenerEntry{key: m.nextKey, fn: fn})
	return Registration{m: m, typ: t, key: m.nextKey}
}

// AddLoadCompleteListener registers fn for the load-complete event.
func (m *Map) AddLoadCompleteListener(fn Listener) Registration {
	return m.AddListener(EventLoadComplete, fn)
}

// ListenerCount returns the number of listeners for t.
func (m *Map) ListenerCount(t EventType) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.listeners[t])
}

func (m *Map) removeListener(t EventType, key uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entries := m.listeners[t]
	for i, e := range entries {
		if e.key == key {
			m.listeners[t] = append(entries[:i:i], entries[i+1:]...)
			return
		}
	}
}

func (m *Map) hasListener(t EventType, key uint64) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, e := range m.listeners[t] {
		if e.key == key {
			return true
		}
	}
	return false
}

// Dispatch delivers a browser event. The map first folds the event into its
// own state, then calls the listeners in registration order. A listener
// removed while the event is being delivered is skipped. Listeners must not
// call Dispatch or Do.
func (m *Map) Dispatch(t EventType, detail []byte) error {
	m.loop.Lock()
	defer m.loop.Unlock()

	ev := &Event{Type: t, Map: m, Detail: detail}
	if err := m.apply(ev); err != nil {
		return err
	}

	m.mu.RLock()
	entries := append([]listenerEntry(nil), m.listeners[t]...)
	m.mu.RUnlock()

	for _, e := range entries {
		if !m.hasListener(t, e.key) {
			continue
		}
		key := e.key
		ev.unregister = func() { m.removeListener(t, key) }
		e.fn(ev)
	}
	ev.unregister = nil
	return nil
}

// apply keeps the server state in step with what the browser already shows.
// None of these updates are echoed back as commands.
func (m *Map) apply(ev *Event) error {
	switch ev.Type {
	case EventLoadComplete:
		m.mu.Lock()
		m.loaded = true
		m.mu.Unlock()

	case EventMoveEnd, EventResolutionChange:
		var st ViewState
		if err := ev.Decode(&st); err != nil {
			return err
		}
		m.View().set(func(o *ViewOptions) {
			if st.View.Center != nil {
				o.Center = *st.View.Center
			}
			if st.View.Zoom != nil {
				o.Zoom = *st.View.Zoom
			}
		}, false)

	case EventDrawEnd:
		var d DrawEndDetail
		if err := ev.Decode(&d); err != nil {
			return err
		}
		if d.Feature == nil {
			return nil
		}
		if s := m.firstSource(); s != nil {
			// a duplicate means the browser replayed the event
			_ = s.add(d.Feature, false)
		}

	case EventSelect:
		var d SelectDetail
		if err := ev.Decode(&d); err != nil {
			return err
		}

	case EventModifyEnd:
		var d ModifyEndDetail
		if err := ev.Decode(&d); err != nil {
			return err
		}
		if d.Features == nil {
			return nil
		}
		s := m.firstSource()
		if s == nil {
			return nil
		}
		for _, f := range d.Features.Features {
			old, ok := s.Feature(FeatureID(f))
			if !ok {
				continue
			}
			if f.Properties == nil || len(f.Properties) == 0 {
				f.Properties = old.Properties
			}
			_ = s.update(f, false)
		}
	}
	return nil
}

func (m *Map) firstSource() *VectorSource {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, l := range m.layers {
		if l.source != nil {
			return l.source
		}
	}
	return nil
}

// Snapshot returns the commands that rebuild the current map from scratch.
func (m *Map) Snapshot() []Command {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshotLocked()
}

// Sync atomically takes a snapshot and subscribes to the commands that
// follow it. The caller must Unsubscribe the channel.
func (m *Map) Sync() ([]Command, chan Command) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked(), m.bus.Subscribe()
}

// Unsubscribe releases a channel returned by Sync.
func (m *Map) Unsubscribe(ch chan Command) {
	m.bus.Unsubscribe(ch)
}

// Close ends every open subscription, so attached browsers stop following
// the map.
func (m *Map) Close() {
	m.bus.Close()
}

// snapshotLocked needs m.mu. Source mutations also hold m.mu for reading,
// so while the write lock is held the sources cannot change.
func (m *Map) snapshotLocked() []Command {
	cmds := []Command{
		{Op: OpReset, Args: ResetArgs{Projection: m.projection}},
		{Op: OpTileSource, Args: m.tileSource},
		{Op: OpViewOptions, Args: m.view},
	}
	for _, l := range m.layers {
		cmds = append(cmds, Command{Op: OpAddLayer, Args: LayerArgs{ID: l.id, ZIndex: l.zIndex}})
		if l.source == nil {
			continue
		}
		if features := l.source.Features(); len(features) > 0 {
			cmds = append(cmds, Command{Op: OpAddFeatures, Args: FeaturesArgs{Layer: l.id, Features: features}})
		}
	}
	for _, i := range m.interactionsLocked() {
		cmds = append(cmds, Command{Op: OpAddInteraction, Args: i})
	}
	return cmds
}
