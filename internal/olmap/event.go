package olmap

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// EventType names an event raised by the browser map.
type EventType string

const (
	EventLoadComplete        EventType = "load-complete"
	EventMoveEnd             EventType = "map-moveend"
	EventSingleClick         EventType = "map-singleclick"
	EventSelect              EventType = "map-select-select"
	EventDrawEnd             EventType = "map-draw-draw-end"
	EventModifyEnd           EventType = "map-modify-modify-end"
	EventFeatureContextMenu  EventType = "map-feature-contextmenu"
	EventViewportContextMenu EventType = "map-viewport-contextmenu"
	EventResolutionChange    EventType = "view-change:resolution"
)

// EventTypes lists every event the browser may raise.
var EventTypes = []EventType{
	EventLoadComplete,
	EventMoveEnd,
	EventSingleClick,
	EventSelect,
	EventDrawEnd,
	EventModifyEnd,
	EventFeatureContextMenu,
	EventViewportContextMenu,
	EventResolutionChange,
}

// ErrUnknownEvent is returned for event names the map does not raise.
var ErrUnknownEvent = errors.New("unknown map event")

// ParseEventType validates an event name received from the browser.
func ParseEventType(s string) (EventType, error) {
	for _, t := range EventTypes {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownEvent, s)
}

// Event is delivered to listeners. Detail holds the raw JSON payload sent
// by the browser, if any.
type Event struct {
	Type   EventType
	Map    *Map
	Detail json.RawMessage

	unregister func()
}

// UnregisterListener removes the listener currently handling this event.
// It takes effect immediately: later firings never reach the listener.
func (e *Event) UnregisterListener() {
	if e.unregister != nil {
		e.unregister()
	}
}

// Decode unmarshals the event detail into v.
func (e *Event) Decode(v any) error {
	if len(e.Detail) == 0 {
		return fmt.Errorf("%s: empty detail", e.Type)
	}
	if err := json.Unmarshal(e.Detail, v); err != nil {
		return fmt.Errorf("%s: %w", e.Type, err)
	}
	return nil
}

// Listener handles a map event.
type Listener func(e *Event)

// Registration is the handle returned when adding a listener.
type Registration struct {
	m   *Map
	typ EventType
	key uint64
}

// Remove unregisters the listener. Removing twice is a no-op.
func (r Registration) Remove() {
	if r.m != nil {
		r.m.removeListener(r.typ, r.key)
	}
}

type listenerEntry struct {
	key uint64
	fn  Listener
}

// ViewState is the detail of map-moveend and view-change:resolution.
type ViewState struct {
	View struct {
		Center *orb.Point `json:"center,omitempty"`
		Zoom   *float64   `json:"zoom,omitempty"`
	} `json:"view"`
}

// CoordinateDetail is the detail of click and viewport context-menu events.
type CoordinateDetail struct {
	Coordinate orb.Point `json:"coordinate"`
}

// SelectDetail is the detail of map-select-select.
type SelectDetail struct {
	SelectedIDs   []string `json:"selectedIds"`
	DeselectedIDs []string `json:"deselectedIds"`
}

// FeatureDetail is the detail of map-feature-contextmenu.
type FeatureDetail struct {
	FeatureID string `json:"featureId"`
}

// DrawEndDetail is the detail of map-draw-draw-end.
type DrawEndDetail struct {
	Feature *geojson.Feature `json:"feature"`
}

// ModifyEndDetail is the detail of map-modify-modify-end.
type ModifyEndDetail struct {
	Features *geojson.FeatureCollection `json:"features"`
}
