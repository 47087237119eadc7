// Package mapview contains the Datastar handlers that drive the map page:
// the page itself, its command stream, the recenter button and the
// callbacks the browser map posts its events to.
package mapview

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/rs/zerolog/log"

	"github.com/joeblew999/plat-olmap/internal/feature"
	"github.com/joeblew999/plat-olmap/internal/humastar"
	"github.com/joeblew999/plat-olmap/internal/olmap"
	"github.com/joeblew999/plat-olmap/internal/projection"
	"github.com/joeblew999/plat-olmap/internal/service"
	"github.com/joeblew999/plat-olmap/internal/templates"
	"github.com/joeblew999/plat-olmap/internal/view"
)

// applyFn is the browser function every map command is passed to.
const applyFn = "olmap.apply"

// Handler serves the map page and its Datastar endpoints.
type Handler struct {
	humastar.Handler
	views     *service.ViewService
	heartbeat time.Duration
}

// NewHandler creates a new map view handler.
func NewHandler(views *service.ViewService, renderer *templates.Renderer) *Handler {
	return &Handler{
		Handler:   humastar.Handler{Renderer: renderer},
		views:     views,
		heartbeat: 15 * time.Second,
	}
}

func (h *Handler) RegisterRoutes(api huma.API) {
	huma.Get(api, "/api/v1/views/{id}/stream", h.StreamView,
		huma.OperationTags("mapview"),
	)
	huma.Register(api, huma.Operation{
		OperationID: "recenter-view",
		Method:      http.MethodPost,
		Path:        "/api/v1/views/{id}/center",
		Summary:     "Set new center",
		Tags:        []string{"mapview"},
		RequestBody: optionalJSON("Datastar signals of the page"),
	}, h.Center)
	huma.Register(api, huma.Operation{
		OperationID:   "post-map-event",
		Method:        http.MethodPost,
		Path:          "/api/v1/views/{id}/events/{event}",
		Summary:       "Deliver a browser map event",
		Tags:          []string{"mapview"},
		RequestBody:   optionalJSON("Event detail"),
		DefaultStatus: http.StatusNoContent,
	}, h.Event)
}

// optionalJSON describes a raw JSON body that may be empty. Datastar and
// the map script both post without a body at times.
func optionalJSON(desc string) *huma.RequestBody {
	return &huma.RequestBody{
		Description: desc,
		Required:    false,
		Content: map[string]*huma.MediaType{
			"application/json": {},
		},
	}
}

type ViewInput struct {
	ID string `path:"id" doc:"View ID"`
}

// StreamView replays the map state and then forwards every change.
func (h *Handler) StreamView(ctx context.Context, input *ViewInput) (*huma.StreamResponse, error) {
	v, ok := h.views.Get(input.ID)
	if !ok {
		return nil, huma.Error404NotFound("view not found")
	}

	return h.Stream(func(sse humastar.SSE) {
		m := v.Map()
		snapshot, ch := m.Sync()
		defer m.Unsubscribe(ch)

		ready := v.Ready()
		sse.Signals(map[string]any{"viewId": v.ID(), "connected": true, "ready": ready})
		for _, c := range snapshot {
			if err := sse.Call(applyFn, c); err != nil {
				return
			}
		}
		h.patchNodes(sse, v)
		log.Debug().Str("view", v.ID()).Int("commands", len(snapshot)).Msg("Stream opened")

		tick := time.NewTicker(h.heartbeat)
		defer tick.Stop()
		for {
			select {
			case <-ctx.Done():
				log.Debug().Str("view", v.ID()).Msg("Stream closed")
				return
			case <-tick.C:
				h.views.Touch(v.ID())
			case c, ok := <-ch:
				if !ok {
					sse.Fail("view closed, reload the page")
					return
				}
				if err := sse.Call(applyFn, c); err != nil {
					return
				}
				switch c.Op {
				case olmap.OpAddFeatures, olmap.OpUpdateFeature, olmap.OpRemoveFeature:
					h.patchNodes(sse, v)
				}
				if !ready && v.Ready() {
					ready = true
					sse.Signals(map[string]any{"ready": true})
				}
			}
		}
	}), nil
}

type CenterInput struct {
	ID string `path:"id" doc:"View ID"`
	humastar.SignalsInput
}

// CenterLabel is the data of the center-label fragment.
type CenterLabel struct {
	Index int
	Lon   float64
	Lat   float64
}

// Center handles the "Set new center" button.
func (h *Handler) Center(ctx context.Context, input *CenterInput) (*huma.StreamResponse, error) {
	signals, err := input.Signals()
	if err != nil {
		return nil, err
	}
	v, ok := h.views.Get(input.ID)
	if !ok {
		return nil, huma.Error404NotFound("view not found")
	}
	if signals.Has("cursor") && signals.Int("cursor") != v.State().Cursor {
		log.Debug().Str("view", v.ID()).Int("page", signals.Int("cursor")).Msg("Page cursor is stale")
	}

	p, idx := v.Recenter()
	label := &CenterLabel{Index: idx, Lon: p.Lon(), Lat: p.Lat()}
	next := (idx + 1) % v.State().Centers
	log.Info().Str("view", v.ID()).Int("index", idx).Float64("lon", p.Lon()).Float64("lat", p.Lat()).Msg("Center changed")

	return h.Stream(func(sse humastar.SSE) {
		sse.Signals(map[string]any{
			"center": map[string]float64{"lon": p.Lon(), "lat": p.Lat()},
			"cursor": next,
		})
		sse.Patch(h.Render("center-label", label), "#center-label")
	}), nil
}

type EventInput struct {
	ID      string `path:"id" doc:"View ID"`
	Event   string `path:"event" doc:"Map event type" example:"load-complete"`
	RawBody []byte
}

// Event folds a browser map event into the view.
func (h *Handler) Event(ctx context.Context, input *EventInput) (*struct{}, error) {
	t, err := olmap.ParseEventType(input.Event)
	if err != nil {
		return nil, huma.Error400BadRequest(err.Error())
	}
	v, ok := h.views.Get(input.ID)
	if !ok {
		return nil, huma.Error404NotFound("view not found")
	}

	var detail json.RawMessage
	if len(input.RawBody) > 0 {
		if !json.Valid(input.RawBody) {
			return nil, huma.Error400BadRequest("event detail is not JSON")
		}
		detail = input.RawBody
	}
	if err := v.Map().Dispatch(t, detail); err != nil {
		return nil, huma.Error400BadRequest("malformed event detail", err)
	}
	return &struct{}{}, nil
}

// NodeItem is the data of the node-item fragment.
type NodeItem struct {
	ID   string
	Name string
	Lon  float64
	Lat  float64
}

func (h *Handler) patchNodes(sse humastar.SSE, v *view.MainView) {
	if h.Renderer == nil {
		return
	}
	items := nodeItems(v.Features(), v.Map().Projection())
	sse.Patch(h.RenderList("node-item", items, "No nodes", "Waiting for the map to load"), "#node-list")
}

func nodeItems(features []*geojson.Feature, proj string) []any {
	items := make([]any, 0, len(features))
	for _, f := range features {
		p, ok := f.Geometry.(orb.Point)
		if !ok {
			continue
		}
		if proj == projection.EPSG3857 {
			p = projection.FromWebMercator(p)
		}
		name := feature.Label(f)
		if name == "" {
			name = fmt.Sprintf("Drawn %s", shortID(olmap.FeatureID(f)))
		}
		items = append(items, NodeItem{ID: olmap.FeatureID(f), Name: name, Lon: p.Lon(), Lat: p.Lat()})
	}
	return items
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
