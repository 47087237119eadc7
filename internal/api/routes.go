// Package api defines the Huma API routes and handlers.
package api

import (
	"context"
	"database/sql"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/joeblew999/plat-olmap/internal/feature"
	"github.com/joeblew999/plat-olmap/internal/humastar"
	"github.com/joeblew999/plat-olmap/internal/projection"
	"github.com/joeblew999/plat-olmap/internal/service"
	"github.com/joeblew999/plat-olmap/internal/view"
)

// Services holds the service dependencies for API handlers.
type Services struct {
	Views    *service.ViewService
	Drawings *service.DrawingStore
	DB       *sql.DB
}

// Types

type ViewIDInput struct {
	ID string `path:"id" doc:"View ID" example:"3f1c2a9e-7b1d-4c1e-9a53-0b8f1e2d4c5a"`
}

// ViewBody is the state of one view plus the actions it offers.
type ViewBody struct {
	view.State
}

// viewActions are the follow-up requests a client can make on a view.
var viewActions = []humastar.ActionDef{
	{Rel: "recenter", Pattern: "/api/v1/views/%s/center", Method: http.MethodPost, Title: "Set new center"},
	{Rel: "features", Pattern: "/api/v1/views/%s/features", Method: http.MethodGet},
	{Rel: "drawings", Pattern: "/api/v1/views/%s/drawings", Method: http.MethodGet},
	{Rel: "stream", Pattern: "/api/v1/views/%s/stream", Method: http.MethodGet, Title: "Map command stream"},
}

// Actions implements humastar.Actor.
func (b ViewBody) Actions() []humastar.Action {
	return humastar.ActionsFor(b.ID, viewActions)
}

type ViewOutput struct {
	Body ViewBody
}

type ViewListBody struct {
	Views []string `json:"views" doc:"Live view ids"`
}

type MessageBody struct {
	Message string `json:"message" doc:"Result message"`
}

type HealthBody struct {
	Status  string `json:"status" doc:"Health status" example:"ok"`
	Version string `json:"version" doc:"API version" example:"1.0.0"`
	Views   int    `json:"views" doc:"Number of live views"`
}

type ProjectInput struct {
	Lon float64 `query:"lon" required:"true" minimum:"-180" maximum:"180" doc:"Longitude in degrees" example:"135.9075"`
	Lat float64 `query:"lat" required:"true" exclusiveMinimum:"-90" exclusiveMaximum:"90" doc:"Latitude in degrees" example:"35.120833"`
}

type ProjectBody struct {
	X          float64 `json:"x" doc:"Easting in metres"`
	Y          float64 `json:"y" doc:"Northing in metres"`
	Projection string  `json:"projection" doc:"Target projection" example:"EPSG:3857"`
}

type InverseInput struct {
	X float64 `query:"x" required:"true" minimum:"-20037508.34" maximum:"20037508.34" doc:"Easting in metres"`
	Y float64 `query:"y" required:"true" doc:"Northing in metres"`
}

type InverseBody struct {
	Lon        float64 `json:"lon" doc:"Longitude in degrees"`
	Lat        float64 `json:"lat" doc:"Latitude in degrees"`
	Projection string  `json:"projection" doc:"Target projection" example:"EPSG:4326"`
}

type DrawingsInput struct {
	ViewIDInput
	Offset int `query:"offset" minimum:"0" default:"0" doc:"Items to skip"`
	Limit  int `query:"limit" minimum:"1" maximum:"500" default:"100" doc:"Page size"`
}

type DrawingsOutput struct {
	Body humastar.PageBody[service.Drawing]
}

// APIHandler holds all REST API handlers. Methods named Register* are
// auto-discovered by huma.AutoRegister.
type APIHandler struct {
	svc *Services
}

func NewAPIHandler(svc *Services) *APIHandler {
	return &APIHandler{svc: svc}
}

// RegisterRoutes registers every JSON route of the service.
func RegisterRoutes(api huma.API, svc *Services, info InfoBody) {
	huma.AutoRegister(api, NewAPIHandler(svc))
	NewInfoHandler(info).RegisterRoutes(api)
	NewDBHandler(svc.DB).RegisterRoutes(api)
}

// RegisterHealth registers health check routes.
func (h *APIHandler) RegisterHealth(api huma.API) {
	huma.Get(api, "/health", h.GetHealth, huma.OperationTags("health"))
}

// RegisterProjection registers coordinate conversion routes.
func (h *APIHandler) RegisterProjection(api huma.API) {
	huma.Get(api, "/api/v1/projection", h.Project, huma.OperationTags("projection"))
	huma.Get(api, "/api/v1/projection/inverse", h.Inverse, huma.OperationTags("projection"))
}

// RegisterViews registers view routes.
func (h *APIHandler) RegisterViews(api huma.API) {
	huma.Get(api, "/api/v1/views", h.ListViews, huma.OperationTags("views"))
	huma.Register(api, huma.Operation{
		OperationID:   "create-view",
		Method:        http.MethodPost,
		Path:          "/api/v1/views",
		Summary:       "Create view",
		Tags:          []string{"views"},
		DefaultStatus: http.StatusCreated,
	}, h.CreateView)
	huma.Get(api, "/api/v1/views/{id}", h.GetView, huma.OperationTags("views"))
	huma.Delete(api, "/api/v1/views/{id}", h.DeleteView, huma.OperationTags("views"))
	huma.Get(api, "/api/v1/views/{id}/features", h.GetFeatures, huma.OperationTags("views"))
	huma.Get(api, "/api/v1/views/{id}/drawings", h.GetDrawings, huma.OperationTags("views"))
}

// Handlers

func (h *APIHandler) GetHealth(ctx context.Context, input *struct{}) (*struct{ Body HealthBody }, error) {
	return &struct{ Body HealthBody }{Body: HealthBody{Status: "ok", Version: Version, Views: h.svc.Views.Len()}}, nil
}

func (h *APIHandler) Project(ctx context.Context, input *ProjectInput) (*struct{ Body ProjectBody }, error) {
	p := projection.ToWebMercator(orb.Point{input.Lon, input.Lat})
	return &struct{ Body ProjectBody }{Body: ProjectBody{X: p[0], Y: p[1], Projection: projection.EPSG3857}}, nil
}

func (h *APIHandler) Inverse(ctx context.Context, input *InverseInput) (*struct{ Body InverseBody }, error) {
	p := projection.FromWebMercator(orb.Point{input.X, input.Y})
	return &struct{ Body InverseBody }{Body: InverseBody{Lon: p[0], Lat: p[1], Projection: projection.EPSG4326}}, nil
}

func (h *APIHandler) ListViews(ctx context.Context, input *struct{}) (*struct{ Body ViewListBody }, error) {
	return &struct{ Body ViewListBody }{Body: ViewListBody{Views: h.svc.Views.List()}}, nil
}

func (h *APIHandler) CreateView(ctx context.Context, input *struct{}) (*ViewOutput, error) {
	v, err := h.svc.Views.Create()
	if err != nil {
		return nil, viewError(err)
	}
	return &ViewOutput{Body: ViewBody{State: v.State()}}, nil
}

func (h *APIHandler) GetView(ctx context.Context, input *ViewIDInput) (*ViewOutput, error) {
	v, err := h.view(input.ID)
	if err != nil {
		return nil, err
	}
	return &ViewOutput{Body: ViewBody{State: v.State()}}, nil
}

func (h *APIHandler) DeleteView(ctx context.Context, input *ViewIDInput) (*struct{ Body MessageBody }, error) {
	if err := h.svc.Views.Delete(input.ID); err != nil {
		return nil, viewError(err)
	}
	return &struct{ Body MessageBody }{Body: MessageBody{Message: "View deleted"}}, nil
}

func (h *APIHandler) GetFeatures(ctx context.Context, input *ViewIDInput) (*struct{ Body *geojson.FeatureCollection }, error) {
	v, err := h.view(input.ID)
	if err != nil {
		return nil, err
	}
	return &struct{ Body *geojson.FeatureCollection }{Body: feature.Collection(v.Features())}, nil
}

func (h *APIHandler) GetDrawings(ctx context.Context, input *DrawingsInput) (*DrawingsOutput, error) {
	if _, err := h.view(input.ID); err != nil {
		return nil, err
	}
	if !h.svc.Drawings.Available() {
		return nil, huma.Error503ServiceUnavailable("Database not available")
	}
	drawings, err := h.svc.Drawings.List(ctx, input.ID)
	if err != nil {
		return nil, huma.Error500InternalServerError("Failed to list drawings", err)
	}
	return &DrawingsOutput{Body: humastar.Page(drawings, input.Offset, input.Limit)}, nil
}

func (h *APIHandler) view(id string) (*view.MainView, error) {
	v, ok := h.svc.Views.Get(id)
	if !ok {
		return nil, huma.Error404NotFound("view not found")
	}
	return v, nil
}

// viewError maps service errors to HTTP errors.
func viewError(err error) error {
	switch {
	case errors.Is(err, service.ErrViewNotFound):
		return huma.Error404NotFound("view not found", err)
	case errors.Is(err, service.ErrTooManyViews):
		return huma.Error503ServiceUnavailable("too many open views", err)
	}
	return huma.Error500InternalServerError("view failure", err)
}
