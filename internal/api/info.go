package api

import (
	"context"

	"github.com/danielgtaylor/huma/v2"
)

// Version is the API version reported by /health and /api/v1/info.
const Version = "0.1.0"

type InfoHandler struct {
	info InfoBody
}

func NewInfoHandler(info InfoBody) *InfoHandler {
	if info.Name == "" {
		info.Name = "plat-olmap"
	}
	if info.Version == "" {
		info.Version = Version
	}
	if info.Features == nil {
		info.Features = []string{"openlayers", "datastar", "projection", "drawings"}
	}
	return &InfoHandler{info: info}
}

func (h *InfoHandler) RegisterRoutes(api huma.API) {
	huma.Get(api, "/api/v1/info", h.GetInfo, huma.OperationTags("health"))
}

type InfoBody struct {
	Name       string   `json:"name" doc:"Service name"`
	Version    string   `json:"version" doc:"Service version"`
	DataDir    string   `json:"data_dir" doc:"Data directory path"`
	DB         bool     `json:"db" doc:"Whether database is available"`
	Projection string   `json:"projection" doc:"Projection of coordinates exchanged with the browser"`
	TileSource string   `json:"tile_source" doc:"Background tile provider"`
	Centers    int      `json:"centers" doc:"Number of places the view cycles through"`
	Features   []string `json:"features" doc:"Available features"`
}

func (h *InfoHandler) GetInfo(ctx context.Context, input *struct{}) (*struct{ Body InfoBody }, error) {
	return &struct{ Body InfoBody }{Body: h.info}, nil
}
