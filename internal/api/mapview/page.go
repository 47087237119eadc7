package mapview

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/joeblew999/plat-olmap/internal/service"
)

// PageData is the data of the index template.
type PageData struct {
	Title      string
	ViewID     string
	Projection string
	Signals    string
	StreamURL  string
	CenterURL  string
	EventsURL  string
	Center     *CenterLabel
}

// Page renders the demo page for a fresh view.
func (h *Handler) Page(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if h.Renderer == nil {
		http.Error(w, "Templates not loaded", http.StatusServiceUnavailable)
		return
	}

	v, err := h.views.Create()
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, service.ErrTooManyViews) {
			status = http.StatusServiceUnavailable
		}
		log.Error().Err(err).Msg("Failed to create view")
		http.Error(w, err.Error(), status)
		return
	}

	base := "/api/v1/views/" + v.ID()
	signals, _ := json.Marshal(map[string]any{
		"viewId":    v.ID(),
		"connected": false,
		"ready":     false,
		"cursor":    0,
		"error":     "",
	})
	html, err := h.Renderer.Render("index", PageData{
		Title:      "OpenLayers demo",
		ViewID:     v.ID(),
		Projection: v.Map().Projection(),
		Signals:    string(signals),
		StreamURL:  base + "/stream",
		CenterURL:  base + "/center",
		EventsURL:  base + "/events",
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to render page")
		http.Error(w, "Failed to render page", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.Write([]byte(html))
}
