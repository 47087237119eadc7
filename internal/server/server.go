// Package server wires the services, the huma API and the page handlers
// into one HTTP server.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"github.com/rs/zerolog/log"
	"github.com/tdewolff/minify/v2"
	"golang.org/x/sync/errgroup"

	"github.com/joeblew999/plat-olmap/internal/api"
	"github.com/joeblew999/plat-olmap/internal/api/mapview"
	"github.com/joeblew999/plat-olmap/internal/config"
	"github.com/joeblew999/plat-olmap/internal/db"
	"github.com/joeblew999/plat-olmap/internal/humastar"
	"github.com/joeblew999/plat-olmap/internal/icon"
	"github.com/joeblew999/plat-olmap/internal/service"
	"github.com/joeblew999/plat-olmap/internal/templates"
	"github.com/joeblew999/plat-olmap/internal/view"
	"github.com/joeblew999/plat-olmap/web"
)

// Config holds the server configuration.
type Config struct {
	Host string
	Port int
	// DataDir holds the DuckDB file. Empty keeps drawings in memory.
	DataDir string
	// WebDir overrides the embedded templates and static files.
	WebDir string
	// Demo is the map configuration. Nil means config.Default().
	Demo *config.Config

	ViewTTL    time.Duration
	SweepEvery time.Duration
	MaxViews   int
	Minify     bool
	// NoDB disables DuckDB; the map works, drawings endpoints return 503.
	NoDB bool
}

func (c Config) withDefaults() Config {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 8080
	}
	if c.Demo == nil {
		c.Demo = config.Default()
	}
	if c.ViewTTL == 0 {
		c.ViewTTL = 30 * time.Minute
	}
	if c.SweepEvery == 0 {
		c.SweepEvery = time.Minute
	}
	return c
}

// Addr returns the listen address.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Server is the olmap HTTP server.
type Server struct {
	config   Config
	mux      *http.ServeMux
	handler  http.Handler
	humaAPI  huma.API
	db       *sql.DB
	services *api.Services
	renderer *templates.Renderer
	minifier *minify.M
	links    *humastar.Links
	pin      []byte
}

// New creates a new olmap server.
func New(cfg Config) (*Server, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Demo.Validate(); err != nil {
		return nil, fmt.Errorf("demo config: %w", err)
	}

	s := &Server{
		config: cfg,
		mux:    http.NewServeMux(),
		links:  humastar.NewLinks(),
	}
	if cfg.Minify {
		s.minifier = templates.NewMinifier()
	}

	webFS := fs.FS(web.FS)
	if cfg.WebDir != "" {
		webFS = os.DirFS(cfg.WebDir)
	}
	renderer, err := templates.New(webFS, s.minifier)
	if err != nil {
		return nil, fmt.Errorf("load templates: %w", err)
	}
	s.renderer = renderer

	pin, err := icon.PNG(32, icon.DefaultColor)
	if err != nil {
		return nil, fmt.Errorf("render pin: %w", err)
	}
	s.pin = pin

	// DuckDB is optional: without it the map still works.
	if !cfg.NoDB {
		conn, err := db.Open(db.Config{DataDir: cfg.DataDir, DBName: "olmap"})
		if err != nil {
			log.Warn().Err(err).Msg("DuckDB not available, drawings are not stored")
		} else {
			s.db = conn
		}
	}
	drawings, err := service.NewDrawingStore(context.Background(), s.db)
	if err != nil {
		log.Warn().Err(err).Msg("Drawings table not created, drawings are not stored")
		drawings, _ = service.NewDrawingStore(context.Background(), nil)
	}

	var viewOpts []view.Option
	if drawings.Available() {
		viewOpts = append(viewOpts, view.WithDrawingSink(drawings))
	}
	views, err := service.NewViewService(cfg.Demo.View(),
		service.WithMaxViews(cfg.MaxViews),
		service.WithViewOptions(viewOpts...),
	)
	if err != nil {
		return nil, err
	}
	s.services = &api.Services{Views: views, Drawings: drawings, DB: s.db}

	// Create Huma API with humago (pure stdlib) adapter
	humaConfig := huma.DefaultConfig("plat-olmap API", api.Version)
	humaConfig.Info.Description = "Server-driven OpenLayers map: views, projection and user drawings."
	humaConfig.Servers = []*huma.Server{
		{URL: "http://" + cfg.Addr(), Description: "Local server"},
	}
	// Disable $schema property in responses (cleaner JSON)
	humaConfig.CreateHooks = []func(huma.Config) huma.Config{}
	humaConfig.Transformers = append(humaConfig.Transformers, s.links.Transformer())
	s.humaAPI = humago.New(s.mux, humaConfig)

	s.routes()
	s.handler = RequestLogger(s.mux)
	return s, nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// API returns the huma API, e.g. for exporting the OpenAPI document.
func (s *Server) API() huma.API { return s.humaAPI }

// Views returns the view registry.
func (s *Server) Views() *service.ViewService { return s.services.Views }

// Close closes server resources.
func (s *Server) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *Server) routes() {
	demo := s.config.Demo
	api.RegisterRoutes(s.humaAPI, s.services, api.InfoBody{
		DataDir:    s.config.DataDir,
		DB:         s.db != nil,
		Projection: demo.Projection,
		TileSource: demo.TileSource.Type,
		Centers:    len(demo.Centers),
	})

	maps := mapview.NewHandler(s.services.Views, s.renderer)
	maps.RegisterRoutes(s.humaAPI)

	s.links.Derive(s.humaAPI, "/health", "mapview")

	static, _ := fs.Sub(web.FS, "static")
	if s.config.WebDir != "" {
		static = os.DirFS(filepath.Join(s.config.WebDir, "static"))
	}
	var files http.Handler = http.FileServer(http.FS(static))
	if s.minifier != nil {
		files = s.minifier.Middleware(files)
	}
	s.mux.Handle("GET /static/", http.StripPrefix("/static/", files))
	s.mux.HandleFunc("GET "+icon.Path, s.handleIcon)
	page := maps.Page
	if s.config.WebDir != "" {
		page = s.reloadTemplates(page)
	}
	s.mux.HandleFunc("GET /{$}", page)
}

// reloadTemplates re-reads the templates from WebDir before every page so
// edits show up without a restart. A broken edit keeps the last good set.
func (s *Server) reloadTemplates(next http.HandlerFunc) http.HandlerFunc {
	dir := os.DirFS(s.config.WebDir)
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.renderer.Reload(dir); err != nil {
			log.Warn().Err(err).Str("dir", s.config.WebDir).Msg("Template reload failed")
		}
		next(w, r)
	}
}

func (s *Server) handleIcon(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.Write(s.pin)
}

// Run serves HTTP until ctx is cancelled, evicting idle views and logging
// view lifecycle events alongside.
func (s *Server) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	// open streams end with ctx, so Shutdown does not wait on them
	srv := &http.Server{
		Addr:              s.config.Addr(),
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	g.Go(func() error {
		log.Info().Str("addr", srv.Addr).Msg("Web server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdown)
	})

	g.Go(func() error {
		s.janitor(ctx)
		return nil
	})

	g.Go(func() error {
		s.lifecycle(ctx)
		return nil
	})

	return g.Wait()
}

// janitor evicts views nobody has used for the configured TTL.
func (s *Server) janitor(ctx context.Context) {
	tick := time.NewTicker(s.config.SweepEvery)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			if evicted := s.services.Views.Sweep(s.config.ViewTTL); len(evicted) > 0 {
				log.Info().Int("evicted", len(evicted)).Int("live", s.services.Views.Len()).Msg("Idle views evicted")
			}
		}
	}
}

func (s *Server) lifecycle(ctx context.Context) {
	bus := s.services.Views.Events()
	ch := bus.Subscribe()
	defer bus.Unsubscribe(ch)
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-ch:
			log.Debug().Str("resource", ev.Resource).Str("action", ev.Action).Str("id", ev.ID).Msg("View lifecycle")
		}
	}
}
