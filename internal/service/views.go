// Package service holds the long-lived state behind the HTTP surface: the
// registry of live map views and the store of user drawings.
package service

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/joeblew999/plat-olmap/internal/view"
)

var (
	// ErrViewNotFound is returned for unknown view ids.
	ErrViewNotFound = errors.New("view not found")
	// ErrTooManyViews is returned when the registry is full.
	ErrTooManyViews = errors.New("too many open views")
)

type entry struct {
	view     *view.MainView
	lastSeen time.Time
}

// ViewService manages the live views, one per open page.
type ViewService struct {
	cfg      view.Config
	opts     []view.Option
	maxViews int
	bus      *EventBus
	now      func() time.Time

	views map[string]*entry
	mu    sync.RWMutex
}

// ViewServiceOption customises a ViewService.
type ViewServiceOption func(*ViewService)

// WithMaxViews caps the number of live views. Zero means no limit.
func WithMaxViews(n int) ViewServiceOption {
	return func(s *ViewService) { s.maxViews = n }
}

// WithViewOptions passes opts to every view the service creates.
func WithViewOptions(opts ...view.Option) ViewServiceOption {
	return func(s *ViewService) { s.opts = append(s.opts, opts...) }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) ViewServiceOption {
	return func(s *ViewService) { s.now = now }
}

// NewViewService creates a view registry. cfg is validated once here so
// Create only fails on capacity.
func NewViewService(cfg view.Config, opts ...ViewServiceOption) (*ViewService, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &ViewService{
		cfg:   cfg,
		bus:   NewEventBus(),
		now:   time.Now,
		views: make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Events returns the lifecycle event bus.
func (s *ViewService) Events() *EventBus { return s.bus }

// Config returns the configuration views are created from.
func (s *ViewService) Config() view.Config { return s.cfg }

// Create builds and attaches a new view.
func (s *ViewService) Create() (*view.MainView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.maxViews > 0 && len(s.views) >= s.maxViews {
		return nil, ErrTooManyViews
	}

	id := uuid.NewString()
	v, err := view.New(id, s.cfg, s.opts...)
	if err != nil {
		return nil, fmt.Errorf("create view: %w", err)
	}
	v.Attach()

	s.views[id] = &entry{view: v, lastSeen: s.now()}
	s.bus.Publish(Event{Resource: "views", Action: ActionCreated, ID: id})
	return v, nil
}

// Get returns a view by ID and marks it as used.
func (s *ViewService) Get(id string) (*view.MainView, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.views[id]
	if !ok {
		return nil, false
	}
	e.lastSeen = s.now()
	return e.view, true
}

// Touch marks a view as used.
func (s *ViewService) Touch(id string) bool {
	_, ok := s.Get(id)
	return ok
}

// List returns the ids of all live views, sorted.
func (s *ViewService) List() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.views))
	for id := range s.views {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of live views.
func (s *ViewService) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.views)
}

// Delete removes a view by ID.
func (s *ViewService) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.views[id]
	if !ok {
		return fmt.Errorf("%w: %q", ErrViewNotFound, id)
	}
	delete(s.views, id)
	e.view.Map().Close()
	s.bus.Publish(Event{Resource: "views", Action: ActionDeleted, ID: id})
	return nil
}

// Sweep evicts views idle for longer than maxIdle and returns their ids.
// A view with a connected stream is never idle.
func (s *ViewService) Sweep(maxIdle time.Duration) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var evicted []string
	for id, e := range s.views {
		if e.view.Map().Bus().Len() > 0 {
			e.lastSeen = now
			continue
		}
		if now.Sub(e.lastSeen) <= maxIdle {
			continue
		}
		delete(s.views, id)
		evicted = append(evicted, id)
		s.bus.Publish(Event{Resource: "views", Action: ActionEvicted, ID: id})
	}
	sort.Strings(evicted)
	return evicted
}
