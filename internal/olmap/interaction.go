package olmap

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// InteractionType is the kind of user interaction attached to a map.
type InteractionType string

const (
	InteractionSelect InteractionType = "Select"
	InteractionDraw   InteractionType = "Draw"
	InteractionSnap   InteractionType = "Snap"
	InteractionModify InteractionType = "Modify"
)

// GeometryType is a geometry the Draw interaction can produce.
type GeometryType string

const (
	GeometryPoint      GeometryType = "Point"
	GeometryLineString GeometryType = "LineString"
)

var (
	// ErrDuplicateInteraction is returned when an interaction id is reused.
	ErrDuplicateInteraction = errors.New("interaction already attached")
	// ErrInteractionNotFound is returned for unknown interaction ids.
	ErrInteractionNotFound = errors.New("interaction not found")
)

// Interaction is a user interaction on the map. Its state is mirrored to
// the browser once it has been added to a map.
type Interaction struct {
	ID      string          `json:"id" doc:"Interaction id"`
	Type    InteractionType `json:"type" enum:"Select,Draw,Snap,Modify" doc:"Interaction kind"`
	Options map[string]any  `json:"options,omitempty" doc:"Interaction options"`
	Active  bool            `json:"active" doc:"Whether the interaction reacts to input"`

	// m is set once by AddInteraction and never cleared. Active is guarded
	// by m.mu from then on.
	m *Map
}

// NewModify returns an active Modify interaction for the map's vector features.
func NewModify() *Interaction {
	return &Interaction{ID: uuid.NewString(), Type: InteractionModify, Active: true}
}

// NewDraw returns an active Draw interaction producing geometries of type g.
func NewDraw(g GeometryType) *Interaction {
	return &Interaction{
		ID:      uuid.NewString(),
		Type:    InteractionDraw,
		Options: map[string]any{"type": g},
		Active:  true,
	}
}

// NewSelect returns an active Select interaction.
func NewSelect() *Interaction {
	return &Interaction{ID: uuid.NewString(), Type: InteractionSelect, Active: true}
}

// SetActive toggles the interaction. While attached, the change goes
// through the map so the browser follows.
func (i *Interaction) SetActive(active bool) {
	if i.m == nil {
		i.Active = active
		return
	}
	i.m.setActive(i, active)
}

// IsActive reports the current state.
func (i *Interaction) IsActive() bool {
	if i.m == nil {
		return i.Active
	}
	i.m.mu.RLock()
	defer i.m.mu.RUnlock()
	return i.Active
}

func (m *Map) setActive(i *Interaction, active bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i.Active = active
	if m.interactions[i.ID] == i {
		m.bus.Publish(Command{Op: OpUpdateInteraction, Args: InteractionStateArgs{ID: i.ID, Active: &active}})
	}
}

// AddInteraction attaches i to the map.
func (m *Map) AddInteraction(i *Interaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if i.ID == "" {
		i.ID = uuid.NewString()
	}
	if _, ok := m.interactions[i.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateInteraction, i.ID)
	}
	if i.m != nil && i.m != m {
		return fmt.Errorf("%w: %s is attached to map %s", ErrDuplicateInteraction, i.ID, i.m.id)
	}
	i.m = m
	m.interactions[i.ID] = i
	m.order = append(m.order, i.ID)
	m.bus.Publish(Command{Op: OpAddInteraction, Args: i.clone()})
	return nil
}

// UpdateInteraction sets the active flag of an attached interaction.
func (m *Map) UpdateInteraction(id string, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	i, ok := m.interactions[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrInteractionNotFound, id)
	}
	i.Active = active
	m.bus.Publish(Command{Op: OpUpdateInteraction, Args: InteractionStateArgs{ID: id, Active: &active}})
	return nil
}

// RemoveInteraction detaches an interaction.
func (m *Map) RemoveInteraction(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.interactions[id]; !ok {
		return fmt.Errorf("%w: %s", ErrInteractionNotFound, id)
	}
	delete(m.interactions, id)
	for n, oid := range m.order {
		if oid == id {
			m.order = append(m.order[:n], m.order[n+1:]...)
			break
		}
	}
	m.bus.Publish(Command{Op: OpRemoveInteraction, Args: InteractionStateArgs{ID: id}})
	return nil
}

// Interactions returns copies of the attached interactions in attach order.
func (m *Map) Interactions() []Interaction {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.interactionsLocked()
}

func (m *Map) interactionsLocked() []Interaction {
	out := make([]Interaction, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.interactions[id].clone())
	}
	return out
}

func (i *Interaction) clone() Interaction {
	c := Interaction{ID: i.ID, Type: i.Type, Active: i.Active}
	if i.Options != nil {
		c.Options = make(map[string]any, len(i.Options))
		for k, v := range i.Options {
			c.Options[k] = v
		}
	}
	return c
}
