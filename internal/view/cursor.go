package view

import (
	"errors"

	"github.com/paulmach/orb"
)

// ErrNoCenters is returned when a view is configured without any center.
var ErrNoCenters = errors.New("at least one center is required")

// Cursor walks a fixed list of centers, wrapping to the first one after
// the last.
type Cursor struct {
	centers []orb.Point
	pos     int
}

// NewCursor copies centers and positions the cursor on the first one.
func NewCursor(centers []orb.Point) (*Cursor, error) {
	if len(centers) == 0 {
		return nil, ErrNoCenters
	}
	return &Cursor{centers: append([]orb.Point(nil), centers...)}, nil
}

// Next returns the center under the cursor and advances it.
func (c *Cursor) Next() orb.Point {
	p := c.centers[c.pos]
	c.pos = (c.pos + 1) % len(c.centers)
	return p
}

// Pos returns the index Next will read.
func (c *Cursor) Pos() int { return c.pos }

// Len returns the number of centers.
func (c *Cursor) Len() int { return len(c.centers) }
