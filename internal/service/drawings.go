package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/paulmach/orb/geojson"

	"github.com/joeblew999/plat-olmap/internal/olmap"
)

// ErrNoDatabase is returned when the store has no database behind it.
var ErrNoDatabase = errors.New("database not available")

const createDrawings = `CREATE TABLE IF NOT EXISTS drawings (
	view_id       VARCHAR NOT NULL,
	feature_id    VARCHAR NOT NULL,
	geometry_type VARCHAR NOT NULL,
	geojson       VARCHAR NOT NULL,
	action        VARCHAR NOT NULL,
	created_at    TIMESTAMP NOT NULL
)`

// Drawing is a feature drawn or edited in the browser.
type Drawing struct {
	ViewID       string           `json:"viewId" doc:"View the drawing came from"`
	FeatureID    string           `json:"featureId" doc:"Feature id"`
	GeometryType string           `json:"geometryType" doc:"GeoJSON geometry type" example:"Point"`
	Action       string           `json:"action" enum:"drawn,modified" doc:"What the user did"`
	Feature      *geojson.Feature `json:"feature" doc:"The feature as GeoJSON"`
	CreatedAt    time.Time        `json:"createdAt" doc:"When the drawing was stored"`
}

// DrawingStore persists drawings to DuckDB.
type DrawingStore struct {
	db      *sql.DB
	timeout time.Duration
	now     func() time.Time
}

// NewDrawingStore creates the drawings table if needed. A nil db yields a
// store whose methods return ErrNoDatabase.
func NewDrawingStore(ctx context.Context, db *sql.DB) (*DrawingStore, error) {
	s := &DrawingStore{db: db, timeout: 5 * time.Second, now: time.Now}
	if db == nil {
		return s, nil
	}
	if _, err := db.ExecContext(ctx, createDrawings); err != nil {
		return nil, fmt.Errorf("create drawings table: %w", err)
	}
	return s, nil
}

// Available reports whether the store has a database.
func (s *DrawingStore) Available() bool { return s != nil && s.db != nil }

// Save stores one drawing.
func (s *DrawingStore) Save(ctx context.Context, d Drawing) error {
	if !s.Available() {
		return ErrNoDatabase
	}
	if d.Feature == nil || d.Feature.Geometry == nil {
		return errors.New("drawing has no geometry")
	}
	data, err := d.Feature.MarshalJSON()
	if err != nil {
		return err
	}
	if d.FeatureID == "" {
		d.FeatureID = olmap.FeatureID(d.Feature)
	}
	if d.GeometryType == "" {
		d.GeometryType = d.Feature.Geometry.GeoJSONType()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = s.now().UTC()
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO drawings (view_id, feature_id, geometry_type, geojson, action, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		d.ViewID, d.FeatureID, d.GeometryType, string(data), d.Action, d.CreatedAt)
	return err
}

// SaveDrawing stores a feature reported by a view.
func (s *DrawingStore) SaveDrawing(viewID, action string, f *geojson.Feature) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	return s.Save(ctx, Drawing{ViewID: viewID, Action: action, Feature: f})
}

// List returns the drawings of a view in the order they were stored.
func (s *DrawingStore) List(ctx context.Context, viewID string) ([]Drawing, error) {
	if !s.Available() {
		return nil, ErrNoDatabase
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT view_id, feature_id, geometry_type, geojson, action, created_at
		 FROM drawings WHERE view_id = ? ORDER BY created_at, rowid`, viewID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	drawings := []Drawing{}
	for rows.Next() {
		var (
			d    Drawing
			data string
		)
		if err := rows.Scan(&d.ViewID, &d.FeatureID, &d.GeometryType, &data, &d.Action, &d.CreatedAt); err != nil {
			return nil, err
		}
		if d.Feature, err = geojson.UnmarshalFeature([]byte(data)); err != nil {
			return nil, fmt.Errorf("drawing %s: %w", d.FeatureID, err)
		}
		drawings = append(drawings, d)
	}
	return drawings, rows.Err()
}

// Count returns the number of stored drawings.
func (s *DrawingStore) Count(ctx context.Context) (int, error) {
	if !s.Available() {
		return 0, ErrNoDatabase
	}
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT count(*) FROM drawings").Scan(&n)
	return n, err
}
