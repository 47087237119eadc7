package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cheekybits/is"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/joeblew999/plat-olmap/internal/db"
	"github.com/joeblew999/plat-olmap/internal/view"
)

func newStore(t *testing.T) *DrawingStore {
	t.Helper()
	conn, err := db.Open(db.Config{})
	if err != nil {
		t.Fatalf("open duckdb: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	s, err := NewDrawingStore(context.Background(), conn)
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	return s
}

func TestDrawingStoreSaveList(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()
	s := newStore(t)

	f := geojson.NewFeature(orb.Point{9.5, 55.9})
	f.ID = "f1"
	is.NoErr(s.SaveDrawing("v1", view.ActionDrawn, f))

	moved := geojson.NewFeature(orb.Point{10, 56})
	moved.ID = "f1"
	is.NoErr(s.Save(ctx, Drawing{ViewID: "v1", Action: view.ActionModified, Feature: moved, CreatedAt: time.Now().Add(time.Second)}))

	other := geojson.NewFeature(orb.Point{0, 0})
	other.ID = "f2"
	is.NoErr(s.SaveDrawing("v2", view.ActionDrawn, other))

	list, err := s.List(ctx, "v1")
	is.NoErr(err)
	is.Equal(len(list), 2)
	is.Equal(list[0].FeatureID, "f1")
	is.Equal(list[0].GeometryType, "Point")
	is.Equal(list[0].Action, view.ActionDrawn)
	is.Equal(list[0].Feature.Geometry, orb.Point{9.5, 55.9})
	is.Equal(list[1].Action, view.ActionModified)
	is.Equal(list[1].Feature.Geometry, orb.Point{10, 56})

	n, err := s.Count(ctx)
	is.NoErr(err)
	is.Equal(n, 3)

	empty, err := s.List(ctx, "nobody")
	is.NoErr(err)
	is.Equal(len(empty), 0)
}

func TestDrawingStoreRejectsEmptyGeometry(t *testing.T) {
	is := is.New(t)
	s := newStore(t)
	err := s.Save(context.Background(), Drawing{ViewID: "v1", Feature: &geojson.Feature{}})
	is.Err(err)
}

func TestDrawingStoreWithoutDatabase(t *testing.T) {
	is := is.New(t)
	s, err := NewDrawingStore(context.Background(), nil)
	is.NoErr(err)
	is.False(s.Available())
	_, err = s.List(context.Background(), "v1")
	is.True(errors.Is(err, ErrNoDatabase))
	_, err = s.Count(context.Background())
	is.True(errors.Is(err, ErrNoDatabase))
}
