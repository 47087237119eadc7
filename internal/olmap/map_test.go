package olmap

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/cheekybits/is"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/joeblew999/plat-olmap/internal/projection"
)

func newTestMap() (*Map, *VectorSource) {
	m := New(Options{View: ViewOptions{Center: orb.Point{0, 0}, Zoom: 6}})
	layer := NewVectorLayer()
	source := NewVectorSource()
	layer.SetSource(source)
	m.GetLayers().Add(layer)
	return m, source
}

func point(id string, x, y float64) *geojson.Feature {
	f := geojson.NewFeature(orb.Point{x, y})
	f.ID = id
	return f
}

func drain(ch chan Command) []Command {
	var out []Command
	for {
		select {
		case c := <-ch:
			out = append(out, c)
		default:
			return out
		}
	}
}

func TestNewDefaults(t *testing.T) {
	is := is.New(t)
	m := New(Options{})
	is.NotEqual(m.ID(), "")
	is.Equal(m.Projection(), projection.EPSG4326)
	is.Equal(m.TileSource(), OSM())
	is.False(m.Loaded())
}

func TestViewSetCenterPublishes(t *testing.T) {
	is := is.New(t)
	m, _ := newTestMap()
	_, ch := m.Sync()
	defer m.Unsubscribe(ch)

	m.View().SetCenter(orb.Point{135.9075, 35.120833})
	is.Equal(m.View().Center(), orb.Point{135.9075, 35.120833})
	is.Equal(m.View().Zoom(), 6.0)

	cmds := drain(ch)
	is.Equal(len(cmds), 1)
	is.Equal(cmds[0].Op, OpViewOptions)
	is.Equal(cmds[0].Args, ViewOptions{Center: orb.Point{135.9075, 35.120833}, Zoom: 6})
}

func TestLoadCompleteListenerRunsOnce(t *testing.T) {
	is := is.New(t)
	m, _ := newTestMap()

	calls := 0
	m.AddLoadCompleteListener(func(e *Event) {
		e.UnregisterListener()
		calls++
	})

	is.NoErr(m.Dispatch(EventLoadComplete, nil))
	is.NoErr(m.Dispatch(EventLoadComplete, nil))
	is.Equal(calls, 1)
	is.True(m.Loaded())
	is.Equal(m.ListenerCount(EventLoadComplete), 0)
}

func TestOneShotUnderConcurrentFires(t *testing.T) {
	is := is.New(t)
	m, _ := newTestMap()

	var mu sync.Mutex
	calls := 0
	m.AddLoadCompleteListener(func(e *Event) {
		e.UnregisterListener()
		mu.Lock()
		calls++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = m.Dispatch(EventLoadComplete, nil)
		}()
	}
	wg.Wait()
	is.Equal(calls, 1)
}

func TestListenerRemovedByEarlierListenerIsSkipped(t *testing.T) {
	is := is.New(t)
	m, _ := newTestMap()

	var second Registration
	secondCalled := false
	m.AddListener(EventSingleClick, func(e *Event) { second.Remove() })
	second = m.AddListener(EventSingleClick, func(e *Event) { secondCalled = true })

	is.NoErr(m.Dispatch(EventSingleClick, []byte(`{"coordinate":[1,2]}`)))
	is.False(secondCalled)
	is.Equal(m.ListenerCount(EventSingleClick), 1)

	second.Remove()
	Registration{}.Remove()
}

func TestMoveEndUpdatesViewSilently(t *testing.T) {
	is := is.New(t)
	m, _ := newTestMap()
	_, ch := m.Sync()
	defer m.Unsubscribe(ch)

	is.NoErr(m.Dispatch(EventMoveEnd, []byte(`{"view":{"zoom":9,"center":[19.13,51.91]}}`)))
	is.Equal(m.View().Options(), ViewOptions{Center: orb.Point{19.13, 51.91}, Zoom: 9})
	is.Equal(len(drain(ch)), 0)

	is.NoErr(m.Dispatch(EventResolutionChange, []byte(`{"view":{"zoom":4}}`)))
	is.Equal(m.View().Options(), ViewOptions{Center: orb.Point{19.13, 51.91}, Zoom: 4})
}

func TestMalformedDetailIsRejected(t *testing.T) {
	is := is.New(t)
	m, _ := newTestMap()
	called := false
	m.AddListener(EventMoveEnd, func(e *Event) { called = true })

	is.Err(m.Dispatch(EventMoveEnd, []byte(`{"view":`)))
	is.Err(m.Dispatch(EventMoveEnd, nil))
	is.False(called)
}

func TestDrawEndAndModifyEndKeepSourceInStep(t *testing.T) {
	is := is.New(t)
	m, source := newTestMap()
	_, ch := m.Sync()
	defer m.Unsubscribe(ch)

	drawn, err := json.Marshal(DrawEndDetail{Feature: point("d1", 1, 2)})
	is.NoErr(err)
	is.NoErr(m.Dispatch(EventDrawEnd, drawn))
	is.NoErr(m.Dispatch(EventDrawEnd, drawn))
	is.Equal(source.Len(), 1)

	fc := geojson.NewFeatureCollection()
	fc.Append(point("d1", 3, 4))
	fc.Append(point("unknown", 0, 0))
	modified, err := json.Marshal(ModifyEndDetail{Features: fc})
	is.NoErr(err)
	is.NoErr(m.Dispatch(EventModifyEnd, modified))

	f, ok := source.Feature("d1")
	is.True(ok)
	is.Equal(f.Geometry, orb.Point{3, 4})
	is.Equal(source.Len(), 1)
	is.Equal(len(drain(ch)), 0)
}

func TestInteractions(t *testing.T) {
	is := is.New(t)
	m, _ := newTestMap()
	_, ch := m.Sync()
	defer m.Unsubscribe(ch)

	modify := NewModify()
	is.NoErr(m.AddInteraction(modify))
	draw := NewDraw(GeometryPoint)
	draw.SetActive(false)
	is.NoErr(m.AddInteraction(draw))
	is.True(errors.Is(m.AddInteraction(draw), ErrDuplicateInteraction))

	draw.SetActive(true)
	is.True(draw.IsActive())

	got := m.Interactions()
	is.Equal(len(got), 2)
	is.Equal(got[0].Type, InteractionModify)
	is.Equal(got[1].Type, InteractionDraw)
	is.Equal(got[1].Options["type"], GeometryPoint)

	is.NoErr(m.RemoveInteraction(modify.ID))
	is.True(errors.Is(m.RemoveInteraction(modify.ID), ErrInteractionNotFound))
	is.True(errors.Is(m.UpdateInteraction("nope", true), ErrInteractionNotFound))
	is.Equal(len(m.Interactions()), 1)

	ops := []Op{}
	for _, c := range drain(ch) {
		ops = append(ops, c.Op)
	}
	is.Equal(ops, []Op{OpAddInteraction, OpAddInteraction, OpUpdateInteraction, OpRemoveInteraction})
}

func TestInteractionToggleWhileRemoved(t *testing.T) {
	is := is.New(t)
	m, _ := newTestMap()
	draw := NewDraw(GeometryPoint)
	is.NoErr(m.AddInteraction(draw))
	_, ch := m.Sync()
	defer m.Unsubscribe(ch)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			draw.SetActive(i%2 == 0)
			_ = draw.IsActive()
		}
	}()
	go func() {
		defer wg.Done()
		_ = m.RemoveInteraction(draw.ID)
	}()
	wg.Wait()

	// detached: the flag still changes locally but nothing is published
	drain(ch)
	draw.SetActive(false)
	is.False(draw.IsActive())
	is.Equal(len(drain(ch)), 0)
	is.Equal(len(m.Interactions()), 0)

	// the same map may take it back
	is.NoErr(m.AddInteraction(draw))
	other, _ := newTestMap()
	is.NoErr(m.RemoveInteraction(draw.ID))
	is.True(errors.Is(other.AddInteraction(draw), ErrDuplicateInteraction))
}

func TestSelectDetailValidated(t *testing.T) {
	is := is.New(t)
	m, _ := newTestMap()
	is.NoErr(m.Dispatch(EventSelect, []byte(`{"selectedIds":["a"],"deselectedIds":[]}`)))
	is.Err(m.Dispatch(EventSelect, []byte(`{"selectedIds":1}`)))
	is.Err(m.Dispatch(EventSelect, nil))
}

func TestSnapshotRebuildsState(t *testing.T) {
	is := is.New(t)
	m, source := newTestMap()
	is.NoErr(source.AddFeature(point("a", 1, 1)))
	is.NoErr(source.AddFeature(point("b", 2, 2)))
	draw := NewDraw(GeometryLineString)
	draw.SetActive(false)
	is.NoErr(m.AddInteraction(draw))
	m.View().SetZoom(3)

	cmds := m.Snapshot()
	ops := []Op{}
	for _, c := range cmds {
		ops = append(ops, c.Op)
	}
	is.Equal(ops, []Op{OpReset, OpTileSource, OpViewOptions, OpAddLayer, OpAddFeatures, OpAddInteraction})
	is.Equal(cmds[0].Args, ResetArgs{Projection: projection.EPSG4326})
	is.Equal(cmds[2].Args, ViewOptions{Center: orb.Point{0, 0}, Zoom: 3})
	is.Equal(len(cmds[4].Args.(FeaturesArgs).Features), 2)
	is.False(cmds[5].Args.(Interaction).Active)

	raw, err := cmds[4].JSON()
	is.NoErr(err)
	var decoded struct {
		Op   string `json:"op"`
		Args struct {
			Layer    string `json:"layer"`
			Features []any  `json:"features"`
		} `json:"args"`
	}
	is.NoErr(json.Unmarshal([]byte(raw), &decoded))
	is.Equal(decoded.Op, "addFeatures")
	is.Equal(decoded.Args.Layer, m.GetLayers().All()[0].ID())
	is.Equal(len(decoded.Args.Features), 2)
}

func TestLayerAddedWithFeaturesPublishesThem(t *testing.T) {
	is := is.New(t)
	m := New(Options{})
	_, ch := m.Sync()
	defer m.Unsubscribe(ch)

	layer := NewVectorLayer()
	source := NewVectorSource()
	is.NoErr(source.AddFeature(point("pre", 0, 0)))
	layer.SetSource(source)
	m.GetLayers().Add(layer)

	cmds := drain(ch)
	is.Equal(len(cmds), 2)
	is.Equal(cmds[0].Op, OpAddLayer)
	is.Equal(cmds[1].Op, OpAddFeatures)
	is.Equal(cmds[1].Args.(FeaturesArgs).Layer, layer.ID())
}

func TestSetTileSource(t *testing.T) {
	is := is.New(t)
	m := New(Options{})
	bing := BingMaps("key", "CanvasDark")
	m.SetTileSource(bing)
	is.Equal(m.TileSource(), bing)
}
