package mapview

import (
	"math"
	"testing"

	"github.com/cheekybits/is"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/joeblew999/plat-olmap/internal/feature"
	"github.com/joeblew999/plat-olmap/internal/projection"
)

func TestNodeItems(t *testing.T) {
	is := is.New(t)

	named, err := feature.New([]float64{10}, []float64{20}, []string{"Node 1"}, feature.DefaultStyleOptions())
	is.NoErr(err)

	drawn := geojson.NewFeature(orb.Point{-3, 40})
	drawn.ID = "0123456789abcdef"

	line := geojson.NewFeature(orb.LineString{{0, 0}, {1, 1}})

	items := nodeItems([]*geojson.Feature{named[0], drawn, line}, projection.EPSG4326)
	is.Equal(len(items), 2)

	first := items[0].(NodeItem)
	is.Equal(first.Name, "Node 1")
	is.Equal(first.Lon, 10.0)
	is.Equal(first.Lat, 20.0)

	second := items[1].(NodeItem)
	is.Equal(second.ID, "0123456789abcdef")
	is.Equal(second.Name, "Drawn 01234567")
}

func TestNodeItemsWebMercator(t *testing.T) {
	is := is.New(t)

	f := geojson.NewFeature(projection.ToWebMercator(orb.Point{12.5, 55.7}))
	f.ID = "abc"

	items := nodeItems([]*geojson.Feature{f}, projection.EPSG3857)
	is.Equal(len(items), 1)

	item := items[0].(NodeItem)
	is.Equal(item.Name, "Drawn abc")
	is.True(math.Abs(item.Lon-12.5) < 1e-9)
	is.True(math.Abs(item.Lat-55.7) < 1e-9)
}
