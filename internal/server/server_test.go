package server

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cheekybits/is"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/joeblew999/plat-olmap/internal/olmap"
)

func newServer(t *testing.T, cfg Config) *Server {
	t.Helper()
	s, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func do(s http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)
	return w
}

type viewState struct {
	ID           string              `json:"id"`
	Ready        bool                `json:"ready"`
	Cursor       int                 `json:"cursor"`
	Features     int                 `json:"features"`
	Interactions []olmap.Interaction `json:"interactions"`
	View         olmap.ViewOptions   `json:"view"`
}

func createView(t *testing.T, s http.Handler) viewState {
	t.Helper()
	w := do(s, http.MethodPost, "/api/v1/views", "")
	if w.Code != http.StatusCreated {
		t.Fatalf("create view: %d %s", w.Code, w.Body.String())
	}
	var st viewState
	if err := json.Unmarshal(w.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode view: %v", err)
	}
	return st
}

func getView(t *testing.T, s http.Handler, id string) viewState {
	t.Helper()
	w := do(s, http.MethodGet, "/api/v1/views/"+id, "")
	if w.Code != http.StatusOK {
		t.Fatalf("get view: %d %s", w.Code, w.Body.String())
	}
	var st viewState
	if err := json.Unmarshal(w.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode view: %v", err)
	}
	return st
}

func TestHealth(t *testing.T) {
	is := is.New(t)
	s := newServer(t, Config{})

	w := do(s, http.MethodGet, "/health", "")
	is.Equal(w.Code, http.StatusOK)
	is.True(strings.Contains(w.Body.String(), `"status":"ok"`))
	links := strings.Join(w.Header().Values("Link"), ",")
	is.True(strings.Contains(links, `</api/v1/views>; rel="views"`))
	is.True(strings.Contains(links, `rel="service-desc"`))

	w = do(s, http.MethodGet, "/api/v1/info", "")
	is.Equal(w.Code, http.StatusOK)
	is.True(strings.Contains(w.Body.String(), `"centers":4`))
}

func TestProjectionEndpoints(t *testing.T) {
	is := is.New(t)
	s := newServer(t, Config{NoDB: true})

	w := do(s, http.MethodGet, "/api/v1/projection?lon=180&lat=0", "")
	is.Equal(w.Code, http.StatusOK)
	var fwd struct{ X, Y float64 }
	is.NoErr(json.Unmarshal(w.Body.Bytes(), &fwd))
	is.True(fwd.X > 20037508.33 && fwd.X < 20037508.35)
	is.True(fwd.Y > -1e-6 && fwd.Y < 1e-6)

	w = do(s, http.MethodGet, "/api/v1/projection/inverse?x=0&y=0", "")
	is.Equal(w.Code, http.StatusOK)
	var inv struct{ Lon, Lat float64 }
	is.NoErr(json.Unmarshal(w.Body.Bytes(), &inv))
	is.Equal(inv.Lon, 0.0)
	is.True(inv.Lat > -1e-9 && inv.Lat < 1e-9)

	w = do(s, http.MethodGet, "/api/v1/projection?lon=0&lat=90", "")
	is.Equal(w.Code, http.StatusUnprocessableEntity)
}

func TestCenterCycles(t *testing.T) {
	is := is.New(t)
	s := newServer(t, Config{NoDB: true})
	st := createView(t, s)
	is.Equal(st.Cursor, 0)

	w := do(s, http.MethodGet, "/api/v1/views/"+st.ID, "")
	links := strings.Join(w.Header().Values("Link"), ",")
	is.True(strings.Contains(links, `</api/v1/views/`+st.ID+`/center>; rel="recenter"; method="POST"`))

	japan := orb.Point{135.9075, 35.120833}
	for i := 1; i <= 5; i++ {
		w := do(s, http.MethodPost, "/api/v1/views/"+st.ID+"/center", "{}")
		is.Equal(w.Code, http.StatusOK)
		is.True(strings.Contains(w.Body.String(), "datastar-patch-signals"))
		is.True(strings.Contains(w.Body.String(), "center-label"))
		is.Equal(getView(t, s, st.ID).Cursor, i%4)
		if i == 2 {
			is.Equal(getView(t, s, st.ID).View.Center, japan)
		}
	}
}

func TestUnknownView(t *testing.T) {
	is := is.New(t)
	s := newServer(t, Config{NoDB: true})
	is.Equal(do(s, http.MethodGet, "/api/v1/views/nope", "").Code, http.StatusNotFound)
	is.Equal(do(s, http.MethodPost, "/api/v1/views/nope/center", "").Code, http.StatusNotFound)
	is.Equal(do(s, http.MethodPost, "/api/v1/views/nope/events/load-complete", "").Code, http.StatusNotFound)
	is.Equal(do(s, http.MethodGet, "/api/v1/views/nope/stream", "").Code, http.StatusNotFound)
	is.Equal(do(s, http.MethodDelete, "/api/v1/views/nope", "").Code, http.StatusNotFound)
}

func TestLoadCompleteOnce(t *testing.T) {
	is := is.New(t)
	s := newServer(t, Config{NoDB: true})
	st := createView(t, s)
	events := "/api/v1/views/" + st.ID + "/events/"

	is.Equal(do(s, http.MethodPost, events+"load-complete", "{}").Code, http.StatusNoContent)
	is.Equal(do(s, http.MethodPost, events+"load-complete", "").Code, http.StatusNoContent)

	got := getView(t, s, st.ID)
	is.True(got.Ready)
	is.Equal(got.Features, 4)
	is.Equal(len(got.Interactions), 3)
	is.Equal(got.Interactions[0].Type, olmap.InteractionModify)
	is.Equal(got.Interactions[1].Type, olmap.InteractionDraw)
	is.False(got.Interactions[1].Active)
	is.Equal(got.Interactions[2].Type, olmap.InteractionSelect)

	w := do(s, http.MethodGet, "/api/v1/views/"+st.ID+"/features", "")
	is.Equal(w.Code, http.StatusOK)
	fc, err := geojson.UnmarshalFeatureCollection(w.Body.Bytes())
	is.NoErr(err)
	is.Equal(len(fc.Features), 4)
}

func TestEmptyBodies(t *testing.T) {
	is := is.New(t)
	s := newServer(t, Config{NoDB: true})
	st := createView(t, s)
	base := "/api/v1/views/" + st.ID

	w := do(s, http.MethodPost, base+"/center", "")
	is.Equal(w.Code, http.StatusOK)
	is.True(strings.Contains(w.Body.String(), "center-label"))
	is.Equal(do(s, http.MethodPost, base+"/events/map-singleclick", "").Code, http.StatusNoContent)
	is.Equal(do(s, http.MethodPost, base+"/center", "{").Code, http.StatusBadRequest)
}

func TestSelectRoundTrip(t *testing.T) {
	is := is.New(t)
	s := newServer(t, Config{NoDB: true})
	st := createView(t, s)
	base := "/api/v1/views/" + st.ID

	is.Equal(do(s, http.MethodPost, base+"/events/load-complete", "").Code, http.StatusNoContent)
	w := do(s, http.MethodGet, base+"/features", "")
	fc, err := geojson.UnmarshalFeatureCollection(w.Body.Bytes())
	is.NoErr(err)
	id := olmap.FeatureID(fc.Features[2])

	var got struct {
		Selected []string `json:"selected"`
	}
	w = do(s, http.MethodPost, base+"/events/map-select-select", `{"selectedIds":["`+id+`"],"deselectedIds":[]}`)
	is.Equal(w.Code, http.StatusNoContent)
	is.NoErr(json.Unmarshal(do(s, http.MethodGet, base, "").Body.Bytes(), &got))
	is.Equal(got.Selected, []string{id})

	w = do(s, http.MethodPost, base+"/events/map-select-select", `{"selectedIds":[],"deselectedIds":["`+id+`"]}`)
	is.Equal(w.Code, http.StatusNoContent)
	is.NoErr(json.Unmarshal(do(s, http.MethodGet, base, "").Body.Bytes(), &got))
	is.Equal(len(got.Selected), 0)

	is.Equal(do(s, http.MethodPost, base+"/events/map-select-select", `{"selectedIds":5}`).Code, http.StatusBadRequest)
}

func TestEventErrors(t *testing.T) {
	is := is.New(t)
	s := newServer(t, Config{NoDB: true})
	st := createView(t, s)
	events := "/api/v1/views/" + st.ID + "/events/"

	is.Equal(do(s, http.MethodPost, events+"map-explode", "{}").Code, http.StatusBadRequest)
	is.Equal(do(s, http.MethodPost, events+"map-moveend", `{"view":5}`).Code, http.StatusBadRequest)
	is.Equal(do(s, http.MethodPost, events+"map-moveend", `{`).Code, http.StatusBadRequest)

	w := do(s, http.MethodPost, events+"map-moveend", `{"view":{"center":[9.5,55.9],"zoom":8}}`)
	is.Equal(w.Code, http.StatusNoContent)
	got := getView(t, s, st.ID)
	is.Equal(got.View.Center, orb.Point{9.5, 55.9})
	is.Equal(got.View.Zoom, 8.0)
}

func TestDrawingsStored(t *testing.T) {
	is := is.New(t)
	s := newServer(t, Config{})
	st := createView(t, s)
	base := "/api/v1/views/" + st.ID

	is.Equal(do(s, http.MethodPost, base+"/events/load-complete", "").Code, http.StatusNoContent)
	body := `{"feature":{"type":"Feature","id":"d1","geometry":{"type":"Point","coordinates":[1,2]},"properties":{}}}`
	is.Equal(do(s, http.MethodPost, base+"/events/map-draw-draw-end", body).Code, http.StatusNoContent)

	w := do(s, http.MethodGet, base+"/drawings?limit=10", "")
	is.Equal(w.Code, http.StatusOK)
	var page struct {
		Total int `json:"total"`
		Data  []struct {
			FeatureID    string `json:"featureId"`
			GeometryType string `json:"geometryType"`
			Action       string `json:"action"`
		} `json:"data"`
	}
	is.NoErr(json.Unmarshal(w.Body.Bytes(), &page))
	is.Equal(page.Total, 1)
	is.Equal(page.Data[0].FeatureID, "d1")
	is.Equal(page.Data[0].GeometryType, "Point")
	is.Equal(page.Data[0].Action, "drawn")
	is.Equal(getView(t, s, st.ID).Features, 5)

	w = do(s, http.MethodPost, "/api/v1/query", `{"query":"SELECT count(*) AS n FROM drawings"}`)
	is.Equal(w.Code, http.StatusOK)
	var result struct {
		Columns []string `json:"columns"`
		Count   int      `json:"count"`
	}
	is.NoErr(json.Unmarshal(w.Body.Bytes(), &result))
	is.Equal(result.Columns, []string{"n"})
	is.Equal(result.Count, 1)
	w = do(s, http.MethodPost, "/api/v1/query", `{"query":"DROP TABLE drawings"}`)
	is.Equal(w.Code, http.StatusBadRequest)

	w = do(s, http.MethodGet, "/api/v1/tables", "")
	is.Equal(w.Code, http.StatusOK)
	is.True(strings.Contains(w.Body.String(), `"name":"drawings"`))
}

func TestDrawingsWithoutDatabase(t *testing.T) {
	is := is.New(t)
	s := newServer(t, Config{NoDB: true})
	st := createView(t, s)
	is.Equal(do(s, http.MethodGet, "/api/v1/views/"+st.ID+"/drawings", "").Code, http.StatusServiceUnavailable)
	is.Equal(do(s, http.MethodGet, "/api/v1/tables", "").Code, http.StatusServiceUnavailable)
}

func TestPageAndAssets(t *testing.T) {
	is := is.New(t)
	s := newServer(t, Config{NoDB: true, Minify: true})

	w := do(s, http.MethodGet, "/", "")
	is.Equal(w.Code, http.StatusOK)
	is.True(strings.Contains(w.Body.String(), "Set new center"))
	is.False(strings.Contains(w.Body.String(), "data-attr:disabled"))
	is.True(strings.Contains(w.Body.String(), `id=olmap`) || strings.Contains(w.Body.String(), `id="olmap"`))
	is.Equal(s.Views().Len(), 1)

	is.Equal(do(s, http.MethodGet, "/nothing-here", "").Code, http.StatusNotFound)

	w = do(s, http.MethodGet, "/icons/location-pin.png", "")
	is.Equal(w.Code, http.StatusOK)
	is.Equal(w.Header().Get("Content-Type"), "image/png")

	w = do(s, http.MethodGet, "/static/olmap.js", "")
	is.Equal(w.Code, http.StatusOK)
	is.True(strings.Contains(w.Body.String(), "olmap"))
}

func TestTemplatesReloadFromWebDir(t *testing.T) {
	is := is.New(t)
	dir := t.TempDir()
	is.NoErr(os.MkdirAll(filepath.Join(dir, "templates"), 0o755))
	page := filepath.Join(dir, "templates", "index.html")
	is.NoErr(os.WriteFile(page, []byte(`{{define "index"}}<p>first {{.ViewID}}</p>{{end}}`), 0o644))

	s := newServer(t, Config{NoDB: true, WebDir: dir})
	w := do(s, http.MethodGet, "/", "")
	is.Equal(w.Code, http.StatusOK)
	is.True(strings.Contains(w.Body.String(), "first"))

	is.NoErr(os.WriteFile(page, []byte(`{{define "index"}}<p>second {{.ViewID}}</p>{{end}}`), 0o644))
	w = do(s, http.MethodGet, "/", "")
	is.Equal(w.Code, http.StatusOK)
	is.True(strings.Contains(w.Body.String(), "second"))

	// a broken edit keeps the last good templates
	is.NoErr(os.WriteFile(page, []byte(`{{define "index"}}{{.Nope`), 0o644))
	w = do(s, http.MethodGet, "/", "")
	is.Equal(w.Code, http.StatusOK)
	is.True(strings.Contains(w.Body.String(), "second"))
}

func TestStreamReplaysSnapshot(t *testing.T) {
	is := is.New(t)
	s := newServer(t, Config{NoDB: true})
	st := createView(t, s)

	ts := httptest.NewServer(s)
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/v1/views/"+st.ID+"/stream", nil)
	is.NoErr(err)
	resp, err := http.DefaultClient.Do(req)
	is.NoErr(err)
	defer resp.Body.Close()
	is.Equal(resp.StatusCode, http.StatusOK)
	is.True(strings.HasPrefix(resp.Header.Get("Content-Type"), "text/event-stream"))

	var seen []string
	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		line := sc.Text()
		for _, op := range []string{"reset", "tileSource", "viewOptions", "addLayer"} {
			if strings.Contains(line, "olmap.apply(") && strings.Contains(line, `"op":"`+op+`"`) {
				seen = append(seen, op)
			}
		}
		if len(seen) == 4 {
			break
		}
	}
	is.Equal(seen, []string{"reset", "tileSource", "viewOptions", "addLayer"})

	// a live change reaches the open stream
	is.Equal(do(s, http.MethodPost, "/api/v1/views/"+st.ID+"/center", "").Code, http.StatusOK)
	found := false
	for sc.Scan() {
		if strings.Contains(sc.Text(), `"op":"viewOptions"`) {
			found = true
			break
		}
	}
	is.True(found)
}

func TestSweepKeepsStreamedViews(t *testing.T) {
	is := is.New(t)
	s := newServer(t, Config{NoDB: true})
	a := createView(t, s)
	createView(t, s)

	v, ok := s.Views().Get(a.ID)
	is.True(ok)
	_, ch := v.Map().Sync()
	defer v.Map().Unsubscribe(ch)

	is.Equal(len(s.Views().Sweep(-time.Second)), 1)
	is.Equal(s.Views().List(), []string{a.ID})
}

func TestRunStops(t *testing.T) {
	is := is.New(t)
	s := newServer(t, Config{NoDB: true, Host: "127.0.0.1", Port: freePort(t), SweepEvery: 10 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		is.NoErr(err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop")
	}
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}
