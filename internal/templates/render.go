// Package templates renders the page and its HTML fragments.
package templates

import (
	"bytes"
	"html/template"
	"io/fs"
	"sync"

	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/css"
	"github.com/tdewolff/minify/v2/html"
	"github.com/tdewolff/minify/v2/js"
)

// funcMap provides common template functions.
var funcMap = template.FuncMap{
	// dict creates a map from key-value pairs, useful for passing multiple values to nested templates
	"dict": func(values ...any) map[string]any {
		if len(values)%2 != 0 {
			return nil
		}
		m := make(map[string]any, len(values)/2)
		for i := 0; i < len(values); i += 2 {
			key, ok := values[i].(string)
			if !ok {
				continue
			}
			m[key] = values[i+1]
		}
		return m
	},
}

// Pattern matches the template files inside the web filesystem.
const Pattern = "templates/*.html"

// Renderer manages HTML templates.
type Renderer struct {
	templates *template.Template
	minifier  *minify.M
	mu        sync.RWMutex
}

// NewMinifier returns a minifier for the page's content types.
func NewMinifier() *minify.M {
	m := minify.New()
	m.AddFunc("text/css", css.Minify)
	m.AddFunc("text/html", html.Minify)
	m.AddFunc("text/javascript", js.Minify)
	return m
}

// New parses the templates matching Pattern in fsys. A nil minifier leaves
// the output untouched.
func New(fsys fs.FS, m *minify.M) (*Renderer, error) {
	tmpl, err := parse(fsys)
	if err != nil {
		return nil, err
	}
	return &Renderer{templates: tmpl, minifier: m}, nil
}

func parse(fsys fs.FS) (*template.Template, error) {
	return template.New("").Funcs(funcMap).ParseFS(fsys, Pattern)
}

// Render renders a named template to a string.
func (r *Renderer) Render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := r.RenderToBuffer(&buf, name, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// RenderToBuffer renders a named template to a buffer, minified when the
// renderer has a minifier.
func (r *Renderer) RenderToBuffer(buf *bytes.Buffer, name string, data any) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.minifier == nil {
		return r.templates.ExecuteTemplate(buf, name, data)
	}
	var raw bytes.Buffer
	if err := r.templates.ExecuteTemplate(&raw, name, data); err != nil {
		return err
	}
	return r.minifier.Minify("text/html", buf, &raw)
}

// Reload re-parses the templates from fsys. On error the current set stays.
func (r *Renderer) Reload(fsys fs.FS) error {
	tmpl, err := parse(fsys)
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.templates = tmpl
	r.mu.Unlock()

	return nil
}
