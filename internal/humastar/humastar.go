// Package humastar bridges Huma (REST/OpenAPI) with Datastar (SSE/hypermedia).
//
// A handler embeds [Handler] and returns [Handler.Stream] from a Huma
// operation. The stream callback gets an [SSE] that can patch rendered
// fragments, patch signals, or call a browser function with a JSON argument:
//
//	func (h *MapHandler) Center(ctx context.Context, in *CenterInput) (*huma.StreamResponse, error) {
//	    p, _ := view.Recenter()
//	    return h.Stream(func(sse humastar.SSE) {
//	        sse.Signals(map[string]any{"center": p})
//	        sse.Patch(h.Render("center-label", p), "#center-label")
//	    }), nil
//	}
package humastar

import (
	"bytes"
	"encoding/json"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"github.com/rs/zerolog/log"
	"github.com/starfederation/datastar-go/datastar"

	"github.com/joeblew999/plat-olmap/internal/templates"
)

// Handler is an embeddable base for Huma operations answering with a
// Datastar event stream. A nil Renderer renders nothing.
type Handler struct {
	Renderer *templates.Renderer
}

// Stream wraps fn in a Huma StreamResponse.
func (h *Handler) Stream(fn func(sse SSE)) *huma.StreamResponse {
	return &huma.StreamResponse{
		Body: func(ctx huma.Context) {
			fn(NewSSE(ctx))
		},
	}
}

// Render renders one named template. Failures are logged and render "".
func (h *Handler) Render(tmpl string, data any) string {
	if h.Renderer == nil {
		return ""
	}
	s, err := h.Renderer.Render(tmpl, data)
	if err != nil {
		log.Warn().Err(err).Str("template", tmpl).Msg("Failed to render fragment")
		return ""
	}
	return s
}

// RenderList renders items with a named template, or an empty state if none.
func (h *Handler) RenderList(tmpl string, items []any, emptyTitle, emptyMsg string) string {
	return RenderList(h.Renderer, tmpl, items, emptyTitle, emptyMsg)
}

// SSE is a Datastar event stream opened on a Huma context.
type SSE struct {
	*datastar.ServerSentEventGenerator
}

// NewSSE opens the Datastar stream on the underlying net/http writer.
func NewSSE(ctx huma.Context) SSE {
	r, w := humago.Unwrap(ctx)
	return SSE{datastar.NewSSE(w, r)}
}

// Patch replaces the inner HTML of the element matching selector.
func (s SSE) Patch(html, selector string) {
	s.PatchElements(html,
		datastar.WithSelector(selector),
		datastar.WithModeInner(),
		datastar.WithViewTransitions(),
	)
}

// Call runs fn(arg) in the browser, with arg encoded as JSON.
func (s SSE) Call(fn string, arg any) error {
	data, err := json.Marshal(arg)
	if err != nil {
		return err
	}
	return s.ExecuteScript(fn + "(" + string(data) + ")")
}

// Signals patches the given signals.
func (s SSE) Signals(signals map[string]any) {
	s.MarshalAndPatchSignals(signals)
}

// Fail shows msg in the page's error slot.
func (s SSE) Fail(msg string) {
	s.MarshalAndPatchSignals(map[string]any{"error": msg})
}

// Signals is the flat JSON object Datastar posts with every action.
type Signals map[string]any

// ParseSignals decodes a request body. An empty body has no signals.
func ParseSignals(body []byte) (Signals, error) {
	signals := Signals{}
	if len(bytes.TrimSpace(body)) == 0 {
		return signals, nil
	}
	if err := json.Unmarshal(body, &signals); err != nil {
		return nil, err
	}
	return signals, nil
}

func lookup[T any](s Signals, key string) (T, bool) {
	v, ok := s[key].(T)
	return v, ok
}

// String returns the string signal key, or "".
func (s Signals) String(key string) string {
	v, _ := lookup[string](s, key)
	return v
}

// Int returns the numeric signal key truncated to an int, or 0.
func (s Signals) Int(key string) int {
	v, _ := lookup[float64](s, key)
	return int(v)
}

// Bool returns the boolean signal key, or false.
func (s Signals) Bool(key string) bool {
	v, _ := lookup[bool](s, key)
	return v
}

// Has reports whether key was sent at all.
func (s Signals) Has(key string) bool {
	_, ok := s[key]
	return ok
}

// SignalsInput captures the raw body of a Datastar action. Embed it in an
// operation's input struct.
type SignalsInput struct {
	RawBody []byte
}

// Signals parses the body, failing with a Huma 400.
func (i *SignalsInput) Signals() (Signals, error) {
	signals, err := ParseSignals(i.RawBody)
	if err != nil {
		return nil, huma.Error400BadRequest("Invalid request data: " + err.Error())
	}
	return signals, nil
}

// RenderList renders items with a named template, or an empty state if
// none. Items that fail to render are logged and left out.
func RenderList(r *templates.Renderer, tmpl string, items []any, emptyTitle, emptyMsg string) string {
	if r == nil {
		return ""
	}
	var buf bytes.Buffer
	if len(items) == 0 {
		err := r.RenderToBuffer(&buf, "empty-state", map[string]string{
			"Title": emptyTitle, "Message": emptyMsg,
		})
		if err != nil {
			log.Warn().Err(err).Str("template", "empty-state").Msg("Failed to render fragment")
		}
		return buf.String()
	}
	var one bytes.Buffer
	for _, item := range items {
		one.Reset()
		if err := r.RenderToBuffer(&one, tmpl, item); err != nil {
			log.Warn().Err(err).Str("template", tmpl).Msg("Failed to render fragment")
			continue
		}
		buf.Write(one.Bytes())
	}
	return buf.String()
}
