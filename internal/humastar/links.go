package humastar

import (
	"fmt"
	"path"
	"slices"
	"sort"
	"strings"

	"github.com/danielgtaylor/huma/v2"
)

// Links holds RFC 8288 Link header values keyed by operation path,
// derived from the registered OpenAPI paths.
type Links struct {
	byPath map[string][]string
}

// NewLinks returns an empty link set. Its Transformer can be installed in
// the huma config before the routes exist; call Derive once they do.
func NewLinks() *Links {
	return &Links{byPath: map[string][]string{}}
}

// Derive computes links from the API's OpenAPI document. Paths tagged with
// one of skipTags (streams, browser callbacks) are left out. It must run
// before the API serves requests.
func (l *Links) Derive(api huma.API, entry string, skipTags ...string) {
	oapi := api.OpenAPI()

	var collections, items []string
	for p, pi := range oapi.Paths {
		if slices.ContainsFunc(primaryTags(pi), func(t string) bool { return slices.Contains(skipTags, t) }) {
			continue
		}
		if strings.Contains(p, "{") {
			items = append(items, p)
		} else {
			collections = append(collections, p)
		}
	}
	sort.Strings(collections)
	sort.Strings(items)

	for _, item := range items {
		parent := path.Dir(item)
		if slices.Contains(collections, parent) || slices.Contains(items, parent) {
			l.add(item, parent, "up")
		}
		if slices.Contains(collections, parent) {
			l.add(item, parent, "collection")
			l.add(parent, item, "item")
		}
	}

	for _, coll := range collections {
		if coll == entry {
			continue
		}
		l.add(coll, entry, "up")
		l.add(entry, coll, lastSegment(coll))
	}
	l.add(entry, "/openapi.json", "service-desc")
	l.add(entry, "/docs", "service-doc")

	for p, pi := range oapi.Paths {
		if ref := responseSchemaRef(pi); ref != "" {
			l.add(p, "/openapi.json#/components/schemas/"+ref, "describedby")
		}
	}

	for p, headers := range l.byPath {
		if pi, ok := oapi.Paths[p]; ok {
			for _, op := range operationsOf(pi) {
				injectResponseLinks(op, headers)
			}
		}
	}
}

// For returns the Link header values of an operation path.
func (l *Links) For(p string) []string {
	return l.byPath[p]
}

// Transformer returns a Huma Transformer that writes the derived links, a
// self link for item paths, pagination links from [Pager] bodies and action
// links from [Actor] bodies.
func (l *Links) Transformer() huma.Transformer {
	return func(ctx huma.Context, status string, v any) (any, error) {
		op := ctx.Operation()
		if op == nil {
			return v, nil
		}

		for _, link := range l.byPath[op.Path] {
			ctx.AppendHeader("Link", link)
		}
		if strings.Contains(op.Path, "{") {
			ctx.AppendHeader("Link", fmt.Sprintf(`<%s>; rel="self"`, ctx.URL().Path))
		}
		if p, ok := v.(Pager); ok {
			for _, link := range p.PaginationLinks(ctx.URL().Path) {
				ctx.AppendHeader("Link", link)
			}
		}
		if a, ok := v.(Actor); ok {
			for _, action := range a.Actions() {
				ctx.AppendHeader("Link", action.LinkHeader())
			}
		}
		return v, nil
	}
}

func (l *Links) add(from, to, rel string) {
	val := fmt.Sprintf(`<%s>; rel="%s"`, to, rel)
	if !slices.Contains(l.byPath[from], val) {
		l.byPath[from] = append(l.byPath[from], val)
	}
}

func primaryTags(pi *huma.PathItem) []string {
	for _, op := range operationsOf(pi) {
		if len(op.Tags) > 0 {
			return op.Tags
		}
	}
	return nil
}

func operationsOf(pi *huma.PathItem) []*huma.Operation {
	var ops []*huma.Operation
	for _, op := range []*huma.Operation{pi.Get, pi.Post, pi.Put, pi.Patch, pi.Delete} {
		if op != nil {
			ops = append(ops, op)
		}
	}
	return ops
}

func lastSegment(p string) string {
	parts := strings.Split(strings.TrimRight(p, "/"), "/")
	return parts[len(parts)-1]
}

// injectResponseLinks documents the links on the operation's 2xx response.
func injectResponseLinks(op *huma.Operation, headers []string) {
	var resp *huma.Response
	for code, r := range op.Responses {
		if strings.HasPrefix(code, "2") {
			resp = r
			break
		}
	}
	if resp == nil {
		return
	}
	if resp.Links == nil {
		resp.Links = map[string]*huma.Link{}
	}
	for _, h := range headers {
		rel, href := parseLinkHeader(h)
		if rel == "" {
			continue
		}
		resp.Links[rel] = &huma.Link{
			OperationRef: href,
			Description:  "Related: " + rel,
		}
	}
}

func responseSchemaRef(pi *huma.PathItem) string {
	if pi.Get == nil {
		return ""
	}
	for code, resp := range pi.Get.Responses {
		if !strings.HasPrefix(code, "2") || resp.Content == nil {
			continue
		}
		for _, mt := range resp.Content {
			if mt.Schema != nil && mt.Schema.Ref != "" {
				return path.Base(mt.Schema.Ref)
			}
		}
	}
	return ""
}

// parseLinkHeader splits `<url>; rel="name"`.
func parseLinkHeader(h string) (rel, href string) {
	target, params, ok := strings.Cut(h, ";")
	if !ok {
		return "", ""
	}
	href = strings.Trim(strings.TrimSpace(target), "<>")
	params = strings.TrimSpace(params)
	if v, ok := strings.CutPrefix(params, "rel="); ok {
		rel = strings.Trim(v, `"`)
	}
	return rel, href
}
