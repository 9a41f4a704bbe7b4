package page

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"
	"text/template"

	"github.com/zeebo/xxh3"

	"github.com/tkrehbiel/blogfed/server/telemetry"
)

// StaticPage is a discovery document rendered once from site metadata.
type StaticPage struct {
	Path        string // Server path to the static page
	Accept      string // Accept header required to receive this page
	ContentType string
	Template    string // text/template source, executed against the page metadata
	MaxAge      int    // seconds clients may cache the page, default one hour
}

// StaticPageHandler is an http.Handler that has to be rendered before serving.
type StaticPageHandler interface {
	http.Handler
	Init(any) error
	Path() string
	Accept() string
}

type renderedPage struct {
	source StaticPage
	body   []byte
	etag   string
}

func NewStaticPage(page StaticPage) StaticPageHandler {
	if page.MaxAge == 0 {
		page.MaxAge = 3600
	}
	return &renderedPage{source: page}
}

func (p *renderedPage) Path() string   { return p.source.Path }
func (p *renderedPage) Accept() string { return p.source.Accept }

// Init renders the template. A failed render leaves the page serving 500s.
func (p *renderedPage) Init(meta any) error {
	p.body, p.etag = nil, ""
	t, err := template.New(p.source.Path).Parse(strings.TrimSpace(p.source.Template))
	if err != nil {
		return fmt.Errorf("parsing %s: %w", p.source.Path, err)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, meta); err != nil {
		return fmt.Errorf("rendering %s: %w", p.source.Path, err)
	}
	p.body = buf.Bytes()
	p.etag = fmt.Sprintf(`"%016x"`, xxh3.Hash(p.body))
	return nil
}

func (p *renderedPage) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	telemetry.Request(r, "StaticPage.ServeHTTP %s", p.source.Path)
	telemetry.Increment("page_requests", 1)
	if p.body == nil {
		telemetry.Log("static page %s was never rendered", p.source.Path)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	h := w.Header()
	h.Set("ETag", p.etag)
	h.Set("Cache-Control", fmt.Sprintf("public, max-age=%d", p.source.MaxAge))
	// remote web clients read discovery documents cross-origin
	h.Set("Access-Control-Allow-Origin", "*")
	if match := r.Header.Get("If-None-Match"); match != "" && strings.Contains(match, p.etag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	h.Set("Content-Type", p.source.ContentType)
	w.Write(p.body)
}
