package page

import (
	"bytes"
	"context"
	"html/template"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/tkrehbiel/blogfed/server/activity"
	"github.com/tkrehbiel/blogfed/server/actors"
	"github.com/tkrehbiel/blogfed/server/errs"
	"github.com/tkrehbiel/blogfed/server/storage"
	"github.com/tkrehbiel/blogfed/server/telemetry"
)

// ActorPage serves an actor document, or the profile page to browsers.
// The route must have a {name} variable.
type ActorPage struct {
	Actors Resolver
	Posts  func(ctx context.Context, a *actors.Actor) ([]storage.Post, error)
}

func (p ActorPage) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	telemetry.Request(r, "ActorPage.ServeHTTP")
	name := mux.Vars(r)["name"]
	a, err := p.Actors.ResolveByUsername(r.Context(), name)
	if err != nil {
		if errs.KindOf(err) == errs.NotFound {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		telemetry.Error(err, "resolving actor [%s]", name)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	if WantsHTML(r) {
		p.profile(w, r, a)
		return
	}

	telemetry.Increment("actor_requests", 1)
	doc, err := a.Document()
	if err != nil {
		telemetry.Error(err, "building actor [%s]", a.URI)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	b, err := doc.JSON()
	if err != nil {
		telemetry.Error(err, "marshaling actor [%s]", a.URI)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", activity.ContentType)
	w.Write(b)
}

// WantsHTML reports whether the client asked for html rather than ActivityStreams.
func WantsHTML(r *http.Request) bool {
	accept := r.Header.Get("Accept")
	return strings.Contains(accept, "text/html") &&
		!strings.Contains(accept, "activity+json") &&
		!strings.Contains(accept, "ld+json")
}

var profileTemplate = template.Must(template.New("profile").Parse(`<html>
<head>
<title>{{ .Actor.DisplayName }}</title>
</head>
<body>
<h1>{{ .Actor.DisplayName }}</h1>
<p>{{ .Actor.Summary }}</p>
<p>Latest activity from this account</p>
<ul>
	{{ range .Posts }}
	<li><a href="{{ .ID }}">{{ .Title }}</a></li>
	{{ end }}
</ul>
</body>
</html>`))

func (p ActorPage) profile(w http.ResponseWriter, r *http.Request, a *actors.Actor) {
	telemetry.Increment("profile_requests", 1)
	var posts []storage.Post
	if p.Posts != nil {
		var err error
		if posts, err = p.Posts(r.Context(), a); err != nil {
			telemetry.Error(err, "listing posts for [%s]", a.URI)
		}
	}
	var buf bytes.Buffer
	data := struct {
		Actor *actors.Actor
		Posts []storage.Post
	}{a, posts}
	if err := profileTemplate.Execute(&buf, data); err != nil {
		telemetry.Error(err, "rendering profile [%s]", a.URI)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(buf.Bytes())
}
