package page

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/tkrehbiel/blogfed/server/activity"
	"github.com/tkrehbiel/blogfed/server/actors"
	"github.com/tkrehbiel/blogfed/server/errs"
	"github.com/tkrehbiel/blogfed/server/telemetry"
	"github.com/tkrehbiel/blogfed/server/transport"
)

const WebFingerPath = "/.well-known/webfinger"

// Resolver finds local actors.
type Resolver interface {
	ResolveByResource(ctx context.Context, resource string) (*actors.Actor, error)
	ResolveByUsername(ctx context.Context, name string) (*actors.Actor, error)
}

// WebFinger answers resource queries for every local actor, by acct: or by url.
type WebFinger struct {
	Meta   MetaData
	Actors Resolver
}

func (wf WebFinger) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	telemetry.Request(r, "WebFinger.ServeHTTP")
	resource := r.URL.Query().Get("resource")
	if resource == "" {
		telemetry.Increment("webfinger_missing", 1)
		http.Error(w, "missing resource", http.StatusBadRequest)
		return
	}

	a, err := wf.Actors.ResolveByResource(r.Context(), resource)
	if err != nil {
		telemetry.Log("webfinger resource [%s]: %v", resource, err)
		switch errs.KindOf(err) {
		case errs.InvalidInput, errs.WrongScheme:
			telemetry.Increment("webfinger_malformed", 1)
			http.Error(w, err.Error(), http.StatusBadRequest)
		default:
			telemetry.Increment("webfinger_unrecognized", 1)
			http.Error(w, "not found", http.StatusNotFound)
		}
		return
	}

	telemetry.Increment("webfinger_requests", 1)
	w.Header().Set("Content-Type", "application/jrd+json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	if err := json.NewEncoder(w).Encode(wf.document(a)); err != nil {
		telemetry.Error(err, "writing webfinger response")
	}
}

func (wf WebFinger) document(a *actors.Actor) transport.JRD {
	jrd := transport.JRD{
		Subject: "acct:" + a.Username + "@" + wf.Meta.HostName,
		Aliases: []string{a.URI},
		Links: []transport.JRDLink{
			{Rel: "self", Type: activity.ContentType, Href: a.URI},
		},
	}
	if a.URL != "" {
		jrd.Aliases = append(jrd.Aliases, a.URL)
		jrd.Links = append(jrd.Links, transport.JRDLink{Rel: "http://webfinger.net/rel/profile-page", Type: "text/html", Href: a.URL})
	}
	if a.Icon != "" {
		jrd.Links = append(jrd.Links, transport.JRDLink{Rel: "http://webfinger.net/rel/avatar", Href: a.Icon})
	}
	return jrd
}
