package page

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/tkrehbiel/blogfed/server/telemetry"
)

var WellKnownHostMeta = StaticPage{
	Path:        "/.well-known/host-meta",
	Accept:      "*/*",
	ContentType: "application/xrd+xml",
	Template: `
<?xml version="1.0" encoding="UTF-8"?>
<XRD xmlns="http://docs.oasis-open.org/ns/xri/xrd-1.0">
	<Link rel="lrdd" type="application/jrd+json" template="{{ .URL }}/.well-known/webfinger?resource={uri}"/>
</XRD>`,
}

var WellKnownNodeInfo = StaticPage{
	Path:        "/.well-known/nodeinfo",
	Accept:      "*/*",
	ContentType: "application/json",
	Template: `
{
	"links": [
		{
			"rel": "http://nodeinfo.diaspora.software/ns/schema/2.1",
			"href": "{{ .URL }}/nodeinfo/2.1"
		}
	]
}`,
}

const NodeInfoPath = "/nodeinfo/2.1"

// Usage counts reported by nodeinfo.
type Usage struct {
	Users      int
	LocalPosts int
}

// NodeInfo serves the nodeinfo 2.1 document with live usage counts.
type NodeInfo struct {
	Meta  MetaData
	Usage func(ctx context.Context) (Usage, error)
}

type nodeInfoSoftware struct {
	Name       string `json:"name"`
	Version    string `json:"version"`
	Repository string `json:"repository,omitempty"`
}

type nodeInfoUsers struct {
	Total int `json:"total"`
}

type nodeInfoUsage struct {
	Users      nodeInfoUsers `json:"users"`
	LocalPosts int           `json:"localPosts"`
}

type nodeInfoDocument struct {
	Version           string           `json:"version"`
	Software          nodeInfoSoftware `json:"software"`
	Protocols         []string         `json:"protocols"`
	Services          map[string][]any `json:"services"`
	OpenRegistrations bool             `json:"openRegistrations"`
	Usage             nodeInfoUsage    `json:"usage"`
	Metadata          map[string]any   `json:"metadata"`
}

func (n NodeInfo) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	telemetry.Request(r, "NodeInfo.ServeHTTP")
	telemetry.Increment("nodeinfo_requests", 1)

	doc := nodeInfoDocument{
		Version:   "2.1",
		Software:  nodeInfoSoftware{Name: n.Meta.Software, Version: n.Meta.Version, Repository: "https://github.com/tkrehbiel/blogfed"},
		Protocols: []string{"activitypub"},
		Services:  map[string][]any{"inbound": {}, "outbound": {}},
		Metadata:  map[string]any{},
	}
	if n.Usage != nil {
		u, err := n.Usage(r.Context())
		if err != nil {
			telemetry.Error(err, "counting nodeinfo usage")
		}
		doc.Usage.Users.Total = u.Users
		doc.Usage.LocalPosts = u.LocalPosts
	}
	w.Header().Set("Content-Type", `application/json; profile="http://nodeinfo.diaspora.software/ns/schema/2.1#"`)
	if err := json.NewEncoder(w).Encode(&doc); err != nil {
		telemetry.Error(err, "writing nodeinfo")
	}
}
