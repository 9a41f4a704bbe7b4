package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	gocache "github.com/patrickmn/go-cache"

	"github.com/tkrehbiel/blogfed/server/activity"
	"github.com/tkrehbiel/blogfed/server/errs"
)

// Handles look like @user@host, user@host or acct:user@host.
var handleRegex = regexp.MustCompile(`^(?:acct:)?@?([^@\s/:]+)@([^@\s/]+)$`)

// ParseHandle splits an actor handle into user and host.
func ParseHandle(s string) (user, host string, ok bool) {
	m := handleRegex.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return "", "", false
	}
	return m[1], strings.ToLower(m[2]), true
}

// JRD is a webfinger response document.
type JRD struct {
	Subject string    `json:"subject"`
	Aliases []string  `json:"aliases,omitempty"`
	Links   []JRDLink `json:"links"`
}

type JRDLink struct {
	Rel      string `json:"rel"`
	Type     string `json:"type,omitempty"`
	Href     string `json:"href,omitempty"`
	Template string `json:"template,omitempty"`
}

// Self returns the ActivityStreams self link.
func (j *JRD) Self() string {
	for _, l := range j.Links {
		if l.Rel != "self" {
			continue
		}
		if l.Type == activity.ContentType || strings.HasPrefix(l.Type, "application/ld+json") {
			return l.Href
		}
	}
	return ""
}

// ResolveHandle looks up an actor id with webfinger.
func (c *Client) ResolveHandle(ctx context.Context, handle string) (string, error) {
	user, host, ok := ParseHandle(handle)
	if !ok {
		return "", errs.Coded(errs.ErrInvalidActorIdentifier, nil, "not a handle [%s]", handle)
	}
	resource := fmt.Sprintf("acct:%s@%s", user, host)
	if id, found := c.handles.Get(resource); found {
		return id.(string), nil
	}

	u := fmt.Sprintf("%s://%s/.well-known/webfinger?resource=%s", c.opts.WebfingerScheme, host, url.QueryEscape(resource))
	resp, err := c.Get(ctx, u, GetOptions{Accept: "application/jrd+json, application/json"})
	if err != nil {
		return "", errs.Coded(errs.ErrInvalidActorIdentifier, err, "webfinger [%s]", resource)
	}
	var jrd JRD
	if err := json.Unmarshal(resp.Body, &jrd); err != nil {
		return "", errs.Coded(errs.ErrInvalidJSON, err, "webfinger [%s]", resource)
	}
	id := jrd.Self()
	if id == "" {
		return "", errs.Coded(errs.ErrInvalidActorIdentifier, nil, "no self link for [%s]", resource)
	}
	c.handles.Set(resource, id, gocache.DefaultExpiration)
	return id, nil
}

// GetRemoteObject fetches an object by url or actor handle and decodes it.
func (c *Client) GetRemoteObject(ctx context.Context, uriOrHandle string) (map[string]any, error) {
	resp, err := c.GetRemote(ctx, uriOrHandle, GetOptions{})
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(resp.Body, &m); err != nil {
		return nil, errs.Coded(errs.ErrInvalidJSON, err, "decoding [%s]", uriOrHandle)
	}
	return m, nil
}

// GetRemote is GetRemoteObject without decoding.
func (c *Client) GetRemote(ctx context.Context, uriOrHandle string, o GetOptions) (*Response, error) {
	target := uriOrHandle
	if _, _, ok := ParseHandle(uriOrHandle); ok {
		id, err := c.ResolveHandle(ctx, uriOrHandle)
		if err != nil {
			return nil, err
		}
		target = id
	}
	u, err := url.Parse(target)
	if err != nil || u.Host == "" || (u.Scheme != "https" && u.Scheme != "http") {
		return nil, errs.Coded(errs.ErrInvalidObjectURL, err, "invalid object url [%s]", target)
	}
	return c.Get(ctx, target, o)
}
