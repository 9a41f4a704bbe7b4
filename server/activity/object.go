package activity

import (
	"time"
)

// Object is an ActivityStreams object: a Note, Article, Image, Tombstone...
// The property set is fixed. Anything else a peer sends is dropped on decode.
type Object struct {
	Context      any               `json:"@context,omitempty"`
	ID           string            `json:"id,omitempty"`
	Type         string            `json:"type,omitempty"`
	Name         string            `json:"name,omitempty"`
	Summary      string            `json:"summary,omitempty"`
	Content      string            `json:"content,omitempty"`
	ContentMap   map[string]string `json:"contentMap,omitempty"`
	MediaType    string            `json:"mediaType,omitempty"`
	URL          *Ref              `json:"url,omitempty"`
	Href         string            `json:"href,omitempty"`
	AttributedTo *Ref              `json:"attributedTo,omitempty"`
	InReplyTo    *Ref              `json:"inReplyTo,omitempty"`
	Quote        string            `json:"quote,omitempty"`
	QuoteURL     string            `json:"quoteUrl,omitempty"`
	Attachment   Refs              `json:"attachment,omitempty"`
	Tag          Refs              `json:"tag,omitempty"`
	Icon         *Ref              `json:"icon,omitempty"`
	Image        *Ref              `json:"image,omitempty"`
	To           IRIs              `json:"to,omitempty"`
	Bto          IRIs              `json:"bto,omitempty"`
	CC           IRIs              `json:"cc,omitempty"`
	BCC          IRIs              `json:"bcc,omitempty"`
	Audience     IRIs              `json:"audience,omitempty"`
	Published    string            `json:"published,omitempty"`
	Updated      string            `json:"updated,omitempty"`
	Deleted      string            `json:"deleted,omitempty"`
	FormerType   string            `json:"formerType,omitempty"`
	Sensitive    bool              `json:"sensitive,omitempty"`
	StartTime    string            `json:"startTime,omitempty"`
	EndTime      string            `json:"endTime,omitempty"`
	Width        int               `json:"width,omitempty"`
	Height       int               `json:"height,omitempty"`
}

var objectKeys = []string{
	"@context", "id", "type", "name", "summary", "content", "contentMap", "mediaType",
	"url", "href", "attributedTo", "inReplyTo", "quote", "quoteUrl", "attachment", "tag",
	"icon", "image", "to", "bto", "cc", "bcc", "audience", "published", "updated",
	"deleted", "formerType", "sensitive", "startTime", "endTime", "width", "height",
}

func (o *Object) field(key string) any {
	switch key {
	case "@context":
		return &o.Context
	case "id":
		return &o.ID
	case "type":
		return &o.Type
	case "name":
		return &o.Name
	case "summary":
		return &o.Summary
	case "content":
		return &o.Content
	case "contentMap":
		return &o.ContentMap
	case "mediaType":
		return &o.MediaType
	case "url":
		return &o.URL
	case "href":
		return &o.Href
	case "attributedTo":
		return &o.AttributedTo
	case "inReplyTo":
		return &o.InReplyTo
	case "quote":
		return &o.Quote
	case "quoteUrl":
		return &o.QuoteURL
	case "attachment":
		return &o.Attachment
	case "tag":
		return &o.Tag
	case "icon":
		return &o.Icon
	case "image":
		return &o.Image
	case "to":
		return &o.To
	case "bto":
		return &o.Bto
	case "cc":
		return &o.CC
	case "bcc":
		return &o.BCC
	case "audience":
		return &o.Audience
	case "published":
		return &o.Published
	case "updated":
		return &o.Updated
	case "deleted":
		return &o.Deleted
	case "formerType":
		return &o.FormerType
	case "sensitive":
		return &o.Sensitive
	case "startTime":
		return &o.StartTime
	case "endTime":
		return &o.EndTime
	case "width":
		return &o.Width
	case "height":
		return &o.Height
	}
	return nil
}

// Keys lists the properties an Object accepts.
func (o *Object) Keys() []string { return append([]string(nil), objectKeys...) }

func (o *Object) Get(key string) (any, error) { return getProperty(o, key) }

func (o *Object) Set(key string, value any) error { return setProperty(o, key, value) }

func (o *Object) Add(key string, value any) error { return addProperty(o, key, value) }

func (o *Object) ToMap(includeContext bool) (map[string]any, error) {
	return toMap(o, o.Type, o.Context, includeContext)
}

// JSON encodes the object with its @context.
func (o *Object) JSON() ([]byte, error) {
	c := *o
	if c.Context == nil {
		c.Context = ContextFor(c.Type)
	}
	return marshal(&c)
}

// Link returns the first url of the object, falling back to its id.
func (o *Object) Link() string {
	if o.URL != nil {
		if o.URL.Object != nil && o.URL.Object.Href != "" {
			return o.URL.Object.Href
		}
		if id := o.URL.ID(); id != "" {
			return id
		}
	}
	return o.ID
}

// QuotedURL returns the quoted post of a quote-post, if any.
func (o *Object) QuotedURL() string {
	if o.Quote != "" {
		return o.Quote
	}
	return o.QuoteURL
}

// PublishedTime parses published, or updated when published is missing.
func (o *Object) PublishedTime() time.Time {
	for _, s := range []string{o.Published, o.Updated} {
		if t, err := ParseTime(s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// StripHidden removes bto and bcc, which must never leave the server.
func (o *Object) StripHidden() {
	o.Bto = nil
	o.BCC = nil
}

// ParseTime accepts the ActivityPub time format as well as RFC 3339 with offsets or fractions.
func ParseTime(s string) (time.Time, error) {
	if t, err := time.Parse(TimeFormat, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}

// FormatTime formats t the way ActivityPub peers expect.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeFormat)
}
