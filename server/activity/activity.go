package activity

import (
	"fmt"
	"strings"
	"time"
)

// Activity is an ActivityStreams activity (Create, Follow, Undo...).
type Activity struct {
	Context    any    `json:"@context,omitempty"`
	ID         string `json:"id,omitempty"`
	Type       string `json:"type,omitempty"`
	Name       string `json:"name,omitempty"`
	Summary    string `json:"summary,omitempty"`
	Content    string `json:"content,omitempty"`
	Actor      *Ref   `json:"actor,omitempty"`
	Object     *Ref   `json:"object,omitempty"`
	Target     *Ref   `json:"target,omitempty"`
	Result     *Ref   `json:"result,omitempty"`
	Origin     *Ref   `json:"origin,omitempty"`
	Instrument *Ref   `json:"instrument,omitempty"`
	To         IRIs   `json:"to,omitempty"`
	Bto        IRIs   `json:"bto,omitempty"`
	CC         IRIs   `json:"cc,omitempty"`
	BCC        IRIs   `json:"bcc,omitempty"`
	Audience   IRIs   `json:"audience,omitempty"`
	Published  string `json:"published,omitempty"`
	Updated    string `json:"updated,omitempty"`
	InReplyTo  *Ref   `json:"inReplyTo,omitempty"`
}

var activityKeys = []string{
	"@context", "id", "type", "name", "summary", "content", "actor", "object", "target",
	"result", "origin", "instrument", "to", "bto", "cc", "bcc", "audience", "published",
	"updated", "inReplyTo",
}

// NewActivity builds an activity of type typ by actor about object.
// See SetObject for what is copied from an embedded object.
func NewActivity(typ string, actor string, object *Ref) *Activity {
	a := &Activity{Type: typ}
	if actor != "" {
		a.Actor = IRI(actor)
	}
	a.SetObject(object)
	return a
}

func (a *Activity) field(key string) any {
	switch key {
	case "@context":
		return &a.Context
	case "id":
		return &a.ID
	case "type":
		return &a.Type
	case "name":
		return &a.Name
	case "summary":
		return &a.Summary
	case "content":
		return &a.Content
	case "actor":
		return &a.Actor
	case "object":
		return &a.Object
	case "target":
		return &a.Target
	case "result":
		return &a.Result
	case "origin":
		return &a.Origin
	case "instrument":
		return &a.Instrument
	case "to":
		return &a.To
	case "bto":
		return &a.Bto
	case "cc":
		return &a.CC
	case "bcc":
		return &a.BCC
	case "audience":
		return &a.Audience
	case "published":
		return &a.Published
	case "updated":
		return &a.Updated
	case "inReplyTo":
		return &a.InReplyTo
	}
	return nil
}

func (a *Activity) Keys() []string { return append([]string(nil), activityKeys...) }

func (a *Activity) Get(key string) (any, error) { return getProperty(a, key) }

// Set assigns a property. Setting "object" goes through SetObject.
func (a *Activity) Set(key string, value any) error {
	if key == "object" {
		r, err := toRef(key, value)
		if err != nil {
			return err
		}
		a.SetObject(r)
		return nil
	}
	return setProperty(a, key, value)
}

func (a *Activity) Add(key string, value any) error { return addProperty(a, key, value) }

func (a *Activity) ToMap(includeContext bool) (map[string]any, error) {
	return toMap(a, a.Type, a.context(), includeContext)
}

// JSON encodes the activity with its @context.
func (a *Activity) JSON() ([]byte, error) {
	c := *a
	c.Context = a.context()
	return marshal(&c)
}

// context picks the most specific @context: an embedded object's type wins over the activity's.
func (a *Activity) context() any {
	if a.Context != nil {
		return a.Context
	}
	if a.Object != nil && a.Object.Object != nil {
		return ContextFor(a.Object.Object.Type)
	}
	return ContextFor(a.Type)
}

// ActorID returns the id of the actor performing the activity.
func (a *Activity) ActorID() string { return a.Actor.ID() }

// ObjectID returns the id of the activity's object.
func (a *Activity) ObjectID() string { return a.Object.ID() }

// ObjectType returns the type of an embedded object, or "" when the object is a bare IRI.
func (a *Activity) ObjectType() string { return a.Object.GetType() }

// EmbeddedObject returns the object when it was sent inline.
func (a *Activity) EmbeddedObject() *Object {
	if a.Object == nil {
		return nil
	}
	return a.Object.Object
}

// EmbeddedActivity returns the object when it is itself an activity (e.g. the Follow inside an Undo).
func (a *Activity) EmbeddedActivity() *Activity {
	if a.Object == nil {
		return nil
	}
	return a.Object.Activity
}

// SetObject sets the object. When it is a bare Object, addressing, timestamps,
// author and inReplyTo are copied onto the activity unless already set, and a
// missing id is derived from the object's id or url.
func (a *Activity) SetObject(r *Ref) {
	a.Object = r
	if r == nil || r.Object == nil {
		return
	}
	o := r.Object
	if len(a.To) == 0 {
		a.To = IRIs{}.Append(o.To...)
	}
	if len(a.Bto) == 0 {
		a.Bto = IRIs{}.Append(o.Bto...)
	}
	if len(a.CC) == 0 {
		a.CC = IRIs{}.Append(o.CC...)
	}
	if len(a.BCC) == 0 {
		a.BCC = IRIs{}.Append(o.BCC...)
	}
	if len(a.Audience) == 0 {
		a.Audience = IRIs{}.Append(o.Audience...)
	}
	if a.Published == "" {
		a.Published = o.Published
	}
	if a.Updated == "" {
		a.Updated = o.Updated
	}
	if a.Actor == nil && o.AttributedTo != nil {
		a.Actor = IRI(o.AttributedTo.ID())
	}
	if a.InReplyTo == nil && o.InReplyTo != nil {
		a.InReplyTo = IRI(o.InReplyTo.ID())
	}
	if a.ID == "" {
		base := o.ID
		if base == "" {
			base = o.Link()
		}
		if base != "" {
			a.ID = derivedID(base, a.Type, time.Now())
		}
	}
}

func derivedID(base, typ string, t time.Time) string {
	if typ == "" {
		return fmt.Sprintf("%s#activity-%d", base, t.Unix())
	}
	return fmt.Sprintf("%s#activity-%s-%d", base, strings.ToLower(typ), t.Unix())
}

// StripHidden removes bto and bcc from the activity and any embedded object.
func (a *Activity) StripHidden() {
	a.Bto = nil
	a.BCC = nil
	if o := a.EmbeddedObject(); o != nil {
		o.StripHidden()
	}
}
