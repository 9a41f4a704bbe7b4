package outbox

import (
	"github.com/tkrehbiel/blogfed/server/activity"
	"github.com/tkrehbiel/blogfed/server/actors"
	"github.com/tkrehbiel/blogfed/server/errs"
	"github.com/tkrehbiel/blogfed/server/storage"
	"github.com/tkrehbiel/blogfed/server/visibility"
)

// Transformer builds the activity to send for an entity.
type Transformer interface {
	Supports(entity any) bool
	Transform(entity any, verb string, owner *actors.Actor) (*activity.Activity, error)
}

// DefaultTransformers handles activities, objects and posts.
func DefaultTransformers() []Transformer {
	return []Transformer{ActivityTransformer{}, ObjectTransformer{}, PostTransformer{}}
}

// ActivityTransformer sends an activity as is, or wraps it when verb is a
// different type, as for the Accept of a Follow or the Undo of a Like.
type ActivityTransformer struct{}

func (ActivityTransformer) Supports(entity any) bool {
	_, ok := entity.(*activity.Activity)
	return ok
}

func (ActivityTransformer) Transform(entity any, verb string, owner *actors.Actor) (*activity.Activity, error) {
	a := entity.(*activity.Activity)
	if verb == "" || verb == a.Type {
		c := *a
		c.Actor = activity.IRI(owner.URI)
		return &c, nil
	}

	out := activity.NewActivity(verb, owner.URI, activity.EmbedActivity(a))
	if sender := a.ActorID(); sender != "" && sender != owner.URI {
		// answering someone else
		out.To = activity.IRIs{sender}
	} else {
		out.To = activity.IRIs{}.Append(a.To...)
		out.CC = activity.IRIs{}.Append(a.CC...)
		out.Bto = activity.IRIs{}.Append(a.Bto...)
		out.BCC = activity.IRIs{}.Append(a.BCC...)
	}
	return out, nil
}

// ObjectTransformer wraps an object in a Create by default. Deletes carry a Tombstone.
type ObjectTransformer struct{}

func (ObjectTransformer) Supports(entity any) bool {
	_, ok := entity.(*activity.Object)
	return ok
}

func (ObjectTransformer) Transform(entity any, verb string, owner *actors.Actor) (*activity.Activity, error) {
	return wrapObject(entity.(*activity.Object), verb, owner)
}

func wrapObject(o *activity.Object, verb string, owner *actors.Actor) (*activity.Activity, error) {
	if o.ID == "" && o.Link() == "" {
		return nil, errs.New(errs.InvalidInput, "object has no id")
	}
	if verb == "" {
		verb = activity.CreateType
	}
	if o.AttributedTo == nil {
		o.AttributedTo = activity.IRI(owner.URI)
	}
	a := activity.NewActivity(verb, owner.URI, activity.Embed(o))
	if verb == activity.DeleteType {
		a.Object = activity.Embed(&activity.Object{
			ID:         o.ID,
			Type:       activity.TombstoneType,
			FormerType: o.Type,
		})
	}
	return a, nil
}

// PostTransformer turns a blog post into an Article addressed by its visibility.
type PostTransformer struct{}

func (PostTransformer) Supports(entity any) bool {
	_, ok := entity.(*storage.Post)
	return ok
}

func (PostTransformer) Transform(entity any, verb string, owner *actors.Actor) (*activity.Activity, error) {
	return wrapObject(PostObject(entity.(*storage.Post), owner), verb, owner)
}

// PostObject is the ActivityPub form of a post.
func PostObject(p *storage.Post, owner *actors.Actor) *activity.Object {
	o := &activity.Object{
		ID:           p.ID,
		Type:         activity.ArticleType,
		Name:         p.Title,
		Summary:      p.Summary,
		Content:      p.Content,
		URL:          activity.IRI(p.ID),
		AttributedTo: activity.IRI(owner.URI),
	}
	if !p.Published.IsZero() {
		o.Published = activity.FormatTime(p.Published)
	}
	if !p.Updated.IsZero() && p.Updated.After(p.Published) {
		o.Updated = activity.FormatTime(p.Updated)
	}
	followers := owner.FollowersURL()
	vis := visibility.Public
	if p.Visibility != "" {
		vis = visibility.Parse(p.Visibility)
	}
	switch vis {
	case visibility.Public:
		o.To = activity.IRIs{activity.PublicCollection}
		o.CC = activity.IRIs{followers}
	case visibility.QuietPublic:
		o.To = activity.IRIs{followers}
		o.CC = activity.IRIs{activity.PublicCollection}
	default:
		o.To = activity.IRIs{followers}
	}
	return o
}
