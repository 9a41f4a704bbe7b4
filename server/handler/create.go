package handler

import (
	"context"
	"time"

	"github.com/tkrehbiel/blogfed/server/activity"
	"github.com/tkrehbiel/blogfed/server/errs"
	"github.com/tkrehbiel/blogfed/server/storage"
	"github.com/tkrehbiel/blogfed/server/telemetry"
	"github.com/tkrehbiel/blogfed/server/visibility"
)

// Create stores replies and quotes of local posts as interactions.
// A Create for an object we already hold is passed to Update.
type Create struct {
	*Deps
	Update Handler
}

func (h *Create) Type() string { return activity.CreateType }

func (h *Create) Validate(a *activity.Activity) error {
	if err := requireActor(a); err != nil {
		return err
	}
	obj := a.EmbeddedObject()
	if obj == nil || obj.ID == "" {
		return errs.New(errs.InvalidInput, "Create has no object id")
	}
	if obj.Content == "" {
		return errs.New(errs.InvalidInput, "Create object [%s] has no content", obj.ID)
	}
	if author := obj.AttributedTo.ID(); author != "" && author != a.ActorID() {
		return errs.New(errs.Forbidden, "[%s] cannot create for [%s]", a.ActorID(), author)
	}
	return nil
}

func (h *Create) Handle(ctx context.Context, a *activity.Activity) (Outcome, error) {
	vis := visibility.Of(a)
	if vis == visibility.Private {
		telemetry.Trace("dropping private Create [%s]", a.ID)
		return Ignored, nil
	}
	obj := a.EmbeddedObject()
	if h.isSelfPing(obj.ID) {
		telemetry.Trace("dropping self ping [%s]", obj.ID)
		return Ignored, nil
	}

	ts, err := h.Store.FindTombstone(ctx, obj.ID, obj.Link())
	if err != nil {
		return Rejected, err
	}
	if ts != nil && !createdAt(a, obj).After(ts.DeletedAt) {
		telemetry.Trace("ignoring Create of deleted [%s]", obj.ID)
		return Ignored, nil
	}

	known, err := h.known(ctx, obj.ID)
	if err != nil {
		return Rejected, err
	}
	if known {
		telemetry.Trace("Create of known [%s], updating", obj.ID)
		return h.Update.Handle(ctx, a)
	}

	outcome, err := h.create(ctx, a, obj, vis)
	if err != nil || outcome != Accepted {
		return outcome, err
	}
	if err := h.Store.DeleteTombstones(ctx, obj.ID, obj.Link()); err != nil {
		return Rejected, err
	}
	return Accepted, nil
}

// createdAt dates a Create by its object, or by the activity when the object carries no times.
func createdAt(a *activity.Activity, obj *activity.Object) time.Time {
	if t := obj.PublishedTime(); !t.IsZero() {
		return t
	}
	for _, s := range []string{a.Published, a.Updated} {
		if t, err := activity.ParseTime(s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// known reports whether id is already stored as an interaction or a remote post.
func (h *Create) known(ctx context.Context, id string) (bool, error) {
	i, err := h.Store.FindInteraction(ctx, id)
	if err != nil || i != nil {
		return i != nil, err
	}
	p, err := h.Store.FindPostByRemoteID(ctx, id)
	return p != nil, err
}

func (h *Create) create(ctx context.Context, a *activity.Activity, obj *activity.Object, vis visibility.Visibility) (Outcome, error) {
	kind, target := storage.InteractionComment, obj.InReplyTo.ID()
	if target == "" {
		if q := obj.QuotedURL(); q != "" {
			kind, target = storage.InteractionQuote, q
		}
	}

	postID, err := h.localTarget(ctx, target)
	if err != nil {
		return Rejected, err
	}
	if postID == "" {
		if target == "" && h.CreatePosts {
			return h.createPost(ctx, a, obj, vis)
		}
		return Ignored, nil
	}

	doc, err := obj.JSON()
	if err != nil {
		return Rejected, err
	}
	i := &storage.Interaction{
		RemoteID:   obj.ID,
		URL:        obj.Link(),
		Kind:       kind,
		PostID:     postID,
		ActorURI:   a.ActorID(),
		Content:    obj.Content,
		Summary:    obj.Summary,
		Visibility: vis.String(),
		Published:  obj.PublishedTime(),
		Document:   string(doc),
	}
	if t, err := activity.ParseTime(obj.Updated); err == nil {
		i.Updated = t
	}
	if err := h.Store.SaveInteraction(ctx, i); err != nil {
		return Rejected, err
	}
	telemetry.Increment("interactions_created", 1)
	n := NotifyComment
	if kind == storage.InteractionQuote {
		n = NotifyQuote
	}
	h.notify(ctx, Notification{Kind: n, Actor: a.ActorID(), Local: postID, Activity: a})
	return Accepted, nil
}

func (h *Create) createPost(ctx context.Context, a *activity.Activity, obj *activity.Object, vis visibility.Visibility) (Outcome, error) {
	p := &storage.Post{
		ID:           obj.ID,
		Title:        obj.Name,
		Summary:      obj.Summary,
		Content:      obj.Content,
		Visibility:   vis.String(),
		Remote:       true,
		RemoteID:     obj.ID,
		AttributedTo: a.ActorID(),
		Published:    obj.PublishedTime(),
	}
	if err := h.Store.SavePost(ctx, p); err != nil {
		return Rejected, err
	}
	telemetry.Increment("remote_posts_created", 1)
	return Accepted, nil
}
