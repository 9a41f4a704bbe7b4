package handler

import (
	"context"

	"github.com/tkrehbiel/blogfed/server/activity"
	"github.com/tkrehbiel/blogfed/server/errs"
	"github.com/tkrehbiel/blogfed/server/telemetry"
	"github.com/tkrehbiel/blogfed/server/visibility"
)

// Update refreshes cached actors and edits stored interactions.
// Other object types are ignored.
type Update struct {
	*Deps
}

func (h *Update) Type() string { return activity.UpdateType }

func (h *Update) Validate(a *activity.Activity) error {
	if err := requireActor(a); err != nil {
		return err
	}
	if a.EmbeddedObject() == nil || a.ObjectID() == "" {
		return errs.New(errs.InvalidInput, "Update has no embedded object")
	}
	return nil
}

func (h *Update) Handle(ctx context.Context, a *activity.Activity) (Outcome, error) {
	obj := a.EmbeddedObject()
	switch {
	case activity.IsActorType(obj.Type):
		return h.actor(ctx, a, obj)
	case activity.IsContentType(obj.Type):
		return h.content(ctx, a, obj)
	}
	telemetry.Trace("ignoring Update of %s [%s]", obj.Type, obj.ID)
	return Ignored, nil
}

func (h *Update) actor(ctx context.Context, a *activity.Activity, obj *activity.Object) (Outcome, error) {
	if obj.ID != a.ActorID() {
		return Rejected, errs.New(errs.Forbidden, "[%s] cannot update actor [%s]", a.ActorID(), obj.ID)
	}
	if _, err := h.Remote.FetchByURI(ctx, obj.ID, false); err != nil {
		return Rejected, err
	}
	telemetry.Increment("actor_updates", 1)
	return Accepted, nil
}

func (h *Update) content(ctx context.Context, a *activity.Activity, obj *activity.Object) (Outcome, error) {
	i, err := h.Store.FindInteraction(ctx, obj.ID)
	if err != nil {
		return Rejected, err
	}
	if i == nil {
		return h.post(ctx, a, obj)
	}
	if i.ActorURI != a.ActorID() {
		return Rejected, errs.New(errs.Forbidden, "[%s] cannot update [%s]", a.ActorID(), obj.ID)
	}

	doc, err := obj.JSON()
	if err != nil {
		return Rejected, err
	}
	i.Content = obj.Content
	i.Summary = obj.Summary
	i.Document = string(doc)
	if link := obj.Link(); link != "" {
		i.URL = link
	}
	if t, err := activity.ParseTime(obj.Updated); err == nil {
		i.Updated = t
	} else {
		i.Updated = h.now().UTC()
	}
	if v := visibility.Of(a); v != visibility.Private {
		i.Visibility = v.String()
	}
	if err := h.Store.SaveInteraction(ctx, i); err != nil {
		return Rejected, err
	}
	if err := h.Store.DeleteTombstones(ctx, obj.ID, obj.Link()); err != nil {
		return Rejected, err
	}
	telemetry.Increment("interactions_updated", 1)
	return Accepted, nil
}

// post updates a remote post created from an earlier Create.
func (h *Update) post(ctx context.Context, a *activity.Activity, obj *activity.Object) (Outcome, error) {
	p, err := h.Store.FindPostByRemoteID(ctx, obj.ID)
	if err != nil {
		return Rejected, err
	}
	if p == nil {
		telemetry.Trace("ignoring Update of unknown [%s]", obj.ID)
		return Ignored, nil
	}
	if p.AttributedTo != a.ActorID() {
		return Rejected, errs.New(errs.Forbidden, "[%s] cannot update [%s]", a.ActorID(), obj.ID)
	}
	p.Title = obj.Name
	p.Summary = obj.Summary
	p.Content = obj.Content
	if t, err := activity.ParseTime(obj.Updated); err == nil {
		p.Updated = t
	} else {
		p.Updated = h.now().UTC()
	}
	if err := h.Store.SavePost(ctx, p); err != nil {
		return Rejected, err
	}
	return Accepted, nil
}
