package handler

import (
	"context"

	"github.com/tkrehbiel/blogfed/server/activity"
	"github.com/tkrehbiel/blogfed/server/errs"
	"github.com/tkrehbiel/blogfed/server/storage"
	"github.com/tkrehbiel/blogfed/server/telemetry"
)

// Delete removes remote content we hold, or everything about an actor
// that deleted itself. Deleted objects leave a tombstone behind.
type Delete struct {
	*Deps
}

func (h *Delete) Type() string { return activity.DeleteType }

func (h *Delete) Validate(a *activity.Activity) error {
	if err := requireActor(a); err != nil {
		return err
	}
	return requireObject(a)
}

func (h *Delete) Handle(ctx context.Context, a *activity.Activity) (Outcome, error) {
	if a.ObjectID() == a.ActorID() {
		return h.actor(ctx, a)
	}

	uris := []string{a.ObjectID()}
	if obj := a.EmbeddedObject(); obj != nil && obj.Link() != obj.ID {
		uris = append(uris, obj.Link())
	}

	matched := false
	for _, uri := range uris {
		ok, err := h.interaction(ctx, a, uri)
		if err != nil {
			return Rejected, err
		}
		matched = matched || ok
	}
	ok, err := h.post(ctx, a, a.ObjectID())
	if err != nil {
		return Rejected, err
	}
	matched = matched || ok
	if !matched {
		telemetry.Trace("ignoring Delete of unknown [%s]", a.ObjectID())
		return Ignored, nil
	}

	now := h.now().UTC()
	for _, uri := range uris {
		if err := h.Store.SaveTombstone(ctx, &storage.Tombstone{URI: uri, DeletedAt: now}); err != nil {
			return Rejected, err
		}
	}
	return Accepted, nil
}

func (h *Delete) actor(ctx context.Context, a *activity.Activity) (Outcome, error) {
	n, err := h.Store.DeleteFollowersFrom(ctx, a.ActorID())
	if err != nil {
		return Rejected, err
	}
	if err := h.Remote.Forget(ctx, a.ActorID()); err != nil {
		return Rejected, err
	}
	telemetry.Log("actor [%s] deleted, removed from %d follower lists", a.ActorID(), n)
	return Accepted, nil
}

func (h *Delete) interaction(ctx context.Context, a *activity.Activity, uri string) (bool, error) {
	i, err := h.Store.FindInteraction(ctx, uri)
	if err != nil || i == nil {
		return false, err
	}
	if i.ActorURI != a.ActorID() {
		return false, errs.New(errs.Forbidden, "[%s] cannot delete [%s]", a.ActorID(), uri)
	}
	if err := h.Store.DeleteInteraction(ctx, i.ID); err != nil {
		return false, err
	}
	telemetry.Increment("interactions_deleted", 1)
	return true, nil
}

func (h *Delete) post(ctx context.Context, a *activity.Activity, uri string) (bool, error) {
	p, err := h.Store.FindPostByRemoteID(ctx, uri)
	if err != nil || p == nil {
		return false, err
	}
	if p.AttributedTo != a.ActorID() {
		return false, errs.New(errs.Forbidden, "[%s] cannot delete [%s]", a.ActorID(), uri)
	}
	if err := h.Store.DeletePost(ctx, p.ID); err != nil {
		return false, err
	}
	return true, nil
}
