package handler

import (
	"context"

	"github.com/tkrehbiel/blogfed/server/activity"
	"github.com/tkrehbiel/blogfed/server/errs"
	"github.com/tkrehbiel/blogfed/server/storage"
	"github.com/tkrehbiel/blogfed/server/telemetry"
)

// Undo reverses a Follow, Like or Announce. Only the actor of the
// original activity may undo it.
type Undo struct {
	*Deps
}

func (h *Undo) Type() string { return activity.UndoType }

func (h *Undo) Validate(a *activity.Activity) error {
	if err := requireActor(a); err != nil {
		return err
	}
	return requireObject(a)
}

func (h *Undo) Handle(ctx context.Context, a *activity.Activity) (Outcome, error) {
	inner := a.EmbeddedActivity()
	if inner == nil {
		// only an id: the best we can do is a reaction recorded under it
		r, err := h.Store.FindReactionByActivity(ctx, a.ObjectID())
		if err != nil {
			return Rejected, err
		}
		if r == nil {
			return Ignored, nil
		}
		return h.reaction(ctx, a, r)
	}

	if actor := inner.ActorID(); actor != "" && actor != a.ActorID() {
		return Rejected, errs.New(errs.Forbidden, "[%s] cannot undo an activity of [%s]", a.ActorID(), actor)
	}

	switch inner.Type {
	case activity.FollowType:
		return h.follow(ctx, a, inner)
	case activity.LikeType, activity.AnnounceType:
		kind := storage.ReactionLike
		if inner.Type == activity.AnnounceType {
			kind = storage.ReactionRepost
		}
		r, err := h.findReaction(ctx, a, inner, kind)
		if err != nil {
			return Rejected, err
		}
		if r == nil {
			return Ignored, nil
		}
		return h.reaction(ctx, a, r)
	}
	telemetry.Trace("ignoring Undo of %s", inner.Type)
	return Ignored, nil
}

func (h *Undo) follow(ctx context.Context, a, follow *activity.Activity) (Outcome, error) {
	target, err := h.Local.ResolveByResource(ctx, follow.ObjectID())
	if err != nil {
		if errs.KindOf(err) == errs.NotFound {
			return Ignored, nil
		}
		return Rejected, err
	}
	f, err := h.Store.FindFollower(ctx, target.URI, a.ActorID())
	if err != nil {
		return Rejected, err
	}
	if f == nil {
		return Ignored, nil
	}
	if err := h.Store.DeleteFollower(ctx, target.URI, a.ActorID()); err != nil {
		return Rejected, err
	}
	telemetry.Increment("followers_removed", 1)
	h.notify(ctx, Notification{Kind: NotifyUnfollow, Actor: a.ActorID(), Local: target.URI, Activity: a})
	return Accepted, nil
}

func (h *Undo) findReaction(ctx context.Context, a, inner *activity.Activity, kind string) (*storage.Reaction, error) {
	if inner.ID != "" {
		r, err := h.Store.FindReactionByActivity(ctx, inner.ID)
		if err != nil || r != nil {
			return r, err
		}
	}
	postID, err := h.localTarget(ctx, inner.ObjectID())
	if err != nil || postID == "" {
		return nil, err
	}
	return h.Store.FindReaction(ctx, kind, postID, a.ActorID())
}

func (h *Undo) reaction(ctx context.Context, a *activity.Activity, r *storage.Reaction) (Outcome, error) {
	if r.ActorURI != a.ActorID() {
		return Rejected, errs.New(errs.Forbidden, "[%s] cannot undo a reaction of [%s]", a.ActorID(), r.ActorURI)
	}
	if err := h.Store.DeleteReaction(ctx, r.ID); err != nil {
		return Rejected, err
	}
	telemetry.Increment("reactions_removed", 1)
	return Accepted, nil
}
