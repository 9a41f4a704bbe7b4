package handler

import (
	"context"

	"github.com/tkrehbiel/blogfed/server/activity"
	"github.com/tkrehbiel/blogfed/server/storage"
	"github.com/tkrehbiel/blogfed/server/telemetry"
)

// Like records a Like or Announce of local content as a reaction.
// One reaction is kept per kind, post and actor.
type Like struct {
	*Deps
	typ  string
	kind string
}

func (h *Like) Type() string { return h.typ }

func (h *Like) Validate(a *activity.Activity) error {
	if err := requireActor(a); err != nil {
		return err
	}
	return requireObject(a)
}

func (h *Like) Handle(ctx context.Context, a *activity.Activity) (Outcome, error) {
	postID, err := h.localTarget(ctx, a.ObjectID())
	if err != nil {
		return Rejected, err
	}
	if postID == "" {
		telemetry.Trace("ignoring %s of [%s]", a.Type, a.ObjectID())
		return Ignored, nil
	}

	existing, err := h.Store.FindReaction(ctx, h.kind, postID, a.ActorID())
	if err != nil {
		return Rejected, err
	}
	if existing != nil {
		telemetry.Trace("duplicate %s of [%s] by [%s]", a.Type, postID, a.ActorID())
		return Ignored, nil
	}

	r := &storage.Reaction{Kind: h.kind, PostID: postID, ActorURI: a.ActorID(), ActivityID: a.ID}
	if err := h.Store.SaveReaction(ctx, r); err != nil {
		return Rejected, err
	}
	telemetry.Increment("reactions_"+h.kind, 1)
	n := NotifyLike
	if h.kind == storage.ReactionRepost {
		n = NotifyRepost
	}
	h.notify(ctx, Notification{Kind: n, Actor: a.ActorID(), Local: postID, Activity: a})
	return Accepted, nil
}
