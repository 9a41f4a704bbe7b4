package handler

import (
	"context"

	"github.com/tkrehbiel/blogfed/server/activity"
	"github.com/tkrehbiel/blogfed/server/actors"
	"github.com/tkrehbiel/blogfed/server/errs"
	"github.com/tkrehbiel/blogfed/server/storage"
	"github.com/tkrehbiel/blogfed/server/telemetry"
	"github.com/tkrehbiel/blogfed/server/visibility"
)

// Follow records a remote follower of a local actor and answers it.
type Follow struct {
	*Deps
}

func (h *Follow) Type() string { return activity.FollowType }

func (h *Follow) Validate(a *activity.Activity) error {
	if err := requireActor(a); err != nil {
		return err
	}
	return requireObject(a)
}

func (h *Follow) Handle(ctx context.Context, a *activity.Activity) (Outcome, error) {
	target, err := h.Local.ResolveByResource(ctx, a.ObjectID())
	if err != nil {
		return Rejected, err
	}

	existing, err := h.Store.FindFollower(ctx, target.URI, a.ActorID())
	if err != nil {
		return Rejected, err
	}
	if existing != nil && existing.Status == storage.FollowAccepted && existing.RequestID == a.ID {
		telemetry.Trace("already following [%s]: [%s]", target.URI, a.ActorID())
		return Ignored, nil
	}

	if existing == nil && h.MaxFollowers > 0 {
		n, err := h.Store.CountFollowers(ctx, target.URI)
		if err != nil {
			return Rejected, err
		}
		if n >= int64(h.MaxFollowers) {
			telemetry.Log("[%s] has %d followers, rejecting [%s]", target.URI, n, a.ActorID())
			if _, err := h.reply(ctx, a, activity.RejectType, target); err != nil {
				return Rejected, err
			}
			return Ignored, nil
		}
	}

	remote, err := h.Remote.FetchByURI(ctx, a.ActorID(), true)
	if err != nil {
		return Rejected, err
	}
	f := &storage.Follower{
		LocalActor:  target.URI,
		ActorURI:    a.ActorID(),
		RequestID:   a.ID,
		Status:      storage.FollowPending,
		Inbox:       remote.Actor.Inbox,
		SharedInbox: remote.Actor.SharedInbox(),
	}
	if existing != nil {
		f.CreatedAt = existing.CreatedAt
	}
	if err := h.Store.SaveFollower(ctx, f); err != nil {
		return Rejected, err
	}
	if _, err := h.reply(ctx, a, activity.AcceptType, target); err != nil {
		return Rejected, err
	}
	f.Status = storage.FollowAccepted
	if err := h.Store.SaveFollower(ctx, f); err != nil {
		return Rejected, err
	}
	telemetry.Increment("followers_added", 1)
	h.notify(ctx, Notification{Kind: NotifyFollow, Actor: a.ActorID(), Local: target.URI, Activity: a})
	return Accepted, nil
}

// reply queues an Accept or Reject of follow addressed to its sender only.
func (h *Follow) reply(ctx context.Context, follow *activity.Activity, verb string, owner *actors.Actor) (*storage.OutboxItem, error) {
	private := visibility.Private
	return h.Outbox.Enqueue(ctx, follow, verb, owner, &private)
}

// Accept marks one of our Follow requests accepted.
type Accept struct {
	*Deps
}

func (h *Accept) Type() string { return activity.AcceptType }

func (h *Accept) Validate(a *activity.Activity) error {
	if err := requireActor(a); err != nil {
		return err
	}
	return requireObject(a)
}

func (h *Accept) Handle(ctx context.Context, a *activity.Activity) (Outcome, error) {
	f, err := h.following(ctx, a.ObjectID())
	if err != nil {
		return Rejected, err
	}
	if f == nil {
		telemetry.Trace("ignoring Accept of unknown [%s]", a.ObjectID())
		return Ignored, nil
	}
	if f.TargetURI != a.ActorID() {
		return Rejected, errs.New(errs.Forbidden, "[%s] cannot accept a follow of [%s]", a.ActorID(), f.TargetURI)
	}
	if f.Status == storage.FollowAccepted {
		return Ignored, nil
	}
	f.Status = storage.FollowAccepted
	if err := h.Store.SaveFollowing(ctx, f); err != nil {
		return Rejected, err
	}
	h.notify(ctx, Notification{Kind: NotifyAccept, Actor: a.ActorID(), Local: f.LocalActor, Activity: a})
	return Accepted, nil
}

// following finds the relationship a Follow id belongs to, directly or through the outbox.
func (h *Accept) following(ctx context.Context, followID string) (*storage.Following, error) {
	f, err := h.Store.FindFollowingByActivity(ctx, followID)
	if err != nil || f != nil {
		return f, err
	}
	item, err := h.Store.FindOutboxItem(ctx, followID)
	if err != nil || item == nil || item.ActivityType != activity.FollowType {
		return nil, err
	}
	return h.Store.FindFollowing(ctx, item.ActorURI, item.ObjectID)
}

// Reject drops a pending follow we sent.
type Reject struct {
	*Deps
}

func (h *Reject) Type() string { return activity.RejectType }

func (h *Reject) Validate(a *activity.Activity) error {
	if err := requireActor(a); err != nil {
		return err
	}
	return requireObject(a)
}

func (h *Reject) Handle(ctx context.Context, a *activity.Activity) (Outcome, error) {
	item, err := h.Store.FindOutboxItem(ctx, a.ObjectID())
	if err != nil {
		return Rejected, err
	}
	if item == nil || item.ActivityType != activity.FollowType {
		telemetry.Trace("ignoring Reject of [%s]", a.ObjectID())
		return Ignored, nil
	}
	if item.ObjectID != a.ActorID() {
		return Rejected, errs.New(errs.Forbidden, "[%s] cannot reject a follow of [%s]", a.ActorID(), item.ObjectID)
	}
	if err := h.Store.DeleteFollowing(ctx, item.ActorURI, item.ObjectID); err != nil {
		return Rejected, err
	}
	h.notify(ctx, Notification{Kind: NotifyReject, Actor: a.ActorID(), Local: item.ActorURI, Activity: a})
	return Accepted, nil
}
