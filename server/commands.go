package server

import (
	"context"
	"strings"

	"github.com/tkrehbiel/blogfed/server/activity"
	"github.com/tkrehbiel/blogfed/server/actors"
	"github.com/tkrehbiel/blogfed/server/errs"
	"github.com/tkrehbiel/blogfed/server/storage"
	"github.com/tkrehbiel/blogfed/server/telemetry"
	"github.com/tkrehbiel/blogfed/server/visibility"
)

// Operations behind the command line. Each one only queues work;
// the running service delivers it.

// remoteURI turns a handle or uri into an actor uri.
func (e *Engine) remoteURI(ctx context.Context, target string) (string, error) {
	lower := strings.ToLower(target)
	if strings.HasPrefix(lower, "https://") || strings.HasPrefix(lower, "http://") {
		return target, nil
	}
	return e.Client.ResolveHandle(ctx, target)
}

// Follow asks a remote actor to accept a follow from a local actor.
func (e *Engine) Follow(ctx context.Context, local, target string) (*storage.OutboxItem, error) {
	owner, err := e.Directory.ResolveAny(ctx, local)
	if err != nil {
		return nil, err
	}
	uri, err := e.remoteURI(ctx, target)
	if err != nil {
		return nil, err
	}
	remote, err := e.Remote.FetchByURI(ctx, uri, true)
	if err != nil {
		return nil, err
	}

	follow := activity.NewActivity(activity.FollowType, owner.URI, activity.IRI(remote.URI))
	follow.To = activity.IRIs{remote.URI}
	private := visibility.Private
	item, err := e.Queue.Enqueue(ctx, follow, "", owner, &private)
	if err != nil {
		return nil, err
	}
	err = e.DB.SaveFollowing(ctx, &storage.Following{
		LocalActor: owner.URI,
		TargetURI:  remote.URI,
		FollowID:   item.ActivityID,
		Status:     storage.FollowPending,
	})
	telemetry.Log("%s follows %s with %s", owner.URI, remote.URI, item.ActivityID)
	return item, err
}

// Unfollow undoes a follow and forgets the relationship.
func (e *Engine) Unfollow(ctx context.Context, local, target string) (*storage.OutboxItem, error) {
	owner, err := e.Directory.ResolveAny(ctx, local)
	if err != nil {
		return nil, err
	}
	uri, err := e.remoteURI(ctx, target)
	if err != nil {
		return nil, err
	}
	f, err := e.DB.FindFollowing(ctx, owner.URI, uri)
	if err != nil {
		return nil, err
	}
	if f == nil {
		return nil, errs.New(errs.NotFound, "%s does not follow %s", owner.URI, uri)
	}

	var undo *storage.OutboxItem
	if item, err := e.DB.FindOutboxItem(ctx, f.FollowID); err != nil {
		return nil, err
	} else if item != nil {
		if undo, err = e.Queue.Undo(ctx, item); err != nil {
			return nil, err
		}
	}
	if err := e.DB.DeleteFollowing(ctx, owner.URI, uri); err != nil {
		return undo, err
	}
	telemetry.Log("%s unfollowed %s", owner.URI, uri)
	return undo, nil
}

// Move tells the followers of a local actor that it now lives at target.
// The target must already list the local actor among its aliases.
func (e *Engine) Move(ctx context.Context, local, target string) (*storage.OutboxItem, error) {
	owner, err := e.Directory.ResolveAny(ctx, local)
	if err != nil {
		return nil, err
	}
	uri, err := e.remoteURI(ctx, target)
	if err != nil {
		return nil, err
	}
	// the alias is usually added just before moving
	remote, err := e.Remote.FetchByURI(ctx, uri, false)
	if err != nil {
		return nil, err
	}
	if !remote.Actor.AlsoKnownAs.Contains(owner.URI) {
		return nil, errs.New(errs.Forbidden, "%s does not list %s in alsoKnownAs", remote.URI, owner.URI)
	}

	move := activity.NewActivity(activity.MoveType, owner.URI, activity.IRI(owner.URI))
	move.Target = activity.IRI(remote.URI)
	move.To = activity.IRIs{owner.FollowersURL()}
	quiet := visibility.QuietPublic
	item, err := e.Queue.Enqueue(ctx, move, "", owner, &quiet)
	if err != nil {
		return nil, err
	}
	telemetry.Log("%s moves to %s with %s", owner.URI, remote.URI, item.ActivityID)
	return item, nil
}

// post finds a local post and the actor that federates it.
func (e *Engine) post(ctx context.Context, permalink string) (*storage.Post, *actors.Actor, error) {
	p, err := e.DB.FindPost(ctx, permalink)
	if err != nil {
		return nil, nil, err
	}
	if p == nil || p.Remote {
		return nil, nil, errs.New(errs.NotFound, "no local post [%s]", permalink)
	}
	owner, err := e.Directory.ResolveByID(ctx, p.AuthorID)
	if err != nil {
		return nil, nil, err
	}
	return p, owner, nil
}

// DeletePost federates a Delete for a post.
func (e *Engine) DeletePost(ctx context.Context, permalink string) (*storage.OutboxItem, error) {
	p, owner, err := e.post(ctx, permalink)
	if err != nil {
		return nil, err
	}
	if p.FederationState == storage.Deleted {
		return nil, errs.New(errs.InvalidInput, "post [%s] is already deleted", permalink)
	}
	return e.Queue.Enqueue(ctx, p, activity.DeleteType, owner, nil)
}

// UpdatePost federates the current content of a post.
func (e *Engine) UpdatePost(ctx context.Context, permalink string) (*storage.OutboxItem, error) {
	p, owner, err := e.post(ctx, permalink)
	if err != nil {
		return nil, err
	}
	if p.FederationState != storage.Federated {
		return nil, errs.New(errs.InvalidInput, "post [%s] was never federated", permalink)
	}
	return e.Queue.Enqueue(ctx, p, activity.UpdateType, owner, nil)
}

// SetVisibility changes who may see a post, federating a Create or Delete when that changes.
func (e *Engine) SetVisibility(ctx context.Context, permalink, vis string) (*storage.OutboxItem, error) {
	p, owner, err := e.post(ctx, permalink)
	if err != nil {
		return nil, err
	}
	v := visibility.Parse(vis)
	p.Visibility = v.String()
	item, err := e.Queue.VisibilityChanged(ctx, p, owner, v != visibility.Private)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, e.DB.SavePost(ctx, p)
	}
	return item, nil
}

// UndoOutbox queues an Undo of an outbox item.
func (e *Engine) UndoOutbox(ctx context.Context, id string) (*storage.OutboxItem, error) {
	item, err := e.Queue.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	return e.Queue.Undo(ctx, item)
}

// RescheduleOutbox queues a failed item for another delivery attempt.
func (e *Engine) RescheduleOutbox(ctx context.Context, id string) (*storage.OutboxItem, error) {
	item, err := e.Queue.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	return item, e.Queue.Reschedule(ctx, item)
}
