// Package handler turns validated inbound activities into local state changes.
// There is one Handler per activity type, looked up through a Registry.
package handler

import (
	"context"
	"net/url"
	"sort"
	"time"

	"github.com/tkrehbiel/blogfed/server/activity"
	"github.com/tkrehbiel/blogfed/server/actors"
	"github.com/tkrehbiel/blogfed/server/errs"
	"github.com/tkrehbiel/blogfed/server/storage"
	"github.com/tkrehbiel/blogfed/server/visibility"
)

// Outcome is how a handler disposed of an activity.
type Outcome int

const (
	Accepted Outcome = iota
	Ignored
	Rejected
)

func (o Outcome) String() string {
	switch o {
	case Accepted:
		return "accepted"
	case Ignored:
		return "ignored"
	}
	return "rejected"
}

// Handler processes one activity type. Handle must tolerate replays.
type Handler interface {
	Type() string
	Validate(a *activity.Activity) error
	Handle(ctx context.Context, a *activity.Activity) (Outcome, error)
}

// Registry maps activity types to handlers.
type Registry struct {
	handlers map[string]Handler
}

func NewRegistry(handlers ...Handler) *Registry {
	r := &Registry{handlers: make(map[string]Handler)}
	for _, h := range handlers {
		r.Register(h)
	}
	return r
}

// Register adds h, replacing any handler for the same type.
func (r *Registry) Register(h Handler) {
	r.handlers[h.Type()] = h
}

func (r *Registry) Lookup(typ string) (Handler, bool) {
	h, ok := r.handlers[typ]
	return h, ok
}

func (r *Registry) Types() []string {
	out := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Store is the persistence the handlers need.
type Store interface {
	storage.Followers
	storage.Followings
	storage.Interactions
	storage.Reactions
	storage.Tombstones
	storage.Posts
	FindOutboxItem(ctx context.Context, idOrURI string) (*storage.OutboxItem, error)
}

// LocalActors resolves this site's actors.
type LocalActors interface {
	ResolveByResource(ctx context.Context, resource string) (*actors.Actor, error)
	IsLocal(uri string) bool
}

// RemoteActors is the remote actor cache.
type RemoteActors interface {
	FetchByURI(ctx context.Context, uri string, useCache bool) (*actors.RemoteActor, error)
	Forget(ctx context.Context, uri string) error
}

// Enqueuer queues an outgoing activity.
type Enqueuer interface {
	Enqueue(ctx context.Context, entity any, verb string, owner *actors.Actor, vis *visibility.Visibility) (*storage.OutboxItem, error)
}

type Options struct {
	// CreatePosts stores public top-level posts from remote actors as local posts.
	CreatePosts bool
	// MaxFollowers rejects new followers beyond this many. Zero is unlimited.
	MaxFollowers int
	// CommentMarker is the query key marking this site's own comment urls.
	CommentMarker string
	// SelfPing reports whether an object id refers back to this site's own comments.
	SelfPing func(objectID string) bool
	Now      func() time.Time
}

// Deps are the collaborators shared by the built-in handlers.
type Deps struct {
	Store    Store
	Local    LocalActors
	Remote   RemoteActors
	Outbox   Enqueuer
	Notifier Notifier
	Options
}

func (d *Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

func (d *Deps) notify(ctx context.Context, n Notification) {
	if d.Notifier != nil {
		d.Notifier.Notify(ctx, n)
	}
}

func (d *Deps) isSelfPing(objectID string) bool {
	if d.SelfPing != nil {
		return d.SelfPing(objectID)
	}
	marker := d.CommentMarker
	if marker == "" {
		marker = "c"
	}
	u, err := url.Parse(objectID)
	if err != nil || !d.Local.IsLocal(objectID) {
		return false
	}
	return u.Query().Has(marker)
}

// localTarget finds the local post or comment thread uri refers to.
// It returns "" when uri is not this site's content.
func (d *Deps) localTarget(ctx context.Context, uri string) (string, error) {
	if uri == "" {
		return "", nil
	}
	if d.Local.IsLocal(uri) {
		p, err := d.Store.FindPost(ctx, uri)
		if err != nil {
			return "", err
		}
		if p != nil {
			return p.ID, nil
		}
		return uri, nil
	}
	// a reply to a comment we already hold belongs to the same post
	parent, err := d.Store.FindInteraction(ctx, uri)
	if err != nil || parent == nil {
		return "", err
	}
	return parent.PostID, nil
}

// Default registers every built-in handler.
func Default(deps *Deps) *Registry {
	update := &Update{deps}
	return NewRegistry(
		&Create{Deps: deps, Update: update},
		update,
		&Delete{deps},
		&Follow{deps},
		&Accept{deps},
		&Reject{deps},
		&Undo{deps},
		&Like{deps, activity.LikeType, storage.ReactionLike},
		&Like{deps, activity.AnnounceType, storage.ReactionRepost},
	)
}

func requireActor(a *activity.Activity) error {
	if a.ActorID() == "" {
		return errs.New(errs.InvalidInput, "%s has no actor", a.Type)
	}
	return nil
}

func requireObject(a *activity.Activity) error {
	if a.ObjectID() == "" {
		return errs.New(errs.InvalidInput, "%s has no object id", a.Type)
	}
	return nil
}
