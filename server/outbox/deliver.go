package outbox

import (
	"context"
	"errors"
	"time"

	"github.com/tkrehbiel/blogfed/server/activity"
	"github.com/tkrehbiel/blogfed/server/actors"
	"github.com/tkrehbiel/blogfed/server/storage"
	"github.com/tkrehbiel/blogfed/server/telemetry"
	"github.com/tkrehbiel/blogfed/server/transport"
	"github.com/tkrehbiel/blogfed/server/visibility"
)

const DefaultBatch = 20

// DeliveryStore is the persistence the deliverer needs.
type DeliveryStore interface {
	storage.Outbox
	ListFollowers(ctx context.Context, localActor, status string) ([]storage.Follower, error)
}

// LocalActors finds the local actor that owns an outbox item.
type LocalActors interface {
	ResolveByResource(ctx context.Context, resource string) (*actors.Actor, error)
	IsLocal(uri string) bool
}

// Inboxes finds where to deliver to a remote actor.
type Inboxes interface {
	Inbox(ctx context.Context, uri string, preferShared bool) (string, error)
}

// Poster sends a signed activity.
type Poster interface {
	Post(ctx context.Context, target string, body []byte, id transport.Identity) (*transport.Response, error)
}

type DeliveryOptions struct {
	SharedInbox bool // deliver once per shared inbox
	Batch       int
	Now         func() time.Time
}

// Deliverer sends queued items. It makes one pass per RunOnce; retrying
// failed items is left to whoever calls Reschedule.
type Deliverer struct {
	store   DeliveryStore
	local   LocalActors
	inboxes Inboxes
	poster  Poster
	opts    DeliveryOptions
}

func NewDeliverer(store DeliveryStore, local LocalActors, inboxes Inboxes, poster Poster, opts DeliveryOptions) *Deliverer {
	if opts.Batch <= 0 {
		opts.Batch = DefaultBatch
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Deliverer{store: store, local: local, inboxes: inboxes, poster: poster, opts: opts}
}

// RunOnce claims up to a batch of queued items and delivers each.
// It returns how many were claimed.
func (d *Deliverer) RunOnce(ctx context.Context) (int, error) {
	items, err := d.store.ClaimQueued(ctx, d.opts.Batch)
	if err != nil {
		return len(items), err
	}
	for i := range items {
		item := &items[i]
		if err := d.deliver(ctx, item); err != nil {
			item.State = storage.StateFailed
			item.Attempts++
			item.LastError = err.Error()
			telemetry.Error(err, "delivering %s [%s]", item.ActivityType, item.ActivityID)
			telemetry.Increment("outbox_failed", 1)
		} else {
			now := d.opts.Now().UTC()
			item.State = storage.StateDelivered
			item.Attempts++
			item.LastError = ""
			item.DeliveredAt = &now
			telemetry.Increment("outbox_delivered", 1)
		}
		if err := d.store.SaveOutboxItem(ctx, item); err != nil {
			return len(items), err
		}
	}
	return len(items), nil
}

func (d *Deliverer) deliver(ctx context.Context, item *storage.OutboxItem) error {
	owner, err := d.local.ResolveByResource(ctx, item.ActorURI)
	if err != nil {
		return err
	}
	a, err := activity.ParseActivity([]byte(item.Activity))
	if err != nil {
		return err
	}
	inboxes, err := d.Inboxes(ctx, a, owner, visibility.Parse(item.Visibility))
	if err != nil {
		return err
	}

	a.StripHidden()
	body, err := a.JSON()
	if err != nil {
		return err
	}
	var failed []error
	for _, inbox := range inboxes {
		if _, err := d.poster.Post(ctx, inbox, body, owner); err != nil {
			failed = append(failed, err)
			continue
		}
		telemetry.Trace("delivered [%s] to %s", a.ID, inbox)
	}
	return errors.Join(failed...)
}

// Inboxes lists where a should go: the owner's followers when it is public
// or addressed to them, and every remote actor it names. Each inbox appears once.
func (d *Deliverer) Inboxes(ctx context.Context, a *activity.Activity, owner *actors.Actor, vis visibility.Visibility) ([]string, error) {
	var out []string
	seen := make(map[string]bool)
	add := func(inbox string) {
		if inbox != "" && !seen[inbox] {
			seen[inbox] = true
			out = append(out, inbox)
		}
	}

	recipients := visibility.Recipients(a)
	toFollowers := vis != visibility.Private
	var named []string
	for _, r := range recipients {
		switch {
		case r == owner.FollowersURL():
			toFollowers = true
		case visibility.IsPublic(r), d.local.IsLocal(r):
		default:
			named = append(named, r)
		}
	}

	if toFollowers {
		followers, err := d.store.ListFollowers(ctx, owner.URI, storage.FollowAccepted)
		if err != nil {
			return nil, err
		}
		for _, f := range followers {
			if d.opts.SharedInbox && f.SharedInbox != "" {
				add(f.SharedInbox)
				continue
			}
			if f.Inbox != "" {
				add(f.Inbox)
				continue
			}
			inbox, err := d.inboxes.Inbox(ctx, f.ActorURI, d.opts.SharedInbox)
			if err != nil {
				telemetry.Error(err, "no inbox for follower [%s]", f.ActorURI)
				continue
			}
			add(inbox)
		}
	}
	for _, r := range named {
		inbox, err := d.inboxes.Inbox(ctx, r, d.opts.SharedInbox && vis != visibility.Private)
		if err != nil {
			// not an actor, such as someone else's collection
			telemetry.Trace("no inbox for [%s]: %v", r, err)
			continue
		}
		add(inbox)
	}
	return out, nil
}
