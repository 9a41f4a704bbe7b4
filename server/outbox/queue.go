// Package outbox queues outgoing activities and delivers them to remote inboxes.
package outbox

import (
	"context"

	"github.com/google/uuid"

	"github.com/tkrehbiel/blogfed/server/activity"
	"github.com/tkrehbiel/blogfed/server/actors"
	"github.com/tkrehbiel/blogfed/server/errs"
	"github.com/tkrehbiel/blogfed/server/storage"
	"github.com/tkrehbiel/blogfed/server/telemetry"
	"github.com/tkrehbiel/blogfed/server/visibility"
)

// Store is the persistence the queue needs.
type Store interface {
	storage.Outbox
	SavePost(ctx context.Context, p *storage.Post) error
}

// Queue records outgoing activities. Nothing is sent until a Deliverer claims them.
// Enqueue does not check for duplicates.
type Queue struct {
	store        Store
	transformers []Transformer
}

func NewQueue(store Store, transformers ...Transformer) *Queue {
	if len(transformers) == 0 {
		transformers = DefaultTransformers()
	}
	return &Queue{store: store, transformers: transformers}
}

// Enqueue builds the activity for entity and queues it as owner.
// The visibility is computed from the addressing unless vis is given.
func (q *Queue) Enqueue(ctx context.Context, entity any, verb string, owner *actors.Actor, vis *visibility.Visibility) (*storage.OutboxItem, error) {
	if owner == nil {
		return nil, errs.New(errs.InvalidInput, "enqueue without an actor")
	}
	var t Transformer
	for _, candidate := range q.transformers {
		if candidate.Supports(entity) {
			t = candidate
			break
		}
	}
	if t == nil {
		return nil, errs.New(errs.InvalidInput, "cannot send a %T", entity)
	}
	a, err := t.Transform(entity, verb, owner)
	if err != nil {
		return nil, err
	}
	if a.ID == "" {
		a.ID = owner.URI + "/activities/" + uuid.NewString()
	}

	item, err := q.save(ctx, a, vis)
	if err != nil {
		return nil, err
	}
	if p, ok := entity.(*storage.Post); ok {
		if err := q.federated(ctx, p, a.Type); err != nil {
			return item, err
		}
	}
	return item, nil
}

func (q *Queue) save(ctx context.Context, a *activity.Activity, vis *visibility.Visibility) (*storage.OutboxItem, error) {
	v := visibility.Of(a)
	if vis != nil {
		v = *vis
	}
	js, err := a.JSON()
	if err != nil {
		return nil, err
	}
	item := &storage.OutboxItem{
		ID:           uuid.NewString(),
		ActorURI:     a.ActorID(),
		ActivityID:   a.ID,
		ActivityType: a.Type,
		ObjectID:     a.ObjectID(),
		Activity:     string(js),
		Visibility:   v.String(),
		State:        storage.StateQueued,
	}
	if err := q.store.SaveOutboxItem(ctx, item); err != nil {
		return nil, err
	}
	telemetry.Increment("outbox_queued", 1)
	telemetry.Trace("queued %s [%s] as %s", a.Type, a.ID, v)
	return item, nil
}

// federated records what the network last heard about a post.
func (q *Queue) federated(ctx context.Context, p *storage.Post, verb string) error {
	switch verb {
	case activity.CreateType, activity.UpdateType:
		p.FederationState = storage.Federated
	case activity.DeleteType:
		p.FederationState = storage.Deleted
	default:
		return nil
	}
	return q.store.SavePost(ctx, p)
}

// Undo queues an Undo of item. The original item is left alone.
func (q *Queue) Undo(ctx context.Context, item *storage.OutboxItem) (*storage.OutboxItem, error) {
	orig, err := activity.ParseActivity([]byte(item.Activity))
	if err != nil {
		return nil, errs.Wrap(errs.InvalidInput, err, "outbox item %s", item.ID)
	}
	undo := activity.NewActivity(activity.UndoType, item.ActorURI, activity.EmbedActivity(orig))
	undo.ID = item.ActorURI + "/activities/" + uuid.NewString()
	undo.To = activity.IRIs{}.Append(orig.To...)
	undo.CC = activity.IRIs{}.Append(orig.CC...)
	undo.Bto = activity.IRIs{}.Append(orig.Bto...)
	undo.BCC = activity.IRIs{}.Append(orig.BCC...)
	vis := visibility.Parse(item.Visibility)
	return q.save(ctx, undo, &vis)
}

// Reschedule puts item back in the queue as it is.
func (q *Queue) Reschedule(ctx context.Context, item *storage.OutboxItem) error {
	item.State = storage.StateQueued
	item.LastError = ""
	return q.store.SaveOutboxItem(ctx, item)
}

// Find looks up an item by its id or its activity id.
func (q *Queue) Find(ctx context.Context, idOrURI string) (*storage.OutboxItem, error) {
	item, err := q.store.FindOutboxItem(ctx, idOrURI)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, errs.New(errs.NotFound, "no outbox item [%s]", idOrURI)
	}
	return item, nil
}

func (q *Queue) List(ctx context.Context, f storage.OutboxFilter) ([]storage.OutboxItem, error) {
	return q.store.ListOutbox(ctx, f)
}

// VisibilityChanged tells the network about a post becoming public or not.
// It returns nil when nothing needs to be sent.
func (q *Queue) VisibilityChanged(ctx context.Context, p *storage.Post, owner *actors.Actor, public bool) (*storage.OutboxItem, error) {
	switch {
	case public && p.FederationState != storage.Federated:
		return q.Enqueue(ctx, p, activity.CreateType, owner, nil)
	case !public && p.FederationState == storage.Federated:
		return q.Enqueue(ctx, p, activity.DeleteType, owner, nil)
	}
	return nil, nil
}
