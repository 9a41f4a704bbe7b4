package server

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/tkrehbiel/blogfed/server/activity"
	"github.com/tkrehbiel/blogfed/server/actors"
	"github.com/tkrehbiel/blogfed/server/page"
	"github.com/tkrehbiel/blogfed/server/rss"
	"github.com/tkrehbiel/blogfed/server/storage"
	"github.com/tkrehbiel/blogfed/server/telemetry"
	"github.com/tkrehbiel/blogfed/server/visibility"
)

const outboxPageSize = 20

type OutboxStore interface {
	ListOutbox(ctx context.Context, f storage.OutboxFilter) ([]storage.OutboxItem, error)
	CountOutbox(ctx context.Context, f storage.OutboxFilter) (int64, error)
}

// ActivityOutbox serves an actor's public activities as a paged OrderedCollection.
type ActivityOutbox struct {
	Actors page.Resolver
	Store  OutboxStore
}

func (ao ActivityOutbox) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	telemetry.Request(r, "ActivityOutbox.ServeHTTP")
	telemetry.Increment("get_requests", 1)

	owner, ok := resolveActor(w, r, ao.Actors)
	if !ok {
		return
	}
	filter := storage.OutboxFilter{
		ActorURI:   owner.URI,
		Visibility: []string{visibility.Public.String(), visibility.QuietPublic.String()},
	}
	total, err := ao.Store.CountOutbox(r.Context(), filter)
	if err != nil {
		telemetry.Error(err, "counting outbox")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	n := activity.PageNumber(r.URL.Query())
	if n == 0 {
		writeActivityJSON(w, activity.NewCollection(owner.OutboxURL(), int(total), outboxPageSize))
		return
	}

	filter.Limit = outboxPageSize
	filter.Offset = (n - 1) * outboxPageSize
	items, err := ao.Store.ListOutbox(r.Context(), filter)
	if err != nil {
		telemetry.Error(err, "listing outbox")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	objects := make([]any, 0, len(items))
	for _, item := range items {
		// stored activities keep bto and bcc for delivery
		a, err := activity.ParseActivity([]byte(item.Activity))
		if err != nil {
			telemetry.Error(err, "outbox item %s", item.ID)
			continue
		}
		a.StripHidden()
		objects = append(objects, a)
	}
	writeActivityJSON(w, activity.NewCollectionPage(owner.OutboxURL(), n, int(total), outboxPageSize, objects))
}

// ActorCollection serves only the size of a collection. Members are not disclosed.
type ActorCollection struct {
	Actors page.Resolver
	ID     func(a *actors.Actor) string
	Count  func(ctx context.Context, a *actors.Actor) (int, error)
}

func (ac ActorCollection) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	telemetry.Request(r, "ActorCollection.ServeHTTP")
	telemetry.Increment("get_requests", 1)

	owner, ok := resolveActor(w, r, ac.Actors)
	if !ok {
		return
	}
	n, err := ac.Count(r.Context(), owner)
	if err != nil {
		telemetry.Error(err, "counting collection")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	writeActivityJSON(w, activity.OrderedCollection{
		Context:    activity.Context,
		ID:         ac.ID(owner),
		Type:       activity.OrderedCollectionType,
		TotalItems: n,
	})
}

func resolveActor(w http.ResponseWriter, r *http.Request, res page.Resolver) (*actors.Actor, bool) {
	a, err := res.ResolveByUsername(r.Context(), mux.Vars(r)["name"])
	if err != nil {
		telemetry.Trace("no actor %s: %v", mux.Vars(r)["name"], err)
		http.NotFound(w, r)
		return nil, false
	}
	return a, true
}

func writeActivityJSON(w http.ResponseWriter, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		telemetry.Error(err, "marshaling collection")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", activity.ContentType)
	w.Write(b)
}

type PostStore interface {
	FindPost(ctx context.Context, id string) (*storage.Post, error)
	SavePost(ctx context.Context, p *storage.Post) error
	ListPostsByAuthor(ctx context.Context, authorID int64, n int) ([]storage.Post, error)
}

type Enqueuer interface {
	Enqueue(ctx context.Context, entity any, verb string, owner *actors.Actor, vis *visibility.Visibility) (*storage.OutboxItem, error)
}

// FeedPublisher turns items discovered in the site feed into federated posts.
type FeedPublisher struct {
	ctx   context.Context
	Owner *actors.Actor
	Posts PostStore
	Queue Enqueuer
}

func NewFeedPublisher(ctx context.Context, owner *actors.Actor, posts PostStore, queue Enqueuer) *FeedPublisher {
	return &FeedPublisher{ctx: ctx, Owner: owner, Posts: posts, Queue: queue}
}

func permalink(item rss.Item) string {
	if item.URL != "" {
		return item.URL
	}
	return item.ID
}

// NewItem is called when a new RSS item is detected by the watcher
func (fp *FeedPublisher) NewItem(item rss.Item) {
	telemetry.Trace("new item [%s]", item.Title)
	telemetry.Increment("rss_newitems", 1)
	p, err := fp.Posts.FindPost(fp.ctx, permalink(item))
	if err != nil {
		telemetry.Error(err, "finding post %s", permalink(item))
		return
	}
	if p != nil {
		if p.Title == item.Title && p.Content == item.Content {
			return
		}
		fp.update(p, item)
		return
	}
	p = &storage.Post{
		ID:         permalink(item),
		AuthorID:   fp.Owner.ID,
		Visibility: visibility.Public.String(),
	}
	fp.apply(p, item)
	fp.enqueue(p, activity.CreateType)
}

// UpdatedItem is called when a known RSS item changes
func (fp *FeedPublisher) UpdatedItem(item rss.Item) {
	telemetry.Trace("updated item [%s]", item.Title)
	telemetry.Increment("rss_updateditems", 1)
	p, err := fp.Posts.FindPost(fp.ctx, permalink(item))
	if err != nil {
		telemetry.Error(err, "finding post %s", permalink(item))
		return
	}
	if p == nil {
		fp.NewItem(item)
		return
	}
	fp.update(p, item)
}

func (fp *FeedPublisher) update(p *storage.Post, item rss.Item) {
	fp.apply(p, item)
	switch p.FederationState {
	case storage.Federated:
		fp.enqueue(p, activity.UpdateType)
	case storage.Deleted:
		// deleted posts stay deleted until made visible again
		if err := fp.Posts.SavePost(fp.ctx, p); err != nil {
			telemetry.Error(err, "saving post %s", p.ID)
		}
	default:
		fp.enqueue(p, activity.CreateType)
	}
}

func (fp *FeedPublisher) apply(p *storage.Post, item rss.Item) {
	p.Title = item.Title
	p.Content = item.Content
	p.Published = item.Published
	p.Updated = item.Updated
}

func (fp *FeedPublisher) enqueue(p *storage.Post, verb string) {
	item, err := fp.Queue.Enqueue(fp.ctx, p, verb, fp.Owner, nil)
	if err != nil {
		telemetry.Error(err, "queuing %s of %s", verb, p.ID)
		return
	}
	telemetry.Log("queued %s %s of %s", item.ID, verb, p.ID)
}

// StatusCode is called by the RSS watcher to report the latest fetch status code
func (fp *FeedPublisher) StatusCode(code int) {
	telemetry.Trace("rss feed return code [%d]", code)
	telemetry.Increment("rss_fetches", 1)
}

// Seed tells the watcher about posts already stored so they are not federated again.
func (fp *FeedPublisher) Seed(w *rss.FeedWatcher) error {
	posts, err := fp.Posts.ListPostsByAuthor(fp.ctx, fp.Owner.ID, 500)
	if err != nil {
		return err
	}
	for _, p := range posts {
		w.AddKnown(rss.Item{ID: p.ID, Title: p.Title, Content: p.Content, URL: p.ID, Updated: p.Updated})
	}
	return nil
}
