package outbox

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tkrehbiel/blogfed/server/activity"
	"github.com/tkrehbiel/blogfed/server/actors"
	"github.com/tkrehbiel/blogfed/server/errs"
	"github.com/tkrehbiel/blogfed/server/storage"
	"github.com/tkrehbiel/blogfed/server/transport"
	"github.com/tkrehbiel/blogfed/server/visibility"
)

const (
	site = "https://blog.example"
	bob  = "https://remote.example/users/bob"
	eve  = "https://other.example/users/eve"
)

func openTestDB(t *testing.T) *storage.Database {
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db := storage.NewDatabase(storage.DriverSQLite, fmt.Sprintf("file:%s?mode=memory&cache=shared", name))
	require.NoError(t, db.Open())
	t.Cleanup(db.Close)
	return db
}

func testDirectory(t *testing.T) *actors.Directory {
	d, err := actors.NewDirectory(actors.Options{URL: site, KeyBits: 1024}, actors.StaticUsers{})
	require.NoError(t, err)
	return d
}

type staticInboxes map[string]string

func (s staticInboxes) Inbox(_ context.Context, uri string, preferShared bool) (string, error) {
	if inbox, ok := s[uri]; ok {
		return inbox, nil
	}
	return "", errs.New(errs.NotFound, "no actor [%s]", uri)
}

type sent struct {
	target string
	body   string
	keyID  string
}

type recordingPoster struct {
	mu   sync.Mutex
	sent []sent
	fail map[string]bool
}

func (p *recordingPoster) Post(_ context.Context, target string, body []byte, id transport.Identity) (*transport.Response, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail[target] {
		return &transport.Response{Status: 500}, errs.Remote(500, nil)
	}
	p.sent = append(p.sent, sent{target: target, body: string(body), keyID: id.KeyID()})
	return &transport.Response{Status: 202}, nil
}

func TestEnqueue_Post(t *testing.T) {
	db := openTestDB(t)
	dir := testDirectory(t)
	q := NewQueue(db)
	ctx := context.Background()

	p := &storage.Post{ID: site + "/2024/01/hello/", Title: "Hello", Content: "<p>hi</p>", Visibility: "public", Published: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	require.NoError(t, db.SavePost(ctx, p))

	item, err := q.Enqueue(ctx, p, activity.CreateType, dir.Blog(), nil)
	require.NoError(t, err)
	assert.Equal(t, storage.StateQueued, item.State)
	assert.Equal(t, activity.CreateType, item.ActivityType)
	assert.Equal(t, p.ID, item.ObjectID)
	assert.Equal(t, visibility.Public.String(), item.Visibility)
	assert.Equal(t, dir.Blog().URI, item.ActorURI)
	assert.True(t, strings.HasPrefix(item.ActivityID, p.ID+"#activity-create-"), item.ActivityID)

	a, err := activity.ParseActivity([]byte(item.Activity))
	require.NoError(t, err)
	obj := a.EmbeddedObject()
	require.NotNil(t, obj)
	assert.Equal(t, activity.ArticleType, obj.Type)
	assert.Equal(t, "Hello", obj.Name)
	assert.Equal(t, "2024-01-01T00:00:00Z", obj.Published)

	got, err := db.FindPost(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, storage.Federated, got.FederationState)

	found, err := q.Find(ctx, item.ActivityID)
	require.NoError(t, err)
	assert.Equal(t, item.ID, found.ID)
}

func TestEnqueue_AssignsID(t *testing.T) {
	db := openTestDB(t)
	dir := testDirectory(t)
	q := NewQueue(db)

	follow := activity.NewActivity(activity.FollowType, "", activity.IRI(bob))
	follow.To = activity.IRIs{bob}
	item, err := q.Enqueue(context.Background(), follow, "", dir.Blog(), nil)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(item.ActivityID, dir.Blog().URI+"/activities/"), item.ActivityID)
	assert.Equal(t, visibility.Private.String(), item.Visibility)
	assert.Equal(t, bob, item.ObjectID)

	kept := activity.NewActivity(activity.LikeType, "", activity.IRI(bob+"/notes/1"))
	kept.ID = "https://blog.example/likes/1"
	item, err = q.Enqueue(context.Background(), kept, "", dir.Blog(), nil)
	require.NoError(t, err)
	assert.Equal(t, "https://blog.example/likes/1", item.ActivityID)
}

func TestEnqueue_Unsupported(t *testing.T) {
	q := NewQueue(openTestDB(t))
	_, err := q.Enqueue(context.Background(), "hello", "", testDirectory(t).Blog(), nil)
	assert.ErrorIs(t, err, errs.ErrInvalidInput)

	_, err = q.Enqueue(context.Background(), &activity.Object{}, "", nil, nil)
	assert.ErrorIs(t, err, errs.ErrInvalidInput)
}

func TestEnqueue_Reply(t *testing.T) {
	db := openTestDB(t)
	dir := testDirectory(t)
	q := NewQueue(db)

	follow := &activity.Activity{ID: bob + "/follows/1", Type: activity.FollowType, Actor: activity.IRI(bob), Object: activity.IRI(dir.Blog().URI)}
	private := visibility.Private
	item, err := q.Enqueue(context.Background(), follow, activity.AcceptType, dir.Blog(), &private)
	require.NoError(t, err)

	a, err := activity.ParseActivity([]byte(item.Activity))
	require.NoError(t, err)
	assert.Equal(t, activity.AcceptType, a.Type)
	assert.Equal(t, dir.Blog().URI, a.ActorID())
	assert.Equal(t, activity.IRIs{bob}, a.To)
	require.NotNil(t, a.EmbeddedActivity())
	assert.Equal(t, follow.ID, a.EmbeddedActivity().ID)
	assert.Equal(t, follow.ID, item.ObjectID)
}

func TestUndo_LeavesOriginal(t *testing.T) {
	db := openTestDB(t)
	dir := testDirectory(t)
	q := NewQueue(db)
	ctx := context.Background()

	like := activity.NewActivity(activity.LikeType, "", activity.IRI(bob+"/notes/1"))
	like.To = activity.IRIs{bob}
	orig, err := q.Enqueue(ctx, like, "", dir.Blog(), nil)
	require.NoError(t, err)

	undo, err := q.Undo(ctx, orig)
	require.NoError(t, err)
	assert.NotEqual(t, orig.ID, undo.ID)
	assert.Equal(t, activity.UndoType, undo.ActivityType)
	assert.Equal(t, orig.ActivityID, undo.ObjectID)
	assert.Equal(t, orig.Visibility, undo.Visibility)

	again, err := db.FindOutboxItem(ctx, orig.ID)
	require.NoError(t, err)
	assert.Equal(t, orig.Activity, again.Activity)
	assert.Equal(t, activity.LikeType, again.ActivityType)

	n, err := db.CountOutbox(ctx, storage.OutboxFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestReschedule(t *testing.T) {
	db := openTestDB(t)
	q := NewQueue(db)
	ctx := context.Background()
	item := &storage.OutboxItem{ID: "x", ActivityID: "https://blog.example/a/blog/activities/x", Activity: `{"type":"Like"}`, State: storage.StateFailed, Attempts: 2, LastError: "boom"}
	require.NoError(t, db.SaveOutboxItem(ctx, item))

	require.NoError(t, q.Reschedule(ctx, item))
	got, err := q.Find(ctx, "x")
	require.NoError(t, err)
	assert.Equal(t, storage.StateQueued, got.State)
	assert.Equal(t, 2, got.Attempts)
	assert.Equal(t, `{"type":"Like"}`, got.Activity)

	_, err = q.Find(ctx, "nope")
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestVisibilityChanged(t *testing.T) {
	db := openTestDB(t)
	dir := testDirectory(t)
	q := NewQueue(db)
	ctx := context.Background()
	p := &storage.Post{ID: site + "/p/1", Title: "One", Visibility: "public"}
	require.NoError(t, db.SavePost(ctx, p))

	item, err := q.VisibilityChanged(ctx, p, dir.Blog(), true)
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Equal(t, activity.CreateType, item.ActivityType)

	item, err = q.VisibilityChanged(ctx, p, dir.Blog(), true)
	require.NoError(t, err)
	assert.Nil(t, item)

	p.Visibility = "private"
	item, err = q.VisibilityChanged(ctx, p, dir.Blog(), false)
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Equal(t, activity.DeleteType, item.ActivityType)
	assert.Equal(t, storage.Deleted, p.FederationState)

	a, err := activity.ParseActivity([]byte(item.Activity))
	require.NoError(t, err)
	assert.Equal(t, activity.TombstoneType, a.ObjectType())

	item, err = q.VisibilityChanged(ctx, p, dir.Blog(), false)
	require.NoError(t, err)
	assert.Nil(t, item)
}

func TestDeliver(t *testing.T) {
	db := openTestDB(t)
	dir := testDirectory(t)
	ctx := context.Background()
	blog := dir.Blog()

	require.NoError(t, db.SaveFollower(ctx, &storage.Follower{LocalActor: blog.URI, ActorURI: bob, Status: storage.FollowAccepted, Inbox: bob + "/inbox", SharedInbox: "https://remote.example/inbox"}))
	require.NoError(t, db.SaveFollower(ctx, &storage.Follower{LocalActor: blog.URI, ActorURI: "https://remote.example/users/carol", Status: storage.FollowAccepted, Inbox: "https://remote.example/users/carol/inbox", SharedInbox: "https://remote.example/inbox"}))
	require.NoError(t, db.SaveFollower(ctx, &storage.Follower{LocalActor: blog.URI, ActorURI: "https://remote.example/users/dan", Status: storage.FollowPending, Inbox: "https://remote.example/users/dan/inbox"}))

	q := NewQueue(db)
	p := &storage.Post{ID: site + "/p/1", Title: "One", Content: "hi", Visibility: "public"}
	_, err := q.Enqueue(ctx, p, activity.CreateType, blog, nil)
	require.NoError(t, err)

	poster := &recordingPoster{}
	d := NewDeliverer(db, dir, staticInboxes{}, poster, DeliveryOptions{SharedInbox: true})
	n, err := d.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.Len(t, poster.sent, 1)
	assert.Equal(t, "https://remote.example/inbox", poster.sent[0].target)
	assert.Equal(t, blog.KeyID(), poster.sent[0].keyID)

	items, err := db.ListOutbox(ctx, storage.OutboxFilter{State: storage.StateDelivered})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 1, items[0].Attempts)
	assert.NotNil(t, items[0].DeliveredAt)

	// nothing left to claim
	n, err = d.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDeliver_PrivateAndFailure(t *testing.T) {
	db := openTestDB(t)
	dir := testDirectory(t)
	ctx := context.Background()
	blog := dir.Blog()
	require.NoError(t, db.SaveFollower(ctx, &storage.Follower{LocalActor: blog.URI, ActorURI: bob, Status: storage.FollowAccepted, Inbox: bob + "/inbox"}))

	q := NewQueue(db)
	dm := &activity.Object{ID: site + "/notes/dm", Type: activity.NoteType, Content: "psst", To: activity.IRIs{eve}, BCC: activity.IRIs{bob}}
	_, err := q.Enqueue(ctx, dm, "", blog, nil)
	require.NoError(t, err)

	poster := &recordingPoster{fail: map[string]bool{bob + "/inbox": true}}
	inboxes := staticInboxes{eve: eve + "/inbox", bob: bob + "/inbox"}
	d := NewDeliverer(db, dir, inboxes, poster, DeliveryOptions{})
	_, err = d.RunOnce(ctx)
	require.NoError(t, err)

	// eve got it, bob's inbox failed and the hidden audience was not disclosed
	require.Len(t, poster.sent, 1)
	assert.Equal(t, eve+"/inbox", poster.sent[0].target)
	assert.NotContains(t, poster.sent[0].body, "bcc")

	items, err := db.ListOutbox(ctx, storage.OutboxFilter{State: storage.StateFailed})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 1, items[0].Attempts)
	assert.NotEmpty(t, items[0].LastError)

	require.NoError(t, q.Reschedule(ctx, &items[0]))
	poster.fail = nil
	_, err = d.RunOnce(ctx)
	require.NoError(t, err)
	assert.Len(t, poster.sent, 3)
}
