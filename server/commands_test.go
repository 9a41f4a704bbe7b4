package server

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tkrehbiel/blogfed/server/activity"
	"github.com/tkrehbiel/blogfed/server/errs"
	"github.com/tkrehbiel/blogfed/server/storage"
)

func TestNewEngine_UnknownCache(t *testing.T) {
	cfg := testConfig(t)
	cfg.Cache.Backend = "floppy"
	_, err := NewEngine(cfg)
	assert.Error(t, err)
}

func TestEngine_Usage(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	require.NoError(t, e.DB.SavePost(ctx, &storage.Post{ID: site + "/one/"}))

	u, err := e.Usage(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, u.LocalPosts)
	assert.GreaterOrEqual(t, u.Users, 2) // the blog and alice
}

func TestEngine_FollowUnfollow(t *testing.T) {
	e := newTestEngine(t)
	peer := newRemotePeer(t)
	ctx := context.Background()
	alice, err := e.Directory.ResolveByUsername(ctx, "alice")
	require.NoError(t, err)

	item, err := e.Follow(ctx, "alice", peer.actor())
	require.NoError(t, err)
	assert.Equal(t, activity.FollowType, item.ActivityType)
	assert.Equal(t, peer.actor(), item.ObjectID)
	assert.True(t, strings.HasPrefix(item.ActivityID, alice.URI+"/activities/"))
	assert.Equal(t, storage.StateQueued, item.State)

	f, err := e.DB.FindFollowing(ctx, alice.URI, peer.actor())
	require.NoError(t, err)
	require.NotNil(t, f)
	assert.Equal(t, storage.FollowPending, f.Status)
	assert.Equal(t, item.ActivityID, f.FollowID)

	undo, err := e.Unfollow(ctx, "alice", peer.actor())
	require.NoError(t, err)
	require.NotNil(t, undo)
	assert.Equal(t, activity.UndoType, undo.ActivityType)

	f, err = e.DB.FindFollowing(ctx, alice.URI, peer.actor())
	require.NoError(t, err)
	assert.Nil(t, f)

	_, err = e.Unfollow(ctx, "alice", peer.actor())
	assert.True(t, errors.Is(err, errs.ErrNotFound))
}

func TestEngine_Follow_UnknownLocal(t *testing.T) {
	e := newTestEngine(t)
	peer := newRemotePeer(t)
	_, err := e.Follow(context.Background(), "nobody", peer.actor())
	assert.True(t, errors.Is(err, errs.ErrNotFound))
}

func TestEngine_Move(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	alice, err := e.Directory.ResolveByUsername(ctx, "alice")
	require.NoError(t, err)

	_, err = e.Move(ctx, "alice", newRemotePeer(t).actor())
	assert.True(t, errors.Is(err, errs.ErrForbidden))

	peer := newRemotePeer(t, alice.URI)
	item, err := e.Move(ctx, "alice", peer.actor())
	require.NoError(t, err)
	assert.Equal(t, activity.MoveType, item.ActivityType)
	assert.Equal(t, alice.URI, item.ObjectID)
	assert.Equal(t, "quiet_public", item.Visibility)

	a, err := activity.ParseActivity([]byte(item.Activity))
	require.NoError(t, err)
	assert.Equal(t, peer.actor(), a.Target.ID())
	assert.Equal(t, activity.IRIs{alice.URI + "/followers"}, a.To)
}

func TestEngine_PostLifecycle(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	const link = site + "/2024/01/hello/"
	require.NoError(t, e.DB.SavePost(ctx, &storage.Post{ID: link, Title: "Hello", Content: "hi", Visibility: "private"}))

	_, err := e.UpdatePost(ctx, link)
	assert.True(t, errors.Is(err, errs.ErrInvalidInput), "never federated")

	item, err := e.SetVisibility(ctx, link, "public")
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Equal(t, activity.CreateType, item.ActivityType)

	item, err = e.UpdatePost(ctx, link)
	require.NoError(t, err)
	assert.Equal(t, activity.UpdateType, item.ActivityType)

	item, err = e.SetVisibility(ctx, link, "private")
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Equal(t, activity.DeleteType, item.ActivityType)

	// nothing left to federate
	item, err = e.SetVisibility(ctx, link, "private")
	require.NoError(t, err)
	assert.Nil(t, item)

	_, err = e.DeletePost(ctx, link)
	assert.True(t, errors.Is(err, errs.ErrInvalidInput), "already deleted")

	_, err = e.DeletePost(ctx, site+"/missing/")
	assert.True(t, errors.Is(err, errs.ErrNotFound))
}

func TestEngine_DeletePost(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	const link = site + "/2024/01/hello/"
	require.NoError(t, e.DB.SavePost(ctx, &storage.Post{ID: link, Title: "Hello", FederationState: storage.Federated}))

	item, err := e.DeletePost(ctx, link)
	require.NoError(t, err)
	assert.Equal(t, activity.DeleteType, item.ActivityType)

	p, err := e.DB.FindPost(ctx, link)
	require.NoError(t, err)
	assert.Equal(t, storage.Deleted, p.FederationState)
}

func TestEngine_OutboxCommands(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	const link = site + "/2024/01/hello/"
	require.NoError(t, e.DB.SavePost(ctx, &storage.Post{ID: link, Title: "Hello"}))
	item, err := e.SetVisibility(ctx, link, "public")
	require.NoError(t, err)

	item.State = storage.StateFailed
	item.LastError = "boom"
	require.NoError(t, e.DB.SaveOutboxItem(ctx, item))

	rescheduled, err := e.RescheduleOutbox(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, item.ID, rescheduled.ID)
	found, err := e.Queue.Find(ctx, item.ActivityID)
	require.NoError(t, err)
	assert.Equal(t, storage.StateQueued, found.State)
	assert.Empty(t, found.LastError)

	undo, err := e.UndoOutbox(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, activity.UndoType, undo.ActivityType)
	assert.NotEqual(t, item.ID, undo.ID)

	_, err = e.UndoOutbox(ctx, "missing")
	assert.True(t, errors.Is(err, errs.ErrNotFound))
}
