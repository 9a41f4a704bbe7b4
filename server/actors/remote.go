package actors

import (
	"context"
	"crypto"
	"net/url"
	"strings"
	"time"

	"github.com/karlseguin/ccache/v3"

	"github.com/tkrehbiel/blogfed/server/activity"
	"github.com/tkrehbiel/blogfed/server/errs"
	"github.com/tkrehbiel/blogfed/server/storage"
	"github.com/tkrehbiel/blogfed/server/telemetry"
	"github.com/tkrehbiel/blogfed/server/transport"
)

const DefaultRemoteTTL = 24 * time.Hour

type State int

const (
	Fresh State = iota
	Stale
)

func (s State) String() string {
	if s == Fresh {
		return "fresh"
	}
	return "stale"
}

// RemoteActor is a cached actor document from another server.
type RemoteActor struct {
	URI       string
	Actor     *activity.Actor
	FetchedAt time.Time
	State     State
}

// Fetcher is the part of the transport the cache needs.
type Fetcher interface {
	GetRemote(ctx context.Context, uriOrHandle string, o transport.GetOptions) (*transport.Response, error)
}

type RemoteOptions struct {
	TTL    time.Duration
	L1Size int64
	Now    func() time.Time
}

// RemoteCache keeps remote actors in memory backed by the database.
// Entries are refreshed after the TTL or on an explicit bypass, never otherwise changed.
type RemoteCache struct {
	fetch Fetcher
	store storage.RemoteActors
	l1    *ccache.Cache[*storage.RemoteActor]
	ttl   time.Duration
	now   func() time.Time
}

func NewRemoteCache(f Fetcher, store storage.RemoteActors, o RemoteOptions) *RemoteCache {
	if o.TTL <= 0 {
		o.TTL = DefaultRemoteTTL
	}
	if o.L1Size <= 0 {
		o.L1Size = 5000
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return &RemoteCache{
		fetch: f,
		store: store,
		l1:    ccache.New(ccache.Configure[*storage.RemoteActor]().MaxSize(o.L1Size)),
		ttl:   o.TTL,
		now:   o.Now,
	}
}

// Canonical strips the fragment, so a key id maps to its actor.
func Canonical(uri string) string {
	if i := strings.IndexByte(uri, '#'); i >= 0 {
		return uri[:i]
	}
	return uri
}

func (c *RemoteCache) cached(ctx context.Context, key string) (*storage.RemoteActor, error) {
	if item := c.l1.Get(key); item != nil {
		return item.Value(), nil
	}
	rec, err := c.store.FindRemoteActor(ctx, key)
	if err != nil || rec == nil {
		return nil, err
	}
	c.l1.Set(key, rec, c.ttl)
	return rec, nil
}

func (c *RemoteCache) state(rec *storage.RemoteActor) State {
	if c.now().Sub(rec.FetchedAt) < c.ttl {
		return Fresh
	}
	return Stale
}

// FetchByURI returns the actor at uri. With useCache a fresh entry is served
// without a request, and a failed refetch of a stale entry falls back to it.
// Without useCache the document is always refetched.
func (c *RemoteCache) FetchByURI(ctx context.Context, uri string, useCache bool) (*RemoteActor, error) {
	key := Canonical(uri)
	var rec *storage.RemoteActor
	if useCache {
		var err error
		if rec, err = c.cached(ctx, key); err != nil {
			return nil, err
		}
		if rec != nil && c.state(rec) == Fresh {
			return decodeRecord(rec, Fresh)
		}
	}

	mode := transport.CacheReadThrough
	if !useCache {
		mode = transport.CacheOff
	}
	telemetry.Increment("actor_fetches", 1)
	resp, err := c.fetch.GetRemote(ctx, key, transport.GetOptions{Mode: mode})
	if err == nil {
		var fetched *storage.RemoteActor
		if fetched, err = c.save(ctx, key, resp.Body); err == nil {
			return decodeRecord(fetched, Fresh)
		}
	}
	if useCache && rec != nil {
		telemetry.Error(err, "refreshing [%s], using stale copy", key)
		return decodeRecord(rec, Stale)
	}
	return nil, err
}

func (c *RemoteCache) save(ctx context.Context, key string, body []byte) (*storage.RemoteActor, error) {
	doc, err := activity.ParseActor(body)
	if err != nil {
		return nil, err
	}
	if doc.ID == "" || !activity.IsActorType(doc.Type) {
		return nil, errs.New(errs.InvalidInput, "[%s] is not an actor", key)
	}
	rec := &storage.RemoteActor{
		URI:         key,
		Inbox:       doc.Inbox,
		SharedInbox: doc.SharedInbox(),
		Document:    string(body),
		FetchedAt:   c.now().UTC(),
	}
	if u, err := url.Parse(doc.ID); err == nil {
		rec.Host = u.Host
	}
	if doc.PublicKey != nil {
		rec.PublicKeyID = doc.PublicKey.ID
		rec.PublicKeyPEM = doc.PublicKey.PublicKeyPem
	}
	if err := c.store.SaveRemoteActor(ctx, rec); err != nil {
		return nil, err
	}
	c.l1.Set(key, rec, c.ttl)
	return rec, nil
}

func decodeRecord(rec *storage.RemoteActor, state State) (*RemoteActor, error) {
	doc, err := activity.ParseActor([]byte(rec.Document))
	if err != nil {
		return nil, err
	}
	return &RemoteActor{URI: rec.URI, Actor: doc, FetchedAt: rec.FetchedAt, State: state}, nil
}

// Refresh refetches uri, as after receiving an Update from that actor.
func (c *RemoteCache) Refresh(ctx context.Context, uri string) (*RemoteActor, error) {
	return c.FetchByURI(ctx, uri, false)
}

// Forget drops uri from both cache levels.
func (c *RemoteCache) Forget(ctx context.Context, uri string) error {
	key := Canonical(uri)
	c.l1.Delete(key)
	return c.store.DeleteRemoteActor(ctx, key)
}

// PublicKey resolves a signature keyId to the owner's public key.
func (c *RemoteCache) PublicKey(ctx context.Context, keyID string) (crypto.PublicKey, error) {
	if rec, err := c.store.FindRemoteActorByKey(ctx, keyID); err == nil && rec != nil && c.state(rec) == Fresh && rec.PublicKeyPEM != "" {
		return ParsePublicKey(rec.PublicKeyPEM)
	}
	ra, err := c.FetchByURI(ctx, keyID, true)
	if err != nil {
		return nil, err
	}
	pk := ra.Actor.PublicKey
	if pk == nil || pk.PublicKeyPem == "" {
		return nil, errs.New(errs.NotFound, "[%s] has no public key", ra.URI)
	}
	if pk.ID != keyID {
		return nil, errs.New(errs.Forbidden, "key [%s] does not belong to [%s]", keyID, ra.URI)
	}
	return ParsePublicKey(pk.PublicKeyPem)
}

// Inbox returns where to deliver to uri, the shared inbox when preferred and available.
func (c *RemoteCache) Inbox(ctx context.Context, uri string, preferShared bool) (string, error) {
	ra, err := c.FetchByURI(ctx, uri, true)
	if err != nil {
		return "", err
	}
	if preferShared {
		if s := ra.Actor.SharedInbox(); s != "" {
			return s, nil
		}
	}
	if ra.Actor.Inbox == "" {
		return "", errs.New(errs.NotFound, "[%s] has no inbox", uri)
	}
	return ra.Actor.Inbox, nil
}
