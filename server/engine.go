package server

import (
	"context"
	"fmt"

	"github.com/bradfitz/gomemcache/memcache"
	"github.com/redis/go-redis/v9"

	"github.com/tkrehbiel/blogfed/server/actors"
	"github.com/tkrehbiel/blogfed/server/handler"
	"github.com/tkrehbiel/blogfed/server/inbox"
	"github.com/tkrehbiel/blogfed/server/outbox"
	"github.com/tkrehbiel/blogfed/server/page"
	"github.com/tkrehbiel/blogfed/server/storage"
	"github.com/tkrehbiel/blogfed/server/telemetry"
	"github.com/tkrehbiel/blogfed/server/transport"
)

// Engine holds the federation components shared by the http service and the command line.
type Engine struct {
	Config     Config
	DB         *storage.Database
	Directory  *actors.Directory
	Client     *transport.Client
	Remote     *actors.RemoteCache
	Queue      *outbox.Queue
	Deliverer  *outbox.Deliverer
	Registry   *handler.Registry
	Dispatcher *inbox.Dispatcher

	closers []func()
}

// NewEngine opens the database and builds every component from cfg.
func NewEngine(cfg Config) (*Engine, error) {
	cfg = cfg.withDefaults()
	e := &Engine{Config: cfg}

	e.DB = storage.NewDatabase(cfg.Database.Driver, cfg.Database.Connection)
	if err := e.DB.Open(); err != nil {
		return nil, err
	}
	e.closers = append(e.closers, e.DB.Close)

	dir, err := actors.NewDirectory(actors.Options{
		URL:         cfg.URL,
		AliasHosts:  cfg.Federation.AliasHosts,
		AuthorBase:  cfg.Federation.AuthorBase,
		ActorBase:   cfg.Federation.ActorBase,
		Blog:        cfg.Blog.actor(),
		Application: cfg.Application.actor(),
		KeyBits:     cfg.Federation.KeyBits,
		SharedInbox: cfg.Federation.SharedInbox,
	}, configUsers(cfg.Users))
	if err != nil {
		e.Close()
		return nil, err
	}
	e.Directory = dir

	cache, err := e.transportCache()
	if err != nil {
		e.Close()
		return nil, err
	}
	e.Client = transport.New(transport.Options{
		Cache:     cache,
		UserAgent: fmt.Sprintf("%s/%s (+%s)", page.Software, page.Version, cfg.URL),
	})
	e.Remote = actors.NewRemoteCache(e.Client, e.DB, actors.RemoteOptions{TTL: cfg.remoteActorTTL()})
	e.Queue = outbox.NewQueue(e.DB)

	var poster outbox.Poster = e.Client
	if cfg.Server.SendUnsigned {
		poster = unsignedPoster{e.Client}
	}
	e.Deliverer = outbox.NewDeliverer(e.DB, e.Directory, e.Remote, poster, outbox.DeliveryOptions{
		SharedInbox: cfg.Federation.SharedInbox,
		Batch:       cfg.Federation.DeliveryBatch,
	})

	e.Registry = handler.Default(&handler.Deps{
		Store:    e.DB,
		Local:    e.Directory,
		Remote:   e.Remote,
		Outbox:   e.Queue,
		Notifier: handler.Notifiers{handler.LogNotifier{}},
		Options: handler.Options{
			CreatePosts:   cfg.Federation.CreatePosts,
			MaxFollowers:  cfg.Server.MaxFollowers,
			CommentMarker: cfg.Federation.CommentMarker,
		},
	})

	blocklist, err := inbox.LoadBlocklist(cfg.Federation.Blocklist)
	if err != nil {
		e.Close()
		return nil, err
	}
	if blocklist.Len() > 0 {
		telemetry.Log("blocking %d domains", blocklist.Len())
	}
	e.Dispatcher = inbox.NewDispatcher(e.Registry, blocklist, inbox.CounterObserver{})
	return e, nil
}

func (e *Engine) transportCache() (transport.Cache, error) {
	c := e.Config.Cache
	switch c.Backend {
	case "memory":
		return transport.NewMemoryCache(c.Size), nil
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: c.Address})
		e.closers = append(e.closers, func() { client.Close() })
		return transport.NewRedisCache(client, c.Prefix), nil
	case "memcached":
		return transport.NewMemcacheCache(memcache.New(c.Address), c.Prefix), nil
	}
	return nil, fmt.Errorf("unknown cache backend [%s]", c.Backend)
}

// Close releases the database and cache connections.
func (e *Engine) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
	e.closers = nil
}

// Usage reports nodeinfo counts.
func (e *Engine) Usage(ctx context.Context) (page.Usage, error) {
	all, err := e.Directory.All(ctx)
	if err != nil {
		return page.Usage{}, err
	}
	n, err := e.DB.CountPosts(ctx)
	if err != nil {
		return page.Usage{Users: len(all)}, err
	}
	return page.Usage{Users: len(all), LocalPosts: int(n)}, nil
}

// LatestPosts lists the posts shown on an actor's profile.
func (e *Engine) LatestPosts(ctx context.Context, a *actors.Actor) ([]storage.Post, error) {
	return e.DB.ListPostsByAuthor(ctx, a.ID, 10)
}

func configUsers(users []userConfig) actors.StaticUsers {
	list := make(actors.StaticUsers, 0, len(users))
	for _, u := range users {
		list = append(list, actors.User{
			ID:             u.ID,
			Username:       u.Name,
			Login:          u.Name,
			Nicename:       u.Name,
			DisplayName:    u.DisplayName,
			Summary:        u.Summary,
			Type:           u.Type,
			Icon:           u.Icon,
			PrivateKeyFile: u.PrivKeyFile,
		})
	}
	return list
}

// unsignedPoster delivers without http signatures, for debugging against lenient servers.
type unsignedPoster struct {
	client *transport.Client
}

func (p unsignedPoster) Post(ctx context.Context, target string, body []byte, _ transport.Identity) (*transport.Response, error) {
	return p.client.Post(ctx, target, body, nil)
}
