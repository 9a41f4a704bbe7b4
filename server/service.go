package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tkrehbiel/blogfed/server/actors"
	"github.com/tkrehbiel/blogfed/server/page"
	"github.com/tkrehbiel/blogfed/server/rss"
	"github.com/tkrehbiel/blogfed/server/telemetry"
)

type ActivityService struct {
	*Engine
	Server   http.Server
	router   *mux.Router
	meta     page.MetaData
	pipeline *Pipeline

	cancel        context.CancelFunc
	wg            sync.WaitGroup
	traceShutdown func(context.Context) error
}

func (s *ActivityService) addHandlers() {
	s.router.HandleFunc("/", homeHandler).Methods("GET")

	s.addPageHandler(page.NewStaticPage(page.WellKnownHostMeta), s.meta)
	s.addPageHandler(page.NewStaticPage(page.WellKnownNodeInfo), s.meta)
	s.router.Handle(page.NodeInfoPath, page.NodeInfo{Meta: s.meta, Usage: s.Usage}).Methods("GET")
	s.router.Handle(page.WebFingerPath, page.WebFinger{Meta: s.meta, Actors: s.Directory}).Methods("GET")
	s.router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	inbox := ActivityInbox{
		Keys:            s.Remote,
		ReceiveUnsigned: s.Config.Server.ReceiveUnsigned,
		Dispatcher:      s.Dispatcher,
		Pipeline:        s.pipeline,
	}
	s.router.Handle("/inbox", RequestLogger{Handler: inbox.ServeHTTP}).Methods("POST")

	base := "/" + s.actorBase() + "/{name}"
	s.router.Handle(base, page.ActorPage{Actors: s.Directory, Posts: s.LatestPosts}).Methods("GET")
	s.router.Handle(base+"/inbox", RequestLogger{Handler: inbox.ServeHTTP}).Methods("POST")
	s.router.Handle(base+"/outbox", ActivityOutbox{Actors: s.Directory, Store: s.DB}).Methods("GET")
	s.router.Handle(base+"/followers", ActorCollection{
		Actors: s.Directory,
		ID:     (*actors.Actor).FollowersURL,
		Count: func(ctx context.Context, a *actors.Actor) (int, error) {
			n, err := s.DB.CountFollowers(ctx, a.URI)
			return int(n), err
		},
	}).Methods("GET")
	s.router.Handle(base+"/following", ActorCollection{
		Actors: s.Directory,
		ID:     (*actors.Actor).FollowingURL,
		Count: func(ctx context.Context, a *actors.Actor) (int, error) {
			list, err := s.DB.ListFollowing(ctx, a.URI)
			return len(list), err
		},
	}).Methods("GET")
}

func (s *ActivityService) actorBase() string {
	if s.Config.Federation.ActorBase != "" {
		return s.Config.Federation.ActorBase
	}
	return "a"
}

func (s *ActivityService) addPageHandler(pg page.StaticPageHandler, meta any) {
	if err := pg.Init(meta); err != nil {
		telemetry.Error(err, "rendering %s", pg.Path())
	}
	router := s.router.HandleFunc(pg.Path(), pg.ServeHTTP).Methods("GET")
	if !s.Config.Server.AcceptAll && pg.Accept() != "" && pg.Accept() != "*/*" {
		router.Headers("Accept", pg.Accept())
	}
}

// Start runs the background workers and the http listener.
// It returns once the listener is running.
func (s *ActivityService) Start(ctx context.Context) error {
	ctx, s.cancel = context.WithCancel(ctx)

	if endpoint := s.Config.Server.TraceEndpoint; endpoint != "" {
		shutdown, err := telemetry.InitTracing(ctx, endpoint)
		if err != nil {
			telemetry.Error(err, "starting tracing to %s", endpoint)
		} else {
			s.traceShutdown = shutdown
		}
	}

	s.goRun(func() { s.pipeline.Run(ctx) })
	s.goRun(func() { s.deliverLoop(ctx) })
	for _, f := range s.feeds(ctx) {
		watcher := f
		s.goRun(func() { watcher.Watch(ctx, s.Config.feedInterval()) })
	}

	s.goRun(func() {
		var err error
		if s.Config.Server.useTLS() {
			telemetry.Log("tls listener starting on port %d", s.Config.Server.Port)
			err = s.Server.ListenAndServeTLS(s.Config.Server.Certificate, s.Config.Server.PrivateKey)
		} else {
			telemetry.Log("http listener starting on port %d", s.Config.Server.Port)
			err = s.Server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			telemetry.Error(err, "listener stopped")
		}
	})
	return nil
}

func (s *ActivityService) goRun(f func()) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		f()
	}()
}

// Stop shuts down the listener and waits for the workers.
func (s *ActivityService) Stop(ctx context.Context) error {
	err := s.Server.Shutdown(ctx)
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	if s.traceShutdown != nil {
		if tErr := s.traceShutdown(ctx); tErr != nil {
			telemetry.Error(tErr, "flushing traces")
		}
	}
	s.Close()
	return err
}

// Close anything related to the service before exiting
func (s *ActivityService) Close() {
	s.Engine.Close()
	telemetry.LogCounters()
}

// deliverLoop delivers queued outbox items on every tick.
func (s *ActivityService) deliverLoop(ctx context.Context) {
	ticker := time.NewTicker(s.Config.deliveryInterval())
	defer ticker.Stop()
	for {
		n, err := s.Deliverer.RunOnce(ctx)
		if err != nil {
			telemetry.Error(err, "delivering outbox")
		} else if n > 0 {
			telemetry.Log("delivered %d outbox items", n)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// feeds builds a watcher for every actor with a feed to publish.
func (s *ActivityService) feeds(ctx context.Context) []*rss.FeedWatcher {
	type source struct {
		actor string
		url   string
	}
	sources := []source{{s.Config.Blog.Name, s.Config.Blog.SourceURL}}
	for _, u := range s.Config.Users {
		sources = append(sources, source{u.Name, u.SourceURL})
	}

	watchers := make([]*rss.FeedWatcher, 0)
	for _, src := range sources {
		if src.url == "" {
			continue
		}
		owner, err := s.Directory.ResolveByUsername(ctx, src.actor)
		if err != nil {
			telemetry.Error(err, "no actor for feed %s", src.url)
			continue
		}
		pub := NewFeedPublisher(ctx, owner, s.DB, s.Queue)
		w := rss.NewFeedWatcher(src.url, pub)
		if err := pub.Seed(&w); err != nil {
			telemetry.Error(err, "loading known posts for %s", src.url)
		}
		telemetry.Log("watching %s for %s", src.url, owner.URI)
		watchers = append(watchers, &w)
	}
	return watchers
}

// NewService creates an http service to listen for ActivityPub requests
func NewService(cfg Config) (*ActivityService, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("invalid url [%s]", cfg.URL)
	}
	engine, err := NewEngine(cfg)
	if err != nil {
		return nil, err
	}
	svc := &ActivityService{
		Engine:   engine,
		router:   mux.NewRouter(),
		meta:     page.NewMetaData(u),
		pipeline: NewPipeline(engine.Config.Server.Workers, 1000),
	}

	// configure web handlers
	svc.addHandlers()

	svc.Server = http.Server{
		Handler:      svc.router,
		Addr:         fmt.Sprintf(":%d", engine.Config.Server.Port),
		WriteTimeout: time.Second * 15,
		ReadTimeout:  time.Second * 15,
		IdleTimeout:  time.Second * 60,
	}
	return svc, nil
}

// RequestLogger traces request headers before passing the request on.
type RequestLogger struct {
	Handler http.HandlerFunc
}

func (rl RequestLogger) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	for k, v := range r.Header {
		telemetry.Trace("%s %s header %s: %v", r.Method, r.URL.Path, k, v)
	}
	rl.Handler(w, r)
}

func homeHandler(w http.ResponseWriter, r *http.Request) {
	telemetry.Request(r, "homeHandler")
	telemetry.Increment("home_requests", 1)
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `<html><title>%s</title>
<body>
<p>This is <a href="https://github.com/tkrehbiel/blogfed/">%s</a>,
the federation endpoint of a blog.
There's nothing to see here.</p>
</body>
</html>`, page.Software, page.Software)
}
