// Package transport sends signed requests to remote servers and caches what it fetches.
package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/tkrehbiel/blogfed/server/activity"
	"github.com/tkrehbiel/blogfed/server/errs"
	"github.com/tkrehbiel/blogfed/server/telemetry"
)

const (
	DefaultTimeout      = 10 * time.Second
	DefaultMaxRedirects = 3
	DefaultMaxBodySize  = 1 << 20
	DefaultTTL          = time.Hour
	DefaultRetryTTL     = time.Minute
	DefaultFailTTL      = 15 * time.Minute
)

// Accept header for fetching ActivityStreams documents.
const acceptActivity = activity.ContentType + ", " + activity.ContentTypeLD

type Options struct {
	Client       *http.Client
	Timeout      time.Duration
	MaxRedirects int
	MaxBodySize  int64
	Cache        Cache
	Now          func() time.Time
	UserAgent    string

	// TTL caches successes, RetryTTL retryable failures, FailTTL all other failures.
	TTL      time.Duration
	RetryTTL time.Duration
	FailTTL  time.Duration

	// WebfingerScheme is https unless testing against plain http servers.
	WebfingerScheme string
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.MaxRedirects <= 0 {
		o.MaxRedirects = DefaultMaxRedirects
	}
	if o.MaxBodySize <= 0 {
		o.MaxBodySize = DefaultMaxBodySize
	}
	if o.Cache == nil {
		o.Cache = NewMemoryCache(10000)
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.UserAgent == "" {
		o.UserAgent = "blogfed"
	}
	if o.TTL <= 0 {
		o.TTL = DefaultTTL
	}
	if o.RetryTTL <= 0 {
		o.RetryTTL = DefaultRetryTTL
	}
	if o.FailTTL <= 0 {
		o.FailTTL = DefaultFailTTL
	}
	if o.WebfingerScheme == "" {
		o.WebfingerScheme = "https"
	}
	return o
}

// CacheMode selects how Get uses the cache.
type CacheMode int

const (
	// CacheReadThrough serves unexpired entries and caches the outcome with the default TTL.
	CacheReadThrough CacheMode = iota
	// CacheReadThroughTTL is CacheReadThrough with the caller's TTL for successes.
	CacheReadThroughTTL
	// CacheOff always goes to the network. The outcome still refreshes the cache.
	CacheOff
)

type GetOptions struct {
	Mode   CacheMode
	TTL    time.Duration
	Accept string
	// Identity signs the request, for servers requiring authorized fetch.
	Identity Identity
}

// Response is a completed request.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Client is safe for concurrent use.
type Client struct {
	http    *http.Client
	opts    Options
	handles *gocache.Cache
}

type redirectError struct {
	status int
}

func (e *redirectError) Error() string {
	return "too many redirects"
}

func New(opts Options) *Client {
	opts = opts.withDefaults()
	hc := &http.Client{}
	if opts.Client != nil {
		*hc = *opts.Client
	}
	hc.Timeout = opts.Timeout
	hc.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) > opts.MaxRedirects {
			status := http.StatusFound
			if req.Response != nil {
				status = req.Response.StatusCode
			}
			return &redirectError{status: status}
		}
		return nil
	}
	return &Client{
		http:    hc,
		opts:    opts,
		handles: gocache.New(opts.TTL, 2*opts.TTL),
	}
}

// Now is the client's clock.
func (c *Client) Now() time.Time {
	return c.opts.Now()
}

// Post sends body as the given identity. Statuses of 400 and above are returned as RemoteFailure.
func (c *Client) Post(ctx context.Context, target string, body []byte, id Identity) (*Response, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "transport.Post")
	defer span.End()
	span.SetAttributes(attribute.String("url", target))

	r, err := c.newRequest(ctx, http.MethodPost, target, body)
	if err != nil {
		return nil, err
	}
	r.Header.Set("Accept", activity.ContentType)
	r.Header.Set("Content-Type", activity.ContentType)
	if id != nil && id.PrivateKey() != nil {
		if err := sign(id.PrivateKey(), id.KeyID(), c.opts.Now(), r, postHeaders); err != nil {
			return nil, err
		}
	}

	resp, err := c.do(r)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		telemetry.Increment("transport_post_failures", 1)
		return resp, err
	}
	telemetry.Increment("transport_posts", 1)
	return resp, nil
}

// Get fetches target through the cache. Both outcomes are cached: successes
// for the TTL, retryable failures for RetryTTL and other failures for FailTTL.
func (c *Client) Get(ctx context.Context, target string, o GetOptions) (*Response, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "transport.Get")
	defer span.End()
	span.SetAttributes(attribute.String("url", target))

	if o.Mode != CacheOff {
		if e, ok := c.opts.Cache.Load(ctx, target); ok && !e.Expired(c.opts.Now()) {
			telemetry.Increment("transport_cache_hits", 1)
			span.SetAttributes(attribute.Bool("cached", true))
			return e.result()
		}
	}

	r, err := c.newRequest(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	accept := o.Accept
	if accept == "" {
		accept = acceptActivity
	}
	r.Header.Set("Accept", accept)
	if o.Identity != nil && o.Identity.PrivateKey() != nil {
		if err := sign(o.Identity.PrivateKey(), o.Identity.KeyID(), c.opts.Now(), r, getHeaders); err != nil {
			return nil, err
		}
	}

	telemetry.Increment("transport_gets", 1)
	resp, err := c.do(r)
	now := c.opts.Now()
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		ttl := c.opts.FailTTL
		if errs.Retryable(err) {
			ttl = c.opts.RetryTTL
		}
		c.opts.Cache.Store(ctx, target, &Entry{Status: errs.StatusOf(err), Err: err.Error(), Expires: now.Add(ttl)}, ttl)
		return nil, err
	}

	ttl := c.opts.TTL
	if o.Mode == CacheReadThroughTTL && o.TTL > 0 {
		ttl = o.TTL
	}
	c.opts.Cache.Store(ctx, target, &Entry{Status: resp.Status, Header: resp.Header, Body: resp.Body, Expires: now.Add(ttl)}, ttl)
	return resp, nil
}

// Forget drops any cached outcome for target.
func (c *Client) Forget(ctx context.Context, target string) {
	c.opts.Cache.Delete(ctx, target)
}

func (e *Entry) result() (*Response, error) {
	if e.Err != "" {
		return nil, errs.Remote(e.Status, errors.New(e.Err))
	}
	return &Response{Status: e.Status, Header: e.Header, Body: e.Body}, nil
}

func (c *Client) newRequest(ctx context.Context, method, target string, body []byte) (*http.Request, error) {
	u, err := url.Parse(target)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, errs.Coded(errs.ErrInvalidObjectURL, err, "invalid url [%s]", target)
	}
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	r, err := http.NewRequestWithContext(ctx, method, target, rd)
	if err != nil {
		return nil, errs.Coded(errs.ErrInvalidObjectURL, err, "invalid url [%s]", target)
	}
	r.Header.Set("Date", c.opts.Now().UTC().Format(http.TimeFormat))
	r.Header.Set("Host", u.Host)
	r.Header.Set("User-Agent", c.opts.UserAgent)
	return r, nil
}

func (c *Client) do(r *http.Request) (*Response, error) {
	resp, err := c.http.Do(r)
	if err != nil {
		var re *redirectError
		if errors.As(err, &re) {
			return nil, errs.Remote(re.status, re)
		}
		return nil, errs.Remote(0, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.opts.MaxBodySize+1))
	if err != nil {
		return nil, errs.Remote(0, err)
	}
	if int64(len(body)) > c.opts.MaxBodySize {
		return nil, errs.Remote(http.StatusRequestEntityTooLarge, fmt.Errorf("response from [%s] exceeds %d bytes", r.URL, c.opts.MaxBodySize))
	}
	out := &Response{Status: resp.StatusCode, Header: resp.Header, Body: body}
	if resp.StatusCode >= 400 {
		return out, errs.Remote(resp.StatusCode, fmt.Errorf("%s %s", r.Method, r.URL))
	}
	return out, nil
}
