package actors

import (
	"context"
	"crypto/rsa"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/tkrehbiel/blogfed/server/activity"
	"github.com/tkrehbiel/blogfed/server/errs"
)

// ActorConfig describes the blog or application actor.
type ActorConfig struct {
	Name           string
	DisplayName    string
	Summary        string
	Type           string
	Icon           string
	PrivateKeyFile string
}

type Options struct {
	URL         string   // site root
	AliasHosts  []string // hosts the site was served from before
	AuthorBase  string   // author permalink prefix, default "author"
	ActorBase   string   // actor id prefix, default "a"
	Blog        ActorConfig
	Application ActorConfig
	KeyBits     int
	SharedInbox bool
}

func (o Options) withDefaults() Options {
	if o.AuthorBase == "" {
		o.AuthorBase = "author"
	}
	if o.ActorBase == "" {
		o.ActorBase = "a"
	}
	if o.Blog.Name == "" {
		o.Blog.Name = "blog"
	}
	if o.Blog.Type == "" {
		o.Blog.Type = activity.PersonType
	}
	if o.Application.Name == "" {
		o.Application.Name = "application"
	}
	o.Application.Type = activity.ApplicationType
	if o.KeyBits == 0 {
		o.KeyBits = 2048
	}
	return o
}

// Directory resolves local actors.
type Directory struct {
	opts  Options
	base  *url.URL
	hosts map[string]bool
	users Users

	mu   sync.Mutex
	keys map[int64]*keyOnce
}

// keyOnce loads an actor's key on first use.
type keyOnce struct {
	once sync.Once
	key  *rsa.PrivateKey
}

func (k *keyOnce) get(path string, bits int, owner string) func() *rsa.PrivateKey {
	return func() *rsa.PrivateKey {
		k.once.Do(func() {
			k.key = loadKey(path, bits, owner)
		})
		return k.key
	}
}

func NewDirectory(opts Options, users Users) (*Directory, error) {
	opts = opts.withDefaults()
	base, err := url.Parse(opts.URL)
	if err != nil || base.Host == "" {
		return nil, errs.Wrap(errs.InvalidInput, err, "invalid site url [%s]", opts.URL)
	}
	d := &Directory{
		opts:  opts,
		base:  base,
		hosts: map[string]bool{strings.ToLower(base.Host): true},
		users: users,
		keys:  make(map[int64]*keyOnce),
	}
	for _, h := range opts.AliasHosts {
		d.hosts[strings.ToLower(h)] = true
	}
	return d, nil
}

// Host is the site's own host.
func (d *Directory) Host() string {
	return d.base.Host
}

// IsLocalHost reports whether host is the site's host or a former one.
func (d *Directory) IsLocalHost(host string) bool {
	return d.hosts[strings.ToLower(host)]
}

// IsLocal reports whether uri points at this site.
func (d *Directory) IsLocal(uri string) bool {
	u, err := url.Parse(uri)
	return err == nil && d.IsLocalHost(u.Host)
}

func (d *Directory) join(parts ...string) string {
	s, _ := url.JoinPath(d.base.String(), parts...)
	return s
}

// SharedInboxURL is the site-wide inbox.
func (d *Directory) SharedInboxURL() string {
	return d.join("inbox")
}

func (d *Directory) actorURI(name string) string {
	return d.join(d.opts.ActorBase, name)
}

func (d *Directory) Blog() *Actor {
	c := d.opts.Blog
	return d.build(&Actor{
		ID:          BlogID,
		Kind:        BlogActor,
		Username:    c.Name,
		DisplayName: c.DisplayName,
		Summary:     c.Summary,
		Type:        c.Type,
		URI:         d.actorURI(c.Name),
		URL:         d.base.String(),
		Icon:        c.Icon,
	}, c.PrivateKeyFile)
}

func (d *Directory) Application() *Actor {
	c := d.opts.Application
	return d.build(&Actor{
		ID:          ApplicationID,
		Kind:        ApplicationActor,
		Username:    c.Name,
		DisplayName: c.DisplayName,
		Summary:     c.Summary,
		Type:        c.Type,
		URI:         d.actorURI(c.Name),
		URL:         d.base.String(),
		Icon:        c.Icon,
	}, c.PrivateKeyFile)
}

func (d *Directory) user(u *User) *Actor {
	typ := u.Type
	if typ == "" {
		typ = activity.PersonType
	}
	name := u.DisplayName
	if name == "" {
		name = u.Username
	}
	slug := u.Nicename
	if slug == "" {
		slug = u.Username
	}
	return d.build(&Actor{
		ID:          u.ID,
		Kind:        UserActor,
		Username:    u.Username,
		DisplayName: name,
		Summary:     u.Summary,
		Type:        typ,
		URI:         d.actorURI(u.Username),
		URL:         d.join(d.opts.AuthorBase, slug),
		Icon:        u.Icon,
	}, u.PrivateKeyFile)
}

func (d *Directory) build(a *Actor, keyFile string) *Actor {
	if d.opts.SharedInbox {
		a.SharedInbox = d.SharedInboxURL()
	}
	d.mu.Lock()
	k, ok := d.keys[a.ID]
	if !ok {
		k = &keyOnce{}
		d.keys[a.ID] = k
	}
	d.mu.Unlock()
	bits, owner := d.opts.KeyBits, a.URI
	a.key = k.get(keyFile, bits, owner)
	return a
}

// ResolveByID finds a local actor by numeric id.
func (d *Directory) ResolveByID(ctx context.Context, id int64) (*Actor, error) {
	switch {
	case id == BlogID:
		return d.Blog(), nil
	case id == ApplicationID:
		return d.Application(), nil
	case id < 0:
		return nil, errs.New(errs.NotFound, "no actor with id %d", id)
	}
	u, err := d.users.UserByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, errs.New(errs.NotFound, "no actor with id %d", id)
	}
	return d.user(u), nil
}

// ResolveByUsername matches the stored identifier first, then searches logins and slugs.
func (d *Directory) ResolveByUsername(ctx context.Context, name string) (*Actor, error) {
	switch name {
	case d.opts.Blog.Name:
		return d.Blog(), nil
	case d.opts.Application.Name:
		return d.Application(), nil
	}
	u, err := d.users.UserByIdentifier(ctx, name)
	if err != nil {
		return nil, err
	}
	if u != nil {
		return d.user(u), nil
	}
	found, err := d.users.SearchUsers(ctx, name)
	if err != nil {
		return nil, err
	}
	if len(found) > 0 {
		return d.user(&found[0]), nil
	}
	return nil, errs.New(errs.NotFound, "no actor named [%s]", name)
}

// ResolveByResource resolves an http(s) or acct uri to a local actor.
func (d *Directory) ResolveByResource(ctx context.Context, resource string) (*Actor, error) {
	u, err := url.Parse(resource)
	if err != nil {
		return nil, errs.Wrap(errs.InvalidInput, err, "invalid resource [%s]", resource)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		return d.resolveURL(ctx, u)
	case "acct":
		return d.resolveAcct(ctx, u.Opaque)
	}
	return nil, errs.New(errs.WrongScheme, "unsupported resource [%s]", resource)
}

func (d *Directory) resolveURL(ctx context.Context, u *url.URL) (*Actor, error) {
	if !d.IsLocalHost(u.Host) {
		return nil, errs.New(errs.NotFound, "not a local url [%s]", u)
	}
	if author := u.Query().Get("author"); author != "" {
		id, err := strconv.ParseInt(author, 10, 64)
		if err != nil {
			return nil, errs.Wrap(errs.InvalidInput, err, "invalid author [%s]", author)
		}
		return d.ResolveByID(ctx, id)
	}

	p := strings.TrimPrefix(u.Path, strings.TrimSuffix(d.base.Path, "/"))
	p = strings.Trim(p, "/")
	if p == "" {
		return d.Blog(), nil
	}
	segments := strings.Split(p, "/")
	if name, ok := strings.CutPrefix(segments[0], "@"); ok && name != "" {
		return d.ResolveByUsername(ctx, name)
	}
	if len(segments) == 2 && (segments[0] == d.opts.AuthorBase || segments[0] == d.opts.ActorBase) {
		return d.ResolveByUsername(ctx, segments[1])
	}
	return nil, errs.New(errs.NotFound, "no actor at [%s]", u)
}

func (d *Directory) resolveAcct(ctx context.Context, acct string) (*Actor, error) {
	if strings.Count(acct, "@") > 1 {
		acct = strings.TrimPrefix(acct, "@")
	}
	at := strings.LastIndex(acct, "@")
	if at < 0 {
		return nil, errs.New(errs.InvalidInput, "invalid acct [%s]", acct)
	}
	name, host := acct[:at], acct[at+1:]
	if !d.IsLocalHost(host) {
		return nil, errs.New(errs.WrongHost, "[%s] is not served here", host)
	}
	switch name {
	case "", "_", "*":
		return d.Blog(), nil
	}
	return d.ResolveByUsername(ctx, name)
}

// ResolveAny accepts a numeric id, a url, an acct uri, user@host or a bare username.
func (d *Directory) ResolveAny(ctx context.Context, s string) (*Actor, error) {
	s = strings.TrimSpace(s)
	if id, err := strconv.ParseInt(s, 10, 64); err == nil {
		return d.ResolveByID(ctx, id)
	}
	lower := strings.ToLower(s)
	switch {
	case strings.HasPrefix(lower, "http://"), strings.HasPrefix(lower, "https://"), strings.HasPrefix(lower, "acct:"):
		return d.ResolveByResource(ctx, s)
	case strings.Contains(s, "@"):
		return d.ResolveByResource(ctx, "acct:"+strings.TrimPrefix(s, "@"))
	}
	return d.ResolveByUsername(ctx, s)
}

// All returns the blog actor, the application actor and every user.
func (d *Directory) All(ctx context.Context) ([]*Actor, error) {
	list, err := d.users.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	out := []*Actor{d.Blog(), d.Application()}
	for i := range list {
		out = append(out, d.user(&list[i]))
	}
	return out, nil
}
