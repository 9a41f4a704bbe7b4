package actors

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tkrehbiel/blogfed/server/activity"
	"github.com/tkrehbiel/blogfed/server/errs"
)

var testUsers = StaticUsers{
	{ID: 1, Username: "alice", Login: "Alice Smith", Nicename: "alice-smith", DisplayName: "Alice"},
	{ID: 2, Username: "bob", Login: "bobby", Nicename: "bob"},
}

func newTestDirectory(t *testing.T, site string) *Directory {
	d, err := NewDirectory(Options{
		URL:        site,
		AliasHosts: []string{"old.example"},
		Blog:       ActorConfig{Name: "news", DisplayName: "The Blog"},
		KeyBits:    1024,
	}, testUsers)
	require.NoError(t, err)
	return d
}

func TestNewDirectory_InvalidURL(t *testing.T) {
	_, err := NewDirectory(Options{URL: "not a url"}, testUsers)
	assert.ErrorIs(t, err, errs.ErrInvalidInput)
}

func TestResolveByResource(t *testing.T) {
	d := newTestDirectory(t, "https://blog.example")
	ctx := context.Background()

	tests := []struct {
		resource string
		id       int64
		err      error
	}{
		{"acct:alice@blog.example", 1, nil},
		{"acct:alice@Blog.Example", 1, nil},
		{"acct:alice@old.example", 1, nil},
		{"acct:_@blog.example", BlogID, nil},
		{"acct:*@blog.example", BlogID, nil},
		{"acct:@blog.example", BlogID, nil},
		{"acct:news@blog.example", BlogID, nil},
		{"acct:application@blog.example", ApplicationID, nil},
		{"acct:alice@wrong.example", 0, errs.ErrWrongHost},
		{"acct:nobody@blog.example", 0, errs.ErrNotFound},
		{"https://blog.example/", BlogID, nil},
		{"https://blog.example", BlogID, nil},
		{"https://blog.example/@alice", 1, nil},
		{"https://blog.example/author/alice-smith", 1, nil},
		{"https://blog.example/a/bob", 2, nil},
		{"https://blog.example/?author=2", 2, nil},
		{"https://blog.example/?author=0", BlogID, nil},
		{"https://blog.example/?author=x", 0, errs.ErrInvalidInput},
		{"https://blog.example/2024/01/post", 0, errs.ErrNotFound},
		{"https://elsewhere.example/@alice", 0, errs.ErrNotFound},
		{"mailto:alice@blog.example", 0, errs.ErrWrongScheme},
		{"did:plc:1234", 0, errs.ErrWrongScheme},
	}
	for _, tt := range tests {
		t.Run(tt.resource, func(t *testing.T) {
			a, err := d.ResolveByResource(ctx, tt.resource)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.id, a.ID)
		})
	}
}

func TestResolveByResource_BlogPath(t *testing.T) {
	d := newTestDirectory(t, "https://example.com/blog")
	ctx := context.Background()

	a, err := d.ResolveByResource(ctx, "https://example.com/blog/@bob")
	require.NoError(t, err)
	assert.Equal(t, int64(2), a.ID)
	assert.Equal(t, "https://example.com/blog/a/bob", a.URI)

	a, err = d.ResolveByResource(ctx, "https://example.com/blog/")
	require.NoError(t, err)
	assert.Equal(t, BlogActor, a.Kind)
}

func TestResolveByUsername(t *testing.T) {
	d := newTestDirectory(t, "https://blog.example")
	ctx := context.Background()

	a, err := d.ResolveByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, UserActor, a.Kind)
	assert.Equal(t, "Alice", a.DisplayName)
	assert.Equal(t, "https://blog.example/a/alice", a.URI)
	assert.Equal(t, "https://blog.example/author/alice-smith", a.URL)

	// falls back to login and slug search
	a, err = d.ResolveByUsername(ctx, "alice smith")
	require.NoError(t, err)
	assert.Equal(t, int64(1), a.ID)
	a, err = d.ResolveByUsername(ctx, "BOBBY")
	require.NoError(t, err)
	assert.Equal(t, int64(2), a.ID)

	_, err = d.ResolveByUsername(ctx, "carol")
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestResolveByID(t *testing.T) {
	d := newTestDirectory(t, "https://blog.example")
	ctx := context.Background()

	a, err := d.ResolveByID(ctx, BlogID)
	require.NoError(t, err)
	assert.Equal(t, "news", a.Username)
	assert.Equal(t, "https://blog.example", a.URL)

	a, err = d.ResolveByID(ctx, ApplicationID)
	require.NoError(t, err)
	assert.Equal(t, activity.ApplicationType, a.Type)

	_, err = d.ResolveByID(ctx, 99)
	assert.ErrorIs(t, err, errs.ErrNotFound)
	_, err = d.ResolveByID(ctx, -5)
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestResolveAny(t *testing.T) {
	d := newTestDirectory(t, "https://blog.example")
	ctx := context.Background()

	for in, id := range map[string]int64{
		"1":                         1,
		"0":                         BlogID,
		"-1":                        ApplicationID,
		"bob":                       2,
		"bob@blog.example":          2,
		"@bob@blog.example":         2,
		"acct:bob@blog.example":     2,
		"https://blog.example/@bob": 2,
	} {
		a, err := d.ResolveAny(ctx, in)
		require.NoError(t, err, in)
		assert.Equal(t, id, a.ID, in)
	}
	_, err := d.ResolveAny(ctx, "bob@elsewhere.example")
	assert.ErrorIs(t, err, errs.ErrWrongHost)
}

func TestIsLocal(t *testing.T) {
	d := newTestDirectory(t, "https://blog.example")
	assert.True(t, d.IsLocal("https://blog.example/p/1"))
	assert.True(t, d.IsLocal("https://old.example/p/1"))
	assert.False(t, d.IsLocal("https://remote.example/p/1"))
}

func TestAll(t *testing.T) {
	d := newTestDirectory(t, "https://blog.example")
	all, err := d.All(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, BlogActor, all[0].Kind)
	assert.Equal(t, ApplicationActor, all[1].Kind)
}

func TestActorDocument(t *testing.T) {
	d := newTestDirectory(t, "https://blog.example")
	a, err := d.ResolveByUsername(context.Background(), "alice")
	require.NoError(t, err)

	assert.Equal(t, "https://blog.example/a/alice#main-key", a.KeyID())
	doc, err := a.Document()
	require.NoError(t, err)
	assert.Equal(t, "https://blog.example/a/alice/inbox", doc.Inbox)
	assert.Equal(t, "https://blog.example/a/alice/followers", doc.Followers)
	require.NotNil(t, doc.PublicKey)
	assert.Equal(t, a.KeyID(), doc.PublicKey.ID)
	assert.Contains(t, doc.PublicKey.PublicKeyPem, "BEGIN PUBLIC KEY")

	// the same actor resolved again signs with the same key
	again, err := d.ResolveByID(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, a.PrivateKey(), again.PrivateKey())
}

func TestLoadKeyFromFile(t *testing.T) {
	k, err := rsa.GenerateKey(rand.Reader, 1024)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "key.pem")
	require.NoError(t, os.WriteFile(path, []byte(PrivateKeyPEM(k)), 0o600))

	loaded := loadKey(path, 1024, "test")
	require.NotNil(t, loaded)
	assert.True(t, k.Equal(loaded))

	// missing files fall back to a generated key
	assert.NotNil(t, loadKey(filepath.Join(t.TempDir(), "missing.pem"), 1024, "test"))
}

func TestParsePublicKey(t *testing.T) {
	k, err := rsa.GenerateKey(rand.Reader, 1024)
	require.NoError(t, err)
	s, err := PublicKeyPEM(&k.PublicKey)
	require.NoError(t, err)
	pub, err := ParsePublicKey(s)
	require.NoError(t, err)
	assert.True(t, k.PublicKey.Equal(pub))

	_, err = ParsePublicKey("garbage")
	assert.ErrorIs(t, err, errs.ErrInvalidInput)
}
