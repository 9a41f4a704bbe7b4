package server

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tkrehbiel/blogfed/server/activity"
	"github.com/tkrehbiel/blogfed/server/inbox"
)

const site = "https://blog.example"

// testConfig is a site with one user and a private in-memory database.
func testConfig(t *testing.T) Config {
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	cfg, err := ReadConfig([]byte(fmt.Sprintf(`{
		"url": %q,
		"users": [{"name": "alice", "displayName": "Alice"}],
		"database": {"connection": "file:%s?mode=memory&cache=shared"},
		"federation": {"key_bits": 1024}
	}`, site, name)))
	require.NoError(t, err)
	return cfg
}

func newTestEngine(t *testing.T) *Engine {
	e, err := NewEngine(testConfig(t))
	require.NoError(t, err)
	t.Cleanup(e.Close)
	return e
}

// remotePeer serves one Person at /users/bob and records POSTs to its inbox.
type remotePeer struct {
	*httptest.Server
	posts chan string
	aka   string // alsoKnownAs entry, if any
}

func newRemotePeer(t *testing.T, aka ...string) *remotePeer {
	p := &remotePeer{posts: make(chan string, 10)}
	if len(aka) > 0 {
		p.aka = aka[0]
	}
	p.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			p.posts <- r.URL.Path
			w.WriteHeader(http.StatusAccepted)
			return
		}
		id := p.URL + "/users/bob"
		w.Header().Set("Content-Type", activity.ContentType)
		aka := "[]"
		if p.aka != "" {
			aka = fmt.Sprintf("[%q]", p.aka)
		}
		fmt.Fprintf(w, `{"id":%q,"type":"Person","preferredUsername":"bob","inbox":%q,"alsoKnownAs":%s}`, id, id+"/inbox", aka)
	}))
	t.Cleanup(p.Close)
	return p
}

func (p *remotePeer) actor() string { return p.URL + "/users/bob" }

type mockDispatcher struct {
	mock.Mock
}

func (m *mockDispatcher) Dispatch(ctx context.Context, a *activity.Activity) inbox.Event {
	m.Called(a.Type, a.ID)
	return inbox.Event{Activity: a, State: inbox.Accepted, Success: true}
}

// syncSubmitter runs jobs immediately, or refuses them all when full.
type syncSubmitter struct {
	full bool
}

func (s syncSubmitter) Submit(_ string, run func(ctx context.Context)) bool {
	if s.full {
		return false
	}
	run(context.Background())
	return true
}
