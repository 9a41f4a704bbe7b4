package page

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tkrehbiel/blogfed/server/activity"
	"github.com/tkrehbiel/blogfed/server/actors"
	"github.com/tkrehbiel/blogfed/server/transport"
)

func testDirectory(t *testing.T) *actors.Directory {
	d, err := actors.NewDirectory(actors.Options{
		URL:     "https://blog.example",
		Blog:    actors.ActorConfig{Name: "news", DisplayName: "The News", Summary: "all the news"},
		KeyBits: 1024,
	}, actors.StaticUsers{{ID: 1, Username: "alice", Login: "alice", Nicename: "alice", DisplayName: "Alice"}})
	require.NoError(t, err)
	return d
}

func webfinger(t *testing.T, resource string) *httptest.ResponseRecorder {
	u, _ := url.Parse("https://blog.example")
	wf := WebFinger{Meta: NewMetaData(u), Actors: testDirectory(t)}
	r := httptest.NewRequest("GET", WebFingerPath+"?resource="+url.QueryEscape(resource), nil)
	rec := httptest.NewRecorder()
	wf.ServeHTTP(rec, r)
	return rec
}

func TestWebFinger_User(t *testing.T) {
	rec := webfinger(t, "acct:alice@blog.example")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/jrd+json", rec.Header().Get("Content-Type"))

	var jrd transport.JRD
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &jrd))
	assert.Equal(t, "acct:alice@blog.example", jrd.Subject)
	assert.Equal(t, "https://blog.example/a/alice", jrd.Self())
	assert.Equal(t, activity.ContentType, jrd.Links[0].Type)
	assert.Equal(t, "http://webfinger.net/rel/profile-page", jrd.Links[1].Rel)
}

func TestWebFinger_BlogByURL(t *testing.T) {
	rec := webfinger(t, "https://blog.example/")
	require.Equal(t, http.StatusOK, rec.Code)
	var jrd transport.JRD
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &jrd))
	assert.Equal(t, "acct:news@blog.example", jrd.Subject)
	assert.Equal(t, "https://blog.example/a/news", jrd.Self())
}

func TestWebFinger_Errors(t *testing.T) {
	tests := []struct {
		resource string
		status   int
	}{
		{"", http.StatusBadRequest},
		{"acct:alice@elsewhere.example", http.StatusNotFound},
		{"acct:nobody@blog.example", http.StatusNotFound},
		{"mailto:alice@blog.example", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.resource, func(t *testing.T) {
			assert.Equal(t, tt.status, webfinger(t, tt.resource).Code)
		})
	}
}
