package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tkrehbiel/blogfed/server/activity"
	"github.com/tkrehbiel/blogfed/server/telemetry"
)

func newTestService(t *testing.T) (*ActivityService, *httptest.Server) {
	cfg := testConfig(t)
	cfg.Server.ReceiveUnsigned = true
	svc, err := NewService(cfg)
	require.NoError(t, err)
	t.Cleanup(svc.Engine.Close)
	srv := httptest.NewServer(svc.router)
	t.Cleanup(srv.Close)
	return svc, srv
}

func get(t *testing.T, url, accept string) (*http.Response, string) {
	r, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	if accept != "" {
		r.Header.Set("Accept", accept)
	}
	resp, err := http.DefaultClient.Do(r)
	require.NoError(t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(b)
}

func TestNewService_InvalidURL(t *testing.T) {
	cfg := testConfig(t)
	cfg.URL = "not a url"
	_, err := NewService(cfg)
	assert.Error(t, err)
}

func TestService_Routes(t *testing.T) {
	_, srv := newTestService(t)

	resp, body := get(t, srv.URL+"/", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "blogfed")

	resp, body = get(t, srv.URL+"/.well-known/webfinger?resource=acct:alice@blog.example", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, site+"/a/alice")

	resp, body = get(t, srv.URL+"/.well-known/host-meta", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "lrdd")

	resp, body = get(t, srv.URL+"/nodeinfo/2.1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var info map[string]any
	require.NoError(t, json.Unmarshal([]byte(body), &info))
	assert.Equal(t, "2.1", info["version"])

	resp, body = get(t, srv.URL+"/a/blog", activity.ContentType)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	actor, err := activity.ParseActor([]byte(body))
	require.NoError(t, err)
	assert.Equal(t, site+"/a/blog", actor.ID)

	resp, _ = get(t, srv.URL+"/a/alice/outbox", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = get(t, srv.URL+"/a/alice/followers", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = get(t, srv.URL+"/a/alice/following", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = get(t, srv.URL+"/a/nobody/outbox", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	telemetry.Increment("service_test", 1)
	resp, body = get(t, srv.URL+"/metrics", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "blogfed_events_total")
}

func TestService_InboxDispatches(t *testing.T) {
	svc, srv := newTestService(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go svc.pipeline.Run(ctx)

	before := telemetry.GetCounter("inbox_ignored")
	resp, err := http.Post(srv.URL+"/inbox", activity.ContentType, strings.NewReader(`{
		"id": "https://remote.example/activities/1",
		"type": "Flag",
		"actor": "https://remote.example/users/bob",
		"object": "https://blog.example/a/blog"
	}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	// unknown types are ignored once dispatched
	assert.Eventually(t, func() bool {
		return telemetry.GetCounter("inbox_ignored") > before
	}, 5*time.Second, 10*time.Millisecond)

	resp, err = http.Post(srv.URL+"/a/blog/inbox", activity.ContentType, strings.NewReader(`not json`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
