package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/tkrehbiel/blogfed/server/activity"
	"github.com/tkrehbiel/blogfed/server/errs"
	"github.com/tkrehbiel/blogfed/server/inbox"
	"github.com/tkrehbiel/blogfed/server/telemetry"
	"github.com/tkrehbiel/blogfed/server/transport"
)

const maxInboxBody = 1 << 20

// Dispatcher routes a parsed activity to its handler.
type Dispatcher interface {
	Dispatch(ctx context.Context, a *activity.Activity) inbox.Event
}

// Submitter runs work after the request has been answered.
type Submitter interface {
	Submit(name string, run func(ctx context.Context)) bool
}

// ActivityInbox accepts activities POSTed by remote servers.
// Requests are verified and parsed synchronously, then acknowledged and dispatched later.
type ActivityInbox struct {
	Keys            transport.KeyResolver
	ReceiveUnsigned bool
	Dispatcher      Dispatcher
	Pipeline        Submitter
}

func (ai ActivityInbox) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	telemetry.Request(r, "ActivityInbox.ServeHTTP")
	telemetry.Increment("post_requests", 1)

	// the digest check reads the body, so the cap applies from here on
	r.Body = http.MaxBytesReader(w, r.Body, maxInboxBody)

	keyID := ""
	if !ai.ReceiveUnsigned {
		id, err := transport.Verify(r.Context(), ai.Keys, r)
		if tooLarge(err) {
			http.Error(w, "body too large", http.StatusRequestEntityTooLarge)
			return
		}
		if err != nil {
			telemetry.Error(err, "signature unverified for %s %s", r.Method, r.URL.Path)
			http.Error(w, "signature unverified", http.StatusUnauthorized)
			return
		}
		telemetry.Trace("signature verified for %s %s by %s", r.Method, r.URL.Path, id)
		keyID = id
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		if tooLarge(err) {
			http.Error(w, "body too large", http.StatusRequestEntityTooLarge)
			return
		}
		telemetry.Error(err, "reading body bytes")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	act, err := activity.ParseActivity(body)
	if err != nil || act.Type == "" {
		telemetry.Trace("unparseable activity [%s]", string(body))
		http.Error(w, "invalid activity", http.StatusBadRequest)
		return
	}
	if keyID != "" && !sameHost(keyID, act.ActorID()) {
		err := errs.New(errs.Forbidden, "key [%s] cannot speak for [%s]", keyID, act.ActorID())
		telemetry.Error(err, "rejecting %s", act.Type)
		http.Error(w, "signature does not match actor", http.StatusUnauthorized)
		return
	}

	if !ai.Pipeline.Submit(act.Type+" "+act.ID, func(ctx context.Context) {
		ai.Dispatcher.Dispatch(ctx, act)
	}) {
		http.Error(w, "busy", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// sameHost reports whether a key and an actor are served from the same host.
func sameHost(keyID, actorID string) bool {
	k, err := url.Parse(keyID)
	if err != nil {
		return false
	}
	a, err := url.Parse(actorID)
	if err != nil {
		return false
	}
	return k.Host != "" && strings.EqualFold(k.Host, a.Host)
}

func tooLarge(err error) bool {
	var tooBig *http.MaxBytesError
	return errors.As(err, &tooBig)
}
