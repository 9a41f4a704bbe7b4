// Package actors resolves local actor identities and caches remote actor documents.
package actors

import (
	"crypto"
	"crypto/rsa"
	"net/url"

	"github.com/tkrehbiel/blogfed/server/activity"
)

// Reserved local actor ids. Users of the hosting site have positive ids.
const (
	BlogID        int64 = 0
	ApplicationID int64 = -1
)

type Kind int

const (
	BlogActor Kind = iota
	ApplicationActor
	UserActor
)

func (k Kind) String() string {
	switch k {
	case BlogActor:
		return "blog"
	case ApplicationActor:
		return "application"
	}
	return "user"
}

// Actor is a local actor. It signs requests sent on its behalf.
type Actor struct {
	ID          int64
	Kind        Kind
	Username    string
	DisplayName string
	Summary     string
	Type        string
	URI         string // actor id
	URL         string // html profile
	Icon        string
	SharedInbox string

	key func() *rsa.PrivateKey
}

func (a *Actor) KeyID() string {
	return a.URI + "#main-key"
}

func (a *Actor) PrivateKey() crypto.PrivateKey {
	if a.key == nil {
		return nil
	}
	if k := a.key(); k != nil {
		return k
	}
	return nil
}

func (a *Actor) InboxURL() string     { return a.join("inbox") }
func (a *Actor) OutboxURL() string    { return a.join("outbox") }
func (a *Actor) FollowersURL() string { return a.join("followers") }
func (a *Actor) FollowingURL() string { return a.join("following") }

func (a *Actor) join(p string) string {
	s, _ := url.JoinPath(a.URI, p)
	return s
}

// Document builds the actor's ActivityPub representation.
func (a *Actor) Document() (*activity.Actor, error) {
	doc := &activity.Actor{
		ID:                a.URI,
		Type:              a.Type,
		Name:              a.DisplayName,
		PreferredUsername: a.Username,
		Summary:           a.Summary,
		Inbox:             a.InboxURL(),
		Outbox:            a.OutboxURL(),
		Followers:         a.FollowersURL(),
		Following:         a.FollowingURL(),
		Discoverable:      a.Kind != ApplicationActor,
	}
	if a.URL != "" {
		doc.URL = activity.IRI(a.URL)
	}
	if a.SharedInbox != "" {
		doc.Endpoints = &activity.Endpoints{SharedInbox: a.SharedInbox}
	}
	if a.Icon != "" {
		doc.Icon = activity.Embed(&activity.Object{Type: activity.ImageType, URL: activity.IRI(a.Icon)})
	}
	if k, ok := a.PrivateKey().(*rsa.PrivateKey); ok {
		pem, err := PublicKeyPEM(&k.PublicKey)
		if err != nil {
			return nil, err
		}
		doc.PublicKey = &activity.PublicKey{ID: a.KeyID(), Owner: a.URI, PublicKeyPem: pem}
	}
	return doc, nil
}
