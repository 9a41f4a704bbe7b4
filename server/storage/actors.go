package storage

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// RemoteActor is a cached actor document from another server.
type RemoteActor struct {
	URI          string `gorm:"primaryKey"`
	Host         string `gorm:"index"`
	Inbox        string
	SharedInbox  string
	PublicKeyID  string `gorm:"index"`
	PublicKeyPEM string
	Document     string // json source
	FetchedAt    time.Time
}

type RemoteActors interface {
	FindRemoteActor(ctx context.Context, uri string) (*RemoteActor, error)
	FindRemoteActorByKey(ctx context.Context, keyID string) (*RemoteActor, error)
	SaveRemoteActor(ctx context.Context, a *RemoteActor) error
	DeleteRemoteActor(ctx context.Context, uri string) error
}

func (s *Database) FindRemoteActor(ctx context.Context, uri string) (*RemoteActor, error) {
	var actor RemoteActor
	err := s.with(ctx).First(&actor, "uri = ?", uri).Error
	return found(&actor, err, "finding remote actor")
}

func (s *Database) FindRemoteActorByKey(ctx context.Context, keyID string) (*RemoteActor, error) {
	var actor RemoteActor
	err := s.with(ctx).First(&actor, "public_key_id = ?", keyID).Error
	return found(&actor, err, "finding remote actor by key")
}

func (s *Database) SaveRemoteActor(ctx context.Context, a *RemoteActor) error {
	return errors.Wrap(s.with(ctx).Save(a).Error, "saving remote actor")
}

func (s *Database) DeleteRemoteActor(ctx context.Context, uri string) error {
	return errors.Wrap(s.with(ctx).Delete(&RemoteActor{}, "uri = ?", uri).Error, "deleting remote actor")
}
