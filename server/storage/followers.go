package storage

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

const (
	FollowPending  = "pending"
	FollowAccepted = "accepted"
)

// Follower is a remote actor following a local actor.
type Follower struct {
	LocalActor  string `gorm:"primaryKey"`
	ActorURI    string `gorm:"primaryKey;index"`
	RequestID   string // id of the Follow activity
	Status      string // pending or accepted
	Inbox       string
	SharedInbox string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Followers interface {
	FindFollower(ctx context.Context, localActor, actorURI string) (*Follower, error)
	SaveFollower(ctx context.Context, f *Follower) error
	DeleteFollower(ctx context.Context, localActor, actorURI string) error
	DeleteFollowersFrom(ctx context.Context, actorURI string) (int64, error)
	ListFollowers(ctx context.Context, localActor, status string) ([]Follower, error)
	CountFollowers(ctx context.Context, localActor string) (int64, error)
}

func (s *Database) FindFollower(ctx context.Context, localActor, actorURI string) (*Follower, error) {
	var f Follower
	err := s.with(ctx).First(&f, "local_actor = ? AND actor_uri = ?", localActor, actorURI).Error
	return found(&f, err, "finding follower")
}

func (s *Database) SaveFollower(ctx context.Context, f *Follower) error {
	return errors.Wrap(s.with(ctx).Save(f).Error, "saving follower")
}

func (s *Database) DeleteFollower(ctx context.Context, localActor, actorURI string) error {
	err := s.with(ctx).Delete(&Follower{}, "local_actor = ? AND actor_uri = ?", localActor, actorURI).Error
	return errors.Wrap(err, "deleting follower")
}

// DeleteFollowersFrom removes a remote actor from every local follower list.
func (s *Database) DeleteFollowersFrom(ctx context.Context, actorURI string) (int64, error) {
	tx := s.with(ctx).Delete(&Follower{}, "actor_uri = ?", actorURI)
	return tx.RowsAffected, errors.Wrap(tx.Error, "deleting followers")
}

// ListFollowers returns followers of localActor, all of them when status is empty.
func (s *Database) ListFollowers(ctx context.Context, localActor, status string) ([]Follower, error) {
	var out []Follower
	tx := s.with(ctx).Where("local_actor = ?", localActor)
	if status != "" {
		tx = tx.Where("status = ?", status)
	}
	err := tx.Order("created_at").Find(&out).Error
	return out, errors.Wrap(err, "listing followers")
}

func (s *Database) CountFollowers(ctx context.Context, localActor string) (int64, error) {
	var n int64
	err := s.with(ctx).Model(&Follower{}).Where("local_actor = ?", localActor).Count(&n).Error
	return n, errors.Wrap(err, "counting followers")
}
