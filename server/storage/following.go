package storage

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// Following is a remote actor a local actor follows or has asked to follow.
type Following struct {
	LocalActor string `gorm:"primaryKey"`
	TargetURI  string `gorm:"primaryKey"`
	FollowID   string `gorm:"index"` // id of our Follow activity
	Status     string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type Followings interface {
	FindFollowing(ctx context.Context, localActor, targetURI string) (*Following, error)
	FindFollowingByActivity(ctx context.Context, followID string) (*Following, error)
	SaveFollowing(ctx context.Context, f *Following) error
	DeleteFollowing(ctx context.Context, localActor, targetURI string) error
	ListFollowing(ctx context.Context, localActor string) ([]Following, error)
}

func (s *Database) FindFollowing(ctx context.Context, localActor, targetURI string) (*Following, error) {
	var f Following
	err := s.with(ctx).First(&f, "local_actor = ? AND target_uri = ?", localActor, targetURI).Error
	return found(&f, err, "finding following")
}

func (s *Database) FindFollowingByActivity(ctx context.Context, followID string) (*Following, error) {
	var f Following
	err := s.with(ctx).First(&f, "follow_id = ?", followID).Error
	return found(&f, err, "finding following")
}

func (s *Database) SaveFollowing(ctx context.Context, f *Following) error {
	return errors.Wrap(s.with(ctx).Save(f).Error, "saving following")
}

func (s *Database) DeleteFollowing(ctx context.Context, localActor, targetURI string) error {
	err := s.with(ctx).Delete(&Following{}, "local_actor = ? AND target_uri = ?", localActor, targetURI).Error
	return errors.Wrap(err, "deleting following")
}

func (s *Database) ListFollowing(ctx context.Context, localActor string) ([]Following, error) {
	var out []Following
	err := s.with(ctx).Where("local_actor = ?", localActor).Order("created_at").Find(&out).Error
	return out, errors.Wrap(err, "listing following")
}
