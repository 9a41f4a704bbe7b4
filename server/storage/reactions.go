package storage

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

const (
	ReactionLike   = "like"
	ReactionRepost = "repost"
)

// Reaction is a Like or Announce of a local post. One per kind, post and actor.
type Reaction struct {
	ID         uint   `gorm:"primaryKey"`
	Kind       string `gorm:"uniqueIndex:idx_reaction"`
	PostID     string `gorm:"uniqueIndex:idx_reaction"`
	ActorURI   string `gorm:"uniqueIndex:idx_reaction"`
	ActivityID string `gorm:"index"`
	CreatedAt  time.Time
}

type Reactions interface {
	FindReaction(ctx context.Context, kind, postID, actorURI string) (*Reaction, error)
	FindReactionByActivity(ctx context.Context, activityID string) (*Reaction, error)
	SaveReaction(ctx context.Context, r *Reaction) error
	DeleteReaction(ctx context.Context, id uint) error
	CountReactions(ctx context.Context, kind, postID string) (int64, error)
}

func (s *Database) FindReaction(ctx context.Context, kind, postID, actorURI string) (*Reaction, error) {
	var r Reaction
	err := s.with(ctx).First(&r, "kind = ? AND post_id = ? AND actor_uri = ?", kind, postID, actorURI).Error
	return found(&r, err, "finding reaction")
}

func (s *Database) FindReactionByActivity(ctx context.Context, activityID string) (*Reaction, error) {
	var r Reaction
	err := s.with(ctx).First(&r, "activity_id = ?", activityID).Error
	return found(&r, err, "finding reaction")
}

func (s *Database) SaveReaction(ctx context.Context, r *Reaction) error {
	return errors.Wrap(s.with(ctx).Save(r).Error, "saving reaction")
}

func (s *Database) DeleteReaction(ctx context.Context, id uint) error {
	return errors.Wrap(s.with(ctx).Delete(&Reaction{}, id).Error, "deleting reaction")
}

func (s *Database) CountReactions(ctx context.Context, kind, postID string) (int64, error) {
	var n int64
	err := s.with(ctx).Model(&Reaction{}).Where("kind = ? AND post_id = ?", kind, postID).Count(&n).Error
	return n, errors.Wrap(err, "counting reactions")
}
