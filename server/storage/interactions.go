package storage

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

const (
	InteractionComment = "comment"
	InteractionQuote   = "quote"
)

// Interaction is a remote reply to, or quote of, a local post.
type Interaction struct {
	ID         uint   `gorm:"primaryKey"`
	RemoteID   string `gorm:"uniqueIndex"`
	URL        string `gorm:"index"`
	Kind       string // comment or quote
	PostID     string `gorm:"index"`
	ActorURI   string `gorm:"index"`
	Content    string
	Summary    string
	Visibility string
	Published  time.Time
	Updated    time.Time
	Document   string // json source
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type Interactions interface {
	FindInteraction(ctx context.Context, remoteIDOrURL string) (*Interaction, error)
	SaveInteraction(ctx context.Context, i *Interaction) error
	DeleteInteraction(ctx context.Context, id uint) error
	ListInteractions(ctx context.Context, postID string) ([]Interaction, error)
}

func (s *Database) FindInteraction(ctx context.Context, remoteIDOrURL string) (*Interaction, error) {
	var i Interaction
	err := s.with(ctx).Where("remote_id = ? OR url = ?", remoteIDOrURL, remoteIDOrURL).First(&i).Error
	return found(&i, err, "finding interaction")
}

func (s *Database) SaveInteraction(ctx context.Context, i *Interaction) error {
	return errors.Wrap(s.with(ctx).Save(i).Error, "saving interaction")
}

func (s *Database) DeleteInteraction(ctx context.Context, id uint) error {
	return errors.Wrap(s.with(ctx).Delete(&Interaction{}, id).Error, "deleting interaction")
}

func (s *Database) ListInteractions(ctx context.Context, postID string) ([]Interaction, error) {
	var out []Interaction
	err := s.with(ctx).Where("post_id = ?", postID).Order("published").Find(&out).Error
	return out, errors.Wrap(err, "listing interactions")
}
