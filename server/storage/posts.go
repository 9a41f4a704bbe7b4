package storage

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// Federation states of a post
const (
	Federated = "federated"
	Deleted   = "deleted"
)

// Post is a blog post known to the federation layer. Local posts come from
// the site feed; Remote posts were created from inbound activities.
type Post struct {
	ID              string `gorm:"primaryKey"` // permalink
	Title           string
	Summary         string
	Content         string
	AuthorID        int64
	Visibility      string
	FederationState string
	Remote          bool
	RemoteID        string `gorm:"index"`
	AttributedTo    string
	Published       time.Time `gorm:"index"`
	Updated         time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type Posts interface {
	FindPost(ctx context.Context, id string) (*Post, error)
	FindPostByRemoteID(ctx context.Context, remoteID string) (*Post, error)
	SavePost(ctx context.Context, p *Post) error
	DeletePost(ctx context.Context, id string) error
	GetLatestPosts(ctx context.Context, n int) ([]Post, error)
}

func (s *Database) FindPost(ctx context.Context, id string) (*Post, error) {
	var p Post
	err := s.with(ctx).First(&p, "id = ?", id).Error
	return found(&p, err, "finding post")
}

func (s *Database) FindPostByRemoteID(ctx context.Context, remoteID string) (*Post, error) {
	var p Post
	err := s.with(ctx).First(&p, "remote_id = ?", remoteID).Error
	return found(&p, err, "finding post")
}

func (s *Database) SavePost(ctx context.Context, p *Post) error {
	return errors.Wrap(s.with(ctx).Save(p).Error, "saving post")
}

func (s *Database) DeletePost(ctx context.Context, id string) error {
	return errors.Wrap(s.with(ctx).Delete(&Post{}, "id = ?", id).Error, "deleting post")
}

// GetLatestPosts returns the newest local posts.
func (s *Database) GetLatestPosts(ctx context.Context, n int) ([]Post, error) {
	var posts []Post
	err := s.with(ctx).Where("remote = ?", false).Order("published desc").Limit(n).Find(&posts).Error
	return posts, errors.Wrap(err, "listing posts")
}

// CountPosts counts local posts that have not been deleted.
func (s *Database) CountPosts(ctx context.Context) (int64, error) {
	var n int64
	err := s.with(ctx).Model(&Post{}).Where("remote = ? AND federation_state <> ?", false, Deleted).Count(&n).Error
	return n, errors.Wrap(err, "counting posts")
}

// ListPostsByAuthor returns the latest n local posts by one author.
func (s *Database) ListPostsByAuthor(ctx context.Context, authorID int64, n int) ([]Post, error) {
	var posts []Post
	err := s.with(ctx).Where("remote = ? AND author_id = ? AND federation_state <> ?", false, authorID, Deleted).
		Order("published desc").Limit(n).Find(&posts).Error
	return posts, errors.Wrap(err, "listing posts by author")
}
