package storage

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// Tombstone marks a remote uri as deleted so a late Create cannot resurrect it.
type Tombstone struct {
	URI       string `gorm:"primaryKey"`
	DeletedAt time.Time
}

type Tombstones interface {
	FindTombstone(ctx context.Context, uris ...string) (*Tombstone, error)
	SaveTombstone(ctx context.Context, t *Tombstone) error
	DeleteTombstones(ctx context.Context, uris ...string) error
}

// FindTombstone returns the tombstone for any of uris, typically an object's id and url.
func (s *Database) FindTombstone(ctx context.Context, uris ...string) (*Tombstone, error) {
	uris = nonEmpty(uris)
	if len(uris) == 0 {
		return nil, nil
	}
	var t Tombstone
	err := s.with(ctx).Where("uri IN ?", uris).Order("deleted_at desc").First(&t).Error
	return found(&t, err, "finding tombstone")
}

func (s *Database) SaveTombstone(ctx context.Context, t *Tombstone) error {
	return errors.Wrap(s.with(ctx).Save(t).Error, "saving tombstone")
}

func (s *Database) DeleteTombstones(ctx context.Context, uris ...string) error {
	uris = nonEmpty(uris)
	if len(uris) == 0 {
		return nil
	}
	return errors.Wrap(s.with(ctx).Where("uri IN ?", uris).Delete(&Tombstone{}).Error, "deleting tombstones")
}

func nonEmpty(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
