package storage

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// Outbox item states
const (
	StateQueued     = "queued"
	StateDelivering = "delivering"
	StateDelivered  = "delivered"
	StateFailed     = "failed"
)

// OutboxItem is one outgoing activity. The activity json is never changed after enqueue.
type OutboxItem struct {
	ID           string `gorm:"primaryKey"`
	ActorURI     string `gorm:"index"`
	ActivityID   string `gorm:"index"`
	ActivityType string
	ObjectID     string `gorm:"index"`
	Activity     string // json source
	Visibility   string
	State        string `gorm:"index"`
	Attempts     int
	LastError    string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	DeliveredAt  *time.Time
}

// OutboxFilter narrows ListOutbox. Zero fields match everything.
type OutboxFilter struct {
	ActorURI     string
	State        string
	ActivityType string
	Visibility   []string
	Limit        int
	Offset       int
}

type Outbox interface {
	FindOutboxItem(ctx context.Context, idOrURI string) (*OutboxItem, error)
	SaveOutboxItem(ctx context.Context, item *OutboxItem) error
	ListOutbox(ctx context.Context, f OutboxFilter) ([]OutboxItem, error)
	CountOutbox(ctx context.Context, f OutboxFilter) (int64, error)
	ClaimQueued(ctx context.Context, limit int) ([]OutboxItem, error)
}

// FindOutboxItem looks up an item by its own id or by its activity id.
func (s *Database) FindOutboxItem(ctx context.Context, idOrURI string) (*OutboxItem, error) {
	var item OutboxItem
	err := s.with(ctx).Where("id = ? OR activity_id = ?", idOrURI, idOrURI).
		Order("created_at desc").First(&item).Error
	return found(&item, err, "finding outbox item")
}

func (s *Database) SaveOutboxItem(ctx context.Context, item *OutboxItem) error {
	return errors.Wrap(s.with(ctx).Save(item).Error, "saving outbox item")
}

func (s *Database) filtered(ctx context.Context, f OutboxFilter) *gorm.DB {
	tx := s.with(ctx).Model(&OutboxItem{})
	if f.ActorURI != "" {
		tx = tx.Where("actor_uri = ?", f.ActorURI)
	}
	if f.State != "" {
		tx = tx.Where("state = ?", f.State)
	}
	if f.ActivityType != "" {
		tx = tx.Where("activity_type = ?", f.ActivityType)
	}
	if len(f.Visibility) > 0 {
		tx = tx.Where("visibility IN ?", f.Visibility)
	}
	return tx
}

// ListOutbox returns matching items, newest first.
func (s *Database) ListOutbox(ctx context.Context, f OutboxFilter) ([]OutboxItem, error) {
	var out []OutboxItem
	tx := s.filtered(ctx, f).Order("created_at desc")
	if f.Limit > 0 {
		tx = tx.Limit(f.Limit)
	}
	if f.Offset > 0 {
		tx = tx.Offset(f.Offset)
	}
	err := tx.Find(&out).Error
	return out, errors.Wrap(err, "listing outbox")
}

func (s *Database) CountOutbox(ctx context.Context, f OutboxFilter) (int64, error) {
	var n int64
	err := s.filtered(ctx, f).Count(&n).Error
	return n, errors.Wrap(err, "counting outbox")
}

// ClaimQueued moves up to limit queued items, oldest first, to delivering.
// An item claimed by a concurrent caller is skipped.
func (s *Database) ClaimQueued(ctx context.Context, limit int) ([]OutboxItem, error) {
	var queued []OutboxItem
	err := s.with(ctx).Where("state = ?", StateQueued).Order("created_at").Limit(limit).Find(&queued).Error
	if err != nil {
		return nil, errors.Wrap(err, "listing queued items")
	}
	claimed := make([]OutboxItem, 0, len(queued))
	for _, item := range queued {
		tx := s.with(ctx).Model(&OutboxItem{}).
			Where("id = ? AND state = ?", item.ID, StateQueued).
			Update("state", StateDelivering)
		if tx.Error != nil {
			return claimed, errors.Wrap(tx.Error, "claiming outbox item")
		}
		if tx.RowsAffected == 1 {
			item.State = StateDelivering
			claimed = append(claimed, item)
		}
	}
	return claimed, nil
}
