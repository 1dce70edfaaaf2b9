package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/oggyb/fritter-graph/internal/db"
)

// ContentRepository is a read-mostly view of freets and replies.
// Content CRUD lives elsewhere; the graph only needs existence and authorship.
type ContentRepository struct {
	db *gorm.DB
}

// NewContentRepository creates a new repository bound to the given DB connection.
func NewContentRepository(database *gorm.DB) *ContentRepository {
	return &ContentRepository{db: database}
}

// Create inserts a content item. Used by seeding and tests.
func (r *ContentRepository) Create(ctx context.Context, item *db.ContentItem) error {
	return r.db.WithContext(ctx).Create(item).Error
}

// Delete removes a content item row. Its views are dropped separately
// through the view ledger.
func (r *ContentRepository) Delete(ctx context.Context, itemID uint64) error {
	return r.db.WithContext(ctx).Delete(&db.ContentItem{}, itemID).Error
}

// ExistsContentItem reports whether a freet or reply with this id exists.
func (r *ContentRepository) ExistsContentItem(ctx context.Context, itemID uint64) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&db.ContentItem{}).
		Where("id = ?", itemID).
		Count(&count).Error
	return count > 0, err
}

// ItemsAuthoredBy returns the ids of every freet and reply written by authorID.
func (r *ContentRepository) ItemsAuthoredBy(ctx context.Context, authorID uint64) ([]uint64, error) {
	return r.ItemsAuthoredByTx(ctx, r.db, authorID)
}

// ItemsAuthoredByTx is ItemsAuthoredBy read through tx.
func (r *ContentRepository) ItemsAuthoredByTx(ctx context.Context, tx *gorm.DB, authorID uint64) ([]uint64, error) {
	var ids []uint64
	err := tx.WithContext(ctx).
		Model(&db.ContentItem{}).
		Where("author_id = ?", authorID).
		Order("id ASC").
		Pluck("id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}
