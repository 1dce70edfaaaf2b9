package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/oggyb/fritter-graph/internal/db"
)

// ViewRepository stores immutable view events.
type ViewRepository struct {
	db *gorm.DB
}

// NewViewRepository creates a new repository bound to the given DB connection.
func NewViewRepository(database *gorm.DB) *ViewRepository {
	return &ViewRepository{db: database}
}

// WithTx returns a copy of the repository bound to tx.
func (r *ViewRepository) WithTx(tx *gorm.DB) *ViewRepository {
	return &ViewRepository{db: tx}
}

// Insert appends a view event. ID is filled in on success.
func (r *ViewRepository) Insert(ctx context.Context, view *db.View) error {
	return r.db.WithContext(ctx).Create(view).Error
}

// CountByItem returns the number of view events for itemID.
func (r *ViewRepository) CountByItem(ctx context.Context, itemID uint64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&db.View{}).
		Where("content_id = ?", itemID).
		Count(&count).Error
	return count, err
}

// CountByViewerForItems counts events by viewer against any of itemIDs.
// Repeat views of one item count once per event.
func (r *ViewRepository) CountByViewerForItems(ctx context.Context, viewer uint64, itemIDs []uint64) (int64, error) {
	if len(itemIDs) == 0 {
		return 0, nil
	}
	var count int64
	err := r.db.WithContext(ctx).
		Model(&db.View{}).
		Where("viewer_id = ? AND content_id IN ?", viewer, itemIDs).
		Count(&count).Error
	return count, err
}

// Latest returns viewer's most recent view of itemID, or nil if there is none.
func (r *ViewRepository) Latest(ctx context.Context, viewer, itemID uint64) (*db.View, error) {
	var view db.View
	err := r.db.WithContext(ctx).
		Where("viewer_id = ? AND content_id = ?", viewer, itemID).
		Order("viewed_at DESC, id DESC").
		First(&view).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &view, nil
}

// DeleteByItem removes every view event of itemID and returns rows deleted.
func (r *ViewRepository) DeleteByItem(ctx context.Context, itemID uint64) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("content_id = ?", itemID).
		Delete(&db.View{})
	return res.RowsAffected, res.Error
}
