package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// createRecord inserts a per-user presence row and reports whether it was new.
// An existing row is left untouched.
func createRecord(ctx context.Context, tx *gorm.DB, record any) (bool, error) {
	res := tx.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(record)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// lockRecords selects owner rows of table in ascending id order, taking row
// locks where the dialect supports them. Returns the owners that exist.
//
// Callers locking two users must pass both ids in one call so locks are
// always acquired in the same global order.
func lockRecords(ctx context.Context, tx *gorm.DB, table string, ids []uint64) ([]uint64, error) {
	query := tx.WithContext(ctx).
		Table(table).
		Where("owner_id IN ?", ids).
		Order("owner_id ASC")

	// sqlite serializes writers on its own and has no row locks
	if tx.Dialector.Name() != "sqlite" {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var found []uint64
	if err := query.Pluck("owner_id", &found).Error; err != nil {
		return nil, err
	}
	return found, nil
}

func hasRecord(ctx context.Context, tx *gorm.DB, table string, owner uint64) (bool, error) {
	var count int64
	err := tx.WithContext(ctx).
		Table(table).
		Where("owner_id = ?", owner).
		Count(&count).Error
	return count > 0, err
}

func deleteRecord(ctx context.Context, tx *gorm.DB, table string, owner uint64) (int64, error) {
	res := tx.WithContext(ctx).
		Exec("DELETE FROM "+table+" WHERE owner_id = ?", owner)
	return res.RowsAffected, res.Error
}

// getString safely dereferences a string pointer for pagination tokens.
func getString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
