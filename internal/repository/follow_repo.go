package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/oggyb/fritter-graph/internal/db"
	"github.com/oggyb/fritter-graph/internal/utils/pagination"
)

const followRecordsTable = "follow_records"

// FollowRepository provides data access for follow records and follow edges.
// Every edge is a single row, so followers(B) and following(A) are two index
// lookups over the same data.
type FollowRepository struct {
	db *gorm.DB
}

// NewFollowRepository creates a new repository bound to the given DB connection.
func NewFollowRepository(database *gorm.DB) *FollowRepository {
	return &FollowRepository{db: database}
}

// WithTx returns a copy of the repository bound to tx.
func (r *FollowRepository) WithTx(tx *gorm.DB) *FollowRepository {
	return &FollowRepository{db: tx}
}

// CreateRecord inserts owner's follow record. Returns false if it already existed.
func (r *FollowRepository) CreateRecord(ctx context.Context, owner uint64, at time.Time) (bool, error) {
	return createRecord(ctx, r.db, &db.FollowRecord{OwnerID: owner, CreatedAt: at})
}

// DeleteRecord removes owner's follow record and returns rows deleted.
func (r *FollowRepository) DeleteRecord(ctx context.Context, owner uint64) (int64, error) {
	return deleteRecord(ctx, r.db, followRecordsTable, owner)
}

// HasRecord reports whether owner has a follow record.
func (r *FollowRepository) HasRecord(ctx context.Context, owner uint64) (bool, error) {
	return hasRecord(ctx, r.db, followRecordsTable, owner)
}

// LockRecords locks the follow records of ids in ascending order and returns
// the owners that have one.
func (r *FollowRepository) LockRecords(ctx context.Context, ids ...uint64) ([]uint64, error) {
	return lockRecords(ctx, r.db, followRecordsTable, ids)
}

// Exists reports whether follower currently follows followee.
func (r *FollowRepository) Exists(ctx context.Context, follower, followee uint64) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&db.Follow{}).
		Where("follower_id = ? AND followee_id = ?", follower, followee).
		Count(&count).Error
	return count > 0, err
}

// Insert adds the edge follower -> followee.
// A duplicate edge fails on the composite primary key.
func (r *FollowRepository) Insert(ctx context.Context, follower, followee uint64, at time.Time) error {
	edge := db.Follow{
		FollowerID: follower,
		FolloweeID: followee,
		CreatedAt:  at,
	}
	return r.db.WithContext(ctx).Create(&edge).Error
}

// Delete removes the edge follower -> followee and returns rows deleted.
func (r *FollowRepository) Delete(ctx context.Context, follower, followee uint64) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("follower_id = ? AND followee_id = ?", follower, followee).
		Delete(&db.Follow{})
	return res.RowsAffected, res.Error
}

// Followers returns everyone following userID, newest first.
func (r *FollowRepository) Followers(ctx context.Context, userID uint64) ([]uint64, error) {
	var ids []uint64
	err := r.db.WithContext(ctx).
		Model(&db.Follow{}).
		Where("followee_id = ?", userID).
		Order("created_at DESC, follower_id DESC").
		Pluck("follower_id", &ids).Error
	return ids, err
}

// Following returns everyone userID follows, newest first.
func (r *FollowRepository) Following(ctx context.Context, userID uint64) ([]uint64, error) {
	var ids []uint64
	err := r.db.WithContext(ctx).
		Model(&db.Follow{}).
		Where("follower_id = ?", userID).
		Order("created_at DESC, followee_id DESC").
		Pluck("followee_id", &ids).Error
	return ids, err
}

// ListFollowers returns one page of userID's followers.
//
// Behavior:
//   - Ordered by created_at DESC, follower_id DESC.
//   - Supports cursor-based pagination via paginationToken.
//
// Example:
//
//	repo.ListFollowers(ctx, 42, nil, 20) // first 20 followers of user 42
func (r *FollowRepository) ListFollowers(
	ctx context.Context,
	userID uint64,
	paginationToken *string,
	limit int,
) ([]db.Follow, *string, error) {
	return r.listEdges(ctx, "followee_id", "follower_id", userID, paginationToken, limit)
}

// ListFollowing returns one page of the users userID follows.
// Ordered by created_at DESC, followee_id DESC.
func (r *FollowRepository) ListFollowing(
	ctx context.Context,
	userID uint64,
	paginationToken *string,
	limit int,
) ([]db.Follow, *string, error) {
	return r.listEdges(ctx, "follower_id", "followee_id", userID, paginationToken, limit)
}

// listEdges pages over follows where ownerCol = userID, keyed by (created_at, peerCol).
func (r *FollowRepository) listEdges(
	ctx context.Context,
	ownerCol, peerCol string,
	userID uint64,
	paginationToken *string,
	limit int,
) ([]db.Follow, *string, error) {
	var edges []db.Follow

	cursor, err := pagination.Decode(getString(paginationToken))
	if err != nil {
		return nil, nil, err
	}

	query := r.db.WithContext(ctx).
		Table("follows f").
		Where("f."+ownerCol+" = ?", userID).
		Order("f.created_at DESC, f." + peerCol + " DESC").
		Limit(limit + 1)

	// apply cursor
	if !cursor.IsZero() {
		ts := time.UnixMilli(cursor.CreatedUnix).UTC()
		query = query.Where(
			"(f.created_at < ? OR (f.created_at = ? AND f."+peerCol+" < ?))",
			ts, ts, cursor.UserID,
		)
	}

	if err := query.Find(&edges).Error; err != nil {
		return nil, nil, err
	}

	// pagination: build next cursor if needed
	var nextToken *string
	if len(edges) > limit {
		last := edges[limit-1]
		peer := last.FollowerID
		if peerCol == "followee_id" {
			peer = last.FolloweeID
		}
		token, _ := pagination.Encode(pagination.Cursor{
			UserID:      peer,
			CreatedUnix: last.CreatedAt.UnixMilli(),
		})
		nextToken = &token
		edges = edges[:limit]
	}

	return edges, nextToken, nil
}

// Prune deletes every edge touching userID in either direction.
func (r *FollowRepository) Prune(ctx context.Context, userID uint64) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("follower_id = ? OR followee_id = ?", userID, userID).
		Delete(&db.Follow{})
	return res.RowsAffected, res.Error
}
