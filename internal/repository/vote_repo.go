package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/oggyb/fritter-graph/internal/db"
)

const reputationRecordsTable = "reputation_records"

// VoteRepository provides data access for reputation records and votes.
// A vote row holds exactly one polarity per (actor, target) pair.
type VoteRepository struct {
	db *gorm.DB
}

// NewVoteRepository creates a new repository bound to the given DB connection.
func NewVoteRepository(database *gorm.DB) *VoteRepository {
	return &VoteRepository{db: database}
}

// WithTx returns a copy of the repository bound to tx.
func (r *VoteRepository) WithTx(tx *gorm.DB) *VoteRepository {
	return &VoteRepository{db: tx}
}

// CreateRecord inserts owner's reputation record. Returns false if it already existed.
func (r *VoteRepository) CreateRecord(ctx context.Context, owner uint64, at time.Time) (bool, error) {
	return createRecord(ctx, r.db, &db.ReputationRecord{OwnerID: owner, CreatedAt: at})
}

// DeleteRecord removes owner's reputation record and returns rows deleted.
func (r *VoteRepository) DeleteRecord(ctx context.Context, owner uint64) (int64, error) {
	return deleteRecord(ctx, r.db, reputationRecordsTable, owner)
}

// HasRecord reports whether owner has a reputation record.
func (r *VoteRepository) HasRecord(ctx context.Context, owner uint64) (bool, error) {
	return hasRecord(ctx, r.db, reputationRecordsTable, owner)
}

// LockRecords locks the reputation records of ids in ascending order and
// returns the owners that have one.
func (r *VoteRepository) LockRecords(ctx context.Context, ids ...uint64) ([]uint64, error) {
	return lockRecords(ctx, r.db, reputationRecordsTable, ids)
}

// Get returns actor's vote on target, or nil if there is none.
func (r *VoteRepository) Get(ctx context.Context, actor, target uint64) (*db.Vote, error) {
	var vote db.Vote
	err := r.db.WithContext(ctx).
		Where("actor_id = ? AND target_id = ?", actor, target).
		First(&vote).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &vote, nil
}

// Put records actor's vote on target with the given polarity.
//
// Behavior:
//   - If (actor_id, target_id) exists → polarity and updated_at are overwritten,
//     so an opposite vote is replaced in the same statement.
//   - Otherwise a new row is inserted.
func (r *VoteRepository) Put(ctx context.Context, actor, target uint64, polarity int8, at time.Time) error {
	vote := db.Vote{
		ActorID:   actor,
		TargetID:  target,
		Polarity:  polarity,
		CreatedAt: at,
		UpdatedAt: at,
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "actor_id"}, {Name: "target_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"polarity", "updated_at"}),
		}).
		Create(&vote).Error
}

// Delete removes actor's vote on target only if it has the given polarity.
func (r *VoteRepository) Delete(ctx context.Context, actor, target uint64, polarity int8) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("actor_id = ? AND target_id = ? AND polarity = ?", actor, target, polarity).
		Delete(&db.Vote{})
	return res.RowsAffected, res.Error
}

// DeleteAny removes actor's vote on target whatever its polarity.
// Deleting a vote that does not exist is not an error.
func (r *VoteRepository) DeleteAny(ctx context.Context, actor, target uint64) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("actor_id = ? AND target_id = ?", actor, target).
		Delete(&db.Vote{})
	return res.RowsAffected, res.Error
}

// Voters returns the actors holding polarity toward target.
func (r *VoteRepository) Voters(ctx context.Context, target uint64, polarity int8) ([]uint64, error) {
	var ids []uint64
	err := r.db.WithContext(ctx).
		Model(&db.Vote{}).
		Where("target_id = ? AND polarity = ?", target, polarity).
		Order("updated_at DESC, actor_id DESC").
		Pluck("actor_id", &ids).Error
	return ids, err
}

// Voting returns the targets actor holds polarity toward.
func (r *VoteRepository) Voting(ctx context.Context, actor uint64, polarity int8) ([]uint64, error) {
	var ids []uint64
	err := r.db.WithContext(ctx).
		Model(&db.Vote{}).
		Where("actor_id = ? AND polarity = ?", actor, polarity).
		Order("updated_at DESC, target_id DESC").
		Pluck("target_id", &ids).Error
	return ids, err
}

// Score returns upvoters minus downvoters of target. May be negative.
func (r *VoteRepository) Score(ctx context.Context, target uint64) (int64, error) {
	var score int64
	err := r.db.WithContext(ctx).
		Model(&db.Vote{}).
		Select("COALESCE(SUM(polarity), 0)").
		Where("target_id = ?", target).
		Scan(&score).Error
	return score, err
}

// Prune deletes every vote cast by or on userID.
func (r *VoteRepository) Prune(ctx context.Context, userID uint64) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("actor_id = ? OR target_id = ?", userID, userID).
		Delete(&db.Vote{})
	return res.RowsAffected, res.Error
}
