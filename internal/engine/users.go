package engine

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	svcErr "github.com/oggyb/fritter-graph/internal/errors"
)

// RemovalResult summarizes what RemoveUser deleted.
type RemovalResult struct {
	FollowRecordDeleted     bool
	ReputationRecordDeleted bool
	FollowsPruned           int64
	VotesPruned             int64
	// UserDeleted is set when the directory row was removed in the same
	// transaction; only a TxDirectory can do that.
	UserDeleted bool
}

// RegisterUser creates both graph records for a freshly created account.
// Fails with a conflict, writing nothing, if either record already exists.
func (e *Engine) RegisterUser(ctx context.Context, userID uint64) (err error) {
	start := time.Now()
	defer func() { e.observe("register_user", start, err) }()

	if _, err = e.requireUser(ctx, userID); err != nil {
		return err
	}

	unlock := e.locks.Lock(userID)
	defer unlock()

	now := e.now()
	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		created, err := e.follows.WithTx(tx).CreateRecord(ctx, userID, now)
		if err != nil {
			return err
		}
		if !created {
			return svcErr.ConflictError(fmt.Sprintf("follow record for user %d already exists", userID))
		}
		created, err = e.votes.WithTx(tx).CreateRecord(ctx, userID, now)
		if err != nil {
			return err
		}
		if !created {
			return svcErr.ConflictError(fmt.Sprintf("reputation record for user %d already exists", userID))
		}
		return nil
	})
	if err != nil {
		return wrap("failed to register user", err)
	}

	e.log.InfoContext(ctx, "user registered", "user_id", userID)
	return nil
}

// RemoveUser deletes userID's records and prunes every follow edge and vote
// referencing userID, all in one transaction. A TxDirectory also loses the
// user row in that transaction, so later mutations naming the user fail with
// NotFound instead of re-creating records. Any other directory must drop the
// user before calling RemoveUser. View history is kept.
func (e *Engine) RemoveUser(ctx context.Context, userID uint64) (res RemovalResult, err error) {
	start := time.Now()
	defer func() { e.observe("remove_user", start, err) }()

	unlock := e.locks.Lock(userID)
	defer unlock()

	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		follows := e.follows.WithTx(tx)
		votes := e.votes.WithTx(tx)

		n, pruned, err := removeFollowRecord(ctx, follows, userID)
		if err != nil {
			return err
		}
		res.FollowRecordDeleted = n == 1
		res.FollowsPruned = pruned

		if res.VotesPruned, err = votes.Prune(ctx, userID); err != nil {
			return err
		}
		if n, err = votes.DeleteRecord(ctx, userID); err != nil {
			return err
		}
		res.ReputationRecordDeleted = n == 1

		if e.txUsers != nil {
			if res.UserDeleted, err = e.txUsers.DeleteTx(ctx, tx, userID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return RemovalResult{}, wrap("failed to remove user", err)
	}

	e.log.InfoContext(ctx, "user removed",
		"user_id", userID,
		"follows_pruned", res.FollowsPruned,
		"votes_pruned", res.VotesPruned,
		"user_deleted", res.UserDeleted,
	)
	return res, nil
}
