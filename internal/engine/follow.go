package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	svcErr "github.com/oggyb/fritter-graph/internal/errors"
	"github.com/oggyb/fritter-graph/internal/metrics"
	"github.com/oggyb/fritter-graph/internal/repository"
	"github.com/oggyb/fritter-graph/internal/utils/pagination"
)

// CreateFollowRecord creates userID's empty follow record.
func (e *Engine) CreateFollowRecord(ctx context.Context, userID uint64) (err error) {
	start := time.Now()
	defer func() { e.observe("create_follow_record", start, err) }()

	if _, err = e.requireUser(ctx, userID); err != nil {
		return err
	}

	unlock := e.locks.Lock(userID)
	defer unlock()

	created, cerr := e.follows.CreateRecord(ctx, userID, e.now())
	if cerr != nil {
		return svcErr.InternalError("failed to create follow record", cerr)
	}
	if !created {
		return svcErr.ConflictError(fmt.Sprintf("follow record for user %d already exists", userID))
	}
	return nil
}

// RemoveFollowRecord deletes userID's follow record and every follow edge
// touching userID. Reports whether exactly one record was deleted.
func (e *Engine) RemoveFollowRecord(ctx context.Context, userID uint64) (deleted bool, err error) {
	start := time.Now()
	defer func() { e.observe("remove_follow_record", start, err) }()

	unlock := e.locks.Lock(userID)
	defer unlock()

	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		n, pruned, err := removeFollowRecord(ctx, e.follows.WithTx(tx), userID)
		if err != nil {
			return err
		}
		deleted = n == 1
		e.log.InfoContext(ctx, "follow record removed", "user_id", userID, "deleted", n, "edges_pruned", pruned)
		return nil
	})
	return deleted, wrap("failed to remove follow record", err)
}

func removeFollowRecord(ctx context.Context, follows *repository.FollowRepository, userID uint64) (deleted, pruned int64, err error) {
	if pruned, err = follows.Prune(ctx, userID); err != nil {
		return 0, 0, err
	}
	if deleted, err = follows.DeleteRecord(ctx, userID); err != nil {
		return 0, 0, err
	}
	return deleted, pruned, nil
}

// IsFollowing reports whether actorID follows targetUsername.
func (e *Engine) IsFollowing(ctx context.Context, actorID uint64, targetUsername string) (bool, error) {
	target, err := e.resolveUsername(ctx, targetUsername)
	if err != nil {
		return false, err
	}
	ok, err := e.follows.Exists(ctx, actorID, target)
	if err != nil {
		return false, svcErr.InternalError("failed to check follow", err)
	}
	return ok, nil
}

// Follow makes actorID follow targetUsername and returns actorID's updated record.
//
// Behavior:
//   - Self-follows and duplicate follows fail with a conflict; state is unchanged.
//   - Missing follow records for either user are created on the way.
//   - The edge is a single row, so both sides appear at once or not at all.
func (e *Engine) Follow(ctx context.Context, actorID uint64, targetUsername string) (view FollowView, err error) {
	start := time.Now()
	defer func() { e.observe("follow", start, err) }()

	if _, err = e.requireUser(ctx, actorID); err != nil {
		return FollowView{}, err
	}
	target, err := e.resolveUsername(ctx, targetUsername)
	if err != nil {
		return FollowView{}, err
	}
	if target == actorID {
		return FollowView{}, svcErr.ConflictError("cannot follow yourself")
	}

	unlock := e.locks.Lock(actorID, target)
	defer unlock()

	now := e.now()
	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		follows := e.follows.WithTx(tx)
		if err := e.ensureFollowRecords(ctx, tx, follows, now, actorID, target); err != nil {
			return err
		}

		exists, err := follows.Exists(ctx, actorID, target)
		if err != nil {
			return err
		}
		if exists {
			return svcErr.ConflictError(fmt.Sprintf("already following %s", targetUsername)).
				WithField("target", targetUsername)
		}
		return follows.Insert(ctx, actorID, target, now)
	})
	if err != nil {
		return FollowView{}, wrap("failed to follow", err)
	}

	e.log.InfoContext(ctx, "follow added", "actor_id", actorID, "target_id", target)
	return e.FindFollowsByUser(ctx, actorID)
}

// Unfollow removes the edge actorID -> targetUsername and returns actorID's updated record.
//
// In the same transaction both ordered pairs are re-evaluated for reputation
// eligibility; a pair that lost it has its vote retracted.
func (e *Engine) Unfollow(ctx context.Context, actorID uint64, targetUsername string) (view FollowView, err error) {
	start := time.Now()
	defer func() { e.observe("unfollow", start, err) }()

	if _, err = e.requireUser(ctx, actorID); err != nil {
		return FollowView{}, err
	}
	target, err := e.resolveUsername(ctx, targetUsername)
	if err != nil {
		return FollowView{}, err
	}
	if target == actorID {
		return FollowView{}, svcErr.ConflictError("cannot unfollow yourself")
	}

	actorItems, err := e.prefetchItems(ctx, actorID)
	if err != nil {
		return FollowView{}, err
	}
	targetItems, err := e.prefetchItems(ctx, target)
	if err != nil {
		return FollowView{}, err
	}

	unlock := e.locks.Lock(actorID, target)
	defer unlock()

	now := e.now()
	var retracted int64
	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		follows := e.follows.WithTx(tx)
		votes := e.votes.WithTx(tx)
		views := e.views.WithTx(tx)

		if err := e.ensureFollowRecords(ctx, tx, follows, now, actorID, target); err != nil {
			return err
		}
		if err := e.ensureReputationRecords(ctx, tx, votes, now, actorID, target); err != nil {
			return err
		}

		exists, err := follows.Exists(ctx, actorID, target)
		if err != nil {
			return err
		}
		if !exists {
			return svcErr.ConflictError(fmt.Sprintf("not following %s", targetUsername)).
				WithField("target", targetUsername)
		}

		n, err := follows.Delete(ctx, actorID, target)
		if err != nil {
			return err
		}
		if n != 1 {
			e.log.ErrorContext(ctx, "follow edge vanished under lock", "actor_id", actorID, "target_id", target, "deleted", n)
			return svcErr.InternalError("follow graph inconsistent", fmt.Errorf("deleted %d edges for %d->%d", n, actorID, target))
		}

		if actorItems, err = e.authoredItems(ctx, tx, actorID, actorItems); err != nil {
			return err
		}
		if targetItems, err = e.authoredItems(ctx, tx, target, targetItems); err != nil {
			return err
		}

		pairs := []struct {
			from, to uint64
			toItems  []uint64
		}{
			{actorID, target, targetItems},
			{target, actorID, actorItems},
		}
		for _, p := range pairs {
			ok, err := eligible(ctx, follows, views, p.from, p.to, p.toItems)
			if err != nil {
				return err
			}
			if ok {
				continue
			}
			n, err := votes.DeleteAny(ctx, p.from, p.to)
			if err != nil {
				return err
			}
			retracted += n
		}
		return nil
	})
	if err != nil {
		return FollowView{}, wrap("failed to unfollow", err)
	}

	if retracted > 0 {
		metrics.VoteRetractionsTotal.Add(float64(retracted))
	}
	e.log.InfoContext(ctx, "follow removed", "actor_id", actorID, "target_id", target, "votes_retracted", retracted)
	return e.FindFollowsByUser(ctx, actorID)
}

// FindFollowsByUser returns userID's follow record, or NotFound if it has none.
func (e *Engine) FindFollowsByUser(ctx context.Context, userID uint64) (FollowView, error) {
	has, err := e.follows.HasRecord(ctx, userID)
	if err != nil {
		return FollowView{}, svcErr.InternalError("failed to load follow record", err)
	}
	if !has {
		return FollowView{}, svcErr.NotFoundError(fmt.Sprintf("follow record for user %d not found", userID))
	}

	owner, err := e.requireUser(ctx, userID)
	if err != nil {
		return FollowView{}, err
	}

	followerIDs, err := e.follows.Followers(ctx, userID)
	if err != nil {
		return FollowView{}, svcErr.InternalError("failed to load followers", err)
	}
	followingIDs, err := e.follows.Following(ctx, userID)
	if err != nil {
		return FollowView{}, svcErr.InternalError("failed to load following", err)
	}

	followers, err := e.usernamesOf(ctx, followerIDs)
	if err != nil {
		return FollowView{}, err
	}
	following, err := e.usernamesOf(ctx, followingIDs)
	if err != nil {
		return FollowView{}, err
	}

	return FollowView{Owner: owner, Followers: followers, Following: following}, nil
}

// FindFollowsByUsername is FindFollowsByUser keyed by username.
func (e *Engine) FindFollowsByUsername(ctx context.Context, username string) (FollowView, error) {
	id, err := e.resolveUsername(ctx, username)
	if err != nil {
		return FollowView{}, err
	}
	return e.FindFollowsByUser(ctx, id)
}

// ListFollowers returns one page of usernames following userID, newest first.
func (e *Engine) ListFollowers(ctx context.Context, userID uint64, pageToken *string, limit int) ([]string, *string, error) {
	edges, next, err := e.follows.ListFollowers(ctx, userID, pageToken, pagination.ClampLimit(limit))
	if err != nil {
		return nil, nil, pageError(err)
	}
	ids := make([]uint64, 0, len(edges))
	for _, f := range edges {
		ids = append(ids, f.FollowerID)
	}
	names, err := e.usernamesOf(ctx, ids)
	return names, next, err
}

// ListFollowing returns one page of usernames userID follows, newest first.
func (e *Engine) ListFollowing(ctx context.Context, userID uint64, pageToken *string, limit int) ([]string, *string, error) {
	edges, next, err := e.follows.ListFollowing(ctx, userID, pageToken, pagination.ClampLimit(limit))
	if err != nil {
		return nil, nil, pageError(err)
	}
	ids := make([]uint64, 0, len(edges))
	for _, f := range edges {
		ids = append(ids, f.FolloweeID)
	}
	names, err := e.usernamesOf(ctx, ids)
	return names, next, err
}

func pageError(err error) error {
	if errors.Is(err, pagination.ErrInvalidToken) {
		return svcErr.ValidationError("invalid pagination token")
	}
	return svcErr.InternalError("failed to list follows", err)
}
