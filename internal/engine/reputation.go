package engine

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/oggyb/fritter-graph/internal/db"
	svcErr "github.com/oggyb/fritter-graph/internal/errors"
)

// CreateReputationRecord creates userID's empty reputation record.
func (e *Engine) CreateReputationRecord(ctx context.Context, userID uint64) (err error) {
	start := time.Now()
	defer func() { e.observe("create_reputation_record", start, err) }()

	if _, err = e.requireUser(ctx, userID); err != nil {
		return err
	}

	unlock := e.locks.Lock(userID)
	defer unlock()

	created, cerr := e.votes.CreateRecord(ctx, userID, e.now())
	if cerr != nil {
		return svcErr.InternalError("failed to create reputation record", cerr)
	}
	if !created {
		return svcErr.ConflictError(fmt.Sprintf("reputation record for user %d already exists", userID))
	}
	return nil
}

// RemoveReputationRecord deletes userID's reputation record and every vote
// cast by or on userID. Reports whether exactly one record was deleted.
func (e *Engine) RemoveReputationRecord(ctx context.Context, userID uint64) (deleted bool, err error) {
	start := time.Now()
	defer func() { e.observe("remove_reputation_record", start, err) }()

	unlock := e.locks.Lock(userID)
	defer unlock()

	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		votes := e.votes.WithTx(tx)
		pruned, err := votes.Prune(ctx, userID)
		if err != nil {
			return err
		}
		n, err := votes.DeleteRecord(ctx, userID)
		if err != nil {
			return err
		}
		deleted = n == 1
		e.log.InfoContext(ctx, "reputation record removed", "user_id", userID, "deleted", n, "votes_pruned", pruned)
		return nil
	})
	return deleted, wrap("failed to remove reputation record", err)
}

// Upvote casts actorID's upvote on targetUsername, replacing a downvote if one exists.
func (e *Engine) Upvote(ctx context.Context, actorID uint64, targetUsername string) (ReputationView, error) {
	return e.castVote(ctx, actorID, targetUsername, Up)
}

// Downvote casts actorID's downvote on targetUsername, replacing an upvote if one exists.
func (e *Engine) Downvote(ctx context.Context, actorID uint64, targetUsername string) (ReputationView, error) {
	return e.castVote(ctx, actorID, targetUsername, Down)
}

// castVote records a vote of polarity p in one transaction.
//
// Behavior:
//   - Self-votes fail with a conflict.
//   - Holding the same polarity already fails with a conflict; state is unchanged.
//   - Eligibility is evaluated under the same locks as the write, and an
//     ineligible actor gets a conflict.
//   - An opposite vote is overwritten in the same row, so there is no moment
//     where both polarities exist.
func (e *Engine) castVote(ctx context.Context, actorID uint64, targetUsername string, p Polarity) (view ReputationView, err error) {
	start := time.Now()
	defer func() { e.observe(p.String(), start, err) }()

	if _, err = e.requireUser(ctx, actorID); err != nil {
		return ReputationView{}, err
	}
	target, err := e.resolveUsername(ctx, targetUsername)
	if err != nil {
		return ReputationView{}, err
	}
	if target == actorID {
		return ReputationView{}, svcErr.ConflictError(fmt.Sprintf("cannot %s yourself", p))
	}

	targetItems, err := e.prefetchItems(ctx, target)
	if err != nil {
		return ReputationView{}, err
	}

	unlock := e.locks.Lock(actorID, target)
	defer unlock()

	now := e.now()
	var replaced bool
	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		follows := e.follows.WithTx(tx)
		votes := e.votes.WithTx(tx)
		views := e.views.WithTx(tx)

		// follow records first, then reputation records, same as Unfollow
		if err := e.ensureFollowRecords(ctx, tx, follows, now, actorID, target); err != nil {
			return err
		}
		if err := e.ensureReputationRecords(ctx, tx, votes, now, actorID, target); err != nil {
			return err
		}

		current, err := votes.Get(ctx, actorID, target)
		if err != nil {
			return err
		}
		if current != nil && Polarity(current.Polarity) == p {
			return svcErr.ConflictError(fmt.Sprintf("already %sd %s", p, targetUsername)).
				WithField("target", targetUsername)
		}

		if targetItems, err = e.authoredItems(ctx, tx, target, targetItems); err != nil {
			return err
		}
		ok, err := eligible(ctx, follows, views, actorID, target, targetItems)
		if err != nil {
			return err
		}
		recordEligibility(ok)
		if !ok {
			return svcErr.ConflictError(fmt.Sprintf("not eligible to %s %s", p, targetUsername)).
				WithField("target", targetUsername)
		}

		replaced = current != nil
		return votes.Put(ctx, actorID, target, int8(p), now)
	})
	if err != nil {
		return ReputationView{}, wrap("failed to vote", err)
	}

	e.log.InfoContext(ctx, "vote cast", "actor_id", actorID, "target_id", target, "polarity", p.String(), "replaced", replaced)
	return e.FindReputationByUser(ctx, actorID)
}

// RemoveUpvote retracts actorID's upvote on targetUsername.
func (e *Engine) RemoveUpvote(ctx context.Context, actorID uint64, targetUsername string) (ReputationView, error) {
	return e.removeVote(ctx, actorID, targetUsername, Up)
}

// RemoveDownvote retracts actorID's downvote on targetUsername.
func (e *Engine) RemoveDownvote(ctx context.Context, actorID uint64, targetUsername string) (ReputationView, error) {
	return e.removeVote(ctx, actorID, targetUsername, Down)
}

// removeVote deletes a vote of polarity p; a missing vote is a conflict.
func (e *Engine) removeVote(ctx context.Context, actorID uint64, targetUsername string, p Polarity) (view ReputationView, err error) {
	start := time.Now()
	defer func() { e.observe("remove_"+p.String(), start, err) }()

	if _, err = e.requireUser(ctx, actorID); err != nil {
		return ReputationView{}, err
	}
	target, err := e.resolveUsername(ctx, targetUsername)
	if err != nil {
		return ReputationView{}, err
	}

	unlock := e.locks.Lock(actorID, target)
	defer unlock()

	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		votes := e.votes.WithTx(tx)
		if err := e.ensureReputationRecords(ctx, tx, votes, e.now(), actorID, target); err != nil {
			return err
		}
		n, err := votes.Delete(ctx, actorID, target, int8(p))
		if err != nil {
			return err
		}
		if n == 0 {
			return svcErr.ConflictError(fmt.Sprintf("no %s on %s to remove", p, targetUsername)).
				WithField("target", targetUsername)
		}
		return nil
	})
	if err != nil {
		return ReputationView{}, wrap("failed to remove vote", err)
	}

	e.log.InfoContext(ctx, "vote removed", "actor_id", actorID, "target_id", target, "polarity", p.String())
	return e.FindReputationByUser(ctx, actorID)
}

// IsUpvoting reports whether actorID currently upvotes targetUsername.
func (e *Engine) IsUpvoting(ctx context.Context, actorID uint64, targetUsername string) (bool, error) {
	return e.holds(ctx, actorID, targetUsername, Up)
}

// IsDownvoting reports whether actorID currently downvotes targetUsername.
func (e *Engine) IsDownvoting(ctx context.Context, actorID uint64, targetUsername string) (bool, error) {
	return e.holds(ctx, actorID, targetUsername, Down)
}

func (e *Engine) holds(ctx context.Context, actorID uint64, targetUsername string, p Polarity) (bool, error) {
	target, err := e.resolveUsername(ctx, targetUsername)
	if err != nil {
		return false, err
	}
	vote, err := e.votes.Get(ctx, actorID, target)
	if err != nil {
		return false, svcErr.InternalError("failed to load vote", err)
	}
	return vote != nil && Polarity(vote.Polarity) == p, nil
}

// Score returns upvoters minus downvoters of userID. May be negative.
func (e *Engine) Score(ctx context.Context, userID uint64) (int64, error) {
	score, err := e.votes.Score(ctx, userID)
	if err != nil {
		return 0, svcErr.InternalError("failed to compute score", err)
	}
	return score, nil
}

// FindReputationByUser returns userID's reputation record, or NotFound if it has none.
func (e *Engine) FindReputationByUser(ctx context.Context, userID uint64) (ReputationView, error) {
	has, err := e.votes.HasRecord(ctx, userID)
	if err != nil {
		return ReputationView{}, svcErr.InternalError("failed to load reputation record", err)
	}
	if !has {
		return ReputationView{}, svcErr.NotFoundError(fmt.Sprintf("reputation record for user %d not found", userID))
	}

	owner, err := e.requireUser(ctx, userID)
	if err != nil {
		return ReputationView{}, err
	}

	view := ReputationView{Owner: owner}
	sets := []struct {
		dst  *[]string
		load func() ([]uint64, error)
	}{
		{&view.Upvoters, func() ([]uint64, error) { return e.votes.Voters(ctx, userID, db.PolarityUp) }},
		{&view.Upvoting, func() ([]uint64, error) { return e.votes.Voting(ctx, userID, db.PolarityUp) }},
		{&view.Downvoters, func() ([]uint64, error) { return e.votes.Voters(ctx, userID, db.PolarityDown) }},
		{&view.Downvoting, func() ([]uint64, error) { return e.votes.Voting(ctx, userID, db.PolarityDown) }},
	}
	for _, s := range sets {
		ids, err := s.load()
		if err != nil {
			return ReputationView{}, svcErr.InternalError("failed to load votes", err)
		}
		if *s.dst, err = e.usernamesOf(ctx, ids); err != nil {
			return ReputationView{}, err
		}
	}

	if view.Reputation, err = e.Score(ctx, userID); err != nil {
		return ReputationView{}, err
	}
	return view, nil
}

// FindReputationByUsername is FindReputationByUser keyed by username.
func (e *Engine) FindReputationByUsername(ctx context.Context, username string) (ReputationView, error) {
	id, err := e.resolveUsername(ctx, username)
	if err != nil {
		return ReputationView{}, err
	}
	return e.FindReputationByUser(ctx, id)
}
