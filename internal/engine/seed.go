package engine

import (
	"context"
	"math/rand"

	svcErr "github.com/oggyb/fritter-graph/internal/errors"
)

// SeedStats counts what SeedGraph wrote.
type SeedStats struct {
	Follows int
	Views   int
	Votes   int
}

// SeedGraph builds a demo graph over userIDs through the regular operations,
// so every edge respects the same rules as live traffic.
//
// Behavior:
//  1. Registers graph records for every user (existing records are kept).
//  2. Each user follows up to 4 random others.
//  3. Each user views every item of one random author, enough to vote on them.
//  4. Each user votes on everyone they may: ~70% upvotes, the rest downvotes.
//
// Conflicts (duplicate follows, repeated votes) are skipped; any other error aborts.
func (e *Engine) SeedGraph(ctx context.Context, userIDs []uint64, r *rand.Rand) (SeedStats, error) {
	var stats SeedStats
	if len(userIDs) < 2 {
		return stats, nil
	}

	names := make(map[uint64]string, len(userIDs))
	for _, id := range userIDs {
		name, err := e.requireUser(ctx, id)
		if err != nil {
			return stats, err
		}
		names[id] = name
		if err := e.RegisterUser(ctx, id); err != nil && !svcErr.IsType(err, svcErr.TypeConflict) {
			return stats, err
		}
	}

	pick := func(self uint64) uint64 {
		for {
			id := userIDs[r.Intn(len(userIDs))]
			if id != self {
				return id
			}
		}
	}

	// --- Follows ---
	for _, actor := range userIDs {
		for j := 0; j < 4; j++ {
			_, err := e.Follow(ctx, actor, names[pick(actor)])
			if skip(err) {
				continue
			}
			if err != nil {
				return stats, err
			}
			stats.Follows++
		}
	}

	// --- Views ---
	for _, viewer := range userIDs {
		author := pick(viewer)
		items, err := e.content.ItemsAuthoredBy(ctx, author)
		if err != nil {
			return stats, svcErr.InternalError("failed to list authored items", err)
		}
		for _, item := range items {
			_, err := e.RecordView(ctx, viewer, item)
			if svcErr.IsType(err, svcErr.TypeRateLimited) {
				continue
			}
			if err != nil {
				return stats, err
			}
			stats.Views++
		}
	}

	// --- Votes ---
	for _, actor := range userIDs {
		for _, target := range userIDs {
			if actor == target {
				continue
			}
			ok, err := e.CanRepute(ctx, actor, names[target])
			if err != nil {
				return stats, err
			}
			if !ok {
				continue
			}
			if r.Intn(100) < 70 {
				_, err = e.Upvote(ctx, actor, names[target])
			} else {
				_, err = e.Downvote(ctx, actor, names[target])
			}
			if skip(err) {
				continue
			}
			if err != nil {
				return stats, err
			}
			stats.Votes++
		}
	}

	e.log.InfoContext(ctx, "graph seeded", "users", len(userIDs), "follows", stats.Follows, "views", stats.Views, "votes", stats.Votes)
	return stats, nil
}

func skip(err error) bool {
	return err != nil && svcErr.IsType(err, svcErr.TypeConflict)
}
