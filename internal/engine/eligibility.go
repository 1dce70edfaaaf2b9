package engine

import (
	"context"

	"golang.org/x/sync/errgroup"

	svcErr "github.com/oggyb/fritter-graph/internal/errors"
	"github.com/oggyb/fritter-graph/internal/metrics"
	"github.com/oggyb/fritter-graph/internal/repository"
)

// CanRepute reports whether actorID may vote on targetUsername: either one
// follows the other, or actorID has viewed targetUsername's content at least
// ViewThreshold times.
//
// The three signals are read concurrently and may observe slightly different
// snapshots; mutations re-evaluate the same rule inside their transaction.
func (e *Engine) CanRepute(ctx context.Context, actorID uint64, targetUsername string) (bool, error) {
	if _, err := e.requireUser(ctx, actorID); err != nil {
		return false, err
	}
	target, err := e.resolveUsername(ctx, targetUsername)
	if err != nil {
		return false, err
	}
	items, err := e.content.ItemsAuthoredBy(ctx, target)
	if err != nil {
		return false, svcErr.InternalError("failed to load content", err)
	}

	var follows, followedBy, seen bool
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		follows, err = e.follows.Exists(gctx, actorID, target)
		return err
	})
	g.Go(func() (err error) {
		followedBy, err = e.follows.Exists(gctx, target, actorID)
		return err
	})
	g.Go(func() (err error) {
		seen, err = seenEnough(gctx, e.views, actorID, items)
		return err
	})
	if err := g.Wait(); err != nil {
		return false, svcErr.InternalError("failed to evaluate eligibility", err)
	}

	ok := follows || followedBy || seen
	recordEligibility(ok)
	e.log.DebugContext(ctx, "eligibility evaluated",
		"actor_id", actorID, "target_id", target,
		"follows", follows, "followed_by", followedBy, "seen_enough", seen,
	)
	return ok, nil
}

// eligible evaluates the CanRepute rule for from -> to using the given
// (usually tx-bound) repositories. toItems are the items authored by to.
func eligible(
	ctx context.Context,
	follows *repository.FollowRepository,
	views *repository.ViewRepository,
	from, to uint64,
	toItems []uint64,
) (bool, error) {
	if ok, err := follows.Exists(ctx, from, to); err != nil || ok {
		return ok, err
	}
	if ok, err := follows.Exists(ctx, to, from); err != nil || ok {
		return ok, err
	}
	return seenEnough(ctx, views, from, toItems)
}

func seenEnough(ctx context.Context, views *repository.ViewRepository, viewer uint64, items []uint64) (bool, error) {
	n, err := views.CountByViewerForItems(ctx, viewer, items)
	if err != nil {
		return false, err
	}
	return n >= ViewThreshold, nil
}

func recordEligibility(ok bool) {
	if ok {
		metrics.EligibilityChecksTotal.WithLabelValues("eligible").Inc()
		return
	}
	metrics.EligibilityChecksTotal.WithLabelValues("ineligible").Inc()
}
