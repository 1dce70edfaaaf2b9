package engine

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/oggyb/fritter-graph/internal/db"
	svcErr "github.com/oggyb/fritter-graph/internal/errors"
	"github.com/oggyb/fritter-graph/internal/metrics"
)

// RecordView appends a view of itemID by viewerID.
//
// Behavior:
//   - Unknown viewer or item → NotFound.
//   - A previous view of the same item by the same viewer less than
//     ViewCooldown ago → RateLimited, nothing is written.
//   - The cached counter is raised to the ledger count read after commit,
//     never incremented blindly.
func (e *Engine) RecordView(ctx context.Context, viewerID, itemID uint64) (event ViewEvent, err error) {
	defer func() { recordViewResult(err) }()

	viewer, err := e.requireUser(ctx, viewerID)
	if err != nil {
		return ViewEvent{}, err
	}
	if err = e.requireItem(ctx, itemID); err != nil {
		return ViewEvent{}, err
	}

	// only the viewer's own history is read, so the viewer's stripe is enough
	unlock := e.locks.Lock(viewerID)
	defer unlock()

	now := e.now()
	view := db.View{ViewerID: viewerID, ContentID: itemID, ViewedAt: now}
	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		views := e.views.WithTx(tx)
		last, err := views.Latest(ctx, viewerID, itemID)
		if err != nil {
			return err
		}
		if !e.cooledDown(last) {
			wait := ViewCooldown - now.Sub(last.ViewedAt)
			return svcErr.RateLimitedError(fmt.Sprintf("content item %d viewed too recently, retry in %s", itemID, wait.Round(time.Second))).
				WithField("content_id", itemID)
		}
		return views.Insert(ctx, &view)
	})
	if err != nil {
		return ViewEvent{}, wrap("failed to record view", err)
	}

	// the count is read after commit, so it includes this view and every
	// view committed before it
	count, err := e.views.CountByItem(ctx, itemID)
	if err != nil {
		return ViewEvent{}, svcErr.InternalError("failed to count views", err)
	}
	e.storeViewCount(ctx, itemID, count)

	e.log.DebugContext(ctx, "view recorded", "viewer_id", viewerID, "content_id", itemID)
	return ViewEvent{
		ID:        view.ID,
		ViewerID:  viewerID,
		Viewer:    viewer,
		ContentID: itemID,
		ViewedAt:  view.ViewedAt,
		NumViews:  count,
	}, nil
}

// CountViews returns the number of views of itemID.
// Cache-first strategy:
//  1. Attempts to read from Redis (views:count:itemID).
//  2. On a miss, falls back to the DB and caches the result with a 1h TTL.
func (e *Engine) CountViews(ctx context.Context, itemID uint64) (int64, error) {
	if err := e.requireItem(ctx, itemID); err != nil {
		return 0, err
	}

	if e.cache != nil {
		if n, ok, err := e.cache.GetViewCount(ctx, itemID); err == nil && ok {
			metrics.ViewCountCacheTotal.WithLabelValues("hit").Inc()
			return n, nil
		}
		metrics.ViewCountCacheTotal.WithLabelValues("miss").Inc()
	}

	// fallback: DB
	count, err := e.views.CountByItem(ctx, itemID)
	if err != nil {
		return 0, svcErr.InternalError("failed to count views", err)
	}

	e.storeViewCount(ctx, itemID, count)
	return count, nil
}

// storeViewCount raises the cached counter to count. On failure the key is
// dropped so the next read rebuilds it from the ledger.
func (e *Engine) storeViewCount(ctx context.Context, itemID uint64, count int64) {
	if e.cache == nil {
		return
	}
	if _, err := e.cache.RaiseViewCount(ctx, itemID, count); err != nil {
		e.log.WarnContext(ctx, "view counter cache write failed", "content_id", itemID, "err", err)
		_ = e.cache.DropViewCount(ctx, itemID)
	}
}

// HasSeenEnough reports whether viewerID has at least ViewThreshold view
// events across everything authorUsername wrote.
func (e *Engine) HasSeenEnough(ctx context.Context, viewerID uint64, authorUsername string) (bool, error) {
	author, err := e.resolveUsername(ctx, authorUsername)
	if err != nil {
		return false, err
	}
	items, err := e.content.ItemsAuthoredBy(ctx, author)
	if err != nil {
		return false, svcErr.InternalError("failed to load content", err)
	}
	ok, err := seenEnough(ctx, e.views, viewerID, items)
	if err != nil {
		return false, svcErr.InternalError("failed to count views", err)
	}
	return ok, nil
}

// IsRecentEnough reports whether viewerID may record another view of itemID now.
// With no prior view it is trivially true.
func (e *Engine) IsRecentEnough(ctx context.Context, viewerID, itemID uint64) (bool, error) {
	last, err := e.views.Latest(ctx, viewerID, itemID)
	if err != nil {
		return false, svcErr.InternalError("failed to load last view", err)
	}
	return e.cooledDown(last), nil
}

// DeleteViewsForItem drops every view of itemID, e.g. when the item is deleted.
func (e *Engine) DeleteViewsForItem(ctx context.Context, itemID uint64) (int64, error) {
	n, err := e.views.DeleteByItem(ctx, itemID)
	if err != nil {
		return 0, svcErr.InternalError("failed to delete views", err)
	}
	if e.cache != nil {
		if err := e.cache.DropViewCount(ctx, itemID); err != nil {
			e.log.WarnContext(ctx, "view counter cache delete failed", "content_id", itemID, "err", err)
		}
	}
	e.log.InfoContext(ctx, "views deleted", "content_id", itemID, "deleted", n)
	return n, nil
}

func (e *Engine) cooledDown(last *db.View) bool {
	if last == nil {
		return true
	}
	return e.now().Sub(last.ViewedAt) >= ViewCooldown
}

func (e *Engine) requireItem(ctx context.Context, itemID uint64) error {
	ok, err := e.content.ExistsContentItem(ctx, itemID)
	if err != nil {
		return svcErr.InternalError("failed to check content item", err)
	}
	if !ok {
		return svcErr.NotFoundError(fmt.Sprintf("content item %d does not exist", itemID)).
			WithField("content_id", itemID)
	}
	return nil
}

func recordViewResult(err error) {
	result := "recorded"
	if err != nil {
		switch svcErr.AsStructuredError(err).Type {
		case svcErr.TypeRateLimited:
			result = "rate_limited"
		case svcErr.TypeNotFound:
			result = "not_found"
		default:
			result = "error"
		}
	}
	metrics.ViewsRecordedTotal.WithLabelValues(result).Inc()
}
