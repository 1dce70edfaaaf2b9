// Package engine keeps the follow graph and the reputation graph consistent
// and decides who may vote on whom.
//
// Every edge is stored once, in a single row, so the mirrored views
// (following/followers, upvoting/upvoters, downvoting/downvoters) are always
// two readings of the same data. Mutations run in one gorm transaction each,
// behind per-user striped locks and row locks on both users' records.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"gorm.io/gorm"

	"github.com/oggyb/fritter-graph/internal/app"
	"github.com/oggyb/fritter-graph/internal/cache"
	"github.com/oggyb/fritter-graph/internal/db"
	svcErr "github.com/oggyb/fritter-graph/internal/errors"
	"github.com/oggyb/fritter-graph/internal/metrics"
	"github.com/oggyb/fritter-graph/internal/repository"
)

// ViewThreshold is how many views of an author's content make a viewer eligible to vote on them.
const ViewThreshold = 3

// ViewCooldown is the minimum gap between two views of one item by one viewer.
const ViewCooldown = 30 * time.Second

// Polarity is the direction of a reputation vote.
type Polarity int8

const (
	Up   Polarity = Polarity(db.PolarityUp)
	Down Polarity = Polarity(db.PolarityDown)
)

func (p Polarity) String() string {
	if p == Up {
		return "upvote"
	}
	return "downvote"
}

// UserDirectory resolves usernames and user ids.
type UserDirectory interface {
	ResolveByUsername(ctx context.Context, username string) (uint64, error)
	ResolveByID(ctx context.Context, userID uint64) (string, error)
	Usernames(ctx context.Context, ids []uint64) (map[uint64]string, error)
}

// TxDirectory is a UserDirectory stored in the graph's own database.
// When the directory implements it, records are only created lazily for
// users whose row still exists inside the mutation's transaction, and
// RemoveUser deletes the row in the same transaction as the records, so a
// removed user cannot get records back.
type TxDirectory interface {
	UserDirectory
	ExistsTx(ctx context.Context, tx *gorm.DB, userID uint64) (bool, error)
	DeleteTx(ctx context.Context, tx *gorm.DB, userID uint64) (bool, error)
}

// ContentLedger answers existence and authorship questions about freets and replies.
type ContentLedger interface {
	ExistsContentItem(ctx context.Context, itemID uint64) (bool, error)
	ItemsAuthoredBy(ctx context.Context, authorID uint64) ([]uint64, error)
}

// TxContentLedger is a ContentLedger stored in the graph's own database.
// When the ledger implements it, the view-threshold check inside a mutation
// reads authorship through the same transaction as the views it counts.
type TxContentLedger interface {
	ContentLedger
	ItemsAuthoredByTx(ctx context.Context, tx *gorm.DB, authorID uint64) ([]uint64, error)
}

// FollowView is a user's follow record rendered with usernames.
type FollowView struct {
	Owner     string
	Followers []string
	Following []string
}

// ReputationView is a user's reputation record rendered with usernames.
type ReputationView struct {
	Owner      string
	Upvoters   []string
	Upvoting   []string
	Downvoters []string
	Downvoting []string
	Reputation int64
}

// ViewEvent is a recorded view plus the item's total after recording it.
type ViewEvent struct {
	ID        uint64
	ViewerID  uint64
	Viewer    string
	ContentID uint64
	ViewedAt  time.Time
	NumViews  int64
}

// Engine owns the follow graph, the reputation graph and the view ledger.
type Engine struct {
	db      *gorm.DB
	users   UserDirectory
	txUsers TxDirectory
	content ContentLedger
	txItems TxContentLedger
	follows *repository.FollowRepository
	votes   *repository.VoteRepository
	views   *repository.ViewRepository
	cache   *cache.RedisCache
	clock   clockwork.Clock
	log     *slog.Logger
	locks   *stripedLocks
}

// New wires an Engine from the shared app dependencies.
// A nil RedisCache disables view counter caching.
func New(appCtx *app.AppContext, users UserDirectory, content ContentLedger) *Engine {
	clock := appCtx.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	log := appCtx.Logger
	if log == nil {
		log = slog.Default()
	}
	txUsers, _ := users.(TxDirectory)
	txItems, _ := content.(TxContentLedger)
	return &Engine{
		db:      appCtx.DB,
		users:   users,
		txUsers: txUsers,
		content: content,
		txItems: txItems,
		follows: repository.NewFollowRepository(appCtx.DB),
		votes:   repository.NewVoteRepository(appCtx.DB),
		views:   repository.NewViewRepository(appCtx.DB),
		cache:   appCtx.RedisCache,
		clock:   clock,
		log:     log,
		locks:   &stripedLocks{},
	}
}

// now returns the engine clock in UTC, truncated to what both drivers store.
func (e *Engine) now() time.Time {
	return e.clock.Now().UTC().Truncate(time.Millisecond)
}

// requireUser checks that userID exists and returns its username.
func (e *Engine) requireUser(ctx context.Context, userID uint64) (string, error) {
	name, err := e.users.ResolveByID(ctx, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", svcErr.NotFoundError(fmt.Sprintf("user %d does not exist", userID)).
			WithField("user_id", userID)
	}
	if err != nil {
		return "", svcErr.InternalError("failed to resolve user", err)
	}
	return name, nil
}

// resolveUsername validates and resolves a username supplied by a caller.
func (e *Engine) resolveUsername(ctx context.Context, username string) (uint64, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return 0, svcErr.ValidationError("username is required")
	}
	id, err := e.users.ResolveByUsername(ctx, username)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, svcErr.NotFoundError(fmt.Sprintf("user %s does not exist", username)).
			WithField("username", username)
	}
	if err != nil {
		return 0, svcErr.InternalError("failed to resolve username", err)
	}
	return id, nil
}

// ResolveUsername maps username to a user id with the engine's error taxonomy.
func (e *Engine) ResolveUsername(ctx context.Context, username string) (uint64, error) {
	return e.resolveUsername(ctx, username)
}

// usernamesOf renders ids as usernames, keeping order and skipping ids
// the directory no longer knows.
func (e *Engine) usernamesOf(ctx context.Context, ids []uint64) ([]string, error) {
	out := make([]string, 0, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	names, err := e.users.Usernames(ctx, ids)
	if err != nil {
		return nil, svcErr.InternalError("failed to resolve usernames", err)
	}
	for _, id := range ids {
		if n, ok := names[id]; ok {
			out = append(out, n)
		}
	}
	return out, nil
}

// ensureFollowRecords locks both users' follow records, creating any that are missing.
func (e *Engine) ensureFollowRecords(ctx context.Context, tx *gorm.DB, follows *repository.FollowRepository, now time.Time, ids ...uint64) error {
	found, err := follows.LockRecords(ctx, ids...)
	if err != nil {
		return err
	}
	for _, id := range missing(ids, found) {
		if err := e.requireLiveUser(ctx, tx, id); err != nil {
			return err
		}
		if _, err := follows.CreateRecord(ctx, id, now); err != nil {
			return err
		}
	}
	return nil
}

// ensureReputationRecords locks both users' reputation records, creating any that are missing.
func (e *Engine) ensureReputationRecords(ctx context.Context, tx *gorm.DB, votes *repository.VoteRepository, now time.Time, ids ...uint64) error {
	found, err := votes.LockRecords(ctx, ids...)
	if err != nil {
		return err
	}
	for _, id := range missing(ids, found) {
		if err := e.requireLiveUser(ctx, tx, id); err != nil {
			return err
		}
		if _, err := votes.CreateRecord(ctx, id, now); err != nil {
			return err
		}
	}
	return nil
}

// requireLiveUser re-reads the directory row through tx before a record is
// created for userID. Without a TxDirectory it trusts the earlier resolve.
func (e *Engine) requireLiveUser(ctx context.Context, tx *gorm.DB, userID uint64) error {
	if e.txUsers == nil {
		return nil
	}
	ok, err := e.txUsers.ExistsTx(ctx, tx, userID)
	if err != nil {
		return err
	}
	if !ok {
		return svcErr.NotFoundError(fmt.Sprintf("user %d does not exist", userID)).
			WithField("user_id", userID)
	}
	return nil
}

// prefetchItems reads authorID's items before any lock is taken. It returns
// nil when the ledger is tx-bound; authoredItems reads them later instead.
func (e *Engine) prefetchItems(ctx context.Context, authorID uint64) ([]uint64, error) {
	if e.txItems != nil {
		return nil, nil
	}
	items, err := e.content.ItemsAuthoredBy(ctx, authorID)
	if err != nil {
		return nil, svcErr.InternalError("failed to load content", err)
	}
	return items, nil
}

// authoredItems returns authorID's items for a check running inside tx.
// Items created after a prefetch are not counted by that mutation.
func (e *Engine) authoredItems(ctx context.Context, tx *gorm.DB, authorID uint64, prefetched []uint64) ([]uint64, error) {
	if e.txItems == nil {
		return prefetched, nil
	}
	return e.txItems.ItemsAuthoredByTx(ctx, tx, authorID)
}

func missing(want, found []uint64) []uint64 {
	have := make(map[uint64]struct{}, len(found))
	for _, id := range found {
		have[id] = struct{}{}
	}
	var out []uint64
	for _, id := range want {
		if _, ok := have[id]; !ok {
			have[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}

// wrap keeps structured errors as they are and turns anything else into an internal one.
func wrap(msg string, err error) error {
	if err == nil {
		return nil
	}
	var structured *svcErr.Error
	if errors.As(err, &structured) {
		return structured
	}
	return svcErr.InternalError(msg, err)
}

// observe records the outcome and latency of a graph operation.
func (e *Engine) observe(op string, start time.Time, err error) {
	result := "ok"
	if err != nil {
		result = string(svcErr.AsStructuredError(err).Type)
	}
	metrics.GraphMutationsTotal.WithLabelValues(op, result).Inc()
	metrics.GraphOpDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
