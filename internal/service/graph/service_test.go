package graph_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/oggyb/fritter-graph/internal/app"
	"github.com/oggyb/fritter-graph/internal/cache"
	"github.com/oggyb/fritter-graph/internal/config"
	"github.com/oggyb/fritter-graph/internal/db"
	"github.com/oggyb/fritter-graph/internal/service/graph"
)

//
// Test helpers
//

// seedMinimalTestData inserts a minimal, deterministic dataset:
//   - Users: user1, user2, user3 (ids 1..3)
//   - Follows: user1 → user2
//   - Content: freet 1 by user3, freet 2 by user3, reply 3 by user3
func seedMinimalTestData(t *testing.T, gdb *gorm.DB, now time.Time) {
	t.Helper()

	users := []db.User{
		{ID: 1, Username: "user1", Email: "u1@test.com", PasswordHash: "x"},
		{ID: 2, Username: "user2", Email: "u2@test.com", PasswordHash: "x"},
		{ID: 3, Username: "user3", Email: "u3@test.com", PasswordHash: "x"},
	}
	require.NoError(t, gdb.Create(&users).Error)

	for _, u := range users {
		require.NoError(t, gdb.Create(&db.FollowRecord{OwnerID: u.ID, CreatedAt: now}).Error)
		require.NoError(t, gdb.Create(&db.ReputationRecord{OwnerID: u.ID, CreatedAt: now}).Error)
	}

	require.NoError(t, gdb.Create(&db.Follow{FollowerID: 1, FolloweeID: 2, CreatedAt: now}).Error)

	parent := uint64(1)
	items := []db.ContentItem{
		{ID: 1, AuthorID: 3, Kind: db.KindFreet, Content: "first"},
		{ID: 2, AuthorID: 3, Kind: db.KindFreet, Content: "second"},
		{ID: 3, AuthorID: 3, Kind: db.KindReply, ParentID: &parent, Content: "reply"},
	}
	require.NoError(t, gdb.Create(&items).Error)
}

// setupService spins up an in-memory SQLite DB, a miniredis and a fake clock,
// seeds test data and wires everything into a Graph service.
func setupService(t *testing.T) (*graph.Service, *clockwork.FakeClock) {
	t.Helper()

	name := strings.ReplaceAll(t.Name(), "/", "_")
	dbase, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{
		NowFunc: func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
	})
	require.NoError(t, err)

	sqlDB, err := dbase.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.Migrate(dbase))

	clock := clockwork.NewFakeClockAt(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	seedMinimalTestData(t, dbase, clock.Now())

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	cfg := config.New()
	cfg.Redis.Addr = mr.Addr()
	redisCache := cache.NewRedisCache(cfg)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil)) // discard logs in tests
	appCtx := app.NewWithClock(dbase, redisCache, logger, clock)
	return graph.NewGraphService(appCtx), clock
}

func as(userID uint64) context.Context {
	md := metadata.Pairs(graph.ActorHeader, strconv.FormatUint(userID, 10))
	return metadata.NewIncomingContext(context.Background(), md)
}

func req(t *testing.T, fields map[string]any) *structpb.Struct {
	t.Helper()
	s, err := structpb.NewStruct(fields)
	require.NoError(t, err)
	return s
}

func list(s *structpb.Struct, key string) []string {
	var out []string
	for _, v := range s.GetFields()[key].GetListValue().GetValues() {
		out = append(out, v.GetStringValue())
	}
	return out
}

func code(err error) codes.Code {
	return status.Code(err)
}

//
// Tests
//

func TestGetFollowsForCallerAndByName(t *testing.T) {
	svc, _ := setupService(t)

	resp, err := svc.GetFollows(as(1), req(t, nil))
	require.NoError(t, err)
	assert.Equal(t, "user1", resp.Fields["owner"].GetStringValue())
	assert.Equal(t, []string{"user2"}, list(resp, "following"))

	resp, err = svc.GetFollows(context.Background(), req(t, map[string]any{"username": "user2"}))
	require.NoError(t, err)
	assert.Equal(t, []string{"user1"}, list(resp, "followers"))

	_, err = svc.GetFollows(context.Background(), req(t, nil))
	assert.Equal(t, codes.Unauthenticated, code(err))

	_, err = svc.GetFollows(context.Background(), req(t, map[string]any{"username": "nobody"}))
	assert.Equal(t, codes.NotFound, code(err))
}

func TestFollowAndUnfollow(t *testing.T) {
	svc, _ := setupService(t)

	resp, err := svc.Follow(as(2), req(t, map[string]any{"username": "user3"}))
	require.NoError(t, err)
	assert.Equal(t, []string{"user3"}, list(resp, "following"))

	_, err = svc.Follow(as(2), req(t, map[string]any{"username": "user3"}))
	assert.Equal(t, codes.FailedPrecondition, code(err))

	_, err = svc.Follow(as(2), req(t, map[string]any{"username": "user2"}))
	assert.Equal(t, codes.FailedPrecondition, code(err))

	_, err = svc.Follow(as(2), req(t, nil))
	assert.Equal(t, codes.InvalidArgument, code(err))

	resp, err = svc.Unfollow(as(2), req(t, map[string]any{"username": "user3"}))
	require.NoError(t, err)
	assert.Empty(t, list(resp, "following"))
}

func TestListFollowersPages(t *testing.T) {
	svc, clock := setupService(t)

	clock.Advance(time.Second)
	_, err := svc.Follow(as(3), req(t, map[string]any{"username": "user2"}))
	require.NoError(t, err)

	resp, err := svc.ListFollowers(context.Background(), req(t, map[string]any{"username": "user2", "limit": 1}))
	require.NoError(t, err)
	assert.Equal(t, []string{"user3"}, list(resp, "usernames"))
	token := resp.Fields["next_page_token"].GetStringValue()
	require.NotEmpty(t, token)

	resp, err = svc.ListFollowers(context.Background(), req(t, map[string]any{"username": "user2", "limit": 1, "page_token": token}))
	require.NoError(t, err)
	assert.Equal(t, []string{"user1"}, list(resp, "usernames"))
	_, hasNext := resp.Fields["next_page_token"]
	assert.False(t, hasNext)

	resp, err = svc.ListFollowing(as(1), req(t, nil))
	require.NoError(t, err)
	assert.Equal(t, []string{"user2"}, list(resp, "usernames"))

	_, err = svc.ListFollowers(context.Background(), req(t, map[string]any{"username": "user2", "page_token": "junk!"}))
	assert.Equal(t, codes.InvalidArgument, code(err))
}

func TestVotingFlow(t *testing.T) {
	svc, _ := setupService(t)

	// user1 follows user2, so user1 may vote on user2
	resp, err := svc.Downvote(as(1), req(t, map[string]any{"username": "user2"}))
	require.NoError(t, err)
	assert.Equal(t, []string{"user2"}, list(resp, "downvoting"))

	resp, err = svc.Upvote(as(1), req(t, map[string]any{"username": "user2"}))
	require.NoError(t, err)
	assert.Equal(t, []string{"user2"}, list(resp, "upvoting"))
	assert.Empty(t, list(resp, "downvoting"))

	resp, err = svc.GetReputation(context.Background(), req(t, map[string]any{"username": "user2"}))
	require.NoError(t, err)
	assert.Equal(t, []string{"user1"}, list(resp, "upvoters"))
	assert.Equal(t, float64(1), resp.Fields["reputation"].GetNumberValue())

	// user3 has no relation to user2
	_, err = svc.Upvote(as(3), req(t, map[string]any{"username": "user2"}))
	assert.Equal(t, codes.FailedPrecondition, code(err))

	_, err = svc.RemoveDownvote(as(1), req(t, map[string]any{"username": "user2"}))
	assert.Equal(t, codes.FailedPrecondition, code(err))

	resp, err = svc.RemoveUpvote(as(1), req(t, map[string]any{"username": "user2"}))
	require.NoError(t, err)
	assert.Empty(t, list(resp, "upvoting"))
}

func TestCanReputeViaViews(t *testing.T) {
	svc, _ := setupService(t)

	resp, err := svc.CanRepute(as(1), req(t, map[string]any{"username": "user3"}))
	require.NoError(t, err)
	assert.False(t, resp.Fields["is_reputable"].GetBoolValue())

	for _, id := range []any{"1", "2", float64(3)} {
		_, err := svc.RecordView(as(1), req(t, map[string]any{"content_id": id}))
		require.NoError(t, err)
	}

	resp, err = svc.CanRepute(as(1), req(t, map[string]any{"username": "user3"}))
	require.NoError(t, err)
	assert.True(t, resp.Fields["is_reputable"].GetBoolValue())
}

func TestRecordViewRateLimitAndCount(t *testing.T) {
	svc, clock := setupService(t)

	resp, err := svc.RecordView(as(2), req(t, map[string]any{"content_id": "1"}))
	require.NoError(t, err)
	assert.Equal(t, "user2", resp.Fields["viewer"].GetStringValue())
	assert.Equal(t, "1", resp.Fields["content_id"].GetStringValue())
	assert.Equal(t, float64(1), resp.Fields["num_views"].GetNumberValue())

	_, err = svc.RecordView(as(2), req(t, map[string]any{"content_id": "1"}))
	assert.Equal(t, codes.ResourceExhausted, code(err))

	clock.Advance(30 * time.Second)
	_, err = svc.RecordView(as(2), req(t, map[string]any{"content_id": "1"}))
	require.NoError(t, err)

	count, err := svc.CountViews(context.Background(), req(t, map[string]any{"content_id": "1"}))
	require.NoError(t, err)
	assert.Equal(t, float64(2), count.Fields["num_views"].GetNumberValue())

	_, err = svc.RecordView(as(2), req(t, map[string]any{"content_id": "99"}))
	assert.Equal(t, codes.NotFound, code(err))

	_, err = svc.RecordView(as(2), req(t, map[string]any{"content_id": "abc"}))
	assert.Equal(t, codes.InvalidArgument, code(err))

	_, err = svc.CountViews(context.Background(), req(t, nil))
	assert.Equal(t, codes.InvalidArgument, code(err))
}

func TestBadActorHeader(t *testing.T) {
	svc, _ := setupService(t)

	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs(graph.ActorHeader, "not-a-number"))
	_, err := svc.Follow(ctx, req(t, map[string]any{"username": "user2"}))
	assert.Equal(t, codes.InvalidArgument, code(err))

	_, err = svc.Follow(as(42), req(t, map[string]any{"username": "user2"}))
	assert.Equal(t, codes.NotFound, code(err))
}

func TestCallerDeadlineAndCancellation(t *testing.T) {
	svc, _ := setupService(t)

	expired, cancel := context.WithDeadline(as(1), time.Now().Add(-time.Second))
	defer cancel()
	_, err := svc.Follow(expired, req(t, map[string]any{"username": "user3"}))
	assert.Equal(t, codes.DeadlineExceeded, code(err))

	cancelled, cancel := context.WithCancel(as(1))
	cancel()
	_, err = svc.Upvote(cancelled, req(t, map[string]any{"username": "user2"}))
	assert.Equal(t, codes.Canceled, code(err))

	_, err = svc.CountViews(cancelled, req(t, map[string]any{"content_id": "1"}))
	assert.Equal(t, codes.Canceled, code(err))

	// nothing was written
	resp, err := svc.GetFollows(as(1), req(t, nil))
	require.NoError(t, err)
	assert.Equal(t, []string{"user2"}, list(resp, "following"))
}
