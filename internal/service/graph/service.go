package graph

import (
	"context"
	"math"
	"strconv"
	"strings"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/oggyb/fritter-graph/internal/app"
	"github.com/oggyb/fritter-graph/internal/engine"
	svcErr "github.com/oggyb/fritter-graph/internal/errors"
	"github.com/oggyb/fritter-graph/internal/repository"
)

// ActorHeader is the incoming metadata key carrying the caller's user id.
const ActorHeader = "x-user-id"

// Service implements the Graph gRPC API.
// It translates Struct requests into engine calls and engine results back
// into Struct responses; all graph rules live in the engine.
type Service struct {
	appCtx *app.AppContext
	engine *engine.Engine
}

var _ GraphServiceServer = (*Service)(nil)

// NewGraphService creates a new Graph service with dependencies from AppContext.
// Dependencies include:
//   - DB connection (users and content items double as the directory and ledger)
//   - RedisCache for view counters
//   - Clock for view cooldowns
func NewGraphService(appCtx *app.AppContext) *Service {
	users := repository.NewUserRepository(appCtx.DB)
	content := repository.NewContentRepository(appCtx.DB)
	return &Service{
		appCtx: appCtx,
		engine: engine.New(appCtx, users, content),
	}
}

// GetFollows returns the follow record of `username`, or of the caller when omitted.
func (s *Service) GetFollows(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	username := stringField(req, "username")
	s.appCtx.Logger.DebugContext(ctx, "GetFollows called", "username", username)

	var (
		view engine.FollowView
		err  error
	)
	if username != "" {
		view, err = s.engine.FindFollowsByUsername(ctx, username)
	} else {
		actor, aerr := actorID(ctx)
		if aerr != nil {
			return nil, aerr
		}
		view, err = s.engine.FindFollowsByUser(ctx, actor)
	}
	if err != nil {
		return nil, s.fail(ctx, "GetFollows", err)
	}
	return followResponse(view)
}

// ListFollowers returns one page of followers of `username` (or the caller).
//
// Request fields: username?, page_token?, limit?
// Response: {usernames: [...], next_page_token?}
func (s *Service) ListFollowers(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return s.listPage(ctx, "ListFollowers", req, s.engine.ListFollowers)
}

// ListFollowing returns one page of users `username` (or the caller) follows.
func (s *Service) ListFollowing(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return s.listPage(ctx, "ListFollowing", req, s.engine.ListFollowing)
}

type pageFunc func(ctx context.Context, userID uint64, token *string, limit int) ([]string, *string, error)

func (s *Service) listPage(ctx context.Context, method string, req *structpb.Struct, list pageFunc) (*structpb.Struct, error) {
	owner, err := s.ownerID(ctx, stringField(req, "username"))
	if err != nil {
		return nil, s.fail(ctx, method, err)
	}

	var token *string
	if t := stringField(req, "page_token"); t != "" {
		token = &t
	}
	limit := int(numberField(req, "limit"))

	s.appCtx.Logger.DebugContext(ctx, method+" called", "owner_id", owner, "limit", limit, "token", token != nil)

	names, next, err := list(ctx, owner, token, limit)
	if err != nil {
		return nil, s.fail(ctx, method, err)
	}

	resp := map[string]any{"usernames": anySlice(names)}
	if next != nil {
		resp["next_page_token"] = *next
	}
	return structpb.NewStruct(resp)
}

// Follow makes the caller follow `username`.
func (s *Service) Follow(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return s.followMutation(ctx, "Follow", req, s.engine.Follow)
}

// Unfollow makes the caller stop following `username`. Votes that lose
// eligibility as a result are retracted.
func (s *Service) Unfollow(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return s.followMutation(ctx, "Unfollow", req, s.engine.Unfollow)
}

func (s *Service) followMutation(
	ctx context.Context,
	method string,
	req *structpb.Struct,
	mutate func(context.Context, uint64, string) (engine.FollowView, error),
) (*structpb.Struct, error) {
	actor, err := actorID(ctx)
	if err != nil {
		return nil, err
	}
	username := stringField(req, "username")
	s.appCtx.Logger.DebugContext(ctx, method+" called", "actor_id", actor, "username", username)

	view, err := mutate(ctx, actor, username)
	if err != nil {
		return nil, s.fail(ctx, method, err)
	}
	return followResponse(view)
}

// GetReputation returns the reputation record of `username`, or of the caller when omitted.
func (s *Service) GetReputation(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	username := stringField(req, "username")
	s.appCtx.Logger.DebugContext(ctx, "GetReputation called", "username", username)

	var (
		view engine.ReputationView
		err  error
	)
	if username != "" {
		view, err = s.engine.FindReputationByUsername(ctx, username)
	} else {
		actor, aerr := actorID(ctx)
		if aerr != nil {
			return nil, aerr
		}
		view, err = s.engine.FindReputationByUser(ctx, actor)
	}
	if err != nil {
		return nil, s.fail(ctx, "GetReputation", err)
	}
	return reputationResponse(view)
}

// Upvote casts the caller's upvote on `username`.
func (s *Service) Upvote(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return s.voteMutation(ctx, "Upvote", req, s.engine.Upvote)
}

// Downvote casts the caller's downvote on `username`.
func (s *Service) Downvote(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return s.voteMutation(ctx, "Downvote", req, s.engine.Downvote)
}

// RemoveUpvote retracts the caller's upvote on `username`.
func (s *Service) RemoveUpvote(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return s.voteMutation(ctx, "RemoveUpvote", req, s.engine.RemoveUpvote)
}

// RemoveDownvote retracts the caller's downvote on `username`.
func (s *Service) RemoveDownvote(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return s.voteMutation(ctx, "RemoveDownvote", req, s.engine.RemoveDownvote)
}

func (s *Service) voteMutation(
	ctx context.Context,
	method string,
	req *structpb.Struct,
	mutate func(context.Context, uint64, string) (engine.ReputationView, error),
) (*structpb.Struct, error) {
	actor, err := actorID(ctx)
	if err != nil {
		return nil, err
	}
	username := stringField(req, "username")
	s.appCtx.Logger.DebugContext(ctx, method+" called", "actor_id", actor, "username", username)

	view, err := mutate(ctx, actor, username)
	if err != nil {
		return nil, s.fail(ctx, method, err)
	}
	return reputationResponse(view)
}

// CanRepute reports whether the caller may vote on `username`.
func (s *Service) CanRepute(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	actor, err := actorID(ctx)
	if err != nil {
		return nil, err
	}
	username := stringField(req, "username")

	ok, err := s.engine.CanRepute(ctx, actor, username)
	if err != nil {
		return nil, s.fail(ctx, "CanRepute", err)
	}
	return structpb.NewStruct(map[string]any{"is_reputable": ok})
}

// RecordView records the caller viewing `content_id`.
//
// Example:
//
//	svc.RecordView(ctx, {"content_id": "42"}) // -> {viewer, content_id, viewed_at, num_views}
func (s *Service) RecordView(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	actor, err := actorID(ctx)
	if err != nil {
		return nil, err
	}
	itemID, err := idField(req, "content_id")
	if err != nil {
		return nil, err
	}
	s.appCtx.Logger.DebugContext(ctx, "RecordView called", "actor_id", actor, "content_id", itemID)

	ev, err := s.engine.RecordView(ctx, actor, itemID)
	if err != nil {
		return nil, s.fail(ctx, "RecordView", err)
	}
	return structpb.NewStruct(map[string]any{
		"viewer":     ev.Viewer,
		"content_id": strconv.FormatUint(ev.ContentID, 10),
		"viewed_at":  ev.ViewedAt.UTC().Format(time.RFC3339Nano),
		"num_views":  ev.NumViews,
	})
}

// CountViews returns how many times `content_id` was viewed (cache-first).
func (s *Service) CountViews(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	itemID, err := idField(req, "content_id")
	if err != nil {
		return nil, err
	}

	n, err := s.engine.CountViews(ctx, itemID)
	if err != nil {
		return nil, s.fail(ctx, "CountViews", err)
	}
	return structpb.NewStruct(map[string]any{"num_views": n})
}

// ownerID resolves the subject of a read: username when given, else the caller.
func (s *Service) ownerID(ctx context.Context, username string) (uint64, error) {
	if username == "" {
		return actorID(ctx)
	}
	return s.engine.ResolveUsername(ctx, username)
}

// fail logs unexpected failures and maps err to a gRPC status.
func (s *Service) fail(ctx context.Context, method string, err error) error {
	if _, ok := status.FromError(err); ok {
		return err
	}
	mapped := svcErr.Map(err)
	if status.Code(mapped) == codes.Internal {
		s.appCtx.Logger.ErrorContext(ctx, method+" failed", "err", err)
	} else {
		s.appCtx.Logger.DebugContext(ctx, method+" rejected", "err", err)
	}
	return mapped
}

// --- request/response helpers ---

// actorID reads the caller's user id from incoming metadata.
func actorID(ctx context.Context) (uint64, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return 0, status.Error(codes.Unauthenticated, ActorHeader+" metadata is required")
	}
	vals := md.Get(ActorHeader)
	if len(vals) == 0 || strings.TrimSpace(vals[0]) == "" {
		return 0, status.Error(codes.Unauthenticated, ActorHeader+" metadata is required")
	}
	id, err := strconv.ParseUint(strings.TrimSpace(vals[0]), 10, 64)
	if err != nil || id == 0 {
		return 0, svcErr.InvalidArgument(ActorHeader + " must be a valid uint64")
	}
	return id, nil
}

func stringField(req *structpb.Struct, key string) string {
	return strings.TrimSpace(req.GetFields()[key].GetStringValue())
}

func numberField(req *structpb.Struct, key string) float64 {
	return req.GetFields()[key].GetNumberValue()
}

// idField accepts an id sent either as a decimal string or as a number.
func idField(req *structpb.Struct, key string) (uint64, error) {
	v, ok := req.GetFields()[key]
	if !ok {
		return 0, svcErr.InvalidArgument(key + " is required")
	}
	switch k := v.GetKind().(type) {
	case *structpb.Value_StringValue:
		id, err := strconv.ParseUint(strings.TrimSpace(k.StringValue), 10, 64)
		if err != nil {
			return 0, svcErr.InvalidArgument(key + " must be a valid uint64")
		}
		return id, nil
	case *structpb.Value_NumberValue:
		n := k.NumberValue
		if n < 1 || n != math.Trunc(n) || n > math.MaxInt64 {
			return 0, svcErr.InvalidArgument(key + " must be a valid uint64")
		}
		return uint64(n), nil
	default:
		return 0, svcErr.InvalidArgument(key + " must be a string or number")
	}
}

func anySlice(xs []string) []any {
	out := make([]any, len(xs))
	for i, x := range xs {
		out[i] = x
	}
	return out
}

func followResponse(v engine.FollowView) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"owner":     v.Owner,
		"followers": anySlice(v.Followers),
		"following": anySlice(v.Following),
	})
}

func reputationResponse(v engine.ReputationView) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"owner":      v.Owner,
		"upvoters":   anySlice(v.Upvoters),
		"upvoting":   anySlice(v.Upvoting),
		"downvoters": anySlice(v.Downvoters),
		"downvoting": anySlice(v.Downvoting),
		"reputation": v.Reputation,
	})
}
