package server_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	reflectionpb "google.golang.org/grpc/reflection/grpc_reflection_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/descriptorpb"
	"google.golang.org/protobuf/types/known/structpb"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/oggyb/fritter-graph/internal/app"
	"github.com/oggyb/fritter-graph/internal/cache"
	"github.com/oggyb/fritter-graph/internal/config"
	"github.com/oggyb/fritter-graph/internal/db"
	"github.com/oggyb/fritter-graph/internal/server"
	"github.com/oggyb/fritter-graph/internal/service/graph"
)

// dialServer serves the Graph service over an in-memory listener and returns a client connection.
func dialServer(t *testing.T) *grpc.ClientConn {
	t.Helper()

	name := strings.ReplaceAll(t.Name(), "/", "_")
	dbase, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := dbase.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, db.Migrate(dbase))

	users := []db.User{
		{ID: 1, Username: "alice", Email: "alice@test.com", PasswordHash: "x"},
		{ID: 2, Username: "bob", Email: "bob@test.com", PasswordHash: "x"},
	}
	require.NoError(t, dbase.Create(&users).Error)
	for _, u := range users {
		require.NoError(t, dbase.Create(&db.FollowRecord{OwnerID: u.ID}).Error)
		require.NoError(t, dbase.Create(&db.ReputationRecord{OwnerID: u.ID}).Error)
	}

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	cfg := config.New()
	cfg.Redis.Addr = mr.Addr()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := clockwork.NewFakeClockAt(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	appCtx := app.NewWithClock(dbase, cache.NewRedisCache(cfg), log, clock)

	lis := bufconn.Listen(1 << 20)
	srv := server.NewGRPCServer(log, graph.NewRegistrar(appCtx))
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestFollowOverWire(t *testing.T) {
	conn := dialServer(t)

	ctx := metadata.AppendToOutgoingContext(context.Background(),
		graph.ActorHeader, "1",
		server.RequestIDHeader, "req-123",
	)
	in, err := structpb.NewStruct(map[string]any{"username": "bob"})
	require.NoError(t, err)

	var header metadata.MD
	out := new(structpb.Struct)
	err = conn.Invoke(ctx, graph.FullMethod("Follow"), in, out, grpc.Header(&header))
	require.NoError(t, err)

	assert.Equal(t, "alice", out.Fields["owner"].GetStringValue())
	following := out.Fields["following"].GetListValue().GetValues()
	require.Len(t, following, 1)
	assert.Equal(t, "bob", following[0].GetStringValue())
	assert.Equal(t, []string{"req-123"}, header.Get(server.RequestIDHeader))
}

func TestRequestIDGenerated(t *testing.T) {
	conn := dialServer(t)

	in, err := structpb.NewStruct(map[string]any{"username": "bob"})
	require.NoError(t, err)

	var header metadata.MD
	err = conn.Invoke(context.Background(), graph.FullMethod("GetFollows"), in, new(structpb.Struct), grpc.Header(&header))
	require.NoError(t, err)
	ids := header.Get(server.RequestIDHeader)
	require.Len(t, ids, 1)
	assert.NotEmpty(t, ids[0])
}

func TestErrorsCarryStatusCodes(t *testing.T) {
	conn := dialServer(t)

	in, err := structpb.NewStruct(map[string]any{"username": "bob"})
	require.NoError(t, err)

	// no actor header
	err = conn.Invoke(context.Background(), graph.FullMethod("Upvote"), in, new(structpb.Struct))
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	// not eligible
	ctx := metadata.AppendToOutgoingContext(context.Background(), graph.ActorHeader, "1")
	err = conn.Invoke(ctx, graph.FullMethod("Upvote"), in, new(structpb.Struct))
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))
}

func TestHealthServing(t *testing.T) {
	conn := dialServer(t)

	resp, err := healthpb.NewHealthClient(conn).Check(context.Background(), &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
}

func TestReflectionDescribesGraphService(t *testing.T) {
	conn := dialServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	stream, err := reflectionpb.NewServerReflectionClient(conn).ServerReflectionInfo(ctx)
	require.NoError(t, err)

	require.NoError(t, stream.Send(&reflectionpb.ServerReflectionRequest{
		MessageRequest: &reflectionpb.ServerReflectionRequest_FileContainingSymbol{
			FileContainingSymbol: graph.ServiceName,
		},
	}))
	resp, err := stream.Recv()
	require.NoError(t, err)
	require.NoError(t, stream.CloseSend())

	var methods []string
	for _, raw := range resp.GetFileDescriptorResponse().GetFileDescriptorProto() {
		fd := new(descriptorpb.FileDescriptorProto)
		require.NoError(t, proto.Unmarshal(raw, fd))
		if fd.GetName() != graph.ProtoFile {
			continue
		}
		for _, svc := range fd.GetService() {
			for _, m := range svc.GetMethod() {
				methods = append(methods, m.GetName())
			}
		}
	}
	assert.Len(t, methods, len(graph.GraphServiceDesc.Methods))
	assert.Contains(t, methods, "Follow")
	assert.Contains(t, methods, "RecordView")
}
