package graph

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	// ServiceName is the fully qualified gRPC service name.
	ServiceName = "fritter.graph.v1.GraphService"
	// ProtoFile is the path the service's file descriptor is registered under.
	ProtoFile = "fritter/graph/v1/graph.proto"
)

// GraphServiceServer is the server API for GraphService.
// Requests and responses are google.protobuf.Struct documents.
type GraphServiceServer interface {
	GetFollows(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListFollowers(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListFollowing(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Follow(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Unfollow(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetReputation(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Upvote(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Downvote(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RemoveUpvote(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RemoveDownvote(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CanRepute(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RecordView(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CountViews(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// RegisterGraphServiceServer attaches srv to s.
func RegisterGraphServiceServer(s grpc.ServiceRegistrar, srv GraphServiceServer) {
	s.RegisterService(&GraphServiceDesc, srv)
}

// FullMethod returns the path clients invoke for method.
func FullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

type unaryCall func(GraphServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

// unaryHandler adapts call to grpc.MethodHandler, running it through the
// server's interceptor chain.
func unaryHandler(method string, call unaryCall) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(GraphServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: FullMethod(method),
		}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(GraphServiceServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// GraphServiceDesc describes GraphService for grpc.Server.RegisterService.
var GraphServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*GraphServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetFollows", Handler: unaryHandler("GetFollows", GraphServiceServer.GetFollows)},
		{MethodName: "ListFollowers", Handler: unaryHandler("ListFollowers", GraphServiceServer.ListFollowers)},
		{MethodName: "ListFollowing", Handler: unaryHandler("ListFollowing", GraphServiceServer.ListFollowing)},
		{MethodName: "Follow", Handler: unaryHandler("Follow", GraphServiceServer.Follow)},
		{MethodName: "Unfollow", Handler: unaryHandler("Unfollow", GraphServiceServer.Unfollow)},
		{MethodName: "GetReputation", Handler: unaryHandler("GetReputation", GraphServiceServer.GetReputation)},
		{MethodName: "Upvote", Handler: unaryHandler("Upvote", GraphServiceServer.Upvote)},
		{MethodName: "Downvote", Handler: unaryHandler("Downvote", GraphServiceServer.Downvote)},
		{MethodName: "RemoveUpvote", Handler: unaryHandler("RemoveUpvote", GraphServiceServer.RemoveUpvote)},
		{MethodName: "RemoveDownvote", Handler: unaryHandler("RemoveDownvote", GraphServiceServer.RemoveDownvote)},
		{MethodName: "CanRepute", Handler: unaryHandler("CanRepute", GraphServiceServer.CanRepute)},
		{MethodName: "RecordView", Handler: unaryHandler("RecordView", GraphServiceServer.RecordView)},
		{MethodName: "CountViews", Handler: unaryHandler("CountViews", GraphServiceServer.CountViews)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: ProtoFile,
}

func init() {
	if err := registerFile(protoregistry.GlobalFiles); err != nil {
		panic(fmt.Sprintf("graph: register %s: %v", ProtoFile, err))
	}
}

// fileDescriptor describes GraphService the way protoc would for graph.proto,
// so reflection clients (grpcurl) can list, describe and invoke it.
func fileDescriptor() *descriptorpb.FileDescriptorProto {
	const structType = ".google.protobuf.Struct"
	methods := make([]*descriptorpb.MethodDescriptorProto, 0, len(GraphServiceDesc.Methods))
	for _, m := range GraphServiceDesc.Methods {
		methods = append(methods, &descriptorpb.MethodDescriptorProto{
			Name:       proto.String(m.MethodName),
			InputType:  proto.String(structType),
			OutputType: proto.String(structType),
		})
	}
	return &descriptorpb.FileDescriptorProto{
		Name:       proto.String(ProtoFile),
		Package:    proto.String("fritter.graph.v1"),
		Dependency: []string{"google/protobuf/struct.proto"},
		Service: []*descriptorpb.ServiceDescriptorProto{{
			Name:   proto.String("GraphService"),
			Method: methods,
		}},
		Options: &descriptorpb.FileOptions{
			GoPackage: proto.String("github.com/oggyb/fritter-graph/internal/service/graph"),
		},
		Syntax: proto.String("proto3"),
	}
}

func registerFile(files *protoregistry.Files) error {
	fd, err := protodesc.NewFile(fileDescriptor(), files)
	if err != nil {
		return err
	}
	return files.RegisterFile(fd)
}
