package server

import "google.golang.org/grpc"

// Registrar is a common interface for all gRPC service registrars.
// Implementations attach one service to the shared server.
type Registrar interface {
	Register(s *grpc.Server)
}
