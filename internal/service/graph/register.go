package graph

import (
	"google.golang.org/grpc"

	"github.com/oggyb/fritter-graph/internal/app"
)

// Registrar ties the Graph service into the gRPC server
type Registrar struct {
	appCtx *app.AppContext
}

// NewRegistrar creates a new Registrar for the Graph service
func NewRegistrar(appCtx *app.AppContext) *Registrar {
	return &Registrar{appCtx: appCtx}
}

// Register attaches the Graph service implementation to the gRPC server
func (r *Registrar) Register(s *grpc.Server) {
	RegisterGraphServiceServer(s, NewGraphService(r.appCtx))
}
