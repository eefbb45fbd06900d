package gridsd

import (
	"context"
	"errors"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/GoSim-25-26J-441/gridsearch/pkg/logger"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "gridsearch.v1.GridSearch"

// GridSearchServer is the gRPC service. Requests and responses are
// google.protobuf.Struct messages carrying the same fields as the HTTP API.
type GridSearchServer interface {
	CreateRun(context.Context, *structpb.Struct) (*structpb.Struct, error)
	StartRun(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetRun(context.Context, *structpb.Struct) (*structpb.Struct, error)
	StopRun(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListRuns(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryMethod func(GridSearchServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(name string, call unaryMethod) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(GridSearchServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + name}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(srv.(GridSearchServer), ctx, req.(*structpb.Struct))
			})
		},
	}
}

// ServiceDesc describes GridSearchServer for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*GridSearchServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryHandler("CreateRun", GridSearchServer.CreateRun),
		unaryHandler("StartRun", GridSearchServer.StartRun),
		unaryHandler("GetRun", GridSearchServer.GetRun),
		unaryHandler("StopRun", GridSearchServer.StopRun),
		unaryHandler("ListRuns", GridSearchServer.ListRuns),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "gridsearch/v1/gridsearch.proto",
}

// RegisterGridSearchServer registers srv on s.
func RegisterGridSearchServer(s grpc.ServiceRegistrar, srv GridSearchServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// GridSearchClient calls the service over a client connection.
type GridSearchClient struct {
	cc grpc.ClientConnInterface
}

func NewGridSearchClient(cc grpc.ClientConnInterface) *GridSearchClient {
	return &GridSearchClient{cc: cc}
}

func (c *GridSearchClient) invoke(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *GridSearchClient) CreateRun(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "CreateRun", in, opts...)
}

func (c *GridSearchClient) StartRun(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "StartRun", in, opts...)
}

func (c *GridSearchClient) GetRun(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "GetRun", in, opts...)
}

func (c *GridSearchClient) StopRun(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "StopRun", in, opts...)
}

func (c *GridSearchClient) ListRuns(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "ListRuns", in, opts...)
}

// GRPCServer implements GridSearchServer over a RunStore and RunExecutor.
type GRPCServer struct {
	store    *RunStore
	Executor *RunExecutor
}

var _ GridSearchServer = (*GRPCServer)(nil)

func NewGRPCServer(store *RunStore, executor *RunExecutor) *GRPCServer {
	return &GRPCServer{store: store, Executor: executor}
}

func stringField(req *structpb.Struct, name string) string {
	if req == nil {
		return ""
	}
	return req.GetFields()[name].GetStringValue()
}

func runResponse(rec *RunRecord) (*structpb.Struct, error) {
	out, err := structpb.NewStruct(map[string]any{"run": convertRunToJSON(&rec.Run)})
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

func grpcError(err error) error {
	switch {
	case errors.Is(err, ErrRunNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, ErrRunExists):
		return status.Error(codes.AlreadyExists, err.Error())
	case errors.Is(err, ErrRunTerminal):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, ErrRunIDMissing), errors.Is(err, ErrInvalidInput):
		return status.Error(codes.InvalidArgument, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// CreateRun takes run_id, problem_yaml, config_yaml, callback_url,
// callback_secret and start.
func (s *GRPCServer) CreateRun(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	input := &RunInput{
		ProblemYAML:    stringField(req, "problem_yaml"),
		ConfigYAML:     stringField(req, "config_yaml"),
		CallbackURL:    stringField(req, "callback_url"),
		CallbackSecret: stringField(req, "callback_secret"),
	}
	if err := s.Executor.Validate(input); err != nil {
		return nil, grpcError(err)
	}
	rec, err := s.store.Create(stringField(req, "run_id"), input)
	if err != nil {
		return nil, grpcError(err)
	}
	logger.Info("run created (gRPC)", "run_id", rec.Run.ID)

	if req.GetFields()["start"].GetBoolValue() {
		if rec, err = s.Executor.Start(rec.Run.ID); err != nil {
			return nil, grpcError(err)
		}
	}
	return runResponse(rec)
}

func (s *GRPCServer) StartRun(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	runID := stringField(req, "run_id")
	if runID == "" {
		return nil, status.Error(codes.InvalidArgument, "run_id is required")
	}
	rec, err := s.Executor.Start(runID)
	if err != nil {
		return nil, grpcError(err)
	}
	logger.Info("run started (gRPC)", "run_id", runID)
	return runResponse(rec)
}

func (s *GRPCServer) GetRun(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	runID := stringField(req, "run_id")
	if runID == "" {
		return nil, status.Error(codes.InvalidArgument, "run_id is required")
	}
	rec, ok := s.store.Get(runID)
	if !ok {
		return nil, status.Error(codes.NotFound, "run not found")
	}
	return runResponse(rec)
}

func (s *GRPCServer) StopRun(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	runID := stringField(req, "run_id")
	if runID == "" {
		return nil, status.Error(codes.InvalidArgument, "run_id is required")
	}
	rec, err := s.Executor.Stop(runID)
	if err != nil {
		return nil, grpcError(err)
	}
	return runResponse(rec)
}

// ListRuns takes optional limit, offset and status.
func (s *GRPCServer) ListRuns(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	fields := req.GetFields()
	limit := int(fields["limit"].GetNumberValue())
	offset := max(int(fields["offset"].GetNumberValue()), 0)
	recs := s.store.List(limit, offset, runStatus(stringField(req, "status")))

	runs := make([]any, 0, len(recs))
	for _, rec := range recs {
		runs = append(runs, convertRunToJSON(&rec.Run))
	}
	out, err := structpb.NewStruct(map[string]any{"runs": runs})
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}
