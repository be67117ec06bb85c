package api

import (
	"context"
	"encoding/json"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "daytrade.v1.Backtest"

// Method names of the Backtest service.
const (
	MethodRunBacktest    = "RunBacktest"
	MethodSimulate       = "Simulate"
	MethodListStocks     = "ListStocks"
	MethodListStrategies = "ListStrategies"
	MethodDayInfo        = "DayInfo"
	MethodDaily          = "Daily"
	MethodBars           = "Bars"
	MethodAddStock       = "AddStock"
	MethodRefreshStock   = "RefreshStock"
	MethodGetRun         = "GetRun"
	MethodListRuns       = "ListRuns"
)

// FullMethod returns the "/service/method" path of a Backtest method.
func FullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

// BacktestServer is the server API of the Backtest service. Requests and
// responses are structpb.Struct documents whose fields mirror the JSON
// shapes in types.go.
type BacktestServer interface {
	RunBacktest(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Simulate(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListStocks(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListStrategies(context.Context, *structpb.Struct) (*structpb.Struct, error)
	DayInfo(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Daily(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Bars(context.Context, *structpb.Struct) (*structpb.Struct, error)
	AddStock(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RefreshStock(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetRun(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListRuns(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryMethod func(BacktestServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(name string, m unaryMethod) func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return m(srv.(BacktestServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(name)}
		return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
			return m(srv.(BacktestServer), ctx, req.(*structpb.Struct))
		})
	}
}

var backtestServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*BacktestServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: MethodRunBacktest, Handler: unaryHandler(MethodRunBacktest, BacktestServer.RunBacktest)},
		{MethodName: MethodSimulate, Handler: unaryHandler(MethodSimulate, BacktestServer.Simulate)},
		{MethodName: MethodListStocks, Handler: unaryHandler(MethodListStocks, BacktestServer.ListStocks)},
		{MethodName: MethodListStrategies, Handler: unaryHandler(MethodListStrategies, BacktestServer.ListStrategies)},
		{MethodName: MethodDayInfo, Handler: unaryHandler(MethodDayInfo, BacktestServer.DayInfo)},
		{MethodName: MethodDaily, Handler: unaryHandler(MethodDaily, BacktestServer.Daily)},
		{MethodName: MethodBars, Handler: unaryHandler(MethodBars, BacktestServer.Bars)},
		{MethodName: MethodAddStock, Handler: unaryHandler(MethodAddStock, BacktestServer.AddStock)},
		{MethodName: MethodRefreshStock, Handler: unaryHandler(MethodRefreshStock, BacktestServer.RefreshStock)},
		{MethodName: MethodGetRun, Handler: unaryHandler(MethodGetRun, BacktestServer.GetRun)},
		{MethodName: MethodListRuns, Handler: unaryHandler(MethodListRuns, BacktestServer.ListRuns)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "daytrade/v1/backtest",
}

// RegisterBacktestServer registers srv on the given gRPC server instance.
func RegisterBacktestServer(s grpc.ServiceRegistrar, srv BacktestServer) {
	s.RegisterService(&backtestServiceDesc, srv)
}

// Invoke calls method on srv in process through the same handlers a gRPC
// server uses.
func Invoke(ctx context.Context, srv BacktestServer, method string, in *structpb.Struct) (*structpb.Struct, error) {
	for _, m := range backtestServiceDesc.Methods {
		if m.MethodName != method {
			continue
		}
		dec := func(v any) error {
			proto.Merge(v.(proto.Message), in)
			return nil
		}
		out, err := m.Handler(srv, ctx, dec, nil)
		if err != nil {
			return nil, err
		}
		return out.(*structpb.Struct), nil
	}
	return nil, status.Errorf(codes.Unimplemented, "unknown method %s", method)
}

// EncodeStruct converts a JSON-serialisable value to a structpb.Struct.
func EncodeStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	s := &structpb.Struct{}
	if err := protojson.Unmarshal(data, s); err != nil {
		return nil, err
	}
	return s, nil
}

// DecodeStruct fills v from s through its JSON form. A nil s leaves v
// untouched.
func DecodeStruct(s *structpb.Struct, v any) error {
	if s == nil {
		return nil
	}
	data, err := protojson.Marshal(s)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}
