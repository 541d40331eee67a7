package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Full method names of transfer.v1.AccountService
const (
	ServiceName                = "transfer.v1.AccountService"
	TransferFullMethodName     = "/transfer.v1.AccountService/Transfer"
	GetAccountFullMethodName   = "/transfer.v1.AccountService/GetAccount"
	ListAccountsFullMethodName = "/transfer.v1.AccountService/ListAccounts"
	OpenAccountFullMethodName  = "/transfer.v1.AccountService/OpenAccount"
)

// AccountServiceServer is the server API for transfer.v1.AccountService.
// Messages are protobuf well-known types; amounts travel as decimal strings.
type AccountServiceServer interface {
	// Transfer expects fields fromAccountId, toAccountId and amount
	Transfer(context.Context, *structpb.Struct) (*emptypb.Empty, error)
	// GetAccount takes the account id and returns {id, balance}
	GetAccount(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	ListAccounts(context.Context, *emptypb.Empty) (*structpb.ListValue, error)
	// OpenAccount expects field balance and returns {id, balance}
	OpenAccount(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// RegisterAccountServiceServer registers srv on s
func RegisterAccountServiceServer(s grpc.ServiceRegistrar, srv AccountServiceServer) {
	s.RegisterService(&AccountServiceDesc, srv)
}

// AccountServiceDesc describes transfer.v1.AccountService for grpc.Server
var AccountServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AccountServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Transfer", Handler: transferHandler},
		{MethodName: "GetAccount", Handler: getAccountHandler},
		{MethodName: "ListAccounts", Handler: listAccountsHandler},
		{MethodName: "OpenAccount", Handler: openAccountHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "transfer/v1/account_service.proto",
}

func transferHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AccountServiceServer).Transfer(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: TransferFullMethodName}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(AccountServiceServer).Transfer(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func getAccountHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AccountServiceServer).GetAccount(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: GetAccountFullMethodName}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(AccountServiceServer).GetAccount(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

func listAccountsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AccountServiceServer).ListAccounts(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ListAccountsFullMethodName}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(AccountServiceServer).ListAccounts(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func openAccountHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AccountServiceServer).OpenAccount(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: OpenAccountFullMethodName}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(AccountServiceServer).OpenAccount(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// AccountServiceClient is the client API for transfer.v1.AccountService
type AccountServiceClient interface {
	Transfer(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*emptypb.Empty, error)
	GetAccount(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*structpb.Struct, error)
	ListAccounts(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.ListValue, error)
	OpenAccount(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
}

type accountServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewAccountServiceClient creates a client bound to cc
func NewAccountServiceClient(cc grpc.ClientConnInterface) AccountServiceClient {
	return &accountServiceClient{cc: cc}
}

func (c *accountServiceClient) Transfer(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*emptypb.Empty, error) {
	out := new(emptypb.Empty)
	if err := c.cc.Invoke(ctx, TransferFullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *accountServiceClient) GetAccount(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, GetAccountFullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *accountServiceClient) ListAccounts(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.ListValue, error) {
	out := new(structpb.ListValue)
	if err := c.cc.Invoke(ctx, ListAccountsFullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *accountServiceClient) OpenAccount(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, OpenAccountFullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
