package grpc

import (
	"context"
	"errors"
	"math"
	"net"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/simaogato/transfer-engine/internal/adapter/repository/memory"
	"github.com/simaogato/transfer-engine/internal/domain"
	"github.com/simaogato/transfer-engine/internal/usecase/account"
	"github.com/simaogato/transfer-engine/internal/usecase/transfer"
)

// setupServer serves the AccountService over an in-memory listener backed by the memory store
func setupServer(t *testing.T) (AccountServiceClient, domain.AccountRepository) {
	t.Helper()
	logger := zaptest.NewLogger(t)
	repo := memory.NewAccountRepository()

	transferService, err := transfer.NewTransferService(repo, transfer.DefaultRetryPolicy(), logger)
	require.NoError(t, err)

	grpcServer := grpc.NewServer(grpc.ChainUnaryInterceptor(UnaryInterceptors(logger)...))
	RegisterAccountServiceServer(grpcServer, NewServer(transferService, account.NewAccountService(repo)))

	lis := bufconn.Listen(1024 * 1024)
	go func() {
		_ = grpcServer.Serve(lis)
	}()
	t.Cleanup(grpcServer.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return NewAccountServiceClient(conn), repo
}

func seed(t *testing.T, repo domain.AccountRepository, balance int64) uuid.UUID {
	t.Helper()
	acc := domain.NewAccount(decimal.NewFromInt(balance))
	require.NoError(t, repo.Create(context.Background(), acc))
	return acc.ID
}

func TestServer_Transfer(t *testing.T) {
	ctx := context.Background()
	client, repo := setupServer(t)
	a := seed(t, repo, 100)
	b := seed(t, repo, 200)

	req, err := NewTransferRequest(a, b, decimal.NewFromInt(50))
	require.NoError(t, err)

	_, err = client.Transfer(ctx, req)
	require.NoError(t, err)

	st, err := client.GetAccount(ctx, wrapperspb.String(a.String()))
	require.NoError(t, err)
	acc, err := AccountFromProto(st)
	require.NoError(t, err)
	assert.True(t, acc.Balance.Equal(decimal.NewFromInt(50)))

	st, err = client.GetAccount(ctx, wrapperspb.String(b.String()))
	require.NoError(t, err)
	acc, err = AccountFromProto(st)
	require.NoError(t, err)
	assert.True(t, acc.Balance.Equal(decimal.NewFromInt(250)))
}

func TestServer_Transfer_Errors(t *testing.T) {
	ctx := context.Background()
	client, repo := setupServer(t)
	a := seed(t, repo, 10)
	b := seed(t, repo, 0)

	mustStruct := func(fields map[string]any) *structpb.Struct {
		st, err := structpb.NewStruct(fields)
		require.NoError(t, err)
		return st
	}

	tests := []struct {
		name string
		req  *structpb.Struct
		code codes.Code
	}{
		{
			name: "insufficient funds",
			req:  mustStruct(map[string]any{"fromAccountId": a.String(), "toAccountId": b.String(), "amount": "20"}),
			code: codes.FailedPrecondition,
		},
		{
			name: "zero amount",
			req:  mustStruct(map[string]any{"fromAccountId": a.String(), "toAccountId": b.String(), "amount": "0"}),
			code: codes.InvalidArgument,
		},
		{
			name: "same account",
			req:  mustStruct(map[string]any{"fromAccountId": a.String(), "toAccountId": a.String(), "amount": "1"}),
			code: codes.InvalidArgument,
		},
		{
			name: "unknown source",
			req:  mustStruct(map[string]any{"fromAccountId": uuid.NewString(), "toAccountId": b.String(), "amount": "1"}),
			code: codes.NotFound,
		},
		{
			name: "missing amount",
			req:  mustStruct(map[string]any{"fromAccountId": a.String(), "toAccountId": b.String()}),
			code: codes.InvalidArgument,
		},
		{
			name: "malformed amount",
			req:  mustStruct(map[string]any{"fromAccountId": a.String(), "toAccountId": b.String(), "amount": "ten"}),
			code: codes.InvalidArgument,
		},
		{
			name: "malformed id",
			req:  mustStruct(map[string]any{"fromAccountId": "abc", "toAccountId": b.String(), "amount": "1"}),
			code: codes.InvalidArgument,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := client.Transfer(ctx, tt.req)
			assert.Equal(t, tt.code, status.Code(err))
		})
	}

	// Nothing moved
	st, err := client.GetAccount(ctx, wrapperspb.String(a.String()))
	require.NoError(t, err)
	acc, err := AccountFromProto(st)
	require.NoError(t, err)
	assert.True(t, acc.Balance.Equal(decimal.NewFromInt(10)))
}

func TestServer_Transfer_NumericAmount(t *testing.T) {
	ctx := context.Background()
	client, repo := setupServer(t)
	a := seed(t, repo, 10)
	b := seed(t, repo, 0)

	req, err := structpb.NewStruct(map[string]any{"fromAccountId": a.String(), "toAccountId": b.String(), "amount": 2.5})
	require.NoError(t, err)

	_, err = client.Transfer(ctx, req)
	require.NoError(t, err)

	got, err := repo.GetByID(ctx, b)
	require.NoError(t, err)
	assert.True(t, got.Balance.Equal(decimal.RequireFromString("2.5")))
}

func TestServer_GetAccount_Errors(t *testing.T) {
	ctx := context.Background()
	client, _ := setupServer(t)

	_, err := client.GetAccount(ctx, wrapperspb.String("not-a-uuid"))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = client.GetAccount(ctx, wrapperspb.String(uuid.NewString()))
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestServer_OpenAndListAccounts(t *testing.T) {
	ctx := context.Background()
	client, _ := setupServer(t)

	for _, balance := range []string{"10", "20.5"} {
		req, err := structpb.NewStruct(map[string]any{"balance": balance})
		require.NoError(t, err)
		st, err := client.OpenAccount(ctx, req)
		require.NoError(t, err)
		acc, err := AccountFromProto(st)
		require.NoError(t, err)
		assert.True(t, acc.Balance.Equal(decimal.RequireFromString(balance)))
	}

	list, err := client.ListAccounts(ctx, &emptypb.Empty{})
	require.NoError(t, err)
	require.Len(t, list.GetValues(), 2)

	total := decimal.Zero
	for _, v := range list.GetValues() {
		acc, err := AccountFromProto(v.GetStructValue())
		require.NoError(t, err)
		total = total.Add(acc.Balance)
	}
	assert.True(t, total.Equal(decimal.RequireFromString("30.5")))

	req, err := structpb.NewStruct(map[string]any{"balance": "-1"})
	require.NoError(t, err)
	_, err = client.OpenAccount(ctx, req)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code codes.Code
	}{
		{name: "nil", err: nil, code: codes.OK},
		{name: "invalid amount", err: domain.ErrInvalidAmount, code: codes.InvalidArgument},
		{name: "not found", err: domain.NewAccountNotFoundError(uuid.New()), code: codes.NotFound},
		{name: "insufficient funds", err: domain.ErrInsufficientFunds, code: codes.FailedPrecondition},
		{name: "overloaded", err: domain.ErrOverloaded, code: codes.Unavailable},
		{name: "canceled", err: context.Canceled, code: codes.Canceled},
		{name: "deadline", err: context.DeadlineExceeded, code: codes.DeadlineExceeded},
		{name: "unknown", err: assert.AnError, code: codes.Internal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, status.Code(mapError(tt.err)))
		})
	}
}

func TestMapError_HidesStorageDetail(t *testing.T) {
	cause := errors.New("failed to load account: pq: connection refused")

	err := mapError(cause)

	st := status.Convert(err)
	assert.Equal(t, codes.Internal, st.Code())
	assert.Equal(t, "internal error", st.Message())
	assert.ErrorIs(t, err, cause)
}

func TestServer_RejectsNonFiniteAmounts(t *testing.T) {
	ctx := context.Background()
	client, repo := setupServer(t)
	a := seed(t, repo, 100)
	b := seed(t, repo, 200)

	for name, value := range map[string]float64{
		"NaN":  math.NaN(),
		"+Inf": math.Inf(1),
		"-Inf": math.Inf(-1),
	} {
		t.Run(name, func(t *testing.T) {
			req := &structpb.Struct{Fields: map[string]*structpb.Value{
				"fromAccountId": structpb.NewStringValue(a.String()),
				"toAccountId":   structpb.NewStringValue(b.String()),
				"amount":        structpb.NewNumberValue(value),
			}}
			_, err := client.Transfer(ctx, req)
			assert.Equal(t, codes.InvalidArgument, status.Code(err))

			open := &structpb.Struct{Fields: map[string]*structpb.Value{
				"balance": structpb.NewNumberValue(value),
			}}
			_, err = client.OpenAccount(ctx, open)
			assert.Equal(t, codes.InvalidArgument, status.Code(err))
		})
	}

	accounts, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, accounts, 2)
}

func TestServer_RejectsOutOfRangeAmounts(t *testing.T) {
	ctx := context.Background()
	client, repo := setupServer(t)
	a := seed(t, repo, 100)
	b := seed(t, repo, 200)

	for _, amount := range []string{"1e400000000", "1e-400000000", "0.0000000000000000001"} {
		t.Run(amount, func(t *testing.T) {
			req, err := structpb.NewStruct(map[string]any{
				"fromAccountId": a.String(),
				"toAccountId":   b.String(),
				"amount":        amount,
			})
			require.NoError(t, err)

			_, err = client.Transfer(ctx, req)
			assert.Equal(t, codes.InvalidArgument, status.Code(err))
		})
	}

	got, err := repo.GetByID(ctx, a)
	require.NoError(t, err)
	assert.True(t, got.Balance.Equal(decimal.NewFromInt(100)))
}

func TestDecimalField_NumberValues(t *testing.T) {
	req := &structpb.Struct{Fields: map[string]*structpb.Value{
		"amount": structpb.NewNumberValue(12.5),
		"nan":    structpb.NewNumberValue(math.NaN()),
	}}

	d, err := decimalField(req, "amount")
	require.NoError(t, err)
	assert.True(t, d.Equal(decimal.RequireFromString("12.5")))

	assert.NotPanics(t, func() {
		_, err = decimalField(req, "nan")
	})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}
