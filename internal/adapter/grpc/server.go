package grpc

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/simaogato/transfer-engine/internal/domain"
	"github.com/simaogato/transfer-engine/internal/usecase/account"
	"github.com/simaogato/transfer-engine/internal/usecase/transfer"
)

// Server implements the AccountService gRPC server
type Server struct {
	TransferService *transfer.TransferService
	AccountService  *account.AccountService
}

// NewServer creates a new gRPC server instance
func NewServer(
	transferService *transfer.TransferService,
	accountService *account.AccountService,
) *Server {
	return &Server{
		TransferService: transferService,
		AccountService:  accountService,
	}
}

// Transfer handles the Transfer RPC
func (s *Server) Transfer(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error) {
	fromID, err := uuidField(req, "fromAccountId")
	if err != nil {
		return nil, err
	}
	toID, err := uuidField(req, "toAccountId")
	if err != nil {
		return nil, err
	}
	amount, err := decimalField(req, "amount")
	if err != nil {
		return nil, err
	}

	err = s.TransferService.Transfer(ctx, transfer.TransferInput{
		FromAccountID: fromID,
		ToAccountID:   toID,
		Amount:        amount,
	})
	if err != nil {
		return nil, mapError(err)
	}

	return &emptypb.Empty{}, nil
}

// GetAccount handles the GetAccount RPC
func (s *Server) GetAccount(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	id, err := uuid.Parse(req.GetValue())
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid account id format: %v", err)
	}

	acc, err := s.AccountService.Get(ctx, id)
	if err != nil {
		return nil, mapError(err)
	}

	return accountToProto(acc)
}

// ListAccounts handles the ListAccounts RPC
func (s *Server) ListAccounts(ctx context.Context, _ *emptypb.Empty) (*structpb.ListValue, error) {
	accounts, err := s.AccountService.List(ctx)
	if err != nil {
		return nil, mapError(err)
	}

	values := make([]*structpb.Value, 0, len(accounts))
	for _, acc := range accounts {
		st, err := accountToProto(acc)
		if err != nil {
			return nil, err
		}
		values = append(values, structpb.NewStructValue(st))
	}

	return &structpb.ListValue{Values: values}, nil
}

// OpenAccount handles the OpenAccount RPC
func (s *Server) OpenAccount(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	balance, err := decimalField(req, "balance")
	if err != nil {
		return nil, err
	}

	acc, err := s.AccountService.Open(ctx, balance)
	if err != nil {
		return nil, mapError(err)
	}

	return accountToProto(acc)
}

// accountToProto converts a domain account to {id, balance}
func accountToProto(acc *domain.Account) (*structpb.Struct, error) {
	st, err := structpb.NewStruct(map[string]any{
		"id":      acc.ID.String(),
		"balance": acc.Balance.String(),
	})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to encode account: %v", err)
	}
	return st, nil
}

func uuidField(req *structpb.Struct, name string) (uuid.UUID, error) {
	raw := req.GetFields()[name].GetStringValue()
	if raw == "" {
		return uuid.Nil, status.Errorf(codes.InvalidArgument, "%s is required", name)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, status.Errorf(codes.InvalidArgument, "invalid %s format: %v", name, err)
	}
	return id, nil
}

// decimalField accepts the amount as a decimal string or, for convenience, a JSON number
func decimalField(req *structpb.Struct, name string) (decimal.Decimal, error) {
	v, ok := req.GetFields()[name]
	if !ok {
		return decimal.Zero, status.Errorf(codes.InvalidArgument, "%s is required", name)
	}

	switch kind := v.GetKind().(type) {
	case *structpb.Value_StringValue:
		d, err := decimal.NewFromString(kind.StringValue)
		if err != nil {
			return decimal.Zero, status.Errorf(codes.InvalidArgument, "invalid %s format: %v", name, err)
		}
		if err := domain.ValidatePrecision(d); err != nil {
			return decimal.Zero, status.Errorf(codes.InvalidArgument, "invalid %s: %v", name, err)
		}
		return d, nil
	case *structpb.Value_NumberValue:
		if math.IsNaN(kind.NumberValue) || math.IsInf(kind.NumberValue, 0) {
			return decimal.Zero, status.Errorf(codes.InvalidArgument, "%s must be a finite number", name)
		}
		d := decimal.NewFromFloat(kind.NumberValue)
		if err := domain.ValidatePrecision(d); err != nil {
			return decimal.Zero, status.Errorf(codes.InvalidArgument, "invalid %s: %v", name, err)
		}
		return d, nil
	default:
		return decimal.Zero, status.Errorf(codes.InvalidArgument, "%s must be a decimal string", name)
	}
}

// NewTransferRequest builds the Transfer RPC message
func NewTransferRequest(fromID, toID uuid.UUID, amount decimal.Decimal) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"fromAccountId": fromID.String(),
		"toAccountId":   toID.String(),
		"amount":        amount.String(),
	})
}

// AccountFromProto decodes an {id, balance} message
func AccountFromProto(st *structpb.Struct) (*domain.Account, error) {
	id, err := uuid.Parse(st.GetFields()["id"].GetStringValue())
	if err != nil {
		return nil, fmt.Errorf("invalid account id: %w", err)
	}
	balance, err := decimal.NewFromString(st.GetFields()["balance"].GetStringValue())
	if err != nil {
		return nil, fmt.Errorf("invalid account balance: %w", err)
	}
	return &domain.Account{ID: id, Balance: balance}, nil
}

// mapError converts domain errors to gRPC status errors
func mapError(err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, domain.ErrInvalidAmount), errors.Is(err, domain.ErrNegativeBalance):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, domain.ErrAccountNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, domain.ErrInsufficientFunds):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, domain.ErrOverloaded):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	}

	// Storage faults stay in the server log
	return &internalError{cause: err}
}
