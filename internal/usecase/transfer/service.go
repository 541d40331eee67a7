package transfer

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/simaogato/transfer-engine/internal/domain"
	"github.com/simaogato/transfer-engine/internal/telemetry"
	"go.uber.org/zap"
)

// TransferInput represents the input for a balance transfer
type TransferInput struct {
	FromAccountID uuid.UUID
	ToAccountID   uuid.UUID
	Amount        decimal.Decimal
}

// TransferService handles balance transfers between accounts
type TransferService struct {
	Executor    *Executor
	Coordinator *Coordinator
	logger      *zap.Logger
}

// NewTransferService creates a new TransferService instance
func NewTransferService(
	accountRepo domain.AccountRepository,
	policy RetryPolicy,
	logger *zap.Logger,
) (*TransferService, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	coordinator, err := NewCoordinator(policy, logger)
	if err != nil {
		return nil, err
	}

	return &TransferService{
		Executor:    NewExecutor(accountRepo),
		Coordinator: coordinator,
		logger:      logger,
	}, nil
}

// Transfer moves input.Amount from one account to another.
// Returns nil on commit, a permanent domain error, domain.ErrOverloaded when
// conflicts outlast the retry policy, or the context error if abandoned.
func (s *TransferService) Transfer(ctx context.Context, input TransferInput) error {
	start := time.Now()

	ctx, span := telemetry.Tracer.Start(ctx, "transfer.Transfer")
	defer span.End()

	req := domain.TransferRequest{
		FromAccountID: input.FromAccountID,
		ToAccountID:   input.ToAccountID,
		Amount:        input.Amount,
	}

	log := telemetry.WithTrace(ctx, s.logger).With(
		zap.String("request_id", newRequestID()),
		zap.String("from", input.FromAccountID.String()),
		zap.String("to", input.ToAccountID.String()),
		zap.String("amount", input.Amount.String()),
	)

	err := s.Coordinator.Run(ctx, func(ctx context.Context) error {
		return s.Executor.Execute(ctx, req)
	})

	telemetry.TransferDuration.Observe(time.Since(start).Seconds())
	telemetry.TransfersTotal.WithLabelValues(resultLabel(err)).Inc()

	switch {
	case err == nil:
		log.Info("transfer committed")
	case domain.IsPermanent(err):
		log.Info("transfer rejected", zap.Error(err))
	case errors.Is(err, domain.ErrOverloaded):
		log.Warn("transfer abandoned under contention")
	default:
		log.Error("transfer failed", zap.Error(err))
	}

	return err
}

func newRequestID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// resultLabel maps an outcome to the transfers_total result label
func resultLabel(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, domain.ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, domain.ErrAccountNotFound):
		return "account_not_found"
	case errors.Is(err, domain.ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, domain.ErrOverloaded):
		return "overloaded"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "error"
	}
}
