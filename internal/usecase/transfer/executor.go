package transfer

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/simaogato/transfer-engine/internal/domain"
	"github.com/simaogato/transfer-engine/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Executor performs one transfer attempt as a single unit of work
type Executor struct {
	AccountRepo domain.AccountRepository
}

// NewExecutor creates a new Executor instance
func NewExecutor(accountRepo domain.AccountRepository) *Executor {
	return &Executor{AccountRepo: accountRepo}
}

// Execute moves req.Amount between the two accounts or changes nothing.
// Logic:
//  1. Validate the request (no store access on failure)
//  2. Load both accounts in lock order inside one unit of work
//  3. Report a missing source before a missing destination
//  4. Withdraw, deposit and save both balances together
func (e *Executor) Execute(ctx context.Context, req domain.TransferRequest) error {
	ctx, span := telemetry.Tracer.Start(ctx, "transfer.attempt",
		trace.WithAttributes(
			attribute.String("transfer.from", req.FromAccountID.String()),
			attribute.String("transfer.to", req.ToAccountID.String()),
			attribute.String("transfer.amount", req.Amount.String()),
		),
	)
	defer span.End()

	if err := req.Validate(); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	err := e.AccountRepo.InTransaction(ctx, func(ctx context.Context, tx domain.AccountTx) error {
		return applyTransfer(ctx, tx, req)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	span.SetStatus(codes.Ok, "committed")
	return nil
}

func applyTransfer(ctx context.Context, tx domain.AccountTx, req domain.TransferRequest) error {
	first, second := req.LockOrder()

	loaded := make(map[uuid.UUID]*domain.Account, 2)
	for _, id := range []uuid.UUID{first, second} {
		acc, err := tx.GetByID(ctx, id)
		if err != nil {
			if errors.Is(err, domain.ErrAccountNotFound) {
				continue
			}
			return err
		}
		loaded[id] = acc
	}

	from, ok := loaded[req.FromAccountID]
	if !ok {
		return domain.NewAccountNotFoundError(req.FromAccountID)
	}
	to, ok := loaded[req.ToAccountID]
	if !ok {
		return domain.NewAccountNotFoundError(req.ToAccountID)
	}

	if err := from.Withdraw(req.Amount); err != nil {
		return err
	}
	if err := to.Deposit(req.Amount); err != nil {
		return err
	}

	return tx.Save(ctx, from, to)
}
