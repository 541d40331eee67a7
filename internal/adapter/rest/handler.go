package rest

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/simaogato/transfer-engine/internal/domain"
	"github.com/simaogato/transfer-engine/internal/telemetry"
	"github.com/simaogato/transfer-engine/internal/usecase/account"
	"github.com/simaogato/transfer-engine/internal/usecase/transfer"
	"go.uber.org/zap"
)

// retryAfterSeconds is advertised to clients rejected with 503
const retryAfterSeconds = "1"

// TransferUseCase moves funds between accounts
type TransferUseCase interface {
	Transfer(ctx context.Context, input transfer.TransferInput) error
}

// AccountUseCase reads and provisions accounts
type AccountUseCase interface {
	Get(ctx context.Context, id uuid.UUID) (*domain.Account, error)
	List(ctx context.Context) ([]*domain.Account, error)
	Summary(ctx context.Context) (*account.Summary, error)
	Open(ctx context.Context, initialBalance decimal.Decimal) (*domain.Account, error)
}

// Handler contains all HTTP handlers
type Handler struct {
	transfers TransferUseCase
	accounts  AccountUseCase
	logger    *zap.Logger
}

// NewHandler creates a new handler
func NewHandler(transfers TransferUseCase, accounts AccountUseCase, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		transfers: transfers,
		accounts:  accounts,
		logger:    logger,
	}
}

// TransferRequest is the request body for the transfer endpoint
type TransferRequest struct {
	FromAccountID string           `json:"fromAccountId" binding:"required"`
	ToAccountID   string           `json:"toAccountId" binding:"required"`
	Amount        *decimal.Decimal `json:"amount" binding:"required"`
}

// OpenAccountRequest is the request body for the account creation endpoint
type OpenAccountRequest struct {
	Balance *decimal.Decimal `json:"balance" binding:"required"`
}

// AccountResponse is the JSON view of an account
type AccountResponse struct {
	ID      string          `json:"id"`
	Balance decimal.Decimal `json:"balance"`
}

// SummaryResponse is the response body for the summary endpoint
type SummaryResponse struct {
	TotalBalance decimal.Decimal `json:"totalBalance"`
	AccountCount int             `json:"accountCount"`
}

func toAccountResponse(acc *domain.Account) AccountResponse {
	return AccountResponse{ID: acc.ID.String(), Balance: acc.Balance}
}

// Transfer handles POST /api/accounts/transfer
func (h *Handler) Transfer(c *gin.Context) {
	var req TransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := domain.ValidatePrecision(*req.Amount); err != nil {
		h.writeError(c, err)
		return
	}

	fromID, err := uuid.Parse(req.FromAccountID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid fromAccountId"})
		return
	}
	toID, err := uuid.Parse(req.ToAccountID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid toAccountId"})
		return
	}

	err = h.transfers.Transfer(c.Request.Context(), transfer.TransferInput{
		FromAccountID: fromID,
		ToAccountID:   toID,
		Amount:        *req.Amount,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.Status(http.StatusOK)
}

// GetAccount handles GET /api/accounts/:id
func (h *Handler) GetAccount(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid account id"})
		return
	}

	acc, err := h.accounts.Get(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, toAccountResponse(acc))
}

// ListAccounts handles GET /api/accounts
func (h *Handler) ListAccounts(c *gin.Context) {
	accounts, err := h.accounts.List(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}

	resp := make([]AccountResponse, 0, len(accounts))
	for _, acc := range accounts {
		resp = append(resp, toAccountResponse(acc))
	}
	c.JSON(http.StatusOK, resp)
}

// OpenAccount handles POST /api/accounts
func (h *Handler) OpenAccount(c *gin.Context) {
	var req OpenAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := domain.ValidatePrecision(*req.Balance); err != nil {
		h.writeError(c, err)
		return
	}

	acc, err := h.accounts.Open(c.Request.Context(), *req.Balance)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, toAccountResponse(acc))
}

// Summary handles GET /api/accounts/summary
func (h *Handler) Summary(c *gin.Context) {
	summary, err := h.accounts.Summary(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, SummaryResponse{
		TotalBalance: summary.TotalBalance,
		AccountCount: summary.AccountCount,
	})
}

// Health handles GET /health
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// writeError maps a domain error onto a status code and JSON body
func (h *Handler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrInsufficientFunds),
		errors.Is(err, domain.ErrNegativeBalance):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrAccountNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrOverloaded):
		c.Header("Retry-After", retryAfterSeconds)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	default:
		telemetry.WithTrace(c.Request.Context(), h.logger).Error("request failed",
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
