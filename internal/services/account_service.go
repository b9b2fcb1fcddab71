package services

import (
	"context"

	"github.com/shopspring/decimal"

	"letmaster-backend/internal/apperr"
	"letmaster-backend/internal/models"
)

type accountStore interface {
	Get(ctx context.Context, id int) (*models.TenantUnit, error)
	Create(ctx context.Context, req *models.CreateTenantUnitRequest) (*models.TenantUnit, error)
	Deactivate(ctx context.Context, id int) error
	ListActive(ctx context.Context) ([]*models.TenantUnit, error)
	PostTransaction(ctx context.Context, req *models.PostTransactionRequest) (decimal.Decimal, error)
	Transactions(ctx context.Context, tenantUnitID, limit int) ([]*models.TenantUnitTransaction, error)
}

// AccountService covers tenancy lifecycle and manual ledger postings.
type AccountService struct {
	accounts accountStore
}

func NewAccountService(accounts accountStore) *AccountService {
	return &AccountService{accounts: accounts}
}

func (s *AccountService) Get(ctx context.Context, id int) (*models.TenantUnit, error) {
	return s.accounts.Get(ctx, id)
}

func (s *AccountService) List(ctx context.Context) ([]*models.TenantUnit, error) {
	return s.accounts.ListActive(ctx)
}

func (s *AccountService) Create(ctx context.Context, req *models.CreateTenantUnitRequest) (*models.TenantUnit, error) {
	if req.UnitID <= 0 || req.TenantID <= 0 {
		return nil, apperr.Validationf("unit_id and tenant_id are required")
	}
	if req.AgreedRate.LessThanOrEqual(decimal.Zero) {
		return nil, apperr.Validationf("agreed_rate must be positive")
	}
	return s.accounts.Create(ctx, req)
}

func (s *AccountService) Deactivate(ctx context.Context, id int) error {
	return s.accounts.Deactivate(ctx, id)
}

// PostTransaction applies a manual ledger entry and returns the new balance.
func (s *AccountService) PostTransaction(ctx context.Context, req *models.PostTransactionRequest) (decimal.Decimal, error) {
	if req.TransactionType != models.TxnTypeDebit && req.TransactionType != models.TxnTypeCredit {
		return decimal.Zero, apperr.Validationf("transaction_type must be %q or %q", models.TxnTypeDebit, models.TxnTypeCredit)
	}
	if req.Amount.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, apperr.Validationf("amount must be positive")
	}
	if req.TransactionMode == "" {
		req.TransactionMode = models.TxnModeManual
	}
	return s.accounts.PostTransaction(ctx, req)
}

// Statement returns recent ledger entries for an account, newest first.
func (s *AccountService) Statement(ctx context.Context, id, limit int) ([]*models.TenantUnitTransaction, error) {
	if _, err := s.accounts.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.accounts.Transactions(ctx, id, limit)
}
