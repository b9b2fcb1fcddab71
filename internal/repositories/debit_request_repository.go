package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"letmaster-backend/internal/apperr"
	"letmaster-backend/internal/models"
)

type DebitRequestRepository struct {
	DB *pgxpool.Pool
}

func NewDebitRequestRepository(db *pgxpool.Pool) *DebitRequestRepository {
	return &DebitRequestRepository{DB: db}
}

// Create inserts a new PENDING collection attempt. The row id is minted here
// and becomes the gateway-side transaction id.
func (r *DebitRequestRepository) Create(ctx context.Context, provider string, accountID int, amount decimal.Decimal, debitNumber, createdBy string) (*models.ClientDebitRequest, error) {
	req := &models.ClientDebitRequest{
		ID:              uuid.NewString(),
		ProviderName:    provider,
		ClientAccountID: accountID,
		Amount:          amount,
		ReferenceNo:     debitNumber,
		ReconcileStatus: models.ReconcilePending,
		CreatedBy:       createdBy,
		IsActive:        true,
	}
	err := r.DB.QueryRow(ctx,
		`INSERT INTO client_debit_requests(id, provider_name, client_account_id, amount, reference_no, reconcile_status, created_by)
         VALUES($1, $2, $3, $4, $5, 'P', $6)
         RETURNING created_at`,
		req.ID, req.ProviderName, req.ClientAccountID, req.Amount, req.ReferenceNo, req.CreatedBy,
	).Scan(&req.CreatedAt)
	if err != nil {
		return nil, err
	}
	return req, nil
}

func (r *DebitRequestRepository) GetByID(ctx context.Context, id string) (*models.ClientDebitRequest, error) {
	row := r.DB.QueryRow(ctx, `SELECT `+debitRequestColumns+` FROM client_debit_requests WHERE id=$1`, id)
	req, err := scanDebitRequest(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFoundf("debit request %s not found", id)
	}
	return req, err
}

// RecordGatewayExchange stores the raw request/response bodies of the
// collection call plus the gateway's immediate response code, without
// touching reconcile_status. Terminal resolution overwrites svc_status later.
func (r *DebitRequestRepository) RecordGatewayExchange(ctx context.Context, id, requestBody, responseBody, status string) error {
	_, err := r.DB.Exec(ctx,
		`UPDATE client_debit_requests
         SET svc_request_body=$1, svc_response_body=$2, svc_status=$3, updated_at=now()
         WHERE id=$4`,
		requestBody, responseBody, status, id)
	return err
}

// ListPending returns requests still awaiting a terminal outcome, oldest
// first, so the reconciliation sweep works through the backlog in order.
func (r *DebitRequestRepository) ListPending(ctx context.Context, olderThan time.Time) ([]*models.ClientDebitRequest, error) {
	rows, err := r.DB.Query(ctx,
		`SELECT `+debitRequestColumns+`
         FROM client_debit_requests
         WHERE reconcile_status='P' AND created_at < $1
         ORDER BY created_at`, olderThan)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectDebitRequests(rows)
}

// List returns recent requests for audit, optionally filtered by account.
func (r *DebitRequestRepository) List(ctx context.Context, accountID, limit int) ([]*models.ClientDebitRequest, error) {
	if limit <= 0 {
		limit = 100
	}
	var (
		rows pgx.Rows
		err  error
	)
	if accountID > 0 {
		rows, err = r.DB.Query(ctx,
			`SELECT `+debitRequestColumns+`
             FROM client_debit_requests WHERE client_account_id=$1
             ORDER BY created_at DESC LIMIT $2`, accountID, limit)
	} else {
		rows, err = r.DB.Query(ctx,
			`SELECT `+debitRequestColumns+`
             FROM client_debit_requests ORDER BY created_at DESC LIMIT $1`, limit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectDebitRequests(rows)
}

// Resolve applies a terminal outcome to a pending request. The status flip,
// the ledger credit and the balance move commit in one transaction, and the
// flip is guarded on reconcile_status='P' so a request resolves at most once
// no matter how many callbacks or sweep passes race for it.
//
// When the request is already terminal, only the raw callback body is saved
// (for audit) and resolved=false is returned.
func (r *DebitRequestRepository) Resolve(ctx context.Context, id string, success bool, providerRef, gatewayStatus, callbackBody string, now time.Time) (resolved bool, newBalance decimal.Decimal, txnRef string, err error) {
	tx, err := r.DB.Begin(ctx)
	if err != nil {
		return false, decimal.Zero, "", err
	}
	defer tx.Rollback(ctx)

	status := models.ReconcileFailed
	if success {
		status = models.ReconcileComplete
	}

	var (
		accountID int
		amount    decimal.Decimal
	)
	err = tx.QueryRow(ctx,
		`UPDATE client_debit_requests
         SET reconcile_status=$1, svc_reference_no=$2, svc_status=$3, svc_callback_body=$4, updated_at=now()
         WHERE id=$5 AND reconcile_status='P'
         RETURNING client_account_id, amount`,
		status, providerRef, gatewayStatus, callbackBody, id).Scan(&accountID, &amount)
	if errors.Is(err, pgx.ErrNoRows) {
		// Already terminal (or unknown id). Keep the callback body if the
		// row exists, then report no-op.
		tag, uerr := tx.Exec(ctx,
			`UPDATE client_debit_requests SET svc_callback_body=$1, updated_at=now() WHERE id=$2`,
			callbackBody, id)
		if uerr != nil {
			return false, decimal.Zero, "", uerr
		}
		if tag.RowsAffected() == 0 {
			return false, decimal.Zero, "", apperr.NotFoundf("debit request %s not found", id)
		}
		return false, decimal.Zero, "", tx.Commit(ctx)
	}
	if err != nil {
		return false, decimal.Zero, "", err
	}

	if !success {
		return true, decimal.Zero, "", tx.Commit(ctx)
	}

	txnRef = fmt.Sprintf("C%d-%d%02d(%s)", accountID, now.Year(), int(now.Month()), providerRef)
	newBalance, err = postTransactionTx(ctx, tx, &models.PostTransactionRequest{
		TenantUnitID:    accountID,
		TransactionType: models.TxnTypeCredit,
		Amount:          amount,
		Description:     "Mobile money payment",
		TransactionMode: models.TxnModeMobile,
		TransactionRef:  txnRef,
		CreatedBy:       models.TxnModeSystem,
	})
	if err != nil {
		return false, decimal.Zero, "", err
	}
	return true, newBalance, txnRef, tx.Commit(ctx)
}

const debitRequestColumns = `id, provider_name, client_account_id, amount,
    COALESCE(reference_no, ''), COALESCE(svc_request_body, ''), COALESCE(svc_response_body, ''),
    COALESCE(svc_callback_body, ''), COALESCE(svc_reference_no, ''), COALESCE(svc_status, ''),
    reconcile_status, COALESCE(created_by, ''), is_active, created_at, updated_at`

func scanDebitRequest(row pgx.Row) (*models.ClientDebitRequest, error) {
	var req models.ClientDebitRequest
	err := row.Scan(&req.ID, &req.ProviderName, &req.ClientAccountID, &req.Amount,
		&req.ReferenceNo, &req.SvcRequestBody, &req.SvcResponseBody,
		&req.SvcCallbackBody, &req.SvcReferenceNo, &req.SvcStatus,
		&req.ReconcileStatus, &req.CreatedBy, &req.IsActive, &req.CreatedAt, &req.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &req, nil
}

func collectDebitRequests(rows pgx.Rows) ([]*models.ClientDebitRequest, error) {
	var out []*models.ClientDebitRequest
	for rows.Next() {
		req, err := scanDebitRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	return out, rows.Err()
}
