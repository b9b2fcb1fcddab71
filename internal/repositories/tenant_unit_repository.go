package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"letmaster-backend/internal/apperr"
	"letmaster-backend/internal/models"
)

type TenantUnitRepository struct {
	DB *pgxpool.Pool
}

func NewTenantUnitRepository(db *pgxpool.Pool) *TenantUnitRepository {
	return &TenantUnitRepository{DB: db}
}

func (r *TenantUnitRepository) Get(ctx context.Context, id int) (*models.TenantUnit, error) {
	row := r.DB.QueryRow(ctx,
		`SELECT id, unit_id, tenant_id, agreed_rate, current_balance, start_date, is_active, created_at, updated_at
         FROM tenant_units WHERE id=$1`, id)

	var tu models.TenantUnit
	err := row.Scan(&tu.ID, &tu.UnitID, &tu.TenantID, &tu.AgreedRate, &tu.CurrentBalance,
		&tu.StartDate, &tu.IsActive, &tu.CreatedAt, &tu.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFoundf("tenant unit %d not found", id)
	}
	if err != nil {
		return nil, err
	}
	return &tu, nil
}

// Create opens a ledger account for a tenant on a unit and marks the unit
// occupied in the same transaction.
func (r *TenantUnitRepository) Create(ctx context.Context, req *models.CreateTenantUnitRequest) (*models.TenantUnit, error) {
	tx, err := r.DB.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var occupied bool
	err = tx.QueryRow(ctx,
		`SELECT is_occupied FROM units WHERE id=$1 AND is_active=TRUE`, req.UnitID).Scan(&occupied)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFoundf("unit %d not found", req.UnitID)
	}
	if err != nil {
		return nil, err
	}
	if occupied {
		return nil, apperr.Validationf("unit %d is already occupied", req.UnitID)
	}

	tu := &models.TenantUnit{
		UnitID:     req.UnitID,
		TenantID:   req.TenantID,
		AgreedRate: req.AgreedRate,
		IsActive:   true,
	}
	err = tx.QueryRow(ctx,
		`INSERT INTO tenant_units(unit_id, tenant_id, agreed_rate, current_balance, start_date)
         VALUES($1, $2, $3, 0, COALESCE($4, now()))
         RETURNING id, current_balance, start_date, created_at`,
		req.UnitID, req.TenantID, req.AgreedRate, req.StartDate,
	).Scan(&tu.ID, &tu.CurrentBalance, &tu.StartDate, &tu.CreatedAt)
	if err != nil {
		return nil, err
	}

	_, err = tx.Exec(ctx, `UPDATE units SET is_occupied=TRUE WHERE id=$1`, req.UnitID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return tu, nil
}

// Deactivate closes the account and releases the unit.
func (r *TenantUnitRepository) Deactivate(ctx context.Context, id int) error {
	tx, err := r.DB.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var unitID int
	err = tx.QueryRow(ctx,
		`UPDATE tenant_units SET is_active=FALSE, updated_at=now()
         WHERE id=$1 AND is_active=TRUE RETURNING unit_id`, id).Scan(&unitID)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFoundf("tenant unit %d not found or already inactive", id)
	}
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `UPDATE units SET is_occupied=FALSE WHERE id=$1`, unitID)
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *TenantUnitRepository) ListActive(ctx context.Context) ([]*models.TenantUnit, error) {
	rows, err := r.DB.Query(ctx,
		`SELECT id, unit_id, tenant_id, agreed_rate, current_balance, start_date, is_active, created_at, updated_at
         FROM tenant_units WHERE is_active=TRUE ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []*models.TenantUnit
	for rows.Next() {
		var tu models.TenantUnit
		err := rows.Scan(&tu.ID, &tu.UnitID, &tu.TenantID, &tu.AgreedRate, &tu.CurrentBalance,
			&tu.StartDate, &tu.IsActive, &tu.CreatedAt, &tu.UpdatedAt)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, &tu)
	}
	return accounts, rows.Err()
}

// PostTransaction writes one ledger entry and moves the account balance in a
// single transaction. The account row is locked so concurrent postings
// serialize on the balance.
func (r *TenantUnitRepository) PostTransaction(ctx context.Context, req *models.PostTransactionRequest) (decimal.Decimal, error) {
	tx, err := r.DB.Begin(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	defer tx.Rollback(ctx)

	balance, err := postTransactionTx(ctx, tx, req)
	if err != nil {
		return decimal.Zero, err
	}
	if err := tx.Commit(ctx); err != nil {
		return decimal.Zero, err
	}
	return balance, nil
}

// postTransactionTx is shared between single postings, billing and payment
// resolution so they all move balances the same way.
func postTransactionTx(ctx context.Context, tx pgx.Tx, req *models.PostTransactionRequest) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := tx.QueryRow(ctx,
		`SELECT current_balance FROM tenant_units WHERE id=$1 AND is_active=TRUE FOR UPDATE`,
		req.TenantUnitID).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, apperr.NotFoundf("tenant unit %d not found", req.TenantUnitID)
	}
	if err != nil {
		return decimal.Zero, err
	}

	switch req.TransactionType {
	case models.TxnTypeDebit:
		balance = balance.Add(req.Amount)
	case models.TxnTypeCredit:
		balance = balance.Sub(req.Amount)
	default:
		return decimal.Zero, apperr.Validationf("unknown transaction type %q", req.TransactionType)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO tenant_unit_transactions(tenant_unit_id, transaction_type, amount, description,
             transaction_mode, transaction_ref, created_by)
         VALUES($1, $2, $3, $4, $5, $6, $7)`,
		req.TenantUnitID, req.TransactionType, req.Amount, req.Description,
		req.TransactionMode, req.TransactionRef, req.CreatedBy)
	if err != nil {
		return decimal.Zero, err
	}

	_, err = tx.Exec(ctx,
		`UPDATE tenant_units SET current_balance=$1, updated_at=now() WHERE id=$2`,
		balance, req.TenantUnitID)
	if err != nil {
		return decimal.Zero, err
	}
	return balance, nil
}

// BillActiveAccounts debits every active account by its agreed rate. All
// accounts bill in one transaction: either the whole month posts or none of
// it does. Returns the billed account count.
func (r *TenantUnitRepository) BillActiveAccounts(ctx context.Context, period time.Time, createdBy string) (int, error) {
	tx, err := r.DB.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx,
		`SELECT id, agreed_rate FROM tenant_units WHERE is_active=TRUE ORDER BY id FOR UPDATE`)
	if err != nil {
		return 0, err
	}
	type billRow struct {
		id   int
		rate decimal.Decimal
	}
	var bills []billRow
	for rows.Next() {
		var b billRow
		if err := rows.Scan(&b.id, &b.rate); err != nil {
			rows.Close()
			return 0, err
		}
		bills = append(bills, b)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	desc := fmt.Sprintf("BILL %d-%02d", period.Year(), int(period.Month()))
	for _, b := range bills {
		ref := fmt.Sprintf("D%d-%d%02d", b.id, period.Year(), int(period.Month()))
		_, err = tx.Exec(ctx,
			`INSERT INTO tenant_unit_transactions(tenant_unit_id, transaction_type, amount, description,
                 transaction_mode, transaction_ref, created_by)
             VALUES($1, 'D', $2, $3, $4, $5, $6)`,
			b.id, b.rate, desc, models.TxnModeSystem, ref, createdBy)
		if err != nil {
			return 0, err
		}
		_, err = tx.Exec(ctx,
			`UPDATE tenant_units SET current_balance=current_balance+$1, updated_at=now() WHERE id=$2`,
			b.rate, b.id)
		if err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return len(bills), nil
}

func (r *TenantUnitRepository) Transactions(ctx context.Context, tenantUnitID, limit int) ([]*models.TenantUnitTransaction, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.DB.Query(ctx,
		`SELECT id, tenant_unit_id, transaction_type, amount, COALESCE(description, ''),
                transaction_date, COALESCE(transaction_mode, ''), COALESCE(transaction_ref, ''),
                COALESCE(created_by, ''), created_at
         FROM tenant_unit_transactions
         WHERE tenant_unit_id=$1 AND is_active=TRUE
         ORDER BY created_at DESC LIMIT $2`, tenantUnitID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txns []*models.TenantUnitTransaction
	for rows.Next() {
		var t models.TenantUnitTransaction
		err := rows.Scan(&t.ID, &t.TenantUnitID, &t.TransactionType, &t.Amount, &t.Description,
			&t.TransactionDate, &t.TransactionMode, &t.TransactionRef, &t.CreatedBy, &t.CreatedAt)
		if err != nil {
			return nil, err
		}
		txns = append(txns, &t)
	}
	return txns, rows.Err()
}

// GetContact resolves the tenant's name and reachable addresses for an
// account, used when sending receipts and reminders.
func (r *TenantUnitRepository) GetContact(ctx context.Context, tenantUnitID int) (*models.AccountContact, error) {
	row := r.DB.QueryRow(ctx,
		`SELECT t.name, COALESCE(t.phone_number, ''), COALESCE(t.mobile_number, ''), COALESCE(t.email, ''),
                p.name, u.name
         FROM tenant_units tu
         JOIN tenants t ON t.id = tu.tenant_id
         JOIN units u ON u.id = tu.unit_id
         JOIN properties p ON p.id = u.property_id
         WHERE tu.id=$1`, tenantUnitID)

	var c models.AccountContact
	err := row.Scan(&c.TenantName, &c.PhoneNumber, &c.MobileNumber, &c.Email, &c.PropertyName, &c.UnitName)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFoundf("tenant unit %d not found", tenantUnitID)
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ListArrears returns tenants whose accounts owe more than one period's
// agreed rate, grouped per tenant so one reminder can cover all their units.
// A balance at or below the agreed rate is the normal state right after
// billing and is not arrears.
func (r *TenantUnitRepository) ListArrears(ctx context.Context) ([]*models.ArrearsTenant, error) {
	rows, err := r.DB.Query(ctx,
		`SELECT tu.tenant_id, t.name, COALESCE(t.phone_number, ''), COALESCE(t.mobile_number, ''),
                COALESCE(t.email, ''), tu.current_balance, p.name, u.name
         FROM tenant_units tu
         JOIN tenants t ON t.id = tu.tenant_id
         JOIN units u ON u.id = tu.unit_id
         JOIN properties p ON p.id = u.property_id
         WHERE tu.is_active=TRUE AND tu.current_balance > tu.agreed_rate
         ORDER BY tu.tenant_id, tu.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.ArrearsTenant
	var cur *models.ArrearsTenant
	for rows.Next() {
		var (
			tenant models.Tenant
			acc    models.ArrearsAccount
		)
		err := rows.Scan(&tenant.ID, &tenant.Name, &tenant.PhoneNumber, &tenant.MobileNumber,
			&tenant.Email, &acc.CurrentBalance, &acc.PropertyName, &acc.UnitName)
		if err != nil {
			return nil, err
		}
		if cur == nil || cur.Tenant.ID != tenant.ID {
			cur = &models.ArrearsTenant{Tenant: tenant}
			out = append(out, cur)
		}
		cur.Accounts = append(cur.Accounts, acc)
	}
	return out, rows.Err()
}
