package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction types for tenant unit transactions
const (
	TxnTypeDebit  = "D" // charge, increases what the tenant owes
	TxnTypeCredit = "C" // payment, decreases what the tenant owes
)

// Transaction modes
const (
	TxnModeSystem = "SYSTEM" // posted by the billing scheduler
	TxnModeMobile = "MOBILE" // posted by a confirmed mobile money collection
	TxnModeManual = "MANUAL" // posted by a member of staff
)

// Tenant is the person renting one or more units. Tenant CRUD lives outside
// this service; we only read contact details for receipts and reminders.
type Tenant struct {
	ID           int       `json:"id"`
	Name         string    `json:"name"`
	PhoneNumber  string    `json:"phone_number,omitempty"`
	MobileNumber string    `json:"mobile_number,omitempty"`
	Email        string    `json:"email,omitempty"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
}

// TenantUnit is a ledger account: one tenant's occupancy of one unit.
// CurrentBalance is positive when the tenant owes money and is only ever
// mutated through transaction posting, never edited directly.
type TenantUnit struct {
	ID             int             `json:"id"`
	UnitID         int             `json:"unit_id"`
	TenantID       int             `json:"tenant_id"`
	AgreedRate     decimal.Decimal `json:"agreed_rate"`
	CurrentBalance decimal.Decimal `json:"current_balance"`
	StartDate      time.Time       `json:"start_date"`
	IsActive       bool            `json:"is_active"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      *time.Time      `json:"updated_at,omitempty"`
}

// TenantUnitTransaction is a ledger entry. Once posted, amount and type are
// immutable; corrections are new offsetting entries.
type TenantUnitTransaction struct {
	ID              int             `json:"id"`
	TenantUnitID    int             `json:"tenant_unit_id"`
	TransactionType string          `json:"transaction_type"`
	Amount          decimal.Decimal `json:"amount"`
	Description     string          `json:"description"`
	TransactionDate time.Time       `json:"transaction_date"`
	TransactionMode string          `json:"transaction_mode"`
	TransactionRef  string          `json:"transaction_ref"`
	IsActive        bool            `json:"is_active"`
	CreatedBy       string          `json:"created_by,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

// PostTransactionRequest is the single entry point for balance mutation.
type PostTransactionRequest struct {
	TenantUnitID    int             `json:"tenant_unit_id"`
	TransactionType string          `json:"transaction_type"`
	Amount          decimal.Decimal `json:"amount"`
	Description     string          `json:"description"`
	TransactionMode string          `json:"transaction_mode"`
	TransactionRef  string          `json:"transaction_ref"`
	CreatedBy       string          `json:"created_by"`
}

// CreateTenantUnitRequest starts a tenancy on a unit.
type CreateTenantUnitRequest struct {
	UnitID     int             `json:"unit_id"`
	TenantID   int             `json:"tenant_id"`
	AgreedRate decimal.Decimal `json:"agreed_rate"`
	StartDate  *time.Time      `json:"start_date,omitempty"`
	CreatedBy  string          `json:"created_by"`
}

// AccountContact carries what the notifier needs to address a tenant about
// one account.
type AccountContact struct {
	TenantName   string
	PhoneNumber  string
	MobileNumber string
	Email        string
	PropertyName string
	UnitName     string
}

// Label returns the account display name used in receipts, e.g. "Sunset Court (B4)".
func (c *AccountContact) Label() string {
	return c.PropertyName + " (" + c.UnitName + ")"
}

// ArrearsAccount is one account in arrears belonging to a tenant.
type ArrearsAccount struct {
	PropertyName   string
	UnitName       string
	CurrentBalance decimal.Decimal
}

// ArrearsTenant groups a tenant's accounts whose balance exceeds the agreed
// rate.
type ArrearsTenant struct {
	Tenant   Tenant
	Accounts []ArrearsAccount
}
