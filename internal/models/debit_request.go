package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ReconcileStatus is the persisted state of a collection attempt.
// Transitions are one-way: P -> C or P -> F, never backward.
type ReconcileStatus string

const (
	ReconcilePending  ReconcileStatus = "P"
	ReconcileComplete ReconcileStatus = "C"
	ReconcileFailed   ReconcileStatus = "F"
)

// ClientDebitRequest is one outbound mobile money collection attempt.
// The ID doubles as the gateway-side transaction id, so a callback or a
// status enquiry can always be traced back to this row. Rows are never
// hard-deleted.
type ClientDebitRequest struct {
	ID              string          `json:"id"`
	ProviderName    string          `json:"provider_name"`
	ClientAccountID int             `json:"client_account_id"`
	Amount          decimal.Decimal `json:"amount"`
	ReferenceNo     string          `json:"reference_no,omitempty"`
	SvcRequestBody  string          `json:"svc_request_body,omitempty"`
	SvcResponseBody string          `json:"svc_response_body,omitempty"`
	SvcCallbackBody string          `json:"svc_callback_body,omitempty"`
	SvcReferenceNo  string          `json:"svc_reference_no,omitempty"`
	SvcStatus       string          `json:"svc_status,omitempty"`
	ReconcileStatus ReconcileStatus `json:"reconcile_status"`
	CreatedBy       string          `json:"created_by,omitempty"`
	IsActive        bool            `json:"is_active"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       *time.Time      `json:"updated_at,omitempty"`
}

// Resolved reports whether the request has reached a terminal state.
func (r *ClientDebitRequest) Resolved() bool {
	return r.ReconcileStatus == ReconcileComplete || r.ReconcileStatus == ReconcileFailed
}

// MobileMoneyCollectRequest is the caller-facing request to pull funds from
// a tenant's mobile money wallet into their ledger account.
type MobileMoneyCollectRequest struct {
	TenantUnitID int             `json:"tenant_unit_id"`
	Amount       decimal.Decimal `json:"amount"`
	DebitNumber  string          `json:"debit_number"`
	CreatedBy    string          `json:"created_by,omitempty"`
}
