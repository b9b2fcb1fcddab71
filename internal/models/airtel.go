package models

import "github.com/shopspring/decimal"

// Wire types for the Airtel Money open API. Field names follow the
// provider's JSON contract, not Go conventions.

// OAuthRequest is the client-credentials grant body.
type OAuthRequest struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	GrantType    string `json:"grant_type"`
}

// OAuthResponse is the token endpoint response.
type OAuthResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

// Subscriber identifies the wallet being debited.
type Subscriber struct {
	Country  string `json:"country,omitempty"`
	Currency string `json:"currency,omitempty"`
	Msisdn   string `json:"msisdn"`
}

// GatewayTransaction is the provider's transaction object, reused across the
// collection request, the status enquiry response and the callback.
type GatewayTransaction struct {
	Amount        decimal.Decimal `json:"amount,omitempty"`
	Country       string          `json:"country,omitempty"`
	Currency      string          `json:"currency,omitempty"`
	ID            string          `json:"id,omitempty"`
	Message       string          `json:"message,omitempty"`
	StatusCode    string          `json:"status_code,omitempty"`
	AirtelMoneyID string          `json:"airtel_money_id,omitempty"`
}

// CollectionRequest is the USSD push payload. transaction.id carries our
// ClientDebitRequest id as the provider-side idempotency token.
type CollectionRequest struct {
	Reference   string              `json:"reference"`
	Subscriber  Subscriber          `json:"subscriber"`
	Transaction *GatewayTransaction `json:"transaction"`
}

// CollectionResponse covers both the immediate collection ack and the
// transaction status enquiry response.
type CollectionResponse struct {
	Data   *CollectionData `json:"data,omitempty"`
	Status *GatewayStatus  `json:"status,omitempty"`
}

type CollectionData struct {
	Transaction *GatewayTransaction `json:"transaction,omitempty"`
}

type GatewayStatus struct {
	Code         string `json:"code,omitempty"`
	Message      string `json:"message,omitempty"`
	ResultCode   string `json:"result_code,omitempty"`
	ResponseCode string `json:"response_code,omitempty"`
	Success      *bool  `json:"success,omitempty"`
}

// Succeeded reports whether the enquiry found a terminal, successfully
// queried transaction (the transaction itself may still be failed; the
// embedded status_code decides).
func (r *CollectionResponse) Succeeded() bool {
	return r.Status != nil && r.Status.Success != nil && *r.Status.Success
}

// CallbackRequest is what the gateway POSTs to /payments/callback.
type CallbackRequest struct {
	Transaction *GatewayTransaction `json:"transaction"`
}

// CallbackResponse is the acknowledgement returned to the gateway. The
// transport response is always HTTP 200; status_code carries the business
// outcome so the gateway does not retry endlessly on our bugs.
type CallbackResponse struct {
	StatusCode string `json:"status_code"`
	Message    string `json:"message"`
}
