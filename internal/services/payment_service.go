package services

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/shopspring/decimal"

	"letmaster-backend/internal/apperr"
	"letmaster-backend/internal/metrics"
	"letmaster-backend/internal/models"
	"letmaster-backend/internal/sms"
)

const ProviderAirtel = "AIRTEL"

// Gateway status codes that mean the transaction is still in flight. The
// sweep leaves these alone and tries again next pass.
var inFlightCodes = map[string]bool{
	"":    true,
	"TIP": true,
	"TA":  true,
}

type debitRequestStore interface {
	Create(ctx context.Context, provider string, accountID int, amount decimal.Decimal, debitNumber, createdBy string) (*models.ClientDebitRequest, error)
	GetByID(ctx context.Context, id string) (*models.ClientDebitRequest, error)
	RecordGatewayExchange(ctx context.Context, id, requestBody, responseBody, status string) error
	ListPending(ctx context.Context, olderThan time.Time) ([]*models.ClientDebitRequest, error)
	List(ctx context.Context, accountID, limit int) ([]*models.ClientDebitRequest, error)
	Resolve(ctx context.Context, id string, success bool, providerRef, gatewayStatus, callbackBody string, now time.Time) (resolved bool, newBalance decimal.Decimal, txnRef string, err error)
}

type accountReader interface {
	Get(ctx context.Context, id int) (*models.TenantUnit, error)
	GetContact(ctx context.Context, id int) (*models.AccountContact, error)
}

type collectionGateway interface {
	Collect(ctx context.Context, req *models.CollectionRequest) (rawRequest string, resp *models.CollectionResponse, err error)
	TransactionStatus(ctx context.Context, transactionID string) (*models.CollectionResponse, error)
	IsSuccessCode(code string) bool
}

type receiptNotifier interface {
	PaymentReceipt(ctx context.Context, c *models.AccountContact, amount, balance decimal.Decimal)
}

// archiver stores raw gateway payloads off-box. Best effort only.
type archiver interface {
	Store(ctx context.Context, key string, body []byte) error
}

// PaymentService drives the mobile money collection pipeline: initiate the
// USSD push, absorb the gateway callback, and sweep requests the callback
// never reached.
type PaymentService struct {
	requests debitRequestStore
	accounts accountReader
	gateway  collectionGateway
	notifier receiptNotifier
	archive  archiver // may be nil

	country  string
	currency string

	// minAge keeps the timer-driven sweep off requests the subscriber may
	// still be approving on their handset. The explicit trigger ignores it.
	minAge  time.Duration
	nowFunc func() time.Time
}

func NewPaymentService(requests debitRequestStore, accounts accountReader, gw collectionGateway, notifier receiptNotifier, archive archiver, country, currency string, minAge time.Duration) *PaymentService {
	if minAge < 0 {
		minAge = 0
	}
	return &PaymentService{
		requests: requests,
		accounts: accounts,
		gateway:  gw,
		notifier: notifier,
		archive:  archive,
		country:  country,
		currency: currency,
		minAge:   minAge,
		nowFunc:  time.Now,
	}
}

// InitiateCollection starts a USSD push against the tenant's wallet. The
// PENDING row is created before the gateway call, so a transport failure
// after the provider accepted the push still leaves a row for the sweep to
// resolve.
func (s *PaymentService) InitiateCollection(ctx context.Context, req *models.MobileMoneyCollectRequest) (*models.ClientDebitRequest, error) {
	if req.Amount.LessThanOrEqual(decimal.Zero) {
		return nil, apperr.Validationf("amount must be positive")
	}
	if req.DebitNumber == "" {
		return nil, apperr.Validationf("debit number is required")
	}

	account, err := s.accounts.Get(ctx, req.TenantUnitID)
	if err != nil {
		return nil, err
	}
	if !account.IsActive {
		return nil, apperr.Validationf("tenant unit %d is not active", account.ID)
	}

	// Settle anything still pending before opening a new attempt, so a
	// tenant double-paying gets credited for both, in order.
	if _, err := s.ProcessPending(ctx); err != nil {
		log.Printf("[Payment] pre-collection sweep failed: %v", err)
	}

	row, err := s.requests.Create(ctx, ProviderAirtel, account.ID, req.Amount, req.DebitNumber, req.CreatedBy)
	if err != nil {
		return nil, apperr.Persistencef(err, "create debit request")
	}
	metrics.CollectionsInitiated.Inc()

	collection := &models.CollectionRequest{
		Reference:  "Rent payment",
		Subscriber: models.Subscriber{Country: s.country, Currency: s.currency, Msisdn: sms.CleanPhone(req.DebitNumber)},
		Transaction: &models.GatewayTransaction{
			Amount:   req.Amount,
			Country:  s.country,
			Currency: s.currency,
			ID:       row.ID,
		},
	}

	rawReq, resp, err := s.gateway.Collect(ctx, collection)
	if err != nil {
		// The push may still have gone out; keep the row PENDING and let
		// the sweep find out.
		if rerr := s.requests.RecordGatewayExchange(ctx, row.ID, rawReq, err.Error(), ""); rerr != nil {
			log.Printf("[Payment] record gateway exchange for %s failed: %v", row.ID, rerr)
		}
		return nil, err
	}

	respBody, _ := json.Marshal(resp)
	status := gatewayResponseCode(resp)
	if err := s.requests.RecordGatewayExchange(ctx, row.ID, rawReq, string(respBody), status); err != nil {
		log.Printf("[Payment] record gateway exchange for %s failed: %v", row.ID, err)
	}

	row.SvcRequestBody = rawReq
	row.SvcResponseBody = string(respBody)
	row.SvcStatus = status
	return row, nil
}

// ReceiveCallback absorbs the gateway's asynchronous outcome notification.
// It never returns an error: the transport layer always acknowledges with
// HTTP 200 and the business outcome rides in the ack's status_code, so the
// gateway does not hammer us with retries over our own failures.
func (s *PaymentService) ReceiveCallback(ctx context.Context, cb *models.CallbackRequest) *models.CallbackResponse {
	if cb == nil || cb.Transaction == nil || cb.Transaction.ID == "" ||
		cb.Transaction.AirtelMoneyID == "" || cb.Transaction.StatusCode == "" {
		// An incomplete notification must not flip the request: rejecting
		// here leaves it PENDING for a complete callback or the sweep.
		metrics.CallbacksRejected.WithLabelValues("400").Inc()
		return &models.CallbackResponse{StatusCode: "400", Message: "missing or incomplete transaction"}
	}

	body, _ := json.Marshal(cb)
	success := s.gateway.IsSuccessCode(cb.Transaction.StatusCode)

	resolved, balance, _, err := s.requests.Resolve(ctx, cb.Transaction.ID, success,
		cb.Transaction.AirtelMoneyID, cb.Transaction.StatusCode, string(body), s.nowFunc())
	if err != nil {
		if apperr.KindOf(err) == apperr.KindNotFound {
			metrics.CallbacksRejected.WithLabelValues("400").Inc()
			return &models.CallbackResponse{StatusCode: "400", Message: "unknown transaction"}
		}
		log.Printf("[Payment] callback for %s failed: %v", cb.Transaction.ID, err)
		metrics.CallbacksRejected.WithLabelValues("500").Inc()
		return &models.CallbackResponse{StatusCode: "500", Message: "processing failed"}
	}

	if resolved {
		s.afterResolve(ctx, cb.Transaction.ID, success, balance, "callback")
	}
	s.archiveBody(ctx, "callbacks/"+cb.Transaction.ID+".json", body)
	return &models.CallbackResponse{StatusCode: "200", Message: "received"}
}

// ProcessPending queries the gateway for every PENDING request and resolves
// the ones that reached a terminal state. One bad request never stops the
// pass; it is logged and skipped. Returns how many requests were resolved.
// The explicit trigger takes no age floor; the timer-driven sweep applies
// minAge via reconcile.
func (s *PaymentService) ProcessPending(ctx context.Context) (int, error) {
	return s.reconcile(ctx, 0)
}

func (s *PaymentService) reconcile(ctx context.Context, minAge time.Duration) (int, error) {
	metrics.SweepRuns.Inc()
	pending, err := s.requests.ListPending(ctx, s.nowFunc().Add(-minAge))
	if err != nil {
		return 0, apperr.Persistencef(err, "list pending debit requests")
	}

	resolved := 0
	for _, req := range pending {
		resp, err := s.gateway.TransactionStatus(ctx, req.ID)
		if err != nil {
			log.Printf("[Payment] status enquiry for %s failed: %v", req.ID, err)
			continue
		}
		if !resp.Succeeded() {
			// The enquiry itself did not succeed; its transaction body
			// cannot be trusted for a terminal decision.
			log.Printf("[Payment] status enquiry for %s reported failure, skipping", req.ID)
			continue
		}
		txn := callbackTransaction(resp)
		if txn == nil || inFlightCodes[txn.StatusCode] {
			continue
		}

		body, _ := json.Marshal(resp)
		success := s.gateway.IsSuccessCode(txn.StatusCode)
		ok, balance, _, err := s.requests.Resolve(ctx, req.ID, success,
			txn.AirtelMoneyID, txn.StatusCode, string(body), s.nowFunc())
		if err != nil {
			log.Printf("[Payment] resolve %s from sweep failed: %v", req.ID, err)
			continue
		}
		if ok {
			resolved++
			s.afterResolve(ctx, req.ID, success, balance, "sweep")
		}
	}
	return resolved, nil
}

// StartSweep runs ProcessPending on a fixed interval until ctx is cancelled.
func (s *PaymentService) StartSweep(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	log.Printf("[Payment] reconciliation sweep started, interval %s", interval)
	for {
		select {
		case <-ctx.Done():
			log.Printf("[Payment] reconciliation sweep stopped")
			return
		case <-ticker.C:
			if n, err := s.reconcile(ctx, s.minAge); err != nil {
				log.Printf("[Payment] sweep pass failed: %v", err)
			} else if n > 0 {
				log.Printf("[Payment] sweep resolved %d debit request(s)", n)
			}
		}
	}
}

// ListRequests returns recent collection attempts for audit.
func (s *PaymentService) ListRequests(ctx context.Context, accountID, limit int) ([]*models.ClientDebitRequest, error) {
	return s.requests.List(ctx, accountID, limit)
}

func (s *PaymentService) afterResolve(ctx context.Context, id string, success bool, balance decimal.Decimal, source string) {
	outcome := "failed"
	if success {
		outcome = "confirmed"
	}
	metrics.CollectionsResolved.WithLabelValues(outcome, source).Inc()
	if !success {
		return
	}

	req, err := s.requests.GetByID(ctx, id)
	if err != nil {
		log.Printf("[Payment] load resolved request %s failed: %v", id, err)
		return
	}
	contact, err := s.accounts.GetContact(ctx, req.ClientAccountID)
	if err != nil {
		log.Printf("[Payment] contact for account %d failed: %v", req.ClientAccountID, err)
		return
	}
	s.notifier.PaymentReceipt(ctx, contact, req.Amount, balance)
}

func (s *PaymentService) archiveBody(ctx context.Context, key string, body []byte) {
	if s.archive == nil {
		return
	}
	if err := s.archive.Store(ctx, key, body); err != nil {
		log.Printf("[Payment] archive %s failed: %v", key, err)
	}
}

func callbackTransaction(resp *models.CollectionResponse) *models.GatewayTransaction {
	if resp == nil || resp.Data == nil {
		return nil
	}
	return resp.Data.Transaction
}

func gatewayResponseCode(resp *models.CollectionResponse) string {
	if resp == nil || resp.Status == nil {
		return ""
	}
	return resp.Status.ResponseCode
}
