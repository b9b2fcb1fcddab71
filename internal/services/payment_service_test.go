package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"letmaster-backend/internal/apperr"
	"letmaster-backend/internal/models"
)

// fakeRequestStore mimics the database semantics that matter: Resolve flips
// a request out of PENDING exactly once, under a lock, like the status-
// guarded UPDATE does.
type fakeRequestStore struct {
	mu       sync.Mutex
	rows     map[string]*models.ClientDebitRequest
	nextID   int
	credits  []decimal.Decimal
	balances map[int]decimal.Decimal

	failResolve bool
}

func newFakeRequestStore() *fakeRequestStore {
	return &fakeRequestStore{
		rows:     make(map[string]*models.ClientDebitRequest),
		balances: make(map[int]decimal.Decimal),
	}
}

func (f *fakeRequestStore) Create(ctx context.Context, provider string, accountID int, amount decimal.Decimal, debitNumber, createdBy string) (*models.ClientDebitRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	row := &models.ClientDebitRequest{
		ID:              fmt.Sprintf("req-%d", f.nextID),
		ProviderName:    provider,
		ClientAccountID: accountID,
		Amount:          amount,
		ReferenceNo:     debitNumber,
		ReconcileStatus: models.ReconcilePending,
		CreatedBy:       createdBy,
		IsActive:        true,
		CreatedAt:       time.Now().Add(-time.Hour),
	}
	f.rows[row.ID] = row
	return row, nil
}

func (f *fakeRequestStore) GetByID(ctx context.Context, id string) (*models.ClientDebitRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[id]
	if !ok {
		return nil, errNotFound(id)
	}
	cp := *row
	return &cp, nil
}

func (f *fakeRequestStore) RecordGatewayExchange(ctx context.Context, id, requestBody, responseBody, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if row, ok := f.rows[id]; ok {
		row.SvcRequestBody = requestBody
		row.SvcResponseBody = responseBody
		row.SvcStatus = status
	}
	return nil
}

func (f *fakeRequestStore) ListPending(ctx context.Context, olderThan time.Time) ([]*models.ClientDebitRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.ClientDebitRequest
	for _, row := range f.rows {
		if row.ReconcileStatus == models.ReconcilePending && row.CreatedAt.Before(olderThan) {
			cp := *row
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeRequestStore) List(ctx context.Context, accountID, limit int) ([]*models.ClientDebitRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.ClientDebitRequest
	for _, row := range f.rows {
		if accountID == 0 || row.ClientAccountID == accountID {
			cp := *row
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeRequestStore) Resolve(ctx context.Context, id string, success bool, providerRef, gatewayStatus, callbackBody string, now time.Time) (bool, decimal.Decimal, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failResolve {
		return false, decimal.Zero, "", errors.New("storage down")
	}
	row, ok := f.rows[id]
	if !ok {
		return false, decimal.Zero, "", errNotFound(id)
	}
	if row.Resolved() {
		row.SvcCallbackBody = callbackBody
		return false, decimal.Zero, "", nil
	}

	row.SvcReferenceNo = providerRef
	row.SvcStatus = gatewayStatus
	row.SvcCallbackBody = callbackBody
	if !success {
		row.ReconcileStatus = models.ReconcileFailed
		return true, decimal.Zero, "", nil
	}
	row.ReconcileStatus = models.ReconcileComplete
	f.credits = append(f.credits, row.Amount)
	bal := f.balances[row.ClientAccountID].Sub(row.Amount)
	f.balances[row.ClientAccountID] = bal
	ref := fmt.Sprintf("C%d-%d%02d(%s)", row.ClientAccountID, now.Year(), int(now.Month()), providerRef)
	return true, bal, ref, nil
}

type fakeAccounts struct {
	accounts map[int]*models.TenantUnit
	contacts map[int]*models.AccountContact
}

func (f *fakeAccounts) Get(ctx context.Context, id int) (*models.TenantUnit, error) {
	a, ok := f.accounts[id]
	if !ok {
		return nil, errNotFound(fmt.Sprint(id))
	}
	return a, nil
}

func (f *fakeAccounts) GetContact(ctx context.Context, id int) (*models.AccountContact, error) {
	c, ok := f.contacts[id]
	if !ok {
		return nil, errNotFound(fmt.Sprint(id))
	}
	return c, nil
}

type fakeGateway struct {
	mu            sync.Mutex
	statusCode    string // what TransactionStatus reports
	statusCalls   int
	collectErr    error
	collectCode   string
	enquiryFailed bool // status.success=false on enquiry responses
}

func (f *fakeGateway) Collect(ctx context.Context, req *models.CollectionRequest) (string, *models.CollectionResponse, error) {
	if f.collectErr != nil {
		return `{"sent":true}`, nil, f.collectErr
	}
	code := f.collectCode
	if code == "" {
		code = "TIP"
	}
	ok := true
	return `{"sent":true}`, &models.CollectionResponse{
		Data:   &models.CollectionData{Transaction: &models.GatewayTransaction{ID: req.Transaction.ID, StatusCode: code}},
		Status: &models.GatewayStatus{ResponseCode: "DP00800001006", Success: &ok},
	}, nil
}

func (f *fakeGateway) TransactionStatus(ctx context.Context, transactionID string) (*models.CollectionResponse, error) {
	f.mu.Lock()
	f.statusCalls++
	code := f.statusCode
	ok := !f.enquiryFailed
	f.mu.Unlock()
	if code == "ERR" {
		return nil, errors.New("gateway unreachable")
	}
	return &models.CollectionResponse{
		Data:   &models.CollectionData{Transaction: &models.GatewayTransaction{ID: transactionID, StatusCode: code, AirtelMoneyID: "AM-" + transactionID}},
		Status: &models.GatewayStatus{ResponseCode: "DP00800001001", Success: &ok},
	}, nil
}

func (f *fakeGateway) IsSuccessCode(code string) bool { return code == "TS" }

func (f *fakeGateway) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.statusCalls
}

type fakeNotifier struct {
	mu       sync.Mutex
	receipts []decimal.Decimal
}

func (f *fakeNotifier) PaymentReceipt(ctx context.Context, c *models.AccountContact, amount, balance decimal.Decimal) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.receipts = append(f.receipts, amount)
}

func (f *fakeNotifier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.receipts)
}

func errNotFound(id string) error {
	return apperr.NotFoundf("%s not found", id)
}

func newTestPaymentService(store *fakeRequestStore, gw *fakeGateway, notifier *fakeNotifier) *PaymentService {
	accounts := &fakeAccounts{
		accounts: map[int]*models.TenantUnit{
			7: {ID: 7, IsActive: true, AgreedRate: decimal.NewFromInt(500000)},
		},
		contacts: map[int]*models.AccountContact{
			7: {TenantName: "Asiimwe Grace", MobileNumber: "0700000001", PropertyName: "Sunset Court", UnitName: "B4"},
		},
	}
	return NewPaymentService(store, accounts, gw, notifier, nil, "UG", "UGX", 0)
}

func pendingRow(store *fakeRequestStore, amount int64) *models.ClientDebitRequest {
	row, _ := store.Create(context.Background(), ProviderAirtel, 7, decimal.NewFromInt(amount), "0700000001", "tester")
	return row
}

func tsCallback(id string) *models.CallbackRequest {
	return &models.CallbackRequest{Transaction: &models.GatewayTransaction{
		ID: id, StatusCode: "TS", AirtelMoneyID: "AM-1", Message: "success",
	}}
}

func TestReceiveCallbackSuccess(t *testing.T) {
	store := newFakeRequestStore()
	notifier := &fakeNotifier{}
	s := newTestPaymentService(store, &fakeGateway{}, notifier)

	row := pendingRow(store, 50000)
	ack := s.ReceiveCallback(context.Background(), tsCallback(row.ID))

	if ack.StatusCode != "200" {
		t.Fatalf("ack = %+v, want 200", ack)
	}
	got, _ := store.GetByID(context.Background(), row.ID)
	if got.ReconcileStatus != models.ReconcileComplete {
		t.Errorf("status = %q, want C", got.ReconcileStatus)
	}
	if len(store.credits) != 1 || !store.credits[0].Equal(decimal.NewFromInt(50000)) {
		t.Errorf("credits = %v, want one of 50000", store.credits)
	}
	if notifier.count() != 1 {
		t.Errorf("receipts = %d, want 1", notifier.count())
	}
}

func TestReceiveCallbackIdempotent(t *testing.T) {
	store := newFakeRequestStore()
	notifier := &fakeNotifier{}
	s := newTestPaymentService(store, &fakeGateway{}, notifier)

	row := pendingRow(store, 50000)
	for i := 0; i < 3; i++ {
		if ack := s.ReceiveCallback(context.Background(), tsCallback(row.ID)); ack.StatusCode != "200" {
			t.Fatalf("ack %d = %+v", i, ack)
		}
	}

	if len(store.credits) != 1 {
		t.Errorf("credits = %d, want exactly 1", len(store.credits))
	}
	if notifier.count() != 1 {
		t.Errorf("receipts = %d, want 1", notifier.count())
	}
}

func TestReceiveCallbackFailureCodeNoCredit(t *testing.T) {
	store := newFakeRequestStore()
	s := newTestPaymentService(store, &fakeGateway{}, &fakeNotifier{})

	row := pendingRow(store, 50000)
	ack := s.ReceiveCallback(context.Background(), &models.CallbackRequest{
		Transaction: &models.GatewayTransaction{ID: row.ID, StatusCode: "TF", AirtelMoneyID: "AM-2"},
	})

	if ack.StatusCode != "200" {
		t.Fatalf("ack = %+v, want 200", ack)
	}
	got, _ := store.GetByID(context.Background(), row.ID)
	if got.ReconcileStatus != models.ReconcileFailed {
		t.Errorf("status = %q, want F", got.ReconcileStatus)
	}
	if len(store.credits) != 0 {
		t.Errorf("credits = %d, want 0", len(store.credits))
	}
}

func TestReceiveCallbackMissingTransaction(t *testing.T) {
	s := newTestPaymentService(newFakeRequestStore(), &fakeGateway{}, &fakeNotifier{})

	for _, cb := range []*models.CallbackRequest{nil, {}, {Transaction: &models.GatewayTransaction{}}} {
		if ack := s.ReceiveCallback(context.Background(), cb); ack.StatusCode != "400" {
			t.Errorf("ack for %+v = %+v, want 400", cb, ack)
		}
	}
}

func TestReceiveCallbackIncompleteTransactionLeavesPending(t *testing.T) {
	store := newFakeRequestStore()
	s := newTestPaymentService(store, &fakeGateway{}, &fakeNotifier{})
	row := pendingRow(store, 50000)

	incomplete := []*models.CallbackRequest{
		{Transaction: &models.GatewayTransaction{ID: row.ID, AirtelMoneyID: "AM-1"}},
		{Transaction: &models.GatewayTransaction{ID: row.ID, StatusCode: "TS"}},
	}
	for i, cb := range incomplete {
		if ack := s.ReceiveCallback(context.Background(), cb); ack.StatusCode != "400" {
			t.Errorf("case %d: ack = %+v, want 400", i, ack)
		}
	}

	got, _ := store.GetByID(context.Background(), row.ID)
	if got.ReconcileStatus != models.ReconcilePending {
		t.Fatalf("status = %q, want P after incomplete callbacks", got.ReconcileStatus)
	}

	// A complete notification arriving later must still land.
	if ack := s.ReceiveCallback(context.Background(), tsCallback(row.ID)); ack.StatusCode != "200" {
		t.Fatalf("ack = %+v, want 200", ack)
	}
	if len(store.credits) != 1 {
		t.Errorf("credits = %d, want 1", len(store.credits))
	}
}

func TestReceiveCallbackUnknownTransactionAcks400(t *testing.T) {
	s := newTestPaymentService(newFakeRequestStore(), &fakeGateway{}, &fakeNotifier{})

	if ack := s.ReceiveCallback(context.Background(), tsCallback("no-such-id")); ack.StatusCode != "400" {
		t.Errorf("ack = %+v, want 400", ack)
	}
}

func TestReceiveCallbackStoreErrorAcks500(t *testing.T) {
	store := newFakeRequestStore()
	s := newTestPaymentService(store, &fakeGateway{}, &fakeNotifier{})
	row := pendingRow(store, 100)
	store.failResolve = true

	if ack := s.ReceiveCallback(context.Background(), tsCallback(row.ID)); ack.StatusCode != "500" {
		t.Errorf("ack = %+v, want 500", ack)
	}
}

func TestCallbackSweepRaceSingleCredit(t *testing.T) {
	store := newFakeRequestStore()
	gw := &fakeGateway{statusCode: "TS"}
	notifier := &fakeNotifier{}
	s := newTestPaymentService(store, gw, notifier)

	row := pendingRow(store, 75000)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			s.ReceiveCallback(context.Background(), tsCallback(row.ID))
		}()
		go func() {
			defer wg.Done()
			s.ProcessPending(context.Background())
		}()
	}
	wg.Wait()

	if len(store.credits) != 1 {
		t.Errorf("credits = %d, want exactly 1", len(store.credits))
	}
	if notifier.count() != 1 {
		t.Errorf("receipts = %d, want 1", notifier.count())
	}
}

func TestProcessPendingNothingToDo(t *testing.T) {
	gw := &fakeGateway{statusCode: "TS"}
	s := newTestPaymentService(newFakeRequestStore(), gw, &fakeNotifier{})

	n, err := s.ProcessPending(context.Background())
	if err != nil {
		t.Fatalf("ProcessPending: %v", err)
	}
	if n != 0 {
		t.Errorf("resolved = %d, want 0", n)
	}
	if gw.calls() != 0 {
		t.Errorf("gateway status calls = %d, want 0", gw.calls())
	}
}

func TestProcessPendingLeavesInFlight(t *testing.T) {
	store := newFakeRequestStore()
	gw := &fakeGateway{statusCode: "TIP"}
	s := newTestPaymentService(store, gw, &fakeNotifier{})

	row := pendingRow(store, 20000)
	n, err := s.ProcessPending(context.Background())
	if err != nil {
		t.Fatalf("ProcessPending: %v", err)
	}
	if n != 0 {
		t.Errorf("resolved = %d, want 0", n)
	}
	got, _ := store.GetByID(context.Background(), row.ID)
	if got.ReconcileStatus != models.ReconcilePending {
		t.Errorf("status = %q, want P", got.ReconcileStatus)
	}
}

func TestProcessPendingResolvesTerminal(t *testing.T) {
	store := newFakeRequestStore()
	gw := &fakeGateway{statusCode: "TS"}
	notifier := &fakeNotifier{}
	s := newTestPaymentService(store, gw, notifier)

	pendingRow(store, 30000)
	pendingRow(store, 40000)

	n, err := s.ProcessPending(context.Background())
	if err != nil {
		t.Fatalf("ProcessPending: %v", err)
	}
	if n != 2 {
		t.Errorf("resolved = %d, want 2", n)
	}
	if len(store.credits) != 2 {
		t.Errorf("credits = %d, want 2", len(store.credits))
	}
	if notifier.count() != 2 {
		t.Errorf("receipts = %d, want 2", notifier.count())
	}
}

func TestProcessPendingIgnoresSweepFloor(t *testing.T) {
	store := newFakeRequestStore()
	gw := &fakeGateway{statusCode: "TS"}
	s := newTestPaymentService(store, gw, &fakeNotifier{})
	s.minAge = 90 * time.Second

	row := pendingRow(store, 25000)
	row.CreatedAt = time.Now() // too fresh for the timer-driven sweep

	if n, err := s.reconcile(context.Background(), s.minAge); err != nil || n != 0 {
		t.Fatalf("sweep pass = (%d, %v), want fresh request skipped", n, err)
	}
	if gw.calls() != 0 {
		t.Fatalf("gateway status calls = %d, want 0 before the floor", gw.calls())
	}

	// The explicit trigger checks everything, age regardless.
	n, err := s.ProcessPending(context.Background())
	if err != nil {
		t.Fatalf("ProcessPending: %v", err)
	}
	if n != 1 {
		t.Errorf("resolved = %d, want 1", n)
	}
}

func TestProcessPendingDistrustsFailedEnquiry(t *testing.T) {
	store := newFakeRequestStore()
	gw := &fakeGateway{statusCode: "TS", enquiryFailed: true}
	s := newTestPaymentService(store, gw, &fakeNotifier{})

	row := pendingRow(store, 15000)
	n, err := s.ProcessPending(context.Background())
	if err != nil {
		t.Fatalf("ProcessPending: %v", err)
	}
	if n != 0 {
		t.Errorf("resolved = %d, want 0", n)
	}
	got, _ := store.GetByID(context.Background(), row.ID)
	if got.ReconcileStatus != models.ReconcilePending {
		t.Errorf("status = %q, want P when the enquiry itself failed", got.ReconcileStatus)
	}
}

func TestProcessPendingGatewayErrorSkips(t *testing.T) {
	store := newFakeRequestStore()
	gw := &fakeGateway{statusCode: "ERR"}
	s := newTestPaymentService(store, gw, &fakeNotifier{})

	row := pendingRow(store, 10000)
	n, err := s.ProcessPending(context.Background())
	if err != nil {
		t.Fatalf("ProcessPending: %v", err)
	}
	if n != 0 {
		t.Errorf("resolved = %d, want 0", n)
	}
	got, _ := store.GetByID(context.Background(), row.ID)
	if got.ReconcileStatus != models.ReconcilePending {
		t.Errorf("status = %q, want P", got.ReconcileStatus)
	}
}

func TestInitiateCollectionValidation(t *testing.T) {
	s := newTestPaymentService(newFakeRequestStore(), &fakeGateway{}, &fakeNotifier{})

	cases := []*models.MobileMoneyCollectRequest{
		{TenantUnitID: 7, Amount: decimal.Zero, DebitNumber: "0700000001"},
		{TenantUnitID: 7, Amount: decimal.NewFromInt(-5), DebitNumber: "0700000001"},
		{TenantUnitID: 7, Amount: decimal.NewFromInt(100)},
		{TenantUnitID: 999, Amount: decimal.NewFromInt(100), DebitNumber: "0700000001"},
	}
	for i, req := range cases {
		if _, err := s.InitiateCollection(context.Background(), req); err == nil {
			t.Errorf("case %d: expected error", i)
		}
	}
}

func TestInitiateCollectionCreatesPendingRow(t *testing.T) {
	store := newFakeRequestStore()
	gw := &fakeGateway{collectCode: "TIP"}
	s := newTestPaymentService(store, gw, &fakeNotifier{})

	row, err := s.InitiateCollection(context.Background(), &models.MobileMoneyCollectRequest{
		TenantUnitID: 7,
		Amount:       decimal.NewFromInt(50000),
		DebitNumber:  "0700000001",
		CreatedBy:    "tester",
	})
	if err != nil {
		t.Fatalf("InitiateCollection: %v", err)
	}
	if row.ReconcileStatus != models.ReconcilePending {
		t.Errorf("status = %q, want P", row.ReconcileStatus)
	}
	if row.SvcRequestBody == "" || row.SvcResponseBody == "" {
		t.Error("gateway exchange not recorded on the row")
	}
	if row.SvcStatus != "DP00800001006" {
		t.Errorf("svc status = %q, want the gateway's immediate response code", row.SvcStatus)
	}
}

func TestInitiateCollectionTransportFailureKeepsPending(t *testing.T) {
	store := newFakeRequestStore()
	gw := &fakeGateway{collectErr: errors.New("connection reset")}
	s := newTestPaymentService(store, gw, &fakeNotifier{})

	_, err := s.InitiateCollection(context.Background(), &models.MobileMoneyCollectRequest{
		TenantUnitID: 7,
		Amount:       decimal.NewFromInt(50000),
		DebitNumber:  "0700000001",
	})
	if err == nil {
		t.Fatal("expected error")
	}

	rows, _ := store.List(context.Background(), 7, 0)
	if len(rows) != 1 {
		t.Fatalf("rows = %d, want 1", len(rows))
	}
	if rows[0].ReconcileStatus != models.ReconcilePending {
		t.Errorf("status = %q, want P (sweep must be able to recover it)", rows[0].ReconcileStatus)
	}
}
