package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"letmaster-backend/internal/apperr"
	"letmaster-backend/internal/models"
	"letmaster-backend/internal/services"
	"letmaster-backend/pkg/utils"
)

type PaymentHandler struct {
	Service *services.PaymentService
}

func NewPaymentHandler(s *services.PaymentService) *PaymentHandler {
	return &PaymentHandler{Service: s}
}

// Collect starts a mobile money pull against a tenant's wallet.
func (h *PaymentHandler) Collect(w http.ResponseWriter, r *http.Request) {
	var req models.MobileMoneyCollectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.Error(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	row, err := h.Service.InitiateCollection(r.Context(), &req)
	if err != nil {
		utils.Error(w, statusFor(err), err.Error())
		return
	}
	utils.JSON(w, http.StatusAccepted, row)
}

// Callback receives the gateway's outcome notification. The HTTP status is
// always 200; the body's status_code carries the business outcome.
func (h *PaymentHandler) Callback(w http.ResponseWriter, r *http.Request) {
	var cb models.CallbackRequest
	if err := json.NewDecoder(r.Body).Decode(&cb); err != nil {
		utils.JSON(w, http.StatusOK, &models.CallbackResponse{StatusCode: "400", Message: "malformed body"})
		return
	}
	utils.JSON(w, http.StatusOK, h.Service.ReceiveCallback(r.Context(), &cb))
}

// ProcessPending triggers a reconciliation sweep pass on demand.
func (h *PaymentHandler) ProcessPending(w http.ResponseWriter, r *http.Request) {
	n, err := h.Service.ProcessPending(r.Context())
	if err != nil {
		utils.Error(w, statusFor(err), err.Error())
		return
	}
	utils.JSON(w, http.StatusOK, map[string]string{
		"message": fmt.Sprintf("%d debit requests processed", n),
	})
}

// ListRequests returns recent collection attempts, optionally filtered by
// account via ?account_id=.
func (h *PaymentHandler) ListRequests(w http.ResponseWriter, r *http.Request) {
	accountID, _ := strconv.Atoi(r.URL.Query().Get("account_id"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	rows, err := h.Service.ListRequests(r.Context(), accountID, limit)
	if err != nil {
		utils.Error(w, statusFor(err), err.Error())
		return
	}
	if rows == nil {
		rows = []*models.ClientDebitRequest{}
	}
	utils.JSON(w, http.StatusOK, rows)
}

// statusFor maps error kinds to HTTP status codes.
func statusFor(err error) int {
	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindAuth, apperr.KindGateway, apperr.KindCrypto:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
