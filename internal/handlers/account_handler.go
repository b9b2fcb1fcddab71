package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"letmaster-backend/internal/models"
	"letmaster-backend/internal/services"
	"letmaster-backend/pkg/utils"
)

type AccountHandler struct {
	Service *services.AccountService
}

func NewAccountHandler(s *services.AccountService) *AccountHandler {
	return &AccountHandler{Service: s}
}

func (h *AccountHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req models.CreateTenantUnitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.Error(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	account, err := h.Service.Create(r.Context(), &req)
	if err != nil {
		utils.Error(w, statusFor(err), err.Error())
		return
	}
	utils.JSON(w, http.StatusCreated, account)
}

func (h *AccountHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.Atoi(mux.Vars(r)["id"])

	account, err := h.Service.Get(r.Context(), id)
	if err != nil {
		utils.Error(w, statusFor(err), err.Error())
		return
	}
	utils.JSON(w, http.StatusOK, account)
}

func (h *AccountHandler) List(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.Service.List(r.Context())
	if err != nil {
		utils.Error(w, statusFor(err), err.Error())
		return
	}
	if accounts == nil {
		accounts = []*models.TenantUnit{}
	}
	utils.JSON(w, http.StatusOK, accounts)
}

func (h *AccountHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.Atoi(mux.Vars(r)["id"])

	if err := h.Service.Deactivate(r.Context(), id); err != nil {
		utils.Error(w, statusFor(err), err.Error())
		return
	}
	utils.JSON(w, http.StatusOK, map[string]string{"message": "account deactivated"})
}

// PostTransaction applies a manual ledger entry.
func (h *AccountHandler) PostTransaction(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.Atoi(mux.Vars(r)["id"])

	var req models.PostTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.Error(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	req.TenantUnitID = id

	balance, err := h.Service.PostTransaction(r.Context(), &req)
	if err != nil {
		utils.Error(w, statusFor(err), err.Error())
		return
	}
	utils.JSON(w, http.StatusOK, map[string]interface{}{"current_balance": balance})
}

// Statement returns recent ledger entries, newest first.
func (h *AccountHandler) Statement(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.Atoi(mux.Vars(r)["id"])
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	txns, err := h.Service.Statement(r.Context(), id, limit)
	if err != nil {
		utils.Error(w, statusFor(err), err.Error())
		return
	}
	if txns == nil {
		txns = []*models.TenantUnitTransaction{}
	}
	utils.JSON(w, http.StatusOK, txns)
}
