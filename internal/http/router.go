package http

import (
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"letmaster-backend/internal/handlers"
	"letmaster-backend/internal/middleware"
)

func NewRouter(
	accountHandler *handlers.AccountHandler,
	paymentHandler *handlers.PaymentHandler,
	healthHandler *handlers.HealthHandler,
	authMiddleware *middleware.AuthMiddleware,
) *mux.Router {
	r := mux.NewRouter()

	// Public routes
	r.HandleFunc("/health", healthHandler.Check).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	// Gateway callback: unauthenticated by contract, the provider holds no
	// token of ours. Always transport-200. Mounted at the bare protocol path
	// and under /api for deployments that front everything with the prefix.
	r.HandleFunc("/payments/callback", paymentHandler.Callback).Methods("POST")
	r.HandleFunc("/api/payments/callback", paymentHandler.Callback).Methods("POST")

	// Protected API routes - Accounts
	accountsAPI := r.PathPrefix("/api/accounts").Subrouter()
	accountsAPI.Use(authMiddleware.Authenticate)
	accountsAPI.HandleFunc("", accountHandler.List).Methods("GET")
	accountsAPI.HandleFunc("", accountHandler.Create).Methods("POST")
	accountsAPI.HandleFunc("/{id}", accountHandler.Get).Methods("GET")
	accountsAPI.HandleFunc("/{id}", accountHandler.Deactivate).Methods("DELETE")
	accountsAPI.HandleFunc("/{id}/transactions", accountHandler.PostTransaction).Methods("POST")
	accountsAPI.HandleFunc("/{id}/transactions", accountHandler.Statement).Methods("GET")

	// Protected API routes - Payments
	paymentsAPI := r.PathPrefix("/api/payments").Subrouter()
	paymentsAPI.Use(authMiddleware.Authenticate)
	paymentsAPI.HandleFunc("/collect", paymentHandler.Collect).Methods("POST")
	paymentsAPI.HandleFunc("/process-pending", paymentHandler.ProcessPending).Methods("POST")
	paymentsAPI.HandleFunc("/requests", paymentHandler.ListRequests).Methods("GET")

	return r
}
