package handlers

import (
	"net/http"

	"letmaster-backend/internal/health"
	"letmaster-backend/pkg/utils"
)

type HealthHandler struct {
	Checker *health.HealthChecker
}

func NewHealthHandler(c *health.HealthChecker) *HealthHandler {
	return &HealthHandler{Checker: c}
}

func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	status := h.Checker.CheckBasic()
	code := http.StatusOK
	if status.Status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	utils.JSON(w, code, status)
}
