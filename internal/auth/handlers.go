package auth

import (
	"encoding/json"
	"errors"
	"net/http"
)

type Handlers struct {
	service *Service
}

func NewHandlers(service *Service) *Handlers {
	return &Handlers{service: service}
}

// HandleDevToken handles POST /api/auth/token
func (h *Handlers) HandleDevToken(w http.ResponseWriter, r *http.Request) {
	resp, err := h.service.IssueDev()
	if errors.Is(err, ErrDevDisabled) {
		writeErrorResponse(w, http.StatusNotFound, "not_found", "Dev tokens are disabled")
		return
	}
	if err != nil {
		writeErrorResponse(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(resp)
}

func writeErrorResponse(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
		},
	})
}
