package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"campaign-mailer/services"
)

// APIResponse struct for consistent JSON responses
type APIResponse struct {
	Message string      `json:"message"`
	Status  string      `json:"status"` // "success" or "error"
	Data    interface{} `json:"data,omitempty"`
}

// respondWithJSON sends a JSON response
func respondWithJSON(w http.ResponseWriter, statusCode int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		log.Printf("[handlers] error marshalling JSON: %v", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	w.Write(response)
}

// errorResponse sends an error JSON response
func errorResponse(w http.ResponseWriter, message string, statusCode int) {
	respondWithJSON(w, statusCode, APIResponse{
		Message: message,
		Status:  "error",
	})
}

// successResponse sends a success JSON response
func successResponse(w http.ResponseWriter, message string, data interface{}) {
	respondWithJSON(w, http.StatusOK, APIResponse{
		Message: message,
		Status:  "success",
		Data:    data,
	})
}

// serviceErrorResponse maps a service error to its user-facing response.
// Anything unrecognised is logged in full and reported generically.
func serviceErrorResponse(w http.ResponseWriter, op string, err error) {
	var verr *services.ValidationError
	switch {
	case errors.As(err, &verr):
		errorResponse(w, verr.Message, http.StatusBadRequest)
	case errors.Is(err, services.ErrCredentialMissing):
		errorResponse(w, "Gmail configuration not found or needs to be updated. Please set up your Gmail credentials first.", http.StatusBadRequest)
	case errors.Is(err, services.ErrUnrecoverableCredential):
		errorResponse(w, "Failed to decrypt password. Please re-enter your Gmail app password.", http.StatusBadRequest)
	default:
		log.Printf("[handlers] %s error: %v", op, err)
		errorResponse(w, "Internal server error", http.StatusInternalServerError)
	}
}
