package api

import (
	"encoding/json"
	"net/http"
)

// Stable machine-readable error codes returned to clients.
const (
	CodeInvalidData     = "INVALID_DATA"
	CodeValidationError = "VALIDATION_ERROR"
	CodeDatabaseError   = "DATABASE_ERROR"
	CodeInternalError   = "INTERNAL_ERROR"
	CodeUnauthorized    = "UNAUTHORIZED"
)

type dataResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

type errorResponse struct {
	Success          bool     `json:"success"`
	Error            string   `json:"error"`
	Code             string   `json:"code"`
	ValidationErrors []string `json:"validation_errors,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, dataResponse{Success: true, Data: data})
}

func respondMessage(w http.ResponseWriter, status int, message string, data any) {
	writeJSON(w, status, dataResponse{Success: true, Message: message, Data: data})
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: message, Code: code})
}

func respondValidation(w http.ResponseWriter, errs []string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{
		Error:            "validation failed",
		Code:             CodeValidationError,
		ValidationErrors: errs,
	})
}
