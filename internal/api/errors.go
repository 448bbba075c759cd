package api

import (
	"encoding/json"
	"net/http"
)

// ErrorCode is the closed set of machine-readable error codes returned in
// the {success:false} envelope, per spec.md §5-7.
type ErrorCode string

const (
	CodeValidation         ErrorCode = "VALIDATION_ERROR"
	CodeDatabase           ErrorCode = "DATABASE_ERROR"
	CodeQueue              ErrorCode = "QUEUE_ERROR"
	CodeConfiguration      ErrorCode = "CONFIGURATION_ERROR"
	CodeGenerationNotFound ErrorCode = "GENERATION_NOT_FOUND"
	CodeInternal           ErrorCode = "INTERNAL_ERROR"
)

var codeStatus = map[ErrorCode]int{
	CodeValidation:         http.StatusBadRequest,
	CodeDatabase:           http.StatusInternalServerError,
	CodeQueue:              http.StatusBadGateway,
	CodeConfiguration:      http.StatusInternalServerError,
	CodeGenerationNotFound: http.StatusNotFound,
	CodeInternal:           http.StatusInternalServerError,
}

type errorEnvelope struct {
	Success bool      `json:"success"`
	Error   ErrorCode `json:"error"`
	Message string    `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code ErrorCode, message string) {
	status, ok := codeStatus[code]
	if !ok {
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, errorEnvelope{Success: false, Error: code, Message: message})
}
