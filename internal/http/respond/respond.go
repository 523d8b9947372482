// Package respond writes JSON responses and maps domain errors to HTTP statuses.
package respond

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/MrJamesThe3rd/blockbill/internal/invoice"
)

// ErrorBody is the payload of every error response.
type ErrorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

var statusByCode = map[string]int{
	"not_found":         http.StatusNotFound,
	"invalid_amount":    http.StatusUnprocessableEntity,
	"invalid_party":     http.StatusUnprocessableEntity,
	"wrong_amount":      http.StatusUnprocessableEntity,
	"invalid_status":    http.StatusUnprocessableEntity,
	"not_counterparty":  http.StatusForbidden,
	"not_issuer":        http.StatusForbidden,
	"already_settled":   http.StatusConflict,
	"already_finalized": http.StatusConflict,
	"invoice_voided":    http.StatusConflict,
	"invalid_history":   http.StatusConflict,
}

func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// Error writes err with the status its domain code maps to. Errors without a
// domain code are logged and reported as a bare 500.
func Error(w http.ResponseWriter, r *http.Request, err error) {
	code := invoice.Code(err)

	status, ok := statusByCode[code]
	if !ok {
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		JSON(w, http.StatusInternalServerError, ErrorBody{Error: "internal", Message: "internal error"})

		return
	}

	JSON(w, status, ErrorBody{Error: code, Message: err.Error()})
}

// Fail writes an error response with an explicit status and code.
func Fail(w http.ResponseWriter, status int, code, msg string) {
	JSON(w, status, ErrorBody{Error: code, Message: msg})
}

func BadRequest(w http.ResponseWriter, msg string) {
	Fail(w, http.StatusBadRequest, "bad_request", msg)
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Decode reads a JSON body into v, rejecting unknown fields, then checks its
// validate tags. It writes a 400 and returns false on failure.
func Decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()

	if err := dec.Decode(v); err != nil {
		BadRequest(w, "invalid request body: "+err.Error())
		return false
	}

	if err := validate.Struct(v); err != nil {
		BadRequest(w, describe(err))
		return false
	}

	return true
}

func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}

	msgs := make([]string, len(verrs))
	for i, fe := range verrs {
		if fe.Param() != "" {
			msgs[i] = fmt.Sprintf("%s: failed %s=%s", fe.Field(), fe.Tag(), fe.Param())
		} else {
			msgs[i] = fmt.Sprintf("%s: failed %s", fe.Field(), fe.Tag())
		}
	}

	return strings.Join(msgs, "; ")
}
