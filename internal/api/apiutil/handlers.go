package apiutil

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/insulate/badminton-booking-sub002/internal/apperr"
)

type FieldError struct {
	Field  string
	Reason string
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

type HandlerError struct {
	Status  int
	Message string
	Err     error
}

func (e HandlerError) Error() string {
	return e.Message
}

func (e HandlerError) Unwrap() error {
	return e.Err
}

// ErrorResponse is the JSON body of every error reply. Error holds the
// machine-readable kind, ID the entity the error concerns.
type ErrorResponse struct {
	Error   string `json:"error"`
	ID      string `json:"id,omitempty"`
	From    string `json:"from,omitempty"`
	To      string `json:"to,omitempty"`
	Message string `json:"message"`
}

func DecodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return fmt.Errorf("missing request body")
	}
	defer r.Body.Close()

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		return err
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func WriteJSON(w http.ResponseWriter, status int, payload any) error {
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	if err := encoder.Encode(payload); err != nil {
		return err
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, err := w.Write(buf.Bytes())
	return err
}

// StatusFor maps an error kind to its HTTP status.
func StatusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindInsufficientStock, apperr.KindSlotUnavailable:
		return http.StatusConflict
	case apperr.KindInvalidTransition:
		return http.StatusUnprocessableEntity
	case apperr.KindPreconditionFailed:
		return http.StatusPreconditionFailed
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindStoreUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// WriteError renders err as an ErrorResponse with the status its kind maps
// to. Unclassified errors are logged and reported as a generic 500.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	logger := log.Ctx(r.Context())

	var fieldErr FieldError
	if errors.As(err, &fieldErr) {
		_ = WriteJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid_request", ID: fieldErr.Field, Message: fieldErr.Error()})
		return
	}
	var handlerErr HandlerError
	if errors.As(err, &handlerErr) {
		_ = WriteJSON(w, handlerErr.Status, ErrorResponse{Error: "invalid_request", Message: handlerErr.Message})
		return
	}

	var appErr *apperr.Error
	if !errors.As(err, &appErr) {
		logger.Error().Err(err).Msg("Unhandled request error")
		_ = WriteJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "internal", Message: "Internal Server Error"})
		return
	}

	status := StatusFor(appErr.Kind)
	if status >= http.StatusInternalServerError {
		logger.Error().Err(err).Str("error_kind", string(appErr.Kind)).Msg("Request failed")
	} else {
		logger.Info().Str("error_kind", string(appErr.Kind)).Str("id", appErr.ID).Msg(appErr.Message)
	}
	_ = WriteJSON(w, status, ErrorResponse{
		Error:   string(appErr.Kind),
		ID:      appErr.ID,
		From:    appErr.From,
		To:      appErr.To,
		Message: appErr.Message,
	})
}

// BadRequest reports a body that could not be decoded.
func BadRequest(w http.ResponseWriter, r *http.Request, err error) {
	log.Ctx(r.Context()).Warn().Err(err).Msg("Invalid request body")
	_ = WriteJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid_request", Message: "Invalid request body"})
}

func RequiredField(raw, field string) (string, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return "", FieldError{Field: field, Reason: "is required"}
	}
	return value, nil
}

func ParsePositiveInt64Field(raw string, field string) (int64, error) {
	value, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, FieldError{Field: field, Reason: "must be a number"}
	}
	if value <= 0 {
		return 0, FieldError{Field: field, Reason: "must be positive"}
	}
	return value, nil
}
