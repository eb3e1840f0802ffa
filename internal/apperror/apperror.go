// Package apperror defines the error taxonomy shared by the alert pipeline
// and maps validation failures to client-facing messages.
package apperror

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
)

// Kind classifies an error for the caller
type Kind string

const (
	KindNotFound       Kind = "not_found"
	KindInvalidInput   Kind = "invalid_input"
	KindMalformed      Kind = "malformed"
	KindChannelFailure Kind = "channel_failure"
)

// Error is a classified error carrying the failing operation
type Error struct {
	Kind   Kind
	Op     string
	Err    error
	Fields []map[string]string
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NotFound wraps err as a missing-resource error
func NotFound(op string, err error) *Error {
	return &Error{Kind: KindNotFound, Op: op, Err: err}
}

// InvalidInput wraps err as a rejected request
func InvalidInput(op string, err error) *Error {
	return &Error{Kind: KindInvalidInput, Op: op, Err: err, Fields: ValidationFields(err)}
}

// Malformed wraps err as an unreadable backing record
func Malformed(op string, err error) *Error {
	return &Error{Kind: KindMalformed, Op: op, Err: err}
}

// ChannelFailure wraps err as a transport failure
func ChannelFailure(op string, err error) *Error {
	return &Error{Kind: KindChannelFailure, Op: op, Err: err}
}

// KindOf returns the kind of the first classified error in the chain, or "" when unclassified
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return ""
}

// Is reports whether err carries the given kind
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// HTTPStatus maps an error to the status code the API answers with
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindNotFound:
		return http.StatusNotFound
	case KindInvalidInput:
		return http.StatusBadRequest
	case KindChannelFailure:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

var (
	errRequired        = errors.New("is required")
	errCommunityOrChat = errors.New("community or chat_id is required")
)

var customErrors = map[string]error{
	"AlertSubmission.Description.required":       errRequired,
	"AlertSubmission.Community.required_without": errCommunityOrChat,
	"AlertSubmission.ChatID.required_without":    errCommunityOrChat,
	"intentRequest.ChatID.required":              errRequired,
	"intentRequest.UserID.required":              errRequired,
	"registerRequest.TelegramID.required":        errRequired,
}

// ValidationFields converts validator errors into a field -> message list
func ValidationFields(err error) []map[string]string {
	errList := make([]map[string]string, 0)

	var validationErr validator.ValidationErrors
	if !errors.As(err, &validationErr) {
		return errList
	}

	for _, e := range validationErr {
		field := e.StructNamespace()
		key := field + "." + e.Tag()

		errMsg := fmt.Sprintf("%s is invalid", field)
		if v, ok := customErrors[key]; ok {
			errMsg = v.Error()
		}

		errList = append(errList, map[string]string{e.Field(): errMsg})
	}
	return errList
}
