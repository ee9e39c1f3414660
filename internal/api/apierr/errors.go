package apierr

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/mcoot/dealgame/internal/model"
	"github.com/mcoot/dealgame/internal/services/auth"
	"github.com/mcoot/dealgame/internal/services/payment"
)

// APIError represents an API error response
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorResponse wraps an APIError
type ErrorResponse struct {
	Success bool     `json:"success"`
	Error   APIError `json:"error"`
}

// Error codes
const (
	CodeInvalidRequest       = "INVALID_REQUEST"
	CodeInvalidEntryFee      = "INVALID_ENTRY_FEE"
	CodeInvalidCaseIndex     = "INVALID_CASE_INDEX"
	CodeCaseNotFound         = "CASE_NOT_FOUND"
	CodeCannotBurnChosenCase = "CANNOT_BURN_CHOSEN_CASE"
	CodeCaseAlreadyRevealed  = "CASE_ALREADY_REVEALED"
	CodeRevealNotReady       = "REVEAL_NOT_READY"
	CodeNothingToClaim       = "NOTHING_TO_CLAIM"
	CodeInvalidState         = "INVALID_STATE"
	CodeConflict             = "CONFLICT"
	CodeNotGameOwner         = "NOT_GAME_OWNER"
	CodeGameNotFound         = "GAME_NOT_FOUND"
	CodeUnauthorized         = "UNAUTHORIZED"
	CodePaymentRequired      = "PAYMENT_REQUIRED"
	CodePaymentInvalid       = "PAYMENT_INVALID"
	CodePaymentReused        = "PAYMENT_REUSED"
	CodePaymentsDisabled     = "PAYMENTS_DISABLED"
	CodePayoutFailed         = "PAYOUT_FAILED"
	CodeAuthUnavailable      = "AUTH_UNAVAILABLE"
	CodeNotFound             = "NOT_FOUND"
	CodeInternalError        = "INTERNAL_ERROR"
)

// httpError combines an HTTP status code with an APIError
type httpError struct {
	status   int
	apiError APIError
}

// Error implements error interface
func (e *httpError) Error() string {
	return e.apiError.Message
}

// WriteError writes an error response to the response writer
func WriteError(w http.ResponseWriter, err error) {
	he := toHTTPError(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(he.status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{Error: he.apiError})
}

// Status returns the HTTP status WriteError would use for err
func Status(err error) int {
	return toHTTPError(err).status
}

// toHTTPError converts an error to an httpError. Unknown errors become a
// generic internal error so collaborator details never reach the client.
func toHTTPError(err error) *httpError {
	var he *httpError
	if errors.As(err, &he) {
		return he
	}

	var stateErr *model.StateError
	if errors.As(err, &stateErr) {
		return &httpError{http.StatusConflict, APIError{CodeInvalidState, stateErr.Reason}}
	}

	switch {
	case errors.Is(err, model.ErrGameNotFound):
		return &httpError{http.StatusNotFound, APIError{CodeGameNotFound, "Game not found"}}
	case errors.Is(err, model.ErrCardNotFound):
		return &httpError{http.StatusNotFound, APIError{CodeCaseNotFound, "Case not found"}}
	case errors.Is(err, model.ErrNotGameOwner):
		return &httpError{http.StatusForbidden, APIError{CodeNotGameOwner, "You do not own this game"}}

	case errors.Is(err, model.ErrInvalidEntryFee):
		return &httpError{http.StatusBadRequest, APIError{CodeInvalidEntryFee, "Entry fee must be between 100 and 100000 cents"}}
	case errors.Is(err, model.ErrInvalidCaseIndex):
		return &httpError{http.StatusBadRequest, APIError{CodeInvalidCaseIndex, "Case index out of range"}}
	case errors.Is(err, model.ErrInvalidMode):
		return &httpError{http.StatusBadRequest, APIError{CodeInvalidRequest, "Unknown game mode"}}
	case errors.Is(err, model.ErrInvalidCurrency):
		return &httpError{http.StatusBadRequest, APIError{CodeInvalidRequest, "Unsupported currency"}}
	case errors.Is(err, model.ErrInvalidPrincipal):
		return &httpError{http.StatusBadRequest, APIError{CodeInvalidRequest, "Invalid wallet address"}}

	case errors.Is(err, model.ErrCannotBurnChosenCase):
		return &httpError{http.StatusConflict, APIError{CodeCannotBurnChosenCase, "Cannot burn your own case"}}
	case errors.Is(err, model.ErrCaseAlreadyRevealed):
		return &httpError{http.StatusConflict, APIError{CodeCaseAlreadyRevealed, "Case already revealed"}}
	case errors.Is(err, model.ErrRevealNotReady):
		return &httpError{http.StatusConflict, APIError{CodeRevealNotReady, "Final reveal needs exactly two unopened cases"}}
	case errors.Is(err, model.ErrNothingToClaim):
		return &httpError{http.StatusConflict, APIError{CodeNothingToClaim, "No winnings to claim"}}
	case errors.Is(err, model.ErrConflict):
		return &httpError{http.StatusConflict, APIError{CodeConflict, "Game changed concurrently, please retry"}}

	case errors.Is(err, payment.ErrPaymentsDisabled):
		return &httpError{http.StatusServiceUnavailable, APIError{CodePaymentsDisabled, "Payments are not enabled on this server"}}
	case errors.Is(err, model.ErrPaymentRequired):
		return &httpError{http.StatusPaymentRequired, APIError{CodePaymentRequired, "Entry fee payment transaction required"}}
	case errors.Is(err, model.ErrPaymentInvalid):
		return &httpError{http.StatusPaymentRequired, APIError{CodePaymentInvalid, "Entry fee payment could not be verified"}}
	case errors.Is(err, model.ErrPaymentReused):
		return &httpError{http.StatusConflict, APIError{CodePaymentReused, "Payment transaction already used"}}
	case errors.Is(err, model.ErrPayoutFailed):
		return &httpError{http.StatusBadGateway, APIError{CodePayoutFailed, "Payout failed, please retry"}}

	case errors.Is(err, auth.ErrKeySetUnavailable):
		return &httpError{http.StatusServiceUnavailable, APIError{CodeAuthUnavailable, "Token verification temporarily unavailable"}}
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrMissingPrincipal):
		return &httpError{http.StatusUnauthorized, APIError{CodeUnauthorized, "Invalid or expired token"}}

	default:
		return &httpError{http.StatusInternalServerError, APIError{CodeInternalError, "Internal server error"}}
	}
}

// NewInvalidRequestError creates an invalid request error
func NewInvalidRequestError(message string) error {
	return &httpError{http.StatusBadRequest, APIError{CodeInvalidRequest, message}}
}

// NewUnauthorizedError creates an unauthorized error
func NewUnauthorizedError() error {
	return &httpError{http.StatusUnauthorized, APIError{CodeUnauthorized, "Authentication required"}}
}

// NewNotFoundError is returned for unknown routes
func NewNotFoundError() error {
	return &httpError{http.StatusNotFound, APIError{CodeNotFound, "No such endpoint"}}
}

// NewInternalError creates an internal server error
func NewInternalError() error {
	return &httpError{http.StatusInternalServerError, APIError{CodeInternalError, "Internal server error"}}
}
