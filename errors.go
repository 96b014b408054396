package intake

import (
	"net/http"
	"strings"

	"github.com/goliatone/go-errors"
)

// Text codes let callers branch on a failure without parsing messages.
const (
	TextCodeTokenAlreadyUsed  = "TOKEN_ALREADY_USED"
	TextCodeSubmissionDeleted = "SUBMISSION_DELETED"
	TextCodeUpstreamFailure   = "UPSTREAM_FAILURE"
	TextCodeUpstreamTimeout   = "UPSTREAM_TIMEOUT"
	TextCodeMisconfigured     = "MISCONFIGURED_SERVER"
)

// NewMissingParameterError flags an absent or empty request parameter,
// distinct from a lookup that found nothing.
func NewMissingParameterError(name string) *errors.Error {
	return errors.New("missing "+name, errors.CategoryBadInput).
		WithCode(http.StatusBadRequest).
		WithMetadata(map[string]any{"parameter": name})
}

// NewSubmissionNotFoundError is returned when a token or id matches no row.
func NewSubmissionNotFoundError() *errors.Error {
	return errors.New("invalid or expired link", errors.CategoryNotFound).
		WithCode(http.StatusNotFound)
}

// NewSubmissionDeletedError signals that the row exists but was soft deleted.
// Callers render an invite to resubmit, not a generic error.
func NewSubmissionDeletedError() *errors.Error {
	return errors.New("submission deleted", errors.CategoryConflict).
		WithCode(http.StatusGone).
		WithTextCode(TextCodeSubmissionDeleted)
}

// NewTokenAlreadyUsedError covers both a consumed claim token and one that
// never existed. Once consumed the token column is cleared, so the two cases
// cannot be told apart.
func NewTokenAlreadyUsedError() *errors.Error {
	return errors.New("confirmation link is invalid or was already used", errors.CategoryConflict).
		WithCode(http.StatusConflict).
		WithTextCode(TextCodeTokenAlreadyUsed)
}

// NewUnauthenticatedError is returned when no identity is attached to the request.
func NewUnauthenticatedError() *errors.Error {
	return errors.New("authentication required", errors.CategoryAuth).
		WithCode(errors.CodeUnauthorized)
}

// NewForbiddenError is the uniform answer for ownership mismatches. Policy:
// we acknowledge the row exists rather than hiding it behind a 404.
func NewForbiddenError() *errors.Error {
	return errors.New("you do not have access to this submission", errors.CategoryAuthz).
		WithCode(errors.CodeForbidden)
}

// NewUpstreamError wraps a failed call to the persistence or webhook service.
// The upstream message is surfaced verbatim; this is an admin-facing tool.
func NewUpstreamError(err error, msg string) *errors.Error {
	if err == nil {
		return errors.New(msg, errors.CategoryOperation).
			WithCode(http.StatusBadGateway).
			WithTextCode(TextCodeUpstreamFailure)
	}
	return errors.Wrap(err, errors.CategoryOperation, msg).
		WithCode(http.StatusBadGateway).
		WithTextCode(TextCodeUpstreamFailure)
}

// NewUpstreamTimeoutError marks an outbound call that hit its deadline.
func NewUpstreamTimeoutError(err error, msg string) *errors.Error {
	return errors.Wrap(err, errors.CategoryOperation, msg).
		WithCode(http.StatusGatewayTimeout).
		WithTextCode(TextCodeUpstreamTimeout)
}

// NewMisconfiguredError hard fails when required server configuration is
// absent. Token resolution must never silently degrade.
func NewMisconfiguredError(what string) *errors.Error {
	return errors.New("server misconfigured: missing "+what, errors.CategoryInternal).
		WithCode(errors.CodeInternal).
		WithTextCode(TextCodeMisconfigured)
}

// IsSubmissionDeleted checks for the soft-delete signal.
func IsSubmissionDeleted(err error) bool {
	var richErr *errors.Error
	if errors.As(err, &richErr) {
		return richErr.TextCode == TextCodeSubmissionDeleted
	}
	return false
}

// IsTokenAlreadyUsed checks for a consumed or unknown claim token.
func IsTokenAlreadyUsed(err error) bool {
	if err == nil {
		return false
	}
	var richErr *errors.Error
	if errors.As(err, &richErr) {
		return richErr.TextCode == TextCodeTokenAlreadyUsed
	}
	return strings.Contains(strings.ToLower(err.Error()), "already used")
}

// HTTPStatus maps an error to the status the JSON API responds with.
func HTTPStatus(err error) int {
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		return http.StatusInternalServerError
	}

	if richErr.Code > 0 {
		return richErr.Code
	}

	switch richErr.Category {
	case errors.CategoryBadInput, errors.CategoryValidation:
		return http.StatusBadRequest
	case errors.CategoryAuth:
		return http.StatusUnauthorized
	case errors.CategoryAuthz:
		return http.StatusForbidden
	case errors.CategoryNotFound:
		return http.StatusNotFound
	case errors.CategoryConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
