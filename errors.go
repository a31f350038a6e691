package dirauth

import (
	"net/http"

	"github.com/goliatone/go-errors"
)

const (
	TextCodeDirectoryUnavailable = "DIRECTORY_UNAVAILABLE"
	TextCodeInvalidCredentials   = "INVALID_CREDENTIALS"
	TextCodeDuplicateIdentity    = "DUPLICATE_IDENTITY"
	TextCodeDirectoryWriteFailed = "DIRECTORY_WRITE_FAILED"
	TextCodeInvalidToken         = "INVALID_TOKEN"
	TextCodeIdentityGone         = "IDENTITY_GONE"
	TextCodeForbidden            = "FORBIDDEN"
	TextCodeProfileNotFound      = "PROFILE_NOT_FOUND"
	TextCodeValidationFailed     = "VALIDATION_FAILED"
	TextCodeTooManyAttempts      = "TOO_MANY_ATTEMPTS"
)

// ErrDirectoryUnavailable is returned when the directory cannot be reached or
// the privileged bind fails.
var ErrDirectoryUnavailable = errors.New("directory unavailable", errors.CategoryInternal).
	WithTextCode(TextCodeDirectoryUnavailable).
	WithCode(http.StatusServiceUnavailable)

// ErrInvalidCredentials is the expected negative outcome of a login.
var ErrInvalidCredentials = errors.New("incorrect username or password", errors.CategoryAuth).
	WithTextCode(TextCodeInvalidCredentials).
	WithCode(errors.CodeUnauthorized)

// ErrDuplicateIdentity is returned when provisioning an existing username.
var ErrDuplicateIdentity = errors.New("identity already exists", errors.CategoryConflict).
	WithTextCode(TextCodeDuplicateIdentity).
	WithCode(errors.CodeConflict)

// ErrDirectoryWriteFailed is returned when a provisioning step fails.
var ErrDirectoryWriteFailed = errors.New("directory write failed", errors.CategoryInternal).
	WithTextCode(TextCodeDirectoryWriteFailed).
	WithCode(errors.CodeInternal)

// ErrInvalidToken covers bad signatures, malformed tokens and expiry.
var ErrInvalidToken = errors.New("invalid or expired token", errors.CategoryAuth).
	WithTextCode(TextCodeInvalidToken).
	WithCode(errors.CodeUnauthorized)

// ErrIdentityGone is returned when a token subject was removed from the
// directory after the token was issued.
var ErrIdentityGone = errors.New("user no longer exists", errors.CategoryAuth).
	WithTextCode(TextCodeIdentityGone).
	WithCode(errors.CodeUnauthorized)

// ErrForbidden is returned when the live group set lacks the required group.
var ErrForbidden = errors.New("access denied", errors.CategoryAuthz).
	WithTextCode(TextCodeForbidden).
	WithCode(errors.CodeForbidden)

// ErrProfileNotFound is returned when no profile document exists.
var ErrProfileNotFound = errors.New("user not found", errors.CategoryNotFound).
	WithTextCode(TextCodeProfileNotFound).
	WithCode(errors.CodeNotFound)

// ErrTooManyAttempts is returned by throttled entry points.
var ErrTooManyAttempts = errors.New("too many attempts, try again later", errors.CategoryRateLimit).
	WithTextCode(TextCodeTooManyAttempts).
	WithCode(http.StatusTooManyRequests)

// DirectoryUnavailable wraps a transport or bind failure.
func DirectoryUnavailable(cause error, op string) error {
	return errors.Wrap(cause, errors.CategoryInternal, "directory unavailable").
		WithTextCode(TextCodeDirectoryUnavailable).
		WithCode(http.StatusServiceUnavailable).
		WithMetadata(map[string]any{"operation": op})
}

// DirectoryWriteFailed wraps the cause of a failed provisioning step.
func DirectoryWriteFailed(cause error, step string) error {
	return errors.Wrap(cause, errors.CategoryInternal, "directory write failed").
		WithTextCode(TextCodeDirectoryWriteFailed).
		WithCode(errors.CodeInternal).
		WithMetadata(map[string]any{"step": step})
}

// InvalidToken wraps a parse or validation failure.
func InvalidToken(cause error) error {
	return errors.Wrap(cause, errors.CategoryAuth, "invalid or expired token").
		WithTextCode(TextCodeInvalidToken).
		WithCode(errors.CodeUnauthorized)
}

// Forbidden returns ErrForbidden annotated with the group that was required.
func Forbidden(group string) error {
	return errors.New("access denied: "+group+" membership required", errors.CategoryAuthz).
		WithTextCode(TextCodeForbidden).
		WithCode(errors.CodeForbidden).
		WithMetadata(map[string]any{"group": group})
}

// ValidationFailed wraps payload validation errors.
func ValidationFailed(cause error) error {
	return errors.Wrap(cause, errors.CategoryValidation, "invalid payload").
		WithTextCode(TextCodeValidationFailed).
		WithCode(errors.CodeBadRequest)
}

// HasTextCode reports whether err carries the given text code.
func HasTextCode(err error, code string) bool {
	if err == nil {
		return false
	}
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		return false
	}
	return richErr.TextCode == code
}

func IsDirectoryUnavailable(err error) bool { return HasTextCode(err, TextCodeDirectoryUnavailable) }
func IsInvalidCredentials(err error) bool   { return HasTextCode(err, TextCodeInvalidCredentials) }
func IsDuplicateIdentity(err error) bool    { return HasTextCode(err, TextCodeDuplicateIdentity) }
func IsDirectoryWriteFailed(err error) bool { return HasTextCode(err, TextCodeDirectoryWriteFailed) }
func IsInvalidToken(err error) bool         { return HasTextCode(err, TextCodeInvalidToken) }
func IsIdentityGone(err error) bool         { return HasTextCode(err, TextCodeIdentityGone) }
func IsForbidden(err error) bool            { return HasTextCode(err, TextCodeForbidden) }
func IsProfileNotFound(err error) bool      { return HasTextCode(err, TextCodeProfileNotFound) }
func IsValidationFailed(err error) bool     { return HasTextCode(err, TextCodeValidationFailed) }

// StatusCode returns the HTTP status carried by err, 500 when it carries none.
func StatusCode(err error) int {
	var richErr *errors.Error
	if errors.As(err, &richErr) && richErr.Code >= 400 && richErr.Code < 600 {
		return richErr.Code
	}
	return http.StatusInternalServerError
}

// PublicMessage returns a message safe to show to clients.
func PublicMessage(err error) string {
	var richErr *errors.Error
	if errors.As(err, &richErr) && richErr.Category != errors.CategoryInternal {
		return richErr.Message
	}
	return "internal server error"
}
