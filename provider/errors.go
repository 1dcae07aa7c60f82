package provider

import (
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	textCodeInvalidCredentials = "INVALID_CREDENTIALS"
	textCodeOTPInvalid         = "OTP_INVALID_OR_EXPIRED"
	textCodeNoSession          = "NO_SESSION"
	textCodeAlreadyRegistered  = "ALREADY_REGISTERED"
)

// ErrInvalidCredentials is the generic sign-in failure. The message is
// deliberately uniform so authentication errors never reveal whether the
// account exists.
var ErrInvalidCredentials = goerrors.New("invalid login credentials", goerrors.CategoryAuth).
	WithTextCode(textCodeInvalidCredentials).
	WithCode(goerrors.CodeUnauthorized)

// ErrCodeInvalidOrExpired is returned when OTP verification fails.
var ErrCodeInvalidOrExpired = goerrors.New("invalid or expired code, request a new one", goerrors.CategoryValidation).
	WithTextCode(textCodeOTPInvalid).
	WithCode(goerrors.CodeBadRequest)

// ErrNoSession is returned by operations that need an authenticated session
// when none is held.
var ErrNoSession = goerrors.New("no active provider session", goerrors.CategoryAuth).
	WithTextCode(textCodeNoSession).
	WithCode(goerrors.CodeUnauthorized)

// ErrAlreadyRegistered is surfaced when the provider's duplicate detection
// rejects a sign-up.
var ErrAlreadyRegistered = goerrors.New("account already exists, please log in instead", goerrors.CategoryConflict).
	WithTextCode(textCodeAlreadyRegistered).
	WithCode(goerrors.CodeConflict)

// IsInvalidOTP reports whether err is the OTP verification failure.
func IsInvalidOTP(err error) bool {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr.TextCode == textCodeOTPInvalid
	}
	return false
}

// IsAlreadyRegistered reports whether err is the duplicate sign-up failure.
func IsAlreadyRegistered(err error) bool {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr.TextCode == textCodeAlreadyRegistered
	}
	return false
}

// looksLikeDuplicate matches the provider's duplicate-account message.
func looksLikeDuplicate(msg string) bool {
	return strings.Contains(strings.ToLower(msg), "already registered")
}

// looksLikeInvalidOTP matches the provider's OTP failure messages.
func looksLikeInvalidOTP(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "invalid") || strings.Contains(lower, "expired")
}
