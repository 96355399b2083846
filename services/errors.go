package services

import (
	"errors"
	"fmt"
)

// ErrorKind groups service errors by how the caller should react to them.
type ErrorKind string

const (
	KindValidation     ErrorKind = "validation"
	KindConflict       ErrorKind = "conflict"
	KindNotFound       ErrorKind = "not_found"
	KindPermission     ErrorKind = "permission"
	KindAuthentication ErrorKind = "authentication"
	KindInternal       ErrorKind = "internal"
)

// Error is an expected, typed outcome of an operation. The package-level values below are
// sentinels: compare with errors.Is, extract with errors.As.
type Error struct {
	Kind    ErrorKind
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func newError(kind ErrorKind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

var (
	// Ошибки валидации
	ErrValidationFailed  = newError(KindValidation, "validation_failed", "validation failed")
	ErrPasswordTooShort  = newError(KindValidation, "password_too_short", "password is too short")
	ErrPasswordTooLong   = newError(KindValidation, "password_too_long", "password is too long")
	ErrUploadsDisabled   = newError(KindValidation, "uploads_disabled", "file uploads are not configured")
	ErrUnsupportedUpload = newError(KindValidation, "unsupported_upload", "unsupported file type or size")

	// Ошибки конфликтов
	ErrDuplicateUsername = newError(KindConflict, "duplicate_username", "username is already in use")
	ErrDuplicateEmail    = newError(KindConflict, "duplicate_email", "email address is already in use")
	ErrAlreadyMember     = newError(KindConflict, "already_member", "user is already a member of the team")
	ErrTeamFull          = newError(KindConflict, "team_full", "team has reached the game's team size")
	ErrGameInUse         = newError(KindConflict, "game_in_use", "game cannot be deleted while teams reference it")
	ErrGameNameConflict  = newError(KindConflict, "game_name_conflict", "game name already exists")
	ErrTeamNameConflict  = newError(KindConflict, "team_name_conflict", "team name is already in use for this game")

	// Ресурс не найден
	ErrUserNotFound = newError(KindNotFound, "user_not_found", "user not found")
	ErrTeamNotFound = newError(KindNotFound, "team_not_found", "team not found")
	ErrGameNotFound = newError(KindNotFound, "game_not_found", "game not found")
	ErrNotMember    = newError(KindNotFound, "not_member", "user is not a member of the team")

	// Ошибки авторизации/доступа
	ErrPermissionDenied = newError(KindPermission, "permission_denied", "operation not allowed for the current user")
	ErrSelfDeletion     = newError(KindPermission, "self_deletion", "you cannot delete your own account")

	// Ошибки аутентификации
	ErrInvalidCredentials = newError(KindAuthentication, "invalid_credentials", "invalid username or password")
	ErrUnauthenticated    = newError(KindAuthentication, "unauthenticated", "authentication required")
	ErrWrongPassword      = newError(KindAuthentication, "wrong_password", "current password is incorrect")

	ErrInternal = newError(KindInternal, "internal", "the server encountered a problem and could not process your request")
)

// AsError returns the typed error carried by err, if any.
func AsError(err error) (*Error, bool) {
	var svcErr *Error
	if errors.As(err, &svcErr) {
		return svcErr, true
	}
	return nil, false
}

// KindOf reports the kind of err; anything untyped is internal.
func KindOf(err error) ErrorKind {
	if svcErr, ok := AsError(err); ok {
		return svcErr.Kind
	}
	return KindInternal
}

func validationError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidationFailed, fmt.Sprintf(format, args...))
}
