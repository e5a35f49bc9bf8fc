package service

import "errors"

// Domain error taxonomy. Handlers map these to HTTP status codes; anything
// else is treated as an internal failure.
var (
	ErrValidation             = errors.New("validation failed")
	ErrDuplicateUsername      = errors.New("username already exists")
	ErrMemberNotFound         = errors.New("member not found")
	ErrProtectedMember        = errors.New("member record is protected")
	ErrInvalidCurrentPassword = errors.New("current password is incorrect")
	ErrInvalidPhoneFormat     = errors.New("invalid phone number format")
	ErrCodeMismatch           = errors.New("verification code mismatch")
	ErrSessionInvalid         = errors.New("verification session invalid")
	ErrNoAccountFound         = errors.New("no account found")
)
