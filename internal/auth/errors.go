package auth

import "errors"

var (
	ErrNotFound     = errors.New("auth: not found")
	ErrConflict     = errors.New("auth: already exists")
	ErrInvalidInput = errors.New("auth: invalid input")
	ErrUnauthorized = errors.New("auth: unauthorized")
)

// Token verification failures. Verify reports the signature failure even for
// tokens that are also expired: a tampered token is never reported as merely
// expired.
var (
	ErrTokenExpired     = errors.New("auth: token expired")
	ErrTokenMalformed   = errors.New("auth: token malformed")
	ErrInvalidSignature = errors.New("auth: invalid token signature")
	ErrWrongTokenKind   = errors.New("auth: wrong token kind")
)
