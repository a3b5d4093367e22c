package core

import "errors"

var (
	ErrInvalidAddress    = errors.New("invalid public address")
	ErrNoActiveChallenge = errors.New("no active challenge found")
	ErrInvalidChallenge  = errors.New("invalid challenge")
	ErrInvalidSignature  = errors.New("invalid signature")
	ErrDatabase          = errors.New("database error")

	ErrInvalidToken   = errors.New("invalid token")
	ErrSessionExpired = errors.New("session has expired")
)

// ErrorKind is the caller-visible class of a failed operation
type ErrorKind string

const (
	KindInvalidAddress    ErrorKind = "invalid_address"
	KindNoActiveChallenge ErrorKind = "no_active_challenge"
	KindInvalidChallenge  ErrorKind = "invalid_challenge"
	KindInvalidSignature  ErrorKind = "invalid_signature"
	KindDatabase          ErrorKind = "database_error"
	KindInvalidToken      ErrorKind = "invalid_token"
	KindSessionExpired    ErrorKind = "session_expired"
	KindInternal          ErrorKind = "internal_error"
)

var kinds = []struct {
	err  error
	kind ErrorKind
}{
	{ErrInvalidAddress, KindInvalidAddress},
	{ErrNoActiveChallenge, KindNoActiveChallenge},
	{ErrInvalidChallenge, KindInvalidChallenge},
	{ErrInvalidSignature, KindInvalidSignature},
	{ErrDatabase, KindDatabase},
	{ErrInvalidToken, KindInvalidToken},
	{ErrSessionExpired, KindSessionExpired},
}

// KindOf classifies err by the first sentinel it wraps.
// Unknown errors are KindInternal.
func KindOf(err error) ErrorKind {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindInternal
}
