// Package apperr defines the closed set of error kinds used across
// subsystem boundaries. Callers branch on the kind rather than on error
// strings or panics.
package apperr

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindUnknown     Kind = iota
	KindValidation       // malformed or missing input, never retried
	KindNotFound         // referenced account/request absent
	KindAuth             // gateway rejected our credentials
	KindGateway          // non-2xx or transport failure talking to the provider
	KindCrypto           // key fetch or envelope encryption failure
	KindPersistence      // storage failure, unit of work rolled back
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindAuth:
		return "auth"
	case KindGateway:
		return "gateway"
	case KindCrypto:
		return "crypto"
	case KindPersistence:
		return "persistence"
	default:
		return "unknown"
	}
}

type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the kind of err, or KindUnknown for plain errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Is lets errors.Is match two apperr errors by kind.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return false
}

func Validationf(format string, args ...interface{}) *Error {
	return &Error{Kind: KindValidation, Msg: fmt.Sprintf(format, args...)}
}

func NotFoundf(format string, args ...interface{}) *Error {
	return &Error{Kind: KindNotFound, Msg: fmt.Sprintf(format, args...)}
}

func Authf(err error, format string, args ...interface{}) *Error {
	return &Error{Kind: KindAuth, Msg: fmt.Sprintf(format, args...), Err: err}
}

func Gatewayf(err error, format string, args ...interface{}) *Error {
	return &Error{Kind: KindGateway, Msg: fmt.Sprintf(format, args...), Err: err}
}

func Cryptof(err error, format string, args ...interface{}) *Error {
	return &Error{Kind: KindCrypto, Msg: fmt.Sprintf(format, args...), Err: err}
}

func Persistencef(err error, format string, args ...interface{}) *Error {
	return &Error{Kind: KindPersistence, Msg: fmt.Sprintf(format, args...), Err: err}
}
