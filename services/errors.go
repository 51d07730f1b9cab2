package services

import (
	"errors"
	"fmt"
)

// ErrorKind - класс ошибки сервиса сообщений. Все они терминальны для запроса
type ErrorKind string

const (
	KindValidation           ErrorKind = "validation"
	KindAuthorization        ErrorKind = "authorization"
	KindNotFound             ErrorKind = "not_found"
	KindConversationMismatch ErrorKind = "conversation_mismatch"
	KindUpstreamUnavailable  ErrorKind = "upstream_unavailable"
	KindUnauthenticated      ErrorKind = "unauthenticated"
)

type Error struct {
	Kind ErrorKind
	Msg  string
}

func (e *Error) Error() string {
	return e.Msg
}

// Is сравнивает по классу, чтобы работал errors.Is(err, ErrNotFound).
// Несовпадение диалога - частный случай ошибки валидации.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if e.Kind == t.Kind {
		return true
	}
	return e.Kind == KindConversationMismatch && t.Kind == KindValidation
}

var (
	ErrValidation           = &Error{Kind: KindValidation, Msg: "validation error"}
	ErrAuthorization        = &Error{Kind: KindAuthorization, Msg: "not authorized"}
	ErrNotFound             = &Error{Kind: KindNotFound, Msg: "not found"}
	ErrConversationMismatch = &Error{Kind: KindConversationMismatch, Msg: "conversation mismatch"}
	ErrUpstreamUnavailable  = &Error{Kind: KindUpstreamUnavailable, Msg: "upstream unavailable"}
	ErrUnauthenticated      = &Error{Kind: KindUnauthenticated, Msg: "unauthenticated"}
)

func newError(kind ErrorKind, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func validationError(format string, args ...any) error {
	return newError(KindValidation, format, args...)
}

func authorizationError(format string, args ...any) error {
	return newError(KindAuthorization, format, args...)
}

func notFoundError(format string, args ...any) error {
	return newError(KindNotFound, format, args...)
}

func mismatchError(format string, args ...any) error {
	return newError(KindConversationMismatch, format, args...)
}

func upstreamError(format string, args ...any) error {
	return newError(KindUpstreamUnavailable, format, args...)
}

// KindOf возвращает класс ошибки; пустую строку для ошибок хранилища и прочих
func KindOf(err error) ErrorKind {
	var e *Error
	if err != nil && errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
