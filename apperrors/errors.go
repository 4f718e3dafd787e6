package apperrors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Kind - категория ошибки, видимая вызывающей стороне
type Kind string

const (
	KindInvalidCard       Kind = "INVALID_CARD"
	KindCardBlocked       Kind = "CARD_BLOCKED"
	KindInvalidPin        Kind = "INVALID_PIN"
	KindNotFound          Kind = "NOT_FOUND"
	KindInsufficientFunds Kind = "INSUFFICIENT_FUNDS"
	KindLimitExceeded     Kind = "LIMIT_EXCEEDED"
	KindNotLinked         Kind = "NOT_LINKED"
	KindUnauthorized      Kind = "UNAUTHORIZED"
	KindAlreadyEnded      Kind = "ALREADY_ENDED"
	KindValidation        Kind = "VALIDATION"
	KindConflict          Kind = "CONFLICT"
	KindInternal          Kind = "INTERNAL"
)

// Доменные ошибки для сравнения через errors.Is
var (
	ErrNotFound          = &Error{Kind: KindNotFound}
	ErrInsufficientFunds = &Error{Kind: KindInsufficientFunds}
	ErrLimitExceeded     = &Error{Kind: KindLimitExceeded}
	ErrNotLinked         = &Error{Kind: KindNotLinked}
	ErrUnauthorized      = &Error{Kind: KindUnauthorized}
	ErrAlreadyEnded      = &Error{Kind: KindAlreadyEnded}
	ErrValidation        = &Error{Kind: KindValidation}
	ErrConflict          = &Error{Kind: KindConflict}
	ErrInternal          = &Error{Kind: KindInternal}
)

// Error - ошибка ядра. Reason уточняет причину (например, вид превышенного лимита),
// Err хранит внутреннюю причину и никогда не отдается клиенту.
type Error struct {
	Kind   Kind
	Reason string
	Err    error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is сравнивает ошибки по Kind, чтобы errors.Is(err, ErrNotFound) работал для любой причины
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// Public возвращает сообщение, которое можно показать клиенту
func (e *Error) Public() string {
	if e.Kind == KindLimitExceeded && e.Reason != "" {
		return string(e.Kind) + ": " + e.Reason
	}
	if e.Kind == KindValidation && e.Reason != "" {
		return publicMessages[KindValidation] + ": " + e.Reason
	}
	return publicMessages[e.Kind]
}

var publicMessages = map[Kind]string{
	KindInvalidCard:       "Invalid card",
	KindCardBlocked:       "Card is blocked",
	KindInvalidPin:        "Invalid PIN",
	KindNotFound:          "Resource not found",
	KindInsufficientFunds: "Insufficient funds",
	KindLimitExceeded:     "Transaction limit exceeded",
	KindNotLinked:         "Account not linked to this card",
	KindUnauthorized:      "Invalid or expired session",
	KindAlreadyEnded:      "Session already ended",
	KindValidation:        "Invalid request",
	KindConflict:          "Temporary conflict, please retry",
	KindInternal:          "Internal server error",
}

func New(kind Kind, reason string) error {
	return &Error{Kind: kind, Reason: reason}
}

func Wrap(kind Kind, reason string, err error) error {
	return &Error{Kind: kind, Reason: reason, Err: err}
}

func NotFound(entity string) error {
	return &Error{Kind: KindNotFound, Reason: entity + " not found"}
}

func Validation(field, message string) error {
	return &Error{Kind: KindValidation, Reason: fmt.Sprintf("%s %s", field, message)}
}

func LimitExceeded(reason string) error {
	return &Error{Kind: KindLimitExceeded, Reason: reason}
}

// Internal оборачивает сбой инфраструктуры. Таймаут контекста считается
// повторяемым конфликтом, а уже классифицированные ошибки не переоборачиваются.
func Internal(op string, err error) error {
	if err == nil {
		return nil
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindConflict, Reason: op + " timed out", Err: err}
	}
	return &Error{Kind: KindInternal, Reason: op, Err: err}
}

// KindOf возвращает категорию ошибки; неизвестные ошибки считаются внутренними
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// IsKind проверяет категорию ошибки
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// IsRetryable сообщает, можно ли повторить операцию
func IsRetryable(err error) bool {
	return IsKind(err, KindConflict)
}

// PublicMessage возвращает безопасный текст ошибки для ответа клиенту
func PublicMessage(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Public()
	}
	return publicMessages[KindInternal]
}

// HTTPStatus отображает категорию ошибки на HTTP статус
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindInvalidCard, KindInvalidPin, KindCardBlocked, KindUnauthorized:
		return http.StatusUnauthorized
	case KindInsufficientFunds:
		return http.StatusPaymentRequired
	case KindNotLinked:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindAlreadyEnded:
		return http.StatusConflict
	case KindLimitExceeded:
		return http.StatusUnprocessableEntity
	case KindConflict:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
