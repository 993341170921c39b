package apperr

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

type Kind string

const (
	KindBadRequest    Kind = "bad_request"
	KindValidation    Kind = "validation"
	KindAuthorization Kind = "authorization"
	KindForbidden     Kind = "forbidden"
	KindNotFound      Kind = "not_found"
	KindPersistence   Kind = "persistence"
	KindIntegrity     Kind = "integrity"
	KindInternal      Kind = "internal"
)

// Error to błąd aplikacji niosący rodzaj i kod HTTP.
type Error struct {
	Kind    Kind   `json:"kind"`
	Code    int    `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
	Err     error  `json:"-"`
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, code int, message string, err error) *Error {
	return &Error{Kind: kind, Code: code, Message: message, Err: err}
}

func BadRequest(message string, err error) *Error {
	return New(KindBadRequest, http.StatusBadRequest, message, err)
}

// Validation niesie szczegóły (np. listę błędów wierszy) w Details.
func Validation(message string, details any) *Error {
	e := New(KindValidation, http.StatusUnprocessableEntity, message, nil)
	e.Details = details
	return e
}

func Unauthorized(message string) *Error {
	return New(KindAuthorization, http.StatusUnauthorized, message, nil)
}

func Forbidden(message string) *Error {
	return New(KindForbidden, http.StatusForbidden, message, nil)
}

func NotFound(message string) *Error {
	return New(KindNotFound, http.StatusNotFound, message, nil)
}

func Persistence(message string, err error) *Error {
	return New(KindPersistence, http.StatusInternalServerError, message, err)
}

func Integrity(message string) *Error {
	return New(KindIntegrity, http.StatusConflict, message, nil)
}

func Internal(err error) *Error {
	return New(KindInternal, http.StatusInternalServerError, "Internal server error", err)
}

// KindOf zwraca rodzaj błędu z łańcucha; nieznane błędy to internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// As wyciąga *Error z łańcucha albo opakowuje err jako internal.
func As(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Internal(err)
}

// ErrorMiddleware zamienia ostatni c.Error na odpowiedź JSON.
func ErrorMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}
		appErr := As(c.Errors.Last().Err)
		body := gin.H{"error": appErr.Message, "kind": appErr.Kind}
		if appErr.Details != nil {
			body["details"] = appErr.Details
		}
		c.AbortWithStatusJSON(appErr.Code, body)
	}
}
