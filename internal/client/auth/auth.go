// Package auth implements the named auth operations on top of the session
// client. Each operation validates its input, calls the server, keeps the
// credential store and the session state in step, and reports failures as a
// single human-readable message.
package auth

import (
	"errors"

	"github.com/iudanet/medlab/internal/client/api"
	"github.com/iudanet/medlab/internal/client/session"
)

// Failure is the normalized error of an auth operation. It carries only the
// message shown to the user; the transport error behind it is not exposed.
type Failure struct {
	Op      session.Op
	Message string
	Expired bool // сессия завершена из-за неудачного refresh
}

func (f *Failure) Error() string {
	return f.Message
}

// Is matches api.ErrSessionExpired for failures that ended the session.
func (f *Failure) Is(target error) bool {
	return f.Expired && target == api.ErrSessionExpired
}

// validationError - ошибка проверки ввода до обращения к серверу
type validationError struct {
	err error
}

func (e *validationError) Error() string {
	return e.err.Error()
}

func invalid(err error) error {
	return &validationError{err: err}
}

// normalize превращает любую ошибку операции в *Failure
func normalize(op session.Op, err error) *Failure {
	var f *Failure
	if errors.As(err, &f) {
		return f
	}

	if errors.Is(err, api.ErrSessionExpired) {
		return &Failure{Op: op, Message: session.SessionExpiredMessage, Expired: true}
	}

	var verr *validationError
	if errors.As(err, &verr) {
		return &Failure{Op: op, Message: verr.Error()}
	}

	var apiErr *api.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return &Failure{Op: op, Message: apiErr.Message}
	}

	// Сетевые ошибки и всё прочее
	return &Failure{Op: op, Message: session.DefaultError(op)}
}
