package model

import (
	"errors"
	"fmt"
)

// ErrorKind names a class of domain error. It is used as the dialog title.
type ErrorKind string

const (
	KindNameExists     ErrorKind = "name exists"
	KindReadOnly       ErrorKind = "read-only database"
	KindUnlinkedFlows  ErrorKind = "unlinked flows"
	KindNoMethods      ErrorKind = "no impact assessment methods"
	KindNoFunctional   ErrorKind = "no functional units"
	KindMissingUnit    ErrorKind = "missing unit"
	KindParameterCycle ErrorKind = "parameter cycle"
	KindInvalid        ErrorKind = "invalid input"
	KindInUse          ErrorKind = "in use"
)

// DomainError is a user-facing rule violation.
type DomainError struct {
	Kind ErrorKind
	Msg  string
}

// NewDomainError formats a domain error of the given kind.
func NewDomainError(kind ErrorKind, format string, args ...any) *DomainError {
	return &DomainError{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func (e *DomainError) Error() string {
	if e.Msg == "" {
		return string(e.Kind)
	}
	return string(e.Kind) + ": " + e.Msg
}

// Is matches any DomainError of the same kind, so the sentinels below work
// with errors.Is.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	return ok && t.Kind == e.Kind && (t.Msg == "" || t.Msg == e.Msg)
}

var (
	ErrNameExists     = &DomainError{Kind: KindNameExists}
	ErrReadOnly       = &DomainError{Kind: KindReadOnly}
	ErrUnlinkedFlows  = &DomainError{Kind: KindUnlinkedFlows}
	ErrNoMethods      = &DomainError{Kind: KindNoMethods}
	ErrNoFunctional   = &DomainError{Kind: KindNoFunctional}
	ErrMissingUnit    = &DomainError{Kind: KindMissingUnit}
	ErrParameterCycle = &DomainError{Kind: KindParameterCycle}
	ErrInvalid        = &DomainError{Kind: KindInvalid}
	ErrInUse          = &DomainError{Kind: KindInUse}
)

// KindOf returns the kind of the first DomainError in err's chain.
func KindOf(err error) (ErrorKind, bool) {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Kind, true
	}
	return "", false
}

// NotFoundError reports a referenced record that has vanished.
type NotFoundError struct {
	What string
	Key  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.What, e.Key)
}

// ErrNotFound matches every NotFoundError with errors.Is.
var ErrNotFound = errors.New("not found")

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// NotFound builds a NotFoundError.
func NotFound(what, key string) error {
	return &NotFoundError{What: what, Key: key}
}
