package errors

import "errors"

var (
	ErrNotFound = errors.New("not found")
	ErrInvalid  = errors.New("invalid")
	ErrConflict = errors.New("conflict")
	ErrTooMany  = errors.New("too many requests")
	ErrInternal = errors.New("internal")
	ErrProvider = errors.New("provider unavailable")
	ErrStore    = errors.New("store unavailable")
	ErrPoisoned = errors.New("queue entry exceeded retry cap")
)

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsProvider(err error) bool {
	return errors.Is(err, ErrProvider)
}

func IsStore(err error) bool {
	return errors.Is(err, ErrStore)
}
