package accessgrants

import "errors"

var (
	ErrValidation        = errors.New("validation error")
	ErrDuplicateRequest  = errors.New("duplicate request")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrForbidden         = errors.New("forbidden")
	ErrNotFound          = errors.New("not found")

	// ErrStaleRevision: la revision presentada (o la usada en el CAS) ya no es la vigente.
	ErrStaleRevision = errors.New("stale revision")
	// ErrConflict: se agotaron los reintentos de CAS.
	ErrConflict = errors.New("conflict")
)
