package designer

import "errors"

var (
	// ErrMalformedRequest is returned for create requests missing type, source or title.
	ErrMalformedRequest = errors.New("malformed element request")
	// ErrAssetFailed wraps decode and fetch failures of an element's source.
	ErrAssetFailed = errors.New("asset failed to load")
	// ErrConstraintViolation is returned when a value falls outside its declared bounds.
	ErrConstraintViolation = errors.New("constraint violation")
	// ErrElementNotFound is returned for unknown element ids.
	ErrElementNotFound = errors.New("element not found")
	// ErrViewNotFound is returned for out of range view indexes.
	ErrViewNotFound = errors.New("view not found")
	// ErrLoadCanceled is returned when an in-flight load is aborted.
	ErrLoadCanceled = errors.New("load canceled")
	// ErrNothingToUndo and ErrNothingToRedo report an empty history stack.
	ErrNothingToUndo = errors.New("nothing to undo")
	ErrNothingToRedo = errors.New("nothing to redo")
	// ErrViewLocked is returned when adding custom elements to a locked view.
	ErrViewLocked = errors.New("view is locked")
)
