package boundary

import (
	"errors"
)

var (
	// ErrIndexOutOfRange is the domain error for a display index outside
	// [0, count). Its text is what C callers receive.
	ErrIndexOutOfRange = errors.New("No display found in this index")

	// ErrInvalidHandle reports a null, foreign, freed or never-issued handle.
	// Using such a handle is a caller contract violation; the check is best
	// effort and not part of the safety guarantee.
	ErrInvalidHandle = errors.New("invalid handle")

	// ErrConsumedHandle reports a Display handle that was already passed to
	// NewCapturer.
	ErrConsumedHandle = errors.New("handle was consumed")
)

// Op names the boundary operation a backend failure came from.
type Op string

const (
	OpListDisplays   Op = "display_list"
	OpPrimaryDisplay Op = "display_primary"
	OpGetDisplay     Op = "get_display"
	OpNewCapturer    Op = "capturer_new"
	OpFrame          Op = "capturer_frame"
)

// BackendError carries a backend failure through the boundary. Its message is
// the backend's own text, unmodified.
type BackendError struct {
	Op  Op
	Err error
}

func (e *BackendError) Error() string { return e.Err.Error() }

func (e *BackendError) Unwrap() error { return e.Err }

// Class is the error taxonomy exposed to callers.
type Class int

const (
	ClassNone Class = iota
	// ClassEnumeration: the backend cannot list or identify displays.
	ClassEnumeration
	// ClassDomain: a caller supplied index is out of range.
	ClassDomain
	// ClassSession: the backend cannot open or service a capture session.
	ClassSession
	// ClassContract: a handle was used outside its lifetime.
	ClassContract
	// ClassUnknown: anything else, such as a recovered panic.
	ClassUnknown
)

// String returns a string representation of the class.
func (c Class) String() string {
	switch c {
	case ClassNone:
		return "none"
	case ClassEnumeration:
		return "enumeration"
	case ClassDomain:
		return "domain"
	case ClassSession:
		return "session"
	case ClassContract:
		return "contract"
	default:
		return "unknown"
	}
}

// Classify maps err onto the caller-facing taxonomy.
func Classify(err error) Class {
	if err == nil {
		return ClassNone
	}
	if errors.Is(err, ErrIndexOutOfRange) {
		return ClassDomain
	}
	if errors.Is(err, ErrInvalidHandle) || errors.Is(err, ErrConsumedHandle) {
		return ClassContract
	}
	var be *BackendError
	if errors.As(err, &be) {
		switch be.Op {
		case OpListDisplays, OpPrimaryDisplay, OpGetDisplay:
			return ClassEnumeration
		case OpNewCapturer, OpFrame:
			return ClassSession
		}
	}
	return ClassUnknown
}

func backendErr(op Op, err error) error {
	return &BackendError{Op: op, Err: err}
}
