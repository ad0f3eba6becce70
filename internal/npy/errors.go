package npy

import "fmt"

// ErrorKind classifies a decode failure.
type ErrorKind int

const (
	BadMagic ErrorKind = iota + 1
	UnsupportedDType
	SizeMismatch
	MalformedHeader
	UnsupportedShape
)

func (k ErrorKind) String() string {
	switch k {
	case BadMagic:
		return "bad magic"
	case UnsupportedDType:
		return "unsupported dtype"
	case SizeMismatch:
		return "size mismatch"
	case MalformedHeader:
		return "malformed header"
	case UnsupportedShape:
		return "unsupported shape"
	}
	return "unknown"
}

// ParseError is returned by Decode for every rejected buffer.
type ParseError struct {
	Kind   ErrorKind
	Detail string
}

func (e *ParseError) Error() string {
	if e.Detail == "" {
		return "npy: " + e.Kind.String()
	}
	return "npy: " + e.Kind.String() + ": " + e.Detail
}

// Is matches any ParseError of the same kind, so callers can test with
// errors.Is(err, npy.ErrBadMagic).
func (e *ParseError) Is(target error) bool {
	t, ok := target.(*ParseError)
	return ok && t.Kind == e.Kind
}

var (
	ErrBadMagic         = &ParseError{Kind: BadMagic}
	ErrUnsupportedDType = &ParseError{Kind: UnsupportedDType}
	ErrSizeMismatch     = &ParseError{Kind: SizeMismatch}
	ErrMalformedHeader  = &ParseError{Kind: MalformedHeader}
	ErrUnsupportedShape = &ParseError{Kind: UnsupportedShape}
)

func parseErrorf(kind ErrorKind, format string, args ...interface{}) error {
	return &ParseError{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}
