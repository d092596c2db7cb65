package sdl

import (
	"errors"
	"fmt"
)

// =============================================================================
// Error Kinds
// =============================================================================

// Kind classifies a transform failure. The set is closed: every *Error
// carries exactly one of the kinds below.
type Kind int

const (
	// KindFieldValidation: a structured field fails a local rule during Normalize.
	KindFieldValidation Kind = iota + 1
	// KindSyntax: descriptor text is lexically or structurally malformed.
	KindSyntax
	// KindSemanticValidation: descriptor is well-formed but references
	// undefined entities or violates a domain rule.
	KindSemanticValidation
	// KindTemplate: descriptor uses a construct outside the simple subset.
	KindTemplate
)

func (k Kind) String() string {
	switch k {
	case KindFieldValidation:
		return "field_validation"
	case KindSyntax:
		return "syntax"
	case KindSemanticValidation:
		return "semantic_validation"
	case KindTemplate:
		return "template"
	default:
		return "unknown"
	}
}

// Sentinels matched by errors.Is against an *Error of the same kind.
var (
	ErrFieldValidation    = errors.New("field validation failed")
	ErrSyntax             = errors.New("invalid SDL syntax")
	ErrSemanticValidation = errors.New("invalid SDL")
	ErrTemplate           = errors.New("unsupported SDL construct")

	// ErrEmptyInput is wrapped by the syntax error returned for blank text.
	ErrEmptyInput = errors.New("SDL is empty")
)

func (k Kind) sentinel() error {
	switch k {
	case KindFieldValidation:
		return ErrFieldValidation
	case KindSyntax:
		return ErrSyntax
	case KindSemanticValidation:
		return ErrSemanticValidation
	case KindTemplate:
		return ErrTemplate
	default:
		return nil
	}
}

// =============================================================================
// Error Type
// =============================================================================

// Error is the single error type raised by Normalize and Parse.
// Message is user-facing and is surfaced verbatim by the transform facade.
type Error struct {
	Kind    Kind
	Field   string // e.g. "services[0].placement.name" or "profiles.placement.dcloud"
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel of the error's kind.
func (e *Error) Is(target error) bool {
	s := e.Kind.sentinel()
	return s != nil && target == s
}

// NewFieldError creates a KindFieldValidation error.
func NewFieldError(field, message string) *Error {
	return &Error{Kind: KindFieldValidation, Field: field, Message: message}
}

// NewSyntaxError creates a KindSyntax error.
func NewSyntaxError(field, message string, err error) *Error {
	return &Error{Kind: KindSyntax, Field: field, Message: message, Err: err}
}

// NewSemanticError creates a KindSemanticValidation error.
func NewSemanticError(field, message string) *Error {
	return &Error{Kind: KindSemanticValidation, Field: field, Message: message}
}

// NewTemplateError creates a KindTemplate error.
func NewTemplateError(field, message string) *Error {
	return &Error{Kind: KindTemplate, Field: field, Message: message}
}

// KindOf returns the kind of err, or 0 when err is not an *Error.
func KindOf(err error) Kind {
	var sdlErr *Error
	if errors.As(err, &sdlErr) {
		return sdlErr.Kind
	}
	return 0
}
