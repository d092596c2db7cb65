// Package transform orchestrates the SDL normalizer, generator and parser and
// maps every failure to exactly one user-facing message.
package transform

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/artpar/sdlbuilder/internal/core/sdl"
)

// ErrPanic wraps a panic recovered during a transform.
var ErrPanic = errors.New("transform panicked")

// UnexpectedMessage is shown for any failure that is not an *sdl.Error.
const UnexpectedMessage = "Error while parsing SDL file"

// =============================================================================
// Failure
// =============================================================================

// Kind is the user-facing classification of a failure.
type Kind int

const (
	KindFieldValidation Kind = iota + 1
	KindSyntax
	KindValidation
	KindTemplate
	KindUnexpected
)

func (k Kind) String() string {
	switch k {
	case KindFieldValidation:
		return "field_validation"
	case KindSyntax:
		return "syntax"
	case KindValidation:
		return "validation"
	case KindTemplate:
		return "template"
	case KindUnexpected:
		return "unexpected"
	default:
		return "unknown"
	}
}

// Code is the error code returned by the HTTP API.
func (k Kind) Code() string {
	switch k {
	case KindFieldValidation, KindValidation:
		return "validation_error"
	case KindSyntax:
		return "syntax_error"
	case KindTemplate:
		return "template_error"
	default:
		return "unexpected_error"
	}
}

// Failure is the single error type returned by Export and Import.
type Failure struct {
	Kind    Kind
	Message string
	Err     error
}

func (f *Failure) Error() string {
	return f.Message
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// AsFailure extracts a *Failure from err.
func AsFailure(err error) (*Failure, bool) {
	var f *Failure
	ok := errors.As(err, &f)
	return f, ok
}

// Reporter receives failures that could not be classified.
// Implementations must not block.
type Reporter interface {
	Report(err error, extras map[string]string)
}

// =============================================================================
// Transformer
// =============================================================================

// Transformer is safe for concurrent use; it holds no mutable state.
type Transformer struct {
	reporter Reporter
	logger   *slog.Logger

	normalize func([]sdl.Service, sdl.NormalizeOptions) ([]sdl.Service, error)
	parse     func(string, sdl.ParseOptions) ([]sdl.Service, error)
}

// Option configures a Transformer.
type Option func(*Transformer)

// WithReporter sets the diagnostics reporter for unexpected failures.
func WithReporter(r Reporter) Option {
	return func(t *Transformer) {
		if r != nil {
			t.reporter = r
		}
	}
}

// WithLogger sets the logger used for unexpected failures.
func WithLogger(l *slog.Logger) Option {
	return func(t *Transformer) {
		if l != nil {
			t.logger = l
		}
	}
}

// New creates a Transformer.
func New(opts ...Option) *Transformer {
	t := &Transformer{
		reporter: nopReporter{},
		logger:   slog.New(slog.DiscardHandler),

		normalize: sdl.Normalize,
		parse:     sdl.Parse,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Export normalizes services and generates SDL text.
// Field validation failures surface with their message verbatim.
func (t *Transformer) Export(services []sdl.Service, opts sdl.NormalizeOptions) (text string, err error) {
	defer t.recoverPanic("export", &err)

	normalized, err := t.normalize(services, opts)
	if err != nil {
		return "", t.classify("export", err)
	}
	return sdl.Generate(normalized), nil
}

// Normalize returns the normalized copy of services that Export would
// generate from.
func (t *Transformer) Normalize(services []sdl.Service, opts sdl.NormalizeOptions) (normalized []sdl.Service, err error) {
	defer t.recoverPanic("normalize", &err)

	normalized, err = t.normalize(services, opts)
	if err != nil {
		return nil, t.classify("normalize", err)
	}
	return normalized, nil
}

// Import parses SDL text into services. Blank text yields an empty list.
func (t *Transformer) Import(text string, profile sdl.Profile) (services []sdl.Service, err error) {
	defer t.recoverPanic("import", &err)

	if strings.TrimSpace(text) == "" {
		return []sdl.Service{}, nil
	}

	services, err = t.parse(text, sdl.ParseOptions{Profile: profile})
	if err != nil {
		return nil, t.classify("import", err)
	}
	return services, nil
}

// Defaults returns a fresh service for the profile.
func (t *Transformer) Defaults(profile sdl.Profile) sdl.Service {
	return sdl.NewService(profile)
}

func (t *Transformer) classify(op string, err error) *Failure {
	var sdlErr *sdl.Error
	if !errors.As(err, &sdlErr) {
		return t.unexpected(op, err)
	}

	switch sdlErr.Kind {
	case sdl.KindFieldValidation:
		return &Failure{Kind: KindFieldValidation, Message: sdlErr.Message, Err: err}
	case sdl.KindSyntax:
		return &Failure{Kind: KindSyntax, Message: sdlErr.Message, Err: err}
	case sdl.KindSemanticValidation:
		return &Failure{Kind: KindValidation, Message: sdlErr.Message, Err: err}
	case sdl.KindTemplate:
		return &Failure{Kind: KindTemplate, Message: sdlErr.Message, Err: err}
	default:
		return t.unexpected(op, err)
	}
}

func (t *Transformer) unexpected(op string, err error) *Failure {
	t.logger.Error("unexpected transform failure", "op", op, "error", err)
	t.reporter.Report(err, map[string]string{"op": op})
	return &Failure{Kind: KindUnexpected, Message: UnexpectedMessage, Err: err}
}

func (t *Transformer) recoverPanic(op string, err *error) {
	if r := recover(); r != nil {
		*err = t.unexpected(op, fmt.Errorf("%w: %v", ErrPanic, r))
	}
}

type nopReporter struct{}

func (nopReporter) Report(error, map[string]string) {}
