// Package errors provides categorized errors with component context.
//
// Errors are built fluently:
//
//	return errors.Newf("unknown operator %q", op).
//		Component("alerting").
//		Category(errors.CategoryValidation).
//		Context("operation", "parse_condition").
//		Build()
//
// Built errors are handed to the registered Reporter, if any.
package errors

import (
	stderrors "errors"
	"fmt"
	"maps"
	"sync"
)

// Category classifies an error for reporting and HTTP mapping.
type Category string

const (
	CategoryConfiguration Category = "configuration"
	CategoryValidation    Category = "validation"
	CategoryEvaluation    Category = "evaluation"
	CategoryDelivery      Category = "delivery"
	CategoryStorage       Category = "storage"
	CategoryNotFound      Category = "not-found"
	CategoryGeneric       Category = "generic"
)

// EnhancedError is an error annotated with component, category and context.
type EnhancedError struct {
	Err       error
	component string
	category  Category
	context   map[string]any
}

func (e *EnhancedError) Error() string { return e.Err.Error() }
func (e *EnhancedError) Unwrap() error { return e.Err }

func (e *EnhancedError) Component() string  { return e.component }
func (e *EnhancedError) Category() Category { return e.category }

// Context returns a copy of the attached context values.
func (e *EnhancedError) Context() map[string]any {
	return maps.Clone(e.context)
}

// ErrorBuilder accumulates metadata before Build is called.
type ErrorBuilder struct {
	err       error
	component string
	category  Category
	context   map[string]any
}

// New starts a builder around an existing error.
func New(err error) *ErrorBuilder {
	if err == nil {
		err = stderrors.New("unknown error")
	}
	return &ErrorBuilder{err: err, category: CategoryGeneric}
}

// Newf starts a builder with a formatted message. %w verbs are honored.
func Newf(format string, args ...any) *ErrorBuilder {
	return New(fmt.Errorf(format, args...))
}

func (b *ErrorBuilder) Component(component string) *ErrorBuilder {
	b.component = component
	return b
}

func (b *ErrorBuilder) Category(category Category) *ErrorBuilder {
	b.category = category
	return b
}

func (b *ErrorBuilder) Context(key string, value any) *ErrorBuilder {
	if b.context == nil {
		b.context = make(map[string]any)
	}
	b.context[key] = value
	return b
}

// Build finalizes the error and forwards it to the active reporter.
func (b *ErrorBuilder) Build() *EnhancedError {
	ee := &EnhancedError{
		Err:       b.err,
		component: b.component,
		category:  b.category,
		context:   b.context,
	}
	if r := currentReporter(); r != nil {
		r.Report(ee)
	}
	return ee
}

// Reporter receives every built error.
type Reporter interface {
	Report(err *EnhancedError)
}

var (
	reporterMu sync.RWMutex
	reporter   Reporter
)

// SetReporter installs r as the process-wide reporter. Passing nil disables reporting.
func SetReporter(r Reporter) {
	reporterMu.Lock()
	defer reporterMu.Unlock()
	reporter = r
}

func currentReporter() Reporter {
	reporterMu.RLock()
	defer reporterMu.RUnlock()
	return reporter
}

// IsCategory reports whether any EnhancedError in err's chain has the given category.
func IsCategory(err error, category Category) bool {
	var ee *EnhancedError
	for err != nil {
		if !stderrors.As(err, &ee) {
			return false
		}
		if ee.category == category {
			return true
		}
		err = ee.Err
	}
	return false
}

// Standard library passthroughs so callers only import one errors package.
func Is(err, target error) bool   { return stderrors.Is(err, target) }
func As(err error, target any) bool { return stderrors.As(err, target) }
func Join(errs ...error) error     { return stderrors.Join(errs...) }

// NewStd creates a plain sentinel error.
func NewStd(text string) error { return stderrors.New(text) }
