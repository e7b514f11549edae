// Package apperr defines the sentinel error taxonomy shared by every layer of
// recalld, from the domain packages up through the HTTP API.
package apperr

import "errors"

// Sentinel errors. Callers compare with errors.Is; never string-match.
var (
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
	ErrValidation = errors.New("validation")
	ErrTransient  = errors.New("transient")
	ErrStore      = errors.New("store")
	ErrLLMParse   = errors.New("llm parse")
)

// Code is the short machine-readable error_code returned in HTTP error bodies.
type Code string

const (
	CodeValidation Code = "validation"
	CodeNotFound   Code = "not_found"
	CodeConflict   Code = "conflict"
	CodeTransient  Code = "transient"
	CodeStore      Code = "store"
	CodeLLMParse   Code = "llm_parse"
	CodeFatal      Code = "fatal"
)

// CodeFor maps a sentinel error to its taxonomy code, defaulting to CodeStore
// for anything unrecognized so internals never leak through the HTTP surface.
func CodeFor(err error) Code {
	switch {
	case errors.Is(err, ErrValidation):
		return CodeValidation
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrConflict):
		return CodeConflict
	case errors.Is(err, ErrTransient):
		return CodeTransient
	case errors.Is(err, ErrLLMParse):
		return CodeLLMParse
	default:
		return CodeStore
	}
}
