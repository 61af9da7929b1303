package models

import (
	"errors"
	"fmt"
)

// ErrorKind classifies import failures so callers can tell an invalid file
// apart from a duplicate or a storage failure.
type ErrorKind string

const (
	KindFormat       ErrorKind = "format"
	KindFieldMissing ErrorKind = "field_missing"
	KindValueInvalid ErrorKind = "value_invalid"
	KindDuplicate    ErrorKind = "duplicate"
	KindPersistence  ErrorKind = "persistence"
)

// ImportError is the typed failure produced by the ingestion pipeline.
type ImportError struct {
	Kind  ErrorKind
	File  string
	Field string
	Msg   string
	Err   error
}

func (e *ImportError) Error() string {
	msg := e.Msg
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.File != "" {
		return fmt.Sprintf("%s: %s: %s", e.File, e.Kind, msg)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

func (e *ImportError) Unwrap() error {
	return e.Err
}

// WithFile returns a copy of the error annotated with the source file name.
func (e *ImportError) WithFile(name string) *ImportError {
	clone := *e
	clone.File = name
	return &clone
}

func NewFormatError(msg string) *ImportError {
	return &ImportError{Kind: KindFormat, Msg: msg}
}

func NewFieldMissingError(field, msg string) *ImportError {
	return &ImportError{Kind: KindFieldMissing, Field: field, Msg: msg}
}

func NewValueInvalidError(field, msg string) *ImportError {
	return &ImportError{Kind: KindValueInvalid, Field: field, Msg: msg}
}

func NewDuplicateError(msg string) *ImportError {
	return &ImportError{Kind: KindDuplicate, Msg: msg}
}

func NewPersistenceError(err error) *ImportError {
	return &ImportError{Kind: KindPersistence, Err: err}
}

// KindOf returns the classification of err, or KindPersistence when err is
// not an ImportError (anything unexpected past validation is a storage-side
// failure from the caller's point of view).
func KindOf(err error) ErrorKind {
	var ie *ImportError
	if errors.As(err, &ie) {
		return ie.Kind
	}
	return KindPersistence
}

// IsKind reports whether err carries the given classification.
func IsKind(err error, kind ErrorKind) bool {
	var ie *ImportError
	return errors.As(err, &ie) && ie.Kind == kind
}
