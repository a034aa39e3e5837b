package document

import (
	"errors"
	"fmt"
)

var (
	ErrParse          = errors.New("parse error")
	ErrTooManyBackups = errors.New("too many backups")
	ErrUnknownFormat  = errors.New("unknown format")

	// ErrPreserveUnsupported is returned by [Format.Patch] when the edit cannot
	// be expressed on the original text. Writers fall back to a full rewrite.
	ErrPreserveUnsupported = errors.New("format preserving write not supported")
)

// ParseError reports malformed input. Line is 1-based, 0 when unknown.
type ParseError struct {
	File string
	Line int
	Err  error
}

func (e *ParseError) Error() string {
	switch {
	case e.File != "" && e.Line > 0:
		return fmt.Sprintf("%s:%d: %v", e.File, e.Line, e.Err)
	case e.File != "":
		return fmt.Sprintf("%s: %v", e.File, e.Err)
	case e.Line > 0:
		return fmt.Sprintf("line %d: %v", e.Line, e.Err)
	}
	return e.Err.Error()
}

func (e *ParseError) Unwrap() error { return e.Err }

func (e *ParseError) Is(target error) bool { return target == ErrParse }

// TooManyBackupsError is returned when every backup slot of File is taken.
type TooManyBackupsError struct {
	File  string
	Limit int
}

func (e *TooManyBackupsError) Error() string {
	return fmt.Sprintf("%s: all %d backup slots are in use", e.File, e.Limit)
}

func (e *TooManyBackupsError) Is(target error) bool { return target == ErrTooManyBackups }
