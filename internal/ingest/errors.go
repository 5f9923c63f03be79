package ingest

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
)

// Structural error kinds. They abort the whole upload before any row is processed.
var (
	ErrUnsupportedFormat    = errors.New("unsupported_format")
	ErrSizeLimitExceeded    = errors.New("size_limit_exceeded")
	ErrMalformedInput       = errors.New("malformed_input")
	ErrMissingEmailColumn   = errors.New("missing_email_column")
	ErrAmbiguousEmailColumn = errors.New("ambiguous_email_column")
)

// StructuralError is returned when an upload cannot be interpreted at all.
// Detail is safe to show to the end user as is.
type StructuralError struct {
	Kind   error
	Detail string
	Err    error
}

func (e *StructuralError) Error() string {
	return e.Detail
}

// Unwrap exposes both the kind and the underlying cause to errors.Is/As.
func (e *StructuralError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Code returns the machine readable kind, e.g. "missing_email_column".
func (e *StructuralError) Code() string {
	return e.Kind.Error()
}

func unsupportedFormat(filename string) error {
	return &StructuralError{
		Kind:   ErrUnsupportedFormat,
		Detail: fmt.Sprintf("Invalid file format for %q. Please upload a CSV, TSV or XLSX file.", filename),
	}
}

// SizeLimitError reports an upload that exceeded limit before its full size
// was known, e.g. when the request body was cut off by the transport.
func SizeLimitError(limit int64) error {
	return sizeLimitExceeded(-1, limit)
}

func sizeLimitExceeded(size, limit int64) error {
	detail := fmt.Sprintf("File is too large. The maximum upload size is %s.", humanize.IBytes(uint64(limit)))
	if size >= 0 {
		detail = fmt.Sprintf("File is too large (%s). The maximum upload size is %s.",
			humanize.IBytes(uint64(size)), humanize.IBytes(uint64(limit)))
	}
	return &StructuralError{Kind: ErrSizeLimitExceeded, Detail: detail}
}

func malformedInput(err error) error {
	return &StructuralError{
		Kind:   ErrMalformedInput,
		Detail: fmt.Sprintf("Error parsing file: %v", err),
		Err:    err,
	}
}

func missingEmailColumn() error {
	return &StructuralError{
		Kind:   ErrMissingEmailColumn,
		Detail: "File must contain an 'email' column.",
	}
}

func ambiguousEmailColumn(headers []string) error {
	quoted := make([]string, len(headers))
	for i, h := range headers {
		quoted[i] = fmt.Sprintf("%q", h)
	}
	return &StructuralError{
		Kind: ErrAmbiguousEmailColumn,
		Detail: fmt.Sprintf("File has more than one email column (%s). Keep exactly one and upload again.",
			strings.Join(quoted, ", ")),
	}
}
