package omr

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
)

// ErrorKind is a coarse error class used in logs and batch reports.
type ErrorKind string

const (
	KindGeometry      ErrorKind = "geometry"
	KindGridAlignment ErrorKind = "grid_alignment"
	KindInvalidKey    ErrorKind = "invalid_key"
	KindCancelled     ErrorKind = "cancelled"
	KindIO            ErrorKind = "io"
	KindUnknown       ErrorKind = "unknown"
)

// GeometryError reports that the sheet outline could not be recovered.
type GeometryError struct {
	Reason string
	Err    error
}

func (e *GeometryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("geometry: %s: %v", e.Reason, e.Err)
	}
	return "geometry: " + e.Reason
}

func (e *GeometryError) Unwrap() error { return e.Err }

// GridAlignmentError reports that the bubble grid could not be registered.
type GridAlignmentError struct {
	Reason string
	// Matched is the number of anchors that were matched, when known.
	Matched int
	Err     error
}

func (e *GridAlignmentError) Error() string {
	msg := fmt.Sprintf("grid alignment: %s (matched %d anchors)", e.Reason, e.Matched)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *GridAlignmentError) Unwrap() error { return e.Err }

// InvalidKeyError reports an incomplete or malformed answer key.
type InvalidKeyError struct {
	Reason string
	// Variant, Subject and Question locate the problem when it is specific
	// to one entry. Question is 1-based; 0 means not applicable.
	Variant  string
	Subject  string
	Question int
	Err      error
}

func (e *InvalidKeyError) Error() string {
	msg := "invalid key"
	if e.Variant != "" {
		msg += fmt.Sprintf(" %q", e.Variant)
	}
	msg += ": " + e.Reason
	switch {
	case e.Subject != "" && e.Question > 0:
		msg += fmt.Sprintf(" (%s question %d)", e.Subject, e.Question)
	case e.Subject != "":
		msg += fmt.Sprintf(" (%s)", e.Subject)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *InvalidKeyError) Unwrap() error { return e.Err }

// Kind classifies err. Typed errors from this package win over whatever
// they wrap; cancellation is checked next, then file system errors.
func Kind(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}

	var geo *GeometryError
	if errors.As(err, &geo) {
		return KindGeometry
	}
	var grid *GridAlignmentError
	if errors.As(err, &grid) {
		return KindGridAlignment
	}
	var key *InvalidKeyError
	if errors.As(err, &key) {
		return KindInvalidKey
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindCancelled
	}
	var perr *fs.PathError
	if errors.As(err, &perr) {
		return KindIO
	}
	return KindUnknown
}
