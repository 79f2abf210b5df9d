package pointio

import (
	"errors"
	"fmt"
)

// ErrUnsupportedFormat is returned for file extensions pointio cannot handle.
var ErrUnsupportedFormat = errors.New("pointio: unsupported file format")

// InputFormatError describes a malformed row in a point file.
// Line and Column are 1-based; zero means not applicable.
type InputFormatError struct {
	Path   string
	Line   int
	Column int
	Reason string
}

func (e *InputFormatError) Error() string {
	switch {
	case e.Line > 0 && e.Column > 0:
		return fmt.Sprintf("%s:%d:%d: %s", e.Path, e.Line, e.Column, e.Reason)
	case e.Line > 0:
		return fmt.Sprintf("%s:%d: %s", e.Path, e.Line, e.Reason)
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Reason)
}
