package composite

import (
	"errors"
	"fmt"
)

// ErrLayoutMismatch is returned when the number of photos differs from the
// number of layout slots.
var ErrLayoutMismatch = errors.New("photo count does not match layout slots")

// TemplateLoadError reports that the template image could not be loaded.
type TemplateLoadError struct {
	Template string
	Err      error
}

func (e *TemplateLoadError) Error() string {
	return fmt.Sprintf("load template %q: %v", e.Template, e.Err)
}

func (e *TemplateLoadError) Unwrap() error {
	return e.Err
}

// PhotoLoadError reports that a captured photo could not be decoded.
type PhotoLoadError struct {
	Index int
	Err   error
}

func (e *PhotoLoadError) Error() string {
	return fmt.Sprintf("load photo %d: %v", e.Index, e.Err)
}

func (e *PhotoLoadError) Unwrap() error {
	return e.Err
}
