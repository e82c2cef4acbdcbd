package models

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound                = errors.New("required field not found")
	ErrUnsupportedSource       = errors.New("no source adapter matches url")
	ErrLoginRequired           = errors.New("login required in shared browser session")
	ErrEnrichmentFailed        = errors.New("enrichment request failed")
	ErrInsufficientCredits     = errors.New("insufficient enrichment credits")
	ErrCertificationValidation = errors.New("certification validation failed")
	ErrCategoryNotFound        = errors.New("category mapping not found")
	ErrImageFetch              = errors.New("image fetch failed")
)

// FieldError reports a required field that could not be located on a page.
type FieldError struct {
	Field string
	URL   string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s not found on %s", e.Field, e.URL)
}

func (e *FieldError) Unwrap() error {
	return ErrNotFound
}
