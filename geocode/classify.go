package geocode

import "errors"

// Failure names the class of a failed lookup.
type Failure string

const (
	FailureNone       Failure = ""
	FailureConfig     Failure = "config"
	FailureValidation Failure = "validation"
	FailureNotFound   Failure = "not_found"
	FailureProvider   Failure = "provider"
)

// Classify maps a Geocode error to its failure class. Errors that are not
// one of this package's sentinels count as provider failures.
func Classify(err error) Failure {
	switch {
	case err == nil:
		return FailureNone
	case errors.Is(err, ErrMissingAPIKey):
		return FailureConfig
	case errors.Is(err, ErrEmptyQuery):
		return FailureValidation
	case errors.Is(err, ErrNotFound):
		return FailureNotFound
	default:
		return FailureProvider
	}
}
