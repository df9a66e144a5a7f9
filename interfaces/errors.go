package interfaces

import "errors"

var (
	// ErrNotFound is returned when a subject, model version, or active
	// embedding does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDimensionMismatch is returned when a vector does not have the
	// expected number of elements. Mismatched vectors fail fast and are
	// never truncated or broadcast.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrConfidenceRange is returned when a detector confidence score is
	// outside [0.0, 1.0].
	ErrConfidenceRange = errors.New("confidence score out of range")

	// ErrEmptyGradient is returned when a gradient payload carries no
	// values.
	ErrEmptyGradient = errors.New("empty gradient payload")

	// ErrInvalidSampleCount is returned when a contribution declares
	// fewer than one local sample.
	ErrInvalidSampleCount = errors.New("sample count must be at least 1")

	// ErrDuplicateVersion is returned when a model version identifier
	// already exists in the registry.
	ErrDuplicateVersion = errors.New("model version already exists")

	// ErrMissingKey is returned when the embedding encryption key is
	// absent or has the wrong length. The service must not start in this
	// state.
	ErrMissingKey = errors.New("embedding encryption key missing or malformed")

	// ErrCryptoFailure is returned on authentication-tag mismatch or
	// malformed ciphertext. Decryption never returns corrupted floats.
	ErrCryptoFailure = errors.New("embedding decryption failed")

	// ErrDegenerateVector is returned when a vector has zero norm and
	// cosine similarity is undefined.
	ErrDegenerateVector = errors.New("degenerate zero-norm vector")

	// ErrVersionSyntax is returned when a model version string does not
	// follow the vMAJOR.MINOR.PATCH form.
	ErrVersionSyntax = errors.New("malformed model version identifier")
)

// IsValidation reports whether err belongs to the validation class of the
// error taxonomy. The HTTP layer maps these to 400 responses.
func IsValidation(err error) bool {
	return errors.Is(err, ErrDimensionMismatch) ||
		errors.Is(err, ErrConfidenceRange) ||
		errors.Is(err, ErrEmptyGradient) ||
		errors.Is(err, ErrInvalidSampleCount) ||
		errors.Is(err, ErrVersionSyntax)
}
