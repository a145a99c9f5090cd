package assistant

import (
	"errors"
	"fmt"

	"github.com/deusflow/docassist/internal/extract"
	"github.com/deusflow/docassist/internal/ratelimit"
)

var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrNoFile            = errors.New("no file uploaded")
	ErrUnsupportedFormat = errors.New("unsupported file format")
	ErrTooLarge          = errors.New("file too large")
	ErrQuotaExceeded     = errors.New("daily AI quota exceeded")
	ErrNotConfigured     = errors.New("provider not configured")
)

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// classify maps lower-level errors onto the assistant sentinels.
func classify(err error) error {
	var limitErr *ratelimit.ErrLimitExceeded
	switch {
	case err == nil:
		return nil
	case errors.As(err, &limitErr):
		return fmt.Errorf("%w: %v", ErrQuotaExceeded, err)
	case errors.Is(err, extract.ErrInvalidURL):
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return err
}

// IsClientError reports whether err was caused by the request rather than
// by an upstream or internal failure.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrNoFile) ||
		errors.Is(err, ErrUnsupportedFormat) ||
		errors.Is(err, ErrTooLarge) ||
		errors.Is(err, ErrQuotaExceeded)
}
