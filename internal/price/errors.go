package price

import (
	"errors"
	"fmt"
	"time"
)

// LookupError reports a price the upstream API refused to provide.
type LookupError struct {
	Currency  string
	Timestamp time.Time
	Message   string
	// InvalidInput is set when repeating the same request cannot succeed.
	InvalidInput bool
	// Unauthorized is set when the API rejected the configured key.
	Unauthorized bool
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("price lookup %s at %s failed: %s", e.Currency, e.Timestamp.UTC().Format(time.RFC3339), e.Message)
}

// IsInvalidInput reports whether err is a LookupError caused by the request itself.
func IsInvalidInput(err error) bool {
	var lookupErr *LookupError
	return errors.As(err, &lookupErr) && lookupErr.InvalidInput
}

// IsUnauthorized reports whether err is a LookupError caused by a rejected API key.
func IsUnauthorized(err error) bool {
	var lookupErr *LookupError
	return errors.As(err, &lookupErr) && lookupErr.Unauthorized
}
