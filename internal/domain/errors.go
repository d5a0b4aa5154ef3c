package domain

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors used throughout the application. The scheduler and
// dispatcher map each class to its retry policy; see the dispatcher for the
// per-class behaviour.
var (
	// Cycle-level failures: the whole cycle is skipped, SeenSet untouched.
	ErrStoreUnavailable  = errors.New("state store unavailable")
	ErrSourceUnavailable = errors.New("library source unavailable")
	ErrSourceMalformed   = errors.New("library source returned malformed data")

	// Item validation failures inside a snapshot (wrapped into ErrSourceMalformed).
	ErrMissingIdentifier = errors.New("item has no identifier")
	ErrUnknownKind       = errors.New("item has unknown kind")

	// Per-item dispatch failures: the item stays out of SeenSet and is
	// retried as new on the next cycle.
	ErrRejected  = errors.New("sink rejected payload")
	ErrTransient = errors.New("transient delivery failure")
)

// ThrottledError signals the sink demanded a pause. The dispatcher waits
// RetryAfter and retries the same payload; throttling never consumes a
// transient-retry attempt and never skips an item.
type ThrottledError struct {
	RetryAfter time.Duration
}

func (e *ThrottledError) Error() string {
	return fmt.Sprintf("sink throttled, retry after %s", e.RetryAfter)
}

// IsCycleFatal reports whether err should abort the whole cycle rather than
// a single item.
func IsCycleFatal(err error) bool {
	return errors.Is(err, ErrStoreUnavailable) ||
		errors.Is(err, ErrSourceUnavailable) ||
		errors.Is(err, ErrSourceMalformed)
}
