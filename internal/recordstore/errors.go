package recordstore

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-enrichment/internal/resilience"
)

// ErrStoreFatal matches every non-retryable record store failure.
var ErrStoreFatal = eris.New("record store fatal error")

// FatalError is a record store failure that retrying cannot fix.
type FatalError struct {
	Op     string
	Status int
	Err    error
}

func (e *FatalError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("recordstore: %s: status %d: %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("recordstore: %s: %v", e.Op, e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }

func (e *FatalError) Is(target error) bool { return target == ErrStoreFatal }

// IsAuthFailure reports whether err is a rejected credential or a missing
// permission. These abort the whole run.
func IsAuthFailure(err error) bool {
	var fe *FatalError
	if !errors.As(err, &fe) {
		return false
	}
	return fe.Status == http.StatusUnauthorized || fe.Status == http.StatusForbidden
}

// classify maps a Notion client error onto the retry taxonomy: rate limits,
// conflicts, 5xx and network failures are transient; other API errors are
// fatal.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var apiErr *notionapi.Error
	if errors.As(err, &apiErr) {
		if resilience.IsTransientHTTPStatus(apiErr.Status) {
			return resilience.NewTransientError(err, apiErr.Status)
		}
		return &FatalError{Op: op, Status: apiErr.Status, Err: err}
	}
	if resilience.IsTransient(err) {
		return err
	}
	return &FatalError{Op: op, Err: err}
}
