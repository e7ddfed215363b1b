package enrich

import (
	"errors"

	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-enrichment/internal/cost"
	"github.com/sells-group/lead-enrichment/internal/recordstore"
)

// ErrScoringTimeout is returned when scoring does not finish within the
// scoring timeout.
var ErrScoringTimeout = eris.New("enrich: scoring timed out")

// ErrRunAborted matches the error returned by Run when a run-fatal failure
// stopped the run early.
var ErrRunAborted = eris.New("enrich: run aborted")

// abortError carries the run-fatal cause.
type abortError struct {
	cause error
}

func (e *abortError) Error() string { return "enrich: run aborted: " + e.cause.Error() }

func (e *abortError) Unwrap() error { return e.cause }

func (e *abortError) Is(target error) bool { return target == ErrRunAborted }

// isRunFatal reports whether err must stop the whole run: the budget is
// exhausted or the record store rejected our credentials.
func isRunFatal(err error) bool {
	return errors.Is(err, cost.ErrCostLimitExceeded) || recordstore.IsAuthFailure(err)
}
