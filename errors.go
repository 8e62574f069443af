package xqtsrunner

import "errors"

// Sentinel errors for the five error categories of the runner's error
// handling design. Wrap with fmt.Errorf("...: %w", ErrX) so callers can
// errors.Is against a stable category while still seeing the underlying
// cause.
var (
	// ErrInvalidTestCase is returned when a TestCase has neither an inline
	// query nor a reference to a query file.
	ErrInvalidTestCase = errors.New("invalid test case: no query")

	// ErrResourceFetch wraps a failure reported by the resource cache for
	// a schema, source, resource, or query-file path.
	ErrResourceFetch = errors.New("resource fetch failed")

	// ErrContextBuild wraps a failure while assembling the XQuery static
	// or dynamic context (unknown charset, missing resolved source,
	// engine exception while parsing a context document). An unknown
	// charset is wrapped with both ErrContextBuild and ErrUnknownCharset.
	ErrContextBuild = errors.New("context construction failed")

	// ErrEngineInvocation wraps an EngineException raised by the primary
	// query or by a helper query evaluated during assertion checking.
	ErrEngineInvocation = errors.New("engine invocation failed")

	// ErrUnknownCharset is returned when an available-text-resource
	// declares an encoding the runner cannot decode.
	ErrUnknownCharset = errors.New("unrecognized charset")

	// ErrAssumptionInResult indicates AssumptionFailed reached the
	// Assertion Evaluator. Per spec.md §3, only earlier pipeline stages
	// may produce AssumptionFailed; seeing it here is a programming
	// error, not a test-case failure.
	ErrAssumptionInResult = errors.New("AssumptionFailed reached the assertion evaluator")

	// ErrNilResult indicates the engine returned neither a QueryError nor
	// a Sequence, violating the engine contract (§4.5 boundary case).
	ErrNilResult = errors.New("engine returned neither a result nor an error")
)
