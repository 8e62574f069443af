package xqtsrunner

// Timings carries the compilation/execution duration, in milliseconds, of
// every engine invocation performed for a test case — the primary query
// plus every helper query the Assertion Evaluator ran (spec.md §3/§4.6).
// NoEngineCall must be used when a verdict is produced before any engine
// invocation (e.g. ErrInvalidTestCase, ErrResourceFetch).
type Timings struct {
	CompilationTime float64
	ExecutionTime   float64
}

// NoEngineCall reports -1 for both timings, per spec.md §3 "Failures that
// occurred before any evaluation report -1 for both."
var NoEngineCall = Timings{CompilationTime: -1, ExecutionTime: -1}

// Add sums two timing sets.
func (t Timings) Add(o Timings) Timings {
	if t == NoEngineCall {
		return o
	}

	if o == NoEngineCall {
		return t
	}

	return Timings{
		CompilationTime: t.CompilationTime + o.CompilationTime,
		ExecutionTime:   t.ExecutionTime + o.ExecutionTime,
	}
}

// Verdict is the tag of the four-variant TestResult union (spec.md §3).
type Verdict int

const (
	VerdictPass Verdict = iota
	VerdictFailure
	VerdictError
	VerdictAssumptionFailed
)

func (v Verdict) String() string {
	switch v {
	case VerdictPass:
		return "pass"
	case VerdictFailure:
		return "failure"
	case VerdictError:
		return "error"
	case VerdictAssumptionFailed:
		return "skipped-assumption"
	default:
		return "unknown"
	}
}

// TestResult is the tagged union described in spec.md §3. All four
// variants share (testSet, testCase, compilationTime, executionTime); the
// Reason/Cause fields are only meaningful for their corresponding
// Verdict.
type TestResult struct {
	TestSet  TestSetName
	TestCase TestCaseName
	Verdict  Verdict
	Timings  Timings
	Reason   string // Failure.reason, AssumptionFailed.reason
	Cause    error  // Error.cause
}

// Pass constructs a Pass verdict.
func Pass(id TestCaseId, t Timings) TestResult {
	return TestResult{TestSet: id.TestSet, TestCase: id.TestCase, Verdict: VerdictPass, Timings: t}
}

// Failure constructs a Failure verdict with reason.
func Failure(id TestCaseId, t Timings, reason string) TestResult {
	return TestResult{TestSet: id.TestSet, TestCase: id.TestCase, Verdict: VerdictFailure, Timings: t, Reason: reason}
}

// Error constructs an Error verdict with cause.
func Error(id TestCaseId, t Timings, cause error) TestResult {
	return TestResult{TestSet: id.TestSet, TestCase: id.TestCase, Verdict: VerdictError, Timings: t, Cause: cause}
}

// AssumptionFailed constructs an AssumptionFailed verdict. Per spec.md §3
// this variant is produced only by pipeline stages earlier than the
// Assertion Evaluator; the evaluator must treat its appearance as a
// programming error (see ErrAssumptionInResult).
func AssumptionFailed(id TestCaseId, t Timings, reason string) TestResult {
	return TestResult{TestSet: id.TestSet, TestCase: id.TestCase, Verdict: VerdictAssumptionFailed, Timings: t, Reason: reason}
}
