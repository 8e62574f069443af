// Package engine defines the thin contract over the embedded XQuery
// evaluator (spec.md §4.4). The engine itself — parsing and evaluating
// XQuery — is an external collaborator and out of scope; this package
// only specifies the shape callers depend on, plus the literal helper
// query text (spec.md §6) every assertion evaluator emits.
package engine

import (
	"context"

	"github.com/shibukawa/xqtsrunner/seq"
)

// ResultVariableName is the literal variable name ExecuteQueryWithResult
// binds $result to (spec.md §6 Sentinels).
const ResultVariableName = "result"

// Document is an opaque handle to a parsed XML document, as produced by
// ParseXml and consumed as a context/available-document/collection-member
// value. The core never looks inside it.
type Document any

// AvailableText pairs a declared charset with the decoded text content of
// an environment resource (spec.md §4.3).
type AvailableText struct {
	Charset string
	Text    string
}

// Outcome is the result of a single engine invocation: either a QueryError
// or a Sequence, plus the timings that invocation took (spec.md §4.4:
// "Every engine call returns (compilationTime, executionTime) alongside
// its outcome").
type Outcome struct {
	Result          seq.Sequence
	Err             *seq.QueryError
	CompilationTime float64
	ExecutionTime   float64
}

// IsError reports whether the engine reported a QueryError rather than a
// Sequence result.
func (o Outcome) IsError() bool {
	return o.Err != nil
}

// Timings extracts this invocation's (compilationTime, executionTime) as
// a pair, for accumulation by callers that depend on the root package's
// Timings type without importing it here (avoiding an import cycle; the
// dispatcher composes them).
func (o Outcome) Timings() (compilation, execution float64) {
	return o.CompilationTime, o.ExecutionTime
}

// Engine is the bridge to the embedded XQuery evaluator (spec.md §4.4).
// A connection backing an Engine is acquired before the primary query and
// released after the verdict is produced, on every exit path — that
// lifecycle is the caller's (dispatcher's) responsibility via Close.
type Engine interface {
	// ExecuteQuery evaluates query with the given static/dynamic context.
	// contextSeq is nil when no context sequence is passed. Available
	// documents/collections/texts and external variable bindings follow
	// spec.md §4.3.
	ExecuteQuery(
		ctx context.Context,
		query string,
		cacheCompiled bool,
		baseURI string, // "" means no static base URI
		contextSeq *seq.Sequence,
		availableDocs map[string]Document,
		availableCollections map[string][]Document,
		availableTexts map[string]AvailableText,
		variableBindings map[string]seq.Sequence,
	) Outcome

	// ParseXml parses raw bytes into a Document wrapped as a one-item
	// Sequence, or raises a QueryError if the bytes are not well-formed.
	ParseXml(ctx context.Context, data []byte) Outcome

	// SequenceToString renders seq using the engine's default string
	// conversion (spec.md §4.4).
	SequenceToString(ctx context.Context, s seq.Sequence) string

	// SequenceToStringAdaptive renders seq with a representation suited
	// for diagnostic/failure messages (bounded, human-legible), used by
	// the Verdict's Failure.reason (spec.md §7 category 5).
	SequenceToStringAdaptive(ctx context.Context, s seq.Sequence) string

	// Close releases the connection backing this Engine. Called exactly
	// once per test case, on every exit path (spec.md §4.4 scoped
	// resource rule).
	Close() error
}

// ExecuteQueryWithResult is the convenience wrapper used exhaustively by
// assertion evaluators (spec.md §4.4): it binds $result as the sole
// external variable and runs query with an optional context sequence.
func ExecuteQueryWithResult(ctx context.Context, e Engine, query string, cacheCompiled bool, contextSeq *seq.Sequence, result seq.Sequence) Outcome {
	bindings := map[string]seq.Sequence{ResultVariableName: result}
	return e.ExecuteQuery(ctx, query, cacheCompiled, "", contextSeq, nil, nil, nil, bindings)
}
