// Package assertcheck implements the recursive Assertion Evaluator
// (spec.md §4.5): the top-level error/result cross-matching table, then
// a recursive evaluate() over the expected-result tree, re-invoking the
// engine once per leaf assertion the way the spec's helper queries
// dictate.
package assertcheck

import (
	"context"
	"fmt"
	"strings"

	"github.com/beevik/etree"

	"github.com/shibukawa/xqtsrunner"
	"github.com/shibukawa/xqtsrunner/engine"
	"github.com/shibukawa/xqtsrunner/seq"
	"github.com/shibukawa/xqtsrunner/xmlutil"
)

// EvalOutcome is the evaluator's result: a verdict plus whatever timings
// its own (possibly zero) engine invocations added. Pass never carries a
// Reason or Cause; Failure carries Reason; Error carries Cause.
type EvalOutcome struct {
	Verdict xqtsrunner.Verdict
	Reason  string
	Cause   error
	Timings xqtsrunner.Timings
}

func pass(t xqtsrunner.Timings) EvalOutcome {
	return EvalOutcome{Verdict: xqtsrunner.VerdictPass, Timings: t}
}

func failure(t xqtsrunner.Timings, reason string) EvalOutcome {
	return EvalOutcome{Verdict: xqtsrunner.VerdictFailure, Timings: t, Reason: reason}
}

func errorOutcome(t xqtsrunner.Timings, cause error) EvalOutcome {
	return EvalOutcome{Verdict: xqtsrunner.VerdictError, Timings: t, Cause: cause}
}

func outcomeTimings(o engine.Outcome) xqtsrunner.Timings {
	c, e := o.Timings()
	return xqtsrunner.Timings{CompilationTime: c, ExecutionTime: e}
}

// EvaluateTopLevel applies spec.md §4.5's top-level cross-matching table
// to the primary query's outcome before descending into the expected
// Assertion tree. primaryTimings are the primary query's own
// (compilation, execution) timings, folded into every returned
// EvalOutcome.
func EvaluateTopLevel(ctx context.Context, eng engine.Engine, primary engine.Outcome, expected xqtsrunner.Assertion, primaryTimings xqtsrunner.Timings) EvalOutcome {
	if primary.IsError() {
		if expected == nil {
			return errorOutcome(primaryTimings, fmt.Errorf("%w: engine raised %s with no declared expected result", xqtsrunner.ErrEngineInvocation, primary.Err))
		}

		if containsMatchingError(expected, primary.Err) {
			return pass(primaryTimings)
		}

		return failure(primaryTimings, fmt.Sprintf("expected result, engine raised %s", primary.Err))
	}

	if expected == nil {
		return errorOutcome(primaryTimings, fmt.Errorf("%w: no declared expected result for a successful query", xqtsrunner.ErrInvalidTestCase))
	}

	if ee, ok := expected.(xqtsrunner.ExpectedError); ok {
		return failure(primaryTimings, fmt.Sprintf("expected error %s, query succeeded", ee.Code))
	}

	out := evaluate(ctx, eng, primary.Result, expected)
	out.Timings = primaryTimings.Add(out.Timings)

	return out
}

// containsMatchingError reports whether expected is an ExpectedError
// matching err, or an AnyOf (possibly nested) with such a child (spec.md
// §4.5: "recursively expanding nested Assertions" when checking whether
// an AnyOf accepts a raised error).
func containsMatchingError(expected xqtsrunner.Assertion, err *seq.QueryError) bool {
	switch a := expected.(type) {
	case xqtsrunner.ExpectedError:
		return err.MatchesCode(a.Code)
	case xqtsrunner.AnyOf:
		for _, c := range a.Children {
			if containsMatchingError(c, err) {
				return true
			}
		}

		return false
	default:
		return false
	}
}

// evaluate recursively checks result against the expected Assertion tree
// (spec.md §4.5), dispatching on the concrete assertion type.
func evaluate(ctx context.Context, eng engine.Engine, result seq.Sequence, a xqtsrunner.Assertion) EvalOutcome {
	switch v := a.(type) {
	case xqtsrunner.AllOf:
		return evalAllOf(ctx, eng, result, v)
	case xqtsrunner.AnyOf:
		return evalAnyOf(ctx, eng, result, v)
	case xqtsrunner.Assert:
		return evalXPath(ctx, eng, result, v.XPath)
	case xqtsrunner.AssertCount:
		return evalCount(ctx, eng, result, v.N)
	case xqtsrunner.AssertDeepEq:
		return evalQueryAgainstResult(ctx, eng, result, engine.AssertDeepEqQuery(v.Expr), "assert-deep-eq")
	case xqtsrunner.AssertEq:
		return evalQueryAgainstResult(ctx, eng, result, engine.AssertEqQuery(v.Expr), "assert-eq")
	case xqtsrunner.AssertPermutation:
		return evalQueryAgainstResult(ctx, eng, result, engine.AssertPermutationQuery(v.Expr), "assert-permutation")
	case xqtsrunner.AssertSerializationError:
		return evalSerializationError(ctx, eng, result, v.Code)
	case xqtsrunner.AssertStringValue:
		return evalStringValue(ctx, eng, result, v)
	case xqtsrunner.AssertType:
		return evalType(result, v.TypeExpr)
	case xqtsrunner.AssertXml:
		return evalXml(ctx, eng, result, v)
	case xqtsrunner.SerializationMatches:
		return evalSerializationMatches(ctx, eng, result, v)
	case xqtsrunner.AssertEmpty:
		return evalEmpty(ctx, eng, result)
	case xqtsrunner.AssertFalse:
		return evalBoolLiteral(ctx, eng, result, false)
	case xqtsrunner.AssertTrue:
		return evalBoolLiteral(ctx, eng, result, true)
	case xqtsrunner.ExpectedError:
		// Reached only when an ExpectedError is nested directly under an
		// AllOf/AnyOf against a *successful* result — always a failure,
		// since the containing query did not raise anything.
		return failure(xqtsrunner.Timings{}, fmt.Sprintf("expected error %s, query succeeded", v.Code))
	default:
		return errorOutcome(xqtsrunner.Timings{}, fmt.Errorf("%w: unrecognized assertion type %T", xqtsrunner.ErrInvalidTestCase, a))
	}
}

func evalAllOf(ctx context.Context, eng engine.Engine, result seq.Sequence, a xqtsrunner.AllOf) EvalOutcome {
	total := xqtsrunner.Timings{}

	for _, child := range a.Children {
		out := evaluate(ctx, eng, result, child)
		total = total.Add(out.Timings)

		if out.Verdict != xqtsrunner.VerdictPass {
			out.Timings = total
			return out
		}
	}

	return pass(total)
}

func evalAnyOf(ctx context.Context, eng engine.Engine, result seq.Sequence, a xqtsrunner.AnyOf) EvalOutcome {
	total := xqtsrunner.Timings{}

	var reasons []string

	for _, child := range a.Children {
		out := evaluate(ctx, eng, result, child)
		total = total.Add(out.Timings)

		if out.Verdict == xqtsrunner.VerdictPass {
			return pass(total)
		}

		if out.Verdict == xqtsrunner.VerdictError {
			reasons = append(reasons, out.Cause.Error())
			continue
		}

		reasons = append(reasons, out.Reason)
	}

	return failure(total, "none of the alternatives matched: "+strings.Join(reasons, "; "))
}

func evalXPath(ctx context.Context, eng engine.Engine, result seq.Sequence, xpath string) EvalOutcome {
	out := engine.ExecuteQueryWithResult(ctx, eng, xpath, true, &result, result)
	return trueSingletonOutcome(ctx, eng, out, result, "assert")
}

func evalCount(ctx context.Context, eng engine.Engine, result seq.Sequence, n int) EvalOutcome {
	if result.ItemCount() == n {
		return pass(xqtsrunner.Timings{})
	}

	return failure(xqtsrunner.Timings{}, fmt.Sprintf("assert-count: expected %d items, got %d: %s",
		n, result.ItemCount(), eng.SequenceToStringAdaptive(ctx, result)))
}

func evalQueryAgainstResult(ctx context.Context, eng engine.Engine, result seq.Sequence, query, label string) EvalOutcome {
	out := engine.ExecuteQueryWithResult(ctx, eng, query, true, nil, result)
	return trueSingletonOutcome(ctx, eng, out, result, label)
}

func evalSerializationError(ctx context.Context, eng engine.Engine, result seq.Sequence, code string) EvalOutcome {
	out := engine.ExecuteQueryWithResult(ctx, eng, engine.QueryAssertXmlSerialization, true, nil, result)
	t := outcomeTimings(out)

	if !out.IsError() {
		return failure(t, "assert-serialization-error: serialization succeeded, expected error "+code)
	}

	if out.Err.MatchesCode(code) {
		return pass(t)
	}

	return failure(t, fmt.Sprintf("assert-serialization-error: expected %s, got %s", code, out.Err))
}

func evalStringValue(ctx context.Context, eng engine.Engine, result seq.Sequence, v xqtsrunner.AssertStringValue) EvalOutcome {
	query := engine.QueryAssertStringValue
	if v.NormalizeSpace {
		query = engine.QueryAssertStringValueNormalizedSpace
	}

	out := engine.ExecuteQueryWithResult(ctx, eng, query, true, nil, result)
	t := outcomeTimings(out)

	if out.IsError() {
		return errorOutcome(t, fmt.Errorf("%w: assert-string-value: %w", xqtsrunner.ErrEngineInvocation, out.Err))
	}

	s, isString := singleString(out.Result)
	if !isString {
		return errorOutcome(t, fmt.Errorf("%w: assert-string-value: helper query did not return a single string", xqtsrunner.ErrEngineInvocation))
	}

	expected := v.Expected
	if v.NormalizeSpace {
		expected = normalizeSpace(expected)
	}

	if s == expected {
		return pass(t)
	}

	return failure(t, fmt.Sprintf("assert-string-value: expected %q, got %q (result: %s)",
		expected, s, eng.SequenceToStringAdaptive(ctx, result)))
}

func singleString(s seq.Sequence) (string, bool) {
	if s.ItemCount() != 1 {
		return "", false
	}

	return s.ItemAt(1).StringValue()
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func evalType(result seq.Sequence, typeExprText string) EvalOutcome {
	te, err := ParseTypeExpr(typeExprText)
	if err != nil {
		return errorOutcome(xqtsrunner.Timings{}, fmt.Errorf("%w: assert-type: %w", xqtsrunner.ErrInvalidTestCase, err))
	}

	if te.Matches(result) {
		return pass(xqtsrunner.Timings{})
	}

	return failure(xqtsrunner.Timings{}, fmt.Sprintf("assert-type: result does not conform to %s", typeExprText))
}

func evalXml(ctx context.Context, eng engine.Engine, result seq.Sequence, v xqtsrunner.AssertXml) EvalOutcome {
	expectedText, err := loadAssertXmlExpected(v)
	if err != nil {
		return errorOutcome(xqtsrunner.Timings{}, fmt.Errorf("%w: assert-xml: %w", xqtsrunner.ErrInvalidTestCase, err))
	}

	expectedWrapper, err := xmlutil.ParseFragment(expectedText)
	if err != nil {
		return errorOutcome(xqtsrunner.Timings{}, fmt.Errorf("%w: assert-xml: parsing expected XML: %w", xqtsrunner.ErrInvalidTestCase, err))
	}

	actualOut := engine.ExecuteQueryWithResult(ctx, eng, engine.QueryAssertXmlSerialization, true, nil, result)
	t := outcomeTimings(actualOut)

	if actualOut.IsError() {
		return errorOutcome(t, fmt.Errorf("%w: assert-xml: serializing result: %w", xqtsrunner.ErrEngineInvocation, actualOut.Err))
	}

	actualText, ok := singleString(actualOut.Result)
	if !ok {
		return errorOutcome(t, fmt.Errorf("%w: assert-xml: serialization did not yield a single string", xqtsrunner.ErrEngineInvocation))
	}

	actualWrapper, err := xmlutil.ParseFragment(actualText)
	if err != nil {
		return failure(t, "assert-xml: serialized result is not well-formed XML: "+err.Error())
	}

	expectedChildren := xmlutil.Children(expectedWrapper)
	actualChildren := xmlutil.Children(actualWrapper)

	n := len(expectedChildren)
	if len(actualChildren) > n {
		n = len(actualChildren)
	}

	var diffs []XmlDiff

	for i := 0; i < n; i++ {
		var ec, ac *etree.Element

		if i < len(expectedChildren) {
			ec = expectedChildren[i]
		}

		if i < len(actualChildren) {
			ac = actualChildren[i]
		}

		diffs = append(diffs, CompareElements(ec, ac, v.IgnorePrefixes)...)
	}

	if len(diffs) == 0 {
		return pass(t)
	}

	reasons := make([]string, 0, len(diffs))
	for _, d := range diffs {
		reasons = append(reasons, d.Render())
	}

	return failure(t, "assert-xml: "+strings.Join(reasons, "; "))
}

func evalSerializationMatches(ctx context.Context, eng engine.Engine, result seq.Sequence, v xqtsrunner.SerializationMatches) EvalOutcome {
	serialized := eng.SequenceToString(ctx, result)

	bound := seq.NewSequence(seq.Item{Kind: seq.KindString, Str: serialized})

	query := engine.SerializationMatchesQuery(v.Regex, v.Flags)
	out := engine.ExecuteQueryWithResult(ctx, eng, query, true, nil, bound)

	return trueSingletonOutcome(ctx, eng, out, result, "serialization-matches")
}

func evalEmpty(ctx context.Context, eng engine.Engine, result seq.Sequence) EvalOutcome {
	if result.IsEmpty() {
		return pass(xqtsrunner.Timings{})
	}

	return failure(xqtsrunner.Timings{}, fmt.Sprintf("assert-empty: expected empty sequence, got %d item(s): %s",
		result.ItemCount(), eng.SequenceToStringAdaptive(ctx, result)))
}

func evalBoolLiteral(ctx context.Context, eng engine.Engine, result seq.Sequence, want bool) EvalOutcome {
	got, ok := result.IsSingleBoolean()
	if !ok {
		return failure(xqtsrunner.Timings{}, fmt.Sprintf("expected a single boolean %t, result is not a single boolean: %s",
			want, eng.SequenceToStringAdaptive(ctx, result)))
	}

	if got == want {
		return pass(xqtsrunner.Timings{})
	}

	return failure(xqtsrunner.Timings{}, fmt.Sprintf("expected %t, got %t", want, got))
}

// trueSingletonOutcome interprets out (a helper query's boolean result) as
// pass/fail, rendering actual (the original sequence under test, not the
// helper query's boolean) in the Failure reason so a mismatch carries a
// bounded, adaptive view of what the query actually produced (spec.md §7
// category 5).
func trueSingletonOutcome(ctx context.Context, eng engine.Engine, out engine.Outcome, actual seq.Sequence, label string) EvalOutcome {
	t := outcomeTimings(out)

	if out.IsError() {
		return errorOutcome(t, fmt.Errorf("%w: %s: %w", xqtsrunner.ErrEngineInvocation, label, out.Err))
	}

	if out.Result.IsTrueSingleton() {
		return pass(t)
	}

	return failure(t, fmt.Sprintf("%s: comparison did not hold, actual result: %s",
		label, eng.SequenceToStringAdaptive(ctx, actual)))
}
