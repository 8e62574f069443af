package assertcheck

import (
	"context"
	"testing"

	"github.com/alecthomas/assert/v2"
	"github.com/shopspring/decimal"

	"github.com/shibukawa/xqtsrunner"
	"github.com/shibukawa/xqtsrunner/engine"
	"github.com/shibukawa/xqtsrunner/engine/refengine"
	"github.com/shibukawa/xqtsrunner/seq"
)

func intSeq(n int64) seq.Sequence {
	return seq.NewSequence(seq.Item{Kind: seq.KindInteger, Decimal: decimal.NewFromInt(n), TypeName: "xs:integer"})
}

func TestEvaluateTopLevel_PassOnAssertEq(t *testing.T) {
	eng := refengine.New()
	defer eng.Close()

	ctx := context.Background()
	out := eng.ExecuteQuery(ctx, "1 + 1", true, "", nil, nil, nil, nil, nil)
	assert.False(t, out.IsError())

	result := EvaluateTopLevel(ctx, eng, out, xqtsrunner.AssertEq{Expr: "2"}, xqtsrunner.Timings{})
	assert.Equal(t, xqtsrunner.VerdictPass, result.Verdict)
}

func TestEvaluateTopLevel_ErrorMatchesExpectedError(t *testing.T) {
	eng := refengine.New()
	defer eng.Close()

	ctx := context.Background()
	out := eng.ExecuteQuery(ctx, `xs:integer("abc")`, true, "", nil, nil, nil, nil, nil)
	assert.True(t, out.IsError())

	result := EvaluateTopLevel(ctx, eng, out, xqtsrunner.ExpectedError{Code: "FORG0001"}, xqtsrunner.Timings{})
	assert.Equal(t, xqtsrunner.VerdictPass, result.Verdict)
}

func TestEvaluateTopLevel_ErrorInsideAnyOfMatches(t *testing.T) {
	eng := refengine.New()
	defer eng.Close()

	ctx := context.Background()
	out := eng.ExecuteQuery(ctx, `xs:integer("abc")`, true, "", nil, nil, nil, nil, nil)
	assert.True(t, out.IsError())

	expected := xqtsrunner.AnyOf{Children: []xqtsrunner.Assertion{
		xqtsrunner.ExpectedError{Code: "FOAR0001"},
		xqtsrunner.ExpectedError{Code: "FORG0001"},
	}}

	result := EvaluateTopLevel(ctx, eng, out, expected, xqtsrunner.Timings{})
	assert.Equal(t, xqtsrunner.VerdictPass, result.Verdict)
}

func TestEvaluateTopLevel_ResultButExpectedErrorIsFailure(t *testing.T) {
	eng := refengine.New()
	defer eng.Close()

	ctx := context.Background()
	out := eng.ExecuteQuery(ctx, "1 + 1", true, "", nil, nil, nil, nil, nil)

	result := EvaluateTopLevel(ctx, eng, out, xqtsrunner.ExpectedError{Code: "FORG0001"}, xqtsrunner.Timings{})
	assert.Equal(t, xqtsrunner.VerdictFailure, result.Verdict)
}

func TestAssertCount(t *testing.T) {
	eng := refengine.New()
	defer eng.Close()

	result := intSeq(1)
	out := evaluate(context.Background(), eng, result, xqtsrunner.AssertCount{N: 1})
	assert.Equal(t, xqtsrunner.VerdictPass, out.Verdict)

	out = evaluate(context.Background(), eng, result, xqtsrunner.AssertCount{N: 2})
	assert.Equal(t, xqtsrunner.VerdictFailure, out.Verdict)
}

func TestAssertEmptyAndBooleans(t *testing.T) {
	out := evaluate(context.Background(), nil, seq.Empty, xqtsrunner.AssertEmpty{})
	assert.Equal(t, xqtsrunner.VerdictPass, out.Verdict)

	trueSeq := seq.NewSequence(seq.Item{Kind: seq.KindBoolean, Bool: true})
	out = evaluate(context.Background(), nil, trueSeq, xqtsrunner.AssertTrue{})
	assert.Equal(t, xqtsrunner.VerdictPass, out.Verdict)

	out = evaluate(context.Background(), nil, trueSeq, xqtsrunner.AssertFalse{})
	assert.Equal(t, xqtsrunner.VerdictFailure, out.Verdict)
}

func TestAssertPermutationAndDeepEq(t *testing.T) {
	eng := refengine.New()
	defer eng.Close()

	ctx := context.Background()
	out := eng.ExecuteQuery(ctx, "(3, 1, 2)", true, "", nil, nil, nil, nil, nil)
	assert.False(t, out.IsError())

	permOut := evaluate(ctx, eng, out.Result, xqtsrunner.AssertPermutation{Expr: "(1, 2, 3)"})
	assert.Equal(t, xqtsrunner.VerdictPass, permOut.Verdict)

	deepOut := evaluate(ctx, eng, out.Result, xqtsrunner.AssertDeepEq{Expr: "(1, 2, 3)"})
	assert.Equal(t, xqtsrunner.VerdictFailure, deepOut.Verdict)
}

func TestAssertXmlPassAndFailure(t *testing.T) {
	eng := refengine.New()
	defer eng.Close()

	ctx := context.Background()
	out := eng.ParseXml(ctx, []byte("<x/>"))
	assert.False(t, out.IsError())

	passOut := evaluate(ctx, eng, out.Result, xqtsrunner.AssertXml{Expected: "<x/>"})
	assert.Equal(t, xqtsrunner.VerdictPass, passOut.Verdict)

	failOut := evaluate(ctx, eng, out.Result, xqtsrunner.AssertXml{Expected: "<y/>"})
	assert.Equal(t, xqtsrunner.VerdictFailure, failOut.Verdict)
	assert.False(t, wrapperPrefix.MatchString(failOut.Reason))
}

var _ = engine.ResultVariableName
