package dispatcher

import (
	"context"
	"testing"
	"time"

	"github.com/alecthomas/assert/v2"

	"github.com/shibukawa/xqtsrunner"
	"github.com/shibukawa/xqtsrunner/engine"
	"github.com/shibukawa/xqtsrunner/engine/refengine"
	"github.com/shibukawa/xqtsrunner/resourcecache"
)

func newTestRunner(cache resourcecache.Cache) (*Runner, context.CancelFunc) {
	r := New(xqtsrunner.DefaultRunnerConfig(), cache, func() engine.Engine { return refengine.New() }, nil)
	ctx, cancel := context.WithCancel(context.Background())
	go r.Run(ctx)

	return r, cancel
}

func recvRan(t *testing.T, r *Runner) RanTestCase {
	t.Helper()

	select {
	case rt := <-r.Ran():
		return rt
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for RanTestCase")
		return RanTestCase{}
	}
}

func TestRunner_InlineQueryNoDependencies(t *testing.T) {
	cache := resourcecache.NewMemoryCache()
	r, cancel := newTestRunner(cache)
	defer cancel()

	id := xqtsrunner.TestCaseId{TestSet: "arith", TestCase: "add-1"}
	tc := xqtsrunner.TestCase{
		Test:   xqtsrunner.QuerySource{Inline: "1 + 1"},
		Result: xqtsrunner.AssertTrue{},
	}

	r.Submit(id, "ref-1", tc, nil)

	running := <-r.Running()
	assert.Equal(t, id, running.ID)

	ran := recvRan(t, r)
	assert.Equal(t, "ref-1", ran.TestSetRef)
	assert.Equal(t, xqtsrunner.VerdictFailure, ran.Result.Verdict)
}

func TestRunner_WaitsOnSourceDependency(t *testing.T) {
	cache := resourcecache.NewMemoryCache()
	cache.Seed("doc.xml", []byte("<a><b/></a>"))

	r, cancel := newTestRunner(cache)
	defer cancel()

	id := xqtsrunner.TestCaseId{TestSet: "count", TestCase: "count-b"}
	tc := xqtsrunner.TestCase{
		Test: xqtsrunner.QuerySource{Inline: "count(/a/b)"},
		Environment: &xqtsrunner.Environment{
			Sources: []xqtsrunner.Source{{File: "doc.xml", Role: "."}},
		},
		Result: xqtsrunner.AssertEq{Expr: "1"},
	}

	r.Submit(id, "ref-2", tc, nil)

	running := <-r.Running()
	assert.Equal(t, id, running.ID)

	ran := recvRan(t, r)
	assert.Equal(t, "ref-2", ran.TestSetRef)
}

func TestRunner_ResourceFailureShortCircuits(t *testing.T) {
	cache := resourcecache.NewMemoryCache()

	r, cancel := newTestRunner(cache)
	defer cancel()

	id := xqtsrunner.TestCaseId{TestSet: "missing", TestCase: "missing-source"}
	tc := xqtsrunner.TestCase{
		Test: xqtsrunner.QuerySource{Inline: "1"},
		Environment: &xqtsrunner.Environment{
			Sources: []xqtsrunner.Source{{File: "nope.xml", Role: "."}},
		},
		Result: xqtsrunner.AssertTrue{},
	}

	r.Submit(id, "ref-3", tc, nil)

	ran := recvRan(t, r)
	assert.Equal(t, xqtsrunner.VerdictError, ran.Result.Verdict)
	assert.Error(t, ran.Result.Cause)
}

func TestRunner_InvalidTestCaseSkipsDependencies(t *testing.T) {
	cache := resourcecache.NewMemoryCache()
	r, cancel := newTestRunner(cache)
	defer cancel()

	id := xqtsrunner.TestCaseId{TestSet: "bad", TestCase: "no-query"}
	r.Submit(id, "ref-4", xqtsrunner.TestCase{}, nil)

	ran := recvRan(t, r)
	assert.Equal(t, xqtsrunner.VerdictError, ran.Result.Verdict)
	assert.Equal(t, xqtsrunner.NoEngineCall, ran.Result.Timings)
}
