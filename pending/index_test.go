package pending

import (
	"testing"

	"github.com/alecthomas/assert/v2"

	"github.com/shibukawa/xqtsrunner"
)

func id(name string) xqtsrunner.TestCaseId {
	return xqtsrunner.TestCaseId{TestSet: "set", TestCase: xqtsrunner.TestCaseName(name)}
}

func TestRegisterIdempotent(t *testing.T) {
	idx := New()
	tc := xqtsrunner.TestCase{Test: xqtsrunner.QuerySource{Inline: "1+1"}}

	accepted := idx.Register(id("a"), nil, tc, nil, map[Category][]string{
		CategorySource: {"a.xml"},
	})
	assert.True(t, accepted)
	assert.True(t, idx.Contains(id("a")))

	// Second submission for the same id is a no-op.
	accepted = idx.Register(id("a"), nil, tc, nil, map[Category][]string{
		CategorySource: {"b.xml"},
	})
	assert.False(t, accepted)

	// "b.xml" must not have been registered by the rejected call.
	ready := idx.Deliver("b.xml", []byte("<b/>"))
	assert.Equal(t, 0, len(ready))
}

func TestDeliverReadyWhenAllDepsResolved(t *testing.T) {
	idx := New()
	tc := xqtsrunner.TestCase{Test: xqtsrunner.QuerySource{Path: "q.xq"}}

	idx.Register(id("a"), nil, tc, nil, map[Category][]string{
		CategorySource: {"src.xml"},
		CategoryQuery:  {"q.xq"},
	})

	ready := idx.Deliver("src.xml", []byte("<a><b/></a>"))
	assert.Equal(t, 0, len(ready), "still waiting on q.xq")

	ready = idx.Deliver("q.xq", []byte("count(/a/b)"))
	assert.Equal(t, 1, len(ready))
	assert.Equal(t, id("a"), ready[0])

	pc, ok := idx.Take(id("a"))
	assert.True(t, ok)
	assert.Equal(t, "count(/a/b)", pc.Resolved.ResolvedTest)
	assert.Equal(t, 1, len(pc.Resolved.Sources))
	assert.False(t, idx.Contains(id("a")))
}

func TestDeliverFanInAcrossMultipleWaiters(t *testing.T) {
	idx := New()
	tcA := xqtsrunner.TestCase{Test: xqtsrunner.QuerySource{Inline: "1"}}
	tcB := xqtsrunner.TestCase{Test: xqtsrunner.QuerySource{Inline: "2"}}

	idx.Register(id("a"), nil, tcA, nil, map[Category][]string{CategorySource: {"shared.xml"}})
	idx.Register(id("b"), nil, tcB, nil, map[Category][]string{CategorySource: {"shared.xml"}})

	ready := idx.Deliver("shared.xml", []byte("<x/>"))
	assert.Equal(t, 2, len(ready))
}

func TestFailRemovesAndReportsAffected(t *testing.T) {
	idx := New()
	tc := xqtsrunner.TestCase{Test: xqtsrunner.QuerySource{Path: "q.xq"}}

	idx.Register(id("a"), nil, tc, nil, map[Category][]string{
		CategorySource: {"src.xml"},
		CategoryQuery:  {"q.xq"},
	})

	affected := idx.Fail("src.xml")
	assert.Equal(t, 1, len(affected))
	assert.Equal(t, id("a"), affected[0])
	assert.False(t, idx.Contains(id("a")))

	// q.xq's waiter set must have been cleared too, so a later delivery
	// for it is a no-op rather than resurrecting the dropped case.
	ready := idx.Deliver("q.xq", []byte("1"))
	assert.Equal(t, 0, len(ready))
}

func TestRegisterWithoutDependenciesIsImmediatelyReady(t *testing.T) {
	idx := New()
	tc := xqtsrunner.TestCase{Test: xqtsrunner.QuerySource{Inline: "1+1"}}

	accepted := idx.Register(id("a"), nil, tc, nil, nil)
	assert.True(t, accepted)
	assert.False(t, idx.isWaiting(id("a")))
}
