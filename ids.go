package xqtsrunner

import "fmt"

// TestSetName identifies a test set within the XQTS catalog (e.g.
// "fn-abs", "prod-FunctionCall"). The catalog parser that assigns these
// names is out of scope for this module (see spec.md §1).
type TestSetName string

// TestCaseName identifies a single test case within its test set.
type TestCaseName string

// TestCaseId uniquely identifies a test case within a run.
type TestCaseId struct {
	TestSet  TestSetName
	TestCase TestCaseName
}

func (id TestCaseId) String() string {
	return fmt.Sprintf("%s::%s", id.TestSet, id.TestCase)
}

// TestSetRef is an opaque reference the external test-set manager passes
// through unchanged. The dispatcher never inspects it; it is only carried
// so RunningTestCase/RanTestCase can be routed back correctly.
type TestSetRef any
