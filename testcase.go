package xqtsrunner

// UndefinedStaticBaseURI is the sentinel value meaning "no static base URI
// was declared" (spec.md §6 Sentinels).
const UndefinedStaticBaseURI = "#UNDEFINED"

// EmptyEnvironmentName is the reserved environment name that forces the
// context sequence to the empty sequence regardless of any role="."
// source (spec.md §4.3, §8 boundary cases).
const EmptyEnvironmentName = "empty"

// QuerySource is either an inline query string or a reference path to a
// query file. Exactly one of Inline/Path should be set; both empty means
// the test case is structurally invalid (spec.md §3).
type QuerySource struct {
	Inline string
	Path   string
}

// IsAbsent reports whether neither an inline query nor a query path was
// supplied.
func (q QuerySource) IsAbsent() bool {
	return q.Inline == "" && q.Path == ""
}

// IsPath reports whether the test's query must be fetched from the
// resource cache before it can run.
func (q QuerySource) IsPath() bool {
	return q.Inline == "" && q.Path != ""
}

// Source describes one environment source file (spec.md §3).
type Source struct {
	File     string
	Role     string // "." marks the context-document source; empty means none
	URI      string
	Encoding string
}

// HasRole reports whether this source is the role="." context-document
// source.
func (s Source) HasRole(role string) bool {
	return s.Role == role
}

// Collection describes a collection entry: a URI paired with an ordered
// list of member sources.
type Collection struct {
	URI     string
	Sources []Source
}

// Param describes one external variable declaration.
type Param struct {
	Name   string
	As     string // declared type, e.g. "xs:integer"; empty means untyped
	Select string // expression to evaluate and bind; absent means bind empty sequence
}

// HasSelect reports whether Select was declared at all (vs. the zero
// value meaning "bind to the empty sequence").
func (p Param) HasSelect() bool {
	return p.Select != ""
}

// IsEmptyType reports whether the declared type is the special "empty"
// marker (spec.md §4.3: "otherwise, if declared type is empty -> empty
// sequence").
func (p Param) IsEmptyType() bool {
	return p.As == "empty"
}

// Environment is the (optional) environment declaration attached to a
// TestCase.
type Environment struct {
	Name          string // "" if unnamed; EmptyEnvironmentName forces empty context
	StaticBaseURI string // UndefinedStaticBaseURI or "" both mean "absent"
	Schemas       []Source
	Sources       []Source
	Resources     []Source
	Collections   []Collection
	Params        []Param
}

// HasStaticBaseURI reports whether the environment declares a usable
// static base URI (spec.md §4.3, §8).
func (e *Environment) HasStaticBaseURI() bool {
	return e != nil && e.StaticBaseURI != "" && e.StaticBaseURI != UndefinedStaticBaseURI
}

// ForcesEmptyContext reports whether environment.name == "empty" per
// spec.md §4.3/§8.
func (e *Environment) ForcesEmptyContext() bool {
	return e != nil && e.Name == EmptyEnvironmentName
}

// TestCase is the immutable input descriptor for a single test. The
// catalog parser that produces these values is out of scope (spec.md §1).
type TestCase struct {
	File        string
	Test        QuerySource
	Environment *Environment // nil means no environment dependencies
	Result      Assertion    // nil means the expected-result tree is absent
}

// IsValid reports whether the test case has a usable query, per §3 "absent
// values mean the case is structurally invalid".
func (tc *TestCase) IsValid() bool {
	return tc != nil && !tc.Test.IsAbsent()
}

// ResolvedFile pairs a dependency path with its fetched bytes.
type ResolvedFile struct {
	Path  string
	Bytes []byte
}

// ResolvedEnvironment accumulates resources as they arrive from the cache.
// It is built incrementally: AppendSchema/AppendSource/AppendResource only
// ever append, and each category holds at most one entry per path (spec.md
// §3 invariant).
type ResolvedEnvironment struct {
	Schemas      []ResolvedFile
	Sources      []ResolvedFile
	Resources    []ResolvedFile
	ResolvedTest string // decoded resolvedQuery; only meaningful when Test.IsPath()
	hasQuery     bool
}

func (re *ResolvedEnvironment) appendUnique(list *[]ResolvedFile, path string, b []byte) {
	for _, f := range *list {
		if f.Path == path {
			return
		}
	}

	*list = append(*list, ResolvedFile{Path: path, Bytes: b})
}

// AppendSchema records a resolved schema resource.
func (re *ResolvedEnvironment) AppendSchema(path string, b []byte) {
	re.appendUnique(&re.Schemas, path, b)
}

// AppendSource records a resolved environment source (or collection-member
// source; both live in the same category per spec.md §4.1 deliver).
func (re *ResolvedEnvironment) AppendSource(path string, b []byte) {
	re.appendUnique(&re.Sources, path, b)
}

// AppendResource records a resolved environment resource.
func (re *ResolvedEnvironment) AppendResource(path string, b []byte) {
	re.appendUnique(&re.Resources, path, b)
}

// SetQuery records the decoded query-file contents.
func (re *ResolvedEnvironment) SetQuery(b []byte) {
	re.ResolvedTest = string(b)
	re.hasQuery = true
}

// HasQuery reports whether a query-file body has been resolved.
func (re *ResolvedEnvironment) HasQuery() bool {
	return re != nil && re.hasQuery
}

// Lookup finds the resolved bytes for path across every category
// (schemas, sources, resources). Returns ok=false if path is not yet
// resolved.
func (re *ResolvedEnvironment) Lookup(path string) (b []byte, ok bool) {
	for _, list := range [][]ResolvedFile{re.Schemas, re.Sources, re.Resources} {
		for _, f := range list {
			if f.Path == path {
				return f.Bytes, true
			}
		}
	}

	return nil, false
}

// PendingTestCase is the mutable accumulator tracked by the pending-cases
// index while a test case waits on its dependencies (spec.md §4.1). It is
// mutated only by appending resolved entries; it never shrinks.
type PendingTestCase struct {
	TestSetRef  TestSetRef
	TestCase    TestCase
	Resolved    ResolvedEnvironment
	Manager     any // opaque handle to the submitting manager, passed through
}
