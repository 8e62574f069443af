package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/goccy/go-yaml"

	"github.com/shibukawa/xqtsrunner"
)

// catalogEntry is the on-disk shape of one fixture test case, in the
// teacher's config.go YAML-tag idiom. A real XQTS catalog parser is out
// of scope (spec.md §1); this is just enough to drive the demo CLI
// against a directory of hand-written fixtures.
type catalogEntry struct {
	TestSet     string             `yaml:"testSet"`
	TestCase    string             `yaml:"testCase"`
	Query       string             `yaml:"query"`
	QueryFile   string             `yaml:"queryFile"`
	Environment *yamlEnvironment   `yaml:"environment"`
	Result      yamlAssertionEntry `yaml:"result"`
}

type yamlSource struct {
	File     string `yaml:"file"`
	Role     string `yaml:"role"`
	URI      string `yaml:"uri"`
	Encoding string `yaml:"encoding"`
}

type yamlCollection struct {
	URI     string       `yaml:"uri"`
	Sources []yamlSource `yaml:"sources"`
}

type yamlParam struct {
	Name   string `yaml:"name"`
	As     string `yaml:"as"`
	Select string `yaml:"select"`
}

type yamlEnvironment struct {
	Name          string           `yaml:"name"`
	StaticBaseURI string           `yaml:"staticBaseUri"`
	Schemas       []yamlSource     `yaml:"schemas"`
	Sources       []yamlSource     `yaml:"sources"`
	Resources     []yamlSource     `yaml:"resources"`
	Collections   []yamlCollection `yaml:"collections"`
	Params        []yamlParam      `yaml:"params"`
}

// yamlAssertionEntry is a recursive, tagged-union shape for the expected-
// result tree. Exactly one field should be populated per node.
type yamlAssertionEntry struct {
	AllOf                 []yamlAssertionEntry `yaml:"allOf"`
	AnyOf                 []yamlAssertionEntry `yaml:"anyOf"`
	Assert                string               `yaml:"assert"`
	AssertCount           *int                 `yaml:"assertCount"`
	AssertDeepEq          string               `yaml:"assertDeepEq"`
	AssertEq              string               `yaml:"assertEq"`
	AssertPermutation     string               `yaml:"assertPermutation"`
	AssertSerializationError string            `yaml:"assertSerializationError"`
	AssertStringValue     *yamlStringValue     `yaml:"assertStringValue"`
	AssertType            string               `yaml:"assertType"`
	AssertXml             *yamlAssertXml       `yaml:"assertXml"`
	SerializationMatches  *yamlSerializationMatches `yaml:"serializationMatches"`
	AssertEmpty           bool                 `yaml:"assertEmpty"`
	AssertFalse           bool                 `yaml:"assertFalse"`
	AssertTrue            bool                 `yaml:"assertTrue"`
	ExpectedError         string               `yaml:"expectedError"`
}

type yamlStringValue struct {
	Expected       string `yaml:"expected"`
	NormalizeSpace bool   `yaml:"normalizeSpace"`
}

type yamlAssertXml struct {
	Expected       string `yaml:"expected"`
	ExpectedIsFile bool   `yaml:"expectedIsFile"`
	IgnorePrefixes bool   `yaml:"ignorePrefixes"`
}

type yamlSerializationMatches struct {
	Regex string `yaml:"regex"`
	Flags string `yaml:"flags"`
}

func toSources(in []yamlSource) []xqtsrunner.Source {
	out := make([]xqtsrunner.Source, 0, len(in))
	for _, s := range in {
		out = append(out, xqtsrunner.Source{File: s.File, Role: s.Role, URI: s.URI, Encoding: s.Encoding})
	}

	return out
}

func toEnvironment(in *yamlEnvironment) *xqtsrunner.Environment {
	if in == nil {
		return nil
	}

	env := &xqtsrunner.Environment{
		Name:          in.Name,
		StaticBaseURI: in.StaticBaseURI,
		Schemas:       toSources(in.Schemas),
		Sources:       toSources(in.Sources),
		Resources:     toSources(in.Resources),
	}

	for _, c := range in.Collections {
		env.Collections = append(env.Collections, xqtsrunner.Collection{URI: c.URI, Sources: toSources(c.Sources)})
	}

	for _, p := range in.Params {
		env.Params = append(env.Params, xqtsrunner.Param{Name: p.Name, As: p.As, Select: p.Select})
	}

	return env
}

func toAssertion(in yamlAssertionEntry) xqtsrunner.Assertion {
	switch {
	case len(in.AllOf) > 0:
		children := make([]xqtsrunner.Assertion, 0, len(in.AllOf))
		for _, c := range in.AllOf {
			children = append(children, toAssertion(c))
		}

		return xqtsrunner.AllOf{Children: children}
	case len(in.AnyOf) > 0:
		children := make([]xqtsrunner.Assertion, 0, len(in.AnyOf))
		for _, c := range in.AnyOf {
			children = append(children, toAssertion(c))
		}

		return xqtsrunner.AnyOf{Children: children}
	case in.Assert != "":
		return xqtsrunner.Assert{XPath: in.Assert}
	case in.AssertCount != nil:
		return xqtsrunner.AssertCount{N: *in.AssertCount}
	case in.AssertDeepEq != "":
		return xqtsrunner.AssertDeepEq{Expr: in.AssertDeepEq}
	case in.AssertEq != "":
		return xqtsrunner.AssertEq{Expr: in.AssertEq}
	case in.AssertPermutation != "":
		return xqtsrunner.AssertPermutation{Expr: in.AssertPermutation}
	case in.AssertSerializationError != "":
		return xqtsrunner.AssertSerializationError{Code: in.AssertSerializationError}
	case in.AssertStringValue != nil:
		return xqtsrunner.AssertStringValue{Expected: in.AssertStringValue.Expected, NormalizeSpace: in.AssertStringValue.NormalizeSpace}
	case in.AssertType != "":
		return xqtsrunner.AssertType{TypeExpr: in.AssertType}
	case in.AssertXml != nil:
		return xqtsrunner.AssertXml{
			Expected:       in.AssertXml.Expected,
			ExpectedIsFile: in.AssertXml.ExpectedIsFile,
			IgnorePrefixes: in.AssertXml.IgnorePrefixes,
		}
	case in.SerializationMatches != nil:
		return xqtsrunner.SerializationMatches{Regex: in.SerializationMatches.Regex, Flags: in.SerializationMatches.Flags}
	case in.AssertEmpty:
		return xqtsrunner.AssertEmpty{}
	case in.AssertFalse:
		return xqtsrunner.AssertFalse{}
	case in.AssertTrue:
		return xqtsrunner.AssertTrue{}
	case in.ExpectedError != "":
		return xqtsrunner.ExpectedError{Code: in.ExpectedError}
	default:
		return nil
	}
}

// loadCatalog reads every *.yaml fixture under dir and converts it into a
// (TestCaseId, TestCase) pair plus the raw file path, for feeding to a
// Runner.
func loadCatalog(dir string) ([]catalogTestCase, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, fmt.Errorf("listing fixtures in %q: %w", dir, err)
	}

	out := make([]catalogTestCase, 0, len(matches))

	for _, path := range matches {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading fixture %q: %w", path, err)
		}

		var entry catalogEntry
		if err := yaml.Unmarshal(b, &entry); err != nil {
			return nil, fmt.Errorf("parsing fixture %q: %w", path, err)
		}

		tc := xqtsrunner.TestCase{
			File:        path,
			Test:        xqtsrunner.QuerySource{Inline: entry.Query, Path: entry.QueryFile},
			Environment: toEnvironment(entry.Environment),
			Result:      toAssertion(entry.Result),
		}

		out = append(out, catalogTestCase{
			ID: xqtsrunner.TestCaseId{
				TestSet:  xqtsrunner.TestSetName(entry.TestSet),
				TestCase: xqtsrunner.TestCaseName(entry.TestCase),
			},
			TestCase: tc,
		})
	}

	return out, nil
}

type catalogTestCase struct {
	ID       xqtsrunner.TestCaseId
	TestCase xqtsrunner.TestCase
}
