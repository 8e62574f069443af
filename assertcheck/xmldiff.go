package assertcheck

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/beevik/etree"
	"github.com/fatih/color"

	"github.com/shibukawa/xqtsrunner/xmlutil"
)

// wrapperPrefix strips the synthetic "/ignorable-wrapper" (optionally
// "[n]"-indexed) root assert-xml reports are built under, so a caller
// sees a path relative to the actual expected/actual content (spec.md
// §6: "a custom comparison formatter strips a leading /ignorable-wrapper
// XPath prefix from reported differences").
var wrapperPrefix = regexp.MustCompile(`^/` + regexp.QuoteMeta(xmlutil.WrapperElementName) + `(\[[0-9]+\])?`)

func stripWrapperPrefix(path string) string {
	stripped := wrapperPrefix.ReplaceAllString(path, "")
	if stripped == "" {
		return "/"
	}

	return stripped
}

var (
	diffLabel = color.New(color.FgYellow)
	diffWant  = color.New(color.FgGreen)
	diffGot   = color.New(color.FgRed)
)

// XmlDiff reports one structural disagreement between an expected and an
// actual XML node, located by an XPath-ish path.
type XmlDiff struct {
	Path     string
	Expected string
	Actual   string
}

// Render formats d the way the teacher's fixture-diff failure reasons
// are colorized (testrunner/fixtureexecutor/failure.go's palette of
// role-tagged colors for expected/actual values).
func (d XmlDiff) Render() string {
	return fmt.Sprintf("%s %s: expected %s, got %s",
		diffLabel.Sprint("at"), d.Path,
		diffWant.Sprint(d.Expected),
		diffGot.Sprint(d.Actual))
}

// CompareElements structurally diffs expected against actual, honoring
// ignorePrefixes (spec.md §4.5: assert-xml's ignore-prefixes attribute
// treats namespace-prefixed and unprefixed equivalents as equal), and
// returns every disagreement found with wrapperPrefix already stripped
// from each path.
func CompareElements(expected, actual *etree.Element, ignorePrefixes bool) []XmlDiff {
	diffs := compareElements("/"+xmlutil.WrapperElementName, expected, actual, ignorePrefixes)
	for i := range diffs {
		diffs[i].Path = stripWrapperPrefix(diffs[i].Path)
	}

	return diffs
}

func localName(tag string, ignorePrefixes bool) string {
	if !ignorePrefixes {
		return tag
	}

	if idx := strings.IndexByte(tag, ':'); idx >= 0 {
		return tag[idx+1:]
	}

	return tag
}

func compareElements(path string, expected, actual *etree.Element, ignorePrefixes bool) []XmlDiff {
	if expected == nil && actual == nil {
		return nil
	}

	if expected == nil {
		return []XmlDiff{{Path: path, Expected: "(absent)", Actual: elementSummary(actual)}}
	}

	if actual == nil {
		return []XmlDiff{{Path: path, Expected: elementSummary(expected), Actual: "(absent)"}}
	}

	var diffs []XmlDiff

	if localName(expected.Tag, ignorePrefixes) != localName(actual.Tag, ignorePrefixes) {
		diffs = append(diffs, XmlDiff{Path: path, Expected: expected.Tag, Actual: actual.Tag})
		return diffs
	}

	diffs = append(diffs, compareAttrs(path, expected, actual, ignorePrefixes)...)

	expectedChildren := expected.ChildElements()
	actualChildren := actual.ChildElements()

	if len(expectedChildren) == 0 && len(actualChildren) == 0 {
		expectedText := strings.TrimSpace(expected.Text())
		actualText := strings.TrimSpace(actual.Text())

		if expectedText != actualText {
			diffs = append(diffs, XmlDiff{Path: path + "/text()", Expected: expectedText, Actual: actualText})
		}

		return diffs
	}

	n := len(expectedChildren)
	if len(actualChildren) > n {
		n = len(actualChildren)
	}

	for i := 0; i < n; i++ {
		var ec, ac *etree.Element

		childPath := fmt.Sprintf("%s/%s[%d]", path, childTag(expectedChildren, actualChildren, i), i+1)

		if i < len(expectedChildren) {
			ec = expectedChildren[i]
		}

		if i < len(actualChildren) {
			ac = actualChildren[i]
		}

		diffs = append(diffs, compareElements(childPath, ec, ac, ignorePrefixes)...)
	}

	return diffs
}

func childTag(expected, actual []*etree.Element, i int) string {
	if i < len(expected) {
		return expected[i].Tag
	}

	if i < len(actual) {
		return actual[i].Tag
	}

	return "?"
}

func compareAttrs(path string, expected, actual *etree.Element, ignorePrefixes bool) []XmlDiff {
	var diffs []XmlDiff

	seen := make(map[string]bool)

	for _, a := range expected.Attr {
		name := localName(a.Key, ignorePrefixes)
		seen[name] = true

		got := actual.SelectAttr(a.Key)
		if got == nil {
			diffs = append(diffs, XmlDiff{Path: path + "/@" + name, Expected: a.Value, Actual: "(absent)"})
			continue
		}

		if got.Value != a.Value {
			diffs = append(diffs, XmlDiff{Path: path + "/@" + name, Expected: a.Value, Actual: got.Value})
		}
	}

	for _, a := range actual.Attr {
		name := localName(a.Key, ignorePrefixes)
		if seen[name] {
			continue
		}

		diffs = append(diffs, XmlDiff{Path: path + "/@" + name, Expected: "(absent)", Actual: a.Value})
	}

	return diffs
}

func elementSummary(el *etree.Element) string {
	return xmlutil.Serialize(el)
}
