package engine

// Standard helper queries. These are literal text the implementation must
// emit verbatim (spec.md §6): the assertion evaluator interpolates user
// expressions into them but must not otherwise alter the text, so that any
// compliant XQuery engine parses them identically.
const (
	QueryNormalizedSpace = "normalize-space($result)"

	QueryAssertStringValue = `string-join(for $r in $result return string($r), " ")`

	QueryAssertStringValueNormalizedSpace = "normalize-space(" + QueryAssertStringValue + ")"

	// QueryDefaultSerialization declares $local:default-serialization as
	// an output:serialization-parameters element requesting
	// method=xml, indent=no, omit-xml-declaration=yes.
	QueryDefaultSerialization = `declare variable $local:default-serialization := ` +
		`<output:serialization-parameters xmlns:output="http://www.w3.org/2010/xslt-xquery-serialization">` +
		`<output:method value="xml"/>` +
		`<output:indent value="no"/>` +
		`<output:omit-xml-declaration value="yes"/>` +
		`</output:serialization-parameters>;`

	// QueryAssertXmlSerialization is the default-serialization preamble
	// followed by the fn:serialize call assert-xml and
	// assert-serialization-error invoke against $result.
	QueryAssertXmlSerialization = QueryDefaultSerialization + "\n" +
		`fn:serialize($result, $local:default-serialization)`
)

// ElementWrapperName is the wrapper element assert-xml serializes expected
// values under before diffing, so multiple top-level nodes and atomic
// values can be compared uniformly (spec.md §6 "XML diff wrapping").
const ElementWrapperName = "ignorable-wrapper"

// WrapperPathPrefix is the XPath prefix the assert-xml comparator
// (assertcheck's stripWrapperPrefix) removes from diff-reported paths.
const WrapperPathPrefix = "/" + ElementWrapperName

// AssertPermutationQuery builds the sort-and-deep-equal query
// assert-permutation uses to compare two sequences as multisets
// (spec.md §4.5/§6): both sides are sorted with a key function that tags
// xs:string values with a "str_" prefix so they sort distinctly from
// numerics, then compared with deep-equal.
func AssertPermutationQuery(expr string) string {
	return `declare function local:permutation-key($item as item()) as xs:string {
  if ($item instance of xs:string) then concat("str_", $item) else xs:string($item)
};
deep-equal(
  for $i in (` + expr + `) order by local:permutation-key($i) return $i,
  for $r in $result order by local:permutation-key($r) return $r
)`
}

// AssertEqQuery builds the {expr} eq $result comparison query.
func AssertEqQuery(expr string) string {
	return "(" + expr + ") eq $result"
}

// AssertDeepEqQuery builds the deep-equal((expr), $result) query.
func AssertDeepEqQuery(expr string) string {
	return "deep-equal((" + expr + "), $result)"
}

// SerializationMatchesQuery builds the fn:matches query
// serialization-matches uses after serializing $result to a string and
// rebinding it as $result.
func SerializationMatchesQuery(regex, flags string) string {
	return `fn:matches($result, "` + regex + `", "` + flags + `")`
}
