// Package xmlutil centralizes the etree-based XML parsing and
// canonical-serialization helpers shared by the reference engine and the
// assert-xml comparator, so both talk to github.com/beevik/etree the same
// way the teacher's formatter package talks to it for SQL result rendering.
package xmlutil

import (
	"fmt"
	"strings"

	"github.com/beevik/etree"
)

// WrapperElementName is the synthetic root spec.md §6 wraps assert-xml
// operands in before handing them to the engine for canonicalization.
const WrapperElementName = "ignorable-wrapper"

// Parse parses data as an XML document and returns its root element.
func Parse(data []byte) (*etree.Element, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, fmt.Errorf("parsing XML: %w", err)
	}

	if doc.Root() == nil {
		return nil, fmt.Errorf("parsing XML: no root element")
	}

	return doc.Root(), nil
}

// ParseFragment parses one or more top-level elements/text nodes, as
// found inside an assert-xml literal that need not be a single
// well-formed document (e.g. "<a/><b/>"). It does so by wrapping the
// fragment in WrapperElementName and parsing that instead.
func ParseFragment(fragment string) (*etree.Element, error) {
	wrapped := "<" + WrapperElementName + ">" + fragment + "</" + WrapperElementName + ">"

	doc := etree.NewDocument()
	if err := doc.ReadFromString(wrapped); err != nil {
		return nil, fmt.Errorf("parsing XML fragment: %w", err)
	}

	return doc.Root(), nil
}

// serializeSettings matches the engine's default serialization parameters
// (spec.md §6 and §9): method=xml, indent=no, omit-xml-declaration=yes.
var serializeSettings = etree.WriteSettings{
	CanonicalText:    false,
	CanonicalAttrVal: false,
}

// Serialize renders el the way the engine's default serialization does:
// no XML declaration, no added indentation.
func Serialize(el *etree.Element) string {
	doc := etree.NewDocument()
	doc.SetRoot(el.Copy())

	var sb strings.Builder
	doc.Indent(etree.NoIndent)
	doc.WriteSettings = serializeSettings
	_, _ = doc.WriteTo(&sb)

	return sb.String()
}

// SerializeChildren serializes each of children (typically the child
// elements of a WrapperElementName wrapper) individually and returns one
// canonical string per child, in order.
func SerializeChildren(children []*etree.Element) []string {
	out := make([]string, 0, len(children))
	for _, c := range children {
		out = append(out, Serialize(c))
	}

	return out
}

// Children returns wrapper's child elements in document order.
func Children(wrapper *etree.Element) []*etree.Element {
	return wrapper.ChildElements()
}

// SerializeNode serializes an opaque engine.Document/seq.Item.Node
// handle, which the reference engine always populates with *etree.Element.
func SerializeNode(node any) string {
	el, ok := node.(*etree.Element)
	if !ok || el == nil {
		return ""
	}

	return Serialize(el)
}
