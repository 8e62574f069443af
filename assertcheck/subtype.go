package assertcheck

import (
	"errors"
	"strings"

	"github.com/shibukawa/xqtsrunner/seq"
)

// errTypeExprSyntax marks a malformed assert-type typeExpr attribute.
var errTypeExprSyntax = errors.New("malformed type expression")

// xsHierarchy is a small, deliberately partial xs: numeric/string
// subtype ladder (spec.md §4.5 notes assert-type need only honor "basic
// XDM item-kind and xs: numeric/string subtyping", not the full schema
// type hierarchy). Each entry lists its direct supertype chain, most
// specific first.
var xsHierarchy = map[string][]string{
	"xs:integer":            {"xs:decimal", "xs:anyAtomicType"},
	"xs:long":               {"xs:integer", "xs:decimal", "xs:anyAtomicType"},
	"xs:int":                {"xs:long", "xs:integer", "xs:decimal", "xs:anyAtomicType"},
	"xs:short":              {"xs:int", "xs:long", "xs:integer", "xs:decimal", "xs:anyAtomicType"},
	"xs:byte":               {"xs:short", "xs:int", "xs:long", "xs:integer", "xs:decimal", "xs:anyAtomicType"},
	"xs:nonNegativeInteger": {"xs:integer", "xs:decimal", "xs:anyAtomicType"},
	"xs:decimal":            {"xs:anyAtomicType"},
	"xs:float":              {"xs:anyAtomicType"},
	"xs:double":             {"xs:anyAtomicType"},
	"xs:string":             {"xs:anyAtomicType"},
	"xs:normalizedString":   {"xs:string", "xs:anyAtomicType"},
	"xs:token":              {"xs:normalizedString", "xs:string", "xs:anyAtomicType"},
	"xs:NCName":             {"xs:token", "xs:normalizedString", "xs:string", "xs:anyAtomicType"},
	"xs:boolean":            {"xs:anyAtomicType"},
	"xs:anyAtomicType":      nil,
}

// itemTypeName reports the dynamic typeExpr base-type name for a single
// item the way assert-type expects to match it (spec.md §4.5): every node
// as "node()" (its element/attribute/... kind is not distinguished),
// atomics by their most specific xs: name when
// the reference engine tracked one, else by a shallow kind-based
// default.
func itemTypeName(it seq.Item) string {
	switch it.Kind {
	case seq.KindNode:
		return "node()"
	case seq.KindBoolean:
		return "xs:boolean"
	case seq.KindString:
		return "xs:string"
	case seq.KindInteger:
		if it.TypeName != "" {
			return it.TypeName
		}

		return "xs:integer"
	case seq.KindDecimal:
		if it.TypeName != "" {
			return it.TypeName
		}

		return "xs:decimal"
	default:
		return ""
	}
}

// isSubtype reports whether dynamicType is baseType or one of its
// ancestors in xsHierarchy; item-kind names ("node()", "item()") only
// match themselves or the universal "item()".
func isSubtype(dynamicType, baseType string) bool {
	baseType = strings.TrimSuffix(baseType, "()")
	dynamicType = strings.TrimSuffix(dynamicType, "()")

	if baseType == "item" || baseType == dynamicType {
		return true
	}

	for _, ancestor := range xsHierarchy[dynamicType] {
		if strings.TrimSuffix(ancestor, "()") == baseType {
			return true
		}
	}

	return false
}

// Matches reports whether s satisfies te (spec.md §4.5 assert-type):
// the wildcard always matches; an empty s matches only the base type
// "empty", whatever the cardinality; otherwise every item's dynamic type
// must be a subtype of te.BaseType and the item count must satisfy the
// cardinality.
func (te TypeExpr) Matches(s seq.Sequence) bool {
	if te.Wildcard {
		return true
	}

	if s.IsEmpty() {
		return te.BaseType == "empty"
	}

	if !te.Cardinality.Allows(s.ItemCount()) {
		return false
	}

	for _, it := range s.Items() {
		if !isSubtype(itemTypeName(it), te.BaseType) {
			return false
		}
	}

	return true
}
