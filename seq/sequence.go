// Package seq defines the opaque XDM sequence/item contract the Runner
// core depends on (spec.md §3, §4.4). The core never interprets item
// content beyond the operations exposed here; everything else is the
// embedded XQuery engine's business.
package seq

import "github.com/shopspring/decimal"

// ItemKind tags the downcasts the core is allowed to perform on an Item
// (spec.md §3: "downcasts to BooleanValue/StringValue").
type ItemKind int

const (
	KindNode ItemKind = iota
	KindBoolean
	KindString
	KindDecimal
	KindInteger
)

// Item is a single XDM item within a Sequence.
type Item struct {
	Kind    ItemKind
	Bool    bool
	Str     string
	Decimal decimal.Decimal
	// TypeName is the item's dynamic type, e.g. "xs:string", "xs:integer",
	// "element()". Used by assert-type subtype checks.
	TypeName string
	// Node is an opaque handle to a parsed XML node when Kind == KindNode.
	// The core never dereferences it; engines round-trip it back through
	// parseXml/executeQuery.
	Node any
}

// BooleanValue downcasts item to a boolean, per spec.md §3.
func (it Item) BooleanValue() (bool, bool) {
	if it.Kind != KindBoolean {
		return false, false
	}

	return it.Bool, true
}

// StringValue downcasts item to a string, per spec.md §3.
func (it Item) StringValue() (string, bool) {
	if it.Kind != KindString {
		return "", false
	}

	return it.Str, true
}

// Sequence is an ordered, 1-indexed, finite sequence of XDM items.
type Sequence struct {
	items []Item
}

// NewSequence builds a Sequence from items in order.
func NewSequence(items ...Item) Sequence {
	return Sequence{items: items}
}

// Empty is the empty sequence.
var Empty = Sequence{}

// ItemCount returns the number of items.
func (s Sequence) ItemCount() int {
	return len(s.items)
}

// IsEmpty reports whether the sequence has no items.
func (s Sequence) IsEmpty() bool {
	return len(s.items) == 0
}

// ItemAt returns the 1-indexed item, panicking like a slice index would
// on out-of-range access — callers must check ItemCount first, matching
// the opaque-sequence contract of spec.md §3.
func (s Sequence) ItemAt(i int) Item {
	return s.items[i-1]
}

// Items returns the underlying items in order, for callers (the
// assertion evaluator, the reference engine) that need to iterate.
func (s Sequence) Items() []Item {
	return s.items
}

// IsTrueSingleton reports the TrueSingleton shape used throughout §4.5:
// exactly one item, a boolean, with value true.
func (s Sequence) IsTrueSingleton() bool {
	if s.ItemCount() != 1 {
		return false
	}

	b, ok := s.ItemAt(1).BooleanValue()

	return ok && b
}

// IsSingleBoolean reports whether the sequence is exactly one boolean
// item, returning its value.
func (s Sequence) IsSingleBoolean() (bool, bool) {
	if s.ItemCount() != 1 {
		return false, false
	}

	return s.ItemAt(1).BooleanValue()
}

// QueryError represents an XQuery dynamic/static error raised by the
// engine, carrying the standard XQuery error code (e.g. "FORG0001").
type QueryError struct {
	Code    string
	Message string
}

func (e *QueryError) Error() string {
	if e.Message == "" {
		return e.Code
	}

	return e.Code + ": " + e.Message
}

// MatchesCode reports whether this error's code matches code, where "*"
// matches any code (spec.md §4.5 assert-serialization-error, top-level
// error cross-matching).
func (e *QueryError) MatchesCode(code string) bool {
	return code == "*" || e.Code == code
}
