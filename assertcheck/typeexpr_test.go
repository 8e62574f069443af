package assertcheck

import (
	"testing"

	"github.com/alecthomas/assert/v2"
	"github.com/shopspring/decimal"

	"github.com/shibukawa/xqtsrunner/seq"
)

func TestParseTypeExprWildcard(t *testing.T) {
	te, err := ParseTypeExpr("*")
	assert.NoError(t, err)
	assert.True(t, te.Wildcard)
}

func TestParseTypeExprBaseAndCardinality(t *testing.T) {
	te, err := ParseTypeExpr("xs:integer+")
	assert.NoError(t, err)
	assert.Equal(t, "xs:integer", te.BaseType)
	assert.Equal(t, CardinalityOneOrMore, te.Cardinality)

	te, err = ParseTypeExpr("element()")
	assert.NoError(t, err)
	assert.Equal(t, "element", te.BaseType)
	assert.True(t, te.HadParameterTypes)
}

func TestParseTypeExprRejectsGarbage(t *testing.T) {
	_, err := ParseTypeExpr("xs:integer??")
	assert.Error(t, err)
}

func TestTypeExprMatches(t *testing.T) {
	te, err := ParseTypeExpr("xs:decimal")
	assert.NoError(t, err)

	s := seq.NewSequence(seq.Item{Kind: seq.KindInteger, Decimal: decimal.NewFromInt(1), TypeName: "xs:integer"})
	assert.True(t, te.Matches(s))

	s2 := seq.NewSequence(seq.Item{Kind: seq.KindString, Str: "hi"})
	assert.False(t, te.Matches(s2))
}

func TestTypeExprCardinalityMismatch(t *testing.T) {
	te, err := ParseTypeExpr("xs:integer")
	assert.NoError(t, err)

	empty := seq.Sequence{}
	assert.False(t, te.Matches(empty))
}
