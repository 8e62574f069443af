package refengine

import (
	"context"
	"testing"

	"github.com/alecthomas/assert/v2"

	"github.com/shibukawa/xqtsrunner/seq"
)

func TestArithmetic(t *testing.T) {
	e := New()
	defer e.Close()

	out := e.ExecuteQuery(context.Background(), "1 + 1", true, "", nil, nil, nil, nil, nil)
	assert.False(t, out.IsError())
	assert.Equal(t, 1, out.Result.ItemCount())
	assert.Equal(t, int64(2), out.Result.ItemAt(1).Decimal.IntPart())
}

func TestIntegerCastError(t *testing.T) {
	e := New()
	defer e.Close()

	out := e.ExecuteQuery(context.Background(), `xs:integer("abc")`, true, "", nil, nil, nil, nil, nil)
	assert.True(t, out.IsError())
	assert.Equal(t, "FORG0001", out.Err.Code)
}

func TestCountWithContext(t *testing.T) {
	e := New()
	defer e.Close()

	parsed := e.ParseXml(context.Background(), []byte("<a><b/></a>"))
	assert.False(t, parsed.IsError())

	out := e.ExecuteQuery(context.Background(), "count(/a/b)", true, "", &parsed.Result, nil, nil, nil, nil)
	assert.False(t, out.IsError())
	assert.Equal(t, 1, out.Result.ItemCount())
	assert.Equal(t, int64(1), out.Result.ItemAt(1).Decimal.IntPart())
}

func TestSequenceLiteral(t *testing.T) {
	e := New()
	defer e.Close()

	out := e.ExecuteQuery(context.Background(), "(3, 1, 2)", true, "", nil, nil, nil, nil, nil)
	assert.False(t, out.IsError())
	assert.Equal(t, 3, out.Result.ItemCount())
}

func TestParseXmlMalformed(t *testing.T) {
	e := New()
	defer e.Close()

	out := e.ParseXml(context.Background(), []byte("<a>"))
	assert.True(t, out.IsError())
}

func TestSequenceToString(t *testing.T) {
	e := New()
	defer e.Close()

	s := seq.NewSequence(seq.Item{Kind: seq.KindBoolean, Bool: true})
	assert.Equal(t, "true", e.SequenceToString(context.Background(), s))
}
