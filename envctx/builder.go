// Package envctx implements the Context Builder (spec.md §4.3): it turns
// a TestCase plus its ResolvedEnvironment into the arguments the XQuery
// engine bridge needs — query text, static base URI, context sequence,
// available documents/collections/text-resources, and external variable
// bindings.
package envctx

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"

	"golang.org/x/text/encoding/htmlindex"

	"github.com/shibukawa/xqtsrunner"
	"github.com/shibukawa/xqtsrunner/engine"
	"github.com/shibukawa/xqtsrunner/seq"
)

// Built is everything the Query-Executor bridge needs to run the primary
// query (spec.md §4.3).
type Built struct {
	Query                string
	BaseURI              string // "" means no static base URI
	ContextSeq           *seq.Sequence
	AvailableDocs        map[string]engine.Document
	AvailableCollections map[string][]engine.Document
	AvailableTexts       map[string]engine.AvailableText
	VariableBindings     map[string]seq.Sequence
	// Timings accumulates every helper query invocation performed while
	// binding external variables (spec.md §4.6: verdict timings include
	// every engine invocation, including ones spent building context).
	Timings xqtsrunner.Timings
}

// Build assembles a Built from tc and its resolved dependencies,
// short-circuiting on the first failure (spec.md §4.3: "Any failure at
// any step above aborts context building... later steps are not
// attempted").
func Build(ctx context.Context, tc *xqtsrunner.TestCase, resolved *xqtsrunner.ResolvedEnvironment, eng engine.Engine) (Built, error) {
	b := Built{
		Timings: xqtsrunner.Timings{},
	}

	query, err := resolveQuery(tc, resolved)
	if err != nil {
		return Built{}, err
	}

	b.Query = query
	b.BaseURI = resolveBaseURI(tc)

	env := tc.Environment

	contextSeq, err := resolveContextSeq(ctx, env, resolved, eng)
	if err != nil {
		return Built{}, err
	}

	b.ContextSeq = contextSeq

	docs, err := resolveAvailableDocs(ctx, env, resolved, eng)
	if err != nil {
		return Built{}, err
	}

	b.AvailableDocs = docs

	collections, err := resolveAvailableCollections(ctx, env, resolved, eng)
	if err != nil {
		return Built{}, err
	}

	b.AvailableCollections = collections

	texts, err := resolveAvailableTexts(env, resolved)
	if err != nil {
		return Built{}, err
	}

	b.AvailableTexts = texts

	bindings, timings, err := resolveVariableBindings(ctx, env, eng)
	if err != nil {
		return Built{}, err
	}

	b.VariableBindings = bindings
	b.Timings = b.Timings.Add(timings)

	return b, nil
}

func resolveQuery(tc *xqtsrunner.TestCase, resolved *xqtsrunner.ResolvedEnvironment) (string, error) {
	if tc.Test.Inline != "" {
		return tc.Test.Inline, nil
	}

	if !resolved.HasQuery() {
		return "", fmt.Errorf("%w: query path %q never resolved", xqtsrunner.ErrContextBuild, tc.Test.Path)
	}

	return resolved.ResolvedTest, nil
}

func resolveBaseURI(tc *xqtsrunner.TestCase) string {
	if tc.Environment.HasStaticBaseURI() {
		return tc.Environment.StaticBaseURI
	}

	return fileURI(tc.File)
}

func fileURI(path string) string {
	if path == "" {
		return ""
	}

	abs := filepath.ToSlash(path)

	u := url.URL{Scheme: "file", Path: abs}

	return u.String()
}

func findContextSource(env *xqtsrunner.Environment) (xqtsrunner.Source, bool) {
	if env == nil {
		return xqtsrunner.Source{}, false
	}

	for _, src := range env.Sources {
		if src.HasRole(".") {
			return src, true
		}
	}

	return xqtsrunner.Source{}, false
}

func resolveContextSeq(ctx context.Context, env *xqtsrunner.Environment, resolved *xqtsrunner.ResolvedEnvironment, eng engine.Engine) (*seq.Sequence, error) {
	if env.ForcesEmptyContext() {
		empty := seq.Empty
		return &empty, nil
	}

	src, ok := findContextSource(env)
	if !ok {
		return nil, nil
	}

	bytes, ok := resolved.Lookup(src.File)
	if !ok {
		return nil, fmt.Errorf("%w: context source %q not resolved", xqtsrunner.ErrContextBuild, src.File)
	}

	outcome := eng.ParseXml(ctx, bytes)
	if outcome.IsError() {
		return nil, fmt.Errorf("%w: parsing context document %q: %w", xqtsrunner.ErrContextBuild, src.File, outcome.Err)
	}

	return &outcome.Result, nil
}

func resolveAvailableDocs(ctx context.Context, env *xqtsrunner.Environment, resolved *xqtsrunner.ResolvedEnvironment, eng engine.Engine) (map[string]engine.Document, error) {
	if env == nil {
		return nil, nil
	}

	docs := make(map[string]engine.Document)

	for _, src := range env.Sources {
		if src.Role != "" || src.URI == "" {
			continue
		}

		bytes, ok := resolved.Lookup(src.File)
		if !ok {
			return nil, fmt.Errorf("%w: available document %q not resolved", xqtsrunner.ErrContextBuild, src.File)
		}

		outcome := eng.ParseXml(ctx, bytes)
		if outcome.IsError() {
			return nil, fmt.Errorf("%w: parsing available document %q: %w", xqtsrunner.ErrContextBuild, src.File, outcome.Err)
		}

		docs[src.URI] = documentOf(outcome.Result)
	}

	return docs, nil
}

// documentOf extracts the opaque Document handle out of a one-item
// parsed-XML sequence.
func documentOf(s seq.Sequence) engine.Document {
	if s.IsEmpty() {
		return nil
	}

	return s.ItemAt(1).Node
}

func resolveAvailableCollections(ctx context.Context, env *xqtsrunner.Environment, resolved *xqtsrunner.ResolvedEnvironment, eng engine.Engine) (map[string][]engine.Document, error) {
	if env == nil {
		return nil, nil
	}

	collections := make(map[string][]engine.Document)

	for _, col := range env.Collections {
		// The teacher's source prepends member results, leaving each
		// collection in reverse declaration order (spec.md §9 design
		// note "Collection accumulation order"); reproduced here for
		// fidelity even though most callers do not depend on it.
		var members []engine.Document

		for _, src := range col.Sources {
			bytes, ok := resolved.Lookup(src.File)
			if !ok {
				return nil, fmt.Errorf("%w: collection member %q not resolved", xqtsrunner.ErrContextBuild, src.File)
			}

			outcome := eng.ParseXml(ctx, bytes)
			if outcome.IsError() {
				return nil, fmt.Errorf("%w: parsing collection member %q: %w", xqtsrunner.ErrContextBuild, src.File, outcome.Err)
			}

			members = append([]engine.Document{documentOf(outcome.Result)}, members...)
		}

		collections[col.URI] = members
	}

	return collections, nil
}

func resolveAvailableTexts(env *xqtsrunner.Environment, resolved *xqtsrunner.ResolvedEnvironment) (map[string]engine.AvailableText, error) {
	if env == nil {
		return nil, nil
	}

	texts := make(map[string]engine.AvailableText)

	for _, res := range env.Resources {
		if res.URI == "" {
			continue
		}

		bytes, ok := resolved.Lookup(res.File)
		if !ok {
			return nil, fmt.Errorf("%w: resource %q not resolved", xqtsrunner.ErrContextBuild, res.File)
		}

		charset := res.Encoding
		if charset == "" {
			charset = "UTF-8"
		}

		decoded, err := decode(bytes, charset)
		if err != nil {
			return nil, fmt.Errorf("%w: %w: resource %q: %w", xqtsrunner.ErrContextBuild, xqtsrunner.ErrUnknownCharset, res.File, err)
		}

		texts[res.URI] = engine.AvailableText{Charset: charset, Text: decoded}
	}

	return texts, nil
}

// decode turns bytes into text using the IANA charset name charset (the
// caller passes UTF-8 when a resource declares no encoding).
// golang.org/x/text/encoding/htmlindex resolves the
// wide range of charset aliases XQTS resource declarations use.
func decode(bytes []byte, charset string) (string, error) {
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return "", err
	}

	out, err := enc.NewDecoder().Bytes(bytes)
	if err != nil {
		return "", fmt.Errorf("decoding as %s: %w", charset, err)
	}

	return string(out), nil
}

func resolveVariableBindings(ctx context.Context, env *xqtsrunner.Environment, eng engine.Engine) (map[string]seq.Sequence, xqtsrunner.Timings, error) {
	if env == nil {
		return nil, xqtsrunner.Timings{}, nil
	}

	bindings := make(map[string]seq.Sequence)
	total := xqtsrunner.Timings{}

	for _, p := range env.Params {
		if !p.HasSelect() || p.IsEmptyType() {
			bindings[p.Name] = seq.Empty
			continue
		}

		outcome := eng.ExecuteQuery(ctx, p.Select, true, "", nil, nil, nil, nil, nil)
		total = total.Add(xqtsrunner.Timings{CompilationTime: outcome.CompilationTime, ExecutionTime: outcome.ExecutionTime})

		if outcome.IsError() {
			return nil, total, fmt.Errorf("%w: evaluating select expression for parameter %q: %w", xqtsrunner.ErrContextBuild, p.Name, outcome.Err)
		}

		bindings[p.Name] = outcome.Result
	}

	return bindings, total, nil
}
