// Package dispatcher implements the Runner actor (spec.md §4.2, §5): the
// single-threaded-cooperative message loop that ties the Pending-Cases
// Index, the resource cache, the Context Builder, the engine bridge, and
// the Assertion Evaluator together into one RunTestCase -> TestResult
// pipeline.
//
// A Runner processes exactly one message at a time on its own goroutine
// (spec.md §5): RunTestCase submissions and resource-cache replies are
// all funneled through a single mailbox channel, so the pending index
// and the in-flight TestSetRef bookkeeping below never need locking —
// mirroring the teacher's testrunner/fixtureexecutor package, which owns
// its run state on one goroutine and only uses channels to move work and
// results across goroutine boundaries.
package dispatcher

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/shibukawa/xqtsrunner"
	"github.com/shibukawa/xqtsrunner/assertcheck"
	"github.com/shibukawa/xqtsrunner/engine"
	"github.com/shibukawa/xqtsrunner/envctx"
	"github.com/shibukawa/xqtsrunner/pending"
	"github.com/shibukawa/xqtsrunner/resourcecache"
)

// RunningTestCase is emitted right before a Runner produces a test case's
// verdict: before executing its primary query and assertion pipeline, or
// before reporting an invalid test case or a resource-fetch failure
// (spec.md §4.2). Every RanTestCase for a given ID is preceded by exactly
// one RunningTestCase for that ID.
type RunningTestCase struct {
	TestSetRef xqtsrunner.TestSetRef
	ID         xqtsrunner.TestCaseId
}

// RanTestCase is emitted once a test case has a final verdict, including
// an Error verdict for an invalid test case or a resource-fetch failure,
// where no query is run.
type RanTestCase struct {
	TestSetRef xqtsrunner.TestSetRef
	Result     xqtsrunner.TestResult
}

type messageKind int

const (
	msgRunTestCase messageKind = iota
	msgCachedResource
	msgResourceGetError
)

type runTestCaseMsg struct {
	id         xqtsrunner.TestCaseId
	testSetRef xqtsrunner.TestSetRef
	tc         xqtsrunner.TestCase
	manager    any
}

type inboundMessage struct {
	kind    messageKind
	runTC   runTestCaseMsg
	cached  resourcecache.CachedResource
	failure resourcecache.ResourceGetError
}

// Runner is the XQTS test-case runner actor.
type Runner struct {
	cfg           xqtsrunner.RunnerConfig
	cache         resourcecache.Cache
	engineFactory func() engine.Engine
	logger        *zap.Logger

	idx  *pending.Index
	refs map[xqtsrunner.TestCaseId]xqtsrunner.TestSetRef

	mailbox chan inboundMessage
	running chan RunningTestCase
	ran     chan RanTestCase
}

// New builds a Runner. engineFactory is called once per test case to
// acquire a fresh connection-backed Engine (spec.md §4.4 scoped resource
// rule); a typical factory wraps engine/refengine.New. A nil logger
// falls back to zap.NewNop(), matching the teacher's practice of never
// logging to a package-level global.
func New(cfg xqtsrunner.RunnerConfig, cache resourcecache.Cache, engineFactory func() engine.Engine, logger *zap.Logger) *Runner {
	cfg = cfg.Normalize()

	if logger == nil {
		logger = zap.NewNop()
	}

	return &Runner{
		cfg:           cfg,
		cache:         cache,
		engineFactory: engineFactory,
		logger:        logger,
		idx:           pending.New(),
		refs:          make(map[xqtsrunner.TestCaseId]xqtsrunner.TestSetRef),
		mailbox:       make(chan inboundMessage, cfg.MailboxSize),
		running:       make(chan RunningTestCase, cfg.MailboxSize),
		ran:           make(chan RanTestCase, cfg.MailboxSize),
	}
}

// Running returns the stream of RunningTestCase notifications.
func (r *Runner) Running() <-chan RunningTestCase {
	return r.running
}

// Ran returns the stream of final verdicts.
func (r *Runner) Ran() <-chan RanTestCase {
	return r.ran
}

// Submit enqueues a RunTestCase request (spec.md §4.2). Safe to call
// from any goroutine; it only ever touches the mailbox channel.
func (r *Runner) Submit(id xqtsrunner.TestCaseId, testSetRef xqtsrunner.TestSetRef, tc xqtsrunner.TestCase, manager any) {
	r.mailbox <- inboundMessage{kind: msgRunTestCase, runTC: runTestCaseMsg{id: id, testSetRef: testSetRef, tc: tc, manager: manager}}
}

// Run drives the mailbox loop until ctx is cancelled. It must run on its
// own goroutine; every other Runner method that touches shared state is
// only ever called from inside this loop.
func (r *Runner) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-r.mailbox:
			r.handle(ctx, msg)
		}
	}
}

func (r *Runner) handle(ctx context.Context, msg inboundMessage) {
	switch msg.kind {
	case msgRunTestCase:
		r.handleRunTestCase(ctx, msg.runTC)
	case msgCachedResource:
		r.handleDelivered(ctx, msg.cached)
	case msgResourceGetError:
		r.handleFailed(msg.failure)
	}
}

func (r *Runner) handleRunTestCase(ctx context.Context, msg runTestCaseMsg) {
	// Duplicate RunTestCase submissions for an in-flight id are a no-op
	// (spec.md §4.2): the first submission owns the waiter registration
	// and the eventual RanTestCase.
	if r.idx.Contains(msg.id) {
		return
	}

	if !msg.tc.IsValid() {
		r.running <- RunningTestCase{TestSetRef: msg.testSetRef, ID: msg.id}
		r.ran <- RanTestCase{
			TestSetRef: msg.testSetRef,
			Result:     xqtsrunner.Error(msg.id, xqtsrunner.NoEngineCall, xqtsrunner.ErrInvalidTestCase),
		}

		return
	}

	byCategory := categorizedPaths(msg.tc)

	if !r.idx.Register(msg.id, msg.testSetRef, msg.tc, msg.manager, byCategory) {
		return
	}

	r.refs[msg.id] = msg.testSetRef

	paths := distinctPaths(byCategory)
	if len(paths) == 0 {
		r.runReady(ctx, msg.id)
		return
	}

	for _, path := range paths {
		req := resourcecache.GetResource{Path: path}
		correlationID := uuid.NewString()

		r.logger.Debug("fetching dependency",
			zap.String("test_set", string(msg.id.TestSet)), zap.String("test_case", string(msg.id.TestCase)),
			zap.String("path", path), zap.String("correlation_id", correlationID))

		r.cache.Fetch(ctx, req,
			func(cr resourcecache.CachedResource) {
				r.logger.Debug("dependency resolved", zap.String("path", cr.Path), zap.String("correlation_id", correlationID))
				r.mailbox <- inboundMessage{kind: msgCachedResource, cached: cr}
			},
			func(ge resourcecache.ResourceGetError) {
				r.logger.Warn("dependency fetch failed", zap.String("path", ge.Path), zap.String("correlation_id", correlationID), zap.Error(ge.Err))
				r.mailbox <- inboundMessage{kind: msgResourceGetError, failure: ge}
			},
		)
	}
}

func (r *Runner) handleDelivered(ctx context.Context, cr resourcecache.CachedResource) {
	for _, id := range r.idx.Deliver(cr.Path, cr.Bytes) {
		r.runReady(ctx, id)
	}
}

func (r *Runner) handleFailed(ge resourcecache.ResourceGetError) {
	for _, id := range r.idx.Fail(ge.Path) {
		testSetRef := r.refs[id]
		delete(r.refs, id)

		r.logger.Warn("test case failed on resource fetch",
			zap.String("test_set", string(id.TestSet)), zap.String("test_case", string(id.TestCase)), zap.String("path", ge.Path))

		r.running <- RunningTestCase{TestSetRef: testSetRef, ID: id}
		r.ran <- RanTestCase{
			TestSetRef: testSetRef,
			Result:     xqtsrunner.Error(id, xqtsrunner.NoEngineCall, fmt.Errorf("%w: %w", xqtsrunner.ErrResourceFetch, ge.Err)),
		}
	}
}

func (r *Runner) runReady(ctx context.Context, id xqtsrunner.TestCaseId) {
	pc, ok := r.idx.Take(id)
	if !ok {
		return
	}

	testSetRef := r.refs[id]
	delete(r.refs, id)

	r.logger.Debug("running test case", zap.String("test_set", string(id.TestSet)), zap.String("test_case", string(id.TestCase)))
	r.running <- RunningTestCase{TestSetRef: testSetRef, ID: id}

	result := r.execute(ctx, id, pc)
	r.logger.Debug("verdict produced",
		zap.String("test_set", string(id.TestSet)), zap.String("test_case", string(id.TestCase)), zap.String("verdict", result.Verdict.String()))

	r.ran <- RanTestCase{TestSetRef: testSetRef, Result: result}
}

// execute runs the resolved test case's primary query and assertion
// pipeline, acquiring the engine connection before the primary query and
// releasing it on every exit path (spec.md §4.4).
func (r *Runner) execute(ctx context.Context, id xqtsrunner.TestCaseId, pc xqtsrunner.PendingTestCase) xqtsrunner.TestResult {
	eng := r.engineFactory()
	defer eng.Close()

	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("engine panicked",
				zap.String("test_set", string(id.TestSet)), zap.String("test_case", string(id.TestCase)),
				zap.Any("panic", p), zap.Stack("stack"))
			panic(p)
		}
	}()

	built, err := envctx.Build(ctx, &pc.TestCase, &pc.Resolved, eng)
	if err != nil {
		r.logger.Warn("context build failed",
			zap.String("test_set", string(id.TestSet)), zap.String("test_case", string(id.TestCase)), zap.Error(err))

		return xqtsrunner.Error(id, xqtsrunner.NoEngineCall, err)
	}

	primary := eng.ExecuteQuery(ctx, built.Query, true, built.BaseURI,
		built.ContextSeq, built.AvailableDocs, built.AvailableCollections, built.AvailableTexts, built.VariableBindings)

	primaryTimings := built.Timings.Add(xqtsrunner.Timings{
		CompilationTime: primary.CompilationTime,
		ExecutionTime:   primary.ExecutionTime,
	})

	outcome := assertcheck.EvaluateTopLevel(ctx, eng, primary, pc.TestCase.Result, primaryTimings)

	switch outcome.Verdict {
	case xqtsrunner.VerdictPass:
		return xqtsrunner.Pass(id, outcome.Timings)
	case xqtsrunner.VerdictFailure:
		return xqtsrunner.Failure(id, outcome.Timings, outcome.Reason)
	case xqtsrunner.VerdictError:
		return xqtsrunner.Error(id, outcome.Timings, outcome.Cause)
	default:
		return xqtsrunner.Error(id, outcome.Timings, xqtsrunner.ErrAssumptionInResult)
	}
}

func categorizedPaths(tc xqtsrunner.TestCase) map[pending.Category][]string {
	m := make(map[pending.Category][]string)

	if tc.Test.IsPath() {
		m[pending.CategoryQuery] = []string{tc.Test.Path}
	}

	env := tc.Environment
	if env == nil {
		return m
	}

	for _, s := range env.Schemas {
		m[pending.CategorySchema] = append(m[pending.CategorySchema], s.File)
	}

	for _, s := range env.Sources {
		m[pending.CategorySource] = append(m[pending.CategorySource], s.File)
	}

	for _, col := range env.Collections {
		for _, s := range col.Sources {
			m[pending.CategorySource] = append(m[pending.CategorySource], s.File)
		}
	}

	for _, s := range env.Resources {
		m[pending.CategoryResource] = append(m[pending.CategoryResource], s.File)
	}

	return m
}

func distinctPaths(byCategory map[pending.Category][]string) []string {
	seen := make(map[string]bool)

	var out []string

	for _, paths := range byCategory {
		for _, p := range paths {
			if !seen[p] {
				seen[p] = true

				out = append(out, p)
			}
		}
	}

	return out
}
