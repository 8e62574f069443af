// Package pending implements the Pending-Cases Index (spec.md §4.1): the
// per-resource waiter maps and fan-in readiness detection that let the
// dispatcher correlate arriving resources back to the set of test cases
// still waiting on them.
//
// An Index is not safe for concurrent use; it is owned by exactly one
// Runner and mutated only inside that Runner's single-threaded message
// loop (spec.md §5), so no internal locking is needed.
package pending

import "github.com/shibukawa/xqtsrunner"

// Category is one of the four resource categories a test case can wait
// on.
type Category int

const (
	CategorySchema Category = iota
	CategorySource
	CategoryResource
	CategoryQuery
)

var allCategories = [...]Category{CategorySchema, CategorySource, CategoryResource, CategoryQuery}

// Index holds the four waiter maps plus the TestCaseId -> PendingTestCase
// table (spec.md §4.1).
type Index struct {
	waiters [4]map[string]map[xqtsrunner.TestCaseId]struct{}
	pending map[xqtsrunner.TestCaseId]*xqtsrunner.PendingTestCase
}

// New constructs an empty Index.
func New() *Index {
	idx := &Index{
		pending: make(map[xqtsrunner.TestCaseId]*xqtsrunner.PendingTestCase),
	}
	for i := range idx.waiters {
		idx.waiters[i] = make(map[string]map[xqtsrunner.TestCaseId]struct{})
	}

	return idx
}

func (idx *Index) waiterMap(c Category) map[string]map[xqtsrunner.TestCaseId]struct{} {
	return idx.waiters[c]
}

// Register adds id as a waiter for every path in pathsByCategory and
// inserts a blank PendingTestCase iff none exists yet. It returns
// accepted=false when id already has a live pending entry — per spec.md
// §4.2, duplicate RunTestCase submissions must be a no-op after the
// first, so the caller must not add waiter paths (which would double the
// case's place in deliver/fail fan-in) nor re-emit RunningTestCase.
func (idx *Index) Register(
	id xqtsrunner.TestCaseId,
	testSetRef xqtsrunner.TestSetRef,
	tc xqtsrunner.TestCase,
	manager any,
	pathsByCategory map[Category][]string,
) (accepted bool) {
	if _, exists := idx.pending[id]; exists {
		return false
	}

	idx.pending[id] = &xqtsrunner.PendingTestCase{
		TestSetRef: testSetRef,
		TestCase:   tc,
		Manager:    manager,
	}

	for cat, paths := range pathsByCategory {
		wm := idx.waiterMap(cat)
		for _, path := range paths {
			set, ok := wm[path]
			if !ok {
				set = make(map[xqtsrunner.TestCaseId]struct{})
				wm[path] = set
			}

			set[id] = struct{}{}
		}
	}

	return true
}

// isWaiting reports whether id still appears in any waiter map.
func (idx *Index) isWaiting(id xqtsrunner.TestCaseId) bool {
	for _, c := range allCategories {
		for _, set := range idx.waiterMap(c) {
			if _, ok := set[id]; ok {
				return true
			}
		}
	}

	return false
}

func appendResolved(pc *xqtsrunner.PendingTestCase, cat Category, path string, b []byte) {
	switch cat {
	case CategorySchema:
		pc.Resolved.AppendSchema(path, b)
	case CategorySource:
		pc.Resolved.AppendSource(path, b)
	case CategoryResource:
		pc.Resolved.AppendResource(path, b)
	case CategoryQuery:
		pc.Resolved.SetQuery(b)
	}
}

// Deliver records a successfully fetched resource across every waiter map
// keyed by path, removes path from all four maps, and returns the subset
// of affected waiters that now appear in no waiter map at all — i.e. are
// ready to run (spec.md §4.1 deliver).
func (idx *Index) Deliver(path string, b []byte) (ready []xqtsrunner.TestCaseId) {
	touched := make(map[xqtsrunner.TestCaseId]struct{})

	for _, cat := range allCategories {
		wm := idx.waiterMap(cat)

		set, ok := wm[path]
		if !ok {
			continue
		}

		for id := range set {
			if pc, exists := idx.pending[id]; exists {
				appendResolved(pc, cat, path, b)
			}

			touched[id] = struct{}{}
		}

		delete(wm, path)
	}

	for id := range touched {
		if !idx.isWaiting(id) {
			ready = append(ready, id)
		}
	}

	return ready
}

// Fail records a resource fetch failure: it collects every waiter of
// path across all four categories, removes path from all four maps,
// sweeps each affected id out of every *other* path it is still
// registered under (it is about to be dropped entirely, so no stale
// waiter entry may survive it), drops the corresponding PendingTestCase
// entries, and returns the affected set so the dispatcher can emit an
// Error verdict for each (spec.md §4.1 fail).
func (idx *Index) Fail(path string) (affected []xqtsrunner.TestCaseId) {
	touched := make(map[xqtsrunner.TestCaseId]struct{})

	for _, cat := range allCategories {
		wm := idx.waiterMap(cat)

		set, ok := wm[path]
		if !ok {
			continue
		}

		for id := range set {
			touched[id] = struct{}{}
		}

		delete(wm, path)
	}

	for id := range touched {
		idx.removeWaiter(id)
		delete(idx.pending, id)
		affected = append(affected, id)
	}

	return affected
}

// removeWaiter deletes id from every path entry in every waiter map,
// pruning any path whose set becomes empty.
func (idx *Index) removeWaiter(id xqtsrunner.TestCaseId) {
	for _, cat := range allCategories {
		wm := idx.waiterMap(cat)

		for path, set := range wm {
			if _, ok := set[id]; !ok {
				continue
			}

			delete(set, id)

			if len(set) == 0 {
				delete(wm, path)
			}
		}
	}
}

// Take removes and returns the PendingTestCase for id, for the dispatcher
// to hand off to RunTestCaseInternal once it is ready. ok is false if no
// entry exists for id.
func (idx *Index) Take(id xqtsrunner.TestCaseId) (pc xqtsrunner.PendingTestCase, ok bool) {
	p, exists := idx.pending[id]
	if !exists {
		return xqtsrunner.PendingTestCase{}, false
	}

	delete(idx.pending, id)

	return *p, true
}

// Contains reports whether id currently has a pending entry, regardless
// of readiness. Exposed for tests and for the dispatcher's duplicate
// check before it even attempts Register.
func (idx *Index) Contains(id xqtsrunner.TestCaseId) bool {
	_, ok := idx.pending[id]
	return ok
}
