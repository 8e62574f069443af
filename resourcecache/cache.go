// Package resourcecache defines the request/reply contract between a
// Runner and the shared resource cache (spec.md §6), plus two concrete
// implementations: an in-memory fake for tests, and a SQLite-backed
// reference cache (this module's domain-stack stand-in for whatever real
// cache fronts the XQTS file corpus; its caching policy is explicitly out
// of scope per spec.md §1).
package resourcecache

import "context"

// GetResource is the outbound request the dispatcher sends to the cache
// for every schema/source/resource/query-file path it needs (spec.md
// §4.2, §6).
type GetResource struct {
	Path string
}

// CachedResource is the successful reply: the cache resolved Path to
// Bytes (spec.md §6).
type CachedResource struct {
	Path  string
	Bytes []byte
}

// ResourceGetError is the failure reply: the cache could not resolve
// Path (spec.md §6).
type ResourceGetError struct {
	Path string
	Err  error
}

func (e *ResourceGetError) Error() string {
	return "resource get error for " + e.Path + ": " + e.Err.Error()
}

func (e *ResourceGetError) Unwrap() error {
	return e.Err
}

// Cache is the external collaborator's interface as seen by a Runner. A
// real implementation replies asynchronously (e.g. over a message bus);
// Fetch is handed the Runner's own inbound-message callbacks so the cache
// can push CachedResource/ResourceGetError back whenever it completes the
// request, without the Runner blocking on it (spec.md §5: "GetResource
// requests return later as CachedResource or ResourceGetError messages").
type Cache interface {
	Fetch(ctx context.Context, req GetResource, onOK func(CachedResource), onErr func(ResourceGetError))
}
