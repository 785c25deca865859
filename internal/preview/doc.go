// Package preview serves derived preview and thumbnail assets for RAW sources.
//
// Cache.GetPreview fingerprints the source, returns the stored asset when the
// fingerprint still matches, and otherwise regenerates it exactly once per
// (source, kind) no matter how many callers ask concurrently. Generation runs
// detached from the caller's context, so a caller that gives up (or hits the
// wait timeout) never aborts work other callers are waiting on; the result is
// persisted for the next request either way.
//
// Thumbnails are derived from the preview through the same cache, so warming
// previews first makes thumbnail generation a pure resize.
package preview
