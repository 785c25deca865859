// Package api is the JSON-over-HTTP presentation adapter. It translates
// annotation and preview operations into transport-friendly DTOs and maps
// classified errors onto HTTP status codes.
//
// # Routes
//
//	GET    /api/images                 listing with search/order_by/page_token/page_size
//	GET    /api/images/preview         preview or thumbnail bytes (image/jpeg)
//	GET    /api/images/annotations     consensus for every key of one image
//	GET    /api/consensus              consensus for one (image, key)
//	GET    /api/proposals              live proposals with tallies
//	POST   /api/proposals              propose (empty value withdraws)
//	DELETE /api/proposals              withdraw
//	POST   /api/proposals/{id}/votes   vote
//	GET    /api/values                 autocompletion values
//	GET    /api/health                 liveness
//
// # Identity
//
// Authentication is done by a fronting proxy, which passes the user in the
// X-User header. Mutating routes reject requests without it (401); reads do
// not need it. Every request carries a correlation id, taken from
// X-Request-ID when present and generated otherwise, echoed in the response
// and attached to every log line.
//
// # Sources
//
// The source parameter is a RAW file path. Relative paths resolve against
// paths.data_root, and absolute paths must stay inside it, so the preview
// route cannot be used to read arbitrary files.
//
// # Design Notes
//
// DTOs use camelCase JSON tags for JavaScript/TypeScript consumers.
// Timestamps use RFC3339 with milliseconds.
package api
