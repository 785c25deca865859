// Package preflight provides readiness checks for the external tools,
// filesystem paths and storage backends rawlabel depends on.
//
// These checks run in two contexts:
//   - The daemon calls RunAll before serving and logs every failure.
//     A failed check is reported, not fatal; requests touching the broken
//     component fail with a classified error instead.
//   - The CLI "rawlabel check" command renders every result as a table.
//
// Each check is gated by configuration: the object store is only probed
// when cache.backend is s3.
package preflight
