// Command rawlabel serves and administers a collaborative RAW image
// labelling catalogue.
//
// `rawlabel serve` runs the HTTP API in the foreground, holding a lock in the
// state directory so only one server uses a given catalogue. Every other
// command opens the stores directly and is safe to run alongside the server:
// SQLite is in WAL mode and the asset store publishes entries atomically.
//
// Source arguments are RAW file paths. They are made absolute so the CLI and
// the API agree on image identity.
package main
