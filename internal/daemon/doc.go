// Package daemon coordinates the long-running rawlabel server process.
//
// It wires configuration, the annotation store, the preview cache, and the
// HTTP API into a single lifecycle with flock-based locking to prevent
// multiple instances sharing a state directory. On start the daemon registers
// every RAW file under the data root so listings include images nobody has
// labelled yet, and optionally warms their previews in the background.
//
// Keep orchestration logic here: request handling lives in internal/api and
// preview generation in internal/preview and internal/batch.
package daemon
