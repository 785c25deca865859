// Package batch pre-generates preview assets for many sources at once.
//
// Generator.Warm fans GetPreview calls out over a bounded worker pool. A
// failing source is recorded in the Report and never stops the others;
// cancelling the context marks every source that has not started yet as
// failed with the context error.
package batch
