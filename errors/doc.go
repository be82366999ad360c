// Package errors provides the error taxonomy of the dataflow engine.
//
// Errors are classified by code into three tiers:
//
//   - Recoverable: a single item or peer is affected; log and continue.
//   - Unrecoverable: the graph is broken; force-shut the owning layer and kill
//     the pipeline.
//   - Absorbed: a repeated shutdown; never surfaced.
//
// Exhaustion of a data source is not an error and is never represented here.
package errors
