// Package output renders the structured outcome stream for humans and
// machines.
//
// Supported output formats:
//   - Console: human-readable colored terminal output, streamed by
//     completion order
//   - JSON: machine-readable output accumulated and flushed at run end
//
// The scheduler core only emits structured outcomes; everything
// presentation-related lives here, at the reporter boundary.
package output
