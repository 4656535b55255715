// Package ndjson implements the headless newline-delimited JSON protocol
// emitted by the execution core when running non-interactively.
//
// Every line is exactly one JSON object carrying a stable envelope
// (event, ts, session_id, request_id, correlation_id) plus event-specific
// fields. The package never frames output as an HTTP response or terminal
// render — those belong to the CLI, which is out of scope for the core.
package ndjson
