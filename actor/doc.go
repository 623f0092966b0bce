// Package actor implements the JSONL conformance-actor protocol: one
// newline-delimited {id, op, params} request read from stdin produces
// exactly one newline-delimited {id, ok, result|error} response written
// to stdout, in order, per spec.md §9. It is the thinnest possible
// adapter from that wire protocol onto package engine's session API.
package actor
