// Package llm defines the inference-service boundary: the Provider
// contract, request/response shapes, and the error classification the
// request queue relies on to tell throttling from hard failures.
package llm
