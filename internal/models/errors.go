package models

import "errors"

// Failure taxonomy for the retrieval core. Components wrap these with %w so
// callers can classify with errors.Is; the core never formats user-facing text.
var (
	// ErrInvalidConfig indicates bad chunking or retrieval parameters.
	// Fatal, surfaced to the operator.
	ErrInvalidConfig = errors.New("invalid config")

	// ErrInvalidQuery indicates an empty or malformed query.
	ErrInvalidQuery = errors.New("invalid query")

	// ErrEmbeddingUnavailable indicates the embedding model cannot be reached
	// or loaded. Transient: retried at ingestion time, surfaced immediately at
	// query time.
	ErrEmbeddingUnavailable = errors.New("embedding unavailable")

	// ErrTimeout indicates a caller-supplied deadline expired. The failed
	// operation is safe to retry.
	ErrTimeout = errors.New("timeout")

	// ErrIndexModelMismatch indicates the persisted index was built with a
	// different embedding model or dimensionality than configured. Fatal at
	// startup; similarity scores across models are meaningless.
	ErrIndexModelMismatch = errors.New("index model mismatch")

	// ErrInvalidEmbedding indicates a zero or malformed vector, rejected at
	// the boundary so it is never stored or compared.
	ErrInvalidEmbedding = errors.New("invalid embedding")
)
