package types

import "errors"

// Domain errors returned by the document services. Collaborator errors are
// translated into one of these at the adapter boundary.
var (
	// ErrNotFound indicates the requested document or chunk set does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates the same content was already ingested by the user.
	ErrAlreadyExists = errors.New("already exists")

	// ErrConstraintViolation is returned by metadata stores when the
	// (user_id, document_hash) uniqueness constraint rejects an insert.
	// It matches ErrAlreadyExists under errors.Is.
	ErrConstraintViolation = &constraintError{}

	// ErrExtractionFailed indicates the uploaded bytes could not be turned into text.
	ErrExtractionFailed = errors.New("text extraction failed")

	// ErrEmbeddingFailed indicates the embedding collaborator returned an error
	// or a vector of the wrong dimension.
	ErrEmbeddingFailed = errors.New("embedding failed")

	// ErrIndexUnavailable indicates the vector index could not be reached.
	ErrIndexUnavailable = errors.New("vector index unavailable")

	// ErrInvalidInput indicates malformed caller input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrArchiveDisabled indicates blob archival is not configured.
	ErrArchiveDisabled = errors.New("archive disabled")
)

type constraintError struct{}

func (e *constraintError) Error() string { return "unique constraint violation" }

func (e *constraintError) Is(target error) bool { return target == ErrAlreadyExists }
