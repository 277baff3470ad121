package retrieval

import (
	"errors"
	"fmt"
)

// Common errors for retrieval operations.
var (
	// ErrSearchFailed indicates both the lexical and vector legs of a
	// query failed; partial failures degrade instead.
	ErrSearchFailed = errors.New("both lexical and vector search failed")

	// ErrEmptyDocumentID indicates an ingest or delete call without a
	// document identity.
	ErrEmptyDocumentID = errors.New("document id is required")
)

// IngestError wraps a per-document indexing failure. Ingest failures are
// scoped to one document and leave prior index state untouched.
type IngestError struct {
	DocumentID string
	Stage      string // "embed", "snapshot" or "upsert"
	Err        error
}

func (e *IngestError) Error() string {
	return fmt.Sprintf("indexing document %s failed at %s: %v", e.DocumentID, e.Stage, e.Err)
}

func (e *IngestError) Unwrap() error {
	return e.Err
}
