package domain

type DocumentStatus string

const (
	StatusPending DocumentStatus = "pending"
	StatusReady   DocumentStatus = "ready"
	StatusError   DocumentStatus = "error"
)

// CategoryTag is a named domain label attached to documents,
// e.g. "program-design", "muscle:back", "myths".
type CategoryTag string

// Document is corpus metadata owned by the external ingestion pipeline.
// Only ready documents are searchable; the engine never mutates them.
type Document struct {
	ID         string         `json:"id"`
	Title      string         `json:"title"`
	Status     DocumentStatus `json:"status"`
	Categories []CategoryTag  `json:"categories,omitempty"`
}

// ChunkRef identifies one chunk by its owning document and zero-based
// position. (DocumentID, ChunkIndex) is unique across the corpus.
type ChunkRef struct {
	DocumentID string `json:"document_id"`
	ChunkIndex int    `json:"chunk_index"`
}
