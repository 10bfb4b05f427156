package types

import "time"

// Document is the relational metadata row recorded once per ingested upload.
// (UserID, DocumentHash) is unique.
type Document struct {
	ID              string    `bson:"_id,omitempty" json:"id"`
	UserID          string    `bson:"user_id" json:"user_id"`
	Filename        string    `bson:"filename" json:"filename"`
	DocumentHash    string    `bson:"document_hash" json:"document_hash"`
	ChunkCount      int       `bson:"chunk_count" json:"chunk_count"`
	Metadata        string    `bson:"metadata" json:"metadata"`
	UploadTimestamp time.Time `bson:"upload_timestamp" json:"uploaded_at"`
}

// DocumentSummary is the listing view returned to callers.
type DocumentSummary struct {
	Filename     string    `json:"filename"`
	DocumentHash string    `json:"document_hash"`
	ChunkCount   int       `json:"chunk_count"`
	UploadedAt   time.Time `json:"uploaded_at"`
}

// ChunkMetadata is stored next to every vector in the index.
type ChunkMetadata struct {
	Text         string    `json:"text"`
	DocumentHash string    `json:"document_hash"`
	Filename     string    `json:"filename"`
	ChunkIndex   int       `json:"chunk_index"`
	Timestamp    time.Time `json:"timestamp"`
	UserID       string    `json:"user_id"`
}

// VectorItem is one (id, vector, metadata) triple written to the index.
type VectorItem struct {
	ID       string
	Vector   []float32
	Metadata ChunkMetadata
}

// Candidate is a retrieved chunk with its similarity score, before ranking.
type Candidate struct {
	ID       string
	Score    float64
	Metadata ChunkMetadata
}

// Passage is a ranked context entry handed to the answering step.
type Passage struct {
	Text         string  `json:"text"`
	Score        float64 `json:"score"`
	Filename     string  `json:"filename"`
	HasIndicator bool    `json:"has_indicator"`
}

// ChunkFilter narrows index reads. Empty fields are not applied.
type ChunkFilter struct {
	UserID       string
	Filename     string
	DocumentHash string
}

// WithUser returns a copy of f scoped to userID.
func (f ChunkFilter) WithUser(userID string) ChunkFilter {
	f.UserID = userID
	return f
}

// WithFilename returns a copy of f restricted to one filename.
func (f ChunkFilter) WithFilename(filename string) ChunkFilter {
	f.Filename = filename
	return f
}

// WithDocumentHash returns a copy of f restricted to one document.
func (f ChunkFilter) WithDocumentHash(hash string) ChunkFilter {
	f.DocumentHash = hash
	return f
}

// IsEmpty reports whether no field is set.
func (f ChunkFilter) IsEmpty() bool {
	return f.UserID == "" && f.Filename == "" && f.DocumentHash == ""
}

// Matches reports whether m satisfies every set field of f.
func (f ChunkFilter) Matches(m ChunkMetadata) bool {
	if f.UserID != "" && m.UserID != f.UserID {
		return false
	}
	if f.Filename != "" && m.Filename != f.Filename {
		return false
	}
	if f.DocumentHash != "" && m.DocumentHash != f.DocumentHash {
		return false
	}
	return true
}

// VectorQuery is a similarity search against one namespace.
type VectorQuery struct {
	Namespace      string
	Vector         []float32
	Filter         ChunkFilter
	TopK           int
	ScoreThreshold float64
}

// UpsertResult reports how many items reached the index.
type UpsertResult struct {
	Stored    int
	Failed    int
	FailedIDs []string
}

// ProcessStatus is the terminal state of one upload.
type ProcessStatus string

const (
	ProcessStatusAlreadyExists ProcessStatus = "already_exists"
	ProcessStatusStored        ProcessStatus = "stored"
	ProcessStatusStorageFailed ProcessStatus = "storage_failed"
)

// ProcessResult is returned by document ingestion.
type ProcessResult struct {
	Status       ProcessStatus `json:"status"`
	Filename     string        `json:"filename"`
	DocumentHash string        `json:"document_hash"`
	ChunksTotal  int           `json:"chunks_total"`
	ChunksStored int           `json:"chunks_stored"`
	Partial      bool          `json:"partial"`
	ArchiveKey   string        `json:"archive_key,omitempty"`
	Message      string        `json:"message"`
	Hints        []string      `json:"hints,omitempty"`
}

// DeleteStatus is the outcome of a deletion.
type DeleteStatus string

const (
	DeleteStatusSuccess  DeleteStatus = "success"
	DeleteStatusNotFound DeleteStatus = "not_found"
	DeleteStatusError    DeleteStatus = "error"
)

// DeleteResult is returned by document deletion.
type DeleteResult struct {
	Status        DeleteStatus `json:"status"`
	Message       string       `json:"message"`
	ChunksDeleted int          `json:"chunks_deleted"`
}

// VerifyStatus is the outcome of a storage verification.
type VerifyStatus string

const (
	VerifyStatusStored   VerifyStatus = "stored"
	VerifyStatusNotFound VerifyStatus = "not_found"
	VerifyStatusError    VerifyStatus = "error"
)

// VerifyResult describes what the index holds for one document.
type VerifyResult struct {
	Status      VerifyStatus `json:"status"`
	Message     string       `json:"message"`
	Filename    string       `json:"filename,omitempty"`
	ChunksFound int          `json:"chunks_found"`
	UploadedAt  *time.Time   `json:"upload_time,omitempty"`
}

// UploadStage names a step of document ingestion reported to progress listeners.
type UploadStage string

const (
	UploadStageFingerprinted UploadStage = "fingerprinted"
	UploadStageExtracted     UploadStage = "extracted"
	UploadStageEmbedding     UploadStage = "embedding"
	UploadStageStored        UploadStage = "stored"
	UploadStageDone          UploadStage = "done"
)

// UploadProgress is one progress event of an ingestion.
type UploadProgress struct {
	Stage UploadStage `json:"stage"`
	Done  int         `json:"done"`
	Total int         `json:"total"`
}
