package vectordb

import "time"

// DocumentType classifies a knowledge source.
type DocumentType string

const (
	DocTypeGuide       DocumentType = "guide"
	DocTypeLegislation DocumentType = "legislation"
	DocTypeFAQ         DocumentType = "faq"
	DocTypeService     DocumentType = "service"
)

// ParseDocumentType maps a name onto a DocumentType, defaulting to guide.
func ParseDocumentType(s string) DocumentType {
	switch t := DocumentType(s); t {
	case DocTypeLegislation, DocTypeFAQ, DocTypeService:
		return t
	default:
		return DocTypeGuide
	}
}

// Document is one chunk of a knowledge source.
type Document struct {
	ID       string
	Content  string
	Metadata DocumentMetadata
}

// DocumentMetadata describes where a chunk came from.
type DocumentMetadata struct {
	Source      string // path relative to the knowledge directory
	Title       string
	Heading     string // nearest markdown heading above the chunk
	ChunkIndex  int
	ContentHash string // hash of the whole source file
	Type        DocumentType
	LastUpdated time.Time
}

// SearchResult pairs a document with its similarity score.
type SearchResult struct {
	Document   Document
	Similarity float32
}

// SearchFilter narrows search results by metadata fields.
type SearchFilter struct {
	Type   *DocumentType
	Source *string
}
