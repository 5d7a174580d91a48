package models

// DocumentReference is a scored citation produced by the vector retrieval
// client. Agents and messages hold it read-only.
type DocumentReference struct {
	// Source identifies the originating document or statute (e.g. "관세법").
	Source string `json:"source" bson:"source"`
	// Title is the human-readable document title or section heading.
	Title string `json:"title" bson:"title"`
	// Similarity is the retrieval similarity score in [0,1].
	Similarity float64 `json:"similarity" bson:"similarity"`
	// Metadata carries collection-specific payload fields.
	Metadata map[string]interface{} `json:"metadata,omitempty" bson:"metadata,omitempty"`
}
