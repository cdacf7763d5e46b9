package domain

// Candidate is a retrieved passage: text plus its query-independent
// embedding and metadata. The retriever owns normalization; vectors are
// expected to arrive unit length.
type Candidate struct {
	Text     string         `json:"text"`
	Vector   []float32      `json:"vector"`
	Metadata map[string]any `json:"metadata"`
}

// SelectedCandidate is a candidate as reported back to the caller. Its
// metadata is a copy of the retrieved metadata annotated with the
// "selected" flag.
type SelectedCandidate struct {
	Vector   []float32      `json:"vector"`
	Metadata map[string]any `json:"metadata"`
}

// RAGContext is the complete result of one pipeline run. It carries one
// entry per retrieved candidate regardless of how many were selected, and
// it is never mutated after being returned.
type RAGContext struct {
	Query        string              `json:"query"`
	Candidates   []SelectedCandidate `json:"candidates"`
	Answer       *string             `json:"answer"`
	PromptChars  int                 `json:"prompt_chars"`
	ContextChars int                 `json:"context_chars"`
}

// CopyMetadata returns a shallow copy of a metadata map. A nil map copies
// to an empty one so annotations never write into caller-owned state.
func CopyMetadata(metadata map[string]any) map[string]any {
	out := make(map[string]any, len(metadata)+1)
	for k, v := range metadata {
		out[k] = v
	}
	return out
}
