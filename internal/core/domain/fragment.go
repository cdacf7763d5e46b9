package domain

import (
	"fmt"
	"strings"
)

// Fragment is the serializable unit of text + embedding + metadata,
// independent of any particular pipeline run.
type Fragment struct {
	Text        string         `json:"text"`
	Embedding   []float32      `json:"embedding"`
	Metadata    map[string]any `json:"metadata"`
	FragmentID  string         `json:"fragment_id"`
	ParentDocID string         `json:"parent_doc_id,omitempty"`
}

// NewFragment validates the required fields. Text, embedding and the
// fragment id must all be non-empty.
func NewFragment(text string, embedding []float32, metadata map[string]any, fragmentID, parentDocID string) (Fragment, error) {
	if strings.TrimSpace(text) == "" {
		return Fragment{}, WrapError(ErrInvalidInput, "new fragment", fmt.Errorf("text is empty"))
	}
	if len(embedding) == 0 {
		return Fragment{}, WrapError(ErrInvalidInput, "new fragment", fmt.Errorf("embedding is empty"))
	}
	if fragmentID == "" {
		return Fragment{}, WrapError(ErrInvalidInput, "new fragment", fmt.Errorf("fragment id is empty"))
	}
	if metadata == nil {
		metadata = map[string]any{}
	}
	return Fragment{
		Text:        text,
		Embedding:   embedding,
		Metadata:    metadata,
		FragmentID:  fragmentID,
		ParentDocID: parentDocID,
	}, nil
}

// Candidate converts the fragment into a retrieval candidate. The fragment
// identifiers travel in the candidate metadata.
func (f Fragment) Candidate() Candidate {
	metadata := CopyMetadata(f.Metadata)
	metadata["fragment_id"] = f.FragmentID
	if f.ParentDocID != "" {
		metadata["parent_doc_id"] = f.ParentDocID
	}
	return Candidate{
		Text:     f.Text,
		Vector:   f.Embedding,
		Metadata: metadata,
	}
}
