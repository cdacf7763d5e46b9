package codec

import (
	"fmt"
	"strings"

	"github.com/mpetrov/refragd/internal/core/domain"
)

// PromptPayload is a model-ready view of a query with its supporting
// fragments rendered into a single context block.
type PromptPayload struct {
	Query         string `json:"query"`
	Context       string `json:"context"`
	FragmentCount int    `json:"fragment_count"`
}

// TrainingExample pairs a query and its context with a reference answer.
type TrainingExample struct {
	Query   string `json:"query"`
	Context string `json:"context"`
	Answer  string `json:"answer"`
}

// BuildPromptPayload renders at most maxFragments fragments, in order, into
// a numbered context block. maxFragments <= 0 means no cap.
func BuildPromptPayload(query string, fragments []domain.Fragment, maxFragments int) PromptPayload {
	if maxFragments > 0 && len(fragments) > maxFragments {
		fragments = fragments[:maxFragments]
	}
	return PromptPayload{
		Query:         query,
		Context:       renderContext(fragments),
		FragmentCount: len(fragments),
	}
}

// BuildTrainingExample renders all fragments; the answer is carried through
// verbatim.
func BuildTrainingExample(query, answer string, fragments []domain.Fragment) TrainingExample {
	return TrainingExample{
		Query:   query,
		Context: renderContext(fragments),
		Answer:  answer,
	}
}

func renderContext(fragments []domain.Fragment) string {
	lines := make([]string, len(fragments))
	for i, fragment := range fragments {
		lines[i] = fmt.Sprintf("[Fragment %d]: %s", i+1, fragment.Text)
	}
	return strings.Join(lines, "\n")
}
