package domain

import "time"

type MemoryRecordType string

const (
	MemoryTypeQnA          MemoryRecordType = "qna"
	MemoryTypeReasoning    MemoryRecordType = "reasoning"
	MemoryTypeOptimization MemoryRecordType = "optimization"
	MemoryTypeSignal       MemoryRecordType = "signal"
)

// MemoryRecord is one remembered exchange in a session. The store ranks
// records by lexical match count against a query, not by vectors.
type MemoryRecord struct {
	ID        string           `json:"id"`
	Type      MemoryRecordType `json:"type"`
	SessionID string           `json:"session_id"`
	Question  string           `json:"question,omitempty"`
	Answer    string           `json:"answer,omitempty"`
	Meta      map[string]any   `json:"meta,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
}

func (t MemoryRecordType) Valid() bool {
	switch t {
	case MemoryTypeQnA, MemoryTypeReasoning, MemoryTypeOptimization, MemoryTypeSignal:
		return true
	default:
		return false
	}
}
