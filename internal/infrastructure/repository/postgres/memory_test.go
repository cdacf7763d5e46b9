package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/mpetrov/refragd/internal/core/domain"
)

func newRepoWithMock(t *testing.T) (*MemoryRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	return NewMemoryRepository(db), mock, func() { _ = db.Close() }
}

func memoryColumns() []string {
	return []string{"id", "record_type", "session_id", "question", "answer", "meta", "created_at"}
}

func TestSaveInsertsRecord(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	now := time.Now().UTC()
	mock.ExpectExec("INSERT INTO memory_records").
		WithArgs("m1", "qna", "s1", "what is go", "a language", []byte(`{}`), now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Save(context.Background(), &domain.MemoryRecord{
		ID:        "m1",
		Type:      domain.MemoryTypeQnA,
		SessionID: "s1",
		Question:  "what is go",
		Answer:    "a language",
		CreatedAt: now,
	})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSearchRanksByLexicalMatchCount(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	now := time.Now().UTC()
	rows := sqlmock.NewRows(memoryColumns()).
		AddRow("m1", "qna", "s1", "about cats", "cats are cats", []byte(`{}`), now).
		AddRow("m2", "qna", "s1", "about dogs", "dogs bark", []byte(`{}`), now).
		AddRow("m3", "qna", "s1", "one cats mention", "nothing else", []byte(`{}`), now)
	mock.ExpectQuery("SELECT id, record_type, session_id").
		WithArgs("s1").
		WillReturnRows(rows)

	records, err := repo.Search(context.Background(), "s1", "cats", 5, "")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	// m2 has no match and is dropped; m1 outranks m3 on occurrence count.
	if len(records) != 2 {
		t.Fatalf("records = %d", len(records))
	}
	if records[0].ID != "m1" || records[1].ID != "m3" {
		t.Fatalf("order = %s, %s", records[0].ID, records[1].ID)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSearchAppliesTypeFilterAndLimit(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	now := time.Now().UTC()
	rows := sqlmock.NewRows(memoryColumns()).
		AddRow("m1", "reasoning", "s1", "why cats purr", "comfort", []byte(`{"weight":"high"}`), now).
		AddRow("m2", "reasoning", "s1", "cats and cats", "cats", []byte(`{}`), now)
	mock.ExpectQuery("SELECT id, record_type, session_id").
		WithArgs("s1", "reasoning").
		WillReturnRows(rows)

	records, err := repo.Search(context.Background(), "s1", "cats", 1, domain.MemoryTypeReasoning)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("records = %d", len(records))
	}
	if records[0].ID != "m2" {
		t.Fatalf("top = %s", records[0].ID)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSearchEmptyQueryKeepsRecencyOrder(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	now := time.Now().UTC()
	rows := sqlmock.NewRows(memoryColumns()).
		AddRow("newest", "qna", "s1", "q1", "a1", []byte(`{}`), now).
		AddRow("older", "qna", "s1", "q2", "a2", []byte(`{}`), now.Add(-time.Hour))
	mock.ExpectQuery("SELECT id, record_type, session_id").
		WithArgs("s1").
		WillReturnRows(rows)

	records, err := repo.Search(context.Background(), "s1", "  ", 5, "")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(records) != 2 || records[0].ID != "newest" {
		t.Fatalf("records = %+v", records)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
