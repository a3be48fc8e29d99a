package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/aurawell/companion-backend/internal/core/domain"
)

var messageMockColumns = []string{
	"id", "thread_id", "sender", "content",
	"confidence", "processing_ms", "rag_enabled", "rag_sources", "was_summarized", "fallback_used", "model",
	"is_helpful", "user_feedback",
	"is_selected_for_qa", "qa_status", "qa_score", "qa_feedback", "qa_tags", "qa_reviewer", "qa_reviewed_at",
	"created_at",
}

func newMessageRepoWithMock(t *testing.T) (*MessageRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	return &MessageRepository{db: db}, mock, func() { _ = db.Close() }
}

func TestGetByIDReturnsDomainNotFound(t *testing.T) {
	repo, mock, done := newMessageRepoWithMock(t)
	defer done()

	mock.ExpectQuery("SELECT id, thread_id, sender, content").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "missing")
	if err == nil {
		t.Fatalf("expected error")
	}
	if !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestListRecentByThreadReturnsChronologicalOrder(t *testing.T) {
	repo, mock, done := newMessageRepoWithMock(t)
	defer done()

	now := time.Now().UTC()
	rows := sqlmock.NewRows(messageMockColumns).
		AddRow("msg-2", "thread-1", "AI", "second",
			0.9, int64(120), true, []byte(`["Doc"]`), false, false, "llama3",
			nil, "",
			false, "", nil, "", []byte(`[]`), "", nil,
			now).
		AddRow("msg-1", "thread-1", "USER", "first",
			0.0, int64(0), false, []byte(`[]`), false, false, "",
			nil, "",
			false, "", nil, "", []byte(`[]`), "", nil,
			now.Add(-time.Minute))

	mock.ExpectQuery("SELECT id, thread_id, sender, content").
		WithArgs("thread-1", 10).
		WillReturnRows(rows)

	msgs, err := repo.ListRecentByThread(context.Background(), "thread-1", 10)
	if err != nil {
		t.Fatalf("ListRecentByThread() error = %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].ID != "msg-1" || msgs[1].ID != "msg-2" {
		t.Fatalf("expected chronological order, got %s then %s", msgs[0].ID, msgs[1].ID)
	}
	if !msgs[1].Generation.RAGEnabled || len(msgs[1].Generation.RAGSources) != 1 {
		t.Fatalf("expected rag metadata on AI message, got %+v", msgs[1].Generation)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestMarkSelectedForQASkipsAlreadySelected(t *testing.T) {
	repo, mock, done := newMessageRepoWithMock(t)
	defer done()

	mock.ExpectExec("UPDATE messages").
		WithArgs("msg-1", string(domain.QAPending), false).
		WillReturnResult(sqlmock.NewResult(0, 0))

	selected, err := repo.MarkSelectedForQA(context.Background(), "msg-1", false)
	if err != nil {
		t.Fatalf("MarkSelectedForQA() error = %v", err)
	}
	if selected {
		t.Fatalf("expected selection to be skipped")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestMarkSelectedForQAClaimsUnselectedMessage(t *testing.T) {
	repo, mock, done := newMessageRepoWithMock(t)
	defer done()

	mock.ExpectExec("UPDATE messages").
		WithArgs("msg-1", string(domain.QAPending), false).
		WillReturnResult(sqlmock.NewResult(0, 1))

	selected, err := repo.MarkSelectedForQA(context.Background(), "msg-1", false)
	if err != nil {
		t.Fatalf("MarkSelectedForQA() error = %v", err)
	}
	if !selected {
		t.Fatalf("expected message to be claimed")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestStartReviewOnlyMovesPendingMessages(t *testing.T) {
	repo, mock, done := newMessageRepoWithMock(t)
	defer done()

	mock.ExpectExec("UPDATE messages").
		WithArgs("msg-1", string(domain.QAInReview), "reviewer-1", string(domain.QAPending)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	moved, err := repo.StartReview(context.Background(), "msg-1", "reviewer-1")
	if err != nil {
		t.Fatalf("StartReview() error = %v", err)
	}
	if moved {
		t.Fatalf("expected no transition for non-pending message")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestCompleteReviewReportsLostRace(t *testing.T) {
	repo, mock, done := newMessageRepoWithMock(t)
	defer done()

	mock.ExpectQuery("UPDATE messages").
		WillReturnError(sql.ErrNoRows)

	msg, ok, err := repo.CompleteReview(context.Background(), "msg-1", domain.QAReview{
		Score:  7.5,
		Status: domain.QAApproved,
	})
	if err != nil {
		t.Fatalf("CompleteReview() error = %v", err)
	}
	if ok || msg != nil {
		t.Fatalf("expected lost race to report ok=false, got ok=%v msg=%+v", ok, msg)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestCompleteReviewReturnsUpdatedMessage(t *testing.T) {
	repo, mock, done := newMessageRepoWithMock(t)
	defer done()

	now := time.Now().UTC()
	rows := sqlmock.NewRows(messageMockColumns).
		AddRow("msg-1", "thread-1", "AI", "reviewed answer",
			0.9, int64(80), true, []byte(`["Doc"]`), false, false, "llama3",
			nil, "",
			true, string(domain.QAApproved), 7.5, "solid answer", []byte(`["accurate"]`), "reviewer-1", now,
			now.Add(-time.Hour))

	mock.ExpectQuery("UPDATE messages").
		WillReturnRows(rows)

	msg, ok, err := repo.CompleteReview(context.Background(), "msg-1", domain.QAReview{
		Score:    7.5,
		Status:   domain.QAApproved,
		Feedback: "solid answer",
		Reviewer: "reviewer-1",
		Tags:     []string{"accurate"},
	})
	if err != nil {
		t.Fatalf("CompleteReview() error = %v", err)
	}
	if !ok {
		t.Fatalf("expected review to land")
	}
	if msg.QAStatus != domain.QAApproved {
		t.Fatalf("QAStatus = %q, want %q", msg.QAStatus, domain.QAApproved)
	}
	if msg.QAScore == nil || *msg.QAScore != 7.5 {
		t.Fatalf("QAScore = %v, want 7.5", msg.QAScore)
	}
	if len(msg.QATags) != 1 || msg.QATags[0] != "accurate" {
		t.Fatalf("QATags = %v, want [accurate]", msg.QATags)
	}
	if msg.QAReviewedAt == nil {
		t.Fatalf("expected QAReviewedAt to be set")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSetUserFeedbackReturnsDomainNotFound(t *testing.T) {
	repo, mock, done := newMessageRepoWithMock(t)
	defer done()

	mock.ExpectExec("UPDATE messages").
		WithArgs("missing", true, "helped a lot").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.SetUserFeedback(context.Background(), "missing", true, "helped a lot")
	if err == nil {
		t.Fatalf("expected error")
	}
	if !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestCountByQAStatusBuildsMap(t *testing.T) {
	repo, mock, done := newMessageRepoWithMock(t)
	defer done()

	rows := sqlmock.NewRows([]string{"qa_status", "count"}).
		AddRow(string(domain.QAPending), 3).
		AddRow(string(domain.QAApproved), 2)

	mock.ExpectQuery("SELECT qa_status, COUNT").
		WillReturnRows(rows)

	counts, err := repo.CountByQAStatus(context.Background())
	if err != nil {
		t.Fatalf("CountByQAStatus() error = %v", err)
	}
	if counts[domain.QAPending] != 3 || counts[domain.QAApproved] != 2 {
		t.Fatalf("unexpected counts: %v", counts)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
