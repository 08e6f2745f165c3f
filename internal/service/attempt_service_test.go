package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/readspace/ielts-backend/internal/model"
	"github.com/readspace/ielts-backend/internal/scoring"
	"github.com/readspace/ielts-backend/internal/websocket"
	"github.com/rs/zerolog"
)

type attemptFixture struct {
	svc      *AttemptService
	sessions *fakeSessionStore
	attempts *fakeAttemptStore
	notifier *fakeNotifier
	session  *model.Session
	test     *model.Test
	question model.Question
	student  model.Actor
}

// newAttemptFixture builds a running session with one connected student and
// a one-question test whose correct answer is "A".
func newAttemptFixture(t *testing.T) *attemptFixture {
	t.Helper()

	studentID := uuid.New()
	test := &model.Test{
		ID:               uuid.New(),
		Title:            "General Reading 2",
		TimeLimitMinutes: 60,
		QuestionCount:    1,
	}
	question := model.Question{
		ID:             uuid.New(),
		PassageID:      uuid.New(),
		QuestionNumber: 1,
		CorrectAnswer:  model.AnswerValue{"A"},
	}

	session := model.NewSession(uuid.New(), test.ID, uuid.New(), "Mock", time.Now(), []uuid.UUID{studentID})
	if err := session.StartWaitingPhase(); err != nil {
		t.Fatal(err)
	}
	if err := session.StudentJoin(studentID); err != nil {
		t.Fatal(err)
	}
	if _, err := session.Start(); err != nil {
		t.Fatal(err)
	}

	sessions := newFakeSessionStore(session)
	attempts := newFakeAttemptStore()
	notifier := &fakeNotifier{}

	svc := NewAttemptService(
		attempts, sessions,
		&fakeTestStore{test: test, questions: map[uuid.UUID]model.Question{question.ID: question}},
		newFakeUserStore(&model.User{ID: studentID, Name: "Ani", Role: model.RoleStudent}),
		NewViolationLimiter(),
		notifier, newTestRedis(), scoring.Default(), 3, zerolog.Nop())

	return &attemptFixture{
		svc:      svc,
		sessions: sessions,
		attempts: attempts,
		notifier: notifier,
		session:  session,
		test:     test,
		question: question,
		student:  model.Actor{ID: studentID, Role: model.RoleStudent},
	}
}

func (f *attemptFixture) getOrCreate(t *testing.T) *model.Attempt {
	t.Helper()
	attempt, err := f.svc.GetOrCreate(context.Background(), f.student, f.session.ID)
	if err != nil {
		t.Fatalf("get or create attempt: %v", err)
	}
	return attempt
}

func TestGetOrCreateIsLazyAndIdempotent(t *testing.T) {
	f := newAttemptFixture(t)
	ctx := context.Background()

	first := f.getOrCreate(t)
	if first.Status != model.AttemptStatusInProgress {
		t.Fatalf("expected IN_PROGRESS, got %s", first.Status)
	}
	if first.SessionID == nil || *first.SessionID != f.session.ID {
		t.Fatal("attempt should be scoped to the session")
	}

	second := f.getOrCreate(t)
	if second.ID != first.ID {
		t.Error("second call must return the same attempt")
	}

	stored, _ := f.sessions.GetByID(ctx, f.session.ID)
	linked := false
	for _, p := range stored.Participants {
		if p.StudentID == f.student.ID && p.AttemptID != nil && *p.AttemptID == first.ID {
			linked = true
		}
	}
	if !linked {
		t.Error("attempt should be linked on the session roster")
	}
}

func TestGetOrCreateGuards(t *testing.T) {
	f := newAttemptFixture(t)
	ctx := context.Background()

	teacher := model.Actor{ID: uuid.New(), Role: model.RoleTeacher}
	if _, err := f.svc.GetOrCreate(ctx, teacher, f.session.ID); !errors.Is(err, model.ErrNotAttemptOwner) {
		t.Errorf("teacher: expected ErrNotAttemptOwner, got %v", err)
	}

	stranger := model.Actor{ID: uuid.New(), Role: model.RoleStudent}
	if _, err := f.svc.GetOrCreate(ctx, stranger, f.session.ID); !errors.Is(err, model.ErrNotRosterStudent) {
		t.Errorf("off-roster student: expected ErrNotRosterStudent, got %v", err)
	}

	if err := f.session.Complete(); err != nil {
		t.Fatal(err)
	}
	var badStatus *model.InvalidSessionStatusError
	if _, err := f.svc.GetOrCreate(ctx, f.student, f.session.ID); !errors.As(err, &badStatus) {
		t.Errorf("completed session: expected InvalidSessionStatusError, got %v", err)
	}
}

func TestSubmitAnswerRejectsForeignQuestion(t *testing.T) {
	f := newAttemptFixture(t)
	attempt := f.getOrCreate(t)

	_, err := f.svc.SubmitAnswer(context.Background(), f.student, attempt.ID, uuid.New(), model.AnswerValue{"A"})
	if !errors.Is(err, model.ErrQuestionNotInTest) {
		t.Fatalf("expected ErrQuestionNotInTest, got %v", err)
	}
}

func TestSubmitAnswerBroadcastsUpdateFlag(t *testing.T) {
	f := newAttemptFixture(t)
	ctx := context.Background()
	attempt := f.getOrCreate(t)

	if _, err := f.svc.SubmitAnswer(ctx, f.student, attempt.ID, f.question.ID, model.AnswerValue{"B"}); err != nil {
		t.Fatal(err)
	}
	msg, ok := f.notifier.lastTeachers().(websocket.StudentAnswerMessage)
	if !ok {
		t.Fatalf("expected StudentAnswerMessage, got %T", f.notifier.lastTeachers())
	}
	if msg.IsUpdate {
		t.Error("first answer must not be flagged as update")
	}
	if msg.StudentName != "Ani" {
		t.Errorf("expected resolved student name, got %q", msg.StudentName)
	}

	// Re-answering replaces the value and flips the flag.
	updated, err := f.svc.SubmitAnswer(ctx, f.student, attempt.ID, f.question.ID, model.AnswerValue{"A"})
	if err != nil {
		t.Fatal(err)
	}
	if len(updated.Answers) != 1 {
		t.Errorf("expected 1 stored answer, got %d", len(updated.Answers))
	}
	msg = f.notifier.lastTeachers().(websocket.StudentAnswerMessage)
	if !msg.IsUpdate {
		t.Error("re-answer must be flagged as update")
	}
}

func TestRecordViolationThrottlesRepeats(t *testing.T) {
	f := newAttemptFixture(t)
	ctx := context.Background()
	attempt := f.getOrCreate(t)

	if _, err := f.svc.RecordViolation(ctx, f.student, attempt.ID, model.ViolationTabSwitch, nil); err != nil {
		t.Fatalf("first violation: %v", err)
	}
	msg, ok := f.notifier.lastTeachers().(websocket.ViolationMessage)
	if !ok {
		t.Fatalf("expected ViolationMessage, got %T", f.notifier.lastTeachers())
	}
	if msg.TotalCount != 1 {
		t.Errorf("expected total count 1, got %d", msg.TotalCount)
	}

	var limited *RateLimitedError
	if _, err := f.svc.RecordViolation(ctx, f.student, attempt.ID, model.ViolationTabSwitch, nil); !errors.As(err, &limited) {
		t.Fatalf("expected RateLimitedError on immediate repeat, got %v", err)
	}

	// A different type is its own bucket.
	if _, err := f.svc.RecordViolation(ctx, f.student, attempt.ID, model.ViolationCopyPaste, nil); err != nil {
		t.Errorf("different violation type should pass: %v", err)
	}
}

func TestRecordViolationRejectsUnknownType(t *testing.T) {
	f := newAttemptFixture(t)
	attempt := f.getOrCreate(t)

	_, err := f.svc.RecordViolation(context.Background(), f.student, attempt.ID, model.ViolationType("SCREENSHOT"), nil)
	if !errors.Is(err, ErrInvalidViolationType) {
		t.Fatalf("expected ErrInvalidViolationType, got %v", err)
	}
}

func TestRecordHighlightColorFallbackAndCap(t *testing.T) {
	f := newAttemptFixture(t)
	ctx := context.Background()
	attempt := f.getOrCreate(t)

	req := RecordHighlightRequest{
		Text:          "the industrial revolution",
		PassageID:     f.question.PassageID,
		PositionStart: 10,
		PositionEnd:   35,
		Color:         "chartreuse",
	}
	h, err := f.svc.RecordHighlight(ctx, f.student, attempt.ID, req)
	if err != nil {
		t.Fatal(err)
	}
	if h.ColorCode != "#FFFF00" {
		t.Errorf("unknown color should fall back to yellow, got %s", h.ColorCode)
	}

	req.Color = "green"
	for i := 0; i < 2; i++ {
		if _, err := f.svc.RecordHighlight(ctx, f.student, attempt.ID, req); err != nil {
			t.Fatal(err)
		}
	}

	var capErr *model.HighlightLimitError
	if _, err := f.svc.RecordHighlight(ctx, f.student, attempt.ID, req); !errors.As(err, &capErr) {
		t.Fatalf("expected HighlightLimitError at the cap, got %v", err)
	}
}

func TestRecordHighlightRejectsInvertedRange(t *testing.T) {
	f := newAttemptFixture(t)
	attempt := f.getOrCreate(t)

	_, err := f.svc.RecordHighlight(context.Background(), f.student, attempt.ID, RecordHighlightRequest{
		Text:          "reversed",
		PassageID:     f.question.PassageID,
		PositionStart: 5,
		PositionEnd:   2,
	})
	if !errors.Is(err, model.ErrInvalidHighlightRange) {
		t.Fatalf("expected ErrInvalidHighlightRange, got %v", err)
	}

	stored, _ := f.attempts.GetByID(context.Background(), attempt.ID)
	if len(stored.HighlightedText) != 0 {
		t.Error("rejected highlight must not be stored")
	}
}

func TestRecordHighlightTruncatesPreview(t *testing.T) {
	f := newAttemptFixture(t)
	attempt := f.getOrCreate(t)

	long := strings.Repeat("x", 250)
	if _, err := f.svc.RecordHighlight(context.Background(), f.student, attempt.ID, RecordHighlightRequest{
		Text:          long,
		PassageID:     f.question.PassageID,
		PositionStart: 0,
		PositionEnd:   len(long),
	}); err != nil {
		t.Fatal(err)
	}

	msg := f.notifier.lastTeachers().(websocket.StudentHighlightMessage)
	if len(msg.Text) != highlightPreviewLimit {
		t.Errorf("expected %d-char preview, got %d", highlightPreviewLimit, len(msg.Text))
	}
}

func TestSubmitGradesAndBroadcasts(t *testing.T) {
	f := newAttemptFixture(t)
	ctx := context.Background()
	attempt := f.getOrCreate(t)

	if _, err := f.svc.SubmitAnswer(ctx, f.student, attempt.ID, f.question.ID, model.AnswerValue{"A"}); err != nil {
		t.Fatal(err)
	}

	submitted, err := f.svc.Submit(ctx, f.student, attempt.ID, model.SubmitReasonManual)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if submitted.Status != model.AttemptStatusSubmitted {
		t.Fatalf("expected SUBMITTED, got %s", submitted.Status)
	}
	if submitted.TotalCorrectAnswers == nil || *submitted.TotalCorrectAnswers != 1 {
		t.Errorf("expected 1 correct answer, got %v", submitted.TotalCorrectAnswers)
	}
	// 1/40 correct is band 1.0 on the standard table.
	if submitted.BandScore == nil || *submitted.BandScore != 1.0 {
		t.Errorf("expected band 1.0, got %v", submitted.BandScore)
	}

	msg, ok := f.notifier.lastTeachers().(websocket.StudentSubmittedMessage)
	if !ok {
		t.Fatalf("expected StudentSubmittedMessage, got %T", f.notifier.lastTeachers())
	}
	if msg.Score != 1.0 || msg.AnsweredQuestions != 1 || msg.TotalQuestions != 1 {
		t.Errorf("unexpected submitted message: %+v", msg)
	}

	// Terminal attempts reject further mutations.
	var badStatus *model.InvalidAttemptStatusError
	if _, err := f.svc.SubmitAnswer(ctx, f.student, attempt.ID, f.question.ID, model.AnswerValue{"B"}); !errors.As(err, &badStatus) {
		t.Errorf("expected InvalidAttemptStatusError after submit, got %v", err)
	}
}

func TestSubmitAuthorizationMatrix(t *testing.T) {
	f := newAttemptFixture(t)
	ctx := context.Background()

	teacher := model.Actor{ID: uuid.New(), Role: model.RoleTeacher}
	admin := model.Actor{ID: uuid.New(), Role: model.RoleAdmin}
	system := model.Actor{ID: uuid.New(), Role: model.RoleSystem}
	otherStudent := model.Actor{ID: uuid.New(), Role: model.RoleStudent}

	cases := []struct {
		name    string
		actor   model.Actor
		reason  model.SubmitReason
		allowed bool
	}{
		{"owner manual", f.student, model.SubmitReasonManual, true},
		{"other student manual", otherStudent, model.SubmitReasonManual, false},
		{"teacher manual", teacher, model.SubmitReasonManual, false},
		{"teacher forced", teacher, model.SubmitReasonForced, true},
		{"admin forced", admin, model.SubmitReasonForced, true},
		{"student forced", f.student, model.SubmitReasonForced, false},
		{"system time expired", system, model.SubmitReasonTimeExpired, true},
		{"teacher time expired", teacher, model.SubmitReasonTimeExpired, false},
		{"owner time expired", f.student, model.SubmitReasonTimeExpired, false},
		{"unknown reason", f.student, model.SubmitReason("WHIM"), false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			attempt := model.NewAttempt(f.test.ID, f.student.ID, &f.session.ID)
			if err := f.attempts.Create(ctx, attempt); err != nil {
				t.Fatal(err)
			}

			_, err := f.svc.Submit(ctx, tc.actor, attempt.ID, tc.reason)
			if tc.allowed && err != nil {
				t.Errorf("expected submit to pass, got %v", err)
			}
			if !tc.allowed && !errors.Is(err, model.ErrSubmitNotAllowed) {
				t.Errorf("expected ErrSubmitNotAllowed, got %v", err)
			}
		})
	}
}

func TestLoadOwnedRejectsOtherStudents(t *testing.T) {
	f := newAttemptFixture(t)
	attempt := f.getOrCreate(t)

	other := model.Actor{ID: uuid.New(), Role: model.RoleStudent}
	_, err := f.svc.SubmitAnswer(context.Background(), other, attempt.ID, f.question.ID, model.AnswerValue{"A"})
	if !errors.Is(err, model.ErrNotAttemptOwner) {
		t.Fatalf("expected ErrNotAttemptOwner, got %v", err)
	}
}
