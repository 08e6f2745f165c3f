package model

import (
	"errors"
	"testing"

	"github.com/google/uuid"
)

func newTestAttempt() *Attempt {
	sessionID := uuid.New()
	return NewAttempt(uuid.New(), uuid.New(), &sessionID)
}

func TestSubmitAnswerLastWriteWins(t *testing.T) {
	a := newTestAttempt()
	questionID := uuid.New()

	if err := a.SubmitAnswer(questionID, AnswerValue{"A"}); err != nil {
		t.Fatalf("first answer: %v", err)
	}
	if err := a.SubmitAnswer(questionID, AnswerValue{"B"}); err != nil {
		t.Fatalf("replace answer: %v", err)
	}

	if len(a.Answers) != 1 {
		t.Fatalf("expected 1 stored answer, got %d", len(a.Answers))
	}
	if a.Answers[0].StudentAnswer[0] != "B" {
		t.Errorf("expected replacement to win, got %v", a.Answers[0].StudentAnswer)
	}
	if !a.HasAnswer(questionID) {
		t.Error("HasAnswer should report the stored question")
	}
	if a.HasAnswer(uuid.New()) {
		t.Error("HasAnswer should not report unknown questions")
	}
}

func TestTerminalAttemptRejectsMutations(t *testing.T) {
	a := newTestAttempt()
	if err := a.Submit(SubmitReasonManual); err != nil {
		t.Fatalf("submit: %v", err)
	}

	var statusErr *InvalidAttemptStatusError
	if err := a.SubmitAnswer(uuid.New(), AnswerValue{"A"}); !errors.As(err, &statusErr) {
		t.Errorf("SubmitAnswer after submit: expected status error, got %v", err)
	}
	if err := a.RecordViolation(ViolationTabSwitch, nil); !errors.As(err, &statusErr) {
		t.Errorf("RecordViolation after submit: expected status error, got %v", err)
	}
	if _, err := a.RecordHighlight("x", uuid.New(), 0, 1, "#FFFF00", 10); !errors.As(err, &statusErr) {
		t.Errorf("RecordHighlight after submit: expected status error, got %v", err)
	}
	if err := a.UpdateProgress(1, 2); !errors.As(err, &statusErr) {
		t.Errorf("UpdateProgress after submit: expected status error, got %v", err)
	}
	if err := a.Submit(SubmitReasonManual); !errors.As(err, &statusErr) {
		t.Errorf("double submit: expected status error, got %v", err)
	}
	if err := a.Abandon(); !errors.As(err, &statusErr) {
		t.Errorf("abandon after submit: expected status error, got %v", err)
	}
}

func TestSubmitRecordsReason(t *testing.T) {
	for _, reason := range []SubmitReason{SubmitReasonManual, SubmitReasonTimeExpired, SubmitReasonForced} {
		a := newTestAttempt()
		if err := a.Submit(reason); err != nil {
			t.Fatalf("submit %s: %v", reason, err)
		}
		if a.Status != AttemptStatusSubmitted {
			t.Errorf("%s: expected SUBMITTED, got %s", reason, a.Status)
		}
		if a.SubmitReason == nil || *a.SubmitReason != reason {
			t.Errorf("%s: reason not recorded", reason)
		}
		if a.SubmittedAt == nil {
			t.Errorf("%s: SubmittedAt not set", reason)
		}
	}
}

func TestAbandonIsTerminal(t *testing.T) {
	a := newTestAttempt()
	if err := a.Abandon(); err != nil {
		t.Fatalf("abandon: %v", err)
	}
	if a.Status != AttemptStatusAbandoned {
		t.Fatalf("expected ABANDONED, got %s", a.Status)
	}

	var statusErr *InvalidAttemptStatusError
	if err := a.Submit(SubmitReasonManual); !errors.As(err, &statusErr) {
		t.Errorf("submit after abandon: expected status error, got %v", err)
	}
}

func TestGradeCountsCorrectAnswers(t *testing.T) {
	a := newTestAttempt()

	q1 := Question{ID: uuid.New(), QuestionNumber: 1, CorrectAnswer: AnswerValue{"A"}}
	q2 := Question{ID: uuid.New(), QuestionNumber: 2, CorrectAnswer: AnswerValue{"B", "D"}}
	q3 := Question{ID: uuid.New(), QuestionNumber: 3, CorrectAnswer: AnswerValue{"C"}}
	questions := map[uuid.UUID]Question{q1.ID: q1, q2.ID: q2, q3.ID: q3}

	if err := a.SubmitAnswer(q1.ID, AnswerValue{"A"}); err != nil {
		t.Fatal(err)
	}
	// Multi-answer questions compare as sets, order-independent.
	if err := a.SubmitAnswer(q2.ID, AnswerValue{"D", "B"}); err != nil {
		t.Fatal(err)
	}
	if err := a.SubmitAnswer(q3.ID, AnswerValue{"WRONG"}); err != nil {
		t.Fatal(err)
	}

	a.Grade(questions, func(correct int) float64 { return float64(correct) })

	if a.TotalCorrectAnswers == nil || *a.TotalCorrectAnswers != 2 {
		t.Fatalf("expected 2 correct, got %v", a.TotalCorrectAnswers)
	}
	if a.BandScore == nil || *a.BandScore != 2.0 {
		t.Fatalf("expected band from callback, got %v", a.BandScore)
	}
	for _, ans := range a.Answers {
		wantCorrect := ans.QuestionID == q1.ID || ans.QuestionID == q2.ID
		if ans.IsCorrect != wantCorrect {
			t.Errorf("question %s: IsCorrect=%v, want %v", ans.QuestionID, ans.IsCorrect, wantCorrect)
		}
	}
}

func TestRecordHighlightRejectsBadRanges(t *testing.T) {
	a := newTestAttempt()
	passageID := uuid.New()

	cases := []struct {
		name       string
		start, end int
	}{
		{"inverted", 5, 2},
		{"equal", 3, 3},
		{"negative start", -1, 4},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := a.RecordHighlight("text", passageID, tc.start, tc.end, "#FFFF00", 10); !errors.Is(err, ErrInvalidHighlightRange) {
				t.Errorf("expected ErrInvalidHighlightRange, got %v", err)
			}
		})
	}
	if len(a.HighlightedText) != 0 {
		t.Errorf("rejected highlights must not be stored, got %d", len(a.HighlightedText))
	}

	if _, err := a.RecordHighlight("text", passageID, 0, 1, "#FFFF00", 10); err != nil {
		t.Errorf("minimal valid range should pass: %v", err)
	}
}

func TestRecordHighlightEnforcesCap(t *testing.T) {
	a := newTestAttempt()
	passageID := uuid.New()

	for i := 0; i < 2; i++ {
		if _, err := a.RecordHighlight("text", passageID, i, i+4, "#FFFF00", 2); err != nil {
			t.Fatalf("highlight %d: %v", i, err)
		}
	}

	var limitErr *HighlightLimitError
	if _, err := a.RecordHighlight("text", passageID, 10, 14, "#FFFF00", 2); !errors.As(err, &limitErr) {
		t.Fatalf("expected HighlightLimitError, got %v", err)
	}
	if limitErr.Limit != 2 {
		t.Errorf("expected limit 2 in error, got %d", limitErr.Limit)
	}
	if len(a.HighlightedText) != 2 {
		t.Errorf("cap overflow must not store, got %d highlights", len(a.HighlightedText))
	}
}

func TestRecordViolationAppends(t *testing.T) {
	a := newTestAttempt()

	if err := a.RecordViolation(ViolationTabSwitch, map[string]string{"from": "test-tab"}); err != nil {
		t.Fatal(err)
	}
	if err := a.RecordViolation(ViolationCopyPaste, nil); err != nil {
		t.Fatal(err)
	}

	if a.ViolationCount() != 2 {
		t.Fatalf("expected 2 violations, got %d", a.ViolationCount())
	}
	if a.TabViolations[0].ViolationType != ViolationTabSwitch {
		t.Error("violation order not preserved")
	}
}

func TestValidViolationType(t *testing.T) {
	for _, valid := range []ViolationType{
		ViolationTabSwitch, ViolationWindowBlur, ViolationCopyPaste,
		ViolationFullScreenExit, ViolationContextMenu,
	} {
		if !ValidViolationType(valid) {
			t.Errorf("%s should be valid", valid)
		}
	}
	if ValidViolationType("SCREENSHOT") {
		t.Error("unknown type should be invalid")
	}
}
