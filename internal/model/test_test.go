package model

import (
	"encoding/json"
	"testing"
)

func TestAnswerValueAcceptsStringAndArray(t *testing.T) {
	var single AnswerValue
	if err := json.Unmarshal([]byte(`"A"`), &single); err != nil {
		t.Fatalf("unmarshal string: %v", err)
	}
	if len(single) != 1 || single[0] != "A" {
		t.Fatalf("expected [A], got %v", single)
	}

	var multi AnswerValue
	if err := json.Unmarshal([]byte(`["A","C"]`), &multi); err != nil {
		t.Fatalf("unmarshal array: %v", err)
	}
	if len(multi) != 2 {
		t.Fatalf("expected 2 values, got %v", multi)
	}
}

func TestAnswerValueMatches(t *testing.T) {
	cases := []struct {
		name     string
		correct  AnswerValue
		student  AnswerValue
		expected bool
	}{
		{"single exact", AnswerValue{"A"}, AnswerValue{"A"}, true},
		{"single wrong", AnswerValue{"A"}, AnswerValue{"B"}, false},
		{"multi order independent", AnswerValue{"B", "D"}, AnswerValue{"D", "B"}, true},
		{"multi partial", AnswerValue{"B", "D"}, AnswerValue{"B"}, false},
		{"multi extra", AnswerValue{"B"}, AnswerValue{"B", "D"}, false},
		{"multi wrong member", AnswerValue{"B", "D"}, AnswerValue{"B", "C"}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.correct.Matches(tc.student); got != tc.expected {
				t.Errorf("Matches(%v, %v) = %v, want %v", tc.correct, tc.student, got, tc.expected)
			}
		})
	}
}
