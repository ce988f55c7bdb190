package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/kirillkom/contract-retrieval/internal/core/domain"
)

func TestHypothesizeParsesTitles(t *testing.T) {
	completer := &completerFake{response: "1. Relief Periods\n- \"Meal Periods\"\n* relief periods\nok\nHours of Work\nScheduling"}
	titles, err := NewLLMHypothesizer(completer, 3).Hypothesize(context.Background(), "When do I get a break?")
	if err != nil {
		t.Fatalf("Hypothesize() error = %v", err)
	}
	want := []string{"Relief Periods", "Meal Periods", "Hours of Work"}
	if strings.Join(titles, "|") != strings.Join(want, "|") {
		t.Fatalf("titles = %q, want %q", titles, want)
	}
	if completer.requests[0].JSON || !strings.Contains(completer.requests[0].System, "exactly 3 titles") {
		t.Fatalf("unexpected request %+v", completer.requests[0])
	}
}

func TestHypothesizeStripsReasoning(t *testing.T) {
	completer := &completerFake{response: "<think>\nThe worker means breaks.\n</think>\nRelief Periods"}
	titles, err := NewLLMHypothesizer(completer, 3).Hypothesize(context.Background(), "break?")
	if err != nil {
		t.Fatalf("Hypothesize() error = %v", err)
	}
	if len(titles) != 1 || titles[0] != "Relief Periods" {
		t.Fatalf("titles = %q", titles)
	}
}

func TestHypothesizeFailures(t *testing.T) {
	_, err := NewLLMHypothesizer(&completerFake{response: "  \n-\n"}, 3).Hypothesize(context.Background(), "q")
	if !domain.IsKind(err, domain.ErrMalformedResponse) {
		t.Fatalf("expected ErrMalformedResponse, got %v", err)
	}
	_, err = NewLLMHypothesizer(&completerFake{err: context.DeadlineExceeded}, 3).Hypothesize(context.Background(), "q")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected wrapped deadline error, got %v", err)
	}
}
