package bm25

import (
	"reflect"
	"testing"
)

func TestTokenizeDropsShortTokens(t *testing.T) {
	got := Tokenize("A Relief-Period of 15 minutes, x y")
	want := []string{"relief", "period", "of", "15", "minutes"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Tokenize() = %v, want %v", got, want)
	}
}

func TestSearchRanksTermFrequency(t *testing.T) {
	idx := New([]Document{
		{ID: "a", Text: "overtime premium overtime pay for overtime hours"},
		{ID: "b", Text: "overtime is mentioned once among many other words here"},
		{ID: "c", Text: "vacation scheduling rules"},
	}, 0, 0)

	hits := idx.Search("overtime", 10)
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(hits))
	}
	if hits[0].ChunkID != "a" {
		t.Fatalf("expected a first, got %s", hits[0].ChunkID)
	}
}

func TestSearchTieBreaksByID(t *testing.T) {
	idx := New([]Document{
		{ID: "z", Text: "meal period"},
		{ID: "m", Text: "meal period"},
	}, DefaultK1, DefaultB)

	hits := idx.Search("meal", 10)
	if len(hits) != 2 || hits[0].ChunkID != "m" || hits[1].ChunkID != "z" {
		t.Fatalf("unexpected order: %+v", hits)
	}
}

func TestSearchEmptyIndex(t *testing.T) {
	idx := New(nil, 0, 0)
	if hits := idx.Search("anything", 5); len(hits) != 0 {
		t.Fatalf("expected no hits, got %d", len(hits))
	}
}

func TestSearchRespectsLimit(t *testing.T) {
	idx := New([]Document{
		{ID: "1", Text: "seniority list"},
		{ID: "2", Text: "seniority date"},
		{ID: "3", Text: "seniority rights"},
	}, 0, 0)
	if hits := idx.Search("seniority", 2); len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(hits))
	}
}
