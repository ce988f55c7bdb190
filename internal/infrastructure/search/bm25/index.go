package bm25

import (
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/kirillkom/contract-retrieval/internal/core/domain"
)

const (
	DefaultK1 = 1.8
	DefaultB  = 0.75
)

var tokenRe = regexp.MustCompile(`[a-z0-9]+`)

// Tokenize lowercases text and keeps alphanumeric runs of two or more characters.
func Tokenize(text string) []string {
	raw := tokenRe.FindAllString(strings.ToLower(text), -1)
	out := raw[:0]
	for _, token := range raw {
		if len(token) >= 2 {
			out = append(out, token)
		}
	}
	return out
}

type posting struct {
	doc int
	tf  int
}

// Index is an immutable BM25 inverted index. Build it once; Search is safe for concurrent use.
type Index struct {
	k1, b     float64
	ids       []string
	docLens   []int
	avgDocLen float64
	postings  map[string][]posting
}

type Document struct {
	ID   string
	Text string
}

func New(docs []Document, k1, b float64) *Index {
	if k1 <= 0 {
		k1 = DefaultK1
	}
	if b < 0 || b > 1 {
		b = DefaultB
	}
	idx := &Index{
		k1:       k1,
		b:        b,
		ids:      make([]string, len(docs)),
		docLens:  make([]int, len(docs)),
		postings: make(map[string][]posting),
	}
	total := 0
	for i, doc := range docs {
		idx.ids[i] = doc.ID
		tokens := Tokenize(doc.Text)
		idx.docLens[i] = len(tokens)
		total += len(tokens)

		counts := make(map[string]int, len(tokens))
		for _, token := range tokens {
			counts[token]++
		}
		for term, tf := range counts {
			idx.postings[term] = append(idx.postings[term], posting{doc: i, tf: tf})
		}
	}
	if len(docs) > 0 {
		idx.avgDocLen = float64(total) / float64(len(docs))
	}
	return idx
}

// ChunkDocument builds the searchable text of a chunk: content, citation and article title.
func ChunkDocument(c domain.Chunk) Document {
	return Document{ID: c.ID, Text: c.Content + " " + c.Citation + " " + c.Title}
}

func (idx *Index) Len() int { return len(idx.ids) }

func (idx *Index) idf(term string) float64 {
	n := len(idx.postings[term])
	if n == 0 {
		return 0
	}
	N := float64(len(idx.ids))
	return math.Log((N-float64(n)+0.5)/(float64(n)+0.5) + 1)
}

// Search scores every document containing a query term and returns the top limit hits
// by score descending, document ID ascending on ties. Repeated query terms count again.
func (idx *Index) Search(query string, limit int) []domain.ScoredChunk {
	if idx == nil || len(idx.ids) == 0 || idx.avgDocLen == 0 {
		return nil
	}
	terms := Tokenize(query)
	if len(terms) == 0 {
		return nil
	}
	scores := make(map[int]float64)
	for _, term := range terms {
		list, ok := idx.postings[term]
		if !ok {
			continue
		}
		idf := idx.idf(term)
		for _, p := range list {
			tf := float64(p.tf)
			norm := 1 - idx.b + idx.b*float64(idx.docLens[p.doc])/idx.avgDocLen
			scores[p.doc] += idf * (tf * (idx.k1 + 1)) / (tf + idx.k1*norm)
		}
	}

	out := make([]domain.ScoredChunk, 0, len(scores))
	for doc, score := range scores {
		if score > 0 {
			out = append(out, domain.ScoredChunk{ChunkID: idx.ids[doc], Score: score})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ChunkID < out[j].ChunkID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
