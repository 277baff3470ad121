// Package lexical maintains an in-process term-frequency (BM25) index
// over indexed chunks. The index is an immutable snapshot republished
// atomically on every corpus mutation, so queries never observe a
// partially built index.
package lexical

import (
	"math"
	"sort"
	"strings"
)

// BM25 parameters.
const (
	k1 = 1.5
	b  = 0.75
)

// Tokenizer splits text into terms for lexical matching.
type Tokenizer func(text string) []string

// DefaultTokenizer lowercases and splits on whitespace.
func DefaultTokenizer(text string) []string {
	return strings.Fields(strings.ToLower(text))
}

// Chunk is the unit of lexical indexing.
type Chunk struct {
	ID         string
	DocumentID string
	Text       string
	Metadata   map[string]any
}

// ScoredChunk is a chunk with its BM25 relevance score.
type ScoredChunk struct {
	Chunk
	Score float64
}

// Index is an immutable BM25 index over a fixed chunk set.
type Index struct {
	chunks    []Chunk
	termFreqs []map[string]int
	docLens   []int
	avgDocLen float64
	docFreqs  map[string]int
	tokenize  Tokenizer
}

// NewIndex builds an index over the given chunks. The chunk slice is not
// retained by reference mutation; build once, read forever.
func NewIndex(chunks []Chunk, tokenize Tokenizer) *Index {
	if tokenize == nil {
		tokenize = DefaultTokenizer
	}

	idx := &Index{
		chunks:    chunks,
		termFreqs: make([]map[string]int, len(chunks)),
		docLens:   make([]int, len(chunks)),
		docFreqs:  make(map[string]int),
		tokenize:  tokenize,
	}

	totalLen := 0
	for i, chunk := range chunks {
		terms := tokenize(chunk.Text)
		tf := make(map[string]int, len(terms))
		for _, t := range terms {
			tf[t]++
		}
		idx.termFreqs[i] = tf
		idx.docLens[i] = len(terms)
		totalLen += len(terms)
		for t := range tf {
			idx.docFreqs[t]++
		}
	}
	if len(chunks) > 0 {
		idx.avgDocLen = float64(totalLen) / float64(len(chunks))
	}
	return idx
}

// Len returns the number of indexed chunks.
func (idx *Index) Len() int {
	return len(idx.chunks)
}

// Search scores every indexed chunk against the query and returns the
// top k by BM25 score, ties broken by chunk ID. An empty index or query
// yields nil.
func (idx *Index) Search(query string, k int) []ScoredChunk {
	if len(idx.chunks) == 0 {
		return nil
	}
	terms := idx.tokenize(query)
	if len(terms) == 0 {
		return nil
	}

	n := float64(len(idx.chunks))
	results := make([]ScoredChunk, 0, len(idx.chunks))
	for i, chunk := range idx.chunks {
		score := 0.0
		for _, t := range terms {
			tf := idx.termFreqs[i][t]
			if tf == 0 {
				continue
			}
			df := float64(idx.docFreqs[t])
			idf := math.Log(1 + (n-df+0.5)/(df+0.5))
			norm := 1 - b + b*float64(idx.docLens[i])/idx.avgDocLen
			score += idf * float64(tf) * (k1 + 1) / (float64(tf) + k1*norm)
		}
		if score > 0 {
			results = append(results, ScoredChunk{Chunk: chunk, Score: score})
		}
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})

	if k > 0 && k < len(results) {
		results = results[:k]
	}
	return results
}
