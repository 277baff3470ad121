package lexical

import (
	"sync"
	"sync/atomic"
)

// CorpusOption configures a Corpus.
type CorpusOption func(*Corpus)

// WithTokenizer sets the tokenizer used for indexing and queries.
func WithTokenizer(t Tokenizer) CorpusOption {
	return func(c *Corpus) { c.tokenize = t }
}

// Corpus owns the chunk set behind the lexical index, keyed by document
// ID. Every mutation rebuilds the index from the full corpus snapshot
// and publishes it atomically; readers always see a complete index.
type Corpus struct {
	mu       sync.Mutex // serializes mutations and rebuilds
	docs     map[string][]Chunk
	tokenize Tokenizer
	index    atomic.Pointer[Index]
}

// NewCorpus creates an empty corpus.
func NewCorpus(opts ...CorpusOption) *Corpus {
	c := &Corpus{
		docs:     make(map[string][]Chunk),
		tokenize: DefaultTokenizer,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.index.Store(NewIndex(nil, c.tokenize))
	return c
}

// Add replaces the chunks of a document and republishes the index.
func (c *Corpus) Add(docID string, chunks []Chunk) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.docs[docID] = chunks
	c.rebuild()
}

// Remove deletes a document's chunks and republishes the index.
func (c *Corpus) Remove(docID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.docs, docID)
	c.rebuild()
}

// Reset drops the entire corpus.
func (c *Corpus) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.docs = make(map[string][]Chunk)
	c.rebuild()
}

// ChunkIDs returns the indexed chunk IDs of a document.
func (c *Corpus) ChunkIDs(docID string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	chunks := c.docs[docID]
	ids := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		ids = append(ids, chunk.ID)
	}
	return ids
}

// Len returns the number of chunks in the published index.
func (c *Corpus) Len() int {
	return c.index.Load().Len()
}

// Search queries the current index snapshot. Safe to call concurrently
// with mutations.
func (c *Corpus) Search(query string, k int) []ScoredChunk {
	return c.index.Load().Search(query, k)
}

// rebuild must be called with c.mu held. Full rebuilds keep BM25 global
// statistics exact; the swap makes the rebuild invisible to readers.
func (c *Corpus) rebuild() {
	var chunks []Chunk
	for _, docChunks := range c.docs {
		chunks = append(chunks, docChunks...)
	}
	c.index.Store(NewIndex(chunks, c.tokenize))
}
