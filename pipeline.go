package retrieval

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/creastat/retrieval/chunker"
	"github.com/creastat/retrieval/embedder"
	"github.com/creastat/retrieval/lexical"
	"github.com/creastat/retrieval/vectorstore"
)

// Pipeline orchestrates chunking, embedding and indexing at ingest time,
// and lexical search, vector search, fusion and reranking at query time.
// All dependencies are injected; the pipeline holds no hidden globals.
type Pipeline struct {
	embedder   embedder.Embedder
	store      vectorstore.VectorStore
	corpus     *lexical.Corpus
	chunker    *chunker.Chunker
	reranker   Reranker
	logger     *logrus.Logger
	collection string
	distance   vectorstore.Distance
	maxRerank  int
	sideTimeout time.Duration

	statsMu      sync.Mutex
	totalQueries int64
	avgLatencyMS float64

	ingestMu    sync.Mutex
	ingestLocks map[string]*docLock
}

// docLock serializes operations on one document ID. Entries are
// reference counted so the lock map does not grow with every document
// ever ingested.
type docLock struct {
	mu   sync.Mutex
	refs int
}

// NewPipeline creates a retrieval pipeline over the given embedder,
// vector store and lexical corpus.
func NewPipeline(emb embedder.Embedder, store vectorstore.VectorStore, corpus *lexical.Corpus, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		embedder:    emb,
		store:       store,
		corpus:      corpus,
		chunker:     chunker.New(),
		logger:      logrus.New(),
		collection:  "knowledge",
		distance:    vectorstore.DistanceCosine,
		maxRerank:   50,
		sideTimeout: 10 * time.Second,
		ingestLocks: make(map[string]*docLock),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Init creates the vector collection sized to the embedder's dimension.
func (p *Pipeline) Init(ctx context.Context) error {
	return p.store.CreateCollection(ctx, vectorstore.CollectionConfig{
		Name:     p.collection,
		Dim:      p.embedder.Dimensions(),
		Distance: p.distance,
	}, false)
}

// IndexDocument chunks, embeds and indexes one document into both the
// vector and lexical indices, returning the number of chunks indexed.
// Re-ingesting a document ID replaces all of its chunks. Concurrent
// ingests of the same ID are serialized; different IDs are independent.
//
// The full chunk/vector set is buffered before any index is touched, and
// the lexical side commits only after the vector side succeeded, so a
// mid-pipeline failure never leaves vectors without lexical entries.
func (p *Pipeline) IndexDocument(ctx context.Context, doc chunker.Document, strategy chunker.Strategy) (int, error) {
	if doc.ID == "" {
		return 0, ErrEmptyDocumentID
	}

	lock := p.lockDoc(doc.ID)
	defer p.unlockDoc(doc.ID, lock)

	chunks := p.chunker.Chunk(doc, strategy)
	if len(chunks) == 0 {
		return 0, nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	embeds, err := p.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, &IngestError{DocumentID: doc.ID, Stage: "embed", Err: err}
	}
	if len(embeds) != len(chunks) {
		return 0, &IngestError{
			DocumentID: doc.ID,
			Stage:      "embed",
			Err:        fmt.Errorf("got %d embeddings for %d chunks", len(embeds), len(chunks)),
		}
	}

	vectors := make([]vectorstore.Vector, len(chunks))
	lexChunks := make([]lexical.Chunk, len(chunks))
	newIDs := make(map[string]bool, len(chunks))
	for i, c := range chunks {
		md := make(map[string]any, len(c.Metadata)+3)
		for k, v := range c.Metadata {
			md[k] = v
		}
		md["chunk_index"] = c.Index
		md["total_chunks"] = c.TotalInDocument
		md["token_count"] = c.TokenCount

		vectors[i] = vectorstore.Vector{
			ID:       c.ID,
			Vector:   embeds[i].Vector,
			Text:     c.Text,
			Metadata: md,
		}
		lexChunks[i] = lexical.Chunk{
			ID:         c.ID,
			DocumentID: doc.ID,
			Text:       c.Text,
			Metadata:   md,
		}
		newIDs[c.ID] = true
	}

	var staleIDs, overlapIDs []string
	for _, id := range p.corpus.ChunkIDs(doc.ID) {
		if newIDs[id] {
			overlapIDs = append(overlapIDs, id)
		} else {
			staleIDs = append(staleIDs, id)
		}
	}

	// Chunk IDs are deterministic, so a re-ingest overwrites the prior
	// ingest's points. Snapshot those before touching the index so a
	// failed upsert can put them back instead of wiping committed state.
	var prior []vectorstore.Vector
	if len(overlapIDs) > 0 {
		var err error
		prior, err = p.store.Fetch(ctx, p.collection, overlapIDs)
		if err != nil {
			return 0, &IngestError{DocumentID: doc.ID, Stage: "snapshot", Err: err}
		}
	}

	if err := p.store.Upsert(ctx, p.collection, vectors); err != nil {
		p.rollbackUpsert(ctx, doc.ID, vectors, prior)
		return 0, &IngestError{DocumentID: doc.ID, Stage: "upsert", Err: err}
	}

	if len(staleIDs) > 0 {
		if err := p.store.Delete(ctx, p.collection, staleIDs); err != nil {
			p.logger.WithError(err).WithField("document_id", doc.ID).
				Warn("stale chunks left behind in vector index")
		}
	}

	p.corpus.Add(doc.ID, lexChunks)

	p.logger.WithFields(logrus.Fields{
		"document_id": doc.ID,
		"chunks":      len(chunks),
		"strategy":    string(strategy),
	}).Info("indexed document")
	return len(chunks), nil
}

// rollbackUpsert undoes a failed upsert: genuinely new points are
// deleted and overwritten points are restored from the snapshot, so the
// vector index ends up exactly as it was before the ingest. Both legs
// are best effort; a failure here is logged, not returned, because the
// upsert error itself is already on its way to the caller.
func (p *Pipeline) rollbackUpsert(ctx context.Context, docID string, attempted []vectorstore.Vector, prior []vectorstore.Vector) {
	hadPrior := make(map[string]bool, len(prior))
	for _, v := range prior {
		hadPrior[v.ID] = true
	}

	var added []string
	for _, v := range attempted {
		if !hadPrior[v.ID] {
			added = append(added, v.ID)
		}
	}
	if len(added) > 0 {
		if err := p.store.Delete(ctx, p.collection, added); err != nil {
			p.logger.WithError(err).WithField("document_id", docID).
				Warn("rollback of failed upsert could not delete new points")
		}
	}
	if len(prior) > 0 {
		if err := p.store.Upsert(ctx, p.collection, prior); err != nil {
			p.logger.WithError(err).WithField("document_id", docID).
				Warn("rollback of failed upsert could not restore prior points")
		}
	}
}

// IndexConversation indexes a conversation transcript as a document.
func (p *Pipeline) IndexConversation(ctx context.Context, conversationID string, messages []chunker.Message, maxMessages int) (int, error) {
	if conversationID == "" {
		return 0, ErrEmptyDocumentID
	}
	chunks := p.chunker.ChunkConversation(conversationID, messages, maxMessages)
	if len(chunks) == 0 {
		return 0, nil
	}

	var text []byte
	for i, c := range chunks {
		if i > 0 {
			text = append(text, "\n\n"...)
		}
		text = append(text, c.Text...)
	}
	// Re-ingest through the document path so replace/rollback semantics
	// apply uniformly.
	return p.IndexDocument(ctx, chunker.Document{
		ID:       conversationID,
		Text:     string(text),
		Metadata: map[string]any{"source": "conversation"},
	}, chunker.StrategyRecursive)
}

// DeleteDocument removes a document's chunks from both the vector index
// and the lexical index. The lexical side is only updated after the
// vector delete succeeded, so a failure leaves both indices agreeing.
func (p *Pipeline) DeleteDocument(ctx context.Context, docID string) error {
	if docID == "" {
		return ErrEmptyDocumentID
	}

	lock := p.lockDoc(docID)
	defer p.unlockDoc(docID, lock)

	ids := p.corpus.ChunkIDs(docID)
	if len(ids) == 0 {
		return nil
	}
	if err := p.store.Delete(ctx, p.collection, ids); err != nil {
		return fmt.Errorf("deleting document %s from vector index: %w", docID, err)
	}
	p.corpus.Remove(docID)
	return nil
}

// Retrieve answers a query with a ranked list of relevant chunks. The
// lexical and vector legs run in parallel under independent timeouts;
// one side failing degrades the strategy tag rather than the request.
// Only both sides failing is an error.
func (p *Pipeline) Retrieve(ctx context.Context, query string, opts *RetrieveOptions) (*RetrievalResult, error) {
	start := time.Now()
	if opts == nil {
		opts = DefaultRetrieveOptions()
	}
	k := opts.K
	if k <= 0 {
		k = 10
	}
	fetchK := 2 * k

	useLexical := opts.UseHybrid && p.corpus.Len() > 0

	var wg sync.WaitGroup
	var lexResults, vecResults []ScoredChunk
	var lexErr, vecErr error

	wg.Add(1)
	go func() {
		defer wg.Done()
		vecResults, vecErr = p.vectorSearch(ctx, query, fetchK, opts)
	}()

	if useLexical {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lexResults, lexErr = p.lexicalSearch(ctx, query, fetchK)
		}()
	}
	wg.Wait()

	var fused []ScoredChunk
	var strategy Strategy
	switch {
	case useLexical && lexErr == nil && vecErr == nil:
		fused = fuseWeighted(lexResults, vecResults, opts.Alpha)
		strategy = StrategyHybrid
	case useLexical && lexErr == nil:
		// Vector leg failed; serve the lexical ranking alone.
		p.logger.WithError(vecErr).Warn("vector search failed, degrading to lexical results")
		fused = fuseWeighted(lexResults, nil, 1)
		strategy = StrategyHybrid
	case vecErr == nil:
		if useLexical {
			p.logger.WithError(lexErr).Warn("lexical search failed, degrading to vector results")
		}
		fused = vecResults
		strategy = StrategyVector
	default:
		return nil, fmt.Errorf("%w: lexical=%v vector=%v", ErrSearchFailed, lexErr, vecErr)
	}

	candidates := len(fused)

	if opts.UseRerank && p.reranker != nil && len(fused) > 0 {
		limit := p.maxRerank
		if fetchK < limit {
			limit = fetchK
		}
		if len(fused) < limit {
			limit = len(fused)
		}

		rctx, cancel := context.WithTimeout(ctx, p.sideTimeout)
		reranked, err := p.reranker.Rerank(rctx, query, fused[:limit], k)
		cancel()
		if err != nil {
			p.logger.WithError(err).Warn("reranking failed, using fused ranking")
		} else {
			fused = reranked
			if strategy == StrategyHybrid {
				strategy = StrategyHybridRerank
			}
		}
	}

	if len(fused) > k {
		fused = fused[:k]
	}

	elapsed := float64(time.Since(start).Microseconds()) / 1000
	p.recordQuery(elapsed)

	p.logger.WithFields(logrus.Fields{
		"results":    len(fused),
		"candidates": candidates,
		"strategy":   string(strategy),
		"elapsed_ms": elapsed,
	}).Debug("retrieved")

	return &RetrievalResult{
		Query:              query,
		Chunks:             fused,
		ElapsedMS:          elapsed,
		Strategy:           strategy,
		CandidatesExamined: candidates,
	}, nil
}

// ClearIndex destroys and recreates the vector collection and resets the
// lexical corpus.
func (p *Pipeline) ClearIndex(ctx context.Context) error {
	err := p.store.CreateCollection(ctx, vectorstore.CollectionConfig{
		Name:     p.collection,
		Dim:      p.embedder.Dimensions(),
		Distance: p.distance,
	}, true)
	if err != nil {
		return fmt.Errorf("recreating collection: %w", err)
	}
	p.corpus.Reset()
	return nil
}

// Health probes the vector index. An error means vector search will
// degrade to lexical-only; it is not fatal.
func (p *Pipeline) Health(ctx context.Context) error {
	return p.store.Health(ctx)
}

// Stats returns a snapshot of pipeline counters.
func (p *Pipeline) Stats() PipelineStats {
	p.statsMu.Lock()
	s := PipelineStats{
		TotalQueries: p.totalQueries,
		AvgLatencyMS: p.avgLatencyMS,
	}
	p.statsMu.Unlock()

	s.IndexedChunkCount = p.corpus.Len()
	if sp, ok := p.embedder.(interface{ Stats() embedder.Stats }); ok {
		es := sp.Stats()
		s.CacheHitRate = es.CacheHitRate
		s.TotalEmbeddingCost = es.TotalCost
	}
	return s
}

func (p *Pipeline) vectorSearch(ctx context.Context, query string, k int, opts *RetrieveOptions) ([]ScoredChunk, error) {
	ctx, cancel := context.WithTimeout(ctx, p.sideTimeout)
	defer cancel()

	emb, err := p.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	results, err := p.store.Search(ctx, p.collection, emb.Vector, k, vectorstore.SearchFilter{
		Metadata:       opts.Filter,
		ScoreThreshold: opts.ScoreThreshold,
	})
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}

	chunks := make([]ScoredChunk, 0, len(results))
	for _, v := range results {
		docID, _ := v.Metadata["document_id"].(string)
		chunks = append(chunks, ScoredChunk{
			ID:         v.ID,
			DocumentID: docID,
			Text:       v.Text,
			Score:      float64(v.Score),
			Metadata:   v.Metadata,
		})
	}
	return chunks, nil
}

// lexicalSearch scores the corpus on a worker goroutine so a slow scan
// cannot outlive its timeout from the caller's point of view.
func (p *Pipeline) lexicalSearch(ctx context.Context, query string, k int) ([]ScoredChunk, error) {
	ctx, cancel := context.WithTimeout(ctx, p.sideTimeout)
	defer cancel()

	done := make(chan []lexical.ScoredChunk, 1)
	go func() {
		done <- p.corpus.Search(query, k)
	}()

	select {
	case results := <-done:
		chunks := make([]ScoredChunk, 0, len(results))
		for _, r := range results {
			chunks = append(chunks, ScoredChunk{
				ID:         r.ID,
				DocumentID: r.DocumentID,
				Text:       r.Text,
				Score:      r.Score,
				Metadata:   r.Metadata,
			})
		}
		return chunks, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("lexical search: %w", ctx.Err())
	}
}

func (p *Pipeline) recordQuery(elapsedMS float64) {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()

	p.totalQueries++
	p.avgLatencyMS += (elapsedMS - p.avgLatencyMS) / float64(p.totalQueries)
}

func (p *Pipeline) lockDoc(id string) *docLock {
	p.ingestMu.Lock()
	lock, ok := p.ingestLocks[id]
	if !ok {
		lock = &docLock{}
		p.ingestLocks[id] = lock
	}
	lock.refs++
	p.ingestMu.Unlock()

	lock.mu.Lock()
	return lock
}

func (p *Pipeline) unlockDoc(id string, lock *docLock) {
	lock.mu.Unlock()

	p.ingestMu.Lock()
	lock.refs--
	if lock.refs == 0 {
		delete(p.ingestLocks, id)
	}
	p.ingestMu.Unlock()
}
