// Package chunker splits source documents into bounded, overlapping text
// fragments that serve as the unit of indexing and retrieval.
package chunker

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/google/uuid"
)

// Strategy selects how a document is split.
type Strategy string

const (
	// StrategyRecursive descends through a separator priority list,
	// splitting at the highest-priority separator that yields pieces
	// within the target size.
	StrategyRecursive Strategy = "recursive"

	// StrategyTokenWindow slides a fixed-size token window over the text,
	// re-including the trailing overlap tokens of each window at the
	// start of the next.
	StrategyTokenWindow Strategy = "token_window"
)

// ContentType classifies a document for separator selection.
type ContentType string

const (
	ContentTypeCode     ContentType = "code"
	ContentTypeMarkdown ContentType = "markdown"
	ContentTypePlain    ContentType = "plain"
)

// Document is a source text to be chunked. Identity is ID; re-chunking
// the same document yields the same chunk IDs.
type Document struct {
	ID       string
	Text     string
	Metadata map[string]any
}

// Chunk is a bounded fragment of a document.
type Chunk struct {
	ID              string
	Text            string
	StartOffset     int
	EndOffset       int
	Index           int
	TotalInDocument int
	TokenCount      int
	Metadata        map[string]any
}

// Separator priority lists. Separators are retained at the end of the
// preceding piece, so concatenating all pieces reproduces the source
// text exactly.
var (
	plainSeparators = []string{
		"\n\n\n", // section breaks
		"\n\n",   // paragraph breaks
		"\n",     // line breaks
		". ",     // sentence ends
		"! ",
		"? ",
		"; ",
		", ",
		" ",
	}

	codeSeparators = []string{
		"\nclass ",
		"\nfunc ",
		"\ndef ",
		"\nfunction ",
		"\n\n",
		"\n",
		" ",
	}

	markdownSeparators = []string{
		"\n## ",
		"\n# ",
		"\n\n\n",
		"\n\n",
		"\n",
		". ",
		" ",
	}
)

var (
	codePattern     = regexp.MustCompile(`(?m)^\s*(def |class |import |func |function |const |package |#include)`)
	markdownPattern = regexp.MustCompile(`(?m)^#{1,6}\s`)
)

// Option configures a Chunker.
type Option func(*Chunker)

// WithTargetTokens sets the soft cap on chunk size in tokens.
func WithTargetTokens(n int) Option {
	return func(c *Chunker) { c.targetTokens = n }
}

// WithOverlapTokens sets the window overlap for StrategyTokenWindow.
func WithOverlapTokens(n int) Option {
	return func(c *Chunker) { c.overlapTokens = n }
}

// WithMinChunkTokens sets the threshold below which adjacent chunks are merged.
func WithMinChunkTokens(n int) Option {
	return func(c *Chunker) { c.minChunkTokens = n }
}

// WithCounter sets the token-counting function.
func WithCounter(fn CounterFunc) Option {
	return func(c *Chunker) { c.counter = fn }
}

// Chunker splits documents into chunks.
type Chunker struct {
	targetTokens   int
	overlapTokens  int
	minChunkTokens int
	counter        CounterFunc
}

// New creates a Chunker with the given options. Defaults: 1000 target
// tokens, 200 overlap tokens, 100 minimum tokens, EstimateTokens counter.
func New(opts ...Option) *Chunker {
	c := &Chunker{
		targetTokens:   1000,
		overlapTokens:  200,
		minChunkTokens: 100,
		counter:        EstimateTokens,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.overlapTokens >= c.targetTokens {
		c.overlapTokens = c.targetTokens / 2
	}
	return c
}

// Chunk splits a document using the given strategy. An empty or
// whitespace-only document yields zero chunks.
func (c *Chunker) Chunk(doc Document, strategy Strategy) []Chunk {
	if strings.TrimSpace(doc.Text) == "" {
		return nil
	}

	contentType := DetectContentType(doc.Text)

	var chunks []Chunk
	switch strategy {
	case StrategyTokenWindow:
		chunks = c.windowChunks(doc, contentType, strategy)
	default:
		pieces := c.split(doc.Text, separatorsFor(contentType))
		chunks = c.buildChunks(doc, pieces, contentType, StrategyRecursive)
		chunks = c.mergeSmall(chunks)
	}

	for i := range chunks {
		chunks[i].TotalInDocument = len(chunks)
	}
	return chunks
}

// DetectContentType classifies text as code, markdown, or plain via
// structural heuristics.
func DetectContentType(text string) ContentType {
	if codePattern.MatchString(text) {
		return ContentTypeCode
	}
	if markdownPattern.MatchString(text) {
		return ContentTypeMarkdown
	}
	return ContentTypePlain
}

// ChunkID derives the deterministic chunk ID for a document and chunk
// index. The result is a UUIDv5, usable directly as a vector-index point ID.
func ChunkID(docID string, index int) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("%s:%d", docID, index))).String()
}

func separatorsFor(ct ContentType) []string {
	switch ct {
	case ContentTypeCode:
		return codeSeparators
	case ContentTypeMarkdown:
		return markdownSeparators
	default:
		return plainSeparators
	}
}

// count measures text in tokens, falling back to a ~4-chars-per-token
// estimate when the counter fails.
func (c *Chunker) count(text string) int {
	n, err := c.counter(text)
	if err != nil || n < 0 {
		return (len(text) + 3) / 4
	}
	return n
}

// split recursively divides text at the highest-priority separator that
// yields pieces within the target size. Separators stay attached to the
// preceding piece so no content is lost.
func (c *Chunker) split(text string, seps []string) []string {
	if c.count(text) <= c.targetTokens {
		return []string{text}
	}
	if len(seps) == 0 {
		return c.splitByRatio(text)
	}

	parts := splitAfter(text, seps[0])
	if len(parts) == 1 {
		return c.split(text, seps[1:])
	}

	// Greedily merge adjacent parts up to the target, then descend into
	// any single part that alone exceeds it.
	var out []string
	var buf strings.Builder
	flush := func() {
		if buf.Len() == 0 {
			return
		}
		piece := buf.String()
		buf.Reset()
		if c.count(piece) > c.targetTokens {
			out = append(out, c.split(piece, seps[1:])...)
		} else {
			out = append(out, piece)
		}
	}
	for _, p := range parts {
		if buf.Len() > 0 && c.count(buf.String()+p) > c.targetTokens {
			flush()
		}
		buf.WriteString(p)
	}
	flush()
	return out
}

// splitByRatio is the character-level last resort: the text is cut into
// equal rune runs sized by the observed chars-per-token ratio.
func (c *Chunker) splitByRatio(text string) []string {
	runes := []rune(text)
	tokens := c.count(text)
	if tokens <= 0 {
		tokens = 1
	}
	per := len(runes) * c.targetTokens / tokens
	if per < 1 {
		per = 1
	}
	var out []string
	for start := 0; start < len(runes); start += per {
		end := start + per
		if end > len(runes) {
			end = len(runes)
		}
		out = append(out, string(runes[start:end]))
	}
	return out
}

// splitAfter splits text at sep, keeping sep at the end of each piece.
func splitAfter(text, sep string) []string {
	parts := strings.SplitAfter(text, sep)
	if n := len(parts); n > 0 && parts[n-1] == "" {
		parts = parts[:n-1]
	}
	return parts
}

func (c *Chunker) buildChunks(doc Document, pieces []string, ct ContentType, strategy Strategy) []Chunk {
	chunks := make([]Chunk, 0, len(pieces))
	offset := 0
	for i, piece := range pieces {
		chunks = append(chunks, Chunk{
			ID:          ChunkID(doc.ID, i),
			Text:        piece,
			StartOffset: offset,
			EndOffset:   offset + len(piece),
			Index:       i,
			TokenCount:  c.count(piece),
			Metadata:    chunkMetadata(doc, ct, strategy),
		})
		offset += len(piece)
	}
	return chunks
}

// windowChunks implements the token-window strategy. A token is a
// whitespace-delimited segment including its trailing whitespace, so every
// window is an exact substring of the source.
func (c *Chunker) windowChunks(doc Document, ct ContentType, strategy Strategy) []Chunk {
	toks, offsets := splitWindowTokens(doc.Text)
	if len(toks) == 0 {
		return nil
	}

	step := c.targetTokens - c.overlapTokens
	if step < 1 {
		step = 1
	}

	var chunks []Chunk
	for start, i := 0, 0; start < len(toks); start, i = start+step, i+1 {
		end := start + c.targetTokens
		if end > len(toks) {
			end = len(toks)
		}
		startOff := offsets[start]
		endOff := offsets[end]
		text := doc.Text[startOff:endOff]
		chunks = append(chunks, Chunk{
			ID:          ChunkID(doc.ID, i),
			Text:        text,
			StartOffset: startOff,
			EndOffset:   endOff,
			Index:       i,
			TokenCount:  end - start,
			Metadata:    chunkMetadata(doc, ct, strategy),
		})
		if end == len(toks) {
			break
		}
	}
	return chunks
}

// splitWindowTokens cuts text at every space→non-space boundary. Returns
// the segments and a table of len(segments)+1 byte offsets.
func splitWindowTokens(text string) ([]string, []int) {
	var toks []string
	var offsets []int
	start := 0
	inSpace := false
	for i, r := range text {
		isSpace := unicode.IsSpace(r)
		if inSpace && !isSpace && i > start {
			toks = append(toks, text[start:i])
			offsets = append(offsets, start)
			start = i
		}
		inSpace = isSpace
	}
	if start < len(text) {
		toks = append(toks, text[start:])
		offsets = append(offsets, start)
	}
	offsets = append(offsets, len(text))
	return toks, offsets
}

// mergeSmall merges adjacent chunks below the minimum size. The earliest
// chunk's ID and index survive; the span widens to the union. Pieces carry
// their boundary separators, so direct concatenation preserves the source.
func (c *Chunker) mergeSmall(chunks []Chunk) []Chunk {
	if len(chunks) == 0 || c.minChunkTokens <= 0 {
		return chunks
	}

	var merged []Chunk
	current := chunks[0]
	for _, next := range chunks[1:] {
		if current.TokenCount < c.minChunkTokens {
			current.Text += next.Text
			current.EndOffset = next.EndOffset
			current.TokenCount = c.count(current.Text)
			continue
		}
		merged = append(merged, current)
		current = next
	}
	merged = append(merged, current)
	return merged
}

func chunkMetadata(doc Document, ct ContentType, strategy Strategy) map[string]any {
	md := make(map[string]any, len(doc.Metadata)+3)
	for k, v := range doc.Metadata {
		md[k] = v
	}
	md["document_id"] = doc.ID
	md["content_type"] = string(ct)
	md["strategy"] = string(strategy)
	return md
}
