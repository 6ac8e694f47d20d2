// Package chunker implements component C of the ingestion pipeline: it
// walks a structured document and emits an ordered sequence of
// overlap-windowed chunks sized against a character budget, keeping code
// fences and tables intact wherever they fit.
package chunker

import (
	"strings"

	"ragcore/internal/apperr"
	"ragcore/internal/documents"
	"ragcore/internal/util"
)

// Chunk is one windowed slice of a document, ready to embed and store.
type Chunk struct {
	ChunkOrder     int
	Text           string
	TokenCount     int
	CharacterCount int
}

// Options configures the walk. CharacterLimit bounds how large a window
// grows before it is emitted (the `ChunkCharacterLimit` setting).
// OverlapTokens is how many trailing tokens of an emitted chunk re-open the
// next window (the `ChunkOverlap` setting, expressed in tokens so overlap
// stays meaningful regardless of how wide a line is). MaxCodeFenceSize
// bounds how large a single code fence's body can be before it is split on
// blank lines (the `MaxCodeFenceSize` setting).
type Options struct {
	CharacterLimit   int
	OverlapTokens    int
	MaxCodeFenceSize int
}

// Chunk walks doc's elements in order and returns the windowed chunks.
// Returns an apperr ValidationFailed error if the document has no text to
// chunk.
func Chunk(doc *documents.Document, opt Options) ([]Chunk, error) {
	blocks := buildBlocks(doc, opt.MaxCodeFenceSize, opt.CharacterLimit)
	if len(blocks) == 0 {
		return nil, apperr.New(apperr.ValidationFailed, "document contains no text to chunk")
	}

	w := &window{limit: opt.CharacterLimit, overlapTokens: opt.OverlapTokens}
	for _, b := range blocks {
		w.add(b)
	}
	chunks := w.finish()
	if len(chunks) == 0 {
		return nil, apperr.New(apperr.ValidationFailed, "document contains no text to chunk")
	}
	return chunks, nil
}

type block struct {
	text      string
	isHeading bool
}

// window accumulates blocks into the current chunk and emits it once
// adding the next block would overflow CharacterLimit.
type window struct {
	limit         int
	overlapTokens int

	blocks []block
	out    []Chunk
}

func (w *window) add(b block) {
	tentative := w.render(append(w.blocks, b))
	if len(w.blocks) > 0 && len(tentative) > w.limit {
		carried := popTrailingHeadings(&w.blocks)
		w.flush()
		w.seedOverlap()
		w.blocks = append(w.blocks, carried...)
	}
	w.blocks = append(w.blocks, b)
}

func (w *window) render(blocks []block) string {
	parts := make([]string, len(blocks))
	for i, b := range blocks {
		parts[i] = b.text
	}
	return strings.Join(parts, "\n\n")
}

func (w *window) flush() {
	if len(w.blocks) == 0 {
		return
	}
	text := w.render(w.blocks)
	w.out = append(w.out, Chunk{
		ChunkOrder:     len(w.out),
		Text:           text,
		TokenCount:     util.CountTokens(text),
		CharacterCount: len(text),
	})
	w.blocks = nil
}

// seedOverlap re-opens the next window with the last overlapTokens tokens
// of the chunk just flushed, so consecutive chunks share context.
func (w *window) seedOverlap() {
	if w.overlapTokens <= 0 || len(w.out) == 0 {
		return
	}
	prev := w.out[len(w.out)-1].Text
	tokens := util.Tokenize(prev)
	if len(tokens) == 0 {
		return
	}
	start := len(tokens) - w.overlapTokens
	if start < 0 {
		start = 0
	}
	seed := strings.Join(tokens[start:], " ")
	if seed == "" {
		return
	}
	w.blocks = append(w.blocks, block{text: seed})
}

func (w *window) finish() []Chunk {
	w.flush()
	return w.out
}

// popTrailingHeadings removes and returns any heading blocks at the tail of
// blocks that have no following content yet, so a flush never ends a chunk
// on an orphaned heading; they are carried into the next window instead.
func popTrailingHeadings(blocks *[]block) []block {
	b := *blocks
	i := len(b)
	for i > 0 && b[i-1].isHeading {
		i--
	}
	carried := append([]block(nil), b[i:]...)
	*blocks = b[:i]
	return carried
}
