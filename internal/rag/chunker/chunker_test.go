package chunker

import (
	"strings"
	"testing"

	"ragcore/internal/documents"
)

func paragraphDoc(paragraphs ...string) *documents.Document {
	doc := &documents.Document{SourceName: "test.md"}
	for _, p := range paragraphs {
		doc.Elements = append(doc.Elements, documents.Element{Kind: documents.KindParagraph, Text: p})
	}
	return doc
}

func TestChunkEmptyDocumentReturnsError(t *testing.T) {
	_, err := Chunk(&documents.Document{}, Options{CharacterLimit: 100})
	if err == nil {
		t.Fatal("expected error for empty document")
	}
}

func TestChunkSplitsOnCharacterLimit(t *testing.T) {
	doc := paragraphDoc(strings.Repeat("a", 50), strings.Repeat("b", 50), strings.Repeat("c", 50))
	chunks, err := Chunk(doc, Options{CharacterLimit: 60})
	if err != nil {
		t.Fatalf("chunk: %v", err)
	}
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if c.ChunkOrder != i {
			t.Fatalf("chunk %d has order %d", i, c.ChunkOrder)
		}
		if c.CharacterCount != len(c.Text) {
			t.Fatalf("chunk %d character count mismatch", i)
		}
	}
}

func TestChunkHeadingBindsForward(t *testing.T) {
	doc := &documents.Document{Elements: []documents.Element{
		{Kind: documents.KindParagraph, Text: strings.Repeat("x", 40)},
		{Kind: documents.KindHeading, Level: 2, Text: "Orphan Heading"},
		{Kind: documents.KindParagraph, Text: strings.Repeat("y", 40)},
	}}
	chunks, err := Chunk(doc, Options{CharacterLimit: 50})
	if err != nil {
		t.Fatalf("chunk: %v", err)
	}
	for _, c := range chunks {
		trimmed := strings.TrimSpace(c.Text)
		if strings.HasSuffix(trimmed, "Orphan Heading") {
			t.Fatalf("chunk ended on an orphaned heading: %q", c.Text)
		}
	}
	found := false
	for _, c := range chunks {
		if strings.Contains(c.Text, "Orphan Heading") && strings.Contains(c.Text, strings.Repeat("y", 40)) {
			found = true
		}
	}
	if !found {
		t.Fatal("expected the heading to be carried into the chunk with its following content")
	}
}

func TestChunkOverlapReincludesTrailingTokens(t *testing.T) {
	words := make([]string, 30)
	for i := range words {
		words[i] = "word"
	}
	doc := paragraphDoc(strings.Join(words[:15], " "), strings.Join(words[15:], " "))
	chunks, err := Chunk(doc, Options{CharacterLimit: 70, OverlapTokens: 5})
	if err != nil {
		t.Fatalf("chunk: %v", err)
	}
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	if !strings.HasPrefix(strings.TrimSpace(chunks[1].Text), "word") {
		t.Fatalf("expected second chunk to start with overlapped tokens, got %q", chunks[1].Text)
	}
}

func TestChunkCodeFenceAtomicAtExactCap(t *testing.T) {
	code := strings.Repeat("x", 40)
	doc := &documents.Document{Elements: []documents.Element{
		{Kind: documents.KindCodeBlock, Language: "go", Code: code},
	}}
	chunks, err := Chunk(doc, Options{CharacterLimit: 1000, MaxCodeFenceSize: 40})
	if err != nil {
		t.Fatalf("chunk: %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("expected fence at exactly the cap to stay atomic, got %d chunks", len(chunks))
	}
	if !strings.Contains(chunks[0].Text, "```go") || !strings.Contains(chunks[0].Text, code) {
		t.Fatalf("fence markers or body missing: %q", chunks[0].Text)
	}
}

func TestChunkCodeFenceSplitsOneByteOverCap(t *testing.T) {
	code := strings.Repeat("x", 20) + "\n\n" + strings.Repeat("y", 21)
	doc := &documents.Document{Elements: []documents.Element{
		{Kind: documents.KindCodeBlock, Language: "go", Code: code},
	}}
	chunks, err := Chunk(doc, Options{CharacterLimit: 1000, MaxCodeFenceSize: len(code) - 1})
	if err != nil {
		t.Fatalf("chunk: %v", err)
	}
	var all strings.Builder
	for _, c := range chunks {
		all.WriteString(c.Text)
	}
	if n := strings.Count(all.String(), "```go"); n != 2 {
		t.Fatalf("expected a split into two fenced pieces when the fence is one byte over the cap, got %d", n)
	}
	for _, c := range chunks {
		if !strings.Contains(c.Text, "```go") || !strings.HasSuffix(strings.TrimSpace(c.Text), "```") {
			t.Fatalf("split piece missing fence markers: %q", c.Text)
		}
	}
}

func TestChunkTableSplitsWithRepeatedHeader(t *testing.T) {
	rows := [][]string{{"Name", "Value"}}
	for i := 0; i < 20; i++ {
		rows = append(rows, []string{"row", strings.Repeat("v", 10)})
	}
	doc := &documents.Document{Elements: []documents.Element{
		{Kind: documents.KindTable, Rows: rows},
	}}
	chunks, err := Chunk(doc, Options{CharacterLimit: 120})
	if err != nil {
		t.Fatalf("chunk: %v", err)
	}
	if len(chunks) < 2 {
		t.Fatalf("expected the table to split, got %d chunks", len(chunks))
	}
	for _, c := range chunks {
		if !strings.Contains(c.Text, "Name | Value") {
			t.Fatalf("expected header repeated in every group, got %q", c.Text)
		}
	}
}
