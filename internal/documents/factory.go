package documents

import (
	"io"
	"strings"
)

// Parser consumes a readable byte stream and returns a structured Document.
// Parse errors do not panic; they are returned as *ParseError.
type Parser interface {
	Parse(sourceName string, r io.Reader) (*Document, error)
}

// Factory resolves a Parser by file extension.
type Factory struct {
	byExt map[string]Parser
}

// NewFactory registers the four built-in parsers named in §4.B.
func NewFactory() *Factory {
	return &Factory{
		byExt: map[string]Parser{
			".md":   &MarkdownParser{},
			".txt":  &TextParser{},
			".pdf":  &PDFParser{},
			".docx": &DOCXParser{},
		},
	}
}

// Resolve returns the parser for a file extension (case-insensitive,
// leading dot optional). Returns a *ParseError{Kind: UnsupportedFormat} if
// no parser is registered for ext.
func (f *Factory) Resolve(ext string) (Parser, error) {
	ext = strings.ToLower(ext)
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	p, ok := f.byExt[ext]
	if !ok {
		return nil, &ParseError{Kind: UnsupportedFormat, Message: "no parser registered for extension " + ext}
	}
	return p, nil
}
