// Package documents parses heterogeneous uploaded files (PDF, DOCX,
// Markdown, plain text) into one common structured document model, per
// component B of the ingestion pipeline.
package documents

import "fmt"

// ElementKind tags one node of a parsed document.
type ElementKind int

const (
	KindHeading ElementKind = iota
	KindParagraph
	KindList
	KindTable
	KindCodeBlock
	KindQuote
)

// Element is one node of a structured document. Only the fields relevant to
// Kind are populated.
type Element struct {
	Kind ElementKind

	// Heading
	Level int
	Text  string

	// List
	Ordered bool
	Items   []string

	// Table
	Rows [][]string

	// CodeBlock
	Language string
	Code     string

	// Quote
	Quote string
}

// Document is the common structured output every parser produces.
type Document struct {
	SourceName string
	Elements   []Element
}

// ParseErrorKind classifies why a parser could not produce a Document.
type ParseErrorKind int

const (
	UnsupportedFormat ParseErrorKind = iota
	CorruptInput
	Empty
	TooLarge
)

func (k ParseErrorKind) String() string {
	switch k {
	case UnsupportedFormat:
		return "UnsupportedFormat"
	case CorruptInput:
		return "CorruptInput"
	case Empty:
		return "Empty"
	case TooLarge:
		return "TooLarge"
	default:
		return "Unknown"
	}
}

// ParseError carries a classified failure. Parsers return this instead of
// panicking or returning a bare error so the ingestion pipeline can decide
// fast-fail vs. a document row marked Error.
type ParseError struct {
	Kind    ParseErrorKind
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("documents: %s: %s", e.Kind, e.Message)
}

// PlainText renders every element's text, in order: one line per heading,
// paragraph, quote, code block and list item, with table cells written
// space-separated.
func (d *Document) PlainText() string {
	var out []byte
	for _, el := range d.Elements {
		switch el.Kind {
		case KindHeading:
			out = append(out, el.Text...)
		case KindParagraph:
			out = append(out, el.Text...)
		case KindQuote:
			out = append(out, el.Quote...)
		case KindCodeBlock:
			out = append(out, el.Code...)
		case KindList:
			for _, it := range el.Items {
				out = append(out, it...)
				out = append(out, '\n')
			}
			continue
		case KindTable:
			for _, row := range el.Rows {
				for _, cell := range row {
					out = append(out, cell...)
					out = append(out, ' ')
				}
			}
			continue
		}
		out = append(out, '\n')
	}
	return string(out)
}
