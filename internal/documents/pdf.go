package documents

import (
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/gen2brain/go-fitz"
)

var titleCaseWordRe = regexp.MustCompile(`^[A-Z][a-zA-Z0-9'-]*$`)

// PDFParser extracts page text via MuPDF bindings and reconstructs a
// heading hierarchy heuristically. go-fitz's Text(page) call returns plain
// text per page with no per-run font-size metadata, so headings are
// inferred from line shape (short, title-cased, no trailing punctuation)
// rather than font-size clustering; a line that cannot be classified as a
// heading becomes a paragraph, and when no line of the whole document is
// classified as a heading, the synthetic root heading "Untitled" is
// prepended.
type PDFParser struct{}

func (p *PDFParser) Parse(sourceName string, r io.Reader) (*Document, error) {
	tmp, err := os.CreateTemp("", "ragcore-pdf-*.pdf")
	if err != nil {
		return nil, &ParseError{Kind: CorruptInput, Message: "create temp file: " + err.Error()}
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	if _, err := io.Copy(tmp, r); err != nil {
		return nil, &ParseError{Kind: CorruptInput, Message: "buffer pdf: " + err.Error()}
	}

	doc, err := fitz.New(tmp.Name())
	if err != nil {
		return nil, &ParseError{Kind: CorruptInput, Message: fmt.Sprintf("open pdf: %v", err)}
	}
	defer doc.Close()

	out := &Document{SourceName: sourceName}
	sawHeading := false
	numPages := doc.NumPage()
	for i := 0; i < numPages; i++ {
		text, err := doc.Text(i)
		if err != nil {
			continue
		}
		for _, line := range strings.Split(text, "\n") {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			if level, ok := inferHeadingLevel(line); ok {
				out.Elements = append(out.Elements, Element{Kind: KindHeading, Level: level, Text: line})
				sawHeading = true
				continue
			}
			out.Elements = append(out.Elements, Element{Kind: KindParagraph, Text: line})
		}
	}

	if !sawHeading && len(out.Elements) > 0 {
		rooted := []Element{{Kind: KindHeading, Level: 1, Text: "Untitled"}}
		out.Elements = append(rooted, out.Elements...)
	}

	if len(out.Elements) == 0 {
		return nil, &ParseError{Kind: Empty, Message: "no text extracted from pdf"}
	}
	return out, nil
}

// inferHeadingLevel approximates font-size clustering: a short, title-cased
// line with no trailing sentence punctuation reads as a heading; its
// relative word count stands in for heading depth (shorter -> higher
// level) since no font metrics are available.
func inferHeadingLevel(line string) (int, bool) {
	if len(line) == 0 || len(line) > 80 {
		return 0, false
	}
	if strings.HasSuffix(line, ".") || strings.HasSuffix(line, ",") || strings.HasSuffix(line, ";") {
		return 0, false
	}
	words := strings.Fields(line)
	if len(words) == 0 || len(words) > 10 {
		return 0, false
	}
	titleCased := 0
	for _, w := range words {
		if titleCaseWordRe.MatchString(w) {
			titleCased++
		}
	}
	if titleCased < (len(words)+1)/2 {
		return 0, false
	}
	switch {
	case len(words) <= 3:
		return 1, true
	case len(words) <= 6:
		return 2, true
	default:
		return 3, true
	}
}
