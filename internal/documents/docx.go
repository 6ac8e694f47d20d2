package documents

import (
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/nguyenthenguyen/docx"
)

var paragraphRe = regexp.MustCompile(`(?s)<w:p\b.*?</w:p>`)
var pStyleRe = regexp.MustCompile(`<w:pStyle w:val="([^"]+)"`)
var textRunRe = regexp.MustCompile(`(?s)<w:t[^>]*>(.*?)</w:t>`)
var headingStyleRe = regexp.MustCompile(`^Heading(\d)$`)

// DOCXParser reads Word documents via their raw document.xml and maps
// paragraph style names (Heading1..Heading6) to heading levels; everything
// else becomes a paragraph element.
type DOCXParser struct{}

func (p *DOCXParser) Parse(sourceName string, r io.Reader) (*Document, error) {
	tmp, err := os.CreateTemp("", "ragcore-docx-*.docx")
	if err != nil {
		return nil, &ParseError{Kind: CorruptInput, Message: "create temp file: " + err.Error()}
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	if _, err := io.Copy(tmp, r); err != nil {
		return nil, &ParseError{Kind: CorruptInput, Message: "buffer docx: " + err.Error()}
	}

	d, err := docx.ReadDocxFile(tmp.Name())
	if err != nil {
		return nil, &ParseError{Kind: CorruptInput, Message: "open docx: " + err.Error()}
	}
	defer d.Close()

	content := d.Editable().GetContent()

	out := &Document{SourceName: sourceName}
	for _, para := range paragraphRe.FindAllString(content, -1) {
		text := extractParagraphText(para)
		if strings.TrimSpace(text) == "" {
			continue
		}
		if level, ok := headingLevel(para); ok {
			out.Elements = append(out.Elements, Element{Kind: KindHeading, Level: level, Text: text})
			continue
		}
		out.Elements = append(out.Elements, Element{Kind: KindParagraph, Text: text})
	}

	if len(out.Elements) == 0 {
		return nil, &ParseError{Kind: Empty, Message: "no text extracted from docx"}
	}
	return out, nil
}

func extractParagraphText(paraXML string) string {
	var sb strings.Builder
	for _, m := range textRunRe.FindAllStringSubmatch(paraXML, -1) {
		sb.WriteString(m[1])
	}
	return strings.TrimSpace(sb.String())
}

func headingLevel(paraXML string) (int, bool) {
	m := pStyleRe.FindStringSubmatch(paraXML)
	if m == nil {
		return 0, false
	}
	hm := headingStyleRe.FindStringSubmatch(m[1])
	if hm == nil {
		return 0, false
	}
	level := int(hm[1][0] - '0')
	if level < 1 || level > 6 {
		return 0, false
	}
	return level, true
}
