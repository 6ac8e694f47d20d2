package documents

import (
	"bufio"
	"io"
	"strings"
)

// TextParser emits one paragraph per blank-line-separated block.
type TextParser struct{}

func (p *TextParser) Parse(sourceName string, r io.Reader) (*Document, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	doc := &Document{SourceName: sourceName}
	var block []string
	flush := func() {
		if len(block) == 0 {
			return
		}
		doc.Elements = append(doc.Elements, Element{Kind: KindParagraph, Text: strings.Join(block, "\n")})
		block = nil
	}

	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			flush()
			continue
		}
		block = append(block, line)
	}
	flush()

	if err := scanner.Err(); err != nil {
		return nil, &ParseError{Kind: CorruptInput, Message: err.Error()}
	}
	if len(doc.Elements) == 0 {
		return nil, &ParseError{Kind: Empty, Message: "document has no content"}
	}
	return doc, nil
}
