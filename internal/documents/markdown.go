package documents

import (
	"bufio"
	"io"
	"regexp"
	"strings"
)

var headingRe = regexp.MustCompile(`^(#{1,6})\s+(.*)$`)
var orderedItemRe = regexp.MustCompile(`^\s*\d+[.)]\s+(.*)$`)
var unorderedItemRe = regexp.MustCompile(`^\s*[-*+]\s+(.*)$`)
var fenceRe = regexp.MustCompile("^```\\s*([a-zA-Z0-9_+-]*)\\s*$")

// MarkdownParser preserves code fences verbatim with their language tag and
// splits the remaining text into headings, paragraphs, lists, and tables.
type MarkdownParser struct{}

func (p *MarkdownParser) Parse(sourceName string, r io.Reader) (*Document, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	doc := &Document{SourceName: sourceName}
	var para []string
	var list []string
	listOrdered := false

	flushPara := func() {
		if len(para) == 0 {
			return
		}
		doc.Elements = append(doc.Elements, Element{Kind: KindParagraph, Text: strings.Join(para, "\n")})
		para = nil
	}
	flushList := func() {
		if len(list) == 0 {
			return
		}
		doc.Elements = append(doc.Elements, Element{Kind: KindList, Ordered: listOrdered, Items: list})
		list = nil
	}

	var tableRows [][]string
	flushTable := func() {
		if len(tableRows) == 0 {
			return
		}
		doc.Elements = append(doc.Elements, Element{Kind: KindTable, Rows: tableRows})
		tableRows = nil
	}

	for scanner.Scan() {
		line := scanner.Text()

		if m := fenceRe.FindStringSubmatch(line); m != nil {
			flushPara()
			flushList()
			flushTable()
			lang := m[1]
			var code []string
			for scanner.Scan() {
				inner := scanner.Text()
				if strings.TrimSpace(inner) == "```" {
					break
				}
				code = append(code, inner)
			}
			doc.Elements = append(doc.Elements, Element{Kind: KindCodeBlock, Language: lang, Code: strings.Join(code, "\n")})
			continue
		}

		if m := headingRe.FindStringSubmatch(line); m != nil {
			flushPara()
			flushList()
			flushTable()
			doc.Elements = append(doc.Elements, Element{Kind: KindHeading, Level: len(m[1]), Text: strings.TrimSpace(m[2])})
			continue
		}

		if strings.HasPrefix(strings.TrimSpace(line), ">") {
			flushPara()
			flushList()
			flushTable()
			doc.Elements = append(doc.Elements, Element{Kind: KindQuote, Quote: strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), ">"))})
			continue
		}

		if strings.Contains(line, "|") && strings.Count(line, "|") >= 2 {
			flushPara()
			flushList()
			if !isTableSeparator(line) {
				tableRows = append(tableRows, splitTableRow(line))
			}
			continue
		}
		flushTable()

		if m := orderedItemRe.FindStringSubmatch(line); m != nil {
			flushPara()
			if !listOrdered {
				flushList()
			}
			listOrdered = true
			list = append(list, strings.TrimSpace(m[1]))
			continue
		}
		if m := unorderedItemRe.FindStringSubmatch(line); m != nil {
			flushPara()
			if listOrdered {
				flushList()
			}
			listOrdered = false
			list = append(list, strings.TrimSpace(m[1]))
			continue
		}
		flushList()

		if strings.TrimSpace(line) == "" {
			flushPara()
			continue
		}
		para = append(para, line)
	}
	flushPara()
	flushList()
	flushTable()

	if err := scanner.Err(); err != nil {
		return nil, &ParseError{Kind: CorruptInput, Message: err.Error()}
	}
	if len(doc.Elements) == 0 {
		return nil, &ParseError{Kind: Empty, Message: "document has no content"}
	}
	return doc, nil
}

func isTableSeparator(line string) bool {
	trimmed := strings.TrimSpace(line)
	for _, r := range trimmed {
		switch r {
		case '|', '-', ':', ' ':
		default:
			return false
		}
	}
	return strings.Contains(trimmed, "-")
}

func splitTableRow(line string) []string {
	trimmed := strings.Trim(strings.TrimSpace(line), "|")
	parts := strings.Split(trimmed, "|")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}
