package chunker

import (
	"fmt"
	"strings"

	"ragcore/internal/documents"
)

// buildBlocks renders each document element into one or more blocks,
// splitting oversized code fences and tables before windowing ever sees
// them so the window's only job is packing, not structural splitting.
func buildBlocks(doc *documents.Document, maxFenceSize, characterLimit int) []block {
	var out []block
	for _, el := range doc.Elements {
		switch el.Kind {
		case documents.KindHeading:
			out = append(out, block{text: el.Text, isHeading: true})
		case documents.KindParagraph:
			out = append(out, block{text: el.Text})
		case documents.KindQuote:
			out = append(out, block{text: "> " + el.Quote})
		case documents.KindList:
			out = append(out, block{text: renderList(el)})
		case documents.KindCodeBlock:
			out = append(out, renderCodeBlocks(el, maxFenceSize)...)
		case documents.KindTable:
			out = append(out, renderTableBlocks(el, characterLimit)...)
		}
	}
	return out
}

func renderList(el documents.Element) string {
	lines := make([]string, len(el.Items))
	for i, item := range el.Items {
		if el.Ordered {
			lines[i] = fmt.Sprintf("%d. %s", i+1, item)
		} else {
			lines[i] = "- " + item
		}
	}
	return strings.Join(lines, "\n")
}

// renderCodeBlocks keeps a fence atomic when its body fits under
// maxFenceSize; otherwise it splits the body on blank lines, greedily
// packing consecutive segments under the cap, and re-wraps every piece
// with the original opening/closing fence markers and language tag.
func renderCodeBlocks(el documents.Element, maxFenceSize int) []block {
	if maxFenceSize <= 0 || len(el.Code) <= maxFenceSize {
		return []block{{text: fence(el.Language, el.Code)}}
	}

	segments := strings.Split(el.Code, "\n\n")
	var pieces []string
	var current string
	for _, seg := range segments {
		candidate := seg
		if current != "" {
			candidate = current + "\n\n" + seg
		}
		if current != "" && len(candidate) > maxFenceSize {
			pieces = append(pieces, current)
			current = seg
			continue
		}
		current = candidate
	}
	if current != "" {
		pieces = append(pieces, current)
	}

	out := make([]block, len(pieces))
	for i, p := range pieces {
		out[i] = block{text: fence(el.Language, p)}
	}
	return out
}

func fence(lang, body string) string {
	return "```" + lang + "\n" + body + "\n```"
}

// renderTableBlocks keeps a table atomic if its full rendering fits under
// characterLimit; otherwise it splits the body rows into row groups, each
// repeating the header row, so every group stays independently readable.
func renderTableBlocks(el documents.Element, characterLimit int) []block {
	full := renderRows(el.Rows)
	if characterLimit <= 0 || len(full) <= characterLimit || len(el.Rows) < 2 {
		return []block{{text: full}}
	}

	header := el.Rows[0]
	body := el.Rows[1:]
	headerText := renderRows([][]string{header})

	var out []block
	var group [][]string
	flush := func() {
		if len(group) == 0 {
			return
		}
		out = append(out, block{text: headerText + "\n" + renderRows(group)})
		group = nil
	}
	for _, row := range body {
		candidate := append(append([][]string{}, group...), row)
		if len(group) > 0 && len(headerText)+1+len(renderRows(candidate)) > characterLimit {
			flush()
			candidate = [][]string{row}
		}
		group = candidate
	}
	flush()
	if len(out) == 0 {
		return []block{{text: full}}
	}
	return out
}

func renderRows(rows [][]string) string {
	lines := make([]string, len(rows))
	for i, row := range rows {
		lines[i] = strings.Join(row, " | ")
	}
	return strings.Join(lines, "\n")
}
