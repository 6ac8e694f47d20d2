package chat

import (
	"regexp"
	"strings"
)

var (
	codeFenceRe = regexp.MustCompile("(?s)```.*?```")
	headingRe   = regexp.MustCompile(`(?m)^#{1,6}\s+`)
	boldRe      = regexp.MustCompile(`\*\*([^*]+)\*\*`)
	italicRe    = regexp.MustCompile(`\*([^*]+)\*`)
	inlineCode  = regexp.MustCompile("`([^`]+)`")
	linkRe      = regexp.MustCompile(`\[([^\]]+)\]\([^)]+\)`)
	bulletRe    = regexp.MustCompile(`(?m)^[\t ]*[-*+]\s+`)
)

// stripMarkdown removes common markdown formatting from text while leaving
// fenced code blocks untouched, per §4.I step 6.
func stripMarkdown(text string) string {
	var fences []string
	placeholder := text
	placeholder = codeFenceRe.ReplaceAllStringFunc(placeholder, func(block string) string {
		fences = append(fences, block)
		return "\x00FENCE\x00"
	})

	placeholder = headingRe.ReplaceAllString(placeholder, "")
	placeholder = bulletRe.ReplaceAllString(placeholder, "")
	placeholder = linkRe.ReplaceAllString(placeholder, "$1")
	placeholder = boldRe.ReplaceAllString(placeholder, "$1")
	placeholder = italicRe.ReplaceAllString(placeholder, "$1")
	placeholder = inlineCode.ReplaceAllString(placeholder, "$1")

	for _, fence := range fences {
		placeholder = strings.Replace(placeholder, "\x00FENCE\x00", fence, 1)
	}
	return placeholder
}
