package telegram

import (
	"strings"
	"unicode/utf16"
)

// MaxMessageLength is the Bot API limit for one text message, counted in
// UTF-16 code units.
const MaxMessageLength = 4096

// splitMessage cuts text into parts of at most limit UTF-16 units. Parts
// break after a newline where possible; a line longer than limit is cut
// between runes. Text within the limit is returned unchanged.
func splitMessage(text string, limit int) []string {
	if utf16Len(text) <= limit {
		return []string{text}
	}

	var (
		parts []string
		cur   strings.Builder
		n     int
	)
	flush := func() {
		if part := strings.TrimSuffix(cur.String(), "\n"); part != "" {
			parts = append(parts, part)
		}
		cur.Reset()
		n = 0
	}

	for _, line := range strings.SplitAfter(text, "\n") {
		size := utf16Len(line)
		if n+size <= limit {
			cur.WriteString(line)
			n += size
			continue
		}
		flush()
		for _, r := range line {
			units := utf16.RuneLen(r)
			if n+units > limit {
				flush()
			}
			cur.WriteRune(r)
			n += units
		}
	}
	flush()
	return parts
}

func utf16Len(s string) int {
	n := 0
	for _, r := range s {
		n += utf16.RuneLen(r)
	}
	return n
}
