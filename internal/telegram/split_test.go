package telegram

import (
	"slices"
	"strings"
	"testing"
)

func TestSplitMessage(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		limit int
		want  []string
	}{
		{"within limit", "r1\nr2\n-- end --", 20, []string{"r1\nr2\n-- end --"}},
		{"exactly at limit", "abcd", 4, []string{"abcd"}},
		{"breaks after newline", "r1\nr2\nr3\n-- end --", 9, []string{"r1\nr2\nr3", "-- end --"}},
		{"long line cut between runes", "abcdefghij", 4, []string{"abcd", "efgh", "ij"}},
		{"surrogate pairs count double", "😀😀😀", 4, []string{"😀😀", "😀"}},
		{"multibyte runes stay whole", "äöüß", 3, []string{"äöü", "ß"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := splitMessage(tt.text, tt.limit)
			if !slices.Equal(got, tt.want) {
				t.Errorf("splitMessage(%q, %d) = %q, want %q", tt.text, tt.limit, got, tt.want)
			}
		})
	}
}

func TestSplitMessagePartsWithinLimit(t *testing.T) {
	var b strings.Builder
	for i := range 2000 {
		b.WriteString("reader-")
		b.WriteString(strings.Repeat("x", i%7))
		b.WriteByte('\n')
	}
	b.WriteString("-- end --")
	text := b.String()

	parts := splitMessage(text, MaxMessageLength)
	if len(parts) < 2 {
		t.Fatalf("got %d parts, want several", len(parts))
	}
	for i, p := range parts {
		if n := utf16Len(p); n > MaxMessageLength {
			t.Errorf("part %d has %d units, over the limit", i, n)
		}
	}
	if joined := strings.Join(parts, "\n"); joined != text {
		t.Error("joining the parts with newlines does not restore the text")
	}
}
