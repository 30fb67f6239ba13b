package notify

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestPreview(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"short passes through", "hey there", "hey there"},
		{"exactly at limit", strings.Repeat("a", 120), strings.Repeat("a", 120)},
		{"over limit ellipsized", strings.Repeat("a", 121), strings.Repeat("a", 119) + "…"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Preview(tt.content)
			if got != tt.want {
				t.Errorf("Preview() = %q, want %q", got, tt.want)
			}
			if utf8.RuneCountInString(got) > 120 {
				t.Errorf("preview exceeds limit: %d runes", utf8.RuneCountInString(got))
			}
		})
	}
}

func TestPreviewDoesNotSplitRunes(t *testing.T) {
	content := strings.Repeat("é", 200)
	got := Preview(content)
	if !utf8.ValidString(got) {
		t.Fatalf("preview is not valid UTF-8: %q", got)
	}
	if utf8.RuneCountInString(got) != 120 {
		t.Errorf("preview = %d runes, want 120", utf8.RuneCountInString(got))
	}
	if !strings.HasSuffix(got, "…") {
		t.Error("truncated preview missing ellipsis")
	}
}
