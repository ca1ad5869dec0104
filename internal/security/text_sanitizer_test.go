package security

import (
	"strings"
	"testing"
)

// TestSanitizeText_StripsTags はタグが除去されテキストだけが残ることを検証する。
func TestSanitizeText_StripsTags(t *testing.T) {
	sanitizer := NewTextSanitizer()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"プレーンテキスト", "Club Nocturne", "Club Nocturne"},
		{"日本語", "クラブ 夜想曲", "クラブ 夜想曲"},
		{"太字タグ", "<b>Club</b> Nocturne", "Club Nocturne"},
		{"前後の空白", "  Club Nocturne \n", "Club Nocturne"},
		{"空文字列", "", ""},
		{"タグのみ", "<p></p>", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sanitizer.SanitizeText(tt.input); got != tt.want {
				t.Errorf("SanitizeText(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

// TestSanitizeText_XSSPayloads は典型的なXSSペイロードが無害化されることを検証する。
func TestSanitizeText_XSSPayloads(t *testing.T) {
	sanitizer := NewTextSanitizer()

	tests := []struct {
		name       string
		input      string
		wantAbsent []string
	}{
		{
			name:       "scriptタグ",
			input:      `Club<script>alert('xss')</script>`,
			wantAbsent: []string{"<script", "alert"},
		},
		{
			name:       "SVG onload",
			input:      `<svg onload="alert('xss')">Club</svg>`,
			wantAbsent: []string{"<svg", "onload"},
		},
		{
			name:       "img onerror",
			input:      `<img src="x" onerror="alert('xss')">Club`,
			wantAbsent: []string{"<img", "onerror"},
		},
		{
			name:       "javascript URI",
			input:      `<a href="javascript:alert('xss')">Club</a>`,
			wantAbsent: []string{"javascript:", "<a"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sanitizer.SanitizeText(tt.input)
			for _, absent := range tt.wantAbsent {
				if strings.Contains(strings.ToLower(got), strings.ToLower(absent)) {
					t.Errorf("SanitizeText(%q) = %q, should NOT contain %q", tt.input, got, absent)
				}
			}
		})
	}
}

// TestSanitizeText_Idempotent は2回適用しても結果が変わらないことを検証する。
func TestSanitizeText_Idempotent(t *testing.T) {
	sanitizer := NewTextSanitizer()

	once := sanitizer.SanitizeText("<i>Club</i> Nocturne")
	twice := sanitizer.SanitizeText(once)
	if once != twice {
		t.Errorf("not idempotent: %q -> %q", once, twice)
	}
}

// TestTextSanitizerInterface はTextSanitizerインターフェースの適合を検証する。
func TestTextSanitizerInterface(t *testing.T) {
	var _ TextSanitizer = NewTextSanitizer()
}
