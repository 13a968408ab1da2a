package export

import (
	"html/template"
	"strings"
	"testing"
	"time"
)

func TestContentToHTML(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "empty content",
			input:    "",
			expected: "",
		},
		{
			name:     "single paragraph",
			input:    "Hello world",
			expected: "<p>Hello world</p>",
		},
		{
			name:     "blank line splits paragraphs",
			input:    "First block\n\nSecond block",
			expected: "<p>First block</p>\n<p>Second block</p>",
		},
		{
			name:     "single newline becomes br",
			input:    "line one\nline two",
			expected: "<p>line one<br>line two</p>",
		},
		{
			name:     "html is escaped",
			input:    "<script>alert(1)</script>",
			expected: "&lt;script&gt;alert(1)&lt;/script&gt;",
		},
		{
			name:     "windows line endings",
			input:    "a\r\n\r\nb",
			expected: "<p>a</p>\n<p>b</p>",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := strings.TrimSpace(ContentToHTML(tt.input))
			expected := strings.TrimSpace(tt.expected)
			if !strings.Contains(result, expected) {
				t.Errorf("ContentToHTML() = %v, want %v", result, expected)
			}
		})
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Hello World", "Hello-World"},
		{"Exam Notes v1.2", "Exam-Notes-v12"},
		{"Special!@#$%Chars", "SpecialChars"},
		{"", "note"},
		{"Very Long Title That Exceeds Fifty Characters Limit", "Very-Long-Title-That-Exceeds-Fifty-Characters-Limi"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := sanitizeFilename(tt.input)
			if result != tt.expected {
				t.Errorf("sanitizeFilename(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestPercentEncodeForDataURL(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"hello world", "hello%20world"},       // Spaces encoded as %20, not +
		{"test+sign", "test%2Bsign"},           // + signs are encoded
		{"special<>", "special%3C%3E"},         // Special chars encoded
		{"normal-text.txt", "normal-text.txt"}, // Unreserved chars pass through
		{"", ""},                               // Empty string
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := percentEncodeForDataURL(tt.input)
			if result != tt.expected {
				t.Errorf("percentEncodeForDataURL(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestRenderNoteHTML(t *testing.T) {
	data := TemplateData{
		Title:       "Photosynthesis",
		ContentHTML: template.HTML("<p>This is the content.</p>"),
		FolderName:  "Biology",
		Author:      "Test Author",
		CreatedAt:   time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		FileURL:     "http://localhost:9000/clarity-files/public/a.pdf",
	}

	html, err := RenderNoteHTML(data)
	if err != nil {
		t.Fatalf("RenderNoteHTML() error = %v", err)
	}

	if !strings.Contains(html, "Photosynthesis") {
		t.Error("HTML missing title")
	}
	if !strings.Contains(html, "Biology") {
		t.Error("HTML missing folder name")
	}
	if !strings.Contains(html, "Test Author") {
		t.Error("HTML missing author")
	}
	if !strings.Contains(html, "public/a.pdf") {
		t.Error("HTML missing attachment URL")
	}

	// If ContentHTML were escaped, we would see &lt;p&gt; instead of <p>
	if strings.Contains(html, "&lt;p&gt;") {
		t.Error("HTML content was escaped - should be rendered as raw HTML")
	}
	if !strings.Contains(html, "<p>This is the content.</p>") {
		t.Error("HTML content should contain unescaped <p> tags")
	}
}
