package ai

import (
	"errors"
	"strings"
	"testing"
)

func TestBuildParts(t *testing.T) {
	t.Run("prompt only", func(t *testing.T) {
		parts, err := buildParts("what is photosynthesis?", "")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(parts) != 1 {
			t.Fatalf("expected 1 part, got %d", len(parts))
		}
		if !strings.HasPrefix(parts[0].Text, instructionPrefix) {
			t.Error("prompt part should carry the instruction prefix")
		}
		if !strings.Contains(parts[0].Text, "what is photosynthesis?") {
			t.Error("prompt part should contain the user prompt")
		}
	})

	t.Run("file only", func(t *testing.T) {
		parts, err := buildParts("", "http://localhost:9000/clarity-files/public/a.pdf")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(parts) != 2 {
			t.Fatalf("expected 2 parts, got %d", len(parts))
		}
		fd := parts[1].FileData
		if fd == nil {
			t.Fatal("second part should reference the file")
		}
		if fd.MIMEType != "application/pdf" {
			t.Errorf("MIMEType = %q, want application/pdf", fd.MIMEType)
		}
	})

	t.Run("prompt and file", func(t *testing.T) {
		parts, err := buildParts("summarize this", "http://example.com/f.pdf")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(parts) != 2 {
			t.Fatalf("expected 2 parts, got %d", len(parts))
		}
	})

	t.Run("neither prompt nor file", func(t *testing.T) {
		if _, err := buildParts("  ", ""); !errors.Is(err, ErrEmptyRequest) {
			t.Errorf("expected ErrEmptyRequest, got %v", err)
		}
	})
}
