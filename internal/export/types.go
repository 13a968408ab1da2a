// Package export renders notes to downloadable PDF files.
package export

import (
	"errors"
	"time"
)

// Note carries everything the export template needs.
type Note struct {
	ID         string
	Title      string
	Content    string
	FolderName string
	Author     string
	CreatedAt  time.Time
	FileURL    string
}

// Result contains the export output
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

// ErrPDFDependencyMissing indicates PDF export runtime dependencies are unavailable.
var ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
