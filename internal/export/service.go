package export

import (
	"html/template"
)

// Service renders notes to PDF.
type Service struct{}

func NewService() *Service {
	return &Service{}
}

// ExportNotePDF renders a note through the HTML template and hands it to
// headless Chrome.
func (s *Service) ExportNotePDF(note Note) (*Result, error) {
	data := TemplateData{
		Title:       note.Title,
		ContentHTML: template.HTML(ContentToHTML(note.Content)),
		FolderName:  note.FolderName,
		Author:      note.Author,
		CreatedAt:   note.CreatedAt,
		FileURL:     note.FileURL,
	}

	html, err := RenderNoteHTML(data)
	if err != nil {
		return nil, err
	}

	return exportPDF(html, note.Title)
}
