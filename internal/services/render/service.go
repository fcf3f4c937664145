// Package render produces the static maintenance page.
package render

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"os"
	"path/filepath"

	"github.com/fgeck/webmaint/internal/models"
	"github.com/rs/zerolog"
)

//go:embed templates/maintenance.html
var templates embed.FS

// Page holds the values substituted into the maintenance template.
type Page struct {
	Reason       string
	StartedAt    string
	EstimatedEnd string
	Shortly      bool
}

// PageFromWindow builds the template values for w.
func PageFromWindow(w models.MaintenanceWindow) Page {
	return Page{
		Reason:       w.Reason,
		StartedAt:    w.StartedAtDisplay,
		EstimatedEnd: w.EstimatedEndDisplay,
		Shortly:      w.EstimatedEnd == nil,
	}
}

// Service defines the interface for rendering the maintenance page.
type Service interface {
	Render(page Page) ([]byte, error)
}

// Impl implements Service with html/template.
type Impl struct {
	tmpl   *template.Template
	logger zerolog.Logger
}

// New loads the template at path, or the built-in page when path is empty.
func New(logger zerolog.Logger, path string) (*Impl, error) {
	var (
		tmpl *template.Template
		err  error
	)

	if path == "" {
		tmpl, err = template.ParseFS(templates, "templates/maintenance.html")
	} else {
		var content []byte
		content, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading template %s: %w", path, err)
		}
		tmpl, err = template.New(filepath.Base(path)).Option("missingkey=error").Parse(string(content))
	}
	if err != nil {
		return nil, fmt.Errorf("parsing maintenance template: %w", err)
	}

	return &Impl{tmpl: tmpl, logger: logger}, nil
}

// Render executes the template for page.
func (s *Impl) Render(page Page) ([]byte, error) {
	var b bytes.Buffer
	if err := s.tmpl.Execute(&b, page); err != nil {
		return nil, fmt.Errorf("rendering maintenance page: %w", err)
	}

	s.logger.Debug().Int("bytes", b.Len()).Msg("rendered maintenance page")

	return b.Bytes(), nil
}
