// Package web renders the dashboard pages from embedded templates.
package web

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"
)

//go:embed templates/*.html
var files embed.FS

// Page names.
const (
	PageIndex     = "index"
	PageDashboard = "dashboard"
	PageBot       = "bot"
	PageConfig    = "config"
	PageCommands  = "commands"
)

var pageNames = []string{PageIndex, PageDashboard, PageBot, PageConfig, PageCommands}

// PageData is passed to every page.
type PageData struct {
	BotName  string
	User     string
	LoggedIn bool
	// Active is the page name highlighted in the navigation.
	Active string
}

// Renderer holds one parsed template set per page.
type Renderer struct {
	pages map[string]*template.Template
}

// NewRenderer parses the embedded templates.
func NewRenderer() (*Renderer, error) {
	r := &Renderer{pages: make(map[string]*template.Template, len(pageNames))}

	for _, name := range pageNames {
		tmpl, err := template.ParseFS(files, "templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("failed to parse page %s: %w", name, err)
		}
		r.pages[name] = tmpl
	}

	return r, nil
}

// ValidatePage reports whether name is a known page.
func ValidatePage(name string) bool {
	for _, p := range pageNames {
		if p == name {
			return true
		}
	}
	return false
}

// Render writes page to w. Nothing is written when rendering fails.
func (r *Renderer) Render(w io.Writer, page string, data PageData) error {
	tmpl, ok := r.pages[page]
	if !ok {
		return fmt.Errorf("unknown page: %s", page)
	}

	if data.Active == "" {
		data.Active = page
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "layout", data); err != nil {
		return fmt.Errorf("failed to render page %s: %w", page, err)
	}

	_, err := buf.WriteTo(w)
	return err
}
