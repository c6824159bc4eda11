// Package preview renders file content for the in-browser preview proxy.
package preview

import (
	"bytes"
	"fmt"
	"html"
	"path"
	"strings"

	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting/v2"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	gmhtml "github.com/yuin/goldmark/renderer/html"
)

// MaxMarkdownSize is the largest file rendered as HTML. Larger files are served raw.
const MaxMarkdownSize = 2 << 20

// Renderer converts Markdown files to HTML.
type Renderer struct {
	md goldmark.Markdown
}

// NewRenderer creates a Renderer with GFM and syntax highlighting.
// Raw HTML in the source is escaped: the files come from users' clouds.
func NewRenderer() *Renderer {
	md := goldmark.New(
		goldmark.WithExtensions(
			extension.GFM,
			highlighting.NewHighlighting(
				highlighting.WithStyle("github"),
				highlighting.WithFormatOptions(
					chromahtml.WithClasses(true),
				),
			),
		),
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
		),
		goldmark.WithRendererOptions(
			gmhtml.WithHardWraps(),
			gmhtml.WithXHTML(),
		),
	)
	return &Renderer{md: md}
}

// Render converts Markdown to an HTML fragment.
func (r *Renderer) Render(source []byte) ([]byte, error) {
	var buf bytes.Buffer
	if err := r.md.Convert(source, &buf); err != nil {
		return nil, fmt.Errorf("failed to render markdown: %w", err)
	}
	return buf.Bytes(), nil
}

// RenderPage wraps the rendered fragment in a standalone HTML document.
func (r *Renderer) RenderPage(title string, source []byte) ([]byte, error) {
	body, err := r.Render(source)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "<!DOCTYPE html>\n<html><head><meta charset=\"utf-8\"><title>%s</title></head>\n<body class=\"markdown-body\">\n",
		html.EscapeString(title))
	buf.Write(body)
	buf.WriteString("</body></html>\n")
	return buf.Bytes(), nil
}

// IsMarkdown reports whether a file should be rendered as Markdown.
// Dropbox records carry no MIME type, so the extension decides too.
func IsMarkdown(name, mimeType string) bool {
	if mimeType == "text/markdown" || mimeType == "text/x-markdown" {
		return true
	}
	switch strings.ToLower(path.Ext(name)) {
	case ".md", ".markdown", ".mdown":
		return true
	}
	return false
}
