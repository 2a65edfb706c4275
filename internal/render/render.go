// Package render produces the read-only HTML used by snippet embeds: the
// highlighted code, the Markdown description and the Open Graph metadata of
// the embed page.
package render

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/sakif/snippime/internal/languages"
	"github.com/sakif/snippime/internal/model"
	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting/v2"
	"github.com/yuin/goldmark/extension"
)

//go:embed templates/*.html
var templateFS embed.FS

// maxMetaDescription bounds og:description, which crawlers truncate anyway.
const maxMetaDescription = 200

// Renderer converts snippets into embeddable HTML. It is safe for
// concurrent use.
type Renderer struct {
	md      goldmark.Markdown
	page    *template.Template
	baseURL string
}

// New creates a Renderer. baseURL is the public origin used in canonical
// and Open Graph URLs.
func New(baseURL string) (*Renderer, error) {
	md := goldmark.New(
		goldmark.WithExtensions(
			extension.GFM,
			highlighting.NewHighlighting(
				highlighting.WithStyle("github"),
			),
		),
	)

	page, err := template.ParseFS(templateFS, "templates/embed.html")
	if err != nil {
		return nil, fmt.Errorf("render: parsing embed template: %w", err)
	}

	return &Renderer{
		md:      md,
		page:    page,
		baseURL: strings.TrimRight(baseURL, "/"),
	}, nil
}

// Code returns the snippet's code as highlighted HTML. Unknown languages
// fall back to a plain pre block.
func (r *Renderer) Code(code, language string) (template.HTML, error) {
	fence := codeFence(code)
	src := fence + languages.Lexer(language) + "\n" + code
	if !strings.HasSuffix(code, "\n") {
		src += "\n"
	}
	src += fence + "\n"

	var buf bytes.Buffer
	if err := r.md.Convert([]byte(src), &buf); err != nil {
		return "", fmt.Errorf("render: highlighting code: %w", err)
	}
	return template.HTML(buf.String()), nil
}

// Markdown renders user-supplied Markdown. Raw HTML in the input is
// omitted by goldmark's default renderer.
func (r *Renderer) Markdown(text string) (template.HTML, error) {
	if strings.TrimSpace(text) == "" {
		return "", nil
	}
	var buf bytes.Buffer
	if err := r.md.Convert([]byte(text), &buf); err != nil {
		return "", fmt.Errorf("render: converting markdown: %w", err)
	}
	return template.HTML(buf.String()), nil
}

// codeFence returns a backtick fence longer than any backtick run in code.
func codeFence(code string) string {
	longest, run := 0, 0
	for _, c := range code {
		if c == '`' {
			run++
			longest = max(longest, run)
		} else {
			run = 0
		}
	}
	return strings.Repeat("`", max(3, longest+1))
}

// Meta is the Open Graph and Twitter card metadata of an embed page.
type Meta struct {
	Title       string
	Description string
	URL         string
	SiteName    string
	Type        string
}

// MetaFor builds the page metadata for a snippet.
func (r *Renderer) MetaFor(sn *model.Snippet) Meta {
	desc := strings.TrimSpace(sn.Description)
	if desc == "" {
		lang := sn.Language
		if l, ok := languages.Lookup(sn.Language); ok {
			lang = l.Label
		}
		desc = fmt.Sprintf("A %s snippet by %s on Snippime.", lang, sn.AuthorName)
	}

	return Meta{
		Title:       sn.Title,
		Description: truncate(desc, maxMetaDescription),
		URL:         r.baseURL + "/embed/" + sn.ID,
		SiteName:    "Snippime",
		Type:        "article",
	}
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:n-1])) + "…"
}

type pageData struct {
	Meta        Meta
	Snippet     *model.Snippet
	Language    string
	Code        template.HTML
	Description template.HTML
	SnippetURL  string
}

// EmbedPage writes the complete read-only embed page for sn. The caller is
// responsible for checking that sn is public.
func (r *Renderer) EmbedPage(w io.Writer, sn *model.Snippet) error {
	code, err := r.Code(sn.Code, sn.Language)
	if err != nil {
		return err
	}
	desc, err := r.Markdown(sn.Description)
	if err != nil {
		return err
	}

	lang := sn.Language
	if l, ok := languages.Lookup(sn.Language); ok {
		lang = l.Label
	}

	data := pageData{
		Meta:        r.MetaFor(sn),
		Snippet:     sn,
		Language:    lang,
		Code:        code,
		Description: desc,
		SnippetURL:  r.baseURL + "/snippets/" + sn.ID,
	}

	var buf bytes.Buffer
	if err := r.page.Execute(&buf, data); err != nil {
		return fmt.Errorf("render: executing embed template: %w", err)
	}
	_, err = buf.WriteTo(w)
	return err
}
