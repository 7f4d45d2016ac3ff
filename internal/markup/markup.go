// Package markup renders product descriptions and strips markup from plain-text input.
package markup

import (
	"bytes"
	"html/template"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// Renderer converts markdown to sanitized HTML.
type Renderer struct {
	md     goldmark.Markdown
	policy *bluemonday.Policy
	strict *bluemonday.Policy
}

// New returns a Renderer allowing the user-generated-content subset of HTML.
func New() *Renderer {
	return &Renderer{
		md:     goldmark.New(goldmark.WithExtensions(extension.GFM)),
		policy: bluemonday.UGCPolicy(),
		strict: bluemonday.StrictPolicy(),
	}
}

// Render converts markdown source to HTML that is safe to embed in a page. Raw HTML in the source
// is dropped by goldmark and anything that survives conversion is filtered by the UGC policy.
func (r *Renderer) Render(source string) (template.HTML, error) {
	var buf bytes.Buffer
	if err := r.md.Convert([]byte(source), &buf); err != nil {
		return "", err
	}
	// #nosec G203 -- sanitized by bluemonday
	return template.HTML(r.policy.SanitizeBytes(buf.Bytes())), nil
}

// StripTags removes every HTML element from s and trims surrounding space. Entities produced by
// the sanitizer are decoded back so the value can be stored as plain text.
func (r *Renderer) StripTags(s string) string {
	clean := r.strict.Sanitize(s)
	return strings.TrimSpace(unescaper.Replace(clean))
}

var unescaper = strings.NewReplacer("&amp;", "&", "&lt;", "<", "&gt;", ">", "&#34;", `"`, "&#39;", "'")
