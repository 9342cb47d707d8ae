// Package render turns backend text into HTML that is safe to insert into a page.
package render

import (
	"bytes"
	"html"
	"html/template"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/gomarkdown/markdown"
	mdhtml "github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
)

var strippedElements = "script, style, iframe, object, embed, form, link, meta, base"

// Markdown renders md as sanitised HTML.
func Markdown(md string) template.HTML {
	if strings.TrimSpace(md) == "" {
		return ""
	}

	// Parsers carry state between calls and must not be reused.
	p := parser.NewWithExtensions(parser.CommonExtensions | parser.NoEmptyLineBeforeBlock)
	renderer := mdhtml.NewRenderer(mdhtml.RendererOptions{
		Flags: mdhtml.CommonFlags | mdhtml.HrefTargetBlank | mdhtml.SkipHTML | mdhtml.Safelink,
	})
	out := markdown.ToHTML([]byte(md), p, renderer)

	return template.HTML(Sanitize(string(out)))
}

// Text renders s as escaped text, keeping line breaks.
func Text(s string) template.HTML {
	escaped := html.EscapeString(s)
	return template.HTML(strings.ReplaceAll(escaped, "\n", "<br>"))
}

// Labeled renders "label: " followed by the markdown body.
func Labeled(label, md string) template.HTML {
	return template.HTML(`<span class="speaker">` + html.EscapeString(label) + `:</span> `) + Markdown(md)
}

// Sanitize removes active content from an HTML fragment: script-like
// elements, event handler attributes and javascript: URLs.
func Sanitize(fragment string) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader([]byte(fragment)))
	if err != nil {
		return html.EscapeString(fragment)
	}

	doc.Find(strippedElements).Remove()
	doc.Find("*").Each(func(_ int, s *goquery.Selection) {
		if len(s.Nodes) == 0 {
			return
		}
		var drop []string
		for _, attr := range s.Nodes[0].Attr {
			key := strings.ToLower(attr.Key)
			switch {
			case strings.HasPrefix(key, "on"):
				drop = append(drop, attr.Key)
			case (key == "href" || key == "src" || key == "action") && unsafeURL(attr.Val):
				drop = append(drop, attr.Key)
			}
		}
		for _, key := range drop {
			s.RemoveAttr(key)
		}
	})

	body, err := doc.Find("body").Html()
	if err != nil {
		return html.EscapeString(fragment)
	}
	return strings.TrimSpace(body)
}

func unsafeURL(v string) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	v = strings.Map(func(r rune) rune {
		if r <= ' ' {
			return -1
		}
		return r
	}, v)
	return strings.HasPrefix(v, "javascript:") ||
		strings.HasPrefix(v, "vbscript:") ||
		strings.HasPrefix(v, "data:text/html")
}
