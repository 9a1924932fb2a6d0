package dom

import (
	"strings"

	"golang.org/x/net/html"
)

// blockTags break rendered text onto a new line, like innerText does.
var blockTags = map[string]bool{
	"address": true, "article": true, "aside": true, "blockquote": true, "dd": true,
	"details": true, "dialog": true, "div": true, "dl": true, "dt": true, "fieldset": true,
	"figcaption": true, "figure": true, "footer": true, "form": true, "h1": true, "h2": true,
	"h3": true, "h4": true, "h5": true, "h6": true, "header": true, "hr": true, "li": true,
	"main": true, "nav": true, "ol": true, "p": true, "pre": true, "section": true,
	"summary": true, "table": true, "tr": true, "ul": true, "option": true,
}

// RenderedText approximates innerText: text of displayed descendants, with
// block elements and <br> producing line breaks and runs of whitespace
// collapsed within a line.
func (d *Document) RenderedText(n *html.Node) string {
	if n == nil {
		return ""
	}
	if n.Type == html.TextNode {
		return collapse(n.Data)
	}
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(c *html.Node) {
		switch c.Type {
		case html.TextNode:
			b.WriteString(c.Data)
			return
		case html.ElementNode:
			if !d.Displayed(c) {
				return
			}
			tag := Tag(c)
			if tag == "br" {
				b.WriteByte('\n')
				return
			}
			if blockTags[tag] {
				b.WriteByte('\n')
			}
			for gc := c.FirstChild; gc != nil; gc = gc.NextSibling {
				walk(gc)
			}
			if blockTags[tag] {
				b.WriteByte('\n')
			}
			return
		}
		for gc := c.FirstChild; gc != nil; gc = gc.NextSibling {
			walk(gc)
		}
	}
	if n.Type == html.ElementNode && !d.Displayed(n) {
		return ""
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c)
	}

	lines := strings.Split(b.String(), "\n")
	out := lines[:0]
	for _, l := range lines {
		if l = collapse(l); l != "" {
			out = append(out, l)
		}
	}
	return strings.Join(out, "\n")
}

// FirstLine returns the first non-empty line of s, trimmed.
func FirstLine(s string) string {
	for _, l := range strings.Split(s, "\n") {
		if l = collapse(l); l != "" {
			return l
		}
	}
	return ""
}

// NormalizeSpace mirrors XPath normalize-space(): trim and collapse runs of
// whitespace to a single space.
func NormalizeSpace(s string) string {
	return collapse(s)
}

// collapse uses the XPath whitespace set (space, tab, CR, LF) so that text
// read here compares equal under normalize-space().
func collapse(s string) string {
	return strings.Join(strings.FieldsFunc(s, func(r rune) bool {
		return r == ' ' || r == '\t' || r == '\r' || r == '\n'
	}), " ")
}
