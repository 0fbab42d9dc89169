package parser

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var blockElements = map[string]bool{
	"p": true, "div": true, "br": true, "li": true, "ul": true, "ol": true,
	"tr": true, "table": true, "section": true, "article": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"dd": true, "dt": true, "blockquote": true, "pre": true, "hr": true,
}

var (
	horizontalSpaceRe = regexp.MustCompile(`[ \t\r\f\v\x{00a0}]+`)
	blankLinesRe      = regexp.MustCompile(`\n{3,}`)
)

// HTMLToText renders an HTML fragment as plain text. Block-level elements end
// a line, other tags are dropped and entities are decoded. Links with an
// absolute URL that differs from their text are kept as "text (url)".
func HTMLToText(fragment string) string {
	if strings.TrimSpace(fragment) == "" {
		return ""
	}
	nodes, err := html.ParseFragment(strings.NewReader(fragment), &html.Node{
		Type:     html.ElementNode,
		Data:     "body",
		DataAtom: atom.Body,
	})
	if err != nil {
		return normalizeLines(fragment)
	}

	var b strings.Builder
	for _, n := range nodes {
		renderText(&b, n)
	}
	return normalizeLines(b.String())
}

func renderText(b *strings.Builder, n *html.Node) {
	switch n.Type {
	case html.TextNode:
		b.WriteString(strings.ReplaceAll(n.Data, "\n", " "))
		return
	case html.CommentNode:
		return
	case html.ElementNode:
		switch n.Data {
		case "script", "style", "noscript", "template":
			return
		case "a":
			renderLink(b, n)
			return
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		renderText(b, c)
	}

	if n.Type == html.ElementNode && blockElements[n.Data] {
		b.WriteString("\n")
	}
}

func renderLink(b *strings.Builder, n *html.Node) {
	var inner strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		renderText(&inner, c)
	}
	text := strings.TrimSpace(inner.String())
	b.WriteString(inner.String())

	href := strings.TrimSpace(attr(n, "href"))
	if !strings.HasPrefix(href, "http://") && !strings.HasPrefix(href, "https://") {
		return
	}
	if text == href {
		return
	}
	if text == "" {
		b.WriteString(href)
		return
	}
	b.WriteString(" (" + href + ")")
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func normalizeLines(s string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(horizontalSpaceRe.ReplaceAllString(l, " "))
	}
	out := strings.Join(lines, "\n")
	out = blankLinesRe.ReplaceAllString(out, "\n\n")
	return strings.TrimSpace(out)
}
