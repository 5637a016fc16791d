package fetch

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"
)

// Link is an anchor found in a document.
type Link struct {
	Href string
	Text string
}

// Document is the text and anchors of an HTML page.
type Document struct {
	Title string
	Text  string
	Links []Link
}

var skipText = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"template": true,
	"svg":      true,
}

var blockElems = map[string]bool{
	"p": true, "div": true, "br": true, "li": true, "tr": true, "td": true, "th": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"section": true, "article": true, "header": true, "footer": true, "address": true,
}

// ParseHTML extracts visible text (whitespace collapsed, block elements separated by
// newlines) and anchors. Malformed markup is parsed leniently, as browsers do.
func ParseHTML(body []byte) Document {
	root, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return Document{Text: collapse(string(body))}
	}

	var doc Document
	var text strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if skipText[n.Data] {
				return
			}
			switch n.Data {
			case "title":
				if doc.Title == "" {
					doc.Title = collapse(nodeText(n))
				}
				return
			case "a":
				if href := attr(n, "href"); href != "" {
					doc.Links = append(doc.Links, Link{Href: strings.TrimSpace(href), Text: collapse(nodeText(n))})
				}
			}
			if blockElems[n.Data] {
				text.WriteString("\n")
			}
		}
		if n.Type == html.TextNode {
			text.WriteString(n.Data)
			text.WriteString(" ")
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode && blockElems[n.Data] {
			text.WriteString("\n")
		}
	}
	walk(root)

	lines := strings.Split(text.String(), "\n")
	kept := lines[:0]
	for _, l := range lines {
		if l = collapse(l); l != "" {
			kept = append(kept, l)
		}
	}
	doc.Text = strings.Join(kept, "\n")
	return doc
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val
		}
	}
	return ""
}

func nodeText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && skipText[n.Data] {
			return
		}
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteString(" ")
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
