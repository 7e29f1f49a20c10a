package browser

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

// DefaultSnapshotLength bounds how much cleaned HTML a snapshot carries.
const DefaultSnapshotLength = 20000

// Snapshot is a compact, agent-readable view of the current page:
// metadata plus cleaned HTML with scripts and styling noise removed
// and targeting attributes preserved.
type Snapshot struct {
	URL         string
	Title       string
	Description string
	HTML        string
	Truncated   bool
}

// String renders the snapshot in the form handed to the agent.
func (s *Snapshot) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "URL: %s\n", s.URL)
	fmt.Fprintf(&b, "Title: %s\n", s.Title)
	if s.Description != "" {
		fmt.Fprintf(&b, "Description: %s\n", s.Description)
	}
	b.WriteString("\n")
	b.WriteString(s.HTML)
	if s.Truncated {
		b.WriteString("\n\n[page content truncated]")
	}
	return b.String()
}

// Snapshot captures and cleans the current page. maxChars bounds the
// cleaned HTML; zero means DefaultSnapshotLength.
func (s *Session) Snapshot(maxChars int) (*Snapshot, error) {
	s.touch()

	raw, err := s.page.Content()
	if err != nil {
		return nil, fmt.Errorf("failed to read page content: %w", err)
	}

	snap, err := cleanHTML(raw, maxChars)
	if err != nil {
		return nil, err
	}
	snap.URL = s.page.URL()
	return snap, nil
}

// cleanHTML parses raw HTML and rebuilds it without scripts, styles
// and other noise, keeping semantic structure and the attributes an
// agent needs for element targeting.
func cleanHTML(raw string, maxChars int) (*Snapshot, error) {
	if maxChars <= 0 {
		maxChars = DefaultSnapshotLength
	}

	doc, err := html.Parse(strings.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	snap := &Snapshot{
		Title:       findTitle(doc),
		Description: findMetaDescription(doc),
	}

	w := &digestWriter{budget: maxChars}
	snap.Truncated = w.walk(doc, 0)
	snap.HTML = w.out.String()
	return snap, nil
}

// digestWriter accumulates cleaned HTML under a character budget.
type digestWriter struct {
	out     strings.Builder
	written int
	budget  int
}

// walk processes a node tree, returning true once the budget is spent.
func (w *digestWriter) walk(n *html.Node, depth int) bool {
	if w.written >= w.budget {
		return true
	}

	switch n.Type {
	case html.CommentNode:
		return false
	case html.TextNode:
		return w.writeText(n.Data)
	case html.ElementNode:
		tag := strings.ToLower(n.Data)
		if skippedElement(tag) {
			return false
		}
		return w.writeElement(n, tag, depth)
	}

	return w.walkChildren(n, depth)
}

func (w *digestWriter) walkChildren(n *html.Node, depth int) bool {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if w.walk(c, depth) {
			return true
		}
	}
	return false
}

func (w *digestWriter) writeText(data string) bool {
	text := strings.TrimSpace(data)
	if text == "" {
		return false
	}

	if w.written+len(text) > w.budget {
		remaining := w.budget - w.written
		w.out.WriteString(text[:remaining])
		w.out.WriteString("...")
		w.written = w.budget
		return true
	}

	w.out.WriteString(text)
	w.written += len(text)
	return false
}

func (w *digestWriter) writeElement(n *html.Node, tag string, depth int) bool {
	if depth > 0 && blockElement(tag) {
		w.out.WriteString("\n")
		w.out.WriteString(strings.Repeat("  ", depth))
	}

	w.out.WriteString("<")
	w.out.WriteString(tag)
	for _, attr := range n.Attr {
		if keepAttribute(tag, attr.Key) {
			fmt.Fprintf(&w.out, ` %s="%s"`, attr.Key, html.EscapeString(attr.Val))
		}
	}
	w.out.WriteString(">")
	w.written += len(tag) + 2

	truncated := w.walkChildren(n, depth+1)

	if !voidElement(tag) {
		if blockElement(tag) {
			w.out.WriteString("\n")
			w.out.WriteString(strings.Repeat("  ", depth))
		}
		w.out.WriteString("</")
		w.out.WriteString(tag)
		w.out.WriteString(">")
		w.written += len(tag) + 3
	}

	return truncated
}

func skippedElement(tag string) bool {
	switch tag {
	case "script", "style", "noscript", "iframe", "embed", "object", "svg", "link", "meta":
		return true
	}
	return false
}

func blockElement(tag string) bool {
	switch tag {
	case "div", "p", "section", "article", "header", "footer", "nav", "main", "aside",
		"h1", "h2", "h3", "h4", "h5", "h6",
		"ul", "ol", "li", "table", "tr", "td", "th",
		"form", "fieldset", "blockquote", "pre":
		return true
	}
	return false
}

func voidElement(tag string) bool {
	switch tag {
	case "area", "base", "br", "col", "embed", "hr", "img", "input",
		"link", "meta", "param", "source", "track", "wbr":
		return true
	}
	return false
}

// keepAttribute reports whether an attribute is worth carrying into
// the digest. Identity, accessibility and form attributes survive so
// the agent can build selectors from them.
func keepAttribute(tag, key string) bool {
	key = strings.ToLower(key)

	switch key {
	case "id", "class", "role", "aria-label", "aria-describedby":
		return true
	}
	if strings.HasPrefix(key, "data-") {
		return true
	}

	switch tag {
	case "a":
		return key == "href" || key == "target"
	case "img":
		return key == "src" || key == "alt"
	case "input", "textarea", "select":
		return key == "name" || key == "type" || key == "placeholder" || key == "value"
	case "button":
		return key == "type" || key == "name"
	case "form":
		return key == "action" || key == "method"
	}
	return false
}

func findTitle(doc *html.Node) string {
	var title string
	var traverse func(*html.Node)
	traverse = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "title" {
			if n.FirstChild != nil && n.FirstChild.Type == html.TextNode {
				title = strings.TrimSpace(n.FirstChild.Data)
			}
			return
		}
		for c := n.FirstChild; c != nil && title == ""; c = c.NextSibling {
			traverse(c)
		}
	}
	traverse(doc)
	return title
}

func findMetaDescription(doc *html.Node) string {
	var description string
	var traverse func(*html.Node)
	traverse = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "meta" {
			var isDescription bool
			var content string
			for _, attr := range n.Attr {
				if attr.Key == "name" && attr.Val == "description" {
					isDescription = true
				}
				if attr.Key == "content" {
					content = attr.Val
				}
			}
			if isDescription && content != "" {
				description = strings.TrimSpace(content)
				return
			}
		}
		for c := n.FirstChild; c != nil && description == ""; c = c.NextSibling {
			traverse(c)
		}
	}
	traverse(doc)
	return description
}
