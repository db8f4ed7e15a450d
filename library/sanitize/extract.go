package sanitize

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// skipped subtrees never contribute visible text.
var skipped = map[atom.Atom]bool{
	atom.Head:     true,
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Template: true,
	atom.Svg:      true,
	atom.Iframe:   true,
	atom.Object:   true,
	atom.Canvas:   true,
}

// blocks start and end a paragraph.
var blocks = map[atom.Atom]bool{
	atom.Address:    true,
	atom.Article:    true,
	atom.Aside:      true,
	atom.Blockquote: true,
	atom.Caption:    true,
	atom.Dd:         true,
	atom.Details:    true,
	atom.Dialog:     true,
	atom.Div:        true,
	atom.Dl:         true,
	atom.Dt:         true,
	atom.Fieldset:   true,
	atom.Figcaption: true,
	atom.Figure:     true,
	atom.Footer:     true,
	atom.Form:       true,
	atom.H1:         true,
	atom.H2:         true,
	atom.H3:         true,
	atom.H4:         true,
	atom.H5:         true,
	atom.H6:         true,
	atom.Header:     true,
	atom.Hr:         true,
	atom.Li:         true,
	atom.Main:       true,
	atom.Nav:        true,
	atom.Ol:         true,
	atom.P:          true,
	atom.Pre:        true,
	atom.Section:    true,
	atom.Summary:    true,
	atom.Table:      true,
	atom.Tr:         true,
	atom.Ul:         true,
}

// cells are separated by a space so adjacent columns do not merge into one word.
var cells = map[atom.Atom]bool{
	atom.Td: true,
	atom.Th: true,
}

type textCollector struct {
	b       strings.Builder
	preDeep int
}

// extractHTML parses doc and returns its title and visible text. Paragraph
// boundaries become single newlines; whitespace inside text nodes collapses
// to single spaces except under <pre> and <textarea>.
func extractHTML(doc string) (title, text string) {
	root, err := html.Parse(strings.NewReader(doc))
	if err != nil {
		return "", doc
	}

	title = findTitle(root)

	c := &textCollector{}
	c.walk(root)
	return title, c.b.String()
}

func (c *textCollector) walk(n *html.Node) {
	switch n.Type {
	case html.TextNode:
		c.text(n.Data)
		return
	case html.CommentNode, html.DoctypeNode:
		return
	case html.ElementNode:
		if skipped[n.DataAtom] {
			return
		}
		if n.DataAtom == atom.Br {
			c.b.WriteByte('\n')
			return
		}
	}

	isBlock := n.Type == html.ElementNode && blocks[n.DataAtom]
	isCell := n.Type == html.ElementNode && cells[n.DataAtom]
	isPre := n.Type == html.ElementNode && (n.DataAtom == atom.Pre || n.DataAtom == atom.Textarea)

	if isBlock {
		c.boundary()
	}
	if isCell {
		c.b.WriteByte(' ')
	}
	if isPre {
		c.preDeep++
	}

	for child := n.FirstChild; child != nil; child = child.NextSibling {
		c.walk(child)
	}

	if isPre {
		c.preDeep--
	}
	if isCell {
		c.b.WriteByte(' ')
	}
	if isBlock {
		c.boundary()
	}
}

func (c *textCollector) text(data string) {
	if c.preDeep > 0 {
		c.b.WriteString(data)
		return
	}

	// keep one space at either edge so inline siblings stay separated
	fields := strings.Fields(data)
	if len(fields) == 0 {
		if data != "" {
			c.b.WriteByte(' ')
		}
		return
	}
	if startsWithSpace(data) {
		c.b.WriteByte(' ')
	}
	c.b.WriteString(strings.Join(fields, " "))
	if endsWithSpace(data) {
		c.b.WriteByte(' ')
	}
}

// boundary ends the current line unless it holds nothing but spaces.
func (c *textCollector) boundary() {
	s := strings.TrimRight(c.b.String(), " ")
	if s == "" || strings.HasSuffix(s, "\n") {
		return
	}
	c.b.WriteByte('\n')
}

func findTitle(n *html.Node) string {
	if n.Type == html.ElementNode && n.DataAtom == atom.Title {
		var b strings.Builder
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			if child.Type == html.TextNode {
				b.WriteString(child.Data)
			}
		}
		return strings.TrimSpace(b.String())
	}

	for child := n.FirstChild; child != nil; child = child.NextSibling {
		if title := findTitle(child); title != "" {
			return title
		}
	}
	return ""
}

func startsWithSpace(s string) bool {
	return strings.TrimLeftFunc(s, isSpace) != s
}

func endsWithSpace(s string) bool {
	return strings.TrimRightFunc(s, isSpace) != s
}

// extractXML returns the character data of an XML document with every tag
// dropped. Each element edge ends a line and CDATA sections count as text.
func extractXML(doc string) string {
	z := html.NewTokenizer(strings.NewReader(doc))
	z.AllowCDATA(true)

	c := &textCollector{}
	rawDeep := 0
	for {
		switch z.Next() {
		case html.ErrorToken:
			return c.b.String()
		case html.TextToken:
			if rawDeep == 0 {
				c.text(string(z.Text()))
			}
		case html.StartTagToken:
			if name, _ := z.TagName(); isScriptLike(name) {
				rawDeep++
			}
			c.boundary()
		case html.EndTagToken:
			if name, _ := z.TagName(); isScriptLike(name) && rawDeep > 0 {
				rawDeep--
			}
			c.boundary()
		case html.SelfClosingTagToken:
			c.boundary()
		}
	}
}

func isScriptLike(name []byte) bool {
	a := atom.Lookup(name)
	return a == atom.Script || a == atom.Style
}
