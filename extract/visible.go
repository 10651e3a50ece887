package extract

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// hiddenElements never contribute visible text.
var hiddenElements = map[atom.Atom]bool{
	atom.Head:     true,
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Template: true,
	atom.Svg:      true,
	atom.Title:    true,
}

// VisibleText streams raw through the tokenizer and keeps text outside
// hidden elements, whitespace collapsed. Documents without a body tag are
// read whole.
func VisibleText(raw string) string {
	z := html.NewTokenizer(strings.NewReader(raw))
	var b strings.Builder
	depth := 0 // nesting inside hidden elements

	for {
		switch z.Next() {
		case html.ErrorToken:
			return strings.Join(strings.Fields(b.String()), " ")

		case html.StartTagToken:
			name, _ := z.TagName()
			if a := atom.Lookup(name); hiddenElements[a] {
				depth++
			} else if blockBreak(a) {
				b.WriteByte(' ')
			}

		case html.SelfClosingTagToken:
			b.WriteByte(' ')

		case html.EndTagToken:
			name, _ := z.TagName()
			if a := atom.Lookup(name); hiddenElements[a] && depth > 0 {
				depth--
			} else if blockBreak(a) {
				b.WriteByte(' ')
			}

		case html.TextToken:
			if depth > 0 {
				continue
			}
			b.Write(z.Text())
		}
	}
}

// blockBreak reports tags that separate words even without whitespace.
func blockBreak(a atom.Atom) bool {
	switch a {
	case atom.Br, atom.P, atom.Div, atom.Li, atom.Td, atom.Th, atom.Tr,
		atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6:
		return true
	}
	return false
}
