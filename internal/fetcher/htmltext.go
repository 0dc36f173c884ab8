package fetcher

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// blockAtoms are elements that end a line of extracted text. Keeping the
// newline structure intact matters downstream, where text is chunked on
// newlines.
var blockAtoms = map[atom.Atom]bool{
	atom.Address: true, atom.Article: true, atom.Aside: true,
	atom.Blockquote: true, atom.Br: true, atom.Dd: true, atom.Div: true,
	atom.Dl: true, atom.Dt: true, atom.Fieldset: true, atom.Figcaption: true,
	atom.Figure: true, atom.Footer: true, atom.Form: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true,
	atom.H5: true, atom.H6: true, atom.Header: true, atom.Hr: true,
	atom.Li: true, atom.Main: true, atom.Nav: true, atom.Ol: true,
	atom.P: true, atom.Pre: true, atom.Section: true, atom.Table: true,
	atom.Td: true, atom.Th: true, atom.Tr: true, atom.Ul: true,
}

var skipAtoms = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Head:     true,
	atom.Template: true,
	atom.Iframe:   true,
}

// HTMLToText renders an HTML document as plain text. Block-level elements
// become line breaks, inline whitespace is collapsed, and script/style
// content is dropped. Returns the text and the document title, if any.
func HTMLToText(raw string) (text, title string) {
	doc, err := html.Parse(strings.NewReader(raw))
	if err != nil {
		// html.Parse only fails on reader errors; a string reader never errors.
		return "", ""
	}

	var sb strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.ElementNode:
			if skipAtoms[n.DataAtom] {
				// Still pull the title out of head.
				if n.DataAtom == atom.Head {
					if t := findTitle(n); t != "" {
						title = t
					}
				}
				return
			}
		case html.TextNode:
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode && blockAtoms[n.DataAtom] {
			sb.WriteByte('\n')
		}
	}
	walk(doc)

	return normalizeLines(sb.String()), title
}

func findTitle(head *html.Node) string {
	for c := head.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.DataAtom == atom.Title {
			if c.FirstChild != nil && c.FirstChild.Type == html.TextNode {
				return strings.TrimSpace(c.FirstChild.Data)
			}
		}
	}
	return ""
}

// normalizeLines collapses runs of whitespace within each line and drops
// blank lines, preserving the one-line-per-block structure.
func normalizeLines(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}
