// Package parsers contains the deterministic entity parsers: table, invoice,
// contract, loan, receipt/email, and narrative. All parsers are pure
// functions over markdown and identifiers; they never call external
// services (the narrative parser's LLM mode takes an injected client).
package parsers

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

// Table is a grid of trimmed cell text extracted from HTML or pipe markup.
// Rows includes header rows; interpretation is left to the caller.
type Table struct {
	Rows [][]string
}

// ExtractHTMLTables pulls every <table> out of markdown that embeds HTML.
// The parser is tolerant of malformed markup.
func ExtractHTMLTables(markdown string) []Table {
	if !strings.Contains(markdown, "<table") {
		return nil
	}
	doc, err := html.Parse(strings.NewReader(markdown))
	if err != nil {
		return nil
	}
	var tables []Table
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "table" {
			if t := parseTableNode(n); len(t.Rows) > 0 {
				tables = append(tables, t)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return tables
}

func parseTableNode(table *html.Node) Table {
	var t Table
	var walkRows func(*html.Node)
	walkRows = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "tr" {
			var cells []string
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				if c.Type == html.ElementNode && (c.Data == "td" || c.Data == "th") {
					cells = append(cells, strings.TrimSpace(nodeText(c)))
				}
			}
			if len(cells) > 0 {
				t.Rows = append(t.Rows, cells)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walkRows(c)
		}
	}
	walkRows(table)
	return t
}

func nodeText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

var pipeSeparator = regexp.MustCompile(`^\s*\|[\s\-:]+\|`)

// HasPipeTables reports whether the first 100 lines contain a pipe-delimited
// table (a header line followed by a |---| separator).
func HasPipeTables(markdown string) bool {
	lines := strings.Split(markdown, "\n")
	limit := len(lines)
	if limit > 100 {
		limit = 100
	}
	for i := 0; i < limit; i++ {
		if strings.Contains(lines[i], "|") && i+1 < len(lines) && pipeSeparator.MatchString(lines[i+1]) {
			return true
		}
	}
	return false
}

// ExtractPipeTables collects pipe-delimited markdown tables. Each table's
// first row is its header line; the separator row is dropped.
func ExtractPipeTables(markdown string) []Table {
	lines := strings.Split(markdown, "\n")
	var tables []Table
	for i := 0; i < len(lines); i++ {
		if !strings.Contains(lines[i], "|") || i+1 >= len(lines) || !pipeSeparator.MatchString(lines[i+1]) {
			continue
		}
		t := Table{Rows: [][]string{splitPipeRow(lines[i])}}
		j := i + 2
		for ; j < len(lines); j++ {
			if !strings.Contains(lines[j], "|") {
				break
			}
			if cells := splitPipeRow(lines[j]); len(cells) > 0 {
				t.Rows = append(t.Rows, cells)
			}
		}
		if len(t.Rows) > 0 {
			tables = append(tables, t)
		}
		i = j - 1
	}
	return tables
}

func splitPipeRow(line string) []string {
	parts := strings.Split(line, "|")
	var cells []string
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			cells = append(cells, trimmed)
		}
	}
	return cells
}

var tagPattern = regexp.MustCompile(`<[^>]+>`)

// StripHTML renders markdown-with-HTML down to plain text. Block-level tags
// become newlines so line-oriented regex scans keep working.
func StripHTML(markdown string) string {
	if !strings.Contains(markdown, "<") {
		return markdown
	}
	doc, err := html.Parse(strings.NewReader(markdown))
	if err != nil {
		return tagPattern.ReplaceAllString(markdown, " ")
	}
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		if n.Type == html.ElementNode {
			switch n.Data {
			case "br", "p", "div", "tr", "li", "h1", "h2", "h3", "h4", "h5", "h6":
				b.WriteString("\n")
			case "td", "th":
				b.WriteString(" ")
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return b.String()
}
