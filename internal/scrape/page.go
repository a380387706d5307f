// Package scrape turns fetched HTML into the units extractors consume:
// paragraphs, tables and resolved links.
package scrape

import (
	"bytes"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
)

// Table is an HTML table flattened to cell text. Headers holds the first
// row; Rows holds the rest.
type Table struct {
	Headers []string
	Rows    [][]string
}

// Link is an anchor with its href resolved against the page URL.
type Link struct {
	Text string
	URL  string
}

// Page is the parsed form of one HTML document.
type Page struct {
	URL        string
	Title      string
	Paragraphs []string
	Tables     []Table
	Links      []Link

	doc *goquery.Document
}

// Document returns the underlying goquery document for custom selection.
func (p *Page) Document() *goquery.Document {
	return p.doc
}

// ParsePage parses body as HTML. Relative links resolve against pageURL.
func ParsePage(body []byte, pageURL string) (*Page, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "scrape: parse html")
	}

	base, _ := url.Parse(pageURL)
	p := &Page{
		URL:   pageURL,
		Title: CleanText(doc.Find("title").First().Text()),
		doc:   doc,
	}

	p.Paragraphs = Texts(doc.Find("p"))
	doc.Find("table").Each(func(_ int, s *goquery.Selection) {
		if t, ok := parseTable(s); ok {
			p.Tables = append(p.Tables, t)
		}
	})
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		if abs := Resolve(base, href); abs != "" {
			p.Links = append(p.Links, Link{Text: CleanText(s.Text()), URL: abs})
		}
	})
	return p, nil
}

// parseTable flattens one table selection.
func parseTable(s *goquery.Selection) (Table, bool) {
	var rows [][]string
	s.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		var cells []string
		tr.Find("th, td").Each(func(_ int, c *goquery.Selection) {
			cells = append(cells, CleanText(c.Text()))
		})
		if len(cells) > 0 {
			rows = append(rows, cells)
		}
	})
	if len(rows) == 0 {
		return Table{}, false
	}
	return Table{Headers: rows[0], Rows: rows[1:]}, true
}

// Resolve makes href absolute against base. Fragments, javascript: and
// mailto: links resolve to "".
func Resolve(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return ""
	}
	lower := strings.ToLower(href)
	if strings.HasPrefix(lower, "javascript:") || strings.HasPrefix(lower, "mailto:") {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if base != nil {
		ref = base.ResolveReference(ref)
	}
	if !ref.IsAbs() {
		return ""
	}
	ref.Fragment = ""
	return ref.String()
}

var spaceRun = regexp.MustCompile(`\s+`)

// CleanText collapses whitespace runs (including full-width spaces) and trims.
func CleanText(s string) string {
	s = strings.ReplaceAll(s, "\u3000", " ")
	s = strings.ReplaceAll(s, "\u00a0", " ")
	return strings.TrimSpace(spaceRun.ReplaceAllString(s, " "))
}

// Texts returns the cleaned, non-empty text of every node in sel.
func Texts(sel *goquery.Selection) []string {
	var out []string
	sel.Each(func(_ int, s *goquery.Selection) {
		if t := CleanText(s.Text()); t != "" {
			out = append(out, t)
		}
	})
	return out
}
