package scrape

import (
	"regexp"

	"github.com/PuerkitoBio/goquery"
)

// ByClass selects descendants of root with tag whose class attribute
// matches re. Listing pages across sites name their containers loosely
// ("news-item", "article_list"), so matching is by pattern.
func ByClass(root *goquery.Selection, tag string, re *regexp.Regexp) *goquery.Selection {
	return root.Find(tag).FilterFunction(func(_ int, s *goquery.Selection) bool {
		class, ok := s.Attr("class")
		return ok && re.MatchString(class)
	})
}

// FirstByClass is ByClass narrowed to the first match, falling back to the
// first tag element when nothing matches the class pattern.
func FirstByClass(root *goquery.Selection, tag string, re *regexp.Regexp) *goquery.Selection {
	if sel := ByClass(root, tag, re); sel.Length() > 0 {
		return sel.First()
	}
	return root.Find(tag).First()
}

// Href returns the href attribute of the first element in sel.
func Href(sel *goquery.Selection) string {
	h, _ := sel.First().Attr("href")
	return h
}
