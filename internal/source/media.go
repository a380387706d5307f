package source

import (
	"context"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/sells-group/lending-harvest/internal/extract"
	"github.com/sells-group/lending-harvest/internal/model"
	"github.com/sells-group/lending-harvest/internal/scrape"
)

var mediaOrigins = map[string]origin{
	"新浪财经": {name: "新浪财经", baseURL: "https://finance.sina.com.cn", listPath: "/search/", param: "q", allow: lendingTerms},
	"网易财经": {name: "网易财经", baseURL: "https://money.163.com", listPath: "/search/", param: "q", allow: lendingTerms},
	"搜狐财经": {name: "搜狐财经", baseURL: "https://business.sohu.com", listPath: "/search", param: "keyword", allow: lendingTerms},
}

var (
	articleItemRe = regexp.MustCompile(`article|item|news`)
	articleLinkRe = regexp.MustCompile(`title|link`)
	articleDateRe = regexp.MustCompile(`date|time`)
	articleBodyRe = regexp.MustCompile(`article|content|body`)
	fullDateRe    = regexp.MustCompile(`(\d{4})[-/年](\d{1,2})[-/月](\d{1,2})`)
	shortDateRe   = regexp.MustCompile(`(\d{1,2})(?:-|月)(\d{1,2})`)
	defaultSearch = []string{"消费金融", "互联网贷款", "助贷平台"}
)

type article struct {
	title     string
	url       string
	published time.Time
}

// Media scrapes financial news. Each search keyword is queried, articles
// outside the trailing window are dropped and each article body is text
// extracted with its publication month as the default period.
type Media struct {
	base
	search   []string
	days     int
	maxItems int
}

// NewMedia creates a news-media adapter.
func NewMedia(deps Deps, opts Options) (Adapter, error) {
	o, err := pickOrigin("media", mediaOrigins, opts.Source, "新浪财经")
	if err != nil {
		return nil, err
	}
	m := &Media{
		base:     newBase("media", o.resolve(opts), deps),
		search:   opts.Search,
		days:     opts.Days,
		maxItems: opts.MaxItems,
	}
	if len(m.search) == 0 {
		m.search = defaultSearch
	}
	if m.days <= 0 {
		m.days = 7
	}
	if m.maxItems <= 0 {
		m.maxItems = 20
	}
	return m, nil
}

// Scrape implements Adapter.
func (m *Media) Scrape(ctx context.Context) ([]model.Record, error) {
	var out []model.Record
	seen := map[string]bool{}
	for _, kw := range m.search {
		arts, err := m.searchArticles(ctx, kw)
		if err != nil {
			return out, err
		}
		for _, a := range arts {
			if seen[a.url] {
				continue
			}
			seen[a.url] = true
			recs, err := m.article(ctx, a)
			if err != nil {
				return out, err
			}
			out = append(out, recs...)
		}
	}
	m.log.Info("source: media scrape complete", zap.Int("records", len(out)))
	return out, nil
}

func (m *Media) searchArticles(ctx context.Context, keyword string) ([]article, error) {
	params := url.Values{}
	params.Set(m.origin.param, keyword)
	p, err := m.page(ctx, m.origin.listURL(), params)
	if err != nil || p == nil {
		return nil, err
	}
	base, _ := url.Parse(p.URL)

	now := m.deps.Now()
	cutoff := now.AddDate(0, 0, -m.days)
	var arts []article
	seen := map[string]bool{}
	scrape.ByClass(p.Document().Selection, "div", articleItemRe).Each(func(_ int, item *goquery.Selection) {
		a := scrape.ByClass(item, "a", articleLinkRe).First()
		if a.Length() == 0 {
			return
		}
		href := scrape.Resolve(base, scrape.Href(a))
		if href == "" || seen[href] {
			return
		}
		seen[href] = true
		pub, ok := parsePublished(scrape.ByClass(item, "span", articleDateRe).First().Text(), now)
		if !ok || pub.Before(cutoff) {
			return
		}
		arts = append(arts, article{title: scrape.CleanText(a.Text()), url: href, published: pub})
	})

	m.log.Info("source: articles found", zap.String("keyword", keyword), zap.Int("count", len(arts)))
	if len(arts) > m.maxItems {
		arts = arts[:m.maxItems]
	}
	return arts, nil
}

func (m *Media) article(ctx context.Context, a article) ([]model.Record, error) {
	p, err := m.page(ctx, a.url, nil)
	if err != nil || p == nil {
		return nil, err
	}
	body := scrape.ByClass(p.Document().Selection, "div", articleBodyRe).First()
	if body.Length() == 0 {
		return nil, nil
	}
	paras := scrape.Texts(body.Find("p"))
	if !extract.Allowed(strings.Join(paras, " "), m.origin.allow) {
		return nil, nil
	}

	// Each paragraph is its own unit so a month named in one paragraph
	// does not date the figures of another.
	ectx := extract.Context{
		SourceLabel:  m.origin.name,
		SourceURL:    a.url,
		Year:         a.published.Year(),
		DefaultMonth: int(a.published.Month()),
	}
	var out []model.Record
	for _, para := range paras {
		out = append(out, m.ex.Text.Extract(para, ectx)...)
	}
	return out, nil
}

// parsePublished reads a listing date. Dates without a year ("03-15",
// "3月15日") are taken to be in the current year, or the previous one when
// that would put them after now.
func parsePublished(s string, now time.Time) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if m := fullDateRe.FindStringSubmatch(s); m != nil {
		return dateOf(atoi(m[1]), atoi(m[2]), atoi(m[3]), now.Location())
	}
	if m := shortDateRe.FindStringSubmatch(s); m != nil {
		mo, d := atoi(m[1]), atoi(m[2])
		t, ok := dateOf(now.Year(), mo, d, now.Location())
		if ok && t.After(now) {
			return dateOf(now.Year()-1, mo, d, now.Location())
		}
		return t, ok
	}
	return time.Time{}, false
}

func dateOf(y, mo, d int, loc *time.Location) (time.Time, bool) {
	t := time.Date(y, time.Month(mo), d, 0, 0, 0, 0, loc)
	if t.Year() != y || int(t.Month()) != mo || t.Day() != d {
		return time.Time{}, false
	}
	return t, true
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
