package source

import (
	"context"
	"net/url"
	"regexp"
	"sort"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/sells-group/lending-harvest/internal/extract"
	"github.com/sells-group/lending-harvest/internal/model"
	"github.com/sells-group/lending-harvest/internal/scrape"
)

var researchOrigins = map[string]origin{
	"艾瑞咨询": {name: "艾瑞咨询", baseURL: "https://www.iresearch.com.cn", listPath: "/search", param: "keyword", allow: lendingTerms},
	"易观分析": {name: "易观分析", baseURL: "https://www.analysys.cn", listPath: "/search", param: "keyword", allow: lendingTerms},
}

var (
	reportItemRe  = regexp.MustCompile(`\breport-item\b`)
	reportTitleRe = regexp.MustCompile(`\btitle\b`)
	reportDateRe  = regexp.MustCompile(`\bdate\b`)
)

const researchLabel = "研究报告"

type reportRef struct {
	title string
	url   string
	year  int
}

// Research scrapes industry reports from research aggregators. Reports
// are searched by keyword, ordered newest year first and extracted as
// HTML or PDF.
type Research struct {
	base
	search   []string
	maxItems int
}

// NewResearch creates a research-report adapter.
func NewResearch(deps Deps, opts Options) (Adapter, error) {
	o, err := pickOrigin("research", researchOrigins, opts.Source, "艾瑞咨询")
	if err != nil {
		return nil, err
	}
	r := &Research{
		base:     newBase("research", o.resolve(opts), deps),
		search:   opts.Search,
		maxItems: opts.MaxItems,
	}
	if len(r.search) == 0 {
		r.search = []string{"消费金融"}
	}
	if r.maxItems <= 0 {
		r.maxItems = 10
	}
	return r, nil
}

// Scrape implements Adapter.
func (r *Research) Scrape(ctx context.Context) ([]model.Record, error) {
	var out []model.Record
	seen := map[string]bool{}
	for _, kw := range r.search {
		reports, err := r.list(ctx, kw)
		if err != nil {
			return out, err
		}
		for _, rep := range reports {
			if seen[rep.url] {
				continue
			}
			seen[rep.url] = true

			r.log.Info("source: parsing report", zap.String("title", rep.title), zap.Int("year", rep.year))
			recs, err := r.report(ctx, rep.url, extract.Context{
				SourceLabel: researchLabel,
				Year:        rep.year,
				Keywords:    r.origin.allow,
			})
			if err != nil {
				return out, err
			}
			out = append(out, recs...)
		}
	}
	r.log.Info("source: research scrape complete", zap.Int("records", len(out)))
	return out, nil
}

// list returns up to maxItems reports for keyword, newest year first.
func (r *Research) list(ctx context.Context, keyword string) ([]reportRef, error) {
	params := url.Values{}
	params.Set(r.origin.param, keyword)
	params.Set("type", "report")

	p, err := r.page(ctx, r.origin.listURL(), params)
	if err != nil || p == nil {
		return nil, err
	}
	base, _ := url.Parse(p.URL)

	var reports []reportRef
	scrape.ByClass(p.Document().Selection, "div", reportItemRe).Each(func(_ int, item *goquery.Selection) {
		a := scrape.FirstByClass(item, "a", reportTitleRe)
		href := scrape.Resolve(base, scrape.Href(a))
		if href == "" {
			return
		}
		title := scrape.CleanText(a.Text())
		date := scrape.CleanText(scrape.ByClass(item, "span", reportDateRe).First().Text())
		year := parseYear(date)
		if year == 0 {
			year = parseYear(title)
		}
		reports = append(reports, reportRef{title: title, url: href, year: year})
	})

	sort.SliceStable(reports, func(i, j int) bool { return reports[i].year > reports[j].year })
	r.log.Info("source: reports found", zap.String("keyword", keyword), zap.Int("count", len(reports)))
	if len(reports) > r.maxItems {
		reports = reports[:r.maxItems]
	}
	return reports, nil
}
