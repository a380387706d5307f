package source

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/lending-harvest/internal/extract"
	"github.com/sells-group/lending-harvest/internal/model"
)

var corporateOrigins = map[string]origin{
	"蚂蚁集团": {name: "蚂蚁集团", baseURL: "https://www.antgroup.com", listPath: "/investor-relations",
		allow: []string{"花呗", "借呗", "网商银行", "信贷", "贷款"}},
	"京东科技": {name: "京东科技", baseURL: "https://www.jdcloud.com", listPath: "/ir",
		allow: []string{"京东金条", "京东白条", "信贷", "贷款"}},
	"陆金所": {name: "陆金所", baseURL: "https://www.lufaxholding.com", listPath: "/investor-relations",
		allow: []string{"贷款", "信贷", "消费金融"}},
}

var filingHrefRe = regexp.MustCompile(`(?i)(report|earning|annual)`)

// filingTitleMarkers are title fragments that identify a periodic filing.
var filingTitleMarkers = []string{"年报", "年度", "20", "Annual", "Year"}

// Corporate scrapes listed lenders' periodic filings. A filing without a
// year in its title is skipped since its figures cannot be dated.
type Corporate struct {
	base
	maxItems int
}

// NewCorporate creates a corporate-filing adapter.
func NewCorporate(deps Deps, opts Options) (Adapter, error) {
	o, err := pickOrigin("corporate", corporateOrigins, opts.Source, "蚂蚁集团")
	if err != nil {
		return nil, err
	}
	c := &Corporate{
		base:     newBase("corporate", o.resolve(opts), deps),
		maxItems: opts.MaxItems,
	}
	if c.maxItems <= 0 {
		c.maxItems = 5
	}
	return c, nil
}

// Scrape implements Adapter.
func (c *Corporate) Scrape(ctx context.Context) ([]model.Record, error) {
	filings, err := c.list(ctx)
	if err != nil {
		return nil, err
	}

	label := c.origin.name + "财报"
	var out []model.Record
	for _, f := range filings {
		if f.year == 0 {
			continue
		}
		c.log.Info("source: parsing filing", zap.String("title", f.title), zap.Int("year", f.year))
		recs, err := c.report(ctx, f.url, extract.Context{
			SourceLabel: label,
			Year:        f.year,
			Keywords:    c.origin.allow,
		})
		if err != nil {
			return out, err
		}
		out = append(out, recs...)
	}
	c.log.Info("source: corporate scrape complete", zap.Int("records", len(out)))
	return out, nil
}

func (c *Corporate) list(ctx context.Context) ([]reportRef, error) {
	p, err := c.page(ctx, c.origin.listURL(), nil)
	if err != nil || p == nil {
		return nil, err
	}

	var filings []reportRef
	seen := map[string]bool{}
	for _, l := range p.Links {
		if !filingHrefRe.MatchString(l.URL) || seen[l.URL] {
			continue
		}
		if !containsAny(l.Text, filingTitleMarkers) {
			continue
		}
		seen[l.URL] = true
		filings = append(filings, reportRef{title: l.Text, url: l.URL, year: parseYear(l.Text)})
	}

	sort.SliceStable(filings, func(i, j int) bool { return filings[i].year > filings[j].year })
	if len(filings) > c.maxItems {
		filings = filings[:c.maxItems]
	}
	return filings, nil
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
