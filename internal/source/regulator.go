package source

import (
	"context"
	"regexp"
	"sort"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/lending-harvest/internal/extract"
	"github.com/sells-group/lending-harvest/internal/fetcher"
	"github.com/sells-group/lending-harvest/internal/model"
	"github.com/sells-group/lending-harvest/internal/scrape"
)

var regulatorOrigins = map[string]origin{
	"中国人民银行": {name: "中国人民银行", baseURL: "https://www.pbc.gov.cn", listPath: "/diaochatongjisi"},
	"银保监会":   {name: "银保监会", baseURL: "https://www.cbirc.gov.cn", listPath: "/cn/static/data"},
}

var (
	spreadsheetMatcher = scrape.NewPathMatcher("*.xlsx", "*.xls")
	fileDateRe         = regexp.MustCompile(`(\d{4})(\d{2})(\d{2})`)
)

type dataFile struct {
	title string
	url   string
	date  time.Time
}

// Regulator scrapes statistical spreadsheets published by regulators.
// Files are ordered newest first by the date embedded in their URL and
// every sheet is extracted. Rows that name no month inherit the month of
// the file date.
type Regulator struct {
	base
	maxItems int
}

// NewRegulator creates a regulator-data adapter.
func NewRegulator(deps Deps, opts Options) (Adapter, error) {
	o, err := pickOrigin("regulator", regulatorOrigins, opts.Source, "中国人民银行")
	if err != nil {
		return nil, err
	}
	r := &Regulator{
		base:     newBase("regulator", o.resolve(opts), deps),
		maxItems: opts.MaxItems,
	}
	if r.maxItems <= 0 {
		r.maxItems = 10
	}
	return r, nil
}

// Scrape implements Adapter.
func (r *Regulator) Scrape(ctx context.Context) ([]model.Record, error) {
	files, err := r.list(ctx)
	if err != nil {
		return nil, err
	}

	var out []model.Record
	for _, f := range files {
		if extOf(f.url) != ".xlsx" {
			r.log.Warn("source: legacy .xls workbook not supported, skipping", zap.String("url", f.url))
			continue
		}
		r.log.Info("source: parsing workbook", zap.String("title", f.title))
		recs, err := r.workbook(ctx, f)
		if err != nil {
			return out, err
		}
		out = append(out, recs...)
	}
	r.log.Info("source: regulator scrape complete", zap.Int("records", len(out)))
	return out, nil
}

func (r *Regulator) list(ctx context.Context) ([]dataFile, error) {
	p, err := r.page(ctx, r.origin.listURL(), nil)
	if err != nil || p == nil {
		return nil, err
	}

	var files []dataFile
	seen := map[string]bool{}
	for _, l := range p.Links {
		if !spreadsheetMatcher.Match(l.URL) || seen[l.URL] {
			continue
		}
		seen[l.URL] = true
		files = append(files, dataFile{title: l.Text, url: l.URL, date: fileDate(l.URL)})
	}

	sort.SliceStable(files, func(i, j int) bool { return files[i].date.After(files[j].date) })
	if len(files) > r.maxItems {
		files = files[:r.maxItems]
	}
	return files, nil
}

func (r *Regulator) workbook(ctx context.Context, f dataFile) ([]model.Record, error) {
	body, err := r.deps.Fetcher.Fetch(ctx, fetcher.Request{URL: f.url, Referer: r.origin.baseURL})
	if err != nil {
		return nil, r.absorb(ctx, "download workbook", f.url, err)
	}
	sheets, err := fetcher.ReadWorkbook(body)
	if err != nil {
		return nil, r.absorb(ctx, "read workbook", f.url, err)
	}

	ectx := extract.Context{
		SourceLabel: r.origin.name,
		SourceURL:   f.url,
		Keywords:    r.origin.allow,
	}
	if !f.date.IsZero() {
		ectx.Year = f.date.Year()
		ectx.DefaultMonth = int(f.date.Month())
	}

	var out []model.Record
	for _, s := range sheets {
		out = append(out, r.ex.Sheet.Extract(s, ectx)...)
	}
	return out, nil
}

// fileDate reads a YYYYMMDD stamp from a file URL. The zero time means no
// valid date was found.
func fileDate(rawURL string) time.Time {
	for _, m := range fileDateRe.FindAllStringSubmatch(rawURL, -1) {
		y, _ := strconv.Atoi(m[1])
		mo, _ := strconv.Atoi(m[2])
		d, _ := strconv.Atoi(m[3])
		t := time.Date(y, time.Month(mo), d, 0, 0, 0, 0, time.UTC)
		if t.Year() == y && int(t.Month()) == mo && t.Day() == d {
			return t
		}
	}
	return time.Time{}
}
