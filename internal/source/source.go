// Package source implements the per-origin adapters that turn listing
// pages, reports, filings, spreadsheets and articles into candidate
// records, plus the registry that builds them by name.
package source

import (
	"context"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lending-harvest/internal/entity"
	"github.com/sells-group/lending-harvest/internal/extract"
	"github.com/sells-group/lending-harvest/internal/fetcher"
	"github.com/sells-group/lending-harvest/internal/model"
	"github.com/sells-group/lending-harvest/internal/ocr"
	"github.com/sells-group/lending-harvest/internal/scrape"
)

// Adapter scrapes one configured origin.
type Adapter interface {
	// Name identifies the adapter instance, e.g. "media:新浪财经".
	Name() string

	// Scrape fetches and extracts candidate records. Fetch and parse
	// failures are absorbed and logged; only context cancellation is
	// returned as an error.
	Scrape(ctx context.Context) ([]model.Record, error)
}

// Deps are the shared collaborators every adapter composes.
type Deps struct {
	Fetcher    fetcher.Fetcher
	OCR        ocr.Extractor
	Recognizer *entity.Recognizer
	Now        func() time.Time

	// TempDir receives downloaded documents. Empty uses os.TempDir.
	TempDir string
}

// Options select and tune an origin for one job.
type Options struct {
	// Source names the origin within an adapter kind (e.g. "蚂蚁集团").
	// Empty selects the kind's default origin.
	Source string

	// MaxItems caps the number of reports, filings, files or articles per
	// search keyword. Zero uses the adapter default.
	MaxItems int

	// Search holds search terms for adapters that query a search page.
	Search []string

	// Days is the trailing window for dated listings (media).
	Days int

	// BaseURL, ListPath and Allow override the origin's built-in settings.
	BaseURL  string
	ListPath string
	Allow    []string
}

// origin is the fixed configuration of one upstream site.
type origin struct {
	name     string
	baseURL  string
	listPath string
	param    string
	allow    []string
}

// resolve applies option overrides to o.
func (o origin) resolve(opts Options) origin {
	if opts.BaseURL != "" {
		o.baseURL = strings.TrimRight(opts.BaseURL, "/")
	}
	if opts.ListPath != "" {
		o.listPath = opts.ListPath
	}
	if len(opts.Allow) > 0 {
		o.allow = opts.Allow
	}
	return o
}

func (o origin) listURL() string {
	return o.baseURL + o.listPath
}

// pickOrigin looks up name in origins, defaulting to def when name is empty.
func pickOrigin(kind string, origins map[string]origin, name, def string) (origin, error) {
	if name == "" {
		name = def
	}
	o, ok := origins[name]
	if !ok {
		known := make([]string, 0, len(origins))
		for k := range origins {
			known = append(known, k)
		}
		sort.Strings(known)
		return origin{}, eris.Errorf("source: %s does not support %q (known: %s)", kind, name, strings.Join(known, ", "))
	}
	return o, nil
}

// lendingTerms is the allowlist shared by report and media origins.
var lendingTerms = []string{"贷款", "信贷", "余额", "存量", "发放", "放款", "交易", "规模"}

var yearRe = regexp.MustCompile(`20\d{2}`)

// parseYear returns the first 20xx year in s, or zero.
func parseYear(s string) int {
	m := yearRe.FindString(s)
	if m == "" {
		return 0
	}
	y, _ := strconv.Atoi(m)
	return y
}

// base holds what every adapter needs to talk to its origin.
type base struct {
	name   string
	origin origin
	deps   Deps
	ex     *extract.Set
	log    *zap.Logger
}

func newBase(kind string, o origin, deps Deps) base {
	if deps.Recognizer == nil {
		deps.Recognizer = entity.NewDefault()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	name := kind + ":" + o.name
	return base{
		name:   name,
		origin: o,
		deps:   deps,
		ex:     extract.NewSet(deps.Recognizer),
		log:    zap.L().With(zap.String("component", "source"), zap.String("adapter", name)),
	}
}

func (b *base) Name() string { return b.name }

// page fetches and parses an HTML page. A nil page means the fetch failed
// and was logged; the error is only set for context cancellation.
func (b *base) page(ctx context.Context, rawURL string, params url.Values) (*scrape.Page, error) {
	body, err := b.deps.Fetcher.Fetch(ctx, fetcher.Request{
		URL:     rawURL,
		Params:  params,
		Referer: b.origin.baseURL,
	})
	if err != nil {
		return nil, b.absorb(ctx, "fetch page", rawURL, err)
	}
	p, err := scrape.ParsePage(body, rawURL)
	if err != nil {
		return nil, b.absorb(ctx, "parse page", rawURL, err)
	}
	return p, nil
}

// document downloads a PDF and returns its page texts.
func (b *base) document(ctx context.Context, rawURL string) ([]string, error) {
	if b.deps.OCR == nil {
		b.log.Warn("source: no document extractor configured, skipping", zap.String("url", rawURL))
		return nil, nil
	}
	dir := b.deps.TempDir
	if dir == "" {
		dir = os.TempDir()
	}
	f, err := os.CreateTemp(dir, "harvest-*.pdf")
	if err != nil {
		return nil, b.absorb(ctx, "create temp file", rawURL, err)
	}
	path := f.Name()
	_ = f.Close()
	defer os.Remove(path)

	if _, err := b.deps.Fetcher.FetchToFile(ctx, fetcher.Request{URL: rawURL, Referer: b.origin.baseURL}, path); err != nil {
		return nil, b.absorb(ctx, "download document", rawURL, err)
	}
	pages, err := b.deps.OCR.ExtractPages(ctx, path)
	if err != nil {
		return nil, b.absorb(ctx, "extract document", rawURL, err)
	}
	return pages, nil
}

// htmlRecords runs the text extractor over paragraphs and the table
// extractor over tables.
func (b *base) htmlRecords(p *scrape.Page, ectx extract.Context) []model.Record {
	var out []model.Record
	for _, para := range p.Paragraphs {
		out = append(out, b.ex.Text.Extract(para, ectx)...)
	}
	for _, t := range p.Tables {
		out = append(out, b.ex.Table.Extract(t, ectx)...)
	}
	return out
}

// report extracts a report or filing that may be HTML or PDF.
func (b *base) report(ctx context.Context, rawURL string, ectx extract.Context) ([]model.Record, error) {
	ectx.SourceURL = rawURL
	if isPDF(rawURL) {
		pages, err := b.document(ctx, rawURL)
		if err != nil {
			return nil, err
		}
		return b.ex.Document.Extract(pages, ectx), nil
	}
	p, err := b.page(ctx, rawURL, nil)
	if err != nil || p == nil {
		return nil, err
	}
	return b.htmlRecords(p, ectx), nil
}

// absorb logs a per-item failure. Context cancellation is the only error
// passed back to stop the run.
func (b *base) absorb(ctx context.Context, op, rawURL string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return eris.Wrapf(ctxErr, "source: %s %s", b.name, op)
	}
	b.log.Warn("source: "+op+" failed, no data this cycle",
		zap.String("url", rawURL), zap.Error(err))
	return nil
}

var pdfMatcher = scrape.NewPathMatcher("*.pdf")

func isPDF(rawURL string) bool {
	return pdfMatcher.Match(rawURL)
}

func extOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(filepath.Ext(u.Path))
}
