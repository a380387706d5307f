package source

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
	"golang.org/x/time/rate"

	"github.com/sells-group/lending-harvest/internal/fetcher"
	"github.com/sells-group/lending-harvest/internal/model"
)

type stubOCR struct {
	pages []string
	calls int
}

func (s *stubOCR) ExtractPages(_ context.Context, path string) ([]string, error) {
	s.calls++
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	return s.pages, nil
}

// site is a fake origin that records which paths were requested.
type site struct {
	*httptest.Server
	mu   sync.Mutex
	hits map[string]int
}

func newSite(t *testing.T, routes map[string]func(w http.ResponseWriter, r *http.Request)) *site {
	t.Helper()
	s := &site{hits: map[string]int{}}
	mux := http.NewServeMux()
	for p, h := range routes {
		h := h
		path := p
		mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
			s.mu.Lock()
			s.hits[r.URL.Path]++
			s.mu.Unlock()
			h(w, r)
		})
	}
	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

func (s *site) hit(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[path]
}

func html(body string) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte("<html><body>" + body + "</body></html>"))
	}
}

func raw(contentType string, data []byte) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", contentType)
		_, _ = w.Write(data)
	}
}

func testDeps(t *testing.T, ocr *stubOCR) Deps {
	t.Helper()
	d := Deps{
		Fetcher: fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
			Timeout:    5 * time.Second,
			MaxRetries: 1,
			HostRate:   rate.Inf,
			Sleep:      func(context.Context, time.Duration) error { return nil },
		}),
		Now:     func() time.Time { return time.Date(2024, time.June, 20, 12, 0, 0, 0, time.UTC) },
		TempDir: t.TempDir(),
	}
	if ocr != nil {
		d.OCR = ocr
	}
	return d
}

func byName(recs []model.Record) map[string]model.Record {
	out := make(map[string]model.Record, len(recs))
	for _, r := range recs {
		out[r.Name] = r
	}
	return out
}

func requireFloat(t *testing.T, want float64, got *float64) {
	t.Helper()
	require.NotNil(t, got)
	assert.InDelta(t, want, *got, 1e-9)
}

func TestResearch_Scrape(t *testing.T) {
	s := newSite(t, map[string]func(http.ResponseWriter, *http.Request){
		"/search": func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "消费金融", r.URL.Query().Get("keyword"))
			assert.Equal(t, "report", r.URL.Query().Get("type"))
			html(`
<div class="report-item"><a class="title" href="/reports/2023.html">2023年消费金融报告</a><span class="date">2023-12-30</span></div>
<div class="report-item"><a class="title" href="/reports/2024.pdf">助贷市场研究</a><span class="date">2024-05-01</span></div>
<div class="report-item"><span class="date">2024-01-01</span></div>`)(w, r)
		},
		"/reports/2023.html": html(`
<p>2023年12月，借呗贷款余额为2,100亿元。</p>
<p>平台介绍，无数据。</p>
<table><tr><th>平台</th><th>2023年12月规模(亿元)</th></tr><tr><td>美团借钱</td><td>500</td></tr></table>`),
		"/reports/2024.pdf": raw("application/pdf", []byte("%PDF-1.4 fake")),
	})

	ocr := &stubOCR{pages: []string{"封面", "2024年第2季度，度小满放款规模达到300亿元"}}
	a, err := NewResearch(testDeps(t, ocr), Options{BaseURL: s.URL})
	require.NoError(t, err)
	assert.Equal(t, "research:艾瑞咨询", a.Name())

	recs, err := a.Scrape(context.Background())
	require.NoError(t, err)
	require.Len(t, recs, 3)

	// Newest report first.
	assert.Equal(t, "度小满", recs[0].Name)
	assert.Equal(t, 1, ocr.calls)

	got := byName(recs)
	requireFloat(t, 300, got["度小满"].Issued)
	assert.Equal(t, model.Period{Year: 2024, Month: 6}, got["度小满"].Period)
	assert.Equal(t, s.URL+"/reports/2024.pdf", got["度小满"].SourceURL)

	requireFloat(t, 2100, got["借呗"].Balance)
	assert.Equal(t, model.Period{Year: 2023, Month: 12}, got["借呗"].Period)
	assert.Equal(t, researchLabel, got["借呗"].SourceLabel)

	requireFloat(t, 500, got["美团借钱"].Balance)
	assert.Equal(t, "美团", got["美团借钱"].Group)
}

func TestResearch_MaxItems(t *testing.T) {
	s := newSite(t, map[string]func(http.ResponseWriter, *http.Request){
		"/search": html(`
<div class="report-item"><a class="title" href="/r/a.html">2022 报告</a></div>
<div class="report-item"><a class="title" href="/r/b.html">2024 报告</a></div>`),
		"/r/": html(`<p>2024年3月，花呗贷款余额1000亿元</p>`),
	})

	a, err := NewResearch(testDeps(t, nil), Options{BaseURL: s.URL, MaxItems: 1})
	require.NoError(t, err)
	recs, err := a.Scrape(context.Background())
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, 1, s.hit("/r/b.html"))
	assert.Equal(t, 0, s.hit("/r/a.html"))
}

func TestCorporate_Scrape(t *testing.T) {
	s := newSite(t, map[string]func(http.ResponseWriter, *http.Request){
		"/investor-relations": html(`
<a href="/reports/annual-2023.html">2023年度报告</a>
<a href="/reports/annual-2024.pdf">2024年报</a>
<a href="/reports/annual-report.html">Annual Report</a>
<a href="/about">关于我们</a>`),
		"/reports/annual-2023.html": html(`
<p>2023年第4季度，花呗贷款余额1800亿元，采用联合贷模式。</p>
<p>美团余额100亿元。</p>
<table><tr><th>产品</th><th>余额(亿元)</th><th>发放(亿元)</th></tr><tr><td>借呗</td><td>2100</td><td>900</td></tr></table>`),
		"/reports/annual-2024.pdf":    raw("application/pdf", []byte("%PDF-1.4 fake")),
		"/reports/annual-report.html": html(`<p>花呗贷款余额1亿元</p>`),
	})

	ocr := &stubOCR{pages: []string{"2024年第1季度，网商银行贷款余额为3000亿元，服务小微企业"}}
	a, err := NewCorporate(testDeps(t, ocr), Options{BaseURL: s.URL})
	require.NoError(t, err)

	recs, err := a.Scrape(context.Background())
	require.NoError(t, err)

	got := byName(recs)
	require.Len(t, got, 3)
	assert.NotContains(t, got, "美团")
	assert.Equal(t, 0, s.hit("/reports/annual-report.html"))
	assert.Equal(t, 0, s.hit("/about"))

	requireFloat(t, 3000, got["网商银行"].Balance)
	assert.Equal(t, model.Period{Year: 2024, Month: 3}, got["网商银行"].Period)
	assert.Equal(t, model.UsageBusiness, got["网商银行"].Usage)
	assert.Equal(t, "蚂蚁集团财报", got["网商银行"].SourceLabel)

	requireFloat(t, 1800, got["花呗"].Balance)
	assert.Equal(t, model.Period{Year: 2023, Month: 12}, got["花呗"].Period)

	requireFloat(t, 2100, got["借呗"].Balance)
	requireFloat(t, 900, got["借呗"].Issued)
	assert.Equal(t, model.Period{Year: 2023, Month: 12}, got["借呗"].Period)
}

func TestCorporate_UnsupportedCompany(t *testing.T) {
	_, err := NewCorporate(testDeps(t, nil), Options{Source: "不存在公司"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not support")
}

func buildWorkbook(t *testing.T, sheets map[string][][]string, order ...string) []byte {
	t.Helper()
	f := xlsx.NewFile()
	for _, name := range order {
		sheet, err := f.AddSheet(name)
		require.NoError(t, err)
		for _, rowData := range sheets[name] {
			row := sheet.AddRow()
			for _, cell := range rowData {
				row.AddCell().SetString(cell)
			}
		}
	}
	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))
	return buf.Bytes()
}

func TestRegulator_Scrape(t *testing.T) {
	const xlsxType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	jan := buildWorkbook(t, map[string][][]string{
		"表1": {
			{"机构", "余额", "发放"},
			{"花呗", "1,800.5", "200"},
			{"招商银行", "900"},
			{"合计", "3000"},
		},
	}, "表1")
	oct := buildWorkbook(t, map[string][][]string{
		"2023年9月": {{"微粒贷", "700", "80"}},
	}, "2023年9月")

	s := newSite(t, map[string]func(http.ResponseWriter, *http.Request){
		"/diaochatongjisi": html(`
<a href="/files/20231015.xlsx">2023年10月数据</a>
<a href="/files/20240115.xlsx">2024年1月数据</a>
<a href="/files/20220101.xls">旧数据</a>
<a href="/files/notes.pdf">说明</a>`),
		"/files/20240115.xlsx": raw(xlsxType, jan),
		"/files/20231015.xlsx": raw(xlsxType, oct),
		"/files/20220101.xls":  raw("application/vnd.ms-excel", []byte("legacy")),
	})

	a, err := NewRegulator(testDeps(t, nil), Options{BaseURL: s.URL, MaxItems: 3})
	require.NoError(t, err)

	recs, err := a.Scrape(context.Background())
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, 0, s.hit("/files/20220101.xls"))

	// Newest file first.
	assert.Equal(t, "花呗", recs[0].Name)

	got := byName(recs)
	requireFloat(t, 1800.5, got["花呗"].Balance)
	requireFloat(t, 200, got["花呗"].Issued)
	assert.Equal(t, model.Period{Year: 2024, Month: 1}, got["花呗"].Period)
	assert.Equal(t, "中国人民银行 (表1)", got["花呗"].SourceLabel)

	assert.Equal(t, model.KindBank, got["招商银行"].Kind)
	assert.Equal(t, "股份制", got["招商银行"].BankType)
	requireFloat(t, 900, got["招商银行"].TotalInternetLoan)

	assert.Equal(t, model.Period{Year: 2023, Month: 9}, got["微粒贷"].Period)
}

func TestMedia_Scrape(t *testing.T) {
	s := newSite(t, map[string]func(http.ResponseWriter, *http.Request){
		"/search/": func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "消费金融", r.URL.Query().Get("q"))
			html(`
<div class="news-list">
  <div class="news-item"><a class="title" href="/a/1.html">花呗规模</a><span class="date">2024-06-18 10:00</span></div>
  <div class="news-item"><a class="title" href="/a/2.html">旧闻</a><span class="date">2024-05-01</span></div>
  <div class="news-item"><a class="title" href="/a/3.html">无日期</a></div>
</div>`)(w, r)
		},
		"/a/1.html": html(`<div class="article-content"><p>花呗贷款余额达到1800亿元，同比增长10%。</p><p>2023年12月，借呗贷款余额为900亿元。</p></div>`),
		"/a/2.html": html(`<div class="article-content"><p>花呗贷款余额达到1亿元。</p></div>`),
	})

	a, err := NewMedia(testDeps(t, nil), Options{BaseURL: s.URL, Search: []string{"消费金融"}, Days: 3})
	require.NoError(t, err)

	recs, err := a.Scrape(context.Background())
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, 1, s.hit("/a/1.html"))
	assert.Equal(t, 0, s.hit("/a/2.html"))
	assert.Equal(t, 0, s.hit("/a/3.html"))

	r := recs[0]
	assert.Equal(t, "花呗", r.Name)
	requireFloat(t, 1800, r.Balance)
	requireFloat(t, 10, r.YoYGrowth)
	assert.Equal(t, model.Period{Year: 2024, Month: 6}, r.Period)
	assert.Equal(t, "新浪财经", r.SourceLabel)
	assert.Equal(t, s.URL+"/a/1.html", r.SourceURL)

	// The month in the second paragraph dates only that paragraph's figure.
	jb := recs[1]
	assert.Equal(t, "借呗", jb.Name)
	requireFloat(t, 900, jb.Balance)
	assert.Nil(t, jb.Issued)
	assert.Equal(t, model.Period{Year: 2023, Month: 12}, jb.Period)
}

func TestScrape_FetchFailureIsNoData(t *testing.T) {
	s := newSite(t, map[string]func(http.ResponseWriter, *http.Request){
		"/": func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusForbidden) },
	})

	for _, name := range []string{"research", "corporate", "regulator", "media"} {
		t.Run(name, func(t *testing.T) {
			a, err := NewDefaultRegistry().Create(name, testDeps(t, nil), Options{BaseURL: s.URL})
			require.NoError(t, err)
			recs, err := a.Scrape(context.Background())
			assert.NoError(t, err)
			assert.Empty(t, recs)
		})
	}
}

func TestScrape_ContextCancelled(t *testing.T) {
	s := newSite(t, map[string]func(http.ResponseWriter, *http.Request){
		"/": html(`<p>ok</p>`),
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	a, err := NewMedia(testDeps(t, nil), Options{BaseURL: s.URL})
	require.NoError(t, err)
	_, err = a.Scrape(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestParsePublished(t *testing.T) {
	now := time.Date(2024, time.June, 20, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		in   string
		want time.Time
		ok   bool
	}{
		{"2024-06-18 10:00", time.Date(2024, 6, 18, 0, 0, 0, 0, time.UTC), true},
		{"2024/6/1", time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), true},
		{"2023年12月5日", time.Date(2023, 12, 5, 0, 0, 0, 0, time.UTC), true},
		{"06-18", time.Date(2024, 6, 18, 0, 0, 0, 0, time.UTC), true},
		{"3月15日", time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), true},
		{"12-30", time.Date(2023, 12, 30, 0, 0, 0, 0, time.UTC), true},
		{"06-20", time.Date(2024, 6, 20, 0, 0, 0, 0, time.UTC), true},
		{"2024-02-30", time.Time{}, false},
		{"昨天", time.Time{}, false},
		{"", time.Time{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := parsePublished(tt.in, now)
			assert.Equal(t, tt.ok, ok)
			assert.True(t, tt.want.Equal(got), "got %v", got)
		})
	}
}

func TestFileDate(t *testing.T) {
	assert.Equal(t, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), fileDate("https://x/files/20240115.xlsx"))
	assert.True(t, fileDate("https://x/files/data.xlsx").IsZero())
	assert.True(t, fileDate("https://x/files/20241340.xlsx").IsZero())
}
