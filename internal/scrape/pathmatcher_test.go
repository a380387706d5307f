package scrape

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPathMatcher_Match(t *testing.T) {
	t.Parallel()
	m := NewPathMatcher("*.pdf", "/investor-relations/*", " ")

	tests := []struct {
		name  string
		url   string
		match bool
	}{
		{"root pdf", "https://www.antgroup.com/report.pdf", true},
		{"nested pdf", "https://www.antgroup.com/files/2024/AR.PDF", true},
		{"ir root", "https://www.antgroup.com/investor-relations", true},
		{"ir deep", "https://www.antgroup.com/investor-relations/2024/annual", true},
		{"html page", "https://www.antgroup.com/about.html", false},
		{"pdf in query only", "https://x.example/view?file=a.pdf", false},
		{"invalid url", "://bad", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.match, m.Match(tt.url))
		})
	}
	assert.Equal(t, []string{"*.pdf", "/investor-relations/*"}, m.Patterns())
}

func TestPathMatcher_EmptyMatchesNothing(t *testing.T) {
	var nilMatcher *PathMatcher
	assert.False(t, nilMatcher.Match("https://x.example/a.pdf"))
	assert.False(t, NewPathMatcher().Match("https://x.example/a.pdf"))
}

func TestPathMatcher_Filter(t *testing.T) {
	m := NewPathMatcher("*.xlsx")
	got := m.Filter([]string{
		"https://www.pbc.gov.cn/diaochatongjisi/attachDir/2024/04/20240415.xlsx",
		"https://www.pbc.gov.cn/diaochatongjisi/index.html",
		"https://www.pbc.gov.cn/old/20230101.xls",
	})
	assert.Equal(t, []string{"https://www.pbc.gov.cn/diaochatongjisi/attachDir/2024/04/20240415.xlsx"}, got)
}

func TestMatchSegmented(t *testing.T) {
	t.Parallel()
	tests := []struct {
		pattern string
		urlPath string
		match   bool
	}{
		{"/ir/*", "/ir/q4", true},
		{"/ir/*", "/ir", true},
		{"/ir/*", "/irony", false},
		{"/*.pdf", "/a.pdf", true},
		{"/*.pdf", "/docs/a.pdf", false},
		{"*.pdf", "/docs/a.pdf", true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.match, matchSegmented(tt.pattern, tt.urlPath), "%s vs %s", tt.pattern, tt.urlPath)
	}
}
