package extract

import (
	"github.com/sells-group/lending-harvest/internal/entity"
	"github.com/sells-group/lending-harvest/internal/fetcher"
	"github.com/sells-group/lending-harvest/internal/model"
	"github.com/sells-group/lending-harvest/internal/scrape"
)

// DocumentExtractor runs text extraction page by page over a paginated
// document (PDF text, one string per page).
type DocumentExtractor struct {
	text *TextExtractor
}

// NewDocumentExtractor creates a DocumentExtractor.
func NewDocumentExtractor(rec *entity.Recognizer) *DocumentExtractor {
	return &DocumentExtractor{text: NewTextExtractor(rec)}
}

// Extract skips pages without any allowlisted keyword and text-extracts
// the rest as single units.
func (e *DocumentExtractor) Extract(pages []string, ctx Context) []model.Record {
	var out []model.Record
	for _, page := range pages {
		if !Allowed(Fold(page), ctx.Keywords) {
			continue
		}
		out = append(out, e.text.Extract(page, ctx)...)
	}
	return out
}

// Set bundles the four extractors over one recognizer.
type Set struct {
	Text     *TextExtractor
	Table    *TableExtractor
	Sheet    *SheetExtractor
	Document *DocumentExtractor
}

// NewSet builds every extractor around rec.
func NewSet(rec *entity.Recognizer) *Set {
	return &Set{
		Text:     NewTextExtractor(rec),
		Table:    NewTableExtractor(rec),
		Sheet:    NewSheetExtractor(rec),
		Document: NewDocumentExtractor(rec),
	}
}

var (
	_ Extractor[string]        = (*TextExtractor)(nil)
	_ Extractor[scrape.Table]  = (*TableExtractor)(nil)
	_ Extractor[fetcher.Sheet] = (*SheetExtractor)(nil)
	_ Extractor[[]string]      = (*DocumentExtractor)(nil)
)
