// Package extract locates lending figures next to recognized entities in
// paragraphs, HTML tables, spreadsheet sheets and document pages.
//
// Extraction is heuristic: missed facts and occasional misclassification of
// product or usage type are expected. Unparseable numbers drop the single
// candidate with a warning and never fail the surrounding extraction.
package extract

import (
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/lending-harvest/internal/entity"
	"github.com/sells-group/lending-harvest/internal/model"
)

// Extractor is the contract every unit-specific extractor satisfies.
type Extractor[U any] interface {
	Extract(unit U, ctx Context) []model.Record
}

// Context carries the per-source facts a unit does not state itself.
type Context struct {
	SourceLabel string
	SourceURL   string

	// Year is used when a unit names a quarter or no period at all.
	Year int
	// DefaultMonth applies when nothing in the unit names a month. Zero
	// means December.
	DefaultMonth int

	// Keywords is the adapter allowlist. When non-empty, units containing
	// none of them yield no records.
	Keywords []string
}

func (c Context) defaultPeriod() model.Period {
	month := c.DefaultMonth
	if month == 0 {
		month = 12
	}
	p, err := model.NewPeriod(c.Year, month)
	if err != nil {
		return model.Period{}
	}
	return p
}

// Allowed reports whether text passes the allowlist. An empty allowlist
// admits everything.
func Allowed(text string, keywords []string) bool {
	if len(keywords) == 0 {
		return true
	}
	for _, kw := range keywords {
		if kw != "" && strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

// newRecord fills identity, classification and provenance for a match.
// Bank records carry the charter group as their bank type.
func newRecord(m entity.Match, period model.Period, classifyText string, ctx Context) model.Record {
	r := model.Record{
		Kind:        m.Kind,
		Name:        m.Name,
		Period:      period,
		SourceLabel: ctx.SourceLabel,
		SourceURL:   ctx.SourceURL,
	}
	if m.Kind == model.KindBank {
		r.BankType = m.Group
		return r
	}
	r.Group = m.Group
	r.Product = entity.ClassifyProduct(classifyText)
	r.Usage = entity.ClassifyUsage(classifyText)
	return r
}

// keep applies the final acceptance rules shared by every extractor.
func keep(r model.Record) bool {
	if !r.HasFacts() {
		return false
	}
	if !r.Period.Valid() {
		zap.L().Warn("extract: dropping record without a reporting period",
			zap.String("name", r.Name), zap.String("source_url", r.SourceURL))
		return false
	}
	return true
}

// amount parses a matched figure, logging and discarding failures.
func amount(raw, field string, ctx Context) *float64 {
	v, err := ParseAmount(raw)
	if err != nil {
		zap.L().Warn("extract: unparseable figure dropped",
			zap.String("field", field),
			zap.String("value", raw),
			zap.String("source_url", ctx.SourceURL),
			zap.Error(err),
		)
		return nil
	}
	return &v
}
