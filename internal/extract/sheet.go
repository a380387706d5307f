package extract

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/lending-harvest/internal/entity"
	"github.com/sells-group/lending-harvest/internal/fetcher"
	"github.com/sells-group/lending-harvest/internal/model"
)

// SheetExtractor reads spreadsheet sheets positionally: after the cell
// naming an entity, the first two numeric cells are taken as balance and
// issuance. Headers are not consulted, so mis-ordered columns yield
// mislabeled figures.
type SheetExtractor struct {
	rec *entity.Recognizer
}

// NewSheetExtractor creates a SheetExtractor.
func NewSheetExtractor(rec *entity.Recognizer) *SheetExtractor {
	return &SheetExtractor{rec: rec}
}

// Extract returns one candidate per row naming a known entity. The source
// label is suffixed with the sheet name.
func (e *SheetExtractor) Extract(s fetcher.Sheet, ctx Context) []model.Record {
	label := ctx.SourceLabel
	if s.Name != "" {
		label = fmt.Sprintf("%s (%s)", ctx.SourceLabel, s.Name)
	}
	rowCtx := ctx
	rowCtx.SourceLabel = label

	var out []model.Record
	for i, row := range s.Rows {
		rowText := strings.Join(row, " ")
		if !Allowed(rowText, ctx.Keywords) {
			continue
		}

		col, m, ok := e.entityColumn(row)
		if !ok {
			continue
		}

		nums := numericAfter(row, col, 2)
		if len(nums) == 0 {
			zap.L().Debug("extract: entity row without figures",
				zap.String("sheet", s.Name), zap.Int("row", i), zap.String("name", m.Name))
			continue
		}

		period := ResolvePeriod(rowText+" "+s.Name, rowCtx)
		r := newRecord(m, period, rowText, rowCtx)
		if m.Kind == model.KindBank {
			r.TotalInternetLoan = &nums[0]
		} else {
			r.Balance = &nums[0]
			if len(nums) > 1 {
				r.Issued = &nums[1]
			}
		}

		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}

func (e *SheetExtractor) entityColumn(row []string) (int, entity.Match, bool) {
	for i, cell := range row {
		if m, ok := e.rec.First(cell); ok {
			return i, m, true
		}
	}
	return -1, entity.Match{}, false
}

// numericAfter collects up to limit convertible cells to the right of col.
// Non-numeric cells are expected in this scan and skipped silently.
func numericAfter(row []string, col, limit int) []float64 {
	var out []float64
	for _, cell := range row[col+1:] {
		if strings.TrimSpace(cell) == "" {
			continue
		}
		v, err := ParseAmount(cell)
		if err != nil {
			continue
		}
		out = append(out, v)
		if len(out) == limit {
			break
		}
	}
	return out
}
