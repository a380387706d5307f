package extract

import (
	"strings"

	"github.com/sells-group/lending-harvest/internal/entity"
	"github.com/sells-group/lending-harvest/internal/model"
	"github.com/sells-group/lending-harvest/internal/scrape"
)

// column roles resolved from header text.
type tableColumns struct {
	balance, issued, date, coop, top3 int
}

func resolveColumns(headers []string) tableColumns {
	cols := tableColumns{balance: -1, issued: -1, date: -1, coop: -1, top3: -1}
	for i, h := range headers {
		h = Fold(h)
		switch {
		case cols.issued < 0 && containsAny(h, "发放", "交易", "放款"):
			cols.issued = i
		case cols.balance < 0 && containsAny(h, "余额", "规模"):
			cols.balance = i
		case cols.coop < 0 && strings.Contains(h, "合作"):
			cols.coop = i
		case cols.top3 < 0 && strings.Contains(h, "前三"):
			cols.top3 = i
		case cols.date < 0 && containsAny(h, "月", "时间", "日期"):
			cols.date = i
		}
	}
	return cols
}

// TableExtractor reads HTML tables whose first row is a header. Figures
// are located by header text, not column position, since column order
// differs between sources.
type TableExtractor struct {
	rec *entity.Recognizer
}

// NewTableExtractor creates a TableExtractor.
func NewTableExtractor(rec *entity.Recognizer) *TableExtractor {
	return &TableExtractor{rec: rec}
}

// Extract returns one candidate per data row naming a known entity.
func (e *TableExtractor) Extract(t scrape.Table, ctx Context) []model.Record {
	if len(t.Headers) == 0 || len(t.Rows) == 0 {
		return nil
	}
	headerText := strings.Join(t.Headers, " ")
	cols := resolveColumns(t.Headers)

	var out []model.Record
	for _, row := range t.Rows {
		if len(row) < 2 {
			continue
		}
		rowText := strings.Join(row, " ")
		if !Allowed(headerText+" "+rowText, ctx.Keywords) {
			continue
		}

		m, ok := e.recognizeCells(row)
		if !ok {
			continue
		}

		period := e.rowPeriod(row, cols, headerText, ctx)
		r := newRecord(m, period, rowText, ctx)

		if m.Kind == model.KindBank {
			r.TotalInternetLoan = cellAmount(row, cols.balance, "total_internet_loan", ctx)
			if cols.coop >= 0 && cols.coop < len(row) {
				if n, err := ParseCount(row[cols.coop]); err == nil {
					r.CoopPlatformCount = &n
				}
			}
			if cols.top3 >= 0 && cols.top3 < len(row) {
				if v, err := ParsePercent(row[cols.top3]); err == nil {
					r.Top3Share = &v
				}
			}
		} else {
			r.Balance = cellAmount(row, cols.balance, "loan_balance", ctx)
			r.Issued = cellAmount(row, cols.issued, "loan_issued", ctx)
		}

		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}

// recognizeCells scans cell by cell so the first cell naming an entity wins.
func (e *TableExtractor) recognizeCells(row []string) (entity.Match, bool) {
	for _, cell := range row {
		if m, ok := e.rec.First(cell); ok {
			return m, true
		}
	}
	return entity.Match{}, false
}

// rowPeriod prefers a date column, then any period named in the headers or
// the row, then the context default.
func (e *TableExtractor) rowPeriod(row []string, cols tableColumns, headerText string, ctx Context) model.Period {
	if cols.date >= 0 && cols.date < len(row) {
		if p, ok := periodFromCell(row[cols.date]); ok {
			return p
		}
	}
	return ResolvePeriod(headerText+" "+strings.Join(row, " "), ctx)
}

func cellAmount(row []string, col int, field string, ctx Context) *float64 {
	if col < 0 || col >= len(row) || strings.TrimSpace(row[col]) == "" {
		return nil
	}
	return amount(row[col], field, ctx)
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
