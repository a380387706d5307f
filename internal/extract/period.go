package extract

import (
	"regexp"
	"strconv"

	"github.com/sells-group/lending-harvest/internal/model"
)

var (
	explicitMonthRe = regexp.MustCompile(`(20\d{2})\s*[-年/.]\s*(\d{1,2})\s*月`)
	quarterRe       = regexp.MustCompile(`(?:(20\d{2})\s*年?\s*)?(?:第\s*([1-4一二三四])\s*季度|[Qq]([1-4]))`)
	dateCellRe      = regexp.MustCompile(`(20\d{2})\s*[-/年.]\s*(\d{1,2})`)
)

var chineseQuarter = map[string]int{"一": 1, "二": 2, "三": 3, "四": 4}

// ResolvePeriod determines the reporting month a text refers to. An
// explicit "YYYY年M月" wins; otherwise a quarter marker maps to its last
// month (quarter x 3); otherwise the context default (December of the
// context year, the annual-report convention). The zero Period means no
// year is known.
func ResolvePeriod(text string, ctx Context) model.Period {
	text = Fold(text)

	if m := explicitMonthRe.FindStringSubmatch(text); m != nil {
		y, _ := strconv.Atoi(m[1])
		mo, _ := strconv.Atoi(m[2])
		if p, err := model.NewPeriod(y, mo); err == nil {
			return p
		}
	}

	if m := quarterRe.FindStringSubmatch(text); m != nil {
		q := m[3]
		if m[2] != "" {
			q = m[2]
		}
		n, ok := chineseQuarter[q]
		if !ok {
			n, _ = strconv.Atoi(q)
		}
		year := ctx.Year
		if m[1] != "" {
			year, _ = strconv.Atoi(m[1])
		}
		if p, err := model.NewPeriod(year, n*3); err == nil {
			return p
		}
	}

	return ctx.defaultPeriod()
}

// periodFromCell reads a loose year-month ("2024-03", "2024/3", "2024年3")
// from a date column value.
func periodFromCell(s string) (model.Period, bool) {
	m := dateCellRe.FindStringSubmatch(Fold(s))
	if m == nil {
		return model.Period{}, false
	}
	y, _ := strconv.Atoi(m[1])
	mo, _ := strconv.Atoi(m[2])
	p, err := model.NewPeriod(y, mo)
	return p, err == nil
}
