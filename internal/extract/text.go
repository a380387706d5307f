package extract

import (
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/lending-harvest/internal/entity"
	"github.com/sells-group/lending-harvest/internal/model"
)

const (
	numberPat   = `([0-9][0-9,]*(?:\.[0-9]+)?)`
	unitPat     = `\s*亿`
	linkPat     = `[:\s]*(?:为|达|达到|约|约为|共计|合计|突破|超过)?[:\s]*`
	gapPat      = `[^。；;!?！？0-9]{0,8}?`
	balanceTerm = `(?:贷款余额|余额|存量)`
	issuedTerm  = `(?:发放|交易|放款)(?:规模|金额|额|量)?`
)

var (
	yoyRe   = regexp.MustCompile(`同比(增长|上升|提升|下降|减少)?[:\s]*(-?[0-9]+(?:\.[0-9]+)?)\s*%`)
	momRe   = regexp.MustCompile(`环比(增长|上升|提升|下降|减少)?[:\s]*(-?[0-9]+(?:\.[0-9]+)?)\s*%`)
	coopRe  = regexp.MustCompile(`合作(?:平台|机构)[^0-9。；;]{0,6}?([0-9][0-9,]*)\s*家`)
	top3Re  = regexp.MustCompile(`前三(?:大|家)?(?:平台)?(?:占比|份额|集中度)[^0-9。；;]{0,6}?([0-9]+(?:\.[0-9]+)?)\s*%`)
	patMemo = newPatternCache()
)

// TextExtractor pulls figures out of free-text paragraphs.
type TextExtractor struct {
	rec *entity.Recognizer
}

// NewTextExtractor creates a TextExtractor.
func NewTextExtractor(rec *entity.Recognizer) *TextExtractor {
	return &TextExtractor{rec: rec}
}

// Extract returns one candidate per recognized entity group that has a
// balance or issuance figure. For each entity a tight pattern (entity,
// label, number, unit) is tried before a loose one (label, number, unit,
// then the entity later in the sentence).
func (e *TextExtractor) Extract(text string, ctx Context) []model.Record {
	text = Fold(strings.TrimSpace(text))
	if text == "" || !Allowed(text, ctx.Keywords) {
		return nil
	}

	matches := e.rec.Recognize(text)
	if len(matches) == 0 {
		return nil
	}

	period := ResolvePeriod(text, ctx)
	var out []model.Record
	for _, m := range matches {
		pats := patMemo.get(m.Name)
		r := newRecord(m, period, text, ctx)

		balanceRaw := firstGroup(text, pats.balanceTight, pats.balanceLoose)
		issuedRaw := firstGroup(text, pats.issuedTight, pats.issuedLoose)

		switch m.Kind {
		case model.KindBank:
			if balanceRaw != "" {
				r.TotalInternetLoan = amount(balanceRaw, "total_internet_loan", ctx)
			}
			if sm := coopRe.FindStringSubmatch(text); sm != nil {
				if n, err := ParseCount(sm[1]); err == nil {
					r.CoopPlatformCount = &n
				}
			}
			if sm := top3Re.FindStringSubmatch(text); sm != nil {
				r.Top3Share = amount(sm[1], "top3_platform_share", ctx)
			}
		default:
			if balanceRaw != "" {
				r.Balance = amount(balanceRaw, "loan_balance", ctx)
			}
			if issuedRaw != "" {
				r.Issued = amount(issuedRaw, "loan_issued", ctx)
			}
			if r.HasFacts() {
				r.YoYGrowth = growth(yoyRe, text)
				r.MoMGrowth = growth(momRe, text)
			}
		}

		if keep(r) {
			out = append(out, r)
		}
	}
	if len(out) > 0 {
		zap.L().Debug("extract: text candidates", zap.Int("count", len(out)), zap.String("source_url", ctx.SourceURL))
	}
	return out
}

func firstGroup(text string, res ...*regexp.Regexp) string {
	for _, re := range res {
		if m := re.FindStringSubmatch(text); m != nil {
			return m[1]
		}
	}
	return ""
}

func growth(re *regexp.Regexp, text string) *float64 {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	v, err := ParsePercent(m[2])
	if err != nil {
		return nil
	}
	if (m[1] == "下降" || m[1] == "减少") && v > 0 {
		v = -v
	}
	return &v
}
