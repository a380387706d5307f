package model

import "strings"

// RecordKind distinguishes platform disclosures from bank disclosures.
type RecordKind string

const (
	KindPlatform RecordKind = "platform"
	KindBank     RecordKind = "bank"
)

// ProductType is the lending arrangement a platform figure refers to.
type ProductType string

const (
	ProductJointLending    ProductType = "联合贷"
	ProductAssistedLending ProductType = "助贷"
)

// UsageType is the borrower purpose a platform figure refers to.
type UsageType string

const (
	UsageConsumer UsageType = "消费类"
	UsageBusiness UsageType = "经营类"
)

// Record is a candidate fact extracted from a source, prior to
// deduplication. Amounts are in 亿元 (100 million CNY); nil means absent.
type Record struct {
	Kind    RecordKind  `json:"kind" yaml:"kind"`
	Name    string      `json:"name" yaml:"name"`
	Group   string      `json:"company_group,omitempty" yaml:"company_group"`
	Period  Period      `json:"report_month" yaml:"-"`
	Product ProductType `json:"platform_type,omitempty" yaml:"platform_type"`
	Usage   UsageType   `json:"loan_type,omitempty" yaml:"loan_type"`

	// Platform metrics.
	Balance   *float64 `json:"loan_balance,omitempty" yaml:"loan_balance"`
	Issued    *float64 `json:"loan_issued,omitempty" yaml:"loan_issued"`
	YoYGrowth *float64 `json:"yoy_growth,omitempty" yaml:"yoy_growth"`
	MoMGrowth *float64 `json:"mom_growth,omitempty" yaml:"mom_growth"`

	// Bank metrics.
	BankType          string   `json:"bank_type,omitempty" yaml:"bank_type"`
	TotalInternetLoan *float64 `json:"total_internet_loan,omitempty" yaml:"total_internet_loan"`
	CoopPlatformCount *int     `json:"coop_platform_count,omitempty" yaml:"coop_platform_count"`
	Top3Share         *float64 `json:"top3_platform_share,omitempty" yaml:"top3_platform_share"`

	SourceLabel string `json:"data_source,omitempty" yaml:"data_source"`
	SourceURL   string `json:"source_url,omitempty" yaml:"source_url"`
}

// NaturalKey identifies a record for deduplication. Platform records are
// keyed by (name, period, product, usage); bank records by (name, period).
func (r Record) NaturalKey() string {
	if r.Kind == KindBank {
		return strings.Join([]string{string(KindBank), r.Name, r.Period.String()}, "|")
	}
	return strings.Join([]string{string(KindPlatform), r.Name, r.Period.String(), string(r.Product), string(r.Usage)}, "|")
}

// HasFacts reports whether the record carries at least one metric.
func (r Record) HasFacts() bool {
	if r.Kind == KindBank {
		return r.TotalInternetLoan != nil || r.CoopPlatformCount != nil || r.Top3Share != nil
	}
	return r.Balance != nil || r.Issued != nil
}

// WithDefaults fills the classification fields a platform record needs for
// its natural key.
func (r Record) WithDefaults() Record {
	if r.Kind == "" {
		r.Kind = KindPlatform
	}
	if r.Kind == KindPlatform {
		if r.Product == "" {
			r.Product = ProductJointLending
		}
		if r.Usage == "" {
			r.Usage = UsageConsumer
		}
	}
	return r
}

// Float returns a pointer to v. Used when building records.
func Float(v float64) *float64 { return &v }

// Int returns a pointer to v.
func Int(v int) *int { return &v }
