package store

import (
	"github.com/sells-group/lending-harvest/internal/db"
	"github.com/sells-group/lending-harvest/internal/model"
)

var platformInsert = db.InsertConfig{
	Table: "platforms",
	Columns: []string{
		"name", "company_group", "report_month", "platform_type", "loan_type",
		"loan_balance", "loan_issued", "yoy_growth", "mom_growth",
		"data_source", "source_url", "created_at",
	},
	ConflictKeys: []string{"name", "report_month", "platform_type", "loan_type"},
}

var bankInsert = db.InsertConfig{
	Table: "banks",
	Columns: []string{
		"name", "bank_type", "report_month",
		"total_internet_loan", "coop_platform_count", "top3_platform_share",
		"data_source", "source_url", "created_at",
	},
	ConflictKeys: []string{"name", "report_month"},
}

const platformSelect = `SELECT name, company_group, report_month, platform_type, loan_type,
	loan_balance, loan_issued, yoy_growth, mom_growth, data_source, source_url FROM platforms`

const bankSelect = `SELECT name, bank_type, report_month,
	total_internet_loan, coop_platform_count, top3_platform_share, data_source, source_url FROM banks`

// platformArgs orders r's fields as platformInsert.Columns, with month
// encoding the report month for the dialect.
func platformArgs(r model.Record, month any, now any) []any {
	return []any{
		r.Name, r.Group, month, string(r.Product), string(r.Usage),
		r.Balance, r.Issued, r.YoYGrowth, r.MoMGrowth,
		r.SourceLabel, r.SourceURL, now,
	}
}

func bankArgs(r model.Record, month any, now any) []any {
	return []any{
		r.Name, r.BankType, month,
		r.TotalInternetLoan, r.CoopPlatformCount, r.Top3Share,
		r.SourceLabel, r.SourceURL, now,
	}
}

// tablesFor maps a record kind to its tables. Empty kind means both.
func tablesFor(kind model.RecordKind) []string {
	switch kind {
	case model.KindPlatform:
		return []string{"platforms"}
	case model.KindBank:
		return []string{"banks"}
	default:
		return []string{"platforms", "banks"}
	}
}
