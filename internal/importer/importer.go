// Package importer bulk-loads platform and bank records from JSON or YAML
// files into the store.
package importer

import (
	"context"
	"io"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/lending-harvest/internal/model"
	"github.com/sells-group/lending-harvest/internal/store"
)

// row is one record as written in an import file. JSON input decodes
// through the YAML parser.
type row struct {
	model.Record `yaml:",inline"`
	ReportMonth  string `yaml:"report_month"`
}

// Load parses a list of records. kind, when set, applies to rows that do
// not name their own kind; rows naming a different kind are skipped. Rows
// missing a name or a valid YYYY-MM report month are skipped with a
// warning. Only a malformed document is an error.
func Load(r io.Reader, kind model.RecordKind) ([]model.Record, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, eris.Wrap(err, "importer: read")
	}

	var rows []row
	if err := yaml.Unmarshal(data, &rows); err != nil {
		return nil, eris.Wrap(err, "importer: parse")
	}

	log := zap.L().With(zap.String("component", "importer"))
	out := make([]model.Record, 0, len(rows))
	for i, rw := range rows {
		rec := rw.Record
		if rec.Kind == "" {
			rec.Kind = kind
		}
		if reason := invalid(rec, kind, rw.ReportMonth); reason != "" {
			log.Warn("skipping row", zap.Int("row", i+1), zap.String("name", rec.Name), zap.String("reason", reason))
			continue
		}
		rec.Period, _ = model.ParsePeriod(rw.ReportMonth)
		out = append(out, rec.WithDefaults())
	}
	return out, nil
}

func invalid(rec model.Record, kind model.RecordKind, month string) string {
	switch {
	case rec.Name == "":
		return "missing name"
	case kind != "" && rec.Kind != kind:
		return "kind " + string(rec.Kind) + " does not match " + string(kind)
	case rec.Kind != "" && rec.Kind != model.KindPlatform && rec.Kind != model.KindBank:
		return "unknown kind " + string(rec.Kind)
	}
	if _, err := model.ParsePeriod(month); err != nil {
		return "invalid report_month " + month
	}
	switch rec.Product {
	case "", model.ProductJointLending, model.ProductAssistedLending:
	default:
		return "unknown platform_type " + string(rec.Product)
	}
	switch rec.Usage {
	case "", model.UsageConsumer, model.UsageBusiness:
	default:
		return "unknown loan_type " + string(rec.Usage)
	}
	return ""
}

// Import persists recs in one transaction and returns how many were new.
func Import(ctx context.Context, st store.Store, recs []model.Record) (int, error) {
	var saved int
	err := st.InTx(ctx, func(tx store.Tx) error {
		var err error
		saved, err = store.SaveRecords(ctx, tx, recs)
		return err
	})
	if err != nil {
		return 0, eris.Wrap(err, "importer: save")
	}
	return saved, nil
}
