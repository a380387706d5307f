package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/lending-harvest/internal/importer"
	"github.com/sells-group/lending-harvest/internal/model"
	"github.com/sells-group/lending-harvest/internal/store"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the store schema",
	RunE: func(cmd *cobra.Command, _ []string) error {
		st, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		zap.L().Info("migration complete", zap.String("driver", cfg.Store.Driver))
		return nil
	},
}

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Bulk import records from a JSON or YAML file",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		kindFlag, _ := cmd.Flags().GetString("kind")
		file, _ := cmd.Flags().GetString("file")

		kind, err := parseKind(kindFlag, false)
		if err != nil {
			return err
		}
		f, err := os.Open(file)
		if err != nil {
			return eris.Wrapf(err, "open %s", file)
		}
		defer f.Close() //nolint:errcheck

		recs, err := importer.Load(f, kind)
		if err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		saved, err := importer.Import(ctx, st, recs)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "Imported %d of %d records from %s\n", saved, len(recs), file)
		return nil
	},
}

var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete records whose report month falls within a range",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		kindFlag, _ := cmd.Flags().GetString("kind")
		fromFlag, _ := cmd.Flags().GetString("from")
		toFlag, _ := cmd.Flags().GetString("to")

		kind, err := parseKind(kindFlag, true)
		if err != nil {
			return err
		}
		from, err := model.ParsePeriod(fromFlag)
		if err != nil {
			return eris.Wrap(err, "--from")
		}
		to, err := model.ParsePeriod(toFlag)
		if err != nil {
			return eris.Wrap(err, "--to")
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		n, err := st.DeleteByPeriod(ctx, kind, from, to)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "Deleted %d records from %s to %s\n", n, from, to)
		return nil
	},
}

var recordsCmd = &cobra.Command{
	Use:   "records",
	Short: "List stored platform or bank records",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		kindFlag, _ := cmd.Flags().GetString("kind")
		kind, err := parseKind(kindFlag, false)
		if err != nil {
			return err
		}
		f, err := recordFilter(cmd)
		if err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		var recs []model.Record
		if kind == model.KindBank {
			recs, err = st.ListBanks(ctx, f)
		} else {
			recs, err = st.ListPlatforms(ctx, f)
		}
		if err != nil {
			return err
		}
		if len(recs) == 0 {
			fmt.Fprintln(os.Stderr, "No records found.")
			return nil
		}
		formatRecords(os.Stdout, kind, recs)
		return nil
	},
}

func init() {
	importCmd.Flags().String("kind", "platform", "record kind: platform or bank")
	importCmd.Flags().String("file", "", "JSON or YAML file holding a list of records")
	_ = importCmd.MarkFlagRequired("file")

	purgeCmd.Flags().String("kind", "all", "record kind: platform, bank or all")
	purgeCmd.Flags().String("from", "", "first report month (YYYY-MM)")
	purgeCmd.Flags().String("to", "", "last report month (YYYY-MM)")
	_ = purgeCmd.MarkFlagRequired("from")
	_ = purgeCmd.MarkFlagRequired("to")

	recordsCmd.Flags().String("kind", "platform", "record kind: platform or bank")
	recordsCmd.Flags().String("name", "", "filter by platform or bank name")
	recordsCmd.Flags().String("group", "", "filter by company group (platforms) or bank type (banks)")
	recordsCmd.Flags().String("from", "", "first report month (YYYY-MM)")
	recordsCmd.Flags().String("to", "", "last report month (YYYY-MM)")
	recordsCmd.Flags().Int("limit", 50, "max records to show")

	rootCmd.AddCommand(migrateCmd, importCmd, purgeCmd, recordsCmd)
}

// parseKind maps a --kind flag to a record kind. "all" maps to the empty
// kind and is accepted only when allowAll is set.
func parseKind(s string, allowAll bool) (model.RecordKind, error) {
	switch s {
	case string(model.KindPlatform):
		return model.KindPlatform, nil
	case string(model.KindBank):
		return model.KindBank, nil
	case "all":
		if allowAll {
			return "", nil
		}
	}
	return "", eris.Errorf("unsupported --kind %q", s)
}

func recordFilter(cmd *cobra.Command) (store.Filter, error) {
	name, _ := cmd.Flags().GetString("name")
	group, _ := cmd.Flags().GetString("group")
	fromFlag, _ := cmd.Flags().GetString("from")
	toFlag, _ := cmd.Flags().GetString("to")
	limit, _ := cmd.Flags().GetInt("limit")

	f := store.Filter{Name: name, Group: group, Limit: limit}
	var err error
	if fromFlag != "" {
		if f.From, err = model.ParsePeriod(fromFlag); err != nil {
			return f, eris.Wrap(err, "--from")
		}
	}
	if toFlag != "" {
		if f.To, err = model.ParsePeriod(toFlag); err != nil {
			return f, eris.Wrap(err, "--to")
		}
	}
	return f, nil
}

func formatRecords(out io.Writer, kind model.RecordKind, recs []model.Record) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	if kind == model.KindBank {
		_, _ = fmt.Fprintln(w, "MONTH\tBANK\tTYPE\tINTERNET LOAN\tPLATFORMS\tTOP3 SHARE\tSOURCE")
		for _, r := range recs {
			_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
				r.Period, r.Name, r.BankType,
				fmtFloat(r.TotalInternetLoan), fmtInt(r.CoopPlatformCount), fmtFloat(r.Top3Share),
				r.SourceLabel)
		}
	} else {
		_, _ = fmt.Fprintln(w, "MONTH\tPLATFORM\tGROUP\tTYPE\tUSAGE\tBALANCE\tISSUED\tYOY%\tSOURCE")
		for _, r := range recs {
			_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
				r.Period, r.Name, r.Group, r.Product, r.Usage,
				fmtFloat(r.Balance), fmtFloat(r.Issued), fmtFloat(r.YoYGrowth),
				r.SourceLabel)
		}
	}
	_ = w.Flush()
}

func fmtFloat(v *float64) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func fmtInt(v *int) string {
	if v == nil {
		return "-"
	}
	return strconv.Itoa(*v)
}
