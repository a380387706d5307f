package importer

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lending-harvest/internal/model"
	"github.com/sells-group/lending-harvest/internal/store"
)

const platformsJSON = `[
  {"name": "花呗", "company_group": "蚂蚁集团", "report_month": "2024-03", "loan_balance": 1800.5},
  {"name": "网商银行", "report_month": "2024-03", "platform_type": "联合贷", "loan_type": "经营类", "loan_issued": 3000},
  {"name": "", "report_month": "2024-03"},
  {"name": "借呗", "report_month": "2024-13"},
  {"name": "微粒贷", "report_month": "2024-03", "platform_type": "自营"}
]`

const banksYAML = `
- name: 招商银行
  kind: bank
  bank_type: 股份制
  report_month: 2024-06
  total_internet_loan: 900
  coop_platform_count: 12
- name: 花呗
  kind: platform
  report_month: 2024-06
`

func TestLoad_JSON(t *testing.T) {
	recs, err := Load(strings.NewReader(platformsJSON), model.KindPlatform)
	require.NoError(t, err)
	require.Len(t, recs, 2)

	assert.Equal(t, "花呗", recs[0].Name)
	assert.Equal(t, "蚂蚁集团", recs[0].Group)
	assert.Equal(t, "2024-03", recs[0].Period.String())
	assert.Equal(t, model.KindPlatform, recs[0].Kind)
	assert.Equal(t, model.ProductJointLending, recs[0].Product)
	assert.Equal(t, model.UsageConsumer, recs[0].Usage)
	require.NotNil(t, recs[0].Balance)
	assert.InDelta(t, 1800.5, *recs[0].Balance, 0.001)
	assert.Nil(t, recs[0].Issued)

	assert.Equal(t, model.UsageBusiness, recs[1].Usage)
	require.NotNil(t, recs[1].Issued)
	assert.InDelta(t, 3000, *recs[1].Issued, 0.001)
}

func TestLoad_YAMLWithKindFilter(t *testing.T) {
	recs, err := Load(strings.NewReader(banksYAML), model.KindBank)
	require.NoError(t, err)
	require.Len(t, recs, 1)

	bank := recs[0]
	assert.Equal(t, model.KindBank, bank.Kind)
	assert.Equal(t, "股份制", bank.BankType)
	assert.Equal(t, "2024-06", bank.Period.String())
	require.NotNil(t, bank.CoopPlatformCount)
	assert.Equal(t, 12, *bank.CoopPlatformCount)
	assert.Empty(t, bank.Product)

	all, err := Load(strings.NewReader(banksYAML), "")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestLoad_Malformed(t *testing.T) {
	_, err := Load(strings.NewReader(`{"name": "花呗"}`), model.KindPlatform)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "importer: parse")
}

func TestImport(t *testing.T) {
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "import.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	ctx := context.Background()
	require.NoError(t, st.Migrate(ctx))

	recs, err := Load(strings.NewReader(platformsJSON), model.KindPlatform)
	require.NoError(t, err)

	saved, err := Import(ctx, st, recs)
	require.NoError(t, err)
	assert.Equal(t, 2, saved)

	saved, err = Import(ctx, st, recs)
	require.NoError(t, err)
	assert.Equal(t, 0, saved)

	stored, err := st.ListPlatforms(ctx, store.Filter{})
	require.NoError(t, err)
	assert.Len(t, stored, 2)
}
