package fetcher

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
)

func buildWorkbook(t *testing.T, sheets []Sheet) []byte {
	t.Helper()
	f := xlsx.NewFile()
	for _, s := range sheets {
		sheet, err := f.AddSheet(s.Name)
		require.NoError(t, err)
		for _, rowData := range s.Rows {
			row := sheet.AddRow()
			for _, cellData := range rowData {
				row.AddCell().SetString(cellData)
			}
		}
	}
	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))
	return buf.Bytes()
}

func TestReadWorkbook(t *testing.T) {
	data := buildWorkbook(t, []Sheet{
		{Name: "互联网贷款", Rows: [][]string{
			{"机构", "2024年3月", "余额", "发放"},
			{"", "", "", ""},
			{"招商银行", " 2024-03月 ", "1,234.5", "88"},
		}},
		{Name: "说明", Rows: [][]string{{"单位：亿元"}}},
	})

	sheets, err := ReadWorkbook(data)
	require.NoError(t, err)
	require.Len(t, sheets, 2)

	assert.Equal(t, "互联网贷款", sheets[0].Name)
	require.Len(t, sheets[0].Rows, 2, "blank rows dropped")
	assert.Equal(t, []string{"招商银行", "2024-03月", "1,234.5", "88"}, sheets[0].Rows[1])
	assert.Equal(t, "说明", sheets[1].Name)
}

func TestReadWorkbook_Invalid(t *testing.T) {
	_, err := ReadWorkbook([]byte("not a zip"))
	assert.Error(t, err)
}
