package fetcher

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// Sheet is one worksheet flattened to cell strings.
type Sheet struct {
	Name string
	Rows [][]string
}

// ReadWorkbook parses an .xlsx document held in memory and returns every
// sheet in workbook order. Fully blank rows are dropped.
func ReadWorkbook(data []byte) ([]Sheet, error) {
	f, err := xlsx.OpenBinary(data)
	if err != nil {
		return nil, eris.Wrap(err, "xlsx: open workbook")
	}

	sheets := make([]Sheet, 0, len(f.Sheets))
	for _, sh := range f.Sheets {
		out := Sheet{Name: sh.Name}
		for _, row := range sh.Rows {
			if row == nil {
				continue
			}
			cells := rowToStrings(row)
			if blank(cells) {
				continue
			}
			out.Rows = append(out.Rows, cells)
		}
		sheets = append(sheets, out)
	}
	return sheets, nil
}

func rowToStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		if cell == nil {
			continue
		}
		cells[j] = strings.TrimSpace(cell.String())
	}
	return cells
}

func blank(cells []string) bool {
	for _, c := range cells {
		if c != "" {
			return false
		}
	}
	return true
}
