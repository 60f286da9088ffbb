package datanorm

import (
	"bytes"
	"fmt"

	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"
)

// readXLSX reads the first worksheet of an Office Open XML workbook.
// Row 1 is the header.
func readXLSX(data []byte) (*RawTable, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: open xlsx: %v", ErrUnsupportedFormat, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrEmptyFile
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("%w: read sheet %q: %v", ErrUnsupportedFormat, sheets[0], err)
	}

	lines := make([]int, len(rows))
	for i := range rows {
		lines[i] = i + 1
	}
	return buildTable(rows, lines)
}

// readXLS reads the first worksheet of a legacy BIFF workbook.
func readXLS(data []byte) (table *RawTable, err error) {
	// the BIFF decoder panics on some truncated inputs
	defer func() {
		if r := recover(); r != nil {
			table, err = nil, fmt.Errorf("%w: corrupt xls: %v", ErrUnsupportedFormat, r)
		}
	}()

	wb, err := xls.OpenReader(bytes.NewReader(data), "utf-8")
	if err != nil {
		return nil, fmt.Errorf("%w: open xls: %v", ErrUnsupportedFormat, err)
	}
	if wb == nil || wb.NumSheets() == 0 {
		return nil, fmt.Errorf("%w: xls has no worksheet", ErrUnsupportedFormat)
	}
	sheet := wb.GetSheet(0)

	var records [][]string
	var lines []int
	for i := 0; i <= int(sheet.MaxRow); i++ {
		row := sheet.Row(i)
		var cells []string
		if row != nil {
			for c := 0; c < row.LastCol(); c++ {
				cells = append(cells, row.Col(c))
			}
		}
		records = append(records, cells)
		lines = append(lines, i+1)
	}
	return buildTable(records, lines)
}
